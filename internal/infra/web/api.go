package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"iranpay/internal/application"
	"iranpay/internal/domain"
	"iranpay/internal/domain/model"
	"iranpay/internal/infra/dispatch"
	"iranpay/internal/infra/logging"

	"github.com/go-chi/chi/v5"
)

type claimsKey struct{}

// requireOperator admits requests carrying a valid operator token. Tokens scoped
// to some gateways are refused on the others.
func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Result: "unauthorized"})
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// operatorGateway resolves {gateway} and enforces the token's scope.
func (s *Server) operatorGateway(w http.ResponseWriter, r *http.Request) (*application.Payman, bool) {
	name := chi.URLParam(r, "gateway")
	if claims, ok := r.Context().Value(claimsKey{}).(*OperatorClaims); ok && !claims.Allows(name) {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "token not valid for gateway " + name, Result: "forbidden"})
		return nil, false
	}
	p, err := s.gateway(name)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return p, true
}

func (s *Server) listGateways(w http.ResponseWriter, r *http.Request) {
	claims, _ := r.Context().Value(claimsKey{}).(*OperatorClaims)
	names := make([]string, 0, len(s.gateways))
	for _, n := range s.names() {
		if claims == nil || claims.Allows(n) {
			names = append(names, n)
		}
	}
	writeJSON(w, http.StatusOK, struct {
		Data []string `json:"data"`
	}{Data: names})
}

type paymentBody struct {
	Amount              int64             `json:"amount"`
	Currency            string            `json:"currency"`
	CallbackURL         string            `json:"callback_url"`
	Description         string            `json:"description"`
	OrderID             string            `json:"order_id"`
	Mobile              string            `json:"mobile"`
	Email               string            `json:"email"`
	NationalCode        string            `json:"national_code"`
	LedgerID            string            `json:"ledger_id"`
	AllowedCards        []string          `json:"allowed_cards"`
	CheckMobileWithCard bool              `json:"check_mobile_with_card"`
	Metadata            map[string]string `json:"metadata"`
}

func (b paymentBody) request() model.PaymentRequest {
	return model.PaymentRequest{
		Amount:              b.Amount,
		Currency:            model.Currency(b.Currency),
		CallbackURL:         b.CallbackURL,
		Description:         b.Description,
		OrderID:             b.OrderID,
		Mobile:              b.Mobile,
		Email:               b.Email,
		NationalCode:        b.NationalCode,
		LedgerID:            b.LedgerID,
		AllowedCards:        b.AllowedCards,
		CheckMobileWithCard: b.CheckMobileWithCard,
		Metadata:            b.Metadata,
	}
}

func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxLazyBody)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return domain.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return nil
}

// createPayment opens a session; ?lazy=1 selects the lazy flow.
func (s *Server) createPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := s.operatorGateway(w, r)
	if !ok {
		return
	}
	var body paymentBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	req := body.request()

	var f *dispatch.Future[*model.PaymentResponse]
	if lazy, _ := strconv.ParseBool(r.URL.Query().Get("lazy")); lazy {
		f = p.LazyPaymentAsync(ctx, req)
	} else {
		f = p.PaymentAsync(ctx, req)
	}
	resp, err := f.Await(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	l := logging.With(logging.WithReference(ctx, resp.Reference), s.log)
	l.Info().Str("gateway", p.Name()).Int64("amount", req.Amount).Msg("payment session opened")
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) inquiry(w http.ResponseWriter, r *http.Request) {
	p, ok := s.operatorGateway(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	resp, err := p.InquiryAsync(ctx, model.InquiryRequest{Reference: chi.URLParam(r, "reference")}).Await(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) redirect(w http.ResponseWriter, r *http.Request) {
	p, ok := s.operatorGateway(w, r)
	if !ok {
		return
	}
	u, err := p.RedirectURL(chi.URLParam(r, "reference"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		RedirectURL string `json:"redirect_url"`
	}{RedirectURL: u})
}

// verify goes through the same lock and cache as callbacks so an operator
// retry cannot race a customer's redirect.
func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	p, ok := s.operatorGateway(w, r)
	if !ok {
		return
	}
	var body struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	ref := chi.URLParam(r, "reference")
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.VerifyTimeout)
	defer cancel()

	res, cached, err := s.verifyOnce(ctx, p.Name(), ref, func(ctx context.Context) (*model.VerifyResponse, error) {
		return p.VerifyAsync(ctx, model.VerifyRequest{Reference: ref, Amount: body.Amount}).Await(ctx)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if cached {
		w.Header().Set("X-Payman-Cache", "hit")
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) reverse(w http.ResponseWriter, r *http.Request) {
	p, ok := s.operatorGateway(w, r)
	if !ok {
		return
	}
	resp, err := p.Reverse(r.Context(), model.ReverseRequest{Reference: chi.URLParam(r, "reference")})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) unverified(w http.ResponseWriter, r *http.Request) {
	p, ok := s.operatorGateway(w, r)
	if !ok {
		return
	}
	list, err := p.Unverified(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data []model.UnverifiedPayment `json:"data"`
	}{Data: list})
}
