// File: internal/infra/adapters/payment/zibal/gateway.go
package zibal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"iranpay/internal/config"
	"iranpay/internal/domain"
	"iranpay/internal/domain/model"
	"iranpay/internal/domain/ports/adapter"
	"iranpay/internal/infra/httpclient"
	"iranpay/internal/infra/registry"
)

const (
	Name           = "zibal"
	DefaultVersion = 1

	// SandboxMerchant is the public test merchant accepted by Zibal.
	SandboxMerchant = "zibal"
	// MaxAmount is the largest amount (IRR) a single Zibal session accepts.
	MaxAmount = 500_000_000

	host = "https://gateway.zibal.ir"
)

var (
	_ adapter.Gateway            = (*Gateway)(nil)
	_ adapter.CallbackParser     = (*Gateway)(nil)
	_ adapter.LazyCallbackParser = (*Gateway)(nil)
)

func init() {
	registry.Register(Name, func(cfg config.GatewayConfig, opts ...httpclient.Option) (adapter.Gateway, error) {
		g, err := New(cfg, opts...)
		if err != nil {
			return nil, err
		}
		return g, nil
	})
}

// Gateway talks to the Zibal IPG v1 API, including the lazy (deferred verify) flow.
type Gateway struct {
	adapter.Unsupported

	merchant string
	client   *httpclient.Client
}

func New(cfg config.GatewayConfig, opts ...httpclient.Option) (*Gateway, error) {
	merchant := strings.TrimSpace(cfg.MerchantID)
	if merchant == "" && cfg.Sandbox {
		merchant = SandboxMerchant
	}
	if merchant == "" {
		return nil, domain.NewValidationError("merchant_id", "must be a non-empty string")
	}
	version := cfg.Version
	if version <= 0 {
		version = DefaultVersion
	}
	base := cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("%s/v%d", host, version)
	}

	opts = append([]httpclient.Option{httpclient.WithName(Name)}, opts...)
	return &Gateway{
		Unsupported: adapter.Unsupported{Gateway: "Zibal"},
		merchant:    merchant,
		client:      httpclient.New(base, cfg.HTTP, opts...),
	}, nil
}

func (g *Gateway) Name() string { return Name }

func (g *Gateway) Payment(ctx context.Context, req model.PaymentRequest) (*model.PaymentResponse, error) {
	return g.request(ctx, "/request", req)
}

// LazyPayment opens a session whose verification is driven by Zibal's server callback.
func (g *Gateway) LazyPayment(ctx context.Context, req model.PaymentRequest) (*model.PaymentResponse, error) {
	return g.request(ctx, "/request/lazy", req)
}

func (g *Gateway) request(ctx context.Context, path string, req model.PaymentRequest) (*model.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	amount, ok := toRial(req.Amount, req.Currency)
	if !ok || amount > MaxAmount {
		return nil, domain.NewValidationError("amount", "must not exceed "+strconv.Itoa(MaxAmount)+" IRR")
	}

	body := requestBody{
		Merchant:            g.merchant,
		Amount:              amount,
		CallbackURL:         req.CallbackURL,
		Description:         req.Description,
		OrderID:             req.OrderID,
		Mobile:              req.Mobile,
		AllowedCards:        req.AllowedCards,
		LedgerID:            req.LedgerID,
		NationalCode:        req.NationalCode,
		CheckMobileWithCard: req.CheckMobileWithCard,
	}
	var out requestResp
	if err := g.post(ctx, path, body, &out); err != nil {
		return nil, err
	}

	ref := strconv.FormatInt(out.TrackID, 10)
	redirect, err := g.RedirectURL(ref)
	if err != nil {
		return nil, err
	}
	return &model.PaymentResponse{
		Gateway:     Name,
		Reference:   ref,
		Code:        out.Result,
		Message:     out.Message,
		RedirectURL: redirect,
	}, nil
}

// RedirectURL is pure string formatting.
func (g *Gateway) RedirectURL(trackID string) (string, error) {
	if _, ok := parseTrackID(trackID); !ok {
		return "", domain.NewValidationError("reference", "must be a positive track id")
	}
	return host + "/start/" + trackID, nil
}

func (g *Gateway) Verify(ctx context.Context, req model.VerifyRequest) (*model.VerifyResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return g.verify(ctx, "/verify", req.Reference)
}

func (g *Gateway) Inquiry(ctx context.Context, req model.InquiryRequest) (*model.InquiryResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	id, ok := parseTrackID(req.Reference)
	if !ok {
		return nil, domain.NewValidationError("reference", "must be a positive track id")
	}

	var out inquiryResp
	if err := g.post(ctx, "/inquiry", trackBody{Merchant: g.merchant, TrackID: id}, &out); err != nil {
		return nil, err
	}
	return &model.InquiryResponse{
		Gateway:     Name,
		Reference:   req.Reference,
		Code:        out.Result,
		Message:     out.Message,
		Status:      out.Status,
		Amount:      out.Amount,
		RefNumber:   string(out.RefNumber),
		PaidAt:      out.PaidAt,
		VerifiedAt:  out.VerifiedAt,
		CreatedAt:   out.CreatedAt,
		OrderID:     out.OrderID,
		Description: out.Description,
		CardNumber:  out.CardNumber,
		Wage:        out.Wage,
	}, nil
}

// CallbackVerify verifies only when the redirect reported success=1.
func (g *Gateway) CallbackVerify(ctx context.Context, cb model.Callback) (*model.VerifyResponse, error) {
	if cb.Success != 1 {
		return nil, domain.NewValidationError("success", fmt.Sprintf("payment was not successful (status %s)", cb.Status))
	}
	return g.Verify(ctx, model.VerifyRequest{Reference: cb.Reference})
}

// VerifyLazyCallback confirms a lazy session through /callback/verify.
func (g *Gateway) VerifyLazyCallback(ctx context.Context, cb model.LazyCallback) (*model.VerifyResponse, error) {
	if cb.Success != 1 {
		return nil, domain.NewValidationError("success", fmt.Sprintf("payment was not successful (status %d)", cb.Status))
	}
	return g.verify(ctx, "/callback/verify", cb.Reference)
}

// ParseCallback reads trackId, success, status and orderId from the redirect query string.
func (g *Gateway) ParseCallback(q url.Values) (model.Callback, error) {
	cb := model.Callback{
		Reference: q.Get("trackId"),
		Status:    q.Get("status"),
		OrderID:   q.Get("orderId"),
	}
	if _, ok := parseTrackID(cb.Reference); !ok {
		return cb, domain.NewValidationError("trackId", "must be a positive integer")
	}
	n, err := strconv.Atoi(q.Get("success"))
	if err != nil || (n != 0 && n != 1) {
		return cb, domain.NewValidationError("success", "must be 0 or 1")
	}
	cb.Success = n
	if v := q.Get("amount"); v != "" {
		a, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cb, domain.NewValidationError("amount", "must be an integer")
		}
		cb.Amount = a
	}
	return cb, nil
}

// ParseLazyCallback decodes the JSON body Zibal posts to the lazy callback url.
func (g *Gateway) ParseLazyCallback(body []byte) (model.LazyCallback, error) {
	var in struct {
		TrackID          flexString `json:"trackId"`
		Success          int        `json:"success"`
		Status           int        `json:"status"`
		OrderID          flexString `json:"orderId"`
		CardNumber       string     `json:"cardNumber"`
		HashedCardNumber string     `json:"hashedCardNumber"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return model.LazyCallback{}, domain.NewValidationError("body", "malformed lazy callback: "+err.Error())
	}
	cb := model.LazyCallback{
		Reference:        string(in.TrackID),
		Success:          in.Success,
		Status:           in.Status,
		OrderID:          string(in.OrderID),
		CardNumber:       in.CardNumber,
		HashedCardNumber: in.HashedCardNumber,
	}
	if _, ok := parseTrackID(cb.Reference); !ok {
		return cb, domain.NewValidationError("trackId", "must be a positive integer")
	}
	return cb, nil
}

func (g *Gateway) verify(ctx context.Context, path, reference string) (*model.VerifyResponse, error) {
	id, ok := parseTrackID(reference)
	if !ok {
		return nil, domain.NewValidationError("reference", "must be a positive track id")
	}

	var out verifyResp
	if err := g.post(ctx, path, trackBody{Merchant: g.merchant, TrackID: id}, &out); err != nil {
		return nil, err
	}
	return &model.VerifyResponse{
		Gateway:     Name,
		Reference:   reference,
		Code:        out.Result,
		Message:     out.Message,
		RefID:       string(out.RefNumber),
		CardPAN:     out.CardNumber,
		Amount:      out.Amount,
		Status:      out.Status,
		PaidAt:      out.PaidAt,
		OrderID:     out.OrderID,
		Description: out.Description,
	}, nil
}

// post sends payload and decodes the response into out.
// Any result other than 100 is mapped through the Zibal table.
func (g *Gateway) post(ctx context.Context, path string, payload any, out interface{ status() result }) error {
	raw, err := g.client.Request(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.TransportError{
			Kind:       domain.ErrInvalidResponse,
			Method:     http.MethodPost,
			URL:        g.client.BaseURL() + path,
			StatusCode: http.StatusOK,
			Body:       string(raw),
			Err:        err,
		}
	}
	if r := out.status(); r.Result != ResultOK {
		return errorTable.Map(Name, r.Result, r.Message)
	}
	return nil
}

func (r result) status() result { return r }

// toRial converts tomans to rials; Zibal only accepts IRR.
// ok is false when the toman amount is already past the IRR ceiling.
func toRial(amount int64, c model.Currency) (int64, bool) {
	if c != model.CurrencyIRT {
		return amount, true
	}
	if amount > MaxAmount/10 {
		return 0, false
	}
	return amount * 10, true
}
