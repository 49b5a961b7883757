// File: internal/infra/adapters/payment/zarinpal/gateway.go
package zarinpal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
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
	Name           = "zarinpal"
	DefaultVersion = 4

	sandboxDomain    = "sandbox.zarinpal.com"
	productionDomain = "www.zarinpal.com"
)

var (
	_ adapter.Gateway          = (*Gateway)(nil)
	_ adapter.Reverser         = (*Gateway)(nil)
	_ adapter.UnverifiedLister = (*Gateway)(nil)
	_ adapter.CallbackParser   = (*Gateway)(nil)
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

// Gateway talks to the ZarinPal REST v4 payment API.
// Inquiry and the lazy flow are not offered by ZarinPal and fail with NotSupported.
type Gateway struct {
	adapter.Unsupported

	merchantID string
	domain     string
	client     *httpclient.Client
}

func New(cfg config.GatewayConfig, opts ...httpclient.Option) (*Gateway, error) {
	if strings.TrimSpace(cfg.MerchantID) == "" {
		return nil, domain.NewValidationError("merchant_id", "must be a non-empty string")
	}
	version := cfg.Version
	if version <= 0 {
		version = DefaultVersion
	}
	host := productionDomain
	if cfg.Sandbox {
		host = sandboxDomain
	}
	base := cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s/pg/v%d/payment", host, version)
	}

	opts = append([]httpclient.Option{httpclient.WithName(Name)}, opts...)
	return &Gateway{
		Unsupported: adapter.Unsupported{Gateway: "ZarinPal"},
		merchantID:  cfg.MerchantID,
		domain:      host,
		client:      httpclient.New(base, cfg.HTTP, opts...),
	}, nil
}

func (g *Gateway) Name() string { return Name }

// Payment calls /request.json and returns the authority with its StartPay url.
func (g *Gateway) Payment(ctx context.Context, req model.PaymentRequest) (*model.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, domain.NewValidationError("description", "is required")
	}
	if len(req.AllowedCards) > 1 {
		return nil, domain.NewValidationError("allowed_cards", "zarinpal accepts a single card_pan")
	}

	body := requestBody{
		Amount:      req.Amount,
		Currency:    string(req.Currency),
		Description: req.Description,
		CallbackURL: req.CallbackURL,
		Metadata:    metadata(req),
	}
	var data requestData
	if err := g.post(ctx, "/request.json", body, &data); err != nil {
		return nil, err
	}
	if !isSuccess(data.Code) {
		return nil, mapError(data.Code, data.Message, 0)
	}

	redirect, err := g.RedirectURL(data.Authority)
	if err != nil {
		return nil, err
	}
	return &model.PaymentResponse{
		Gateway:     Name,
		Reference:   data.Authority,
		Code:        data.Code,
		Message:     data.Message,
		Fee:         data.Fee,
		FeeType:     data.FeeType,
		RedirectURL: redirect,
	}, nil
}

// RedirectURL is pure string formatting.
func (g *Gateway) RedirectURL(authority string) (string, error) {
	if authority == "" {
		return "", domain.NewValidationError("reference", "is required")
	}
	return fmt.Sprintf("https://%s/pg/StartPay/%s", g.domain, url.PathEscape(authority)), nil
}

// Verify calls /verify.json. ZarinPal needs the original amount.
func (g *Gateway) Verify(ctx context.Context, req model.VerifyRequest) (*model.VerifyResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Amount < model.MinAmount {
		return nil, domain.NewValidationError("amount", "must be at least "+strconv.Itoa(model.MinAmount))
	}

	var data verifyData
	if err := g.post(ctx, "/verify.json", verifyBody{Amount: req.Amount, Authority: req.Reference}, &data); err != nil {
		return nil, err
	}
	if !isSuccess(data.Code) {
		return nil, mapError(data.Code, data.Message, 0)
	}
	return &model.VerifyResponse{
		Gateway:   Name,
		Reference: req.Reference,
		Code:      data.Code,
		Message:   data.Message,
		RefID:     strconv.FormatInt(data.RefID, 10),
		CardPAN:   data.CardPAN,
		CardHash:  data.CardHash,
		Fee:       data.Fee,
		FeeType:   data.FeeType,
		Amount:    req.Amount,
	}, nil
}

// CallbackVerify verifies only when the customer came back with Status=OK.
func (g *Gateway) CallbackVerify(ctx context.Context, cb model.Callback) (*model.VerifyResponse, error) {
	if cb.Status != "OK" {
		return nil, domain.NewValidationError("status", fmt.Sprintf("payment was not successful (status %q)", cb.Status))
	}
	return g.Verify(ctx, model.VerifyRequest{Reference: cb.Reference, Amount: cb.Amount})
}

// ParseCallback reads Authority and Status from the redirect query string.
// The amount is read from the optional "amount" parameter merchants embed in their callback url.
func (g *Gateway) ParseCallback(q url.Values) (model.Callback, error) {
	cb := model.Callback{
		Reference: q.Get("Authority"),
		Status:    q.Get("Status"),
		OrderID:   q.Get("order_id"),
	}
	if cb.Reference == "" {
		return cb, domain.NewValidationError("Authority", "is required")
	}
	if cb.Status != "OK" && cb.Status != "NOK" {
		return cb, domain.NewValidationError("Status", "must be OK or NOK")
	}
	if v := q.Get("amount"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cb, domain.NewValidationError("amount", "must be an integer")
		}
		cb.Amount = n
	}
	return cb, nil
}

// Reverse cancels a paid session within 30 minutes of payment.
func (g *Gateway) Reverse(ctx context.Context, req model.ReverseRequest) (*model.ReverseResponse, error) {
	if req.Reference == "" {
		return nil, domain.NewValidationError("reference", "is required")
	}
	var data reverseData
	if err := g.post(ctx, "/reverse.json", reverseBody{Authority: req.Reference}, &data); err != nil {
		return nil, err
	}
	if !isSuccess(data.Code) {
		return nil, mapError(data.Code, data.Message, 0)
	}
	return &model.ReverseResponse{Gateway: Name, Code: data.Code, Message: data.Message}, nil
}

// Unverified lists successful payments that were never verified.
func (g *Gateway) Unverified(ctx context.Context) ([]model.UnverifiedPayment, error) {
	var data unverifiedData
	if err := g.post(ctx, "/unVerified.json", struct{}{}, &data); err != nil {
		return nil, err
	}
	if !isSuccess(data.Code) {
		return nil, mapError(data.Code, data.Message, 0)
	}
	out := make([]model.UnverifiedPayment, 0, len(data.Authorities))
	for _, a := range data.Authorities {
		out = append(out, model.UnverifiedPayment{
			Reference:   a.Authority,
			Amount:      a.Amount,
			CallbackURL: a.CallbackURL,
			Referer:     a.Referer,
			Date:        a.Date,
		})
	}
	return out, nil
}

// post injects merchant_id, sends payload and decodes the data object into out.
// A populated errors object wins over data, also on non-2xx responses.
func (g *Gateway) post(ctx context.Context, path string, payload any, out any) error {
	body, err := withMerchant(g.merchantID, payload)
	if err != nil {
		return err
	}

	raw, err := g.client.Request(ctx, http.MethodPost, path, body)
	if err != nil {
		var te *domain.TransportError
		if errors.As(err, &te) && errors.Is(te.Kind, domain.ErrHTTPStatus) {
			var env envelope
			if json.Unmarshal([]byte(te.Body), &env) == nil {
				if gerr := decodeErrors(env.Errors, te.StatusCode); gerr != nil {
					return gerr
				}
			}
		}
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return g.invalid(path, raw, err)
	}
	if gerr := decodeErrors(env.Errors, 0); gerr != nil {
		return gerr
	}
	if !isObject(env.Data) {
		return g.invalid(path, raw, errors.New("missing data object"))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return g.invalid(path, raw, err)
	}
	return nil
}

func (g *Gateway) invalid(path string, raw []byte, err error) error {
	return &domain.TransportError{
		Kind:       domain.ErrInvalidResponse,
		Method:     http.MethodPost,
		URL:        g.client.BaseURL() + path,
		StatusCode: http.StatusOK,
		Body:       string(raw),
		Err:        err,
	}
}

func withMerchant(merchantID string, payload any) (map[string]any, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	m := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	m["merchant_id"] = merchantID
	return m, nil
}

// metadata is sent as a key/value list sorted by key.
func metadata(req model.PaymentRequest) []metaItem {
	md := make(map[string]string, len(req.Metadata)+4)
	for k, v := range req.Metadata {
		md[k] = v
	}
	if req.Mobile != "" {
		md["mobile"] = req.Mobile
	}
	if req.Email != "" {
		md["email"] = req.Email
	}
	if req.OrderID != "" {
		md["order_id"] = req.OrderID
	}
	if len(req.AllowedCards) == 1 {
		md["card_pan"] = req.AllowedCards[0]
	}
	if len(md) == 0 {
		return nil
	}
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]metaItem, 0, len(keys))
	for _, k := range keys {
		items = append(items, metaItem{Key: k, Value: md[k]})
	}
	return items
}
