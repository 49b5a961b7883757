package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"iranpay/internal/config"
	"iranpay/internal/domain"
	"iranpay/internal/domain/model"
	"iranpay/internal/domain/ports/adapter"
	"iranpay/internal/infra/httpclient"
	"iranpay/internal/infra/registry"
)

const NoopName = "noop"

var (
	_ adapter.Gateway            = (*NoopGateway)(nil)
	_ adapter.Reverser           = (*NoopGateway)(nil)
	_ adapter.UnverifiedLister   = (*NoopGateway)(nil)
	_ adapter.CallbackParser     = (*NoopGateway)(nil)
	_ adapter.LazyCallbackParser = (*NoopGateway)(nil)
)

func init() {
	registry.Register(NoopName, func(config.GatewayConfig, ...httpclient.Option) (adapter.Gateway, error) {
		return NewNoopGateway(), nil
	})
}

var noopErrors = domain.ErrorTable{
	1: {Kind: domain.ErrSession, Message: "reference not found"},
	2: {Kind: domain.ErrAmount, Message: "amount mismatch"},
	3: {Kind: domain.ErrAlreadyConfirmed, Message: "already verified"},
	4: {Kind: domain.ErrReverse, Message: "already reversed"},
}

type noopIntent struct {
	amount      int64
	orderID     string
	description string
	callbackURL string
	createdAt   time.Time
	verifiedAt  time.Time
	reversed    bool
}

// NoopGateway is an in-memory gateway for development and tests.
// Every session counts as paid as soon as it is opened; nothing leaves the process.
type NoopGateway struct {
	mu      sync.Mutex
	seq     int64
	intents map[string]*noopIntent // reference -> session
}

func NewNoopGateway() *NoopGateway {
	return &NoopGateway{
		intents: make(map[string]*noopIntent),
	}
}

func (g *NoopGateway) Name() string { return NoopName }

func (g *NoopGateway) next() string {
	g.seq++
	return fmt.Sprintf("noop-%d", g.seq)
}

func (g *NoopGateway) Payment(ctx context.Context, req model.PaymentRequest) (*model.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	ref := g.next()
	g.intents[ref] = &noopIntent{
		amount:      req.Amount,
		orderID:     req.OrderID,
		description: req.Description,
		callbackURL: req.CallbackURL,
		createdAt:   time.Now(),
	}
	g.mu.Unlock()

	redirect, _ := g.RedirectURL(ref)
	return &model.PaymentResponse{Gateway: NoopName, Reference: ref, Code: 100, Message: "success", RedirectURL: redirect}, nil
}

func (g *NoopGateway) LazyPayment(ctx context.Context, req model.PaymentRequest) (*model.PaymentResponse, error) {
	return g.Payment(ctx, req)
}

func (g *NoopGateway) RedirectURL(reference string) (string, error) {
	if reference == "" {
		return "", domain.NewValidationError("reference", "is required")
	}
	return "https://example.test/pay/" + url.PathEscape(reference), nil
}

// Verify checks the remembered amount when one is given.
func (g *NoopGateway) Verify(ctx context.Context, req model.VerifyRequest) (*model.VerifyResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[req.Reference]
	switch {
	case !ok:
		return nil, noopErrors.Map(NoopName, 1, "")
	case req.Amount != 0 && in.amount != req.Amount:
		return nil, noopErrors.Map(NoopName, 2, fmt.Sprintf("amount mismatch: expected %d got %d", in.amount, req.Amount))
	case !in.verifiedAt.IsZero():
		return nil, noopErrors.Map(NoopName, 3, "")
	}
	in.verifiedAt = time.Now()
	return &model.VerifyResponse{
		Gateway:     NoopName,
		Reference:   req.Reference,
		Code:        100,
		Message:     "verified",
		RefID:       "ref-" + req.Reference,
		Amount:      in.amount,
		Status:      1,
		PaidAt:      in.createdAt.Format(time.RFC3339),
		OrderID:     in.orderID,
		Description: in.description,
	}, nil
}

func (g *NoopGateway) Inquiry(ctx context.Context, req model.InquiryRequest) (*model.InquiryResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[req.Reference]
	if !ok {
		return nil, noopErrors.Map(NoopName, 1, "")
	}
	resp := &model.InquiryResponse{
		Gateway:     NoopName,
		Reference:   req.Reference,
		Code:        100,
		Message:     "success",
		Status:      2,
		Amount:      in.amount,
		PaidAt:      in.createdAt.Format(time.RFC3339),
		CreatedAt:   in.createdAt.Format(time.RFC3339),
		OrderID:     in.orderID,
		Description: in.description,
	}
	switch {
	case in.reversed:
		resp.Status = 3
	case !in.verifiedAt.IsZero():
		resp.Status = 1
		resp.VerifiedAt = in.verifiedAt.Format(time.RFC3339)
		resp.RefNumber = "ref-" + req.Reference
	}
	return resp, nil
}

// CallbackVerify accepts either convention: Status "OK" or Success 1.
func (g *NoopGateway) CallbackVerify(ctx context.Context, cb model.Callback) (*model.VerifyResponse, error) {
	if cb.Status != "OK" && cb.Success != 1 {
		return nil, domain.NewValidationError("status", "payment was not successful")
	}
	return g.Verify(ctx, model.VerifyRequest{Reference: cb.Reference, Amount: cb.Amount})
}

func (g *NoopGateway) VerifyLazyCallback(ctx context.Context, cb model.LazyCallback) (*model.VerifyResponse, error) {
	if cb.Success != 1 {
		return nil, domain.NewValidationError("success", "payment was not successful")
	}
	return g.Verify(ctx, model.VerifyRequest{Reference: cb.Reference})
}

func (g *NoopGateway) Reverse(ctx context.Context, req model.ReverseRequest) (*model.ReverseResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[req.Reference]
	if !ok {
		return nil, noopErrors.Map(NoopName, 1, "")
	}
	if in.reversed {
		return nil, noopErrors.Map(NoopName, 4, "")
	}
	in.reversed = true
	return &model.ReverseResponse{Gateway: NoopName, Code: 100, Message: "reversed"}, nil
}

// Unverified lists open sessions that were neither verified nor reversed.
func (g *NoopGateway) Unverified(ctx context.Context) ([]model.UnverifiedPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]model.UnverifiedPayment, 0)
	for ref, in := range g.intents {
		if in.reversed || !in.verifiedAt.IsZero() {
			continue
		}
		out = append(out, model.UnverifiedPayment{
			Reference:   ref,
			Amount:      in.amount,
			CallbackURL: in.callbackURL,
			Date:        in.createdAt.Format(time.RFC3339),
		})
	}
	return out, nil
}

func (g *NoopGateway) ParseCallback(q url.Values) (model.Callback, error) {
	cb := model.Callback{Reference: q.Get("reference"), Status: q.Get("status"), OrderID: q.Get("order_id")}
	if cb.Reference == "" {
		return cb, domain.NewValidationError("reference", "is required")
	}
	if v := q.Get("success"); v != "" {
		cb.Success, _ = strconv.Atoi(v)
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

func (g *NoopGateway) ParseLazyCallback(body []byte) (model.LazyCallback, error) {
	var cb model.LazyCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return cb, domain.NewValidationError("body", "malformed lazy callback: "+err.Error())
	}
	if cb.Reference == "" {
		return cb, domain.NewValidationError("trackId", "is required")
	}
	return cb, nil
}
