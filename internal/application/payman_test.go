//go:build !integration

package application_test

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"iranpay/internal/application"
	"iranpay/internal/config"
	"iranpay/internal/domain"
	"iranpay/internal/domain/model"
	"iranpay/internal/domain/ports/adapter"
	"iranpay/internal/infra/dispatch"

	_ "iranpay/internal/infra/adapters/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingGateway holds Verify until release is closed.
type blockingGateway struct {
	adapter.Unsupported
	release chan struct{}
	calls   int
}

func (b *blockingGateway) Name() string { return "blocking" }

func (b *blockingGateway) Verify(ctx context.Context, req model.VerifyRequest) (*model.VerifyResponse, error) {
	<-b.release
	b.calls++
	return &model.VerifyResponse{Gateway: "blocking", Reference: req.Reference, Code: 100}, nil
}

func payReq() model.PaymentRequest {
	return model.PaymentRequest{Amount: 12000, CallbackURL: "https://shop.example/cb", Description: "test"}
}

func TestOpen_UnknownGateway(t *testing.T) {
	_, err := application.Open("unknown_gateway", config.GatewayConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownGateway)
	assert.Contains(t, err.Error(), "not supported")
}

func TestOpen_ConstructorErrorPropagates(t *testing.T) {
	_, err := application.Open("zarinpal", config.GatewayConfig{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPayman_SyncFlow(t *testing.T) {
	p, err := application.Open("noop", config.GatewayConfig{})
	require.NoError(t, err)
	ctx := context.Background()

	resp, err := p.Payment(ctx, payReq())
	require.NoError(t, err)
	u, err := p.RedirectURL(resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, resp.RedirectURL, u)

	cb, err := p.ParseCallback(url.Values{"reference": {resp.Reference}, "status": {"OK"}, "amount": {"12000"}})
	require.NoError(t, err)
	v, err := p.CallbackVerify(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, resp.Reference, v.Reference)

	inq, err := p.Inquiry(ctx, model.InquiryRequest{Reference: resp.Reference})
	require.NoError(t, err)
	assert.Equal(t, 1, inq.Status)
}

func TestPayman_AsyncFlow(t *testing.T) {
	p, err := application.Open("noop", config.GatewayConfig{}, application.WithPool(dispatch.NewPool(2)))
	require.NoError(t, err)
	ctx := context.Background()

	resp, err := p.PaymentAsync(ctx, payReq()).Await(ctx)
	require.NoError(t, err)

	lazy, err := p.LazyPaymentAsync(ctx, payReq()).Await(ctx)
	require.NoError(t, err)

	verified, err := dispatch.All(ctx,
		p.VerifyAsync(ctx, model.VerifyRequest{Reference: resp.Reference, Amount: 12000}),
		p.VerifyLazyCallbackAsync(ctx, model.LazyCallback{Reference: lazy.Reference, Success: 1}),
	)
	require.NoError(t, err)
	assert.Len(t, verified, 2)

	_, err = p.InquiryAsync(ctx, model.InquiryRequest{Reference: resp.Reference}).Await(ctx)
	assert.NoError(t, err)
}

func TestPayman_AsyncReturnsPendingFuture(t *testing.T) {
	gw := &blockingGateway{Unsupported: adapter.Unsupported{Gateway: "Blocking"}, release: make(chan struct{})}
	p := application.New(gw)

	f := p.VerifyAsync(context.Background(), model.VerifyRequest{Reference: "r-1"})
	assert.False(t, f.Ready())

	close(gw.release)
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "r-1", v.Reference)
}

func TestPayman_SyncReturnsConcreteValue(t *testing.T) {
	gw := &blockingGateway{Unsupported: adapter.Unsupported{Gateway: "Blocking"}, release: make(chan struct{})}
	close(gw.release)
	p := application.New(gw)

	v, err := p.Verify(context.Background(), model.VerifyRequest{Reference: "r-2"})
	require.NoError(t, err)
	assert.Equal(t, 100, v.Code)
	assert.Equal(t, 1, gw.calls)
}

func TestPayman_UnsupportedOperationAsync(t *testing.T) {
	gw := &blockingGateway{Unsupported: adapter.Unsupported{Gateway: "Blocking"}, release: make(chan struct{})}
	p := application.New(gw)

	_, err := p.CallbackVerifyAsync(context.Background(), model.Callback{Reference: "r"}).Await(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotSupported)
	assert.Zero(t, gw.calls)
}

func TestPayman_OptionalCapabilities(t *testing.T) {
	gw := &blockingGateway{Unsupported: adapter.Unsupported{Gateway: "Blocking"}, release: make(chan struct{})}
	p := application.New(gw)
	ctx := context.Background()

	_, err := p.Reverse(ctx, model.ReverseRequest{Reference: "r"})
	assert.ErrorIs(t, err, domain.ErrNotSupported)
	_, err = p.Unverified(ctx)
	assert.ErrorIs(t, err, domain.ErrNotSupported)
	_, err = p.ParseCallback(url.Values{})
	assert.ErrorIs(t, err, domain.ErrNotSupported)
	_, err = p.ParseLazyCallback(nil)
	assert.ErrorIs(t, err, domain.ErrNotSupported)

	noop, err := application.Open("noop", config.GatewayConfig{})
	require.NoError(t, err)
	resp, err := noop.Payment(ctx, payReq())
	require.NoError(t, err)
	list, err := noop.Unverified(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	_, err = noop.Reverse(ctx, model.ReverseRequest{Reference: resp.Reference})
	assert.NoError(t, err)
}

func TestPayman_OptionalCapabilitiesAsync(t *testing.T) {
	ctx := context.Background()
	gw := &blockingGateway{Unsupported: adapter.Unsupported{Gateway: "Blocking"}, release: make(chan struct{})}
	p := application.New(gw)

	_, err := p.ReverseAsync(ctx, model.ReverseRequest{Reference: "r"}).Await(ctx)
	assert.ErrorIs(t, err, domain.ErrNotSupported)
	_, err = p.UnverifiedAsync(ctx).Await(ctx)
	assert.ErrorIs(t, err, domain.ErrNotSupported)

	noop, err := application.Open("noop", config.GatewayConfig{}, application.WithPool(dispatch.NewPool(2)))
	require.NoError(t, err)
	resp, err := noop.Payment(ctx, payReq())
	require.NoError(t, err)

	f := noop.UnverifiedAsync(ctx)
	list, err := f.Await(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, resp.Reference, list[0].Reference)

	rev, err := noop.ReverseAsync(ctx, model.ReverseRequest{Reference: resp.Reference}).Await(ctx)
	require.NoError(t, err)
	assert.NotNil(t, rev)
}

func TestResult(t *testing.T) {
	cases := map[string]error{
		"ok":              nil,
		"validation":      domain.NewValidationError("amount", "too small"),
		"gateway":         &domain.GatewayError{Gateway: "zibal", Code: 202, Kind: domain.ErrNotSuccessful},
		"not_supported":   &domain.NotSupportedError{Gateway: "ZarinPal", Op: "inquiry"},
		"unknown_gateway": &domain.UnknownGatewayError{Name: "x"},
		"timeout":         &domain.TransportError{Kind: domain.ErrTimeout},
		"transport":       &domain.TransportError{Kind: domain.ErrHTTPStatus},
		"error":           errors.New("other"),
	}
	for want, err := range cases {
		assert.Equal(t, want, application.Result(err))
	}
}
