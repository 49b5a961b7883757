package application

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"iranpay/internal/config"
	"iranpay/internal/domain"
	"iranpay/internal/domain/model"
	"iranpay/internal/domain/ports/adapter"
	"iranpay/internal/infra/dispatch"
	"iranpay/internal/infra/httpclient"
	"iranpay/internal/infra/logging"
	"iranpay/internal/infra/metrics"
	"iranpay/internal/infra/registry"

	"github.com/rs/zerolog"
)

// Payman is the single entry point callers use regardless of the gateway behind it.
// Every operation comes in a blocking form and an ...Async form returning a Future.
type Payman struct {
	gw       adapter.Gateway
	log      *zerolog.Logger
	pool     *dispatch.Pool
	httpOpts []httpclient.Option
}

type Option func(*Payman)

// WithLogger is used by the facade and, through Open, by the gateway's HTTP client.
func WithLogger(l *zerolog.Logger) Option {
	return func(p *Payman) {
		if l != nil {
			p.log = l
			p.httpOpts = append(p.httpOpts, httpclient.WithLogger(l))
		}
	}
}

// WithPool bounds the number of in-flight async operations.
func WithPool(pool *dispatch.Pool) Option {
	return func(p *Payman) { p.pool = pool }
}

// WithHTTPOptions forwards options to the gateway's HTTP client. Only used by Open.
func WithHTTPOptions(opts ...httpclient.Option) Option {
	return func(p *Payman) { p.httpOpts = append(p.httpOpts, opts...) }
}

func New(gw adapter.Gateway, opts ...Option) *Payman {
	p := &Payman{gw: gw, log: logging.Nop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Open builds the gateway registered under name and wraps it.
func Open(name string, cfg config.GatewayConfig, opts ...Option) (*Payman, error) {
	p := New(nil, opts...)
	gw, err := registry.Create(name, cfg, p.httpOpts...)
	if err != nil {
		return nil, err
	}
	p.gw = gw
	return p, nil
}

func (p *Payman) Gateway() adapter.Gateway { return p.gw }

func (p *Payman) Name() string { return p.gw.Name() }

func (p *Payman) Payment(ctx context.Context, req model.PaymentRequest) (*model.PaymentResponse, error) {
	return dispatch.Run(ctx, p.payment(req))
}

func (p *Payman) PaymentAsync(ctx context.Context, req model.PaymentRequest) *dispatch.Future[*model.PaymentResponse] {
	return dispatch.Submit(p.pool, ctx, p.payment(req))
}

func (p *Payman) payment(req model.PaymentRequest) dispatch.Op[*model.PaymentResponse] {
	return observe(p, "payment", "", func(ctx context.Context) (*model.PaymentResponse, error) {
		return p.gw.Payment(ctx, req)
	})
}

func (p *Payman) LazyPayment(ctx context.Context, req model.PaymentRequest) (*model.PaymentResponse, error) {
	return dispatch.Run(ctx, p.lazyPayment(req))
}

func (p *Payman) LazyPaymentAsync(ctx context.Context, req model.PaymentRequest) *dispatch.Future[*model.PaymentResponse] {
	return dispatch.Submit(p.pool, ctx, p.lazyPayment(req))
}

func (p *Payman) lazyPayment(req model.PaymentRequest) dispatch.Op[*model.PaymentResponse] {
	return observe(p, "lazy_payment", "", func(ctx context.Context) (*model.PaymentResponse, error) {
		return p.gw.LazyPayment(ctx, req)
	})
}

// RedirectURL is pure and has no async form.
func (p *Payman) RedirectURL(reference string) (string, error) {
	return p.gw.RedirectURL(reference)
}

func (p *Payman) Verify(ctx context.Context, req model.VerifyRequest) (*model.VerifyResponse, error) {
	return dispatch.Run(ctx, p.verify(req))
}

func (p *Payman) VerifyAsync(ctx context.Context, req model.VerifyRequest) *dispatch.Future[*model.VerifyResponse] {
	return dispatch.Submit(p.pool, ctx, p.verify(req))
}

func (p *Payman) verify(req model.VerifyRequest) dispatch.Op[*model.VerifyResponse] {
	return observe(p, "verify", req.Reference, func(ctx context.Context) (*model.VerifyResponse, error) {
		return p.gw.Verify(ctx, req)
	})
}

func (p *Payman) Inquiry(ctx context.Context, req model.InquiryRequest) (*model.InquiryResponse, error) {
	return dispatch.Run(ctx, p.inquiry(req))
}

func (p *Payman) InquiryAsync(ctx context.Context, req model.InquiryRequest) *dispatch.Future[*model.InquiryResponse] {
	return dispatch.Submit(p.pool, ctx, p.inquiry(req))
}

func (p *Payman) inquiry(req model.InquiryRequest) dispatch.Op[*model.InquiryResponse] {
	return observe(p, "inquiry", req.Reference, func(ctx context.Context) (*model.InquiryResponse, error) {
		return p.gw.Inquiry(ctx, req)
	})
}

func (p *Payman) CallbackVerify(ctx context.Context, cb model.Callback) (*model.VerifyResponse, error) {
	return dispatch.Run(ctx, p.callbackVerify(cb))
}

func (p *Payman) CallbackVerifyAsync(ctx context.Context, cb model.Callback) *dispatch.Future[*model.VerifyResponse] {
	return dispatch.Submit(p.pool, ctx, p.callbackVerify(cb))
}

func (p *Payman) callbackVerify(cb model.Callback) dispatch.Op[*model.VerifyResponse] {
	return observe(p, "callback_verify", cb.Reference, func(ctx context.Context) (*model.VerifyResponse, error) {
		return p.gw.CallbackVerify(ctx, cb)
	})
}

func (p *Payman) VerifyLazyCallback(ctx context.Context, cb model.LazyCallback) (*model.VerifyResponse, error) {
	return dispatch.Run(ctx, p.verifyLazyCallback(cb))
}

func (p *Payman) VerifyLazyCallbackAsync(ctx context.Context, cb model.LazyCallback) *dispatch.Future[*model.VerifyResponse] {
	return dispatch.Submit(p.pool, ctx, p.verifyLazyCallback(cb))
}

func (p *Payman) verifyLazyCallback(cb model.LazyCallback) dispatch.Op[*model.VerifyResponse] {
	return observe(p, "verify_lazy_callback", cb.Reference, func(ctx context.Context) (*model.VerifyResponse, error) {
		return p.gw.VerifyLazyCallback(ctx, cb)
	})
}

// Reverse forwards to gateways that can reverse a paid session.
func (p *Payman) Reverse(ctx context.Context, req model.ReverseRequest) (*model.ReverseResponse, error) {
	return dispatch.Run(ctx, p.reverse(req))
}

func (p *Payman) ReverseAsync(ctx context.Context, req model.ReverseRequest) *dispatch.Future[*model.ReverseResponse] {
	return dispatch.Submit(p.pool, ctx, p.reverse(req))
}

func (p *Payman) reverse(req model.ReverseRequest) dispatch.Op[*model.ReverseResponse] {
	r, ok := p.gw.(adapter.Reverser)
	if !ok {
		return unsupported[*model.ReverseResponse](p, "reverse")
	}
	return observe(p, "reverse", req.Reference, func(ctx context.Context) (*model.ReverseResponse, error) {
		return r.Reverse(ctx, req)
	})
}

// Unverified forwards to gateways that can list unverified sessions.
func (p *Payman) Unverified(ctx context.Context) ([]model.UnverifiedPayment, error) {
	return dispatch.Run(ctx, p.unverified())
}

func (p *Payman) UnverifiedAsync(ctx context.Context) *dispatch.Future[[]model.UnverifiedPayment] {
	return dispatch.Submit(p.pool, ctx, p.unverified())
}

func (p *Payman) unverified() dispatch.Op[[]model.UnverifiedPayment] {
	l, ok := p.gw.(adapter.UnverifiedLister)
	if !ok {
		return unsupported[[]model.UnverifiedPayment](p, "unverified")
	}
	return observe[[]model.UnverifiedPayment](p, "unverified", "", l.Unverified)
}

func unsupported[T any](p *Payman, op string) dispatch.Op[T] {
	return func(context.Context) (T, error) {
		var zero T
		return zero, &domain.NotSupportedError{Gateway: p.gw.Name(), Op: op}
	}
}

func (p *Payman) ParseCallback(q url.Values) (model.Callback, error) {
	cp, ok := p.gw.(adapter.CallbackParser)
	if !ok {
		return model.Callback{}, &domain.NotSupportedError{Gateway: p.gw.Name(), Op: "parse_callback"}
	}
	return cp.ParseCallback(q)
}

func (p *Payman) ParseLazyCallback(body []byte) (model.LazyCallback, error) {
	lp, ok := p.gw.(adapter.LazyCallbackParser)
	if !ok {
		return model.LazyCallback{}, &domain.NotSupportedError{Gateway: p.gw.Name(), Op: "parse_lazy_callback"}
	}
	return lp.ParseLazyCallback(body)
}

// observe adds log context, tracing and the operations counter around fn.
func observe[T any](p *Payman, op, reference string, fn dispatch.Op[T]) dispatch.Op[T] {
	return func(ctx context.Context) (T, error) {
		name := p.gw.Name()
		ctx = logging.WithGateway(ctx, name)
		if reference != "" {
			ctx = logging.WithReference(ctx, reference)
		}
		log := logging.With(ctx, p.log)
		defer logging.TraceDuration(log, fmt.Sprintf("Payman.%s", op))()

		v, err := fn(ctx)
		result := Result(err)
		metrics.IncGatewayOperation(name, op, result)
		if err != nil {
			log.Warn().Err(err).Str("op", op).Str("result", result).Msg("gateway operation failed")
		}
		return v, err
	}
}

// Result is the bounded label describing err in metrics and logs.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrGateway):
		return "gateway"
	case errors.Is(err, domain.ErrNotSupported):
		return "not_supported"
	case errors.Is(err, domain.ErrUnknownGateway):
		return "unknown_gateway"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrHTTPStatus), errors.Is(err, domain.ErrInvalidResponse), errors.Is(err, domain.ErrRequestFailed):
		return "transport"
	default:
		return "error"
	}
}
