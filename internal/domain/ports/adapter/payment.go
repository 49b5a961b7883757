package adapter

import (
	"context"
	"net/url"

	"iranpay/internal/domain"
	"iranpay/internal/domain/model"
)

// Gateway is the hex port every payment provider adapter satisfies.
// Operations a provider lacks return *domain.NotSupportedError.
type Gateway interface {
	Name() string

	// Payment opens a payment session and returns the vendor reference.
	Payment(ctx context.Context, req model.PaymentRequest) (*model.PaymentResponse, error)
	// RedirectURL builds the page the customer is sent to. Pure: no I/O.
	RedirectURL(reference string) (string, error)
	// Verify finalizes a transaction.
	Verify(ctx context.Context, req model.VerifyRequest) (*model.VerifyResponse, error)
	// Inquiry reads the transaction state without changing it.
	Inquiry(ctx context.Context, req model.InquiryRequest) (*model.InquiryResponse, error)
	// CallbackVerify checks the callback's success predicate, then verifies.
	// A failed predicate yields *domain.ValidationError and no network call.
	CallbackVerify(ctx context.Context, cb model.Callback) (*model.VerifyResponse, error)

	LazyPayment(ctx context.Context, req model.PaymentRequest) (*model.PaymentResponse, error)
	VerifyLazyCallback(ctx context.Context, cb model.LazyCallback) (*model.VerifyResponse, error)
}

// Reverser cancels a paid but unsettled session.
type Reverser interface {
	Reverse(ctx context.Context, req model.ReverseRequest) (*model.ReverseResponse, error)
}

// UnverifiedLister lists paid sessions that were never verified.
type UnverifiedLister interface {
	Unverified(ctx context.Context) ([]model.UnverifiedPayment, error)
}

// CallbackParser extracts a redirect callback from its query string.
type CallbackParser interface {
	ParseCallback(q url.Values) (model.Callback, error)
}

// LazyCallbackParser decodes a server-to-server callback body.
type LazyCallbackParser interface {
	ParseLazyCallback(body []byte) (model.LazyCallback, error)
}

// Unsupported is embedded by adapters; its methods fail with *domain.NotSupportedError.
type Unsupported struct {
	Gateway string
}

func (u Unsupported) notSupported(op string) error {
	return &domain.NotSupportedError{Gateway: u.Gateway, Op: op}
}

func (u Unsupported) Payment(context.Context, model.PaymentRequest) (*model.PaymentResponse, error) {
	return nil, u.notSupported("payment")
}

func (u Unsupported) RedirectURL(string) (string, error) {
	return "", u.notSupported("redirect_url")
}

func (u Unsupported) Verify(context.Context, model.VerifyRequest) (*model.VerifyResponse, error) {
	return nil, u.notSupported("verify")
}

func (u Unsupported) Inquiry(context.Context, model.InquiryRequest) (*model.InquiryResponse, error) {
	return nil, u.notSupported("inquiry")
}

func (u Unsupported) CallbackVerify(context.Context, model.Callback) (*model.VerifyResponse, error) {
	return nil, u.notSupported("callback_verify")
}

func (u Unsupported) LazyPayment(context.Context, model.PaymentRequest) (*model.PaymentResponse, error) {
	return nil, u.notSupported("lazy_payment")
}

func (u Unsupported) VerifyLazyCallback(context.Context, model.LazyCallback) (*model.VerifyResponse, error) {
	return nil, u.notSupported("verify_lazy_callback")
}
