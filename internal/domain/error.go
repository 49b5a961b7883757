package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is; the typed carriers below expose details via errors.As.
var (
	ErrValidation      = errors.New("validation error")
	ErrTimeout         = errors.New("request timed out")
	ErrHTTPStatus      = errors.New("unexpected http status")
	ErrInvalidResponse = errors.New("invalid response body")
	ErrRequestFailed   = errors.New("request failed")
	ErrGateway         = errors.New("gateway error")
	ErrNotSupported    = errors.New("operation not supported")
	ErrUnknownGateway  = errors.New("gateway not supported")
	ErrLockHeld        = errors.New("operation already in progress")
)

// Gateway error kinds shared by every vendor table.
var (
	ErrRemoteValidation = errors.New("gateway rejected request parameters")
	ErrTerminal         = errors.New("merchant terminal error")
	ErrRateLimited      = errors.New("too many attempts")
	ErrWage             = errors.New("revenue share error")
	ErrAmount           = errors.New("amount error")
	ErrSession          = errors.New("payment session error")
	ErrNotSuccessful    = errors.New("payment not successful")
	ErrAlreadyConfirmed = errors.New("payment already confirmed")
	ErrGatewayInternal  = errors.New("gateway internal error")
	ErrReverse          = errors.New("reverse error")
)

// ValidationError reports malformed caller input. It is raised before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransportError covers every failure of the HTTP exchange itself.
// Kind is one of ErrTimeout, ErrHTTPStatus, ErrInvalidResponse or ErrRequestFailed.
type TransportError struct {
	Kind       error
	Method     string
	URL        string
	StatusCode int    // 408 for timeouts, 0 for request failures
	Body       string // raw, untruncated response body when one was read
	Err        error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Transient reports whether the failure may succeed on a new attempt.
func (e *TransportError) Transient() bool {
	return errors.Is(e.Kind, ErrTimeout) || errors.Is(e.Kind, ErrRequestFailed)
}

// GatewayError is a business failure signalled inside a well-formed gateway response.
type GatewayError struct {
	Gateway    string
	Code       int
	Message    string
	Kind       error // nil for codes missing from the gateway's table
	HTTPStatus int   // non-zero when the failure arrived with a non-2xx status
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Gateway, e.Code, e.Message)
}

func (e *GatewayError) Unwrap() []error {
	if e.Kind != nil {
		return []error{ErrGateway, e.Kind}
	}
	return []error{ErrGateway}
}

// NotSupportedError is returned by operations a gateway does not implement.
type NotSupportedError struct {
	Gateway string
	Op      string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("%s does not support `%s()`", e.Gateway, e.Op)
}

func (e *NotSupportedError) Unwrap() error { return ErrNotSupported }

// UnknownGatewayError is returned when the registry has no constructor for Name.
type UnknownGatewayError struct {
	Name string
}

func (e *UnknownGatewayError) Error() string {
	return fmt.Sprintf("gateway %q not supported", e.Name)
}

func (e *UnknownGatewayError) Unwrap() error { return ErrUnknownGateway }

// ErrorRecord describes one vendor result code.
type ErrorRecord struct {
	Kind    error
	Message string
}

// ErrorTable maps vendor result codes to kinds. Tables are built once and only read.
type ErrorTable map[int]ErrorRecord

// Map turns a failing vendor code into a *GatewayError.
func (t ErrorTable) Map(gateway string, code int, message string) error {
	rec, ok := t[code]
	if !ok {
		if message == "" {
			message = "unknown error"
		}
		return &GatewayError{Gateway: gateway, Code: code, Message: message}
	}
	if message == "" {
		message = rec.Message
	}
	return &GatewayError{Gateway: gateway, Code: code, Message: message, Kind: rec.Kind}
}
