package model

import (
	"net/url"
	"regexp"
	"strconv"

	"iranpay/internal/domain"
)

type Currency string

const (
	CurrencyIRR Currency = "IRR" // rials
	CurrencyIRT Currency = "IRT" // tomans
)

// MinAmount is the smallest amount (IRR) any supported gateway accepts.
const MinAmount = 1000

var (
	mobileRe = regexp.MustCompile(`^09\d{9}$`)
	digitsRe = regexp.MustCompile(`^\d+$`)
)

// PaymentRequest starts a payment session. Adapters translate it to their wire format.
type PaymentRequest struct {
	Amount              int64
	Currency            Currency
	CallbackURL         string
	Description         string
	OrderID             string
	Mobile              string
	Email               string
	NationalCode        string
	LedgerID            string
	AllowedCards        []string
	CheckMobileWithCard bool
	Metadata            map[string]string
}

func (r PaymentRequest) Validate() error {
	if r.Amount < MinAmount {
		return domain.NewValidationError("amount", "must be at least "+strconv.Itoa(MinAmount))
	}
	switch r.Currency {
	case "", CurrencyIRR, CurrencyIRT:
	default:
		return domain.NewValidationError("currency", "must be IRR or IRT")
	}
	u, err := url.Parse(r.CallbackURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.NewValidationError("callback_url", "must be an absolute http(s) url")
	}
	if r.Mobile != "" && !mobileRe.MatchString(r.Mobile) {
		return domain.NewValidationError("mobile", "must match 09XXXXXXXXX")
	}
	if r.NationalCode != "" && (len(r.NationalCode) != 10 || !digitsRe.MatchString(r.NationalCode)) {
		return domain.NewValidationError("national_code", "must be 10 digits")
	}
	for _, c := range r.AllowedCards {
		if len(c) != 16 || !digitsRe.MatchString(c) {
			return domain.NewValidationError("allowed_cards", "card numbers must be 16 digits")
		}
	}
	return nil
}

type PaymentResponse struct {
	Gateway     string `json:"gateway"`
	Reference   string `json:"reference"` // authority or track id
	Code        int    `json:"code"`
	Message     string `json:"message"`
	Fee         int64  `json:"fee,omitempty"`
	FeeType     string `json:"fee_type,omitempty"`
	RedirectURL string `json:"redirect_url"`
}

// VerifyRequest finalizes a transaction. Amount is only read by gateways that need it.
type VerifyRequest struct {
	Reference string
	Amount    int64
}

func (r VerifyRequest) Validate() error {
	if r.Reference == "" {
		return domain.NewValidationError("reference", "is required")
	}
	if r.Amount < 0 {
		return domain.NewValidationError("amount", "must not be negative")
	}
	return nil
}

type VerifyResponse struct {
	Gateway     string `json:"gateway"`
	Reference   string `json:"reference"`
	Code        int    `json:"code"`
	Message     string `json:"message"`
	RefID       string `json:"ref_id,omitempty"`
	CardPAN     string `json:"card_pan,omitempty"`
	CardHash    string `json:"card_hash,omitempty"`
	Fee         int64  `json:"fee,omitempty"`
	FeeType     string `json:"fee_type,omitempty"`
	Amount      int64  `json:"amount,omitempty"`
	Status      int    `json:"status,omitempty"`
	PaidAt      string `json:"paid_at,omitempty"`
	OrderID     string `json:"order_id,omitempty"`
	Description string `json:"description,omitempty"`
}

type InquiryRequest struct {
	Reference string
}

func (r InquiryRequest) Validate() error {
	if r.Reference == "" {
		return domain.NewValidationError("reference", "is required")
	}
	return nil
}

type InquiryResponse struct {
	Gateway     string `json:"gateway"`
	Reference   string `json:"reference"`
	Code        int    `json:"code"`
	Message     string `json:"message"`
	Status      int    `json:"status"`
	Amount      int64  `json:"amount,omitempty"`
	RefNumber   string `json:"ref_number,omitempty"`
	PaidAt      string `json:"paid_at,omitempty"`
	VerifiedAt  string `json:"verified_at,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	OrderID     string `json:"order_id,omitempty"`
	Description string `json:"description,omitempty"`
	CardNumber  string `json:"card_number,omitempty"`
	Wage        int64  `json:"wage,omitempty"`
}

// Callback is the redirect payload a gateway sends back with the customer.
// Each gateway owns the predicate deciding whether it reports success.
type Callback struct {
	Reference string
	Status    string // ZarinPal: OK | NOK, Zibal: numeric payment status
	Success   int    // Zibal: 1 = success, 0 = failure
	OrderID   string
	Amount    int64 // original amount, for gateways whose verify needs it
}

// LazyCallback is the server-to-server notification of a deferred settlement flow.
type LazyCallback struct {
	Reference        string `json:"trackId"`
	Success          int    `json:"success"`
	Status           int    `json:"status"`
	OrderID          string `json:"orderId,omitempty"`
	CardNumber       string `json:"cardNumber,omitempty"`
	HashedCardNumber string `json:"hashedCardNumber,omitempty"`
}

type ReverseRequest struct {
	Reference string
}

type ReverseResponse struct {
	Gateway string `json:"gateway"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// UnverifiedPayment is a paid session the merchant has not verified yet.
type UnverifiedPayment struct {
	Reference   string `json:"reference"`
	Amount      int64  `json:"amount"`
	CallbackURL string `json:"callback_url"`
	Referer     string `json:"referer"`
	Date        string `json:"date"`
}
