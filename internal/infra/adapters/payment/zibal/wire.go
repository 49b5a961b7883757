package zibal

import (
	"bytes"
	"encoding/json"
	"strconv"
)

type requestBody struct {
	Merchant            string   `json:"merchant"`
	Amount              int64    `json:"amount"`
	CallbackURL         string   `json:"callbackUrl"`
	Description         string   `json:"description,omitempty"`
	OrderID             string   `json:"orderId,omitempty"`
	Mobile              string   `json:"mobile,omitempty"`
	AllowedCards        []string `json:"allowedCards,omitempty"`
	LedgerID            string   `json:"ledgerId,omitempty"`
	NationalCode        string   `json:"nationalCode,omitempty"`
	CheckMobileWithCard bool     `json:"checkMobileWithCard,omitempty"`
}

type trackBody struct {
	Merchant string `json:"merchant"`
	TrackID  int64  `json:"trackId"`
}

// result is embedded in every response.
type result struct {
	Result  int    `json:"result"`
	Message string `json:"message"`
}

type requestResp struct {
	result
	TrackID int64 `json:"trackId"`
}

type verifyResp struct {
	result
	Amount      int64      `json:"amount"`
	Status      int        `json:"status"`
	PaidAt      string     `json:"paidAt"`
	CardNumber  string     `json:"cardNumber"`
	RefNumber   flexString `json:"refNumber"`
	OrderID     string     `json:"orderId"`
	Description string     `json:"description"`
	TrackID     int64      `json:"trackId"`
}

type inquiryResp struct {
	result
	RefNumber   flexString `json:"refNumber"`
	PaidAt      string     `json:"paidAt"`
	VerifiedAt  string     `json:"verifiedAt"`
	CreatedAt   string     `json:"createdAt"`
	Status      int        `json:"status"`
	Amount      int64      `json:"amount"`
	OrderID     string     `json:"orderId"`
	Description string     `json:"description"`
	CardNumber  string     `json:"cardNumber"`
	Wage        int64      `json:"wage"`
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func parseTrackID(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil && n > 0
}
