package zarinpal

import (
	"bytes"
	"encoding/json"
)

// envelope is every ZarinPal response. Either side is an object or an empty array.
type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type requestBody struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	Description string            `json:"description"`
	CallbackURL string            `json:"callback_url"`
	Metadata    []metaItem        `json:"metadata,omitempty"`
}

type metaItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type requestData struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Authority string `json:"authority"`
	FeeType   string `json:"fee_type"`
	Fee       int64  `json:"fee"`
}

type verifyBody struct {
	Amount    int64  `json:"amount"`
	Authority string `json:"authority"`
}

type verifyData struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	CardHash string `json:"card_hash"`
	CardPAN  string `json:"card_pan"`
	RefID    int64  `json:"ref_id"`
	FeeType  string `json:"fee_type"`
	Fee      int64  `json:"fee"`
}

type reverseBody struct {
	Authority string `json:"authority"`
}

type reverseData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type unverifiedData struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	Authorities []struct {
		Authority   string `json:"authority"`
		Amount      int64  `json:"amount"`
		CallbackURL string `json:"callback_url"`
		Referer     string `json:"referer"`
		Date        string `json:"date"`
	} `json:"authorities"`
}

func isObject(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && b[0] == '{'
}

// decodeErrors returns the mapped gateway error carried by raw, or nil.
func decodeErrors(raw json.RawMessage, status int) error {
	if !isObject(raw) {
		return nil
	}
	var e apiError
	if err := json.Unmarshal(raw, &e); err != nil || e.Code == 0 {
		return nil
	}
	return mapError(e.Code, e.Message, status)
}
