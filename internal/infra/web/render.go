package web

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"iranpay/internal/application"
	"iranpay/internal/domain"
)

type errorBody struct {
	Error  string `json:"error"`
	Result string `json:"result"`
	Code   int    `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the SDK error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownGateway):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGateway):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotSupported):
		return http.StatusNotImplemented
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrHTTPStatus), errors.Is(err, domain.ErrInvalidResponse), errors.Is(err, domain.ErrRequestFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// reason is the bounded metric label for err.
func reason(err error) string {
	if errors.Is(err, domain.ErrLockHeld) {
		return "locked"
	}
	return application.Result(err)
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error(), Result: reason(err)}
	var ge *domain.GatewayError
	if errors.As(err, &ge) {
		body.Code = ge.Code
	}
	writeJSON(w, statusFor(err), body)
}

// payerMessage is what the customer's browser sees. Details stay in the logs.
func payerMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "The payment was cancelled or the gateway sent an incomplete result."
	case errors.Is(err, domain.ErrLockHeld):
		return "This payment is already being confirmed. Refresh the page in a moment."
	case errors.Is(err, domain.ErrGateway):
		return "The payment gateway did not confirm this payment."
	default:
		return "We could not confirm the payment right now. If your account was charged, contact the merchant."
	}
}

func wantsJSON(r *http.Request) bool {
	return r.URL.Query().Get("format") == "json" || strings.Contains(r.Header.Get("Accept"), "application/json")
}

var page = template.Must(template.New("cb").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>Payment {{if .OK}}Success{{else}}Result{{end}}</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.ok{color:#057a55} .fail{color:#b00020}
.small{font-size:12px;color:#666}
</style>
</head>
<body>
<div class="card">
  <h2 class="{{if .OK}}ok{{else}}fail{{end}}">{{if .OK}}Payment Successful{{else}}Payment Not Completed{{end}}</h2>
  <p>{{.Msg}}</p>
  {{if .RefID}}<div class="small">Reference: {{.RefID}}</div>{{end}}
</div>
</body>
</html>`))

func renderHTML(w http.ResponseWriter, code int, ok bool, msg, refID string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_ = page.Execute(w, struct {
		OK    bool
		Msg   string
		RefID string
	}{
		OK:    ok,
		Msg:   msg,
		RefID: refID,
	})
}
