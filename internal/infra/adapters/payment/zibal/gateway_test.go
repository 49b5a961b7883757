//go:build !integration

package zibal

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"iranpay/internal/config"
	"iranpay/internal/domain"
	"iranpay/internal/domain/model"
	"iranpay/internal/infra/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stub struct {
	srv   *httptest.Server
	calls int32
	path  string
	last  map[string]any
}

func newStub(t *testing.T, body string) *stub {
	t.Helper()
	s := &stub{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.calls, 1)
		s.path = r.URL.Path
		s.last = map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&s.last)
		w.Write([]byte(body))
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func newGateway(t *testing.T, baseURL string) *Gateway {
	t.Helper()
	g, err := New(config.GatewayConfig{
		Sandbox: true,
		BaseURL: baseURL,
		HTTP:    config.HTTPConfig{Timeout: time.Second},
	})
	require.NoError(t, err)
	return g
}

func validPayment() model.PaymentRequest {
	return model.PaymentRequest{
		Amount:       15000,
		CallbackURL:  "https://shop.example/callback",
		Description:  "order 42",
		OrderID:      "42",
		Mobile:       "09121234567",
		AllowedCards: []string{"6037991234567890"},
	}
}

func TestNew(t *testing.T) {
	g, err := New(config.GatewayConfig{Sandbox: true})
	require.NoError(t, err)
	assert.Equal(t, SandboxMerchant, g.merchant)
	assert.Equal(t, "https://gateway.zibal.ir/v1", g.client.BaseURL())

	_, err = New(config.GatewayConfig{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRegistered(t *testing.T) {
	gw, err := registry.Create("zibal", config.GatewayConfig{MerchantID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, Name, gw.Name())
}

func TestPayment_Success(t *testing.T) {
	s := newStub(t, `{"trackId":3714061657,"result":100,"message":"success"}`)
	g := newGateway(t, s.srv.URL)

	resp, err := g.Payment(context.Background(), validPayment())
	require.NoError(t, err)

	assert.Equal(t, "/request", s.path)
	assert.Equal(t, SandboxMerchant, s.last["merchant"])
	assert.EqualValues(t, 15000, s.last["amount"])
	assert.Equal(t, "https://shop.example/callback", s.last["callbackUrl"])
	assert.Equal(t, "42", s.last["orderId"])
	assert.Equal(t, []any{"6037991234567890"}, s.last["allowedCards"])

	assert.Equal(t, "3714061657", resp.Reference)
	assert.Equal(t, 100, resp.Code)
	assert.Equal(t, "https://gateway.zibal.ir/start/3714061657", resp.RedirectURL)
}

func TestPayment_TomanConvertedToRial(t *testing.T) {
	s := newStub(t, `{"trackId":1,"result":100,"message":"success"}`)
	g := newGateway(t, s.srv.URL)

	req := validPayment()
	req.Currency = model.CurrencyIRT
	_, err := g.Payment(context.Background(), req)
	require.NoError(t, err)
	assert.EqualValues(t, 150000, s.last["amount"])
}

func TestPayment_AmountBounds(t *testing.T) {
	s := newStub(t, `{}`)
	g := newGateway(t, s.srv.URL)

	req := validPayment()
	req.Amount = MaxAmount + 1
	_, err := g.Payment(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrValidation)

	req.Amount = 999
	_, err = g.Payment(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrValidation)

	req.Currency = model.CurrencyIRT
	req.Amount = MaxAmount/10 + 1
	_, err = g.Payment(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrValidation)

	// tomans whose rial value would wrap int64
	req.Amount = math.MaxInt64/10 + 1
	_, err = g.LazyPayment(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Zero(t, atomic.LoadInt32(&s.calls))
}

func TestLazyPayment(t *testing.T) {
	s := newStub(t, `{"trackId":55,"result":100,"message":"success"}`)
	g := newGateway(t, s.srv.URL)

	resp, err := g.LazyPayment(context.Background(), validPayment())
	require.NoError(t, err)
	assert.Equal(t, "/request/lazy", s.path)
	assert.Equal(t, "55", resp.Reference)
}

func TestVerify_Success(t *testing.T) {
	s := newStub(t, `{"paidAt":"2018-03-25T23:43:01.053000","amount":1600,"result":100,"status":1,"refNumber":1234567890,"description":"Hello World!","cardNumber":"62741****44","orderId":"2211","message":"success"}`)
	g := newGateway(t, s.srv.URL)

	resp, err := g.Verify(context.Background(), model.VerifyRequest{Reference: "3714061657"})
	require.NoError(t, err)
	assert.Equal(t, "/verify", s.path)
	assert.EqualValues(t, 3714061657, s.last["trackId"])
	assert.Equal(t, 100, resp.Code)
	assert.Equal(t, "1234567890", resp.RefID)
	assert.EqualValues(t, 1600, resp.Amount)
	assert.Equal(t, StatusPaidVerified, resp.Status)
	assert.Equal(t, "2211", resp.OrderID)
}

func TestVerify_ErrorCodes(t *testing.T) {
	cases := []struct {
		result int
		kind   error
	}{
		{201, domain.ErrAlreadyConfirmed},
		{202, domain.ErrNotSuccessful},
		{203, domain.ErrSession},
		{102, domain.ErrTerminal},
		{113, domain.ErrAmount},
		{114, domain.ErrRemoteValidation},
	}
	for _, tc := range cases {
		s := newStub(t, `{"result":`+itoa(tc.result)+`,"message":"failed"}`)
		g := newGateway(t, s.srv.URL)

		_, err := g.Verify(context.Background(), model.VerifyRequest{Reference: "1"})
		assert.ErrorIs(t, err, domain.ErrGateway, "result %d", tc.result)
		assert.ErrorIs(t, err, tc.kind, "result %d", tc.result)

		var ge *domain.GatewayError
		require.ErrorAs(t, err, &ge)
		assert.Equal(t, tc.result, ge.Code)
		assert.Equal(t, Name, ge.Gateway)
	}
}

func TestVerify_UnknownResult(t *testing.T) {
	s := newStub(t, `{"result":999,"message":""}`)
	g := newGateway(t, s.srv.URL)

	_, err := g.Verify(context.Background(), model.VerifyRequest{Reference: "1"})
	var ge *domain.GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Nil(t, ge.Kind)
	assert.Equal(t, "unknown error", ge.Message)
}

func TestInquiry(t *testing.T) {
	s := newStub(t, `{"message":"success","result":100,"refNumber":null,"paidAt":null,"verifiedAt":null,"status":-1,"amount":1000,"orderId":"abc","description":"","cardNumber":null,"wage":0,"createdAt":"2024-05-05T10:00:00"}`)
	g := newGateway(t, s.srv.URL)

	resp, err := g.Inquiry(context.Background(), model.InquiryRequest{Reference: "77"})
	require.NoError(t, err)
	assert.Equal(t, "/inquiry", s.path)
	assert.Equal(t, StatusPending, resp.Status)
	assert.Empty(t, resp.RefNumber)
	assert.Equal(t, "abc", resp.OrderID)
	assert.Equal(t, "2024-05-05T10:00:00", resp.CreatedAt)
}

func TestCallbackVerify_FailureSkipsNetwork(t *testing.T) {
	s := newStub(t, `{}`)
	g := newGateway(t, s.srv.URL)

	_, err := g.CallbackVerify(context.Background(), model.Callback{Reference: "1", Success: 0, Status: "3"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, atomic.LoadInt32(&s.calls))
}

func TestCallbackVerify_SuccessVerifies(t *testing.T) {
	s := newStub(t, `{"result":100,"message":"success","refNumber":"R-1","status":1}`)
	g := newGateway(t, s.srv.URL)

	resp, err := g.CallbackVerify(context.Background(), model.Callback{Reference: "9", Success: 1, Status: "2"})
	require.NoError(t, err)
	assert.Equal(t, "R-1", resp.RefID)
	assert.Equal(t, "/verify", s.path)
}

func TestVerifyLazyCallback(t *testing.T) {
	s := newStub(t, `{"result":100,"message":"success","status":1,"amount":2000}`)
	g := newGateway(t, s.srv.URL)

	_, err := g.VerifyLazyCallback(context.Background(), model.LazyCallback{Reference: "9", Success: 0})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, atomic.LoadInt32(&s.calls))

	resp, err := g.VerifyLazyCallback(context.Background(), model.LazyCallback{Reference: "9", Success: 1, Status: 2})
	require.NoError(t, err)
	assert.Equal(t, "/callback/verify", s.path)
	assert.EqualValues(t, 2000, resp.Amount)
}

func TestRedirectURL_IsPure(t *testing.T) {
	s := newStub(t, `{}`)
	g := newGateway(t, s.srv.URL)

	u, err := g.RedirectURL("12345")
	require.NoError(t, err)
	assert.Equal(t, "https://gateway.zibal.ir/start/12345", u)

	_, err = g.RedirectURL("not-a-number")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, atomic.LoadInt32(&s.calls))
}

func TestParseCallback(t *testing.T) {
	g := newGateway(t, "http://unused.test")

	cb, err := g.ParseCallback(url.Values{"trackId": {"15"}, "success": {"1"}, "status": {"2"}, "orderId": {"o-1"}})
	require.NoError(t, err)
	assert.Equal(t, model.Callback{Reference: "15", Success: 1, Status: "2", OrderID: "o-1"}, cb)

	_, err = g.ParseCallback(url.Values{"trackId": {"15"}, "success": {"yes"}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = g.ParseCallback(url.Values{"success": {"1"}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestParseLazyCallback(t *testing.T) {
	g := newGateway(t, "http://unused.test")

	cb, err := g.ParseLazyCallback([]byte(`{"success":1,"trackId":3714061657,"orderId":"42","status":2,"cardNumber":"62741****44","hashedCardNumber":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, "3714061657", cb.Reference)
	assert.Equal(t, 1, cb.Success)
	assert.Equal(t, StatusPaidUnverified, cb.Status)
	assert.Equal(t, "42", cb.OrderID)

	_, err = g.ParseLazyCallback([]byte(`not json`))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFlexString(t *testing.T) {
	var v struct {
		A flexString `json:"a"`
		B flexString `json:"b"`
		C flexString `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":12,"b":"x","c":null}`), &v))
	assert.Equal(t, flexString("12"), v.A)
	assert.Equal(t, flexString("x"), v.B)
	assert.Equal(t, flexString(""), v.C)
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
