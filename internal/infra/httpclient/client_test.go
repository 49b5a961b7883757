//go:build !integration

package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"iranpay/internal/config"
	"iranpay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func fastConfig(retries int) config.HTTPConfig {
	return config.HTTPConfig{
		Timeout:    50 * time.Millisecond,
		Retries:    retries,
		RetryDelay: time.Millisecond,
	}
}

func TestRequest_SendsJSONAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/request", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "yes", r.Header.Get("X-Test"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "abc", body["merchant"])

		w.Write([]byte(`{"result":100}`))
	}))
	defer srv.Close()

	cfg := fastConfig(0)
	cfg.Headers = map[string]string{"X-Test": "yes"}
	c := New(srv.URL+"/v1/", cfg)

	raw, err := c.Request(context.Background(), "post", "/request", map[string]any{"merchant": "abc"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":100}`, string(raw))
}

func TestRequest_TimeoutRetriedExactly(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := New(srv.URL, fastConfig(2))
	_, err := c.Request(context.Background(), http.MethodPost, "/slow", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusRequestTimeout, te.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&attempts))
}

func TestRequest_NoRetryWhenRetriesZero(t *testing.T) {
	var attempts int32
	c := New("http://gateway.test", fastConfig(0), WithTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("connection refused")
	})))

	_, err := c.Request(context.Background(), http.MethodPost, "/x", nil)
	assert.ErrorIs(t, err, domain.ErrRequestFailed)
	assert.EqualValues(t, 1, atomic.LoadInt32(&attempts))
}

func TestRequest_RequestFailedIsRetried(t *testing.T) {
	var attempts int32
	c := New("http://gateway.test", fastConfig(1), WithTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return nil, errors.New("connection reset")
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
			Header:     make(http.Header),
			Request:    r,
		}, nil
	})))

	raw, err := c.Request(context.Background(), http.MethodPost, "/x", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.EqualValues(t, 2, atomic.LoadInt32(&attempts))
}

func TestRequest_RequestFailedHasZeroStatus(t *testing.T) {
	c := New("http://gateway.test", fastConfig(0), WithTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dns failure")
	})))

	_, err := c.Request(context.Background(), http.MethodGet, "/x", nil)
	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 0, te.StatusCode)
	assert.Contains(t, err.Error(), "dns failure")
}

func TestRequest_HTTPStatusNotRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	cfg := fastConfig(3)
	cfg.LogBodies = true
	c := New(srv.URL, cfg)
	_, err := c.Request(context.Background(), http.MethodPost, "/x", nil)

	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, domain.ErrHTTPStatus)
	assert.Equal(t, http.StatusInternalServerError, te.StatusCode)
	assert.Len(t, te.Body, 2000, "body on the error must not be truncated")
	assert.EqualValues(t, 1, atomic.LoadInt32(&attempts))
}

func TestRequest_InvalidResponse(t *testing.T) {
	cases := map[string]string{
		"empty":    "",
		"not json": "<html>oops</html>",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, fastConfig(2)).Request(context.Background(), http.MethodPost, "/x", nil)
			assert.ErrorIs(t, err, domain.ErrInvalidResponse)
		})
	}
}

func TestRequest_CancelledContextStopsRetries(t *testing.T) {
	var attempts int32
	ctx, cancel := context.WithCancel(context.Background())
	c := New("http://gateway.test", config.HTTPConfig{Timeout: time.Second, Retries: 5, RetryDelay: time.Second},
		WithTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
			atomic.AddInt32(&attempts, 1)
			cancel()
			return nil, errors.New("connection refused")
		})))

	_, err := c.Request(ctx, http.MethodPost, "/x", nil)
	assert.ErrorIs(t, err, domain.ErrRequestFailed)
	assert.EqualValues(t, 1, atomic.LoadInt32(&attempts))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab... [truncated]", truncate("abcdef", 2))
}

func TestSchedule(t *testing.T) {
	c := New("", config.HTTPConfig{RetryDelay: 10 * time.Millisecond})
	b := c.schedule()
	assert.Equal(t, 10*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 10*time.Millisecond, b.NextBackOff())

	c = New("", config.HTTPConfig{RetryDelay: 10 * time.Millisecond, Backoff: true})
	b = c.schedule()
	first := b.NextBackOff()
	assert.Greater(t, first, time.Duration(0))
	assert.LessOrEqual(t, first, 15*time.Millisecond)
}
