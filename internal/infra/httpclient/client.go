// File: internal/infra/httpclient/client.go
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"iranpay/internal/config"
	"iranpay/internal/domain"
	"iranpay/internal/infra/logging"
	"iranpay/internal/infra/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Client is the JSON transport a gateway adapter owns. It is safe for concurrent use;
// its only mutable state lives in the underlying http.Transport and rate limiter.
type Client struct {
	baseURL string
	cfg     config.HTTPConfig
	name    string
	http    *http.Client
	limiter *rate.Limiter
	log     *zerolog.Logger
}

type Option func(*Client)

func WithLogger(l *zerolog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithName sets the gateway label used in logs and metrics.
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.http.Transport = rt }
}

func New(baseURL string, cfg config.HTTPConfig, opts ...Option) *Client {
	cfg = cfg.WithDefaults()
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		cfg:     cfg,
		name:    "http",
		http:    &http.Client{},
		log:     logging.Nop(),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// Request sends body as JSON to baseURL+path and returns the raw 2xx JSON response.
// Timeouts and request failures are retried cfg.Retries times; every other failure
// is returned at once. Errors are always *domain.TransportError.
func (c *Client) Request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	method = strings.ToUpper(method)
	url := c.baseURL + path

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, &domain.TransportError{Kind: domain.ErrRequestFailed, Method: method, URL: url, Err: err}
		}
		payload = b
	}

	log := logging.With(ctx, c.log).With().
		Str("request_id", ulid.Make().String()).
		Str("gateway", c.name).
		Str("method", method).
		Str("url", url).
		Logger()

	delays := c.schedule()
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			d := delays.NextBackOff()
			metrics.IncGatewayRetry(c.name)
			log.Warn().Int("attempt", attempt).Int("retries", c.cfg.Retries).Dur("delay", d).Err(lastErr).Msg("retrying http request")
			if err := sleep(ctx, d); err != nil {
				return nil, lastErr
			}
		}

		raw, err := c.do(ctx, &log, method, url, payload)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		var te *domain.TransportError
		if !errors.As(err, &te) || !te.Transient() || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, log *zerolog.Logger, method, url string, payload []byte) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.fail(log, domain.ErrRequestFailed, method, url, 0, "", err, 0)
		}
	}

	actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(actx, method, url, rdr)
	if err != nil {
		return nil, c.fail(log, domain.ErrRequestFailed, method, url, 0, "", err, 0)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	log.Info().Msg("http request")
	if c.cfg.LogBodies && payload != nil {
		log.Debug().Str("body", truncate(string(payload), c.cfg.MaxBodyLog)).Msg("request body")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(actx, err) {
			return nil, c.fail(log, domain.ErrTimeout, method, url, http.StatusRequestTimeout, "", err, time.Since(start))
		}
		return nil, c.fail(log, domain.ErrRequestFailed, method, url, 0, "", err, time.Since(start))
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		if isTimeout(actx, err) {
			return nil, c.fail(log, domain.ErrTimeout, method, url, http.StatusRequestTimeout, "", err, elapsed)
		}
		return nil, c.fail(log, domain.ErrRequestFailed, method, url, 0, "", err, elapsed)
	}

	if elapsed > c.cfg.SlowThreshold {
		log.Warn().Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("slow http request")
	} else {
		log.Info().Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("http request completed")
	}
	if c.cfg.LogBodies {
		log.Debug().Str("body", truncate(string(b), c.cfg.MaxBodyLog)).Msg("response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(log, domain.ErrHTTPStatus, method, url, resp.StatusCode, string(b), nil, elapsed)
	}
	if len(bytes.TrimSpace(b)) == 0 || !json.Valid(b) {
		return nil, c.fail(log, domain.ErrInvalidResponse, method, url, resp.StatusCode, string(b), nil, elapsed)
	}

	metrics.ObserveGatewayHTTP(c.name, "ok", elapsed)
	return json.RawMessage(b), nil
}

func (c *Client) fail(log *zerolog.Logger, kind error, method, url string, status int, body string, cause error, elapsed time.Duration) error {
	metrics.ObserveGatewayHTTP(c.name, outcome(kind), elapsed)
	ev := log.Error().Str("outcome", outcome(kind)).Err(cause)
	if status != 0 {
		ev = ev.Int("status", status)
	}
	if body != "" {
		ev = ev.Str("body", truncate(body, c.cfg.MaxBodyLog))
	}
	ev.Msg("http request failed")
	return &domain.TransportError{Kind: kind, Method: method, URL: url, StatusCode: status, Body: body, Err: cause}
}

// schedule yields the delay before each retry.
func (c *Client) schedule() backoff.BackOff {
	if !c.cfg.Backoff {
		return backoff.NewConstantBackOff(c.cfg.RetryDelay)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func outcome(kind error) string {
	switch {
	case errors.Is(kind, domain.ErrTimeout):
		return "timeout"
	case errors.Is(kind, domain.ErrHTTPStatus):
		return "http_status"
	case errors.Is(kind, domain.ErrInvalidResponse):
		return "invalid_response"
	default:
		return "request_failed"
	}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "... [truncated]"
}
