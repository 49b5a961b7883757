package web

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"iranpay/internal/domain"
	"iranpay/internal/domain/model"
	"iranpay/internal/infra/logging"
	"iranpay/internal/infra/metrics"

	"github.com/go-chi/chi/v5"
)

const maxLazyBody = 64 << 10

func callbackKind(r *http.Request) string {
	if strings.HasSuffix(r.URL.Path, "/lazy") {
		return "lazy"
	}
	return "redirect"
}

// handleCallback serves the customer's browser coming back from the payment page.
// Responds with HTML unless the caller asks for JSON.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := strings.ToLower(chi.URLParam(r, "gateway"))
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.VerifyTimeout)
	defer cancel()
	ctx = logging.WithGateway(ctx, name)

	var (
		res    *model.VerifyResponse
		cached bool
	)
	err := func() error {
		p, err := s.gateway(name)
		if err != nil {
			return err
		}
		// POST callbacks carry the fields as a form; ParseForm merges them with the query
		if err := r.ParseForm(); err != nil {
			return domain.NewValidationError("form", err.Error())
		}
		cb, err := p.ParseCallback(r.Form)
		if err != nil {
			return err
		}
		ctx = logging.WithReference(ctx, cb.Reference)
		res, cached, err = s.verifyOnce(ctx, p.Name(), cb.Reference, func(ctx context.Context) (*model.VerifyResponse, error) {
			return p.CallbackVerify(ctx, cb)
		})
		return err
	}()

	s.observeCallback(ctx, name, "redirect", start, err)
	if cached {
		w.Header().Set("X-Payman-Cache", "hit")
	}

	if wantsJSON(r) {
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}
	if err != nil {
		renderHTML(w, statusFor(err), false, payerMessage(err), "")
		return
	}
	renderHTML(w, http.StatusOK, true, "payment verified.", res.RefID)
}

// handleLazyCallback serves server-to-server notifications of the lazy flow.
func (s *Server) handleLazyCallback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := strings.ToLower(chi.URLParam(r, "gateway"))
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.VerifyTimeout)
	defer cancel()
	ctx = logging.WithGateway(ctx, name)

	var (
		res    *model.VerifyResponse
		cached bool
	)
	err := func() error {
		p, err := s.gateway(name)
		if err != nil {
			return err
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxLazyBody))
		if err != nil {
			return domain.NewValidationError("body", err.Error())
		}
		cb, err := p.ParseLazyCallback(body)
		if err != nil {
			return err
		}
		ctx = logging.WithReference(ctx, cb.Reference)
		res, cached, err = s.verifyOnce(ctx, p.Name(), cb.Reference, func(ctx context.Context) (*model.VerifyResponse, error) {
			return p.VerifyLazyCallback(ctx, cb)
		})
		return err
	}()

	s.observeCallback(ctx, name, "lazy", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	if cached {
		w.Header().Set("X-Payman-Cache", "hit")
	}
	writeJSON(w, http.StatusOK, res)
}

// label keeps arbitrary path segments out of metric labels.
func (s *Server) label(gateway string) string {
	if _, ok := s.gateways[gateway]; ok {
		return gateway
	}
	return "unknown"
}

func (s *Server) observeCallback(ctx context.Context, gateway, kind string, start time.Time, err error) {
	result, why := "ok", ""
	if err != nil {
		result, why = "fail", reason(err)
	}
	metrics.CallbackRequests.WithLabelValues(s.label(gateway), kind, result, why).Inc()
	metrics.CallbackDuration.WithLabelValues(kind, result).Observe(time.Since(start).Seconds())

	l := logging.With(ctx, s.log)
	if err != nil {
		l.Warn().Err(err).Str("kind", kind).Str("reason", why).Msg("callback verification failed")
		return
	}
	l.Info().Str("kind", kind).Dur("duration", time.Since(start)).Msg("callback verified")
}
