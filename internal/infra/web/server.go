package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"iranpay/internal/application"
	"iranpay/internal/config"
	"iranpay/internal/domain"
	"iranpay/internal/domain/model"
	"iranpay/internal/infra/events"
	"iranpay/internal/infra/logging"
	"iranpay/internal/infra/metrics"
	rdb "iranpay/internal/infra/redis"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Locker serializes verification of one reference across replicas.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// ResultCache answers replayed callbacks for already verified references.
type ResultCache interface {
	Lookup(ctx context.Context, gateway, reference string) (*model.VerifyResponse, error)
	Store(ctx context.Context, res *model.VerifyResponse) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Server exposes gateway callbacks and, when a secret is configured, the operator API.
type Server struct {
	cfg      config.ServerConfig
	gateways map[string]*application.Payman
	locker   Locker
	cache    ResultCache
	limiter  RateLimiter
	events   events.Publisher
	auth     *AuthManager
	log      *zerolog.Logger
	srv      *http.Server
}

type Option func(*Server)

func WithLogger(l *zerolog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

func WithLocker(l Locker) Option           { return func(s *Server) { s.locker = l } }
func WithResultCache(c ResultCache) Option { return func(s *Server) { s.cache = c } }
func WithRateLimiter(r RateLimiter) Option { return func(s *Server) { s.limiter = r } }

func WithPublisher(p events.Publisher) Option {
	return func(s *Server) {
		if p != nil {
			s.events = p
		}
	}
}

// NewServer keys gateways by lowercased name.
func NewServer(cfg config.ServerConfig, gateways map[string]*application.Payman, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		gateways: make(map[string]*application.Payman, len(gateways)),
		events:   events.Nop{},
		log:      logging.Nop(),
	}
	for name, p := range gateways {
		s.gateways[strings.ToLower(name)] = p
	}
	if cfg.APISecret != "" {
		s.auth = NewAuthManager(cfg.APISecret, cfg.TokenTTL)
	}
	for _, o := range opts {
		o(s)
	}
	if s.cfg.VerifyTimeout <= 0 {
		s.cfg.VerifyTimeout = 30 * time.Second
	}
	if s.cfg.LockTTL <= 0 {
		s.cfg.LockTTL = time.Minute
	}
	return s
}

// Auth is nil when the operator API is disabled.
func (s *Server) Auth() *AuthManager { return s.auth }

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, TraceID, RequestLog(s.log), Recover(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.With(s.rateLimit).Get("/callback/{gateway}", s.handleCallback)
	r.With(s.rateLimit).Post("/callback/{gateway}", s.handleCallback)
	r.With(s.rateLimit).Post("/callback/{gateway}/lazy", s.handleLazyCallback)

	if s.auth != nil {
		r.Route("/api/v1", func(r chi.Router) {
			// rs/cors treats an empty origin list as "*", so only mount it when origins are set
			if len(s.cfg.CORSOrigins) > 0 {
				r.Use(cors.New(cors.Options{
					AllowedOrigins: s.cfg.CORSOrigins,
					AllowedMethods: []string{http.MethodGet, http.MethodPost},
					AllowedHeaders: []string{"Authorization", "Content-Type"},
				}).Handler)
			}
			r.Use(s.requireOperator)

			r.Get("/gateways", s.listGateways)
			r.Route("/gateways/{gateway}", func(r chi.Router) {
				r.Post("/payments", s.createPayment)
				r.Get("/payments/{reference}", s.inquiry)
				r.Get("/payments/{reference}/redirect", s.redirect)
				r.Post("/payments/{reference}/verify", s.verify)
				r.Post("/payments/{reference}/reverse", s.reverse)
				r.Get("/unverified", s.unverified)
			})
		})
	}
	return r
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", s.cfg.Port).Bool("operator_api", s.auth != nil).Msg("HTTP server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) gateway(name string) (*application.Payman, error) {
	p, ok := s.gateways[strings.ToLower(name)]
	if !ok {
		return nil, &domain.UnknownGatewayError{Name: name}
	}
	return p, nil
}

func (s *Server) names() []string {
	out := make([]string, 0, len(s.gateways))
	for n := range s.gateways {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// rateLimit fails open when the limiter errors.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || s.cfg.CallbackRateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		gw := strings.ToLower(chi.URLParam(r, "gateway"))
		key := rdb.CallbackRateKey(gw, clientIP(r))
		ok, err := s.limiter.Allow(r.Context(), key, s.cfg.CallbackRateLimit, s.cfg.RateWindow)
		if err != nil {
			l := logging.With(r.Context(), s.log)
			l.Warn().Err(err).Msg("callback rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			metrics.CallbackRequests.WithLabelValues(s.label(gw), callbackKind(r), "fail", "rate_limited").Inc()
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many callbacks", Result: "rate_limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// verifyOnce runs fn for gateway/reference at most once at a time and
// publishes the outcome. cached reports whether the result came from the cache.
func (s *Server) verifyOnce(ctx context.Context, gateway, reference string, fn func(context.Context) (*model.VerifyResponse, error)) (res *model.VerifyResponse, cached bool, err error) {
	if hit := s.lookup(ctx, gateway, reference); hit != nil {
		return hit, true, nil
	}

	if s.locker != nil && reference != "" {
		key := rdb.CallbackLockKey(gateway, reference)
		token, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
		if err != nil {
			return nil, false, err
		}
		defer func() {
			// the request context may already be done
			if uerr := s.locker.Unlock(context.Background(), key, token); uerr != nil {
				s.log.Warn().Err(uerr).Str("key", key).Msg("release callback lock")
			}
		}()
		if hit := s.lookup(ctx, gateway, reference); hit != nil {
			return hit, true, nil
		}
	}

	res, err = fn(ctx)
	// outcome bookkeeping must survive a verify that hit its deadline
	bg := context.WithoutCancel(ctx)
	s.publish(bg, gateway, reference, res, err)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		if cerr := s.cache.Store(bg, res); cerr != nil {
			s.log.Warn().Err(cerr).Str("reference", reference).Msg("cache verify result")
		}
	}
	return res, false, nil
}

func (s *Server) lookup(ctx context.Context, gateway, reference string) *model.VerifyResponse {
	if s.cache == nil || reference == "" {
		return nil
	}
	hit, err := s.cache.Lookup(ctx, gateway, reference)
	if err != nil {
		s.log.Warn().Err(err).Str("reference", reference).Msg("verify result cache lookup")
		return nil
	}
	if hit == nil {
		metrics.IncCacheRequest("verify_result", "miss")
		return nil
	}
	metrics.IncCacheRequest("verify_result", "hit")
	return hit
}

func (s *Server) publish(ctx context.Context, gateway, reference string, res *model.VerifyResponse, err error) {
	ev := events.PaymentEvent{Kind: events.KindVerified, Gateway: gateway, Reference: reference, Result: application.Result(err)}
	if err != nil {
		ev.Kind = events.KindVerifyFailed
		ev.Error = err.Error()
		var ge *domain.GatewayError
		if errors.As(err, &ge) {
			ev.Code = ge.Code
		}
	} else if res != nil {
		ev.Code = res.Code
		ev.Amount = res.Amount
		ev.RefID = res.RefID
		ev.OrderID = res.OrderID
	}
	if perr := s.events.Publish(ctx, ev); perr != nil {
		s.log.Warn().Err(perr).Str("reference", reference).Msg("publish verify outcome")
	}
}
