// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"iranpay/internal/application"
	"iranpay/internal/config"
	"iranpay/internal/infra/dispatch"
	"iranpay/internal/infra/events"
	"iranpay/internal/infra/logging"
	"iranpay/internal/infra/metrics"
	red "iranpay/internal/infra/redis"
	"iranpay/internal/infra/sched"
	"iranpay/internal/infra/web"

	_ "iranpay/internal/infra/adapters/payment"

	"golang.org/x/sync/errgroup"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted secrets)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath, *devMode)
	if err != nil {
		logging.New(config.LogConfig{}, true).Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Gateways ----
	pool := dispatch.NewPool(cfg.Server.Workers)
	logger.Info().Int("workers", pool.Size()).Msg("async worker pool ready")
	gateways := make(map[string]*application.Payman, len(cfg.Payment.Gateways))
	names := make([]string, 0, len(cfg.Payment.Gateways))
	for name := range cfg.Payment.Gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		gcfg := cfg.Payment.Gateways[name]
		p, err := application.Open(name, gcfg, application.WithLogger(logger), application.WithPool(pool))
		if err != nil {
			logger.Fatal().Err(err).Str("gateway", name).Msg("open gateway")
		}
		gateways[name] = p
		logger.Info().
			Str("gateway", name).
			Bool("sandbox", gcfg.Sandbox).
			Str("merchant", logging.Redact(gcfg.MerchantID, cfg.Runtime.Dev)).
			Bool("default", name == cfg.Payment.Default).
			Msg("gateway ready")
	}

	// ---- Events ----
	var pub events.Publisher = events.Nop{}
	if len(cfg.Events.Brokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.Events, logger)
		logger.Info().Strs("brokers", cfg.Events.Brokers).Str("topic", cfg.Events.Topic).Msg("publishing payment events")
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Warn().Err(err).Msg("close event publisher")
		}
	}()

	// ---- HTTP server ----
	opts := []web.Option{web.WithLogger(logger), web.WithPublisher(pub)}

	// ---- Redis (optional) ----
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		opts = append(opts,
			web.WithLocker(red.NewLocker(redisClient)),
			web.WithRateLimiter(red.NewRateLimiter(redisClient)),
			web.WithResultCache(red.NewResultCache(redisClient, cfg.Server.ResultCacheTTL)),
		)
	} else {
		logger.Warn().Msg("redis.url not set; callbacks are not locked, cached or rate limited")
	}
	srv := web.NewServer(cfg.Server, gateways, opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// ---- Unverified sweeper ----
	if cfg.Sweeper.Enabled {
		sweepables := make([]sched.Sweepable, 0, len(names))
		for _, name := range names {
			sweepables = append(sweepables, gateways[name])
		}
		sweeper := sched.NewUnverifiedSweeper(sweepables, cfg.Sweeper.Interval, cfg.Sweeper.AutoVerify, pub, logger)
		g.Go(func() error {
			if err := sweeper.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("shutdown with error")
		return
	}
	logger.Info().Msg("shutdown complete")
}
