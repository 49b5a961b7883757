package sched

import (
	"context"
	"errors"
	"time"

	"iranpay/internal/domain"
	"iranpay/internal/domain/model"
	"iranpay/internal/infra/dispatch"
	"iranpay/internal/infra/events"
	"iranpay/internal/infra/logging"
	"iranpay/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Sweepable is the slice of the payment facade the sweeper drives.
type Sweepable interface {
	Name() string
	Unverified(ctx context.Context) ([]model.UnverifiedPayment, error)
	Verify(ctx context.Context, req model.VerifyRequest) (*model.VerifyResponse, error)
}

// UnverifiedSweeper periodically asks each gateway for paid sessions nobody verified.
// This covers callbacks that never arrived or a process that crashed mid-verify.
// Gateways without a listing endpoint are skipped.
type UnverifiedSweeper struct {
	gateways   []Sweepable
	interval   time.Duration
	autoVerify bool
	events     events.Publisher
	log        *zerolog.Logger
}

func NewUnverifiedSweeper(gateways []Sweepable, interval time.Duration, autoVerify bool, pub events.Publisher, logger *zerolog.Logger) *UnverifiedSweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	l := logger.With().Str("component", "UnverifiedSweeper").Logger()
	return &UnverifiedSweeper{gateways: gateways, interval: interval, autoVerify: autoVerify, events: pub, log: &l}
}

func (w *UnverifiedSweeper) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Bool("auto_verify", w.autoVerify).Msg("Starting unverified sweeper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	// passes run as a background task, so auto-verify fans out instead of blocking per item
	ctx = dispatch.WithTask(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping unverified sweeper")
			return ctx.Err()
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over every gateway and returns how many sessions were verified.
func (w *UnverifiedSweeper) Sweep(ctx context.Context) int {
	verified := 0
	for _, g := range w.gateways {
		verified += w.sweepOne(ctx, g)
	}
	return verified
}

func (w *UnverifiedSweeper) sweepOne(ctx context.Context, g Sweepable) int {
	name := g.Name()
	list, err := g.Unverified(ctx)
	if errors.Is(err, domain.ErrNotSupported) {
		metrics.IncSweep(name, "not_supported")
		return 0
	}
	if err != nil {
		metrics.IncSweep(name, "failed")
		w.log.Error().Err(err).Str("gateway", name).Msg("list unverified payments")
		return 0
	}
	metrics.IncSweep(name, "ok")
	metrics.SetUnverified(name, len(list))
	if len(list) > 0 {
		w.log.Warn().Str("gateway", name).Int("count", len(list)).Msg("unverified payments pending")
	}

	if !w.autoVerify {
		for _, p := range list {
			w.publish(ctx, events.PaymentEvent{Kind: events.KindUnverified, Gateway: name, Reference: p.Reference, Amount: p.Amount})
		}
		return 0
	}

	// Invoke verifies inline for a plain ctx and concurrently inside a task.
	pending := make([]*dispatch.Future[*model.VerifyResponse], len(list))
	for i, p := range list {
		req := model.VerifyRequest{Reference: p.Reference, Amount: p.Amount}
		pending[i] = dispatch.Invoke(ctx, func(ctx context.Context) (*model.VerifyResponse, error) {
			return g.Verify(ctx, req)
		})
	}

	verified := 0
	for i, p := range list {
		res, err := pending[i].Await(ctx)
		if err != nil {
			w.log.Error().Err(err).Str("gateway", name).Str("reference", p.Reference).Msg("auto verify failed")
			w.publish(ctx, events.PaymentEvent{Kind: events.KindVerifyFailed, Gateway: name, Reference: p.Reference, Amount: p.Amount, Error: err.Error()})
			continue
		}
		verified++
		w.log.Info().Str("gateway", name).Str("reference", p.Reference).Str("ref_id", res.RefID).Msg("reconciled payment")
		w.publish(ctx, events.PaymentEvent{Kind: events.KindVerified, Gateway: name, Reference: p.Reference, Amount: p.Amount, RefID: res.RefID, Code: res.Code})
	}
	return verified
}

func (w *UnverifiedSweeper) publish(ctx context.Context, ev events.PaymentEvent) {
	if err := w.events.Publish(ctx, ev); err != nil {
		w.log.Warn().Err(err).Str("reference", ev.Reference).Msg("publish sweep event")
	}
}
