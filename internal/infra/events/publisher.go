// Package events publishes payment outcomes to a message broker so
// downstream services learn about verifications without polling.
package events

import (
	"context"
	"encoding/json"
	"time"

	"iranpay/internal/config"
	"iranpay/internal/infra/logging"
	"iranpay/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type Kind string

const (
	KindVerified     Kind = "payment.verified"
	KindVerifyFailed Kind = "payment.verify_failed"
	KindUnverified   Kind = "payment.unverified"
)

type PaymentEvent struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Gateway   string    `json:"gateway"`
	Reference string    `json:"reference"`
	Amount    int64     `json:"amount,omitempty"`
	RefID     string    `json:"ref_id,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	Code      int       `json:"code,omitempty"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev PaymentEvent) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, PaymentEvent) error { return nil }
func (Nop) Close() error                                { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher keys messages by gateway and reference so all events of
// one payment land on the same partition in order.
type KafkaPublisher struct {
	w   messageWriter
	log *zerolog.Logger
}

func NewKafkaPublisher(cfg config.EventsConfig, logger *zerolog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(w, logger)
}

func newKafkaPublisher(w messageWriter, logger *zerolog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &KafkaPublisher{w: w, log: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev PaymentEvent) error {
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(ev.Gateway + ":" + ev.Reference),
		Value:   value,
		Headers: []kafka.Header{{Key: "kind", Value: []byte(ev.Kind)}},
	})
	if err != nil {
		metrics.IncEventPublished(string(ev.Kind), "failed")
		p.log.Error().Err(err).Str("kind", string(ev.Kind)).Str("reference", ev.Reference).Msg("publish payment event")
		return err
	}
	metrics.IncEventPublished(string(ev.Kind), "ok")
	p.log.Debug().Str("event_id", ev.ID).Str("kind", string(ev.Kind)).Msg("payment event published")
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
