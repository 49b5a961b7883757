//go:build !integration

package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher_KeysAndFillsEvent(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, nil)

	err := p.Publish(context.Background(), PaymentEvent{
		Kind: KindVerified, Gateway: "zibal", Reference: "3001", Amount: 15000, RefID: "777",
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	m := w.msgs[0]
	assert.Equal(t, "zibal:3001", string(m.Key))
	require.Len(t, m.Headers, 1)
	assert.Equal(t, "payment.verified", string(m.Headers[0].Value))

	var ev PaymentEvent
	require.NoError(t, json.Unmarshal(m.Value, &ev))
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.At.IsZero())
	assert.Equal(t, int64(15000), ev.Amount)
	assert.Equal(t, "777", ev.RefID)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := newKafkaPublisher(&fakeWriter{err: boom}, nil)
	err := p.Publish(context.Background(), PaymentEvent{Kind: KindVerifyFailed, Gateway: "zarinpal", Reference: "A"})
	assert.ErrorIs(t, err, boom)
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newKafkaPublisher(w, nil).Close())
	assert.True(t, w.closed)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), PaymentEvent{}))
	assert.NoError(t, p.Close())
}
