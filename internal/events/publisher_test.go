package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/storefront/internal/logger"
)

type memoryWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *memoryWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memoryWriter) Close() error { return nil }

func TestPublisher_CheckoutCompleted(t *testing.T) {
	w := &memoryWriter{}
	p := NewPublisher(w)

	event := CheckoutCompleted{CheckoutID: "ch-1", UserID: "u1", CompletedAt: time.Unix(1700000000, 0).UTC()}
	require.NoError(t, p.CheckoutCompleted(context.Background(), event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, []byte("ch-1"), msg.Key)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("checkout"), msg.Headers[0].Value)

	var decoded CheckoutCompleted
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event, decoded)
}

func TestPublisher_RoundTripsThroughConsumer(t *testing.T) {
	w := &memoryWriter{}
	p := NewPublisher(w)
	require.NoError(t, p.CheckoutCompleted(context.Background(), CheckoutCompleted{CheckoutID: "ch-2", UserID: "u7"}))

	cart := &mockResetter{}
	c := NewConsumer(&chanReader{}, cart, func() string { return "u7" }, logger.Discard())
	require.NoError(t, c.Handle(context.Background(), w.msgs[0].Value))
	assert.Equal(t, int32(1), cart.resets.Load())
}

func TestPublisher_WriteError(t *testing.T) {
	boom := errors.New("leader not available")
	p := NewPublisher(&memoryWriter{err: boom})
	require.ErrorIs(t, p.CheckoutCompleted(context.Background(), CheckoutCompleted{CheckoutID: "x"}), boom)
}
