// Package events listens for checkout completions published by the backend
// so a cart emptied on another device is emptied here too.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	Topic          = "checkout-outbox"
	DefaultGroupID = "storefront-client"
)

var ErrMissingUser = errors.New("missing or invalid user_id")

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CartResetter drops the local cart.
type CartResetter interface {
	Reset(ctx context.Context)
}

// CheckoutCompleted is the outbox payload of a finished checkout.
type CheckoutCompleted struct {
	CheckoutID  string    `json:"checkout_id"`
	UserID      string    `json:"user_id"`
	CompletedAt time.Time `json:"completed_at"`
}

type Consumer struct {
	reader MessageReader
	cart   CartResetter
	userID func() string
	log    *slog.Logger
	retry  time.Duration
}

func NewConsumer(reader MessageReader, cart CartResetter, userID func() string, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{reader: reader, cart: cart, userID: userID, log: log, retry: time.Second}
}

// NewKafkaReader reads the checkout outbox topic as part of groupID.
func NewKafkaReader(groupID string, brokers ...string) *kafka.Reader {
	if groupID == "" {
		groupID = DefaultGroupID
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    Topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.ErrorContext(ctx, "error reading message", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retry):
			}
			continue
		}
		if err := c.Handle(ctx, m.Value); err != nil {
			c.log.WarnContext(ctx, "skipping checkout event", "offset", m.Offset, "error", err)
		}
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Error("error closing reader", "error", err)
	}
}

// Handle resets the local cart when value reports a completed checkout of
// the signed-in user. Events for other users are ignored.
func (c *Consumer) Handle(ctx context.Context, value []byte) error {
	var event CheckoutCompleted
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	if event.UserID == "" {
		return ErrMissingUser
	}

	current := c.userID()
	if current == "" || current != event.UserID {
		return nil
	}

	c.log.InfoContext(ctx, "checkout completed elsewhere, resetting cart", "checkout_id", event.CheckoutID)
	c.cart.Reset(ctx)
	return nil
}
