// Package checkout hands the cart to the payment collaborator and finishes
// the order once the payment is confirmed.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/fjod/storefront/internal/api"
	d "github.com/fjod/storefront/internal/domain"
)

// Payments is the remote payment collaborator.
type Payments interface {
	PaymentSheet(ctx context.Context, items []d.CartLineItem, idempotencyKey string) (d.PaymentSheet, error)
	CheckoutSession(ctx context.Context, items []d.CartLineItem, idempotencyKey string) (d.CheckoutSession, error)
	Confirm(ctx context.Context, sessionID string) (d.OrderConfirmation, error)
}

// Cart is the part of the cart state a checkout needs.
type Cart interface {
	FetchCart(ctx context.Context) error
	Snapshot() d.CartSnapshot
	ClearCart(ctx context.Context) error
	Reset(ctx context.Context)
}

type Flow struct {
	mu             sync.Mutex
	status         d.CheckoutStatus
	idempotencyKey string
	sessionID      string

	cart     Cart
	payments Payments
	log      *slog.Logger
}

func NewFlow(cart Cart, payments Payments, log *slog.Logger) *Flow {
	if log == nil {
		log = slog.Default()
	}
	return &Flow{cart: cart, payments: payments, log: log}
}

// Prepare creates the payment-sheet bundle for the current server cart.
// Retrying an unfinished checkout reuses its idempotency key.
func (f *Flow) Prepare(ctx context.Context) (d.PaymentSheet, error) {
	items, key, err := f.begin(ctx)
	if err != nil {
		return d.PaymentSheet{}, err
	}

	sheet, err := f.payments.PaymentSheet(ctx, items, key)
	if err != nil {
		f.log.ErrorContext(ctx, "create payment sheet failed", "idempotency_key", key, "error", err)
		return d.PaymentSheet{}, fmt.Errorf("create payment sheet: %w", err)
	}

	if err := f.pending(""); err != nil {
		return d.PaymentSheet{}, err
	}
	f.log.InfoContext(ctx, "payment sheet ready", "idempotency_key", key, "items", len(items))
	return sheet, nil
}

// CreateSession starts a hosted checkout session instead of a payment sheet.
func (f *Flow) CreateSession(ctx context.Context) (d.CheckoutSession, error) {
	items, key, err := f.begin(ctx)
	if err != nil {
		return d.CheckoutSession{}, err
	}

	session, err := f.payments.CheckoutSession(ctx, items, key)
	if err != nil {
		f.log.ErrorContext(ctx, "create checkout session failed", "idempotency_key", key, "error", err)
		return d.CheckoutSession{}, fmt.Errorf("create checkout session: %w", err)
	}

	if err := f.pending(session.ID); err != nil {
		return d.CheckoutSession{}, err
	}
	f.log.InfoContext(ctx, "checkout session created", "session_id", session.ID)
	return session, nil
}

// Complete confirms the payment and clears the cart. An empty sessionID
// confirms the session opened by CreateSession. A fresh flow confirms the
// given session, as after a payment redirect. Network failures leave the
// status unchanged so the confirm can be retried.
func (f *Flow) Complete(ctx context.Context, sessionID string) (d.OrderConfirmation, error) {
	f.mu.Lock()
	if !d.CanConfirm(f.status) {
		status := f.status
		f.mu.Unlock()
		return d.OrderConfirmation{}, fmt.Errorf("complete from %q: %w", status, ErrIllegalTransition)
	}
	if sessionID == "" {
		sessionID = f.sessionID
	}
	f.mu.Unlock()

	if sessionID == "" {
		return d.OrderConfirmation{}, ErrNoSession
	}

	conf, err := f.payments.Confirm(ctx, sessionID)
	if err != nil {
		if !api.IsNetwork(err) {
			f.setStatus(d.CheckoutStatusFailed)
		}
		f.log.ErrorContext(ctx, "confirm checkout failed", "session_id", sessionID, "error", err)
		return d.OrderConfirmation{}, fmt.Errorf("confirm checkout: %w", err)
	}
	f.setStatus(d.CheckoutStatusCompleted)

	if err := f.cart.ClearCart(ctx); err != nil {
		// The order exists; the server cart is stale either way.
		f.log.WarnContext(ctx, "clear cart after checkout failed", "error", err)
		f.cart.Reset(ctx)
	}
	f.log.InfoContext(ctx, "checkout completed", "session_id", sessionID, "order_id", conf.OrderID)
	return conf, nil
}

func (f *Flow) Status() d.CheckoutStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Reset forgets any unfinished checkout.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = ""
	f.idempotencyKey = ""
	f.sessionID = ""
}

// begin fetches the server cart and moves the flow to INITIATED.
func (f *Flow) begin(ctx context.Context) ([]d.CartLineItem, string, error) {
	if err := f.cart.FetchCart(ctx); err != nil {
		return nil, "", fmt.Errorf("load cart for checkout: %w", err)
	}
	snap := f.cart.Snapshot()
	if snap.Empty() {
		return nil, "", ErrEmptyCart
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.status == d.CheckoutStatusInitiated || f.status == d.CheckoutStatusPaymentPending:
	case d.CanTransitionTo(f.status, d.CheckoutStatusInitiated):
		f.status = d.CheckoutStatusInitiated
		f.idempotencyKey = uuid.NewString()
		f.sessionID = ""
	default:
		return nil, "", fmt.Errorf("start from %q: %w", f.status, ErrIllegalTransition)
	}
	return snap.Items, f.idempotencyKey, nil
}

func (f *Flow) pending(sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != d.CheckoutStatusPaymentPending && !d.CanTransitionTo(f.status, d.CheckoutStatusPaymentPending) {
		return fmt.Errorf("await payment from %q: %w", f.status, ErrIllegalTransition)
	}
	f.status = d.CheckoutStatusPaymentPending
	if sessionID != "" {
		f.sessionID = sessionID
	}
	return nil
}

func (f *Flow) setStatus(s d.CheckoutStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}
