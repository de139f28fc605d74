package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/storefront/internal/api"
	d "github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
)

type mockCart struct {
	m        sync.Mutex
	snapshot d.CartSnapshot
	fetchErr error
	clearErr error
	cleared  int
	reset    int
}

func (m *mockCart) FetchCart(context.Context) error {
	m.m.Lock()
	defer m.m.Unlock()
	return m.fetchErr
}

func (m *mockCart) Snapshot() d.CartSnapshot {
	m.m.Lock()
	defer m.m.Unlock()
	return m.snapshot.Clone()
}

func (m *mockCart) ClearCart(context.Context) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.cleared++
	if m.clearErr != nil {
		return m.clearErr
	}
	m.snapshot = d.NewCartSnapshot(nil)
	return nil
}

func (m *mockCart) Reset(context.Context) {
	m.m.Lock()
	defer m.m.Unlock()
	m.reset++
	m.snapshot = d.NewCartSnapshot(nil)
}

type mockPayments struct {
	m          sync.Mutex
	keys       []string
	items      [][]d.CartLineItem
	confirmed  []string
	sheetErr   error
	confirmErr error
}

func (m *mockPayments) PaymentSheet(_ context.Context, items []d.CartLineItem, key string) (d.PaymentSheet, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.keys = append(m.keys, key)
	m.items = append(m.items, items)
	if m.sheetErr != nil {
		return d.PaymentSheet{}, m.sheetErr
	}
	return d.PaymentSheet{PaymentIntent: "pi_secret", EphemeralKey: "ek", Customer: "cus_1"}, nil
}

func (m *mockPayments) CheckoutSession(_ context.Context, items []d.CartLineItem, key string) (d.CheckoutSession, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.keys = append(m.keys, key)
	m.items = append(m.items, items)
	return d.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil
}

func (m *mockPayments) Confirm(_ context.Context, sessionID string) (d.OrderConfirmation, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.confirmed = append(m.confirmed, sessionID)
	if m.confirmErr != nil {
		return d.OrderConfirmation{}, m.confirmErr
	}
	return d.OrderConfirmation{OrderID: "order-1", Status: "paid"}, nil
}

func filledCart() *mockCart {
	return &mockCart{snapshot: d.NewCartSnapshot([]d.CartLineItem{
		{ID: "p1", Name: "Ball", UnitPrice: decimal.RequireFromString("12.50"), Quantity: 2},
	})}
}

func TestPrepare_CreatesSheet(t *testing.T) {
	cart := filledCart()
	payments := &mockPayments{}
	flow := NewFlow(cart, payments, logger.Discard())

	sheet, err := flow.Prepare(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "pi_secret", sheet.PaymentIntent)
	assert.Equal(t, d.CheckoutStatusPaymentPending, flow.Status())
	require.Len(t, payments.keys, 1)
	assert.NotEmpty(t, payments.keys[0])
	assert.Equal(t, "p1", payments.items[0][0].ID)
}

func TestPrepare_EmptyCart(t *testing.T) {
	flow := NewFlow(&mockCart{}, &mockPayments{}, logger.Discard())

	_, err := flow.Prepare(context.Background())
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, d.CheckoutStatus(""), flow.Status())
}

func TestPrepare_FetchFailure(t *testing.T) {
	boom := errors.New("offline")
	cart := filledCart()
	cart.fetchErr = boom
	payments := &mockPayments{}
	flow := NewFlow(cart, payments, logger.Discard())

	_, err := flow.Prepare(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Empty(t, payments.keys)
}

func TestPrepare_RetryReusesIdempotencyKey(t *testing.T) {
	payments := &mockPayments{sheetErr: errors.New("timeout")}
	flow := NewFlow(filledCart(), payments, logger.Discard())
	ctx := context.Background()

	_, err := flow.Prepare(ctx)
	require.Error(t, err)
	assert.Equal(t, d.CheckoutStatusInitiated, flow.Status())

	payments.sheetErr = nil
	_, err = flow.Prepare(ctx)
	require.NoError(t, err)

	require.Len(t, payments.keys, 2)
	assert.Equal(t, payments.keys[0], payments.keys[1])
}

func TestComplete_ClearsCart(t *testing.T) {
	cart := filledCart()
	payments := &mockPayments{}
	flow := NewFlow(cart, payments, logger.Discard())
	ctx := context.Background()

	_, err := flow.Prepare(ctx)
	require.NoError(t, err)

	conf, err := flow.Complete(ctx, "cs_42")
	require.NoError(t, err)
	assert.Equal(t, "order-1", conf.OrderID)
	assert.Equal(t, d.CheckoutStatusCompleted, flow.Status())
	assert.Equal(t, []string{"cs_42"}, payments.confirmed)
	assert.Equal(t, 1, cart.cleared)
	assert.True(t, cart.Snapshot().Empty())
}

func TestComplete_ClearFailureResetsLocally(t *testing.T) {
	cart := filledCart()
	cart.clearErr = errors.New("offline")
	flow := NewFlow(cart, &mockPayments{}, logger.Discard())
	ctx := context.Background()

	_, err := flow.Prepare(ctx)
	require.NoError(t, err)
	_, err = flow.Complete(ctx, "cs_1")
	require.NoError(t, err)

	assert.Equal(t, 1, cart.reset)
	assert.True(t, cart.Snapshot().Empty())
}

func TestComplete_UsesCreatedSession(t *testing.T) {
	payments := &mockPayments{}
	flow := NewFlow(filledCart(), payments, logger.Discard())
	ctx := context.Background()

	session, err := flow.CreateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.ID)

	_, err = flow.Complete(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"cs_1"}, payments.confirmed)
}

func TestComplete_IllegalTransition(t *testing.T) {
	payments := &mockPayments{sheetErr: errors.New("timeout")}
	flow := NewFlow(filledCart(), payments, logger.Discard())
	ctx := context.Background()

	// INITIATED: no payment sheet exists yet.
	_, err := flow.Prepare(ctx)
	require.Error(t, err)
	_, err = flow.Complete(ctx, "cs_1")
	require.ErrorIs(t, err, ErrIllegalTransition)

	payments.sheetErr = nil
	_, err = flow.Prepare(ctx)
	require.NoError(t, err)
	_, err = flow.Complete(ctx, "cs_1")
	require.NoError(t, err)

	_, err = flow.Complete(ctx, "cs_1")
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, []string{"cs_1"}, payments.confirmed)
}

func TestComplete_FreshFlowConfirmsGivenSession(t *testing.T) {
	cart := filledCart()
	payments := &mockPayments{}
	flow := NewFlow(cart, payments, logger.Discard())

	conf, err := flow.Complete(context.Background(), "cs_redirect")
	require.NoError(t, err)
	assert.Equal(t, "order-1", conf.OrderID)
	assert.Equal(t, []string{"cs_redirect"}, payments.confirmed)
	assert.Equal(t, 1, cart.cleared)
	assert.Equal(t, d.CheckoutStatusCompleted, flow.Status())
}

func TestComplete_FreshFlowNeedsSessionID(t *testing.T) {
	payments := &mockPayments{}
	flow := NewFlow(filledCart(), payments, logger.Discard())

	_, err := flow.Complete(context.Background(), "")
	require.ErrorIs(t, err, ErrNoSession)
	assert.Empty(t, payments.confirmed)
}

func TestComplete_NetworkFailureKeepsPending(t *testing.T) {
	cart := filledCart()
	payments := &mockPayments{confirmErr: &api.Error{Kind: api.KindNetwork, Err: errors.New("connection reset")}}
	flow := NewFlow(cart, payments, logger.Discard())
	ctx := context.Background()

	_, err := flow.CreateSession(ctx)
	require.NoError(t, err)
	_, err = flow.Complete(ctx, "")
	require.True(t, api.IsNetwork(err))
	assert.Equal(t, d.CheckoutStatusPaymentPending, flow.Status())

	payments.m.Lock()
	payments.confirmErr = nil
	payments.m.Unlock()
	_, err = flow.Complete(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"cs_1", "cs_1"}, payments.confirmed)
	assert.Equal(t, 1, cart.cleared)
}

func TestComplete_RetryAfterFailure(t *testing.T) {
	cart := filledCart()
	payments := &mockPayments{confirmErr: &api.Error{Kind: api.KindValidation, Status: 402, Message: "payment not settled"}}
	flow := NewFlow(cart, payments, logger.Discard())
	ctx := context.Background()

	_, err := flow.CreateSession(ctx)
	require.NoError(t, err)
	_, err = flow.Complete(ctx, "")
	require.Error(t, err)
	assert.Equal(t, d.CheckoutStatusFailed, flow.Status())

	payments.m.Lock()
	payments.confirmErr = nil
	payments.m.Unlock()
	_, err = flow.Complete(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, d.CheckoutStatusCompleted, flow.Status())
	assert.Equal(t, 1, cart.cleared)
}

func TestComplete_NoSession(t *testing.T) {
	flow := NewFlow(filledCart(), &mockPayments{}, logger.Discard())
	ctx := context.Background()
	_, err := flow.Prepare(ctx)
	require.NoError(t, err)

	_, err = flow.Complete(ctx, "")
	require.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, d.CheckoutStatusPaymentPending, flow.Status())
}

func TestComplete_ConfirmFailure(t *testing.T) {
	cart := filledCart()
	payments := &mockPayments{confirmErr: errors.New("declined")}
	flow := NewFlow(cart, payments, logger.Discard())
	ctx := context.Background()

	_, err := flow.Prepare(ctx)
	require.NoError(t, err)
	_, err = flow.Complete(ctx, "cs_1")
	require.Error(t, err)

	assert.Equal(t, d.CheckoutStatusFailed, flow.Status())
	assert.Equal(t, 0, cart.cleared)
	assert.False(t, cart.Snapshot().Empty())

	// A failed checkout can be started over with a fresh key.
	payments.confirmErr = nil
	_, err = flow.Prepare(ctx)
	require.NoError(t, err)
	require.Len(t, payments.keys, 2)
	assert.NotEqual(t, payments.keys[0], payments.keys[1])
}

func TestReset(t *testing.T) {
	flow := NewFlow(filledCart(), &mockPayments{}, logger.Discard())
	_, err := flow.Prepare(context.Background())
	require.NoError(t, err)

	flow.Reset()
	assert.Equal(t, d.CheckoutStatus(""), flow.Status())
}
