package fakeapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/storefront/internal/domain"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(SeedProducts())
}

func TestStore_Featured(t *testing.T) {
	s := setupStore(t)

	items, pages := s.Featured(1, 6, domain.AllCategories)
	assert.Len(t, items, 6)
	assert.Equal(t, 3, pages)

	items, pages = s.Featured(3, 6, "")
	assert.Len(t, items, 2)
	assert.Equal(t, 3, pages)

	items, _ = s.Featured(9, 6, "")
	assert.Empty(t, items)

	items, pages = s.Featured(1, 10, "sports")
	assert.Equal(t, 1, pages)
	for _, p := range items {
		assert.Equal(t, "Sports", p.Category)
	}
}

func TestStore_CartLifecycle(t *testing.T) {
	s := setupStore(t)
	const user = "u1"

	require.NoError(t, s.AddToCart(user, "prod-01"))
	require.NoError(t, s.AddToCart(user, "prod-01"))
	require.NoError(t, s.AddToCart(user, "prod-03"))
	assert.ErrorIs(t, s.AddToCart(user, "nope"), ErrProductNotFound)

	cart := s.Cart(user)
	require.Len(t, cart, 2)
	assert.Equal(t, 2, cart[0].Quantity)

	require.NoError(t, s.ChangeQuantity(user, "prod-03", -1))
	assert.Len(t, s.Cart(user), 1)
	assert.ErrorIs(t, s.ChangeQuantity(user, "prod-03", 1), ErrItemNotFound)

	require.NoError(t, s.RemoveFromCart(user, "prod-01"))
	assert.Empty(t, s.Cart(user))
	assert.ErrorIs(t, s.RemoveFromCart(user, "prod-01"), ErrItemNotFound)
}

func TestStore_Accounts(t *testing.T) {
	s := setupStore(t)

	u, version, err := s.Register("Ann", "Ann@Example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.Equal(t, 0, version)

	_, _, err = s.Register("Ann", "ann@example.com", "other")
	assert.ErrorIs(t, err, ErrUserExists)

	_, _, err = s.Authenticate("ann@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	got, _, err := s.Authenticate("ann@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	s.RevokeTokens("ann@example.com")
	v, ok := s.TokenVersion(u.ID)
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestStore_Sessions(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.AddToCart("u1", "prod-01"))
	items := s.Cart("u1")

	_, err := s.OpenSession("u1", "k1", nil)
	assert.ErrorIs(t, err, ErrEmptyCart)

	id, err := s.OpenSession("u1", "k1", items)
	require.NoError(t, err)
	again, err := s.OpenSession("u1", "k1", items)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, s.Sessions())

	_, err = s.CompleteSession("u2", id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	orderID, err := s.CompleteSession("u1", id)
	require.NoError(t, err)
	assert.NotEmpty(t, orderID)
	assert.Empty(t, s.Cart("u1"))

	_, err = s.CompleteSession("u1", id)
	assert.ErrorIs(t, err, ErrSessionCompleted)
}

func TestTokens(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	raw, err := tokens.Issue("u1", 3)
	require.NoError(t, err)

	id, version, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
	assert.Equal(t, 3, version)

	_, _, err = NewTokens("other", time.Hour).Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewTokens("secret", -time.Minute)
	raw, err = expired.Issue("u1", 0)
	require.NoError(t, err)
	_, _, err = tokens.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
