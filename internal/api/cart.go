package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/fjod/storefront/internal/domain"
)

// CartService is the remote cart of the signed-in user.
type CartService struct {
	c *Client
}

func NewCartService(c *Client) *CartService {
	return &CartService{c: c}
}

func (s *CartService) Get(ctx context.Context) (domain.CartSnapshot, error) {
	var raw json.RawMessage
	if err := s.c.send(ctx, call{method: http.MethodGet, path: "/api/cart", out: &raw}); err != nil {
		return domain.CartSnapshot{}, err
	}
	snapshot, err := decodeCart(raw)
	if err != nil {
		return domain.CartSnapshot{}, &Error{Kind: KindUnknown, Status: http.StatusOK, Err: err}
	}
	return snapshot, nil
}

func (s *CartService) Add(ctx context.Context, productID string) error {
	return s.c.send(ctx, call{
		method: http.MethodPost,
		path:   "/api/cart",
		body:   map[string]string{"productId": productID},
	})
}

func (s *CartService) Remove(ctx context.Context, productID string) error {
	return s.c.send(ctx, call{
		method: http.MethodDelete,
		path:   "/api/cart/" + url.PathEscape(productID),
		body:   map[string]string{"productId": productID},
	})
}

func (s *CartService) Increment(ctx context.Context, productID string) error {
	return s.patch(ctx, productID, "increment")
}

func (s *CartService) Decrement(ctx context.Context, productID string) error {
	return s.patch(ctx, productID, "decrement")
}

func (s *CartService) patch(ctx context.Context, productID, op string) error {
	return s.c.send(ctx, call{
		method: http.MethodPatch,
		path:   fmt.Sprintf("/api/cart/%s/%s", url.PathEscape(productID), op),
		body:   struct{}{},
	})
}

func (s *CartService) Clear(ctx context.Context) error {
	return s.c.send(ctx, call{method: http.MethodDelete, path: "/api/cart"})
}

// decodeCart accepts both {cartItems, totalAmount} and a bare item array.
// A missing total is derived from the items.
func decodeCart(raw json.RawMessage) (domain.CartSnapshot, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return domain.NewCartSnapshot(nil), nil
	}

	if trimmed[0] == '[' {
		var items []domain.CartLineItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return domain.CartSnapshot{}, fmt.Errorf("decode cart items: %w", err)
		}
		return domain.NewCartSnapshot(items), nil
	}

	var envelope struct {
		CartItems   []domain.CartLineItem `json:"cartItems"`
		TotalAmount *decimal.Decimal      `json:"totalAmount"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return domain.CartSnapshot{}, fmt.Errorf("decode cart: %w", err)
	}
	if envelope.TotalAmount == nil {
		return domain.NewCartSnapshot(envelope.CartItems), nil
	}
	return domain.CartSnapshot{Items: envelope.CartItems, TotalAmount: envelope.TotalAmount.Round(2)}, nil
}
