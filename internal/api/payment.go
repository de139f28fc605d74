package api

import (
	"context"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
)

// PaymentService fronts the backend's payment-provider endpoints. It only
// forwards cart contents; amounts are decided server side.
type PaymentService struct {
	c *Client
}

func NewPaymentService(c *Client) *PaymentService {
	return &PaymentService{c: c}
}

type productsRequest struct {
	Products []domain.CartLineItem `json:"products"`
}

func idempotency(key string) map[string]string {
	if key == "" {
		return nil
	}
	return map[string]string{"Idempotency-Key": key}
}

func (s *PaymentService) PaymentSheet(ctx context.Context, items []domain.CartLineItem, idempotencyKey string) (domain.PaymentSheet, error) {
	var sheet domain.PaymentSheet
	err := s.c.send(ctx, call{
		method:  http.MethodPost,
		path:    "/api/payment/payment-sheet",
		body:    productsRequest{Products: items},
		out:     &sheet,
		headers: idempotency(idempotencyKey),
	})
	return sheet, err
}

func (s *PaymentService) CheckoutSession(ctx context.Context, items []domain.CartLineItem, idempotencyKey string) (domain.CheckoutSession, error) {
	var session domain.CheckoutSession
	err := s.c.send(ctx, call{
		method:  http.MethodPost,
		path:    "/api/payment/create-checkout-session",
		body:    productsRequest{Products: items},
		out:     &session,
		headers: idempotency(idempotencyKey),
	})
	return session, err
}

func (s *PaymentService) Confirm(ctx context.Context, sessionID string) (domain.OrderConfirmation, error) {
	var conf domain.OrderConfirmation
	err := s.c.send(ctx, call{
		method: http.MethodPost,
		path:   "/api/payment/checkout-success",
		body:   map[string]string{"sessionId": sessionID},
		out:    &conf,
	})
	return conf, err
}
