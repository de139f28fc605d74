package fakeapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
)

const secretSuffix = "_secret"

type credentialsDTO struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userDTO struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type authDataDTO struct {
	Token string  `json:"token"`
	User  userDTO `json:"user"`
}

type authResponseDTO struct {
	Success bool        `json:"success"`
	Data    authDataDTO `json:"data"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type featuredResponseDTO struct {
	FeaturedProducts []domain.ProductSummary `json:"featuredProducts"`
	TotalPages       int                     `json:"totalPages"`
	CurrentPage      int                     `json:"currentPage"`
}

type productIDDTO struct {
	ProductID string `json:"productId"`
}

type productsDTO struct {
	Products []domain.CartLineItem `json:"products"`
}

type sessionIDDTO struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, version, err := s.store.Authenticate(req.Email, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	s.respondSession(w, http.StatusOK, user, version)
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Name == "" || req.Email == "" || len(req.Password) < 6 {
		respondError(w, http.StatusBadRequest, "Name, email and a password of at least 6 characters are required")
		return
	}

	user, version, err := s.store.Register(req.Name, req.Email, req.Password)
	if errors.Is(err, ErrUserExists) {
		respondError(w, http.StatusBadRequest, "User already exists")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.respondSession(w, http.StatusCreated, user, version)
}

func (s *Server) respondSession(w http.ResponseWriter, status int, user domain.User, version int) {
	token, err := s.tokens.Issue(user.ID, version)
	if err != nil {
		s.log.Error("issue token failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondJSON(w, status, authResponseDTO{
		Success: true,
		Data: authDataDTO{
			Token: token,
			User:  userDTO{ID: user.ID, Name: user.Name, Email: user.Email},
		},
	})
}

func (s *Server) featured(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := positiveInt(q.Get("page"), 1)
	if err != nil {
		respondError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	limit, err := positiveInt(q.Get("limit"), 10)
	if err != nil {
		respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	items, totalPages := s.store.Featured(page, limit, q.Get("category"))
	respondJSON(w, http.StatusOK, featuredResponseDTO{
		FeaturedProducts: items,
		TotalPages:       totalPages,
		CurrentPage:      page,
	})
}

func (s *Server) product(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.Product(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Product not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]domain.ProductSummary{"product": p})
}

// getCart returns the bare item array, as the production backend does.
func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.store.Cart(userIDFromContext(r.Context())))
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	var req productIDDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "productId is required")
		return
	}
	if err := s.store.AddToCart(userIDFromContext(r.Context()), req.ProductID); err != nil {
		respondError(w, http.StatusNotFound, "Product not found")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"message": "Product added to cart"})
}

func (s *Server) removeFromCart(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RemoveFromCart(userIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusNotFound, "Item not found in cart")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Item removed from cart"})
}

func (s *Server) changeQuantity(delta int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.store.ChangeQuantity(userIDFromContext(r.Context()), chi.URLParam(r, "id"), delta); err != nil {
			respondError(w, http.StatusNotFound, "Item not found in cart")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"message": "Quantity updated"})
	}
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	s.store.ClearCart(userIDFromContext(r.Context()))
	respondJSON(w, http.StatusOK, map[string]string{"message": "Cart cleared"})
}

func (s *Server) paymentSheet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.openSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, domain.PaymentSheet{
		PaymentIntent:  id + secretSuffix,
		EphemeralKey:   "ek_" + id,
		Customer:       "cus_" + userIDFromContext(r.Context()),
		PublishableKey: s.publishableKey,
	})
}

func (s *Server) createCheckoutSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.openSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, domain.CheckoutSession{
		ID:  id,
		URL: "https://checkout.example.com/pay/" + id,
	})
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req productsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return "", false
	}
	userID := userIDFromContext(r.Context())
	id, err := s.store.OpenSession(userID, r.Header.Get("Idempotency-Key"), req.Products)
	if errors.Is(err, ErrEmptyCart) {
		respondError(w, http.StatusBadRequest, "No products provided")
		return "", false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return "", false
	}
	s.log.Info("checkout session opened",
		"session_id", id,
		"user_id", userID,
		"amount", domain.ComputeTotal(req.Products).StringFixed(2),
		"request_id", requestIDFromContext(r.Context()),
	)
	return id, true
}

func (s *Server) checkoutSuccess(w http.ResponseWriter, r *http.Request) {
	var req sessionIDDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	sessionID := strings.TrimSuffix(req.SessionID, secretSuffix)
	userID := userIDFromContext(r.Context())

	orderID, err := s.store.CompleteSession(userID, sessionID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "Checkout session not found")
		return
	case errors.Is(err, ErrSessionCompleted):
		respondError(w, http.StatusConflict, "Checkout session already completed")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if s.outbox != nil {
		event := events.CheckoutCompleted{CheckoutID: sessionID, UserID: userID, CompletedAt: time.Now().UTC()}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
		if err := s.outbox.CheckoutCompleted(ctx, event); err != nil {
			s.log.Error("publish checkout event failed", "session_id", sessionID, "error", err)
		}
		cancel()
	}

	respondJSON(w, http.StatusOK, domain.OrderConfirmation{
		OrderID: orderID,
		Status:  domain.CheckoutStatusCompleted.String(),
		Message: "Order placed successfully",
	})
}

func positiveInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("not a positive integer")
	}
	return n, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Success: false, Message: message})
}
