// Package fakeapi is an in-memory storefront backend speaking the same REST
// contract as the real one. It backs the mock server binary and end-to-end
// tests.
package fakeapi

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fjod/storefront/internal/domain"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrItemNotFound       = errors.New("item not found in cart")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrSessionNotFound    = errors.New("checkout session not found")
	ErrSessionCompleted   = errors.New("checkout session already completed")
)

type account struct {
	user     domain.User
	password string
	// version invalidates every token issued before it was bumped.
	version int
}

type checkoutSession struct {
	id        string
	userID    string
	items     []domain.CartLineItem
	completed bool
	orderID   string
}

// Store holds the whole backend state behind one lock.
type Store struct {
	mu       sync.RWMutex
	products []domain.ProductSummary
	byEmail  map[string]*account
	byID     map[string]*account
	carts    map[string][]domain.CartLineItem
	sessions map[string]*checkoutSession
	// idempotency maps Idempotency-Key headers to the session they created.
	idempotency map[string]string
}

func NewStore(products []domain.ProductSummary) *Store {
	s := &Store{
		byEmail:     make(map[string]*account),
		byID:        make(map[string]*account),
		carts:       make(map[string][]domain.CartLineItem),
		sessions:    make(map[string]*checkoutSession),
		idempotency: make(map[string]string),
	}
	s.products = append(s.products, products...)
	return s
}

// SeedProducts is a small catalog spread across a few categories.
func SeedProducts() []domain.ProductSummary {
	type seed struct {
		name, category, price string
	}
	seeds := []seed{
		{"Running Shoes", "Sports", "89.99"},
		{"Yoga Mat", "Sports", "24.50"},
		{"Go Programming", "Books", "39.00"},
		{"Desk Lamp", "Home", "19.99"},
		{"Tennis Racket", "Sports", "120.00"},
		{"Sci-Fi Anthology", "Books", "14.25"},
		{"Coffee Grinder", "Home", "49.90"},
		{"Water Bottle", "Sports", "9.99"},
		{"Cookbook", "Books", "27.00"},
		{"Throw Pillow", "Home", "12.00"},
		{"Cycling Gloves", "Sports", "18.75"},
		{"Poetry Collection", "Books", "11.40"},
		{"Wall Clock", "Home", "22.10"},
		{"Jump Rope", "Sports", "7.49"},
	}
	out := make([]domain.ProductSummary, len(seeds))
	for i, sd := range seeds {
		out[i] = domain.ProductSummary{
			ID:          fmt.Sprintf("prod-%02d", i+1),
			Name:        sd.name,
			Description: fmt.Sprintf("%s from the %s department", sd.name, strings.ToLower(sd.category)),
			Price:       decimal.RequireFromString(sd.price),
			Category:    sd.category,
			ImageRef:    fmt.Sprintf("https://images.example.com/prod-%02d.jpg", i+1),
		}
	}
	return out
}

// Featured pages through the products of category. "" and "All" match everything.
func (s *Store) Featured(page, limit int, category string) (items []domain.ProductSummary, totalPages int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []domain.ProductSummary
	for _, p := range s.products {
		if category == "" || category == domain.AllCategories || strings.EqualFold(p.Category, category) {
			filtered = append(filtered, p)
		}
	}
	if limit <= 0 {
		limit = len(filtered)
	}
	if page < 1 {
		page = 1
	}
	if limit > 0 {
		totalPages = (len(filtered) + limit - 1) / limit
	}

	start := (page - 1) * limit
	if start >= len(filtered) {
		return []domain.ProductSummary{}, totalPages
	}
	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	items = make([]domain.ProductSummary, end-start)
	copy(items, filtered[start:end])
	return items, totalPages
}

func (s *Store) Product(id string) (domain.ProductSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.product(id)
}

func (s *Store) product(id string) (domain.ProductSummary, error) {
	for _, p := range s.products {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.ProductSummary{}, ErrProductNotFound
}

// UpsertProduct replaces the product with the same id or appends it.
func (s *Store) UpsertProduct(p domain.ProductSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == p.ID {
			s.products[i] = p
			return
		}
	}
	s.products = append(s.products, p)
}

func (s *Store) Register(name, email, password string) (domain.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(email))
	if _, exists := s.byEmail[key]; exists {
		return domain.User{}, 0, ErrUserExists
	}
	acc := &account{
		user:     domain.User{ID: uuid.NewString(), Name: name, Email: key},
		password: password,
	}
	s.byEmail[key] = acc
	s.byID[acc.user.ID] = acc
	return acc.user, acc.version, nil
}

func (s *Store) Authenticate(email, password string) (domain.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok || acc.password != password {
		return domain.User{}, 0, ErrInvalidCredentials
	}
	return acc.user, acc.version, nil
}

// TokenVersion reports the current token version of userID.
func (s *Store) TokenVersion(userID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.byID[userID]
	if !ok {
		return 0, false
	}
	return acc.version, true
}

// RevokeTokens invalidates every token issued to the user with email.
func (s *Store) RevokeTokens(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.byEmail[strings.ToLower(email)]; ok {
		acc.version++
	}
}

func (s *Store) Cart(userID string) []domain.CartLineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]domain.CartLineItem, len(s.carts[userID]))
	copy(items, s.carts[userID])
	return items
}

// AddToCart adds one unit, creating the line when the product is new.
func (s *Store) AddToCart(userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.product(productID)
	if err != nil {
		return err
	}
	items := s.carts[userID]
	for i := range items {
		if items[i].ID == productID {
			items[i].Quantity++
			return nil
		}
	}
	s.carts[userID] = append(items, domain.CartLineItem{
		ID:        p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  1,
		ImageRef:  p.ImageRef,
	})
	return nil
}

func (s *Store) RemoveFromCart(userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.carts[userID]
	for i := range items {
		if items[i].ID == productID {
			s.carts[userID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

// ChangeQuantity moves a line by delta and drops it below one.
func (s *Store) ChangeQuantity(userID, productID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.carts[userID]
	for i := range items {
		if items[i].ID != productID {
			continue
		}
		items[i].Quantity += delta
		if items[i].Quantity < 1 {
			s.carts[userID] = append(items[:i], items[i+1:]...)
		}
		return nil
	}
	return ErrItemNotFound
}

func (s *Store) ClearCart(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
}

// OpenSession starts a checkout for items. Reusing an idempotency key
// returns the session it created.
func (s *Store) OpenSession(userID, idempotencyKey string, items []domain.CartLineItem) (string, error) {
	if len(items) == 0 {
		return "", ErrEmptyCart
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idempotencyKey != "" {
		if id, ok := s.idempotency[userID+":"+idempotencyKey]; ok {
			return id, nil
		}
	}
	id := "cs_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	s.sessions[id] = &checkoutSession{id: id, userID: userID, items: items}
	if idempotencyKey != "" {
		s.idempotency[userID+":"+idempotencyKey] = id
	}
	return id, nil
}

// CompleteSession marks the session paid, creates an order and empties
// the cart of its owner.
func (s *Store) CompleteSession(userID, sessionID string) (orderID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.sessions[sessionID]
	if !ok || cs.userID != userID {
		return "", ErrSessionNotFound
	}
	if cs.completed {
		return "", ErrSessionCompleted
	}
	cs.completed = true
	cs.orderID = uuid.NewString()
	delete(s.carts, userID)
	return cs.orderID, nil
}

// Sessions counts checkout sessions, completed or not.
func (s *Store) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
