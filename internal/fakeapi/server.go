package fakeapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fjod/storefront/internal/events"
)

// Outbox receives completed checkouts.
type Outbox interface {
	CheckoutCompleted(ctx context.Context, event events.CheckoutCompleted) error
}

type Server struct {
	store   *Store
	tokens  *Tokens
	outbox  Outbox
	log     *slog.Logger
	timeout time.Duration
	// publishableKey is echoed in payment sheets.
	publishableKey string
}

type Option func(*Server)

func WithOutbox(o Outbox) Option {
	return func(s *Server) { s.outbox = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

func NewServer(store *Store, tokens *Tokens, opts ...Option) *Server {
	s := &Server{
		store:          store,
		tokens:         tokens,
		log:            slog.Default(),
		timeout:        30 * time.Second,
		publishableKey: "pk_test_storefront",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Store() *Store { return s.store }

// Routes builds the REST surface of the backend.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.login)
			r.Post("/signup", s.signup)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/featured", s.featured)
			r.Get("/{id}", s.product)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.AuthMiddleware)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", s.getCart)
				r.Post("/", s.addToCart)
				r.Delete("/", s.clearCart)
				r.Delete("/{id}", s.removeFromCart)
				r.Patch("/{id}/increment", s.changeQuantity(1))
				r.Patch("/{id}/decrement", s.changeQuantity(-1))
			})

			r.Route("/payment", func(r chi.Router) {
				r.Post("/payment-sheet", s.paymentSheet)
				r.Post("/create-checkout-session", s.createCheckoutSession)
				r.Post("/checkout-success", s.checkoutSuccess)
			})
		})
	})

	return r
}
