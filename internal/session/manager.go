// Package session owns the signed-in identity: the bearer token and user
// that every remote call depends on, and its persistence between launches.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fjod/storefront/internal/domain"
)

// Authenticator exchanges credentials for a session.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (domain.Session, error)
	Register(ctx context.Context, name, email, password string) (domain.Session, error)
}

type Manager struct {
	mu          sync.RWMutex
	current     domain.Session
	initialized bool
	onLogout    []func(ctx context.Context)

	store Store
	auth  Authenticator
	log   *slog.Logger
	now   func() time.Time
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store Store, auth Authenticator, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		auth:  auth,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetAuthenticator replaces the credential exchange. The HTTP client needs
// the manager as its token source, so the two are wired after construction.
func (m *Manager) SetAuthenticator(auth Authenticator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auth = auth
}

// Restore loads the persisted session. A stored JWT that has already
// expired is discarded instead of restored.
func (m *Manager) Restore(ctx context.Context) error {
	s, err := m.store.Load(ctx)
	if err != nil && !errors.Is(err, ErrNoSession) {
		m.log.ErrorContext(ctx, "restore session failed", "error", err)
		m.setCurrent(domain.Session{}, true)
		return fmt.Errorf("restore session: %w", err)
	}

	if err == nil && tokenExpired(s.Token, m.now()) {
		m.log.InfoContext(ctx, "stored session expired, clearing")
		if err := m.store.Clear(ctx); err != nil {
			m.log.ErrorContext(ctx, "clear expired session failed", "error", err)
		}
		s = domain.Session{}
	}

	m.setCurrent(s, true)
	return nil
}

func (m *Manager) Login(ctx context.Context, email, password string) error {
	auth := m.authenticator()
	if auth == nil {
		return errors.New("login: no authenticator configured")
	}
	s, err := auth.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return m.establish(ctx, s)
}

func (m *Manager) Register(ctx context.Context, name, email, password string) error {
	auth := m.authenticator()
	if auth == nil {
		return errors.New("register: no authenticator configured")
	}
	s, err := auth.Register(ctx, name, email, password)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return m.establish(ctx, s)
}

func (m *Manager) establish(ctx context.Context, s domain.Session) error {
	if !s.Authenticated() {
		return errors.New("backend returned an empty token")
	}
	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	m.setCurrent(s, true)
	if s.User != nil {
		m.log.InfoContext(ctx, "signed in", "user_id", s.User.ID)
	}
	return nil
}

// Logout clears the persisted and in-memory session and runs the logout hooks.
// The in-memory session is dropped even when the store fails.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.store.Clear(ctx)
	if err != nil {
		m.log.ErrorContext(ctx, "clear session failed", "error", err)
	}

	m.mu.Lock()
	m.current = domain.Session{}
	hooks := make([]func(context.Context), len(m.onLogout))
	copy(hooks, m.onLogout)
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(ctx)
	}
	return err
}

// Expire is the logout triggered by an authorization failure.
func (m *Manager) Expire(ctx context.Context) {
	m.log.WarnContext(ctx, "session expired")
	_ = m.Logout(ctx)
}

// OnLogout registers fn to run after every logout or expiry.
func (m *Manager) OnLogout(fn func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLogout = append(m.onLogout, fn)
}

func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Token
}

func (m *Manager) User() *domain.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current.User == nil {
		return nil
	}
	u := *m.current.User
	return &u
}

// UserID is "" when nobody is signed in.
func (m *Manager) UserID() string {
	if u := m.User(); u != nil {
		return u.ID
	}
	return ""
}

func (m *Manager) Authenticated() bool {
	return m.Token() != ""
}

// Initialized reports whether Restore or a sign-in has completed.
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

func (m *Manager) authenticator() Authenticator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.auth
}

func (m *Manager) setCurrent(s domain.Session, initialized bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = copySession(s)
	m.initialized = initialized
}

// tokenExpired reads the exp claim without verifying the signature; the
// backend stays the authority. Opaque tokens never count as expired.
func tokenExpired(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
