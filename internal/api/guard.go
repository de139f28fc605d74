package api

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/alert"
)

// UnauthorizedHandler is told about every 401 the client receives.
type UnauthorizedHandler interface {
	Unauthorized(ctx context.Context)
}

// Guard turns a burst of 401 responses into a single logout and a single
// "session expired" alert. Further 401s are swallowed until the user
// acknowledges the alert and the settle delay has passed.
type Guard struct {
	mu       sync.Mutex
	active   bool
	episodes int

	onExpire func(ctx context.Context)
	notifier alert.Notifier
	settle   time.Duration
}

func NewGuard(notifier alert.Notifier, settle time.Duration) *Guard {
	return &Guard{notifier: notifier, settle: settle}
}

// OnExpire sets the logout callback run at the start of an episode.
func (g *Guard) OnExpire(fn func(ctx context.Context)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onExpire = fn
}

func (g *Guard) Unauthorized(ctx context.Context) {
	g.mu.Lock()
	if g.active {
		g.mu.Unlock()
		return
	}
	g.active = true
	g.episodes++
	onExpire := g.onExpire
	g.mu.Unlock()

	if onExpire != nil {
		onExpire(ctx)
	}
	if g.notifier != nil {
		g.notifier.Notify(ctx, alert.Alert{
			Title:         "Session Expired",
			Message:       "Please log in again.",
			Blocking:      true,
			OnAcknowledge: g.Acknowledge,
		})
	}
}

// Acknowledge re-arms the guard once the settle delay elapses.
func (g *Guard) Acknowledge() {
	if g.settle <= 0 {
		g.rearm()
		return
	}
	time.AfterFunc(g.settle, g.rearm)
}

func (g *Guard) rearm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
}

// Active reports whether an expiry episode is in progress.
func (g *Guard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Episodes counts how many expiry episodes have started.
func (g *Guard) Episodes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.episodes
}
