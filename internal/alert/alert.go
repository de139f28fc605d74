// Package alert carries user-visible notices from the core components to
// whatever presentation layer is attached.
package alert

import (
	"context"
	"log/slog"
	"sync"
)

type Alert struct {
	Title   string
	Message string
	// Blocking alerts must be acknowledged before the user continues.
	Blocking bool
	// OnAcknowledge runs when the user dismisses the alert.
	OnAcknowledge func()
}

// Acknowledge dismisses the alert.
func (a Alert) Acknowledge() {
	if a.OnAcknowledge != nil {
		a.OnAcknowledge()
	}
}

type Notifier interface {
	Notify(ctx context.Context, a Alert)
}

type NotifierFunc func(ctx context.Context, a Alert)

func (f NotifierFunc) Notify(ctx context.Context, a Alert) { f(ctx, a) }

// LogNotifier writes alerts to a logger. With AutoAcknowledge set every
// alert is dismissed as soon as it is logged, which suits headless use.
type LogNotifier struct {
	Log             *slog.Logger
	AutoAcknowledge bool
}

func (n LogNotifier) Notify(ctx context.Context, a Alert) {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	log.WarnContext(ctx, "alert", "title", a.Title, "message", a.Message, "blocking", a.Blocking)
	if n.AutoAcknowledge {
		a.Acknowledge()
	}
}

// Recorder keeps every alert it receives.
type Recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *Recorder) Notify(_ context.Context, a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// Last returns the most recent alert.
func (r *Recorder) Last() (Alert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.alerts) == 0 {
		return Alert{}, false
	}
	return r.alerts[len(r.alerts)-1], true
}
