// Package cart keeps the local view of the shopping cart consistent with
// the remote cart service while applying mutations optimistically.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
)

// Remote is the cart service the state reconciles with.
type Remote interface {
	Get(ctx context.Context) (domain.CartSnapshot, error)
	Add(ctx context.Context, productID string) error
	Remove(ctx context.Context, productID string) error
	Increment(ctx context.Context, productID string) error
	Decrement(ctx context.Context, productID string) error
	Clear(ctx context.Context) error
}

type State struct {
	mu       sync.RWMutex
	snapshot domain.CartSnapshot
	// committed is snapshot minus mutations the server has not confirmed.
	committed domain.CartSnapshot
	// epoch changes on Reset; results of calls started before it are dropped.
	epoch uint64
	// fetchSeq numbers Get calls in start order; installed is the newest
	// one whose result reached the snapshot.
	fetchSeq  atomic.Uint64
	installed uint64

	remote  Remote
	sfg     singleflight.Group
	pending atomic.Int32
	queue   *mutationQueue

	cache   cache.CartCache
	userKey func() string

	subMu  sync.Mutex
	subs   map[int]func(domain.CartSnapshot)
	nextID int

	log *slog.Logger
}

type Option func(*State)

// WithSerializedMutations allows one in-flight mutation per product;
// ClearCart waits for all of them.
func WithSerializedMutations() Option {
	return func(s *State) { s.queue = newMutationQueue() }
}

// WithCache stores committed snapshots under the key returned by userKey.
// An empty key disables caching for that call.
func WithCache(c cache.CartCache, userKey func() string) Option {
	return func(s *State) {
		s.cache = c
		s.userKey = userKey
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *State) { s.log = l }
}

func New(remote Remote, opts ...Option) *State {
	s := &State{
		remote:   remote,
		snapshot:  domain.NewCartSnapshot(nil),
		committed: domain.NewCartSnapshot(nil),
		subs:     make(map[int]func(domain.CartSnapshot)),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current state, optimistic changes included.
func (s *State) Snapshot() domain.CartSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Clone()
}

// Pending is the number of optimistic mutations awaiting the server.
func (s *State) Pending() int {
	return int(s.pending.Load())
}

// Subscribe registers fn for every local state change. The returned func
// removes it.
func (s *State) Subscribe(fn func(domain.CartSnapshot)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

type fetchResult struct {
	cart domain.CartSnapshot
	seq  uint64
}

// FetchCart replaces the local snapshot with the server cart. Concurrent
// calls share one request.
func (s *State) FetchCart(ctx context.Context) error {
	return s.fetch(ctx, true)
}

// fetch reads the server cart. A result is dropped when the state was reset
// meanwhile or a Get started later has already been installed. Unshared
// fetches never join a request started before the caller's write.
func (s *State) fetch(ctx context.Context, shared bool) error {
	epoch := s.currentEpoch()
	get := func() (interface{}, error) {
		seq := s.fetchSeq.Add(1)
		cart, err := s.remote.Get(ctx)
		return fetchResult{cart: cart, seq: seq}, err
	}

	var (
		v   interface{}
		err error
	)
	if shared {
		v, err, _ = s.sfg.Do("cart", get)
	} else {
		v, err = get()
	}
	if err != nil {
		s.log.ErrorContext(ctx, "fetch cart failed", "error", err)
		return fmt.Errorf("fetch cart: %w", err)
	}

	res := v.(fetchResult)
	fetched := res.cart.Clone()
	if !s.install(fetched, res.seq, epoch) {
		s.log.DebugContext(ctx, "dropping superseded cart fetch", "seq", res.seq)
		return nil
	}
	s.store(ctx, fetched)
	return nil
}

// AddToCart asks the server to add one unit, then resyncs. The server
// decides whether the product becomes a new line.
func (s *State) AddToCart(ctx context.Context, productID string) error {
	if err := s.remote.Add(ctx, productID); err != nil {
		s.log.ErrorContext(ctx, "add to cart failed", "product_id", productID, "error", err)
		return fmt.Errorf("add %s: %w", productID, err)
	}
	return s.fetch(ctx, false)
}

func (s *State) RemoveFromCart(ctx context.Context, productID string) error {
	return s.mutate(ctx, "remove", productID,
		func(c domain.CartSnapshot) domain.CartSnapshot { return c.Without(productID) },
		func(ctx context.Context) error { return s.remote.Remove(ctx, productID) },
	)
}

func (s *State) IncrementQuantity(ctx context.Context, productID string) error {
	return s.mutate(ctx, "increment", productID,
		func(c domain.CartSnapshot) domain.CartSnapshot { return c.WithQuantityDelta(productID, 1) },
		func(ctx context.Context) error { return s.remote.Increment(ctx, productID) },
	)
}

// DecrementQuantity removes the line once its quantity would reach zero.
func (s *State) DecrementQuantity(ctx context.Context, productID string) error {
	return s.mutate(ctx, "decrement", productID,
		func(c domain.CartSnapshot) domain.CartSnapshot { return c.WithQuantityDelta(productID, -1) },
		func(ctx context.Context) error { return s.remote.Decrement(ctx, productID) },
	)
}

func (s *State) ClearCart(ctx context.Context) error {
	return s.mutate(ctx, "clear", "",
		func(domain.CartSnapshot) domain.CartSnapshot { return domain.NewCartSnapshot(nil) },
		func(ctx context.Context) error { return s.remote.Clear(ctx) },
	)
}

// Reset drops local state without contacting the server.
func (s *State) Reset(ctx context.Context) {
	empty := domain.NewCartSnapshot(nil)
	s.mu.Lock()
	s.snapshot = empty.Clone()
	s.committed = empty.Clone()
	s.epoch++
	s.mu.Unlock()
	s.notify(empty)

	if key := s.cacheKey(); key != "" {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := s.cache.Delete(ctx, key); err != nil {
			s.log.WarnContext(ctx, "cache invalidate error", "error", err)
		}
	}
}

// Warm seeds the state from the cache. It reports whether a cached cart
// was found.
func (s *State) Warm(ctx context.Context) bool {
	key := s.cacheKey()
	if key == "" {
		return false
	}
	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.WarnContext(ctx, "cache get error", "error", err)
		}
		return false
	}
	s.mu.Lock()
	s.snapshot = cached.Clone()
	s.committed = cached.Clone()
	s.mu.Unlock()
	s.notify(cached)
	return true
}

// mutate runs one optimistic mutation: capture, apply, call, then keep or
// restore the captured snapshot.
func (s *State) mutate(ctx context.Context, op, productID string,
	apply func(domain.CartSnapshot) domain.CartSnapshot,
	call func(context.Context) error,
) error {
	if s.queue != nil {
		release := s.queue.acquire(productID)
		defer release()
	}

	s.pending.Add(1)
	defer s.pending.Add(-1)

	s.mu.Lock()
	captured := s.snapshot.Clone()
	epoch := s.epoch
	s.snapshot = apply(captured.Clone())
	applied := s.snapshot.Clone()
	s.mu.Unlock()
	s.notify(applied)

	if err := call(ctx); err != nil {
		s.log.ErrorContext(ctx, op+" failed, rolling back", "product_id", productID, "error", err)
		s.replaceIf(captured, epoch)
		if productID == "" {
			return fmt.Errorf("%s: %w", op, err)
		}
		return fmt.Errorf("%s %s: %w", op, productID, err)
	}

	if committed, ok := s.commit(apply, epoch); ok {
		s.store(ctx, committed)
	}
	return nil
}

// commit applies a confirmed mutation to the committed snapshot.
func (s *State) commit(apply func(domain.CartSnapshot) domain.CartSnapshot, epoch uint64) (domain.CartSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return domain.CartSnapshot{}, false
	}
	s.committed = apply(s.committed.Clone())
	return s.committed.Clone(), true
}

func (s *State) currentEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// replaceIf installs next unless the state was reset after epoch.
func (s *State) replaceIf(next domain.CartSnapshot, epoch uint64) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	s.snapshot = next.Clone()
	s.mu.Unlock()
	s.notify(next.Clone())
	return true
}

// install replaces both snapshots with a server cart read by Get number seq.
func (s *State) install(next domain.CartSnapshot, seq, epoch uint64) bool {
	s.mu.Lock()
	if s.epoch != epoch || seq < s.installed {
		s.mu.Unlock()
		return false
	}
	s.installed = seq
	s.snapshot = next.Clone()
	s.committed = next.Clone()
	s.mu.Unlock()
	s.notify(next.Clone())
	return true
}

func (s *State) notify(snap domain.CartSnapshot) {
	s.subMu.Lock()
	fns := make([]func(domain.CartSnapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap.Clone())
	}
}

func (s *State) cacheKey() string {
	if s.cache == nil || s.userKey == nil {
		return ""
	}
	return s.userKey()
}

func (s *State) store(ctx context.Context, snap domain.CartSnapshot) {
	key := s.cacheKey()
	if key == "" || !snap.Consistent() {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, key, snap); err != nil {
		s.log.WarnContext(ctx, "cache set error", "error", err)
	}
}
