// Package catalog holds the paginated, category-filtered product feed.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/fjod/storefront/internal/alert"
	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/domain"
)

const DefaultPageSize = 6

// Remote is the catalog service the feed pages through.
type Remote interface {
	Featured(ctx context.Context, page, limit int, category string) (domain.CatalogPage, error)
	Product(ctx context.Context, id string) (domain.ProductSummary, error)
}

type Feed struct {
	mu         sync.RWMutex
	category   string
	page       int
	hasMore    bool
	inflight   int
	searchText string
	// generation changes whenever the accumulated collection is discarded.
	generation uint64

	byID  map[string]domain.ProductSummary
	order []string

	remote   Remote
	pageSize int
	notifier alert.Notifier
	log      *slog.Logger
}

type Option func(*Feed)

func WithPageSize(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.pageSize = n
		}
	}
}

func WithNotifier(n alert.Notifier) Option {
	return func(f *Feed) { f.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Feed) { f.log = l }
}

func NewFeed(remote Remote, opts ...Option) *Feed {
	f := &Feed{
		category: domain.AllCategories,
		byID:     make(map[string]domain.ProductSummary),
		remote:   remote,
		pageSize: DefaultPageSize,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.notifier == nil {
		f.notifier = alert.LogNotifier{Log: f.log, AutoAcknowledge: true}
	}
	return f
}

// FetchPage requests one page for category. Page 1 or a refresh replaces the
// collection; later pages are merged by product id, last write wins.
func (f *Feed) FetchPage(ctx context.Context, page int, refresh bool, category string) error {
	if category == "" {
		category = domain.AllCategories
	}
	f.mu.Lock()
	f.inflight++
	gen := f.generation
	f.mu.Unlock()

	return f.fetch(ctx, page, refresh, category, gen)
}

// fetch runs a request already counted in inflight, started at generation gen.
func (f *Feed) fetch(ctx context.Context, page int, refresh bool, category string, gen uint64) error {
	replace := page <= 1 || refresh
	if page < 1 {
		page = 1
	}

	result, err := f.remote.Featured(ctx, page, f.pageSize, category)

	f.mu.Lock()
	f.inflight--
	if err != nil {
		f.mu.Unlock()
		f.fail(ctx, "fetch products", err)
		return fmt.Errorf("fetch page %d of %s: %w", page, category, err)
	}

	if f.generation != gen && f.category != category {
		f.mu.Unlock()
		f.log.DebugContext(ctx, "discarding stale page", "category", category, "page", page)
		return nil
	}
	switch {
	case replace:
		if f.category != category {
			f.category = category
			f.searchText = ""
		}
		f.byID = make(map[string]domain.ProductSummary, len(result.Products))
		f.order = f.order[:0]
		f.generation++
	case f.category != category:
		f.mu.Unlock()
		f.log.DebugContext(ctx, "discarding page for inactive category", "category", category, "page", page)
		return nil
	}
	f.merge(result.Products)
	f.page = page
	f.hasMore = page < result.TotalPages
	f.mu.Unlock()

	f.log.DebugContext(ctx, "fetched page", "category", category, "page", page, "total_pages", result.TotalPages, "received", len(result.Products))
	return nil
}

// merge must run with mu held.
func (f *Feed) merge(products []domain.ProductSummary) {
	for _, p := range products {
		if _, seen := f.byID[p.ID]; !seen {
			f.order = append(f.order, p.ID)
		}
		f.byID[p.ID] = p
	}
}

// SearchLocally filters the already loaded products. It never calls the backend.
func (f *Feed) SearchLocally(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchText = strings.TrimSpace(text)
}

// SelectCategory switches the server-side filter and reloads from page 1.
func (f *Feed) SelectCategory(ctx context.Context, category string) error {
	if category == "" {
		category = domain.AllCategories
	}

	f.mu.Lock()
	if category == f.category {
		f.mu.Unlock()
		return nil
	}
	f.category = category
	f.searchText = ""
	f.page = 1
	f.hasMore = false
	f.byID = make(map[string]domain.ProductSummary)
	f.order = nil
	f.generation++
	f.mu.Unlock()

	return f.FetchPage(ctx, 1, false, category)
}

// LoadMore fetches the next page unless the feed is exhausted, already
// loading, or filtered by a local search.
func (f *Feed) LoadMore(ctx context.Context) error {
	f.mu.Lock()
	if !f.hasMore || f.inflight > 0 || f.searchText != "" {
		f.mu.Unlock()
		return nil
	}
	next, category, gen := f.page+1, f.category, f.generation
	f.inflight++
	f.mu.Unlock()

	return f.fetch(ctx, next, false, category, gen)
}

func (f *Feed) Refresh(ctx context.Context) error {
	return f.FetchPage(ctx, 1, true, f.Category())
}

// Products is the visible list: the loaded products of the active category
// that match the search text, in first-seen order.
func (f *Feed) Products() []domain.ProductSummary {
	f.mu.RLock()
	defer f.mu.RUnlock()

	needle := strings.ToLower(f.searchText)
	out := make([]domain.ProductSummary, 0, len(f.order))
	for _, id := range f.order {
		p := f.byID[id]
		if f.category != domain.AllCategories && !strings.EqualFold(p.Category, f.category) {
			continue
		}
		if needle != "" && !matches(p, needle) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matches(p domain.ProductSummary, needle string) bool {
	return strings.Contains(strings.ToLower(p.Name), needle) ||
		strings.Contains(strings.ToLower(p.Description), needle) ||
		strings.Contains(strings.ToLower(p.Category), needle)
}

func (f *Feed) Category() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.category
}

func (f *Feed) Page() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.page
}

func (f *Feed) HasMore() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.hasMore
}

func (f *Feed) Loading() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.inflight > 0
}

func (f *Feed) SearchText() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.searchText
}

// Len is the number of loaded products, ignoring the search filter.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.order)
}

// Reset returns the feed to its initial state.
func (f *Feed) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.category = domain.AllCategories
	f.page = 0
	f.hasMore = false
	f.searchText = ""
	f.byID = make(map[string]domain.ProductSummary)
	f.order = nil
	f.generation++
}

// fail surfaces err to the user. Authorization failures are left to the
// session guard.
func (f *Feed) fail(ctx context.Context, op string, err error) {
	f.log.ErrorContext(ctx, op+" failed", "error", err)
	if api.IsAuth(err) {
		return
	}
	f.notifier.Notify(ctx, alert.Alert{Title: "Error", Message: api.UserMessage(err)})
}
