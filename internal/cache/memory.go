package cache

import (
	"context"
	"sync"

	"github.com/fjod/storefront/internal/domain"
)

// MemoryCache is a process-local CartCache.
type MemoryCache struct {
	mu    sync.RWMutex
	carts map[string]domain.CartSnapshot
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{carts: make(map[string]domain.CartSnapshot)}
}

func (m *MemoryCache) Get(_ context.Context, userID string) (domain.CartSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cart, ok := m.carts[userID]
	if !ok {
		return domain.CartSnapshot{}, ErrCacheMiss
	}
	return cart.Clone(), nil
}

func (m *MemoryCache) Set(_ context.Context, userID string, cart domain.CartSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[userID] = cart.Clone()
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	return nil
}
