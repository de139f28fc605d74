package cache

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
)

// CartCache keeps the last committed cart of a user so a new session can
// show it before the first fetch completes.
type CartCache interface {
	Get(ctx context.Context, userID string) (domain.CartSnapshot, error)
	Set(ctx context.Context, userID string, cart domain.CartSnapshot) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")
