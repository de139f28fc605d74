package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/storefront/internal/domain"
)

const (
	DefaultTTL       = 24 * time.Hour
	DefaultJitter    = time.Hour
	DefaultKeyPrefix = "storefront:cart:"
)

// RedisCache stores one JSON cart snapshot per user. Entries expire after
// the base TTL plus a random jitter so carts cached together do not all
// expire together.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	jitter time.Duration
	prefix string
}

type RedisOption func(*RedisCache)

// WithTTL sets the base expiry and the upper bound of the added jitter.
// A zero jitter gives every entry exactly ttl.
func WithTTL(ttl, jitter time.Duration) RedisOption {
	return func(r *RedisCache) {
		if ttl > 0 {
			r.ttl = ttl
		}
		if jitter >= 0 {
			r.jitter = jitter
		}
	}
}

// WithKeyPrefix namespaces the cart keys, e.g. per app instance sharing a Redis.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisCache) { r.prefix = prefix }
}

func NewRedisCache(client *redis.Client, opts ...RedisOption) *RedisCache {
	r := &RedisCache{
		client: client,
		ttl:    DefaultTTL,
		jitter: DefaultJitter,
		prefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisCache) Get(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	data, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CartSnapshot{}, ErrCacheMiss
	}
	if err != nil {
		return domain.CartSnapshot{}, fmt.Errorf("redis get cart %s: %w", userID, err)
	}

	var cart domain.CartSnapshot
	if err := json.Unmarshal(data, &cart); err != nil {
		return domain.CartSnapshot{}, fmt.Errorf("unmarshal cached cart: %w", err)
	}
	return cart, nil
}

func (r *RedisCache) Set(ctx context.Context, userID string, cart domain.CartSnapshot) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := r.client.Set(ctx, r.key(userID), data, r.expiry()).Err(); err != nil {
		return fmt.Errorf("redis set cart %s: %w", userID, err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete cart %s: %w", userID, err)
	}
	return nil
}

func (r *RedisCache) expiry() time.Duration {
	if r.jitter <= 0 {
		return r.ttl
	}
	return r.ttl + rand.N(r.jitter)
}

func (r *RedisCache) key(userID string) string {
	return r.prefix + userID
}
