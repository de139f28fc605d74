package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/storefront/internal/domain"
)

// RedisStore keeps the token and user under two keys, mirroring the
// key/value layout of device storage.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "session"
	}
	return &RedisStore{client: client, namespace: namespace}
}

func (r *RedisStore) tokenKey() string { return r.namespace + ":token" }
func (r *RedisStore) userKey() string  { return r.namespace + ":user" }

func (r *RedisStore) Load(ctx context.Context) (domain.Session, error) {
	vals, err := r.client.MGet(ctx, r.tokenKey(), r.userKey()).Result()
	if err != nil {
		return domain.Session{}, fmt.Errorf("redis mget failed: %w", err)
	}

	token, _ := vals[0].(string)
	if token == "" {
		return domain.Session{}, ErrNoSession
	}
	s := domain.Session{Token: token}
	if raw, ok := vals[1].(string); ok && raw != "" {
		var u domain.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return domain.Session{}, fmt.Errorf("unmarshal user failed: %w", err)
		}
		s.User = &u
	}
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, s domain.Session) error {
	var user []byte
	if s.User != nil {
		var err error
		if user, err = json.Marshal(s.User); err != nil {
			return fmt.Errorf("marshal user failed: %w", err)
		}
	}

	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.tokenKey(), s.Token, 0)
		if user != nil {
			p.Set(ctx, r.userKey(), user, 0)
		} else {
			p.Del(ctx, r.userKey())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.tokenKey(), r.userKey()).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
