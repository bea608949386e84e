package nickstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RedisStore keeps nicknames in Redis so several relay instances behind one
// address share them. Keys are prefix+host with a TTL. Concurrent recalls
// for one host share a single GET.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	group  singleflight.Group
}

// NewRedisStore creates a Redis-backed Store.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := NewRedisStore(client, "chat-relay:nick:", 10*time.Minute)
//
// Parameters:
//   - client: A connected go-redis client; closed by Close
//   - prefix: Key prefix for every host entry
//   - ttl: Lifetime of a remembered nickname
//
// Returns:
//   - A new *RedisStore
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Recall implements Store.
func (s *RedisStore) Recall(ctx context.Context, host string, fallback FallbackFunc) (string, error) {
	key := s.key(host)

	val, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.client.Get(ctx, key).Result()
	})
	if errors.Is(err, redis.Nil) {
		return fallback(), nil
	}

	if err != nil {
		return fallback(), fmt.Errorf("redis get error: %w", err)
	}

	if nick, _ := val.(string); nick != "" {
		return nick, nil
	}

	return fallback(), nil
}

// Remember implements Store.
func (s *RedisStore) Remember(ctx context.Context, host, nickname string) error {
	if nickname == "" {
		return ErrEmptyNickname
	}

	if err := s.client.Set(ctx, s.key(host), nickname, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}

	return nil
}

// Forget implements Store.
func (s *RedisStore) Forget(ctx context.Context, host string) error {
	if err := s.client.Del(ctx, s.key(host)).Err(); err != nil {
		return fmt.Errorf("redis del error: %w", err)
	}

	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(host string) string {
	return s.prefix + host
}
