package nickstore

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps nicknames in process memory with go-cache handling
// expiry. It serves a single relay instance.
type MemoryStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewMemoryStore creates a MemoryStore whose entries expire ttl after they
// were last remembered. Expired entries are purged every ttl.
//
// Parameters:
//   - ttl: Lifetime of a remembered nickname; must be positive
//
// Returns:
//   - A new *MemoryStore
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: cache.New(ttl, ttl),
		ttl:   ttl,
	}
}

// Recall implements Store.
func (s *MemoryStore) Recall(ctx context.Context, host string, fallback FallbackFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return fallback(), err
	}

	if nick, ok := s.lookup(host); ok {
		return nick, nil
	}

	return fallback(), nil
}

// Remember implements Store.
func (s *MemoryStore) Remember(_ context.Context, host, nickname string) error {
	if nickname == "" {
		return ErrEmptyNickname
	}

	s.cache.Set(host, nickname, s.ttl)
	return nil
}

// Forget implements Store.
func (s *MemoryStore) Forget(_ context.Context, host string) error {
	s.cache.Delete(host)
	return nil
}

// Len returns the number of entries, counting expired ones not yet purged.
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.cache.Flush()
	return nil
}

func (s *MemoryStore) lookup(host string) (string, bool) {
	val, found := s.cache.Get(host)
	if !found {
		return "", false
	}

	nick, ok := val.(string)
	return nick, ok && nick != ""
}
