// Package nickstore remembers the nickname last used from a remote host so a
// client that reconnects shortly after leaving gets it back instead of a fresh
// guest name.
package nickstore

import (
	"context"
	"errors"
)

// ErrEmptyNickname is returned by Remember for an empty nickname.
var ErrEmptyNickname = errors.New("nickstore: empty nickname")

// FallbackFunc produces the nickname to use when nothing is remembered.
type FallbackFunc func() string

// Store is a host-keyed nickname memory. Implementations must be safe for
// concurrent use.
type Store interface {
	// Recall returns the nickname remembered for host. On a miss it returns
	// fallback() without remembering it; only Remember writes.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - host: The remote host, without port
	//   - fallback: Produces a nickname on a miss
	//
	// Returns:
	//   - The nickname to use; never empty when fallback never returns ""
	//   - An error if the backend failed; the returned nickname is then the fallback
	Recall(ctx context.Context, host string, fallback FallbackFunc) (string, error)

	// Remember stores nickname for host, replacing any previous value and
	// restarting its expiry.
	Remember(ctx context.Context, host, nickname string) error

	// Forget drops whatever is remembered for host.
	Forget(ctx context.Context, host string) error

	// Close releases backend resources.
	Close() error
}

type nopStore struct{}

// NewNopStore returns a Store that remembers nothing: Recall always returns
// the fallback.
func NewNopStore() Store {
	return nopStore{}
}

func (nopStore) Recall(_ context.Context, _ string, fallback FallbackFunc) (string, error) {
	return fallback(), nil
}

func (nopStore) Remember(context.Context, string, string) error { return nil }

func (nopStore) Forget(context.Context, string) error { return nil }

func (nopStore) Close() error { return nil }
