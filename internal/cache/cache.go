// Package cache defines the cache collaborator surface used by the domain
// services. The cache is an optimization, not a correctness dependency:
// callers are expected to log failures and carry on.
package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrMiss is returned by Get when the key is not present.
var ErrMiss = errors.New("cache miss")

// Cache provides best-effort get/set/invalidate-by-pattern with TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// InvalidateByPattern removes every key matching the glob-style pattern,
	// e.g. "windows:point:p1:*".
	InvalidateByPattern(ctx context.Context, pattern string) error
}
