// Package lock keeps materializer runs from overlapping.
package lock

import (
	"context"
	"time"
)

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out locks by key. TryAcquire returns (nil, nil) when the key
// is already held elsewhere.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}
