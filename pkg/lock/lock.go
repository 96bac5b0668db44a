package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when a lock for the requested scope is
// already held elsewhere and the caller should retry.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker serializes critical sections keyed by scope. Booking uses a
// doctor+date key, payment reconciliation a bill key. Keys are never
// nested, so lock ordering is trivially deadlock-free.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
