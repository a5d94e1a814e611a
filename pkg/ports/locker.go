package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock obtained from a DistributedLocker.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes the read-modify-write of one conversation
// across replicas. The engine is pure, but two turns for the same conversation
// must never load the same stored context concurrently.
type DistributedLocker interface {
	// Lock blocks until the lock for key (a conversation ID) is held or ctx is done.
	// The lock expires after ttl if never released. The returned UnlockFunc must be called.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
