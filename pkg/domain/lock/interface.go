// Package lock provides named, exclusive, non-blocking locks across processes.
package lock

import (
	"context"
)

// Release the lock. Calling it twice is harmless.
type Release func(context.Context) error

type Interface interface {
	// Acquire the lock of the name, without waiting.
	//
	// If someone else holds the lock, error is domain.ErrLocked.
	Acquire(ctx context.Context, name string) (Release, error)
}
