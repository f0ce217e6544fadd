// Package lock provides named, timed mutual exclusion for scheduling objects.
//
// A lock is identified by a class (e.g. "ImplicitUIDLock") and a key (the iCalendar
// UID). Acquire waits at most the lock's timeout and then fails with ErrTimeout.
// Release is safe to call on a lock that was never acquired.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-multierror"
)

// ErrTimeout is returned by Acquire when the lock stayed busy for the whole timeout.
var ErrTimeout = errors.New("lock acquisition timed out")

// Locker is a single named lock.
type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// Factory creates locks.
type Factory interface {
	NewLock(class, key string, timeout time.Duration) Locker
}

// Release releases l and folds any release failure into err, so a failing
// cleanup never hides the error that caused it.
func Release(ctx context.Context, l Locker, err error) error {
	relErr := l.Release(ctx)
	if relErr == nil {
		return err
	}
	if err == nil {
		return relErr
	}
	return multierror.Flatten(multierror.Append(err, relErr))
}

func name(class, key string) string {
	return class + ":" + key
}
