package lock

import (
	"context"
	"errors"
)

// ErrHeld is returned when the lock is already held by another party.
var ErrHeld = errors.New("lock already held")

// Locker serializes runs that touch the same shared tables, e.g. a scheduled
// sync overlapping a manually-triggered one. Acquire returns an unlock
// function that is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}
