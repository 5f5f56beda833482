// Package gate serializes every stock-mutating operation behind one named lock.
package gate

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when the lock could not be taken within the wait bound.
// Nothing has been mutated when it is returned; callers may retry.
var ErrTimeout = errors.New("gate: lock wait timed out")

// Gate is a system-wide mutual-exclusion section.
type Gate interface {
	// Acquire blocks up to wait (or until ctx is done). The returned release
	// must be called exactly once; calling it more than once is a no-op.
	Acquire(ctx context.Context, wait time.Duration) (release func(), err error)
}

// Local is a single-process gate backed by a one-slot channel.
type Local struct {
	slot chan struct{}
}

func NewLocal() *Local {
	return &Local{slot: make(chan struct{}, 1)}
}

func (g *Local) Acquire(ctx context.Context, wait time.Duration) (func(), error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case g.slot <- struct{}{}:
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var released bool
	return func() {
		if released {
			return
		}
		released = true
		<-g.slot
	}, nil
}
