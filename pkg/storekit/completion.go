package storekit

import (
	"context"
	"sync/atomic"
	"time"
)

// Completion turns a delegate/callback-style completion into a single awaitable result.
// It must be created before the request it awaits is started. Only the first Resolve counts.
type Completion struct {
	done     chan struct{}
	consumed atomic.Bool
	err      error
}

// NewCompletion creates an unresolved completion gate.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Resolve completes the gate with err. It returns false if the gate was already resolved,
// in which case err is discarded.
func (c *Completion) Resolve(err error) bool {
	if !c.consumed.CompareAndSwap(false, true) {
		return false
	}
	c.err = err
	close(c.done)
	return true
}

// Resolved reports whether Resolve has been called.
func (c *Completion) Resolved() bool {
	return c.consumed.Load()
}

// Wait blocks until the gate is resolved, ctx is done or timeout elapses (timeout <= 0 waits forever).
func (c *Completion) Wait(ctx context.Context, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return ErrCompletionTimeout
	}
}
