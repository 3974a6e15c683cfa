package storekit

import (
	"context"
	"sync"
)

// Dispatcher runs submitted functions one at a time, in submission order, on a single
// goroutine. It is the designated context for every call that crosses into foreign code.
type Dispatcher struct {
	queue    chan func()
	shutdown chan struct{}
	stopped  chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// NewDispatcher starts a dispatcher with the given queue buffer (minimum 1).
func NewDispatcher(buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	d := &Dispatcher{
		queue:    make(chan func(), buffer),
		shutdown: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	d.start()
	return d
}

func (d *Dispatcher) start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(d.stopped)
		for {
			select {
			case job := <-d.queue:
				job()
			case <-d.shutdown:
				// Drain what was accepted before shutdown
				for {
					select {
					case job := <-d.queue:
						job()
					default:
						return
					}
				}
			}
		}
	}()
}

// Do runs fn on the dispatcher and waits for it to return.
// Must not be called from a function already running on the dispatcher.
func (d *Dispatcher) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn()
	}

	select {
	case <-d.shutdown:
		return ErrDispatcherClosed
	default:
	}

	select {
	case d.queue <- job:
	case <-d.shutdown:
		return ErrDispatcherClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once accepted the job runs even if the caller stops waiting.
	select {
	case <-finished:
		return nil
	case <-d.stopped:
		select {
		case <-finished:
			return nil
		default:
			return ErrDispatcherClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go enqueues fn without waiting for it to run.
func (d *Dispatcher) Go(fn func()) error {
	select {
	case <-d.shutdown:
		return ErrDispatcherClosed
	default:
	}

	select {
	case d.queue <- fn:
		return nil
	case <-d.shutdown:
		return ErrDispatcherClosed
	}
}

// TryGo enqueues fn only if the queue has room. It never blocks, so it is safe to call
// from a function running on the dispatcher.
func (d *Dispatcher) TryGo(fn func()) bool {
	select {
	case <-d.shutdown:
		return false
	default:
	}

	select {
	case d.queue <- fn:
		return true
	default:
		return false
	}
}

// Close stops accepting work, runs everything already queued and waits for the worker to exit.
func (d *Dispatcher) Close() error {
	d.once.Do(func() {
		close(d.shutdown)
	})
	d.wg.Wait()
	return nil
}
