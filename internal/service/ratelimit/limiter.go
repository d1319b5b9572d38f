package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned for tasks still queued when the limiter stops.
var ErrStopped = errors.New("ratelimit: limiter stopped")

// Limiter serializes request dispatch against a shared upstream rate budget:
// at most maxConcurrent calls in flight and at least minDelay between
// consecutive dispatch starts, both global. Waiting tasks are admitted in
// FIFO order by a single dispatcher goroutine.
type Limiter struct {
	minDelay time.Duration
	tasks    chan *task
	sem      chan struct{}

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type task struct {
	ctx  context.Context
	fn   func() error
	errc chan error
}

// New creates a started limiter.
func New(maxConcurrent int, minDelay time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	l := &Limiter{
		minDelay: minDelay,
		tasks:    make(chan *task, 1024),
		sem:      make(chan struct{}, maxConcurrent),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go l.dispatch()
	return l
}

// Do enqueues fn and blocks until it has run or ctx is done while still
// queued. Once dispatched, fn runs to completion regardless of ctx.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	t := &task{ctx: ctx, fn: fn, errc: make(chan error, 1)}
	select {
	case l.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stop:
		return ErrStopped
	}
	select {
	case err := <-t.errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the dispatcher down. Queued tasks that were not yet dispatched
// fail with ErrStopped.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}

func (l *Limiter) dispatch() {
	defer close(l.done)
	var last time.Time
	for {
		var t *task
		select {
		case <-l.stop:
			l.drain()
			return
		case t = <-l.tasks:
		}

		// skip tasks whose caller already gave up
		if t.ctx.Err() != nil {
			t.errc <- t.ctx.Err()
			continue
		}

		// spacing measured from the previous dispatch start
		if l.minDelay > 0 && !last.IsZero() {
			wait := l.minDelay - time.Since(last)
			if wait > 0 {
				select {
				case <-time.After(wait):
				case <-l.stop:
					t.errc <- ErrStopped
					l.drain()
					return
				}
			}
		}

		select {
		case l.sem <- struct{}{}:
		case <-l.stop:
			t.errc <- ErrStopped
			l.drain()
			return
		}

		last = time.Now()
		go func(t *task) {
			defer func() { <-l.sem }()
			t.errc <- t.fn()
		}(t)
	}
}

func (l *Limiter) drain() {
	for {
		select {
		case t := <-l.tasks:
			t.errc <- ErrStopped
		default:
			return
		}
	}
}
