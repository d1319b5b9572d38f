package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiterCapsConcurrency(t *testing.T) {
	l := New(10, 0)
	defer l.Stop()

	var inFlight, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func() error {
				n := atomic.AddInt64(&inFlight, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&peak); got > 10 {
		t.Fatalf("peak concurrency %d exceeded the cap of 10", got)
	}
}

func TestLimiterMinSpacing(t *testing.T) {
	const delay = 30 * time.Millisecond
	l := New(5, delay)
	defer l.Stop()

	var mu sync.Mutex
	var starts []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func() error {
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(starts) != 4 {
		t.Fatalf("expected 4 runs, got %d", len(starts))
	}
	// the total span must cover the mandatory spacing between dispatch starts
	first, last := starts[0], starts[0]
	for _, s := range starts[1:] {
		if s.Before(first) {
			first = s
		}
		if s.After(last) {
			last = s
		}
	}
	if span := last.Sub(first); span < 3*delay-5*time.Millisecond {
		t.Fatalf("4 dispatches spanned %v, want at least ~%v", span, 3*delay)
	}
}

func TestLimiterFIFO(t *testing.T) {
	l := New(1, time.Millisecond)
	defer l.Stop()

	var mu sync.Mutex
	var order []int

	// occupy the single slot so later submissions pile up in the queue
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = l.Do(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func() error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		// stagger submissions so queue order matches i
		time.Sleep(10 * time.Millisecond)
	}
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i {
			t.Fatalf("admission order %v is not FIFO", order)
		}
	}
}

func TestLimiterContextCancelledWhileQueued(t *testing.T) {
	l := New(1, 0)
	defer l.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = l.Do(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Do(ctx, func() error { return nil })
	close(release)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLimiterStopFailsQueued(t *testing.T) {
	l := New(1, time.Hour) // spacing so the second task stays queued

	first := make(chan struct{})
	go func() {
		_ = l.Do(context.Background(), func() error {
			close(first)
			return nil
		})
	}()
	<-first

	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Do(context.Background(), func() error { return nil })
	}()
	time.Sleep(20 * time.Millisecond)
	l.Stop()

	if err := <-errCh; !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped for queued task, got %v", err)
	}
}

func TestLimiterSurfacesTaskError(t *testing.T) {
	l := New(2, 0)
	defer l.Stop()

	boom := errors.New("boom")
	if err := l.Do(context.Background(), func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected task error, got %v", err)
	}
}
