package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"SwingScan/internal/domain/models"
	xlogger "SwingScan/pkg/logger"
)

func newTestLogger(t *testing.T) *xlogger.Logger {
	t.Helper()
	log, err := xlogger.New(&xlogger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// metricsStub counts recorded errors and remembers last prices.
type metricsStub struct {
	mu     sync.Mutex
	errors map[string]int
	prices map[string]float64
	evals  int
}

func newMetricsStub() *metricsStub {
	return &metricsStub{errors: make(map[string]int), prices: make(map[string]float64)}
}

func (m *metricsStub) RecordScanCycle(string, float64) {}
func (m *metricsStub) RecordEvaluation(string) {
	m.mu.Lock()
	m.evals++
	m.mu.Unlock()
}
func (m *metricsStub) RecordSetupEvent(string, string) {}
func (m *metricsStub) RecordActiveSetups(string, string, int) {}
func (m *metricsStub) RecordFetch(string, float64) {}
func (m *metricsStub) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}
func (m *metricsStub) RecordLastPrice(symbol string, price float64) {
	m.mu.Lock()
	m.prices[symbol] = price
	m.mu.Unlock()
}

func (m *metricsStub) lastPrice(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prices[symbol]
}

func (m *metricsStub) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

// scriptedStream fails its first read generation after one tick; later
// generations deliver a second tick and stay open.
type scriptedStream struct {
	mu         sync.Mutex
	reads      int
	reconnects int
	connected  bool
}

func (s *scriptedStream) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *scriptedStream) Subscribe(context.Context, []string) error { return nil }

func (s *scriptedStream) Read(context.Context) (<-chan *models.PriceTick, <-chan error) {
	s.mu.Lock()
	s.reads++
	gen := s.reads
	s.mu.Unlock()

	ticks := make(chan *models.PriceTick, 4)
	errs := make(chan error, 1)
	if gen == 1 {
		ticks <- &models.PriceTick{Symbol: "BTCUSDT", Price: 100, Timestamp: time.Now().Unix()}
		errs <- fmt.Errorf("connection reset")
		close(ticks)
		close(errs)
	} else {
		ticks <- &models.PriceTick{Symbol: "BTCUSDT", Price: 200, Timestamp: time.Now().Unix()}
	}
	return ticks, errs
}

func (s *scriptedStream) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	s.connected = true
	return nil
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *scriptedStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *scriptedStream) counts() (reads, reconnects int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.reconnects
}

func TestPriceFeedReconnectResumesTicks(t *testing.T) {
	stream := &scriptedStream{}
	metrics := newMetricsStub()
	tracker := NewTracker(testTrackerConfig(), nil)
	feed := NewPriceFeed(stream, tracker, metrics, newTestLogger(t), func() []string {
		return []string{"BTCUSDT"}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.Start(ctx)
	defer feed.Stop()

	// the tick after the failed generation proves consumption resumed on
	// fresh channels
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if metrics.lastPrice("BTCUSDT") == 200 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := metrics.lastPrice("BTCUSDT"); got != 200 {
		t.Fatalf("last price = %v, want 200 from the post-reconnect generation", got)
	}

	reads, reconnects := stream.counts()
	if reads < 2 {
		t.Fatalf("Read called %d times, want a fresh generation after reconnect", reads)
	}
	if reconnects < 1 {
		t.Fatalf("Reconnect never called")
	}
	if metrics.errorCount("stream") < 1 {
		t.Fatalf("stream error not recorded")
	}
}

func TestPriceFeedStopEndsConsumption(t *testing.T) {
	stream := &scriptedStream{}
	metrics := newMetricsStub()
	tracker := NewTracker(testTrackerConfig(), nil)
	feed := NewPriceFeed(stream, tracker, metrics, newTestLogger(t), func() []string {
		return []string{"BTCUSDT"}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.Start(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if reads, _ := stream.counts(); reads >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := feed.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stream.IsConnected() {
		t.Fatalf("stream still connected after Stop")
	}
	reads, _ := stream.counts()
	time.Sleep(50 * time.Millisecond)
	if after, _ := stream.counts(); after > reads+1 {
		t.Fatalf("reads kept growing after Stop: %d -> %d", reads, after)
	}
}
