package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"SwingScan/internal/domain/models"
	domrepo "SwingScan/internal/domain/repository"
	mid "SwingScan/internal/middleware"
	"SwingScan/pkg/cache"
)

type stubSource struct {
	batch   map[string][]models.Candle
	symbols []string
}

func (s *stubSource) FetchCandles(context.Context, string, domrepo.Timeframe, int) ([]models.Candle, error) {
	return nil, fmt.Errorf("not used")
}

func (s *stubSource) FetchCandlesBatch(context.Context, []string, domrepo.Timeframe, int) map[string][]models.Candle {
	return s.batch
}

func (s *stubSource) FetchDailyCandles(context.Context, string) ([]models.Candle, error) {
	return nil, fmt.Errorf("not used")
}

func (s *stubSource) EligibleSymbols(context.Context) ([]string, error) {
	return s.symbols, nil
}

// captureProc records event types in arrival order.
type captureProc struct {
	mu    sync.Mutex
	types []models.SetupEventType
}

func (p *captureProc) Process(_ context.Context, ev *models.SetupEvent) error {
	p.mu.Lock()
	p.types = append(p.types, ev.Type)
	p.mu.Unlock()
	return nil
}

func (p *captureProc) ProcessBatch(ctx context.Context, evs []*models.SetupEvent) error {
	for _, ev := range evs {
		if err := p.Process(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (p *captureProc) seen() []models.SetupEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.SetupEventType, len(p.types))
	copy(out, p.types)
	return out
}

// recentFlatSeries builds n flat candles whose last bar opened just now.
func recentFlatSeries(n int, bar time.Duration) []models.Candle {
	out := make([]models.Candle, n)
	start := time.Now().Add(-time.Duration(n-1) * bar)
	for i := range out {
		out[i] = models.Candle{
			Timestamp: start.Add(time.Duration(i) * bar).Unix(),
			Open:      100, High: 100, Low: 100, Close: 100,
			Volume: 100,
		}
	}
	return out
}

func newTestScanner(t *testing.T, source *stubSource, proc mid.Proc, metrics *metricsStub) *Scanner {
	t.Helper()
	tracker := NewTracker(testTrackerConfig(), nil)
	pipe := mid.NewSignalPipeline(proc, metrics)
	return NewScanner(ScannerConfig{
		Timeframes: []domrepo.Timeframe{domrepo.TF1h},
		Interval:   time.Minute,
	}, source, tracker, pipe, cache.NewMemoryCache(0), metrics, newTestLogger(t))
}

func TestScanTimeframeSkipsStaleSeries(t *testing.T) {
	fresh := recentFlatSeries(60, time.Hour)
	// last candle over a year old
	stale := seriesFromCloses(make([]float64, 60))
	source := &stubSource{batch: map[string][]models.Candle{
		"FRESHUSDT": fresh,
		"STALEUSDT": stale,
	}}
	metrics := newMetricsStub()
	s := newTestScanner(t, source, &captureProc{}, metrics)

	s.scanTimeframe(context.Background(), []string{"FRESHUSDT", "STALEUSDT"}, domrepo.TF1h)

	metrics.mu.Lock()
	evals := metrics.evals
	metrics.mu.Unlock()
	if evals != 1 {
		t.Fatalf("evaluated %d series, want only the fresh one", evals)
	}
	if metrics.errorCount("stale_series") != 1 {
		t.Fatalf("stale series not recorded: %d", metrics.errorCount("stale_series"))
	}
}

func TestScannerEmitClassification(t *testing.T) {
	proc := &captureProc{}
	metrics := newMetricsStub()
	s := newTestScanner(t, &stubSource{}, proc, metrics)
	ctx := context.Background()

	rec := &models.SetupRecord{Symbol: "BTCUSDT", Timeframe: "1h", State: models.StateTriggered}
	s.emit(ctx, rec) // unknown key
	s.emit(ctx, rec) // same state, actionable
	rec.State = models.StateBouncing
	s.emit(ctx, rec) // state change
	s.emit(ctx, rec) // same state, not actionable: silent
	rec.State = models.StatePlayedOut
	s.emit(ctx, rec) // terminal
	rec.State = models.StateTriggered
	s.emit(ctx, rec) // key forgotten on close, created again

	want := []models.SetupEventType{
		models.EventCreated,
		models.EventUpdated,
		models.EventStateChanged,
		models.EventClosed,
		models.EventCreated,
	}
	got := proc.seen()
	if len(got) != len(want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}
