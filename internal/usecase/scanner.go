package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"SwingScan/internal/domain/models"
	domrepo "SwingScan/internal/domain/repository"
	mid "SwingScan/internal/middleware"
	"SwingScan/internal/services/indicators"
	"SwingScan/pkg/cache"
	xlogger "SwingScan/pkg/logger"
	"SwingScan/pkg/util"
)

const htfSMAPeriod = 20

// ScannerConfig configures the scan loop.
type ScannerConfig struct {
	Timeframes    []domrepo.Timeframe
	Interval      time.Duration
	CandleLimit   int
	SymbolRefresh time.Duration
	HTFConfirm    bool
	HTFCacheTTL   time.Duration
}

// Scanner drives the periodic market sweep: it refreshes the eligible symbol
// list on a slower cadence, fetches candles per timeframe, runs every
// (symbol, timeframe) through the tracker, and emits lifecycle events for
// records that appeared, changed state, or closed.
type Scanner struct {
	cfg     ScannerConfig
	source  domrepo.CandleSource
	tracker *Tracker
	pipe    *mid.SignalPipeline
	cache   cache.Service
	metrics domrepo.Metrics
	log     *xlogger.Logger

	mu          sync.Mutex
	symbols     []string
	lastRefresh time.Time
	prevStates  map[string]models.SetupState
	started     bool
	stopCh      chan struct{}
	done        chan struct{}
}

// NewScanner creates a scanner. cache may be a memory cache when Redis is not
// configured.
func NewScanner(
	cfg ScannerConfig,
	source domrepo.CandleSource,
	tracker *Tracker,
	pipe *mid.SignalPipeline,
	c cache.Service,
	metrics domrepo.Metrics,
	log *xlogger.Logger,
) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 100
	}
	if cfg.SymbolRefresh <= 0 {
		cfg.SymbolRefresh = time.Hour
	}
	if cfg.HTFCacheTTL <= 0 {
		cfg.HTFCacheTTL = time.Hour
	}
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = []domrepo.Timeframe{domrepo.DefaultTimeframe()}
	}
	return &Scanner{
		cfg:        cfg,
		source:     source,
		tracker:    tracker,
		pipe:       pipe,
		cache:      c,
		metrics:    metrics,
		log:        log,
		prevStates: make(map[string]models.SetupState),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs an immediate cycle and then loops on the configured interval.
func (s *Scanner) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		s.cycle(ctx)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.cycle(ctx)
			}
		}
	}()
}

// Stop terminates the loop and waits for the current cycle to finish.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()
	close(s.stopCh)
	<-s.done
}

// Symbols returns the current eligible symbol list.
func (s *Scanner) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

func (s *Scanner) cycle(ctx context.Context) {
	symbols := s.refreshSymbols(ctx)
	if len(symbols) == 0 {
		s.log.Warn("scan cycle skipped: no eligible symbols")
		return
	}

	for _, tf := range s.cfg.Timeframes {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}
		start := time.Now()
		s.scanTimeframe(ctx, symbols, tf)
		s.metrics.RecordScanCycle(string(tf), time.Since(start).Seconds())
	}
	s.recordActiveGauges()
}

func (s *Scanner) scanTimeframe(ctx context.Context, symbols []string, tf domrepo.Timeframe) {
	batch := s.source.FetchCandlesBatch(ctx, symbols, tf, s.cfg.CandleLimit)
	evaluated := 0
	for _, symbol := range symbols {
		candles, ok := batch[symbol]
		if !ok {
			continue
		}
		if staleSeries(candles, tf) {
			s.metrics.RecordError("stale_series")
			s.log.Warn("stale candle series skipped",
				xlogger.String("symbol", symbol),
				xlogger.String("timeframe", string(tf)))
			continue
		}
		var htf *bool
		if s.cfg.HTFConfirm {
			htf = s.htfBullish(ctx, symbol)
		}
		rec := s.tracker.Evaluate(symbol, tf, candles, htf)
		s.metrics.RecordEvaluation(string(tf))
		evaluated++
		if rec != nil {
			s.emit(ctx, rec)
		}
	}
	s.log.Debug("timeframe scan complete",
		xlogger.String("timeframe", string(tf)),
		xlogger.Int("symbols", len(symbols)),
		xlogger.Int("evaluated", evaluated),
		xlogger.Int("active", s.tracker.Count()))
}

// staleSeries reports whether the newest candle is more than two bar periods
// old. The upstream then served stale data for the symbol and the tracker
// should not see it this cycle.
func staleSeries(candles []models.Candle, tf domrepo.Timeframe) bool {
	if len(candles) == 0 {
		return true
	}
	age := time.Since(time.Unix(candles[len(candles)-1].Timestamp, 0))
	return age > 2*util.TimeframeDuration(string(tf))
}

// refreshSymbols re-queries the exchange on the configured cadence. On error
// the previous list keeps serving.
func (s *Scanner) refreshSymbols(ctx context.Context) []string {
	s.mu.Lock()
	stale := len(s.symbols) == 0 || time.Since(s.lastRefresh) >= s.cfg.SymbolRefresh
	current := s.symbols
	s.mu.Unlock()
	if !stale {
		return current
	}

	symbols, err := s.source.EligibleSymbols(ctx)
	if err != nil {
		s.metrics.RecordError("symbol_refresh")
		s.log.Error("symbol refresh failed", xlogger.Error(err))
		return current
	}
	s.mu.Lock()
	s.symbols = symbols
	s.lastRefresh = time.Now()
	s.mu.Unlock()
	s.log.Info("eligible symbols refreshed", xlogger.Int("count", len(symbols)))
	return symbols
}

// htfBullish reports whether the daily close sits above its 20-day SMA.
// Results are cached per symbol; nil means the flag could not be computed.
func (s *Scanner) htfBullish(ctx context.Context, symbol string) *bool {
	key := "htf:" + symbol
	var cached bool
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.metrics.RecordError("htf_cache")
	}

	dailies, err := s.source.FetchDailyCandles(ctx, symbol)
	if err != nil {
		s.metrics.RecordError("htf_fetch")
		return nil
	}
	if len(dailies) <= htfSMAPeriod {
		return nil
	}
	closes := models.Closes(dailies)
	sma := indicators.SMA(closes, htfSMAPeriod)
	bullish := closes[len(closes)-1] > sma
	if err := s.cache.Set(ctx, key, bullish, s.cfg.HTFCacheTTL); err != nil {
		s.metrics.RecordError("htf_cache")
	}
	return &bullish
}

// emit classifies the evaluation result against the previously seen state and
// pushes an event through the pipeline. Same-state refreshes of actionable
// records go out as "updated"; idle refreshes stay silent.
func (s *Scanner) emit(ctx context.Context, rec *models.SetupRecord) {
	key := rec.Key()

	s.mu.Lock()
	prev, known := s.prevStates[key]
	var evType models.SetupEventType
	switch {
	case rec.State == models.StatePlayedOut:
		evType = models.EventClosed
		delete(s.prevStates, key)
	case !known:
		evType = models.EventCreated
		s.prevStates[key] = rec.State
	case prev != rec.State:
		evType = models.EventStateChanged
		s.prevStates[key] = rec.State
	case rec.Actionable():
		evType = models.EventUpdated
	default:
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ev := &models.SetupEvent{Type: evType, At: time.Now(), Record: *rec}
	if err := s.pipe.Process(ctx, ev); err != nil {
		s.log.Warn("setup event not delivered",
			xlogger.String("key", key),
			xlogger.String("type", string(evType)),
			xlogger.Error(err))
	}
}

// Forget drops the remembered state for a key, so a manual removal followed by
// a re-trigger is reported as created again.
func (s *Scanner) Forget(symbol string, tf domrepo.Timeframe) {
	s.mu.Lock()
	delete(s.prevStates, models.SetupKey(symbol, string(tf)))
	s.mu.Unlock()
}

// ForgetAll resets the remembered states.
func (s *Scanner) ForgetAll() {
	s.mu.Lock()
	s.prevStates = make(map[string]models.SetupState)
	s.mu.Unlock()
}

func (s *Scanner) recordActiveGauges() {
	counts := make(map[string]map[models.SetupState]int)
	for _, tf := range s.cfg.Timeframes {
		counts[string(tf)] = make(map[models.SetupState]int)
	}
	for _, rec := range s.tracker.List() {
		if _, ok := counts[rec.Timeframe]; !ok {
			counts[rec.Timeframe] = make(map[models.SetupState]int)
		}
		counts[rec.Timeframe][rec.State]++
	}
	states := []models.SetupState{models.StateTriggered, models.StateDeepOversold, models.StateBouncing}
	for tf, byState := range counts {
		for _, st := range states {
			s.metrics.RecordActiveSetups(tf, string(st), byState[st])
		}
	}
}
