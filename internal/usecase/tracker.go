package usecase

import (
	"sync"
	"time"

	"SwingScan/internal/domain/models"
	domrepo "SwingScan/internal/domain/repository"
	"SwingScan/internal/services/indicators"
	"SwingScan/internal/services/scan"
	xlogger "SwingScan/pkg/logger"
)

const (
	minCandles    = 50
	minRSISamples = 5

	// volume is considered contracting when the pullback mean falls below
	// this fraction of the impulse mean
	volumeContractionRatio = 0.8

	// price recovering to this fraction of the impulse high completes an
	// actionable setup
	targetRecoveryRatio = 0.99

	// oscillator exit levels for the progression table
	strongBounceLevel   = 40.0
	bounceCompleteLevel = 50.0
)

// TrackerConfig holds the fixed numeric detection parameters. Immutable after
// construction, shared read-only by all evaluations.
type TrackerConfig struct {
	RSIPeriod     int
	Oversold      float64
	DeepOversold  float64
	MinImpulsePct float64
	Lookback      int
}

// DefaultTrackerConfig returns the stock parameter set.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		RSIPeriod:     14,
		Oversold:      30,
		DeepOversold:  20,
		MinImpulsePct: 5,
		Lookback:      20,
	}
}

func (c *TrackerConfig) applyDefaults() {
	def := DefaultTrackerConfig()
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = def.RSIPeriod
	}
	if c.Oversold <= 0 {
		c.Oversold = def.Oversold
	}
	if c.DeepOversold <= 0 {
		c.DeepOversold = def.DeepOversold
	}
	if c.MinImpulsePct <= 0 {
		c.MinImpulsePct = def.MinImpulsePct
	}
	if c.Lookback <= 0 {
		c.Lookback = def.Lookback
	}
}

// Tracker owns the live set of setup records, one at most per
// (symbol, timeframe) key, and advances each through the setup state lattice
// as fresh candle data arrives. All mutation happens under a single mutex;
// every record handed out is a copy.
type Tracker struct {
	cfg TrackerConfig
	log *xlogger.Logger

	mu     sync.Mutex
	active map[string]*models.SetupRecord
}

// NewTracker creates a tracker with the given parameters. Zero-valued
// parameters fall back to defaults.
func NewTracker(cfg TrackerConfig, log *xlogger.Logger) *Tracker {
	cfg.applyDefaults()
	return &Tracker{
		cfg:    cfg,
		log:    log,
		active: make(map[string]*models.SetupRecord),
	}
}

// Config returns the detection parameters in use.
func (t *Tracker) Config() TrackerConfig { return t.cfg }

// Evaluate runs one detection/progression pass for a key with fresh candles.
// It returns a snapshot of the resulting record, or nil when there is
// insufficient data or no setup. A returned record in state played_out has
// already been removed from the live set.
func (t *Tracker) Evaluate(symbol string, tf domrepo.Timeframe, candles []models.Candle, htfBullish *bool) *models.SetupRecord {
	if len(candles) < minCandles {
		return nil
	}
	samples := indicators.RSISeries(candles, t.cfg.RSIPeriod)
	if len(samples) < minRSISamples {
		return nil
	}

	price := candles[len(candles)-1].Close
	rsi := samples[len(samples)-1].Value
	key := models.SetupKey(symbol, string(tf))

	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.active[key]; ok {
		return t.update(rec, price, rsi, htfBullish)
	}
	return t.detect(symbol, tf, candles, samples, price, rsi, htfBullish)
}

// detect creates a new record when the key is idle and the first-oversold
// pullback condition holds. Caller holds the mutex.
func (t *Tracker) detect(symbol string, tf domrepo.Timeframe, candles []models.Candle, samples []indicators.RSISample, price, rsi float64, htfBullish *bool) *models.SetupRecord {
	move := scan.DetectImpulse(candles, t.cfg.Lookback, t.cfg.MinImpulsePct)
	if move == nil || move.Direction != models.MoveUp {
		return nil
	}
	// in pullback, structure intact
	if price >= move.EndPrice || price <= move.StartPrice {
		return nil
	}

	// first oversold since the impulse end: among samples at or after the
	// impulse end, at most the current one is below the threshold
	endTs := candles[move.EndIndex].Timestamp
	oversoldSince := 0
	for _, s := range samples {
		if s.Timestamp >= endTs && s.Value < t.cfg.Oversold {
			oversoldSince++
		}
	}
	if rsi >= t.cfg.Oversold || oversoldSince > 1 {
		// watching at best: never stored
		return nil
	}

	state := models.StateTriggered
	if rsi < t.cfg.DeepOversold {
		state = models.StateDeepOversold
	}

	impulse := candles[move.StartIndex : move.EndIndex+1]
	pullback := candles[move.EndIndex+1:]
	impulseVol := indicators.AverageVolume(impulse, len(impulse))
	pullbackVol := indicators.AverageVolume(pullback, len(pullback))
	contracting := len(pullback) > 0 && pullbackVol < volumeContractionRatio*impulseVol

	now := time.Now()
	rec := &models.SetupRecord{
		Symbol:            symbol,
		Timeframe:         string(tf),
		State:             state,
		ImpulseLow:        move.StartPrice,
		ImpulseHigh:       move.EndPrice,
		ImpulseLowAt:      candles[move.StartIndex].Time(),
		ImpulseHighAt:     candles[move.EndIndex].Time(),
		ImpulsePercent:    move.PercentMove,
		CurrentRSI:        rsi,
		RSIAtTrigger:      rsi,
		CurrentPrice:      price,
		EntryPrice:        price,
		ImpulseAvgVolume:  impulseVol,
		PullbackAvgVolume: pullbackVol,
		VolumeContracting: contracting,
		HTFBullish:        htfBullish,
		CreatedAt:         now,
		TriggeredAt:       now,
		UpdatedAt:         now,
	}
	t.active[rec.Key()] = rec

	if t.log != nil {
		t.log.Info("setup created",
			xlogger.String("symbol", symbol),
			xlogger.String("tf", string(tf)),
			xlogger.String("state", string(state)),
			xlogger.Float64("rsi", rsi),
			xlogger.Float64("impulse_pct", move.PercentMove))
	}
	return snapshot(rec)
}

// update refreshes an existing record and applies invalidation, then the
// progression table. Caller holds the mutex.
func (t *Tracker) update(rec *models.SetupRecord, price, rsi float64, htfBullish *bool) *models.SetupRecord {
	prev := rec.State
	rec.CurrentPrice = price
	rec.CurrentRSI = rsi
	rec.UpdatedAt = time.Now()
	if htfBullish != nil {
		rec.HTFBullish = htfBullish
	}

	// invalidation, first match wins
	switch {
	case price < rec.ImpulseLow:
		return t.close(rec, models.OutcomeStructureBroken)
	case rec.Actionable() && price >= targetRecoveryRatio*rec.ImpulseHigh:
		return t.close(rec, models.OutcomeTargetReached)
	case prev == models.StateBouncing && rsi < t.cfg.Oversold:
		return t.close(rec, models.OutcomeOversoldReentry)
	}

	// progression against the previous state
	switch {
	case rsi < t.cfg.DeepOversold:
		rec.State = models.StateDeepOversold
	case rsi < t.cfg.Oversold:
		rec.State = models.StateTriggered
	case prev == models.StateTriggered || prev == models.StateDeepOversold:
		if rsi > strongBounceLevel {
			return t.close(rec, models.OutcomeStrongBounce)
		}
		rec.State = models.StateBouncing
	case prev == models.StateBouncing:
		if rsi > bounceCompleteLevel {
			return t.close(rec, models.OutcomeBounceComplete)
		}
		rec.State = models.StateBouncing
	}
	return snapshot(rec)
}

// close marks the record terminal, drops it from the live set, and returns
// the final snapshot. Caller holds the mutex.
func (t *Tracker) close(rec *models.SetupRecord, outcome string) *models.SetupRecord {
	rec.State = models.StatePlayedOut
	rec.Outcome = outcome
	delete(t.active, rec.Key())
	if t.log != nil {
		t.log.Info("setup closed",
			xlogger.String("symbol", rec.Symbol),
			xlogger.String("tf", rec.Timeframe),
			xlogger.String("outcome", outcome))
	}
	return snapshot(rec)
}

// RefreshPrice updates the current price on all live records for a symbol.
// It never advances state; transitions only happen in Evaluate.
func (t *Tracker) RefreshPrice(symbol string, price float64) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range t.active {
		if rec.Symbol == symbol {
			rec.CurrentPrice = price
			rec.UpdatedAt = now
		}
	}
}

// List returns snapshots of all live records.
func (t *Tracker) List() []models.SetupRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.SetupRecord, 0, len(t.active))
	for _, rec := range t.active {
		out = append(out, *rec)
	}
	return out
}

// ByTimeframe returns snapshots of live records on the given timeframe.
func (t *Tracker) ByTimeframe(tf domrepo.Timeframe) []models.SetupRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.SetupRecord, 0)
	for _, rec := range t.active {
		if rec.Timeframe == string(tf) {
			out = append(out, *rec)
		}
	}
	return out
}

// ByState returns snapshots of live records in the given state.
func (t *Tracker) ByState(state models.SetupState) []models.SetupRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.SetupRecord, 0)
	for _, rec := range t.active {
		if rec.State == state {
			out = append(out, *rec)
		}
	}
	return out
}

// Remove drops a record manually. Returns the final snapshot and true when a
// record was live for the key.
func (t *Tracker) Remove(symbol string, tf domrepo.Timeframe) (*models.SetupRecord, bool) {
	key := models.SetupKey(symbol, string(tf))
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.active[key]
	if !ok {
		return nil, false
	}
	return t.close(rec, models.OutcomeManual), true
}

// Clear removes every live record.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = make(map[string]*models.SetupRecord)
}

// Count returns the number of live records.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

func snapshot(rec *models.SetupRecord) *models.SetupRecord {
	cp := *rec
	return &cp
}
