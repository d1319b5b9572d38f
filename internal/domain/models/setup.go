package models

import "time"

// SetupState is the lifecycle state of a pullback setup.
type SetupState string

const (
	// StateWatching means impulse and near-oversold conditions were seen but
	// the setup is not actionable. Watching classifications are never stored.
	StateWatching SetupState = "watching"
	// StateTriggered means the oscillator first crossed below the oversold
	// threshold after a qualifying impulse. Actionable.
	StateTriggered SetupState = "triggered"
	// StateDeepOversold means the oscillator fell past the stricter deep
	// threshold. Actionable, stronger signal.
	StateDeepOversold SetupState = "deep_oversold"
	// StateBouncing means the oscillator recovered above oversold after the
	// setup triggered; the pattern is playing out.
	StateBouncing SetupState = "bouncing"
	// StatePlayedOut is terminal. Records in this state are removed from the
	// live set immediately and never persisted there.
	StatePlayedOut SetupState = "played_out"
)

// Valid reports whether s is a known setup state.
func (s SetupState) Valid() bool {
	switch s {
	case StateWatching, StateTriggered, StateDeepOversold, StateBouncing, StatePlayedOut:
		return true
	}
	return false
}

// Terminal outcomes stamped on a record when it reaches played_out.
const (
	OutcomeStructureBroken = "structure_broken"
	OutcomeTargetReached   = "target_reached"
	OutcomeOversoldReentry = "oversold_reentry"
	OutcomeStrongBounce    = "strong_bounce"
	OutcomeBounceComplete  = "bounce_complete"
	OutcomeManual          = "manual"
)

// SetupRecord is the mutable entity tracked per (symbol, timeframe) key. It is
// owned exclusively by the tracker; everything handed outward is a copy.
type SetupRecord struct {
	Symbol    string     `json:"symbol"`
	Timeframe string     `json:"timeframe"`
	State     SetupState `json:"state"`

	ImpulseLow     float64   `json:"impulse_low"`
	ImpulseHigh    float64   `json:"impulse_high"`
	ImpulseLowAt   time.Time `json:"impulse_low_at"`
	ImpulseHighAt  time.Time `json:"impulse_high_at"`
	ImpulsePercent float64   `json:"impulse_percent"`

	CurrentRSI   float64 `json:"current_rsi"`
	RSIAtTrigger float64 `json:"rsi_at_trigger"`
	CurrentPrice float64 `json:"current_price"`
	EntryPrice   float64 `json:"entry_price"`

	ImpulseAvgVolume  float64 `json:"impulse_avg_volume"`
	PullbackAvgVolume float64 `json:"pullback_avg_volume"`
	VolumeContracting bool    `json:"volume_contracting"`

	HTFBullish *bool `json:"htf_bullish,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	TriggeredAt time.Time `json:"triggered_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Outcome is set once the record turns terminal.
	Outcome string `json:"outcome,omitempty"`
}

// Key returns the live-set key for the record.
func (r *SetupRecord) Key() string { return SetupKey(r.Symbol, r.Timeframe) }

// SetupKey builds the live-set key for a (symbol, timeframe) pair.
func SetupKey(symbol, timeframe string) string { return symbol + ":" + timeframe }

// Actionable reports whether the state is an entry-grade signal.
func (r *SetupRecord) Actionable() bool {
	return r.State == StateTriggered || r.State == StateDeepOversold
}

// SetupEventType classifies a setup lifecycle transition.
type SetupEventType string

const (
	EventCreated      SetupEventType = "created"
	EventUpdated      SetupEventType = "updated"
	EventStateChanged SetupEventType = "state_changed"
	EventClosed       SetupEventType = "closed"
)

// SetupEvent is published on every setup lifecycle transition. Record is a
// snapshot taken at emission time.
type SetupEvent struct {
	Type   SetupEventType `json:"type"`
	At     time.Time      `json:"at"`
	Record SetupRecord    `json:"record"`
}
