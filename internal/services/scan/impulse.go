package scan

import (
	"SwingScan/internal/domain/models"
	"SwingScan/internal/services/indicators"
)

// DetectImpulse looks for one qualifying directional move inside the most
// recent `lookback` candles of the window. Returns nil when the window is
// shorter than the lookback, when both extrema land on the same candle, or
// when the move magnitude is below minPct.
//
// The highest high occurring strictly after the lowest low is an upward
// impulse with percent move (high-low)/low*100; the reverse ordering is a
// downward impulse with percent move (high-low)/high*100. Only the ordering
// that holds is evaluated; indices in the result are positions in `window`.
func DetectImpulse(window []models.Candle, lookback int, minPct float64) *models.StructuralMove {
	if lookback <= 0 || len(window) < lookback {
		return nil
	}
	offset := len(window) - lookback
	recent := window[offset:]

	hh, ok := indicators.HighestHigh(recent)
	if !ok {
		return nil
	}
	ll, _ := indicators.LowestLow(recent)

	switch {
	case hh.Index > ll.Index:
		if ll.Price <= 0 {
			return nil
		}
		pct := (hh.Price - ll.Price) / ll.Price * 100
		if pct < minPct {
			return nil
		}
		return &models.StructuralMove{
			StartIndex:  offset + ll.Index,
			EndIndex:    offset + hh.Index,
			StartPrice:  ll.Price,
			EndPrice:    hh.Price,
			PercentMove: pct,
			Direction:   models.MoveUp,
		}
	case ll.Index > hh.Index:
		if hh.Price <= 0 {
			return nil
		}
		pct := (hh.Price - ll.Price) / hh.Price * 100
		if pct < minPct {
			return nil
		}
		return &models.StructuralMove{
			StartIndex:  offset + hh.Index,
			EndIndex:    offset + ll.Index,
			StartPrice:  hh.Price,
			EndPrice:    ll.Price,
			PercentMove: pct,
			Direction:   models.MoveDown,
		}
	default:
		// extrema on the same candle: ambiguous, no move
		return nil
	}
}
