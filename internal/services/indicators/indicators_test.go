package indicators

import (
	"math"
	"testing"

	"SwingScan/internal/domain/models"
)

func candlesFromCloses(closes []float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Timestamp: int64(1700000000 + i*3600),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    100,
		}
	}
	return out
}

func TestRSISeriesInsufficientData(t *testing.T) {
	candles := candlesFromCloses(make([]float64, 14))
	if got := RSISeries(candles, 14); got != nil {
		t.Fatalf("expected nil for %d candles, got %d samples", len(candles), len(got))
	}
}

func TestRSISeriesSampleCount(t *testing.T) {
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	samples := RSISeries(candlesFromCloses(closes), 14)
	if len(samples) != 1 {
		t.Fatalf("expected exactly 1 sample for 15 candles, got %d", len(samples))
	}
	// sample aligns to the candle it closed on
	candles := candlesFromCloses(closes)
	if samples[0].Timestamp != candles[14].Timestamp {
		t.Fatalf("sample timestamp %d, want %d", samples[0].Timestamp, candles[14].Timestamp)
	}

	closes = append(closes, 120, 121, 122)
	samples = RSISeries(candlesFromCloses(closes), 14)
	if len(samples) != 4 {
		t.Fatalf("expected 4 samples for 18 candles, got %d", len(samples))
	}
}

func TestRSISeriesAllGains(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	for _, s := range RSISeries(candlesFromCloses(closes), 14) {
		if s.Value != 100 {
			t.Fatalf("monotonic rise should pin RSI at 100, got %v", s.Value)
		}
	}
}

func TestRSISeriesAllLosses(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	for _, s := range RSISeries(candlesFromCloses(closes), 14) {
		if s.Value != 0 {
			t.Fatalf("monotonic fall should pin RSI at 0, got %v", s.Value)
		}
	}
}

func TestRSISeriesBounded(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(float64(i)/3)
	}
	samples := RSISeries(candlesFromCloses(closes), 14)
	if len(samples) != 46 {
		t.Fatalf("expected 46 samples, got %d", len(samples))
	}
	for _, s := range samples {
		if s.Value < 0 || s.Value > 100 {
			t.Fatalf("RSI out of range: %v", s.Value)
		}
	}
}

func TestRSISeriesDeterministic(t *testing.T) {
	closes := []float64{44, 44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.1, 45.42,
		45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28, 46.0, 46.03, 46.41, 46.22, 45.64}
	a := RSISeries(candlesFromCloses(closes), 14)
	b := RSISeries(candlesFromCloses(closes), 14)
	if len(a) != len(b) {
		t.Fatalf("length mismatch %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	if got := SMA(values, 3); got != 4 {
		t.Fatalf("SMA(3) = %v, want 4", got)
	}
	if got := SMA(values, 6); got != 0 {
		t.Fatalf("short series should yield 0, got %v", got)
	}
}

func TestEMA(t *testing.T) {
	values := []float64{2, 2, 2, 2, 2}
	if got := EMA(values, 3); got != 2 {
		t.Fatalf("flat series EMA = %v, want 2", got)
	}
	if got := EMA([]float64{1, 2}, 3); got != 0 {
		t.Fatalf("short series should yield 0, got %v", got)
	}
	// EMA leans toward recent values
	rising := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	if ema, sma := EMA(rising, 4), SMA(rising, 4); ema <= sma-2 {
		t.Fatalf("EMA %v unexpectedly far below SMA %v", ema, sma)
	}
}

func TestAverageVolume(t *testing.T) {
	candles := []models.Candle{{Volume: 10}, {Volume: 20}, {Volume: 30}}
	if got := AverageVolume(candles, 2); got != 25 {
		t.Fatalf("trailing window mean = %v, want 25", got)
	}
	if got := AverageVolume(candles, 10); got != 20 {
		t.Fatalf("oversized window should use whole series, got %v", got)
	}
	if got := AverageVolume(nil, 5); got != 0 {
		t.Fatalf("empty series should yield 0, got %v", got)
	}
}

func TestExtremaFirstOccurrenceWins(t *testing.T) {
	candles := []models.Candle{
		{Timestamp: 1, High: 10, Low: 5},
		{Timestamp: 2, High: 12, Low: 4},
		{Timestamp: 3, High: 12, Low: 4},
		{Timestamp: 4, High: 11, Low: 6},
	}
	hh, ok := HighestHigh(candles)
	if !ok || hh.Index != 1 || hh.Price != 12 {
		t.Fatalf("highest high = %+v, want index 1 price 12", hh)
	}
	ll, ok := LowestLow(candles)
	if !ok || ll.Index != 1 || ll.Price != 4 {
		t.Fatalf("lowest low = %+v, want index 1 price 4", ll)
	}
	if _, ok := HighestHigh(nil); ok {
		t.Fatalf("empty window should not report an extremum")
	}
}
