package indicators

import (
	"SwingScan/internal/domain/models"
)

// RSISample is one oscillator reading, aligned to the candle it closed on.
type RSISample struct {
	Value     float64
	Timestamp int64
}

// RSISeries computes a Wilder-smoothed RSI over the close series. The first
// average gain/loss is seeded with the arithmetic mean of the first `period`
// changes; each following average is (avg*(period-1)+x)/period. One sample is
// produced per candle from index `period` onward. Fewer than period+1 candles
// yield an empty series. Pure function: identical input gives bit-identical
// output.
func RSISeries(candles []models.Candle, period int) []RSISample {
	if period <= 0 || len(candles) < period+1 {
		return nil
	}

	gains := make([]float64, len(candles)-1)
	losses := make([]float64, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains[i-1] = change
		} else {
			losses[i-1] = -change
		}
	}

	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	out := make([]RSISample, 0, len(candles)-period)
	out = append(out, RSISample{Value: rsiValue(avgGain, avgLoss), Timestamp: candles[period].Timestamp})

	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		out = append(out, RSISample{Value: rsiValue(avgGain, avgLoss), Timestamp: candles[i+1].Timestamp})
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// SMA computes the trailing arithmetic mean of the last `period` values.
// Returns 0 if fewer values than the period are available.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMA computes an exponential moving average over the whole series, seeded
// with the SMA of the first `period` values and multiplier 2/(period+1).
// Returns 0 if fewer values than the period are available.
func EMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	ema := seed / float64(period)
	mult := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		ema = (v-ema)*mult + ema
	}
	return ema
}

// AverageVolume returns the mean volume over the trailing `window` candles,
// or over the whole series when it is shorter than the window.
func AverageVolume(candles []models.Candle, window int) float64 {
	if len(candles) == 0 {
		return 0
	}
	if window <= 0 || window > len(candles) {
		window = len(candles)
	}
	sum := 0.0
	for _, c := range candles[len(candles)-window:] {
		sum += c.Volume
	}
	return sum / float64(window)
}

// Extremum locates the price extremum of a window: value, window index, and
// the timestamp of the candle it occurred on.
type Extremum struct {
	Price     float64
	Index     int
	Timestamp int64
}

// HighestHigh scans left to right and returns the highest high. Ties resolve
// to the first occurrence. ok is false for an empty window.
func HighestHigh(candles []models.Candle) (Extremum, bool) {
	if len(candles) == 0 {
		return Extremum{}, false
	}
	ext := Extremum{Price: candles[0].High, Index: 0, Timestamp: candles[0].Timestamp}
	for i, c := range candles {
		if c.High > ext.Price {
			ext = Extremum{Price: c.High, Index: i, Timestamp: c.Timestamp}
		}
	}
	return ext, true
}

// LowestLow scans left to right and returns the lowest low. Ties resolve to
// the first occurrence. ok is false for an empty window.
func LowestLow(candles []models.Candle) (Extremum, bool) {
	if len(candles) == 0 {
		return Extremum{}, false
	}
	ext := Extremum{Price: candles[0].Low, Index: 0, Timestamp: candles[0].Timestamp}
	for i, c := range candles {
		if c.Low < ext.Price {
			ext = Extremum{Price: c.Low, Index: i, Timestamp: c.Timestamp}
		}
	}
	return ext, true
}
