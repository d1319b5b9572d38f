package models

import "time"

// Candle is one OHLCV bar. Timestamp is the bar open time in unix seconds.
// Series are ordered oldest first with strictly ascending timestamps.
type Candle struct {
	Timestamp int64   `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

// Time returns the bar open time.
func (c Candle) Time() time.Time { return time.Unix(c.Timestamp, 0) }

// Closes extracts the close series from a candle series.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
