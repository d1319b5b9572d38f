package repository

import (
	"context"
	"time"

	"SwingScan/internal/domain/models"
)

// CandleSource fetches candle series and symbol metadata from the exchange.
// A fetch failure means "no update this cycle" for that key; the scanner moves on.
type CandleSource interface {
	FetchCandles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]models.Candle, error)
	FetchCandlesBatch(ctx context.Context, symbols []string, tf Timeframe, limit int) map[string][]models.Candle
	FetchDailyCandles(ctx context.Context, symbol string) ([]models.Candle, error)
	EligibleSymbols(ctx context.Context) ([]string, error)
}

// MarketStream streams live last-price updates between scan cycles.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	Read(ctx context.Context) (<-chan *models.PriceTick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// SignalSink publishes setup lifecycle events to a downstream transport.
type SignalSink interface {
	Publish(ctx context.Context, ev *models.SetupEvent) error
	PublishBatch(ctx context.Context, evs []*models.SetupEvent) error
	Close() error
}

// SignalArchive persists setup transitions for later querying.
type SignalArchive interface {
	Store(ctx context.Context, ev *models.SetupEvent) error
	StoreBatch(ctx context.Context, evs []*models.SetupEvent) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.SetupEvent, error)
	Health(ctx context.Context) error
	Close() error
}

// Metrics records operational measurements.
type Metrics interface {
	RecordScanCycle(tf string, seconds float64)
	RecordEvaluation(tf string)
	RecordSetupEvent(evType, state string)
	RecordActiveSetups(tf, state string, n int)
	RecordFetch(kind string, seconds float64)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
}
