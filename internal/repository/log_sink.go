package repository

import (
	"context"

	"SwingScan/internal/domain/models"
	xlogger "SwingScan/pkg/logger"
)

// LogSink writes setup events to the structured log. Default backend when no
// Kafka or ClickHouse is configured.
type LogSink struct {
	log *xlogger.Logger
}

func NewLogSink(log *xlogger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Publish(_ context.Context, ev *models.SetupEvent) error {
	r := ev.Record
	s.log.Info("setup event",
		xlogger.String("type", string(ev.Type)),
		xlogger.String("symbol", r.Symbol),
		xlogger.String("timeframe", r.Timeframe),
		xlogger.String("state", string(r.State)),
		xlogger.String("outcome", r.Outcome),
		xlogger.Float64("rsi", r.CurrentRSI),
		xlogger.Float64("price", r.CurrentPrice),
		xlogger.Float64("impulse_pct", r.ImpulsePercent))
	return nil
}

func (s *LogSink) PublishBatch(ctx context.Context, evs []*models.SetupEvent) error {
	for _, ev := range evs {
		if err := s.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
