package usecase

import (
	"context"
	"fmt"

	"SwingScan/internal/domain/models"
	drepo "SwingScan/internal/domain/repository"
)

// EventProcessor routes setup lifecycle events to the configured backend:
// a Kafka sink, a ClickHouse archive, or the structured log.
type EventProcessor struct {
	sink    drepo.SignalSink
	archive drepo.SignalArchive
	metrics drepo.Metrics
	backend string
}

// NewEventProcessor creates a processor for the given backend. sink may be nil
// when the backend is "clickhouse", and archive may be nil otherwise.
func NewEventProcessor(
	sink drepo.SignalSink,
	archive drepo.SignalArchive,
	metrics drepo.Metrics,
	backend string,
) *EventProcessor {
	return &EventProcessor{
		sink:    sink,
		archive: archive,
		metrics: metrics,
		backend: backend,
	}
}

// Process routes a single event to the configured backend.
func (p *EventProcessor) Process(ctx context.Context, ev *models.SetupEvent) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}

	var err error
	switch p.backend {
	case "clickhouse":
		err = p.archive.Store(ctx, ev)
	case "kafka", "log":
		err = p.sink.Publish(ctx, ev)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}
	if err != nil {
		p.metrics.RecordError("process_event")
		return fmt.Errorf("process event: %w", err)
	}
	return nil
}

// ProcessBatch routes multiple events in one backend call.
func (p *EventProcessor) ProcessBatch(ctx context.Context, evs []*models.SetupEvent) error {
	if len(evs) == 0 {
		return nil
	}

	var err error
	switch p.backend {
	case "clickhouse":
		err = p.archive.StoreBatch(ctx, evs)
	case "kafka", "log":
		err = p.sink.PublishBatch(ctx, evs)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}
	if err != nil {
		p.metrics.RecordError("process_event_batch")
		return fmt.Errorf("process event batch: %w", err)
	}
	return nil
}

// Close closes underlying resources if present.
func (p *EventProcessor) Close() {
	if p.sink != nil {
		_ = p.sink.Close()
	}
	if p.archive != nil {
		_ = p.archive.Close()
	}
}
