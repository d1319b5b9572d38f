package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SwingScan/internal/domain/models"
	domrepo "SwingScan/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs. Fresh events go
// through Process; the background flusher drains the buffer in batches.
type Proc interface {
	Process(ctx context.Context, ev *models.SetupEvent) error
	ProcessBatch(ctx context.Context, evs []*models.SetupEvent) error
}

// flushBatchMax caps how many buffered events one flush forwards downstream.
const flushBatchMax = 100

// SignalPipeline sits between the scanner and the event backend. It validates
// events and buffers them when downstream is unavailable, flushing in the
// background with capped exponential backoff. Setup transitions are rare
// relative to the scan cadence, so a small buffer covers realistic outages.
type SignalPipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	bufSize int
	bufCh   chan *models.SetupEvent
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
}

type PipelineOption func(*SignalPipeline)

// WithBufferSize sets the buffer size for events pending retry.
func WithBufferSize(n int) PipelineOption {
	return func(p *SignalPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewSignalPipeline creates a new pipeline.
func NewSignalPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *SignalPipeline {
	p := &SignalPipeline{
		proc:    proc,
		metrics: metrics,
		bufSize: 1000,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.SetupEvent, p.bufSize)
	return p
}

// Start launches background flushing of buffered events.
func (p *SignalPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case ev := <-p.bufCh:
				if ev == nil {
					continue
				}
				batch := p.drain(ev)
				if err := p.proc.ProcessBatch(ctx, batch); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue what fits; drop the rest
					for _, pending := range batch {
						select {
						case p.bufCh <- pending:
						default:
							p.metrics.RecordError("pipeline_buffer_drop")
						}
					}
				} else {
					backoff = 50 * time.Millisecond
					for _, flushed := range batch {
						p.metrics.RecordSetupEvent(string(flushed.Type), string(flushed.Record.State))
					}
				}
			}
		}
	}()
}

// drain collects pending buffered events behind first, up to flushBatchMax.
func (p *SignalPipeline) drain(first *models.SetupEvent) []*models.SetupEvent {
	batch := []*models.SetupEvent{first}
	for len(batch) < flushBatchMax {
		select {
		case ev := <-p.bufCh:
			if ev != nil {
				batch = append(batch, ev)
			}
		default:
			return batch
		}
	}
	return batch
}

// Stop stops the background flushing.
func (p *SignalPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates and forwards the event downstream, buffering on errors.
func (p *SignalPipeline) Process(ctx context.Context, ev *models.SetupEvent) error {
	if err := validateEvent(ev); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}

	if err := p.proc.Process(ctx, ev); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- ev:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordSetupEvent(string(ev.Type), string(ev.Record.State))
	return nil
}

func validateEvent(ev *models.SetupEvent) error {
	if ev == nil {
		return fmt.Errorf("event nil")
	}
	if ev.Record.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if ev.Record.Timeframe == "" {
		return fmt.Errorf("timeframe empty")
	}
	if !ev.Record.State.Valid() {
		return fmt.Errorf("unknown state %q", ev.Record.State)
	}
	return nil
}
