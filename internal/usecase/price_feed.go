package usecase

import (
	"context"
	"sync"
	"time"

	"SwingScan/internal/domain/models"
	drepo "SwingScan/internal/domain/repository"
	xlogger "SwingScan/pkg/logger"
)

// PriceFeed consumes the live miniTicker stream between scan cycles. Ticks
// only refresh CurrentPrice on live records; state transitions happen solely
// in the scan cycle.
type PriceFeed struct {
	stream  drepo.MarketStream
	tracker *Tracker
	metrics drepo.Metrics
	log     *xlogger.Logger
	symbols func() []string

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPriceFeed creates a feed. symbols is polled until it yields a non-empty
// list (the scanner fills it on its first cycle).
func NewPriceFeed(stream drepo.MarketStream, tracker *Tracker, metrics drepo.Metrics, log *xlogger.Logger, symbols func() []string) *PriceFeed {
	return &PriceFeed{
		stream:  stream,
		tracker: tracker,
		metrics: metrics,
		log:     log,
		symbols: symbols,
		stopCh:  make(chan struct{}),
	}
}

// IsConnected reports whether the stream is up.
func (f *PriceFeed) IsConnected() bool {
	return f.stream.IsConnected()
}

// Start connects and consumes in the background once symbols are known.
func (f *PriceFeed) Start(ctx context.Context) {
	go func() {
		symbols := f.waitForSymbols(ctx)
		if len(symbols) == 0 {
			return
		}
		if err := f.stream.Connect(ctx); err != nil {
			f.metrics.RecordError("stream_connect")
			f.log.Error("price stream connect failed", xlogger.Error(err))
			return
		}
		if err := f.stream.Subscribe(ctx, symbols); err != nil {
			f.metrics.RecordError("stream_subscribe")
			f.log.Error("price stream subscribe failed", xlogger.Error(err))
			return
		}
		f.log.Info("price stream subscribed", xlogger.Int("symbols", len(symbols)))
		f.run(ctx)
	}()
}

// Stop ends the consume loop and closes the stream.
func (f *PriceFeed) Stop() error {
	f.stopOnce.Do(func() { close(f.stopCh) })
	return f.stream.Close()
}

func (f *PriceFeed) waitForSymbols(ctx context.Context) []string {
	for {
		if symbols := f.symbols(); len(symbols) > 0 {
			return symbols
		}
		select {
		case <-ctx.Done():
			return nil
		case <-f.stopCh:
			return nil
		case <-time.After(5 * time.Second):
		}
	}
}

// run consumes read generations in a loop. Each reconnect starts a fresh
// generation with fresh channels from Read.
func (f *PriceFeed) run(ctx context.Context) {
	for {
		tickCh, errCh := f.stream.Read(ctx)
		if !f.consume(ctx, tickCh, errCh) {
			return
		}
		select {
		case <-f.stopCh:
			return
		default:
		}
		f.metrics.RecordError("stream")
		for {
			err := f.stream.Reconnect(ctx)
			if err == nil {
				break
			}
			f.metrics.RecordError("stream_reconnect")
			f.log.Warn("price stream reconnect failed", xlogger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-f.stopCh:
				return
			case <-time.After(time.Second):
			}
		}
		f.log.Info("price stream reconnected")
	}
}

// consume drains one read generation. Returns true when the generation ended
// and a reconnect should follow, false to stop for good.
func (f *PriceFeed) consume(ctx context.Context, tickCh <-chan *models.PriceTick, errCh <-chan error) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-f.stopCh:
			return false
		case err, ok := <-errCh:
			if !ok || err != nil {
				return true
			}
		case tick, ok := <-tickCh:
			if !ok {
				return true
			}
			if tick == nil {
				continue
			}
			f.tracker.RefreshPrice(tick.Symbol, tick.Price)
			f.metrics.RecordLastPrice(tick.Symbol, tick.Price)
		}
	}
}
