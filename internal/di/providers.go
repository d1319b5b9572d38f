package di

import (
	"context"
	"fmt"
	"time"

	"SwingScan/internal/domain/repository"
	mid "SwingScan/internal/middleware"
	internalrepo "SwingScan/internal/repository"
	"SwingScan/internal/service/marketdata"
	"SwingScan/internal/service/ratelimit"
	"SwingScan/internal/usecase"
	"SwingScan/pkg/cache"
	pkgch "SwingScan/pkg/clickhouse"
	"SwingScan/pkg/config"
	pkgkafka "SwingScan/pkg/kafka"
	xlogger "SwingScan/pkg/logger"
	"SwingScan/pkg/metrics"
	"SwingScan/pkg/server"
)

// ProvideLogger creates the application logger with an attached collector so
// the /api/logs endpoint can serve recent warnings and errors.
func ProvideLogger(cfg *config.Config) (*xlogger.Logger, error) {
	l, err := xlogger.New(&xlogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	l.AttachCollector(200)
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRateLimiter creates the global exchange request limiter.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.MaxConcurrent, cfg.RateLimit.MinDelay)
}

// ProvideCandleSource creates the exchange REST client.
func ProvideCandleSource(cfg *config.Config, limiter *ratelimit.Limiter, log *xlogger.Logger, m repository.Metrics) repository.CandleSource {
	return marketdata.NewClient(marketdata.ClientConfig{
		BaseURL:        cfg.Exchange.BaseURL,
		QuoteAsset:     cfg.Exchange.QuoteAsset,
		MinQuoteVolume: cfg.Exchange.MinQuoteVolume,
		MaxSymbols:     cfg.Exchange.MaxSymbols,
		RequestTimeout: cfg.Exchange.RequestTimeout,
		Retry: marketdata.RetryPolicy{
			MaxRetries:       cfg.RateLimit.MaxRetries,
			RateLimitBackoff: cfg.RateLimit.RateLimitBackoff,
			RetryBackoff:     cfg.RateLimit.RetryBackoff,
		},
	}, limiter, log, m)
}

// ProvideMarketStream creates the miniTicker stream, or nil when disabled.
func ProvideMarketStream(cfg *config.Config, log *xlogger.Logger) repository.MarketStream {
	if !cfg.Exchange.StreamEnabled {
		return nil
	}
	return marketdata.NewStream(cfg.Exchange.WebSocketURL, cfg.Exchange.ReconnectDelay, log)
}

// ProvideCache creates the HTF trend cache: Redis when configured, otherwise
// an in-process fallback.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Cache.Redis.Enabled {
		return cache.NewMemoryCache(0), nil
	}
	c, err := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideClickHouseClient creates a ClickHouse client when the archive is
// needed: either the backend stores there directly, or the consumer does.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Backend.Type != "clickhouse" && !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideSignalArchive wraps the ClickHouse client, or nil without one.
func ProvideSignalArchive(chClient *pkgch.Client, cfg *config.Config, log *xlogger.Logger) repository.SignalArchive {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewClickHouseArchive(chClient, cfg.ClickHouse.Database, log)
}

// ProvideKafkaProducer creates a producer when the backend is Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Backend.Type != "kafka" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalSink picks the event sink for the backend. Nil for the
// clickhouse backend, which archives directly.
func ProvideSignalSink(producer *pkgkafka.Producer, cfg *config.Config, log *xlogger.Logger) repository.SignalSink {
	switch cfg.Backend.Type {
	case "kafka":
		return internalrepo.NewKafkaSink(producer, cfg.Kafka.Topic)
	case "log":
		return internalrepo.NewLogSink(log)
	default:
		return nil
	}
}

// ProvideKafkaConsumer creates the archiving consumer when enabled.
func ProvideKafkaConsumer(cfg *config.Config, log *xlogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:    cfg.Kafka.Brokers,
		GroupID:    cfg.Kafka.Consumer.GroupID,
		Workers:    cfg.Kafka.Consumer.Workers,
		MaxRetries: cfg.Kafka.Consumer.RetryMax,
		MinBackoff: cfg.Kafka.Consumer.BackoffMin,
		MaxBackoff: cfg.Kafka.Consumer.BackoffMax,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideSetupEventsHandler registers the archiver for the events topic.
func ProvideSetupEventsHandler(archive repository.SignalArchive, m repository.Metrics, cfg *config.Config) *usecase.SetupEventsHandler {
	if archive == nil || !cfg.Kafka.Consumer.Enabled {
		return nil
	}
	return usecase.NewSetupEventsHandler(cfg.Kafka.Topic, archive, m)
}

// ProvideTracker creates the setup state machine.
func ProvideTracker(cfg *config.Config, log *xlogger.Logger) *usecase.Tracker {
	return usecase.NewTracker(usecase.TrackerConfig{
		RSIPeriod:     cfg.Detector.RSIPeriod,
		Oversold:      cfg.Detector.Oversold,
		DeepOversold:  cfg.Detector.DeepOversold,
		MinImpulsePct: cfg.Detector.MinImpulsePct,
		Lookback:      cfg.Detector.Lookback,
	}, log)
}

// ProvideEventProcessor routes setup events to the configured backend.
func ProvideEventProcessor(
	sink repository.SignalSink,
	archive repository.SignalArchive,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.EventProcessor {
	return usecase.NewEventProcessor(sink, archive, m, cfg.Backend.Type)
}

// ProvideSignalPipeline buffers events between the scanner and the backend.
func ProvideSignalPipeline(proc *usecase.EventProcessor, m repository.Metrics) *mid.SignalPipeline {
	return mid.NewSignalPipeline(proc, m, mid.WithBufferSize(1000))
}

// ProvideScanner creates the scan loop.
func ProvideScanner(
	cfg *config.Config,
	source repository.CandleSource,
	tracker *usecase.Tracker,
	pipe *mid.SignalPipeline,
	c cache.Service,
	m repository.Metrics,
	log *xlogger.Logger,
) *usecase.Scanner {
	tfs := make([]repository.Timeframe, 0, len(cfg.Scanner.Timeframes))
	for _, tf := range cfg.Scanner.Timeframes {
		tfs = append(tfs, repository.NormalizeTimeframe(tf))
	}
	return usecase.NewScanner(usecase.ScannerConfig{
		Timeframes:    tfs,
		Interval:      cfg.Scanner.Interval,
		CandleLimit:   cfg.Scanner.CandleLimit,
		SymbolRefresh: cfg.Scanner.SymbolRefresh,
		HTFConfirm:    cfg.Scanner.HTFConfirm,
		HTFCacheTTL:   cfg.Cache.HTFTTL,
	}, source, tracker, pipe, c, m, log)
}

// ProvidePriceFeed creates the live price consumer, or nil without a stream.
func ProvidePriceFeed(
	stream repository.MarketStream,
	tracker *usecase.Tracker,
	m repository.Metrics,
	log *xlogger.Logger,
	scanner *usecase.Scanner,
) *usecase.PriceFeed {
	if stream == nil {
		return nil
	}
	return usecase.NewPriceFeed(stream, tracker, m, log, scanner.Symbols)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *xlogger.Logger,
	scanner *usecase.Scanner,
	tracker *usecase.Tracker,
	feed *usecase.PriceFeed,
	pipe *mid.SignalPipeline,
	proc *usecase.EventProcessor,
	consumer *pkgkafka.Consumer,
	eh *usecase.SetupEventsHandler,
	archive repository.SignalArchive,
	chClient *pkgch.Client,
	c cache.Service,
	limiter *ratelimit.Limiter,
) *server.App {
	return server.New(cfg, log, scanner, tracker, feed, pipe, proc, consumer, eh, archive, chClient, c, limiter)
}
