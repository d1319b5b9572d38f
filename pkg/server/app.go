package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"SwingScan/internal/domain/repository"
	"SwingScan/internal/handler/api"
	mid "SwingScan/internal/middleware"
	"SwingScan/internal/service/ratelimit"
	"SwingScan/internal/usecase"
	"SwingScan/pkg/cache"
	pkgch "SwingScan/pkg/clickhouse"
	"SwingScan/pkg/config"
	xhttp "SwingScan/pkg/http"
	pkgkafka "SwingScan/pkg/kafka"
	xlogger "SwingScan/pkg/logger"
)

// App encapsulates the application lifecycle: the scan loop, the optional
// price stream and Kafka consumer, and the HTTP API.
type App struct {
	cfg      *config.Config
	log      *xlogger.Logger
	scanner  *usecase.Scanner
	tracker  *usecase.Tracker
	feed     *usecase.PriceFeed
	pipe     *mid.SignalPipeline
	proc     *usecase.EventProcessor
	consumer *pkgkafka.Consumer
	eh       *usecase.SetupEventsHandler
	archive  repository.SignalArchive
	chClient *pkgch.Client
	cache    cache.Service
	limiter  *ratelimit.Limiter

	httpServer *xhttp.Server
}

// New creates an App with all dependencies. Optional components (feed,
// consumer, archive, chClient) may be nil.
func New(
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
) *App {
	return &App{
		cfg:      cfg,
		log:      log,
		scanner:  scanner,
		tracker:  tracker,
		feed:     feed,
		pipe:     pipe,
		proc:     proc,
		consumer: consumer,
		eh:       eh,
		archive:  archive,
		chClient: chClient,
		cache:    c,
		limiter:  limiter,
	}
}

// Run starts all components and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := api.NewSetupsHandler(a.log, a.tracker, a.scanner, a.pipe, a.archive, a.feed)
	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)

	a.pipe.Start(ctx)
	a.scanner.Start(ctx)
	a.log.Info("scanner started",
		xlogger.Strings("timeframes", a.cfg.Scanner.Timeframes),
		xlogger.String("backend", a.cfg.Backend.Type))

	if a.feed != nil {
		a.feed.Start(ctx)
		a.log.Info("price feed starting")
	}

	if a.consumer != nil && a.eh != nil {
		if err := a.consumer.RegisterHandler(a.eh); err != nil {
			return err
		}
		if err := a.consumer.Start(ctx); err != nil {
			return err
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", xlogger.Error(err))
		return err
	}
	a.log.Info("http server started", xlogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops components in dependency order.
func (a *App) shutdown(ctx context.Context) error {
	a.scanner.Stop()

	if a.feed != nil {
		if err := a.feed.Stop(); err != nil {
			a.log.Warn("price feed stop error", xlogger.Error(err))
		}
	}
	a.pipe.Stop()

	if a.consumer != nil {
		if err := a.consumer.Stop(); err != nil {
			a.log.Warn("kafka consumer stop error", xlogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", xlogger.Error(err))
	}

	a.proc.Close()
	a.limiter.Stop()

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", xlogger.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("cache close error", xlogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
