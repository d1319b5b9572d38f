//go:build wireinject
// +build wireinject

package di

import (
	"SwingScan/pkg/config"
	"SwingScan/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Exchange access
		ProvideRateLimiter,
		ProvideCandleSource,
		ProvideMarketStream,

		// Infrastructure clients
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideSignalArchive,
		ProvideSignalSink,

		// Use cases
		ProvideTracker,
		ProvideEventProcessor,
		ProvideSignalPipeline,
		ProvideScanner,
		ProvidePriceFeed,
		ProvideSetupEventsHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
