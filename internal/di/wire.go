//go:build wireinject
// +build wireinject

package di

import (
	"ChainPulse/pkg/config"
	"ChainPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient infrastructure
		ProvideRecentErrors,
		ProvideLogger,
		ProvideMetrics,
		ProvideGovernor,
		ProvideCache,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisClient,

		// Repositories
		ProvideMetricStore,
		ProvideEventPublisher,
		ProvideAssetRegistry,

		// Domain services
		ProvideProviders,
		ProvideGate,
		ProvideDetector,
		ProvideSignalEngine,

		// Use cases
		ProvideSnapshotProcessor,
		ProvideSnapshotsHandler,
		ProvideNarrativeJob,
		ProvideNarrativeQueue,
		ProvideNarrativeDispatcher,
		ProvideTickerCollector,
		ProvideOrchestrator,

		// HTTP surface
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
