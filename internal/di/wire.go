//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"LagScope/pkg/config"
	"LagScope/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application with
// a cleanup that closes the clients it opened.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure clients
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvidePointStore,
		ProvideReportPublisher,

		// Providers and use cases
		ProvideProviderRouter,
		ProvideDatasetLoader,
		ProvideAnalysisRunner,
		ProvidePointsHandler,

		// HTTP and application server
		ProvideLeadLagHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
