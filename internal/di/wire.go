//go:build wireinject
// +build wireinject

package di

import (
	"HisCollect/pkg/config"
	"HisCollect/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
// The cleanup releases the fact store, the rank cache and the producer.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure
		ProvideFactStore,
		ProvideIDDirectory,
		ProvideCache,
		ProvideRankStore,
		ProvideKafkaProducer,
		ProvideReportPublisher,
		ProvideKafkaConsumer,

		// Use cases
		ProvideAggregator,
		ProvideCollector,
		ProvideKafkaFactsHandler,

		// Delivery
		ProvideHTTPHandler,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeTools wires the collection stack for command-line use.
func InitializeTools(cfg *config.Config) (*Tools, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideNopMetrics,
		ProvideFactStore,
		ProvideIDDirectory,
		ProvideCache,
		ProvideRankStore,
		ProvideNopReportPublisher,
		ProvideAggregator,
		ProvideCollector,
		ProvideTools,
	)
	return nil, nil, nil
}
