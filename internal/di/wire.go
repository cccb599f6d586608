//go:build wireinject
// +build wireinject

package di

import (
	"Nowcast/internal/usecase"
	"Nowcast/pkg/config"
	"Nowcast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		usecase.NewProgress,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvidePanelSource,
		ProvideCacheStore,
		ProvideResultPublisher,

		// Domain services
		ProvideCalendar,
		ProvideIndicators,
		ProvideBranches,
		ProvideBacktestConfig,

		// Use cases
		ProvideBacktestRunner,

		// Application
		ProvideApp,
	)
	return nil, nil, nil
}
