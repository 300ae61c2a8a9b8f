//go:build wireinject
// +build wireinject

package di

import (
	"TradeFloor/pkg/config"
	"TradeFloor/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure
		ProvideSubstrate,
		ProvideBroker,
		ProvideTimeSeries,
		ProvideEgress,

		// Shared pipeline state
		ProvidePortfolio,
		ProvideMarketProvider,
		ProvideStrategy,

		// Hierarchy and surface
		ProvideOrchestrator,
		ProvideHandler,

		ProvideApp,
	)
	return &server.App{}, nil
}
