// Package di contains dependency injection tokens for the pricing context.
package di

import (
	"github.com/themule888/spread-scanner/business/pricing/app"
	"github.com/themule888/spread-scanner/business/pricing/infra/exchange"
	"github.com/themule888/spread-scanner/business/pricing/infra/pool"
	"github.com/themule888/spread-scanner/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Orchestrator     = di.NewToken[*app.Orchestrator]("pricing.Orchestrator")
	ReserveProviders = di.NewToken[map[string]app.ReserveProvider]("pricing.ReserveProviders")
)

// Private dependency tokens - internal to pricing module
var (
	PoolSources  = di.NewToken[[]*pool.Source]("pricing:poolSources")
	QuoteSources = di.NewToken[[]app.QuoteSource]("pricing:quoteSources")
	StreamSource = di.NewToken[*exchange.StreamSource]("pricing:streamSource")
)

// Helper functions for type-safe access
func GetOrchestrator(c di.ServiceRegistry) *app.Orchestrator {
	return di.GetToken(c, Orchestrator)
}

func GetReserveProviders(c di.ServiceRegistry) map[string]app.ReserveProvider {
	return di.GetToken(c, ReserveProviders)
}

func GetPoolSources(c di.ServiceRegistry) []*pool.Source {
	return di.GetToken(c, PoolSources)
}

func GetQuoteSources(c di.ServiceRegistry) []app.QuoteSource {
	return di.GetToken(c, QuoteSources)
}

func GetStreamSource(c di.ServiceRegistry) *exchange.StreamSource {
	return di.GetToken(c, StreamSource)
}
