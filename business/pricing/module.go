// Package pricing implements the price-discovery bounded context: it
// assembles the configured on-chain and off-chain quote sources into a
// fan-out orchestrator the scanner polls each tick.
package pricing

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/themule888/spread-scanner/business/pricing/app"
	pricingDI "github.com/themule888/spread-scanner/business/pricing/di"
	"github.com/themule888/spread-scanner/business/pricing/infra/exchange"
	"github.com/themule888/spread-scanner/business/pricing/infra/pool"
	"github.com/themule888/spread-scanner/internal/asset"
	"github.com/themule888/spread-scanner/internal/config"
	"github.com/themule888/spread-scanner/internal/di"
	"github.com/themule888/spread-scanner/internal/logger"
	"github.com/themule888/spread-scanner/internal/monolith"
	"github.com/themule888/spread-scanner/internal/retry"
)

// Module implements the pricing bounded context.
type Module struct{}

// RegisterServices registers all pricing services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Pool sources share one reserve reader per Ethereum connection.
	di.RegisterToken(c, pricingDI.PoolSources, func(sr di.ServiceRegistry) []*pool.Source {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		if len(cfg.Pools) == 0 {
			return nil
		}

		ethClient := sr.Get("ethClient").(*ethclient.Client)
		reader, err := pool.NewEthReserveReader(ethClient, log)
		if err != nil {
			panic("failed to create reserve reader: " + err.Error())
		}

		sources := make([]*pool.Source, 0, len(cfg.Pools))
		for _, poolCfg := range cfg.Pools {
			src, err := pool.NewSource(reader, poolCfg, cfg.Ethereum.RequestsPerMin, log)
			if err != nil {
				panic("failed to create pool source " + poolCfg.Name + ": " + err.Error())
			}
			sources = append(sources, src)
		}
		return sources
	})

	// Stream source is optional; nil when streaming is disabled.
	di.RegisterToken(c, pricingDI.StreamSource, func(sr di.ServiceRegistry) *exchange.StreamSource {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		if !cfg.Exchanges.StreamEnabled {
			return nil
		}

		pair, err := asset.ParsePair(cfg.Exchanges.Pair)
		if err != nil {
			panic("invalid exchanges.pair: " + err.Error())
		}

		src, err := exchange.NewStreamSource(exchange.StreamSourceConfig{
			URL:          cfg.Exchanges.StreamURL,
			Pair:         pair,
			StaleTimeout: cfg.Exchanges.StaleTimeout,
		}, log)
		if err != nil {
			panic("failed to create stream source: " + err.Error())
		}
		return src
	})

	di.RegisterToken(c, pricingDI.QuoteSources, func(sr di.ServiceRegistry) []app.QuoteSource {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		pair, err := asset.ParsePair(cfg.Exchanges.Pair)
		if err != nil {
			panic("invalid exchanges.pair: " + err.Error())
		}

		var sources []app.QuoteSource
		for _, src := range pricingDI.GetPoolSources(sr) {
			sources = append(sources, src)
		}

		for _, venueName := range cfg.Exchanges.Enabled {
			src, err := exchange.NewTickerSource(exchange.TickerSourceConfig{
				Venue:          venueName,
				BaseURL:        venueBaseURL(cfg, venueName),
				Pair:           pair,
				RequestsPerMin: cfg.Exchanges.RequestsPerMin,
				RequestTimeout: cfg.Exchanges.RequestTimeout,
			}, log)
			if err != nil {
				panic("failed to create exchange source " + venueName + ": " + err.Error())
			}
			sources = append(sources, src)
		}

		if stream := pricingDI.GetStreamSource(sr); stream != nil {
			sources = append(sources, stream)
		}

		return sources
	})

	di.RegisterToken(c, pricingDI.ReserveProviders, func(sr di.ServiceRegistry) map[string]app.ReserveProvider {
		providers := make(map[string]app.ReserveProvider)
		for _, src := range pricingDI.GetPoolSources(sr) {
			providers[src.Name()] = src
		}
		return providers
	})

	// Orchestrator (public - exposed to other modules)
	di.RegisterToken(c, pricingDI.Orchestrator, func(sr di.ServiceRegistry) *app.Orchestrator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		return app.NewOrchestrator(pricingDI.GetQuoteSources(sr), app.OrchestratorConfig{
			AttemptTimeout: cfg.Retry.AttemptTimeout,
			Retry: retry.Config{
				MaxAttempts: cfg.Retry.MaxAttempts,
				BaseDelay:   cfg.Retry.BaseDelay,
				MaxDelay:    cfg.Retry.MaxDelay,
			},
		}, log)
	})

	return nil
}

// Startup connects the streaming source if one is configured. The REST
// and on-chain sources are pull-based and need no warmup.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	if stream := pricingDI.GetStreamSource(mono.Services()); stream != nil {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := stream.Connect(connectCtx); err != nil {
			log.Warn(ctx, "stream connection failed, retrying in background", "error", err)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-time.After(5 * time.Second):
						if err := stream.Connect(ctx); err != nil {
							log.Warn(ctx, "stream retry failed", "error", err)
						} else {
							log.Info(ctx, "stream connected")
							return
						}
					}
				}
			}()
		}
	}

	log.Info(ctx, "pricing module started",
		"pools", len(mono.Config().Pools),
		"exchanges", len(mono.Config().Exchanges.Enabled),
	)
	return nil
}

func venueBaseURL(cfg *config.Config, venueName string) string {
	switch venueName {
	case exchange.VenueBinance:
		return cfg.Exchanges.BinanceURL
	case exchange.VenueKraken:
		return cfg.Exchanges.KrakenURL
	case exchange.VenueCoingecko:
		return cfg.Exchanges.CoingeckoURL
	default:
		return ""
	}
}
