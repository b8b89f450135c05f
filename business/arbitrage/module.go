// Package arbitrage implements the opportunity-detection bounded context:
// the scan loop that reconciles venue prices, sizes profitable round trips
// and records every tick to the configured sink.
package arbitrage

import (
	"context"

	arbitrageDI "github.com/themule888/spread-scanner/business/arbitrage/di"

	"github.com/themule888/spread-scanner/business/arbitrage/app"
	"github.com/themule888/spread-scanner/business/arbitrage/infra"
	blockchainDI "github.com/themule888/spread-scanner/business/blockchain/di"
	pricingDI "github.com/themule888/spread-scanner/business/pricing/di"
	"github.com/themule888/spread-scanner/internal/asset"
	"github.com/themule888/spread-scanner/internal/config"
	"github.com/themule888/spread-scanner/internal/di"
	"github.com/themule888/spread-scanner/internal/logger"
	"github.com/themule888/spread-scanner/internal/monolith"
)

// Module implements the arbitrage bounded context.
type Module struct{}

// RegisterServices registers all arbitrage services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, arbitrageDI.Sink, func(sr di.ServiceRegistry) app.Sink {
		cfg := sr.Get("config").(*config.Config)
		return buildSink(&cfg.Scanner)
	})

	di.RegisterToken(c, arbitrageDI.Analyzer, func(sr di.ServiceRegistry) *app.Analyzer {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		min, max := cfg.Scanner.TradeSizeRange()
		return app.NewAnalyzer(pricingDI.GetReserveProviders(sr), app.AnalyzerConfig{
			GasUnits:       cfg.Scanner.GasUnits,
			FlashFeeRate:   cfg.Scanner.FlashFeeRateDecimal(),
			TradeSizeMin:   min,
			TradeSizeMax:   max,
			TradeSizeSteps: cfg.Scanner.TradeSizeSteps,
		}, log)
	})

	// Scanner (public - exposed to other modules)
	di.RegisterToken(c, arbitrageDI.Scanner, func(sr di.ServiceRegistry) *app.Scanner {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		pair, err := asset.ParsePair(cfg.Exchanges.Pair)
		if err != nil {
			panic("invalid exchanges.pair: " + err.Error())
		}

		scanner, err := app.NewScanner(
			pricingDI.GetOrchestrator(sr),
			blockchainDI.GetService(sr),
			arbitrageDI.GetAnalyzer(sr),
			arbitrageDI.GetSink(sr),
			app.ScannerConfig{
				Asset:           pair.Base,
				Interval:        cfg.Scanner.Interval,
				BlockDriven:     cfg.Scanner.BlockDriven,
				SpreadThreshold: cfg.Scanner.SpreadThreshold(),
			}, log)
		if err != nil {
			panic("failed to create scanner: " + err.Error())
		}
		return scanner
	})

	return nil
}

// Startup launches the scan loop. The caller owns shutdown: stopping the
// scanner also closes the sink.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	scanner := arbitrageDI.GetScanner(mono.Services())
	scanner.Start(ctx)

	mono.Logger().Info(ctx, "arbitrage module started",
		"sink", mono.Config().Scanner.Sink,
		"block_driven", mono.Config().Scanner.BlockDriven,
	)
	return nil
}

func buildSink(cfg *config.ScannerConfig) app.Sink {
	switch cfg.Sink {
	case "csv":
		sink, err := infra.NewCSVSink(cfg.CSVPath)
		if err != nil {
			panic("failed to open csv sink: " + err.Error())
		}
		return sink
	case "postgres":
		sink, err := infra.NewPostgresSink(context.Background(), cfg.PostgresDSN)
		if err != nil {
			panic("failed to connect postgres sink: " + err.Error())
		}
		return sink
	case "multi":
		sinks := []app.Sink{infra.NewConsoleSink()}
		if cfg.CSVPath != "" {
			csvSink, err := infra.NewCSVSink(cfg.CSVPath)
			if err != nil {
				panic("failed to open csv sink: " + err.Error())
			}
			sinks = append(sinks, csvSink)
		}
		if cfg.PostgresDSN != "" {
			pgSink, err := infra.NewPostgresSink(context.Background(), cfg.PostgresDSN)
			if err != nil {
				panic("failed to connect postgres sink: " + err.Error())
			}
			sinks = append(sinks, pgSink)
		}
		return infra.NewMultiSink(sinks...)
	default:
		return infra.NewConsoleSink()
	}
}
