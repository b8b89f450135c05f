// Package blockchain implements the chain-access bounded context: new
// head delivery for block-driven scanning and gas pricing for the cost
// model.
package blockchain

import (
	"context"

	blockchainDI "github.com/themule888/spread-scanner/business/blockchain/di"

	"github.com/themule888/spread-scanner/business/blockchain/app"
	"github.com/themule888/spread-scanner/business/blockchain/infra/ethereum"
	"github.com/themule888/spread-scanner/internal/config"
	"github.com/themule888/spread-scanner/internal/di"
	"github.com/themule888/spread-scanner/internal/logger"
	"github.com/themule888/spread-scanner/internal/monolith"
)

// Module implements the blockchain bounded context.
type Module struct{}

// RegisterServices registers all blockchain services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Head subscriber; nil unless block-driven scanning is on.
	di.RegisterToken(c, blockchainDI.BlockSubscriber, func(sr di.ServiceRegistry) app.BlockSubscriber {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		if !cfg.Scanner.BlockDriven {
			return nil
		}

		subCfg := ethereum.DefaultSubscriberConfig(cfg.Ethereum.WebSocketURL, cfg.Ethereum.HTTPURL)
		sub, err := ethereum.NewHeadSubscriber(subCfg, log)
		if err != nil {
			panic("failed to create head subscriber: " + err.Error())
		}
		return sub
	})

	// Gas oracle; nil when no node is configured, leaving the service on
	// the static configured price.
	di.RegisterToken(c, blockchainDI.GasOracle, func(sr di.ServiceRegistry) app.GasOracle {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		if cfg.Ethereum.HTTPURL == "" {
			return nil
		}

		oracle, err := ethereum.NewGasOracle(ethereum.DefaultGasOracleConfig(cfg.Ethereum.HTTPURL), log)
		if err != nil {
			panic("failed to create gas oracle: " + err.Error())
		}
		return oracle
	})

	// Service (public - exposed to other modules)
	di.RegisterToken(c, blockchainDI.Service, func(sr di.ServiceRegistry) *app.Service {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		return app.NewService(
			blockchainDI.GetBlockSubscriber(sr),
			blockchainDI.GetGasOracle(sr),
			cfg.Scanner.GasPriceGweiDecimal(),
			log,
		)
	})

	return nil
}

// Startup connects the gas oracle. Head subscription is started lazily
// by the consumer that needs the block feed.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	oracle := blockchainDI.GetGasOracle(mono.Services())
	if connector, ok := oracle.(interface{ Connect(context.Context) error }); ok {
		if err := connector.Connect(ctx); err != nil {
			log.Warn(ctx, "gas oracle connection failed, static price in use", "error", err)
		}
	}

	log.Info(ctx, "blockchain module started",
		"block_driven", mono.Config().Scanner.BlockDriven)
	return nil
}
