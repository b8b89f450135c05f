// Package main is the entry point for the spread scanner.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/themule888/spread-scanner/business/arbitrage"
	arbitrageApp "github.com/themule888/spread-scanner/business/arbitrage/app"
	arbitrageDI "github.com/themule888/spread-scanner/business/arbitrage/di"
	"github.com/themule888/spread-scanner/business/blockchain"
	blockchainDI "github.com/themule888/spread-scanner/business/blockchain/di"
	"github.com/themule888/spread-scanner/business/pricing"
	"github.com/themule888/spread-scanner/internal/apm"
	"github.com/themule888/spread-scanner/internal/config"
	"github.com/themule888/spread-scanner/internal/health"
	"github.com/themule888/spread-scanner/internal/logger"
	"github.com/themule888/spread-scanner/internal/metrics"
	"github.com/themule888/spread-scanner/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	jsonLogs := flag.Bool("json", false, "Emit JSON logs")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("spread-scanner %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	if err := run(ctx, *configPath, *jsonLogs); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, jsonLogs bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}

	var log logger.LoggerInterface
	if jsonLogs {
		log = logger.NewJSON(os.Stderr, logLevel, cfg.App.Name)
	} else {
		log = logger.New(os.Stderr, logLevel, cfg.App.Name, nil)
	}
	log.Info(ctx, "starting spread scanner",
		"version", version,
		"environment", cfg.App.Environment,
	)

	if cfg.Telemetry.Enabled {
		traceProvider, err := apm.NewTraceProvider(ctx, apm.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Exporter:    apm.Exporter(cfg.Telemetry.TraceExporter),
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			Headers:     cfg.Telemetry.OTLPHeaders,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer traceProvider.Stop()

		meterProvider, err := metrics.NewMeterProvider(ctx,
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithExporter(metrics.ExporterConfig{Kind: metrics.ExporterPrometheus}),
		)
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = meterProvider.Shutdown(shutdownCtx)
		}()

		go func() {
			if err := metrics.ServePrometheus(ctx, cfg.Telemetry.PrometheusPort); err != nil {
				log.Warn(ctx, "prometheus endpoint stopped", "error", err)
			}
		}()
		log.Info(ctx, "telemetry initialized",
			"trace_exporter", cfg.Telemetry.TraceExporter,
			"prometheus_port", cfg.Telemetry.PrometheusPort,
		)
	}

	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	// Dependency order: blockchain feeds pricing, pricing feeds arbitrage.
	modules := []monolith.Module{
		&blockchain.Module{},
		&pricing.Module{},
		&arbitrage.Module{},
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	healthServer := health.NewServer(cfg.Telemetry.HealthPort, version)
	registerHealthChecks(healthServer, mono)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", cfg.Telemetry.HealthPort)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = healthServer.Stop(stopCtx)
	}()

	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}
	log.Info(ctx, "all modules started, scanning")

	<-ctx.Done()
	log.Info(ctx, "shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()

	scanner := arbitrageDI.GetScanner(mono.Services())
	if err := scanner.Stop(stopCtx); err != nil {
		log.Error(ctx, "error stopping scanner", "error", err)
	}
	return nil
}

func registerHealthChecks(srv *health.Server, mono monolith.Monolith) {
	srv.RegisterCheck("scanner", func(ctx context.Context) (bool, string) {
		scanner := arbitrageDI.GetScanner(mono.Services())
		if scanner == nil {
			return false, "scanner not constructed"
		}
		state := scanner.State()
		return state != arbitrageApp.StateCancelled,
			fmt.Sprintf("%s, %d ticks", state, scanner.Ticks())
	})

	srv.RegisterCheck("chain", func(ctx context.Context) (bool, string) {
		svc := blockchainDI.GetService(mono.Services())
		if svc == nil {
			return false, "blockchain service not constructed"
		}
		state := svc.ConnectionState()
		return true, string(state)
	})
}
