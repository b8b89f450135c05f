package app

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/themule888/spread-scanner/business/arbitrage/domain"
	blockdomain "github.com/themule888/spread-scanner/business/blockchain/domain"
	pricingapp "github.com/themule888/spread-scanner/business/pricing/app"
	pricing "github.com/themule888/spread-scanner/business/pricing/domain"
	"github.com/themule888/spread-scanner/internal/logger"
)

const analyzerTracer = "arbitrage.analyzer"

// AnalyzerConfig fixes the cost model and the trade-size sweep.
type AnalyzerConfig struct {
	GasUnits       int64
	FlashFeeRate   decimal.Decimal
	TradeSizeMin   decimal.Decimal
	TradeSizeMax   decimal.Decimal
	TradeSizeSteps int
}

// Analyzer turns a detected spread into a simulated round trip. It can only
// simulate legs whose price source exposes on-chain reserves; spreads against
// an off-chain venue are reported but not sized.
type Analyzer struct {
	providers map[string]pricingapp.ReserveProvider
	cfg       AnalyzerConfig
	logger    logger.LoggerInterface
	tracer    trace.Tracer
}

func NewAnalyzer(providers map[string]pricingapp.ReserveProvider, cfg AnalyzerConfig, log logger.LoggerInterface) *Analyzer {
	if cfg.TradeSizeSteps < 1 {
		cfg.TradeSizeSteps = 1
	}
	return &Analyzer{
		providers: providers,
		cfg:       cfg,
		logger:    log.With("component", "analyzer"),
		tracer:    otel.Tracer(analyzerTracer),
	}
}

// Analyze sizes the round trip implied by spread: buy on the low venue, sell
// on the high one. Returns (nil, nil) when either leg has no reserve provider,
// since there is nothing to simulate against. The gas price is converted to
// quote terms through the low venue's price, so the scanned pair's base is
// assumed to be the chain's native asset.
func (a *Analyzer) Analyze(ctx context.Context, spread *pricing.SpreadResult, gas *blockdomain.GasPrice) (*domain.ProfitabilityResult, error) {
	ctx, span := a.tracer.Start(ctx, "analyze",
		trace.WithAttributes(
			attribute.String("buy_source", spread.Low.Source),
			attribute.String("sell_source", spread.High.Source),
		))
	defer span.End()

	buyProv, ok := a.providers[spread.Low.Source]
	if !ok {
		a.logger.Debug(ctx, "buy venue has no reserves to simulate against",
			"source", spread.Low.Source)
		return nil, nil
	}
	sellProv, ok := a.providers[spread.High.Source]
	if !ok {
		a.logger.Debug(ctx, "sell venue has no reserves to simulate against",
			"source", spread.High.Source)
		return nil, nil
	}

	buyState, err := buyProv.ReserveState(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	sellState, err := sellProv.ReserveState(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	costs := domain.CostParams{
		GasPriceGwei: gas.Gwei(),
		GasUnits:     a.cfg.GasUnits,
		NativePrice:  spread.Low.Price,
		FlashFeeRate: a.cfg.FlashFeeRate,
	}

	// Providers hand out the buy-leg orientation; flip the sell side.
	best, err := domain.FindOptimalSize(buyState, sellState.Invert(),
		a.cfg.TradeSizeMin, a.cfg.TradeSizeMax, a.cfg.TradeSizeSteps, costs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("optimal_size", best.AmountIn.String()),
		attribute.String("net_profit", best.NetProfit.String()),
		attribute.Bool("profitable", best.Profitable),
	)
	return best, nil
}
