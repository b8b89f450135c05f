package pool

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/themule888/spread-scanner/business/pricing/app"
	"github.com/themule888/spread-scanner/business/pricing/domain"
	"github.com/themule888/spread-scanner/internal/apperror"
	"github.com/themule888/spread-scanner/internal/asset"
	"github.com/themule888/spread-scanner/internal/config"
	"github.com/themule888/spread-scanner/internal/logger"
	"github.com/themule888/spread-scanner/internal/ratelimit"
)

const (
	tracerName = "pool"
	meterName  = "pool"
)

var two = decimal.NewFromInt(2)

// Ensure Source implements the pricing ports.
var (
	_ app.QuoteSource     = (*Source)(nil)
	_ app.ReserveProvider = (*Source)(nil)
)

// sourceMetrics holds OTEL metric instruments.
type sourceMetrics struct {
	fetchesTotal metric.Int64Counter
	fetchLatency metric.Float64Histogram
	fetchErrors  metric.Int64Counter
}

// Source derives a spot price from the reserves of one on-chain
// constant-product pool. The price is quoteReserve/baseReserve and the
// reported TVL is twice the quote-side reserve.
type Source struct {
	name       string
	pair       common.Address
	quoteToken common.Address
	base       asset.Asset
	quote      asset.Asset
	feeRate    decimal.Decimal

	reader  ReserveReader
	limiter *ratelimit.Limiter
	window  *ratelimit.CallWindow
	logger  logger.LoggerInterface

	tracer  trace.Tracer
	metrics *sourceMetrics
}

// NewSource creates a quote source for one configured pool.
func NewSource(reader ReserveReader, cfg config.PoolConfig, requestsPerMin int, log logger.LoggerInterface) (*Source, error) {
	base, err := asset.New(cfg.BaseSymbol, cfg.BaseDecimals)
	if err != nil {
		return nil, err
	}
	quote, err := asset.New(cfg.QuoteSymbol, cfg.QuoteDecimals)
	if err != nil {
		return nil, err
	}

	s := &Source{
		name:       cfg.Name,
		pair:       cfg.AddressHex(),
		quoteToken: cfg.QuoteTokenHex(),
		base:       base,
		quote:      quote,
		feeRate:    cfg.FeeRateDecimal(),
		reader:     reader,
		limiter:    ratelimit.New(requestsPerMin),
		window:     ratelimit.NewCallWindow(time.Minute),
		logger:     log,
		tracer:     otel.Tracer(tracerName),
	}

	if err := s.initMetrics(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Source) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &sourceMetrics{}

	s.metrics.fetchesTotal, err = meter.Int64Counter(
		"pool_fetches_total",
		metric.WithDescription("Total pool reserve fetches"),
	)
	if err != nil {
		return err
	}

	s.metrics.fetchLatency, err = meter.Float64Histogram(
		"pool_fetch_latency_ms",
		metric.WithDescription("Pool reserve fetch latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	s.metrics.fetchErrors, err = meter.Int64Counter(
		"pool_fetch_errors_total",
		metric.WithDescription("Total pool reserve fetch errors"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Name returns the configured pool name.
func (s *Source) Name() string {
	return s.name
}

// FetchQuote reads the pool reserves and returns the implied spot price
// for the asset in quote-currency terms. Failures come back as failed
// quotes so the orchestrator can aggregate them without special cases.
func (s *Source) FetchQuote(ctx context.Context, assetSymbol string) domain.Quote {
	ctx, span := s.tracer.Start(ctx, "pool.fetch_quote",
		trace.WithAttributes(
			attribute.String("pool", s.name),
			attribute.String("pair", s.pair.Hex()),
			attribute.String("asset", assetSymbol),
		),
	)
	defer span.End()

	start := time.Now()
	s.metrics.fetchesTotal.Add(ctx, 1)

	if assetSymbol != s.base.Symbol() {
		err := apperror.New(apperror.CodeUnsupportedAsset,
			apperror.WithMessage("pool does not trade the requested asset"),
			apperror.WithContext("pool", s.name),
			apperror.WithContext("asset", assetSymbol),
			apperror.WithContext("base", s.base.Symbol()))
		return s.fail(ctx, span, assetSymbol, err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		err = apperror.New(apperror.CodeSourceUnavailable,
			apperror.WithCause(err),
			apperror.WithMessage("rate limiter wait aborted"),
			apperror.WithContext("pool", s.name))
		return s.fail(ctx, span, assetSymbol, err)
	}

	baseReserve, quoteReserve, err := s.scaledReserves(ctx)

	latency := float64(time.Since(start).Milliseconds())
	s.metrics.fetchLatency.Record(ctx, latency)

	if err != nil {
		return s.fail(ctx, span, assetSymbol, err)
	}

	if !baseReserve.IsPositive() || !quoteReserve.IsPositive() {
		err := apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithMessage("pool has empty reserves"),
			apperror.WithContext("pool", s.name))
		return s.fail(ctx, span, assetSymbol, err)
	}

	price := quoteReserve.Div(baseReserve)
	tvl := quoteReserve.Mul(two)

	quote, err := domain.NewQuote(s.name, assetSymbol, price, tvl)
	if err != nil {
		return s.fail(ctx, span, assetSymbol, err)
	}

	span.SetAttributes(
		attribute.String("price", price.String()),
		attribute.String("tvl", tvl.String()),
	)
	span.SetStatus(codes.Ok, "quote derived")

	s.logger.Debug(ctx, "pool quote",
		"pool", s.name,
		"asset", assetSymbol,
		"price", price.String(),
		"tvl", tvl.String(),
		"calls_last_minute", s.window.Count(),
	)

	return quote
}

// ReserveState returns the pool oriented for a quote-to-base swap,
// which is the buy leg of a spread trade. Invert it for the sell leg.
func (s *Source) ReserveState(ctx context.Context) (domain.ReserveState, error) {
	baseReserve, quoteReserve, err := s.scaledReserves(ctx)
	if err != nil {
		return domain.ReserveState{}, err
	}

	rs := domain.ReserveState{
		ReserveIn:  quoteReserve,
		ReserveOut: baseReserve,
		FeeRate:    s.feeRate,
	}
	if err := rs.Validate(); err != nil {
		return domain.ReserveState{}, err
	}
	return rs, nil
}

// scaledReserves reads raw reserves, resolves which side is the quote
// currency from the on-chain token order, and scales both to decimal
// amounts. The configured quote token address is authoritative: if it
// matches neither token the pool is misconfigured and no price is
// derived.
func (s *Source) scaledReserves(ctx context.Context) (baseReserve, quoteReserve decimal.Decimal, err error) {
	order, err := s.reader.GetTokenOrder(ctx, s.pair)
	if err != nil {
		s.window.Record()
		return decimal.Zero, decimal.Zero, wrapUnavailable(err, s.name)
	}

	reserves, err := s.reader.GetReserves(ctx, s.pair)
	s.window.Record()
	if err != nil {
		return decimal.Zero, decimal.Zero, wrapUnavailable(err, s.name)
	}

	var quoteRaw, baseRaw = reserves.Reserve0, reserves.Reserve1
	switch s.quoteToken {
	case order.Token0:
		// already oriented
	case order.Token1:
		quoteRaw, baseRaw = reserves.Reserve1, reserves.Reserve0
	default:
		return decimal.Zero, decimal.Zero, apperror.New(apperror.CodeAmbiguousTokenOrder,
			apperror.WithMessage("configured quote token matches neither pair token"),
			apperror.WithContext("pool", s.name),
			apperror.WithContext("quote_token", s.quoteToken.Hex()),
			apperror.WithContext("token0", order.Token0.Hex()),
			apperror.WithContext("token1", order.Token1.Hex()))
	}

	return s.base.FromRaw(baseRaw), s.quote.FromRaw(quoteRaw), nil
}

func (s *Source) fail(ctx context.Context, span trace.Span, assetSymbol string, err error) domain.Quote {
	s.metrics.fetchErrors.Add(ctx, 1)
	span.SetStatus(codes.Error, err.Error())
	return domain.NewFailedQuote(s.name, assetSymbol, err)
}

// wrapUnavailable classifies upstream read failures as retryable
// source outages unless they already carry a domain code.
func wrapUnavailable(err error, pool string) error {
	if apperror.HasCode(err, apperror.CodeSourceUnavailable) {
		return err
	}
	return apperror.New(apperror.CodeSourceUnavailable,
		apperror.WithCause(err),
		apperror.WithMessage("pool state read failed"),
		apperror.WithContext("pool", pool))
}
