package exchange

import (
	"context"
	"time"

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
	"github.com/themule888/spread-scanner/internal/httpclient"
	"github.com/themule888/spread-scanner/internal/logger"
	"github.com/themule888/spread-scanner/internal/ratelimit"
)

const (
	tracerName = "exchange"
	meterName  = "exchange"
)

// Ensure TickerSource implements QuoteSource.
var _ app.QuoteSource = (*TickerSource)(nil)

// TickerSourceConfig holds configuration for one REST ticker source.
type TickerSourceConfig struct {
	Venue          string        // binance, kraken or coingecko
	BaseURL        string        // empty = venue default
	Pair           asset.Pair    // pair to quote, e.g. ETH-USDC
	RequestsPerMin int           // rate limit budget
	RequestTimeout time.Duration // per-request HTTP timeout
}

// sourceMetrics holds OTEL metric instruments.
type sourceMetrics struct {
	fetchesTotal metric.Int64Counter
	fetchLatency metric.Float64Histogram
	fetchErrors  metric.Int64Counter
}

// TickerSource fetches spot prices from one exchange REST API. Ticker
// prices carry no liquidity information, so TVL is reported as zero.
type TickerSource struct {
	venue  venue
	pair   asset.Pair
	client httpclient.Client

	limiter *ratelimit.Limiter
	window  *ratelimit.CallWindow
	logger  logger.LoggerInterface

	tracer  trace.Tracer
	metrics *sourceMetrics
}

// NewTickerSource creates a REST quote source for one exchange.
func NewTickerSource(cfg TickerSourceConfig, log logger.LoggerInterface) (*TickerSource, error) {
	v, err := venueByName(cfg.Venue)
	if err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = v.defaultBaseURL()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName(v.name()),
		httpclient.WithBaseURL(baseURL),
		httpclient.WithRequestTimeout(timeout),
	)
	if err != nil {
		return nil, err
	}

	s := &TickerSource{
		venue:   v,
		pair:    cfg.Pair,
		client:  client,
		limiter: ratelimit.New(cfg.RequestsPerMin),
		window:  ratelimit.NewCallWindow(time.Minute),
		logger:  log,
		tracer:  otel.Tracer(tracerName),
	}

	if err := s.initMetrics(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *TickerSource) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &sourceMetrics{}

	s.metrics.fetchesTotal, err = meter.Int64Counter(
		"exchange_fetches_total",
		metric.WithDescription("Total exchange ticker fetches"),
	)
	if err != nil {
		return err
	}

	s.metrics.fetchLatency, err = meter.Float64Histogram(
		"exchange_fetch_latency_ms",
		metric.WithDescription("Exchange ticker fetch latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	s.metrics.fetchErrors, err = meter.Int64Counter(
		"exchange_fetch_errors_total",
		metric.WithDescription("Total exchange ticker fetch errors"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Name returns the venue name.
func (s *TickerSource) Name() string {
	return s.venue.name()
}

// FetchQuote fetches the current spot price for the asset. Transport
// and API failures come back as retryable failed quotes; an unlisted
// pair fails immediately as unsupported.
func (s *TickerSource) FetchQuote(ctx context.Context, assetSymbol string) domain.Quote {
	ctx, span := s.tracer.Start(ctx, "exchange.fetch_quote",
		trace.WithAttributes(
			attribute.String("exchange", s.venue.name()),
			attribute.String("asset", assetSymbol),
		),
	)
	defer span.End()

	start := time.Now()
	s.metrics.fetchesTotal.Add(ctx, 1)

	if assetSymbol != s.pair.Base {
		err := unsupportedPair(s.venue.name(), assetSymbol, s.pair.Quote)
		return s.fail(ctx, span, assetSymbol, err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		err = apperror.New(apperror.CodeSourceUnavailable,
			apperror.WithCause(err),
			apperror.WithMessage("rate limiter wait aborted"),
			apperror.WithContext("exchange", s.venue.name()))
		return s.fail(ctx, span, assetSymbol, err)
	}

	price, err := s.venue.fetchPrice(ctx, s.client, s.pair.Base, s.pair.Quote)
	s.window.Record()

	latency := float64(time.Since(start).Milliseconds())
	s.metrics.fetchLatency.Record(ctx, latency)

	if err != nil {
		if !apperror.HasCode(err, apperror.CodeUnsupportedAsset) {
			err = apperror.New(apperror.CodeSourceUnavailable,
				apperror.WithCause(err),
				apperror.WithMessage("exchange fetch failed"),
				apperror.WithContext("exchange", s.venue.name()))
		}
		return s.fail(ctx, span, assetSymbol, err)
	}

	quote, err := domain.NewQuote(s.venue.name(), assetSymbol, price, decimal.Zero)
	if err != nil {
		return s.fail(ctx, span, assetSymbol, err)
	}

	span.SetAttributes(attribute.String("price", price.String()))
	span.SetStatus(codes.Ok, "quote fetched")

	s.logger.Debug(ctx, "exchange quote",
		"exchange", s.venue.name(),
		"asset", assetSymbol,
		"price", price.String(),
		"calls_last_minute", s.window.Count(),
	)

	return quote
}

func (s *TickerSource) fail(ctx context.Context, span trace.Span, assetSymbol string, err error) domain.Quote {
	s.metrics.fetchErrors.Add(ctx, 1)
	span.SetStatus(codes.Error, err.Error())
	return domain.NewFailedQuote(s.venue.name(), assetSymbol, err)
}
