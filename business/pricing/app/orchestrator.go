package app

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/themule888/spread-scanner/business/pricing/domain"
	"github.com/themule888/spread-scanner/internal/apperror"
	"github.com/themule888/spread-scanner/internal/logger"
	"github.com/themule888/spread-scanner/internal/retry"
)

const orchestratorTracer = "pricing.orchestrator"

// Orchestrator fetches one asset's price from every source concurrently.
type Orchestrator struct {
	sources []QuoteSource
	logger  logger.LoggerInterface
	tracer  trace.Tracer
}

// OrchestratorConfig bundles the fetch policy.
type OrchestratorConfig struct {
	// AttemptTimeout bounds each individual fetch attempt inside the retry
	// wrapper; a source is therefore bounded by AttemptTimeout x MaxAttempts
	// plus backoff sleeps, never cut off mid-retry by a shared budget.
	AttemptTimeout time.Duration
	// Retry is applied per source via WrapSource.
	Retry retry.Config
}

// NewOrchestrator wraps every source with the retry policy and returns the
// orchestrator. Source order is preserved in every batch.
func NewOrchestrator(sources []QuoteSource, cfg OrchestratorConfig, log logger.LoggerInterface) *Orchestrator {
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	wrapped := make([]QuoteSource, len(sources))
	for i, src := range sources {
		wrapped[i] = WrapSource(src, timeout, cfg.Retry)
	}

	return &Orchestrator{
		sources: wrapped,
		logger:  log,
		tracer:  otel.Tracer(orchestratorTracer),
	}
}

// FetchBatch queries all sources in parallel and returns their quotes in
// source order. A slow or failing source never cancels the others; the batch
// only errors when every source failed.
func (o *Orchestrator) FetchBatch(ctx context.Context, asset string) (*domain.QuoteBatch, error) {
	ctx, span := o.tracer.Start(ctx, "FetchBatch",
		trace.WithAttributes(
			attribute.String("asset", asset),
			attribute.Int("sources", len(o.sources)),
		))
	defer span.End()

	start := time.Now()
	quotes := make([]domain.Quote, len(o.sources))

	var wg sync.WaitGroup
	for i, src := range o.sources {
		wg.Add(1)
		go func(i int, src QuoteSource) {
			defer wg.Done()
			quotes[i] = src.FetchQuote(ctx, asset)
		}(i, src)
	}
	wg.Wait()

	batch := &domain.QuoteBatch{
		Asset:         asset,
		Quotes:        quotes,
		Timestamp:     time.Now(),
		FetchDuration: time.Since(start),
	}

	for _, q := range batch.Failed() {
		o.logger.Warn(ctx, "quote fetch failed",
			"source", q.Source, "asset", asset, "error", q.Err)
	}

	if len(batch.Successful()) == 0 {
		err := apperror.New(apperror.CodeAllSourcesFailed,
			apperror.WithContext("asset", asset),
			apperror.WithContext("sources", strconv.Itoa(len(o.sources))))
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("successful", len(batch.Successful())),
		attribute.Int64("duration_ms", batch.FetchDuration.Milliseconds()),
	)
	return batch, nil
}
