package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/themule888/spread-scanner/business/arbitrage/domain"
	blockdomain "github.com/themule888/spread-scanner/business/blockchain/domain"
	pricing "github.com/themule888/spread-scanner/business/pricing/domain"
	"github.com/themule888/spread-scanner/internal/apperror"
	"github.com/themule888/spread-scanner/internal/logger"
)

const (
	scannerTracer = "arbitrage.scanner"
	scannerMeter  = "arbitrage"
)

// ScannerConfig controls the scan schedule and the spread threshold.
// When BlockDriven is set, ticks follow new chain heads instead of the
// wall-clock interval; the interval remains the fallback if the head
// subscription cannot be established.
type ScannerConfig struct {
	Asset           string
	Interval        time.Duration
	BlockDriven     bool
	SpreadThreshold decimal.Decimal // percent
}

// ScanState is the observable phase of the scan loop.
type ScanState string

const (
	StateIdle      ScanState = "idle"
	StateFetching  ScanState = "fetching"
	StateAnalyzing ScanState = "analyzing"
	StateSleeping  ScanState = "sleeping"
	StateCancelled ScanState = "cancelled"
)

// scannerMetrics holds OTEL metric instruments.
type scannerMetrics struct {
	ticksTotal         metric.Int64Counter
	ticksSkipped       metric.Int64Counter
	opportunitiesTotal metric.Int64Counter
	tickDuration       metric.Float64Histogram
}

// Scanner runs the continuous reconciliation loop: fetch a quote batch,
// measure the spread, size the opportunity, hand the report to the sink.
type Scanner struct {
	fetcher  QuoteFetcher
	chain    ChainInfo
	analyzer *Analyzer
	sink     Sink
	cfg      ScannerConfig
	logger   logger.LoggerInterface

	tracer  trace.Tracer
	metrics *scannerMetrics

	ticks    atomic.Uint64
	state    atomic.Value // ScanState
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScanner(fetcher QuoteFetcher, chain ChainInfo, analyzer *Analyzer, sink Sink, cfg ScannerConfig, log logger.LoggerInterface) (*Scanner, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	s := &Scanner{
		fetcher:  fetcher,
		chain:    chain,
		analyzer: analyzer,
		sink:     sink,
		cfg:      cfg,
		logger:   log.With("component", "scanner"),
		tracer:   otel.Tracer(scannerTracer),
		stop:     make(chan struct{}),
	}
	s.state.Store(StateIdle)
	if err := s.initMetrics(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scanner) initMetrics() error {
	meter := otel.Meter(scannerMeter)
	var err error

	s.metrics = &scannerMetrics{}

	s.metrics.ticksTotal, err = meter.Int64Counter(
		"scan_ticks_total",
		metric.WithDescription("Total completed scan ticks"),
	)
	if err != nil {
		return err
	}

	s.metrics.ticksSkipped, err = meter.Int64Counter(
		"scan_ticks_skipped_total",
		metric.WithDescription("Scan ticks skipped because every source failed"),
	)
	if err != nil {
		return err
	}

	s.metrics.opportunitiesTotal, err = meter.Int64Counter(
		"scan_opportunities_total",
		metric.WithDescription("Spreads that cleared the configured threshold"),
	)
	if err != nil {
		return err
	}

	s.metrics.tickDuration, err = meter.Float64Histogram(
		"scan_tick_duration_ms",
		metric.WithDescription("Scan tick duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}

// Start launches the scan loop and returns immediately.
func (s *Scanner) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Scanner) run(ctx context.Context) {
	defer s.wg.Done()
	defer s.state.Store(StateCancelled)

	if s.cfg.BlockDriven {
		blocks, err := s.chain.SubscribeBlocks(ctx)
		if err == nil {
			s.logger.Info(ctx, "scanning on new chain heads", "asset", s.cfg.Asset)
			s.runBlockDriven(ctx, blocks)
			return
		}
		s.logger.Warn(ctx, "head subscription unavailable, falling back to interval",
			"error", err, "interval", s.cfg.Interval)
	}

	s.logger.Info(ctx, "scanning on interval",
		"asset", s.cfg.Asset, "interval", s.cfg.Interval)
	s.runInterval(ctx)
}

func (s *Scanner) runInterval(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// First tick fires immediately rather than one interval in.
	s.tick(ctx, 0)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(ctx, 0)
		}
	}
}

// runBlockDriven ticks once per new head. The subscriber already dedupes
// heights across its transports, so every delivery is a strictly newer block.
func (s *Scanner) runBlockDriven(ctx context.Context, blocks <-chan *blockdomain.Block) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case block, ok := <-blocks:
			if !ok {
				s.logger.Warn(ctx, "head stream closed, falling back to interval")
				s.runInterval(ctx)
				return
			}
			s.tick(ctx, block.Number)
		}
	}
}

// Stop halts the loop and closes the sink. Safe to call more than once;
// later calls are no-ops.
func (s *Scanner) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		s.state.Store(StateCancelled)
		s.logger.Info(ctx, "scanner stopped", "ticks", s.ticks.Load())
		err = s.sink.Close()
	})
	return err
}

// Ticks returns the number of completed scan ticks.
func (s *Scanner) Ticks() uint64 {
	return s.ticks.Load()
}

// State returns the loop's current phase.
func (s *Scanner) State() ScanState {
	return s.state.Load().(ScanState)
}

func (s *Scanner) tick(ctx context.Context, blockNumber uint64) {
	ctx, span := s.tracer.Start(ctx, "scan_tick",
		trace.WithAttributes(attribute.String("asset", s.cfg.Asset)))
	defer span.End()

	start := time.Now()
	defer func() {
		s.state.Store(StateSleeping)
		s.metrics.tickDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}()

	s.state.Store(StateFetching)
	batch, err := s.fetcher.FetchBatch(ctx, s.cfg.Asset)
	if err != nil {
		// No usable price at all: nothing to record this tick.
		s.metrics.ticksSkipped.Add(ctx, 1)
		span.RecordError(err)
		if apperror.HasCode(err, apperror.CodeAllSourcesFailed) {
			s.logger.Warn(ctx, "all sources failed, skipping tick", "asset", s.cfg.Asset)
		} else {
			s.logger.Error(ctx, "quote fetch failed", "asset", s.cfg.Asset, "error", err)
		}
		return
	}

	s.state.Store(StateAnalyzing)
	report := &domain.Report{
		Tick:        s.ticks.Add(1),
		BlockNumber: blockNumber,
		Batch:       batch,
		Timestamp:   time.Now(),
	}

	spread, err := pricing.AnalyzeSpread(batch, s.cfg.SpreadThreshold)
	switch {
	case apperror.HasCode(err, apperror.CodeInsufficientData):
		// A single surviving quote still gets recorded.
		s.logger.Debug(ctx, "not enough quotes for a spread", "asset", s.cfg.Asset)
	case err != nil:
		span.RecordError(err)
		s.logger.Error(ctx, "spread analysis failed", "asset", s.cfg.Asset, "error", err)
	default:
		report.Spread = spread
		if spread.Opportunity {
			s.metrics.opportunitiesTotal.Add(ctx, 1)
			s.logger.Info(ctx, "spread above threshold",
				"asset", s.cfg.Asset,
				"low", spread.Low.Source, "low_price", spread.Low.Price,
				"high", spread.High.Source, "high_price", spread.High.Price,
				"spread_pct", spread.Percent)

			profit, err := s.analyzer.Analyze(ctx, spread, s.chain.GasPrice(ctx))
			if err != nil {
				span.RecordError(err)
				s.logger.Error(ctx, "profitability analysis failed", "error", err)
			} else {
				report.Profit = profit
			}
		}
	}

	if err := s.sink.Record(ctx, report); err != nil {
		span.RecordError(err)
		s.logger.Error(ctx, "sink record failed", "error", err)
	}
	s.metrics.ticksTotal.Add(ctx, 1)
}
