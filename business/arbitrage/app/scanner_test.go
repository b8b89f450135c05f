package app

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/themule888/spread-scanner/business/arbitrage/domain"
	blockdomain "github.com/themule888/spread-scanner/business/blockchain/domain"
	pricingapp "github.com/themule888/spread-scanner/business/pricing/app"
	pricing "github.com/themule888/spread-scanner/business/pricing/domain"
	"github.com/themule888/spread-scanner/internal/apperror"
	"github.com/themule888/spread-scanner/internal/logger"
)

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

type fakeFetcher struct {
	batch *pricing.QuoteBatch
	err   error
	calls int
}

func (f *fakeFetcher) FetchBatch(_ context.Context, _ string) (*pricing.QuoteBatch, error) {
	f.calls++
	return f.batch, f.err
}

type fakeChain struct {
	blocks chan *blockdomain.Block
	subErr error
}

func (f *fakeChain) GasPrice(context.Context) *blockdomain.GasPrice {
	return blockdomain.GasPriceFromGwei(decimal.RequireFromString("30"))
}

func (f *fakeChain) SubscribeBlocks(context.Context) (<-chan *blockdomain.Block, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	return f.blocks, nil
}

type captureSink struct {
	mu      sync.Mutex
	reports []*domain.Report
	closed  bool
}

func (c *captureSink) Record(_ context.Context, r *domain.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)
	return nil
}

func (c *captureSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *captureSink) recorded() []*domain.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*domain.Report, len(c.reports))
	copy(out, c.reports)
	return out
}

type staticProvider struct {
	state pricing.ReserveState
}

func (p *staticProvider) ReserveState(context.Context) (pricing.ReserveState, error) {
	return p.state, nil
}

func quote(t *testing.T, source, price string) pricing.Quote {
	t.Helper()
	q, err := pricing.NewQuote(source, "ETH",
		decimal.RequireFromString(price), decimal.RequireFromString("4000000"))
	if err != nil {
		t.Fatalf("NewQuote(%s) error = %v", source, err)
	}
	return q
}

func state(in, out string) pricing.ReserveState {
	return pricing.ReserveState{
		ReserveIn:  decimal.RequireFromString(in),
		ReserveOut: decimal.RequireFromString(out),
		FeeRate:    decimal.RequireFromString("0.003"),
	}
}

func testAnalyzer() *Analyzer {
	providers := map[string]pricingapp.ReserveProvider{
		"pool-a": &staticProvider{state: state("2000000", "1000")},
		"pool-b": &staticProvider{state: state("2100000", "1000")},
	}
	return NewAnalyzer(providers, AnalyzerConfig{
		GasUnits:       250000,
		FlashFeeRate:   decimal.RequireFromString("0.0009"),
		TradeSizeMin:   decimal.RequireFromString("1000"),
		TradeSizeMax:   decimal.RequireFromString("50000"),
		TradeSizeSteps: 10,
	}, testLogger())
}

func spreadBatch(t *testing.T) *pricing.QuoteBatch {
	t.Helper()
	return &pricing.QuoteBatch{
		Asset:     "ETH",
		Quotes:    []pricing.Quote{quote(t, "pool-a", "2000"), quote(t, "pool-b", "2100")},
		Timestamp: time.Now(),
	}
}

func scannerConfig() ScannerConfig {
	return ScannerConfig{
		Asset:           "ETH",
		Interval:        time.Hour,
		SpreadThreshold: decimal.RequireFromString("0.5"),
	}
}

func TestScannerTickRecordsOpportunity(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{batch: spreadBatch(t)}
	sink := &captureSink{}
	s, err := NewScanner(fetcher, &fakeChain{}, testAnalyzer(), sink, scannerConfig(), testLogger())
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	s.tick(context.Background(), 42)

	reports := sink.recorded()
	if len(reports) != 1 {
		t.Fatalf("recorded %d reports, want 1", len(reports))
	}
	r := reports[0]
	if !r.HasOpportunity() {
		t.Fatalf("report has no opportunity, spread = %+v", r.Spread)
	}
	if r.Spread.Low.Source != "pool-a" || r.Spread.High.Source != "pool-b" {
		t.Errorf("spread legs = %s/%s, want pool-a/pool-b",
			r.Spread.Low.Source, r.Spread.High.Source)
	}
	if r.Profit == nil {
		t.Fatal("report has no profitability section")
	}
	if !r.Profit.Profitable {
		t.Errorf("expected a profitable sizing, net = %s", r.Profit.NetProfit)
	}
	if r.BlockNumber != 42 {
		t.Errorf("block number = %d, want 42", r.BlockNumber)
	}
	if got := s.Ticks(); got != 1 {
		t.Errorf("Ticks() = %d, want 1", got)
	}
}

func TestScannerTickWithoutReserveProviders(t *testing.T) {
	t.Parallel()

	// Spread against venues that expose no reserves: report it, don't size it.
	fetcher := &fakeFetcher{batch: &pricing.QuoteBatch{
		Asset:     "ETH",
		Quotes:    []pricing.Quote{quote(t, "binance", "2000"), quote(t, "kraken", "2100")},
		Timestamp: time.Now(),
	}}
	sink := &captureSink{}
	s, err := NewScanner(fetcher, &fakeChain{}, testAnalyzer(), sink, scannerConfig(), testLogger())
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	s.tick(context.Background(), 0)

	reports := sink.recorded()
	if len(reports) != 1 {
		t.Fatalf("recorded %d reports, want 1", len(reports))
	}
	if !reports[0].HasOpportunity() {
		t.Error("spread above threshold not flagged as opportunity")
	}
	if reports[0].Profit != nil {
		t.Errorf("profit section = %+v, want nil without reserve providers", reports[0].Profit)
	}
}

func TestScannerTickSkipsWhenAllSourcesFail(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: apperror.New(apperror.CodeAllSourcesFailed)}
	sink := &captureSink{}
	s, err := NewScanner(fetcher, &fakeChain{}, testAnalyzer(), sink, scannerConfig(), testLogger())
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	s.tick(context.Background(), 0)

	if got := len(sink.recorded()); got != 0 {
		t.Errorf("recorded %d reports, want 0 for a skipped tick", got)
	}
	if got := s.Ticks(); got != 0 {
		t.Errorf("Ticks() = %d, want 0", got)
	}
}

func TestScannerTickSingleQuote(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{batch: &pricing.QuoteBatch{
		Asset:     "ETH",
		Quotes:    []pricing.Quote{quote(t, "pool-a", "2000")},
		Timestamp: time.Now(),
	}}
	sink := &captureSink{}
	s, err := NewScanner(fetcher, &fakeChain{}, testAnalyzer(), sink, scannerConfig(), testLogger())
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	s.tick(context.Background(), 0)

	reports := sink.recorded()
	if len(reports) != 1 {
		t.Fatalf("recorded %d reports, want 1", len(reports))
	}
	if reports[0].Spread != nil {
		t.Errorf("spread = %+v, want nil with a single quote", reports[0].Spread)
	}
}

func TestScannerBlockDriven(t *testing.T) {
	t.Parallel()

	blocks := make(chan *blockdomain.Block)
	fetcher := &fakeFetcher{batch: spreadBatch(t)}
	sink := &captureSink{}

	cfg := scannerConfig()
	cfg.BlockDriven = true
	s, err := NewScanner(fetcher, &fakeChain{blocks: blocks}, testAnalyzer(), sink, cfg, testLogger())
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	s.Start(context.Background())
	blocks <- &blockdomain.Block{Number: 100}
	blocks <- &blockdomain.Block{Number: 101}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	reports := sink.recorded()
	if len(reports) != 2 {
		t.Fatalf("recorded %d reports, want 2", len(reports))
	}
	if reports[0].BlockNumber != 100 || reports[1].BlockNumber != 101 {
		t.Errorf("block numbers = %d, %d, want 100, 101",
			reports[0].BlockNumber, reports[1].BlockNumber)
	}
	if !sink.closed {
		t.Error("Stop() did not close the sink")
	}
}

func TestScannerStopIdempotent(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{batch: spreadBatch(t)}
	sink := &captureSink{}
	s, err := NewScanner(fetcher, &fakeChain{}, testAnalyzer(), sink, scannerConfig(), testLogger())
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	s.Start(context.Background())
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if got := s.State(); got != StateCancelled {
		t.Errorf("State() after Stop = %s, want %s", got, StateCancelled)
	}
}

func TestScannerStateTransitions(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{batch: spreadBatch(t)}
	s, err := NewScanner(fetcher, &fakeChain{}, testAnalyzer(), &captureSink{}, scannerConfig(), testLogger())
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	if got := s.State(); got != StateIdle {
		t.Errorf("initial State() = %s, want %s", got, StateIdle)
	}
	s.tick(context.Background(), 0)
	if got := s.State(); got != StateSleeping {
		t.Errorf("State() after tick = %s, want %s", got, StateSleeping)
	}
}
