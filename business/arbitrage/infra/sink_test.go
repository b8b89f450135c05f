package infra

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/themule888/spread-scanner/business/arbitrage/domain"
	pricing "github.com/themule888/spread-scanner/business/pricing/domain"
)

func sampleReport(t *testing.T, withProfit bool) *domain.Report {
	t.Helper()

	low, err := pricing.NewQuote("pool-a", "ETH",
		decimal.RequireFromString("2000"), decimal.RequireFromString("4000000"))
	if err != nil {
		t.Fatalf("NewQuote() error = %v", err)
	}
	high, err := pricing.NewQuote("binance", "ETH",
		decimal.RequireFromString("2100"), decimal.Zero)
	if err != nil {
		t.Fatalf("NewQuote() error = %v", err)
	}

	r := &domain.Report{
		Tick:        7,
		BlockNumber: 19000000,
		Batch: &pricing.QuoteBatch{
			Asset:     "ETH",
			Quotes:    []pricing.Quote{low, high},
			Timestamp: time.Now(),
		},
		Spread: &pricing.SpreadResult{
			High:        high,
			Low:         low,
			Absolute:    decimal.RequireFromString("100"),
			Percent:     decimal.RequireFromString("5"),
			Opportunity: true,
		},
		Timestamp: time.Now(),
	}
	if withProfit {
		r.Profit = &domain.ProfitabilityResult{
			AmountIn:     decimal.RequireFromString("10000"),
			Intermediate: decimal.RequireFromString("4.96"),
			FinalOut:     decimal.RequireFromString("10334"),
			GrossProfit:  decimal.RequireFromString("334"),
			GasCost:      decimal.RequireFromString("15"),
			FlashLoanFee: decimal.RequireFromString("9"),
			NetProfit:    decimal.RequireFromString("310"),
			ImpactBuy:    decimal.RequireFromString("0.49"),
			ImpactSell:   decimal.RequireFromString("0.49"),
			Profitable:   true,
		}
	}
	return r
}

func TestConsoleSinkOpportunity(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewConsoleSinkWriter(&buf)

	if err := sink.Record(context.Background(), sampleReport(t, true)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"SPREAD OPPORTUNITY", "pool-a", "binance",
		"Net profit:   310.00", "PROFITABLE", "block 19000000",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConsoleSinkQuietTick(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewConsoleSinkWriter(&buf)

	r := sampleReport(t, false)
	r.Spread = nil
	if err := sink.Record(context.Background(), r); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "no spread") {
		t.Errorf("quiet tick output = %q, want a no-spread line", out)
	}
}

func TestCSVSinkWritesRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ticks.csv")
	sink, err := NewCSVSink(path)
	if err != nil {
		t.Fatalf("NewCSVSink() error = %v", err)
	}

	if err := sink.Record(context.Background(), sampleReport(t, true)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	r := sampleReport(t, false)
	r.Spread = nil
	if err := sink.Record(context.Background(), r); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header plus 2", len(rows))
	}
	if rows[0][0] != "timestamp" {
		t.Errorf("header starts with %q, want timestamp", rows[0][0])
	}
	if rows[1][6] != "pool-a" || rows[1][12] != "true" {
		t.Errorf("opportunity row = %v", rows[1])
	}
	if rows[2][6] != "" {
		t.Errorf("spreadless row carries low source %q, want empty", rows[2][6])
	}
}

func TestCSVSinkAppendsWithoutDuplicateHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ticks.csv")
	for i := 0; i < 2; i++ {
		sink, err := NewCSVSink(path)
		if err != nil {
			t.Fatalf("NewCSVSink() error = %v", err)
		}
		if err := sink.Record(context.Background(), sampleReport(t, true)); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if err := sink.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.Count(string(data), "timestamp,tick"); got != 1 {
		t.Errorf("header written %d times, want 1", got)
	}
}

type flakySink struct {
	records int
	closed  bool
	err     error
}

func (f *flakySink) Record(context.Context, *domain.Report) error {
	f.records++
	return f.err
}

func (f *flakySink) Close() error {
	f.closed = true
	return f.err
}

func TestMultiSinkDeliversPastFailures(t *testing.T) {
	t.Parallel()

	bad := &flakySink{err: errors.New("down")}
	good := &flakySink{}
	multi := NewMultiSink(bad, good)

	err := multi.Record(context.Background(), sampleReport(t, false))
	if err == nil {
		t.Error("Record() error = nil, want the failing sink's error")
	}
	if good.records != 1 {
		t.Errorf("healthy sink got %d records, want 1", good.records)
	}

	if err := multi.Close(); err == nil {
		t.Error("Close() error = nil, want the failing sink's error")
	}
	if !good.closed {
		t.Error("healthy sink not closed")
	}
}
