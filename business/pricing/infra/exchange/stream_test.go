package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/themule888/spread-scanner/internal/apperror"
)

func newTestStream(t *testing.T, stale time.Duration) *StreamSource {
	t.Helper()
	src, err := NewStreamSource(StreamSourceConfig{
		Pair:         ethUSDC(t),
		StaleTimeout: stale,
	}, testLogger(t))
	if err != nil {
		t.Fatalf("NewStreamSource: %v", err)
	}
	return src
}

func TestStreamQuoteFromTick(t *testing.T) {
	t.Parallel()

	src := newTestStream(t, time.Minute)
	src.handleMessage(context.Background(),
		[]byte(`{"u":400900217,"s":"ETHUSDC","b":"2000.50","B":"31.21","a":"2001.50","A":"40.66"}`))

	quote := src.FetchQuote(context.Background(), "ETH")
	if !quote.Success() {
		t.Fatalf("unexpected failure: %v", quote.Err)
	}

	wantMid := decimal.RequireFromString("2001")
	if !quote.Price.Equal(wantMid) {
		t.Errorf("price = %s, want %s", quote.Price, wantMid)
	}
	if quote.Source != "binance-stream" {
		t.Errorf("source = %s", quote.Source)
	}
}

func TestStreamQuoteBeforeFirstTick(t *testing.T) {
	t.Parallel()

	src := newTestStream(t, time.Minute)
	quote := src.FetchQuote(context.Background(), "ETH")

	if quote.Success() {
		t.Fatal("expected failed quote before first tick")
	}
	if !apperror.HasCode(quote.Err, apperror.CodeSourceUnavailable) {
		t.Errorf("error = %v, want SOURCE_UNAVAILABLE", quote.Err)
	}
}

func TestStreamQuoteGoesStale(t *testing.T) {
	t.Parallel()

	src := newTestStream(t, 20*time.Millisecond)
	src.handleMessage(context.Background(),
		[]byte(`{"s":"ETHUSDC","b":"2000.50","a":"2001.50"}`))

	if quote := src.FetchQuote(context.Background(), "ETH"); !quote.Success() {
		t.Fatalf("fresh tick rejected: %v", quote.Err)
	}

	time.Sleep(40 * time.Millisecond)

	quote := src.FetchQuote(context.Background(), "ETH")
	if quote.Success() {
		t.Fatal("expected stale tick to be rejected")
	}
	if !apperror.HasCode(quote.Err, apperror.CodeSourceUnavailable) {
		t.Errorf("error = %v, want SOURCE_UNAVAILABLE", quote.Err)
	}
}

func TestStreamDropsBadTicks(t *testing.T) {
	t.Parallel()

	src := newTestStream(t, time.Minute)

	// None of these should produce a servable tick.
	payloads := []string{
		`not json`,
		`{"s":"BTCUSDT","b":"50000","a":"50001"}`,
		`{"s":"ETHUSDC","b":"oops","a":"2001.50"}`,
		`{"s":"ETHUSDC","b":"2000.50","a":"-1"}`,
	}
	for _, p := range payloads {
		src.handleMessage(context.Background(), []byte(p))
	}

	if quote := src.FetchQuote(context.Background(), "ETH"); quote.Success() {
		t.Fatalf("bad ticks produced a quote: %s", quote.Price)
	}
}

func TestStreamUnsupportedAsset(t *testing.T) {
	t.Parallel()

	src := newTestStream(t, time.Minute)
	quote := src.FetchQuote(context.Background(), "BTC")

	if quote.Success() {
		t.Fatal("expected failed quote")
	}
	if !apperror.HasCode(quote.Err, apperror.CodeUnsupportedAsset) {
		t.Errorf("error = %v, want UNSUPPORTED_ASSET", quote.Err)
	}
}
