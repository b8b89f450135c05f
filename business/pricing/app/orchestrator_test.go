package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/themule888/spread-scanner/business/pricing/domain"
	"github.com/themule888/spread-scanner/internal/apperror"
	"github.com/themule888/spread-scanner/internal/logger"
	"github.com/themule888/spread-scanner/internal/retry"
)

type fakeSource struct {
	name  string
	calls atomic.Int32
	fetch func(ctx context.Context, call int32) domain.Quote
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchQuote(ctx context.Context, asset string) domain.Quote {
	return f.fetch(ctx, f.calls.Add(1))
}

func goodSource(name, price string) *fakeSource {
	return &fakeSource{
		name: name,
		fetch: func(ctx context.Context, _ int32) domain.Quote {
			q, _ := domain.NewQuote(name, "ETH-USDC", decimal.RequireFromString(price), decimal.Zero)
			return q
		},
	}
}

func downSource(name string) *fakeSource {
	return &fakeSource{
		name: name,
		fetch: func(ctx context.Context, _ int32) domain.Quote {
			return domain.NewFailedQuote(name, "ETH-USDC",
				apperror.New(apperror.CodeSourceUnavailable))
		},
	}
}

func testLogger(t *testing.T) logger.LoggerInterface {
	t.Helper()
	return logger.New(testWriter{t}, logger.LevelError, "test", nil)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func fastConfig() OrchestratorConfig {
	return OrchestratorConfig{
		AttemptTimeout: time.Second,
		Retry:          retry.Config{MaxAttempts: 3, BaseDelay: 5 * time.Millisecond},
	}
}

func TestFetchBatch_PreservesSourceOrder(t *testing.T) {
	o := NewOrchestrator([]QuoteSource{
		goodSource("binance", "100"),
		goodSource("kraken", "101"),
		goodSource("uniswap", "99"),
	}, fastConfig(), testLogger(t))

	batch, err := o.FetchBatch(context.Background(), "ETH-USDC")
	if err != nil {
		t.Fatalf("FetchBatch() error = %v", err)
	}

	wantOrder := []string{"binance", "kraken", "uniswap"}
	for i, want := range wantOrder {
		if batch.Quotes[i].Source != want {
			t.Errorf("Quotes[%d].Source = %s, want %s", i, batch.Quotes[i].Source, want)
		}
	}
}

func TestFetchBatch_PartialFailureSurvives(t *testing.T) {
	down := downSource("kraken")
	o := NewOrchestrator([]QuoteSource{
		goodSource("binance", "100"),
		down,
	}, fastConfig(), testLogger(t))

	batch, err := o.FetchBatch(context.Background(), "ETH-USDC")
	if err != nil {
		t.Fatalf("FetchBatch() error = %v", err)
	}

	if got := len(batch.Successful()); got != 1 {
		t.Errorf("Successful() = %d quotes, want 1", got)
	}
	if got := len(batch.Failed()); got != 1 {
		t.Errorf("Failed() = %d quotes, want 1", got)
	}
	// Unavailability is retried before the quote is marked failed.
	if got := down.calls.Load(); got != 3 {
		t.Errorf("failing source called %d times, want 3 attempts", got)
	}
}

func TestFetchBatch_AllFailed(t *testing.T) {
	o := NewOrchestrator([]QuoteSource{
		downSource("binance"),
		downSource("kraken"),
	}, fastConfig(), testLogger(t))

	_, err := o.FetchBatch(context.Background(), "ETH-USDC")
	if !apperror.HasCode(err, apperror.CodeAllSourcesFailed) {
		t.Errorf("FetchBatch() error = %v, want ALL_SOURCES_FAILED", err)
	}
}

func TestFetchBatch_RunsSourcesConcurrently(t *testing.T) {
	slow := func(name string) *fakeSource {
		return &fakeSource{
			name: name,
			fetch: func(ctx context.Context, _ int32) domain.Quote {
				time.Sleep(50 * time.Millisecond)
				q, _ := domain.NewQuote(name, "ETH-USDC", decimal.NewFromInt(100), decimal.Zero)
				return q
			},
		}
	}

	o := NewOrchestrator([]QuoteSource{
		slow("a"), slow("b"), slow("c"), slow("d"),
	}, fastConfig(), testLogger(t))

	start := time.Now()
	if _, err := o.FetchBatch(context.Background(), "ETH-USDC"); err != nil {
		t.Fatalf("FetchBatch() error = %v", err)
	}
	elapsed := time.Since(start)

	// Four 50ms sources run in parallel, far under the 200ms serial bound.
	if elapsed > 150*time.Millisecond {
		t.Errorf("FetchBatch took %v, sources appear to run serially", elapsed)
	}
}

func TestWrapSource_UnsupportedAssetNotRetried(t *testing.T) {
	src := &fakeSource{
		name: "kraken",
		fetch: func(ctx context.Context, _ int32) domain.Quote {
			return domain.NewFailedQuote("kraken", "DOGE-USDC",
				apperror.New(apperror.CodeUnsupportedAsset))
		},
	}

	wrapped := WrapSource(src, time.Second, retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond})
	q := wrapped.FetchQuote(context.Background(), "DOGE-USDC")

	if q.Success() {
		t.Fatal("quote unexpectedly successful")
	}
	if !apperror.HasCode(q.Err, apperror.CodeUnsupportedAsset) {
		t.Errorf("Err = %v, want UNSUPPORTED_ASSET", q.Err)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("source called %d times, want 1 (no retry)", got)
	}
}

func TestWrapSource_TimeoutBoundsEachAttempt(t *testing.T) {
	// A source that hangs until its context expires must still get every
	// configured attempt; the timeout is per attempt, not a shared budget.
	src := &fakeSource{
		name: "binance",
		fetch: func(ctx context.Context, _ int32) domain.Quote {
			<-ctx.Done()
			return domain.NewFailedQuote("binance", "ETH-USDC",
				apperror.Wrap(ctx.Err(), apperror.CodeSourceUnavailable, "fetch timed out"))
		},
	}

	wrapped := WrapSource(src, 20*time.Millisecond,
		retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond})

	start := time.Now()
	q := wrapped.FetchQuote(context.Background(), "ETH-USDC")
	elapsed := time.Since(start)

	if q.Success() {
		t.Fatal("quote unexpectedly successful")
	}
	if got := src.calls.Load(); got != 3 {
		t.Errorf("hanging source called %d times, want 3 attempts", got)
	}
	// Three 20ms attempts plus short backoffs; well past a single timeout.
	if elapsed < 60*time.Millisecond {
		t.Errorf("all attempts finished in %v, timeout looks shared", elapsed)
	}
}

func TestWrapSource_RecoversAfterTransientFailure(t *testing.T) {
	src := &fakeSource{
		name: "binance",
		fetch: func(ctx context.Context, call int32) domain.Quote {
			if call < 3 {
				return domain.NewFailedQuote("binance", "ETH-USDC",
					apperror.New(apperror.CodeSourceUnavailable))
			}
			q, _ := domain.NewQuote("binance", "ETH-USDC", decimal.NewFromInt(100), decimal.Zero)
			return q
		},
	}

	wrapped := WrapSource(src, time.Second, retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond})
	q := wrapped.FetchQuote(context.Background(), "ETH-USDC")

	if !q.Success() {
		t.Fatalf("quote failed after recovery: %v", q.Err)
	}
	if got := src.calls.Load(); got != 3 {
		t.Errorf("source called %d times, want 3", got)
	}
}
