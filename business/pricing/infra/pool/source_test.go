package pool

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/themule888/spread-scanner/internal/apperror"
	"github.com/themule888/spread-scanner/internal/config"
	"github.com/themule888/spread-scanner/internal/logger"
)

var (
	usdcAddr  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	wethAddr  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	otherAddr = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

type fakeReader struct {
	order       TokenOrder
	orderErr    error
	reserves    Reserves
	reservesErr error
}

func (f *fakeReader) GetReserves(_ context.Context, _ common.Address) (Reserves, error) {
	if f.reservesErr != nil {
		return Reserves{}, f.reservesErr
	}
	return f.reserves, nil
}

func (f *fakeReader) GetTokenOrder(_ context.Context, _ common.Address) (TokenOrder, error) {
	if f.orderErr != nil {
		return TokenOrder{}, f.orderErr
	}
	return f.order, nil
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

func testLogger(t *testing.T) logger.LoggerInterface {
	t.Helper()
	return logger.New(testWriter{t}, logger.LevelError, "test", nil)
}

func poolConfig() config.PoolConfig {
	return config.PoolConfig{
		Name:          "uniswap-v2-eth-usdc",
		Address:       "0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc",
		QuoteToken:    usdcAddr.Hex(),
		BaseSymbol:    "ETH",
		QuoteSymbol:   "USDC",
		BaseDecimals:  18,
		QuoteDecimals: 6,
		FeeRate:       0.003,
	}
}

func bigInt(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad big int literal: %s", s)
	}
	return v
}

func newTestSource(t *testing.T, reader ReserveReader) *Source {
	t.Helper()
	src, err := NewSource(reader, poolConfig(), 600, testLogger(t))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	return src
}

func TestFetchQuotePrice(t *testing.T) {
	t.Parallel()

	// 1000 ETH against 2,000,000 USDC: price 2000, TVL 4,000,000.
	ethReserve := bigInt(t, "1000000000000000000000")
	usdcReserve := bigInt(t, "2000000000000")

	tests := []struct {
		name  string
		order TokenOrder
	}{
		{
			name:  "quote token is token0",
			order: TokenOrder{Token0: usdcAddr, Token1: wethAddr},
		},
		{
			name:  "quote token is token1",
			order: TokenOrder{Token0: wethAddr, Token1: usdcAddr},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reserve0, reserve1 := usdcReserve, ethReserve
			if tt.order.Token1 == usdcAddr {
				reserve0, reserve1 = ethReserve, usdcReserve
			}

			src := newTestSource(t, &fakeReader{
				order:    tt.order,
				reserves: Reserves{Reserve0: reserve0, Reserve1: reserve1},
			})

			quote := src.FetchQuote(context.Background(), "ETH")
			if !quote.Success() {
				t.Fatalf("unexpected failure: %v", quote.Err)
			}

			wantPrice := decimal.RequireFromString("2000")
			if !quote.Price.Equal(wantPrice) {
				t.Errorf("price = %s, want %s", quote.Price, wantPrice)
			}
			wantTVL := decimal.RequireFromString("4000000")
			if !quote.TVL.Equal(wantTVL) {
				t.Errorf("tvl = %s, want %s", quote.TVL, wantTVL)
			}
			if quote.Source != "uniswap-v2-eth-usdc" {
				t.Errorf("source = %s", quote.Source)
			}
		})
	}
}

func TestFetchQuoteFailures(t *testing.T) {
	t.Parallel()

	goodReserves := Reserves{
		Reserve0: bigInt(t, "2000000000000"),
		Reserve1: bigInt(t, "1000000000000000000000"),
	}
	goodOrder := TokenOrder{Token0: usdcAddr, Token1: wethAddr}

	tests := []struct {
		name     string
		asset    string
		reader   *fakeReader
		wantCode apperror.Code
	}{
		{
			name:     "asset not traded by this pool",
			asset:    "BTC",
			reader:   &fakeReader{order: goodOrder, reserves: goodReserves},
			wantCode: apperror.CodeUnsupportedAsset,
		},
		{
			name:  "reserve read fails",
			asset: "ETH",
			reader: &fakeReader{
				order: goodOrder,
				reservesErr: apperror.New(apperror.CodeContractCallFailed,
					apperror.WithMessage("node down")),
			},
			wantCode: apperror.CodeSourceUnavailable,
		},
		{
			name:  "token order read fails",
			asset: "ETH",
			reader: &fakeReader{
				orderErr: apperror.New(apperror.CodeContractCallFailed,
					apperror.WithMessage("node down")),
			},
			wantCode: apperror.CodeSourceUnavailable,
		},
		{
			name:  "quote token matches neither pair token",
			asset: "ETH",
			reader: &fakeReader{
				order:    TokenOrder{Token0: wethAddr, Token1: otherAddr},
				reserves: goodReserves,
			},
			wantCode: apperror.CodeAmbiguousTokenOrder,
		},
		{
			name:  "empty reserves",
			asset: "ETH",
			reader: &fakeReader{
				order:    goodOrder,
				reserves: Reserves{Reserve0: big.NewInt(0), Reserve1: big.NewInt(0)},
			},
			wantCode: apperror.CodeInsufficientLiquidity,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := newTestSource(t, tt.reader)
			quote := src.FetchQuote(context.Background(), tt.asset)

			if quote.Success() {
				t.Fatal("expected failed quote")
			}
			if !apperror.HasCode(quote.Err, tt.wantCode) {
				t.Errorf("error = %v, want code %s", quote.Err, tt.wantCode)
			}
		})
	}
}

func TestReserveStateOrientation(t *testing.T) {
	t.Parallel()

	src := newTestSource(t, &fakeReader{
		order: TokenOrder{Token0: usdcAddr, Token1: wethAddr},
		reserves: Reserves{
			Reserve0: bigInt(t, "2000000000000"),
			Reserve1: bigInt(t, "1000000000000000000000"),
		},
	})

	rs, err := src.ReserveState(context.Background())
	if err != nil {
		t.Fatalf("ReserveState: %v", err)
	}

	// Oriented for buying base with quote: in = USDC, out = ETH.
	if !rs.ReserveIn.Equal(decimal.RequireFromString("2000000")) {
		t.Errorf("reserve in = %s, want 2000000", rs.ReserveIn)
	}
	if !rs.ReserveOut.Equal(decimal.RequireFromString("1000")) {
		t.Errorf("reserve out = %s, want 1000", rs.ReserveOut)
	}
	if !rs.FeeRate.Equal(decimal.RequireFromString("0.003")) {
		t.Errorf("fee rate = %s, want 0.003", rs.FeeRate)
	}

	inv := rs.Invert()
	if !inv.ReserveIn.Equal(rs.ReserveOut) || !inv.ReserveOut.Equal(rs.ReserveIn) {
		t.Error("Invert did not swap reserves")
	}
}
