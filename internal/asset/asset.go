// Package asset holds asset metadata and raw-amount scaling shared by the
// on-chain and off-chain price sources.
package asset

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Asset describes one token or currency. The symbol is display metadata,
// decimals drive raw-amount conversion.
type Asset struct {
	symbol   string
	decimals int32
}

// New creates an Asset.
func New(symbol string, decimals int32) (Asset, error) {
	if symbol == "" {
		return Asset{}, fmt.Errorf("asset: empty symbol")
	}
	if decimals < 0 || decimals > 30 {
		return Asset{}, fmt.Errorf("asset %s: suspicious decimals %d", symbol, decimals)
	}
	return Asset{symbol: symbol, decimals: decimals}, nil
}

// MustNew is New that panics, for static declarations.
func MustNew(symbol string, decimals int32) Asset {
	a, err := New(symbol, decimals)
	if err != nil {
		panic(err)
	}
	return a
}

// Symbol returns the ticker symbol (e.g. "ETH", "USDC").
func (a Asset) Symbol() string { return a.symbol }

// Decimals returns the number of decimal places.
func (a Asset) Decimals() int32 { return a.decimals }

// String returns the symbol.
func (a Asset) String() string { return a.symbol }

// FromRaw converts an integer on-chain amount into a human-unit decimal.
// A raw USDC reserve of 1_500_000 becomes 1.5.
func (a Asset) FromRaw(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -a.decimals)
}

// ToRaw converts a human-unit amount back to the integer representation,
// truncating sub-precision digits.
func (a Asset) ToRaw(amount decimal.Decimal) *big.Int {
	return amount.Shift(a.decimals).BigInt()
}
