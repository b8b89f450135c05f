package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

var (
	weiPerGwei  = decimal.New(1, 9)
	weiPerEther = decimal.New(1, 18)
)

// GasPrice is a point-in-time gas price. The raw value is kept in wei;
// conversions to gwei and to native-token cost use decimals so the
// profitability math never touches floats.
type GasPrice struct {
	Wei       *big.Int
	Timestamp time.Time
}

// NewGasPrice creates a GasPrice from wei.
func NewGasPrice(wei *big.Int) *GasPrice {
	return &GasPrice{Wei: new(big.Int).Set(wei), Timestamp: time.Now()}
}

// GasPriceFromGwei creates a GasPrice from a gwei amount, used for the
// configured fallback when no live oracle is reachable.
func GasPriceFromGwei(gwei decimal.Decimal) *GasPrice {
	wei := gwei.Mul(weiPerGwei)
	return &GasPrice{Wei: wei.BigInt(), Timestamp: time.Now()}
}

// Gwei returns the price in gwei.
func (p *GasPrice) Gwei() decimal.Decimal {
	return decimal.NewFromBigInt(p.Wei, 0).Div(weiPerGwei)
}

// NativeCost returns the cost of spending gasUnits at this price, in
// whole native-token units (ether).
func (p *GasPrice) NativeCost(gasUnits int64) decimal.Decimal {
	totalWei := new(big.Int).Mul(p.Wei, big.NewInt(gasUnits))
	return decimal.NewFromBigInt(totalWei, 0).Div(weiPerEther)
}

// Age returns how long ago the price was observed.
func (p *GasPrice) Age() time.Duration {
	return time.Since(p.Timestamp)
}
