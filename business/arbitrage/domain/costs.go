package domain

import (
	"github.com/shopspring/decimal"

	"github.com/themule888/spread-scanner/internal/apperror"
)

// CostParams fixes everything a round-trip simulation needs to price its
// overhead. Gas is paid in the chain's native token and converted to the
// quote currency through NativePrice; the flash-loan fee is charged on the
// borrowed principal.
type CostParams struct {
	GasPriceGwei decimal.Decimal
	GasUnits     int64
	NativePrice  decimal.Decimal
	FlashFeeRate decimal.Decimal
}

var gweiPerNative = decimal.New(1, 9)

// GasCost returns the total gas spend in quote-currency terms.
func (c CostParams) GasCost() decimal.Decimal {
	native := c.GasPriceGwei.Mul(decimal.NewFromInt(c.GasUnits)).Div(gweiPerNative)
	return native.Mul(c.NativePrice)
}

// FlashLoanFee returns the fee owed on a flash-loaned principal.
func (c CostParams) FlashLoanFee(amountIn decimal.Decimal) decimal.Decimal {
	return amountIn.Mul(c.FlashFeeRate)
}

// Validate rejects parameter sets that would silently zero out or inflate
// the cost side of the model.
func (c CostParams) Validate() error {
	if c.GasPriceGwei.IsNegative() {
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithMessage("gas price must not be negative"),
			apperror.WithContext("gas_price_gwei", c.GasPriceGwei.String()))
	}
	if c.GasUnits < 0 {
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithMessage("gas units must not be negative"))
	}
	if c.NativePrice.IsNegative() {
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithMessage("native token price must not be negative"),
			apperror.WithContext("native_price", c.NativePrice.String()))
	}
	if c.FlashFeeRate.IsNegative() || c.FlashFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithMessage("flash fee rate must be in [0, 1)"),
			apperror.WithContext("flash_fee_rate", c.FlashFeeRate.String()))
	}
	return nil
}
