// Package domain contains the core domain types for the pricing context.
package domain

import (
	"github.com/shopspring/decimal"

	"github.com/themule888/spread-scanner/internal/apperror"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// ReserveState is a snapshot of a constant-product pool, scaled to human
// units. ReserveIn is the token being sold into the pool, ReserveOut the
// token received.
type ReserveState struct {
	ReserveIn  decimal.Decimal
	ReserveOut decimal.Decimal
	FeeRate    decimal.Decimal
}

// Validate checks the pool invariants: both reserves positive, fee in [0, 1).
func (rs ReserveState) Validate() error {
	if !rs.ReserveIn.IsPositive() || !rs.ReserveOut.IsPositive() {
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithMessage("pool reserves must be positive"),
			apperror.WithContext("reserve_in", rs.ReserveIn.String()),
			apperror.WithContext("reserve_out", rs.ReserveOut.String()))
	}
	if rs.FeeRate.IsNegative() || rs.FeeRate.GreaterThanOrEqual(one) {
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithMessage("fee rate must be in [0, 1)"),
			apperror.WithContext("fee_rate", rs.FeeRate.String()))
	}
	return nil
}

// Invert returns the same pool oriented for the opposite swap direction.
func (rs ReserveState) Invert() ReserveState {
	return ReserveState{
		ReserveIn:  rs.ReserveOut,
		ReserveOut: rs.ReserveIn,
		FeeRate:    rs.FeeRate,
	}
}

// MidPrice returns the marginal price of the pool, reserveOut/reserveIn.
func (rs ReserveState) MidPrice() decimal.Decimal {
	if rs.ReserveIn.IsZero() {
		return decimal.Zero
	}
	return rs.ReserveOut.Div(rs.ReserveIn)
}

// SwapOutput computes the constant-product swap output for amountIn.
// The fee is taken from the input: with effIn = amountIn*(1-fee) and
// k = reserveIn*reserveOut, the output is reserveOut - k/(reserveIn+effIn).
//
// Decimal arithmetic here is a modeling estimate; on-chain fixed-point
// rounding can differ in the last units and this is not settlement-accurate.
func SwapOutput(rs ReserveState, amountIn decimal.Decimal) (decimal.Decimal, error) {
	if err := rs.Validate(); err != nil {
		return decimal.Zero, err
	}
	if amountIn.IsNegative() {
		return decimal.Zero, apperror.New(apperror.CodeInvalidInput,
			apperror.WithMessage("amount in cannot be negative"),
			apperror.WithContext("amount_in", amountIn.String()))
	}
	if amountIn.IsZero() {
		return decimal.Zero, nil
	}

	effIn := amountIn.Mul(one.Sub(rs.FeeRate))
	k := rs.ReserveIn.Mul(rs.ReserveOut)
	newReserveIn := rs.ReserveIn.Add(effIn)
	out := rs.ReserveOut.Sub(k.Div(newReserveIn))
	return out, nil
}

// PriceImpact returns the relative shift of the marginal price caused by a
// swap of amountIn, in percent. Zero input has zero impact.
func PriceImpact(rs ReserveState, amountIn decimal.Decimal) (decimal.Decimal, error) {
	out, err := SwapOutput(rs, amountIn)
	if err != nil {
		return decimal.Zero, err
	}
	if amountIn.IsZero() {
		return decimal.Zero, nil
	}

	before := rs.MidPrice()
	effIn := amountIn.Mul(one.Sub(rs.FeeRate))
	after := rs.ReserveOut.Sub(out).Div(rs.ReserveIn.Add(effIn))
	return before.Sub(after).Div(before).Mul(hundred), nil
}

// EffectivePrice returns the realized price amountOut/amountIn for a swap,
// which is always below the marginal price for a positive trade.
func EffectivePrice(rs ReserveState, amountIn decimal.Decimal) (decimal.Decimal, error) {
	out, err := SwapOutput(rs, amountIn)
	if err != nil {
		return decimal.Zero, err
	}
	if amountIn.IsZero() {
		return decimal.Zero, apperror.New(apperror.CodeInvalidInput,
			apperror.WithMessage("effective price undefined for zero amount"))
	}
	return out.Div(amountIn), nil
}
