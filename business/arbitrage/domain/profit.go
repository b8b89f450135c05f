package domain

import (
	"github.com/shopspring/decimal"

	pricing "github.com/themule888/spread-scanner/business/pricing/domain"
	"github.com/themule888/spread-scanner/internal/apperror"
)

// ProfitabilityResult is the full accounting of one simulated round trip:
// borrow AmountIn of the quote currency, buy the base asset on the cheap
// venue, sell it on the expensive one, repay the loan.
type ProfitabilityResult struct {
	AmountIn     decimal.Decimal
	Intermediate decimal.Decimal // base-asset amount held between the legs
	FinalOut     decimal.Decimal
	GrossProfit  decimal.Decimal
	GasCost      decimal.Decimal
	FlashLoanFee decimal.Decimal
	NetProfit    decimal.Decimal
	ImpactBuy    decimal.Decimal // percent
	ImpactSell   decimal.Decimal // percent
	Profitable   bool
}

// AnalyzeProfitability simulates a two-leg round trip of amountIn quote
// currency. buy must be oriented quote-in/base-out and sell base-in/quote-out;
// callers holding two same-oriented reserve states invert the sell side.
// Both legs apply full constant-product slippage, so the result is what the
// trade would actually settle at, not a mid-price estimate.
func AnalyzeProfitability(buy, sell pricing.ReserveState, amountIn decimal.Decimal, costs CostParams) (*ProfitabilityResult, error) {
	if !amountIn.IsPositive() {
		return nil, apperror.New(apperror.CodeInvalidTradeSize,
			apperror.WithContext("amount_in", amountIn.String()))
	}
	if err := costs.Validate(); err != nil {
		return nil, err
	}

	baseOut, err := pricing.SwapOutput(buy, amountIn)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodePriceCalculationFailed, "buy leg simulation failed")
	}
	finalOut, err := pricing.SwapOutput(sell, baseOut)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodePriceCalculationFailed, "sell leg simulation failed")
	}

	impactBuy, err := pricing.PriceImpact(buy, amountIn)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodePriceCalculationFailed, "buy leg impact failed")
	}
	impactSell, err := pricing.PriceImpact(sell, baseOut)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodePriceCalculationFailed, "sell leg impact failed")
	}

	gross := finalOut.Sub(amountIn)
	gasCost := costs.GasCost()
	flashFee := costs.FlashLoanFee(amountIn)
	net := gross.Sub(gasCost).Sub(flashFee)

	return &ProfitabilityResult{
		AmountIn:     amountIn,
		Intermediate: baseOut,
		FinalOut:     finalOut,
		GrossProfit:  gross,
		GasCost:      gasCost,
		FlashLoanFee: flashFee,
		NetProfit:    net,
		ImpactBuy:    impactBuy,
		ImpactSell:   impactSell,
		Profitable:   net.IsPositive(),
	}, nil
}

// FindOptimalSize sweeps trade sizes between min and max in equal steps and
// returns the size with the highest net profit. The sweep is exhaustive
// rather than analytic so the cost model can stay arbitrary. The best result
// is returned even when unprofitable; check Profitable before acting on it.
func FindOptimalSize(buy, sell pricing.ReserveState, min, max decimal.Decimal, steps int, costs CostParams) (*ProfitabilityResult, error) {
	if steps < 1 {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithMessage("size sweep needs at least one step"))
	}
	if !min.IsPositive() || max.LessThan(min) {
		return nil, apperror.New(apperror.CodeInvalidTradeSize,
			apperror.WithContext("min", min.String()),
			apperror.WithContext("max", max.String()))
	}

	step := decimal.Zero
	if steps > 1 {
		step = max.Sub(min).Div(decimal.NewFromInt(int64(steps - 1)))
	}

	var best *ProfitabilityResult
	for i := 0; i < steps; i++ {
		size := min.Add(step.Mul(decimal.NewFromInt(int64(i))))
		res, err := AnalyzeProfitability(buy, sell, size, costs)
		if err != nil {
			return nil, err
		}
		if best == nil || res.NetProfit.GreaterThan(best.NetProfit) {
			best = res
		}
	}
	return best, nil
}
