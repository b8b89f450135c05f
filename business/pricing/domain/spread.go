package domain

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/themule888/spread-scanner/internal/apperror"
)

// SpreadResult captures the price dispersion inside one quote batch.
type SpreadResult struct {
	High        Quote
	Low         Quote
	Absolute    decimal.Decimal
	Percent     decimal.Decimal
	Opportunity bool
}

// AnalyzeSpread finds the highest- and lowest-priced venues among the
// successful quotes of a batch. thresholdPct is the minimum relative spread,
// in percent, for the result to count as an opportunity. Ties keep the
// first-seen quote, so source order is stable across runs.
func AnalyzeSpread(batch *QuoteBatch, thresholdPct decimal.Decimal) (*SpreadResult, error) {
	ok := batch.Successful()
	if len(ok) < 2 {
		return nil, apperror.New(apperror.CodeInsufficientData,
			apperror.WithContext("asset", batch.Asset),
			apperror.WithContext("successful_quotes", strconv.Itoa(len(ok))))
	}

	high, low := ok[0], ok[0]
	for _, q := range ok[1:] {
		if q.Price.GreaterThan(high.Price) {
			high = q
		}
		if q.Price.LessThan(low.Price) {
			low = q
		}
	}

	absolute := high.Price.Sub(low.Price)
	percent := decimal.Zero
	if !low.Price.IsZero() {
		percent = absolute.Div(low.Price).Mul(hundred)
	}

	return &SpreadResult{
		High:        high,
		Low:         low,
		Absolute:    absolute,
		Percent:     percent,
		Opportunity: percent.GreaterThan(thresholdPct),
	}, nil
}
