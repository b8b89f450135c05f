package domain

import (
	"time"

	pricing "github.com/themule888/spread-scanner/business/pricing/domain"
)

// Report is the output of one scan tick. Spread is nil when fewer than two
// sources answered; Profit is nil when no spread cleared the threshold or
// neither side of it exposes on-chain reserves to simulate against.
type Report struct {
	Tick        uint64
	BlockNumber uint64
	Batch       *pricing.QuoteBatch
	Spread      *pricing.SpreadResult
	Profit      *ProfitabilityResult
	Timestamp   time.Time
}

// HasOpportunity reports whether this tick found a spread above threshold.
func (r *Report) HasOpportunity() bool {
	return r.Spread != nil && r.Spread.Opportunity
}
