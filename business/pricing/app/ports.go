// Package app contains application services and port definitions for the
// pricing context.
package app

import (
	"context"

	"github.com/themule888/spread-scanner/business/pricing/domain"
)

// QuoteSource is one venue the orchestrator can price an asset against.
// FetchQuote always returns a Quote value: fetch failures come back as a
// failed Quote, never as a raised error.
type QuoteSource interface {
	Name() string
	FetchQuote(ctx context.Context, asset string) domain.Quote
}

// ReserveProvider is implemented by sources that can expose the underlying
// pool state for profitability modeling.
type ReserveProvider interface {
	ReserveState(ctx context.Context) (domain.ReserveState, error)
}
