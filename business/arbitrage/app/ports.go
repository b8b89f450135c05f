package app

import (
	"context"

	"github.com/themule888/spread-scanner/business/arbitrage/domain"
	blockdomain "github.com/themule888/spread-scanner/business/blockchain/domain"
	pricing "github.com/themule888/spread-scanner/business/pricing/domain"
)

// QuoteFetcher collects one asset's quotes from all configured sources.
type QuoteFetcher interface {
	FetchBatch(ctx context.Context, asset string) (*pricing.QuoteBatch, error)
}

// ChainInfo exposes the chain-level inputs a scan tick needs. GasPrice never
// fails; implementations fall back to a configured static price.
type ChainInfo interface {
	GasPrice(ctx context.Context) *blockdomain.GasPrice
	SubscribeBlocks(ctx context.Context) (<-chan *blockdomain.Block, error)
}

// Sink receives the report of every completed scan tick. Implementations
// must tolerate reports without a spread or profitability section.
type Sink interface {
	Record(ctx context.Context, report *domain.Report) error
	Close() error
}
