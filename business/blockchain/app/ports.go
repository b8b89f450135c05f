// Package app contains application services and port definitions for the blockchain context.
package app

import (
	"context"

	"github.com/themule888/spread-scanner/business/blockchain/domain"
)

// BlockSubscriber delivers new chain heads. Implementations are expected
// to deduplicate by height: a block at or below the last delivered
// height must not be emitted again.
type BlockSubscriber interface {
	// Subscribe starts listening for new blocks and returns a channel of blocks.
	Subscribe(ctx context.Context) (<-chan *domain.Block, error)

	// LatestBlock retrieves the most recent block.
	LatestBlock(ctx context.Context) (*domain.Block, error)

	// State returns the current connection state.
	State() domain.ConnectionState
}

// GasOracle provides the current gas price.
type GasOracle interface {
	// GasPrice retrieves the current gas price.
	GasPrice(ctx context.Context) (*domain.GasPrice, error)
}
