package app

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/themule888/spread-scanner/business/blockchain/domain"
	"github.com/themule888/spread-scanner/internal/logger"
)

// Service coordinates chain access for the rest of the application. Gas
// pricing degrades gracefully: when the live oracle cannot be reached
// the configured static price is served so a node outage never stops
// the scan loop from estimating costs.
type Service struct {
	subscriber   BlockSubscriber
	oracle       GasOracle
	fallbackGwei decimal.Decimal
	logger       logger.LoggerInterface
}

// NewService creates the blockchain service. fallbackGwei is used
// whenever the oracle fails or no oracle is configured.
func NewService(subscriber BlockSubscriber, oracle GasOracle, fallbackGwei decimal.Decimal, log logger.LoggerInterface) *Service {
	return &Service{
		subscriber:   subscriber,
		oracle:       oracle,
		fallbackGwei: fallbackGwei,
		logger:       log,
	}
}

// SubscribeBlocks starts the block subscription and returns the channel.
func (s *Service) SubscribeBlocks(ctx context.Context) (<-chan *domain.Block, error) {
	if s.subscriber == nil {
		return nil, errors.New("no block subscriber configured")
	}
	return s.subscriber.Subscribe(ctx)
}

// LatestBlock retrieves the most recent chain head.
func (s *Service) LatestBlock(ctx context.Context) (*domain.Block, error) {
	if s.subscriber == nil {
		return nil, errors.New("no block subscriber configured")
	}
	return s.subscriber.LatestBlock(ctx)
}

// GasPrice returns the current gas price, falling back to the
// configured static price when the oracle is unreachable.
func (s *Service) GasPrice(ctx context.Context) *domain.GasPrice {
	if s.oracle != nil {
		price, err := s.oracle.GasPrice(ctx)
		if err == nil {
			return price
		}
		s.logger.Warn(ctx, "gas oracle unavailable, using configured price",
			"fallback_gwei", s.fallbackGwei.String(), "error", err)
	}
	return domain.GasPriceFromGwei(s.fallbackGwei)
}

// ConnectionState returns the current connection state.
func (s *Service) ConnectionState() domain.ConnectionState {
	if s.subscriber == nil {
		return domain.StateDisconnected
	}
	return s.subscriber.State()
}
