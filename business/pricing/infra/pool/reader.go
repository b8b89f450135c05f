// Package pool reads on-chain constant-product pool state and exposes
// it as a price quote source.
package pool

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/themule888/spread-scanner/internal/apperror"
	"github.com/themule888/spread-scanner/internal/cache"
	"github.com/themule888/spread-scanner/internal/circuitbreaker"
	"github.com/themule888/spread-scanner/internal/logger"
)

// TokenOrder identifies the two tokens of a pair, in contract order.
type TokenOrder struct {
	Token0 common.Address
	Token1 common.Address
}

// ReserveReader reads raw reserve state from a pair contract.
type ReserveReader interface {
	GetReserves(ctx context.Context, pair common.Address) (Reserves, error)
	GetTokenOrder(ctx context.Context, pair common.Address) (TokenOrder, error)
}

// ContractCaller is the slice of the Ethereum client the reader needs.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EthReserveReader reads pair state over an Ethereum RPC connection.
// Calls go through a circuit breaker so a failing node does not get
// hammered on every tick. Token order is immutable per pair, so it is
// resolved once and cached.
type EthReserveReader struct {
	client  ContractCaller
	pairABI abi.ABI
	cb      *circuitbreaker.CircuitBreaker[[]byte]
	orders  *cache.Cache[common.Address, TokenOrder]
	logger  logger.LoggerInterface
}

// NewEthReserveReader creates a reader bound to an Ethereum client.
func NewEthReserveReader(client ContractCaller, log logger.LoggerInterface) (*EthReserveReader, error) {
	parsedABI, err := abi.JSON(strings.NewReader(PairABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}

	return &EthReserveReader{
		client:  client,
		pairABI: parsedABI,
		cb:      circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("eth-pair-reader")),
		orders:  cache.New[common.Address, TokenOrder](24 * time.Hour),
		logger:  log,
	}, nil
}

// GetReserves reads the current reserves of a pair contract.
func (r *EthReserveReader) GetReserves(ctx context.Context, pair common.Address) (Reserves, error) {
	outputs, err := r.call(ctx, pair, "getReserves")
	if err != nil {
		return Reserves{}, err
	}
	if len(outputs) < 3 {
		return Reserves{}, apperror.New(apperror.CodeMalformedResponse,
			apperror.WithMessage("unexpected getReserves output length"),
			apperror.WithContext("outputs", fmt.Sprintf("%d", len(outputs))))
	}

	reserve0, ok0 := outputs[0].(*big.Int)
	reserve1, ok1 := outputs[1].(*big.Int)
	timestamp, ok2 := outputs[2].(uint32)
	if !ok0 || !ok1 || !ok2 {
		return Reserves{}, apperror.New(apperror.CodeMalformedResponse,
			apperror.WithMessage("unexpected getReserves output types"))
	}

	return Reserves{
		Reserve0:           reserve0,
		Reserve1:           reserve1,
		BlockTimestampLast: timestamp,
	}, nil
}

// GetTokenOrder resolves token0/token1 for a pair, cached after the
// first successful read.
func (r *EthReserveReader) GetTokenOrder(ctx context.Context, pair common.Address) (TokenOrder, error) {
	if order, ok := r.orders.Get(ctx, pair); ok {
		return order, nil
	}

	token0, err := r.callAddress(ctx, pair, "token0")
	if err != nil {
		return TokenOrder{}, err
	}
	token1, err := r.callAddress(ctx, pair, "token1")
	if err != nil {
		return TokenOrder{}, err
	}

	order := TokenOrder{Token0: token0, Token1: token1}
	r.orders.Set(ctx, pair, order, 0)

	r.logger.Debug(ctx, "resolved pair token order",
		"pair", pair.Hex(),
		"token0", token0.Hex(),
		"token1", token1.Hex(),
	)

	return order, nil
}

func (r *EthReserveReader) callAddress(ctx context.Context, pair common.Address, method string) (common.Address, error) {
	outputs, err := r.call(ctx, pair, method)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := outputs[0].(common.Address)
	if !ok {
		return common.Address{}, apperror.New(apperror.CodeMalformedResponse,
			apperror.WithMessage("unexpected output type"),
			apperror.WithContext("method", method))
	}
	return addr, nil
}

func (r *EthReserveReader) call(ctx context.Context, pair common.Address, method string) ([]interface{}, error) {
	callData, err := r.pairABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s call: %w", method, err)
	}

	result, err := r.cb.Execute(func() ([]byte, error) {
		return r.client.CallContract(ctx, ethereum.CallMsg{
			To:   &pair,
			Data: callData,
		}, nil)
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithMessage("pair contract call failed"),
			apperror.WithContext("pair", pair.Hex()),
			apperror.WithContext("method", method))
	}

	outputs, err := r.pairABI.Unpack(method, result)
	if err != nil {
		return nil, apperror.New(apperror.CodeMalformedResponse,
			apperror.WithCause(err),
			apperror.WithMessage("failed to decode pair contract result"),
			apperror.WithContext("method", method))
	}
	if len(outputs) == 0 {
		return nil, apperror.New(apperror.CodeMalformedResponse,
			apperror.WithMessage("empty pair contract result"),
			apperror.WithContext("method", method))
	}

	return outputs, nil
}

// Close releases the token-order cache.
func (r *EthReserveReader) Close() {
	r.orders.Close()
}
