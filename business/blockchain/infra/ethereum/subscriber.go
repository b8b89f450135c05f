// Package ethereum provides Ethereum blockchain infrastructure adapters.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/themule888/spread-scanner/business/blockchain/domain"
	"github.com/themule888/spread-scanner/internal/apperror"
	"github.com/themule888/spread-scanner/internal/circuitbreaker"
	"github.com/themule888/spread-scanner/internal/logger"
)

const (
	tracerName = "blockchain"
	meterName  = "blockchain"
)

// SubscriberConfig holds configuration for the head subscriber.
type SubscriberConfig struct {
	WSURL          string        // WebSocket endpoint (primary)
	HTTPURL        string        // HTTP endpoint (polling fallback)
	PollInterval   time.Duration // HTTP poll cadence
	ReconnectDelay time.Duration // delay before WS reconnect attempts
	BufferSize     int           // head channel buffer
}

// DefaultSubscriberConfig returns defaults tuned to mainnet block time.
func DefaultSubscriberConfig(wsURL, httpURL string) SubscriberConfig {
	return SubscriberConfig{
		WSURL:          wsURL,
		HTTPURL:        httpURL,
		PollInterval:   12 * time.Second,
		ReconnectDelay: 5 * time.Second,
		BufferSize:     16,
	}
}

// subscriberMetrics holds OTEL metric instruments.
type subscriberMetrics struct {
	headsEmitted    metric.Int64Counter
	headsDuplicate  metric.Int64Counter
	subscribeErrors metric.Int64Counter
	fallbackUsed    metric.Int64Counter
}

// HeadSubscriber delivers deduplicated chain heads. WebSocket is the
// primary transport; when it is unavailable the subscriber polls over
// HTTP instead. Heads at or below the last emitted height are dropped
// regardless of which transport produced them, so consumers see each
// height exactly once.
type HeadSubscriber struct {
	config SubscriberConfig
	logger logger.LoggerInterface

	wsClient   *ethclient.Client
	httpClient *ethclient.Client
	clientMu   sync.RWMutex

	state      domain.ConnectionState
	stateMu    sync.RWMutex
	usingHTTP  atomic.Bool
	lastHeight atomic.Uint64
	reconnects atomic.Int32

	heads  chan *domain.Block
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once

	httpCB *circuitbreaker.CircuitBreaker[*types.Header]

	tracer  trace.Tracer
	metrics *subscriberMetrics
}

// NewHeadSubscriber creates a head subscriber.
func NewHeadSubscriber(cfg SubscriberConfig, log logger.LoggerInterface) (*HeadSubscriber, error) {
	s := &HeadSubscriber{
		config: cfg,
		logger: log,
		state:  domain.StateDisconnected,
		heads:  make(chan *domain.Block, cfg.BufferSize),
		done:   make(chan struct{}),
		tracer: otel.Tracer(tracerName),
	}

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	cbCfg := circuitbreaker.DefaultConfig("eth-head-poll")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	s.httpCB = circuitbreaker.New[*types.Header](cbCfg)

	return s, nil
}

func (s *HeadSubscriber) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &subscriberMetrics{}

	s.metrics.headsEmitted, err = meter.Int64Counter(
		"eth_heads_emitted_total",
		metric.WithDescription("Chain heads delivered to consumers"),
	)
	if err != nil {
		return err
	}

	s.metrics.headsDuplicate, err = meter.Int64Counter(
		"eth_heads_duplicate_total",
		metric.WithDescription("Chain heads dropped as duplicates"),
	)
	if err != nil {
		return err
	}

	s.metrics.subscribeErrors, err = meter.Int64Counter(
		"eth_subscribe_errors_total",
		metric.WithDescription("Subscription and poll errors"),
	)
	if err != nil {
		return err
	}

	s.metrics.fallbackUsed, err = meter.Int64Counter(
		"eth_http_fallback_total",
		metric.WithDescription("Times the HTTP polling fallback took over"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Subscribe starts delivery and returns the head channel.
func (s *HeadSubscriber) Subscribe(ctx context.Context) (<-chan *domain.Block, error) {
	ctx, span := s.tracer.Start(ctx, "eth.subscribe")
	defer span.End()

	if s.closed.Load() {
		return nil, errors.New("subscriber is closed")
	}

	s.setState(domain.StateConnecting)

	if err := s.dialWS(ctx); err != nil {
		s.logger.Warn(ctx, "ws connection failed, using http polling", "error", err)
		span.AddEvent("ws_failed")

		if err := s.dialHTTP(ctx); err != nil {
			s.setState(domain.StateDisconnected)
			span.SetStatus(codes.Error, "both transports failed")
			return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
				apperror.WithCause(err),
				apperror.WithMessage("could not connect over ws or http"))
		}

		s.usingHTTP.Store(true)
		s.metrics.fallbackUsed.Add(ctx, 1)
		go s.pollLoop(ctx)
	} else {
		go s.wsLoop(ctx)
	}

	s.setState(domain.StateConnected)
	span.SetStatus(codes.Ok, "subscribed")
	return s.heads, nil
}

func (s *HeadSubscriber) dialWS(ctx context.Context) error {
	if s.config.WSURL == "" {
		return errors.New("ws url not configured")
	}
	client, err := ethclient.DialContext(ctx, s.config.WSURL)
	if err != nil {
		return fmt.Errorf("dial ws: %w", err)
	}
	s.clientMu.Lock()
	s.wsClient = client
	s.clientMu.Unlock()
	return nil
}

func (s *HeadSubscriber) dialHTTP(ctx context.Context) error {
	if s.config.HTTPURL == "" {
		return errors.New("http url not configured")
	}
	client, err := ethclient.DialContext(ctx, s.config.HTTPURL)
	if err != nil {
		return fmt.Errorf("dial http: %w", err)
	}
	s.clientMu.Lock()
	s.httpClient = client
	s.clientMu.Unlock()
	return nil
}

// wsLoop subscribes to new heads and feeds them through the dedup gate.
// On any subscription failure it hands over to reconnect handling.
func (s *HeadSubscriber) wsLoop(ctx context.Context) {
	headers := make(chan *types.Header, s.config.BufferSize)

	s.clientMu.RLock()
	client := s.wsClient
	s.clientMu.RUnlock()
	if client == nil {
		s.recoverWS(ctx)
		return
	}

	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		s.logger.Error(ctx, "subscribe new head failed", "error", err)
		s.metrics.subscribeErrors.Add(ctx, 1)
		s.recoverWS(ctx)
		return
	}
	defer sub.Unsubscribe()

	s.logger.Info(ctx, "subscribed to new heads via ws")

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				s.logger.Error(ctx, "head subscription error", "error", err)
				s.metrics.subscribeErrors.Add(ctx, 1)
			}
			go s.recoverWS(ctx)
			return
		case header := <-headers:
			if header != nil {
				s.emit(ctx, headerToBlock(header))
			}
		}
	}
}

// recoverWS retries the WebSocket once, then falls back to HTTP polling.
func (s *HeadSubscriber) recoverWS(ctx context.Context) {
	if s.closed.Load() {
		return
	}

	s.setState(domain.StateReconnecting)
	s.reconnects.Add(1)

	select {
	case <-s.done:
		return
	case <-ctx.Done():
		return
	case <-time.After(s.config.ReconnectDelay):
	}

	if err := s.dialWS(ctx); err == nil {
		s.usingHTTP.Store(false)
		s.setState(domain.StateConnected)
		go s.wsLoop(ctx)
		return
	}

	s.logger.Warn(ctx, "ws reconnect failed, switching to http polling")

	s.clientMu.RLock()
	haveHTTP := s.httpClient != nil
	s.clientMu.RUnlock()
	if !haveHTTP {
		if err := s.dialHTTP(ctx); err != nil {
			s.logger.Error(ctx, "http fallback connection failed", "error", err)
			s.setState(domain.StateDisconnected)
			return
		}
	}

	s.usingHTTP.Store(true)
	s.metrics.fallbackUsed.Add(ctx, 1)
	s.setState(domain.StateConnected)
	go s.pollLoop(ctx)
}

func (s *HeadSubscriber) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.logger.Info(ctx, "polling chain heads over http", "interval", s.config.PollInterval)

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *HeadSubscriber) pollOnce(ctx context.Context) {
	s.clientMu.RLock()
	client := s.httpClient
	s.clientMu.RUnlock()
	if client == nil {
		return
	}

	header, err := s.httpCB.Execute(func() (*types.Header, error) {
		return client.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		s.logger.Error(ctx, "head poll failed", "error", err)
		s.metrics.subscribeErrors.Add(ctx, 1)
		return
	}

	s.emit(ctx, headerToBlock(header))
}

// emit delivers a head unless its height has already been seen. This is
// the single dedup gate for both transports.
func (s *HeadSubscriber) emit(ctx context.Context, block *domain.Block) {
	if !block.NewerThan(s.lastHeight.Load()) {
		s.metrics.headsDuplicate.Add(ctx, 1)
		return
	}
	s.lastHeight.Store(block.Number)

	select {
	case s.heads <- block:
		s.metrics.headsEmitted.Add(ctx, 1)
		s.logger.Debug(ctx, "chain head",
			"number", block.Number,
			"hash", block.Hash.Hex()[:10],
			"age", time.Since(block.Timestamp).String())
	default:
		s.logger.Warn(ctx, "head dropped, buffer full", "number", block.Number)
	}
}

func headerToBlock(header *types.Header) *domain.Block {
	return &domain.Block{
		Number:     header.Number.Uint64(),
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Timestamp:  time.Unix(int64(header.Time), 0),
		BaseFee:    header.BaseFee,
	}
}

// LatestBlock fetches the current chain head on demand.
func (s *HeadSubscriber) LatestBlock(ctx context.Context) (*domain.Block, error) {
	ctx, span := s.tracer.Start(ctx, "eth.latest_block")
	defer span.End()

	s.clientMu.RLock()
	wsClient := s.wsClient
	httpClient := s.httpClient
	s.clientMu.RUnlock()

	client := httpClient
	if wsClient != nil && !s.usingHTTP.Load() {
		client = wsClient
	}
	if client == nil {
		return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithMessage("no ethereum client connected"))
	}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.New(apperror.CodeBlockNotFound,
			apperror.WithCause(err),
			apperror.WithMessage("failed to fetch latest block"))
	}

	span.SetAttributes(attribute.Int64("number", header.Number.Int64()))
	span.SetStatus(codes.Ok, "fetched")
	return headerToBlock(header), nil
}

// State returns the current connection state.
func (s *HeadSubscriber) State() domain.ConnectionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Status returns detailed connection status.
func (s *HeadSubscriber) Status() domain.ConnectionStatus {
	return domain.ConnectionStatus{
		State:      s.State(),
		LastBlock:  s.lastHeight.Load(),
		Reconnects: int(s.reconnects.Load()),
		UsingHTTP:  s.usingHTTP.Load(),
	}
}

// Close shuts the subscriber down. Safe to call more than once.
func (s *HeadSubscriber) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.done)

		s.clientMu.Lock()
		if s.wsClient != nil {
			s.wsClient.Close()
			s.wsClient = nil
		}
		if s.httpClient != nil {
			s.httpClient.Close()
			s.httpClient = nil
		}
		s.clientMu.Unlock()

		close(s.heads)
		s.setState(domain.StateDisconnected)
	})
	return nil
}

func (s *HeadSubscriber) setState(state domain.ConnectionState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}
