package exchange

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/themule888/spread-scanner/business/pricing/app"
	"github.com/themule888/spread-scanner/business/pricing/domain"
	"github.com/themule888/spread-scanner/internal/apperror"
	"github.com/themule888/spread-scanner/internal/asset"
	"github.com/themule888/spread-scanner/internal/logger"
	"github.com/themule888/spread-scanner/internal/wsconn"
)

// Ensure StreamSource implements QuoteSource.
var _ app.QuoteSource = (*StreamSource)(nil)

// DefaultStreamURL is the Binance combined-stream WebSocket endpoint.
const DefaultStreamURL = "wss://stream.binance.com:9443/ws"

var two = decimal.NewFromInt(2)

// StreamSourceConfig holds configuration for the streaming source.
type StreamSourceConfig struct {
	URL          string        // empty = DefaultStreamURL
	Pair         asset.Pair    // pair to stream, e.g. ETH-USDC
	StaleTimeout time.Duration // age after which ticks stop being served
}

// bookTickerEvent is Binance's best bid/ask stream payload. The quantity
// fields must be declared: encoding/json matches keys case-insensitively, so
// without them the payload's "B"/"A" quantities would land in the lowercase
// price fields.
type bookTickerEvent struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

// tick is the latest mid price seen on the stream.
type tick struct {
	mid        decimal.Decimal
	receivedAt time.Time
}

// StreamSource serves quotes from a live best bid/ask stream instead of
// polling. The quote returned is the bid/ask midpoint. If the stream has
// not delivered a tick within StaleTimeout the source reports itself
// unavailable rather than serving a stale price.
type StreamSource struct {
	pair   asset.Pair
	symbol string
	stale  time.Duration

	conn   *wsconn.Client
	logger logger.LoggerInterface
	tracer trace.Tracer

	mu   sync.RWMutex
	last tick
}

// NewStreamSource creates a streaming quote source. Connect must be
// called before the source can serve quotes.
func NewStreamSource(cfg StreamSourceConfig, log logger.LoggerInterface) (*StreamSource, error) {
	symbol, ok := binanceSymbols[cfg.Pair.String()]
	if !ok {
		return nil, apperror.New(apperror.CodeUnsupportedAsset,
			apperror.WithMessage("pair has no stream symbol"),
			apperror.WithContext("pair", cfg.Pair.String()))
	}

	url := cfg.URL
	if url == "" {
		url = DefaultStreamURL
	}
	url = strings.TrimSuffix(url, "/") + "/" + strings.ToLower(symbol) + "@bookTicker"

	stale := cfg.StaleTimeout
	if stale <= 0 {
		stale = 10 * time.Second
	}

	conn, err := wsconn.New(wsconn.DefaultConfig(url, "binance-stream"))
	if err != nil {
		return nil, err
	}

	s := &StreamSource{
		pair:   cfg.Pair,
		symbol: symbol,
		stale:  stale,
		conn:   conn,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}

	conn.OnMessage(s.handleMessage)
	conn.OnStateChange(func(state wsconn.State, cause error) {
		if cause != nil {
			log.Warn(context.Background(), "stream state change",
				"state", string(state), "error", cause)
			return
		}
		log.Debug(context.Background(), "stream state change", "state", string(state))
	})

	return s, nil
}

// Connect opens the stream connection.
func (s *StreamSource) Connect(ctx context.Context) error {
	return s.conn.Connect(ctx)
}

// Close shuts the stream down.
func (s *StreamSource) Close() error {
	return s.conn.Close()
}

// Name identifies the source in quote batches.
func (s *StreamSource) Name() string {
	return "binance-stream"
}

// FetchQuote returns the most recent bid/ask midpoint from the stream.
func (s *StreamSource) FetchQuote(ctx context.Context, assetSymbol string) domain.Quote {
	_, span := s.tracer.Start(ctx, "exchange.stream_quote",
		trace.WithAttributes(attribute.String("asset", assetSymbol)),
	)
	defer span.End()

	if assetSymbol != s.pair.Base {
		err := unsupportedPair(s.Name(), assetSymbol, s.pair.Quote)
		span.SetStatus(codes.Error, err.Error())
		return domain.NewFailedQuote(s.Name(), assetSymbol, err)
	}

	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	if last.receivedAt.IsZero() {
		err := apperror.New(apperror.CodeSourceUnavailable,
			apperror.WithMessage("no tick received on stream yet"),
			apperror.WithContext("symbol", s.symbol))
		span.SetStatus(codes.Error, err.Error())
		return domain.NewFailedQuote(s.Name(), assetSymbol, err)
	}

	if age := time.Since(last.receivedAt); age > s.stale {
		err := apperror.New(apperror.CodeSourceUnavailable,
			apperror.WithCause(apperror.New(apperror.CodeStaleQuote,
				apperror.WithContext("age", age.String()))),
			apperror.WithMessage("stream tick is stale"),
			apperror.WithContext("symbol", s.symbol))
		span.SetStatus(codes.Error, err.Error())
		return domain.NewFailedQuote(s.Name(), assetSymbol, err)
	}

	quote, err := domain.NewQuote(s.Name(), assetSymbol, last.mid, decimal.Zero)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.NewFailedQuote(s.Name(), assetSymbol, err)
	}

	span.SetAttributes(attribute.String("price", last.mid.String()))
	span.SetStatus(codes.Ok, "quote served from stream")
	return quote
}

func (s *StreamSource) handleMessage(ctx context.Context, msg []byte) {
	var event bookTickerEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		s.logger.Debug(ctx, "dropping unparseable stream message", "error", err)
		return
	}
	if event.Symbol != "" && event.Symbol != s.symbol {
		return
	}

	bid, err := decimal.NewFromString(event.BidPrice)
	if err != nil {
		s.logger.Debug(ctx, "dropping tick with bad bid", "bid", event.BidPrice)
		return
	}
	ask, err := decimal.NewFromString(event.AskPrice)
	if err != nil {
		s.logger.Debug(ctx, "dropping tick with bad ask", "ask", event.AskPrice)
		return
	}
	if !bid.IsPositive() || !ask.IsPositive() {
		return
	}

	mid := bid.Add(ask).Div(two)

	s.mu.Lock()
	s.last = tick{mid: mid, receivedAt: time.Now()}
	s.mu.Unlock()
}
