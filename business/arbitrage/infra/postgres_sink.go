package infra

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/themule888/spread-scanner/business/arbitrage/app"
	"github.com/themule888/spread-scanner/business/arbitrage/domain"
	"github.com/themule888/spread-scanner/internal/apperror"
)

var _ app.Sink = (*PostgresSink)(nil)

const createTicksTable = `
CREATE TABLE IF NOT EXISTS scan_ticks (
	id           BIGSERIAL PRIMARY KEY,
	recorded_at  TIMESTAMPTZ NOT NULL,
	tick         BIGINT      NOT NULL,
	block_number BIGINT      NOT NULL,
	asset        TEXT        NOT NULL,
	quotes_total INT         NOT NULL,
	quotes_ok    INT         NOT NULL,
	low_source   TEXT,
	low_price    NUMERIC,
	high_source  TEXT,
	high_price   NUMERIC,
	spread_abs   NUMERIC,
	spread_pct   NUMERIC,
	opportunity  BOOLEAN     NOT NULL DEFAULT FALSE,
	trade_size   NUMERIC,
	gross_profit NUMERIC,
	gas_cost     NUMERIC,
	flash_fee    NUMERIC,
	net_profit   NUMERIC,
	profitable   BOOLEAN
)`

const insertTick = `
INSERT INTO scan_ticks (
	recorded_at, tick, block_number, asset, quotes_total, quotes_ok,
	low_source, low_price, high_source, high_price,
	spread_abs, spread_pct, opportunity,
	trade_size, gross_profit, gas_cost, flash_fee, net_profit, profitable
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`

// PostgresSink persists every tick into the scan_ticks table so spreads can
// be analyzed after the fact with plain SQL.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects, ensures the schema exists and returns the sink.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigurationError, "cannot create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperror.Wrap(err, apperror.CodeSourceUnavailable, "postgres unreachable")
	}
	if _, err := pool.Exec(ctx, createTicksTable); err != nil {
		pool.Close()
		return nil, apperror.Wrap(err, apperror.CodeInternalError, "cannot ensure scan_ticks table")
	}
	return &PostgresSink{pool: pool}, nil
}

func (p *PostgresSink) Record(ctx context.Context, r *domain.Report) error {
	var (
		lowSource, highSource           *string
		lowPrice, highPrice             *string
		spreadAbs, spreadPct            *string
		opportunity                     bool
		tradeSize, grossProfit, gasCost *string
		flashFee, netProfit             *string
		profitable                      *bool
	)

	if sp := r.Spread; sp != nil {
		lowSource = &sp.Low.Source
		highSource = &sp.High.Source
		lowPrice = stringPtr(sp.Low.Price.String())
		highPrice = stringPtr(sp.High.Price.String())
		spreadAbs = stringPtr(sp.Absolute.String())
		spreadPct = stringPtr(sp.Percent.String())
		opportunity = sp.Opportunity
	}
	if pr := r.Profit; pr != nil {
		tradeSize = stringPtr(pr.AmountIn.String())
		grossProfit = stringPtr(pr.GrossProfit.String())
		gasCost = stringPtr(pr.GasCost.String())
		flashFee = stringPtr(pr.FlashLoanFee.String())
		netProfit = stringPtr(pr.NetProfit.String())
		profitable = &pr.Profitable
	}

	_, err := p.pool.Exec(ctx, insertTick,
		r.Timestamp.UTC(), int64(r.Tick), int64(r.BlockNumber), r.Batch.Asset,
		len(r.Batch.Quotes), len(r.Batch.Successful()),
		lowSource, lowPrice, highSource, highPrice,
		spreadAbs, spreadPct, opportunity,
		tradeSize, grossProfit, gasCost, flashFee, netProfit, profitable,
	)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInternalError, "tick insert failed")
	}
	return nil
}

func (p *PostgresSink) Close() error {
	p.pool.Close()
	return nil
}

func stringPtr(s string) *string { return &s }
