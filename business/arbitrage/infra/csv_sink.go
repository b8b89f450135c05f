package infra

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/themule888/spread-scanner/business/arbitrage/app"
	"github.com/themule888/spread-scanner/business/arbitrage/domain"
	"github.com/themule888/spread-scanner/internal/apperror"
)

var _ app.Sink = (*CSVSink)(nil)

var csvHeader = []string{
	"timestamp", "tick", "block", "asset",
	"quotes_total", "quotes_ok",
	"low_source", "low_price", "high_source", "high_price",
	"spread_abs", "spread_pct", "opportunity",
	"trade_size", "gross_profit", "gas_cost", "flash_fee", "net_profit", "profitable",
}

// CSVSink appends one row per tick to a file. The header is written only
// when the file starts empty, so restarts keep appending to the same log.
type CSVSink struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigurationError, "cannot open csv sink file")
	}

	s := &CSVSink{file: f, writer: csv.NewWriter(f)}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, apperror.Wrap(err, apperror.CodeConfigurationError, "cannot stat csv sink file")
	}
	if info.Size() == 0 {
		if err := s.writer.Write(csvHeader); err != nil {
			f.Close()
			return nil, apperror.Wrap(err, apperror.CodeConfigurationError, "cannot write csv header")
		}
		s.writer.Flush()
	}
	return s, nil
}

func (s *CSVSink) Record(_ context.Context, r *domain.Report) error {
	row := make([]string, len(csvHeader))
	row[0] = r.Timestamp.UTC().Format(time.RFC3339)
	row[1] = strconv.FormatUint(r.Tick, 10)
	row[2] = strconv.FormatUint(r.BlockNumber, 10)
	row[3] = r.Batch.Asset
	row[4] = strconv.Itoa(len(r.Batch.Quotes))
	row[5] = strconv.Itoa(len(r.Batch.Successful()))

	if sp := r.Spread; sp != nil {
		row[6] = sp.Low.Source
		row[7] = sp.Low.Price.String()
		row[8] = sp.High.Source
		row[9] = sp.High.Price.String()
		row[10] = sp.Absolute.String()
		row[11] = sp.Percent.String()
		row[12] = strconv.FormatBool(sp.Opportunity)
	}
	if p := r.Profit; p != nil {
		row[13] = p.AmountIn.String()
		row[14] = p.GrossProfit.String()
		row[15] = p.GasCost.String()
		row[16] = p.FlashLoanFee.String()
		row[17] = p.NetProfit.String()
		row[18] = strconv.FormatBool(p.Profitable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Write(row); err != nil {
		return apperror.Wrap(err, apperror.CodeInternalError, "csv write failed")
	}
	s.writer.Flush()
	return s.writer.Error()
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
