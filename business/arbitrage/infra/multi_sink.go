package infra

import (
	"context"
	"errors"

	"github.com/themule888/spread-scanner/business/arbitrage/app"
	"github.com/themule888/spread-scanner/business/arbitrage/domain"
)

var _ app.Sink = (*MultiSink)(nil)

// MultiSink fans every report out to all wrapped sinks. A failing sink does
// not stop delivery to the others; errors are joined.
type MultiSink struct {
	sinks []app.Sink
}

func NewMultiSink(sinks ...app.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Record(ctx context.Context, r *domain.Report) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
