package app

import (
	"context"
	"time"

	"github.com/themule888/spread-scanner/business/pricing/domain"
	"github.com/themule888/spread-scanner/internal/apperror"
	"github.com/themule888/spread-scanner/internal/retry"
)

// retryingSource decorates a QuoteSource with bounded retries. Only
// unavailability is retried; unsupported assets and invalid input come back
// immediately, and exhaustion becomes a failed Quote carrying the last error.
// Each attempt runs under its own timeout, so a hanging source costs at most
// timeout x MaxAttempts, never the whole retry budget in one attempt.
type retryingSource struct {
	inner   QuoteSource
	timeout time.Duration
	cfg     retry.Config
}

// WrapSource returns src with retry-on-unavailability semantics.
// attemptTimeout bounds every individual attempt; zero disables the bound.
func WrapSource(src QuoteSource, attemptTimeout time.Duration, cfg retry.Config) QuoteSource {
	return &retryingSource{inner: src, timeout: attemptTimeout, cfg: cfg}
}

func (r *retryingSource) Name() string {
	return r.inner.Name()
}

func (r *retryingSource) FetchQuote(ctx context.Context, asset string) domain.Quote {
	q, err := retry.DoIf(ctx, r.cfg,
		func(err error) bool {
			return apperror.HasCode(err, apperror.CodeSourceUnavailable)
		},
		func(ctx context.Context) (domain.Quote, error) {
			if r.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, r.timeout)
				defer cancel()
			}
			q := r.inner.FetchQuote(ctx, asset)
			if q.Err != nil {
				return q, q.Err
			}
			return q, nil
		},
	)
	if err != nil {
		return domain.NewFailedQuote(r.inner.Name(), asset, err)
	}
	return q
}
