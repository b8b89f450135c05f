package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/themule888/spread-scanner/internal/apperror"
)

// Quote is one venue's view of an asset's price. A failed fetch is still a
// Quote, carrying Err; a Quote is never half-populated.
type Quote struct {
	Source    string
	Asset     string
	Price     decimal.Decimal
	TVL       decimal.Decimal
	Timestamp time.Time
	Err       error
}

// NewQuote creates a successful quote. The price must be positive.
func NewQuote(source, asset string, price, tvl decimal.Decimal) (Quote, error) {
	if !price.IsPositive() {
		return Quote{}, apperror.New(apperror.CodeInvalidInput,
			apperror.WithMessage("quote price must be positive"),
			apperror.WithContext("source", source),
			apperror.WithContext("price", price.String()))
	}
	return Quote{
		Source:    source,
		Asset:     asset,
		Price:     price,
		TVL:       tvl,
		Timestamp: time.Now(),
	}, nil
}

// NewFailedQuote creates a quote representing a fetch failure.
func NewFailedQuote(source, asset string, err error) Quote {
	return Quote{
		Source:    source,
		Asset:     asset,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Success reports whether the quote carries a usable price.
func (q Quote) Success() bool {
	return q.Err == nil
}

// QuoteBatch is the result of one fetch cycle across all sources.
type QuoteBatch struct {
	Asset         string
	Quotes        []Quote
	Timestamp     time.Time
	FetchDuration time.Duration
}

// Successful returns the quotes that carry a price, in source order.
func (b *QuoteBatch) Successful() []Quote {
	var out []Quote
	for _, q := range b.Quotes {
		if q.Success() {
			out = append(out, q)
		}
	}
	return out
}

// Failed returns the quotes whose fetch failed, in source order.
func (b *QuoteBatch) Failed() []Quote {
	var out []Quote
	for _, q := range b.Quotes {
		if !q.Success() {
			out = append(out, q)
		}
	}
	return out
}
