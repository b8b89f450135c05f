// Package exchange fetches spot prices from centralized exchange APIs.
package exchange

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/themule888/spread-scanner/internal/apperror"
	"github.com/themule888/spread-scanner/internal/httpclient"
)

// Venue identifiers accepted in configuration.
const (
	VenueBinance   = "binance"
	VenueKraken    = "kraken"
	VenueCoingecko = "coingecko"
)

// venue is one exchange REST dialect: how to build the request and how
// to dig the price out of the response.
type venue interface {
	name() string
	defaultBaseURL() string
	fetchPrice(ctx context.Context, client httpclient.Client, base, quote string) (decimal.Decimal, error)
}

func venueByName(name string) (venue, error) {
	switch name {
	case VenueBinance:
		return binanceVenue{}, nil
	case VenueKraken:
		return krakenVenue{}, nil
	case VenueCoingecko:
		return coingeckoVenue{}, nil
	default:
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("unknown exchange"),
			apperror.WithContext("exchange", name))
	}
}

// apiErrorHandler converts HTTP error statuses into typed errors so the
// caller can tell throttling apart from hard failures.
func apiErrorHandler(venueName string) httpclient.ResponseErrorHandler {
	return func(statusCode int, body []byte) error {
		switch {
		case statusCode == 429:
			return apperror.New(apperror.CodeExchangeRateLimited,
				apperror.WithMessage("exchange throttled the request"),
				apperror.WithContext("exchange", venueName))
		case statusCode >= 400:
			return apperror.New(apperror.CodeExchangeAPIError,
				apperror.WithMessage("exchange API returned an error status"),
				apperror.WithContext("exchange", venueName),
				apperror.WithContext("status", fmt.Sprintf("%d", statusCode)),
				apperror.WithContext("body", truncate(body, 256)))
		default:
			return nil
		}
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

func malformed(venueName, detail string, cause error) error {
	opts := []apperror.Option{
		apperror.WithMessage(detail),
		apperror.WithContext("exchange", venueName),
	}
	if cause != nil {
		opts = append(opts, apperror.WithCause(cause))
	}
	return apperror.New(apperror.CodeMalformedResponse, opts...)
}

func unsupportedPair(venueName, base, quote string) error {
	return apperror.New(apperror.CodeUnsupportedAsset,
		apperror.WithMessage("pair not listed on exchange"),
		apperror.WithContext("exchange", venueName),
		apperror.WithContext("pair", pairKey(base, quote)))
}

// binanceVenue reads /api/v3/ticker/price.
type binanceVenue struct{}

func (binanceVenue) name() string           { return VenueBinance }
func (binanceVenue) defaultBaseURL() string { return "https://api.binance.com" }

type binanceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (v binanceVenue) fetchPrice(ctx context.Context, client httpclient.Client, base, quote string) (decimal.Decimal, error) {
	symbol, ok := binanceSymbols[pairKey(base, quote)]
	if !ok {
		return decimal.Zero, unsupportedPair(v.name(), base, quote)
	}

	var ticker binanceTicker
	resp, err := client.NewRequest(httpclient.WithResponseErrorHandler(apiErrorHandler(v.name()))).
		SetQueryParam("symbol", symbol).
		SetResult(&ticker).
		Get(ctx, "/api/v3/ticker/price")
	if err != nil {
		return decimal.Zero, err
	}
	if resp.Result() == nil {
		return decimal.Zero, malformed(v.name(), "ticker response did not decode", nil)
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Zero, malformed(v.name(), "ticker price is not a number", err)
	}
	return price, nil
}

// krakenVenue reads /0/public/Ticker. The result map is keyed by
// Kraken's own pair name and the last-trade price lives in c[0].
type krakenVenue struct{}

func (krakenVenue) name() string           { return VenueKraken }
func (krakenVenue) defaultBaseURL() string { return "https://api.kraken.com" }

type krakenTickerResponse struct {
	Error  []string `json:"error"`
	Result map[string]struct {
		Close []string `json:"c"`
	} `json:"result"`
}

func (v krakenVenue) fetchPrice(ctx context.Context, client httpclient.Client, base, quote string) (decimal.Decimal, error) {
	symbol, ok := krakenSymbols[pairKey(base, quote)]
	if !ok {
		return decimal.Zero, unsupportedPair(v.name(), base, quote)
	}

	var ticker krakenTickerResponse
	resp, err := client.NewRequest(httpclient.WithResponseErrorHandler(apiErrorHandler(v.name()))).
		SetQueryParam("pair", symbol).
		SetResult(&ticker).
		Get(ctx, "/0/public/Ticker")
	if err != nil {
		return decimal.Zero, err
	}
	if resp.Result() == nil {
		return decimal.Zero, malformed(v.name(), "ticker response did not decode", nil)
	}
	if len(ticker.Error) > 0 {
		return decimal.Zero, apperror.New(apperror.CodeExchangeAPIError,
			apperror.WithMessage("kraken reported an error"),
			apperror.WithContext("exchange", v.name()),
			apperror.WithContext("error", ticker.Error[0]))
	}

	entry, ok := ticker.Result[symbol]
	if !ok || len(entry.Close) == 0 {
		return decimal.Zero, malformed(v.name(), "ticker result missing pair entry", nil)
	}

	price, err := decimal.NewFromString(entry.Close[0])
	if err != nil {
		return decimal.Zero, malformed(v.name(), "ticker price is not a number", err)
	}
	return price, nil
}

// coingeckoVenue reads /api/v3/simple/price with coin ids.
type coingeckoVenue struct{}

func (coingeckoVenue) name() string           { return VenueCoingecko }
func (coingeckoVenue) defaultBaseURL() string { return "https://api.coingecko.com" }

func (v coingeckoVenue) fetchPrice(ctx context.Context, client httpclient.Client, base, quote string) (decimal.Decimal, error) {
	id, ok := coingeckoIDs[base]
	if !ok {
		return decimal.Zero, unsupportedPair(v.name(), base, quote)
	}
	vs, ok := coingeckoVsCurrency(quote)
	if !ok {
		return decimal.Zero, unsupportedPair(v.name(), base, quote)
	}

	var prices map[string]map[string]decimal.Decimal
	resp, err := client.NewRequest(httpclient.WithResponseErrorHandler(apiErrorHandler(v.name()))).
		SetQueryParam("ids", id).
		SetQueryParam("vs_currencies", vs).
		SetResult(&prices).
		Get(ctx, "/api/v3/simple/price")
	if err != nil {
		return decimal.Zero, err
	}
	if resp.Result() == nil {
		return decimal.Zero, malformed(v.name(), "price response did not decode", nil)
	}

	price, ok := prices[id][vs]
	if !ok {
		return decimal.Zero, malformed(v.name(), "price response missing coin entry", nil)
	}
	return price, nil
}
