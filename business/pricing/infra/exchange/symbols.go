package exchange

import "strings"

// Each venue has its own symbol dialect. The maps are keyed by the
// canonical "BASE-QUOTE" pair string; a missing entry means the venue
// does not list the pair and the fetch fails as unsupported rather
// than guessing a symbol.

var binanceSymbols = map[string]string{
	"BTC-USDT": "BTCUSDT",
	"BTC-USDC": "BTCUSDC",
	"ETH-USDT": "ETHUSDT",
	"ETH-USDC": "ETHUSDC",
	"SOL-USDT": "SOLUSDT",
	"SOL-USDC": "SOLUSDC",
}

// Kraken keeps legacy X/Z prefixes for its oldest listings.
var krakenSymbols = map[string]string{
	"BTC-USD":  "XXBTZUSD",
	"ETH-USD":  "XETHZUSD",
	"BTC-USDT": "XBTUSDT",
	"ETH-USDT": "ETHUSDT",
	"BTC-USDC": "XBTUSDC",
	"ETH-USDC": "ETHUSDC",
	"SOL-USD":  "SOLUSD",
}

// CoinGecko uses coin ids plus a fiat-style vs_currency.
var coingeckoIDs = map[string]string{
	"BTC": "bitcoin",
	"ETH": "ethereum",
	"SOL": "solana",
}

// coingeckoVsCurrency maps quote symbols onto CoinGecko vs_currencies.
// Dollar stables are quoted in usd, which is the closest the API gets.
func coingeckoVsCurrency(quote string) (string, bool) {
	switch quote {
	case "USD", "USDC", "USDT":
		return "usd", true
	case "EUR":
		return "eur", true
	default:
		return "", false
	}
}

func pairKey(base, quote string) string {
	return strings.ToUpper(base) + "-" + strings.ToUpper(quote)
}
