package asset

import (
	"fmt"
	"strings"
)

// Pair is a base/quote symbol pair such as ETH-USDC. Prices are always
// expressed as quote units per one base unit.
type Pair struct {
	Base  string
	Quote string
}

// ParsePair parses "BASE-QUOTE" (also accepting "BASE/QUOTE").
func ParsePair(s string) (Pair, error) {
	sep := "-"
	if !strings.Contains(s, sep) {
		sep = "/"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("asset: invalid pair %q, want BASE-QUOTE", s)
	}
	return Pair{
		Base:  strings.ToUpper(strings.TrimSpace(parts[0])),
		Quote: strings.ToUpper(strings.TrimSpace(parts[1])),
	}, nil
}

// String returns "BASE-QUOTE".
func (p Pair) String() string {
	return p.Base + "-" + p.Quote
}
