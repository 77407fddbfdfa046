package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// PortfolioHash fingerprints a portfolio composition for cache keying.
// Order-independent: each holding is rendered as TICKER:weight at six
// decimals, the rendered pairs are sorted, and a 32-bit rolling hash is
// taken over the joined string. Non-cryptographic; collisions are an
// accepted cache-key risk.
func PortfolioHash(holdings []Holding) string {
	pairs := make([]string, 0, len(holdings))
	for _, h := range holdings {
		pairs = append(pairs, fmt.Sprintf("%s:%.6f", h.Ticker, h.Weight))
	}
	sort.Strings(pairs)

	joined := strings.Join(pairs, "|")

	var hash uint32
	for _, ch := range joined {
		hash = hash*31 + uint32(ch)
	}

	return fmt.Sprintf("%08x", hash)
}
