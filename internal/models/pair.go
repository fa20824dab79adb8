package models

import (
	"fmt"
	"strings"
)

// SplitPair splits "ETH/USDC" into its base and quote symbols, upper-cased.
func SplitPair(pair string) (base, quote string, err error) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("pair %q: expected BASE/QUOTE", pair)
	}
	base = strings.ToUpper(strings.TrimSpace(parts[0]))
	quote = strings.ToUpper(strings.TrimSpace(parts[1]))
	if base == "" || quote == "" || base == quote {
		return "", "", fmt.Errorf("pair %q: expected BASE/QUOTE", pair)
	}
	return base, quote, nil
}

// NormalizePair returns the canonical "BASE/QUOTE" spelling of pair, or pair unchanged
// when it cannot be parsed.
func NormalizePair(pair string) string {
	base, quote, err := SplitPair(pair)
	if err != nil {
		return pair
	}
	return base + "/" + quote
}
