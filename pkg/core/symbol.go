package core

import "strings"

// quotePriority is the deterministic priority list used to split concatenated
// venue symbols into base and quote. Longer and more common quote currencies
// come first so "ETHBTC" resolves to ETH/BTC and "BTCUSDT" to BTC/USDT.
// This is a heuristic: a venue symbol whose quote currency is not listed here
// cannot be split and is returned unchanged. Adapters that have loaded
// instruments should prefer the instrument table over this fallback.
var quotePriority = []string{
	"USDT", "USDC", "BUSD", "TUSD", "DAI",
	"USD", "EUR", "GBP", "SGD",
	"BTC", "ETH", "BNB",
}

// MakeSymbol builds a canonical "BASE/QUOTE" symbol from currency codes.
func MakeSymbol(base, quote string) string {
	return strings.ToUpper(base) + "/" + strings.ToUpper(quote)
}

// SplitSymbol splits a canonical "BASE/QUOTE" symbol into its currencies.
// The second return value is false when the symbol is not canonical.
func SplitSymbol(symbol string) (base, quote string, ok bool) {
	base, quote, ok = strings.Cut(symbol, "/")
	if !ok || base == "" || quote == "" {
		return "", "", false
	}
	return base, quote, true
}

// SplitConcatenated splits a concatenated venue symbol (e.g. "BTCUSDT",
// "ethbtc") into base and quote using the quote priority list. Resolution is
// deterministic: the first listed quote currency matching a suffix wins.
func SplitConcatenated(venueSymbol string) (base, quote string, ok bool) {
	upper := strings.ToUpper(venueSymbol)
	for _, q := range quotePriority {
		if b, found := strings.CutSuffix(upper, q); found && b != "" {
			return b, q, true
		}
	}
	return "", "", false
}

// IsCanonicalSymbol reports whether the symbol has the "BASE/QUOTE" shape.
func IsCanonicalSymbol(symbol string) bool {
	_, _, ok := SplitSymbol(symbol)
	return ok
}
