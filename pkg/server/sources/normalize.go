package sources

import (
	"strings"
)

// Stablecoin aliases - all considered equivalent to USD
var stablecoinAliases = map[string]string{
	"USDT": "USD",
	"USDC": "USD",
	"BUSD": "USD",
	"DAI":  "USD",
	"TUSD": "USD",
	"USDP": "USD",
}

// Base currency aliases
var baseCurrencyAliases = map[string]string{
	"WBTC": "BTC",
	"XBT":  "BTC",
}

// NormalizeSymbol converts a trading pair symbol to its canonical form
// Examples:
//   - BTC/USDT -> BTC/USD
//   - XBT/USD -> BTC/USD
//   - WBTC/USDC -> BTC/USD
//   - BTC/EUR -> BTC/EUR (no change)
func NormalizeSymbol(symbol string) string {
	parts := strings.Split(symbol, "/")
	if len(parts) != 2 {
		return symbol
	}

	base := strings.ToUpper(strings.TrimSpace(parts[0]))
	quote := strings.ToUpper(strings.TrimSpace(parts[1]))

	if normalized, ok := baseCurrencyAliases[base]; ok {
		base = normalized
	}
	if normalized, ok := stablecoinAliases[quote]; ok {
		quote = normalized
	}

	return base + "/" + quote
}
