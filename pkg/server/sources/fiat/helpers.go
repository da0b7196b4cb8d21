package fiat

import (
	"fmt"
	"strings"

	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
)

// CurrencyPlaceholder is substituted with the target currency in FX source
// URLs and price paths.
const CurrencyPlaceholder = "{currency}"

// BaseCurrency is the quote currency of the feed; converting to it is a no-op.
const BaseCurrency = "USD"

// NormalizeCurrency upper-cases and validates an ISO 4217 code.
func NormalizeCurrency(currency string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if len(c) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
		}
	}
	return c, nil
}

// ResolveSource resolves cfg against the FX presets and fills in the
// currency placeholder.
func ResolveSource(cfg sources.SourceConfig, currency string) (sources.SourceConfig, error) {
	resolved, err := Presets.Resolve(cfg)
	if err != nil {
		return resolved, err
	}
	resolved.URL = strings.ReplaceAll(resolved.URL, CurrencyPlaceholder, currency)
	resolved.PricePath = strings.ReplaceAll(resolved.PricePath, CurrencyPlaceholder, currency)
	return resolved, nil
}
