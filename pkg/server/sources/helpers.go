package sources

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice parses a decimal string and rejects anything that is not a
// finite positive number.
func ParsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: empty price", ErrInvalidQuote)
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not numeric", ErrInvalidQuote, raw)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s is not positive", ErrInvalidQuote, price.String())
	}
	return price, nil
}

// ValidateSymbolFormat checks if a symbol is in valid BASE/QUOTE format
// Valid formats:
//   - "BTC/USD", "BTC/USDT"
//
// Invalid formats:
//   - "BTC" (no quote currency)
//   - "BTCUSDT" (no separator)
//   - "" (empty).
func ValidateSymbolFormat(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("%w", ErrInvalidSymbolFormat)
	}

	parts := strings.Split(symbol, "/")
	if len(parts) != 2 {
		return fmt.Errorf("%w: %s", ErrInvalidSymbolFormat, symbol)
	}

	base := strings.TrimSpace(parts[0])
	quote := strings.TrimSpace(parts[1])

	if base == "" {
		return fmt.Errorf("%w: %s", ErrEmptyBaseCurrency, symbol)
	}
	if quote == "" {
		return fmt.Errorf("%w: %s", ErrEmptyQuoteCurrency, symbol)
	}

	return nil
}
