package fiat

import (
	"time"

	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
)

const (
	// FrankfurterURL serves ECB reference rates (free, no API key).
	FrankfurterURL = "https://api.frankfurter.app/latest?from=USD&to=" + CurrencyPlaceholder
	// OpenERAPIURL serves daily rates from ExchangeRate-API's open endpoint.
	OpenERAPIURL = "https://open.er-api.com/v6/latest/USD"
)

// DefaultOrder is the FX source priority used when none is configured.
var DefaultOrder = []string{"frankfurter", "open_er_api"}

// Presets holds the FX endpoints, apart from the BTC price presets.
var Presets = sources.NewRegistry()

func init() {
	Presets.Register("frankfurter", sources.SourceConfig{
		URL:       FrankfurterURL,
		PricePath: "rates." + CurrencyPlaceholder,
		Timeout:   5 * time.Second,
	})
	Presets.Register("open_er_api", sources.SourceConfig{
		URL:       OpenERAPIURL,
		PricePath: "rates." + CurrencyPlaceholder,
		Timeout:   5 * time.Second,
	})
}
