// Package oracle registers price oracle networks that publish BTC/USD.
package oracle

import (
	"time"

	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
)

// BandURL asks Band Protocol validators for the BTC price. ask_count and
// min_count are kept low so the request resolves with few active validators.
const BandURL = "https://laozi1.bandchain.org/api/oracle/v1/request_prices?symbols=BTC&min_count=3&ask_count=4"

const bandTimeout = 10 * time.Second

func init() {
	// Band reports px as an integer scaled by multiplier.
	sources.RegisterPreset("band", sources.SourceConfig{
		URL:       BandURL,
		PricePath: "price_results.#(symbol==\"BTC\").px",
		ScalePath: "price_results.#(symbol==\"BTC\").multiplier",
		Timeout:   bandTimeout,
	})
}
