// Package cex registers the public exchange endpoints quoting BTC/USD.
package cex

import (
	"time"

	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
)

const (
	BinanceURL   = "https://api.binance.com/api/v3/ticker/price?symbol=BTCUSDT"
	CoinbaseURL  = "https://api.coinbase.com/v2/prices/BTC-USD/spot"
	KrakenURL    = "https://api.kraken.com/0/public/Ticker?pair=XBTUSD"
	CoinGeckoURL = "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd"

	// Free CoinGecko tier allows a handful of calls per minute.
	coingeckoFreeMinInterval = 15 * time.Second
)

// DefaultOrder is the priority order used when no sources are configured.
var DefaultOrder = []string{"binance", "coinbase", "kraken", "coingecko"}

func init() {
	sources.RegisterPreset("binance", sources.SourceConfig{
		URL:       BinanceURL,
		PricePath: "price",
	})
	sources.RegisterPreset("coinbase", sources.SourceConfig{
		URL:       CoinbaseURL,
		PricePath: "data.amount",
	})
	// Kraken answers with its own pair key; last trade price is c[0].
	sources.RegisterPreset("kraken", sources.SourceConfig{
		URL:       KrakenURL,
		PricePath: "result.XXBTZUSD.c.0",
		ErrorPath: "error",
	})
	sources.RegisterPreset("coingecko", sources.SourceConfig{
		URL:         CoinGeckoURL,
		PricePath:   "bitcoin.usd",
		MinInterval: coingeckoFreeMinInterval,
	})
}
