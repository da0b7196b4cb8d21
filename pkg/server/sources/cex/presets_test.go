package cex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
)

func TestPresets_Registered(t *testing.T) {
	for _, name := range DefaultOrder {
		cfg, ok := sources.Preset(name)
		require.True(t, ok, name)
		assert.Equal(t, name, cfg.Name)
		assert.NoError(t, cfg.Validate(), name)
	}
}

// Each preset's path must extract the price from that exchange's documented body.
func TestPresets_ExtractPrice(t *testing.T) {
	bodies := map[string]string{
		"binance":   `{"symbol":"BTCUSDT","price":"61234.50000000"}`,
		"coinbase":  `{"data":{"amount":"61234.5","base":"BTC","currency":"USD"}}`,
		"kraken":    `{"error":[],"result":{"XXBTZUSD":{"a":["61240.0","1","1.000"],"c":["61234.50000","0.00100000"]}}}`,
		"coingecko": `{"bitcoin":{"usd":61234.5}}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			cfg, err := sources.Resolve(sources.SourceConfig{Name: name, URL: srv.URL})
			require.NoError(t, err)

			src, err := sources.NewHTTPSource(cfg, srv.Client(), nil)
			require.NoError(t, err)

			q, err := src.Fetch(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "61234.5", q.Price.String())
			assert.Equal(t, name, q.Source)
		})
	}
}

// Integration test - requires network connection.
func TestPresets_Live_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	for _, name := range DefaultOrder {
		cfg, _ := sources.Preset(name)
		src, err := sources.NewHTTPSource(cfg, nil, nil)
		require.NoError(t, err)

		q, err := src.Fetch(context.Background())
		if err != nil {
			t.Logf("%s unavailable: %v", name, err)
			continue
		}
		assert.True(t, q.Price.IsPositive())
		t.Logf("%s BTC/USD: %s", name, q.Price)
	}
}
