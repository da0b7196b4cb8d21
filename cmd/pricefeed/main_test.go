package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/btc-pricefeed/pkg/config"
	"github.com/StrathCole/btc-pricefeed/pkg/logging"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources/fiat"
)

func TestBuildFeed_FromConfig(t *testing.T) {
	binance := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"61000.00"}`))
	}))
	defer binance.Close()
	coinbase := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer coinbase.Close()
	kraken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":[],"result":{"XXBTZUSD":{"c":["61200.00000","0.1"]}}}`))
	}))
	defer kraken.Close()

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
feed:
  policy: average
  sources:
    - name: binance
      url: %s
    - name: coinbase
      url: %s
    - name: kraken
      url: %s
`, binance.URL, coinbase.URL, kraken.URL)))
	require.NoError(t, err)
	require.NoError(t, config.Validate(cfg))

	f, err := buildFeed(context.Background(), cfg, http.DefaultClient, logging.NewNoopLogger())
	require.NoError(t, err)

	r := f.GetPrice(context.Background())
	require.True(t, r.Available())
	assert.Equal(t, "61100", r.Price.String())
	assert.Equal(t, []string{"binance", "kraken"}, r.Sources)

	conv, err := buildConverter(cfg, http.DefaultClient, logging.NewNoopLogger())
	require.NoError(t, err)
	assert.Nil(t, conv)
}

func TestBuildConverter_Enabled(t *testing.T) {
	fx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"rates":{"INR":83.2}}`))
	}))
	defer fx.Close()

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
fx:
  enabled: true
  sources:
    - name: local
      url: %s/latest
      price_path: rates.{currency}
`, fx.URL)))
	require.NoError(t, err)
	require.NoError(t, config.Validate(cfg))

	conv, err := buildConverter(cfg, http.DefaultClient, logging.NewNoopLogger())
	require.NoError(t, err)
	require.NotNil(t, conv)

	rate := conv.Rate(context.Background())
	assert.False(t, rate.Fallback)
	assert.Equal(t, "83.2", rate.Value.String())
}

func TestApplyCurrency(t *testing.T) {
	for _, c := range []string{"USD", "usd", " Usd "} {
		cfg := config.Default()
		convert, err := applyCurrency(cfg, c)
		require.NoError(t, err, c)
		assert.False(t, convert, c)
		assert.False(t, cfg.FX.Enabled, c)
		require.NoError(t, config.Validate(cfg), c)
	}

	cfg := config.Default()
	convert, err := applyCurrency(cfg, "inr")
	require.NoError(t, err)
	assert.True(t, convert)
	assert.True(t, cfg.FX.Enabled)
	assert.Equal(t, "INR", cfg.FX.Currency)
	require.NoError(t, config.Validate(cfg))

	_, err = applyCurrency(config.Default(), "rupees")
	assert.ErrorIs(t, err, fiat.ErrInvalidCurrency)
}

func TestApplyCurrency_OtherCurrencyNeedsFallback(t *testing.T) {
	cfg, err := config.Parse([]byte(`
fx:
  currency: INR
  fallback: "83.0"
`))
	require.NoError(t, err)

	convert, err := applyCurrency(cfg, "EUR")
	require.NoError(t, err)
	assert.True(t, convert)
	assert.Empty(t, cfg.FX.Fallback)
	assert.ErrorIs(t, config.Validate(cfg), config.ErrInvalidFallbackRate)
}

func TestBuildConverter_USD(t *testing.T) {
	cfg, err := config.Parse([]byte("fx: {enabled: true, currency: usd}"))
	require.NoError(t, err)
	require.NoError(t, config.Validate(cfg))

	conv, err := buildConverter(cfg, http.DefaultClient, logging.NewNoopLogger())
	require.NoError(t, err)
	assert.Nil(t, conv)
}
