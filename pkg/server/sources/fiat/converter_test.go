package fiat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/btc-pricefeed/pkg/server/feed"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
)

type rateServer struct {
	*httptest.Server
	status atomic.Int32
	calls  atomic.Int32
	mu     sync.Mutex
	body   string
	paths  []string
}

func newRateServer(body string) *rateServer {
	rs := &rateServer{body: body}
	rs.status.Store(http.StatusOK)
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.calls.Add(1)
		rs.mu.Lock()
		rs.paths = append(rs.paths, r.URL.RequestURI())
		body := rs.body
		rs.mu.Unlock()

		w.WriteHeader(int(rs.status.Load()))
		_, _ = w.Write([]byte(body))
	}))
	return rs
}

func (rs *rateServer) lastPath() string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.paths) == 0 {
		return ""
	}
	return rs.paths[len(rs.paths)-1]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNormalizeCurrency(t *testing.T) {
	c, err := NormalizeCurrency(" inr ")
	require.NoError(t, err)
	assert.Equal(t, "INR", c)

	for _, bad := range []string{"", "IN", "INRR", "I1R"} {
		_, err := NormalizeCurrency(bad)
		assert.ErrorIs(t, err, ErrInvalidCurrency, bad)
	}
}

func TestPresetsRegistered(t *testing.T) {
	for _, name := range DefaultOrder {
		cfg, ok := Presets.Preset(name)
		require.True(t, ok, name)
		assert.Contains(t, cfg.PricePath, CurrencyPlaceholder)
	}

	cfg, err := ResolveSource(sources.SourceConfig{Name: "frankfurter"}, "EUR")
	require.NoError(t, err)
	assert.Equal(t, "https://api.frankfurter.app/latest?from=USD&to=EUR", cfg.URL)
	assert.Equal(t, "rates.EUR", cfg.PricePath)

	// FX presets are not BTC price sources.
	_, ok := sources.Preset("frankfurter")
	assert.False(t, ok)
	_, err = sources.Resolve(sources.SourceConfig{Name: "frankfurter"})
	assert.ErrorIs(t, err, sources.ErrUnknownPreset)
	_, err = ResolveSource(sources.SourceConfig{Name: "binance"}, "EUR")
	assert.ErrorIs(t, err, sources.ErrUnknownPreset)
}

func TestConverter_FirstValidSourceWins(t *testing.T) {
	broken := newRateServer(`{"result":"error"}`)
	defer broken.Close()
	good := newRateServer(`{"amount":1.0,"base":"USD","rates":{"INR":83.45}}`)
	defer good.Close()

	conv, err := NewConverter(Config{
		Currency: "inr",
		Sources: []sources.SourceConfig{
			{Name: "primary", URL: broken.URL + "/latest", PricePath: "rates.{currency}"},
			{Name: "secondary", URL: good.URL + "/latest?to={currency}", PricePath: "rates.{currency}"},
		},
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "INR", conv.Currency())
	assert.Len(t, conv.Sources(), 2)

	rate := conv.Rate(context.Background())
	assert.Equal(t, "INR", rate.Currency)
	assert.Equal(t, "secondary", rate.Source)
	assert.True(t, rate.Value.Equal(decimal.RequireFromString("83.45")))
	assert.False(t, rate.Fallback)
	assert.Equal(t, "/latest?to=INR", good.lastPath())
}

func TestConverter_FallbackOnTotalFailure(t *testing.T) {
	srv := newRateServer(`{}`)
	defer srv.Close()
	srv.status.Store(http.StatusServiceUnavailable)

	conv, err := NewConverter(Config{
		Sources: []sources.SourceConfig{{Name: "fx", URL: srv.URL, PricePath: "rates.{currency}"}},
	}, nil, nil)
	require.NoError(t, err)

	rate := conv.Rate(context.Background())
	assert.True(t, rate.Fallback)
	assert.Equal(t, "fallback", rate.Source)
	assert.True(t, rate.Value.Equal(DefaultFallback))
}

func TestConverter_CachesAndServesLastLiveRate(t *testing.T) {
	srv := newRateServer(`{"rates":{"EUR":0.92}}`)
	defer srv.Close()

	clk := &clock{now: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	conv, err := NewConverter(Config{
		Currency: "EUR",
		Fallback: decimal.RequireFromString("0.9"),
		FreshFor: time.Minute,
		MaxStale: time.Hour,
		Sources:  []sources.SourceConfig{{Name: "fx", URL: srv.URL, PricePath: "rates.{currency}"}},
	}, nil, nil, WithClock(clk.Now))
	require.NoError(t, err)

	first := conv.Rate(context.Background())
	second := conv.Rate(context.Background())
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), srv.calls.Load())

	srv.status.Store(http.StatusInternalServerError)
	clk.Advance(10 * time.Minute)

	stale := conv.Rate(context.Background())
	assert.True(t, stale.Stale)
	assert.False(t, stale.Fallback)
	assert.True(t, stale.Value.Equal(decimal.RequireFromString("0.92")))

	clk.Advance(time.Hour)
	fallback := conv.Rate(context.Background())
	assert.True(t, fallback.Fallback)
	assert.True(t, fallback.Value.Equal(decimal.RequireFromString("0.9")))
}

func TestNewConverter_Validation(t *testing.T) {
	_, err := NewConverter(Config{Currency: "dollars"}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidCurrency)

	// Only INR has a built-in fallback.
	_, err = NewConverter(Config{Currency: "EUR"}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidFallback)

	_, err = NewConverter(Config{Sources: []sources.SourceConfig{{Name: "nowhere"}}}, nil, nil)
	assert.ErrorIs(t, err, sources.ErrUnknownPreset)

	_, err = New(Config{}, nil, nil)
	assert.ErrorIs(t, err, ErrNoRateSources)

	conv, err := NewConverter(Config{}, nil, nil)
	require.NoError(t, err)
	names := []string{}
	for _, s := range conv.Sources() {
		names = append(names, s.Name())
	}
	assert.Equal(t, DefaultOrder, names)
}

func TestConvert(t *testing.T) {
	price := decimal.RequireFromString("61000")
	rate := Rate{Currency: "INR", Value: decimal.RequireFromString("83.5")}

	converted := Convert(feed.Result{Price: &price}, rate)
	require.NotNil(t, converted)
	assert.True(t, converted.Equal(decimal.RequireFromString("5093500")))

	assert.Nil(t, Convert(feed.Result{}, rate))
	assert.Nil(t, Convert(feed.Result{Price: &price}, Rate{}))
}

func TestConverter_LiveFrankfurter(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	conv, err := NewConverter(Config{
		Sources: []sources.SourceConfig{{Name: "frankfurter", Timeout: 15 * time.Second}},
	}, nil, nil)
	require.NoError(t, err)

	rate := conv.Rate(context.Background())
	if rate.Fallback {
		t.Skip("frankfurter unreachable")
	}
	assert.True(t, rate.Value.GreaterThan(decimal.NewFromInt(10)))
	assert.True(t, strings.EqualFold(rate.Currency, "INR"))
}
