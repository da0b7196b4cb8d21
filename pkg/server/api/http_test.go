package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/btc-pricefeed/pkg/server/feed"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources/fiat"
)

type stubSource struct {
	name    string
	healthy bool
	updated time.Time
	err     error
}

func (s *stubSource) Name() string                                 { return s.name }
func (s *stubSource) Fetch(context.Context) (sources.Quote, error) { return sources.Quote{}, s.err }
func (s *stubSource) IsHealthy() bool                              { return s.healthy }
func (s *stubSource) LastUpdate() time.Time                        { return s.updated }
func (s *stubSource) LastError() error                             { return s.err }

type stubFeed struct {
	result   feed.Result
	srcs     []sources.Source
	outcomes []feed.Outcome
}

func (f *stubFeed) GetPrice(context.Context) feed.Result { return f.result }
func (f *stubFeed) Sources() []sources.Source           { return f.srcs }
func (f *stubFeed) LastOutcomes() []feed.Outcome        { return f.outcomes }

type stubRates struct {
	rate fiat.Rate
}

func (r *stubRates) Currency() string                  { return r.rate.Currency }
func (r *stubRates) Rate(context.Context) fiat.Rate    { return r.rate }
func (r *stubRates) Sources() []sources.Source         { return []sources.Source{&stubSource{name: "frankfurter", healthy: true}} }

func priceResult(price string) feed.Result {
	p := decimal.RequireFromString(price)
	return feed.Result{
		Symbol:    "BTC/USD",
		Price:     &p,
		Sources:   []string{"binance", "coinbase"},
		FetchedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var body map[string]interface{}
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHandleHealth(t *testing.T) {
	s := NewServer(":0", &stubFeed{}, nil, 0, nil)
	rec, _ := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandlePrice_Available(t *testing.T) {
	s := NewServer(":0", &stubFeed{result: priceResult("61100")}, nil, 0, nil)

	for _, path := range []string{"/v1/price", "/latest"} {
		rec, body := get(t, s.Handler(), path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, true, body["available"])
		assert.Equal(t, "61100", body["price"])
		assert.Equal(t, "BTC/USD", body["symbol"])
		assert.Equal(t, false, body["stale"])
		assert.Equal(t, []interface{}{"binance", "coinbase"}, body["sources"])
		assert.NotContains(t, body, "converted")
	}
}

func TestHandlePrice_UnavailableIsNotAnError(t *testing.T) {
	s := NewServer(":0", &stubFeed{result: feed.Result{Symbol: "BTC/USD", Sources: []string{}}}, nil, 0, nil)

	rec, body := get(t, s.Handler(), "/v1/price")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["available"])
	assert.Nil(t, body["price"])
}

func TestHandlePrice_Converted(t *testing.T) {
	rates := &stubRates{rate: fiat.Rate{Currency: "INR", Value: decimal.RequireFromString("83"), Source: "frankfurter"}}
	s := NewServer(":0", &stubFeed{result: priceResult("61000")}, rates, 0, nil)

	rec, body := get(t, s.Handler(), "/v1/price?currency=inr")
	require.Equal(t, http.StatusOK, rec.Code)

	converted, ok := body["converted"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "INR", converted["currency"])
	assert.Equal(t, "5063000", converted["price"])

	rate := converted["rate"].(map[string]interface{})
	assert.Equal(t, "frankfurter", rate["source"])
	assert.Equal(t, false, rate["fallback"])

	// USD needs no conversion.
	_, body = get(t, s.Handler(), "/v1/price?currency=USD")
	assert.NotContains(t, body, "converted")
}

func TestHandlePrice_ConvertedUnavailable(t *testing.T) {
	rates := &stubRates{rate: fiat.Rate{Currency: "INR", Value: decimal.RequireFromString("83"), Fallback: true}}
	s := NewServer(":0", &stubFeed{result: feed.Result{Symbol: "BTC/USD"}}, rates, 0, nil)

	rec, body := get(t, s.Handler(), "/v1/price?currency=INR")
	require.Equal(t, http.StatusOK, rec.Code)
	converted := body["converted"].(map[string]interface{})
	assert.Nil(t, converted["price"])
}

func TestHandlePrice_BadRequests(t *testing.T) {
	rates := &stubRates{rate: fiat.Rate{Currency: "INR", Value: decimal.NewFromInt(83)}}
	s := NewServer(":0", &stubFeed{result: priceResult("61000")}, rates, 0, nil)

	rec, body := get(t, s.Handler(), "/v1/price?currency=rupees")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "3-letter")

	rec, body = get(t, s.Handler(), "/v1/price?currency=EUR")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "EUR")

	noFX := NewServer(":0", &stubFeed{result: priceResult("61000")}, nil, 0, nil)
	rec, _ = get(t, noFX.Handler(), "/v1/price?currency=INR")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	post := httptest.NewRecorder()
	s.Handler().ServeHTTP(post, httptest.NewRequest(http.MethodPost, "/v1/price", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, post.Code)
}

func TestHandleSources(t *testing.T) {
	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	pf := &stubFeed{
		srcs: []sources.Source{
			&stubSource{name: "binance", healthy: true, updated: updated},
			&stubSource{name: "kraken", err: &sources.SourceError{
				Source: "kraken",
				Reason: sources.ReasonTimeout,
				Err:    errors.New("deadline exceeded"),
			}},
		},
		outcomes: []feed.Outcome{
			{Source: "binance", Duration: 120 * time.Millisecond},
			{Source: "kraken", Err: &sources.SourceError{Source: "kraken", Reason: sources.ReasonTimeout, Err: errors.New("x")}},
		},
	}
	s := NewServer(":0", pf, &stubRates{rate: fiat.Rate{Currency: "INR"}}, 0, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sources", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SourcesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.Price, 2)
	assert.True(t, resp.Price[0].Healthy)
	require.NotNil(t, resp.Price[0].LastUpdate)
	assert.True(t, resp.Price[0].LastUpdate.Equal(updated))
	assert.False(t, resp.Price[1].Healthy)
	assert.Equal(t, "timeout", resp.Price[1].Reason)
	assert.Nil(t, resp.Price[1].LastUpdate)

	require.Len(t, resp.FX, 1)
	assert.Equal(t, "frankfurter", resp.FX[0].Name)

	require.Len(t, resp.LastRound, 2)
	assert.True(t, resp.LastRound[0].OK)
	assert.Equal(t, int64(120), resp.LastRound[0].DurationMs)
	assert.False(t, resp.LastRound[1].OK)
	assert.Equal(t, "timeout", resp.LastRound[1].Reason)
}
