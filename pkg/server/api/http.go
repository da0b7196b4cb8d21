// Package api provides HTTP and WebSocket API endpoints for the price feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/btc-pricefeed/pkg/logging"
	"github.com/StrathCole/btc-pricefeed/pkg/metrics"
	"github.com/StrathCole/btc-pricefeed/pkg/server/feed"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources/fiat"
)

// DefaultRequestTimeout caps how long a price request may wait on upstreams.
const DefaultRequestTimeout = 30 * time.Second

// PriceFeed is the part of *feed.Feed the HTTP API needs.
type PriceFeed interface {
	GetPrice(ctx context.Context) feed.Result
	Sources() []sources.Source
	LastOutcomes() []feed.Outcome
}

// RateProvider is the part of *fiat.Converter the HTTP API needs.
type RateProvider interface {
	Currency() string
	Rate(ctx context.Context) fiat.Rate
	Sources() []sources.Source
}

// PriceResponse is the body of /v1/price. Absence of a price is reported with
// Available=false and a 200 status.
type PriceResponse struct {
	feed.Result
	Available bool            `json:"available"`
	Converted *ConvertedPrice `json:"converted,omitempty"`
}

// ConvertedPrice is the price expressed in another currency.
type ConvertedPrice struct {
	Currency string           `json:"currency"`
	Price    *decimal.Decimal `json:"price"`
	Rate     fiat.Rate        `json:"rate"`
}

// SourceStatus describes the health of one upstream.
type SourceStatus struct {
	Name       string     `json:"name"`
	Healthy    bool       `json:"healthy"`
	LastUpdate *time.Time `json:"last_update,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// RoundOutcome is one source's result in the last upstream round.
type RoundOutcome struct {
	Source     string `json:"source"`
	OK         bool   `json:"ok"`
	Reason     string `json:"reason,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// SourcesResponse is the body of /v1/sources.
type SourcesResponse struct {
	Price     []SourceStatus `json:"price"`
	FX        []SourceStatus `json:"fx,omitempty"`
	LastRound []RoundOutcome `json:"last_round"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server represents the HTTP API server.
type Server struct {
	addr           string
	feed           PriceFeed
	rates          RateProvider
	requestTimeout time.Duration
	tlsCert        string
	tlsKey         string
	server         *http.Server
	logger         *logging.Logger
}

// NewServer creates a new HTTP API server. rates may be nil when conversion is disabled.
func NewServer(addr string, pf PriceFeed, rates RateProvider, requestTimeout time.Duration, logger *logging.Logger) *Server {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Server{
		addr:           addr,
		feed:           pf,
		rates:          rates,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

// SetTLS makes Start serve HTTPS with the given certificate files.
func (s *Server) SetTLS(certFile, keyFile string) {
	s.tlsCert = certFile
	s.tlsKey = keyFile
}

// Handler returns the HTTP handler serving all endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/price", s.handlePrice)
	mux.HandleFunc("/latest", s.handlePrice)
	mux.HandleFunc("/v1/sources", s.handleSources)
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.requestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", s.addr, "tls", s.tlsCert != "")
	var err error
	if s.tlsCert != "" {
		err = s.server.ListenAndServeTLS(s.tlsCert, s.tlsKey)
	} else {
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("Stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleHealth handles /health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest("/health", "200", time.Since(start))
	}()

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePrice handles /v1/price and /latest endpoints.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		metrics.RecordHTTPRequest(r.URL.Path, fmt.Sprint(status), time.Since(start))
	}()

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		status = http.StatusMethodNotAllowed
		s.sendError(w, status, "method not allowed")
		return
	}

	var currency string
	if raw := r.URL.Query().Get("currency"); raw != "" {
		c, err := fiat.NormalizeCurrency(raw)
		if err != nil {
			status = http.StatusBadRequest
			s.sendError(w, status, err.Error())
			return
		}
		if c != fiat.BaseCurrency {
			if s.rates == nil || s.rates.Currency() != c {
				status = http.StatusBadRequest
				s.sendError(w, status, fmt.Sprintf("currency %s is not supported", c))
				return
			}
			currency = c
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	result := s.feed.GetPrice(ctx)
	resp := PriceResponse{
		Result:    result,
		Available: result.Available(),
	}

	if currency != "" {
		rate := s.rates.Rate(ctx)
		resp.Converted = &ConvertedPrice{
			Currency: currency,
			Price:    fiat.Convert(result, rate),
			Rate:     rate,
		}
	}

	s.sendJSON(w, status, resp)
}

// handleSources handles /v1/sources endpoint.
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest(r.URL.Path, "200", time.Since(start))
	}()

	resp := SourcesResponse{
		Price:     sourceStatuses(s.feed.Sources()),
		LastRound: make([]RoundOutcome, 0),
	}
	for _, o := range s.feed.LastOutcomes() {
		resp.LastRound = append(resp.LastRound, RoundOutcome{
			Source:     o.Source,
			OK:         o.OK(),
			Reason:     string(o.Reason()),
			DurationMs: o.Duration.Milliseconds(),
		})
	}
	if s.rates != nil {
		resp.FX = sourceStatuses(s.rates.Sources())
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func sourceStatuses(srcs []sources.Source) []SourceStatus {
	out := make([]SourceStatus, 0, len(srcs))
	for _, src := range srcs {
		st := SourceStatus{
			Name:    src.Name(),
			Healthy: src.IsHealthy(),
		}
		if ts := src.LastUpdate(); !ts.IsZero() {
			st.LastUpdate = &ts
		}
		if err := src.LastError(); err != nil {
			st.LastError = err.Error()
			st.Reason = string(sources.ReasonOf(err))
		}
		out = append(out, st)
	}
	return out
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, msg string) {
	s.sendJSON(w, status, errorResponse{Error: strings.TrimSpace(msg)})
}
