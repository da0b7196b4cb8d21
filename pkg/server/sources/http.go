package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/StrathCole/btc-pricefeed/pkg/logging"
	"github.com/StrathCole/btc-pricefeed/pkg/version"
)

// maxBodySize caps how much of an upstream body is read.
const maxBodySize = 1 << 20

// HTTPSource fetches a single price from a JSON REST endpoint described by a SourceConfig.
type HTTPSource struct {
	*BaseSource

	cfg     SourceConfig
	client  *http.Client
	limiter *rate.Limiter

	lastMu sync.RWMutex
	last   Quote // last valid quote, reused inside MinInterval
}

// Ensure HTTPSource implements Source
var _ Source = (*HTTPSource)(nil)

// NewHTTPSource creates a source from cfg. A nil client uses a fresh http.Client;
// per-call deadlines come from cfg.Timeout either way.
func NewHTTPSource(cfg SourceConfig, client *http.Client, logger *logging.Logger) (*HTTPSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	if client == nil {
		client = &http.Client{}
	}

	s := &HTTPSource{
		BaseSource: NewBaseSource(cfg.Name, logger),
		cfg:        cfg,
		client:     client,
	}
	if cfg.MinInterval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *HTTPSource) Config() SourceConfig {
	return s.cfg
}

// Fetch performs one bounded GET and extracts a validated quote. Inside
// MinInterval it makes no request and leaves the health record alone.
func (s *HTTPSource) Fetch(ctx context.Context) (Quote, error) {
	// Waiting for the limiter would stretch the caller's time bound.
	if s.limiter != nil && !s.limiter.Allow() {
		return s.paced()
	}

	start := time.Now()
	q, err := s.fetch(ctx)
	took := time.Since(start)
	s.Record(q, err, took)
	if err == nil {
		s.lastMu.Lock()
		s.last = q
		s.lastMu.Unlock()
	}

	if err != nil {
		s.Logger().Debug("Fetch failed", "reason", string(ReasonOf(err)), "error", err, "took", took)
	} else {
		s.Logger().Debug("Fetched quote", "price", q.Price.String(), "took", took)
	}
	return q, err
}

// paced answers a call inside MinInterval with the quote fetched in that
// interval, or rate_limited when there is none.
func (s *HTTPSource) paced() (Quote, error) {
	s.lastMu.RLock()
	last := s.last
	s.lastMu.RUnlock()

	if !last.FetchedAt.IsZero() && time.Since(last.FetchedAt) < s.cfg.MinInterval {
		return last, nil
	}
	return Quote{}, s.fail(ReasonRateLimited, fmt.Errorf("%w: min interval %s", ErrRateLimitExceeded, s.cfg.MinInterval))
}

func (s *HTTPSource) fetch(ctx context.Context) (Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return Quote{}, s.fail(ReasonNetwork, fmt.Errorf("failed to create request: %w", err))
	}
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", version.AgentString())

	resp, err := s.client.Do(req)
	if err != nil {
		return Quote{}, s.fail(classifyTransport(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Quote{}, s.fail(ReasonRateLimited, fmt.Errorf("%w (HTTP 429)", ErrRateLimitExceeded))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Quote{}, s.fail(ReasonStatus, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Quote{}, s.fail(classifyTransport(err), fmt.Errorf("failed to read response: %w", err))
	}

	if !gjson.ValidBytes(body) {
		return Quote{}, s.fail(ReasonDecode, fmt.Errorf("%w: malformed JSON", ErrInvalidResponse))
	}

	if s.cfg.ErrorPath != "" {
		if apiErr := gjson.GetBytes(body, s.cfg.ErrorPath); hasAPIError(apiErr) {
			return Quote{}, s.fail(ReasonAPIError, fmt.Errorf("%w: %s", ErrAPIError, apiErr.Raw))
		}
	}

	field := gjson.GetBytes(body, s.cfg.PricePath)
	if !field.Exists() {
		return Quote{}, s.fail(ReasonDecode, fmt.Errorf("%w: field %q missing", ErrInvalidResponse, s.cfg.PricePath))
	}

	price, err := priceFromResult(field)
	if err != nil {
		return Quote{}, s.fail(ReasonInvalidQuote, err)
	}

	if s.cfg.ScalePath != "" {
		scaleField := gjson.GetBytes(body, s.cfg.ScalePath)
		if !scaleField.Exists() {
			return Quote{}, s.fail(ReasonDecode, fmt.Errorf("%w: field %q missing", ErrInvalidResponse, s.cfg.ScalePath))
		}
		scale, err := priceFromResult(scaleField)
		if err != nil {
			return Quote{}, s.fail(ReasonInvalidQuote, fmt.Errorf("scale: %w", err))
		}
		price = price.Div(scale)
	}

	return Quote{
		Source:    s.Name(),
		Price:     price,
		FetchedAt: time.Now(),
	}, nil
}

func (s *HTTPSource) fail(reason Reason, err error) error {
	return &SourceError{Source: s.Name(), Reason: reason, Err: err}
}

// priceFromResult accepts a JSON number or a decimal string.
func priceFromResult(r gjson.Result) (decimal.Decimal, error) {
	switch r.Type {
	case gjson.String:
		return ParsePrice(r.Str)
	case gjson.Number:
		return ParsePrice(r.Raw)
	default:
		return decimal.Zero, fmt.Errorf("%w: %s is not numeric", ErrInvalidQuote, r.Raw)
	}
}

// hasAPIError treats a non-empty array, non-empty string, non-empty object or true as an error marker.
func hasAPIError(r gjson.Result) bool {
	switch {
	case !r.Exists():
		return false
	case r.IsArray():
		return len(r.Array()) > 0
	case r.IsObject():
		return len(r.Map()) > 0
	case r.Type == gjson.String:
		return r.Str != ""
	case r.Type == gjson.True:
		return true
	}
	return false
}
