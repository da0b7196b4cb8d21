package fiat

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/btc-pricefeed/pkg/logging"
	"github.com/StrathCole/btc-pricefeed/pkg/metrics"
	"github.com/StrathCole/btc-pricefeed/pkg/server/cache"
	"github.com/StrathCole/btc-pricefeed/pkg/server/feed"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
)

const (
	DefaultCurrency = "INR"
	DefaultFreshFor = time.Hour
)

// DefaultFallback is the INR per USD rate used when every FX source fails.
var DefaultFallback = decimal.NewFromFloat(83.0)

// Config configures a Converter.
type Config struct {
	Currency string
	Fallback decimal.Decimal
	FreshFor time.Duration
	MaxStale time.Duration // a live rate older than FreshFor is still preferred to Fallback within this age
	Sources  []sources.SourceConfig
}

// Rate is the number of Currency units per USD.
type Rate struct {
	Currency  string          `json:"currency"`
	Value     decimal.Decimal `json:"value"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
	Stale     bool            `json:"stale"`
	Fallback  bool            `json:"fallback"`
}

// Converter looks up the USD rate of one currency. Unlike the BTC price, a
// rate is always returned: on total failure it is the configured constant.
type Converter struct {
	currency string
	fallback decimal.Decimal
	sources  []sources.Source
	cache    *cache.Cache[Rate]
	logger   *logging.Logger
	now      func() time.Time

	mu sync.Mutex
}

// Option configures a Converter.
type Option func(*Converter)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Converter) {
		c.now = now
	}
}

// NewConverter builds HTTP sources for cfg.Sources, falling back to
// DefaultOrder when none are listed.
func NewConverter(cfg Config, client *http.Client, logger *logging.Logger, opts ...Option) (*Converter, error) {
	currency, err := NormalizeCurrency(orDefault(cfg.Currency, DefaultCurrency))
	if err != nil {
		return nil, err
	}

	configs := cfg.Sources
	if len(configs) == 0 {
		for _, name := range DefaultOrder {
			configs = append(configs, sources.SourceConfig{Name: name})
		}
	}

	srcs := make([]sources.Source, 0, len(configs))
	for _, sc := range configs {
		resolved, err := ResolveSource(sc, currency)
		if err != nil {
			return nil, fmt.Errorf("FX source %s: %w", sc.Name, err)
		}
		src, err := sources.NewHTTPSource(resolved, client, logger)
		if err != nil {
			return nil, fmt.Errorf("FX source %s: %w", sc.Name, err)
		}
		srcs = append(srcs, src)
	}

	cfg.Currency = currency
	return New(cfg, srcs, logger, opts...)
}

// New creates a converter over already built sources, queried in order.
func New(cfg Config, srcs []sources.Source, logger *logging.Logger, opts ...Option) (*Converter, error) {
	currency, err := NormalizeCurrency(orDefault(cfg.Currency, DefaultCurrency))
	if err != nil {
		return nil, err
	}
	if len(srcs) == 0 {
		return nil, fmt.Errorf("%w", ErrNoRateSources)
	}

	fallback := cfg.Fallback
	if fallback.IsZero() && currency == DefaultCurrency {
		fallback = DefaultFallback
	}
	if !fallback.IsPositive() {
		return nil, fmt.Errorf("%w: %s for %s", ErrInvalidFallback, fallback.String(), currency)
	}

	freshFor := cfg.FreshFor
	if freshFor <= 0 {
		freshFor = DefaultFreshFor
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	c := &Converter{
		currency: currency,
		fallback: fallback,
		sources:  srcs,
		logger:   logger.With("component", "fx", "currency", currency),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cache = cache.New[Rate](freshFor, cfg.MaxStale, cache.WithClock(c.now))
	return c, nil
}

// Currency returns the target currency code.
func (c *Converter) Currency() string {
	return c.currency
}

// Sources returns the FX sources in priority order.
func (c *Converter) Sources() []sources.Source {
	return append([]sources.Source(nil), c.sources...)
}

// Rate returns the current rate. The first source with a valid quote wins.
func (c *Converter) Rate(ctx context.Context) Rate {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, age, state := c.cache.Get()
	if state == cache.Fresh {
		return cached
	}

	for _, src := range c.sources {
		if ctx.Err() != nil {
			break
		}
		q, err := src.Fetch(ctx)
		if err != nil {
			c.logger.Warn("FX source failed, trying next",
				"source", src.Name(),
				"reason", string(sources.ReasonOf(err)),
				"error", err)
			continue
		}
		rate := Rate{
			Currency:  c.currency,
			Value:     q.Price,
			Source:    q.Source,
			FetchedAt: q.FetchedAt,
		}
		c.cache.Put(rate)
		return rate
	}

	if state == cache.Stale {
		c.logger.Warn("All FX sources failed, using last live rate", "age", age)
		cached.Stale = true
		return cached
	}

	c.logger.Warn("All FX sources failed, using fallback rate", "rate", c.fallback.String())
	metrics.RecordFXFallback(c.currency)
	return Rate{
		Currency:  c.currency,
		Value:     c.fallback,
		Source:    "fallback",
		FetchedAt: c.now(),
		Fallback:  true,
	}
}

// Convert applies rate to the BTC price in result. It returns nil when the
// result carries no price.
func Convert(result feed.Result, rate Rate) *decimal.Decimal {
	if !result.Available() || !rate.Value.IsPositive() {
		return nil
	}
	v := result.Price.Mul(rate.Value)
	return &v
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
