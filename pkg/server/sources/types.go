package sources

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultTimeout bounds a single upstream call when a source sets none.
	DefaultTimeout = 5 * time.Second
)

// Quote is one price observation from one upstream source.
type Quote struct {
	Source    string          `json:"source"`
	Price     decimal.Decimal `json:"price"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Source defines the interface that all price sources must implement
type Source interface {
	// Name returns the unique name of this source
	Name() string

	// Fetch performs one bounded upstream call. Failures are *SourceError.
	Fetch(ctx context.Context) (Quote, error)

	// IsHealthy reports whether the last fetch produced a valid quote
	IsHealthy() bool

	// LastUpdate returns the timestamp of the last valid quote
	LastUpdate() time.Time

	// LastError returns the error of the last failed fetch, nil after a success
	LastError() error
}

// SourceConfig describes one upstream endpoint declaratively.
type SourceConfig struct {
	Name   string
	Preset string // preset to fill blanks from; defaults to Name

	URL       string
	PricePath string // gjson path to the price, e.g. "data.amount"
	ErrorPath string // optional gjson path holding API-level errors
	ScalePath string // optional gjson path to a divisor applied to the price

	Timeout     time.Duration
	MinInterval time.Duration // minimum spacing between calls, 0 = unlimited
	Headers     map[string]string
}

// DefaultHeaders are sent on every upstream request unless overridden.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":        "application/json",
		"Cache-Control": "no-cache",
	}
}

func (c SourceConfig) withDefaults() SourceConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	headers := DefaultHeaders()
	for k, v := range c.Headers {
		headers[k] = v
	}
	c.Headers = headers
	return c
}

// Validate checks that the config describes a usable endpoint.
func (c SourceConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if c.URL == "" {
		return fmt.Errorf("%w: %s: url is required", ErrInvalidConfig, c.Name)
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s: url must be absolute http(s): %q", ErrInvalidConfig, c.Name, c.URL)
	}
	if c.PricePath == "" {
		return fmt.Errorf("%w: %s: price_path is required", ErrInvalidConfig, c.Name)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: %s: timeout must be positive", ErrInvalidConfig, c.Name)
	}
	if c.ScalePath != "" && c.ScalePath == c.PricePath {
		return fmt.Errorf("%w: %s: scale_path must differ from price_path", ErrInvalidConfig, c.Name)
	}
	if c.MinInterval < 0 {
		return fmt.Errorf("%w: %s: min_interval must be >= 0", ErrInvalidConfig, c.Name)
	}
	return nil
}
