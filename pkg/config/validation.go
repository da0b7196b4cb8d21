package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/btc-pricefeed/pkg/server/aggregator"
	"github.com/StrathCole/btc-pricefeed/pkg/server/feed"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources/fiat"
)

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if err := validateServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateFeedConfig(&cfg.Feed); err != nil {
		return fmt.Errorf("feed config: %w", err)
	}

	if cfg.FX.Enabled {
		if err := validateFXConfig(&cfg.FX); err != nil {
			return fmt.Errorf("fx config: %w", err)
		}
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateServerConfig(cfg *ServerConfig) error {
	if cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.Cert == "" || cfg.HTTP.TLS.Key == "" {
			return fmt.Errorf("%w", ErrTLSConfigIncomplete)
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Cert); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSCertNotFound, cfg.HTTP.TLS.Cert)
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Key); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSKeyNotFound, cfg.HTTP.TLS.Key)
		}
	}
	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("%w: request_timeout must be >= 0", ErrInvalidWindow)
	}
	return nil
}

func validateFeedConfig(cfg *FeedConfig) error {
	if err := sources.ValidateSymbolFormat(cfg.Symbol); err != nil {
		return fmt.Errorf("symbol: %w", err)
	}

	switch strings.ToLower(cfg.Policy) {
	case aggregator.ModeAverage, aggregator.ModeFirst, aggregator.ModeMedian:
	default:
		return fmt.Errorf("%w: %s (must be 'average', 'first', or 'median')", ErrInvalidPolicy, cfg.Policy)
	}

	switch strings.ToLower(cfg.FetchMode) {
	case feed.FetchSequential, feed.FetchConcurrent:
	default:
		return fmt.Errorf("%w: %s (must be 'sequential' or 'concurrent')", ErrInvalidFetchMode, cfg.FetchMode)
	}

	maxStale := cfg.maxStale()
	if cfg.FreshFor < 0 || maxStale < 0 {
		return fmt.Errorf("%w: fresh_for and max_stale must be >= 0", ErrInvalidWindow)
	}
	if maxStale != 0 && maxStale <= cfg.FreshFor.ToDuration() {
		return fmt.Errorf("%w: max_stale (%s) must exceed fresh_for (%s)", ErrInvalidWindow,
			maxStale, cfg.FreshFor.ToDuration())
	}

	return validateSources(cfg.Sources, func(sc SourceConfig) error {
		switch strings.ToLower(sc.Type) {
		case "", SourceTypeHTTP:
			resolved, err := sources.Resolve(sc.ToSourceConfig())
			if err != nil {
				return err
			}
			return resolved.Validate()
		case SourceTypeStream:
			return sc.ToStreamConfig().Validate()
		default:
			return fmt.Errorf("%w: %s (must be 'http' or 'stream')", ErrInvalidSourceType, sc.Type)
		}
	})
}

func validateFXConfig(cfg *FXConfig) error {
	currency, err := fiat.NormalizeCurrency(cfg.Currency)
	if err != nil {
		return err
	}
	if currency == fiat.BaseCurrency {
		// Prices are already in USD; no converter is built.
		return nil
	}

	if cfg.Fallback != "" {
		if _, err := parseFallback(cfg.Fallback); err != nil {
			return err
		}
	} else if currency != fiat.DefaultCurrency {
		return fmt.Errorf("%w: fallback is required for %s", ErrInvalidFallbackRate, currency)
	}

	if cfg.FreshFor < 0 || cfg.MaxStale < 0 {
		return fmt.Errorf("%w: fresh_for and max_stale must be >= 0", ErrInvalidWindow)
	}

	return validateSources(cfg.Sources, func(sc SourceConfig) error {
		if sc.Type != "" && !strings.EqualFold(sc.Type, SourceTypeHTTP) {
			return fmt.Errorf("%w: fx sources must be http", ErrInvalidSourceType)
		}
		resolved, err := fiat.ResolveSource(sc.ToSourceConfig(), currency)
		if err != nil {
			return err
		}
		return resolved.Validate()
	})
}

func validateSources(list []SourceConfig, check func(SourceConfig) error) error {
	if len(list) == 0 {
		return fmt.Errorf("%w", ErrNoSourcesConfigured)
	}

	seen := make(map[string]bool, len(list))
	enabled := 0
	for i, sc := range list {
		if sc.Name == "" {
			return fmt.Errorf("source %d: %w", i, ErrSourceNameRequired)
		}
		if seen[sc.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateSource, sc.Name)
		}
		seen[sc.Name] = true

		if !sc.IsEnabled() {
			continue
		}
		enabled++
		if err := check(sc); err != nil {
			return fmt.Errorf("source %d (%s): %w", i, sc.Name, err)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("%w", ErrNoSourcesEnabled)
	}
	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, l := range validLevels {
		if strings.ToLower(cfg.Level) == l {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	formatValid := strings.ToLower(cfg.Format) == "json" || strings.ToLower(cfg.Format) == "text"
	if !formatValid {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}

func parseFallback(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidFallbackRate, raw)
	}
	return d, nil
}
