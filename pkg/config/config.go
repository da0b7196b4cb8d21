package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/StrathCole/btc-pricefeed/pkg/server/aggregator"
	"github.com/StrathCole/btc-pricefeed/pkg/server/feed"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources/cex"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources/fiat"
	_ "github.com/StrathCole/btc-pricefeed/pkg/server/sources/oracle" // registers oracle presets
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources/websocket"
)

// Load loads configuration from YAML file and environment variables.
func Load(path string) (*Config, error) {
	// Validate and sanitize path
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML, expanding ${ENV} references, and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = ":8080"
	}
	if cfg.Server.WebSocket.Enabled && cfg.Server.WebSocket.Addr == "" {
		cfg.Server.WebSocket.Addr = ":8081"
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = Duration(30 * time.Second)
	}

	// Feed defaults
	if cfg.Feed.Symbol == "" {
		cfg.Feed.Symbol = feed.DefaultSymbol
	}
	if cfg.Feed.Policy == "" {
		cfg.Feed.Policy = aggregator.ModeAverage
	}
	if cfg.Feed.FetchMode == "" {
		cfg.Feed.FetchMode = feed.FetchSequential
	}
	if cfg.Feed.FreshFor == 0 {
		cfg.Feed.FreshFor = Duration(feed.DefaultFreshFor)
	}
	if cfg.Feed.MaxStale == nil {
		// The default ceiling must stay above fresh_for to mean anything.
		maxStale := feed.DefaultMaxStale
		if fresh := cfg.Feed.FreshFor.ToDuration(); fresh >= maxStale {
			maxStale += fresh
		}
		d := Duration(maxStale)
		cfg.Feed.MaxStale = &d
	}
	if len(cfg.Feed.Sources) == 0 {
		for _, name := range cex.DefaultOrder {
			cfg.Feed.Sources = append(cfg.Feed.Sources, SourceConfig{Name: name})
		}
	}

	// FX defaults
	if cfg.FX.Currency == "" {
		cfg.FX.Currency = fiat.DefaultCurrency
	}
	if cfg.FX.FreshFor == 0 {
		cfg.FX.FreshFor = Duration(fiat.DefaultFreshFor)
	}
	if len(cfg.FX.Sources) == 0 {
		for _, name := range fiat.DefaultOrder {
			cfg.FX.Sources = append(cfg.FX.Sources, SourceConfig{Name: name})
		}
	}

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// ToSourceConfig converts to the declarative form used by sources.
func (sc SourceConfig) ToSourceConfig() sources.SourceConfig {
	return sources.SourceConfig{
		Name:        sc.Name,
		Preset:      sc.Preset,
		URL:         sc.URL,
		PricePath:   sc.PricePath,
		ErrorPath:   sc.ErrorPath,
		ScalePath:   sc.ScalePath,
		Timeout:     sc.Timeout.ToDuration(),
		MinInterval: sc.MinInterval.ToDuration(),
		Headers:     sc.Headers,
	}
}

// ToStreamConfig converts to the form used by stream sources, filling blanks
// from the stream presets.
func (sc SourceConfig) ToStreamConfig() websocket.StreamConfig {
	return websocket.ResolveStream(websocket.StreamConfig{
		Name:      sc.Name,
		URL:       sc.URL,
		PricePath: sc.PricePath,
		Subscribe: sc.Subscribe,
		MaxAge:    sc.MaxAge.ToDuration(),
		Headers:   sc.Headers,
	}, sc.Preset)
}

// ResolvedSource is one resolved price source. Exactly one field is set.
type ResolvedSource struct {
	HTTP   *sources.SourceConfig
	Stream *websocket.StreamConfig
}

// Name returns the source name.
func (s ResolvedSource) Name() string {
	if s.Stream != nil {
		return s.Stream.Name
	}
	return s.HTTP.Name
}

// PriceSources resolves the enabled price sources, in priority order.
func (c *Config) PriceSources() ([]ResolvedSource, error) {
	out := make([]ResolvedSource, 0, len(c.Feed.Sources))
	for _, sc := range c.Feed.Sources {
		if !sc.IsEnabled() {
			continue
		}
		if sc.IsStream() {
			stream := sc.ToStreamConfig()
			out = append(out, ResolvedSource{Stream: &stream})
			continue
		}
		resolved, err := sources.Resolve(sc.ToSourceConfig())
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		out = append(out, ResolvedSource{HTTP: &resolved})
	}
	return out, nil
}

func (fc FeedConfig) maxStale() time.Duration {
	if fc.MaxStale == nil {
		return 0
	}
	return fc.MaxStale.ToDuration()
}

// FeedOptions returns the feed settings.
func (c *Config) FeedOptions() feed.Config {
	return feed.Config{
		Symbol:    c.Feed.Symbol,
		FetchMode: c.Feed.FetchMode,
		FreshFor:  c.Feed.FreshFor.ToDuration(),
		MaxStale:  c.Feed.maxStale(),
	}
}

// FXOptions returns the converter settings. FX source configs are left
// unresolved because their presets are templated on the currency.
func (c *Config) FXOptions() (fiat.Config, error) {
	out := fiat.Config{
		Currency: c.FX.Currency,
		FreshFor: c.FX.FreshFor.ToDuration(),
		MaxStale: c.FX.MaxStale.ToDuration(),
	}
	if c.FX.Fallback != "" {
		fallback, err := parseFallback(c.FX.Fallback)
		if err != nil {
			return out, err
		}
		out.Fallback = fallback
	}
	for _, sc := range c.FX.Sources {
		if sc.IsEnabled() {
			out.Sources = append(out.Sources, sc.ToSourceConfig())
		}
	}
	return out, nil
}
