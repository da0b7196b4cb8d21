package config

import (
	"strings"
	"time"
)

// Config is the root configuration structure
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Feed    FeedConfig    `yaml:"feed"`
	FX      FXConfig      `yaml:"fx"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	HTTP           HTTPConfig `yaml:"http"`
	WebSocket      WSConfig   `yaml:"websocket"`
	RequestTimeout Duration   `yaml:"request_timeout"`
}

// HTTPConfig configures the HTTP server
type HTTPConfig struct {
	Addr string    `yaml:"addr"`
	TLS  TLSConfig `yaml:"tls"`
}

// WSConfig configures the WebSocket server
type WSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TLSConfig holds TLS certificate configuration
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

// FeedConfig configures the BTC price aggregation
type FeedConfig struct {
	Symbol    string         `yaml:"symbol"`
	Policy    string         `yaml:"policy"`     // average, first or median
	FetchMode string         `yaml:"fetch_mode"` // sequential or concurrent
	FreshFor  Duration       `yaml:"fresh_for"`
	MaxStale  *Duration      `yaml:"max_stale"` // unset means the default, 0 disables stale serving
	Sources   []SourceConfig `yaml:"sources"`   // priority order
}

// FXConfig configures the optional currency conversion
type FXConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Currency string         `yaml:"currency"`
	Fallback string         `yaml:"fallback"` // decimal string, units per USD
	FreshFor Duration       `yaml:"fresh_for"`
	MaxStale Duration       `yaml:"max_stale"`
	Sources  []SourceConfig `yaml:"sources"`
}

// SourceConfig configures one upstream endpoint. Fields left empty are taken
// from the preset named by Preset, or by Name.
type SourceConfig struct {
	Name        string            `yaml:"name"`
	Type        string            `yaml:"type"` // http (default) or stream
	Preset      string            `yaml:"preset"`
	Enabled     *bool             `yaml:"enabled"`
	URL         string            `yaml:"url"`
	PricePath   string            `yaml:"price_path"`
	ErrorPath   string            `yaml:"error_path"`
	ScalePath   string            `yaml:"scale_path"`
	Timeout     Duration          `yaml:"timeout"`
	MinInterval Duration          `yaml:"min_interval"`
	Headers     map[string]string `yaml:"headers"`

	// Stream sources only
	Subscribe string   `yaml:"subscribe"`
	MaxAge    Duration `yaml:"max_age"`
}

// Source types
const (
	SourceTypeHTTP   = "http"
	SourceTypeStream = "stream"
)

// IsStream reports whether the source is push-based.
func (sc SourceConfig) IsStream() bool {
	return strings.EqualFold(sc.Type, SourceTypeStream)
}

// IsEnabled reports whether the source is enabled; sources are enabled unless
// switched off explicitly.
func (sc SourceConfig) IsEnabled() bool {
	return sc.Enabled == nil || *sc.Enabled
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
