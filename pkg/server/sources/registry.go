package sources

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds named endpoint descriptions. Presets for different kinds
// of quotes live in separate registries so one cannot resolve the other's.
type Registry struct {
	mu      sync.RWMutex
	presets map[string]SourceConfig
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{presets: make(map[string]SourceConfig)}
}

// defaultRegistry holds the BTC/USD presets.
var defaultRegistry = NewRegistry()

// Register adds a named endpoint description
func (r *Registry) Register(name string, cfg SourceConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg.Name = name
	r.presets[name] = cfg
}

// Preset looks up a registered endpoint description
func (r *Registry) Preset(name string) (SourceConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.presets[name]
	return cfg, ok
}

// Names returns all registered preset names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.presets))
	for name := range r.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve fills the blank fields of cfg from the preset named by cfg.Preset,
// or by cfg.Name when no preset is given. A config that already carries a URL
// and price path needs no preset.
func (r *Registry) Resolve(cfg SourceConfig) (SourceConfig, error) {
	presetName := cfg.Preset
	if presetName == "" {
		presetName = cfg.Name
	}

	preset, ok := r.Preset(presetName)
	if !ok {
		if cfg.Preset != "" || cfg.URL == "" || cfg.PricePath == "" {
			return cfg, fmt.Errorf("%w: %s", ErrUnknownPreset, presetName)
		}
		return cfg, nil
	}

	if cfg.Name == "" {
		cfg.Name = preset.Name
	}
	if cfg.URL == "" {
		cfg.URL = preset.URL
	}
	if cfg.PricePath == "" {
		cfg.PricePath = preset.PricePath
	}
	if cfg.ErrorPath == "" {
		cfg.ErrorPath = preset.ErrorPath
	}
	if cfg.ScalePath == "" {
		cfg.ScalePath = preset.ScalePath
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = preset.Timeout
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = preset.MinInterval
	}
	if len(preset.Headers) > 0 {
		headers := make(map[string]string, len(preset.Headers)+len(cfg.Headers))
		for k, v := range preset.Headers {
			headers[k] = v
		}
		for k, v := range cfg.Headers {
			headers[k] = v
		}
		cfg.Headers = headers
	}
	return cfg, nil
}

// RegisterPreset adds a BTC/USD preset.
func RegisterPreset(name string, cfg SourceConfig) {
	defaultRegistry.Register(name, cfg)
}

// Preset looks up a BTC/USD preset.
func Preset(name string) (SourceConfig, bool) {
	return defaultRegistry.Preset(name)
}

// Presets returns the BTC/USD preset names, sorted.
func Presets() []string {
	return defaultRegistry.Names()
}

// Resolve resolves cfg against the BTC/USD presets.
func Resolve(cfg SourceConfig) (SourceConfig, error) {
	return defaultRegistry.Resolve(cfg)
}
