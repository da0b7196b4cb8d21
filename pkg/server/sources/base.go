package sources

import (
	"sync"
	"time"

	"github.com/StrathCole/btc-pricefeed/pkg/logging"
	"github.com/StrathCole/btc-pricefeed/pkg/metrics"
)

// BaseSource provides the health bookkeeping shared by all price sources
type BaseSource struct {
	name       string
	mu         sync.RWMutex
	healthy    bool
	lastUpdate time.Time
	lastErr    error
	logger     *logging.Logger
}

// NewBaseSource creates a new base source
func NewBaseSource(name string, logger *logging.Logger) *BaseSource {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &BaseSource{
		name:   name,
		logger: logger.With("source", name),
	}
}

// Name returns the source name
func (b *BaseSource) Name() string {
	return b.name
}

// IsHealthy returns the health status
func (b *BaseSource) IsHealthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.healthy
}

// LastUpdate returns the time of the last valid quote
func (b *BaseSource) LastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// LastError returns the error of the last failed fetch
func (b *BaseSource) LastError() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastErr
}

// Record stores the outcome of one fetch and exports it as metrics.
func (b *BaseSource) Record(q Quote, err error, took time.Duration) {
	b.mu.Lock()
	if err != nil {
		b.healthy = false
		b.lastErr = err
	} else {
		b.healthy = true
		b.lastErr = nil
		b.lastUpdate = q.FetchedAt
	}
	b.mu.Unlock()

	outcome := "ok"
	if err != nil {
		outcome = string(ReasonOf(err))
	}
	metrics.RecordSourceFetch(b.name, outcome, took)
	metrics.RecordSourceHealth(b.name, err == nil)
}

// Logger returns the logger
func (b *BaseSource) Logger() *logging.Logger {
	return b.logger
}
