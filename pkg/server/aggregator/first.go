package aggregator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/btc-pricefeed/pkg/logging"
	"github.com/StrathCole/btc-pricefeed/pkg/metrics"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
)

// FirstAggregator returns the highest-priority valid quote unchanged
type FirstAggregator struct {
	logger *logging.Logger
}

var _ Aggregator = (*FirstAggregator)(nil)

// NewFirstAggregator creates a new fast-fallback aggregator
func NewFirstAggregator(logger *logging.Logger) *FirstAggregator {
	return &FirstAggregator{
		logger: logger,
	}
}

// Mode returns the policy name
func (a *FirstAggregator) Mode() string {
	return ModeFirst
}

// Aggregate picks the first valid quote
func (a *FirstAggregator) Aggregate(quotes []sources.Quote) (decimal.Decimal, []string, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAggregation(ModeFirst, time.Since(start))
	}()

	valid := validQuotes(quotes)
	if len(valid) == 0 {
		return decimal.Zero, nil, fmt.Errorf("%w", ErrNoQuotes)
	}

	q := valid[0]
	a.logger.Debug("Selected first valid quote", "source", q.Source, "price", q.Price.String())
	return q.Price, []string{q.Source}, nil
}
