package aggregator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/btc-pricefeed/pkg/logging"
	"github.com/StrathCole/btc-pricefeed/pkg/metrics"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
)

// AverageAggregator aggregates prices using simple arithmetic mean
type AverageAggregator struct {
	logger *logging.Logger
}

// Ensure AverageAggregator implements Aggregator interface
var _ Aggregator = (*AverageAggregator)(nil)

// NewAverageAggregator creates a new average aggregator
func NewAverageAggregator(logger *logging.Logger) *AverageAggregator {
	return &AverageAggregator{
		logger: logger,
	}
}

// Mode returns the policy name
func (a *AverageAggregator) Mode() string {
	return ModeAverage
}

// Aggregate computes the mean of all valid quotes
func (a *AverageAggregator) Aggregate(quotes []sources.Quote) (decimal.Decimal, []string, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAggregation(ModeAverage, time.Since(start))
	}()

	valid := validQuotes(quotes)
	if len(valid) == 0 {
		return decimal.Zero, nil, fmt.Errorf("%w", ErrNoQuotes)
	}

	sum := decimal.Zero
	for _, q := range valid {
		sum = sum.Add(q.Price)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(valid))))

	a.logger.Debug("Aggregated quotes using average", "count", len(valid), "price", avg.String())
	return avg, sourceNames(valid), nil
}
