package aggregator

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/btc-pricefeed/pkg/logging"
	"github.com/StrathCole/btc-pricefeed/pkg/metrics"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
)

const (
	// OutlierThreshold is the percentage deviation from median to consider an outlier.
	OutlierThreshold = 0.10 // 10%
)

// MedianAggregator aggregates prices using median and rejects outliers.
type MedianAggregator struct {
	logger *logging.Logger
}

// Ensure MedianAggregator implements Aggregator interface.
var _ Aggregator = (*MedianAggregator)(nil)

// NewMedianAggregator creates a new median aggregator.
func NewMedianAggregator(logger *logging.Logger) *MedianAggregator {
	return &MedianAggregator{
		logger: logger,
	}
}

// Mode returns the policy name
func (a *MedianAggregator) Mode() string {
	return ModeMedian
}

// Aggregate computes the median of valid quotes after dropping quotes that
// deviate more than OutlierThreshold from the initial median.
func (a *MedianAggregator) Aggregate(quotes []sources.Quote) (decimal.Decimal, []string, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAggregation(ModeMedian, time.Since(start))
	}()

	valid := validQuotes(quotes)
	if len(valid) == 0 {
		return decimal.Zero, nil, fmt.Errorf("%w", ErrNoQuotes)
	}

	if len(valid) == 1 {
		return valid[0].Price, []string{valid[0].Source}, nil
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Price.LessThan(valid[j].Price)
	})

	initialMedian := median(valid)
	threshold := decimal.NewFromFloat(OutlierThreshold)

	filtered := make([]sources.Quote, 0, len(valid))
	for _, q := range valid {
		deviationPct := q.Price.Sub(initialMedian).Abs().Div(initialMedian)
		if deviationPct.GreaterThan(threshold) {
			a.logger.Debug("Rejecting outlier",
				"source", q.Source,
				"price", q.Price.String(),
				"median", initialMedian.String(),
				"deviation_pct", deviationPct.Mul(decimal.NewFromInt(100)).String())

			metrics.RecordOutlierRejection(q.Source)
			continue
		}
		filtered = append(filtered, q)
	}

	// Two widely split quotes can both miss the threshold.
	if len(filtered) == 0 {
		a.logger.Warn("All quotes rejected as outliers, using initial median", "count", len(valid))
		filtered = valid
	}

	return median(filtered), sourceNames(filtered), nil
}

// median of a sorted, non-empty slice.
func median(quotes []sources.Quote) decimal.Decimal {
	n := len(quotes)
	if n%2 == 1 {
		return quotes[n/2].Price
	}
	return quotes[n/2-1].Price.Add(quotes[n/2].Price).Div(decimal.NewFromInt(2))
}
