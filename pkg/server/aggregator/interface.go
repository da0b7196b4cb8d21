// Package aggregator provides price aggregation strategies.
package aggregator

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/btc-pricefeed/pkg/logging"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
)

const (
	// ModeAverage averages every valid quote (robust mode).
	ModeAverage = "average"
	// ModeFirst takes the first valid quote in priority order (fast-fallback mode).
	ModeFirst = "first"
	// ModeMedian uses median aggregation with outlier rejection.
	ModeMedian = "median"
)

// Aggregator defines the interface for price aggregation strategies.
type Aggregator interface {
	// Mode returns the policy name
	Mode() string

	// Aggregate selects one price from quotes given in priority order and
	// reports which sources contributed to it.
	Aggregate(quotes []sources.Quote) (decimal.Decimal, []string, error)
}

// NewAggregator creates an aggregator based on the specified mode.
func NewAggregator(mode string, logger *logging.Logger) (Aggregator, error) {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	switch strings.ToLower(mode) {
	case ModeAverage, "":
		return NewAverageAggregator(logger), nil
	case ModeFirst:
		return NewFirstAggregator(logger), nil
	case ModeMedian:
		return NewMedianAggregator(logger), nil
	default:
		return nil, fmt.Errorf("%w: %s (supported: average, first, median)", ErrUnknownMode, mode)
	}
}

// StopsEarly reports whether a sequential fetch may stop at the first valid quote.
func StopsEarly(mode string) bool {
	return strings.ToLower(mode) == ModeFirst
}

// validQuotes drops anything that is not a positive price.
func validQuotes(quotes []sources.Quote) []sources.Quote {
	valid := make([]sources.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.Price.IsPositive() {
			valid = append(valid, q)
		}
	}
	return valid
}

func sourceNames(quotes []sources.Quote) []string {
	names := make([]string, 0, len(quotes))
	for _, q := range quotes {
		names = append(names, q.Source)
	}
	return names
}
