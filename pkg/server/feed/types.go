// Package feed produces one best-effort price for a single instrument from
// several unreliable upstream sources.
package feed

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
)

const (
	// FetchSequential queries sources one after another in priority order.
	FetchSequential = "sequential"
	// FetchConcurrent queries all sources at once and joins on the slowest.
	FetchConcurrent = "concurrent"

	DefaultSymbol   = "BTC/USD"
	DefaultFreshFor = 30 * time.Second
	DefaultMaxStale = 5 * time.Minute
)

// Config configures a Feed.
type Config struct {
	Symbol    string
	FetchMode string
	FreshFor  time.Duration
	MaxStale  time.Duration // 0 disables serving stale results
}

// Result is the outcome of one aggregation call. A nil Price means no source
// produced a valid quote and nothing usable was cached.
type Result struct {
	Symbol    string           `json:"symbol"`
	Price     *decimal.Decimal `json:"price"`
	Sources   []string         `json:"sources"`
	FetchedAt time.Time        `json:"fetched_at"`
	Stale     bool             `json:"stale"`
}

// Available reports whether the result carries a price.
func (r Result) Available() bool {
	return r.Price != nil
}

// clone detaches the result from cached storage.
func (r Result) clone() Result {
	out := r
	if r.Price != nil {
		p := *r.Price
		out.Price = &p
	}
	out.Sources = append(make([]string, 0, len(r.Sources)), r.Sources...)
	return out
}

// Outcome records what one source did during the last network round.
type Outcome struct {
	Source   string        `json:"source"`
	Quote    sources.Quote `json:"quote"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the source produced a valid quote.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Reason returns the failure reason, empty on success.
func (o Outcome) Reason() sources.Reason {
	if o.Err == nil {
		return ""
	}
	return sources.ReasonOf(o.Err)
}
