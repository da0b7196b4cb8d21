package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/StrathCole/btc-pricefeed/pkg/logging"
	"github.com/StrathCole/btc-pricefeed/pkg/metrics"
	"github.com/StrathCole/btc-pricefeed/pkg/server/aggregator"
	"github.com/StrathCole/btc-pricefeed/pkg/server/cache"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
)

// Feed aggregates quotes from its sources behind a single-entry cache.
type Feed struct {
	cfg        Config
	sources    []sources.Source
	aggregator aggregator.Aggregator
	cache      *cache.Cache[Result]
	logger     *logging.Logger
	now        func() time.Time

	// refreshMu spans cache lookup, upstream round and cache store.
	refreshMu sync.Mutex

	outcomesMu   sync.RWMutex
	lastOutcomes []Outcome

	onUpdate func(Result)
}

// Option configures a Feed.
type Option func(*Feed)

// WithClock overrides time.Now for the feed and its cache, for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Feed) {
		f.now = now
	}
}

// New creates a feed over srcs, which are queried in the given priority order.
func New(cfg Config, srcs []sources.Source, agg aggregator.Aggregator, logger *logging.Logger, opts ...Option) (*Feed, error) {
	if len(srcs) == 0 {
		return nil, fmt.Errorf("%w", ErrNoSources)
	}
	if agg == nil {
		var err error
		if agg, err = aggregator.NewAggregator(aggregator.ModeAverage, logger); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	if cfg.Symbol == "" {
		cfg.Symbol = DefaultSymbol
	}
	cfg.Symbol = sources.NormalizeSymbol(cfg.Symbol)

	cfg.FetchMode = strings.ToLower(cfg.FetchMode)
	switch cfg.FetchMode {
	case "":
		cfg.FetchMode = FetchSequential
	case FetchSequential, FetchConcurrent:
	default:
		return nil, fmt.Errorf("%w: %s (must be 'sequential' or 'concurrent')", ErrInvalidFetchMode, cfg.FetchMode)
	}

	if cfg.FreshFor < 0 || cfg.MaxStale < 0 {
		return nil, fmt.Errorf("%w: fresh_for=%s max_stale=%s", ErrInvalidWindow, cfg.FreshFor, cfg.MaxStale)
	}
	if cfg.FreshFor == 0 {
		cfg.FreshFor = DefaultFreshFor
	}

	f := &Feed{
		cfg:        cfg,
		sources:    srcs,
		aggregator: agg,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.cache = cache.New[Result](cfg.FreshFor, cfg.MaxStale, cache.WithClock(f.now))

	return f, nil
}

// Config returns the effective configuration.
func (f *Feed) Config() Config {
	return f.cfg
}

// Sources returns the configured sources in priority order.
func (f *Feed) Sources() []sources.Source {
	return append([]sources.Source(nil), f.sources...)
}

// OnUpdate registers fn to be called with every newly computed result.
// fn runs while the feed is refreshing and must not block.
func (f *Feed) OnUpdate(fn func(Result)) {
	f.refreshMu.Lock()
	defer f.refreshMu.Unlock()
	f.onUpdate = fn
}

// Invalidate drops the cached result so the next call goes upstream.
func (f *Feed) Invalidate() {
	f.cache.Invalidate()
}

// LastOutcomes returns the per-source outcomes of the last upstream round.
func (f *Feed) LastOutcomes() []Outcome {
	f.outcomesMu.RLock()
	defer f.outcomesMu.RUnlock()
	return append([]Outcome(nil), f.lastOutcomes...)
}

// GetPrice returns the best available price. It never fails: when every
// source fails and nothing usable is cached the result has a nil Price.
func (f *Feed) GetPrice(ctx context.Context) Result {
	f.refreshMu.Lock()
	defer f.refreshMu.Unlock()

	cached, age, state := f.cache.Get()
	metrics.RecordCacheLookup(state.String())
	if state == cache.Fresh {
		return cached.clone()
	}

	outcomes := f.collect(ctx)
	f.outcomesMu.Lock()
	f.lastOutcomes = outcomes
	f.outcomesMu.Unlock()

	quotes := make([]sources.Quote, 0, len(outcomes))
	for _, o := range outcomes {
		if o.OK() {
			quotes = append(quotes, o.Quote)
		}
	}

	if len(quotes) > 0 {
		price, contributors, err := f.aggregator.Aggregate(quotes)
		if err == nil {
			result := Result{
				Symbol:    f.cfg.Symbol,
				Price:     &price,
				Sources:   contributors,
				FetchedAt: f.now(),
			}
			f.cache.Put(result)
			f.logger.Debug("Aggregated price",
				"price", price.String(),
				"sources", contributors,
				"mode", f.aggregator.Mode())
			if f.onUpdate != nil {
				f.onUpdate(result.clone())
			}
			return result.clone()
		}
		f.logger.Error("Failed to aggregate quotes", "error", err, "quotes", len(quotes))
	}

	metrics.RecordPriceUnavailable()

	if state == cache.Stale {
		f.logger.Warn("All sources failed, serving stale price", "age", age, "sources", len(outcomes))
		stale := cached.clone()
		stale.Stale = true
		return stale
	}

	f.logger.Warn("All sources failed, no price available", "sources", len(outcomes))
	return Result{
		Symbol:    f.cfg.Symbol,
		Sources:   []string{},
		FetchedAt: f.now(),
	}
}

// collect runs one upstream round and returns outcomes in priority order.
func (f *Feed) collect(ctx context.Context) []Outcome {
	if f.cfg.FetchMode == FetchConcurrent {
		return f.collectConcurrent(ctx)
	}
	return f.collectSequential(ctx)
}

func (f *Feed) collectSequential(ctx context.Context) []Outcome {
	stopEarly := aggregator.StopsEarly(f.aggregator.Mode())

	outcomes := make([]Outcome, 0, len(f.sources))
	for _, src := range f.sources {
		if ctx.Err() != nil {
			break
		}
		o := f.fetchOne(ctx, src)
		outcomes = append(outcomes, o)
		if o.OK() && stopEarly {
			break
		}
	}
	return outcomes
}

func (f *Feed) collectConcurrent(ctx context.Context) []Outcome {
	outcomes := make([]Outcome, len(f.sources))

	var wg sync.WaitGroup
	for i, src := range f.sources {
		wg.Add(1)
		go func(i int, src sources.Source) {
			defer wg.Done()
			outcomes[i] = f.fetchOne(ctx, src)
		}(i, src)
	}
	wg.Wait()

	return outcomes
}

// fetchOne turns a single source call into an Outcome, including panics.
func (f *Feed) fetchOne(ctx context.Context, src sources.Source) (o Outcome) {
	start := time.Now()
	o.Source = src.Name()

	defer func() {
		if r := recover(); r != nil {
			o.Err = &sources.SourceError{
				Source: src.Name(),
				Reason: sources.ReasonInternal,
				Err:    fmt.Errorf("%w: panic: %v", sources.ErrSourceUnavailable, r),
			}
		}
		o.Duration = time.Since(start)
		if o.Err != nil {
			f.logger.Warn("Source failed, continuing",
				"source", o.Source,
				"reason", string(sources.ReasonOf(o.Err)),
				"error", o.Err,
				"took", o.Duration)
		}
	}()

	q, err := src.Fetch(ctx)
	if err != nil {
		o.Err = err
		return o
	}
	if !q.Price.IsPositive() {
		o.Err = &sources.SourceError{
			Source: src.Name(),
			Reason: sources.ReasonInvalidQuote,
			Err:    fmt.Errorf("%w: %s is not positive", sources.ErrInvalidQuote, q.Price.String()),
		}
		return o
	}
	if q.Source == "" {
		q.Source = src.Name()
	}
	o.Quote = q
	return o
}
