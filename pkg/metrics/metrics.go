// Package metrics provides Prometheus metrics for the price feed.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SourceFetchesTotal counts upstream fetches by outcome ("ok" or a failure reason).
	SourceFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetches_total",
			Help: "Total number of upstream price fetches by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// SourceFetchDuration is a histogram of upstream fetch latencies.
	SourceFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_fetch_duration_seconds",
			Help:    "Duration of upstream price fetches",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	// SourceHealth is a gauge of the health status of price sources.
	SourceHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_health",
			Help: "Health status of price sources (1=healthy, 0=unhealthy)",
		},
		[]string{"source"},
	)

	// SourceLastUpdate is a gauge of the last successful update timestamp from sources.
	SourceLastUpdate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_last_update_timestamp",
			Help: "Unix timestamp of last valid quote from source",
		},
		[]string{"source"},
	)

	// CacheLookupsTotal counts cache lookups by resulting state.
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Total number of aggregate cache lookups by state",
		},
		[]string{"state"},
	)

	// PriceAggregationDuration is a histogram of price aggregation duration.
	PriceAggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_aggregation_duration_seconds",
			Help:    "Duration of price aggregation operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// OutlierRejectionsTotal is a counter of rejected outlier prices.
	OutlierRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outlier_rejections_total",
			Help: "Total number of outlier quotes rejected by the median policy",
		},
		[]string{"source"},
	)

	// PriceUnavailableTotal counts aggregation rounds that produced no price.
	PriceUnavailableTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "price_unavailable_total",
			Help: "Total number of aggregation rounds where every source failed",
		},
	)

	// FXFallbacksTotal counts FX lookups answered by the configured constant.
	FXFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fx_fallbacks_total",
			Help: "Total number of FX lookups served from the fallback rate",
		},
		[]string{"currency"},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		SourceFetchesTotal,
		SourceFetchDuration,
		SourceHealth,
		SourceLastUpdate,
		CacheLookupsTotal,
		PriceAggregationDuration,
		OutlierRejectionsTotal,
		PriceUnavailableTotal,
		FXFallbacksTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// NewServer returns an HTTP server exposing the default registry on path.
func NewServer(addr, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// RecordSourceFetch records one upstream fetch and its outcome.
func RecordSourceFetch(source, outcome string, duration time.Duration) {
	SourceFetchesTotal.WithLabelValues(source, outcome).Inc()
	SourceFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordSourceHealth records the health status of a source.
func RecordSourceHealth(source string, healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
		SourceLastUpdate.WithLabelValues(source).SetToCurrentTime()
	}
	SourceHealth.WithLabelValues(source).Set(val)
}

// RecordCacheLookup records a cache lookup.
func RecordCacheLookup(state string) {
	CacheLookupsTotal.WithLabelValues(state).Inc()
}

// RecordAggregation records a price aggregation operation.
func RecordAggregation(method string, duration time.Duration) {
	PriceAggregationDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordOutlierRejection records an outlier rejection.
func RecordOutlierRejection(source string) {
	OutlierRejectionsTotal.WithLabelValues(source).Inc()
}

// RecordPriceUnavailable records an aggregation round without any valid quote.
func RecordPriceUnavailable() {
	PriceUnavailableTotal.Inc()
}

// RecordFXFallback records an FX lookup served from the fallback constant.
func RecordFXFallback(currency string) {
	FXFallbacksTotal.WithLabelValues(currency).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
