package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSourceFetch(t *testing.T) {
	before := testutil.ToFloat64(SourceFetchesTotal.WithLabelValues("kraken", "timeout"))

	RecordSourceFetch("kraken", "timeout", 5*time.Second)
	RecordSourceFetch("kraken", "timeout", 5*time.Second)

	assert.Equal(t, before+2, testutil.ToFloat64(SourceFetchesTotal.WithLabelValues("kraken", "timeout")))
}

func TestRecordSourceHealth(t *testing.T) {
	RecordSourceHealth("binance", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(SourceHealth.WithLabelValues("binance")))
	assert.Greater(t, testutil.ToFloat64(SourceLastUpdate.WithLabelValues("binance")), 0.0)

	RecordSourceHealth("binance", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(SourceHealth.WithLabelValues("binance")))
}

func TestRecordFXFallback(t *testing.T) {
	before := testutil.ToFloat64(FXFallbacksTotal.WithLabelValues("INR"))
	RecordFXFallback("INR")
	assert.Equal(t, before+1, testutil.ToFloat64(FXFallbacksTotal.WithLabelValues("INR")))
}
