package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounters(t *testing.T) {
	r := New()
	r.RecordCacheLookup(true)
	r.RecordCacheLookup(true)
	r.RecordCacheLookup(false)
	r.RecordSpecFit("ip", true)
	r.RecordSpecFit("ip", false)
	r.RecordPoolingError("msfe")
	r.RecordFold()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.specFits.WithLabelValues("ip", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.poolingErrors.WithLabelValues("msfe")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.foldsDone))
}

func TestRecordersDoNotShareRegistry(t *testing.T) {
	a, b := New(), New()
	a.RecordFold()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.foldsDone))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.RecordLatency("fold", 0.2)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "nowcast_operation_duration_seconds"))
}
