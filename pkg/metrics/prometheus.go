package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements domain.repository.Metrics using Prometheus.
// Collectors live on the recorder's own registry so tests and repeated runs
// in one process never collide on the default registry.
type Recorder struct {
	registry      *prometheus.Registry
	cacheLookups  *prometheus.CounterVec
	specFits      *prometheus.CounterVec
	poolingErrors *prometheus.CounterVec
	foldsDone     prometheus.Counter
	latency       *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nowcast_cache_lookups_total",
				Help: "Model cache lookups by outcome",
			},
			[]string{"result"},
		),
		specFits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nowcast_spec_searches_total",
				Help: "Specification searches by indicator and outcome",
			},
			[]string{"indicator", "result"},
		),
		poolingErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nowcast_pooling_errors_total",
				Help: "Folds whose pooled nowcast is absent",
			},
			[]string{"strategy"},
		),
		foldsDone: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nowcast_folds_completed_total",
				Help: "Backtest folds processed",
			},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nowcast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"operation"},
		),
	}
}

// Registry exposes the recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordCacheLookup records a model cache hit or miss.
func (r *Recorder) RecordCacheLookup(hit bool) {
	if hit {
		r.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	r.cacheLookups.WithLabelValues("miss").Inc()
}

// RecordSpecFit records the outcome of one specification search.
func (r *Recorder) RecordSpecFit(indicator string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	r.specFits.WithLabelValues(indicator, result).Inc()
}

// RecordPoolingError records a fold without a pooled nowcast.
func (r *Recorder) RecordPoolingError(strategy string) {
	r.poolingErrors.WithLabelValues(strategy).Inc()
}

// RecordFold records one completed fold.
func (r *Recorder) RecordFold() {
	r.foldsDone.Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
