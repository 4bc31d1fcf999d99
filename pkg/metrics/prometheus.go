package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetches    *prometheus.CounterVec
	cache      *prometheus.CounterVec
	errors     *prometheus.CounterVec
	analyses   *prometheus.CounterVec
	pairs      *prometheus.HistogramVec
	analyzeSec *prometheus.HistogramVec
	latency    *prometheus.HistogramVec
}

// New registers the recorder's collectors on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lagscope_provider_fetches_total",
			Help: "Provider fetches by outcome",
		}, []string{"provider", "outcome"}),
		cache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lagscope_cache_lookups_total",
			Help: "Raw series cache lookups by result",
		}, []string{"result"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lagscope_errors_total",
			Help: "Total number of errors encountered",
		}, []string{"type"}),
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lagscope_analyses_total",
			Help: "Completed analysis runs",
		}, []string{"mode"}),
		pairs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lagscope_analysis_pairs",
			Help:    "Asset pairs rated per analysis run",
			Buckets: []float64{1, 3, 6, 10, 28, 55, 105, 300},
		}, []string{"mode"}),
		analyzeSec: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lagscope_analysis_duration_seconds",
			Help:    "Wall time of the lead/lag computation",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"mode"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lagscope_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// RecordFetch counts a provider fetch; outcome is ok, error or fallback.
func (r *Recorder) RecordFetch(provider, outcome string) {
	r.fetches.WithLabelValues(provider, outcome).Inc()
}

// RecordCache counts a cache lookup; result is hit or miss.
func (r *Recorder) RecordCache(result string) {
	r.cache.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordAnalysis(mode string, pairs int, seconds float64) {
	r.analyses.WithLabelValues(mode).Inc()
	r.pairs.WithLabelValues(mode).Observe(float64(pairs))
	r.analyzeSec.WithLabelValues(mode).Observe(seconds)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
