package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	collections    *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
	quotaRemaining *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		collections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainpulse_collections_total",
				Help: "Collection iterations by category and result",
			},
			[]string{"category", "result"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chainpulse_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chainpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		quotaRemaining: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chainpulse_quota_remaining",
				Help: "Remaining provider request budget per window",
			},
			[]string{"provider", "window"},
		),
	}
}

// RecordCollection records one collection iteration outcome.
func (r *Recorder) RecordCollection(category, result string) {
	r.collections.WithLabelValues(category, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordQuotaRemaining records the provider budget left in each window.
func (r *Recorder) RecordQuotaRemaining(provider string, day, minute int) {
	r.quotaRemaining.WithLabelValues(provider, "day").Set(float64(day))
	r.quotaRemaining.WithLabelValues(provider, "minute").Set(float64(minute))
}
