package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	NarrativeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chainpulse",
			Subsystem: "narrative",
			Name:      "latency_seconds",
			Help:      "Latency of narrative service calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	NarrativeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainpulse",
			Subsystem: "narrative",
			Name:      "errors_total",
			Help:      "Errors by narrative endpoint",
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(NarrativeLatency, NarrativeErrors)
	})
}
