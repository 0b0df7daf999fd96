package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		dispatchJobsTotal,
		dispatchLatencyMs,
		retryEventsTotal,
		breakerOpen,
		breakerConsecutiveFailures,
	)
}

var (
	dispatchJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_jobs_total",
			Help: "Dispatch jobs by terminal worker outcome.",
		},
		[]string{"outcome"}, // sent | failed | circuit_open | rejected
	)

	dispatchLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_latency_ms",
			Help:    "Provider delivery latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
		},
	)

	retryEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_events_total",
			Help: "Retry queue events by kind.",
		},
		[]string{"kind"}, // queued | deferred | resubmitted | max_exceeded | dropped
	)

	breakerOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_open",
			Help: "1 while the dispatch circuit breaker is open, else 0.",
		},
	)

	breakerConsecutiveFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current consecutive dispatch failure count.",
		},
	)
)

func IncDispatch(outcome string) {
	dispatchJobsTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveDispatchLatency(ms float64) {
	dispatchLatencyMs.Observe(ms)
}

func IncRetry(kind string) {
	retryEventsTotal.WithLabelValues(norm(kind)).Inc()
}

func SetBreakerOpen(open bool) {
	if open {
		breakerOpen.Set(1)
	} else {
		breakerOpen.Set(0)
	}
}

func SetBreakerFailures(n int) {
	breakerConsecutiveFailures.Set(float64(n))
}
