package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiCallsLatencyMs,
		aiConfidence,
		aiClassifyFallbacks,
		aiPromptTokens,
	)
}

var (
	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
		},
		[]string{"kind", "success"}, // kind: generate | classify
	)

	aiConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ai_response_confidence",
			Help:    "Confidence score distribution of classified AI responses.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	aiClassifyFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ai_classify_fallbacks_total",
			Help: "Count of classification failures resolved with the conservative fallback.",
		},
	)

	aiPromptTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ai_prompt_tokens",
			Help:    "Prompt token counts per generation call.",
			Buckets: []float64{64, 128, 256, 512, 1024, 2048, 4096},
		},
	)
)

func ObserveAICall(kind string, latencyMs int, success bool) {
	aiCallsLatencyMs.WithLabelValues(norm(kind), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func ObserveConfidence(v float64) {
	aiConfidence.Observe(v)
}

func IncClassifyFallback() {
	aiClassifyFallbacks.Inc()
}

func ObservePromptTokens(n int) {
	aiPromptTokens.Observe(float64(n))
}
