// Package metrics provides Prometheus collectors for the voice pipeline.
// Collectors are package-level and registered into an Exporter's private
// registry, so each worker exposes exactly the hearth metric set plus Go
// runtime metrics on its own /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hearth"

// Millisecond bucket layouts. Pipeline buckets bracket the 800 ms
// end-to-end target; stage buckets resolve the per-hop contributions.
var (
	pipelineBuckets = []float64{100, 200, 300, 400, 500, 600, 700, 800, 1000, 1500, 2000, 5000}
	stageBuckets    = []float64{5, 10, 20, 50, 100, 200, 300, 500, 750, 1000, 2000, 5000}
)

var (
	// pipelineLatency is end-of-utterance to response-sent, recorded by
	// the gateway when an outbound message matches a pending request.
	pipelineLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_latency_ms",
			Help:      "End-to-end pipeline latency in milliseconds",
			Buckets:   pipelineBuckets,
		},
		[]string{"device_id"},
	)

	// stageLatency is per-stage processing time.
	stageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Per-stage processing latency in milliseconds",
			Buckets:   stageBuckets,
		},
		[]string{"stage"},
	)

	// messagesProcessed counts bus messages handled per stream and group.
	messagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Total bus messages processed by stream and consumer group",
		},
		[]string{"stream", "group"},
	)

	// messagesPublished counts bus messages appended per stream.
	messagesPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Total bus messages published by stream",
		},
		[]string{"stream"},
	)

	// activeSessions is 0 or 1: the gateway holds at most one device session.
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of currently connected device sessions",
		},
	)

	// componentHealth is 1 when a component (redis, model, backend) is up.
	componentHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_health",
			Help:      "Health status of components (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	// llmTokensUsed counts completion tokens per model.
	llmTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total completion tokens consumed by the LLM backend",
		},
		[]string{"model"},
	)

	// llmFallbacks counts canned-phrase responses by reason.
	llmFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_fallback_total",
			Help:      "Number of static fallback responses served",
		},
		[]string{"reason"},
	)

	// firstTokenLatency is time-to-first-token for streamed generations.
	firstTokenLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_first_token_ms",
			Help:      "Time to first streamed token in milliseconds",
			Buckets:   stageBuckets,
		},
		[]string{"backend"},
	)

	// asrConfidence tracks recognizer confidence distribution.
	asrConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "asr_confidence",
			Help:      "ASR transcription confidence scores",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.7, 0.8, 0.9, 0.95, 0.99},
		},
	)

	// utterancesEmitted counts VAD emissions by outcome.
	utterancesEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vad_utterances_total",
			Help:      "Utterance segmentation outcomes",
		},
		[]string{"outcome"}, // emitted, too_short, forced
	)
)

// allMetrics lists every collector for registration with an Exporter.
var allMetrics = []prometheus.Collector{
	pipelineLatency,
	stageLatency,
	messagesProcessed,
	messagesPublished,
	activeSessions,
	componentHealth,
	llmTokensUsed,
	llmFallbacks,
	firstTokenLatency,
	asrConfidence,
	utterancesEmitted,
}

// RecordPipelineLatency records end-to-end latency for a device.
func RecordPipelineLatency(deviceID string, ms float64) {
	pipelineLatency.WithLabelValues(deviceID).Observe(ms)
}

// RecordStageLatency records processing time for one pipeline stage.
func RecordStageLatency(stage string, ms float64) {
	stageLatency.WithLabelValues(stage).Observe(ms)
}

// RecordMessageProcessed increments the per-stream consume counter.
func RecordMessageProcessed(stream, group string) {
	messagesProcessed.WithLabelValues(stream, group).Inc()
}

// RecordMessagePublished increments the per-stream publish counter.
func RecordMessagePublished(stream string) {
	messagesPublished.WithLabelValues(stream).Inc()
}

// SetActiveSessions sets the connected-session gauge.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// SetComponentHealth marks a component healthy or unhealthy.
func SetComponentHealth(component string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	componentHealth.WithLabelValues(component).Set(v)
}

// RecordTokensUsed adds completion tokens for a model.
func RecordTokensUsed(model string, tokens int) {
	if tokens > 0 {
		llmTokensUsed.WithLabelValues(model).Add(float64(tokens))
	}
}

// RecordFallback counts one static fallback response.
func RecordFallback(reason string) {
	llmFallbacks.WithLabelValues(reason).Inc()
}

// RecordFirstToken records time-to-first-token for a backend.
func RecordFirstToken(backend string, ms float64) {
	firstTokenLatency.WithLabelValues(backend).Observe(ms)
}

// RecordASRConfidence records one transcription confidence score.
func RecordASRConfidence(confidence float64) {
	asrConfidence.Observe(confidence)
}

// RecordUtterance counts one segmentation outcome.
func RecordUtterance(outcome string) {
	utterancesEmitted.WithLabelValues(outcome).Inc()
}
