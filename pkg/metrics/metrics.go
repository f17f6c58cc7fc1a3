// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// InboundVerdicts counts inbound classifications.
	InboundVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handoff_inbound_verdicts_total",
			Help: "Inbound messages by verdict and reason",
		},
		[]string{"persona", "verdict", "reason"},
	)

	// OutboundOutcomes counts outbound validation results.
	OutboundOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handoff_outbound_outcomes_total",
			Help: "Outbound replies by outcome (allowed, modified, blocked) and reason",
		},
		[]string{"persona", "outcome", "reason"},
	)

	// HandoffTransitions counts state machine transitions.
	HandoffTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handoff_transitions_total",
			Help: "Handoff state transitions",
		},
		[]string{"from", "to"},
	)

	// GenerationDuration tracks text generation latency.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_generation_duration_seconds",
			Help:    "Text generation duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// DispatcherQueueDepth tracks queued jobs per dispatcher shard.
	DispatcherQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatcher_queue_depth",
			Help: "Jobs waiting per dispatcher shard",
		},
		[]string{"shard"},
	)

	// DispatcherPanics counts recovered job panics.
	DispatcherPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatcher_panics_total",
			Help: "Recovered panics in dispatcher jobs",
		},
	)

	// AuditEntriesTotal counts policy audit entries written.
	AuditEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_audit_entries_total",
			Help: "Policy audit entries by action",
		},
		[]string{"action"},
	)

	// NATSStreamMessages tracks messages in NATS stream.
	NATSStreamMessages = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_messages",
			Help: "Number of messages in NATS stream",
		},
		[]string{"stream"},
	)

	// NATSStreamBytes tracks bytes in NATS stream.
	NATSStreamBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_bytes",
			Help: "Bytes in NATS stream",
		},
		[]string{"stream"},
	)

	// NATSConnectionEvents counts disconnects, reconnects and async errors.
	NATSConnectionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_connection_events_total",
			Help: "NATS connection lifecycle events",
		},
		[]string{"event"},
	)

	// PersonasRegistered tracks the number of registered personas.
	PersonasRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "personas_registered",
			Help: "Number of registered personas",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordInbound records an inbound classification.
func RecordInbound(persona, verdict, reason string) {
	InboundVerdicts.WithLabelValues(persona, verdict, reason).Inc()
}

// RecordOutbound records an outbound validation outcome.
func RecordOutbound(persona, outcome, reason string) {
	OutboundOutcomes.WithLabelValues(persona, outcome, reason).Inc()
}

// RecordTransition records a handoff state transition.
func RecordTransition(from, to string) {
	HandoffTransitions.WithLabelValues(from, to).Inc()
}

// RecordGeneration records metrics for one text generation call.
func RecordGeneration(model, status string, duration float64, tokensIn, tokensOut int) {
	GenerationDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordAudit records audit entries written for an action.
func RecordAudit(action string, n int) {
	AuditEntriesTotal.WithLabelValues(action).Add(float64(n))
}

// RecordStreamInfo records JetStream stream statistics.
func RecordStreamInfo(stream string, msgs, bytes uint64) {
	NATSStreamMessages.WithLabelValues(stream).Set(float64(msgs))
	NATSStreamBytes.WithLabelValues(stream).Set(float64(bytes))
}
