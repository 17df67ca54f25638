// Package observability defines the service's prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts chat requests by admission outcome.
	// Labels: status (accepted, rejected)
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpilot",
		Subsystem: "chat",
		Name:      "requests_total",
		Help:      "Total chat requests by admission outcome",
	}, []string{"status"})

	// admissionRejects counts admission failures by reason.
	// Labels: reason (empty, too_long, invalid_encoding)
	admissionRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpilot",
		Subsystem: "chat",
		Name:      "admission_rejects_total",
		Help:      "Total admission rejections by reason",
	}, []string{"reason"})

	// streamDuration measures end-to-end stream lifetime.
	streamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "taskpilot",
		Subsystem: "chat",
		Name:      "stream_duration_seconds",
		Help:      "Chat stream duration in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// activeStreams tracks streams currently open.
	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskpilot",
		Subsystem: "chat",
		Name:      "active_streams",
		Help:      "Number of chat streams currently open",
	})

	// toolCalls counts tool dispatches by outcome.
	// Labels: tool, outcome (success, not_found, invalid_arguments,
	// timeout, dependency_unavailable)
	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpilot",
		Subsystem: "tools",
		Name:      "calls_total",
		Help:      "Total tool dispatches by outcome",
	}, []string{"tool", "outcome"})

	// toolCallDuration measures tool dispatch latency.
	// Labels: tool
	toolCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskpilot",
		Subsystem: "tools",
		Name:      "call_duration_seconds",
		Help:      "Tool dispatch latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"tool"})

	// breakerTransitions counts circuit breaker state changes.
	// Labels: dependency, from, to
	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpilot",
		Subsystem: "breaker",
		Name:      "transitions_total",
		Help:      "Total circuit breaker state transitions",
	}, []string{"dependency", "from", "to"})

	// breakerRejections counts calls rejected by an open breaker.
	// Labels: dependency
	breakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpilot",
		Subsystem: "breaker",
		Name:      "rejections_total",
		Help:      "Total calls rejected while a breaker was open",
	}, []string{"dependency"})

	// terminalEvents counts stream terminals by type.
	// Labels: type (done, error)
	terminalEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpilot",
		Subsystem: "chat",
		Name:      "terminal_events_total",
		Help:      "Total stream terminal events by type",
	}, []string{"type"})
)

// RecordRequestAccepted counts an admitted chat request.
func RecordRequestAccepted() {
	requestsTotal.WithLabelValues("accepted").Inc()
}

// RecordRequestRejected counts an admission rejection.
func RecordRequestRejected(reason string) {
	requestsTotal.WithLabelValues("rejected").Inc()
	admissionRejects.WithLabelValues(reason).Inc()
}

// RecordStreamDuration records the lifetime of a finished stream.
func RecordStreamDuration(seconds float64) {
	streamDuration.Observe(seconds)
}

// StreamOpened marks a stream as active.
func StreamOpened() {
	activeStreams.Inc()
}

// StreamClosed marks a stream as finished.
func StreamClosed() {
	activeStreams.Dec()
}

// RecordToolCall records one tool dispatch.
//
// Inputs:
//
//	tool - The tool name.
//	outcome - "success" or the error kind.
//	durationSec - Dispatch duration in seconds.
func RecordToolCall(tool, outcome string, durationSec float64) {
	toolCalls.WithLabelValues(tool, outcome).Inc()
	toolCallDuration.WithLabelValues(tool).Observe(durationSec)
}

// RecordBreakerTransition records a circuit breaker state change.
func RecordBreakerTransition(dependency, from, to string) {
	breakerTransitions.WithLabelValues(dependency, from, to).Inc()
}

// RecordBreakerRejection records a call rejected by an open breaker.
func RecordBreakerRejection(dependency string) {
	breakerRejections.WithLabelValues(dependency).Inc()
}

// RecordTerminalEvent records the terminal type of a finished stream.
func RecordTerminalEvent(eventType string) {
	terminalEvents.WithLabelValues(eventType).Inc()
}
