package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects Prometheus metrics for orchestrator runs.
//
// Metrics exposed (all namespaced with "multitool_chat_"):
//
//  1. step_latency_ms (histogram): node execution duration in milliseconds.
//     Labels: node_id, status (success/error).
//  2. runs_total (counter): completed engine runs. Labels: status.
//  3. tool_calls_total (counter): tool adapter invocations. Labels: tool, status.
//  4. review_decisions_total (counter): approve/reject decisions taken in the
//     review workflow. Labels: decision.
//
// Run IDs are not used as labels: every chat turn gets a fresh
// one and the series would grow without bound.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	engine := graph.New(reducer, store, emitter, graph.WithMetrics(metrics))
type PrometheusMetrics struct {
	stepLatency     *prometheus.HistogramVec
	runs            *prometheus.CounterVec
	toolCalls       *prometheus.CounterVec
	reviewDecisions *prometheus.CounterVec

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all metrics with the provided
// registry. A nil registry falls back to prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "multitool_chat",
		Name:      "step_latency_ms",
		Help:      "Node execution duration in milliseconds",
		Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 30000, 60000},
	}, []string{"node_id", "status"})

	pm.runs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multitool_chat",
		Name:      "runs_total",
		Help:      "Total orchestrator runs by outcome",
	}, []string{"status"})

	pm.toolCalls = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multitool_chat",
		Name:      "tool_calls_total",
		Help:      "Total tool adapter invocations by tool and outcome",
	}, []string{"tool", "status"})

	pm.reviewDecisions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multitool_chat",
		Name:      "review_decisions_total",
		Help:      "Total review decisions on candidate answers",
	}, []string{"decision"})

	return pm
}

// RecordStepLatency records how long a node took to run.
func (pm *PrometheusMetrics) RecordStepLatency(nodeID string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.stepLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRuns counts a finished run.
func (pm *PrometheusMetrics) IncrementRuns(status string) {
	if !pm.isEnabled() {
		return
	}
	pm.runs.WithLabelValues(status).Inc()
}

// IncrementToolCalls counts a tool invocation.
func (pm *PrometheusMetrics) IncrementToolCalls(tool, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.toolCalls.WithLabelValues(tool, status).Inc()
}

// IncrementReviewDecisions counts an approve or reject.
func (pm *PrometheusMetrics) IncrementReviewDecisions(decision string) {
	if !pm.isEnabled() {
		return
	}
	pm.reviewDecisions.WithLabelValues(decision).Inc()
}

// Disable stops recording. Useful in tests sharing a registry.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable resumes recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

func (pm *PrometheusMetrics) isEnabled() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}
