// Package observability exposes the Prometheus counters named in
// spec.md's ambient stack: turns, tool errors, and memory promotions.
// Grounded on the teacher's pkg/observability/metrics.go, pared down to
// the subsystems this runtime actually has (no HTTP/RAG surface).
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/histogram this runtime records. A nil
// *Metrics is valid and every method becomes a no-op, so callers can
// wire metrics in optionally without a feature flag branch at every
// call site.
type Metrics struct {
	registry *prometheus.Registry

	turnsTotal   *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec
	turnErrors   *prometheus.CounterVec

	toolCalls  *prometheus.CounterVec
	toolErrors *prometheus.CounterVec

	llmCalls  *prometheus.CounterVec
	llmErrors *prometheus.CounterVec

	memorySearches *prometheus.CounterVec
	promotions     *prometheus.CounterVec
	promotionErr   *prometheus.CounterVec
}

// New creates a Metrics instance registered under namespace. Pass the
// result (or nil, to disable metrics entirely) to the components that
// accept an *observability.Metrics.
func New(namespace string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.turnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "agent", Name: "turns_total",
		Help: "Total number of dialogue turns processed by the system agent",
	}, []string{"agent_name"})

	m.turnDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "agent", Name: "turn_duration_seconds",
		Help: "Duration of one ReAct loop run", Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"agent_name"})

	m.turnErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "agent", Name: "turn_errors_total",
		Help: "Total number of turns that did not produce a successful Final Answer",
	}, []string{"agent_name"})

	m.toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "tool", Name: "calls_total",
		Help: "Total number of tool invocations",
	}, []string{"tool_name"})

	m.toolErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "tool", Name: "errors_total",
		Help: "Total number of tool invocation failures",
	}, []string{"tool_name"})

	m.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "llm", Name: "calls_total",
		Help: "Total number of LLM chat calls",
	}, []string{"model"})

	m.llmErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "llm", Name: "errors_total",
		Help: "Total number of LLM transport errors",
	}, []string{"model"})

	m.memorySearches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "memory", Name: "searches_total",
		Help: "Total number of mid-term/long-term memory searches",
	}, []string{"tier"})

	m.promotions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "memory", Name: "promotions_total",
		Help: "Total number of mid-term records promoted to long-term",
	}, []string{"bot_id"})

	m.promotionErr = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "memory", Name: "promotion_errors_total",
		Help: "Total number of failed promotion attempts",
	}, []string{"bot_id"})

	m.registry.MustRegister(
		m.turnsTotal, m.turnDuration, m.turnErrors,
		m.toolCalls, m.toolErrors,
		m.llmCalls, m.llmErrors,
		m.memorySearches, m.promotions, m.promotionErr,
	)

	return m
}

func (m *Metrics) RecordTurn(agentName string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(agentName).Inc()
	m.turnDuration.WithLabelValues(agentName).Observe(duration.Seconds())
	if !success {
		m.turnErrors.WithLabelValues(agentName).Inc()
	}
}

func (m *Metrics) RecordToolCall(toolName string, ok bool) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(toolName).Inc()
	if !ok {
		m.toolErrors.WithLabelValues(toolName).Inc()
	}
}

func (m *Metrics) RecordLLMCall(model string, err error) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(model).Inc()
	if err != nil {
		m.llmErrors.WithLabelValues(model).Inc()
	}
}

func (m *Metrics) RecordMemorySearch(tier string) {
	if m == nil {
		return
	}
	m.memorySearches.WithLabelValues(tier).Inc()
}

func (m *Metrics) RecordPromotion(botID string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.promotionErr.WithLabelValues(botID).Inc()
		return
	}
	m.promotions.WithLabelValues(botID).Inc()
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
