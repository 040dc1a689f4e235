package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's prometheus collectors.
type Metrics struct {
	LLMCalls       *prometheus.CounterVec
	LLMTokens      *prometheus.CounterVec
	LLMDuration    *prometheus.HistogramVec
	ToolExecutions *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	EventQueueLen  prometheus.Gauge
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetGlobalMetrics returns the process-wide metrics, registering collectors
// on first use.
func GetGlobalMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return globalMetrics
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LLMCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "deepresearch_llm_calls_total",
			Help: "LLM calls by model and outcome.",
		}, []string{"model", "outcome"}),
		LLMTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "deepresearch_llm_tokens_total",
			Help: "Tokens consumed by model and direction.",
		}, []string{"model", "direction"}),
		LLMDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deepresearch_llm_duration_seconds",
			Help:    "LLM call latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"model"}),
		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "deepresearch_tool_executions_total",
			Help: "Tool executions by tool and outcome.",
		}, []string{"tool", "outcome"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "deepresearch_active_sessions",
			Help: "Sessions currently researching.",
		}),
		EventQueueLen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "deepresearch_event_queue_depth",
			Help: "Buffered stream events across sessions.",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "deepresearch_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deepresearch_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// RecordLLMCall records one LLM round trip.
func (m *Metrics) RecordLLMCall(model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.LLMCalls.WithLabelValues(model, outcome).Inc()
	m.LLMDuration.WithLabelValues(model).Observe(duration.Seconds())
	if inputTokens > 0 {
		m.LLMTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// RecordToolExecution records one tool invocation.
func (m *Metrics) RecordToolExecution(tool string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ToolExecutions.WithLabelValues(tool, outcome).Inc()
}
