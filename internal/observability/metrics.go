package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for db-connect.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	ACLDecisions         *prometheus.CounterVec
	ACLCacheHits         prometheus.Counter
	ACLNegativeCacheHits prometheus.Counter
	ToolCallsTotal       *prometheus.CounterVec
	AgentRounds          prometheus.Histogram
	ActiveSSESessions    prometheus.Gauge
	LLMTokensTotal       *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "db_connect",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"route", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "db_connect",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		ACLDecisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "db_connect",
				Name:      "acl_decisions_total",
				Help:      "Total tool access decisions",
			},
			[]string{"result"}, // result=allow/deny
		),
		ACLCacheHits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "db_connect",
				Name:      "acl_cache_hits_total",
				Help:      "Total staff lookups served from the ACL cache",
			},
		),
		ACLNegativeCacheHits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "db_connect",
				Name:      "acl_negative_cache_hits_total",
				Help:      "Total staff lookups served from the negative (not-found) cache",
			},
		),
		ToolCallsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "db_connect",
				Name:      "tool_calls_total",
				Help:      "Total tool invocations through the catalog gate",
			},
			[]string{"tool", "status"}, // status=ok/error/denied
		),
		AgentRounds: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "db_connect",
				Name:      "agent_rounds",
				Help:      "LLM rounds consumed per user message",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 20},
			},
		),
		ActiveSSESessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "db_connect",
				Name:      "active_sse_sessions",
				Help:      "Number of open MCP SSE sessions",
			},
		),
		LLMTokensTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "db_connect",
				Name:      "llm_tokens_total",
				Help:      "Total LLM tokens consumed",
			},
			[]string{"direction"}, // direction=input/output
		),
	}
}
