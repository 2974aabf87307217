// Package prometheus provides the weather assistant's Prometheus metrics and an
// optional /metrics exporter. Recording functions are safe to call whether or not
// an exporter is running.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hkweather"

var (
	// decisionsTotal counts routing decisions by the component that made them.
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_decisions_total",
			Help:      "Total number of routing decisions",
		},
		[]string{"tool", "source"}, // source: ModelDriven, KeywordFallback
	)

	// queriesTotal counts answered queries by outcome.
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of user queries",
		},
		[]string{"status"}, // status: answered, degraded, transport_error
	)

	queryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end duration of user queries in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of open assistant sessions",
		},
	)

	toolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Duration of tool calls across the MCP boundary in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"tool"},
	)

	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls across the MCP boundary",
		},
		[]string{"tool", "status"}, // status: ok, error, transport_error
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Tool result cache lookups",
		},
		[]string{"tool", "result"}, // result: hit, miss, error
	)

	providerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of language model calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	providerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of language model calls",
		},
		[]string{"provider", "model", "status"}, // status: success, error
	)

	providerTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_total",
			Help:      "Total tokens consumed by language model calls",
		},
		[]string{"provider", "model", "type"}, // type: input, output
	)

	backendRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_run_duration_seconds",
			Help:      "Duration of automation backend runs in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"recipe"},
	)

	backendRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_runs_total",
			Help:      "Total number of automation backend runs",
		},
		[]string{"recipe", "status"}, // status: ok, timeout, navigation, extraction
	)

	backendSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_sessions_active",
			Help:      "Number of acquired automation sessions",
		},
	)

	allMetrics = []prometheus.Collector{
		decisionsTotal,
		queriesTotal,
		queryDuration,
		sessionsActive,
		toolCallDuration,
		toolCallsTotal,
		cacheLookupsTotal,
		providerRequestDuration,
		providerRequestsTotal,
		providerTokensTotal,
		backendRunDuration,
		backendRunsTotal,
		backendSessionsActive,
	}
)

// RecordDecision records which component picked the tool.
func RecordDecision(tool, source string) {
	decisionsTotal.WithLabelValues(tool, source).Inc()
}

// RecordQuery records a finished query.
func RecordQuery(status string, d time.Duration) {
	queriesTotal.WithLabelValues(status).Inc()
	queryDuration.Observe(d.Seconds())
}

// RecordSessionStart records an opened session.
func RecordSessionStart() {
	sessionsActive.Inc()
}

// RecordSessionEnd records a closed session.
func RecordSessionEnd() {
	sessionsActive.Dec()
}

// RecordToolCall records a tool call that crossed the MCP boundary.
func RecordToolCall(tool, status string, d time.Duration) {
	toolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
	toolCallsTotal.WithLabelValues(tool, status).Inc()
}

// RecordCacheLookup records a cache hit, miss or error.
func RecordCacheLookup(tool, result string) {
	cacheLookupsTotal.WithLabelValues(tool, result).Inc()
}

// RecordProviderRequest records a language model call.
func RecordProviderRequest(provider, model, status string, d time.Duration) {
	providerRequestDuration.WithLabelValues(provider, model).Observe(d.Seconds())
	providerRequestsTotal.WithLabelValues(provider, model, status).Inc()
}

// RecordProviderTokens records token consumption.
func RecordProviderTokens(provider, model string, inputTokens, outputTokens int) {
	if inputTokens > 0 {
		providerTokensTotal.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		providerTokensTotal.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordBackendRun records an automation backend run.
func RecordBackendRun(recipe, status string, d time.Duration) {
	backendRunDuration.WithLabelValues(recipe).Observe(d.Seconds())
	backendRunsTotal.WithLabelValues(recipe, status).Inc()
}

// RecordBackendSessionAcquired records an acquired automation session.
func RecordBackendSessionAcquired() {
	backendSessionsActive.Inc()
}

// RecordBackendSessionReleased records a released automation session.
func RecordBackendSessionReleased() {
	backendSessionsActive.Dec()
}
