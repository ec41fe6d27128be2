package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - LLM request performance, token usage, and estimated cost
//   - Tool execution patterns, latencies, and permission-gate decisions
//   - Error rates categorized by type and component
//   - Active session counts and orchestrator iteration behavior
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.LLMRequestDuration("anthropic", "claude-3-opus").Observe(time.Since(start).Seconds())
type Metrics struct {
	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider (anthropic|openai), model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider and model.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// LLMCostUSD tracks estimated cost in USD.
	// Labels: provider, model
	LLMCostUSD *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// PermissionDecisions counts permission gate outcomes.
	// Labels: tool_name, outcome (granted|denied|timed_out)
	PermissionDecisions *prometheus.CounterVec

	// ErrorCounter tracks errors by component and error type.
	// Labels: component (provider|tool|orchestrator|session), error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveSessions is a gauge tracking current active sessions.
	// Labels: provider
	ActiveSessions *prometheus.GaugeVec

	// SessionDuration measures session lifetime in seconds.
	// Labels: provider
	SessionDuration *prometheus.HistogramVec

	// ContextWindowUsed tracks context window utilization per request.
	// Labels: provider, model
	ContextWindowUsed *prometheus.HistogramVec

	// IterationsPerTurn tracks how many generate/execute-tools round-trips
	// one orchestrator turn took.
	IterationsPerTurn *prometheus.HistogramVec

	// IterationLimitHit counts turns that were cut short by the
	// orchestrator's iteration bound.
	IterationLimitHit prometheus.Counter

	// RateLimiterWaitDuration measures time spent blocked on a rate
	// limiter before a request was allowed through.
	// Labels: provider
	RateLimiterWaitDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default
// registry and will be available wherever the process exposes a
// prometheus HTTP handler.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coreagent_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		LLMCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_llm_cost_usd_total",
				Help: "Estimated LLM API cost in USD",
			},
			[]string{"provider", "model"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coreagent_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		PermissionDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_permission_decisions_total",
				Help: "Total number of permission gate decisions by tool name and outcome",
			},
			[]string{"tool_name", "outcome"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreagent_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ActiveSessions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coreagent_active_sessions",
				Help: "Current number of active sessions by provider",
			},
			[]string{"provider"},
		),

		SessionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coreagent_session_duration_seconds",
				Help:    "Duration of sessions in seconds",
				Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400, 28800},
			},
			[]string{"provider"},
		),

		ContextWindowUsed: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coreagent_context_window_tokens",
				Help:    "Context window tokens used per request",
				Buckets: []float64{1000, 4000, 8000, 16000, 32000, 64000, 128000},
			},
			[]string{"provider", "model"},
		),

		IterationsPerTurn: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coreagent_orchestrator_iterations",
				Help:    "Number of generate/execute-tools round-trips per orchestrator turn",
				Buckets: []float64{1, 2, 4, 8, 12, 16, 24, 32},
			},
			[]string{"provider"},
		),

		IterationLimitHit: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "coreagent_orchestrator_iteration_limit_total",
				Help: "Total number of turns cut short by the iteration bound",
			},
		),

		RateLimiterWaitDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coreagent_rate_limiter_wait_seconds",
				Help:    "Time spent blocked on a provider's rate limiter before a request proceeded",
				Buckets: []float64{0, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider"},
		),
	}
}

// RecordLLMRequest records metrics for an LLM API request.
//
// Example:
//
//	start := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("anthropic", "claude-3-opus", "success", time.Since(start).Seconds(), 100, 500)
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records metrics for a tool execution.
//
// Example:
//
//	start := time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("read", "success", time.Since(start).Seconds())
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordPermissionDecision records a permission gate outcome for a tool call.
//
// Example:
//
//	metrics.RecordPermissionDecision("write", "granted")
//	metrics.RecordPermissionDecision("write", "denied")
func (m *Metrics) RecordPermissionDecision(toolName, outcome string) {
	m.PermissionDecisions.WithLabelValues(toolName, outcome).Inc()
}

// RecordError increments the error counter for a given component and error type.
//
// Example:
//
//	metrics.RecordError("provider", "rate_limited")
//	metrics.RecordError("tool", "permission_denied")
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// SessionStarted increments the active sessions gauge.
//
// Example:
//
//	metrics.SessionStarted("anthropic")
func (m *Metrics) SessionStarted(provider string) {
	m.ActiveSessions.WithLabelValues(provider).Inc()
}

// SessionEnded decrements the active sessions gauge and records session duration.
//
// Example:
//
//	start := time.Now()
//	// ... session lifecycle ...
//	metrics.SessionEnded("openai", time.Since(start).Seconds())
func (m *Metrics) SessionEnded(provider string, durationSeconds float64) {
	m.ActiveSessions.WithLabelValues(provider).Dec()
	m.SessionDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordLLMCost records estimated API cost.
//
// Example:
//
//	metrics.RecordLLMCost("anthropic", "claude-3-opus", 0.015)
func (m *Metrics) RecordLLMCost(provider, model string, costUSD float64) {
	m.LLMCostUSD.WithLabelValues(provider, model).Add(costUSD)
}

// RecordContextWindow records context window utilization.
//
// Example:
//
//	metrics.RecordContextWindow("anthropic", "claude-3-opus", 45000)
func (m *Metrics) RecordContextWindow(provider, model string, tokensUsed int) {
	m.ContextWindowUsed.WithLabelValues(provider, model).Observe(float64(tokensUsed))
}

// RecordTurn records how many iterations a completed orchestrator turn
// took, and bumps the iteration-limit counter if it was cut short.
//
// Example:
//
//	metrics.RecordTurn("anthropic", 3, false)
//	metrics.RecordTurn("anthropic", 16, true)
func (m *Metrics) RecordTurn(provider string, iterations int, hitLimit bool) {
	m.IterationsPerTurn.WithLabelValues(provider).Observe(float64(iterations))
	if hitLimit {
		m.IterationLimitHit.Inc()
	}
}

// RecordRateLimiterWait records time spent blocked on a provider's rate
// limiter before a request proceeded.
//
// Example:
//
//	metrics.RecordRateLimiterWait("openai", 1.2)
func (m *Metrics) RecordRateLimiterWait(provider string, waitSeconds float64) {
	m.RateLimiterWaitDuration.WithLabelValues(provider).Observe(waitSeconds)
}
