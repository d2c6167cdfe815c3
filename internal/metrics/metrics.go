package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AgentRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rys_agent_rounds",
			Help:    "Model rounds used per conversation run",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	AgentRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rys_agent_runs_total",
			Help: "Total number of conversation runs by outcome",
		},
		[]string{"outcome"},
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rys_tool_calls_total",
			Help: "Total number of tool invocations",
		},
		[]string{"tool", "outcome"},
	)

	LLMRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "rys_llm_request_duration_seconds",
			Help: "Chat completion request latency in seconds",
		},
	)

	RemindersFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rys_reminders_fired_total",
			Help: "Total number of reminder delivery attempts",
		},
		[]string{"kind", "outcome"},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rys_deliveries_total",
			Help: "Total number of outbound chat messages",
		},
		[]string{"outcome"},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rys_webhook_events_total",
			Help: "Total number of inbound webhook events",
		},
		[]string{"source", "outcome"},
	)
)

// Outcome maps an error to the "ok"/"error" label used across collectors.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
