package agents

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/go-support-chat/internal/domain"
)

var (
	// agentRuns counts finished executor runs by agent and outcome.
	agentRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_chat_agent_runs_total",
			Help: "Total number of agent runs by outcome.",
		},
		[]string{"agent", "outcome"},
	)

	// toolCalls counts tool invocations by tool name and business success.
	toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_chat_tool_calls_total",
			Help: "Total number of tool invocations.",
		},
		[]string{"tool", "success"},
	)

	// routeDecisions counts router outcomes; "fallback" marks unknown labels.
	routeDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_chat_route_decisions_total",
			Help: "Total number of intent routing decisions.",
		},
		[]string{"agent", "fallback"},
	)
)

func init() {
	prometheus.MustRegister(agentRuns, toolCalls, routeDecisions)
}

func observeRun(agent domain.AgentType, outcome Outcome) {
	agentRuns.WithLabelValues(string(agent), string(outcome)).Inc()
}

func observeTool(name string, success bool) {
	toolCalls.WithLabelValues(name, strconv.FormatBool(success)).Inc()
}

func observeRoute(agent domain.AgentType, fallback bool) {
	routeDecisions.WithLabelValues(string(agent), strconv.FormatBool(fallback)).Inc()
}
