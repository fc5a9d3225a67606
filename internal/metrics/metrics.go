// Package metrics holds the Prometheus instrumentation exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// PIPELINE METRICS
// =============================================================================

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicing_requests_total",
			Help: "Total number of processed customer requests",
		},
		[]string{"channel", "intent", "status"}, // status: ok, blocked, escalated, error
	)

	requestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "servicing_request_duration_seconds",
			Help:    "End-to-end request processing duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"channel"},
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "servicing_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"stage"},
	)
)

// =============================================================================
// GUARDRAIL & WORKFLOW METRICS
// =============================================================================

var (
	guardrailViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicing_guardrail_violations_total",
			Help: "Guardrail violations by stage, category and severity",
		},
		[]string{"stage", "category", "severity"},
	)

	workflowRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicing_workflow_runs_total",
			Help: "Workflow executions by outcome",
		},
		[]string{"workflow", "status"},
	)

	policyDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicing_policy_decisions_total",
			Help: "Policy gate decisions",
		},
		[]string{"gate", "action"},
	)
)

// =============================================================================
// RETRIEVAL & COLLABORATOR METRICS
// =============================================================================

var (
	retrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicing_retrievals_total",
			Help: "Context retrievals by outcome",
		},
		[]string{"outcome"}, // outcome: hit, empty, skipped, failed
	)

	retrievalResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "servicing_retrieval_results",
			Help:    "Chunks returned per retrieval",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	collaboratorCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicing_collaborator_calls_total",
			Help: "Calls to downstream banking services",
		},
		[]string{"service", "status"}, // status: success, error, circuit_open
	)

	collaboratorDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "servicing_collaborator_duration_seconds",
			Help:    "Downstream call duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"service"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordRequest records one finished request.
func RecordRequest(channel, intent, status string, d time.Duration) {
	requestsTotal.WithLabelValues(channel, intent, status).Inc()
	requestDurationSeconds.WithLabelValues(channel).Observe(d.Seconds())
}

// RecordStage records the time spent in one pipeline stage.
func RecordStage(stage string, d time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordViolation counts one guardrail violation.
func RecordViolation(stage, category, severity string) {
	guardrailViolationsTotal.WithLabelValues(stage, category, severity).Inc()
}

// RecordWorkflow counts one workflow execution.
func RecordWorkflow(workflow, status string) {
	workflowRunsTotal.WithLabelValues(workflow, status).Inc()
}

// RecordPolicyDecision counts one gate decision.
func RecordPolicyDecision(gate, action string) {
	policyDecisionsTotal.WithLabelValues(gate, action).Inc()
}

// RecordRetrieval counts one retrieval and the number of chunks it returned.
func RecordRetrieval(outcome string, results int) {
	retrievalsTotal.WithLabelValues(outcome).Inc()
	if outcome != "skipped" {
		retrievalResults.Observe(float64(results))
	}
}

// RecordCollaboratorCall records one downstream call.
func RecordCollaboratorCall(service, status string, d time.Duration) {
	collaboratorCallsTotal.WithLabelValues(service, status).Inc()
	collaboratorDurationSeconds.WithLabelValues(service).Observe(d.Seconds())
}
