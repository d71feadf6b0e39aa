// Package metrics defines the Prometheus metrics exported by the agent
// process, one metric per BDI-loop stage (spec §4.9): ingestion, rule
// derivation, planning, execution, escalation, and the optional LLM
// path. Metric naming follows the Prometheus convention of a bdi_agent_
// prefix, a _total suffix on counters, and a _seconds suffix on duration
// histograms.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry rather than the global default one, so
// tests can construct an isolated instance per case without colliding on
// repeated registration.
type Metrics struct {
	Registry *prometheus.Registry

	FactsIngestedTotal     *prometheus.CounterVec
	FactsDroppedTotal      *prometheus.CounterVec
	RuleDerivationsTotal   prometheus.Counter
	PlansSelectedTotal     *prometheus.CounterVec
	PlanSearchDuration     prometheus.Histogram
	ActionsExecutedTotal   *prometheus.CounterVec
	ActionDurationSeconds  *prometheus.HistogramVec
	CompensationsTotal     *prometheus.CounterVec
	EscalationsTotal       *prometheus.CounterVec
	ActiveIncidents        prometheus.Gauge
	LLMCallsTotal          *prometheus.CounterVec
	LLMCallDurationSeconds *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		FactsIngestedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bdi_agent_facts_ingested_total",
			Help: "Total facts accepted into the merged stream, by source.",
		}, []string{"source"}),
		FactsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bdi_agent_facts_dropped_total",
			Help: "Total facts dropped under backpressure, by source.",
		}, []string{"source"}),
		RuleDerivationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bdi_agent_rule_derivations_total",
			Help: "Total rule-engine recompute-to-fixpoint passes.",
		}),
		PlansSelectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bdi_agent_plans_selected_total",
			Help: "Total plans selected, by runbook.",
		}, []string{"runbook"}),
		PlanSearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bdi_agent_plan_search_duration_seconds",
			Help:    "A* planner search duration.",
			Buckets: prometheus.DefBuckets,
		}),
		ActionsExecutedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bdi_agent_actions_executed_total",
			Help: "Total executor action invocations, by action name and outcome.",
		}, []string{"action", "outcome"}),
		ActionDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bdi_agent_action_duration_seconds",
			Help:    "Executor tool invocation duration, by action name.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"action"}),
		CompensationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bdi_agent_compensations_total",
			Help: "Total compensation invocations, by action name and outcome.",
		}, []string{"action", "outcome"}),
		EscalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bdi_agent_escalations_total",
			Help: "Total escalations raised, by runbook.",
		}, []string{"runbook"}),
		ActiveIncidents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bdi_agent_active_incidents",
			Help: "Number of incidents lacking a terminal Resolved or Escalated event.",
		}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bdi_agent_llm_calls_total",
			Help: "Total LLM provider calls, by agent role and outcome.",
		}, []string{"role", "outcome"}),
		LLMCallDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bdi_agent_llm_call_duration_seconds",
			Help:    "LLM provider call duration, by agent role.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 60},
		}, []string{"role"}),
	}

	m.Registry.MustRegister(
		m.FactsIngestedTotal,
		m.FactsDroppedTotal,
		m.RuleDerivationsTotal,
		m.PlansSelectedTotal,
		m.PlanSearchDuration,
		m.ActionsExecutedTotal,
		m.ActionDurationSeconds,
		m.CompensationsTotal,
		m.EscalationsTotal,
		m.ActiveIncidents,
		m.LLMCallsTotal,
		m.LLMCallDurationSeconds,
	)
	return m
}

// Handler exposes the registry in the Prometheus text exposition format,
// mounted at the metrics server's /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordAction records one executor invocation's outcome and duration.
func (m *Metrics) RecordAction(action, outcome string, d time.Duration) {
	m.ActionsExecutedTotal.WithLabelValues(action, outcome).Inc()
	m.ActionDurationSeconds.WithLabelValues(action).Observe(d.Seconds())
}

// RecordCompensation records one compensation invocation's outcome.
func (m *Metrics) RecordCompensation(action, outcome string) {
	m.CompensationsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordPlanSelected records one planner success for the named runbook.
func (m *Metrics) RecordPlanSelected(runbook string, searchDuration time.Duration) {
	m.PlansSelectedTotal.WithLabelValues(runbook).Inc()
	m.PlanSearchDuration.Observe(searchDuration.Seconds())
}

// RecordEscalation records one escalation raised for the named runbook.
func (m *Metrics) RecordEscalation(runbook string) {
	m.EscalationsTotal.WithLabelValues(runbook).Inc()
}

// RecordLLMCall records one LLM provider call's outcome and duration.
func (m *Metrics) RecordLLMCall(role, outcome string, d time.Duration) {
	m.LLMCallsTotal.WithLabelValues(role, outcome).Inc()
	m.LLMCallDurationSeconds.WithLabelValues(role).Observe(d.Seconds())
}
