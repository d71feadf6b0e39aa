// Package bdiagent implements the BDI loop of spec §4.9: for each fact
// from the merged stream, assert into the rule engine, select a runbook
// (or fall back to the LLM-assisted uncertain path) and drive that
// incident's plan through the executor and, on failure or an
// Irreversible step, the escalation channel — one incident at a time,
// to completion, matching the cooperative single-writer scheduling
// model of spec §5.
package bdiagent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/kubernaut-bdi/agent/pkg/escalation"
	"github.com/kubernaut-bdi/agent/pkg/eventlog"
	"github.com/kubernaut-bdi/agent/pkg/executor"
	"github.com/kubernaut-bdi/agent/pkg/factregistry"
	"github.com/kubernaut-bdi/agent/pkg/llm"
	"github.com/kubernaut-bdi/agent/pkg/metrics"
	"github.com/kubernaut-bdi/agent/pkg/planner"
	"github.com/kubernaut-bdi/agent/pkg/queryapi"
	"github.com/kubernaut-bdi/agent/pkg/ruleengine"
	"github.com/kubernaut-bdi/agent/pkg/telemetry"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

// Config tunes the loop's bounded-retry and timeout behavior (spec §5).
type Config struct {
	MaxReplanAttempts int
	// PlanExecutionTimeout bounds one runExecutionLoop pass, spanning
	// every replan attempt for a single incident (spec §5 default 10m).
	PlanExecutionTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{MaxReplanAttempts: 3, PlanExecutionTimeout: 10 * time.Minute}
}

// llmAgents bundles the three optional uncertain-path agents (spec
// §4.7); nil on the Agent when the LLM path is disabled (spec §6: "LLM
// disabled when the named API-key variable is empty").
type llmAgents struct {
	interpreter *llm.Interpreter
	analyzer    *llm.Analyzer
	proposer    *llm.Proposer
}

// Agent owns the rule engine and event log for one process (spec §5:
// "one task for the BDI loop ... no shared mutable state outside the
// rule engine and event log").
type Agent struct {
	config Config

	rules   *ruleengine.Engine
	facts   *factregistry.Registry
	tools   executor.ToolExecutor
	exec    *executor.Executor
	escalate *escalation.Channel
	events  eventlog.Store
	metrics *metrics.Metrics
	hub     *queryapi.PushHub
	llm     *llmAgents

	log logr.Logger
}

// New wires one BDI agent instance. When provider is non-nil, New builds
// the three llm.* agents (Interpreter, Proposer, Analyzer) over that one
// shared provider; a nil provider leaves the LLM path disabled.
func New(
	config Config,
	rules *ruleengine.Engine,
	facts *factregistry.Registry,
	tools executor.ToolExecutor,
	compensator executor.Compensator,
	events eventlog.Store,
	m *metrics.Metrics,
	hub *queryapi.PushHub,
	escalateChannel *escalation.Channel,
	provider llm.Provider,
	log logr.Logger,
) *Agent {
	if config.MaxReplanAttempts <= 0 {
		config = DefaultConfig()
	}
	log = log.WithName("bdiagent")

	instrumentedTools := &meteredTools{inner: tools, metrics: m}
	exec := executor.New(executor.DefaultConfig(), instrumentedTools, compensator, events, log)

	a := &Agent{
		config:   config,
		rules:    rules,
		facts:    facts,
		tools:    tools,
		exec:     exec,
		escalate: escalateChannel,
		events:   events,
		metrics:  m,
		hub:      hub,
		log:      log,
	}

	if provider != nil {
		a.llm = &llmAgents{
			interpreter: llm.NewInterpreter(provider),
			proposer:    llm.NewProposer(provider),
		}
		a.llm.analyzer = llm.NewAnalyzer(provider, BuildActionRegistry("", ""), &observeRunner{tools: tools})
	}
	return a
}

// meteredTools decorates a ToolExecutor with per-action duration and
// outcome metrics (pkg/metrics' ActionsExecutedTotal/ActionDurationSeconds),
// since pkg/executor has no per-step hook of its own.
type meteredTools struct {
	inner   executor.ToolExecutor
	metrics *metrics.Metrics
}

func (m *meteredTools) Invoke(ctx context.Context, action types.ActionSchema) error {
	start := time.Now()
	ctx, span := telemetry.StartToolCallSpan(ctx, action.Name, action.Target, action.Effect.String())
	err := m.inner.Invoke(ctx, action)
	outcome := "success"
	errMsg := ""
	if err != nil {
		outcome = "failure"
		errMsg = err.Error()
	}
	telemetry.EndToolCallSpan(span, err == nil, errMsg)
	m.metrics.RecordAction(action.Name, outcome, time.Since(start))
	return err
}

func (m *meteredTools) Snapshot(ctx context.Context, action types.ActionSchema) (executor.Snapshot, error) {
	return m.inner.Snapshot(ctx, action)
}

// observeRunner adapts a ToolExecutor into llm.ObserveToolRunner for the
// Analyzer's bounded tool-call loop (spec §4.7). The tool dispatch table
// (pkg/executor/k8stools) returns no observation text today, so this
// reports call success/failure rather than rich diagnostic content — a
// known simplification recorded in DESIGN.md.
type observeRunner struct {
	tools executor.ToolExecutor
}

func (o *observeRunner) RunObserveTool(ctx context.Context, name, target string) (string, error) {
	action := types.ActionSchema{Name: name, Effect: types.Observe, Target: target}
	if err := o.tools.Invoke(ctx, action); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s(%s): ok", name, target), nil
}

// Run consumes the merged fact stream until it closes or ctx is
// cancelled, processing one fact to completion before the next (spec
// §5's single-writer BDI task).
func (a *Agent) Run(ctx context.Context, facts <-chan types.Fact) {
	for {
		select {
		case <-ctx.Done():
			return
		case fact, ok := <-facts:
			if !ok {
				return
			}
			a.process(ctx, fact)
		}
	}
}

func (a *Agent) process(ctx context.Context, fact types.Fact) {
	a.metrics.FactsIngestedTotal.WithLabelValues(string(fact.Kind)).Inc()
	_, key := a.facts.Assert(ctx, fact)
	a.hub.Publish(queryapi.BeliefsUpdated, "", key)

	result := a.rules.Assert(fact)
	a.metrics.RuleDerivationsTotal.Inc()

	if result.Best != nil {
		a.handleRunbookPath(ctx, fact, *result.Best)
		return
	}
	if a.llm != nil && len(a.rules.Derivations()) > 0 {
		a.handleLLMPath(ctx, fact)
	}
}

func (a *Agent) handleRunbookPath(ctx context.Context, fact types.Fact, best ruleengine.IncidentCandidate) {
	incidentID := best.IncidentID
	a.rules.MarkHandling(incidentID)

	ctx, span := telemetry.StartIncidentSpan(ctx, incidentID, best.Runbook)
	defer span.End()

	a.appendEvent(ctx, types.NewFactAsserted(incidentID, "fact observed", fact))
	a.appendEvent(ctx, types.NewPatternMatched(incidentID, best.Runbook))

	_, target, _ := strings.Cut(incidentID, ":")
	namespace := a.resolveNamespace(target)

	runbook, ok := RunbookFor(best.Runbook, namespace, target)
	if !ok {
		a.escalateAndClose(ctx, incidentID, fmt.Sprintf("unknown runbook %q", best.Runbook))
		return
	}

	a.planAndExecute(ctx, incidentID, best.Runbook, runbook)
}

func (a *Agent) handleLLMPath(ctx context.Context, fact types.Fact) {
	incidentID := types.LLMIncidentID(time.Now().UTC().Format(time.RFC3339Nano))
	ctx, span := telemetry.StartIncidentSpan(ctx, incidentID, LLMProposedRunbook)
	defer span.End()

	namespace, target := factLocation(fact)
	summary := a.buildFactSummary()

	llmCtx, llmSpan := telemetry.StartLLMCallSpan(ctx, "interpreter", "configured", "configured")
	start := time.Now()
	hyp, err := a.llm.interpreter.Interpret(llmCtx, summary)
	a.metrics.RecordLLMCall("interpreter", outcomeOf(err), time.Since(start))
	telemetry.EndLLMCallSpan(llmSpan, err)
	if err != nil {
		a.log.Error(err, "llm interpreter failed, dropping this fact's uncertain path", "incident_id", incidentID)
		return
	}

	description := hyp.Hypothesis
	if analysis, aerr := a.runAnalyzer(ctx, summary, target); aerr == nil {
		description = fmt.Sprintf("%s (root cause: %s)", hyp.Hypothesis, analysis.RootCause)
	}
	a.appendEvent(ctx, types.NewFactAsserted(incidentID, "fact observed", fact))
	a.appendEvent(ctx, types.NewPatternMatched(incidentID, description))

	registry := BuildActionRegistry(namespace, target)
	var names []string
	for _, action := range registry.All() {
		names = append(names, action.Name)
	}

	proposeCtx, proposeSpan := telemetry.StartLLMCallSpan(ctx, "proposer", "configured", "configured")
	start = time.Now()
	proposed, err := a.llm.proposer.Propose(proposeCtx, hyp.Goal, names)
	a.metrics.RecordLLMCall("proposer", outcomeOf(err), time.Since(start))
	telemetry.EndLLMCallSpan(proposeSpan, err)
	if err != nil {
		a.log.Error(err, "llm proposer failed, dropping this fact's uncertain path", "incident_id", incidentID)
		return
	}

	filtered := llm.FilterActions(proposed, registry, a.log)
	goals := []string{hyp.Goal}
	startState := types.NewBeliefState()

	plan, verr := planner.ValidateSequence(startState, goals, filtered, registry)
	if verr != nil {
		a.log.Info("llm-proposed sequence invalid, falling back to full search", "incident_id", incidentID, "error", verr.Error())
		fallback, found := planner.Plan(startState, goals, registry.All())
		if !found {
			a.escalateAndClose(ctx, incidentID, "llm-proposed plan invalid and fallback search found none")
			return
		}
		plan = fallback
	}

	a.appendEvent(ctx, types.NewPlanSelected(incidentID, types.PlanSelectedDetails{
		Runbook: LLMProposedRunbook, Steps: plan.StepNames(), TotalCost: plan.TotalCost,
	}))
	a.hub.Publish(queryapi.PlanSelected, incidentID, plan.StepNames())
	a.runExecutionLoop(ctx, incidentID, plan)
}

// runAnalyzer enriches the uncertain path's PatternMatched description
// with the Analyzer's root-cause finding (spec §4.7); a failure here is
// non-fatal since only the Interpreter's hypothesis is required to plan.
func (a *Agent) runAnalyzer(ctx context.Context, summary llm.FactSummary, target string) (llm.Analysis, error) {
	ctx, span := telemetry.StartLLMCallSpan(ctx, "analyzer", "configured", "configured")
	start := time.Now()
	analysis, err := a.llm.analyzer.Analyze(ctx, summary, target)
	a.metrics.RecordLLMCall("analyzer", outcomeOf(err), time.Since(start))
	telemetry.EndLLMCallSpan(span, err)
	return analysis, err
}

func (a *Agent) planAndExecute(ctx context.Context, incidentID, runbookName string, runbook types.Runbook) {
	planCtx, planSpan := telemetry.StartPlanSpan(ctx, runbook.Goals[0])
	start := time.Now()
	plan, found := planner.Plan(types.NewBeliefState(), runbook.Goals, runbook.Actions)
	searchDuration := time.Since(start)
	telemetry.EndPlanSpan(planSpan, found, len(plan.Steps), plan.TotalCost)
	_ = planCtx

	if !found {
		a.escalateAndClose(ctx, incidentID, fmt.Sprintf("no plan found for runbook %q", runbookName))
		return
	}
	a.metrics.RecordPlanSelected(runbookName, searchDuration)

	a.appendEvent(ctx, types.NewPlanSelected(incidentID, types.PlanSelectedDetails{
		Runbook: runbookName, Steps: plan.StepNames(), TotalCost: plan.TotalCost,
	}))
	a.hub.Publish(queryapi.PlanSelected, incidentID, plan.StepNames())
	a.runExecutionLoop(ctx, incidentID, plan)
}

// runExecutionLoop drives one incident's plan through the executor
// (spec §4.9 steps 2-4): on an ungated Irreversible step it escalates
// and awaits Approve/Reject/TakeOver; on a failed step it compensates
// and retries up to MaxReplanAttempts, then escalates.
func (a *Agent) runExecutionLoop(ctx context.Context, incidentID string, plan types.Plan) {
	ctx, cancel := context.WithTimeout(ctx, a.config.PlanExecutionTimeout)
	defer cancel()

	approved := false
	attempts := 0
	for {
		outcome := a.exec.Execute(ctx, incidentID, plan, approved)
		approved = false
		a.hub.Publish(queryapi.ActionCompleted, incidentID, map[string]interface{}{
			"resolved": outcome.Resolved,
			"steps":    plan.StepNames(),
		})

		if outcome.NeedsApproval {
			resp, ok := a.escalateAndAwait(ctx, incidentID, "irreversible action requires approval")
			if !ok {
				a.escalateAndClose(ctx, incidentID, "irreversible action requires approval")
				return
			}
			if resp.Kind == escalation.Approve {
				approved = true
				continue
			}
			a.closeEscalated(ctx, incidentID, resp)
			return
		}

		if outcome.Resolved {
			a.resolve(ctx, incidentID)
			return
		}

		a.exec.Compensate(ctx, incidentID, outcome.CompensationStack)
		attempts++
		if attempts > a.config.MaxReplanAttempts {
			resp, ok := a.escalateAndAwait(ctx, incidentID, "execution failed after max replan attempts")
			if !ok {
				a.escalateAndClose(ctx, incidentID, "execution failed after max replan attempts")
				return
			}
			a.closeEscalated(ctx, incidentID, resp)
			return
		}
		// re-derive and retry (spec §4.9 step 4): the plan is re-executed
		// from an empty compensation stack, matching this module's runbook
		// action chains, which carry no external-world preconditions.
	}
}

func (a *Agent) escalateAndAwait(ctx context.Context, incidentID, reason string) (escalation.Response, bool) {
	ctx, span := telemetry.StartEscalationSpan(ctx, incidentID, reason)
	defer span.End()

	if _, err := a.escalate.Escalate(ctx, incidentID, reason); err != nil {
		a.log.Error(err, "escalate failed", "incident_id", incidentID)
		return escalation.Response{}, false
	}
	a.metrics.RecordEscalation(incidentID)
	a.hub.Publish(queryapi.EscalationRequired, incidentID, reason)

	resp, err := a.escalate.Await(ctx, incidentID)
	if err != nil {
		a.log.Error(err, "await escalation response failed", "incident_id", incidentID)
		return escalation.Response{}, false
	}
	return resp, true
}

func (a *Agent) closeEscalated(ctx context.Context, incidentID string, resp escalation.Response) {
	reason := resp.Reason
	if reason == "" {
		switch resp.Kind {
		case escalation.Reject:
			reason = "rejected by operator"
		case escalation.TakeOver:
			reason = "operator took over"
		default:
			reason = "escalated"
		}
	}
	a.rules.Unmark(incidentID)
	a.appendEvent(ctx, types.NewEscalated(incidentID, reason))
}

// escalateAndClose terminates an incident as Escalated directly, without
// an operator approve/await round trip — used when there is nothing to
// approve or reject (an unknown runbook, a plan search with no
// solution, or a failed escalate/await call itself), so every incident
// still ends in exactly one of Resolved or Escalated (spec §3 invariant
// 3) and the already_handling guard (§3 invariant 4) is always released.
func (a *Agent) escalateAndClose(ctx context.Context, incidentID, reason string) {
	a.rules.Unmark(incidentID)
	a.appendEvent(ctx, types.NewEscalated(incidentID, reason))
	a.hub.Publish(queryapi.EscalationRequired, incidentID, reason)
}

func (a *Agent) resolve(ctx context.Context, incidentID string) {
	a.rules.Unmark(incidentID)
	a.appendEvent(ctx, types.NewResolved(incidentID))
	a.hub.Publish(queryapi.IncidentResolved, incidentID, nil)
}

func (a *Agent) appendEvent(ctx context.Context, e types.Event) {
	if _, err := a.events.Append(ctx, e); err != nil {
		a.log.Error(err, "failed to append event", "incident_id", e.IncidentID, "event_type", e.Type)
	}
}

// buildFactSummary renders the current fact registry and rule-engine
// derivations into the bounded textual context the LLM agents consume
// (spec §4.7: "belief summary + last N facts, N<=50").
func (a *Agent) buildFactSummary() llm.FactSummary {
	var beliefs []string
	for _, d := range a.rules.Derivations() {
		beliefs = append(beliefs, d.String())
	}

	var facts []string
	for _, f := range a.facts.Snapshot() {
		facts = append(facts, factString(f))
	}

	return llm.FactSummary{Beliefs: beliefs, Facts: facts}
}

func factString(f types.Fact) string {
	switch f.Kind {
	case types.FactPod:
		return fmt.Sprintf("pod %s/%s phase=%s restarts=%d", f.Pod.Namespace, f.Pod.Name, f.Pod.Phase, f.Pod.RestartCount)
	case types.FactAlert:
		return fmt.Sprintf("alert %s severity=%s title=%q", f.Alert.ID, f.Alert.Severity, f.Alert.Title)
	case types.FactDeploy:
		return fmt.Sprintf("deploy %s/%s available=%d/%d", f.Deploy.Namespace, f.Deploy.Name, f.Deploy.Available, f.Deploy.Replicas)
	case types.FactMetric:
		return fmt.Sprintf("metric %s=%f", f.Metric.Name, f.Metric.Value)
	default:
		return "unknown fact"
	}
}

// factLocation extracts the namespace/target resource a Fact concerns,
// used to bind the generic action registry for the uncertain path.
func factLocation(f types.Fact) (namespace, target string) {
	switch f.Kind {
	case types.FactPod:
		return f.Pod.Namespace, f.Pod.Name
	case types.FactDeploy:
		return f.Deploy.Namespace, f.Deploy.Name
	case types.FactAlert:
		return "", f.Alert.ID
	case types.FactMetric:
		return "", f.Metric.Name
	default:
		return "", ""
	}
}

// resolveNamespace looks up the namespace of a previously asserted
// pod/deploy fact by name; this agent has no independent resource
// index, so an unresolved target (one observed only through a rule
// derivation, never a raw Fact) binds to the empty namespace.
func (a *Agent) resolveNamespace(name string) string {
	for _, f := range a.facts.Snapshot() {
		switch f.Kind {
		case types.FactPod:
			if f.Pod.Name == name {
				return f.Pod.Namespace
			}
		case types.FactDeploy:
			if f.Deploy.Name == name {
				return f.Deploy.Namespace
			}
		}
	}
	return ""
}

func outcomeOf(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Reprocess rebuilds and re-executes the plan for an active incident
// (spec §6 `reprocess_incident`), satisfying pkg/queryapi.Reprocessor.
func (a *Agent) Reprocess(ctx context.Context, incidentID string) error {
	events, err := a.events.EventsForIncident(ctx, incidentID)
	if err != nil {
		return fmt.Errorf("bdiagent: load events for %s: %w", incidentID, err)
	}
	state := types.Fold(incidentID, events)
	if state.Status != types.StatusActive {
		return fmt.Errorf("bdiagent: incident %s is not active (status=%s)", incidentID, state.Status)
	}
	if state.Runbook == "" || state.Runbook == LLMProposedRunbook {
		return fmt.Errorf("bdiagent: incident %s has no re-runnable runbook", incidentID)
	}

	_, target, _ := strings.Cut(incidentID, ":")
	namespace := a.resolveNamespace(target)

	runbook, ok := RunbookFor(state.Runbook, namespace, target)
	if !ok {
		return fmt.Errorf("bdiagent: unknown runbook %q for incident %s", state.Runbook, incidentID)
	}

	a.rules.MarkHandling(incidentID)
	a.planAndExecute(ctx, incidentID, state.Runbook, runbook)
	return nil
}
