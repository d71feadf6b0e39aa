package bdiagent

import "github.com/kubernaut-bdi/agent/pkg/types"

// Runbook names, selected by the rule engine's priority lattice
// (pkg/ruleengine's runbookFor table) or, for the uncertain path, fixed
// to LLMProposedRunbook.
const (
	CrashloopRunbook     = "crashloop_runbook"
	OOMKillRunbook       = "oomkill_runbook"
	DeployRollbackRunbook = "deploy_rollback_runbook"
	LLMProposedRunbook   = "llm_proposed"
)

const goalRecoveryVerified = "recovery_verified"

// bindTarget returns a copy of actions with Namespace/Target set to the
// concrete resource this incident's runbook instance acts on (spec
// §4.9: "the schema itself is otherwise resource-agnostic").
func bindTarget(actions []types.ActionSchema, namespace, target string) []types.ActionSchema {
	out := make([]types.ActionSchema, len(actions))
	for i, a := range actions {
		a.Namespace = namespace
		a.Target = target
		out[i] = a
	}
	return out
}

// crashloopActions is a strictly linear six-step chain: each action's
// sole precondition is the previous action's sole add-effect, so A*
// has exactly one path to goalRecoveryVerified regardless of cost
// (spec §8 scenario 1: "ActionIntent×6, ActionResult×6").
//
// The pod name doubles as the owning Deployment's name for
// restart/rollback targeting — this agent has no pod-to-Deployment
// resolver, a simplification recorded in DESIGN.md.
func crashloopActions() []types.ActionSchema {
	return []types.ActionSchema{
		{Name: "get_pod_logs", Effect: types.Observe, AddEffects: []string{"logs_collected"}, BaseCost: 1},
		{Name: "get_pod_events", Effect: types.Observe, Preconditions: []string{"logs_collected"}, AddEffects: []string{"events_collected"}, BaseCost: 1},
		{Name: "delete_pod", Effect: types.Mutate, Preconditions: []string{"events_collected"}, AddEffects: []string{"pod_recreated"}, BaseCost: 1},
		{Name: "rollback_deployment", Effect: types.Mutate, Preconditions: []string{"pod_recreated"}, AddEffects: []string{"deployment_rolled_back"}, BaseCost: 2},
		{Name: "restart_deployment", Effect: types.Mutate, Preconditions: []string{"deployment_rolled_back"}, AddEffects: []string{"deployment_restarted"}, BaseCost: 1},
		{Name: "verify_recovery", Effect: types.Observe, Preconditions: []string{"deployment_restarted"}, AddEffects: []string{goalRecoveryVerified}, BaseCost: 1},
	}
}

// oomkillActions is a four-step chain (spec §8 scenario 3: "plan length
// 4 steps"). OOMKilled pods need no rollback or forced recreation — a
// rolling restart against the raised resource limits is the whole fix.
func oomkillActions() []types.ActionSchema {
	return []types.ActionSchema{
		{Name: "get_pod_logs", Effect: types.Observe, AddEffects: []string{"logs_collected"}, BaseCost: 1},
		{Name: "get_pod_events", Effect: types.Observe, Preconditions: []string{"logs_collected"}, AddEffects: []string{"events_collected"}, BaseCost: 1},
		{Name: "restart_deployment", Effect: types.Mutate, Preconditions: []string{"events_collected"}, AddEffects: []string{"deployment_restarted"}, BaseCost: 1},
		{Name: "verify_recovery", Effect: types.Observe, Preconditions: []string{"deployment_restarted"}, AddEffects: []string{goalRecoveryVerified}, BaseCost: 1},
	}
}

// deployRollbackActions is a three-step chain for suspect_bad_deploy /
// deploy_correlated_error: inspect events on the Deployment, roll it
// back, verify.
func deployRollbackActions() []types.ActionSchema {
	return []types.ActionSchema{
		{Name: "get_pod_events", Effect: types.Observe, AddEffects: []string{"events_collected"}, BaseCost: 1},
		{Name: "rollback_deployment", Effect: types.Mutate, Preconditions: []string{"events_collected"}, AddEffects: []string{"deployment_rolled_back"}, BaseCost: 2},
		{Name: "verify_recovery", Effect: types.Observe, Preconditions: []string{"deployment_rolled_back"}, AddEffects: []string{goalRecoveryVerified}, BaseCost: 1},
	}
}

// RunbookFor builds the bound action list and goal for a rule-engine
// selected runbook name. namespace/target identify the incident's
// concrete resource (spec §4.9: runbooks are "a scoped action-set hint"
// instantiated per incident).
func RunbookFor(name, namespace, target string) (types.Runbook, bool) {
	switch name {
	case CrashloopRunbook:
		return types.Runbook{Name: name, Goals: []string{goalRecoveryVerified}, Actions: bindTarget(crashloopActions(), namespace, target)}, true
	case OOMKillRunbook:
		return types.Runbook{Name: name, Goals: []string{goalRecoveryVerified}, Actions: bindTarget(oomkillActions(), namespace, target)}, true
	case DeployRollbackRunbook:
		return types.Runbook{Name: name, Goals: []string{goalRecoveryVerified}, Actions: bindTarget(deployRollbackActions(), namespace, target)}, true
	default:
		return types.Runbook{}, false
	}
}

// verifyRecoveryCheck is satisfied once any remediation step has run;
// used only by the generic fallback registry below, where actions carry
// no forced ordering of their own.
func verifyRecoveryCheck(state types.BeliefState) bool {
	for _, prop := range []string{"deployment_restarted", "deployment_rolled_back", "pod_recreated", "deployment_drained"} {
		if state.Has(prop) {
			return true
		}
	}
	return false
}

// genericActions is the permissive, unordered action set backing both
// the LLM-proposed uncertain path and its full-search fallback (spec
// §4.7, §8 scenario 5). Unlike the tailored runbooks above, these carry
// minimal preconditions so a proposed or searched sequence of any
// length can reach the goal.
func genericActions() []types.ActionSchema {
	return []types.ActionSchema{
		{Name: "get_pod_logs", Effect: types.Observe, AddEffects: []string{"logs_collected"}, BaseCost: 1},
		{Name: "get_pod_events", Effect: types.Observe, Preconditions: []string{"logs_collected"}, AddEffects: []string{"events_collected"}, BaseCost: 1},
		{Name: "restart_deployment", Effect: types.Mutate, AddEffects: []string{"deployment_restarted"}, BaseCost: 1},
		{Name: "rollback_deployment", Effect: types.Mutate, AddEffects: []string{"deployment_rolled_back"}, BaseCost: 2},
		{Name: "delete_pod", Effect: types.Mutate, AddEffects: []string{"pod_recreated"}, BaseCost: 1},
		// scale_deployment drains a Deployment to zero replicas (spec §9's
		// "Irreversible" capability class): classified Irreversible since
		// it removes all serving capacity for the target, gated behind an
		// operator Approve (spec §4.8).
		{Name: "scale_deployment", Effect: types.Irreversible, AddEffects: []string{"deployment_drained"}, BaseCost: 1},
		{Name: "verify_recovery", Effect: types.Observe, Check: verifyRecoveryCheck, AddEffects: []string{goalRecoveryVerified}, BaseCost: 1},
	}
}

// BuildActionRegistry registers genericActions, bound to namespace/target,
// for the LLM safety gate and the planner's full-search fallback.
func BuildActionRegistry(namespace, target string) *types.Registry {
	reg := types.NewRegistry()
	for _, a := range bindTarget(genericActions(), namespace, target) {
		reg.Register(a)
	}
	return reg
}
