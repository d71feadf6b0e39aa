package ruleengine_test

import (
	"testing"

	"github.com/go-logr/logr"

	"github.com/kubernaut-bdi/agent/pkg/ruleengine"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

func TestCrashloopDetectedFromHighRestartCount(t *testing.T) {
	e := ruleengine.New(logr.Discard())
	result := e.Assert(types.NewPodFact(types.PodFact{
		Name: "checkout", Namespace: "prod", Phase: types.PodRunning, RestartCount: 7,
	}))

	if !hasDerivation(result.Added, "crashloop_detected", "checkout", "prod") {
		t.Fatalf("expected crashloop_detected(checkout, prod) in Added, got %+v", result.Added)
	}
	if result.Best == nil || result.Best.Runbook != "crashloop_runbook" {
		t.Fatalf("expected best_incident to select crashloop_runbook, got %+v", result.Best)
	}
}

func TestCrashloopGuardedByAlreadyHandling(t *testing.T) {
	e := ruleengine.New(logr.Discard())
	pod := types.NewPodFact(types.PodFact{Name: "checkout", Namespace: "prod", Phase: types.PodRunning, RestartCount: 7})
	e.Assert(pod)

	e.MarkHandling(types.CrashloopIncidentID("checkout"))
	result := e.Assert(pod)

	if hasDerivation(result.Added, "crashloop_detected", "checkout", "prod") {
		t.Error("crashloop_detected should not re-derive once already_handling is marked")
	}
	if len(e.Derivations()) != 0 {
		t.Errorf("expected no surviving derivations once already_handling suppresses crashloop, got %v", e.Derivations())
	}
}

func TestOOMKillDetectedOnTerminationReason(t *testing.T) {
	e := ruleengine.New(logr.Discard())
	result := e.Assert(types.NewPodFact(types.PodFact{
		Name: "worker", Namespace: "prod", TerminationReason: "OOMKilled",
	}))

	if !hasDerivation(result.Added, "oomkill_detected", "worker", "prod") {
		t.Fatalf("expected oomkill_detected(worker, prod), got %+v", result.Added)
	}
	if result.Best.Runbook != "oomkill_runbook" {
		t.Errorf("Best.Runbook = %q, want oomkill_runbook", result.Best.Runbook)
	}
}

func TestSuspectBadDeployAndCorrelation(t *testing.T) {
	e := ruleengine.New(logr.Discard())
	e.Assert(types.NewDeployFact(types.DeployFact{Name: "checkout", Namespace: "prod", Replicas: 3, Available: 0}))
	result := e.Assert(types.NewMetricFact(types.MetricFact{Name: "error_rate:checkout", Value: 0.10}))

	if !hasDerivation(result.Added, "deploy_correlated_error", "checkout", "prod") {
		t.Fatalf("expected deploy_correlated_error(checkout, prod), got %+v", result.Added)
	}
}

func TestOomkillOutranksSuspectBadDeploy(t *testing.T) {
	e := ruleengine.New(logr.Discard())
	e.Assert(types.NewDeployFact(types.DeployFact{Name: "checkout", Namespace: "prod", Replicas: 3, Available: 1}))
	result := e.Assert(types.NewPodFact(types.PodFact{Name: "worker", Namespace: "prod", TerminationReason: "OOMKilled"}))

	if result.Best == nil || result.Best.Runbook != "oomkill_runbook" {
		t.Fatalf("expected oomkill to win priority lattice, got %+v", result.Best)
	}
}

func TestRunIsIdempotentOnFixedInput(t *testing.T) {
	build := func() *ruleengine.Engine {
		e := ruleengine.New(logr.Discard())
		e.Assert(types.NewPodFact(types.PodFact{Name: "checkout", Namespace: "prod", Phase: types.PodRunning, RestartCount: 7}))
		e.Assert(types.NewDeployFact(types.DeployFact{Name: "checkout", Namespace: "prod", Replicas: 3, Available: 0}))
		return e
	}
	a := build().Derivations()
	b := build().Derivations()
	if len(a) != len(b) {
		t.Fatalf("two runs over identical input produced different derivation counts: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("derivation %d differs across runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func hasDerivation(ds []ruleengine.Derivation, relation string, args ...string) bool {
	for _, d := range ds {
		if d.Relation != relation || len(d.Args) != len(args) {
			continue
		}
		match := true
		for i := range args {
			if d.Args[i] != args[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
