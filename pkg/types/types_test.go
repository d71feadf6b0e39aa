package types

import (
	"testing"
)

func TestEffectCostWeightOrdering(t *testing.T) {
	if !(Pure < Observe && Observe < Mutate && Mutate < Irreversible) {
		t.Fatal("Effect ordering must be Pure < Observe < Mutate < Irreversible")
	}
	weights := map[Effect]int{Pure: 1, Observe: 2, Mutate: 10, Irreversible: 100}
	for e, w := range weights {
		if got := e.CostWeight(); got != w {
			t.Errorf("%s.CostWeight() = %d, want %d", e, got, w)
		}
	}
}

func TestEffectBacktrackable(t *testing.T) {
	for _, e := range []Effect{Pure, Observe, Mutate} {
		if !e.Backtrackable() {
			t.Errorf("%s should be backtrackable", e)
		}
	}
	if Irreversible.Backtrackable() {
		t.Error("Irreversible should not be backtrackable")
	}
}

func TestEffectRecovery(t *testing.T) {
	cases := map[Effect]RecoveryPolicy{
		Pure: RecoveryRetry, Observe: RecoveryRetry,
		Mutate: RecoveryCheckAndRetry, Irreversible: RecoveryManualReview,
	}
	for e, want := range cases {
		if got := e.Recovery(); got != want {
			t.Errorf("%s.Recovery() = %v, want %v", e, got, want)
		}
	}
}

func TestBeliefStateSatisfiesAndMissing(t *testing.T) {
	bs := NewBeliefState("pod_restarted", "deploy_rolled_back")
	if !bs.Satisfies([]string{"pod_restarted"}) {
		t.Error("expected belief state to satisfy pod_restarted")
	}
	missing := bs.Missing([]string{"pod_restarted", "recovery_verified"})
	if len(missing) != 1 || missing[0] != "recovery_verified" {
		t.Errorf("Missing() = %v, want [recovery_verified]", missing)
	}
}

func TestBeliefStateKeyStableUnderInsertionOrder(t *testing.T) {
	a := NewBeliefState("b", "a", "c")
	b := NewBeliefState("c", "b", "a")
	if a.Key() != b.Key() {
		t.Errorf("Key() should be order-independent: %q vs %q", a.Key(), b.Key())
	}
	if !a.Equal(b) {
		t.Error("belief states with same propositions should be Equal")
	}
}

func TestBeliefStateWithIsImmutable(t *testing.T) {
	base := NewBeliefState("a")
	next := base.With("b")
	if base.Has("b") {
		t.Error("With() must not mutate the receiver")
	}
	if !next.Has("a") || !next.Has("b") {
		t.Error("With() result should contain both original and new propositions")
	}
}

func TestActionSchemaWeightedCost(t *testing.T) {
	a := ActionSchema{Name: "rollback_deployment", Effect: Mutate, BaseCost: 3}
	if got := a.WeightedCost(); got != 30 {
		t.Errorf("WeightedCost() = %v, want 30", got)
	}
}

func TestActionSchemaApplyAddsAndDeletes(t *testing.T) {
	a := ActionSchema{
		Name:          "scale_deployment",
		Preconditions: []string{"suspect_bad_deploy"},
		AddEffects:    []string{"scaled"},
		DeleteEffects: []string{"suspect_bad_deploy"},
	}
	state := NewBeliefState("suspect_bad_deploy")
	if !a.CheckPreconditions(state) {
		t.Fatal("preconditions should be satisfied")
	}
	next := a.Apply(state)
	if next.Has("suspect_bad_deploy") || !next.Has("scaled") {
		t.Errorf("Apply() result = %v, want scaled only", next.Slice())
	}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(ActionSchema{Name: "get_pod_logs", Effect: Observe})
	r.Register(ActionSchema{Name: "rollback_deployment", Effect: Mutate})

	if !r.Has("get_pod_logs") {
		t.Error("expected get_pod_logs to be registered")
	}
	if r.Has("delete_namespace") {
		t.Error("did not expect delete_namespace to be registered")
	}
	if len(r.All()) != 2 {
		t.Errorf("All() length = %d, want 2", len(r.All()))
	}
}

func TestFoldReconstructsIncidentState(t *testing.T) {
	events := []Event{
		NewPatternMatched("crashloop:checkout", "crashloop_detected"),
		NewPlanSelected("crashloop:checkout", PlanSelectedDetails{Runbook: "crashloop_runbook", Steps: []string{"a", "b"}}),
		NewActionResult("crashloop:checkout", ActionResultDetails{Action: "a", Success: true}),
		NewActionResult("crashloop:checkout", ActionResultDetails{Action: "b", Success: true}),
		NewResolved("crashloop:checkout"),
	}
	st := Fold("crashloop:checkout", events)
	if st.Status != StatusResolved {
		t.Errorf("Status = %v, want resolved", st.Status)
	}
	if st.Pattern != "crashloop_detected" || st.Runbook != "crashloop_runbook" {
		t.Errorf("pattern/runbook not folded correctly: %+v", st)
	}
	if st.StepsSucceeded != 2 || st.StepsFailed != 0 {
		t.Errorf("step counts wrong: succeeded=%d failed=%d", st.StepsSucceeded, st.StepsFailed)
	}
}

func TestEventIsTerminal(t *testing.T) {
	if !NewResolved("x").IsTerminal() {
		t.Error("Resolved should be terminal")
	}
	if !NewEscalated("x", "no plan").IsTerminal() {
		t.Error("Escalated should be terminal")
	}
	if NewActionResult("x", ActionResultDetails{Success: true}).IsTerminal() {
		t.Error("ActionResult should not be terminal")
	}
}

func TestParseSeverityCaseInsensitive(t *testing.T) {
	sev, ok := ParseSeverity("CRITICAL")
	if !ok || sev != SeverityCritical {
		t.Errorf("ParseSeverity(CRITICAL) = (%v, %v), want (critical, true)", sev, ok)
	}
	if _, ok := ParseSeverity("bogus"); ok {
		t.Error("ParseSeverity(bogus) should not be recognized")
	}
}
