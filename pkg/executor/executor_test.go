package executor_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-logr/logr"

	"github.com/kubernaut-bdi/agent/pkg/executor"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

// fakeTools is a scripted ToolExecutor/Compensator: each action name maps
// to a queue of results consumed one per Invoke call, so tests can model
// "fails once then succeeds" retry behavior deterministically.
type fakeTools struct {
	mu          sync.Mutex
	results     map[string][]error
	invocations []string
	compensated []string
	snapshotErr error
}

func newFakeTools() *fakeTools {
	return &fakeTools{results: make(map[string][]error)}
}

func (f *fakeTools) script(action string, errs ...error) {
	f.results[action] = errs
}

func (f *fakeTools) Invoke(ctx context.Context, action types.ActionSchema) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invocations = append(f.invocations, action.Name)
	queue := f.results[action.Name]
	if len(queue) == 0 {
		return nil
	}
	next := queue[0]
	f.results[action.Name] = queue[1:]
	return next
}

func (f *fakeTools) Snapshot(ctx context.Context, action types.ActionSchema) (executor.Snapshot, error) {
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return executor.Snapshot(`{"replicas":2}`), nil
}

func (f *fakeTools) Compensate(ctx context.Context, action types.ActionSchema, snapshot executor.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compensated = append(f.compensated, action.Name)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []types.Event
}

func (f *fakeEvents) Append(ctx context.Context, e types.Event) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return int64(len(f.events)), nil
}

func (f *fakeEvents) types_(t types.EventType) []types.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Event
	for _, e := range f.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func observePlan() types.Plan {
	return types.Plan{Steps: []types.ActionSchema{
		{Name: "get_pod_logs", Effect: types.Observe},
		{Name: "get_pod_events", Effect: types.Observe},
	}}
}

func mutatePlan() types.Plan {
	return types.Plan{Steps: []types.ActionSchema{
		{Name: "get_pod_logs", Effect: types.Observe},
		{Name: "restart_deployment", Effect: types.Mutate},
		{Name: "verify_recovery", Effect: types.Observe},
	}}
}

func TestExecuteResolvesOnAllStepsSucceeding(t *testing.T) {
	tools := newFakeTools()
	events := &fakeEvents{}
	exec := executor.New(executor.DefaultConfig(), tools, tools, events, logr.Discard())

	outcome := exec.Execute(context.Background(), "inc-1", observePlan(), false)

	if !outcome.Resolved {
		t.Fatalf("expected Resolved, got %+v", outcome)
	}
	if len(outcome.CompensationStack) != 0 {
		t.Errorf("observe-only plan should push no compensation entries, got %d", len(outcome.CompensationStack))
	}
}

func TestExecuteLogsIntentBeforeInvoking(t *testing.T) {
	tools := newFakeTools()
	events := &fakeEvents{}
	exec := executor.New(executor.DefaultConfig(), tools, tools, events, logr.Discard())

	exec.Execute(context.Background(), "inc-2", observePlan(), false)

	intents := events.types_(types.EventActionIntent)
	if len(intents) != 2 {
		t.Fatalf("expected 2 ActionIntent events, got %d", len(intents))
	}
	results := events.types_(types.EventActionResult)
	if len(results) != 2 {
		t.Fatalf("expected 2 ActionResult events, got %d", len(results))
	}
}

func TestExecuteSnapshotsBeforeMutateAndPushesCompensation(t *testing.T) {
	tools := newFakeTools()
	events := &fakeEvents{}
	exec := executor.New(executor.DefaultConfig(), tools, tools, events, logr.Discard())

	outcome := exec.Execute(context.Background(), "inc-3", mutatePlan(), false)

	if !outcome.Resolved {
		t.Fatalf("expected Resolved, got %+v", outcome)
	}
	if len(outcome.CompensationStack) != 1 {
		t.Fatalf("expected exactly one compensation entry for the single Mutate step, got %d", len(outcome.CompensationStack))
	}
	if outcome.CompensationStack[0].Action.Name != "restart_deployment" {
		t.Errorf("compensation entry action = %q, want restart_deployment", outcome.CompensationStack[0].Action.Name)
	}
	snaps := events.types_(types.EventSnapshotCaptured)
	if len(snaps) != 1 {
		t.Errorf("expected 1 SnapshotCaptured event, got %d", len(snaps))
	}
}

func TestExecuteIrreversibleStepWithoutApprovalStopsAndReturnsNeedsApproval(t *testing.T) {
	tools := newFakeTools()
	events := &fakeEvents{}
	exec := executor.New(executor.DefaultConfig(), tools, tools, events, logr.Discard())

	plan := types.Plan{Steps: []types.ActionSchema{
		{Name: "get_pod_logs", Effect: types.Observe},
		{Name: "delete_namespace", Effect: types.Irreversible},
	}}

	outcome := exec.Execute(context.Background(), "inc-4", plan, false)

	if !outcome.NeedsApproval {
		t.Fatalf("expected NeedsApproval, got %+v", outcome)
	}
	if outcome.NeedsApprovalStep != 1 {
		t.Errorf("NeedsApprovalStep = %d, want 1", outcome.NeedsApprovalStep)
	}
	for _, name := range tools.invocations {
		if name == "delete_namespace" {
			t.Fatal("irreversible action must not be invoked without approval")
		}
	}
}

func TestExecuteIrreversibleStepWithApprovalRuns(t *testing.T) {
	tools := newFakeTools()
	events := &fakeEvents{}
	exec := executor.New(executor.DefaultConfig(), tools, tools, events, logr.Discard())

	plan := types.Plan{Steps: []types.ActionSchema{
		{Name: "delete_namespace", Effect: types.Irreversible},
	}}

	outcome := exec.Execute(context.Background(), "inc-5", plan, true)

	if !outcome.Resolved {
		t.Fatalf("expected Resolved with approval granted, got %+v", outcome)
	}
}

func TestExecuteApprovalOnlyAuthorizesOneIrreversibleStep(t *testing.T) {
	tools := newFakeTools()
	events := &fakeEvents{}
	exec := executor.New(executor.DefaultConfig(), tools, tools, events, logr.Discard())

	plan := types.Plan{Steps: []types.ActionSchema{
		{Name: "delete_namespace", Effect: types.Irreversible},
		{Name: "delete_cluster", Effect: types.Irreversible},
	}}

	outcome := exec.Execute(context.Background(), "inc-6", plan, true)

	if !outcome.NeedsApproval {
		t.Fatalf("expected second Irreversible step to require its own approval, got %+v", outcome)
	}
	if outcome.NeedsApprovalStep != 1 {
		t.Errorf("NeedsApprovalStep = %d, want 1", outcome.NeedsApprovalStep)
	}
}

func TestExecuteRetriesOnceOnTransientFailureThenSucceeds(t *testing.T) {
	tools := newFakeTools()
	tools.script("get_pod_events", errors.New("connection reset"))
	events := &fakeEvents{}
	exec := executor.New(executor.DefaultConfig(), tools, tools, events, logr.Discard())

	outcome := exec.Execute(context.Background(), "inc-7", observePlan(), false)

	if !outcome.Resolved {
		t.Fatalf("expected Resolved after one retry, got %+v", outcome)
	}
	count := 0
	for _, name := range tools.invocations {
		if name == "get_pod_events" {
			count++
		}
	}
	if count != 2 {
		t.Errorf("get_pod_events invoked %d times, want 2 (initial + one retry)", count)
	}
}

func TestExecuteFailsStepAfterRetryExhausted(t *testing.T) {
	tools := newFakeTools()
	tools.script("get_pod_events", errors.New("down"), errors.New("still down"))
	events := &fakeEvents{}
	exec := executor.New(executor.DefaultConfig(), tools, tools, events, logr.Discard())

	outcome := exec.Execute(context.Background(), "inc-8", observePlan(), false)

	if outcome.Resolved {
		t.Fatal("expected execution to fail once retry is also exhausted")
	}
	if outcome.FailedStep != 1 {
		t.Errorf("FailedStep = %d, want 1", outcome.FailedStep)
	}
}

func TestExecuteStopsOnMutateStepFailureKeepingPriorCompensationEntries(t *testing.T) {
	tools := newFakeTools()
	tools.script("verify_recovery", errors.New("still crashlooping"), errors.New("still crashlooping"))
	events := &fakeEvents{}
	exec := executor.New(executor.DefaultConfig(), tools, tools, events, logr.Discard())

	outcome := exec.Execute(context.Background(), "inc-9", mutatePlan(), false)

	if outcome.Resolved {
		t.Fatal("expected Resolved false when verify_recovery fails")
	}
	if len(outcome.CompensationStack) != 1 {
		t.Fatalf("expected the restart_deployment compensation entry to survive, got %d", len(outcome.CompensationStack))
	}
}

func TestCompensateRunsStackInReverseOrder(t *testing.T) {
	tools := newFakeTools()
	events := &fakeEvents{}
	exec := executor.New(executor.DefaultConfig(), tools, tools, events, logr.Discard())

	stack := []executor.CompensationEntry{
		{Index: 0, Action: types.ActionSchema{Name: "first"}},
		{Index: 1, Action: types.ActionSchema{Name: "second"}},
	}

	errs := exec.Compensate(context.Background(), "inc-10", stack)
	if len(errs) != 0 {
		t.Fatalf("expected no compensation errors, got %v", errs)
	}
	want := []string{"second", "first"}
	if len(tools.compensated) != len(want) {
		t.Fatalf("compensated = %v, want %v", tools.compensated, want)
	}
	for i := range want {
		if tools.compensated[i] != want[i] {
			t.Errorf("compensation order[%d] = %q, want %q", i, tools.compensated[i], want[i])
		}
	}
}

// failingCompensator always fails, used to verify compensation failures
// don't halt the remaining stack.
type failingCompensator struct{ attempts []string }

func (f *failingCompensator) Compensate(ctx context.Context, action types.ActionSchema, snapshot executor.Snapshot) error {
	f.attempts = append(f.attempts, action.Name)
	return errors.New("rollback target unreachable")
}

func TestCompensateContinuesPastFailureAndReportsAllErrors(t *testing.T) {
	tools := newFakeTools()
	compensator := &failingCompensator{}
	events := &fakeEvents{}
	exec := executor.New(executor.DefaultConfig(), tools, compensator, events, logr.Discard())

	stack := []executor.CompensationEntry{
		{Index: 0, Action: types.ActionSchema{Name: "first"}},
		{Index: 1, Action: types.ActionSchema{Name: "second"}},
	}

	errs := exec.Compensate(context.Background(), "inc-11", stack)
	if len(errs) != 2 {
		t.Fatalf("expected 2 compensation errors, got %d", len(errs))
	}
	if len(compensator.attempts) != 2 {
		t.Fatalf("expected both entries to be attempted despite failures, got %v", compensator.attempts)
	}
}
