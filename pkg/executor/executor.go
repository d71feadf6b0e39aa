// Package executor runs a Plan step by step with a write-ahead barrier,
// pre-mutation snapshotting, a LIFO compensation stack, and approval
// gating for Irreversible actions (spec §4.5).
package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/sony/gobreaker"

	apperrors "github.com/kubernaut-bdi/agent/internal/errors"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

// Snapshot is the opaque, tool-executor-defined pre-mutation state
// captured before a Mutate step runs, replayed by Compensate to undo it.
type Snapshot []byte

// ToolExecutor invokes one action against the real world (Kubernetes API,
// a metrics backend, ...). Snapshot is only called ahead of a Mutate
// step; Pure/Observe steps never snapshot.
type ToolExecutor interface {
	Invoke(ctx context.Context, action types.ActionSchema) error
	Snapshot(ctx context.Context, action types.ActionSchema) (Snapshot, error)
}

// Compensator undoes a previously successful Mutate step using its
// captured Snapshot.
type Compensator interface {
	Compensate(ctx context.Context, action types.ActionSchema, snapshot Snapshot) error
}

// EventAppender is the subset of pkg/eventlog.Store the executor needs,
// kept as a narrow interface to avoid an import cycle.
type EventAppender interface {
	Append(ctx context.Context, e types.Event) (int64, error)
}

// CompensationEntry is one row of the per-incident compensation stack
// (spec §9: "a bounded, per-incident vector holding (index, action_name,
// snapshot)").
type CompensationEntry struct {
	Index    int
	Action   types.ActionSchema
	Snapshot Snapshot
}

// ErrApprovalRequired is returned by Execute when a plan's next step is
// Irreversible and no approval token has been supplied for this
// incident (spec §4.5: "the executor refuses to invoke an Irreversible
// action unless ... an explicit approval token").
var ErrApprovalRequired = errors.New("irreversible action requires an approval token")

// Outcome is the terminal result of one Execute call.
type Outcome struct {
	Resolved bool
	// FailedStep is set when Resolved is false and the failure is not an
	// approval gate (see NeedsApproval).
	FailedStep int
	Err        error
	// NeedsApproval is set when execution stopped because step
	// NeedsApprovalStep is Irreversible and ungated.
	NeedsApproval     bool
	NeedsApprovalStep int
	// CompensationStack is handed back to the caller (the BDI loop) so it
	// can invoke Compensate on replan/backtrack.
	CompensationStack []CompensationEntry
}

// Config tunes per-tool-call behavior.
type Config struct {
	// ToolTimeout bounds a single Invoke call (spec §5 default 30s).
	ToolTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{ToolTimeout: 30 * time.Second}
}

// Executor runs plans for one agent instance, keeping one circuit
// breaker per action name so a persistently failing tool stops being
// retried immediately on every incident that reaches it.
type Executor struct {
	config      Config
	tools       ToolExecutor
	compensator Compensator
	events      EventAppender
	log         logr.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func New(config Config, tools ToolExecutor, compensator Compensator, events EventAppender, log logr.Logger) *Executor {
	if config.ToolTimeout <= 0 {
		config.ToolTimeout = DefaultConfig().ToolTimeout
	}
	return &Executor{
		config:      config,
		tools:       tools,
		compensator: compensator,
		events:      events,
		log:         log.WithName("executor"),
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (e *Executor) breakerFor(action string) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.breakers[action]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        action,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	e.breakers[action] = b
	return b
}

// Execute runs plan.Steps in order for incidentID, starting from an
// empty compensation stack. approved authorizes exactly one Irreversible
// step (spec §4.8: "Approve authorizes one Irreversible action").
func (e *Executor) Execute(ctx context.Context, incidentID string, plan types.Plan, approved bool) Outcome {
	var stack []CompensationEntry
	approvalConsumed := false

	for i, action := range plan.Steps {
		if action.Effect == types.Irreversible {
			if approvalConsumed || !approved {
				return Outcome{NeedsApproval: true, NeedsApprovalStep: i, Err: ErrApprovalRequired, CompensationStack: stack}
			}
			approvalConsumed = true
		}

		e.append(ctx, types.NewActionIntent(incidentID, types.ActionIntentDetails{
			Action: action.Name, Effect: action.Effect.String(), Step: i,
		}))

		var snapshot Snapshot
		if action.Effect == types.Mutate {
			snap, err := e.tools.Snapshot(ctx, action)
			if err != nil {
				e.append(ctx, types.NewActionResult(incidentID, types.ActionResultDetails{Action: action.Name, Success: false, Error: err.Error(), Step: i}))
				return Outcome{FailedStep: i, Err: apperrors.Wrapf(err, apperrors.ErrorTypeExecution, "capture snapshot for %s", action.Name), CompensationStack: stack}
			}
			snapshot = snap
			e.append(ctx, types.NewSnapshotCaptured(incidentID, types.SnapshotCapturedDetails{Action: action.Name, Step: i}))
		}

		if err := e.invoke(ctx, action); err != nil {
			e.append(ctx, types.NewActionResult(incidentID, types.ActionResultDetails{Action: action.Name, Success: false, Error: err.Error(), Step: i}))
			return Outcome{FailedStep: i, Err: err, CompensationStack: stack}
		}

		e.append(ctx, types.NewActionResult(incidentID, types.ActionResultDetails{Action: action.Name, Success: true, Step: i}))
		if action.Effect == types.Mutate {
			stack = append(stack, CompensationEntry{Index: i, Action: action, Snapshot: snapshot})
		}
	}

	return Outcome{Resolved: true, CompensationStack: stack}
}

// invoke calls the tool through this action's circuit breaker, applying
// the Effect's recovery policy (spec §7): Pure/Observe retry immediately
// once; Mutate also retries the same call once, without re-fetching
// resource state or comparing it to the pre-action snapshot first;
// Irreversible never retries.
func (e *Executor) invoke(ctx context.Context, action types.ActionSchema) error {
	breaker := e.breakerFor(action.Name)
	call := func() error {
		ctx, cancel := context.WithTimeout(ctx, e.config.ToolTimeout)
		defer cancel()
		_, err := breaker.Execute(func() (interface{}, error) {
			return nil, e.tools.Invoke(ctx, action)
		})
		return err
	}

	err := call()
	if err == nil {
		return nil
	}

	switch action.Effect.Recovery() {
	case types.RecoveryRetry, types.RecoveryCheckAndRetry:
		e.log.V(1).Info("tool invocation failed, retrying once", "action", action.Name, "error", err.Error())
		if retryErr := call(); retryErr == nil {
			return nil
		}
		return apperrors.TransientTool(err, action.Name)
	default:
		return apperrors.TransientTool(err, action.Name)
	}
}

// Compensate runs the given compensation stack in reverse insertion
// order (spec §4.5). A compensation that itself fails is logged and
// surfaced but does not block subsequent compensations.
func (e *Executor) Compensate(ctx context.Context, incidentID string, stack []CompensationEntry) []error {
	var errs []error
	for i := len(stack) - 1; i >= 0; i-- {
		entry := stack[i]
		e.append(ctx, types.NewBacktrackInitiated(incidentID, types.BacktrackInitiatedDetails{
			FromStep: entry.Index, Reason: "step execution failed downstream",
		}))

		err := e.compensator.Compensate(ctx, entry.Action, entry.Snapshot)
		success := err == nil
		details := types.CompensationExecutedDetails{Action: entry.Action.Name, Step: entry.Index, Success: success}
		if !success {
			details.Error = err.Error()
			errs = append(errs, apperrors.Wrapf(err, apperrors.ErrorTypeCompensation, "compensate %s", entry.Action.Name))
			e.log.Error(err, "compensation failed, continuing with remaining stack", "action", entry.Action.Name)
		}
		e.append(ctx, types.NewCompensationExecuted(incidentID, details))
	}
	return errs
}

func (e *Executor) append(ctx context.Context, event types.Event) {
	if _, err := e.events.Append(ctx, event); err != nil {
		e.log.Error(err, "failed to append event", "incident_id", event.IncidentID, "event_type", event.Type)
	}
}
