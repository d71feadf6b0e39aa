package types

// Effect classifies the side-effect severity of an action, per spec §3.
// The ordering Pure < Observe < Mutate < Irreversible is meaningful: the
// planner's monotonicity invariant (I-5 in spec §3) and the executor's
// snapshot/approval gating both depend on comparing Effect values.
type Effect int

const (
	Pure Effect = iota
	Observe
	Mutate
	Irreversible
)

func (e Effect) String() string {
	switch e {
	case Pure:
		return "pure"
	case Observe:
		return "observe"
	case Mutate:
		return "mutate"
	case Irreversible:
		return "irreversible"
	default:
		return "unknown"
	}
}

// RecoveryPolicy describes how a TransientToolError is handled for an
// action of this effect (§7).
type RecoveryPolicy int

const (
	RecoveryRetry RecoveryPolicy = iota
	RecoveryCheckAndRetry
	RecoveryManualReview
)

func (r RecoveryPolicy) String() string {
	switch r {
	case RecoveryRetry:
		return "retry"
	case RecoveryCheckAndRetry:
		return "check_and_retry"
	case RecoveryManualReview:
		return "manual_review"
	default:
		return "unknown"
	}
}

// CostWeight returns the planner's cost multiplier for the effect (§3):
// {1, 2, 10, 100} for {Pure, Observe, Mutate, Irreversible}.
func (e Effect) CostWeight() int {
	switch e {
	case Pure:
		return 1
	case Observe:
		return 2
	case Mutate:
		return 10
	case Irreversible:
		return 100
	default:
		return 100
	}
}

// Recovery returns the recovery policy for the effect (§3: {Retry, Retry,
// CheckAndRetry, ManualReview} for {Pure, Observe, Mutate, Irreversible}).
func (e Effect) Recovery() RecoveryPolicy {
	switch e {
	case Pure, Observe:
		return RecoveryRetry
	case Mutate:
		return RecoveryCheckAndRetry
	case Irreversible:
		return RecoveryManualReview
	default:
		return RecoveryManualReview
	}
}

// Backtrackable reports whether a successfully-executed action of this
// effect can be undone by a compensation. True for Pure/Observe/Mutate,
// false for Irreversible (§3).
func (e Effect) Backtrackable() bool {
	return e != Irreversible
}
