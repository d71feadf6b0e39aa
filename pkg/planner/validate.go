package planner

import (
	apperrors "github.com/kubernaut-bdi/agent/internal/errors"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

// ValidateSequence checks whether a specific, ordered action-name
// sequence (as proposed by the LLM Proposer, spec §4.7) is directly
// executable from start and reaches goals, without searching. Used so
// the planner "either validates the exact sequence or falls back to its
// own search over the full action set" (spec §4.9 step 3).
func ValidateSequence(start types.BeliefState, goals []string, names []string, registry *types.Registry) (types.Plan, error) {
	state := start
	var steps []types.ActionSchema
	var totalCost float64

	for _, name := range names {
		action, ok := registry.Get(name)
		if !ok {
			return types.Plan{}, apperrors.Newf(apperrors.ErrorTypePlanning, "proposed action %q is not registered", name)
		}
		if !action.CheckPreconditions(state) {
			return types.Plan{}, apperrors.Newf(apperrors.ErrorTypePlanning, "proposed action %q preconditions not satisfied", name)
		}
		state = action.Apply(state)
		steps = append(steps, action)
		totalCost += action.WeightedCost()
	}

	if !state.Satisfies(goals) {
		return types.Plan{}, apperrors.New(apperrors.ErrorTypePlanning, "proposed sequence does not reach the goal")
	}

	return types.Plan{Steps: steps, TotalCost: totalCost}, nil
}
