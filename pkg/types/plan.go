package types

// Plan is the planner's (§4.4) output: an ordered sequence of
// ActionSchemas with a precomputed total weighted cost.
type Plan struct {
	Steps     []ActionSchema
	TotalCost float64
}

func (p Plan) StepNames() []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Name
	}
	return names
}
