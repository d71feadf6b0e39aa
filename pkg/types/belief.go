package types

import "sort"

// BeliefState is the set of ground propositions currently derivable from
// the rule engine (§3). It is small (tens of propositions), hashable, and
// compared by set equality.
type BeliefState map[string]struct{}

func NewBeliefState(props ...string) BeliefState {
	bs := make(BeliefState, len(props))
	for _, p := range props {
		bs[p] = struct{}{}
	}
	return bs
}

func (b BeliefState) Has(prop string) bool {
	_, ok := b[prop]
	return ok
}

func (b BeliefState) With(prop string) BeliefState {
	out := b.Clone()
	out[prop] = struct{}{}
	return out
}

func (b BeliefState) Without(prop string) BeliefState {
	out := b.Clone()
	delete(out, prop)
	return out
}

func (b BeliefState) Clone() BeliefState {
	out := make(BeliefState, len(b))
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

// Satisfies reports whether every proposition in goals is present in b —
// the planner's goal test (§4.4).
func (b BeliefState) Satisfies(goals []string) bool {
	for _, g := range goals {
		if !b.Has(g) {
			return false
		}
	}
	return true
}

// Missing returns the subset of goals not present in b, used by the
// planner's admissible heuristic (count of missing goal propositions).
func (b BeliefState) Missing(goals []string) []string {
	var missing []string
	for _, g := range goals {
		if !b.Has(g) {
			missing = append(missing, g)
		}
	}
	return missing
}

// Key returns a stable, sorted string encoding of the state suitable as a
// map key for the planner's closed set (BeliefState equality, §4.4).
func (b BeliefState) Key() string {
	props := make([]string, 0, len(b))
	for p := range b {
		props = append(props, p)
	}
	sort.Strings(props)
	key := ""
	for i, p := range props {
		if i > 0 {
			key += "\x1f"
		}
		key += p
	}
	return key
}

// Equal reports set equality between two belief states.
func (b BeliefState) Equal(other BeliefState) bool {
	return b.Key() == other.Key()
}

// Slice returns the sorted propositions, useful for deterministic
// rendering in events and UI responses.
func (b BeliefState) Slice() []string {
	props := make([]string, 0, len(b))
	for p := range b {
		props = append(props, p)
	}
	sort.Strings(props)
	return props
}
