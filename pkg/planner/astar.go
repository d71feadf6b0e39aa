// Package planner implements the A* search over belief states described
// in spec §4.4: given an initial BeliefState, a set of goal propositions,
// and a set of available ActionSchemas, find the lowest-weighted-cost
// sequence of actions reaching the goal.
package planner

import (
	"container/heap"
	"sort"

	"github.com/kubernaut-bdi/agent/pkg/types"
)

// Plan searches for a sequence of actions from start reaching every
// proposition in goals. Returns (plan, true) on success, (zero, false)
// if the goal is unreachable from start using the given actions.
//
// Successor ordering is stable (sorted by action name) so equal-cost
// plans resolve identically across runs (spec §4.4's determinism
// requirement). Ties in the priority queue additionally break on lower
// successor Effect, preferring the least-severe action among equally
// good options.
func Plan(start types.BeliefState, goals []string, actions []types.ActionSchema) (types.Plan, bool) {
	sorted := make([]types.ActionSchema, len(actions))
	copy(sorted, actions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	startNode := &node{state: start, g: 0, h: heuristic(start, goals)}
	open := &priorityQueue{startNode}
	heap.Init(open)

	closed := make(map[string]float64) // state key -> best g seen
	closed[start.Key()] = 0

	for open.Len() > 0 {
		current := heap.Pop(open).(*node)

		if current.state.Satisfies(goals) {
			return buildPlan(current), true
		}

		for _, action := range sorted {
			if !action.CheckPreconditions(current.state) {
				continue
			}
			next := action.Apply(current.state)
			g := current.g + action.WeightedCost()
			key := next.Key()
			if bestG, seen := closed[key]; seen && bestG <= g {
				continue
			}
			closed[key] = g
			heap.Push(open, &node{
				state:  next,
				g:      g,
				h:      heuristic(next, goals),
				step:   action,
				parent: current,
			})
		}
	}

	return types.Plan{}, false
}

// heuristic is the admissible "count of missing goal propositions"
// function named in spec §4.4: each action adds at most one goal
// proposition under our ActionSchemas, so this never overestimates.
func heuristic(state types.BeliefState, goals []string) float64 {
	return float64(len(state.Missing(goals)))
}

type node struct {
	state  types.BeliefState
	g, h   float64
	step   types.ActionSchema
	parent *node
}

func (n *node) f() float64 { return n.g + n.h }

func buildPlan(n *node) types.Plan {
	var steps []types.ActionSchema
	totalCost := n.g
	for cur := n; cur.parent != nil; cur = cur.parent {
		steps = append([]types.ActionSchema{cur.step}, steps...)
	}
	return types.Plan{Steps: steps, TotalCost: totalCost}
}

// priorityQueue orders nodes by f() ascending, tie-breaking on the
// effect of the action that produced the node (lower-severity effect
// preferred), then on action name for full determinism.
type priorityQueue []*node

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].f() != pq[j].f() {
		return pq[i].f() < pq[j].f()
	}
	if pq[i].step.Effect != pq[j].step.Effect {
		return pq[i].step.Effect < pq[j].step.Effect
	}
	return pq[i].step.Name < pq[j].step.Name
}

func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x interface{}) {
	*pq = append(*pq, x.(*node))
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}
