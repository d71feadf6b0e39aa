// Package ruleengine is the deterministic pattern matcher of spec §4.3: a
// small Datalog-style evaluator with stratified negation (the
// already_handling guard on crashloop_detected/oomkill_detected) and a
// priority lattice selecting the single best incident to act on.
//
// Rather than a general incremental (semi-naive) fixpoint evaluator,
// derived relations are recomputed fully on every Run — the expected
// cardinality is tens of rows (spec §9), so recompute-from-scratch is
// cheap and trivially satisfies the idempotence contract. Run still
// reports only the relations that changed since the previous call, so
// callers observe the same "yields all changed derivations" behavior an
// incremental evaluator would produce.
package ruleengine

import (
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"github.com/kubernaut-bdi/agent/pkg/types"
)

// Result is the outcome of one Engine.Run call: the relations that
// changed since the prior run, plus the current best_incident (if any).
type Result struct {
	Added   []Derivation
	Removed []Derivation
	Best    *IncidentCandidate
}

// Engine holds the current input relations and the last computed set of
// derived relations, for diffing on the next Run.
type Engine struct {
	mu    sync.Mutex
	store *store
	prev  map[string]Derivation
	log   logr.Logger
}

func New(log logr.Logger) *Engine {
	return &Engine{
		store: newStore(),
		prev:  make(map[string]Derivation),
		log:   log.WithName("ruleengine"),
	}
}

// Assert adds or updates an input Fact, then re-runs derivation to a
// fixpoint (spec §4.3's "after each fact update" contract).
func (e *Engine) Assert(f types.Fact) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.assert(f)
	return e.run()
}

// RetractPod removes a pod fact by identity and re-runs derivation.
func (e *Engine) RetractPod(namespace, name string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.retractPod(namespace, name)
	return e.run()
}

// RetractDeploy removes a deploy fact by identity and re-runs derivation.
func (e *Engine) RetractDeploy(namespace, name string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.retractDeploy(namespace, name)
	return e.run()
}

// MarkHandling asserts already_handling(incidentID), suppressing further
// crashloop_detected/oomkill_detected derivations for that incident
// until Unmark is called. Called by the BDI loop once a runbook has been
// selected for an incident (spec §4.9 step 2).
func (e *Engine) MarkHandling(incidentID string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.markHandling(incidentID)
	return e.run()
}

// Unmark retracts already_handling(incidentID), e.g. once an incident
// resolves or escalates and a fresh occurrence should be treated anew.
func (e *Engine) Unmark(incidentID string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.clearHandling(incidentID)
	return e.run()
}

// run recomputes every derived relation, diffs against the previous
// call's result, and returns the changed set plus the current
// best_incident. Callers must hold e.mu.
func (e *Engine) run() Result {
	crashloop := crashloopDetected(e.store)
	oomkill := oomkillDetected(e.store)
	badDeploy := suspectBadDeploy(e.store)
	errorRate := highErrorRate(e.store)
	correlated := deployCorrelatedError(errorRate, badDeploy)

	all := make([]Derivation, 0, len(crashloop)+len(oomkill)+len(badDeploy)+len(errorRate)+len(correlated))
	all = append(all, crashloop...)
	all = append(all, oomkill...)
	all = append(all, badDeploy...)
	all = append(all, errorRate...)
	all = append(all, correlated...)
	sort.Slice(all, func(i, j int) bool { return all[i].key() < all[j].key() })

	current := make(map[string]Derivation, len(all))
	for _, d := range all {
		current[d.key()] = d
	}

	var added, removed []Derivation
	for k, d := range current {
		if _, ok := e.prev[k]; !ok {
			added = append(added, d)
		}
	}
	for k, d := range e.prev {
		if _, ok := current[k]; !ok {
			removed = append(removed, d)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i].key() < added[j].key() })
	sort.Slice(removed, func(i, j int) bool { return removed[i].key() < removed[j].key() })
	e.prev = current

	var best *IncidentCandidate
	if b, ok := bestIncident(all); ok {
		best = &b
	}

	if len(added) > 0 || len(removed) > 0 {
		e.log.V(1).Info("derivations changed", "added", len(added), "removed", len(removed))
	}

	return Result{Added: added, Removed: removed, Best: best}
}

// Derivations returns the full current derived relation set, used by
// pkg/bdiagent.
func (e *Engine) Derivations() []Derivation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Derivation, 0, len(e.prev))
	for _, d := range e.prev {
		out = append(out, d)
	}
	return sortedDerivations(out)
}
