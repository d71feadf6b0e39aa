package ruleengine

import (
	"fmt"
	"sort"

	"github.com/kubernaut-bdi/agent/pkg/types"
)

// Derivation is one row of a derived relation, named in spec §4.3
// (crashloop_detected, suspect_bad_deploy, ...).
type Derivation struct {
	Relation string
	Args     []string
}

func (d Derivation) key() string {
	k := d.Relation
	for _, a := range d.Args {
		k += "\x1f" + a
	}
	return k
}

// String renders a Derivation as "relation(arg1, arg2)" for logs and the
// PatternMatched event description.
func (d Derivation) String() string {
	s := d.Relation + "("
	for i, a := range d.Args {
		if i > 0 {
			s += ", "
		}
		s += a
	}
	return s + ")"
}

const crashloopRestartThreshold = 5

// crashloopDetected implements: pod with restart_count > 5 and phase ∈
// {Running, Failed}, guarded by already_handling not present.
func crashloopDetected(s *store) []Derivation {
	var out []Derivation
	for _, p := range s.pods {
		if p.RestartCount <= crashloopRestartThreshold {
			continue
		}
		if p.Phase != types.PodRunning && p.Phase != types.PodFailed {
			continue
		}
		incidentID := types.CrashloopIncidentID(p.Name)
		if s.alreadyHandling[incidentID] {
			continue
		}
		out = append(out, Derivation{Relation: "crashloop_detected", Args: []string{p.Name, p.Namespace}})
	}
	return sortedDerivations(out)
}

// oomkillDetected implements: pod with termination_reason "OOMKilled".
// §9 notes the source rule never actually tests this field; this spec
// implements the predicate correctly against termination_reason.
func oomkillDetected(s *store) []Derivation {
	var out []Derivation
	for _, p := range s.pods {
		if p.TerminationReason != "OOMKilled" {
			continue
		}
		incidentID := types.OOMKillIncidentID(p.Name)
		if s.alreadyHandling[incidentID] {
			continue
		}
		out = append(out, Derivation{Relation: "oomkill_detected", Args: []string{p.Name, p.Namespace}})
	}
	return sortedDerivations(out)
}

// suspectBadDeploy implements: deploy with available < replicas.
func suspectBadDeploy(s *store) []Derivation {
	var out []Derivation
	for _, d := range s.deploys {
		if d.Available >= d.Replicas {
			continue
		}
		out = append(out, Derivation{Relation: "suspect_bad_deploy", Args: []string{d.Name, d.Namespace}})
	}
	return sortedDerivations(out)
}

// highErrorRate implements: metric with name prefix error_rate: and
// value > 0.05, already projected into store.errorRateServices.
func highErrorRate(s *store) []Derivation {
	var out []Derivation
	for svc, above := range s.errorRateServices {
		if !above {
			continue
		}
		out = append(out, Derivation{Relation: "high_error_rate", Args: []string{svc}})
	}
	return sortedDerivations(out)
}

// deployCorrelatedError implements: high_error_rate(_) ∧
// suspect_bad_deploy(d, ns) — any elevated error rate combined with any
// suspect deploy.
func deployCorrelatedError(errorRates, badDeploys []Derivation) []Derivation {
	if len(errorRates) == 0 {
		return nil
	}
	var out []Derivation
	for _, d := range badDeploys {
		out = append(out, Derivation{Relation: "deploy_correlated_error", Args: []string{d.Args[0], d.Args[1]}})
	}
	return sortedDerivations(out)
}

func sortedDerivations(d []Derivation) []Derivation {
	sort.Slice(d, func(i, j int) bool { return d[i].key() < d[j].key() })
	return d
}

// IncidentCandidate is one row of the best_incident priority lattice
// relation (spec §4.3).
type IncidentCandidate struct {
	IncidentID string
	Runbook    string
	Priority   int
}

// priorities assigns each derivation relation a fixed urgency, lower
// value wins. deploy_correlated_error outranks a lone suspect_bad_deploy
// since a correlated error rate is stronger evidence of a bad rollout.
var priorities = map[string]int{
	"oomkill_detected":        10,
	"crashloop_detected":      20,
	"deploy_correlated_error": 30,
	"suspect_bad_deploy":      40,
}

var runbookFor = map[string]string{
	"oomkill_detected":        "oomkill_runbook",
	"crashloop_detected":      "crashloop_runbook",
	"deploy_correlated_error": "deploy_rollback_runbook",
	"suspect_bad_deploy":      "deploy_rollback_runbook",
}

func incidentIDFor(d Derivation) string {
	switch d.Relation {
	case "oomkill_detected":
		return types.OOMKillIncidentID(d.Args[0])
	case "crashloop_detected":
		return types.CrashloopIncidentID(d.Args[0])
	case "deploy_correlated_error", "suspect_bad_deploy":
		return types.DeployIncidentID(d.Args[0])
	default:
		return fmt.Sprintf("%s:%v", d.Relation, d.Args)
	}
}

// bestIncident implements the priority lattice: best_incident(incident_id,
// runbook_name, priority) with minimum priority winning and lexicographic
// incident_id as the deterministic tie-break (spec §4.3, §9).
func bestIncident(all []Derivation) (IncidentCandidate, bool) {
	var candidates []IncidentCandidate
	for _, d := range all {
		prio, ok := priorities[d.Relation]
		if !ok {
			continue
		}
		candidates = append(candidates, IncidentCandidate{
			IncidentID: incidentIDFor(d),
			Runbook:    runbookFor[d.Relation],
			Priority:   prio,
		})
	}
	if len(candidates) == 0 {
		return IncidentCandidate{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].IncidentID < candidates[j].IncidentID
	})
	return candidates[0], true
}
