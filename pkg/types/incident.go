package types

import (
	"encoding/json"
	"fmt"
)

// IncidentStatus is the derived status of an incident's event stream.
type IncidentStatus string

const (
	StatusActive    IncidentStatus = "active"
	StatusResolved  IncidentStatus = "resolved"
	StatusEscalated IncidentStatus = "escalated"
)

// CrashloopIncidentID and LLMIncidentID build the identity strings named
// in §3: "crashloop:<pod>" or "llm:<timestamp>".
func CrashloopIncidentID(pod string) string { return fmt.Sprintf("crashloop:%s", pod) }
func OOMKillIncidentID(pod string) string   { return fmt.Sprintf("oomkill:%s", pod) }
func DeployIncidentID(deploy string) string { return fmt.Sprintf("deploy:%s", deploy) }
func LLMIncidentID(timestamp string) string { return fmt.Sprintf("llm:%s", timestamp) }

// IncidentState is the reconstructed view of an incident, folded from its
// event log (§3: "its state is reconstructed by folding its event log
// entries").
type IncidentState struct {
	ID             string
	Status         IncidentStatus
	Pattern        string
	Runbook        string
	StepsPlanned   int
	StepsSucceeded int
	StepsFailed    int
	EscalationReason string
	Events         []Event
}

// Fold reconstructs an IncidentState from an incident's ordered event
// stream (ascending append id, per §4.6's ordering invariant).
func Fold(incidentID string, events []Event) IncidentState {
	st := IncidentState{ID: incidentID, Status: StatusActive, Events: events}
	for _, e := range events {
		switch e.Type {
		case EventPatternMatched:
			var d PatternMatchedDetails
			if decodeDetails(e, &d) {
				st.Pattern = d.Pattern
			}
		case EventPlanSelected:
			var d PlanSelectedDetails
			if decodeDetails(e, &d) {
				st.Runbook = d.Runbook
				st.StepsPlanned = len(d.Steps)
			}
		case EventActionResult:
			var d ActionResultDetails
			if decodeDetails(e, &d) {
				if d.Success {
					st.StepsSucceeded++
				} else {
					st.StepsFailed++
				}
			}
		case EventEscalated:
			var d EscalatedDetails
			if decodeDetails(e, &d) {
				st.EscalationReason = d.Reason
			}
			st.Status = StatusEscalated
		case EventResolved:
			st.Status = StatusResolved
		}
	}
	return st
}

func decodeDetails(e Event, v interface{}) bool {
	if len(e.Details) == 0 {
		return false
	}
	return json.Unmarshal(e.Details, v) == nil
}
