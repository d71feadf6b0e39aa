package types

import (
	"encoding/json"
	"time"
)

// EventType enumerates the append-only event kinds of §3.
type EventType string

const (
	EventFactAsserted         EventType = "FactAsserted"
	EventFactRetracted        EventType = "FactRetracted"
	EventPatternMatched       EventType = "PatternMatched"
	EventPlanSelected         EventType = "PlanSelected"
	EventActionIntent         EventType = "ActionIntent"
	EventActionResult         EventType = "ActionResult"
	EventSnapshotCaptured     EventType = "SnapshotCaptured"
	EventCompensationExecuted EventType = "CompensationExecuted"
	EventBacktrackInitiated   EventType = "BacktrackInitiated"
	EventEscalated            EventType = "Escalated"
	EventResolved             EventType = "Resolved"
)

// Event is the append-only record of §3. Details holds kind-specific
// payload as JSON, matching the `details TEXT JSON` column of the
// incidents.db schema (§6).
type Event struct {
	ID         int64           `json:"id" db:"id"`
	IncidentID string          `json:"incident_id" db:"incident_id"`
	Type       EventType       `json:"event_type" db:"event_type"`
	Description string         `json:"description" db:"description"`
	Details    json.RawMessage `json:"details,omitempty" db:"details"`
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
}

// IsTerminal reports whether this event type ends an incident's stream
// (invariant 3: exactly one of {Resolved, Escalated}).
func (e Event) IsTerminal() bool {
	return e.Type == EventResolved || e.Type == EventEscalated
}

func mustJSON(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// NewFactAsserted builds a FactAsserted event for the given incident.
func NewFactAsserted(incidentID, description string, fact Fact) Event {
	return Event{IncidentID: incidentID, Type: EventFactAsserted, Description: description, Details: mustJSON(fact)}
}

func NewFactRetracted(incidentID, description string) Event {
	return Event{IncidentID: incidentID, Type: EventFactRetracted, Description: description}
}

// PatternMatchedDetails is the Details payload for an EventPatternMatched.
type PatternMatchedDetails struct {
	Pattern string `json:"pattern"`
}

func NewPatternMatched(incidentID, pattern string) Event {
	return Event{
		IncidentID:  incidentID,
		Type:        EventPatternMatched,
		Description: "pattern matched: " + pattern,
		Details:     mustJSON(PatternMatchedDetails{Pattern: pattern}),
	}
}

// PlanSelectedDetails is the Details payload for an EventPlanSelected.
type PlanSelectedDetails struct {
	Runbook   string   `json:"runbook"`
	Steps     []string `json:"steps"`
	TotalCost float64  `json:"total_cost"`
}

func NewPlanSelected(incidentID string, d PlanSelectedDetails) Event {
	return Event{
		IncidentID:  incidentID,
		Type:        EventPlanSelected,
		Description: "plan selected: " + d.Runbook,
		Details:     mustJSON(d),
	}
}

// ActionIntentDetails is the Details payload for an EventActionIntent —
// the write-ahead barrier of §4.5, logged before any side effect.
type ActionIntentDetails struct {
	Action string `json:"action"`
	Effect string `json:"effect"`
	Step   int    `json:"step"`
}

func NewActionIntent(incidentID string, d ActionIntentDetails) Event {
	return Event{
		IncidentID:  incidentID,
		Type:        EventActionIntent,
		Description: "intent: " + d.Action,
		Details:     mustJSON(d),
	}
}

// ActionResultDetails is the Details payload for an EventActionResult.
type ActionResultDetails struct {
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Step    int    `json:"step"`
}

func NewActionResult(incidentID string, d ActionResultDetails) Event {
	desc := "result: " + d.Action + " succeeded"
	if !d.Success {
		desc = "result: " + d.Action + " failed"
	}
	return Event{IncidentID: incidentID, Type: EventActionResult, Description: desc, Details: mustJSON(d)}
}

// SnapshotCapturedDetails is the Details payload for an
// EventSnapshotCaptured, preceding every successful Mutate ActionResult
// (invariant 1).
type SnapshotCapturedDetails struct {
	Action string `json:"action"`
	Step   int    `json:"step"`
}

func NewSnapshotCaptured(incidentID string, d SnapshotCapturedDetails) Event {
	return Event{
		IncidentID:  incidentID,
		Type:        EventSnapshotCaptured,
		Description: "snapshot captured: " + d.Action,
		Details:     mustJSON(d),
	}
}

// CompensationExecutedDetails is the Details payload for an
// EventCompensationExecuted.
type CompensationExecutedDetails struct {
	Action  string `json:"action"`
	Step    int    `json:"step"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func NewCompensationExecuted(incidentID string, d CompensationExecutedDetails) Event {
	return Event{
		IncidentID:  incidentID,
		Type:        EventCompensationExecuted,
		Description: "compensated: " + d.Action,
		Details:     mustJSON(d),
	}
}

// BacktrackInitiatedDetails is the Details payload for an
// EventBacktrackInitiated.
type BacktrackInitiatedDetails struct {
	FromStep int    `json:"from_step"`
	Reason   string `json:"reason"`
}

func NewBacktrackInitiated(incidentID string, d BacktrackInitiatedDetails) Event {
	return Event{
		IncidentID:  incidentID,
		Type:        EventBacktrackInitiated,
		Description: "backtrack initiated: " + d.Reason,
		Details:     mustJSON(d),
	}
}

// EscalatedDetails is the Details payload for an EventEscalated.
type EscalatedDetails struct {
	Reason string `json:"reason"`
}

func NewEscalated(incidentID, reason string) Event {
	return Event{IncidentID: incidentID, Type: EventEscalated, Description: "escalated: " + reason, Details: mustJSON(EscalatedDetails{Reason: reason})}
}

func NewResolved(incidentID string) Event {
	return Event{IncidentID: incidentID, Type: EventResolved, Description: "resolved"}
}
