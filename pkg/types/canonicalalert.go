package types

import "time"

// CanonicalAlert is the alert.v1 wire schema (§3, §6): the normalized
// shape every webhook adapter (generic, Alertmanager, Datadog, PagerDuty)
// translates its provider-specific payload into before it becomes an
// AlertFact.
type CanonicalAlert struct {
	Schema     string            `json:"schema" validate:"required,eq=alert.v1"`
	ID         string            `json:"id" validate:"required"`
	Title      string            `json:"title" validate:"required"`
	Severity   string            `json:"severity" validate:"required"`
	Tags       map[string]string `json:"tags"`
	Source     string            `json:"source" validate:"required"`
	OccurredAt time.Time         `json:"occurred_at" validate:"required"`
}

const CanonicalAlertSchema = "alert.v1"

// ToFact converts a validated CanonicalAlert into an AlertFact. Callers
// must validate the alert first (factregistry.Registry.ValidateAlert); this method
// assumes the severity has already been normalized.
func (a CanonicalAlert) ToFact() Fact {
	sev, _ := ParseSeverity(a.Severity)
	return NewAlertFact(AlertFact{
		ID:         a.ID,
		Source:     AlertSource(a.Source),
		Severity:   sev,
		Title:      a.Title,
		Tags:       a.Tags,
		ReceivedAt: a.OccurredAt,
	})
}
