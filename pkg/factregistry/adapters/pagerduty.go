package adapters

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/kubernaut-bdi/agent/internal/errors"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

// pagerdutyWebhook mirrors the subset of a PagerDuty v3 webhook event
// payload this adapter consumes.
type pagerdutyWebhook struct {
	Event struct {
		ID        string    `json:"id"`
		EventType string    `json:"event_type"`
		OccurredAt time.Time `json:"occurred_at"`
		Data      struct {
			ID         string `json:"id"`
			Type       string `json:"type"`
			Attributes struct {
				Title   string `json:"title"`
				Urgency string `json:"urgency"`
				Service struct {
					Summary string `json:"summary"`
				} `json:"service"`
			} `json:"attributes"`
		} `json:"data"`
	} `json:"event"`
}

// pagerdutyUrgency maps PagerDuty's two-level urgency scale to the
// canonical severity scale; PagerDuty itself carries no richer signal.
var pagerdutyUrgency = map[string]string{
	"high": "high",
	"low":  "low",
}

type PagerDutyAdapter struct{}

func NewPagerDutyAdapter() *PagerDutyAdapter { return &PagerDutyAdapter{} }

func (a *PagerDutyAdapter) Name() string  { return "pagerduty" }
func (a *PagerDutyAdapter) Route() string { return "/webhook/pagerduty" }

func (a *PagerDutyAdapter) Parse(_ context.Context, body []byte) ([]types.CanonicalAlert, error) {
	var raw pagerdutyWebhook
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "malformed pagerduty webhook payload")
	}
	if !strings.HasPrefix(raw.Event.EventType, "incident.") {
		return nil, apperrors.Validation("unsupported pagerduty event_type: " + raw.Event.EventType)
	}

	sev, ok := pagerdutyUrgency[strings.ToLower(raw.Event.Data.Attributes.Urgency)]
	if !ok {
		sev = "medium"
	}

	occurred := raw.Event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	alert := types.CanonicalAlert{
		Schema:     types.CanonicalAlertSchema,
		ID:         raw.Event.Data.ID,
		Title:      raw.Event.Data.Attributes.Title,
		Severity:   sev,
		Tags:       map[string]string{"service": raw.Event.Data.Attributes.Service.Summary, "event_type": raw.Event.EventType},
		Source:     "pagerduty",
		OccurredAt: occurred,
	}
	return []types.CanonicalAlert{alert}, nil
}
