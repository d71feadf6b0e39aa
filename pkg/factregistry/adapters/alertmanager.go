package adapters

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/kubernaut-bdi/agent/internal/errors"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

// alertmanagerWebhook mirrors the subset of Prometheus Alertmanager's
// webhook_config payload this adapter consumes.
type alertmanagerWebhook struct {
	Alerts []struct {
		Status      string            `json:"status"`
		Labels      map[string]string `json:"labels"`
		Annotations map[string]string `json:"annotations"`
		StartsAt    time.Time         `json:"startsAt"`
		Fingerprint string            `json:"fingerprint"`
	} `json:"alerts"`
}

type AlertmanagerAdapter struct{}

func NewAlertmanagerAdapter() *AlertmanagerAdapter { return &AlertmanagerAdapter{} }

func (a *AlertmanagerAdapter) Name() string  { return "alertmanager" }
func (a *AlertmanagerAdapter) Route() string { return "/webhook/alertmanager" }

func (a *AlertmanagerAdapter) Parse(_ context.Context, body []byte) ([]types.CanonicalAlert, error) {
	var payload alertmanagerWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "malformed alertmanager webhook payload")
	}
	if len(payload.Alerts) == 0 {
		return nil, apperrors.Validation("alertmanager payload contained no alerts")
	}

	out := make([]types.CanonicalAlert, 0, len(payload.Alerts))
	for _, raw := range payload.Alerts {
		if strings.EqualFold(raw.Status, "resolved") {
			continue
		}
		id := raw.Fingerprint
		if id == "" {
			id = raw.Labels["alertname"] + "/" + raw.Labels["namespace"]
		}
		title := raw.Annotations["summary"]
		if title == "" {
			title = raw.Labels["alertname"]
		}
		alert := types.CanonicalAlert{
			Schema:     types.CanonicalAlertSchema,
			ID:         id,
			Title:      title,
			Severity:   raw.Labels["severity"],
			Tags:       raw.Labels,
			Source:     "alertmanager",
			OccurredAt: raw.StartsAt,
		}
		if alert.OccurredAt.IsZero() {
			alert.OccurredAt = time.Now().UTC()
		}
		out = append(out, alert)
	}
	if len(out) == 0 {
		return nil, apperrors.Validation("alertmanager payload contained only resolved alerts")
	}
	return out, nil
}
