package adapters

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/kubernaut-bdi/agent/internal/errors"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

// datadogWebhook mirrors the subset of a Datadog monitor notification
// payload (the `{{#is_alert}}` webhook body) this adapter consumes.
type datadogWebhook struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Text         string   `json:"text"`
	AlertType    string   `json:"alert_type"`
	DateHappened int64    `json:"date_happened"`
	Tags         []string `json:"tags"`
}

// datadogSeverity maps Datadog's alert_type vocabulary to the canonical
// five-level severity scale.
var datadogSeverity = map[string]string{
	"error":          "high",
	"critical":       "critical",
	"warning":        "medium",
	"success":        "info",
	"info":           "info",
	"user_update":    "info",
	"recommendation": "low",
}

type DatadogAdapter struct{}

func NewDatadogAdapter() *DatadogAdapter { return &DatadogAdapter{} }

func (a *DatadogAdapter) Name() string  { return "datadog" }
func (a *DatadogAdapter) Route() string { return "/webhook/datadog" }

func (a *DatadogAdapter) Parse(_ context.Context, body []byte) ([]types.CanonicalAlert, error) {
	var raw datadogWebhook
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "malformed datadog webhook payload")
	}
	if raw.ID == "" {
		return nil, apperrors.Validation("datadog payload missing id")
	}

	sev, ok := datadogSeverity[strings.ToLower(raw.AlertType)]
	if !ok {
		sev = "medium"
	}

	occurred := time.Now().UTC()
	if raw.DateHappened > 0 {
		occurred = time.Unix(raw.DateHappened, 0).UTC()
	}

	alert := types.CanonicalAlert{
		Schema:     types.CanonicalAlertSchema,
		ID:         raw.ID,
		Title:      raw.Title,
		Severity:   sev,
		Tags:       tagsToMap(raw.Tags),
		Source:     "datadog",
		OccurredAt: occurred,
	}
	return []types.CanonicalAlert{alert}, nil
}

// tagsToMap converts Datadog's "key:value" tag slice into a map,
// preserving bare tags ("no-colon") under an empty-string value.
func tagsToMap(tags []string) map[string]string {
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		k, v, found := strings.Cut(t, ":")
		if !found {
			out[k] = ""
			continue
		}
		out[k] = v
	}
	return out
}
