package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"

	apperrors "github.com/kubernaut-bdi/agent/internal/errors"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

// FieldMapping is an operator-supplied jq query per alert.v1 field,
// letting the generic adapter accept arbitrary upstream JSON shapes
// without a code change (spec §4.1). Queries run against the raw
// payload; an empty map falls back to expecting alert.v1 directly.
type FieldMapping map[string]string

// GenericAdapter accepts either a payload already shaped as alert.v1, or
// (when constructed with a FieldMapping) an arbitrary JSON payload it
// reshapes via jq queries field-by-field.
type GenericAdapter struct {
	mapping map[string]*gojq.Code
}

func NewGenericAdapter() *GenericAdapter { return &GenericAdapter{} }

// NewGenericAdapterWithMapping compiles the given jq queries once at
// construction time; Compile errors are returned immediately so a bad
// operator config fails at startup, not on the first webhook call.
func NewGenericAdapterWithMapping(mapping FieldMapping) (*GenericAdapter, error) {
	compiled := make(map[string]*gojq.Code, len(mapping))
	for field, query := range mapping {
		q, err := gojq.Parse(query)
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.ErrorTypeValidation, "invalid jq query for field %s", field)
		}
		code, err := gojq.Compile(q)
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.ErrorTypeValidation, "cannot compile jq query for field %s", field)
		}
		compiled[field] = code
	}
	return &GenericAdapter{mapping: compiled}, nil
}

func (a *GenericAdapter) Name() string  { return "generic" }
func (a *GenericAdapter) Route() string { return "/webhook/generic" }

func (a *GenericAdapter) Parse(_ context.Context, body []byte) ([]types.CanonicalAlert, error) {
	if len(a.mapping) > 0 {
		alert, err := a.parseWithMapping(body)
		if err != nil {
			return nil, err
		}
		return []types.CanonicalAlert{alert}, nil
	}

	var alert types.CanonicalAlert
	if err := json.Unmarshal(body, &alert); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "malformed generic alert payload")
	}
	normalize(&alert)
	return []types.CanonicalAlert{alert}, nil
}

func (a *GenericAdapter) parseWithMapping(body []byte) (types.CanonicalAlert, error) {
	var input interface{}
	if err := json.Unmarshal(body, &input); err != nil {
		return types.CanonicalAlert{}, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "malformed payload for mapped generic adapter")
	}

	values := make(map[string]string, len(a.mapping))
	for field, code := range a.mapping {
		iter := code.Run(input)
		v, ok := iter.Next()
		if !ok {
			continue
		}
		if err, isErr := v.(error); isErr {
			return types.CanonicalAlert{}, apperrors.Wrapf(err, apperrors.ErrorTypeValidation, "jq mapping failed for field %s", field)
		}
		values[field] = fmt.Sprintf("%v", v)
	}

	alert := types.CanonicalAlert{
		ID:       values["id"],
		Title:    values["title"],
		Severity: values["severity"],
		Source:   values["source"],
	}
	if tags, ok := values["tags"]; ok {
		alert.Tags = map[string]string{"raw": tags}
	}
	normalize(&alert)
	return alert, nil
}

func normalize(alert *types.CanonicalAlert) {
	if alert.Schema == "" {
		alert.Schema = types.CanonicalAlertSchema
	}
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = time.Now().UTC()
	}
	if alert.Source == "" {
		alert.Source = string(types.SourceGeneric)
	}
}
