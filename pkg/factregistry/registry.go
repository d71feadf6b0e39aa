// Package factregistry normalizes inbound observations (CanonicalAlert
// payloads from webhook adapters, or directly-constructed Facts) into the
// validated Fact union the stream multiplexer forwards to the rule engine
// (spec §4.1).
package factregistry

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/go-logr/logr"

	apperrors "github.com/kubernaut-bdi/agent/internal/errors"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

// Registry validates inbound CanonicalAlert payloads and tracks the most
// recently asserted Fact per identity, so callers (pkg/streammux,
// pkg/queryapi) can answer "what do we currently believe about X" without
// re-deriving it from the full event log.
type Registry struct {
	validate *validator.Validate
	log      logr.Logger

	facts map[string]types.Fact
}

func New(log logr.Logger) *Registry {
	return &Registry{
		validate: validator.New(),
		log:      log.WithName("factregistry"),
		facts:    make(map[string]types.Fact),
	}
}

// ValidateAlert runs struct-tag validation against a CanonicalAlert and
// normalizes its severity case (§4.1: "case-insensitively, rejecting the
// fact as invalid on an unrecognized value").
func (r *Registry) ValidateAlert(a *types.CanonicalAlert) error {
	if err := r.validate.Struct(a); err != nil {
		return apperrors.ValidationFields(fieldErrors(err))
	}
	sev, ok := types.ParseSeverity(a.Severity)
	if !ok {
		return apperrors.Validation("unrecognized severity: " + a.Severity)
	}
	a.Severity = string(sev)
	return nil
}

func fieldErrors(err error) map[string]string {
	out := map[string]string{}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			out[fe.Field()] = fe.Tag()
		}
	}
	return out
}

// identity returns the dedup/assertion key for a Fact, matching the
// per-kind natural key the BDI loop uses to decide "is this an update to
// an existing belief or a new one" (§3).
func identity(f types.Fact) string {
	switch f.Kind {
	case types.FactPod:
		return "pod/" + f.Pod.Namespace + "/" + f.Pod.Name
	case types.FactAlert:
		return "alert/" + f.Alert.ID
	case types.FactDeploy:
		return "deploy/" + f.Deploy.Namespace + "/" + f.Deploy.Name
	case types.FactMetric:
		return "metric/" + f.Metric.Name
	default:
		return ""
	}
}

// Assert records a Fact as the current belief for its identity and
// returns whether this is the first observation (new) or an update to a
// previously asserted Fact of the same identity.
func (r *Registry) Assert(ctx context.Context, f types.Fact) (isNew bool, key string) {
	key = identity(f)
	_, existed := r.facts[key]
	r.facts[key] = f
	r.log.V(1).Info("fact asserted", "key", key, "kind", f.Kind, "new", !existed)
	return !existed, key
}

// Retract removes the current belief for a Fact identity (e.g. a pod
// watcher observing deletion), returning whether anything was removed.
func (r *Registry) Retract(key string) bool {
	if _, ok := r.facts[key]; !ok {
		return false
	}
	delete(r.facts, key)
	return true
}

func (r *Registry) Get(key string) (types.Fact, bool) {
	f, ok := r.facts[key]
	return f, ok
}

func (r *Registry) Snapshot() map[string]types.Fact {
	out := make(map[string]types.Fact, len(r.facts))
	for k, v := range r.facts {
		out[k] = v
	}
	return out
}
