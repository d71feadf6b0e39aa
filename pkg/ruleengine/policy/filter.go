// Package policy evaluates the config `filters` section (spec's
// supplemented alert-admission feature) through a compiled Rego policy,
// so operators can scope which namespaces/severities the agent acts on
// without a code change — the same "policy as data, not code" approach
// pkg/factregistry/classifier uses for severity normalization.
package policy

import (
	"context"

	"github.com/open-policy-agent/opa/rego"

	apperrors "github.com/kubernaut-bdi/agent/internal/errors"
)

// Filter mirrors internal/config.FilterConfig's shape, decoupled from the
// config package so this package has no import-cycle dependency on it.
type Filter struct {
	Name       string   `json:"name"`
	Namespaces []string `json:"namespaces"`
	Severities []string `json:"severities"`
}

const filterPolicy = `
package filters

default allow = false

allow {
	count(input.filters) == 0
}

allow {
	some i
	f := input.filters[i]
	namespace_matches(f)
	severity_matches(f)
}

namespace_matches(f) {
	count(f.namespaces) == 0
}
namespace_matches(f) {
	f.namespaces[_] == input.alert.namespace
}

severity_matches(f) {
	count(f.severities) == 0
}
severity_matches(f) {
	f.severities[_] == input.alert.severity
}
`

// Evaluator compiles the filter policy once and evaluates it per alert.
type Evaluator struct {
	query rego.PreparedEvalQuery
}

func New(ctx context.Context) (*Evaluator, error) {
	prepared, err := rego.New(
		rego.Query("data.filters.allow"),
		rego.Module("filters.rego", filterPolicy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to compile alert filter policy")
	}
	return &Evaluator{query: prepared}, nil
}

// alertInput is the document an Evaluate call checks against the
// configured filters.
type alertInput struct {
	Namespace string `json:"namespace"`
	Severity  string `json:"severity"`
}

// Allow reports whether an alert with the given namespace/severity is
// admitted under the configured filters. An empty filter list always
// allows (spec's filters section is opt-in scoping, not a default-deny
// allowlist).
func (e *Evaluator) Allow(ctx context.Context, filters []Filter, namespace, severity string) (bool, error) {
	input := map[string]interface{}{
		"filters": filters,
		"alert":   alertInput{Namespace: namespace, Severity: severity},
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "filter policy evaluation failed")
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	allow, _ := results[0].Expressions[0].Value.(bool)
	return allow, nil
}
