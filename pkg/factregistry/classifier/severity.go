// Package classifier re-derives an alert's severity from operator policy
// rather than trusting the upstream provider's label verbatim, per
// spec §4.1's note that a provider's severity is advisory input, not the
// canonical value. Grounded on the Rego-based classification approach
// used for signal severity throughout the BDI's reference stack.
package classifier

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/open-policy-agent/opa/rego"

	apperrors "github.com/kubernaut-bdi/agent/internal/errors"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

// defaultPolicy is the built-in classification policy, used when no
// operator-supplied policy file is configured. It trusts the upstream
// severity when it is already one of the five canonical values, and
// otherwise falls back to "medium".
const defaultPolicy = `
package severity

default severity = "medium"

severity = input.severity {
	input.severity == "info"
}
severity = input.severity {
	input.severity == "low"
}
severity = input.severity {
	input.severity == "medium"
}
severity = input.severity {
	input.severity == "high"
}
severity = input.severity {
	input.severity == "critical"
}
`

// Input is the document a severity policy is evaluated against.
type Input struct {
	Severity string            `json:"severity"`
	Source   string            `json:"source"`
	Tags     map[string]string `json:"tags"`
}

// Classifier evaluates a compiled Rego policy to produce a canonical
// Severity for an inbound alert.
type Classifier struct {
	query rego.PreparedEvalQuery
	log   logr.Logger
}

// New compiles policySource (a `package severity` Rego module exposing a
// `severity` rule) at construction time, matching the ahead-of-startup
// validation pattern used for policy-driven components in the reference
// stack. An empty policySource uses the built-in default policy.
func New(ctx context.Context, policySource string, log logr.Logger) (*Classifier, error) {
	if policySource == "" {
		policySource = defaultPolicy
	}
	prepared, err := rego.New(
		rego.Query("data.severity.severity"),
		rego.Module("severity.rego", policySource),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to compile severity policy")
	}
	return &Classifier{query: prepared, log: log.WithName("severity-classifier")}, nil
}

// Classify evaluates the policy against a CanonicalAlert's raw fields and
// returns the canonical Severity to assign.
func (c *Classifier) Classify(ctx context.Context, alert types.CanonicalAlert) (types.Severity, error) {
	input := Input{Severity: alert.Severity, Source: alert.Source, Tags: alert.Tags}
	results, err := c.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrorTypeValidation, "severity policy evaluation failed")
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		c.log.V(1).Info("severity policy produced no result, defaulting to medium", "alert_id", alert.ID)
		return types.SeverityMedium, nil
	}
	raw, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return "", apperrors.Validation(fmt.Sprintf("severity policy returned non-string value: %v", results[0].Expressions[0].Value))
	}
	sev, ok := types.ParseSeverity(raw)
	if !ok {
		c.log.V(1).Info("severity policy returned unrecognized value, defaulting to medium", "value", raw)
		return types.SeverityMedium, nil
	}
	return sev, nil
}
