package classifier_test

import (
	"context"
	"testing"

	"github.com/go-logr/logr"

	"github.com/kubernaut-bdi/agent/pkg/factregistry/classifier"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

func TestClassifyWithDefaultPolicyPassesThroughKnownSeverity(t *testing.T) {
	ctx := context.Background()
	c, err := classifier.New(ctx, "", logr.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sev, err := c.Classify(ctx, types.CanonicalAlert{ID: "a1", Severity: "high"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if sev != types.SeverityHigh {
		t.Errorf("Classify() = %v, want high", sev)
	}
}

func TestClassifyWithDefaultPolicyFallsBackToMedium(t *testing.T) {
	ctx := context.Background()
	c, err := classifier.New(ctx, "", logr.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sev, err := c.Classify(ctx, types.CanonicalAlert{ID: "a1", Severity: "sev-9"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if sev != types.SeverityMedium {
		t.Errorf("Classify() = %v, want medium fallback", sev)
	}
}

func TestClassifyWithCustomPolicy(t *testing.T) {
	ctx := context.Background()
	policy := `
package severity

default severity = "low"

severity = "critical" {
	input.source == "pagerduty"
}
`
	c, err := classifier.New(ctx, policy, logr.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sev, err := c.Classify(ctx, types.CanonicalAlert{ID: "a1", Severity: "info", Source: "pagerduty"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if sev != types.SeverityCritical {
		t.Errorf("Classify() = %v, want critical per custom policy", sev)
	}

	sev2, err := c.Classify(ctx, types.CanonicalAlert{ID: "a2", Severity: "info", Source: "datadog"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if sev2 != types.SeverityLow {
		t.Errorf("Classify() = %v, want default low", sev2)
	}
}

func TestNewRejectsInvalidPolicy(t *testing.T) {
	ctx := context.Background()
	_, err := classifier.New(ctx, "not valid rego {{{", logr.Discard())
	if err == nil {
		t.Fatal("expected New() to reject invalid Rego source")
	}
}
