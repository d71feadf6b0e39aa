package types

import (
	"time"

	corev1 "k8s.io/api/core/v1"
)

// PodPhase reuses the canonical Kubernetes pod-phase vocabulary so the fact
// model stays a strict subset of what a real pod watcher observes. The
// watcher itself is out of scope (spec §1); only the Fact shape it must
// produce is specified here.
type PodPhase string

const (
	PodRunning   PodPhase = PodPhase(corev1.PodRunning)
	PodPending   PodPhase = PodPhase(corev1.PodPending)
	PodFailed    PodPhase = PodPhase(corev1.PodFailed)
	PodSucceeded PodPhase = PodPhase(corev1.PodSucceeded)
	PodUnknown   PodPhase = PodPhase(corev1.PodUnknown)
)

// AlertSource enumerates the upstream monitoring systems a CanonicalAlert
// may originate from.
type AlertSource string

const (
	SourceDatadog    AlertSource = "datadog"
	SourcePagerDuty  AlertSource = "pagerduty"
	SourceGrafana    AlertSource = "grafana"
	SourceCloudWatch AlertSource = "cloudwatch"
	SourceGeneric    AlertSource = "generic"
)

// Severity is the canonical five-level severity scale alerts are
// normalized to (§3, §6 alert.v1).
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var validSeverities = map[Severity]bool{
	SeverityInfo: true, SeverityLow: true, SeverityMedium: true,
	SeverityHigh: true, SeverityCritical: true,
}

// ParseSeverity maps a case-insensitive external severity string to the
// canonical Severity enum, per §4.1's "case-insensitively" validation rule.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(toLower(s))
	return sev, validSeverities[sev]
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// FactKind tags the union member a Fact carries.
type FactKind string

const (
	FactPod    FactKind = "pod"
	FactAlert  FactKind = "alert"
	FactDeploy FactKind = "deploy"
	FactMetric FactKind = "metric"
)

// PodFact observes one pod's state (§3).
type PodFact struct {
	Name              string
	Namespace         string
	Phase             PodPhase
	RestartCount      int
	TerminationReason string
	ObservedAt        time.Time
}

// AlertFact is a normalized alert observation (§3, produced by
// pkg/factregistry from a CanonicalAlert).
type AlertFact struct {
	ID         string
	Source     AlertSource
	Severity   Severity
	Title      string
	Tags       map[string]string
	ReceivedAt time.Time
}

// DeployFact observes one Deployment's rollout state (§3).
type DeployFact struct {
	Name       string
	Namespace  string
	Image      string
	Replicas   int32
	Available  int32
	Revision   int64
	ObservedAt time.Time
}

// MetricFact observes a single named metric sample (§3). Per the spec's
// open question in §9, raw metric facts never reach the rule engine
// directly; pkg/ruleengine projects them through named threshold
// predicates (e.g. error_rate_gt_5pct(svc)) before assertion.
type MetricFact struct {
	Name       string
	Value      float64
	Labels     map[string]string
	ObservedAt time.Time
}

// Fact is the immutable, tagged-union observation ingested by the stream
// multiplexer and asserted into the rule engine. Exactly one of the
// pointer fields matching Kind is non-nil.
type Fact struct {
	Kind   FactKind
	Pod    *PodFact
	Alert  *AlertFact
	Deploy *DeployFact
	Metric *MetricFact
}

func NewPodFact(f PodFact) Fact    { return Fact{Kind: FactPod, Pod: &f} }
func NewAlertFact(f AlertFact) Fact { return Fact{Kind: FactAlert, Alert: &f} }
func NewDeployFact(f DeployFact) Fact { return Fact{Kind: FactDeploy, Deploy: &f} }
func NewMetricFact(f MetricFact) Fact { return Fact{Kind: FactMetric, Metric: &f} }
