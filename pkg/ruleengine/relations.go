package ruleengine

import "github.com/kubernaut-bdi/agent/pkg/types"

// podRow, deployRow mirror the input relations named in spec §4.3: pod,
// deploy, metric, alert facts projected into the shape the derivation
// rules read.
type podRow struct {
	Name, Namespace   string
	RestartCount      int
	Phase             types.PodPhase
	TerminationReason string
}

type deployRow struct {
	Name, Namespace     string
	Replicas, Available int32
}

// metricThreshold is a named boolean predicate a raw metric is projected
// through before it can participate in derivation (§9 Open Question:
// "raw metric facts never reach the rule engine directly").
type metricThreshold struct {
	Name string // e.g. "error_rate_gt_5pct:checkout"
}

// store holds the engine's current input relations, keyed by natural
// identity so a re-assertion of the same pod/deploy overwrites rather
// than duplicates.
type store struct {
	pods      map[string]podRow
	deploys   map[string]deployRow
	errorRateServices map[string]bool // service -> error_rate_gt_5pct(service)
	alreadyHandling   map[string]bool // incident id -> already_handling
}

func newStore() *store {
	return &store{
		pods:              make(map[string]podRow),
		deploys:            make(map[string]deployRow),
		errorRateServices: make(map[string]bool),
		alreadyHandling:    make(map[string]bool),
	}
}

const errorRateThreshold = 0.05

func (s *store) assert(f types.Fact) {
	switch f.Kind {
	case types.FactPod:
		p := f.Pod
		s.pods[p.Namespace+"/"+p.Name] = podRow{
			Name: p.Name, Namespace: p.Namespace,
			RestartCount: p.RestartCount, Phase: p.Phase,
			TerminationReason: p.TerminationReason,
		}
	case types.FactDeploy:
		d := f.Deploy
		s.deploys[d.Namespace+"/"+d.Name] = deployRow{
			Name: d.Name, Namespace: d.Namespace,
			Replicas: d.Replicas, Available: d.Available,
		}
	case types.FactMetric:
		m := f.Metric
		if svc, ok := errorRateService(m); ok {
			s.errorRateServices[svc] = m.Value > errorRateThreshold
		}
	}
}

// errorRateService projects a raw metric fact into the service name it
// concerns, if it matches the `error_rate:<service>` naming convention
// (spec §4.3: "metric with name prefix error_rate:").
func errorRateService(m *types.MetricFact) (string, bool) {
	const prefix = "error_rate:"
	if len(m.Name) <= len(prefix) || m.Name[:len(prefix)] != prefix {
		return "", false
	}
	return m.Name[len(prefix):], true
}

func (s *store) retractPod(namespace, name string) {
	delete(s.pods, namespace+"/"+name)
}

func (s *store) retractDeploy(namespace, name string) {
	delete(s.deploys, namespace+"/"+name)
}

func (s *store) markHandling(incidentID string) {
	s.alreadyHandling[incidentID] = true
}

func (s *store) clearHandling(incidentID string) {
	delete(s.alreadyHandling, incidentID)
}
