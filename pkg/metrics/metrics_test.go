package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kubernaut-bdi/agent/pkg/metrics"
)

func TestRecordActionIncrementsCounterAndHistogram(t *testing.T) {
	m := metrics.New()
	m.RecordAction("restart_deployment", "success", 150*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, `bdi_agent_actions_executed_total{action="restart_deployment",outcome="success"} 1`) {
		t.Errorf("expected actions_executed_total in output, got:\n%s", body)
	}
	if !strings.Contains(body, "bdi_agent_action_duration_seconds") {
		t.Errorf("expected action_duration_seconds histogram in output")
	}
}

func TestRecordEscalationIncrementsByRunbook(t *testing.T) {
	m := metrics.New()
	m.RecordEscalation("crashloop")
	m.RecordEscalation("crashloop")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `bdi_agent_escalations_total{runbook="crashloop"} 2`) {
		t.Errorf("expected escalations_total=2 for crashloop, got:\n%s", w.Body.String())
	}
}

func TestTwoInstancesDoNotCollideOnRegistration(t *testing.T) {
	m1 := metrics.New()
	m2 := metrics.New()
	m1.RecordEscalation("a")
	m2.RecordEscalation("b")
}
