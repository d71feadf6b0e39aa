package webhook_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-logr/logr"

	"github.com/kubernaut-bdi/agent/internal/config"
	"github.com/kubernaut-bdi/agent/pkg/factregistry"
	"github.com/kubernaut-bdi/agent/pkg/factregistry/adapters"
	"github.com/kubernaut-bdi/agent/pkg/types"
	"github.com/kubernaut-bdi/agent/pkg/webhook"
)

func newTestServer(t *testing.T, auth config.WebhookAuthConfig) (*webhook.Server, chan types.Fact) {
	t.Helper()
	reg := factregistry.New(logr.Discard())
	adapterRegistry := adapters.NewRegistry(
		adapters.NewGenericAdapter(),
		adapters.NewAlertmanagerAdapter(),
	)
	facts := make(chan types.Fact, 16)
	return webhook.New(reg, adapterRegistry, auth, logr.Discard(), facts), facts
}

func TestGenericWebhookAcceptsValidAlert(t *testing.T) {
	s, facts := newTestServer(t, config.WebhookAuthConfig{})
	body := []byte(`{"schema":"alert.v1","id":"a1","title":"disk full","severity":"high","source":"generic","occurred_at":"2026-01-01T00:00:00Z"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook/generic", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body: %s)", w.Code, w.Body.String())
	}
	select {
	case f := <-facts:
		if f.Kind != types.FactAlert || f.Alert.ID != "a1" {
			t.Errorf("unexpected fact: %+v", f)
		}
	default:
		t.Fatal("expected a fact to be enqueued")
	}
}

func TestGenericWebhookRejectsMalformedJSON(t *testing.T) {
	s, _ := newTestServer(t, config.WebhookAuthConfig{})
	req := httptest.NewRequest(http.MethodPost, "/webhook/generic", strings.NewReader(`{not json`))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGenericWebhookRejectsUnrecognizedSeverity(t *testing.T) {
	s, facts := newTestServer(t, config.WebhookAuthConfig{})
	body := []byte(`{"schema":"alert.v1","id":"a2","title":"x","severity":"apocalyptic","source":"generic","occurred_at":"2026-01-01T00:00:00Z"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/generic", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	select {
	case f := <-facts:
		t.Fatalf("expected no fact to be enqueued, got %+v", f)
	default:
	}
}

func TestAlertmanagerWebhookBatchesFiringAlerts(t *testing.T) {
	s, facts := newTestServer(t, config.WebhookAuthConfig{})
	body := []byte(`{"alerts":[
		{"status":"firing","labels":{"alertname":"HighMemory","severity":"critical","namespace":"prod"},"annotations":{"summary":"memory high"},"startsAt":"2026-01-01T00:00:00Z","fingerprint":"abc123"},
		{"status":"resolved","labels":{"alertname":"Stale"}}
	]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/alertmanager", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body: %s)", w.Code, w.Body.String())
	}
	var resp map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["accepted"] != 1 {
		t.Errorf("accepted = %d, want 1", resp["accepted"])
	}
	<-facts
}

func TestWebhookRequiresBearerTokenWhenConfigured(t *testing.T) {
	auth := config.WebhookAuthConfig{Type: "bearer", Token: "s3cret"}
	s, _ := newTestServer(t, auth)
	body := []byte(`{"schema":"alert.v1","id":"a1","title":"x","severity":"low","source":"generic","occurred_at":"2026-01-01T00:00:00Z"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook/generic", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", w.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/webhook/generic", bytes.NewReader(body))
	req2.Header.Set("Authorization", "Bearer s3cret")
	w2 := httptest.NewRecorder()
	s.ServeHTTP(w2, req2)
	if w2.Code != http.StatusAccepted {
		t.Fatalf("status with valid token = %d, want 202", w2.Code)
	}
}

func TestWebhookHealthEndpointBypassesAuth(t *testing.T) {
	auth := config.WebhookAuthConfig{Type: "bearer", Token: "s3cret"}
	s, _ := newTestServer(t, auth)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	s, _ := newTestServer(t, config.WebhookAuthConfig{})
	huge := bytes.Repeat([]byte("a"), (1<<20)+16)
	req := httptest.NewRequest(http.MethodPost, "/webhook/generic", bytes.NewReader(huge))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
