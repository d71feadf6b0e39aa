// Package queryapi exposes the UI-facing query/command surface named in
// spec §6: list_incidents, get_beliefs, get_timeline, get_current_plan,
// get_tool_calls, respond_to_escalation, upsert_alert_fact, retract_fact,
// reprocess_incident, plus a WebSocket push subscription for
// beliefs-updated / plan-selected / action-completed /
// escalation-required / incident-resolved.
//
// Every read here is a snapshot copy (eventlog query, registry.Snapshot),
// never a lock held across the BDI task's own state (spec §5: "external
// queries obtain a read-only view via snapshot copies, not by locking").
package queryapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"

	"github.com/kubernaut-bdi/agent/pkg/escalation"
	"github.com/kubernaut-bdi/agent/pkg/eventlog"
	"github.com/kubernaut-bdi/agent/pkg/factregistry"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

// Reprocessor is the BDI loop's hook for reprocess_incident: re-derive
// BeliefState for an incident from current facts and attempt a fresh
// plan. Implemented by pkg/bdiagent; nil in deployments that only need
// read access.
type Reprocessor interface {
	Reprocess(ctx context.Context, incidentID string) error
}

// Server is the chi-routed query/command HTTP+WebSocket surface.
type Server struct {
	router      chi.Router
	store       eventlog.Store
	registry    *factregistry.Registry
	escalations *escalation.Channel
	reprocessor Reprocessor
	hub         *PushHub
	log         logr.Logger

	facts chan types.Fact
}

func New(store eventlog.Store, registry *factregistry.Registry, escalations *escalation.Channel, reprocessor Reprocessor, hub *PushHub, log logr.Logger, facts chan types.Fact) *Server {
	s := &Server{
		store:       store,
		registry:    registry,
		escalations: escalations,
		reprocessor: reprocessor,
		hub:         hub,
		log:         log.WithName("queryapi"),
		facts:       facts,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(10 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/ws", s.hub.HandleWS)
	r.Get("/api/incidents", s.listIncidents)
	r.Get("/api/beliefs", s.getBeliefs)
	r.Get("/api/incidents/{id}/timeline", s.getTimeline)
	r.Get("/api/incidents/{id}/plan", s.getCurrentPlan)
	r.Get("/api/incidents/{id}/tool-calls", s.getToolCalls)
	r.Post("/api/incidents/{id}/escalation", s.respondToEscalation)
	r.Post("/api/incidents/{id}/reprocess", s.reprocessIncident)
	r.Post("/api/facts", s.upsertAlertFact)
	r.Delete("/api/facts/{key}", s.retractFact)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// listIncidents answers list_incidents: every active incident (lacking a
// terminal Resolved/Escalated event), folded into its current summary.
func (s *Server) listIncidents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, err := s.store.ActiveIncidents(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]types.IncidentState, 0, len(ids))
	for _, id := range ids {
		events, err := s.store.EventsForIncident(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, types.Fold(id, events))
	}
	writeJSON(w, http.StatusOK, out)
}

// getBeliefs answers get_beliefs: the current per-identity Fact snapshot.
func (s *Server) getBeliefs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Snapshot())
}

func (s *Server) getTimeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	events, err := s.store.EventsForIncident(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// getCurrentPlan answers get_current_plan: the most recent PlanSelected
// event's details for the incident, or 404 if none exists.
func (s *Server) getCurrentPlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	events, err := s.store.EventsForIncident(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type != types.EventPlanSelected {
			continue
		}
		var d types.PlanSelectedDetails
		if json.Unmarshal(events[i].Details, &d) == nil {
			writeJSON(w, http.StatusOK, d)
			return
		}
	}
	writeError(w, http.StatusNotFound, "no plan has been selected for this incident")
}

// toolCall pairs an ActionIntent with its eventual ActionResult (if any
// has arrived yet) for get_tool_calls's UI-facing view.
type toolCall struct {
	Step    int    `json:"step"`
	Action  string `json:"action"`
	Effect  string `json:"effect,omitempty"`
	Done    bool   `json:"done"`
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) getToolCalls(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	events, err := s.store.EventsForIncident(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	byStep := map[int]*toolCall{}
	var order []int
	for _, e := range events {
		switch e.Type {
		case types.EventActionIntent:
			var d types.ActionIntentDetails
			if json.Unmarshal(e.Details, &d) != nil {
				continue
			}
			byStep[d.Step] = &toolCall{Step: d.Step, Action: d.Action, Effect: d.Effect}
			order = append(order, d.Step)
		case types.EventActionResult:
			var d types.ActionResultDetails
			if json.Unmarshal(e.Details, &d) != nil {
				continue
			}
			tc, ok := byStep[d.Step]
			if !ok {
				tc = &toolCall{Step: d.Step, Action: d.Action}
				byStep[d.Step] = tc
				order = append(order, d.Step)
			}
			tc.Done = true
			tc.Success = d.Success
			tc.Error = d.Error
		}
	}
	out := make([]toolCall, 0, len(order))
	for _, step := range order {
		out = append(out, *byStep[step])
	}
	writeJSON(w, http.StatusOK, out)
}

type escalationResponseRequest struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// respondToEscalation answers respond_to_escalation(incident_id, response).
func (s *Server) respondToEscalation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req escalationResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	kind := escalation.ResponseKind(req.Kind)
	switch kind {
	case escalation.Approve, escalation.Reject, escalation.TakeOver:
	default:
		writeError(w, http.StatusBadRequest, "kind must be one of approve, reject, take_over")
		return
	}
	if err := s.escalations.Respond(id, escalation.Response{Kind: kind, Reason: req.Reason}); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// reprocessIncident answers reprocess_incident; 501 if no Reprocessor was
// wired (pkg/bdiagent not yet started, or a read-only deployment).
func (s *Server) reprocessIncident(w http.ResponseWriter, r *http.Request) {
	if s.reprocessor == nil {
		writeError(w, http.StatusNotImplemented, "reprocessing is not available on this server")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.reprocessor.Reprocess(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reprocessing"})
}

// upsertAlertFact answers upsert_alert_fact: a manually-submitted
// CanonicalAlert, validated and asserted the same way a webhook-sourced
// one would be.
func (s *Server) upsertAlertFact(w http.ResponseWriter, r *http.Request) {
	var alert types.CanonicalAlert
	if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := s.registry.ValidateAlert(&alert); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fact := alert.ToFact()
	_, key := s.registry.Assert(r.Context(), fact)

	select {
	case s.facts <- fact:
	case <-r.Context().Done():
		writeError(w, http.StatusRequestTimeout, "request cancelled before fact could be enqueued")
		return
	}

	s.hub.Publish(BeliefsUpdated, "", map[string]string{"key": key})
	writeJSON(w, http.StatusAccepted, map[string]string{"key": key})
}

// retractFact answers retract_fact(key): key is the identity string
// returned by upsert_alert_fact or recorded in get_beliefs.
func (s *Server) retractFact(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !s.registry.Retract(key) {
		writeError(w, http.StatusNotFound, "no belief registered under that key")
		return
	}
	s.hub.Publish(BeliefsUpdated, "", map[string]string{"key": key, "retracted": true})
	writeJSON(w, http.StatusOK, map[string]string{"status": "retracted"})
}
