// Package webhook exposes the inbound HTTP surface that upstream
// monitoring systems push alerts to (spec §4.1, §6): one route per
// registered pkg/factregistry/adapters.Adapter, each translating a
// provider-specific payload into CanonicalAlert facts and handing them to
// the rule engine via a streammux.Source channel.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"

	"github.com/kubernaut-bdi/agent/internal/config"
	"github.com/kubernaut-bdi/agent/pkg/factregistry"
	"github.com/kubernaut-bdi/agent/pkg/factregistry/adapters"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

// maxBodyBytes bounds an inbound webhook payload; anything larger is
// rejected before JSON parsing is attempted.
const maxBodyBytes = 1 << 20 // 1 MiB

// Server is the chi-routed HTTP server accepting alert webhooks. It owns
// no transport-level state beyond routing: validated CanonicalAlerts are
// pushed onto facts and left for pkg/streammux to fan into the rule
// engine.
type Server struct {
	router   chi.Router
	registry *factregistry.Registry
	adapters *adapters.Registry
	log      logr.Logger
	auth     config.WebhookAuthConfig

	facts chan types.Fact
}

// New builds a webhook Server with one route per adapter in reg. facts is
// an unbuffered-or-buffered channel the caller also hands to streammux as
// a Source; New never closes it.
func New(reg *factregistry.Registry, adapterRegistry *adapters.Registry, auth config.WebhookAuthConfig, log logr.Logger, facts chan types.Fact) *Server {
	s := &Server{
		registry: reg,
		adapters: adapterRegistry,
		auth:     auth,
		log:      log.WithName("webhook"),
		facts:    facts,
	}
	s.router = s.buildRouter()
	return s
}

// Facts is the merged output of every adapter route, suitable for
// registration as a streammux.Source.
func (s *Server) Facts() <-chan types.Fact { return s.facts }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(10 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodPost, http.MethodGet},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))
	r.Use(securityHeaders)
	r.Use(s.authenticate)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	for _, a := range s.adapters.All() {
		a := a
		r.Post(a.Route(), s.handleAdapter(a))
	}
	return r
}

// securityHeaders sets the small set of response headers every handler in
// this server should carry, regardless of outcome.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// authenticate enforces config.WebhookAuthConfig when Auth.Type is
// non-empty. An empty Type disables auth, matching a dev/test deployment
// that fronts the webhook with its own ingress-level auth.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth.Type == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		switch s.auth.Type {
		case "bearer":
			if r.Header.Get("Authorization") != "Bearer "+s.auth.Token {
				writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}
		default:
			writeError(w, http.StatusUnauthorized, "unsupported auth type configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleAdapter returns a chi handler that parses the request body through
// a, validates every resulting CanonicalAlert, and enqueues its Fact. Per
// spec §6 the response is 202 Accepted once at least one alert is queued,
// or 400 Bad Request when the body cannot be read or parsed or when no
// alert in it passes validation; alerts failing validation are skipped.
func (s *Server) handleAdapter(a adapters.Adapter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if len(body) > maxBodyBytes {
			writeError(w, http.StatusBadRequest, "request body exceeds maximum size")
			return
		}

		alerts, err := a.Parse(ctx, body)
		if err != nil {
			s.log.V(1).Info("webhook payload rejected", "adapter", a.Name(), "error", err.Error())
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		accepted := 0
		for i := range alerts {
			if verr := s.registry.ValidateAlert(&alerts[i]); verr != nil {
				s.log.V(1).Info("alert failed validation", "adapter", a.Name(), "id", alerts[i].ID, "error", verr.Error())
				continue
			}
			fact := alerts[i].ToFact()
			s.registry.Assert(ctx, fact)
			if !s.enqueue(ctx, fact) {
				s.log.Info("dropped alert fact, webhook output channel closed", "adapter", a.Name(), "id", alerts[i].ID)
				continue
			}
			accepted++
		}

		if accepted == 0 {
			writeError(w, http.StatusBadRequest, "no alert in the payload passed validation")
			return
		}

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"accepted": accepted})
	}
}

func (s *Server) enqueue(ctx context.Context, f types.Fact) bool {
	select {
	case s.facts <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
