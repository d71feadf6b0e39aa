// Package adapters translates provider-specific alert webhook payloads
// into the alert.v1 CanonicalAlert wire schema (spec §4.1).
package adapters

import (
	"context"

	"github.com/kubernaut-bdi/agent/pkg/types"
)

// Adapter parses one upstream monitoring provider's webhook body into a
// CanonicalAlert. Each adapter owns exactly one HTTP route under
// pkg/webhook (e.g. /webhook/datadog).
type Adapter interface {
	// Name identifies the adapter in metrics labels and structured logs.
	Name() string
	// Route is the webhook path this adapter is mounted at.
	Route() string
	// Parse converts a raw request body into one or more CanonicalAlerts.
	// Providers that batch alerts in one payload (Alertmanager) return
	// more than one.
	Parse(ctx context.Context, body []byte) ([]types.CanonicalAlert, error)
}

// Registry indexes the built-in adapters by name for the webhook server's
// dynamic route registration.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	return out
}
