// Package eventlog defines the append-only Store contract of spec §4.6
// and §3: durable-before-returning append, total ordering per incident
// by append id, and a terminal-event scan for active incidents. Two
// backends satisfy it — pkg/eventlog/sqlite (the default, embedded
// WAL-mode file) and pkg/eventlog/postgres (for multi-instance
// deployments) — chosen at startup by internal/config, never mixed at
// runtime.
package eventlog

import (
	"context"

	"github.com/kubernaut-bdi/agent/pkg/types"
)

// Store is the append-only event log contract both backends implement.
type Store interface {
	// Append durably persists e and returns its assigned, strictly
	// increasing id. Append is total-ordered per incident (spec §4.6).
	Append(ctx context.Context, e types.Event) (int64, error)

	// EventsForIncident returns every event recorded for incidentID,
	// ordered by ascending append id.
	EventsForIncident(ctx context.Context, incidentID string) ([]types.Event, error)

	// ActiveIncidents returns the ids of incidents whose event stream has
	// not yet recorded a terminal Resolved or Escalated event.
	ActiveIncidents(ctx context.Context) ([]string, error)

	Close() error
}
