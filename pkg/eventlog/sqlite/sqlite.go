// Package sqlite is the default eventlog.Store backend: a single
// embedded WAL-mode SQLite file (spec §6 `incidents.db`), migrated with
// goose at Open time.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/kubernaut-bdi/agent/pkg/eventlog"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a SQLite-backed eventlog.Store.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if absent) the SQLite file at path, enables
// WAL-mode journaling, and applies any pending goose migrations.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // a single writer avoids SQLITE_BUSY under WAL

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{db: db}, nil
}

var _ eventlog.Store = (*Store)(nil)

const timeLayout = time.RFC3339Nano

func (s *Store) Append(ctx context.Context, e types.Event) (int64, error) {
	ts := e.Timestamp
	if ts.IsZero() {
		return 0, fmt.Errorf("append event: timestamp must be set by the caller")
	}
	var details sql.NullString
	if len(e.Details) > 0 {
		details = sql.NullString{String: string(e.Details), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (incident_id, event_type, description, details, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		e.IncidentID, string(e.Type), e.Description, details, ts.Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append event: read inserted id: %w", err)
	}
	return id, nil
}

type eventRow struct {
	ID          int64          `db:"id"`
	IncidentID  string         `db:"incident_id"`
	EventType   string         `db:"event_type"`
	Description string         `db:"description"`
	Details     sql.NullString `db:"details"`
	Timestamp   string         `db:"timestamp"`
}

func (r eventRow) toEvent() (types.Event, error) {
	ts, err := time.Parse(timeLayout, r.Timestamp)
	if err != nil {
		return types.Event{}, fmt.Errorf("parse event timestamp %q: %w", r.Timestamp, err)
	}
	var details json.RawMessage
	if r.Details.Valid {
		details = json.RawMessage(r.Details.String)
	}
	return types.Event{
		ID:          r.ID,
		IncidentID:  r.IncidentID,
		Type:        types.EventType(r.EventType),
		Description: r.Description,
		Details:     details,
		Timestamp:   ts,
	}, nil
}

func (s *Store) EventsForIncident(ctx context.Context, incidentID string) ([]types.Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, incident_id, event_type, description, details, timestamp
		 FROM events WHERE incident_id = ? ORDER BY id ASC`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("query events for incident %s: %w", incidentID, err)
	}
	out := make([]types.Event, 0, len(rows))
	for _, r := range rows {
		ev, err := r.toEvent()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *Store) ActiveIncidents(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT incident_id FROM events
		WHERE incident_id NOT IN (
			SELECT incident_id FROM events WHERE event_type IN (?, ?)
		)`, string(types.EventResolved), string(types.EventEscalated))
	if err != nil {
		return nil, fmt.Errorf("query active incidents: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
