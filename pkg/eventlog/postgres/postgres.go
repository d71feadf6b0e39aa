// Package postgres is the alternate eventlog.Store backend for
// multi-instance deployments, behind the same interface the SQLite
// backend satisfies.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/kubernaut-bdi/agent/pkg/eventlog"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a Postgres-backed eventlog.Store.
type Store struct {
	db *sqlx.DB
}

// Driver selects which registered database/sql driver Open dials
// through. DriverPGX (the default) uses jackc/pgx/v5's stdlib adapter;
// DriverLibPQ is kept available for operators standardized on lib/pq.
type Driver string

const (
	DriverPGX   Driver = "pgx"
	DriverLibPQ Driver = "postgres"
)

// Open connects to dsn (a standard postgres:// connection string) through
// driver and applies any pending goose migrations. An empty driver
// defaults to DriverPGX.
func Open(dsn string, driver Driver) (*Store, error) {
	if driver == "" {
		driver = DriverPGX
	}
	db, err := sqlx.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres database: %w", err)
	}

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
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

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO events (incident_id, event_type, description, details, timestamp)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		e.IncidentID, string(e.Type), e.Description, details, ts.Format(timeLayout),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
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
		 FROM events WHERE incident_id = $1 ORDER BY id ASC`, incidentID)
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
			SELECT incident_id FROM events WHERE event_type IN ($1, $2)
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
