package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/brace/pkg/plugins"
)

// DefaultListLimit bounds List when the filter sets no limit
const DefaultListLimit = 100

// Entry is a stored lifecycle event
type Entry struct {
	ID int64 `json:"id"`
	plugins.Event
}

// Filter selects entries for List. Zero fields match everything.
type Filter struct {
	PluginID string
	Phase    plugins.Phase
	Failed   bool
	Since    time.Time
	Limit    int
}

// SQLJournal records lifecycle events in the lifecycle_events table
type SQLJournal struct {
	db *sql.DB
}

// New creates a journal on db, creating its table when missing
func New(db *sql.DB) (*SQLJournal, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	j := &SQLJournal{db: db}
	if err := j.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure lifecycle_events table: %w", err)
	}
	return j, nil
}

func (j *SQLJournal) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS lifecycle_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		plugin_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		error_message TEXT,
		duration_ns INTEGER NOT NULL,
		timestamp TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lifecycle_events_plugin ON lifecycle_events(plugin_id, timestamp DESC);
	`

	_, err := j.db.Exec(query)
	return err
}

// DB returns the underlying handle, used for health checks
func (j *SQLJournal) DB() *sql.DB {
	return j.db
}

// Record implements plugins.EventSink
func (j *SQLJournal) Record(ctx context.Context, event plugins.Event) error {
	query := `
		INSERT INTO lifecycle_events (
			plugin_id, phase, from_state, to_state,
			success, error_message, duration_ns, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := j.db.ExecContext(ctx, query,
		event.PluginID, string(event.Phase), event.From.String(), event.To.String(),
		event.Success, event.Error, int64(event.Duration), event.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert lifecycle event: %w", err)
	}
	return nil
}

// List returns matching entries, newest first
func (j *SQLJournal) List(ctx context.Context, filter Filter) ([]Entry, error) {
	var (
		conds []string
		args  []any
	)
	if filter.PluginID != "" {
		conds = append(conds, "plugin_id = ?")
		args = append(args, filter.PluginID)
	}
	if filter.Phase != "" {
		conds = append(conds, "phase = ?")
		args = append(args, string(filter.Phase))
	}
	if filter.Failed {
		conds = append(conds, "success = ?")
		args = append(args, false)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, filter.Since.UTC())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, plugin_id, phase, from_state, to_state, success, error_message, duration_ns, timestamp FROM lifecycle_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lifecycle events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e          Entry
			phase      string
			from, to   string
			errMessage sql.NullString
			durationNS int64
		)
		if err := rows.Scan(&e.ID, &e.PluginID, &phase, &from, &to, &e.Success, &errMessage, &durationNS, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan lifecycle event: %w", err)
		}
		e.Phase = plugins.Phase(phase)
		if e.From, err = plugins.ParseState(from); err != nil {
			return nil, fmt.Errorf("lifecycle event %d: %w", e.ID, err)
		}
		if e.To, err = plugins.ParseState(to); err != nil {
			return nil, fmt.Errorf("lifecycle event %d: %w", e.ID, err)
		}
		e.Error = errMessage.String
		e.Duration = time.Duration(durationNS)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lifecycle events: %w", err)
	}
	return entries, nil
}

// Cleanup deletes entries older than the cutoff and returns how many were removed
func (j *SQLJournal) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	result, err := j.db.ExecContext(ctx, `DELETE FROM lifecycle_events WHERE timestamp < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete lifecycle events: %w", err)
	}
	return result.RowsAffected()
}
