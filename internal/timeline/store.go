package timeline

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the sqlite-backed Repo: a secondary, queryable index of
// engine events, populated as the dispatch loop folds them into state.
// It is never the system of record — the write-ahead log and its
// snapshot own that — it exists purely so GetJobLogs/GetAgentLogs/
// StatusOverview-style queries can be served without scanning the WAL.
type Store struct {
	db *sql.DB
}

// New opens (creating if absent) the sqlite database at dbPath and
// ensures its schema exists.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create timeline dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open timeline database: %w", err)
	}

	// A single writer (the dispatch loop) touches this database; keep
	// the pool to one connection so SQLite never reports SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS timeline_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			source     TEXT NOT NULL,
			event_type TEXT NOT NULL,
			severity   TEXT NOT NULL,
			resource   TEXT NOT NULL,
			message    TEXT NOT NULL,
			details    TEXT NOT NULL DEFAULT '',
			metadata   TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_timeline_created
			ON timeline_events (created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_timeline_resource
			ON timeline_events (resource, created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_timeline_severity
			ON timeline_events (severity, created_at DESC, id DESC)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(context.Background(), stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) InsertTimelineEvent(ctx context.Context, write EventWrite) (Event, error) {
	now := write.CreatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	source := strings.TrimSpace(write.Source)
	if source == "" {
		source = DefaultSource
	}
	eventType := strings.TrimSpace(write.EventType)
	if eventType == "" {
		eventType = "engine.event"
	}
	severity := NormalizeSeverity(write.Severity)

	res, err := s.db.ExecContext(ctx, `INSERT INTO timeline_events (
		source, event_type, severity, resource, message, details, metadata, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		source,
		eventType,
		severity,
		strings.TrimSpace(write.Resource),
		strings.TrimSpace(write.Message),
		strings.TrimSpace(write.Details),
		strings.TrimSpace(write.Metadata),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return Event{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Event{}, err
	}
	return s.getByID(ctx, id)
}

func (s *Store) getByID(ctx context.Context, id int64) (Event, error) {
	var out Event
	err := s.db.QueryRowContext(ctx, `SELECT
		id, source, event_type, severity, resource, message, details, metadata, created_at
	FROM timeline_events
	WHERE id = ?`, id).Scan(
		&out.ID, &out.Source, &out.EventType, &out.Severity,
		&out.Resource, &out.Message, &out.Details, &out.Metadata, &out.CreatedAt,
	)
	if err != nil {
		return Event{}, err
	}
	return out, nil
}

func (s *Store) SearchTimelineEvents(ctx context.Context, query Query) (Result, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	search := "%" + strings.ToLower(strings.TrimSpace(query.Query)) + "%"
	rawSeverity := strings.ToLower(strings.TrimSpace(query.Severity))
	severity := ""
	switch rawSeverity {
	case "", "all":
		severity = ""
	case SeverityInfo, SeverityWarn, "warning", SeverityError, "err":
		severity = NormalizeSeverity(rawSeverity)
	default:
		return Result{}, fmt.Errorf("%w: severity", ErrInvalidFilter)
	}
	source := strings.ToLower(strings.TrimSpace(query.Source))
	resource := strings.ToLower(strings.TrimSpace(query.Resource))

	rows, err := s.db.QueryContext(ctx, `SELECT
		id, source, event_type, severity, resource, message, details, metadata, created_at
	FROM timeline_events
	WHERE (? = '' OR severity = ?)
	  AND (? = '' OR lower(source) = ?)
	  AND (? = '' OR lower(resource) = ?)
	  AND (? = '%%' OR (
		lower(message) LIKE ? OR
		lower(details) LIKE ? OR
		lower(resource) LIKE ? OR
		lower(event_type) LIKE ?
	  ))
	ORDER BY created_at DESC, id DESC
	LIMIT ?`, severity, severity, source, source, resource, resource, search, search, search, search, search, limit+1)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = rows.Close() }()

	events := make([]Event, 0, limit+1)
	for rows.Next() {
		var item Event
		if err := rows.Scan(
			&item.ID, &item.Source, &item.EventType, &item.Severity,
			&item.Resource, &item.Message, &item.Details, &item.Metadata, &item.CreatedAt,
		); err != nil {
			return Result{}, err
		}
		events = append(events, item)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	result := Result{Events: events}
	if len(result.Events) > limit {
		result.HasMore = true
		result.Events = result.Events[:limit]
	}
	return result, nil
}
