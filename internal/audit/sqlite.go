package audit

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/waterlab-lims-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite. It serves
// single-node deployments that keep the audit archive next to the
// process instead of in the shared database.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite audit store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the audit tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_trail (
		id TEXT PRIMARY KEY,
		actor_id TEXT,
		actor_name TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		entity_label TEXT NOT NULL DEFAULT '',
		old_values TEXT NOT NULL DEFAULT '{}',
		new_values TEXT NOT NULL DEFAULT '{}',
		changes TEXT NOT NULL DEFAULT '{}',
		occurred_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_trail(entity, entity_id);
	CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_trail(actor_id);
	CREATE INDEX IF NOT EXISTS idx_audit_occurred_at ON audit_trail(occurred_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Record appends one audit event to the trail.
func (s *SQLiteStore) Record(ctx context.Context, event *domain.AuditEvent) error {
	oldValues, newValues, changes, err := marshalPayloads(event)
	if err != nil {
		return err
	}

	var actorID interface{}
	if event.ActorID != nil {
		actorID = event.ActorID.String()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_trail (
			id, actor_id, actor_name, action, entity, entity_id,
			entity_label, old_values, new_values, changes, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID.String(),
		actorID,
		event.ActorName,
		string(event.Action),
		event.Entity,
		event.EntityID,
		event.EntityLabel,
		string(oldValues),
		string(newValues),
		string(changes),
		event.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// List returns events matching the filter, newest first.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*domain.AuditEvent, error) {
	query := `
		SELECT id, actor_id, actor_name, action, entity, entity_id,
			entity_label, old_values, new_values, changes, occurred_at
		FROM audit_trail
	`

	var conditions []string
	var args []interface{}
	appendCondition := func(clause string, value interface{}) {
		conditions = append(conditions, clause)
		args = append(args, value)
	}

	if filter.Entity != "" {
		appendCondition("entity = ?", filter.Entity)
	}
	if filter.EntityID != "" {
		appendCondition("entity_id = ?", filter.EntityID)
	}
	if filter.ActorID != nil {
		appendCondition("actor_id = ?", filter.ActorID.String())
	}
	if filter.Action != "" {
		appendCondition("action = ?", string(filter.Action))
	}
	if filter.Since != nil {
		appendCondition("occurred_at >= ?", filter.Since.UTC())
	}
	if filter.Until != nil {
		appendCondition("occurred_at <= ?", filter.Until.UTC())
	}

	for i, condition := range conditions {
		if i == 0 {
			query += " WHERE " + condition
		} else {
			query += " AND " + condition
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var result []*domain.AuditEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

// Count returns the total number of recorded events.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_trail").Scan(&count)
	return count, err
}

// ExportJSON writes all matching events to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer, filter Filter) error {
	filter.Limit = maxExportLimit
	filter.Offset = 0
	return exportJSON(ctx, s, writer, filter)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
