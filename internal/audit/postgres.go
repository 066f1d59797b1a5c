package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/waterlab-lims-server/internal/domain"
)

// PostgresStore implements the Store interface over the shared
// audit_trail table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL audit store. It expects the
// audit_trail table to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a PostgreSQL audit store from a
// connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Record appends one audit event to the trail.
func (s *PostgresStore) Record(ctx context.Context, event *domain.AuditEvent) error {
	oldValues, newValues, changes, err := marshalPayloads(event)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_trail (
			id, actor_id, actor_name, action, entity, entity_id,
			entity_label, old_values, new_values, changes, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.db.ExecContext(ctx, query,
		event.ID,
		event.ActorID,
		event.ActorName,
		string(event.Action),
		event.Entity,
		event.EntityID,
		event.EntityLabel,
		oldValues,
		newValues,
		changes,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// List returns events matching the filter, newest first.
func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*domain.AuditEvent, error) {
	query := `
		SELECT id, actor_id, actor_name, action, entity, entity_id,
			entity_label, old_values, new_values, changes, occurred_at
		FROM audit_trail
	`

	var conditions []string
	var args []interface{}
	appendCondition := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.Entity != "" {
		appendCondition("entity = $%d", filter.Entity)
	}
	if filter.EntityID != "" {
		appendCondition("entity_id = $%d", filter.EntityID)
	}
	if filter.ActorID != nil {
		appendCondition("actor_id = $%d", *filter.ActorID)
	}
	if filter.Action != "" {
		appendCondition("action = $%d", string(filter.Action))
	}
	if filter.Since != nil {
		appendCondition("occurred_at >= $%d", *filter.Since)
	}
	if filter.Until != nil {
		appendCondition("occurred_at <= $%d", *filter.Until)
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
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

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
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_trail").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// ExportJSON writes all matching events to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer, filter Filter) error {
	filter.Limit = maxExportLimit
	filter.Offset = 0
	return exportJSON(ctx, s, writer, filter)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// scanner is an interface for sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEvent scans a row into an AuditEvent, decoding the JSON payloads.
func scanEvent(s scanner) (*domain.AuditEvent, error) {
	event := &domain.AuditEvent{}
	var (
		actorID   sql.NullString
		action    string
		oldValues []byte
		newValues []byte
		changes   []byte
	)

	err := s.Scan(
		&event.ID, &actorID, &event.ActorName, &action,
		&event.Entity, &event.EntityID, &event.EntityLabel,
		&oldValues, &newValues, &changes, &event.OccurredAt,
	)
	if err != nil {
		return nil, err
	}

	event.Action = domain.AuditAction(action)
	if actorID.Valid && actorID.String != "" {
		id, err := uuid.Parse(actorID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid actor id %q: %w", actorID.String, err)
		}
		event.ActorID = &id
	}
	if err := unmarshalPayload(oldValues, &event.OldValues); err != nil {
		return nil, err
	}
	if err := unmarshalPayload(newValues, &event.NewValues); err != nil {
		return nil, err
	}
	if err := unmarshalPayload(changes, &event.Changes); err != nil {
		return nil, err
	}
	return event, nil
}

// marshalPayloads encodes the three JSON columns of an event.
func marshalPayloads(event *domain.AuditEvent) (oldValues, newValues, changes []byte, err error) {
	if oldValues, err = marshalPayload(event.OldValues); err != nil {
		return nil, nil, nil, err
	}
	if newValues, err = marshalPayload(event.NewValues); err != nil {
		return nil, nil, nil, err
	}
	if changes, err = marshalPayload(event.Changes); err != nil {
		return nil, nil, nil, err
	}
	return oldValues, newValues, changes, nil
}

func marshalPayload(value interface{}) ([]byte, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit payload: %w", err)
	}
	if string(encoded) == "null" {
		return []byte("{}"), nil
	}
	return encoded, nil
}

func unmarshalPayload(data []byte, target interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode audit payload: %w", err)
	}
	return nil
}

// exportJSON is shared between the backends.
func exportJSON(ctx context.Context, store Store, writer io.Writer, filter Filter) error {
	events, err := store.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list audit events: %w", err)
	}

	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Count:      len(events),
		Events:     events,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
