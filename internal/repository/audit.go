package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/waterlab-lims-server/internal/domain"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// execer is satisfied by both *pgxpool.Pool and pgx.Tx, so audit rows
// can be written inside or outside a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// insertAuditEvent writes one audit trail row. A nil event is a no-op
// so system-internal writes can opt out.
func insertAuditEvent(ctx context.Context, q execer, event *domain.AuditEvent) error {
	if event == nil {
		return nil
	}

	oldValues, err := marshalJSONMap(event.OldValues)
	if err != nil {
		return fmt.Errorf("encoding audit old values: %w", err)
	}
	newValues, err := marshalJSONMap(event.NewValues)
	if err != nil {
		return fmt.Errorf("encoding audit new values: %w", err)
	}
	changes, err := marshalChanges(event.Changes)
	if err != nil {
		return fmt.Errorf("encoding audit changes: %w", err)
	}

	query := `
		INSERT INTO audit_trail (
			id, actor_id, actor_name, action, entity, entity_id,
			entity_label, old_values, new_values, changes, occurred_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)`

	_, err = q.Exec(ctx, query,
		event.ID,
		event.ActorID,
		event.ActorName,
		event.Action,
		event.Entity,
		event.EntityID,
		event.EntityLabel,
		oldValues,
		newValues,
		changes,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

func marshalJSONMap(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func marshalChanges(m map[string]domain.FieldChange) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}
