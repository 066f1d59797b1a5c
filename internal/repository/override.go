package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/waterlab-lims-server/internal/domain"
)

// OverrideRepository persists result-status overrides
type OverrideRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewOverrideRepository creates a new override repository
func NewOverrideRepository(db *pgxpool.Pool, logger *logrus.Logger) *OverrideRepository {
	return &OverrideRepository{
		db:  db,
		log: logger,
	}
}

const overrideColumns = `
	id, parameter_id, text_value, normalized_value, status, is_active,
	created_at, updated_at`

// Find returns the active override for one scope and normalized value.
// A nil parameterID requests the global scope. Scope fallback is the
// caller's concern.
func (r *OverrideRepository) Find(ctx context.Context, parameterID *uuid.UUID, normalizedValue string) (*domain.ResultStatusOverride, error) {
	var query string
	var args []interface{}
	if parameterID == nil {
		query = `SELECT` + overrideColumns + `
			FROM result_status_overrides
			WHERE parameter_id IS NULL AND normalized_value = $1 AND is_active`
		args = []interface{}{normalizedValue}
	} else {
		query = `SELECT` + overrideColumns + `
			FROM result_status_overrides
			WHERE parameter_id = $1 AND normalized_value = $2 AND is_active`
		args = []interface{}{*parameterID, normalizedValue}
	}

	var o domain.ResultStatusOverride
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&o.ID, &o.ParameterID, &o.TextValue, &o.NormalizedValue,
		&o.Status, &o.Active, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("override not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("finding override: %w", err)
	}
	return &o, nil
}

// Save inserts or updates an override, keyed on (scope, normalized
// value). The normalized lookup key is recomputed from the trigger text
// before writing.
func (r *OverrideRepository) Save(ctx context.Context, o *domain.ResultStatusOverride, event *domain.AuditEvent) error {
	o.Normalize()
	if err := o.Validate(); err != nil {
		return err
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO result_status_overrides (
			id, parameter_id, text_value, normalized_value, status,
			is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (COALESCE(parameter_id, '00000000-0000-0000-0000-000000000000'::uuid), normalized_value)
		DO UPDATE SET
			text_value = EXCLUDED.text_value,
			status = EXCLUDED.status,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`

	_, err = tx.Exec(ctx, query,
		o.ID, o.ParameterID, o.TextValue, o.NormalizedValue,
		o.Status, o.Active, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"normalized_value": o.NormalizedValue,
			"error":            err,
		}).Error("Failed to save override")
		return fmt.Errorf("saving override: %w", err)
	}

	if err := insertAuditEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing override save: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"override_id":      o.ID,
		"normalized_value": o.NormalizedValue,
		"status":           o.Status,
	}).Info("Override saved")

	return nil
}

// List returns all overrides, global scope first
func (r *OverrideRepository) List(ctx context.Context) ([]*domain.ResultStatusOverride, error) {
	query := `SELECT` + overrideColumns + `
		FROM result_status_overrides
		ORDER BY parameter_id NULLS FIRST, normalized_value`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing overrides: %w", err)
	}
	defer rows.Close()

	var out []*domain.ResultStatusOverride
	for rows.Next() {
		var o domain.ResultStatusOverride
		if err := rows.Scan(
			&o.ID, &o.ParameterID, &o.TextValue, &o.NormalizedValue,
			&o.Status, &o.Active, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning override: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// Delete removes an override
func (r *OverrideRepository) Delete(ctx context.Context, id uuid.UUID, event *domain.AuditEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM result_status_overrides WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("override %s: %w", id, domain.ErrNotFound)
	}

	if err := insertAuditEvent(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
