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

// ResultRepository persists test results
type ResultRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewResultRepository creates a new result repository
func NewResultRepository(db *pgxpool.Pool, logger *logrus.Logger) *ResultRepository {
	return &ResultRepository{
		db:  db,
		log: logger,
	}
}

// Upsert creates or updates the result for one (sample, parameter)
// pair. The uniqueness invariant is carried by the table constraint;
// re-entry updates the existing row in place.
func (r *ResultRepository) Upsert(ctx context.Context, result *domain.Result, event *domain.AuditEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := upsertResult(ctx, tx, result); err != nil {
		r.log.WithFields(logrus.Fields{
			"sample_id":    result.SampleID,
			"parameter_id": result.ParameterID,
			"error":        err,
		}).Error("Failed to upsert result")
		return err
	}
	if err := insertAuditEvent(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpsertBatch applies all entries in one transaction; any failure rolls
// the whole batch back.
func (r *ResultRepository) UpsertBatch(ctx context.Context, results []*domain.Result, events []*domain.AuditEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, result := range results {
		if err := upsertResult(ctx, tx, result); err != nil {
			return err
		}
	}
	for _, event := range events {
		if err := insertAuditEvent(ctx, tx, event); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing result batch: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"count": len(results),
	}).Info("Result batch recorded")

	return nil
}

func upsertResult(ctx context.Context, tx pgx.Tx, result *domain.Result) error {
	if err := result.Validate(); err != nil {
		return err
	}
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	now := time.Now().UTC()
	if result.EnteredAt.IsZero() {
		result.EnteredAt = now
	}
	result.UpdatedAt = now

	query := `
		INSERT INTO results (
			id, sample_id, parameter_id, value, observation,
			technician_id, entered_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (sample_id, parameter_id) DO UPDATE SET
			value = EXCLUDED.value,
			observation = EXCLUDED.observation,
			technician_id = EXCLUDED.technician_id,
			updated_at = EXCLUDED.updated_at`

	_, err := tx.Exec(ctx, query,
		result.ID, result.SampleID, result.ParameterID, result.Value,
		result.Observation, result.TechnicianID, result.EnteredAt, result.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting result: %w", err)
	}
	return nil
}

// GetBySampleAndParameter retrieves one result
func (r *ResultRepository) GetBySampleAndParameter(ctx context.Context, sampleID, parameterID uuid.UUID) (*domain.Result, error) {
	query := `
		SELECT id, sample_id, parameter_id, value, observation,
			   technician_id, entered_at, updated_at
		FROM results
		WHERE sample_id = $1 AND parameter_id = $2`

	var res domain.Result
	err := r.db.QueryRow(ctx, query, sampleID, parameterID).Scan(
		&res.ID, &res.SampleID, &res.ParameterID, &res.Value,
		&res.Observation, &res.TechnicianID, &res.EnteredAt, &res.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("result not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting result: %w", err)
	}
	return &res, nil
}

// ListBySample returns results ordered for report layout: category
// display order first, then parameter display order, then name.
func (r *ResultRepository) ListBySample(ctx context.Context, sampleID uuid.UUID) ([]*domain.Result, error) {
	query := `
		SELECT res.id, res.sample_id, res.parameter_id, res.value,
			   res.observation, res.technician_id, res.entered_at, res.updated_at
		FROM results res
		JOIN parameters p ON p.id = res.parameter_id
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE res.sample_id = $1
		ORDER BY COALESCE(c.display_order, 2147483647), p.display_order, p.name`

	rows, err := r.db.Query(ctx, query, sampleID)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	defer rows.Close()

	var out []*domain.Result
	for rows.Next() {
		var res domain.Result
		if err := rows.Scan(
			&res.ID, &res.SampleID, &res.ParameterID, &res.Value,
			&res.Observation, &res.TechnicianID, &res.EnteredAt, &res.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		out = append(out, &res)
	}
	return out, rows.Err()
}
