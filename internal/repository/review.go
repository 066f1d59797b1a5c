package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/waterlab-lims-server/internal/domain"
)

// ReviewRepository persists the one-to-one consultant review per sample
type ReviewRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewReviewRepository creates a new review repository
func NewReviewRepository(db *pgxpool.Pool, logger *logrus.Logger) *ReviewRepository {
	return &ReviewRepository{
		db:  db,
		log: logger,
	}
}

// GetBySample retrieves the review for one sample
func (r *ReviewRepository) GetBySample(ctx context.Context, sampleID uuid.UUID) (*domain.ConsultantReview, error) {
	query := `
		SELECT id, sample_id, reviewer_id, comments, recommendations,
			   status, reviewed_at
		FROM consultant_reviews
		WHERE sample_id = $1`

	var review domain.ConsultantReview
	err := r.db.QueryRow(ctx, query, sampleID).Scan(
		&review.ID, &review.SampleID, &review.ReviewerID, &review.Comments,
		&review.Recommendations, &review.Status, &review.ReviewedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("review not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting review: %w", err)
	}
	return &review, nil
}

// Upsert inserts or updates the sample's single review row
func (r *ReviewRepository) Upsert(ctx context.Context, review *domain.ConsultantReview, event *domain.AuditEvent) error {
	if err := review.Validate(); err != nil {
		return err
	}
	if review.ID == uuid.Nil {
		review.ID = uuid.New()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO consultant_reviews (
			id, sample_id, reviewer_id, comments, recommendations,
			status, reviewed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		ON CONFLICT (sample_id) DO UPDATE SET
			reviewer_id = EXCLUDED.reviewer_id,
			comments = EXCLUDED.comments,
			recommendations = EXCLUDED.recommendations,
			status = EXCLUDED.status,
			reviewed_at = EXCLUDED.reviewed_at`

	_, err = tx.Exec(ctx, query,
		review.ID, review.SampleID, review.ReviewerID, review.Comments,
		review.Recommendations, review.Status, review.ReviewedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"sample_id": review.SampleID,
			"error":     err,
		}).Error("Failed to save review")
		return fmt.Errorf("saving review: %w", err)
	}

	if err := insertAuditEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing review save: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"sample_id": review.SampleID,
		"status":    review.Status,
	}).Info("Consultant review saved")

	return nil
}
