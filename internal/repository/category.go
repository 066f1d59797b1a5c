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

// CategoryRepository persists report categories
type CategoryRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db *pgxpool.Pool, logger *logrus.Logger) *CategoryRepository {
	return &CategoryRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a new category
func (r *CategoryRepository) Create(ctx context.Context, c *domain.Category, event *domain.AuditEvent) error {
	if c.Name == "" {
		return domain.NewValidationError("name", "category name is required", c.Name)
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO categories (id, name, display_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = tx.Exec(ctx, query, c.ID, c.Name, c.DisplayOrder, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.UniquenessError{Entity: "category", Field: "name", Value: c.Name}
		}
		r.log.WithFields(logrus.Fields{
			"category": c.Name,
			"error":    err,
		}).Error("Failed to create category")
		return fmt.Errorf("creating category: %w", err)
	}

	if err := insertAuditEvent(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Update rewrites a category
func (r *CategoryRepository) Update(ctx context.Context, c *domain.Category, event *domain.AuditEvent) error {
	if c.Name == "" {
		return domain.NewValidationError("name", "category name is required", c.Name)
	}
	c.UpdatedAt = time.Now().UTC()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `UPDATE categories SET name = $2, display_order = $3, updated_at = $4 WHERE id = $1`

	tag, err := tx.Exec(ctx, query, c.ID, c.Name, c.DisplayOrder, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.UniquenessError{Entity: "category", Field: "name", Value: c.Name}
		}
		return fmt.Errorf("updating category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("category %s: %w", c.ID, domain.ErrNotFound)
	}

	if err := insertAuditEvent(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByName retrieves a category by name, matching case-insensitively
func (r *CategoryRepository) GetByName(ctx context.Context, name string) (*domain.Category, error) {
	query := `
		SELECT id, name, display_order, created_at, updated_at
		FROM categories
		WHERE LOWER(name) = LOWER($1)`

	var c domain.Category
	err := r.db.QueryRow(ctx, query, name).Scan(
		&c.ID, &c.Name, &c.DisplayOrder, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("category not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting category: %w", err)
	}
	return &c, nil
}

// List returns all categories in display order
func (r *CategoryRepository) List(ctx context.Context) ([]*domain.Category, error) {
	query := `
		SELECT id, name, display_order, created_at, updated_at
		FROM categories
		ORDER BY display_order, name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	var out []*domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.DisplayOrder, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
