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

// ParameterRepository persists the test parameter catalog
type ParameterRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewParameterRepository creates a new parameter repository
func NewParameterRepository(db *pgxpool.Pool, logger *logrus.Logger) *ParameterRepository {
	return &ParameterRepository{
		db:  db,
		log: logger,
	}
}

const parameterColumns = `
	id, name, unit, method, min_limit, max_limit, max_limit_display,
	parent_id, category_id, display_order, created_at, updated_at`

// Create inserts a new parameter together with its audit row. A
// case-insensitive name collision surfaces as a UniquenessError.
func (r *ParameterRepository) Create(ctx context.Context, p *domain.Parameter, event *domain.AuditEvent) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO parameters (
			id, name, unit, method, min_limit, max_limit, max_limit_display,
			parent_id, category_id, display_order, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)`

	_, err = tx.Exec(ctx, query,
		p.ID, p.Name, p.Unit, p.Method, p.MinLimit, p.MaxLimit, p.MaxLimitDisplay,
		p.ParentID, p.CategoryID, p.DisplayOrder, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.UniquenessError{Entity: "parameter", Field: "name", Value: p.Name}
		}
		r.log.WithFields(logrus.Fields{
			"parameter": p.Name,
			"error":     err,
		}).Error("Failed to create parameter")
		return fmt.Errorf("creating parameter: %w", err)
	}

	if err := insertAuditEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing parameter create: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"parameter_id": p.ID,
		"name":         p.Name,
	}).Info("Parameter created")

	return nil
}

// parentResolver resolves a parameter's parent ID. Backed by the
// parameters table in production; tests substitute a map.
type parentResolver func(ctx context.Context, id uuid.UUID) (*uuid.UUID, error)

// maxParentDepth bounds the parent-chain walk. Real hierarchies are two
// or three levels (e.g. Coliforms and its members); anything deeper is
// corrupt data.
const maxParentDepth = 16

// checkParentChain walks the proposed parent chain and rejects an
// assignment that would lead back to the parameter itself. A parent
// missing mid-walk ends the chain; row existence is the FK's job.
func checkParentChain(ctx context.Context, resolve parentResolver, id uuid.UUID, parentID *uuid.UUID) error {
	depth := 0
	for current := parentID; current != nil; {
		if *current == id {
			return domain.NewValidationError("parent_id",
				"parameter parent chain forms a cycle", parentID)
		}
		depth++
		if depth > maxParentDepth {
			return domain.NewValidationError("parent_id",
				fmt.Sprintf("parameter parent chain exceeds depth %d", maxParentDepth), parentID)
		}
		next, err := resolve(ctx, *current)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		current = next
	}
	return nil
}

func (r *ParameterRepository) resolveParent(ctx context.Context, id uuid.UUID) (*uuid.UUID, error) {
	var parentID *uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT parent_id FROM parameters WHERE id = $1`, id).Scan(&parentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("resolving parameter parent: %w", err)
	}
	return parentID, nil
}

// Update rewrites a parameter definition
func (r *ParameterRepository) Update(ctx context.Context, p *domain.Parameter, event *domain.AuditEvent) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ParentID != nil {
		if err := checkParentChain(ctx, r.resolveParent, p.ID, p.ParentID); err != nil {
			return err
		}
	}
	p.UpdatedAt = time.Now().UTC()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE parameters SET
			name = $2, unit = $3, method = $4, min_limit = $5, max_limit = $6,
			max_limit_display = $7, parent_id = $8, category_id = $9,
			display_order = $10, updated_at = $11
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query,
		p.ID, p.Name, p.Unit, p.Method, p.MinLimit, p.MaxLimit,
		p.MaxLimitDisplay, p.ParentID, p.CategoryID, p.DisplayOrder, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.UniquenessError{Entity: "parameter", Field: "name", Value: p.Name}
		}
		r.log.WithFields(logrus.Fields{
			"parameter_id": p.ID,
			"error":        err,
		}).Error("Failed to update parameter")
		return fmt.Errorf("updating parameter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("parameter %s: %w", p.ID, domain.ErrNotFound)
	}

	if err := insertAuditEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing parameter update: %w", err)
	}
	return nil
}

// GetByID retrieves a parameter by its ID
func (r *ParameterRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Parameter, error) {
	query := `SELECT` + parameterColumns + ` FROM parameters WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

// GetByName retrieves a parameter by name, matching case-insensitively
func (r *ParameterRepository) GetByName(ctx context.Context, name string) (*domain.Parameter, error) {
	query := `SELECT` + parameterColumns + ` FROM parameters WHERE LOWER(name) = LOWER($1)`
	return r.scanOne(ctx, query, name)
}

func (r *ParameterRepository) scanOne(ctx context.Context, query string, arg interface{}) (*domain.Parameter, error) {
	var p domain.Parameter
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&p.ID, &p.Name, &p.Unit, &p.Method, &p.MinLimit, &p.MaxLimit,
		&p.MaxLimitDisplay, &p.ParentID, &p.CategoryID, &p.DisplayOrder,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("parameter not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting parameter: %w", err)
	}
	return &p, nil
}

// List returns the full catalog ordered for display
func (r *ParameterRepository) List(ctx context.Context) ([]*domain.Parameter, error) {
	query := `SELECT` + parameterColumns + ` FROM parameters ORDER BY display_order, name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing parameters: %w", err)
	}
	defer rows.Close()

	var out []*domain.Parameter
	for rows.Next() {
		var p domain.Parameter
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Unit, &p.Method, &p.MinLimit, &p.MaxLimit,
			&p.MaxLimitDisplay, &p.ParentID, &p.CategoryID, &p.DisplayOrder,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning parameter: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Delete removes a parameter. The delete is blocked with a
// ProtectedReferenceError while any test result still references it.
func (r *ParameterRepository) Delete(ctx context.Context, id uuid.UUID, event *domain.AuditEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM parameters WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			r.log.WithFields(logrus.Fields{
				"parameter_id": id,
			}).Warn("Parameter delete blocked by existing results")
			return &domain.ProtectedReferenceError{Entity: "parameter", ReferencedBy: "test results"}
		}
		return fmt.Errorf("deleting parameter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("parameter %s: %w", id, domain.ErrNotFound)
	}

	if err := insertAuditEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing parameter delete: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"parameter_id": id,
	}).Info("Parameter deleted")

	return nil
}
