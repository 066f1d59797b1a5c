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

// CustomerRepository persists sample owners
type CustomerRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *pgxpool.Pool, logger *logrus.Logger) *CustomerRepository {
	return &CustomerRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a new customer
func (r *CustomerRepository) Create(ctx context.Context, c *domain.Customer, event *domain.AuditEvent) error {
	if c.Name == "" {
		return domain.NewValidationError("name", "customer name is required", c.Name)
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
		INSERT INTO customers (id, name, phone, email, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = tx.Exec(ctx, query, c.ID, c.Name, c.Phone, c.Email, c.Address, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"customer": c.Name,
			"error":    err,
		}).Error("Failed to create customer")
		return fmt.Errorf("creating customer: %w", err)
	}

	if err := insertAuditEvent(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByID retrieves a customer
func (r *CustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	query := `
		SELECT id, name, phone, email, address, created_at, updated_at
		FROM customers
		WHERE id = $1`

	var c domain.Customer
	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("customer not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting customer: %w", err)
	}
	return &c, nil
}

// List returns all customers ordered by name
func (r *CustomerRepository) List(ctx context.Context) ([]*domain.Customer, error) {
	query := `
		SELECT id, name, phone, email, address, created_at, updated_at
		FROM customers
		ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}
	defer rows.Close()

	var out []*domain.Customer
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning customer: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
