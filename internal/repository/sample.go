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

// allocation retries absorb races between concurrent ID allocators
// that slip past the row lock (e.g. two empty prefix groups).
const maxAllocationAttempts = 3

// SampleRepository persists samples, their requested-parameter sets and
// the lifecycle transition transaction.
type SampleRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
	now func() time.Time
}

// NewSampleRepository creates a new sample repository
func NewSampleRepository(db *pgxpool.Pool, logger *logrus.Logger) *SampleRepository {
	return &SampleRepository{
		db:  db,
		log: logger,
		now: time.Now,
	}
}

const sampleColumns = `
	id, display_id, customer_id, collection_time, source, collected_by,
	referred_by, current_status, date_received_at_lab, test_commenced_on,
	test_completed_on, report_number, ulr_number, sample_type,
	quantity_received, sampling_procedure, sampling_location, deviations,
	food_analyst_id, lab_manager_id, chem_manager_id, created_at, updated_at`

func scanSample(row pgx.Row) (*domain.Sample, error) {
	var s domain.Sample
	err := row.Scan(
		&s.ID, &s.DisplayID, &s.CustomerID, &s.CollectionTime, &s.Source,
		&s.CollectedBy, &s.ReferredBy, &s.CurrentStatus, &s.DateReceivedAtLab,
		&s.TestCommencedOn, &s.TestCompletedOn, &s.ReportNumber, &s.ULRNumber,
		&s.SampleType, &s.QuantityReceived, &s.SamplingProcedure,
		&s.SamplingLocation, &s.Deviations, &s.FoodAnalystID, &s.LabManagerID,
		&s.ChemManagerID, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts the sample together with its requested-parameter set,
// allocating the next WL<year>-NNNN display ID in the same transaction.
// The allocation is retried when a concurrent creator wins the race to
// the same identifier.
func (r *SampleRepository) Create(ctx context.Context, s *domain.Sample, event *domain.AuditEvent) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CurrentStatus == "" {
		s.CurrentStatus = domain.RECEIVED_FRONT_DESK
	}
	now := r.now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	var lastErr error
	for attempt := 0; attempt < maxAllocationAttempts; attempt++ {
		err := r.tryCreate(ctx, s, event)
		if err == nil {
			r.log.WithFields(logrus.Fields{
				"sample_id":  s.ID,
				"display_id": s.DisplayID,
				"customer":   s.CustomerID,
			}).Info("Sample registered")
			return nil
		}
		if !isUniqueViolation(err) {
			return err
		}
		lastErr = err
		r.log.WithFields(logrus.Fields{
			"display_id": s.DisplayID,
			"attempt":    attempt + 1,
		}).Warn("Display ID collision, retrying allocation")
	}
	return fmt.Errorf("allocating display ID after %d attempts: %w", maxAllocationAttempts, lastErr)
}

func (r *SampleRepository) tryCreate(ctx context.Context, s *domain.Sample, event *domain.AuditEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	displayID, err := nextIdentifier(ctx, tx, "display_id", DisplayIDPrefix(yearOf(r.now())))
	if err != nil {
		return err
	}
	s.DisplayID = displayID
	// Re-stamp on every attempt: a collision retry allocates a fresh
	// identifier and the audited label must match the committed row.
	if event != nil {
		event.EntityLabel = displayID
	}

	query := `
		INSERT INTO samples (` + sampleColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23
		)`

	_, err = tx.Exec(ctx, query,
		s.ID, s.DisplayID, s.CustomerID, s.CollectionTime, s.Source,
		s.CollectedBy, s.ReferredBy, s.CurrentStatus, s.DateReceivedAtLab,
		s.TestCommencedOn, s.TestCompletedOn, s.ReportNumber, s.ULRNumber,
		s.SampleType, s.QuantityReceived, s.SamplingProcedure,
		s.SamplingLocation, s.Deviations, s.FoodAnalystID, s.LabManagerID,
		s.ChemManagerID, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting sample: %w", err)
	}

	for _, paramID := range s.RequestedParamIDs {
		_, err = tx.Exec(ctx,
			`INSERT INTO sample_parameters (sample_id, parameter_id) VALUES ($1, $2)`,
			s.ID, paramID,
		)
		if err != nil {
			return fmt.Errorf("attaching requested parameter %s: %w", paramID, err)
		}
	}

	if err := insertAuditEvent(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// nextIdentifier computes the next value in a yearly prefix group. The
// highest existing identifier is read under FOR UPDATE so concurrent
// allocators within the same group serialize on the row; the unique
// index catches the remaining races.
func nextIdentifier(ctx context.Context, tx pgx.Tx, column, prefix string) (string, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM samples
		WHERE %s LIKE $1
		ORDER BY LENGTH(%s) DESC, %s DESC
		LIMIT 1
		FOR UPDATE`, column, column, column, column)

	var last string
	err := tx.QueryRow(ctx, query, prefix+"%").Scan(&last)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("reading %s sequence: %w", column, err)
	}
	return NextInSequence(last, prefix), nil
}

// GetByID retrieves a sample by its internal ID
func (r *SampleRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Sample, error) {
	return r.getOne(ctx, `SELECT`+sampleColumns+` FROM samples WHERE id = $1`, id)
}

// GetByDisplayID retrieves a sample by its WL<year>-NNNN identifier
func (r *SampleRepository) GetByDisplayID(ctx context.Context, displayID string) (*domain.Sample, error) {
	return r.getOne(ctx, `SELECT`+sampleColumns+` FROM samples WHERE display_id = $1`, displayID)
}

func (r *SampleRepository) getOne(ctx context.Context, query string, arg interface{}) (*domain.Sample, error) {
	s, err := scanSample(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("sample not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting sample: %w", err)
	}

	s.RequestedParamIDs, err = r.RequestedParameterIDs(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// List returns samples newest-first, optionally filtered by status. An
// empty status matches all samples.
func (r *SampleRepository) List(ctx context.Context, status domain.SampleStatus, limit, offset int) ([]*domain.Sample, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT` + sampleColumns + ` FROM samples`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE current_status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing samples: %w", err)
	}
	defer rows.Close()

	var out []*domain.Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RequestedParameterIDs returns the sample's requested-parameter set
func (r *SampleRepository) RequestedParameterIDs(ctx context.Context, sampleID uuid.UUID) ([]uuid.UUID, error) {
	return queryParameterIDs(ctx, r.db,
		`SELECT parameter_id FROM sample_parameters WHERE sample_id = $1`, sampleID)
}

// ResultParameterIDs returns the parameters with a recorded result
func (r *SampleRepository) ResultParameterIDs(ctx context.Context, sampleID uuid.UUID) ([]uuid.UUID, error) {
	return queryParameterIDs(ctx, r.db,
		`SELECT parameter_id FROM results WHERE sample_id = $1`, sampleID)
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func queryParameterIDs(ctx context.Context, q rowQuerier, query string, sampleID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, query, sampleID)
	if err != nil {
		return nil, fmt.Errorf("querying parameter IDs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning parameter ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InTransition runs fn against a row-locked view of the sample. All
// mutations made through the TransitionTx commit together; any error
// from fn rolls the whole transaction back. Report-number collisions
// between concurrent transitions are retried.
func (r *SampleRepository) InTransition(ctx context.Context, sampleID uuid.UUID, fn func(ctx context.Context, tx domain.TransitionTx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxAllocationAttempts; attempt++ {
		err := r.runTransition(ctx, sampleID, fn)
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return err
		}
		lastErr = err
		r.log.WithFields(logrus.Fields{
			"sample_id": sampleID,
			"attempt":   attempt + 1,
		}).Warn("Report number collision, retrying transition")
	}
	return fmt.Errorf("transition after %d attempts: %w", maxAllocationAttempts, lastErr)
}

func (r *SampleRepository) runTransition(ctx context.Context, sampleID uuid.UUID, fn func(ctx context.Context, tx domain.TransitionTx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	s, err := scanSample(tx.QueryRow(ctx,
		`SELECT`+sampleColumns+` FROM samples WHERE id = $1 FOR UPDATE`, sampleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("sample not found: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("locking sample: %w", err)
	}

	requested, err := queryParameterIDs(ctx, tx,
		`SELECT parameter_id FROM sample_parameters WHERE sample_id = $1`, sampleID)
	if err != nil {
		return err
	}
	recorded, err := queryParameterIDs(ctx, tx,
		`SELECT parameter_id FROM results WHERE sample_id = $1`, sampleID)
	if err != nil {
		return err
	}
	s.RequestedParamIDs = requested

	ttx := &pgTransitionTx{
		tx:        tx,
		sample:    s,
		requested: requested,
		recorded:  recorded,
		now:       r.now,
	}
	if err := fn(ctx, ttx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// pgTransitionTx is the TransitionTx implementation backed by one pgx
// transaction holding the sample's row lock.
type pgTransitionTx struct {
	tx        pgx.Tx
	sample    *domain.Sample
	requested []uuid.UUID
	recorded  []uuid.UUID
	now       func() time.Time
}

func (t *pgTransitionTx) Sample() *domain.Sample { return t.sample }

func (t *pgTransitionTx) RequestedParameterIDs() []uuid.UUID { return t.requested }

func (t *pgTransitionTx) ResultParameterIDs() []uuid.UUID { return t.recorded }

// AllocateReportNumber returns the next RPT<year>-NNNN. Allocators
// sharing the year prefix serialize on the FOR UPDATE scan.
func (t *pgTransitionTx) AllocateReportNumber(ctx context.Context) (string, error) {
	return nextIdentifier(ctx, t.tx, "report_number", ReportNumberPrefix(yearOf(t.now())))
}

// Save persists the sample's status-bearing fields within the
// transaction.
func (t *pgTransitionTx) Save(ctx context.Context, s *domain.Sample) error {
	s.UpdatedAt = t.now().UTC()

	query := `
		UPDATE samples SET
			current_status = $2, date_received_at_lab = $3,
			test_commenced_on = $4, test_completed_on = $5,
			report_number = $6, updated_at = $7
		WHERE id = $1`

	tag, err := t.tx.Exec(ctx, query,
		s.ID, s.CurrentStatus, s.DateReceivedAtLab,
		s.TestCommencedOn, s.TestCompletedOn, s.ReportNumber, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving sample: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sample %s: %w", s.ID, domain.ErrNotFound)
	}
	return nil
}

// RecordAudit writes the audit trail row within the transaction.
func (t *pgTransitionTx) RecordAudit(ctx context.Context, event *domain.AuditEvent) error {
	return insertAuditEvent(ctx, t.tx, event)
}
