package domain

import (
	"context"

	"github.com/google/uuid"
)

// ParameterStore persists the test parameter catalog.
type ParameterStore interface {
	// Create inserts a parameter, failing with a UniquenessError on a
	// case-insensitive name collision.
	Create(ctx context.Context, p *Parameter, event *AuditEvent) error
	Update(ctx context.Context, p *Parameter, event *AuditEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Parameter, error)
	// GetByName matches case-insensitively.
	GetByName(ctx context.Context, name string) (*Parameter, error)
	// List returns parameters ordered by (display_order, name).
	List(ctx context.Context) ([]*Parameter, error)
	// Delete fails with a ProtectedReferenceError while results
	// reference the parameter.
	Delete(ctx context.Context, id uuid.UUID, event *AuditEvent) error
}

// CategoryStore persists report categories.
type CategoryStore interface {
	Create(ctx context.Context, c *Category, event *AuditEvent) error
	Update(ctx context.Context, c *Category, event *AuditEvent) error
	GetByName(ctx context.Context, name string) (*Category, error)
	List(ctx context.Context) ([]*Category, error)
}

// CustomerStore persists sample owners.
type CustomerStore interface {
	Create(ctx context.Context, c *Customer, event *AuditEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	List(ctx context.Context) ([]*Customer, error)
}

// TransitionTx is the view of a sample handed to the lifecycle service
// inside one storage transaction. Everything done through it commits or
// rolls back as a unit.
type TransitionTx interface {
	Sample() *Sample
	RequestedParameterIDs() []uuid.UUID
	ResultParameterIDs() []uuid.UUID
	// AllocateReportNumber serializes against concurrent allocators
	// sharing the year prefix and returns the next RPT<year>-NNNN.
	AllocateReportNumber(ctx context.Context) (string, error)
	// Save persists the sample's status-bearing fields.
	Save(ctx context.Context, s *Sample) error
	// RecordAudit writes the audit trail row within the transaction.
	RecordAudit(ctx context.Context, event *AuditEvent) error
}

// SampleStore persists samples and hosts the transition transaction.
type SampleStore interface {
	// Create inserts the sample and its requested-parameter set,
	// allocating the yearly-sequential display ID atomically.
	Create(ctx context.Context, s *Sample, event *AuditEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Sample, error)
	GetByDisplayID(ctx context.Context, displayID string) (*Sample, error)
	List(ctx context.Context, status SampleStatus, limit, offset int) ([]*Sample, error)
	RequestedParameterIDs(ctx context.Context, sampleID uuid.UUID) ([]uuid.UUID, error)
	ResultParameterIDs(ctx context.Context, sampleID uuid.UUID) ([]uuid.UUID, error)
	// InTransition runs fn against a row-locked view of the sample;
	// fn's error rolls every mutation back.
	InTransition(ctx context.Context, sampleID uuid.UUID, fn func(ctx context.Context, tx TransitionTx) error) error
}

// ResultStore persists test results.
type ResultStore interface {
	// Upsert has create-or-update semantics per (sample, parameter).
	Upsert(ctx context.Context, r *Result, event *AuditEvent) error
	// UpsertBatch applies all entries in one transaction; any failure
	// rolls the whole batch back.
	UpsertBatch(ctx context.Context, results []*Result, events []*AuditEvent) error
	GetBySampleAndParameter(ctx context.Context, sampleID, parameterID uuid.UUID) (*Result, error)
	// ListBySample returns results ordered for report layout:
	// (category display order, parameter display order, parameter name).
	ListBySample(ctx context.Context, sampleID uuid.UUID) ([]*Result, error)
}

// OverrideFinder looks up one active result-status override. A nil
// parameterID requests the global scope. The resolver calls the
// parameter scope first and falls back to global.
type OverrideFinder interface {
	Find(ctx context.Context, parameterID *uuid.UUID, normalizedValue string) (*ResultStatusOverride, error)
}

// OverrideStore persists result-status overrides.
type OverrideStore interface {
	OverrideFinder
	Save(ctx context.Context, o *ResultStatusOverride, event *AuditEvent) error
	List(ctx context.Context) ([]*ResultStatusOverride, error)
	Delete(ctx context.Context, id uuid.UUID, event *AuditEvent) error
}

// ReviewStore persists the one-to-one consultant review.
type ReviewStore interface {
	GetBySample(ctx context.Context, sampleID uuid.UUID) (*ConsultantReview, error)
	// Upsert inserts or updates the sample's single review row.
	Upsert(ctx context.Context, review *ConsultantReview, event *AuditEvent) error
}

// ReviewDecisionHandler consumes ReviewDecision events. The lifecycle
// service subscribes through this seam so review persistence and the
// secondary sample transition stay independently testable.
type ReviewDecisionHandler interface {
	HandleReviewDecision(ctx context.Context, decision ReviewDecision)
}
