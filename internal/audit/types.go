// Package audit provides queryable storage for the laboratory audit
// trail. The transactional trail is written alongside each mutation;
// this package reads it back for review and export, and offers an
// embedded SQLite variant for deployments without a shared archive.
package audit

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/waterlab-lims-server/internal/domain"
)

// Filter narrows List queries. Zero-valued fields are ignored.
type Filter struct {
	Entity   string             `json:"entity,omitempty"`
	EntityID string             `json:"entity_id,omitempty"`
	ActorID  *uuid.UUID         `json:"actor_id,omitempty"`
	Action   domain.AuditAction `json:"action,omitempty"`
	Since    *time.Time         `json:"since,omitempty"`
	Until    *time.Time         `json:"until,omitempty"`
	Limit    int                `json:"limit,omitempty"`
	Offset   int                `json:"offset,omitempty"`
}

// Store defines the interface for audit trail storage operations.
type Store interface {
	// Record appends one audit event to the trail.
	Record(ctx context.Context, event *domain.AuditEvent) error

	// List returns events matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*domain.AuditEvent, error)

	// Count returns the total number of recorded events.
	Count(ctx context.Context) (int64, error)

	// ExportJSON writes all matching events to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer, filter Filter) error

	// Close closes the store and releases resources.
	Close() error
}

// Export is the JSON export envelope.
type Export struct {
	Version    string               `json:"version"`
	ExportedAt time.Time            `json:"exported_at"`
	Count      int                  `json:"count"`
	Events     []*domain.AuditEvent `json:"events"`
}

// StoreSink adapts a Store to the domain sink interface so services
// can fan events out to it without knowing the storage backend.
type StoreSink struct {
	store Store
}

// NewStoreSink wraps a Store as a domain.AuditSink.
func NewStoreSink(store Store) *StoreSink {
	return &StoreSink{store: store}
}

// Record implements domain.AuditSink.
func (s *StoreSink) Record(ctx context.Context, event *domain.AuditEvent) error {
	return s.store.Record(ctx, event)
}

// defaultListLimit bounds List when the filter leaves Limit unset.
const defaultListLimit = 100

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000
