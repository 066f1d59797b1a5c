package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditAction identifies the kind of change an audit event records.
type AuditAction string

const (
	AUDIT_CREATE AuditAction = "CREATE"
	AUDIT_UPDATE AuditAction = "UPDATE"
	AUDIT_DELETE AuditAction = "DELETE"
)

// FieldChange holds the before/after pair for one changed field.
type FieldChange struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// AuditEvent captures one mutation: the previous and new values of the
// tracked fields, attributed to the acting user. System-triggered
// changes carry a nil actor. Every successful core mutation emits
// exactly one event.
type AuditEvent struct {
	ID          uuid.UUID              `json:"id"`
	ActorID     *uuid.UUID             `json:"actor_id,omitempty"`
	ActorName   string                 `json:"actor_name,omitempty"`
	Action      AuditAction            `json:"action"`
	Entity      string                 `json:"entity"`
	EntityID    string                 `json:"entity_id"`
	EntityLabel string                 `json:"entity_label,omitempty"`
	OldValues   map[string]interface{} `json:"old_values,omitempty"`
	NewValues   map[string]interface{} `json:"new_values,omitempty"`
	Changes     map[string]FieldChange `json:"changes,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// NewAuditEvent builds an event for one mutation, computing the
// changed-field map from the old/new value maps.
func NewAuditEvent(actor *User, action AuditAction, entity, entityID, label string, oldValues, newValues map[string]interface{}) *AuditEvent {
	ev := &AuditEvent{
		ID:          uuid.New(),
		Action:      action,
		Entity:      entity,
		EntityID:    entityID,
		EntityLabel: label,
		OldValues:   oldValues,
		NewValues:   newValues,
		Changes:     computeChanges(oldValues, newValues),
		OccurredAt:  time.Now().UTC(),
	}
	if actor != nil {
		id := actor.ID
		ev.ActorID = &id
		ev.ActorName = actor.Username
	}
	return ev
}

func computeChanges(oldValues, newValues map[string]interface{}) map[string]FieldChange {
	if oldValues == nil || newValues == nil {
		return nil
	}
	changes := make(map[string]FieldChange)
	for field, newValue := range newValues {
		if oldValue, ok := oldValues[field]; !ok || oldValue != newValue {
			changes[field] = FieldChange{Old: oldValues[field], New: newValue}
		}
	}
	if len(changes) == 0 {
		return nil
	}
	return changes
}

// AuditSink receives audit events. Implementations range from the
// transactional audit trail table to external logging stores and the
// dashboard event feed.
type AuditSink interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// MultiSink fans one event out to several sinks. The first error is
// returned after all sinks have been offered the event.
type MultiSink []AuditSink

// Record implements AuditSink.
func (m MultiSink) Record(ctx context.Context, event *AuditEvent) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Record(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
