package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/waterlab-lims-server/internal/domain"
)

// ResultService handles test result entry
type ResultService struct {
	results domain.ResultStore
	samples domain.SampleStore
	sink    domain.AuditSink
	log     *logrus.Logger
}

// NewResultService creates a new result service
func NewResultService(results domain.ResultStore, samples domain.SampleStore, logger *logrus.Logger) *ResultService {
	return &ResultService{
		results: results,
		samples: samples,
		log:     logger,
	}
}

// WithSink attaches the side-channel audit sink.
func (s *ResultService) WithSink(sink domain.AuditSink) *ResultService {
	s.sink = sink
	return s
}

// RecordResult creates or updates the result for one (sample,
// parameter) pair. Re-entry for the same pair overwrites the previous
// value; the storage constraint prevents duplicate rows.
func (s *ResultService) RecordResult(ctx context.Context, actor *domain.User, result *domain.Result) (*domain.Result, error) {
	if err := s.validateEntry(ctx, actor, result); err != nil {
		return nil, err
	}

	event, err := s.entryAuditEvent(ctx, actor, result)
	if err != nil {
		return nil, err
	}
	if err := s.results.Upsert(ctx, result, event); err != nil {
		return nil, err
	}
	publishAudit(ctx, s.sink, s.log, event)

	s.log.WithFields(logrus.Fields{
		"sample_id":    result.SampleID,
		"parameter_id": result.ParameterID,
	}).Info("Result recorded")

	return result, nil
}

// RecordResults applies a batch of results in one transaction. Any
// invalid entry fails the whole batch before anything is written.
func (s *ResultService) RecordResults(ctx context.Context, actor *domain.User, results []*domain.Result) error {
	if len(results) == 0 {
		return domain.NewValidationError("results", "at least one result is required", nil)
	}

	events := make([]*domain.AuditEvent, 0, len(results))
	for _, result := range results {
		if err := s.validateEntry(ctx, actor, result); err != nil {
			return err
		}
		event, err := s.entryAuditEvent(ctx, actor, result)
		if err != nil {
			return err
		}
		events = append(events, event)
	}

	if err := s.results.UpsertBatch(ctx, results, events); err != nil {
		return err
	}
	for _, event := range events {
		publishAudit(ctx, s.sink, s.log, event)
	}
	return nil
}

// ResultsForSample returns the sample's results in report order
func (s *ResultService) ResultsForSample(ctx context.Context, sampleID uuid.UUID) ([]*domain.Result, error) {
	return s.results.ListBySample(ctx, sampleID)
}

func (s *ResultService) validateEntry(ctx context.Context, actor *domain.User, result *domain.Result) error {
	if actor == nil || !actor.Role.CanEnterResults() {
		role := domain.Role("")
		if actor != nil {
			role = actor.Role
		}
		return &domain.RoleViolationError{
			Action:  "enter results",
			Role:    role,
			Allowed: []domain.Role{domain.RoleLab, domain.RoleAdmin},
		}
	}
	if err := result.Validate(); err != nil {
		return err
	}

	sample, err := s.samples.GetByID(ctx, result.SampleID)
	if err != nil {
		return fmt.Errorf("resolving sample: %w", err)
	}
	if !sample.CurrentStatus.ResultsEditable() {
		return domain.NewValidationError("current_status",
			fmt.Sprintf("results cannot be entered while the sample is %s", sample.CurrentStatus),
			string(sample.CurrentStatus))
	}
	if !containsID(sample.RequestedParamIDs, result.ParameterID) {
		return domain.NewValidationError("parameter_id",
			"parameter is not in the sample's requested set", result.ParameterID)
	}

	if result.TechnicianID == nil {
		id := actor.ID
		result.TechnicianID = &id
	}
	return nil
}

// entryAuditEvent builds a CREATE or UPDATE event depending on whether
// a result already exists for the pair.
func (s *ResultService) entryAuditEvent(ctx context.Context, actor *domain.User, result *domain.Result) (*domain.AuditEvent, error) {
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	newValues := map[string]interface{}{
		"value":       result.Value,
		"observation": result.Observation,
	}

	previous, err := s.results.GetBySampleAndParameter(ctx, result.SampleID, result.ParameterID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewAuditEvent(actor, domain.AUDIT_CREATE, "result",
				result.ID.String(), "", nil, newValues), nil
		}
		return nil, err
	}

	result.ID = previous.ID
	result.EnteredAt = previous.EnteredAt
	oldValues := map[string]interface{}{
		"value":       previous.Value,
		"observation": previous.Observation,
	}
	return domain.NewAuditEvent(actor, domain.AUDIT_UPDATE, "result",
		previous.ID.String(), "", oldValues, newValues), nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
