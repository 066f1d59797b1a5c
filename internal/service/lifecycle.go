package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/waterlab-lims-server/internal/domain"
)

// LifecycleService is the sole mutator of sample lifecycle state. All
// status-affecting writes go through Transition; no other code path
// touches current_status or the stamped fields.
type LifecycleService struct {
	samples domain.SampleStore
	sink    domain.AuditSink
	log     *logrus.Logger
	now     func() time.Time
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(samples domain.SampleStore, logger *logrus.Logger) *LifecycleService {
	return &LifecycleService{
		samples: samples,
		log:     logger,
		now:     time.Now,
	}
}

// WithClock replaces the service clock, primarily for tests.
func (s *LifecycleService) WithClock(now func() time.Time) *LifecycleService {
	s.now = now
	return s
}

// WithSink attaches the side-channel audit sink.
func (s *LifecycleService) WithSink(sink domain.AuditSink) *LifecycleService {
	s.sink = sink
	return s
}

// Transition moves the sample to target within one storage
// transaction: table validation, completeness gating, side-effect
// stamping, report-number allocation and audit emission commit or roll
// back together. The actor may be nil for system-triggered transitions.
func (s *LifecycleService) Transition(ctx context.Context, sampleID uuid.UUID, target domain.SampleStatus, actor *domain.User) (*domain.Sample, error) {
	if !target.IsValid() {
		return nil, domain.NewValidationError("target_status", "unknown sample status", string(target))
	}

	var updated *domain.Sample
	var committed *domain.AuditEvent
	err := s.samples.InTransition(ctx, sampleID, func(ctx context.Context, tx domain.TransitionTx) error {
		sample := tx.Sample()
		from := sample.CurrentStatus

		if !from.CanTransitionTo(target) {
			return &domain.InvalidTransitionError{From: from, To: target}
		}
		if target.RequiresCompleteResults() {
			requested := tx.RequestedParameterIDs()
			recorded := tx.ResultParameterIDs()
			if !domain.HasAllResults(requested, recorded) {
				return &domain.IncompleteResultsError{
					Requested: len(requested),
					Recorded:  len(recorded),
					Missing:   domain.MissingParameterIDs(requested, recorded),
				}
			}
		}

		oldValues := trackedFieldValues(sample)

		if err := s.applySideEffects(ctx, tx, sample, from, target); err != nil {
			return err
		}
		sample.CurrentStatus = target

		if err := tx.Save(ctx, sample); err != nil {
			return err
		}

		event := domain.NewAuditEvent(actor, domain.AUDIT_UPDATE, "sample",
			sample.ID.String(), sample.DisplayID, oldValues, trackedFieldValues(sample))
		if err := tx.RecordAudit(ctx, event); err != nil {
			return err
		}

		updated = sample
		committed = event
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishAudit(ctx, s.sink, s.log, committed)

	s.log.WithFields(logrus.Fields{
		"sample_id":  updated.ID,
		"display_id": updated.DisplayID,
		"status":     updated.CurrentStatus,
	}).Info("Sample transitioned")

	return updated, nil
}

func (s *LifecycleService) applySideEffects(ctx context.Context, tx domain.TransitionTx, sample *domain.Sample, from, target domain.SampleStatus) error {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if target == domain.SENT_TO_LAB && sample.DateReceivedAtLab == nil {
		sample.DateReceivedAtLab = &now
	}

	if target == domain.TESTING_IN_PROGRESS {
		if from == domain.REVIEW_PENDING {
			// Retest after rejection starts a fresh testing window.
			sample.TestCommencedOn = &today
			sample.TestCompletedOn = nil
		} else if sample.TestCommencedOn == nil {
			sample.TestCommencedOn = &today
		}
	}

	if target.StampsTestCompletion() && sample.TestCompletedOn == nil {
		sample.TestCompletedOn = &today
	}

	if target.ReportNumberEligible() && !hasReportNumber(sample) {
		number, err := tx.AllocateReportNumber(ctx)
		if err != nil {
			return err
		}
		sample.ReportNumber = &number
	}
	return nil
}

func hasReportNumber(sample *domain.Sample) bool {
	return sample.ReportNumber != nil && *sample.ReportNumber != ""
}

// trackedFieldValues snapshots the five audited lifecycle fields.
// Dates and timestamps are rendered as strings so before/after
// comparison is stable.
func trackedFieldValues(sample *domain.Sample) map[string]interface{} {
	return map[string]interface{}{
		"current_status":       string(sample.CurrentStatus),
		"date_received_at_lab": formatTimestamp(sample.DateReceivedAtLab),
		"test_commenced_on":    formatDate(sample.TestCommencedOn),
		"test_completed_on":    formatDate(sample.TestCompletedOn),
		"report_number":        formatOptional(sample.ReportNumber),
	}
}

func formatTimestamp(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

func formatOptional(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
