package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/waterlab-lims-server/internal/domain"
)

// ReviewService handles consultant reviews. Saving a review that
// changes the decision emits a ReviewDecision event; the lifecycle
// handler consumes it separately so review persistence never depends
// on the secondary sample transition succeeding.
type ReviewService struct {
	reviews domain.ReviewStore
	samples domain.SampleStore
	handler domain.ReviewDecisionHandler
	sink    domain.AuditSink
	log     *logrus.Logger
	now     func() time.Time
}

// NewReviewService creates a new review service. handler may be nil
// when no lifecycle coupling is wanted (e.g. in isolation tests).
func NewReviewService(reviews domain.ReviewStore, samples domain.SampleStore, handler domain.ReviewDecisionHandler, logger *logrus.Logger) *ReviewService {
	return &ReviewService{
		reviews: reviews,
		samples: samples,
		handler: handler,
		log:     logger,
		now:     time.Now,
	}
}

// WithClock replaces the service clock, primarily for tests.
func (s *ReviewService) WithClock(now func() time.Time) *ReviewService {
	s.now = now
	return s
}

// WithSink attaches the side-channel audit sink.
func (s *ReviewService) WithSink(sink domain.AuditSink) *ReviewService {
	s.sink = sink
	return s
}

// SaveReview validates reviewability and the reviewer's role, persists
// the sample's single review row and, when the decision actually
// changed, hands the outcome to the lifecycle handler.
func (s *ReviewService) SaveReview(ctx context.Context, actor *domain.User, review *domain.ConsultantReview) (*domain.ConsultantReview, error) {
	if actor == nil || !actor.Role.CanReview() {
		role := domain.Role("")
		if actor != nil {
			role = actor.Role
		}
		return nil, &domain.RoleViolationError{
			Action:  "review samples",
			Role:    role,
			Allowed: []domain.Role{domain.RoleConsultant, domain.RoleAdmin},
		}
	}
	if err := review.Validate(); err != nil {
		return nil, err
	}

	sample, err := s.samples.GetByID(ctx, review.SampleID)
	if err != nil {
		return nil, fmt.Errorf("resolving sample: %w", err)
	}
	recorded, err := s.samples.ResultParameterIDs(ctx, sample.ID)
	if err != nil {
		return nil, fmt.Errorf("loading result coverage: %w", err)
	}
	if !sample.Reviewable(sample.RequestedParamIDs, recorded) {
		return nil, domain.NewValidationError("sample_id",
			fmt.Sprintf("sample %s is not reviewable: results must be complete and status RESULTS_ENTERED or REVIEW_PENDING", sample.DisplayID),
			string(sample.CurrentStatus))
	}

	previous, err := s.reviews.GetBySample(ctx, review.SampleID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	decided := s.decisionChanged(previous, review)

	if previous != nil {
		review.ID = previous.ID
	} else if review.ID == uuid.Nil {
		review.ID = uuid.New()
	}
	reviewerID := actor.ID
	review.ReviewerID = &reviewerID
	review.ReviewedAt = s.now().UTC()

	event := s.reviewAuditEvent(actor, previous, review, sample)
	if err := s.reviews.Upsert(ctx, review, event); err != nil {
		return nil, err
	}
	publishAudit(ctx, s.sink, s.log, event)

	if decided && s.handler != nil {
		s.handler.HandleReviewDecision(ctx, domain.ReviewDecision{
			SampleID: review.SampleID,
			Status:   review.Status,
			Reviewer: actor,
		})
	}
	return review, nil
}

// GetReview retrieves the sample's review
func (s *ReviewService) GetReview(ctx context.Context, sampleID uuid.UUID) (*domain.ConsultantReview, error) {
	return s.reviews.GetBySample(ctx, sampleID)
}

// decisionChanged reports whether the save carries a new decision: a
// brand-new review created directly with a non-pending status, or an
// existing review whose status value actually changed.
func (s *ReviewService) decisionChanged(previous, review *domain.ConsultantReview) bool {
	if previous == nil {
		return review.Status != domain.REVIEW_STATUS_PENDING
	}
	return previous.Status != review.Status
}

func (s *ReviewService) reviewAuditEvent(actor *domain.User, previous, review *domain.ConsultantReview, sample *domain.Sample) *domain.AuditEvent {
	newValues := map[string]interface{}{
		"status":          string(review.Status),
		"comments":        review.Comments,
		"recommendations": review.Recommendations,
	}
	if previous == nil {
		return domain.NewAuditEvent(actor, domain.AUDIT_CREATE, "consultant_review",
			review.ID.String(), sample.DisplayID, nil, newValues)
	}
	oldValues := map[string]interface{}{
		"status":          string(previous.Status),
		"comments":        previous.Comments,
		"recommendations": previous.Recommendations,
	}
	return domain.NewAuditEvent(actor, domain.AUDIT_UPDATE, "consultant_review",
		review.ID.String(), sample.DisplayID, oldValues, newValues)
}

// LifecycleReviewHandler maps review decisions onto sample
// transitions: APPROVED sends the sample to REPORT_APPROVED, REJECTED
// sends it back to TESTING_IN_PROGRESS for retest. Transition failures
// are logged and swallowed; the review stays persisted either way.
type LifecycleReviewHandler struct {
	lifecycle *LifecycleService
	log       *logrus.Logger
}

// NewLifecycleReviewHandler creates the lifecycle-coupling handler
func NewLifecycleReviewHandler(lifecycle *LifecycleService, logger *logrus.Logger) *LifecycleReviewHandler {
	return &LifecycleReviewHandler{
		lifecycle: lifecycle,
		log:       logger,
	}
}

// HandleReviewDecision implements domain.ReviewDecisionHandler.
func (h *LifecycleReviewHandler) HandleReviewDecision(ctx context.Context, decision domain.ReviewDecision) {
	var target domain.SampleStatus
	switch decision.Status {
	case domain.REVIEW_STATUS_APPROVED:
		target = domain.REPORT_APPROVED
	case domain.REVIEW_STATUS_REJECTED:
		target = domain.TESTING_IN_PROGRESS
	default:
		return
	}

	if _, err := h.lifecycle.Transition(ctx, decision.SampleID, target, decision.Reviewer); err != nil {
		h.log.WithFields(logrus.Fields{
			"sample_id": decision.SampleID,
			"decision":  decision.Status,
			"target":    target,
			"error":     err,
		}).Warn("Review decision transition failed, review kept")
	}
}
