package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/waterlab-lims-server/internal/domain"
)

// SampleService handles sample registration and read access
type SampleService struct {
	samples   domain.SampleStore
	customers domain.CustomerStore
	sink      domain.AuditSink
	log       *logrus.Logger
}

// NewSampleService creates a new sample service
func NewSampleService(samples domain.SampleStore, customers domain.CustomerStore, logger *logrus.Logger) *SampleService {
	return &SampleService{
		samples:   samples,
		customers: customers,
		log:       logger,
	}
}

// WithSink attaches the side-channel audit sink.
func (s *SampleService) WithSink(sink domain.AuditSink) *SampleService {
	s.sink = sink
	return s
}

// CreateSample registers a new sample for an existing customer. The
// display ID is allocated and the initial status set within the
// creation transaction, alongside the audit event.
func (s *SampleService) CreateSample(ctx context.Context, actor *domain.User, sample *domain.Sample) (*domain.Sample, error) {
	if actor != nil && !actor.Role.CanManageSamples() {
		return nil, &domain.RoleViolationError{
			Action:  "register samples",
			Role:    actor.Role,
			Allowed: []domain.Role{domain.RoleFrontDesk, domain.RoleLab, domain.RoleAdmin},
		}
	}
	if err := sample.Validate(); err != nil {
		return nil, err
	}
	if len(sample.RequestedParamIDs) == 0 {
		return nil, domain.NewValidationError("requested_parameters",
			"at least one test parameter must be requested", sample.RequestedParamIDs)
	}
	if _, err := s.customers.GetByID(ctx, sample.CustomerID); err != nil {
		return nil, fmt.Errorf("resolving customer: %w", err)
	}

	if sample.ID == uuid.Nil {
		sample.ID = uuid.New()
	}
	sample.CurrentStatus = domain.RECEIVED_FRONT_DESK

	event := domain.NewAuditEvent(actor, domain.AUDIT_CREATE, "sample", sample.ID.String(), "",
		nil,
		map[string]interface{}{
			"customer_id":    sample.CustomerID.String(),
			"source":         string(sample.Source),
			"collected_by":   string(sample.CollectedBy),
			"current_status": string(sample.CurrentStatus),
		},
	)

	if err := s.samples.Create(ctx, sample, event); err != nil {
		return nil, err
	}
	publishAudit(ctx, s.sink, s.log, event)

	s.log.WithFields(logrus.Fields{
		"sample_id":  sample.ID,
		"display_id": sample.DisplayID,
	}).Info("Sample created")

	return sample, nil
}

// RegisterCustomer creates a new customer record
func (s *SampleService) RegisterCustomer(ctx context.Context, actor *domain.User, customer *domain.Customer) (*domain.Customer, error) {
	if actor != nil && !actor.Role.CanManageSamples() {
		return nil, &domain.RoleViolationError{
			Action:  "register customers",
			Role:    actor.Role,
			Allowed: []domain.Role{domain.RoleFrontDesk, domain.RoleLab, domain.RoleAdmin},
		}
	}

	if customer.ID == uuid.Nil {
		customer.ID = uuid.New()
	}
	event := domain.NewAuditEvent(actor, domain.AUDIT_CREATE, "customer", customer.ID.String(), customer.Name,
		nil, map[string]interface{}{"name": customer.Name})
	if err := s.customers.Create(ctx, customer, event); err != nil {
		return nil, err
	}
	publishAudit(ctx, s.sink, s.log, event)
	return customer, nil
}

// ListCustomers returns all registered customers
func (s *SampleService) ListCustomers(ctx context.Context) ([]*domain.Customer, error) {
	return s.customers.List(ctx)
}

// GetSample retrieves a sample by internal ID
func (s *SampleService) GetSample(ctx context.Context, id uuid.UUID) (*domain.Sample, error) {
	return s.samples.GetByID(ctx, id)
}

// GetSampleByDisplayID retrieves a sample by its WL<year>-NNNN code
func (s *SampleService) GetSampleByDisplayID(ctx context.Context, displayID string) (*domain.Sample, error) {
	return s.samples.GetByDisplayID(ctx, displayID)
}

// ListSamples returns samples newest-first, optionally status-filtered
func (s *SampleService) ListSamples(ctx context.Context, status domain.SampleStatus, limit, offset int) ([]*domain.Sample, error) {
	if status != "" && !status.IsValid() {
		return nil, domain.NewValidationError("status", "unknown sample status", string(status))
	}
	return s.samples.List(ctx, status, limit, offset)
}
