package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waterlab-lims-server/internal/domain"
)

func labTechnician() *domain.User {
	return &domain.User{ID: uuid.New(), Username: "tech1", Role: domain.RoleLab}
}

func editableSample(t *testing.T, store *fakeSampleStore, paramCount int) *domain.Sample {
	t.Helper()
	sample := registeredSample(t, store, paramCount)
	store.samples[sample.ID].CurrentStatus = domain.TESTING_IN_PROGRESS
	return sample
}

func TestResultService_RecordResult(t *testing.T) {
	samples := newFakeSampleStore()
	results := newFakeResultStore(samples)
	svc := NewResultService(results, samples, testLogger())
	ctx := context.Background()

	sample := editableSample(t, samples, 1)
	tech := labTechnician()

	result := &domain.Result{
		SampleID:    sample.ID,
		ParameterID: sample.RequestedParamIDs[0],
		Value:       "7.2",
	}
	recorded, err := svc.RecordResult(ctx, tech, result)
	require.NoError(t, err)
	require.NotNil(t, recorded.TechnicianID)
	assert.Equal(t, tech.ID, *recorded.TechnicianID)

	// Re-entry for the same pair overwrites, no duplicate row.
	again := &domain.Result{
		SampleID:    sample.ID,
		ParameterID: sample.RequestedParamIDs[0],
		Value:       "7.4",
	}
	_, err = svc.RecordResult(ctx, tech, again)
	require.NoError(t, err)

	stored, err := svc.ResultsForSample(ctx, sample.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "7.4", stored[0].Value)
	assert.Equal(t, recorded.ID, stored[0].ID)
}

func TestResultService_RoleValidation(t *testing.T) {
	samples := newFakeSampleStore()
	svc := NewResultService(newFakeResultStore(samples), samples, testLogger())
	ctx := context.Background()

	sample := editableSample(t, samples, 1)
	result := &domain.Result{
		SampleID:    sample.ID,
		ParameterID: sample.RequestedParamIDs[0],
		Value:       "7.2",
	}

	tests := []struct {
		name    string
		actor   *domain.User
		allowed bool
	}{
		{"lab technician", &domain.User{ID: uuid.New(), Role: domain.RoleLab}, true},
		{"admin", &domain.User{ID: uuid.New(), Role: domain.RoleAdmin}, true},
		{"front desk", &domain.User{ID: uuid.New(), Role: domain.RoleFrontDesk}, false},
		{"consultant", &domain.User{ID: uuid.New(), Role: domain.RoleConsultant}, false},
		{"anonymous", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := *result
			entry.ID = uuid.Nil
			entry.TechnicianID = nil
			_, err := svc.RecordResult(ctx, tt.actor, &entry)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				var violation *domain.RoleViolationError
				require.ErrorAs(t, err, &violation)
				assert.Equal(t, "enter results", violation.Action)
			}
		})
	}
}

func TestResultService_RejectsNonEditableStatus(t *testing.T) {
	samples := newFakeSampleStore()
	svc := NewResultService(newFakeResultStore(samples), samples, testLogger())
	ctx := context.Background()

	sample := registeredSample(t, samples, 1)
	samples.samples[sample.ID].CurrentStatus = domain.REPORT_APPROVED

	result := &domain.Result{
		SampleID:    sample.ID,
		ParameterID: sample.RequestedParamIDs[0],
		Value:       "7.2",
	}
	_, err := svc.RecordResult(ctx, labTechnician(), result)
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "current_status", validation.Field)
}

func TestResultService_RejectsUnrequestedParameter(t *testing.T) {
	samples := newFakeSampleStore()
	svc := NewResultService(newFakeResultStore(samples), samples, testLogger())
	ctx := context.Background()

	sample := editableSample(t, samples, 1)
	result := &domain.Result{
		SampleID:    sample.ID,
		ParameterID: uuid.New(),
		Value:       "7.2",
	}
	_, err := svc.RecordResult(ctx, labTechnician(), result)
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "parameter_id", validation.Field)
}

func TestResultService_BatchFailsAsAWhole(t *testing.T) {
	samples := newFakeSampleStore()
	results := newFakeResultStore(samples)
	svc := NewResultService(results, samples, testLogger())
	ctx := context.Background()

	sample := editableSample(t, samples, 2)
	batch := []*domain.Result{
		{SampleID: sample.ID, ParameterID: sample.RequestedParamIDs[0], Value: "7.2"},
		{SampleID: sample.ID, ParameterID: sample.RequestedParamIDs[1], Value: ""},
	}

	err := svc.RecordResults(ctx, labTechnician(), batch)
	require.Error(t, err)

	stored, err := results.ListBySample(ctx, sample.ID)
	require.NoError(t, err)
	assert.Empty(t, stored, "invalid entry must leave no partial writes")
}

func TestResultService_BatchRecordsAll(t *testing.T) {
	samples := newFakeSampleStore()
	results := newFakeResultStore(samples)
	svc := NewResultService(results, samples, testLogger())
	ctx := context.Background()

	sample := editableSample(t, samples, 2)
	now := time.Now().UTC()
	batch := []*domain.Result{
		{SampleID: sample.ID, ParameterID: sample.RequestedParamIDs[0], Value: "7.2", EnteredAt: now},
		{SampleID: sample.ID, ParameterID: sample.RequestedParamIDs[1], Value: "0.2", EnteredAt: now},
	}

	require.NoError(t, svc.RecordResults(ctx, labTechnician(), batch))

	stored, err := results.ListBySample(ctx, sample.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}
