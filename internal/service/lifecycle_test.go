package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waterlab-lims-server/internal/domain"
)

func registeredSample(t *testing.T, store *fakeSampleStore, paramCount int) *domain.Sample {
	t.Helper()
	params := make([]uuid.UUID, paramCount)
	for i := range params {
		params[i] = uuid.New()
	}
	sample := &domain.Sample{
		CustomerID:        uuid.New(),
		CollectionTime:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Source:            domain.SOURCE_WELL,
		CollectedBy:       domain.COLLECTED_BY_CUSTOMER,
		SampleType:        "WATER",
		RequestedParamIDs: params,
	}
	require.NoError(t, store.Create(context.Background(), sample, nil))
	return sample
}

func recordAllResults(store *fakeSampleStore, sample *domain.Sample) {
	store.recorded[sample.ID] = append([]uuid.UUID(nil), sample.RequestedParamIDs...)
}

func TestLifecycle_HappyPathStampsAndAllocates(t *testing.T) {
	store := newFakeSampleStore()
	clock := fixedClock(time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC))
	svc := NewLifecycleService(store, testLogger()).WithClock(clock)
	ctx := context.Background()

	sample := registeredSample(t, store, 2)

	updated, err := svc.Transition(ctx, sample.ID, domain.SENT_TO_LAB, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SENT_TO_LAB, updated.CurrentStatus)
	require.NotNil(t, updated.DateReceivedAtLab)
	assert.Equal(t, clock().UTC(), *updated.DateReceivedAtLab)
	assert.Nil(t, updated.ReportNumber)

	updated, err = svc.Transition(ctx, sample.ID, domain.TESTING_IN_PROGRESS, nil)
	require.NoError(t, err)
	require.NotNil(t, updated.TestCommencedOn)
	assert.Equal(t, "2026-03-02", updated.TestCommencedOn.Format("2006-01-02"))
	assert.Nil(t, updated.TestCompletedOn)

	recordAllResults(store, sample)

	updated, err = svc.Transition(ctx, sample.ID, domain.RESULTS_ENTERED, nil)
	require.NoError(t, err)
	require.NotNil(t, updated.TestCompletedOn)
	require.NotNil(t, updated.ReportNumber)
	assert.Equal(t, "RPT2026-0001", *updated.ReportNumber)

	updated, err = svc.Transition(ctx, sample.ID, domain.REVIEW_PENDING, nil)
	require.NoError(t, err)
	updated, err = svc.Transition(ctx, sample.ID, domain.REPORT_APPROVED, nil)
	require.NoError(t, err)
	updated, err = svc.Transition(ctx, sample.ID, domain.REPORT_SENT, nil)
	require.NoError(t, err)
	assert.Equal(t, "RPT2026-0001", *updated.ReportNumber)
	assert.True(t, updated.CurrentStatus.IsTerminal())
}

func TestLifecycle_IllegalTransitionLeavesSampleUnchanged(t *testing.T) {
	store := newFakeSampleStore()
	svc := NewLifecycleService(store, testLogger())
	ctx := context.Background()

	sample := registeredSample(t, store, 1)

	_, err := svc.Transition(ctx, sample.ID, domain.REPORT_SENT, nil)
	var invalid *domain.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, domain.RECEIVED_FRONT_DESK, invalid.From)
	assert.Equal(t, domain.REPORT_SENT, invalid.To)

	unchanged, err := store.GetByID(ctx, sample.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RECEIVED_FRONT_DESK, unchanged.CurrentStatus)
	assert.Empty(t, store.audits)
}

func TestLifecycle_CompletenessGate(t *testing.T) {
	store := newFakeSampleStore()
	svc := NewLifecycleService(store, testLogger())
	ctx := context.Background()

	sample := registeredSample(t, store, 2)
	_, err := svc.Transition(ctx, sample.ID, domain.SENT_TO_LAB, nil)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, sample.ID, domain.TESTING_IN_PROGRESS, nil)
	require.NoError(t, err)

	// Only one of two requested parameters has a result.
	store.recorded[sample.ID] = sample.RequestedParamIDs[:1]

	_, err = svc.Transition(ctx, sample.ID, domain.RESULTS_ENTERED, nil)
	var incomplete *domain.IncompleteResultsError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, 2, incomplete.Requested)
	assert.Equal(t, 1, incomplete.Recorded)
	assert.Len(t, incomplete.Missing, 1)

	unchanged, err := store.GetByID(ctx, sample.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TESTING_IN_PROGRESS, unchanged.CurrentStatus)
	assert.Nil(t, unchanged.ReportNumber)

	// The missing result arrives; the same transition now succeeds.
	recordAllResults(store, sample)
	updated, err := svc.Transition(ctx, sample.ID, domain.RESULTS_ENTERED, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RESULTS_ENTERED, updated.CurrentStatus)
}

func TestLifecycle_GateRejectsZeroRequestedParameters(t *testing.T) {
	store := newFakeSampleStore()
	svc := NewLifecycleService(store, testLogger())
	ctx := context.Background()

	sample := registeredSample(t, store, 0)
	_, err := svc.Transition(ctx, sample.ID, domain.SENT_TO_LAB, nil)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, sample.ID, domain.TESTING_IN_PROGRESS, nil)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, sample.ID, domain.RESULTS_ENTERED, nil)
	var incomplete *domain.IncompleteResultsError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, 0, incomplete.Requested)
}

func TestLifecycle_RetestResetsWindowAndKeepsReportNumber(t *testing.T) {
	store := newFakeSampleStore()
	day := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc := NewLifecycleService(store, testLogger()).WithClock(fixedClock(day))
	ctx := context.Background()

	sample := registeredSample(t, store, 1)
	recordAllResults(store, sample)

	for _, target := range []domain.SampleStatus{
		domain.SENT_TO_LAB, domain.TESTING_IN_PROGRESS,
		domain.RESULTS_ENTERED, domain.REVIEW_PENDING,
	} {
		_, err := svc.Transition(ctx, sample.ID, target, nil)
		require.NoError(t, err)
	}

	before, err := store.GetByID(ctx, sample.ID)
	require.NoError(t, err)
	require.NotNil(t, before.ReportNumber)
	firstNumber := *before.ReportNumber
	require.NotNil(t, before.TestCompletedOn)

	// Consultant sends the sample back for retest on a later day.
	later := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	svc.WithClock(fixedClock(later))

	retest, err := svc.Transition(ctx, sample.ID, domain.TESTING_IN_PROGRESS, nil)
	require.NoError(t, err)
	require.NotNil(t, retest.TestCommencedOn)
	assert.Equal(t, "2026-03-09", retest.TestCommencedOn.Format("2006-01-02"))
	assert.Nil(t, retest.TestCompletedOn, "retest discards prior completion bookkeeping")
	require.NotNil(t, retest.ReportNumber)
	assert.Equal(t, firstNumber, *retest.ReportNumber)

	// Complete the retest cycle; the report number never changes.
	for _, target := range []domain.SampleStatus{
		domain.RESULTS_ENTERED, domain.REVIEW_PENDING, domain.REPORT_APPROVED,
	} {
		updated, err := svc.Transition(ctx, sample.ID, target, nil)
		require.NoError(t, err)
		assert.Equal(t, firstNumber, *updated.ReportNumber)
	}
}

func TestLifecycle_DateReceivedStampedOnce(t *testing.T) {
	store := newFakeSampleStore()
	svc := NewLifecycleService(store, testLogger())
	ctx := context.Background()

	sample := registeredSample(t, store, 1)
	received := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	stored := store.samples[sample.ID]
	stored.DateReceivedAtLab = &received

	updated, err := svc.Transition(ctx, sample.ID, domain.SENT_TO_LAB, nil)
	require.NoError(t, err)
	require.NotNil(t, updated.DateReceivedAtLab)
	assert.Equal(t, received, *updated.DateReceivedAtLab, "existing value never overwritten")
}

func TestLifecycle_EachTransitionEmitsOneAuditEvent(t *testing.T) {
	store := newFakeSampleStore()
	actor := &domain.User{ID: uuid.New(), Username: "frontdesk1", Role: domain.RoleFrontDesk}
	svc := NewLifecycleService(store, testLogger())
	ctx := context.Background()

	sample := registeredSample(t, store, 1)

	_, err := svc.Transition(ctx, sample.ID, domain.SENT_TO_LAB, actor)
	require.NoError(t, err)
	require.Len(t, store.audits, 1)

	event := store.audits[0]
	assert.Equal(t, domain.AUDIT_UPDATE, event.Action)
	assert.Equal(t, "sample", event.Entity)
	assert.Equal(t, sample.DisplayID, event.EntityLabel)
	require.NotNil(t, event.ActorID)
	assert.Equal(t, actor.ID, *event.ActorID)
	assert.Equal(t, string(domain.RECEIVED_FRONT_DESK), event.OldValues["current_status"])
	assert.Equal(t, string(domain.SENT_TO_LAB), event.NewValues["current_status"])
	assert.Contains(t, event.Changes, "current_status")
	assert.Contains(t, event.Changes, "date_received_at_lab")
}

func TestLifecycle_UnknownTargetRejected(t *testing.T) {
	store := newFakeSampleStore()
	svc := NewLifecycleService(store, testLogger())

	sample := registeredSample(t, store, 1)
	_, err := svc.Transition(context.Background(), sample.ID, domain.SampleStatus("SHIPPED"), nil)
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestLifecycle_MissingSample(t *testing.T) {
	store := newFakeSampleStore()
	svc := NewLifecycleService(store, testLogger())

	_, err := svc.Transition(context.Background(), uuid.New(), domain.SENT_TO_LAB, nil)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
