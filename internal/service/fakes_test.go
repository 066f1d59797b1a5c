package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/waterlab-lims-server/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// fakeSampleStore is an in-memory SampleStore with transactional
// semantics: InTransition operates on a copy and only publishes it
// when the callback succeeds.
type fakeSampleStore struct {
	samples   map[uuid.UUID]*domain.Sample
	recorded  map[uuid.UUID][]uuid.UUID
	audits    []*domain.AuditEvent
	sampleSeq int
	reportSeq int
	year      int
}

func newFakeSampleStore() *fakeSampleStore {
	return &fakeSampleStore{
		samples:  make(map[uuid.UUID]*domain.Sample),
		recorded: make(map[uuid.UUID][]uuid.UUID),
		year:     2026,
	}
}

func cloneSample(s *domain.Sample) *domain.Sample {
	c := *s
	if s.DateReceivedAtLab != nil {
		t := *s.DateReceivedAtLab
		c.DateReceivedAtLab = &t
	}
	if s.TestCommencedOn != nil {
		t := *s.TestCommencedOn
		c.TestCommencedOn = &t
	}
	if s.TestCompletedOn != nil {
		t := *s.TestCompletedOn
		c.TestCompletedOn = &t
	}
	if s.ReportNumber != nil {
		n := *s.ReportNumber
		c.ReportNumber = &n
	}
	c.RequestedParamIDs = append([]uuid.UUID(nil), s.RequestedParamIDs...)
	return &c
}

func (f *fakeSampleStore) Create(ctx context.Context, s *domain.Sample, event *domain.AuditEvent) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	f.sampleSeq++
	s.DisplayID = fmt.Sprintf("WL%d-%04d", f.year, f.sampleSeq)
	if s.CurrentStatus == "" {
		s.CurrentStatus = domain.RECEIVED_FRONT_DESK
	}
	f.samples[s.ID] = cloneSample(s)
	if event != nil {
		f.audits = append(f.audits, event)
	}
	return nil
}

func (f *fakeSampleStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Sample, error) {
	s, ok := f.samples[id]
	if !ok {
		return nil, fmt.Errorf("sample not found: %w", domain.ErrNotFound)
	}
	return cloneSample(s), nil
}

func (f *fakeSampleStore) GetByDisplayID(ctx context.Context, displayID string) (*domain.Sample, error) {
	for _, s := range f.samples {
		if s.DisplayID == displayID {
			return cloneSample(s), nil
		}
	}
	return nil, fmt.Errorf("sample not found: %w", domain.ErrNotFound)
}

func (f *fakeSampleStore) List(ctx context.Context, status domain.SampleStatus, limit, offset int) ([]*domain.Sample, error) {
	var out []*domain.Sample
	for _, s := range f.samples {
		if status == "" || s.CurrentStatus == status {
			out = append(out, cloneSample(s))
		}
	}
	return out, nil
}

func (f *fakeSampleStore) RequestedParameterIDs(ctx context.Context, sampleID uuid.UUID) ([]uuid.UUID, error) {
	s, ok := f.samples[sampleID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]uuid.UUID(nil), s.RequestedParamIDs...), nil
}

func (f *fakeSampleStore) ResultParameterIDs(ctx context.Context, sampleID uuid.UUID) ([]uuid.UUID, error) {
	return append([]uuid.UUID(nil), f.recorded[sampleID]...), nil
}

func (f *fakeSampleStore) InTransition(ctx context.Context, sampleID uuid.UUID, fn func(ctx context.Context, tx domain.TransitionTx) error) error {
	stored, ok := f.samples[sampleID]
	if !ok {
		return fmt.Errorf("sample not found: %w", domain.ErrNotFound)
	}

	tx := &fakeTransitionTx{
		store:  f,
		sample: cloneSample(stored),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if tx.saved != nil {
		f.samples[sampleID] = cloneSample(tx.saved)
	}
	f.audits = append(f.audits, tx.audits...)
	return nil
}

type fakeTransitionTx struct {
	store  *fakeSampleStore
	sample *domain.Sample
	saved  *domain.Sample
	audits []*domain.AuditEvent
}

func (t *fakeTransitionTx) Sample() *domain.Sample { return t.sample }

func (t *fakeTransitionTx) RequestedParameterIDs() []uuid.UUID {
	return append([]uuid.UUID(nil), t.sample.RequestedParamIDs...)
}

func (t *fakeTransitionTx) ResultParameterIDs() []uuid.UUID {
	return append([]uuid.UUID(nil), t.store.recorded[t.sample.ID]...)
}

func (t *fakeTransitionTx) AllocateReportNumber(ctx context.Context) (string, error) {
	t.store.reportSeq++
	return fmt.Sprintf("RPT%d-%04d", t.store.year, t.store.reportSeq), nil
}

func (t *fakeTransitionTx) Save(ctx context.Context, s *domain.Sample) error {
	t.saved = s
	return nil
}

func (t *fakeTransitionTx) RecordAudit(ctx context.Context, event *domain.AuditEvent) error {
	t.audits = append(t.audits, event)
	return nil
}

// fakeResultStore is an in-memory ResultStore keyed on (sample,
// parameter).
type fakeResultStore struct {
	results map[string]*domain.Result
	store   *fakeSampleStore
}

func newFakeResultStore(samples *fakeSampleStore) *fakeResultStore {
	return &fakeResultStore{
		results: make(map[string]*domain.Result),
		store:   samples,
	}
}

func resultKey(sampleID, parameterID uuid.UUID) string {
	return sampleID.String() + "/" + parameterID.String()
}

func (f *fakeResultStore) Upsert(ctx context.Context, r *domain.Result, event *domain.AuditEvent) error {
	copied := *r
	f.results[resultKey(r.SampleID, r.ParameterID)] = &copied
	f.syncRecorded(r.SampleID)
	return nil
}

func (f *fakeResultStore) UpsertBatch(ctx context.Context, results []*domain.Result, events []*domain.AuditEvent) error {
	for _, r := range results {
		if err := f.Upsert(ctx, r, nil); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeResultStore) GetBySampleAndParameter(ctx context.Context, sampleID, parameterID uuid.UUID) (*domain.Result, error) {
	r, ok := f.results[resultKey(sampleID, parameterID)]
	if !ok {
		return nil, fmt.Errorf("result not found: %w", domain.ErrNotFound)
	}
	copied := *r
	return &copied, nil
}

func (f *fakeResultStore) ListBySample(ctx context.Context, sampleID uuid.UUID) ([]*domain.Result, error) {
	var out []*domain.Result
	for _, r := range f.results {
		if r.SampleID == sampleID {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeResultStore) syncRecorded(sampleID uuid.UUID) {
	if f.store == nil {
		return
	}
	var ids []uuid.UUID
	for _, r := range f.results {
		if r.SampleID == sampleID {
			ids = append(ids, r.ParameterID)
		}
	}
	f.store.recorded[sampleID] = ids
}

// fakeReviewStore is an in-memory ReviewStore, one row per sample.
type fakeReviewStore struct {
	reviews map[uuid.UUID]*domain.ConsultantReview
}

func newFakeReviewStore() *fakeReviewStore {
	return &fakeReviewStore{reviews: make(map[uuid.UUID]*domain.ConsultantReview)}
}

func (f *fakeReviewStore) GetBySample(ctx context.Context, sampleID uuid.UUID) (*domain.ConsultantReview, error) {
	r, ok := f.reviews[sampleID]
	if !ok {
		return nil, fmt.Errorf("review not found: %w", domain.ErrNotFound)
	}
	copied := *r
	return &copied, nil
}

func (f *fakeReviewStore) Upsert(ctx context.Context, review *domain.ConsultantReview, event *domain.AuditEvent) error {
	copied := *review
	f.reviews[review.SampleID] = &copied
	return nil
}

// fakeOverrideFinder serves stored overrides keyed by scope and
// normalized value.
type fakeOverrideFinder struct {
	overrides []*domain.ResultStatusOverride
}

func (f *fakeOverrideFinder) Find(ctx context.Context, parameterID *uuid.UUID, normalizedValue string) (*domain.ResultStatusOverride, error) {
	for _, o := range f.overrides {
		if o.NormalizedValue != normalizedValue {
			continue
		}
		if parameterID == nil && o.ParameterID == nil {
			return o, nil
		}
		if parameterID != nil && o.ParameterID != nil && *parameterID == *o.ParameterID {
			return o, nil
		}
	}
	return nil, fmt.Errorf("override not found: %w", domain.ErrNotFound)
}

// fakeParameterStore is an in-memory ParameterStore.
type fakeParameterStore struct {
	params  map[uuid.UUID]*domain.Parameter
	creates int
	updates int
}

func newFakeParameterStore() *fakeParameterStore {
	return &fakeParameterStore{params: make(map[uuid.UUID]*domain.Parameter)}
}

func (f *fakeParameterStore) Create(ctx context.Context, p *domain.Parameter, event *domain.AuditEvent) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	copied := *p
	f.params[p.ID] = &copied
	f.creates++
	return nil
}

func (f *fakeParameterStore) Update(ctx context.Context, p *domain.Parameter, event *domain.AuditEvent) error {
	copied := *p
	f.params[p.ID] = &copied
	f.updates++
	return nil
}

func (f *fakeParameterStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Parameter, error) {
	p, ok := f.params[id]
	if !ok {
		return nil, fmt.Errorf("parameter not found: %w", domain.ErrNotFound)
	}
	copied := *p
	return &copied, nil
}

func (f *fakeParameterStore) GetByName(ctx context.Context, name string) (*domain.Parameter, error) {
	for _, p := range f.params {
		if strings.EqualFold(p.Name, name) {
			copied := *p
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("parameter not found: %w", domain.ErrNotFound)
}

func (f *fakeParameterStore) List(ctx context.Context) ([]*domain.Parameter, error) {
	var out []*domain.Parameter
	for _, p := range f.params {
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeParameterStore) Delete(ctx context.Context, id uuid.UUID, event *domain.AuditEvent) error {
	delete(f.params, id)
	return nil
}

// fakeCategoryStore is an in-memory CategoryStore.
type fakeCategoryStore struct {
	categories map[uuid.UUID]*domain.Category
	creates    int
	updates    int
}

func newFakeCategoryStore() *fakeCategoryStore {
	return &fakeCategoryStore{categories: make(map[uuid.UUID]*domain.Category)}
}

func (f *fakeCategoryStore) Create(ctx context.Context, c *domain.Category, event *domain.AuditEvent) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	copied := *c
	f.categories[c.ID] = &copied
	f.creates++
	return nil
}

func (f *fakeCategoryStore) Update(ctx context.Context, c *domain.Category, event *domain.AuditEvent) error {
	copied := *c
	f.categories[c.ID] = &copied
	f.updates++
	return nil
}

func (f *fakeCategoryStore) GetByName(ctx context.Context, name string) (*domain.Category, error) {
	for _, c := range f.categories {
		if strings.EqualFold(c.Name, name) {
			copied := *c
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("category not found: %w", domain.ErrNotFound)
}

func (f *fakeCategoryStore) List(ctx context.Context) ([]*domain.Category, error) {
	var out []*domain.Category
	for _, c := range f.categories {
		copied := *c
		out = append(out, &copied)
	}
	return out, nil
}

// fakeCustomerStore is an in-memory CustomerStore.
type fakeCustomerStore struct {
	customers map[uuid.UUID]*domain.Customer
}

func newFakeCustomerStore() *fakeCustomerStore {
	return &fakeCustomerStore{customers: make(map[uuid.UUID]*domain.Customer)}
}

func (f *fakeCustomerStore) Create(ctx context.Context, c *domain.Customer, event *domain.AuditEvent) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	copied := *c
	f.customers[c.ID] = &copied
	return nil
}

func (f *fakeCustomerStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer not found: %w", domain.ErrNotFound)
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCustomerStore) List(ctx context.Context) ([]*domain.Customer, error) {
	var out []*domain.Customer
	for _, c := range f.customers {
		copied := *c
		out = append(out, &copied)
	}
	return out, nil
}

// recordingDecisionHandler captures emitted review decisions.
type recordingDecisionHandler struct {
	decisions []domain.ReviewDecision
}

func (h *recordingDecisionHandler) HandleReviewDecision(ctx context.Context, decision domain.ReviewDecision) {
	h.decisions = append(h.decisions, decision)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
