package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors shared across repositories and services.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidStatus = errors.New("invalid sample status")
)

// User is the acting identity for a core operation. Authentication and
// session handling live outside this module; the core only consumes the
// resolved role.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
}

// Category groups test parameters for report layout.
type Category struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Parameter is a named test definition with an optional numeric
// permissible range. MaxLimitDisplay, when set, expresses the
// acceptable outcome as text (e.g. "Absent/ml") and overrides the
// numeric limits for display and classification purposes.
type Parameter struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Unit            string     `json:"unit"`
	Method          string     `json:"method,omitempty"`
	MinLimit        *float64   `json:"min_limit,omitempty"`
	MaxLimit        *float64   `json:"max_limit,omitempty"`
	MaxLimitDisplay string     `json:"max_limit_display,omitempty"`
	ParentID        *uuid.UUID `json:"parent_id,omitempty"`
	CategoryID      *uuid.UUID `json:"category_id,omitempty"`
	DisplayOrder    int        `json:"display_order"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Validate ensures the parameter definition is internally consistent.
func (p *Parameter) Validate() error {
	if p.Name == "" {
		return NewValidationError("name", "parameter name is required", p.Name)
	}
	if p.Unit == "" {
		return NewValidationError("unit", "parameter unit is required", p.Unit)
	}
	if p.MinLimit != nil && p.MaxLimit != nil && *p.MinLimit > *p.MaxLimit {
		return NewValidationError("min_limit",
			fmt.Sprintf("minimum limit %v exceeds maximum limit %v", *p.MinLimit, *p.MaxLimit),
			*p.MinLimit)
	}
	if p.ParentID != nil && *p.ParentID == p.ID {
		return NewValidationError("parent_id", "parameter cannot be its own parent", p.ParentID)
	}
	return nil
}

// HasQualitativeLimit reports whether the acceptable outcome is
// expressed as text rather than a numeric range.
func (p *Parameter) HasQualitativeLimit() bool {
	return p.MaxLimitDisplay != ""
}

// ResultStatusOverride is an admin-declared mapping from a normalized
// free-text result value to a forced limit status. A nil ParameterID
// applies the override globally; parameter-scoped overrides take
// precedence at lookup time.
type ResultStatusOverride struct {
	ID              uuid.UUID  `json:"id"`
	ParameterID     *uuid.UUID `json:"parameter_id,omitempty"`
	TextValue       string     `json:"text_value"`
	NormalizedValue string     `json:"normalized_value"`
	Status          string     `json:"status"`
	Active          bool       `json:"active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Normalize recomputes the lookup key from the literal trigger text.
func (o *ResultStatusOverride) Normalize() {
	o.NormalizedValue = NormalizeResultValue(o.TextValue)
}

// Validate ensures the override is usable for lookups.
func (o *ResultStatusOverride) Validate() error {
	if o.TextValue == "" {
		return NewValidationError("text_value", "override trigger text is required", o.TextValue)
	}
	if _, ok := ParseLimitStatus(o.Status); !ok {
		return NewValidationError("status", "override status is outside the limit-status enum", o.Status)
	}
	return nil
}

// Customer owns samples. Address detail beyond what reports need stays
// out of the core.
type Customer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sample is one physical specimen submitted for testing.
//
// DisplayID (WL<year>-NNNN) is assigned exactly once at creation.
// ReportNumber (RPT<year>-NNNN), once assigned, is never reassigned or
// cleared by later transitions. DateReceivedAtLab, once set, is never
// overwritten. All status-bearing fields mutate only through the
// lifecycle transition entry point.
type Sample struct {
	ID                 uuid.UUID     `json:"id"`
	DisplayID          string        `json:"display_id"`
	CustomerID         uuid.UUID     `json:"customer_id"`
	CollectionTime     time.Time     `json:"collection_time"`
	Source             SampleSource  `json:"source"`
	CollectedBy        CollectorType `json:"collected_by"`
	ReferredBy         string        `json:"referred_by,omitempty"`
	CurrentStatus      SampleStatus  `json:"current_status"`
	DateReceivedAtLab  *time.Time    `json:"date_received_at_lab,omitempty"`
	TestCommencedOn    *time.Time    `json:"test_commenced_on,omitempty"`
	TestCompletedOn    *time.Time    `json:"test_completed_on,omitempty"`
	ReportNumber       *string       `json:"report_number,omitempty"`
	ULRNumber          string        `json:"ulr_number,omitempty"`
	SampleType         string        `json:"sample_type"`
	QuantityReceived   string        `json:"quantity_received,omitempty"`
	SamplingProcedure  string        `json:"sampling_procedure,omitempty"`
	SamplingLocation   string        `json:"sampling_location,omitempty"`
	Deviations         string        `json:"deviations,omitempty"`
	FoodAnalystID      *uuid.UUID    `json:"food_analyst_id,omitempty"`
	LabManagerID       *uuid.UUID    `json:"lab_manager_id,omitempty"`
	ChemManagerID      *uuid.UUID    `json:"chem_manager_id,omitempty"`
	RequestedParamIDs  []uuid.UUID   `json:"requested_parameter_ids,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Validate checks the fields settable at registration time.
func (s *Sample) Validate() error {
	if s.CustomerID == uuid.Nil {
		return NewValidationError("customer_id", "sample must belong to a customer", s.CustomerID)
	}
	if s.CollectionTime.IsZero() {
		return NewValidationError("collection_time", "collection time is required", s.CollectionTime)
	}
	if !s.Source.IsValid() {
		return NewValidationError("source", "unknown sample source", string(s.Source))
	}
	if !s.CollectedBy.IsValid() {
		return NewValidationError("collected_by", "unknown collector type", string(s.CollectedBy))
	}
	if s.DateReceivedAtLab != nil && s.DateReceivedAtLab.Before(s.CollectionTime) {
		return NewValidationError("date_received_at_lab",
			"date received at lab cannot be before collection time", s.DateReceivedAtLab)
	}
	return nil
}

// HasAllResults is the completeness predicate: the requested set is
// non-empty, every requested parameter has a recorded result, and no
// result refers to a parameter outside the requested set. Zero
// requested parameters never satisfies completeness.
func HasAllResults(requested, recorded []uuid.UUID) bool {
	if len(requested) == 0 || len(requested) != len(recorded) {
		return false
	}
	want := make(map[uuid.UUID]struct{}, len(requested))
	for _, id := range requested {
		want[id] = struct{}{}
	}
	for _, id := range recorded {
		if _, ok := want[id]; !ok {
			return false
		}
	}
	return true
}

// MissingParameterIDs returns the requested parameters that lack a
// recorded result, for actionable error messages.
func MissingParameterIDs(requested, recorded []uuid.UUID) []uuid.UUID {
	have := make(map[uuid.UUID]struct{}, len(recorded))
	for _, id := range recorded {
		have[id] = struct{}{}
	}
	var missing []uuid.UUID
	for _, id := range requested {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Reviewable reports whether the sample satisfies the consultant-review
// predicate: results complete and status RESULTS_ENTERED or
// REVIEW_PENDING.
func (s *Sample) Reviewable(requested, recorded []uuid.UUID) bool {
	if s.CurrentStatus != RESULTS_ENTERED && s.CurrentStatus != REVIEW_PENDING {
		return false
	}
	return HasAllResults(requested, recorded)
}

// Result is one measured value for one (sample, parameter) pair. Values
// are stored as free text; numeric values are parsed on demand by the
// limit-status resolver.
type Result struct {
	ID           uuid.UUID  `json:"id"`
	SampleID     uuid.UUID  `json:"sample_id"`
	ParameterID  uuid.UUID  `json:"parameter_id"`
	Value        string     `json:"value"`
	Observation  string     `json:"observation,omitempty"`
	TechnicianID *uuid.UUID `json:"technician_id,omitempty"`
	EnteredAt    time.Time  `json:"entered_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Validate checks the result fields at entry time. Technician role
// enforcement happens in the result service, where the acting user is
// known.
func (r *Result) Validate() error {
	if r.SampleID == uuid.Nil {
		return NewValidationError("sample_id", "result must belong to a sample", r.SampleID)
	}
	if r.ParameterID == uuid.Nil {
		return NewValidationError("parameter_id", "result must reference a parameter", r.ParameterID)
	}
	if r.Value == "" {
		return NewValidationError("value", "result value is required", r.Value)
	}
	return nil
}

// ConsultantReview is the one-to-one review outcome for a sample. The
// review timestamp is refreshed on every save.
type ConsultantReview struct {
	ID              uuid.UUID    `json:"id"`
	SampleID        uuid.UUID    `json:"sample_id"`
	ReviewerID      *uuid.UUID   `json:"reviewer_id,omitempty"`
	Comments        string       `json:"comments,omitempty"`
	Recommendations string       `json:"recommendations,omitempty"`
	Status          ReviewStatus `json:"status"`
	ReviewedAt      time.Time    `json:"reviewed_at"`
}

// Validate checks the review fields.
func (cr *ConsultantReview) Validate() error {
	if cr.SampleID == uuid.Nil {
		return NewValidationError("sample_id", "review must belong to a sample", cr.SampleID)
	}
	if !cr.Status.IsValid() {
		return NewValidationError("status", "unknown review status", string(cr.Status))
	}
	return nil
}

// ReviewDecision is the domain event emitted when a saved review's
// status actually changed (or a new review was created directly with a
// non-pending status). The sample lifecycle subscribes to it.
type ReviewDecision struct {
	SampleID uuid.UUID    `json:"sample_id"`
	Status   ReviewStatus `json:"status"`
	Reviewer *User        `json:"reviewer,omitempty"`
}
