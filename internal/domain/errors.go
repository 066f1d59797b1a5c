package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidationError represents an input validation failure on a single field.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// InvalidTransitionError reports a lifecycle transition not present in
// the legal-transition table. The sample is left unchanged.
type InvalidTransitionError struct {
	From SampleStatus `json:"from"`
	To   SampleStatus `json:"to"`
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

// IncompleteResultsError reports a transition into a results-gated
// state without full result coverage.
type IncompleteResultsError struct {
	Requested int         `json:"requested"`
	Recorded  int         `json:"recorded"`
	Missing   []uuid.UUID `json:"missing,omitempty"`
}

func (e *IncompleteResultsError) Error() string {
	if e.Requested == 0 {
		return "cannot proceed: no test parameters requested for this sample"
	}
	if len(e.Missing) == 0 {
		// Counts can match while the sets differ: a result recorded
		// for a parameter outside the requested set.
		return fmt.Sprintf("results do not match the requested parameter set (%d requested, %d recorded)",
			e.Requested, e.Recorded)
	}
	return fmt.Sprintf("missing results for %d of %d requested parameters",
		len(e.Missing), e.Requested)
}

// RoleViolationError reports an actor lacking the role required for an
// action. Raised at validation time, before persistence.
type RoleViolationError struct {
	Action  string `json:"action"`
	Role    Role   `json:"role"`
	Allowed []Role `json:"allowed"`
}

func (e *RoleViolationError) Error() string {
	return fmt.Sprintf("role %q may not %s", e.Role, e.Action)
}

// UniquenessError reports a violated uniqueness invariant: duplicate
// result per (sample, parameter), duplicate report number, or a
// case-insensitive parameter name collision.
type UniquenessError struct {
	Entity string `json:"entity"`
	Field  string `json:"field"`
	Value  string `json:"value"`
}

func (e *UniquenessError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Entity, e.Field, e.Value)
}

// ProtectedReferenceError reports a delete blocked by historical
// records still referencing the row, reported distinctly so callers can
// show an actionable message.
type ProtectedReferenceError struct {
	Entity       string `json:"entity"`
	ReferencedBy string `json:"referenced_by"`
}

func (e *ProtectedReferenceError) Error() string {
	return fmt.Sprintf("cannot delete %s: still referenced by %s", e.Entity, e.ReferencedBy)
}
