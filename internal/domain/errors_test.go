package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestInvalidTransitionErrorNamesBothStates(t *testing.T) {
	err := &InvalidTransitionError{From: REPORT_SENT, To: SENT_TO_LAB}
	want := "cannot transition from REPORT_SENT to SENT_TO_LAB"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}

	wrapped := fmt.Errorf("transition sample: %w", err)
	var target *InvalidTransitionError
	if !errors.As(wrapped, &target) {
		t.Fatal("Expected errors.As to unwrap InvalidTransitionError")
	}
	if target.From != REPORT_SENT {
		t.Errorf("Expected source state to survive wrapping, got %s", target.From)
	}
}

func TestIncompleteResultsErrorCounts(t *testing.T) {
	requested := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	recorded := requested[:3]
	err := &IncompleteResultsError{
		Requested: len(requested),
		Recorded:  len(recorded),
		Missing:   MissingParameterIDs(requested, recorded),
	}
	want := "missing results for 2 of 5 requested parameters"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}

	empty := &IncompleteResultsError{Requested: 0, Recorded: 0}
	if empty.Error() != "cannot proceed: no test parameters requested for this sample" {
		t.Errorf("Unexpected zero-requested message: %q", empty.Error())
	}
}

func TestIncompleteResultsErrorOrphanResultEqualCounts(t *testing.T) {
	// A result recorded for a non-requested parameter equalizes the
	// counts while the requested set is fully covered. The message must
	// not claim zero missing results.
	requested := []uuid.UUID{uuid.New(), uuid.New()}
	recorded := []uuid.UUID{requested[1], uuid.New()}
	err := &IncompleteResultsError{
		Requested: len(requested),
		Recorded:  len(recorded),
		Missing:   MissingParameterIDs(requested, recorded),
	}

	if HasAllResults(requested, recorded) {
		t.Fatal("Expected the orphaned set to fail the completeness predicate")
	}
	want := "missing results for 1 of 2 requested parameters"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}

	covered := []uuid.UUID{requested[0], requested[1], uuid.New()}
	fullCover := &IncompleteResultsError{
		Requested: len(requested),
		Recorded:  len(covered),
		Missing:   MissingParameterIDs(requested, covered),
	}
	if fullCover.Error() != "results do not match the requested parameter set (2 requested, 3 recorded)" {
		t.Errorf("Unexpected orphan-only message: %q", fullCover.Error())
	}
}

func TestRoleViolationError(t *testing.T) {
	err := &RoleViolationError{Action: "enter test results", Role: RoleFrontDesk, Allowed: []Role{RoleLab, RoleAdmin}}
	if err.Error() != `role "frontdesk" may not enter test results` {
		t.Errorf("Unexpected message: %q", err.Error())
	}
}

func TestUniquenessError(t *testing.T) {
	err := &UniquenessError{Entity: "parameter", Field: "name", Value: "pH"}
	if err.Error() != `parameter with name "pH" already exists` {
		t.Errorf("Unexpected message: %q", err.Error())
	}
}

func TestProtectedReferenceError(t *testing.T) {
	err := &ProtectedReferenceError{Entity: "parameter", ReferencedBy: "test results"}
	if err.Error() != "cannot delete parameter: still referenced by test results" {
		t.Errorf("Unexpected message: %q", err.Error())
	}

	var target *ProtectedReferenceError
	if !errors.As(fmt.Errorf("delete: %w", err), &target) {
		t.Fatal("Expected errors.As to unwrap ProtectedReferenceError")
	}
}
