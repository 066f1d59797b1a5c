// Package domain contains the core business entities and types for the
// water-testing laboratory LIMS: samples, test parameters, results,
// consultant reviews and the sample lifecycle state machine.
package domain

import (
	"errors"
	"strings"
)

// SampleStatus represents the lifecycle state of a water sample.
// Status-bearing fields on a Sample may only be mutated through the
// lifecycle transition entry point; the legal transitions are defined
// by sampleTransitions below.
type SampleStatus string

const (
	RECEIVED_FRONT_DESK SampleStatus = "RECEIVED_FRONT_DESK"
	SENT_TO_LAB         SampleStatus = "SENT_TO_LAB"
	TESTING_IN_PROGRESS SampleStatus = "TESTING_IN_PROGRESS"
	RESULTS_ENTERED     SampleStatus = "RESULTS_ENTERED"
	REVIEW_PENDING      SampleStatus = "REVIEW_PENDING"
	REPORT_APPROVED     SampleStatus = "REPORT_APPROVED"
	REPORT_SENT         SampleStatus = "REPORT_SENT"
	CANCELLED           SampleStatus = "CANCELLED"
)

// LimitStatus classifies a test result against its parameter's
// permissible range.
type LimitStatus string

const (
	WITHIN_LIMITS LimitStatus = "WITHIN_LIMITS"
	ABOVE_LIMIT   LimitStatus = "ABOVE_LIMIT"
	BELOW_LIMIT   LimitStatus = "BELOW_LIMIT"
	NON_NUMERIC   LimitStatus = "NON_NUMERIC"
	UNKNOWN       LimitStatus = "UNKNOWN"
)

// ReviewStatus represents the outcome of a consultant review.
type ReviewStatus string

const (
	REVIEW_STATUS_PENDING  ReviewStatus = "PENDING"
	REVIEW_STATUS_APPROVED ReviewStatus = "APPROVED"
	REVIEW_STATUS_REJECTED ReviewStatus = "REJECTED"
)

// SampleSource represents where the specimen was drawn from.
type SampleSource string

const (
	SOURCE_WELL     SampleSource = "WELL"
	SOURCE_BOREWELL SampleSource = "BOREWELL"
	SOURCE_TAP      SampleSource = "TAP"
	SOURCE_RIVER    SampleSource = "RIVER"
	SOURCE_POND     SampleSource = "POND"
	SOURCE_OTHER    SampleSource = "OTHER"
)

// CollectorType represents who collected the specimen.
type CollectorType string

const (
	COLLECTED_BY_CUSTOMER   CollectorType = "CUSTOMER"
	COLLECTED_BY_LABORATORY CollectorType = "LABORATORY_PERSON"
	COLLECTED_BY_GOVERNMENT CollectorType = "GOVERNMENT_DEPT"
)

// Role is the closed set of actor roles. Capability checks go through
// the predicates below rather than ad-hoc string comparisons.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleLab        Role = "lab"
	RoleFrontDesk  Role = "frontdesk"
	RoleConsultant Role = "consultant"
)

// ErrUnknownRole is returned by ParseRole for values outside the closed set.
var ErrUnknownRole = errors.New("unknown role")

// sampleTransitions is the legal-transition table for the sample
// lifecycle. A transition absent from this table is rejected outright;
// result-completeness gating is applied on top of it.
var sampleTransitions = map[SampleStatus][]SampleStatus{
	RECEIVED_FRONT_DESK: {SENT_TO_LAB, CANCELLED},
	SENT_TO_LAB:         {TESTING_IN_PROGRESS, CANCELLED},
	TESTING_IN_PROGRESS: {RESULTS_ENTERED, CANCELLED},
	RESULTS_ENTERED:     {REVIEW_PENDING},
	REVIEW_PENDING:      {REPORT_APPROVED, TESTING_IN_PROGRESS},
	REPORT_APPROVED:     {REPORT_SENT},
	REPORT_SENT:         {},
	CANCELLED:           {},
}

// IsValid reports whether the status is a member of the closed enum.
func (s SampleStatus) IsValid() bool {
	_, ok := sampleTransitions[s]
	return ok
}

// String returns the string representation of the status.
func (s SampleStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether target is reachable from s per the
// legal-transition table.
func (s SampleStatus) CanTransitionTo(target SampleStatus) bool {
	for _, allowed := range sampleTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the targets reachable from s.
func (s SampleStatus) AllowedTransitions() []SampleStatus {
	allowed := sampleTransitions[s]
	out := make([]SampleStatus, len(allowed))
	copy(out, allowed)
	return out
}

// IsTerminal reports whether no further transitions are possible.
func (s SampleStatus) IsTerminal() bool {
	return s.IsValid() && len(sampleTransitions[s]) == 0
}

// RequiresCompleteResults reports whether entering this status is gated
// on the result-completeness predicate.
func (s SampleStatus) RequiresCompleteResults() bool {
	return s == RESULTS_ENTERED || s == REVIEW_PENDING
}

// ReportNumberEligible reports whether entering this status triggers
// report-number allocation.
func (s SampleStatus) ReportNumberEligible() bool {
	switch s {
	case RESULTS_ENTERED, REVIEW_PENDING, REPORT_APPROVED, REPORT_SENT:
		return true
	default:
		return false
	}
}

// StampsTestCompletion reports whether entering this status stamps
// test_completed_on when unset.
func (s SampleStatus) StampsTestCompletion() bool {
	return s.ReportNumberEligible()
}

// ResultsEditable reports whether technicians may enter or amend
// results while the sample is in this status.
func (s SampleStatus) ResultsEditable() bool {
	return s == SENT_TO_LAB || s == TESTING_IN_PROGRESS
}

// IsCompleted reports whether sample processing has finished with an
// approved report.
func (s SampleStatus) IsCompleted() bool {
	return s == REPORT_APPROVED || s == REPORT_SENT
}

// IsValid reports whether the limit status is a member of the closed enum.
func (ls LimitStatus) IsValid() bool {
	switch ls {
	case WITHIN_LIMITS, ABOVE_LIMIT, BELOW_LIMIT, NON_NUMERIC, UNKNOWN:
		return true
	default:
		return false
	}
}

// String returns the string representation of the limit status.
func (ls LimitStatus) String() string {
	return string(ls)
}

// IsWithinLimits derives the compliance predicate from the
// classification: true for WITHIN_LIMITS and NON_NUMERIC, false for
// ABOVE_LIMIT and BELOW_LIMIT, nil for UNKNOWN.
func (ls LimitStatus) IsWithinLimits() *bool {
	var v bool
	switch ls {
	case WITHIN_LIMITS, NON_NUMERIC:
		v = true
	case ABOVE_LIMIT, BELOW_LIMIT:
		v = false
	default:
		return nil
	}
	return &v
}

// ParseLimitStatus clamps a stored status string to the closed enum.
// Unrecognized values return false so callers can ignore them.
func ParseLimitStatus(raw string) (LimitStatus, bool) {
	ls := LimitStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !ls.IsValid() {
		return "", false
	}
	return ls, true
}

// IsValid reports whether the review status is a member of the closed enum.
func (rs ReviewStatus) IsValid() bool {
	switch rs {
	case REVIEW_STATUS_PENDING, REVIEW_STATUS_APPROVED, REVIEW_STATUS_REJECTED:
		return true
	default:
		return false
	}
}

// String returns the string representation of the review status.
func (rs ReviewStatus) String() string {
	return string(rs)
}

// IsValid reports whether the sample source is a member of the closed enum.
func (ss SampleSource) IsValid() bool {
	switch ss {
	case SOURCE_WELL, SOURCE_BOREWELL, SOURCE_TAP, SOURCE_RIVER, SOURCE_POND, SOURCE_OTHER:
		return true
	default:
		return false
	}
}

// IsValid reports whether the collector type is a member of the closed enum.
func (ct CollectorType) IsValid() bool {
	switch ct {
	case COLLECTED_BY_CUSTOMER, COLLECTED_BY_LABORATORY, COLLECTED_BY_GOVERNMENT:
		return true
	}
	return false
}

// ParseRole maps a stored role string onto the closed enum. Matching is
// case-insensitive: legacy data contains mixed-case role values.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleLab:
		return RoleLab, nil
	case RoleFrontDesk:
		return RoleFrontDesk, nil
	case RoleConsultant:
		return RoleConsultant, nil
	default:
		return "", ErrUnknownRole
	}
}

// IsValid reports whether the role is a member of the closed enum.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleLab, RoleFrontDesk, RoleConsultant:
		return true
	default:
		return false
	}
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// CanEnterResults reports whether the role may enter or amend test results.
func (r Role) CanEnterResults() bool {
	return r == RoleLab || r == RoleAdmin
}

// CanReview reports whether the role may record consultant reviews.
func (r Role) CanReview() bool {
	return r == RoleConsultant || r == RoleAdmin
}

// CanManageSamples reports whether the role may register samples and
// drive lifecycle transitions.
func (r Role) CanManageSamples() bool {
	return r == RoleFrontDesk || r == RoleLab || r == RoleAdmin
}

// NormalizeResultValue produces the canonical form of a raw result
// value used for override lookups: whitespace trimmed and casefolded.
func NormalizeResultValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
