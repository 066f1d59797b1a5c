package service

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/waterlab-lims-server/internal/domain"
)

func numericParameter(name string, min, max float64) *domain.Parameter {
	return &domain.Parameter{
		ID:       uuid.New(),
		Name:     name,
		Unit:     "mg/L",
		MinLimit: &min,
		MaxLimit: &max,
	}
}

func TestResolver_NumericComparison(t *testing.T) {
	lead := numericParameter("Lead", 0, 0.01)
	resolver := NewResolver(nil, nil, testLogger())
	ctx := context.Background()

	tests := []struct {
		name  string
		value string
		want  domain.LimitStatus
	}{
		{"within range", "0.005", domain.WITHIN_LIMITS},
		{"above maximum", "0.015", domain.ABOVE_LIMIT},
		{"at maximum boundary", "0.010", domain.WITHIN_LIMITS},
		{"at minimum boundary", "0", domain.WITHIN_LIMITS},
		{"below minimum", "-0.001", domain.BELOW_LIMIT},
		{"unparsable text", "Present", domain.NON_NUMERIC},
		{"value with surrounding spaces", "  0.005  ", domain.WITHIN_LIMITS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := &domain.Result{Value: tt.value}
			if got := resolver.Resolve(ctx, result, lead); got != tt.want {
				t.Errorf("Resolve(%q) = %s, want %s", tt.value, got, tt.want)
			}
		})
	}
}

func TestResolver_NoParameterIsUnknown(t *testing.T) {
	resolver := NewResolver(nil, nil, testLogger())
	result := &domain.Result{Value: "7.2"}
	if got := resolver.Resolve(context.Background(), result, nil); got != domain.UNKNOWN {
		t.Errorf("Resolve without parameter = %s, want UNKNOWN", got)
	}
}

func TestResolver_GlobalOverrideIsCaseInsensitive(t *testing.T) {
	lead := numericParameter("Lead", 0, 0.01)
	finder := &fakeOverrideFinder{overrides: []*domain.ResultStatusOverride{
		{
			ID:              uuid.New(),
			TextValue:       "BDL",
			NormalizedValue: "bdl",
			Status:          string(domain.WITHIN_LIMITS),
			Active:          true,
		},
	}}
	resolver := NewResolver(finder, nil, testLogger())

	for _, value := range []string{"BDL", "bdl", "  Bdl "} {
		result := &domain.Result{Value: value}
		if got := resolver.Resolve(context.Background(), result, lead); got != domain.WITHIN_LIMITS {
			t.Errorf("Resolve(%q) = %s, want WITHIN_LIMITS via global override", value, got)
		}
	}
}

func TestResolver_ParameterScopeBeatsGlobal(t *testing.T) {
	lead := numericParameter("Lead", 0, 0.01)
	finder := &fakeOverrideFinder{overrides: []*domain.ResultStatusOverride{
		{
			ID:              uuid.New(),
			ParameterID:     &lead.ID,
			TextValue:       "BDL",
			NormalizedValue: "bdl",
			Status:          string(domain.BELOW_LIMIT),
			Active:          true,
		},
		{
			ID:              uuid.New(),
			TextValue:       "BDL",
			NormalizedValue: "bdl",
			Status:          string(domain.WITHIN_LIMITS),
			Active:          true,
		},
	}}
	resolver := NewResolver(finder, nil, testLogger())

	result := &domain.Result{Value: "BDL"}
	if got := resolver.Resolve(context.Background(), result, lead); got != domain.BELOW_LIMIT {
		t.Errorf("Resolve = %s, want parameter-scoped BELOW_LIMIT", got)
	}

	other := numericParameter("Iron", 0, 0.3)
	if got := resolver.Resolve(context.Background(), result, other); got != domain.WITHIN_LIMITS {
		t.Errorf("Resolve for other parameter = %s, want global WITHIN_LIMITS", got)
	}
}

func TestResolver_InactiveAndInvalidOverridesIgnored(t *testing.T) {
	lead := numericParameter("Lead", 0, 0.01)
	finder := &fakeOverrideFinder{overrides: []*domain.ResultStatusOverride{
		{
			ID:              uuid.New(),
			ParameterID:     &lead.ID,
			TextValue:       "0.005",
			NormalizedValue: "0.005",
			Status:          string(domain.ABOVE_LIMIT),
			Active:          false,
		},
		{
			ID:              uuid.New(),
			TextValue:       "0.005",
			NormalizedValue: "0.005",
			Status:          "TOTALLY_BOGUS",
			Active:          true,
		},
	}}
	resolver := NewResolver(finder, nil, testLogger())

	// Both overrides fall away; the value classifies numerically.
	result := &domain.Result{Value: "0.005"}
	if got := resolver.Resolve(context.Background(), result, lead); got != domain.WITHIN_LIMITS {
		t.Errorf("Resolve = %s, want WITHIN_LIMITS after ignoring bad overrides", got)
	}
}

func TestResolver_StaticTableFallback(t *testing.T) {
	static := NewStaticOverrides(map[string]map[string]string{
		"Lead":   {"trace": "BELOW_LIMIT"},
		"global": {"bdl": "WITHIN_LIMITS", "trace": "WITHIN_LIMITS"},
		"bogus":  {"x": "NOT_A_STATUS"},
	}, testLogger())
	resolver := NewResolver(nil, static, testLogger())
	ctx := context.Background()

	lead := numericParameter("Lead", 0, 0.01)
	iron := numericParameter("Iron", 0, 0.3)

	if got := resolver.Resolve(ctx, &domain.Result{Value: "Trace"}, lead); got != domain.BELOW_LIMIT {
		t.Errorf("Resolve = %s, want parameter-name static entry BELOW_LIMIT", got)
	}
	if got := resolver.Resolve(ctx, &domain.Result{Value: "Trace"}, iron); got != domain.WITHIN_LIMITS {
		t.Errorf("Resolve = %s, want global static entry WITHIN_LIMITS", got)
	}
	if got := resolver.Resolve(ctx, &domain.Result{Value: "bdl"}, iron); got != domain.WITHIN_LIMITS {
		t.Errorf("Resolve = %s, want global BDL mapping WITHIN_LIMITS", got)
	}
}

func TestResolver_QualitativeParameterIsNonNumeric(t *testing.T) {
	ecoli := &domain.Parameter{
		ID:              uuid.New(),
		Name:            "E. Coli",
		Unit:            "CFU/100mL",
		MaxLimitDisplay: "Absent/100mL",
	}
	resolver := NewResolver(nil, nil, testLogger())

	result := &domain.Result{Value: "Absent"}
	got := resolver.Resolve(context.Background(), result, ecoli)
	if got != domain.NON_NUMERIC {
		t.Fatalf("Resolve = %s, want NON_NUMERIC", got)
	}
	if within := got.IsWithinLimits(); within == nil || !*within {
		t.Error("NON_NUMERIC should derive is_within_limits = true")
	}
}

func TestResolver_IsDeterministic(t *testing.T) {
	lead := numericParameter("Lead", 0, 0.01)
	finder := &fakeOverrideFinder{overrides: []*domain.ResultStatusOverride{
		{
			ID:              uuid.New(),
			TextValue:       "BDL",
			NormalizedValue: "bdl",
			Status:          string(domain.WITHIN_LIMITS),
			Active:          true,
		},
	}}
	resolver := NewResolver(finder, nil, testLogger())
	result := &domain.Result{Value: "bdl"}

	first := resolver.Resolve(context.Background(), result, lead)
	second := resolver.Resolve(context.Background(), result, lead)
	if first != second {
		t.Errorf("Resolve not idempotent: %s then %s", first, second)
	}
}
