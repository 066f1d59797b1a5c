package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/waterlab-lims-server/internal/domain"
)

type parameterDefinition struct {
	name   string
	unit   string
	method string
	min    float64
	max    float64
}

// standardParameterDefinitions is the canonical drinking-water test
// catalog. Kept as the single source of truth so the seed endpoint,
// CLI and tests share one list.
func standardParameterDefinitions() []parameterDefinition {
	return []parameterDefinition{
		{name: "pH", unit: "pH", min: 6.5, max: 8.5, method: "IS 3025 (Part 11)"},
		{name: "Total Dissolved Solids", unit: "mg/L", min: 0, max: 500, method: "IS 3025 (Part 16)"},
		{name: "Turbidity", unit: "NTU", min: 0, max: 1, method: "IS 3025 (Part 10)"},
		{name: "Total Hardness", unit: "mg/L as CaCO3", min: 0, max: 200, method: "IS 3025"},
		{name: "Chlorides", unit: "mg/L", min: 0, max: 250, method: "IS 3025 (Part 32)"},
		{name: "Total Alkalinity", unit: "mg/L as CaCO3", min: 0, max: 200, method: "IS 3025"},
		{name: "Iron", unit: "mg/L", min: 0, max: 0.3, method: "IS 3025 (Part 53)"},
		{name: "Fluoride", unit: "mg/L", min: 0, max: 1.0, method: "IS 3025 (Part 60)"},
		{name: "Nitrate", unit: "mg/L", min: 0, max: 45, method: "IS 3025 (Part 34)"},
		{name: "Residual Chlorine", unit: "mg/L", min: 0.2, max: 1.0, method: "IS 3025 (Part 26)"},
		{name: "Total Coliform", unit: "CFU/100mL", min: 0, max: 0, method: "IS 5401 (Part 1)"},
		{name: "E. Coli", unit: "CFU/100mL", min: 0, max: 0, method: "IS 5887 (Part 1)"},
	}
}

func standardCategories() []domain.Category {
	return []domain.Category{
		{Name: "Physical & Chemical", DisplayOrder: 0},
		{Name: "Microbiological", DisplayOrder: 1},
		{Name: "Solution", DisplayOrder: 2},
	}
}

// SeedService idempotently populates the standard catalog
type SeedService struct {
	parameters domain.ParameterStore
	categories domain.CategoryStore
	log        *logrus.Logger
}

// NewSeedService creates a new seed service
func NewSeedService(parameters domain.ParameterStore, categories domain.CategoryStore, logger *logrus.Logger) *SeedService {
	return &SeedService{
		parameters: parameters,
		categories: categories,
		log:        logger,
	}
}

// SeedStandardParameters creates any missing standard parameters and
// refreshes metadata on existing ones without changing identity. The
// existence check is case-insensitive. Returns (created, skipped).
func (s *SeedService) SeedStandardParameters(ctx context.Context, actor *domain.User) (int, int, error) {
	created, skipped := 0, 0
	for _, def := range standardParameterDefinitions() {
		existing, err := s.parameters.GetByName(ctx, def.name)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return created, skipped, err
		}

		if existing != nil {
			if s.refreshParameter(existing, def) {
				if err := s.parameters.Update(ctx, existing, nil); err != nil {
					return created, skipped, err
				}
			}
			skipped++
			continue
		}

		min, max := def.min, def.max
		param := &domain.Parameter{
			Name:     def.name,
			Unit:     def.unit,
			Method:   def.method,
			MinLimit: &min,
			MaxLimit: &max,
		}
		event := domain.NewAuditEvent(actor, domain.AUDIT_CREATE, "parameter", "", def.name,
			nil, map[string]interface{}{"name": def.name, "unit": def.unit})
		if err := s.parameters.Create(ctx, param, event); err != nil {
			return created, skipped, err
		}
		created++
	}

	s.log.WithFields(logrus.Fields{
		"created": created,
		"skipped": skipped,
	}).Info("Standard parameters seeded")

	return created, skipped, nil
}

func (s *SeedService) refreshParameter(existing *domain.Parameter, def parameterDefinition) bool {
	updated := false
	if existing.Unit != def.unit {
		existing.Unit = def.unit
		updated = true
	}
	if existing.Method != def.method {
		existing.Method = def.method
		updated = true
	}
	if existing.MinLimit == nil || *existing.MinLimit != def.min {
		min := def.min
		existing.MinLimit = &min
		updated = true
	}
	if existing.MaxLimit == nil || *existing.MaxLimit != def.max {
		max := def.max
		existing.MaxLimit = &max
		updated = true
	}
	return updated
}

// SeedStandardCategories creates any missing standard categories and
// realigns display order on existing ones. Returns (created, skipped).
func (s *SeedService) SeedStandardCategories(ctx context.Context, actor *domain.User) (int, int, error) {
	created, skipped := 0, 0
	for _, def := range standardCategories() {
		existing, err := s.categories.GetByName(ctx, def.Name)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return created, skipped, err
		}

		if existing != nil {
			if existing.DisplayOrder != def.DisplayOrder {
				existing.DisplayOrder = def.DisplayOrder
				if err := s.categories.Update(ctx, existing, nil); err != nil {
					return created, skipped, err
				}
			}
			skipped++
			continue
		}

		category := def
		event := domain.NewAuditEvent(actor, domain.AUDIT_CREATE, "category", "", def.Name,
			nil, map[string]interface{}{"name": def.Name, "display_order": def.DisplayOrder})
		if err := s.categories.Create(ctx, &category, event); err != nil {
			return created, skipped, err
		}
		created++
	}

	s.log.WithFields(logrus.Fields{
		"created": created,
		"skipped": skipped,
	}).Info("Standard categories seeded")

	return created, skipped, nil
}
