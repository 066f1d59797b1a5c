// Package service implements the laboratory core operations: the
// result limit-status resolver, the sample lifecycle state machine,
// sample registration, result entry, consultant review and catalog
// seeding.
package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/waterlab-lims-server/internal/domain"
)

// StaticOverrides is the process-wide fallback override table, built
// once from configuration and immutable afterwards. The outer key is a
// parameter name or one of the reserved fallback keys; the inner map
// goes from normalized result text to a limit status.
type StaticOverrides map[string]map[string]domain.LimitStatus

// reserved fallback keys, checked in priority order after the
// parameter-name key.
var staticFallbackKeys = []string{"global", "default", "*"}

// NewStaticOverrides normalizes a raw config table into a lookup
// structure. Entries with a status outside the limit-status enum are
// dropped with a warning.
func NewStaticOverrides(raw map[string]map[string]string, logger *logrus.Logger) StaticOverrides {
	out := make(StaticOverrides, len(raw))
	for key, entries := range raw {
		normalizedKey := strings.ToLower(strings.TrimSpace(key))
		bucket := make(map[string]domain.LimitStatus, len(entries))
		for value, status := range entries {
			parsed, ok := domain.ParseLimitStatus(status)
			if !ok {
				logger.WithFields(logrus.Fields{
					"key":    key,
					"value":  value,
					"status": status,
				}).Warn("Ignoring static override with unrecognized status")
				continue
			}
			bucket[domain.NormalizeResultValue(value)] = parsed
		}
		if len(bucket) > 0 {
			out[normalizedKey] = bucket
		}
	}
	return out
}

func (so StaticOverrides) lookup(parameterName, normalizedValue string) (domain.LimitStatus, bool) {
	keys := make([]string, 0, len(staticFallbackKeys)+1)
	keys = append(keys, strings.ToLower(strings.TrimSpace(parameterName)))
	keys = append(keys, staticFallbackKeys...)
	for _, key := range keys {
		if bucket, ok := so[key]; ok {
			if status, ok := bucket[normalizedValue]; ok {
				return status, true
			}
		}
	}
	return "", false
}

// Resolver classifies a result against its parameter's permissible
// range. Resolution is deterministic and side-effect free: identical
// inputs always produce the same status.
type Resolver struct {
	overrides domain.OverrideFinder
	static    StaticOverrides
	log       *logrus.Logger
}

// NewResolver creates a resolver. overrides may be nil when no stored
// override source is configured.
func NewResolver(overrides domain.OverrideFinder, static StaticOverrides, logger *logrus.Logger) *Resolver {
	return &Resolver{
		overrides: overrides,
		static:    static,
		log:       logger,
	}
}

// Resolve classifies one result. The rules run in order and the first
// match wins:
//
//  1. no parameter: UNKNOWN
//  2. stored override, parameter scope before global scope
//  3. static config override, parameter name before the fallback keys
//  4. qualitative limit on the parameter: NON_NUMERIC
//  5. unparsable value: NON_NUMERIC
//  6. numeric comparison against the limits, boundaries inclusive
func (r *Resolver) Resolve(ctx context.Context, result *domain.Result, parameter *domain.Parameter) domain.LimitStatus {
	if parameter == nil {
		return domain.UNKNOWN
	}

	normalized := domain.NormalizeResultValue(result.Value)

	if status, ok := r.storedOverride(ctx, parameter.ID, normalized); ok {
		return status
	}
	if status, ok := r.static.lookup(parameter.Name, normalized); ok {
		return status
	}
	if parameter.HasQualitativeLimit() {
		return domain.NON_NUMERIC
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(result.Value), 64)
	if err != nil {
		return domain.NON_NUMERIC
	}

	if parameter.MinLimit != nil && value < *parameter.MinLimit {
		return domain.BELOW_LIMIT
	}
	if parameter.MaxLimit != nil && value > *parameter.MaxLimit {
		return domain.ABOVE_LIMIT
	}
	return domain.WITHIN_LIMITS
}

// storedOverride checks the parameter-scoped override first, then the
// global scope. A stored status outside the enum is logged and treated
// as absent rather than propagated.
func (r *Resolver) storedOverride(ctx context.Context, parameterID uuid.UUID, normalized string) (domain.LimitStatus, bool) {
	if r.overrides == nil {
		return "", false
	}
	for _, scope := range []*uuid.UUID{&parameterID, nil} {
		override, err := r.overrides.Find(ctx, scope, normalized)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				r.log.WithFields(logrus.Fields{
					"normalized_value": normalized,
					"error":            err,
				}).Warn("Override lookup failed, falling through")
			}
			continue
		}
		if !override.Active {
			continue
		}
		status, ok := domain.ParseLimitStatus(override.Status)
		if !ok {
			r.log.WithFields(logrus.Fields{
				"override_id": override.ID,
				"status":      override.Status,
			}).Warn("Ignoring override with status outside the limit-status enum")
			continue
		}
		return status, true
	}
	return "", false
}
