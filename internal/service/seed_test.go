package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedService_StandardParametersIdempotent(t *testing.T) {
	params := newFakeParameterStore()
	categories := newFakeCategoryStore()
	svc := NewSeedService(params, categories, testLogger())
	ctx := context.Background()

	created, skipped, err := svc.SeedStandardParameters(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, len(standardParameterDefinitions()), created)
	assert.Zero(t, skipped)

	created, skipped, err = svc.SeedStandardParameters(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Equal(t, len(standardParameterDefinitions()), skipped)
	assert.Zero(t, params.updates, "unchanged definitions must not rewrite rows")
}

func TestSeedService_RefreshesDriftedMetadata(t *testing.T) {
	params := newFakeParameterStore()
	svc := NewSeedService(params, newFakeCategoryStore(), testLogger())
	ctx := context.Background()

	_, _, err := svc.SeedStandardParameters(ctx, nil)
	require.NoError(t, err)

	// Someone edited the pH range by hand.
	ph, err := params.GetByName(ctx, "ph")
	require.NoError(t, err)
	wrong := 9.9
	ph.MaxLimit = &wrong
	require.NoError(t, params.Update(ctx, ph, nil))
	params.updates = 0

	_, skipped, err := svc.SeedStandardParameters(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, len(standardParameterDefinitions()), skipped)
	assert.Equal(t, 1, params.updates)

	refreshed, err := params.GetByName(ctx, "pH")
	require.NoError(t, err)
	require.NotNil(t, refreshed.MaxLimit)
	assert.Equal(t, 8.5, *refreshed.MaxLimit)
}

func TestSeedService_StandardCategoriesIdempotent(t *testing.T) {
	categories := newFakeCategoryStore()
	svc := NewSeedService(newFakeParameterStore(), categories, testLogger())
	ctx := context.Background()

	created, skipped, err := svc.SeedStandardCategories(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, created)
	assert.Zero(t, skipped)

	created, skipped, err = svc.SeedStandardCategories(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Equal(t, 3, skipped)

	microbiological, err := categories.GetByName(ctx, "Microbiological")
	require.NoError(t, err)
	assert.Equal(t, 1, microbiological.DisplayOrder)
}
