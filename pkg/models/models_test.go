package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
	"github.com/Sumatoshi-tech/bugfeat/pkg/cleanup"
	"github.com/Sumatoshi-tech/bugfeat/pkg/extraction"
	"github.com/Sumatoshi-tech/bugfeat/pkg/features"
	"github.com/Sumatoshi-tech/bugfeat/pkg/models"
	"github.com/Sumatoshi-tech/bugfeat/pkg/models/accessibility"
)

func TestRegistry_LookupAndNames(t *testing.T) {
	t.Parallel()

	registry := models.Default(nil)
	assert.Equal(t, []string{accessibility.Name}, registry.Names())

	model, err := registry.Lookup(accessibility.Name)
	require.NoError(t, err)
	assert.Equal(t, accessibility.Name, model.Name())

	_, err = registry.Lookup("defect")
	require.ErrorIs(t, err, models.ErrUnknownModel)
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := models.NewRegistry(accessibility.New(nil), accessibility.New(nil))
	require.ErrorIs(t, err, models.ErrDuplicateModel)
}

func TestBuild_Model(t *testing.T) {
	t.Parallel()

	extractor, err := models.Default(nil).Build(models.Selection{Model: accessibility.Name}, nil)
	require.NoError(t, err)
	assert.Len(t, extractor.Extractors(), len(accessibility.New(nil).Extractors()))
}

func TestBuild_ModelWithOverrides(t *testing.T) {
	t.Parallel()

	extractor, err := models.Default(nil).Build(models.Selection{
		Model:      accessibility.Name,
		Extractors: []string{"product", "component"},
		Cleanups:   []string{"url"},
	}, features.DefaultCatalog())
	require.NoError(t, err)
	require.Len(t, extractor.Extractors(), 2)
	assert.Equal(t, "product", extractor.Extractors()[0].Descriptor().ID)
}

func TestBuild_WholeCatalog(t *testing.T) {
	t.Parallel()

	catalog := features.DefaultCatalog()

	extractor, err := models.Default(nil).Build(models.Selection{}, catalog)
	require.NoError(t, err)
	assert.Len(t, extractor.Extractors(), len(catalog.IDs()))
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	registry := models.Default(nil)
	catalog := features.DefaultCatalog()

	_, err := registry.Build(models.Selection{}, nil)
	require.ErrorIs(t, err, models.ErrNoCatalog)

	_, err = registry.Build(models.Selection{Extractors: []string{"nope"}}, catalog)
	require.ErrorIs(t, err, features.ErrUnknownExtractor)

	_, err = registry.Build(models.Selection{Extractors: []string{"product"}, Cleanups: []string{"nope"}}, catalog)
	require.ErrorIs(t, err, cleanup.ErrUnknownCleaner)

	_, err = registry.Build(models.Selection{Extractors: []string{"product", "product"}}, catalog)
	require.ErrorIs(t, err, features.ErrDuplicateExtractor)
}

func TestNewExtractor_AppliesModelOptions(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(1, "ann@example.com").
		WithHistory(time.Hour, bugzilla.TestChange("product", "Core", "Firefox"))

	extractor, err := models.NewExtractor(accessibility.New(nil), extraction.WithWorkers(1))
	require.NoError(t, err)

	frame, err := extractor.Transform(context.Background(), extraction.Bugs(bugzilla.NewSliceSource(bug)))
	require.NoError(t, err)
	require.Equal(t, 1, frame.Len())
	assert.Equal(t, "Core", frame.Rows[0].Features(extraction.ColData)["Product"])
}
