package models

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Sumatoshi-tech/bugfeat/pkg/cleanup"
	"github.com/Sumatoshi-tech/bugfeat/pkg/extraction"
	"github.com/Sumatoshi-tech/bugfeat/pkg/features"
	"github.com/Sumatoshi-tech/bugfeat/pkg/models/accessibility"
)

// ErrNoCatalog is returned when a selection names extractors but no catalog is given.
var ErrNoCatalog = errors.New("extractor catalog required")

// Selection names either a model or an explicit extractor set. Explicit
// extractor or cleanup ids override the model's own lists.
type Selection struct {
	Model      string
	Extractors []string
	Cleanups   []string
}

// Default returns the registry of built-in models.
func Default(logger *slog.Logger) *Registry {
	registry, err := NewRegistry(accessibility.New(logger))
	if err != nil {
		panic(err)
	}

	return registry
}

// Build resolves sel into an extraction pipeline. Without a model and
// without extractor ids every catalog extractor is used.
func (r *Registry) Build(
	sel Selection, catalog *features.Catalog, opts ...extraction.Option,
) (*extraction.BugExtractor, error) {
	var (
		extractors []features.Extractor
		cleaners   []cleanup.Cleaner
		modelOpts  []extraction.Option
	)

	if sel.Model != "" {
		model, err := r.Lookup(sel.Model)
		if err != nil {
			return nil, err
		}

		extractors = model.Extractors()
		cleaners = model.Cleaners()
		modelOpts = model.Options()
	}

	if len(sel.Extractors) > 0 || sel.Model == "" {
		if catalog == nil {
			return nil, ErrNoCatalog
		}

		ids := sel.Extractors
		if len(ids) == 0 {
			ids = catalog.IDs()
		}

		built, err := catalog.Build(ids)
		if err != nil {
			return nil, err
		}

		extractors = built
	}

	if len(sel.Cleanups) > 0 {
		built, err := cleanup.Build(sel.Cleanups)
		if err != nil {
			return nil, err
		}

		cleaners = built
	}

	extractor, err := extraction.New(extractors, cleaners, append(modelOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("build extraction: %w", err)
	}

	return extractor, nil
}
