// Package models describes model configurations: which extractors and
// cleanups feed a classifier and how its training labels are derived.
package models

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
	"github.com/Sumatoshi-tech/bugfeat/pkg/cleanup"
	"github.com/Sumatoshi-tech/bugfeat/pkg/extraction"
	"github.com/Sumatoshi-tech/bugfeat/pkg/features"
)

var (
	// ErrUnknownModel is returned by Lookup for unregistered names.
	ErrUnknownModel = errors.New("unknown model")
	// ErrDuplicateModel is returned when two models share a name.
	ErrDuplicateModel = errors.New("duplicate model")
)

// Model is the extraction side of a classifier.
type Model interface {
	Name() string
	Extractors() []features.Extractor
	Cleaners() []cleanup.Cleaner
	// Options are the extraction options the model trains with.
	Options() []extraction.Option
	// Labels maps bug ids to classes, skipping bugs that cannot be labeled.
	Labels(ctx context.Context, src bugzilla.Source) (map[int]int, error)
}

// Registry indexes models by name.
type Registry struct {
	models map[string]Model
}

// NewRegistry builds a registry, rejecting duplicate names.
func NewRegistry(models ...Model) (*Registry, error) {
	registry := &Registry{models: make(map[string]Model, len(models))}

	for _, model := range models {
		if _, exists := registry.models[model.Name()]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateModel, model.Name())
		}

		registry.models[model.Name()] = model
	}

	return registry, nil
}

// Lookup returns the model registered under name.
func (r *Registry) Lookup(name string) (Model, error) {
	model, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}

	return model, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// NewExtractor builds the extraction pipeline of model. opts are applied
// after the model's own options.
func NewExtractor(model Model, opts ...extraction.Option) (*extraction.BugExtractor, error) {
	extractor, err := extraction.New(model.Extractors(), model.Cleaners(), append(model.Options(), opts...)...)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", model.Name(), err)
	}

	return extractor, nil
}
