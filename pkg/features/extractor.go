// Package features defines bug feature extractors and the registry that
// validates an extractor configuration.
package features

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
	"github.com/Sumatoshi-tech/bugfeat/pkg/releases"
)

// Kind tells whether an extractor works on one bug or on a pair of bugs.
type Kind string

// Extractor kinds.
const (
	KindSingle Kind = "single"
	KindPair   Kind = "pair"
)

// Sentinel errors for extractor configuration.
var (
	// ErrDuplicateExtractor is returned when a configuration lists the same extractor twice.
	ErrDuplicateExtractor = errors.New("duplicate feature extractor")
	// ErrUnknownExtractor is returned when a catalog lookup fails.
	ErrUnknownExtractor = errors.New("unknown feature extractor")
	// ErrInvalidKind is returned for descriptors with an unsupported kind.
	ErrInvalidKind = errors.New("invalid feature extractor kind")
)

// Descriptor identifies an extractor.
type Descriptor struct {
	// ID is the stable type identity used for duplicate detection and configuration.
	ID string
	// Name is the column name of the feature.
	Name string
	Kind Kind
}

// Env is the auxiliary context handed to single-bug extractors.
type Env struct {
	// ReporterExperience counts bugs of the same reporter seen earlier in the run.
	ReporterExperience int
	// AuthorIDs holds known commit author emails. Nil when commit data is disabled.
	AuthorIDs map[string]struct{}
	// Releases is the release calendar. Nil when none is configured.
	Releases releases.Calendar
}

// Input is what an extractor receives: Bug for single-bug extractors,
// Pair for pair extractors.
type Input struct {
	Bug  *bugzilla.Bug
	Pair bugzilla.Pair
	Env  Env
}

// Extractor computes one feature. Extract returns nil when the feature does
// not apply; a []string result is expanded into presence columns.
type Extractor interface {
	Descriptor() Descriptor
	Extract(in Input) any
}

// Fitter is implemented by extractors that learn from the input before
// transforming it.
type Fitter interface {
	Fit(ctx context.Context, inputs iter.Seq2[Input, error]) error
}

type singleFunc func(bug *bugzilla.Bug, env Env) any

type pairFunc func(pair bugzilla.Pair) any

type funcExtractor struct {
	descriptor Descriptor
	single     singleFunc
	pair       pairFunc
}

func (e *funcExtractor) Descriptor() Descriptor {
	return e.descriptor
}

func (e *funcExtractor) Extract(in Input) any {
	if e.single != nil {
		return e.single(in.Bug, in.Env)
	}

	return e.pair(in.Pair)
}

// NewSingle wraps fn as a single-bug extractor. An empty name falls back to id.
func NewSingle(id, name string, fn func(bug *bugzilla.Bug, env Env) any) Extractor {
	return &funcExtractor{descriptor: newDescriptor(id, name, KindSingle), single: fn}
}

// NewPair wraps fn as a pair extractor. An empty name falls back to id.
func NewPair(id, name string, fn func(pair bugzilla.Pair) any) Extractor {
	return &funcExtractor{descriptor: newDescriptor(id, name, KindPair), pair: fn}
}

func newDescriptor(id, name string, kind Kind) Descriptor {
	if name == "" {
		name = id
	}

	return Descriptor{ID: id, Name: name, Kind: kind}
}

// Registry holds a validated extractor configuration in stable order.
type Registry struct {
	ordered []Extractor
	index   map[string]Extractor
}

// NewRegistry validates extractors: IDs must be unique and kinds known.
func NewRegistry(extractors ...Extractor) (*Registry, error) {
	registry := &Registry{
		ordered: make([]Extractor, 0, len(extractors)),
		index:   make(map[string]Extractor, len(extractors)),
	}

	for _, extractor := range extractors {
		descriptor := extractor.Descriptor()

		if descriptor.Kind != KindSingle && descriptor.Kind != KindPair {
			return nil, fmt.Errorf("%w for %s: %q", ErrInvalidKind, descriptor.ID, descriptor.Kind)
		}

		if _, exists := registry.index[descriptor.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateExtractor, descriptor.ID)
		}

		registry.index[descriptor.ID] = extractor
		registry.ordered = append(registry.ordered, extractor)
	}

	return registry, nil
}

// All returns the extractors in configuration order.
func (r *Registry) All() []Extractor {
	extractors := make([]Extractor, len(r.ordered))
	copy(extractors, r.ordered)

	return extractors
}

// ByKind returns the extractors of one kind in configuration order.
func (r *Registry) ByKind(kind Kind) []Extractor {
	extractors := make([]Extractor, 0, len(r.ordered))

	for _, extractor := range r.ordered {
		if extractor.Descriptor().Kind == kind {
			extractors = append(extractors, extractor)
		}
	}

	return extractors
}

// Lookup returns the extractor registered under id.
func (r *Registry) Lookup(id string) (Extractor, bool) {
	extractor, ok := r.index[id]

	return extractor, ok
}

// Len returns the number of registered extractors.
func (r *Registry) Len() int {
	return len(r.ordered)
}
