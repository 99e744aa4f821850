// Package extraction turns bugs or bug pairs into feature rows: it optionally
// rolls each bug back to a target time, runs the configured extractors and
// cleans the free-text fields.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/bugfeat/pkg/cleanup"
	"github.com/Sumatoshi-tech/bugfeat/pkg/commits"
	"github.com/Sumatoshi-tech/bugfeat/pkg/features"
	"github.com/Sumatoshi-tech/bugfeat/pkg/observability"
	"github.com/Sumatoshi-tech/bugfeat/pkg/releases"
)

// tracerName is the default OTel tracer name for the extraction package.
const tracerName = "bugfeat"

var (
	// ErrEmptyInput is returned when Transform receives no items.
	ErrEmptyInput = errors.New("extraction input is empty")
	// ErrMixedInput is returned when single bugs and pairs are mixed in one input.
	ErrMixedInput = errors.New("extraction input mixes bugs and pairs")
)

// BugExtractor is a validated extraction configuration. It is safe to call
// Transform repeatedly; every call starts with fresh reporter counters.
type BugExtractor struct {
	registry *features.Registry
	cleaners []cleanup.Cleaner

	rollback     bool
	rollbackWhen *time.Time
	activityTrim bool
	workers      int
	mergeData    bool

	commits  commits.Source
	releases releases.Calendar

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.ExtractionMetrics
}

// Option configures a BugExtractor.
type Option func(*BugExtractor)

// WithRollback rolls every bug back before extraction. A nil when reconstructs
// the bug as filed.
func WithRollback(when *time.Time) Option {
	return func(e *BugExtractor) {
		e.rollback = true
		e.rollbackWhen = when
	}
}

// WithActivityTrim also drops comments and attachments newer than the
// rollback target.
func WithActivityTrim() Option {
	return func(e *BugExtractor) {
		e.activityTrim = true
	}
}

// WithWorkers sets how many goroutines roll bugs back in single-bug mode.
// Values below one fall back to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *BugExtractor) {
		e.workers = n
	}
}

// WithMergeData controls whether pair rows merge both bugs' text into one
// blob (the default) or keep every fragment in its own column.
func WithMergeData(merge bool) Option {
	return func(e *BugExtractor) {
		e.mergeData = merge
	}
}

// WithCommitSource enables commit data. Once per Transform, src is read to
// collect author emails and to attach commits to bugs that carry none.
func WithCommitSource(src commits.Source) Option {
	return func(e *BugExtractor) {
		e.commits = src
	}
}

// WithReleases sets the release calendar used by uplift timing features.
func WithReleases(calendar releases.Calendar) Option {
	return func(e *BugExtractor) {
		e.releases = calendar
	}
}

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *BugExtractor) {
		e.logger = logger
	}
}

// WithTracer sets the tracer. The default is the global provider's tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *BugExtractor) {
		e.tracer = tracer
	}
}

// WithMetrics records run statistics on m.
func WithMetrics(m *observability.ExtractionMetrics) Option {
	return func(e *BugExtractor) {
		e.metrics = m
	}
}

// New validates the configuration. Duplicate extractors or cleaners are
// rejected here, before any row is produced.
func New(extractors []features.Extractor, cleaners []cleanup.Cleaner, opts ...Option) (*BugExtractor, error) {
	registry, err := features.NewRegistry(extractors...)
	if err != nil {
		return nil, fmt.Errorf("configure extractors: %w", err)
	}

	err = cleanup.Validate(cleaners)
	if err != nil {
		return nil, fmt.Errorf("configure cleanups: %w", err)
	}

	extractor := &BugExtractor{
		registry:  registry,
		cleaners:  cleaners,
		mergeData: true,
	}

	for _, opt := range opts {
		opt(extractor)
	}

	if extractor.workers <= 0 {
		extractor.workers = runtime.GOMAXPROCS(0)
	}

	if extractor.logger == nil {
		extractor.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if extractor.tracer == nil {
		extractor.tracer = otel.Tracer(tracerName)
	}

	return extractor, nil
}

// Extractors returns the configured extractors in order.
func (e *BugExtractor) Extractors() []features.Extractor {
	return e.registry.All()
}

// Fit hands the input to every extractor that learns from data. Each fitter
// gets a fresh pass over input.
func (e *BugExtractor) Fit(ctx context.Context, input Input) error {
	for _, extractor := range e.registry.All() {
		fitter, ok := extractor.(features.Fitter)
		if !ok {
			continue
		}

		err := fitter.Fit(ctx, fitInputs(ctx, input))
		if err != nil {
			return fmt.Errorf("fit %s: %w", extractor.Descriptor().ID, err)
		}
	}

	return nil
}

func fitInputs(ctx context.Context, input Input) iter.Seq2[features.Input, error] {
	return func(yield func(features.Input, error) bool) {
		for item, err := range input(ctx) {
			if err != nil {
				yield(features.Input{}, err)

				return
			}

			if !yield(features.Input{Bug: item.Bug, Pair: item.Pair}, nil) {
				return
			}
		}
	}
}

func (e *BugExtractor) loadCommits(ctx context.Context, state *run) error {
	if e.commits == nil {
		return nil
	}

	index, err := commits.Load(ctx, e.commits)
	if err != nil {
		return fmt.Errorf("load commit data: %w", err)
	}

	state.authorIDs = index.Authors
	state.commits = index.ByBug

	return nil
}
