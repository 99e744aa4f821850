// Package accessibility configures the accessibility bug classifier.
package accessibility

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
	"github.com/Sumatoshi-tech/bugfeat/pkg/cleanup"
	"github.com/Sumatoshi-tech/bugfeat/pkg/extraction"
	"github.com/Sumatoshi-tech/bugfeat/pkg/features"
)

const (
	// Name identifies the model in configuration.
	Name = "accessibility"
	// SeverityField holds the accessibility severity; bugs without it are not labeled.
	SeverityField = "cf_accessibility_severity"
	// Keyword marks accessibility bugs.
	Keyword = "access"

	unset = "---"
)

// Class labels.
const (
	Negative = 0
	Positive = 1
)

// Model is the accessibility classifier configuration.
type Model struct {
	logger *slog.Logger
}

// New creates the model. A nil logger discards output.
func New(logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Model{logger: logger}
}

// Name implements models.Model.
func (m *Model) Name() string { return Name }

// Extractors returns the feature set. The access keyword itself is left out
// of the keyword features since it defines the label.
func (m *Model) Extractors() []features.Extractor {
	return []features.Extractor{
		features.HasSTR(),
		features.Keywords(Keyword),
		features.HasAttachment(),
		features.Product(),
		features.FiledVia(),
		features.HasImageAttachmentAtBugCreation(),
	}
}

// Cleaners returns the text cleanups.
func (m *Model) Cleaners() []cleanup.Cleaner {
	return []cleanup.Cleaner{cleanup.FileRef(), cleanup.URL(), cleanup.Synonyms()}
}

// Options rolls bugs back to how they were filed.
func (m *Model) Options() []extraction.Option {
	return []extraction.Option{extraction.WithRollback(nil)}
}

// IsAccessibilityBug reports whether the bug has an accessibility severity
// or the access keyword.
func IsAccessibilityBug(bug *bugzilla.Bug) bool {
	severity, ok := bug.Custom[SeverityField]

	return (ok && severity != unset) || slices.Contains(bug.Keywords, Keyword)
}

// Labels labels every bug that carries the severity field.
func (m *Model) Labels(ctx context.Context, src bugzilla.Source) (map[int]int, error) {
	classes := make(map[int]int)
	counts := [2]int{}

	for bug, err := range src.Bugs(ctx) {
		if err != nil {
			return nil, fmt.Errorf("label bugs: %w", err)
		}

		if _, ok := bug.Custom[SeverityField]; !ok {
			continue
		}

		label := Negative
		if IsAccessibilityBug(bug) {
			label = Positive
		}

		classes[bug.ID] = label
		counts[label]++
	}

	m.logger.InfoContext(ctx, "bugs labeled",
		"non_accessibility", counts[Negative],
		"accessibility", counts[Positive],
	)

	return classes, nil
}

// OverwriteClasses forces predictions of known accessibility bugs to
// Positive. classes is indexed like bugs.
func OverwriteClasses(bugs []*bugzilla.Bug, classes []int) []int {
	for i, bug := range bugs {
		if i < len(classes) && IsAccessibilityBug(bug) {
			classes[i] = Positive
		}
	}

	return classes
}

// OverwriteProbabilities is OverwriteClasses for per-class probability rows.
func OverwriteProbabilities(bugs []*bugzilla.Bug, probabilities [][]float64) [][]float64 {
	for i, bug := range bugs {
		if i < len(probabilities) && IsAccessibilityBug(bug) {
			probabilities[i] = []float64{0, 1}
		}
	}

	return probabilities
}
