package mcp

import (
	"context"
	"fmt"
	"iter"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
	"github.com/Sumatoshi-tech/bugfeat/pkg/cleanup"
	"github.com/Sumatoshi-tech/bugfeat/pkg/extraction"
	"github.com/Sumatoshi-tech/bugfeat/pkg/features"
	"github.com/Sumatoshi-tech/bugfeat/pkg/models"
	"github.com/Sumatoshi-tech/bugfeat/pkg/snapshot"
)

// ExtractResult is the payload of bugfeat_extract.
type ExtractResult struct {
	Mode     features.Kind    `json:"mode"`
	Features []string         `json:"features"`
	Rows     []extraction.Row `json:"rows"`
}

// SnapshotResult is the payload of bugfeat_snapshot.
type SnapshotResult struct {
	Bug *bugzilla.Bug `json:"bug"`
	// UndoneEntries counts the history entries rolled back.
	UndoneEntries int `json:"undone_entries"`
}

// ExtractorInfo describes one catalog extractor.
type ExtractorInfo struct {
	ID   string        `json:"id"`
	Name string        `json:"name"`
	Kind features.Kind `json:"kind"`
}

// CatalogResult is the payload of bugfeat_extractors.
type CatalogResult struct {
	Extractors []ExtractorInfo `json:"extractors"`
	Cleanups   []string        `json:"cleanups"`
	Models     []string        `json:"models"`
}

func (s *Server) handleExtract(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input ExtractInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateBugsPath(input.BugsPath)
	if err != nil {
		return errorResult(err)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultRowLimit
	}

	if limit > MaxRowLimit {
		return errorResult(fmt.Errorf("%w: %d (max %d)", ErrLimitTooLarge, limit, MaxRowLimit))
	}

	opts, err := s.extractionOptions(input)
	if err != nil {
		return errorResult(err)
	}

	extractor, err := s.deps.Models.Build(models.Selection{
		Model:      input.Model,
		Extractors: input.Extractors,
		Cleanups:   input.Cleanups,
	}, s.deps.Catalog, opts...)
	if err != nil {
		return errorResult(err)
	}

	frame, err := extractor.Transform(ctx, selectBugs(s.source(input.BugsPath), input.BugIDs, limit))
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(ExtractResult{Mode: frame.Mode, Features: frame.FeatureNames(), Rows: frame.Rows})
}

func (s *Server) extractionOptions(input ExtractInput) ([]extraction.Option, error) {
	opts := []extraction.Option{extraction.WithMetrics(s.deps.Extraction)}

	if s.deps.Logger != nil {
		opts = append(opts, extraction.WithLogger(s.deps.Logger))
	}

	if s.deps.Tracer != nil {
		opts = append(opts, extraction.WithTracer(s.deps.Tracer))
	}

	if input.Rollback || input.RollbackWhen != "" {
		var when *time.Time

		if input.RollbackWhen != "" {
			parsed, err := snapshot.ParseTime(input.RollbackWhen)
			if err != nil {
				return nil, err
			}

			when = &parsed
		}

		opts = append(opts, extraction.WithRollback(when))
	}

	if input.TrimActivity {
		opts = append(opts, extraction.WithActivityTrim())
	}

	return opts, nil
}

// selectBugs yields at most limit bugs of src, restricted to ids when given.
func selectBugs(src bugzilla.Source, ids []int, limit int) extraction.Input {
	wanted := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	return func(ctx context.Context) iter.Seq2[extraction.Item, error] {
		return func(yield func(extraction.Item, error) bool) {
			count := 0

			for bug, err := range src.Bugs(ctx) {
				if err != nil {
					yield(extraction.Item{}, err)

					return
				}

				if _, ok := wanted[bug.ID]; len(wanted) > 0 && !ok {
					continue
				}

				if !yield(extraction.Single(bug), nil) {
					return
				}

				count++
				if count >= limit {
					return
				}
			}
		}
	}
}

func (s *Server) handleSnapshot(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input SnapshotInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateBugsPath(input.BugsPath)
	if err != nil {
		return errorResult(err)
	}

	if input.BugID <= 0 {
		return errorResult(fmt.Errorf("%w: %d", ErrInvalidBugID, input.BugID))
	}

	var opts []snapshot.Option

	if input.When != "" {
		when, parseErr := snapshot.ParseTime(input.When)
		if parseErr != nil {
			return errorResult(parseErr)
		}

		opts = append(opts, snapshot.At(when))
	}

	if input.TrimActivity {
		opts = append(opts, snapshot.WithActivityTrim())
	}

	bug, found, err := bugzilla.Find(ctx, s.source(input.BugsPath), input.BugID)
	if err != nil {
		return errorResult(err)
	}

	if !found {
		return errorResult(fmt.Errorf("%w: %d", ErrBugNotFound, input.BugID))
	}

	snap, err := snapshot.Rollback(bug, opts...)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(SnapshotResult{Bug: snap, UndoneEntries: len(bug.History) - len(snap.History)})
}

func (s *Server) handleExtractors(
	_ context.Context, _ *mcpsdk.CallToolRequest, input ExtractorsInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	kind := features.Kind(input.Kind)
	if kind != "" && kind != features.KindSingle && kind != features.KindPair {
		return errorResult(fmt.Errorf("%w: %q", ErrUnknownKind, input.Kind))
	}

	result := CatalogResult{
		Extractors: []ExtractorInfo{},
		Cleanups:   cleanup.IDs(),
		Models:     s.deps.Models.Names(),
	}

	for _, descriptor := range s.deps.Catalog.Descriptors() {
		if kind != "" && descriptor.Kind != kind {
			continue
		}

		result.Extractors = append(result.Extractors, ExtractorInfo{
			ID: descriptor.ID, Name: descriptor.Name, Kind: descriptor.Kind,
		})
	}

	return jsonResult(result)
}
