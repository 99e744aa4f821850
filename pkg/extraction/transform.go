package extraction

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
	"github.com/Sumatoshi-tech/bugfeat/pkg/cleanup"
	"github.com/Sumatoshi-tech/bugfeat/pkg/features"
	"github.com/Sumatoshi-tech/bugfeat/pkg/observability"
	"github.com/Sumatoshi-tech/bugfeat/pkg/snapshot"
)

// run is the per-Transform state. It is owned by the coordinating goroutine;
// rollback workers never touch it.
type run struct {
	extractor *BugExtractor
	frame     *Frame

	experience map[string]int
	authorIDs  map[string]struct{}
	commits    map[int][]bugzilla.Commit
	snapshots  map[int]*bugzilla.Bug
	rollbacks  []time.Duration
}

// textFields are the cleaned free-text fragments of one bug.
type textFields struct {
	title        string
	firstComment string
	comments     string
}

// Transform produces one row per input item. The mode is taken from the first
// item. Any error aborts the run without a partial frame.
func (e *BugExtractor) Transform(ctx context.Context, input Input) (frame *Frame, err error) {
	ctx, span := e.tracer.Start(ctx, "bugfeat.extraction.transform",
		trace.WithAttributes(
			attribute.Bool("extraction.rollback", e.rollback),
			attribute.Int("extraction.workers", e.workers),
			attribute.Int("extraction.extractors", e.registry.Len()),
		))
	defer span.End()

	start := time.Now()
	state := &run{
		extractor:  e,
		experience: make(map[string]int),
		snapshots:  make(map[int]*bugzilla.Bug),
	}

	defer func() {
		stats := observability.ExtractionStats{RollbackDurations: state.rollbacks, Failed: err != nil}
		if state.frame != nil {
			stats.Mode = string(state.frame.Mode)
			stats.Rows = int64(state.frame.Len())
		}

		e.metrics.RecordRun(ctx, stats)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	err = e.loadCommits(ctx, state)
	if err != nil {
		return nil, err
	}

	next, stop := iter.Pull2(input(ctx))
	defer stop()

	first, err, ok := next()
	if !ok {
		return nil, ErrEmptyInput
	}

	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	items := resume(first, next)

	if first.IsPair() {
		state.frame = newFrame(features.KindPair)
		err = state.transformPairs(ctx, items)
	} else {
		state.frame = newFrame(features.KindSingle)
		err = state.transformBugs(ctx, items)
	}

	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("extraction.rows", state.frame.Len()))
	e.logger.InfoContext(ctx, "extraction finished",
		"mode", state.frame.Mode,
		"rows", humanize.Comma(int64(state.frame.Len())),
		"columns", len(state.frame.FeatureNames()),
		"duration", time.Since(start),
	)

	return state.frame, nil
}

// resume yields first followed by the rest of a pulled sequence.
func resume(first Item, next func() (Item, error, bool)) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		if !yield(first, nil) {
			return
		}

		for {
			item, err, ok := next()
			if !ok {
				return
			}

			if !yield(item, err) || err != nil {
				return
			}
		}
	}
}

// singles narrows items to bugs, rejecting pairs.
func singles(items iter.Seq2[Item, error]) iter.Seq2[*bugzilla.Bug, error] {
	return func(yield func(*bugzilla.Bug, error) bool) {
		index := 0

		for item, err := range items {
			switch {
			case err != nil:
				yield(nil, fmt.Errorf("read input: %w", err))

				return
			case item.IsPair():
				yield(nil, fmt.Errorf("%w: item %d is a pair", ErrMixedInput, index))

				return
			}

			if !yield(item.Bug, nil) {
				return
			}

			index++
		}
	}
}

func (r *run) transformBugs(ctx context.Context, items iter.Seq2[Item, error]) error {
	e := r.extractor
	bugs := singles(items)

	if !e.rollback {
		e.logger.InfoContext(ctx, "extraction started", "mode", features.KindSingle)

		for bug, err := range bugs {
			if err != nil {
				return err
			}

			r.addSingleRow(bug)
		}

		return nil
	}

	e.logger.InfoContext(ctx, "extraction started",
		"mode", features.KindSingle, "rollback_workers", e.workers, "rollback_when", e.rollbackWhen)

	pool := newRollbackPool(e.workers, e.snapshot)

	for slot, err := range pool.Run(ctx, bugs) {
		if err != nil {
			return err
		}

		r.rollbacks = append(r.rollbacks, slot.elapsed)
		r.addSingleRow(slot.snapshot)
	}

	return nil
}

func (r *run) transformPairs(ctx context.Context, items iter.Seq2[Item, error]) error {
	e := r.extractor
	e.logger.InfoContext(ctx, "extraction started",
		"mode", features.KindPair, "rollback", e.rollback, "merge_data", e.mergeData)

	index := 0

	for item, err := range items {
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		if !item.IsPair() {
			return fmt.Errorf("%w: item %d is a single bug", ErrMixedInput, index)
		}

		pair, err := r.pairSnapshot(item.Pair)
		if err != nil {
			return err
		}

		r.addPairRow(pair)

		index++
	}

	return nil
}

// pairSnapshot rolls back both bugs of a pair, reusing the snapshot of a bug
// already seen in an earlier pair.
func (r *run) pairSnapshot(pair bugzilla.Pair) (bugzilla.Pair, error) {
	if !r.extractor.rollback {
		return pair, nil
	}

	var out bugzilla.Pair

	for i, bug := range pair {
		if cached, ok := r.snapshots[bug.ID]; ok {
			out[i] = cached

			continue
		}

		start := time.Now()

		rolled, err := r.extractor.snapshot(bug)
		if err != nil {
			return out, err
		}

		r.rollbacks = append(r.rollbacks, time.Since(start))
		r.snapshots[bug.ID] = rolled
		out[i] = rolled
	}

	return out, nil
}

func (e *BugExtractor) snapshot(bug *bugzilla.Bug) (*bugzilla.Bug, error) {
	var opts []snapshot.Option

	if e.rollbackWhen != nil {
		opts = append(opts, snapshot.At(*e.rollbackWhen))
	}

	if e.activityTrim {
		opts = append(opts, snapshot.WithActivityTrim())
	}

	rolled, err := snapshot.Rollback(bug, opts...)
	if err != nil {
		return nil, fmt.Errorf("rollback: %w", err)
	}

	return rolled, nil
}

// withCommits returns bug with the commits referencing it attached, unless
// the bug already carries commit data.
func (r *run) withCommits(bug *bugzilla.Bug) *bugzilla.Bug {
	linked, ok := r.commits[bug.ID]
	if !ok || len(bug.Commits) > 0 {
		return bug
	}

	attached := *bug
	attached.Commits = linked

	return &attached
}

func (r *run) env(bug *bugzilla.Bug) features.Env {
	return features.Env{
		ReporterExperience: r.experience[bug.Creator],
		AuthorIDs:          r.authorIDs,
		Releases:           r.extractor.releases,
	}
}

func (r *run) singleFeatures(bug *bugzilla.Bug) Features {
	data := make(Features)
	in := features.Input{Bug: bug, Env: r.env(bug)}

	for _, extractor := range r.extractor.registry.ByKind(features.KindSingle) {
		data.merge(extractor.Descriptor().Name, extractor.Extract(in))
	}

	return data
}

func (r *run) pairFeatures(pair bugzilla.Pair) Features {
	data := make(Features)
	in := features.Input{Pair: pair}

	for _, extractor := range r.extractor.registry.ByKind(features.KindPair) {
		data.merge(extractor.Descriptor().Name, extractor.Extract(in))
	}

	return data
}

func (r *run) text(bug *bugzilla.Bug) textFields {
	cleaners := r.extractor.cleaners

	comments := bug.CommentTexts()
	for i, comment := range comments {
		comments[i] = cleanup.Apply(cleaners, comment)
	}

	fields := textFields{
		title:    cleanup.Apply(cleaners, bug.Summary),
		comments: strings.Join(comments, " "),
	}

	if len(comments) > 0 {
		fields.firstComment = comments[0]
	}

	return fields
}

func (r *run) addSingleRow(bug *bugzilla.Bug) {
	bug = r.withCommits(bug)
	data := r.singleFeatures(bug)
	text := r.text(bug)

	r.experience[bug.Creator]++

	r.frame.append(Row{
		ColData:         data,
		ColTitle:        text.title,
		ColFirstComment: text.firstComment,
		ColComments:     text.comments,
	}, []string{ColData, ColTitle, ColFirstComment, ColComments})
}

// addPairRow computes features for each bug and for the pair. Both bugs see
// the experience counts from before this row.
func (r *run) addPairRow(pair bugzilla.Pair) {
	pair = bugzilla.Pair{r.withCommits(pair[0]), r.withCommits(pair[1])}
	data1, data2 := r.singleFeatures(pair[0]), r.singleFeatures(pair[1])
	text1, text2 := r.text(pair[0]), r.text(pair[1])
	couple := r.pairFeatures(pair)

	r.experience[pair[0].Creator]++
	r.experience[pair[1].Creator]++

	if r.extractor.mergeData {
		r.frame.append(Row{
			ColText: strings.Join([]string{
				text1.title, text1.firstComment, text2.title, text2.firstComment,
			}, " "),
			ColCoupleData: couple,
		}, []string{ColText, ColCoupleData})

		return
	}

	r.frame.append(Row{
		ColData1:         data1,
		ColData2:         data2,
		ColCoupleData:    couple,
		ColTitle1:        text1.title,
		ColTitle2:        text2.title,
		ColFirstComment1: text1.firstComment,
		ColFirstComment2: text2.firstComment,
		ColComments1:     text1.comments,
		ColComments2:     text2.comments,
	}, []string{
		ColData1, ColData2, ColCoupleData, ColTitle1, ColTitle2,
		ColFirstComment1, ColFirstComment2, ColComments1, ColComments2,
	})
}
