package extraction_test

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
	"github.com/Sumatoshi-tech/bugfeat/pkg/cleanup"
	"github.com/Sumatoshi-tech/bugfeat/pkg/commits"
	"github.com/Sumatoshi-tech/bugfeat/pkg/extraction"
	"github.com/Sumatoshi-tech/bugfeat/pkg/features"
	"github.com/Sumatoshi-tech/bugfeat/pkg/observability"
)

func bugID() features.Extractor {
	return features.NewSingle("bug-id", "Bug ID", func(bug *bugzilla.Bug, _ features.Env) any {
		return bug.ID
	})
}

func newExtractor(t *testing.T, extractors []features.Extractor, opts ...extraction.Option) *extraction.BugExtractor {
	t.Helper()

	extractor, err := extraction.New(extractors, nil, opts...)
	require.NoError(t, err)

	return extractor
}

func transformBugs(t *testing.T, extractor *extraction.BugExtractor, bugs ...*bugzilla.Bug) *extraction.Frame {
	t.Helper()

	frame, err := extractor.Transform(context.Background(), extraction.Bugs(bugzilla.NewSliceSource(bugs...)))
	require.NoError(t, err)

	return frame
}

func TestNewRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := extraction.New([]features.Extractor{features.Product(), features.Component(), features.Product()}, nil)
	require.ErrorIs(t, err, features.ErrDuplicateExtractor)

	_, err = extraction.New(nil, []cleanup.Cleaner{cleanup.URL(), cleanup.URL()})
	require.ErrorIs(t, err, cleanup.ErrDuplicateCleaner)
}

func TestTransformReporterExperience(t *testing.T) {
	t.Parallel()

	extractor := newExtractor(t, []features.Extractor{features.ReporterExperience()})
	name := features.ReporterExperience().Descriptor().Name

	frame := transformBugs(t, extractor,
		bugzilla.NewTestBug(1, "ann@example.com"),
		bugzilla.NewTestBug(2, "bob@example.com"),
		bugzilla.NewTestBug(3, "ann@example.com"),
		bugzilla.NewTestBug(4, "ann@example.com"),
	)

	var got []any
	for _, row := range frame.Rows {
		got = append(got, row.Features(extraction.ColData)[name])
	}

	assert.Equal(t, []any{0, 0, 1, 2}, got)

	again := transformBugs(t, extractor, bugzilla.NewTestBug(5, "ann@example.com"))
	assert.Equal(t, 0, again.Rows[0].Features(extraction.ColData)[name])
}

func TestTransformExpandsListFeatures(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(1, "ann@example.com")
	bug.Keywords = []string{"a", "b"}

	frame := transformBugs(t, newExtractor(t, []features.Extractor{
		features.Keywords(), features.Priority(), features.Product(),
	}), bug)

	data := frame.Rows[0].Features(extraction.ColData)

	assert.Equal(t, extraction.Features{
		"a in Keywords": true,
		"b in Keywords": true,
		"Product":       "Firefox",
	}, data)
	assert.NotContains(t, data, "Keywords")
	assert.NotContains(t, data, "Priority")
	assert.Equal(t, []string{"Product", "a in Keywords", "b in Keywords"}, frame.FeatureNames())
}

func TestTransformCleansText(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(1, "ann@example.com")
	bug.Summary = "Broken on https://example.com/page"
	bug.Comments = append(bug.Comments, bugzilla.Comment{
		ID: 11, Text: "See http://example.org", Creator: "bob@example.com", CreationTime: bugzilla.TestEpoch,
	})

	extractor, err := extraction.New(nil, []cleanup.Cleaner{cleanup.URL()})
	require.NoError(t, err)

	frame, err := extractor.Transform(context.Background(), extraction.Bugs(bugzilla.NewSliceSource(bug)))
	require.NoError(t, err)

	row := frame.Rows[0]
	assert.Equal(t, "Broken on __URL__", row.Text(extraction.ColTitle))
	assert.Equal(t, "Steps to reproduce: open the preferences.", row.Text(extraction.ColFirstComment))
	assert.Equal(t, "Steps to reproduce: open the preferences. See __URL__", row.Text(extraction.ColComments))
	assert.Equal(t, []string{
		extraction.ColData, extraction.ColTitle, extraction.ColFirstComment, extraction.ColComments,
	}, frame.Columns)
	assert.Equal(t, "See http://example.org", bug.Comments[1].Text)
}

func TestTransformWithoutComments(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(1, "ann@example.com")
	bug.Comments = []bugzilla.Comment{}

	frame := transformBugs(t, newExtractor(t, nil), bug)

	assert.Empty(t, frame.Rows[0].Text(extraction.ColFirstComment))
	assert.Empty(t, frame.Rows[0].Text(extraction.ColComments))
}

func TestTransformRollbackKeepsOrder(t *testing.T) {
	t.Parallel()

	bugs := make([]*bugzilla.Bug, 0, 64)
	for id := 1; id <= 64; id++ {
		bug := bugzilla.NewTestBug(id, "ann@example.com")
		bug.Priority = "P2"
		bugs = append(bugs, bug.WithHistory(time.Hour, bugzilla.TestChange("priority", "P1", "P2")))
	}

	extractor := newExtractor(t,
		[]features.Extractor{bugID(), features.Priority(), features.ReporterExperience()},
		extraction.WithRollback(nil), extraction.WithWorkers(4),
	)

	frame := transformBugs(t, extractor, bugs...)
	require.Equal(t, 64, frame.Len())

	experience := features.ReporterExperience().Descriptor().Name

	for i, row := range frame.Rows {
		data := row.Features(extraction.ColData)
		assert.Equal(t, i+1, data["Bug ID"])
		assert.Equal(t, "P1", data["Priority"])
		assert.Equal(t, i, data[experience])
	}

	assert.Equal(t, "P2", bugs[0].Priority)
}

func TestTransformRollbackTarget(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(1, "ann@example.com")
	bug.Priority = "P3"
	bug.WithHistory(time.Hour, bugzilla.TestChange("priority", "P1", "P2")).
		WithHistory(3*time.Hour, bugzilla.TestChange("priority", "P2", "P3"))

	when := bugzilla.TestEpoch.Add(2 * time.Hour)
	frame := transformBugs(t, newExtractor(t, []features.Extractor{features.Priority()},
		extraction.WithRollback(&when)), bug)

	assert.Equal(t, "P2", frame.Rows[0].Features(extraction.ColData)["Priority"])
}

func TestTransformRollbackFailureAborts(t *testing.T) {
	t.Parallel()

	bugs := make([]*bugzilla.Bug, 0, 10)
	for id := 1; id <= 10; id++ {
		bugs = append(bugs, bugzilla.NewTestBug(id, "ann@example.com"))
	}

	bugs[6].WithHistory(time.Hour, bugzilla.TestChange("depends_on", "not-a-bug", ""))

	extractor := newExtractor(t, []features.Extractor{bugID()},
		extraction.WithRollback(nil), extraction.WithWorkers(3))

	frame, err := extractor.Transform(context.Background(), extraction.Bugs(bugzilla.NewSliceSource(bugs...)))
	require.ErrorIs(t, err, bugzilla.ErrMalformedBug)
	assert.Nil(t, frame)
}

var errSourceBroken = errors.New("source broken")

func TestTransformSourceErrorAborts(t *testing.T) {
	t.Parallel()

	input := func(context.Context) iter.Seq2[extraction.Item, error] {
		return func(yield func(extraction.Item, error) bool) {
			if !yield(extraction.Single(bugzilla.NewTestBug(1, "ann@example.com")), nil) {
				return
			}

			yield(extraction.Item{}, errSourceBroken)
		}
	}

	for _, opts := range [][]extraction.Option{nil, {extraction.WithRollback(nil)}} {
		frame, err := newExtractor(t, []features.Extractor{bugID()}, opts...).Transform(context.Background(), input)
		require.ErrorIs(t, err, errSourceBroken)
		assert.Nil(t, frame)
	}
}

func TestTransformRejectsMixedInput(t *testing.T) {
	t.Parallel()

	first := bugzilla.NewTestBug(1, "ann@example.com")
	second := bugzilla.NewTestBug(2, "bob@example.com")
	extractor := newExtractor(t, nil)

	_, err := extractor.Transform(context.Background(),
		extraction.Items(extraction.Single(first), extraction.Couple(first, second)))
	require.ErrorIs(t, err, extraction.ErrMixedInput)

	_, err = extractor.Transform(context.Background(),
		extraction.Items(extraction.Couple(first, second), extraction.Single(first)))
	require.ErrorIs(t, err, extraction.ErrMixedInput)
}

func TestTransformEmptyInput(t *testing.T) {
	t.Parallel()

	_, err := newExtractor(t, nil).Transform(context.Background(), extraction.Items())
	require.ErrorIs(t, err, extraction.ErrEmptyInput)
}

func pairBugs() (*bugzilla.Bug, *bugzilla.Bug, *bugzilla.Bug) {
	first := bugzilla.NewTestBug(1, "ann@example.com")
	first.Summary = "Tab crash"
	first.Priority = "P2"
	first.WithHistory(time.Hour, bugzilla.TestChange("priority", "P1", "P2"))

	second := bugzilla.NewTestBug(2, "ann@example.com")
	second.Summary = "Tab hang"

	third := bugzilla.NewTestBug(3, "bob@example.com")
	third.Summary = "Menu glitch"
	third.Product = "Core"

	return first, second, third
}

func TestTransformPairsMerged(t *testing.T) {
	t.Parallel()

	first, second, third := pairBugs()
	extractor := newExtractor(t, []features.Extractor{
		features.Product(), features.IsSameProduct(), features.CoupleCommonWordsSummary(),
	})

	frame, err := extractor.Transform(context.Background(), extraction.Pairs(
		bugzilla.Pair{first, second},
		bugzilla.Pair{first, third},
	))
	require.NoError(t, err)

	assert.Equal(t, features.KindPair, frame.Mode)
	assert.Equal(t, []string{extraction.ColText, extraction.ColCoupleData}, frame.Columns)
	require.Equal(t, 2, frame.Len())

	row := frame.Rows[0]
	comment := "Steps to reproduce: open the preferences."
	assert.Equal(t, "Tab crash "+comment+" Tab hang "+comment, row.Text(extraction.ColText))
	assert.Equal(t, extraction.Features{
		"IsSameProduct":                  true,
		"Tab in CoupleCommonWordsSummary": true,
	}, row.Features(extraction.ColCoupleData))

	assert.Equal(t, false, frame.Rows[1].Features(extraction.ColCoupleData)["IsSameProduct"])
}

func TestTransformPairsSeparate(t *testing.T) {
	t.Parallel()

	first, second, third := pairBugs()
	experience := features.ReporterExperience().Descriptor().Name

	extractor := newExtractor(t,
		[]features.Extractor{features.Priority(), features.ReporterExperience(), features.IsSameProduct()},
		extraction.WithMergeData(false), extraction.WithRollback(nil),
	)

	frame, err := extractor.Transform(context.Background(), extraction.Pairs(
		bugzilla.Pair{first, second},
		bugzilla.Pair{first, third},
	))
	require.NoError(t, err)
	require.Equal(t, 2, frame.Len())

	assert.Equal(t, []string{
		extraction.ColData1, extraction.ColData2, extraction.ColCoupleData,
		extraction.ColTitle1, extraction.ColTitle2,
		extraction.ColFirstComment1, extraction.ColFirstComment2,
		extraction.ColComments1, extraction.ColComments2,
	}, frame.Columns)

	firstRow, secondRow := frame.Rows[0], frame.Rows[1]

	assert.Equal(t, "P1", firstRow.Features(extraction.ColData1)["Priority"])
	assert.Equal(t, "P1", secondRow.Features(extraction.ColData1)["Priority"])
	assert.Equal(t, "Tab hang", firstRow.Text(extraction.ColTitle2))
	assert.Equal(t, "Menu glitch", secondRow.Text(extraction.ColTitle2))

	assert.Equal(t, 0, firstRow.Features(extraction.ColData1)[experience])
	assert.Equal(t, 0, firstRow.Features(extraction.ColData2)[experience])
	assert.Equal(t, 2, secondRow.Features(extraction.ColData1)[experience])
	assert.Equal(t, 0, secondRow.Features(extraction.ColData2)[experience])

	assert.Equal(t, true, firstRow.Features(extraction.ColCoupleData)["IsSameProduct"])
	assert.NotContains(t, firstRow.Features(extraction.ColCoupleData), "Priority")
	assert.NotContains(t, firstRow.Features(extraction.ColData1), "IsSameProduct")
}

func TestTransformPairsRollBackEachBugOnce(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	metrics, err := observability.NewExtractionMetrics(meter)
	require.NoError(t, err)

	first, second, third := pairBugs()
	extractor := newExtractor(t, []features.Extractor{features.IsSameProduct()},
		extraction.WithRollback(nil), extraction.WithMetrics(metrics))

	_, err = extractor.Transform(context.Background(), extraction.Pairs(
		bugzilla.Pair{first, second},
		bugzilla.Pair{first, third},
		bugzilla.Pair{second, third},
	))
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(3), counterTotal(rm, "bugfeat.extraction.rollbacks.total"))
	assert.Equal(t, int64(3), counterTotal(rm, "bugfeat.extraction.rows.total"))
}

func counterTotal(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}

			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}

	return total
}

func TestTransformCommitData(t *testing.T) {
	t.Parallel()

	source := commits.SliceSource{{Node: "aaa", AuthorEmail: "ann@example.com"}}
	developer := features.IsReporterADeveloper()

	withCommits := newExtractor(t, []features.Extractor{developer}, extraction.WithCommitSource(source))
	frame := transformBugs(t, withCommits,
		bugzilla.NewTestBug(1, "ann@example.com"),
		bugzilla.NewTestBug(2, "bob@example.com"),
	)

	assert.Equal(t, true, frame.Rows[0].Features(extraction.ColData)["IsReporterADeveloper"])
	assert.Equal(t, false, frame.Rows[1].Features(extraction.ColData)["IsReporterADeveloper"])

	withoutCommits := transformBugs(t, newExtractor(t, []features.Extractor{developer}),
		bugzilla.NewTestBug(1, "ann@example.com"))
	assert.NotContains(t, withoutCommits.Rows[0].Features(extraction.ColData), "IsReporterADeveloper")
}

func TestTransformAttachesCommits(t *testing.T) {
	t.Parallel()

	source := commits.SliceSource{
		{Node: "aaa", AuthorEmail: "ann@example.com", BugID: 1, Added: 10, Deleted: 2},
		{Node: "bbb", AuthorEmail: "ann@example.com", BugID: 1, Added: 5},
		{Node: "ccc", AuthorEmail: "bob@example.com", BugID: 3, Added: 7},
	}

	ext := newExtractor(t, []features.Extractor{features.CommitAdded()}, extraction.WithCommitSource(source))
	bug1 := bugzilla.NewTestBug(1, "carol@example.com")
	frame := transformBugs(t, ext, bug1, bugzilla.NewTestBug(2, "carol@example.com"))

	assert.Equal(t, 15, frame.Rows[0].Features(extraction.ColData)["CommitAdded"])
	assert.Equal(t, 0, frame.Rows[1].Features(extraction.ColData)["CommitAdded"])
	assert.Empty(t, bug1.Commits)
}

type countingCommitSource struct {
	commits.SliceSource

	reads int
}

func (c *countingCommitSource) Commits(ctx context.Context) iter.Seq2[*commits.Commit, error] {
	c.reads++

	return c.SliceSource.Commits(ctx)
}

func TestTransformReadsCommitSourceOnce(t *testing.T) {
	t.Parallel()

	source := &countingCommitSource{SliceSource: commits.SliceSource{
		{Node: "aaa", AuthorEmail: "ann@example.com", BugID: 1, Added: 4},
	}}

	ext := newExtractor(t,
		[]features.Extractor{features.IsReporterADeveloper(), features.CommitAdded()},
		extraction.WithCommitSource(source))
	frame := transformBugs(t, ext, bugzilla.NewTestBug(1, "ann@example.com"))

	assert.Equal(t, 1, source.reads)
	assert.Equal(t, true, frame.Rows[0].Features(extraction.ColData)["IsReporterADeveloper"])
	assert.Equal(t, 4, frame.Rows[0].Features(extraction.ColData)["CommitAdded"])
}

type countingFitter struct {
	features.Extractor

	seen int
}

func (c *countingFitter) Fit(_ context.Context, inputs iter.Seq2[features.Input, error]) error {
	for in, err := range inputs {
		if err != nil {
			return err
		}

		if in.Bug != nil {
			c.seen++
		}
	}

	return nil
}

func TestFit(t *testing.T) {
	t.Parallel()

	fitter := &countingFitter{Extractor: features.Product()}
	extractor := newExtractor(t, []features.Extractor{fitter, features.Component()})

	input := extraction.Bugs(bugzilla.NewSliceSource(
		bugzilla.NewTestBug(1, "ann@example.com"),
		bugzilla.NewTestBug(2, "ann@example.com"),
		bugzilla.NewTestBug(3, "bob@example.com"),
	))

	require.NoError(t, extractor.Fit(context.Background(), input))
	assert.Equal(t, 3, fitter.seen)

	frame, err := extractor.Transform(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 3, frame.Len())
}

func TestFrameCoverage(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(1, "ann@example.com")
	bug.Priority = "P1"

	frame := transformBugs(t, newExtractor(t, []features.Extractor{features.Priority(), features.Product()}),
		bug, bugzilla.NewTestBug(2, "ann@example.com"))

	assert.Equal(t, map[string]int{"Priority": 1, "Product": 2}, frame.Coverage())
}

func TestPairsByID(t *testing.T) {
	t.Parallel()

	first, second, third := pairBugs()
	src := bugzilla.NewSliceSource(first, second, third)

	var pairs [][2]int
	for item, err := range extraction.PairsByID(src, [][2]int{{1, 3}, {2, 99}, {2, 1}})(context.Background()) {
		require.NoError(t, err)
		require.True(t, item.IsPair())

		pairs = append(pairs, [2]int{item.Pair[0].ID, item.Pair[1].ID})
	}

	assert.Equal(t, [][2]int{{1, 3}, {2, 1}}, pairs)
}
