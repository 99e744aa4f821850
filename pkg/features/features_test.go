package features_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
	"github.com/Sumatoshi-tech/bugfeat/pkg/features"
	"github.com/Sumatoshi-tech/bugfeat/pkg/releases"
)

func extract(extractor features.Extractor, bug *bugzilla.Bug, env features.Env) any {
	return extractor.Extract(features.Input{Bug: bug, Env: env})
}

func extractPair(extractor features.Extractor, first, second *bugzilla.Bug) any {
	return extractor.Extract(features.Input{Pair: bugzilla.Pair{first, second}})
}

func TestWhiteboardKeywords(t *testing.T) {
	t.Parallel()

	tokens := features.WhiteboardKeywords("[fixed-in-fx70] foo:bar baz")
	assert.Equal(t, []string{"fixed-in-fx70", "foo:bar", "baz", "foo"}, tokens)

	tokens = features.WhiteboardKeywords("[Access-S2][qa: needed] ")
	assert.Equal(t, []string{"access-s2", "qa: needed", "qa"}, tokens)

	tokens = features.WhiteboardKeywords("[a] b:c d")
	assert.Equal(t, []string{"a", "b:c", "d", "b"}, tokens)

	assert.Empty(t, features.WhiteboardKeywords(""))
}

func TestFieldSentinels(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(1, "r@example.com")

	_, ok := features.Field(bug, "priority")
	assert.False(t, ok, "-- is unset")

	_, ok = features.Field(bug, "target_milestone")
	assert.False(t, ok, "--- is unset")

	value, ok := features.Field(bug, "product")
	assert.True(t, ok)
	assert.Equal(t, "Firefox", value)

	assert.Nil(t, extract(features.Severity(), bug, features.Env{}))
	assert.Nil(t, extract(features.HasSTR(), bug, features.Env{}))

	bug.Custom["cf_has_str"] = "yes"
	assert.Equal(t, "yes", extract(features.HasSTR(), bug, features.Env{}))
}

func TestKeywords(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(1, "r@example.com")
	bug.Keywords = []string{"access", "sec-high", "csectype-uaf", "crash"}

	result := extract(features.Keywords("access"), bug, features.Env{})
	assert.Equal(t, []string{"sec-high", "csectype-uaf", "crash", "sec-", "csectype-"}, result)
}

func TestCategoricalNormalization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		version string
		want    any
	}{
		{version: "Trunk", want: "Trunk"},
		{version: "Default", want: "Trunk"},
		{version: "Other Branch", want: "other"},
		{version: "unspecified", want: nil},
		{version: "70 Branch", want: "Has Value"},
	}

	for _, tt := range tests {
		bug := bugzilla.NewTestBug(1, "r@example.com")
		bug.Version = tt.version
		assert.Equal(t, tt.want, extract(features.Version(), bug, features.Env{}), tt.version)
	}

	bug := bugzilla.NewTestBug(1, "r@example.com")
	assert.Nil(t, extract(features.TargetMilestone(), bug, features.Env{}))

	bug.TargetMilestone = "Future"
	assert.Equal(t, "Future", extract(features.TargetMilestone(), bug, features.Env{}))
}

func TestAttachmentFeatures(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(1, "r@example.com")
	assert.Equal(t, false, extract(features.HasAttachment(), bug, features.Env{}))

	bug.Attachments = []bugzilla.Attachment{
		{ID: 1, ContentType: "image/png", CreationTime: bugzilla.TestEpoch},
		{ID: 2, ContentType: "text/x-phabricator-request", CreationTime: bugzilla.TestEpoch.Add(time.Hour)},
		{ID: 3, ContentType: "text/plain", IsPatch: true, CreationTime: bugzilla.TestEpoch.Add(time.Hour)},
	}

	assert.Equal(t, true, extract(features.HasAttachment(), bug, features.Env{}))
	assert.Equal(t, true, extract(features.HasImageAttachmentAtBugCreation(), bug, features.Env{}))
	assert.Equal(t, 2, extract(features.Patches(), bug, features.Env{}))

	bug.Attachments[0].CreationTime = bugzilla.TestEpoch.Add(time.Minute)
	assert.Equal(t, false, extract(features.HasImageAttachmentAtBugCreation(), bug, features.Env{}))
	assert.Equal(t, true, extract(features.HasImageAttachment(), bug, features.Env{}))
}

func TestReporterFeatures(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(1, "dev@mozilla.com")

	assert.Equal(t, true, extract(features.IsMozillian(), bug, features.Env{}))
	assert.Equal(t, "dev@mozilla.com", extract(features.BugReporter(), bug, features.Env{}))
	assert.Equal(t, 3, extract(features.ReporterExperience(), bug, features.Env{ReporterExperience: 3}))

	assert.Nil(t, extract(features.IsReporterADeveloper(), bug, features.Env{}))

	authors := map[string]struct{}{"dev@mozilla.com": {}}
	assert.Equal(t, true, extract(features.IsReporterADeveloper(), bug, features.Env{AuthorIDs: authors}))
}

func TestVersionStatusFeatures(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(1, "r@example.com")
	bug.Custom["cf_status_firefox69"] = "unaffected"
	bug.Custom["cf_status_firefox70"] = "affected"
	bug.Custom["cf_status_firefox_esr68"] = "fixed"

	unaffected, affected := features.VersionStatuses(bug)
	assert.Equal(t, []string{"69"}, unaffected)
	assert.Equal(t, []string{"70", "68"}, affected)

	assert.Equal(t, true, extract(features.AffectedThenUnaffected(), bug, features.Env{}))
	assert.Equal(t, false, extract(features.EverAffected(), bug, features.Env{}))

	bug.WithHistory(time.Hour, bugzilla.TestChange("cf_status_firefox70", "---", "affected"))
	assert.Equal(t, true, extract(features.EverAffected(), bug, features.Env{}))
}

func TestHistoryTimingFeatures(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(1, "r@example.com")
	bug.Resolution = "FIXED"
	bug.Custom["cf_last_resolved"] = "2019-07-03T10:00:00Z"
	bug.WithHistory(12*time.Hour, bugzilla.TestChange("status", "NEW", "ASSIGNED"))
	bug.WithHistory(24*time.Hour, bugzilla.TestChange("severity", "normal", "enhancement"))

	assert.InDelta(t, 2.0, extract(features.TimeToFix(), bug, features.Env{}), 1e-9)
	assert.InDelta(t, 0.5, extract(features.TimeToAssign(), bug, features.Env{}), 1e-9)
	assert.Equal(t, true, extract(features.HadSeverityEnhancement(), bug, features.Env{}))

	bug.Resolution = "WONTFIX"
	assert.Nil(t, extract(features.TimeToFix(), bug, features.Env{}))
}

func TestUpliftFeatures(t *testing.T) {
	t.Parallel()

	calendar, err := releases.New(releases.Release{Version: "70.0", Date: bugzilla.TestEpoch.Add(72 * time.Hour)})
	require.NoError(t, err)

	bug := bugzilla.NewTestBug(1, "r@example.com")
	bug.Comments = append(bug.Comments, bugzilla.Comment{
		ID:           2,
		Text:         "https://hg.mozilla.org/mozilla-central/rev/abc123def456",
		CreationTime: bugzilla.TestEpoch.Add(12 * time.Hour),
	})
	bug.WithHistory(24*time.Hour, bugzilla.TestChange("flagtypes.name", "", "approval-mozilla-beta?"))
	bug.WithHistory(36*time.Hour, bugzilla.TestChange("flagtypes.name", "approval-mozilla-beta?", "approval-mozilla-beta+"))

	env := features.Env{Releases: calendar}

	assert.InDelta(t, 2.0, extract(features.DeltaRequestMerge(), bug, env), 1e-9)
	assert.Nil(t, extract(features.DeltaRequestMerge(), bug, features.Env{}))
	assert.InDelta(t, 0.5, extract(features.DeltaNightlyRequestMerge(), bug, env), 1e-9)
	assert.Equal(t, true, extract(features.IsUplifted(), bug, env))
	assert.Equal(t, 1, extract(features.Landings(), bug, env))
}

func TestCommitFeatures(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(1, "r@example.com")
	assert.Nil(t, extract(features.CommitAuthorExperience(), bug, features.Env{}))

	bug.Commits = []bugzilla.Commit{
		{Added: 10, Deleted: 2, Types: []string{".cpp"}, FilesModifiedNum: 2, AuthorExperience: 4, Components: []string{"DOM", "Layout"}},
		{Added: 5, Deleted: 1, Types: []string{".js"}, FilesModifiedNum: 1, AuthorExperience: 2, Components: []string{"DOM"}},
		{Added: 100, Deleted: 100, AuthorExperience: 100, BackedOutBy: "deadbeef", Components: []string{"Graphics"}},
	}

	assert.Equal(t, 15, extract(features.CommitAdded(), bug, features.Env{}))
	assert.Equal(t, 3, extract(features.CommitDeleted(), bug, features.Env{}))
	assert.Equal(t, []string{".cpp", ".js"}, extract(features.CommitTypes(), bug, features.Env{}))
	assert.Equal(t, 3, extract(features.CommitFilesModifiedNum(), bug, features.Env{}))
	assert.InDelta(t, 3.0, extract(features.CommitAuthorExperience(), bug, features.Env{}), 1e-9)
	assert.Equal(t, 1, extract(features.CommitNoOfBackouts(), bug, features.Env{}))
	assert.Equal(t, []string{"DOM", "Layout"}, extract(features.ComponentsTouched(), bug, features.Env{}))
	assert.Equal(t, 2, extract(features.ComponentsTouchedNum(), bug, features.Env{}))
}

func TestTextFeatures(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(1, "r@example.com")
	bug.Summary = "[CID 1234] Null deref in parser"
	bug.URL = "https://github.com/w3c/csswg-drafts/issues/1"
	bug.Alias = bugzilla.Aliases{"CVE-2019-11707"}

	assert.Equal(t, 6, extract(features.NumWordsTitle(), bug, features.Env{}))
	assert.Equal(t, true, extract(features.IsCoverityIssue(), bug, features.Env{}))
	assert.Equal(t, true, extract(features.HasW3CURL(), bug, features.Env{}))
	assert.Equal(t, true, extract(features.HasGithubURL(), bug, features.Env{}))
	assert.Equal(t, true, extract(features.HasCVEInAlias(), bug, features.Env{}))
	assert.Equal(t, 41, extract(features.CommentLength(), bug, features.Env{}))
	assert.Equal(t, 6, extract(features.NumWordsComments(), bug, features.Env{}))
}

func TestPairSymmetry(t *testing.T) {
	t.Parallel()

	first := bugzilla.NewTestBug(1, "a@example.com")
	second := bugzilla.NewTestBug(2, "b@example.com")
	second.CreationTime = first.CreationTime.Add(36 * time.Hour)
	second.Product = "Core"

	same := features.IsSameProduct()
	assert.Equal(t, extractPair(same, first, second), extractPair(same, second, first))

	delta := features.CoupleDeltaCreationDate()
	forward := extractPair(delta, first, second).(float64)
	backward := extractPair(delta, second, first).(float64)
	assert.InDelta(t, -1.5, forward, 1e-9)
	assert.InDelta(t, -forward, backward, 1e-9)
}

func TestPairCommonFeatures(t *testing.T) {
	t.Parallel()

	first := bugzilla.NewTestBug(1, "a@example.com")
	second := bugzilla.NewTestBug(2, "b@example.com")
	first.Summary = "crash in the parser"
	second.Summary = "parser hang in startup"
	first.Keywords = []string{"crash", "regression", "access"}
	second.Keywords = []string{"access", "crash"}
	first.Whiteboard = "[qa:triaged] perf"
	second.Whiteboard = "qa:done [perf]"
	first.Custom["cf_status_firefox70"] = "affected"
	first.Custom["cf_status_firefox69"] = "affected"
	second.Custom["cf_status_firefox69"] = "fixed"

	assert.Equal(t, []string{"in", "parser"}, extractPair(features.CoupleCommonWordsSummary(), first, second))
	assert.Equal(t, []string{"crash"}, extractPair(features.CoupleCommonKeywords("access"), first, second))
	assert.Equal(t, []string{"perf", "qa"}, extractPair(features.CoupleCommonWhiteboardKeywords(), first, second))
	assert.Equal(t, true, extractPair(features.IsFirstAffectedSame(), first, second))

	other := first.Clone()
	other.Component = "Networking"
	assert.Equal(t, false, extractPair(features.IsSameComponent(), first, other))
	assert.Equal(t, true, extractPair(features.IsSameProduct(), first, other))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := features.NewRegistry(features.HasSTR(), features.Product(), features.HasSTR())
	require.ErrorIs(t, err, features.ErrDuplicateExtractor)

	registry, err := features.NewRegistry(features.HasSTR(), features.IsSameProduct())
	require.NoError(t, err)
	assert.Len(t, registry.ByKind(features.KindSingle), 1)
	assert.Len(t, registry.ByKind(features.KindPair), 1)

	extractor, ok := registry.Lookup("is-same-product")
	require.True(t, ok)
	assert.Equal(t, "IsSameProduct", extractor.Descriptor().Name)
}

func TestRegistryRejectsInvalidKind(t *testing.T) {
	t.Parallel()

	_, err := features.NewRegistry(kindless{})
	require.ErrorIs(t, err, features.ErrInvalidKind)
}

type kindless struct{}

func (kindless) Descriptor() features.Descriptor { return features.Descriptor{ID: "kindless"} }

func (kindless) Extract(features.Input) any { return nil }

func TestCatalog(t *testing.T) {
	t.Parallel()

	catalog := features.DefaultCatalog()
	assert.Len(t, catalog.IDs(), 68)

	extractors, err := catalog.Build([]string{"has-str", "keywords", "is-same-os"})
	require.NoError(t, err)
	require.Len(t, extractors, 3)
	assert.Equal(t, "Has STR", extractors[0].Descriptor().Name)
	assert.Equal(t, features.KindPair, extractors[2].Descriptor().Kind)

	_, err = catalog.Build([]string{"nope"})
	require.ErrorIs(t, err, features.ErrUnknownExtractor)

	for _, descriptor := range catalog.Descriptors() {
		assert.NotEmpty(t, descriptor.Name, descriptor.ID)
	}
}
