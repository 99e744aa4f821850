package snapshot_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
	"github.com/Sumatoshi-tech/bugfeat/pkg/snapshot"
)

func historyBug() *bugzilla.Bug {
	bug := bugzilla.NewTestBug(100, "reporter@example.com")
	bug.Status = "RESOLVED"
	bug.Resolution = "FIXED"
	bug.Keywords = []string{"crash", "regression"}
	bug.DependsOn = []int{7}
	bug.Custom["cf_status_firefox70"] = "fixed"

	bug.WithHistory(time.Hour,
		bugzilla.TestChange("bug_status", "NEW", "ASSIGNED"),
		bugzilla.TestChange("keywords", "", "crash"),
	)
	bug.WithHistory(2*time.Hour,
		bugzilla.TestChange("bug_status", "ASSIGNED", "RESOLVED"),
		bugzilla.TestChange("resolution", "", "FIXED"),
		bugzilla.TestChange("keywords", "", "regression"),
		bugzilla.TestChange("cf_status_firefox70", "affected", "fixed"),
		bugzilla.TestChange("dependson", "", "7"),
	)

	return bug
}

func TestRollbackEmptyHistoryIsIdentity(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(1, "reporter@example.com")

	snap, err := snapshot.Rollback(bug, snapshot.At(bugzilla.TestEpoch.Add(-time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, bug, snap)
	assert.NotSame(t, bug, snap)
}

func TestRollbackToCreation(t *testing.T) {
	t.Parallel()

	bug := historyBug()

	snap, err := snapshot.Rollback(bug, snapshot.WithAssert())
	require.NoError(t, err)

	assert.Equal(t, "NEW", snap.Status)
	assert.Empty(t, snap.Resolution)
	assert.Empty(t, snap.Keywords)
	assert.Empty(t, snap.DependsOn)
	assert.Equal(t, "affected", snap.Custom["cf_status_firefox70"])
	assert.Empty(t, snap.History)

	assert.Equal(t, "RESOLVED", bug.Status, "input must not change")
	assert.Len(t, bug.History, 2)
}

func TestRollbackBoundary(t *testing.T) {
	t.Parallel()

	bug := historyBug()
	changed := bugzilla.TestEpoch.Add(2 * time.Hour)

	before, err := snapshot.Rollback(bug, snapshot.At(changed.Add(-time.Second)))
	require.NoError(t, err)
	assert.Equal(t, "ASSIGNED", before.Status)
	assert.Equal(t, []string{"crash"}, before.Keywords)

	at, err := snapshot.Rollback(bug, snapshot.At(changed))
	require.NoError(t, err)
	assert.Equal(t, "RESOLVED", at.Status)

	after, err := snapshot.Rollback(bug, snapshot.At(changed.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, "RESOLVED", after.Status)
	assert.Len(t, after.History, 2)
}

func TestRollbackIsIdempotent(t *testing.T) {
	t.Parallel()

	target := bugzilla.TestEpoch.Add(90 * time.Minute)

	once, err := snapshot.Rollback(historyBug(), snapshot.At(target))
	require.NoError(t, err)

	twice, err := snapshot.Rollback(once, snapshot.At(target), snapshot.WithAssert())
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestRollbackAppliesChangesInListedOrder(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(2, "reporter@example.com")
	bug.Priority = "P1"
	bug.WithHistory(time.Hour,
		bugzilla.TestChange("priority", "P3", "P2"),
		bugzilla.TestChange("priority", "P2", "P1"),
	)

	snap, err := snapshot.Rollback(bug)
	require.NoError(t, err)
	assert.Equal(t, "P2", snap.Priority)
}

func TestRollbackSynthesizesCustomFields(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(3, "reporter@example.com")
	bug.WithHistory(time.Hour,
		bugzilla.TestChange("cf_status_firefox_esr68", "unaffected", "---"),
		bugzilla.TestChange("cf_has_str", "", "yes"),
	)

	snap, err := snapshot.Rollback(bug)
	require.NoError(t, err)
	assert.Equal(t, "unaffected", snap.Custom["cf_status_firefox_esr68"])
	assert.NotContains(t, snap.Custom, "cf_has_str")
}

func TestRollbackRestoresFlags(t *testing.T) {
	t.Parallel()

	attachmentID := 55
	bug := bugzilla.NewTestBug(4, "reporter@example.com")
	bug.Flags = []bugzilla.Flag{{Name: "needinfo", Status: "?", Requestee: "dev@mozilla.com"}}
	bug.Attachments = []bugzilla.Attachment{{
		ID:           attachmentID,
		ContentType:  "text/plain",
		CreationTime: bugzilla.TestEpoch,
		IsPatch:      true,
		Flags:        []bugzilla.Flag{{Name: "review", Status: "+"}},
	}}

	flagChange := bugzilla.TestChange("flagtypes.name", "review?(dev@mozilla.com)", "review+")
	flagChange.AttachmentID = &attachmentID
	patchChange := bugzilla.TestChange("attachments.ispatch", "0", "1")
	patchChange.AttachmentID = &attachmentID

	bug.WithHistory(time.Hour,
		bugzilla.TestChange("flagtypes.name", "", "needinfo?(dev@mozilla.com)"),
		flagChange,
		patchChange,
	)

	snap, err := snapshot.Rollback(bug, snapshot.WithAssert())
	require.NoError(t, err)

	assert.Empty(t, snap.Flags)
	require.Len(t, snap.Attachments, 1)
	assert.Equal(t, []bugzilla.Flag{{Name: "review", Status: "?", Requestee: "dev@mozilla.com"}}, snap.Attachments[0].Flags)
	assert.False(t, bool(snap.Attachments[0].IsPatch))
	assert.Equal(t, "+", bug.Attachments[0].Flags[0].Status)
}

func TestRollbackIgnoresUnknownFields(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(5, "reporter@example.com")
	bug.WithHistory(time.Hour, bugzilla.TestChange("votes", "0", "3"))

	snap, err := snapshot.Rollback(bug, snapshot.WithAssert())
	require.NoError(t, err)
	assert.Empty(t, snap.History)
}

func TestRollbackAssertDetectsInconsistency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		change bugzilla.Change
	}{
		{name: "scalar", change: bugzilla.TestChange("bug_status", "NEW", "VERIFIED")},
		{name: "list", change: bugzilla.TestChange("keywords", "", "missing")},
		{name: "flag", change: bugzilla.TestChange("flagtypes.name", "", "review+")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bug := bugzilla.NewTestBug(6, "reporter@example.com")
			bug.WithHistory(time.Hour, tt.change)

			_, err := snapshot.Rollback(bug, snapshot.WithAssert())
			require.ErrorIs(t, err, snapshot.ErrInconsistentHistory)

			_, err = snapshot.Rollback(bug)
			require.NoError(t, err)
		})
	}
}

func TestRollbackActivityTrim(t *testing.T) {
	t.Parallel()

	bug := bugzilla.NewTestBug(7, "reporter@example.com")
	bug.Comments = append(bug.Comments, bugzilla.Comment{ID: 2, Text: "later", CreationTime: bugzilla.TestEpoch.Add(time.Hour)})
	bug.Attachments = []bugzilla.Attachment{{ID: 1, ContentType: "image/png", CreationTime: bugzilla.TestEpoch.Add(time.Hour)}}

	snap, err := snapshot.Rollback(bug, snapshot.WithActivityTrim())
	require.NoError(t, err)
	assert.Len(t, snap.Comments, 1)
	assert.Empty(t, snap.Attachments)

	kept, err := snapshot.Rollback(bug)
	require.NoError(t, err)
	assert.Len(t, kept.Comments, 2)
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	want := time.Date(2019, time.July, 1, 0, 0, 0, 0, time.UTC)

	for _, value := range []string{"2019-07-01", "2019-07-01 00:00:00", "2019-07-01T02:00:00+02:00", " 2019-07-01 "} {
		got, err := snapshot.ParseTime(value)
		require.NoError(t, err, value)
		assert.True(t, got.Equal(want), value)
	}

	_, err := snapshot.ParseTime("last tuesday")
	require.ErrorIs(t, err, snapshot.ErrInvalidTime)
}
