// Package snapshot reconstructs the state of a bug at an earlier point in
// time by undoing its history entries, most recent first.
package snapshot

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
)

// ErrInconsistentHistory is returned in assert mode when a history change
// does not match the state it is applied to.
var ErrInconsistentHistory = errors.New("inconsistent bug history")

// Option configures a rollback.
type Option func(*options)

type options struct {
	target       *time.Time
	assert       bool
	trimActivity bool
}

// At sets the target time. Entries recorded strictly after t are undone;
// entries recorded exactly at t are kept.
func At(t time.Time) Option {
	return func(o *options) { o.target = &t }
}

// WithAssert verifies every undone change against the state it applies to.
func WithAssert() Option {
	return func(o *options) { o.assert = true }
}

// WithActivityTrim also drops comments and attachments created after the target.
func WithActivityTrim() Option {
	return func(o *options) { o.trimActivity = true }
}

// Rollback returns a copy of bug as it was at the target time, or as it was
// filed when no target is given. The input is never modified. The returned
// history only holds the entries that were not undone, so rolling a snapshot
// back to the same time again is a no-op.
func Rollback(bug *bugzilla.Bug, opts ...Option) (*bugzilla.Bug, error) {
	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}

	snap := bug.Clone()

	undone := func(entry bugzilla.HistoryEntry) bool {
		return cfg.target == nil || entry.When.After(*cfg.target)
	}

	entries := slices.Clone(snap.History)
	slices.SortStableFunc(entries, func(a, b bugzilla.HistoryEntry) int {
		return b.When.Compare(a.When)
	})

	r := &reverter{bug: snap, assert: cfg.assert}

	for _, entry := range entries {
		if !undone(entry) {
			break
		}

		for _, change := range entry.Changes {
			err := r.undo(change)
			if err != nil {
				return nil, fmt.Errorf("bug %d at %s: %w", bug.ID, entry.When.Format(time.RFC3339), err)
			}
		}
	}

	snap.History = slices.DeleteFunc(snap.History, undone)

	if cfg.trimActivity {
		limit := bug.CreationTime
		if cfg.target != nil {
			limit = *cfg.target
		}

		trimActivity(snap, limit)
	}

	return snap, nil
}

func trimActivity(bug *bugzilla.Bug, limit time.Time) {
	bug.Comments = slices.DeleteFunc(bug.Comments, func(c bugzilla.Comment) bool {
		return c.CreationTime.After(limit)
	})
	bug.Attachments = slices.DeleteFunc(bug.Attachments, func(a bugzilla.Attachment) bool {
		return a.CreationTime.After(limit)
	})

	if bug.CommentCount != nil {
		count := len(bug.Comments)
		bug.CommentCount = &count
	}
}
