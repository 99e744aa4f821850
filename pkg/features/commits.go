package features

import (
	"slices"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
)

// Commit features only count commits that were not backed out.

func sumCommits(bug *bugzilla.Bug, value func(bugzilla.Commit) int) int {
	total := 0
	for _, commit := range bug.ActiveCommits() {
		total += value(commit)
	}

	return total
}

// averageCommits returns nil for bugs without active commits.
func averageCommits(bug *bugzilla.Bug, value func(bugzilla.Commit) float64) any {
	active := bug.ActiveCommits()
	if len(active) == 0 {
		return nil
	}

	total := 0.0
	for _, commit := range active {
		total += value(commit)
	}

	return total / float64(len(active))
}

func touchedComponents(bug *bugzilla.Bug) []string {
	var components []string

	for _, commit := range bug.ActiveCommits() {
		components = append(components, commit.Components...)
	}

	slices.Sort(components)

	return slices.Compact(components)
}

// CommitAdded sums added lines.
func CommitAdded() Extractor {
	return NewSingle("commit-added", "CommitAdded", func(bug *bugzilla.Bug, _ Env) any {
		return sumCommits(bug, func(c bugzilla.Commit) int { return c.Added })
	})
}

// CommitDeleted sums deleted lines.
func CommitDeleted() Extractor {
	return NewSingle("commit-deleted", "CommitDeleted", func(bug *bugzilla.Bug, _ Env) any {
		return sumCommits(bug, func(c bugzilla.Commit) int { return c.Deleted })
	})
}

// CommitTypes lists the file types touched, one entry per commit and type.
func CommitTypes() Extractor {
	return NewSingle("commit-types", "CommitTypes", func(bug *bugzilla.Bug, _ Env) any {
		types := []string{}
		for _, commit := range bug.ActiveCommits() {
			types = append(types, commit.Types...)
		}

		return types
	})
}

// CommitFilesModifiedNum sums modified files.
func CommitFilesModifiedNum() Extractor {
	return NewSingle("commit-files-modified-num", "CommitFilesModifiedNum", func(bug *bugzilla.Bug, _ Env) any {
		return sumCommits(bug, func(c bugzilla.Commit) int { return c.FilesModifiedNum })
	})
}

// CommitAuthorExperience averages author experience.
func CommitAuthorExperience() Extractor {
	return NewSingle("commit-author-experience", "CommitAuthorExperience", func(bug *bugzilla.Bug, _ Env) any {
		return averageCommits(bug, func(c bugzilla.Commit) float64 { return c.AuthorExperience })
	})
}

// CommitAuthorExperience90Days averages 90-day author experience.
func CommitAuthorExperience90Days() Extractor {
	return NewSingle("commit-author-experience-90-days", "CommitAuthorExperience90Days",
		func(bug *bugzilla.Bug, _ Env) any {
			return averageCommits(bug, func(c bugzilla.Commit) float64 { return c.AuthorExperience90Days })
		})
}

// CommitReviewerExperience averages reviewer experience.
func CommitReviewerExperience() Extractor {
	return NewSingle("commit-reviewer-experience", "CommitReviewerExperience", func(bug *bugzilla.Bug, _ Env) any {
		return averageCommits(bug, func(c bugzilla.Commit) float64 { return c.ReviewerExperience })
	})
}

// CommitReviewerExperience90Days averages 90-day reviewer experience.
func CommitReviewerExperience90Days() Extractor {
	return NewSingle("commit-reviewer-experience-90-days", "CommitReviewerExperience90Days",
		func(bug *bugzilla.Bug, _ Env) any {
			return averageCommits(bug, func(c bugzilla.Commit) float64 { return c.ReviewerExperience90Days })
		})
}

// CommitNoOfBackouts counts backed out commits.
func CommitNoOfBackouts() Extractor {
	return NewSingle("commit-no-of-backouts", "CommitNoOfBackouts", func(bug *bugzilla.Bug, _ Env) any {
		count := 0

		for _, commit := range bug.Commits {
			if commit.IsBackedOut() {
				count++
			}
		}

		return count
	})
}

// ComponentsTouched lists the distinct components touched, sorted.
func ComponentsTouched() Extractor {
	return NewSingle("components-touched", "ComponentsTouched", func(bug *bugzilla.Bug, _ Env) any {
		return touchedComponents(bug)
	})
}

// ComponentsTouchedNum counts the distinct components touched.
func ComponentsTouchedNum() Extractor {
	return NewSingle("components-touched-num", "ComponentsTouchedNum", func(bug *bugzilla.Bug, _ Env) any {
		return len(touchedComponents(bug))
	})
}
