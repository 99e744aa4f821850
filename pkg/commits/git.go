package commits

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"strconv"
	"time"

	git2go "github.com/libgit2/git2go/v34"
)

var bugReference = regexp.MustCompile(`(?i)\bbug[\s:#-]*(\d+)`)

// GitSource reads commit metadata straight from a local git repository,
// walking from HEAD newest first.
type GitSource struct {
	path  string
	since *time.Time
}

// GitOption configures a GitSource.
type GitOption func(*GitSource)

// Since skips commits pushed before t.
func Since(t time.Time) GitOption {
	return func(s *GitSource) {
		s.since = &t
	}
}

// NewGitSource creates a source over the repository at path.
func NewGitSource(path string, opts ...GitOption) *GitSource {
	source := &GitSource{path: path}
	for _, opt := range opts {
		opt(source)
	}

	return source
}

// Commits walks the repository history and diffs every commit against its
// first parent.
func (s *GitSource) Commits(ctx context.Context) iter.Seq2[*Commit, error] {
	return func(yield func(*Commit, error) bool) {
		repo, err := git2go.OpenRepository(s.path)
		if err != nil {
			yield(nil, fmt.Errorf("open repository: %w", err))

			return
		}
		defer repo.Free()

		walk, err := headWalk(repo)
		if err != nil {
			yield(nil, err)

			return
		}
		defer walk.Free()

		var oid git2go.Oid

		for walk.Next(&oid) == nil {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())

				return
			}

			commit, err := s.read(repo, &oid)
			if err != nil {
				yield(nil, err)

				return
			}

			if commit == nil {
				continue
			}

			if !yield(commit, nil) {
				return
			}
		}
	}
}

func headWalk(repo *git2go.Repository) (*git2go.RevWalk, error) {
	walk, err := repo.Walk()
	if err != nil {
		return nil, fmt.Errorf("create revwalk: %w", err)
	}

	err = walk.PushHead()
	if err != nil {
		walk.Free()

		return nil, fmt.Errorf("push HEAD to revwalk: %w", err)
	}

	walk.Sorting(git2go.SortTime | git2go.SortTopological)

	return walk, nil
}

// read returns nil for commits older than the configured cutoff.
func (s *GitSource) read(repo *git2go.Repository, oid *git2go.Oid) (*Commit, error) {
	native, err := repo.LookupCommit(oid)
	if err != nil {
		return nil, fmt.Errorf("lookup commit %s: %w", oid, err)
	}
	defer native.Free()

	pushed := native.Committer().When.UTC()
	if s.since != nil && pushed.Before(*s.since) {
		return nil, nil
	}

	author := native.Author()
	commit := &Commit{
		Node:        oid.String(),
		Author:      author.Name,
		AuthorEmail: author.Email,
		PushDate:    pushed,
		Desc:        native.Message(),
		BugID:       referencedBug(native.Message()),
	}

	err = diffStats(repo, native, commit)
	if err != nil {
		return nil, fmt.Errorf("diff commit %s: %w", oid, err)
	}

	return commit, nil
}

func diffStats(repo *git2go.Repository, native *git2go.Commit, commit *Commit) error {
	tree, err := native.Tree()
	if err != nil {
		return fmt.Errorf("get tree: %w", err)
	}
	defer tree.Free()

	var parentTree *git2go.Tree

	if native.ParentCount() > 0 {
		parent := native.Parent(0)
		defer parent.Free()

		parentTree, err = parent.Tree()
		if err != nil {
			return fmt.Errorf("get parent tree: %w", err)
		}
		defer parentTree.Free()
	}

	opts, err := git2go.DefaultDiffOptions()
	if err != nil {
		return fmt.Errorf("get diff options: %w", err)
	}

	diff, err := repo.DiffTreeToTree(parentTree, tree, &opts)
	if err != nil {
		return fmt.Errorf("diff trees: %w", err)
	}
	defer func() { _ = diff.Free() }()

	stats, err := diff.Stats()
	if err != nil {
		return fmt.Errorf("diff stats: %w", err)
	}
	defer func() { _ = stats.Free() }()

	commit.Added = stats.Insertions()
	commit.Deleted = stats.Deletions()
	commit.FilesModifiedNum = stats.FilesChanged()

	deltas, err := diff.NumDeltas()
	if err != nil {
		return fmt.Errorf("count deltas: %w", err)
	}

	commit.Files = make([]string, 0, deltas)

	for i := range deltas {
		delta, err := diff.Delta(i)
		if err != nil {
			return fmt.Errorf("read delta %d: %w", i, err)
		}

		commit.Files = append(commit.Files, delta.NewFile.Path)
	}

	commit.Types = FileTypes(commit.Files)

	return nil
}

func referencedBug(message string) int {
	match := bugReference.FindStringSubmatch(message)
	if match == nil {
		return 0
	}

	id, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}

	return id
}
