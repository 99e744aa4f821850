// Package commits reads version-control commit metadata, used to learn which
// bug reporters are also code authors.
package commits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/bugfeat/internal/ndjson"
	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
)

// ErrMalformedCommit is returned for commit records that cannot be decoded.
var ErrMalformedCommit = errors.New("malformed commit record")

// DefaultMaxRecordSize bounds a single commit record.
const DefaultMaxRecordSize = 16 << 20

// Commit is the metadata of one commit.
type Commit struct {
	Node             string    `json:"node"`
	Author           string    `json:"author"`
	AuthorEmail      string    `json:"author_email"`
	PushDate         time.Time `json:"pushdate"`
	BugID            int       `json:"bug_id,omitempty"`
	Desc             string    `json:"desc"`
	Added            int       `json:"added"`
	Deleted          int       `json:"deleted"`
	FilesModifiedNum int       `json:"files_modified_num"`
	Files            []string  `json:"files"`
	Types            []string  `json:"types"`
	Components       []string  `json:"components"`
	BackedOutBy      string    `json:"backedoutby"`
}

// Metadata converts the commit to the form embedded in bug records.
func (c *Commit) Metadata() bugzilla.Commit {
	return bugzilla.Commit{
		Node:             c.Node,
		AuthorEmail:      c.AuthorEmail,
		Added:            c.Added,
		Deleted:          c.Deleted,
		Types:            c.Types,
		FilesModifiedNum: c.FilesModifiedNum,
		BackedOutBy:      c.BackedOutBy,
		Components:       c.Components,
	}
}

// Source yields commits. Calling Commits again must yield the same records.
type Source interface {
	Commits(ctx context.Context) iter.Seq2[*Commit, error]
}

// FileSource reads newline-delimited JSON commit dumps, optionally LZ4 compressed.
type FileSource struct {
	path          string
	maxRecordSize int
}

// NewFileSource creates a source reading the commit dump at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path, maxRecordSize: DefaultMaxRecordSize}
}

// Commits yields one commit per non-empty line.
func (s *FileSource) Commits(ctx context.Context) iter.Seq2[*Commit, error] {
	return ndjson.Read(ctx, s.path, s.maxRecordSize, func(index int, line []byte) (*Commit, error) {
		var commit Commit

		err := json.Unmarshal(line, &commit)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrMalformedCommit, index, err)
		}

		return &commit, nil
	})
}

// SliceSource serves commits from memory.
type SliceSource []*Commit

// Commits yields the commits in order.
func (s SliceSource) Commits(_ context.Context) iter.Seq2[*Commit, error] {
	return func(yield func(*Commit, error) bool) {
		for _, commit := range s {
			if !yield(commit, nil) {
				return
			}
		}
	}
}

// Index is what one pass over a commit source yields.
type Index struct {
	// Authors holds the author email of every commit.
	Authors map[string]struct{}
	// ByBug groups commit metadata by the bug each commit references.
	ByBug map[int][]bugzilla.Commit
}

// Load reads src once and indexes its commits by author and by bug.
func Load(ctx context.Context, src Source) (*Index, error) {
	index := &Index{
		Authors: make(map[string]struct{}),
		ByBug:   make(map[int][]bugzilla.Commit),
	}

	for commit, err := range src.Commits(ctx) {
		if err != nil {
			return nil, fmt.Errorf("read commits: %w", err)
		}

		email := strings.TrimSpace(commit.AuthorEmail)
		if email != "" {
			index.Authors[email] = struct{}{}
		}

		if commit.BugID != 0 {
			index.ByBug[commit.BugID] = append(index.ByBug[commit.BugID], commit.Metadata())
		}
	}

	return index, nil
}

// AuthorIDs collects the author emails of every commit.
func AuthorIDs(ctx context.Context, src Source) (map[string]struct{}, error) {
	index, err := Load(ctx, src)
	if err != nil {
		return nil, err
	}

	return index.Authors, nil
}

// ByBug groups commit metadata by the bug each commit references.
func ByBug(ctx context.Context, src Source) (map[int][]bugzilla.Commit, error) {
	index, err := Load(ctx, src)
	if err != nil {
		return nil, err
	}

	return index.ByBug, nil
}
