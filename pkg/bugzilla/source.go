package bugzilla

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/Sumatoshi-tech/bugfeat/internal/ndjson"
)

// DefaultMaxRecordSize is the default upper bound for one NDJSON record (64 MiB).
// Bugs with thousands of comments easily exceed bufio's 64 KiB default.
const DefaultMaxRecordSize = 64 << 20

// Source yields bug records. Calling Bugs again must yield the same records.
type Source interface {
	Bugs(ctx context.Context) iter.Seq2[*Bug, error]
}

// FileSourceOption configures a FileSource.
type FileSourceOption func(*FileSource)

// WithMaxRecordSize bounds the size of a single NDJSON line.
func WithMaxRecordSize(size int) FileSourceOption {
	return func(s *FileSource) {
		if size > 0 {
			s.maxRecordSize = size
		}
	}
}

// WithoutValidation skips schema validation of raw records.
func WithoutValidation() FileSourceOption {
	return func(s *FileSource) { s.validate = false }
}

// FileSource reads newline-delimited JSON bug dumps, optionally LZ4 compressed.
type FileSource struct {
	path          string
	maxRecordSize int
	validate      bool
}

// NewFileSource creates a source reading the bug dump at path.
func NewFileSource(path string, opts ...FileSourceOption) *FileSource {
	src := &FileSource{
		path:          path,
		maxRecordSize: DefaultMaxRecordSize,
		validate:      true,
	}

	for _, opt := range opts {
		opt(src)
	}

	return src
}

// Path returns the dump location.
func (s *FileSource) Path() string {
	return s.path
}

// Bugs opens the dump and yields one bug per non-empty line. Iteration stops
// at the first error, which is yielded with a nil bug.
func (s *FileSource) Bugs(ctx context.Context) iter.Seq2[*Bug, error] {
	return ndjson.Read(ctx, s.path, s.maxRecordSize, s.decode)
}

func (s *FileSource) decode(index int, line []byte) (*Bug, error) {
	if s.validate {
		violations, err := Validate(line)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrMalformedBug, index, err)
		}

		if len(violations) > 0 {
			return nil, fmt.Errorf("%w: record %d: %s", ErrMalformedBug, index, violations[0])
		}
	}

	var bug Bug

	err := json.Unmarshal(line, &bug)
	if err != nil {
		return nil, fmt.Errorf("%w: record %d: %w", ErrMalformedBug, index, err)
	}

	return &bug, nil
}

// SliceSource serves bugs from memory.
type SliceSource struct {
	bugs []*Bug
}

// NewSliceSource creates an in-memory source.
func NewSliceSource(bugs ...*Bug) *SliceSource {
	return &SliceSource{bugs: bugs}
}

// Bugs yields the bugs in order.
func (s *SliceSource) Bugs(ctx context.Context) iter.Seq2[*Bug, error] {
	return func(yield func(*Bug, error) bool) {
		for _, bug := range s.bugs {
			if ctx.Err() != nil {
				yield(nil, fmt.Errorf("read bugs: %w", ctx.Err()))

				return
			}

			if !yield(bug, nil) {
				return
			}
		}
	}
}

// Collect drains a source into a slice.
func Collect(ctx context.Context, src Source) ([]*Bug, error) {
	var bugs []*Bug

	for bug, err := range src.Bugs(ctx) {
		if err != nil {
			return nil, err
		}

		bugs = append(bugs, bug)
	}

	return bugs, nil
}

// Find returns the bug with the given id from a source.
func Find(ctx context.Context, src Source, id int) (*Bug, bool, error) {
	for bug, err := range src.Bugs(ctx) {
		if err != nil {
			return nil, false, err
		}

		if bug.ID == id {
			return bug, true, nil
		}
	}

	return nil, false, nil
}

// WriteDump writes bugs as newline-delimited JSON, LZ4 compressing when
// path ends in .lz4.
func WriteDump(path string, bugs []*Bug) (err error) {
	writer, err := ndjson.Create(path)
	if err != nil {
		return fmt.Errorf("create bug dump: %w", err)
	}

	defer func() {
		closeErr := writer.Close()
		if err == nil && closeErr != nil {
			err = fmt.Errorf("close bug dump: %w", closeErr)
		}
	}()

	encoder := json.NewEncoder(writer)

	for _, bug := range bugs {
		encodeErr := encoder.Encode(bug)
		if encodeErr != nil {
			return fmt.Errorf("encode bug %d: %w", bug.ID, encodeErr)
		}
	}

	return nil
}
