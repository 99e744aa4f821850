package extraction

import (
	"fmt"
	"slices"

	"github.com/Sumatoshi-tech/bugfeat/pkg/features"
)

// Row column names.
const (
	ColData         = "data"
	ColTitle        = "title"
	ColFirstComment = "first_comment"
	ColComments     = "comments"

	ColText       = "text"
	ColCoupleData = "couple_data"

	ColData1         = "data1"
	ColData2         = "data2"
	ColTitle1        = "title1"
	ColTitle2        = "title2"
	ColFirstComment1 = "first_comment1"
	ColFirstComment2 = "first_comment2"
	ColComments1     = "comments1"
	ColComments2     = "comments2"
)

var featureColumns = []string{ColData, ColData1, ColData2, ColCoupleData}

// Features maps feature column names to values.
type Features map[string]any

// Row is one output record keyed by column name.
type Row map[string]any

// Features returns the feature mapping stored under column, or nil.
func (r Row) Features(column string) Features {
	data, _ := r[column].(Features)

	return data
}

// Text returns the string stored under column.
func (r Row) Text(column string) string {
	text, _ := r[column].(string)

	return text
}

// Frame is the tabular result of a Transform call.
type Frame struct {
	// Mode is the detected input kind.
	Mode    features.Kind
	Columns []string
	Rows    []Row

	seen map[string]struct{}
}

func newFrame(mode features.Kind) *Frame {
	return &Frame{Mode: mode, seen: make(map[string]struct{})}
}

func (f *Frame) append(row Row, order []string) {
	for _, column := range order {
		if _, ok := f.seen[column]; ok {
			continue
		}

		f.seen[column] = struct{}{}
		f.Columns = append(f.Columns, column)
	}

	f.Rows = append(f.Rows, row)
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// FeatureNames returns every feature key across all rows and feature
// columns, in first-seen order.
func (f *Frame) FeatureNames() []string {
	var names []string

	seen := make(map[string]struct{})

	for _, row := range f.Rows {
		for _, column := range featureColumns {
			for _, name := range sortedKeys(row.Features(column)) {
				if _, ok := seen[name]; ok {
					continue
				}

				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}

	return names
}

// Coverage counts, per feature name, the rows that carry the feature.
func (f *Frame) Coverage() map[string]int {
	coverage := make(map[string]int)

	for _, row := range f.Rows {
		present := make(map[string]struct{})

		for _, column := range featureColumns {
			for name := range row.Features(column) {
				present[name] = struct{}{}
			}
		}

		for name := range present {
			coverage[name]++
		}
	}

	return coverage
}

func sortedKeys(data Features) []string {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	return keys
}

// merge stores an extractor result under its display name. Nil results are
// dropped and string lists expand into one presence column per item.
func (f Features) merge(name string, result any) {
	switch value := result.(type) {
	case nil:
	case []string:
		for _, item := range value {
			f[presenceColumn(item, name)] = true
		}
	default:
		f[name] = value
	}
}

func presenceColumn(item, name string) string {
	return fmt.Sprintf("%s in %s", item, name)
}
