package extraction

import (
	"context"
	"iter"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
)

// Item is one extraction input: a single bug or a pair of bugs.
type Item struct {
	Bug  *bugzilla.Bug
	Pair bugzilla.Pair
}

// Single wraps a bug.
func Single(bug *bugzilla.Bug) Item {
	return Item{Bug: bug}
}

// Couple wraps a pair of bugs.
func Couple(first, second *bugzilla.Bug) Item {
	return Item{Pair: bugzilla.Pair{first, second}}
}

// IsPair reports whether the item holds a pair.
func (i Item) IsPair() bool {
	return i.Bug == nil
}

// Input produces the items to extract. Every call must yield the same
// sequence so that Fit and Transform see the same data.
type Input func(ctx context.Context) iter.Seq2[Item, error]

// Bugs adapts a bug source.
func Bugs(src bugzilla.Source) Input {
	return func(ctx context.Context) iter.Seq2[Item, error] {
		return func(yield func(Item, error) bool) {
			for bug, err := range src.Bugs(ctx) {
				if err != nil {
					yield(Item{}, err)

					return
				}

				if !yield(Single(bug), nil) {
					return
				}
			}
		}
	}
}

// Pairs serves fixed bug pairs.
func Pairs(pairs ...bugzilla.Pair) Input {
	return func(context.Context) iter.Seq2[Item, error] {
		return func(yield func(Item, error) bool) {
			for _, pair := range pairs {
				if !yield(Item{Pair: pair}, nil) {
					return
				}
			}
		}
	}
}

// Items serves fixed items, in order.
func Items(items ...Item) Input {
	return func(context.Context) iter.Seq2[Item, error] {
		return func(yield func(Item, error) bool) {
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// PairsByID builds pairs from id couples, looking the bugs up in src.
// Couples naming unknown bugs are skipped.
func PairsByID(src bugzilla.Source, couples [][2]int) Input {
	return func(ctx context.Context) iter.Seq2[Item, error] {
		return func(yield func(Item, error) bool) {
			bugs, err := bugzilla.Collect(ctx, src)
			if err != nil {
				yield(Item{}, err)

				return
			}

			byID := make(map[int]*bugzilla.Bug, len(bugs))
			for _, bug := range bugs {
				byID[bug.ID] = bug
			}

			for _, couple := range couples {
				first, ok1 := byID[couple[0]]
				second, ok2 := byID[couple[1]]

				if !ok1 || !ok2 {
					continue
				}

				if !yield(Couple(first, second), nil) {
					return
				}
			}
		}
	}
}
