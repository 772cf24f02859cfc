package feature

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDuplicateIdentifier is returned by BuildPrimaryStrict when an
	// identifier occurs more than once.
	ErrDuplicateIdentifier = errors.New("feature: duplicate identifier")

	// ErrIndexFull is returned when the index cannot assign another int32 column.
	ErrIndexFull = errors.New("feature: index full")
)

// Index maps external feature identifiers to dense columns in first-seen
// order. The columns in use are always exactly 0..Len()-1; a mapping, once
// assigned, is never changed or removed.
//
// Index is not safe for concurrent mutation. Harmonize one dataset at a time.
type Index[K comparable] struct {
	cols map[K]int32
	keys []K
}

// New returns an empty index with room for capacity identifiers.
func New[K comparable](capacity int) *Index[K] {
	return &Index[K]{
		cols: make(map[K]int32, capacity),
		keys: make([]K, 0, capacity),
	}
}

// BuildPrimary indexes the primary dataset's identifiers. The first
// occurrence of each identifier gets the next column; repeats resolve to that
// column and do not get one of their own, so Len may be smaller than len(ids).
func BuildPrimary[K comparable](ids []K) *Index[K] {
	idx := New[K](len(ids))
	for _, id := range ids {
		idx.InsertIfAbsent(id)
	}
	return idx
}

// BuildPrimaryStrict is BuildPrimary but rejects repeated identifiers.
func BuildPrimaryStrict[K comparable](ids []K) (*Index[K], error) {
	idx := New[K](len(ids))
	for i, id := range ids {
		if _, inserted := idx.InsertIfAbsent(id); !inserted {
			return nil, fmt.Errorf("%w: %v at position %d", ErrDuplicateIdentifier, id, i)
		}
	}
	return idx, nil
}

// DuplicateCount returns how many entries of ids repeat an earlier one.
func DuplicateCount[K comparable](ids []K) int {
	seen := make(map[K]struct{}, len(ids))
	dups := 0
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			dups++
			continue
		}
		seen[id] = struct{}{}
	}
	return dups
}

// InsertIfAbsent returns the column of id, assigning the next unused column
// if id is new. inserted reports whether a column was assigned.
func (x *Index[K]) InsertIfAbsent(id K) (col int32, inserted bool) {
	if c, ok := x.cols[id]; ok {
		return c, false
	}
	if len(x.keys) >= math.MaxInt32 {
		panic(ErrIndexFull)
	}
	c := int32(len(x.keys)) //nolint:gosec // bounded above
	x.cols[id] = c
	x.keys = append(x.keys, id)
	return c, true
}

// HarmonizeSecondary maps a secondary dataset's identifiers onto the index.
// Known identifiers yield their existing column; unknown ones are appended.
// The result has one entry per input identifier, repeats included.
func (x *Index[K]) HarmonizeSecondary(ids []K) []int32 {
	out := make([]int32, len(ids))
	for i, id := range ids {
		out[i], _ = x.InsertIfAbsent(id)
	}
	return out
}

// Lookup returns the column of id.
func (x *Index[K]) Lookup(id K) (int32, bool) {
	c, ok := x.cols[id]
	return c, ok
}

// Len returns the number of distinct identifiers.
func (x *Index[K]) Len() int { return len(x.keys) }

// Key returns the identifier assigned to col.
func (x *Index[K]) Key(col int32) (K, bool) {
	if col < 0 || int(col) >= len(x.keys) {
		var zero K
		return zero, false
	}
	return x.keys[col], true
}

// Keys returns the identifiers in column order.
func (x *Index[K]) Keys() []K {
	return append([]K(nil), x.keys...)
}

// Clone returns an independent copy.
func (x *Index[K]) Clone() *Index[K] {
	c := New[K](len(x.keys))
	for _, k := range x.keys {
		c.InsertIfAbsent(k)
	}
	return c
}
