package dataset

import (
	"github.com/bits-and-blooms/bloom/v3"
)

// Index answers "have we seen this match id" for incremental refreshes.
//
// The bloom filter is a lookup shortcut only: it rejects most unknown ids
// without touching the map, and every positive is confirmed against the
// exact set. Answers are identical with or without the filter, so a
// saturated filter costs speed, never correctness.
type Index struct {
	filter *bloom.BloomFilter
	ids    map[string]struct{}
}

// NewIndex builds an index over ids.
func NewIndex(ids []string) *Index {
	n := uint(len(ids))
	if n < 1000 {
		n = 1000
	}
	return newIndex(ids, n, 0.01)
}

func newIndex(ids []string, capacity uint, fpRate float64) *Index {
	x := &Index{
		filter: bloom.NewWithEstimates(capacity, fpRate),
		ids:    make(map[string]struct{}, len(ids)),
	}
	for _, id := range ids {
		x.Add(id)
	}
	return x
}

// Add records id.
func (x *Index) Add(id string) {
	x.filter.AddString(id)
	x.ids[id] = struct{}{}
}

// Contains reports whether id was added.
func (x *Index) Contains(id string) bool {
	if !x.filter.TestString(id) {
		return false
	}
	_, ok := x.ids[id]
	return ok
}

// Len returns the number of distinct ids.
func (x *Index) Len() int {
	return len(x.ids)
}

// Unknown returns the ids not in the index, preserving order.
func (x *Index) Unknown(ids []string) []string {
	var out []string
	for _, id := range ids {
		if !x.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}
