package rows

import (
	"github.com/google/btree"
)

// Range is a closed interval of row indices
type Range struct {
	Begin int
	End   int
}

// Len returns the number of indices covered by the range
func (r Range) Len() int {
	return r.End - r.Begin + 1
}

// Merger accumulates row indices inserted in any order and keeps them as
// the minimal set of disjoint closed ranges
type Merger struct {
	tree  *btree.BTreeG[Range]
	count int
}

func byBegin(a, b Range) bool {
	return a.Begin < b.Begin
}

// NewMerger creates a merger seeded with the given values
func NewMerger(values ...int) *Merger {
	m := &Merger{
		tree: btree.NewG[Range](8, byBegin),
	}
	for _, v := range values {
		m.Add(v)
	}
	return m
}

// Add inserts one index. Indices adjacent to an existing range extend it.
func (m *Merger) Add(v int) {
	pred, hasPred := m.floor(v)
	if hasPred && pred.End >= v {
		return
	}
	succ, hasSucc := m.ceiling(v + 1)

	merged := Range{Begin: v, End: v}
	if hasPred && pred.End == v-1 {
		m.tree.Delete(pred)
		merged.Begin = pred.Begin
	}
	if hasSucc && succ.Begin == v+1 {
		m.tree.Delete(succ)
		merged.End = succ.End
	}
	m.tree.ReplaceOrInsert(merged)
	m.count++
}

// AddRange inserts every index of [begin, end]
func (m *Merger) AddRange(begin, end int) {
	if begin > end {
		begin, end = end, begin
	}
	for v := begin; v <= end; v++ {
		m.Add(v)
	}
}

// floor returns the range with the greatest Begin <= v
func (m *Merger) floor(v int) (Range, bool) {
	var found Range
	ok := false
	m.tree.DescendLessOrEqual(Range{Begin: v}, func(r Range) bool {
		found, ok = r, true
		return false
	})
	return found, ok
}

// ceiling returns the range with the smallest Begin >= v
func (m *Merger) ceiling(v int) (Range, bool) {
	var found Range
	ok := false
	m.tree.AscendGreaterOrEqual(Range{Begin: v}, func(r Range) bool {
		found, ok = r, true
		return false
	})
	return found, ok
}

// Contains reports whether v was inserted
func (m *Merger) Contains(v int) bool {
	r, ok := m.floor(v)
	return ok && r.End >= v
}

// Ranges returns the merged ranges in ascending order
func (m *Merger) Ranges() []Range {
	result := make([]Range, 0, m.tree.Len())
	m.tree.Ascend(func(r Range) bool {
		result = append(result, r)
		return true
	})
	return result
}

// Each calls fn for every inserted index in ascending order until fn returns false
func (m *Merger) Each(fn func(v int) bool) {
	m.tree.Ascend(func(r Range) bool {
		for v := r.Begin; v <= r.End; v++ {
			if !fn(v) {
				return false
			}
		}
		return true
	})
}

// Len returns the number of distinct indices inserted
func (m *Merger) Len() int {
	return m.count
}
