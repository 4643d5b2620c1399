package rows

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerger_RowsUnion(t *testing.T) {
	m := NewMerger(50)
	m.AddRange(51, 199)
	m.AddRange(300, 399)
	m.AddRange(450, 1499)
	m.AddRange(2000, 19999)
	m.AddRange(401, 449)
	m.Add(400)

	assert.Equal(t, []Range{
		{Begin: 50, End: 199},
		{Begin: 300, End: 1499},
		{Begin: 2000, End: 19999},
	}, m.Ranges())
}

func TestMerger_AdjacentValuesMerge(t *testing.T) {
	m := NewMerger()
	m.Add(10)
	m.Add(11)
	assert.Equal(t, []Range{{Begin: 10, End: 11}}, m.Ranges())

	m = NewMerger()
	m.Add(11)
	m.Add(10)
	assert.Equal(t, []Range{{Begin: 10, End: 11}}, m.Ranges())
}

func TestMerger_GapKeepsRangesApart(t *testing.T) {
	m := NewMerger(1, 3)
	assert.Equal(t, []Range{{Begin: 1, End: 1}, {Begin: 3, End: 3}}, m.Ranges())

	m.Add(2)
	assert.Equal(t, []Range{{Begin: 1, End: 3}}, m.Ranges())
}

func TestMerger_DuplicatesAndDescending(t *testing.T) {
	m := NewMerger()
	for v := 20; v >= 0; v-- {
		m.Add(v)
		m.Add(v)
	}
	m.Add(-5)

	assert.Equal(t, []Range{{Begin: -5, End: -5}, {Begin: 0, End: 20}}, m.Ranges())
	assert.Equal(t, 22, m.Len())
	assert.True(t, m.Contains(7))
	assert.False(t, m.Contains(-4))
	assert.False(t, m.Contains(21))
}

func TestMerger_RandomInsertionsCoverExactly(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	m := NewMerger()
	inserted := map[int]bool{}
	for i := 0; i < 20000; i++ {
		v := rng.Intn(40000)
		m.Add(v)
		inserted[v] = true
	}

	ranges := m.Ranges()
	require.NotEmpty(t, ranges)
	for i, r := range ranges {
		require.LessOrEqual(t, r.Begin, r.End)
		if i > 0 {
			// disjoint, ascending and never adjacent
			require.Greater(t, r.Begin, ranges[i-1].End+1)
		}
	}

	var covered []int
	m.Each(func(v int) bool {
		covered = append(covered, v)
		return true
	})
	expected := make([]int, 0, len(inserted))
	for v := range inserted {
		expected = append(expected, v)
	}
	sort.Ints(expected)
	assert.Equal(t, expected, covered)
	assert.Equal(t, len(expected), m.Len())
}

func TestMerger_EachStopsEarly(t *testing.T) {
	m := NewMerger()
	m.AddRange(0, 9)
	seen := 0
	m.Each(func(v int) bool {
		seen++
		return v < 3
	})
	assert.Equal(t, 4, seen)
}
