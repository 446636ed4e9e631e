package domain

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diamondJob() *Job {
	j := NewJob()
	j.AddTask(&Task{ID: 1})
	j.AddTask(&Task{ID: 2, Predecessors: []int{1}})
	j.AddTask(&Task{ID: 3, Predecessors: []int{1}})
	j.AddTask(&Task{ID: 4, Predecessors: []int{2, 3}})
	return j
}

func TestRandomTopoOrderRespectsPrecedence(t *testing.T) {
	g := BuildGraph(diamondJob())
	rng := rand.New(rand.NewSource(0))

	for i := 0; i < 20; i++ {
		order := g.RandomTopoOrder(rng)
		require.Len(t, order, 4)
		pos := make(map[int]int, len(order))
		for idx, id := range order {
			pos[id] = idx
		}
		assert.Less(t, pos[1], pos[2])
		assert.Less(t, pos[1], pos[3])
		assert.Less(t, pos[2], pos[4])
		assert.Less(t, pos[3], pos[4])
	}
}

func TestCandidateArcsExcludesExistingPaths(t *testing.T) {
	g := BuildGraph(diamondJob())
	arcs := g.CandidateArcs()

	for _, a := range arcs {
		assert.NotEqual(t, [2]int{1, 2}, a, "1->2 already a static edge")
		assert.NotEqual(t, [2]int{2, 1}, a, "would close a cycle with static edge")
		assert.NotEqual(t, [2]int{1, 4}, a, "1 already reaches 4 transitively")
	}
	// 2 and 3 are unordered siblings: both directions are legal candidates.
	assert.Contains(t, arcs, [2]int{2, 3})
	assert.Contains(t, arcs, [2]int{3, 2})
}

func TestPathExistsWithOverlay(t *testing.T) {
	g := BuildGraph(diamondJob())
	assert.True(t, g.PathExists(1, 4, nil))
	assert.False(t, g.PathExists(4, 1, nil))
	assert.True(t, g.PathExists(4, 1, map[int][]int{4: {1}}))
}
