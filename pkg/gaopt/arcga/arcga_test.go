package arcga

import (
	"context"
	"testing"

	"github.com/srcpsp/deepthought/pkg/domain"
	"github.com/srcpsp/deepthought/pkg/montecarlo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func independentTasksJob(t *testing.T) *domain.Job {
	t.Helper()
	j := domain.NewJob()
	j.Capabilities["C"] = &domain.Capability{ID: "C"}
	j.Resources["R"] = &domain.Resource{ID: "R", MaxShareCount: 1, ProvidedCapabilities: []string{"C"}}
	for i := 1; i <= 6; i++ {
		j.AddTask(&domain.Task{
			ID:       i,
			Duration: domain.Distribution{Kind: domain.Fixed, Mean: float64(i)},
			RequiredResources: []*domain.RequiredResource{
				{RequiredCapabilities: []string{"C"}, NumberRequired: 1},
			},
		})
	}
	require.NoError(t, j.Initialize())
	return j
}

func TestRunEveryEmittedIndividualIsAcyclic(t *testing.T) {
	job := independentTasksJob(t)
	harness := montecarlo.New(job, montecarlo.Options{
		PolicyName: "Reference", Replications: 4, BaseSeed: 1, Stochastic: false,
	}, nil)

	result := Run(context.Background(), job, []int{1, 2, 3, 4, 5, 6}, harness, Options{
		PopulationSize: 10, Generations: 5, Seed: 1,
	})

	require.NotEmpty(t, result.Log)
	assertAcyclic(t, job, result.BestArcs)
}

func TestRepairAlwaysClearsCycleClosingBits(t *testing.T) {
	j := domain.NewJob()
	j.AddTask(&domain.Task{ID: 1})
	j.AddTask(&domain.Task{ID: 2})
	j.AddTask(&domain.Task{ID: 3})
	require.NoError(t, j.Initialize())
	graph := domain.BuildGraph(j)
	candidates := graph.CandidateArcs()

	all := make(bitVector, len(candidates))
	for i := range all {
		all[i] = true
	}
	fixed := repair(graph, candidates, all)

	var arcs [][2]int
	for i, arc := range candidates {
		if fixed[i] {
			arcs = append(arcs, arc)
		}
	}
	assert.True(t, isAcyclic(graph, arcs))
}

func assertAcyclic(t *testing.T, job *domain.Job, arcs [][2]int) {
	t.Helper()
	graph := domain.BuildGraph(job)
	assert.True(t, isAcyclic(graph, arcs))
}

// isAcyclic builds the successor overlay from arcs incrementally, the same
// way repair does, and checks no accepted arc closes a cycle.
func isAcyclic(g *domain.Graph, arcs [][2]int) bool {
	accepted := make(map[int][]int)
	for _, arc := range arcs {
		u, w := arc[0], arc[1]
		if g.PathExists(w, u, accepted) {
			return false
		}
		accepted[u] = append(accepted[u], w)
	}
	return true
}
