package optimize

import (
	"context"
	"testing"

	"github.com/srcpsp/deepthought/pkg/domain"
	"github.com/srcpsp/deepthought/pkg/gaopt/arcga"
	"github.com/srcpsp/deepthought/pkg/gaopt/listga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bottleneckJob(t *testing.T) *domain.Job {
	t.Helper()
	j := domain.NewJob()
	j.Capabilities["C"] = &domain.Capability{ID: "C"}
	j.Resources["R"] = &domain.Resource{ID: "R", MaxShareCount: 1, ProvidedCapabilities: []string{"C"}}
	for i := 1; i <= 10; i++ {
		var preds []int
		if i > 1 && i%3 != 1 {
			preds = []int{i - 1}
		}
		j.AddTask(&domain.Task{
			ID:       i,
			Duration: domain.Distribution{Kind: domain.Fixed, Mean: float64(3 + i%5)},
			RequiredResources: []*domain.RequiredResource{
				{RequiredCapabilities: []string{"C"}, NumberRequired: 1},
			},
			Predecessors: preds,
		})
	}
	require.NoError(t, j.Initialize())
	return j
}

func TestOptimizeReturnsCoherentResult(t *testing.T) {
	job := bottleneckJob(t)
	cfg := Config{
		PolicyName:        "Reference",
		MCReplications:    5,
		Stochastic:        false,
		Seed:              7,
		AlternationRounds: 1,
		ListGA:            listga.Options{PopulationSize: 10, Generations: 5, Seed: 7},
		ArcGA:             arcga.Options{PopulationSize: 10, Generations: 5, Seed: 7},
	}

	result, err := Optimize(context.Background(), job, cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, result.BestResult)
	assert.Len(t, result.BestList, 10)
	assert.NotEmpty(t, result.ListGALog)
	assert.NotEmpty(t, result.ArcGALog)
	assert.Equal(t, result.BestResult.TotalTime, result.BestResult.ExecutionHistory[len(result.BestResult.ExecutionHistory)-1].Finished)
}

func TestOptimizeRejectsUnknownPolicy(t *testing.T) {
	job := bottleneckJob(t)
	_, err := Optimize(context.Background(), job, Config{PolicyName: "NoSuchPolicy"}, nil)
	require.Error(t, err)
}
