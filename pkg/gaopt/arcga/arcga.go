// Package arcga implements the bit-vector genetic search over optional
// precedence arcs described in SPEC_FULL §4.F: each individual is a bit
// vector over the static DAG's candidate arcs (domain.Graph.CandidateArcs),
// a set `1` meaning "add this arc as an extra precedence edge." Runs after
// ListGA, evaluating the ListGA-best permutation under each candidate arc
// set. Population loop shape mirrors pkg/gaopt/listga's.
package arcga

import (
	"context"
	"math"
	"math/rand"

	"github.com/srcpsp/deepthought/pkg/domain"
	"github.com/srcpsp/deepthought/pkg/montecarlo"
	"github.com/srcpsp/deepthought/pkg/policy"
)

// Options configures one ArcGA run.
type Options struct {
	PopulationSize  int // P, default 50
	Generations     int // G, default 100
	TournamentSize  int // k, default 3
	StagnationLimit int // K, default 15
	Seed            int64
}

func (o *Options) applyDefaults() {
	if o.PopulationSize <= 0 {
		o.PopulationSize = 50
	}
	if o.Generations <= 0 {
		o.Generations = 100
	}
	if o.TournamentSize <= 0 {
		o.TournamentSize = 3
	}
	if o.StagnationLimit <= 0 {
		o.StagnationLimit = 15
	}
}

// GenerationStats is one row of ArcGA's per-generation fitness log.
type GenerationStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// Result is the outcome of one Run: the best arc set found, its fitness,
// and the full generation log.
type Result struct {
	BestArcs    policy.ArcSet
	BestFitness float64
	Log         []GenerationStats
}

// bitVector is one individual: bitVector[i] is the inclusion bit for
// candidates[i].
type bitVector []bool

// Run evolves a population of candidate-arc bit vectors, evaluating each
// against bestPriorityList (ListGA's winner) via harness, until
// opts.Generations is reached or opts.StagnationLimit consecutive
// generations pass with no improvement.
func Run(ctx context.Context, job *domain.Job, bestPriorityList []int, harness *montecarlo.Harness, opts Options) *Result {
	opts.applyDefaults()
	graph := domain.BuildGraph(job)
	candidates := graph.CandidateArcs()
	rng := rand.New(rand.NewSource(opts.Seed))

	if len(candidates) == 0 {
		return &Result{BestFitness: harness.Evaluate(ctx, 0, 0, bestPriorityList, nil)}
	}

	population := make([]bitVector, opts.PopulationSize)
	for i := range population {
		population[i] = repair(graph, candidates, randomBitVector(len(candidates), rng))
	}

	result := &Result{BestFitness: math.Inf(1)}
	stagnant := 0

	for gen := 0; gen < opts.Generations; gen++ {
		select {
		case <-ctx.Done():
			return result
		default:
		}

		fitness := make([]float64, len(population))
		for i, individual := range population {
			arcs := toArcSet(candidates, individual)
			fitness[i] = harness.Evaluate(ctx, gen, i, bestPriorityList, arcs)
		}

		stats, bestIdx := summarize(fitness)
		result.Log = append(result.Log, stats)

		if fitness[bestIdx] < result.BestFitness {
			result.BestFitness = fitness[bestIdx]
			result.BestArcs = toArcSet(candidates, population[bestIdx])
			stagnant = 0
		} else {
			stagnant++
		}
		if stagnant >= opts.StagnationLimit {
			break
		}

		population = nextGeneration(graph, candidates, population, fitness, bestIdx, opts.TournamentSize, rng)
	}

	return result
}

func summarize(fitness []float64) (GenerationStats, int) {
	min, max, sum := fitness[0], fitness[0], 0.0
	bestIdx := 0
	for i, f := range fitness {
		if f < min {
			min, bestIdx = f, i
		}
		if f > max {
			max = f
		}
		sum += f
	}
	return GenerationStats{Min: min, Max: max, Mean: sum / float64(len(fitness))}, bestIdx
}

func nextGeneration(graph *domain.Graph, candidates [][2]int, population []bitVector, fitness []float64, bestIdx int, k int, rng *rand.Rand) []bitVector {
	next := make([]bitVector, 0, len(population))
	next = append(next, append(bitVector(nil), population[bestIdx]...))

	mutationRate := 1.0 / float64(len(candidates))
	for len(next) < len(population) {
		parentA := tournamentSelect(population, fitness, rng, k)
		parentB := tournamentSelect(population, fitness, rng, k)
		child := uniformCrossover(parentA, parentB, rng)
		child = bitFlipMutate(child, mutationRate, rng)
		child = repair(graph, candidates, child)
		next = append(next, child)
	}
	return next
}

func randomBitVector(n int, rng *rand.Rand) bitVector {
	v := make(bitVector, n)
	for i := range v {
		v[i] = rng.Float64() < 0.5
	}
	return v
}

func tournamentSelect(population []bitVector, fitness []float64, rng *rand.Rand, k int) bitVector {
	best := rng.Intn(len(population))
	for i := 1; i < k; i++ {
		cand := rng.Intn(len(population))
		if fitness[cand] < fitness[best] {
			best = cand
		}
	}
	return population[best]
}

func uniformCrossover(a, b bitVector, rng *rand.Rand) bitVector {
	child := make(bitVector, len(a))
	for i := range child {
		if rng.Float64() < 0.5 {
			child[i] = a[i]
		} else {
			child[i] = b[i]
		}
	}
	return child
}

func bitFlipMutate(v bitVector, rate float64, rng *rand.Rand) bitVector {
	child := append(bitVector(nil), v...)
	for i := range child {
		if rng.Float64() < rate {
			child[i] = !child[i]
		}
	}
	return child
}

// repair clears bits greedily, in candidate order, whenever including one
// would close a cycle on top of the static DAG plus the arcs already
// accepted — incremental reachability via domain.Graph.PathExists, per
// spec.md §4.F.
func repair(g *domain.Graph, candidates [][2]int, v bitVector) bitVector {
	accepted := make(map[int][]int) // successor overlay built incrementally
	out := append(bitVector(nil), v...)
	for i, arc := range candidates {
		if !out[i] {
			continue
		}
		u, w := arc[0], arc[1]
		if g.PathExists(w, u, accepted) {
			out[i] = false
			continue
		}
		accepted[u] = append(accepted[u], w)
	}
	return out
}

func toArcSet(candidates [][2]int, v bitVector) policy.ArcSet {
	var out policy.ArcSet
	for i, arc := range candidates {
		if v[i] {
			out = append(out, arc)
		}
	}
	return out
}
