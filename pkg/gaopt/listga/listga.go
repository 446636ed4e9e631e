// Package listga implements the permutation-encoded genetic search over task
// priority lists described in SPEC_FULL §4.E: each individual is one
// topological ordering of the job's tasks, fitness is the Monte Carlo mean
// makespan of the Reference policy run under that ordering, and the search
// loop (tournament selection, order crossover, swap mutation, elitism) is
// grounded on the generic GA loop pattern used throughout the example pack,
// adapted here to a precedence-preserving encoding.
package listga

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/srcpsp/deepthought/pkg/domain"
	"github.com/srcpsp/deepthought/pkg/montecarlo"
)

// Options configures one ListGA run. Zero values are replaced by SPEC_FULL
// §4.E's defaults in applyDefaults.
type Options struct {
	PopulationSize  int // P, default 50
	Generations     int // G, default 100
	TournamentSize  int // k, default 3
	MutationRate    float64
	StagnationLimit int // K consecutive no-improvement generations, default 15
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
	if o.MutationRate <= 0 {
		o.MutationRate = 0.05
	}
	if o.StagnationLimit <= 0 {
		o.StagnationLimit = 15
	}
}

// GenerationStats is one row of the per-generation fitness log SPEC_FULL
// §4.E requires exposed to the reporter.
type GenerationStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// Result is the outcome of one Run: the best priority list found, its
// fitness, and the full generation log.
type Result struct {
	BestPriorityList []int
	BestFitness      float64
	Log              []GenerationStats
}

// Run evolves a population of priority lists against harness until
// opts.Generations is reached or opts.StagnationLimit consecutive
// generations pass with no improvement in the best fitness, whichever comes
// first. harness must already be bound to job's template (montecarlo.New).
func Run(ctx context.Context, job *domain.Job, harness *montecarlo.Harness, opts Options) *Result {
	opts.applyDefaults()
	graph := domain.BuildGraph(job)
	rng := rand.New(rand.NewSource(opts.Seed))

	population := make([][]int, opts.PopulationSize)
	for i := range population {
		population[i] = graph.RandomTopoOrder(rng)
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
			fitness[i] = harness.Evaluate(ctx, gen, i, individual, nil)
		}

		stats, bestIdx := summarize(fitness)
		result.Log = append(result.Log, stats)

		improved := fitness[bestIdx] < result.BestFitness
		if improved {
			result.BestFitness = fitness[bestIdx]
			result.BestPriorityList = append([]int(nil), population[bestIdx]...)
			stagnant = 0
		} else {
			stagnant++
		}
		if stagnant >= opts.StagnationLimit {
			break
		}

		population = nextGeneration(graph, population, fitness, bestIdx, rng, opts)
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

// nextGeneration produces the next population: the incumbent best survives
// unchanged (elitism), every other slot is filled by tournament-selected
// parents, order crossover, and swap mutation.
func nextGeneration(graph *domain.Graph, population [][]int, fitness []float64, bestIdx int, rng *rand.Rand, opts Options) [][]int {
	next := make([][]int, 0, len(population))
	next = append(next, append([]int(nil), population[bestIdx]...))

	for len(next) < len(population) {
		parentA := tournamentSelect(population, fitness, rng, opts.TournamentSize)
		parentB := tournamentSelect(population, fitness, rng, opts.TournamentSize)
		child := orderCrossover(parentA, parentB, rng)
		child = repair(graph, child)
		if rng.Float64() < opts.MutationRate {
			child = swapMutate(child, rng)
			child = repair(graph, child)
		}
		next = append(next, child)
	}
	return next
}

// tournamentSelect samples k individuals uniformly with replacement and
// returns the fittest (lowest-fitness) one.
func tournamentSelect(population [][]int, fitness []float64, rng *rand.Rand, k int) []int {
	best := rng.Intn(len(population))
	for i := 1; i < k; i++ {
		cand := rng.Intn(len(population))
		if fitness[cand] < fitness[best] {
			best = cand
		}
	}
	return population[best]
}

// orderCrossover implements OX: a random contiguous slice of parentA is
// copied verbatim into the child at the same positions; the remaining
// positions are filled, in parentB's relative order, with whichever task ids
// parentA's slice did not already place.
func orderCrossover(parentA, parentB []int, rng *rand.Rand) []int {
	n := len(parentA)
	i, j := rng.Intn(n), rng.Intn(n)
	if i > j {
		i, j = j, i
	}

	child := make([]int, n)
	taken := make(map[int]struct{}, n)
	for idx := i; idx <= j; idx++ {
		child[idx] = parentA[idx]
		taken[parentA[idx]] = struct{}{}
	}

	pos := 0
	for _, id := range parentB {
		if _, ok := taken[id]; ok {
			continue
		}
		for pos >= i && pos <= j {
			pos++
		}
		child[pos] = id
		pos++
	}
	return child
}

// swapMutate exchanges two distinct random positions.
func swapMutate(perm []int, rng *rand.Rand) []int {
	child := append([]int(nil), perm...)
	if len(child) < 2 {
		return child
	}
	i := rng.Intn(len(child))
	j := rng.Intn(len(child))
	for j == i {
		j = rng.Intn(len(child))
	}
	child[i], child[j] = child[j], child[i]
	return child
}

// repair restores precedence validity after crossover or mutation by
// re-deriving a topological order that follows perm's relative preference
// whenever the static DAG leaves a choice: at each step among the nodes
// currently ready (all predecessors already placed), the one appearing
// earliest in perm is placed next. This reuses the same ready-set machinery
// as domain.Graph.RandomTopoOrder, substituting perm's ordering for the
// random pick, so the result is always a valid topological order and stays
// as close to perm as the DAG allows — equivalent in outcome to spec.md
// §4.E's "forward-swap any task appearing before a predecessor" repair.
func repair(g *domain.Graph, perm []int) []int {
	pos := make(map[int]int, len(perm))
	for i, id := range perm {
		pos[id] = i
	}

	indeg := make(map[int]int, len(g.Nodes()))
	for _, id := range g.Nodes() {
		indeg[id] = len(g.Predecessors(id))
	}
	var ready []int
	for _, id := range g.Nodes() {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}

	out := make([]int, 0, len(perm))
	for len(ready) > 0 {
		sort.Slice(ready, func(a, b int) bool { return pos[ready[a]] < pos[ready[b]] })
		id := ready[0]
		ready = ready[1:]
		out = append(out, id)
		for _, s := range g.Successors(id) {
			indeg[s]--
			if indeg[s] == 0 {
				ready = append(ready, s)
			}
		}
	}
	return out
}
