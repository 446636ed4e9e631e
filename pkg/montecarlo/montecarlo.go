// Package montecarlo runs the fitness harness of SPEC_FULL §4.G: M
// independent simulations of a (policy, priority list, arc set) triple,
// aggregated to a scalar fitness. It parallelizes replications across a
// bounded worker pool, grounded on the teacher's WorkerPool/TaskWorker
// (pkg/scheduler/optimized_scheduler.go) adapted from scheduling-task
// dispatch to replication dispatch.
package montecarlo

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/srcpsp/deepthought/pkg/domain"
	"github.com/srcpsp/deepthought/pkg/policy"
	"github.com/srcpsp/deepthought/pkg/simulate"
	"github.com/srcpsp/deepthought/pkg/srcpsperr"
)

// Aggregation selects how per-replication makespans reduce to one fitness
// scalar (spec.md §4.G): the arithmetic mean by default, or an upper
// quantile for risk-averse search.
type Aggregation int

const (
	Mean Aggregation = iota
	Quantile
)

// FitnessCache memoizes Evaluate's result under the key cacheKey builds
// (policy, candidate list and arcs, replication count, base seed,
// stochastic/aggregation mode), per SPEC_FULL §6.6. pkg/store's
// Redis-backed Store satisfies this without any adapter; tests can supply an
// in-memory fake. A nil Cache in Options disables memoization entirely.
type FitnessCache interface {
	CachedFitness(ctx context.Context, key string) (float64, bool)
	StoreCachedFitness(ctx context.Context, key string, fitness float64) error
}

// Options configures a Harness.
type Options struct {
	PolicyName   string
	Replications int // M, default 30
	BaseSeed     int64
	Stochastic   bool
	Aggregation  Aggregation
	Quantile     float64 // e.g. 0.9; only read when Aggregation == Quantile
	Workers      int     // worker pool size, default 4
	Cache        FitnessCache
}

func (o *Options) applyDefaults() {
	if o.Replications <= 0 {
		o.Replications = 30
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Aggregation == Quantile && o.Quantile == 0 {
		o.Quantile = 0.9
	}
}

// Harness evaluates candidate schedules against one template job. The
// template must already be Initialize()'d; each replication clones it into
// its own RuntimeView so runtime scratch never leaks across workers
// (SPEC_FULL §5).
type Harness struct {
	template *domain.Job
	opts     Options
	logger   *slog.Logger
}

// New returns a Harness bound to template, applying Options defaults.
func New(template *domain.Job, opts Options, logger *slog.Logger) *Harness {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Harness{template: template, opts: opts, logger: logger}
}

// replicationOutcome carries one worker's simulation result or failure back
// to the aggregator.
type replicationOutcome struct {
	makespan float64
	invalid  bool
}

// Evaluate runs opts.Replications independent simulations of (priorityList,
// arcs) under the harness's policy, one per worker-pool slot, seeded
// deterministically from (genIdx, indIdx, replication index) so that fitness
// is reproducible across reruns (SPEC_FULL §4.G, §5). More than 10% invalid
// (deadlocked) replications yields +Inf fitness; the caller is not expected
// to treat that as a Go error, only as a signal to exclude the individual
// from selection (srcpsperr.InvalidIndividual documents the condition for
// logging, it is never returned or panicked on).
func (h *Harness) Evaluate(ctx context.Context, genIdx, indIdx int, priorityList []int, arcs policy.ArcSet) float64 {
	var key string
	if h.opts.Cache != nil {
		key = cacheKey(priorityList, arcs, h.opts)
		if fitness, ok := h.opts.Cache.CachedFitness(ctx, key); ok {
			return fitness
		}
	}

	fitness := h.evaluateUncached(ctx, genIdx, indIdx, priorityList, arcs)

	if h.opts.Cache != nil && !math.IsInf(fitness, 1) {
		if err := h.opts.Cache.StoreCachedFitness(ctx, key, fitness); err != nil {
			h.logger.Debug("fitness cache store failed", "error", err)
		}
	}
	return fitness
}

func (h *Harness) evaluateUncached(ctx context.Context, genIdx, indIdx int, priorityList []int, arcs policy.ArcSet) float64 {
	work := make(chan int, h.opts.Replications)
	for r := 0; r < h.opts.Replications; r++ {
		work <- r
	}
	close(work)

	outcomes := make(chan replicationOutcome, h.opts.Replications)
	var wg sync.WaitGroup

	workers := h.opts.Workers
	if workers > h.opts.Replications {
		workers = h.opts.Replications
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go h.worker(ctx, &wg, work, outcomes, genIdx, indIdx, priorityList, arcs)
	}
	wg.Wait()
	close(outcomes)

	makespans := make([]float64, 0, h.opts.Replications)
	invalidCount := 0
	for o := range outcomes {
		if o.invalid {
			invalidCount++
			continue
		}
		makespans = append(makespans, o.makespan)
	}

	if h.opts.Replications > 0 && float64(invalidCount)/float64(h.opts.Replications) > 0.10 {
		reason := fmt.Sprintf("%d/%d replications invalid", invalidCount, h.opts.Replications)
		h.logger.Warn("individual assigned infinite fitness",
			"generation", genIdx, "individual", indIdx, "error", (&srcpsperr.InvalidIndividual{Reason: reason}).Error())
		return math.Inf(1)
	}
	if len(makespans) == 0 {
		return math.Inf(1)
	}
	return aggregate(makespans, h.opts)
}

func (h *Harness) worker(ctx context.Context, wg *sync.WaitGroup, work <-chan int, outcomes chan<- replicationOutcome, genIdx, indIdx int, priorityList []int, arcs policy.ArcSet) {
	defer wg.Done()
	for repIdx := range work {
		select {
		case <-ctx.Done():
			outcomes <- replicationOutcome{invalid: true}
			continue
		default:
		}

		job := h.template.Clone()
		seed := deriveSeed(h.opts.BaseSeed, genIdx, indIdx, repIdx)
		res, err := simulate.Run(job, simulate.Options{
			PolicyName:   h.opts.PolicyName,
			PriorityList: priorityList,
			Arcs:         arcs,
			Seed:         seed,
			Stochastic:   h.opts.Stochastic,
		})
		if err != nil {
			h.logger.Debug("monte carlo replication invalid",
				"generation", genIdx, "individual", indIdx, "replication", repIdx, "error", err)
			outcomes <- replicationOutcome{invalid: true}
			continue
		}
		outcomes <- replicationOutcome{makespan: res.TotalTime}
	}
}

func aggregate(makespans []float64, opts Options) float64 {
	if opts.Aggregation == Quantile {
		return quantile(makespans, opts.Quantile)
	}
	return mean(makespans)
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// quantile returns the linearly-interpolated q-quantile of xs (q in [0,1]).
func quantile(xs []float64, q float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// deriveSeed combines a base seed with (generation, individual, replication)
// via FNV-1a, never wall-clock or shared RNG state (SPEC_FULL §4.G, §5).
func deriveSeed(base int64, genIdx, indIdx, repIdx int) int64 {
	hsh := fnv.New64a()
	fmt.Fprintf(hsh, "%d:%d:%d:%d", base, genIdx, indIdx, repIdx)
	return int64(hsh.Sum64() & 0x7fffffffffffffff)
}

// cacheKey identifies a fitness value by the candidate (priority list, arc
// set), the harness's replication count and base seed, and the
// stochastic/aggregation mode — not by (generation, individual) index, so
// the same candidate reappearing across generations (e.g. via elitism) hits
// the cache instead of re-simulating. Replication seeds do depend on the
// (generation, individual) index, so in stochastic mode a hit returns the
// value from the candidate's first evaluation.
func cacheKey(priorityList []int, arcs policy.ArcSet, opts Options) string {
	hsh := fnv.New64a()
	fmt.Fprintf(hsh, "policy=%s;list=%v;arcs=%v;reps=%d;seed=%d;stoch=%t;agg=%d;q=%f",
		opts.PolicyName, priorityList, arcs, opts.Replications, opts.BaseSeed, opts.Stochastic, opts.Aggregation, opts.Quantile)
	return fmt.Sprintf("%x", hsh.Sum64())
}
