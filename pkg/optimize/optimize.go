// Package optimize wires ListGA, ArcGA, and the Monte Carlo fitness harness
// into the single orchestration entrypoint SPEC_FULL §4.H calls out as new
// relative to the distilled spec: the Go equivalent of the original
// source's simulator.py scheduler object, which owned both GA logs and one
// simulate_schedule entrypoint.
package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/srcpsp/deepthought/pkg/domain"
	"github.com/srcpsp/deepthought/pkg/gaopt/arcga"
	"github.com/srcpsp/deepthought/pkg/gaopt/listga"
	"github.com/srcpsp/deepthought/pkg/montecarlo"
	"github.com/srcpsp/deepthought/pkg/policy"
	"github.com/srcpsp/deepthought/pkg/simulate"
)

// Config is the invocation surface's `config` record from spec.md §6: every
// named option the optimizer recognizes.
type Config struct {
	PolicyName       string
	ListGA           listga.Options
	ArcGA            arcga.Options
	MonteCarloWorkers int
	MCReplications   int
	Stochastic       bool
	Seed             int64
	Aggregation      montecarlo.Aggregation
	Quantile         float64
	// AlternationRounds is T from spec.md §4.F ("some implementations
	// alternate... for T rounds"). 1 means ListGA once, then ArcGA once,
	// no refitting.
	AlternationRounds int
	// TimeBudget, if nonzero, bounds the whole Optimize call; generations
	// stop early and the current best is returned (SPEC_FULL §5).
	TimeBudget time.Duration
	// Cache, if set, memoizes Monte Carlo fitness evaluations across calls
	// (SPEC_FULL §6.6). Nil disables memoization.
	Cache montecarlo.FitnessCache
}

func (c *Config) applyDefaults() {
	if c.PolicyName == "" {
		c.PolicyName = "Reference"
	}
	if c.MCReplications <= 0 {
		c.MCReplications = 30
	}
	if c.AlternationRounds <= 0 {
		c.AlternationRounds = 1
	}
}

// Result bundles the optimizer's output contract from spec.md §6: both
// generation logs plus a final SimulationResult produced by replaying the
// winning (priority list, arc set) pair.
type Result struct {
	ListGALog   []listga.GenerationStats `json:"list_ga_log"`
	ArcGALog    []arcga.GenerationStats  `json:"arc_ga_log"`
	BestList    []int                    `json:"best_priority_list"`
	BestArcs    policy.ArcSet            `json:"best_arcs"`
	BestFitness float64                  `json:"best_fitness"`
	BestResult  *simulate.SimulationResult `json:"best_result"`
}

// Optimize runs the two-layer GA search described in spec.md §4.E/§4.F/§4.G,
// alternating for cfg.AlternationRounds rounds, then replays the winning
// schedule once with cfg.Stochastic to populate Result.BestResult.
func Optimize(ctx context.Context, job *domain.Job, cfg Config, logger *slog.Logger) (*Result, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := policy.New(cfg.PolicyName); err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}

	if cfg.TimeBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.TimeBudget)
		defer cancel()
	}

	mcOpts := montecarlo.Options{
		PolicyName:   cfg.PolicyName,
		Replications: cfg.MCReplications,
		BaseSeed:     cfg.Seed,
		Stochastic:   cfg.Stochastic,
		Aggregation:  cfg.Aggregation,
		Quantile:     cfg.Quantile,
		Workers:      cfg.MonteCarloWorkers,
		Cache:        cfg.Cache,
	}
	harness := montecarlo.New(job, mcOpts, logger)
	// ListGA's fitness always runs the Reference policy; ArcGA and the final
	// replay use cfg.PolicyName.
	listMCOpts := mcOpts
	listMCOpts.PolicyName = "Reference"
	listHarness := montecarlo.New(job, listMCOpts, logger)

	result := &Result{}
	priorityList := job.SortedTaskIDs()
	var arcs policy.ArcSet

	for round := 0; round < cfg.AlternationRounds; round++ {
		select {
		case <-ctx.Done():
			logger.Warn("optimize: time budget exceeded, returning current best", "round", round)
			return finalize(job, cfg, priorityList, arcs, result)
		default:
		}

		listOpts := cfg.ListGA
		listOpts.Seed = cfg.Seed + int64(round)
		listResult := listga.Run(ctx, job, listHarness, listOpts)
		result.ListGALog = append(result.ListGALog, listResult.Log...)
		if listResult.BestPriorityList != nil {
			priorityList = listResult.BestPriorityList
		}

		arcOpts := cfg.ArcGA
		arcOpts.Seed = cfg.Seed + int64(round)
		arcResult := arcga.Run(ctx, job, priorityList, harness, arcOpts)
		result.ArcGALog = append(result.ArcGALog, arcResult.Log...)
		if arcResult.BestArcs != nil {
			arcs = arcResult.BestArcs
		}
		result.BestFitness = arcResult.BestFitness

		logger.Info("optimize: alternation round complete",
			"round", round, "best_fitness", arcResult.BestFitness, "arcs", len(arcs))
	}

	return finalize(job, cfg, priorityList, arcs, result)
}

func finalize(job *domain.Job, cfg Config, priorityList []int, arcs policy.ArcSet, result *Result) (*Result, error) {
	result.BestList = priorityList
	result.BestArcs = arcs

	res, err := simulate.Run(job, simulate.Options{
		PolicyName:   cfg.PolicyName,
		PriorityList: priorityList,
		Arcs:         arcs,
		Seed:         cfg.Seed,
		Stochastic:   cfg.Stochastic,
	})
	if err != nil {
		return result, fmt.Errorf("optimize: replaying winning schedule: %w", err)
	}
	result.BestResult = res
	return result, nil
}
