// Command srcpsp is the CLI entrypoint over the S-RCPSP scheduling runtime:
// precompute, simulate, and optimize subcommands, plus a serve subcommand
// that starts the HTTP/WS API (SPEC_FULL §6.5) and a token subcommand for
// issuing bearer tokens since this domain has no user-account system to
// authenticate against.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srcpsp/deepthought/internal/config"
	"github.com/srcpsp/deepthought/pkg/api"
	"github.com/srcpsp/deepthought/pkg/auth"
	"github.com/srcpsp/deepthought/pkg/domain"
	"github.com/srcpsp/deepthought/pkg/gaopt/arcga"
	"github.com/srcpsp/deepthought/pkg/gaopt/listga"
	"github.com/srcpsp/deepthought/pkg/montecarlo"
	"github.com/srcpsp/deepthought/pkg/optimize"
	"github.com/srcpsp/deepthought/pkg/policy"
	"github.com/srcpsp/deepthought/pkg/simulate"
	"github.com/srcpsp/deepthought/pkg/srcpsperr"
	"github.com/srcpsp/deepthought/pkg/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "srcpsp",
		Short: "Resource-constrained project scheduling with stochastic durations",
	}

	rootCmd.AddCommand(precomputeCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(optimizeCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadJobFile(path string) (*domain.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file %q: %w", path, err)
	}
	job := domain.NewJob()
	if err := json.Unmarshal(data, job); err != nil {
		return nil, fmt.Errorf("parsing job file %q: %w", path, err)
	}
	// FulfilledBy is not serialized, so a decoded job is always initialized
	// again, even when its already_initialized flag was saved as true.
	job.AlreadyInitialized = false
	if err := job.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing job: %w", err)
	}
	return job, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func precomputeCmd() *cobra.Command {
	var jobPath, outPath string
	var samples int
	var seed int64

	cmd := &cobra.Command{
		Use:   "precompute",
		Short: "Draw duration samples for every task and write the augmented job back out",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := loadJobFile(jobPath)
			if err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seed))
			for _, id := range job.SortedTaskIDs() {
				job.Tasks[id].Duration.FillSamples(rng, samples)
			}
			if outPath == "" {
				outPath = jobPath
			}
			return writeJSON(outPath, job)
		},
	}
	cmd.Flags().StringVarP(&jobPath, "job", "j", "", "path to job JSON file")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output path (defaults to overwriting --job)")
	cmd.Flags().IntVar(&samples, "samples", 1000, "number of duration samples per task")
	cmd.Flags().Int64Var(&seed, "seed", 1, "RNG seed")
	cmd.MarkFlagRequired("job")
	return cmd
}

func simulateCmd() *cobra.Command {
	var jobPath, outPath, policyName string
	var seed int64
	var stochastic bool

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one simulate(job, policy, seed) call and print the resulting schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := loadJobFile(jobPath)
			if err != nil {
				return err
			}
			priorityList := job.SortedTaskIDs()
			var arcs policy.ArcSet
			if job.Schedule != nil {
				if job.Schedule.PriorityList != nil {
					priorityList = job.Schedule.PriorityList
				}
				arcs = policy.ArcSet(job.Schedule.Arcs)
			}
			result, err := simulate.Run(job, simulate.Options{
				PolicyName:   policyName,
				PriorityList: priorityList,
				Arcs:         arcs,
				Seed:         seed,
				Stochastic:   stochastic,
			})
			if err != nil {
				return fmt.Errorf("simulate: %w", err)
			}
			return writeJSON(outPath, result)
		},
	}
	cmd.Flags().StringVarP(&jobPath, "job", "j", "", "path to job JSON file")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output path (defaults to stdout)")
	cmd.Flags().StringVar(&policyName, "policy", "Reference", "dispatch policy name")
	cmd.Flags().Int64Var(&seed, "seed", 1, "RNG seed")
	cmd.Flags().BoolVar(&stochastic, "stochastic", true, "sample stochastic durations instead of means")
	cmd.MarkFlagRequired("job")
	return cmd
}

func optimizeCmd() *cobra.Command {
	var jobPath, outPath, policyName, aggregation string
	var listPop, listGen, arcPop, arcGen, rounds, replications int
	var seed int64
	var quantile float64
	var stochastic bool
	var timeBudget time.Duration

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run the two-layer ListGA/ArcGA optimizer and print the winning schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := loadJobFile(jobPath)
			if err != nil {
				return err
			}
			agg := montecarlo.Mean
			if aggregation == "quantile" {
				agg = montecarlo.Quantile
			}
			cfg := optimize.Config{
				PolicyName:        policyName,
				ListGA:            listga.Options{PopulationSize: listPop, Generations: listGen, Seed: seed},
				ArcGA:             arcga.Options{PopulationSize: arcPop, Generations: arcGen, Seed: seed},
				AlternationRounds: rounds,
				MCReplications:    replications,
				Stochastic:        stochastic,
				Seed:              seed,
				Aggregation:       agg,
				Quantile:          quantile,
				TimeBudget:        timeBudget,
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			result, err := optimize.Optimize(cmd.Context(), job, cfg, logger)
			if err != nil {
				return fmt.Errorf("optimize: %w", err)
			}
			return writeJSON(outPath, result)
		},
	}
	cmd.Flags().StringVarP(&jobPath, "job", "j", "", "path to job JSON file")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output path (defaults to stdout)")
	cmd.Flags().StringVar(&policyName, "policy", "Reference", "dispatch policy name")
	cmd.Flags().IntVar(&listPop, "list-population", 50, "ListGA population size")
	cmd.Flags().IntVar(&listGen, "list-generations", 100, "ListGA generation count")
	cmd.Flags().IntVar(&arcPop, "arc-population", 50, "ArcGA population size")
	cmd.Flags().IntVar(&arcGen, "arc-generations", 100, "ArcGA generation count")
	cmd.Flags().IntVar(&rounds, "rounds", 1, "ListGA/ArcGA alternation rounds")
	cmd.Flags().IntVar(&replications, "replications", 30, "Monte Carlo replications per fitness evaluation")
	cmd.Flags().Int64Var(&seed, "seed", 1, "base RNG seed")
	cmd.Flags().StringVar(&aggregation, "aggregation", "mean", "fitness aggregation: mean or quantile")
	cmd.Flags().Float64Var(&quantile, "quantile", 0.9, "quantile to use when --aggregation=quantile")
	cmd.Flags().BoolVar(&stochastic, "stochastic", true, "sample stochastic durations in Monte Carlo fitness evaluations and the final replay")
	cmd.Flags().DurationVar(&timeBudget, "time-budget", 0, "wall-clock budget for the whole optimize call (0 = unbounded)")
	cmd.MarkFlagRequired("job")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/WS API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
			cfg := config.LoadConfig()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			persistCfg := store.Config{
				Host: cfg.Persistence.Host, Port: cfg.Persistence.Port, Name: cfg.Persistence.Name,
				User: cfg.Persistence.User, Password: cfg.Persistence.Password, SSLMode: cfg.Persistence.SSLMode,
				RedisHost: cfg.Persistence.RedisHost, RedisPort: cfg.Persistence.RedisPort, RedisDB: cfg.Persistence.RedisDB,
				FitnessCacheTTL: cfg.Persistence.FitnessCacheTTL,
			}
			st, err := store.Open(ctx, persistCfg, logger)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()

			srv, err := api.NewServer(cfg, st, logger)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(ctx) }()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Stop(shutdownCtx)
			case err := <-errCh:
				return err
			}
		},
	}
}

func tokenCmd() *cobra.Command {
	var role, userID string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a role (no user-account store backs this; the role is trusted as given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			permissions := auth.GetRolePermissions(role)
			if len(permissions) == 0 {
				return &srcpsperr.ConfigError{Option: "role", Reason: fmt.Sprintf("unknown role %q", role)}
			}
			cfg := config.DefaultConfig()
			jwtSvc, err := auth.NewJWTService(&cfg.Auth)
			if err != nil {
				return err
			}
			pair, err := jwtSvc.GenerateToken(userID, userID, role, permissions)
			if err != nil {
				return err
			}
			return writeJSON("", pair)
		},
	}
	cmd.Flags().StringVar(&role, "role", auth.RoleOperator, "role to embed (admin, operator, user, readonly)")
	cmd.Flags().StringVar(&userID, "subject", "cli", "subject identifier recorded in the token")
	return cmd
}
