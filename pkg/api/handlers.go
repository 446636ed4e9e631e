package api

import (
	"math/rand"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/srcpsp/deepthought/pkg/domain"
	"github.com/srcpsp/deepthought/pkg/gaopt/arcga"
	"github.com/srcpsp/deepthought/pkg/gaopt/listga"
	"github.com/srcpsp/deepthought/pkg/montecarlo"
	"github.com/srcpsp/deepthought/pkg/optimize"
	"github.com/srcpsp/deepthought/pkg/policy"
	"github.com/srcpsp/deepthought/pkg/simulate"
)

// healthHandler reports the backing store's health, matching the teacher's
// health check contract.
func (s *Server) healthHandler(c *gin.Context) {
	health := s.store.Health(c.Request.Context())

	status := http.StatusOK
	if health.Overall != "healthy" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":    health.Overall,
		"timestamp": time.Now(),
		"services":  health,
		"version":   "1.0.0",
	})
}

// metricsHandler reports connected websocket client count, the one
// runtime metric this server tracks in-process (no pkg/database.Stats
// equivalent: pkg/store doesn't expose connection-pool internals).
func (s *Server) metricsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"websocket_clients": s.websocket.GetConnectedClients(),
		"timestamp":         time.Now(),
	})
}

func (s *Server) loadJob(c *gin.Context, jobID string) (*domain.Job, bool) {
	job, err := s.store.LoadJob(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job_not_found", "message": err.Error()})
		return nil, false
	}
	return job, true
}

// getJobHandler returns a job's current persisted state, including any
// Schedule artifacts a prior optimize call attached.
func (s *Server) getJobHandler(c *gin.Context) {
	job, ok := s.loadJob(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

// precomputeHandler runs precompute mode (SPEC_FULL §6.6): fills each
// task's Duration.Samples cache and persists the augmented job back to the
// store, the Go equivalent of the original's pickle.dump(job, ...).
func (s *Server) precomputeHandler(c *gin.Context) {
	jobID := c.Param("id")
	job, ok := s.loadJob(c, jobID)
	if !ok {
		return
	}

	var req struct {
		Samples int   `json:"samples"`
		Seed    int64 `json:"seed"`
	}
	// Body is optional: an absent/empty one just takes the defaults below.
	_ = c.ShouldBindJSON(&req)
	if req.Samples <= 0 {
		req.Samples = 1000
	}

	rng := rand.New(rand.NewSource(req.Seed))
	for _, id := range job.SortedTaskIDs() {
		task := job.Tasks[id]
		task.Duration.FillSamples(rng, req.Samples)
	}

	if err := s.store.SaveJob(c.Request.Context(), jobID, job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save_failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "samples": req.Samples})
}

// simulateHandler runs a single simulate(job, policy, seed) call per
// spec.md §6 and persists the resulting SimulationResult to history.
func (s *Server) simulateHandler(c *gin.Context) {
	jobID := c.Param("id")
	job, ok := s.loadJob(c, jobID)
	if !ok {
		return
	}

	var req struct {
		Policy       string  `json:"policy"`
		PriorityList []int   `json:"priority_list"`
		Arcs         [][2]int `json:"arcs"`
		Seed         int64   `json:"seed"`
		Stochastic   bool    `json:"stochastic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if req.Policy == "" {
		req.Policy = "Reference"
	}
	if len(req.PriorityList) == 0 {
		req.PriorityList = job.SortedTaskIDs()
	}

	var arcs policy.ArcSet
	for _, a := range req.Arcs {
		arcs = append(arcs, [2]int{a[0], a[1]})
	}

	result, err := simulate.Run(job, simulate.Options{
		PolicyName:   req.Policy,
		PriorityList: req.PriorityList,
		Arcs:         arcs,
		Seed:         req.Seed,
		Stochastic:   req.Stochastic,
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "simulation_failed", "message": err.Error()})
		return
	}

	if err := s.store.SaveSimulationResult(c.Request.Context(), jobID, "simulate", result); err != nil {
		s.logger.Warn("failed to persist simulation result", "job_id", jobID, "error", err)
	}

	c.JSON(http.StatusOK, result)
}

// optimizeHandler runs optimize(job, policy, config) (spec.md §4.H); once it
// returns, it sends each ListGA/ArcGA generation's stats to websocket
// clients subscribed to this job's optimize topic, then returns the final
// SimulationResult and persists both the winning Schedule and the result.
func (s *Server) optimizeHandler(c *gin.Context) {
	jobID := c.Param("id")
	job, ok := s.loadJob(c, jobID)
	if !ok {
		return
	}

	var req struct {
		Policy            string  `json:"policy"`
		ListPopulation    int     `json:"list_population_size"`
		ListGenerations   int     `json:"list_generations"`
		ArcPopulation     int     `json:"arc_population_size"`
		ArcGenerations    int     `json:"arc_generations"`
		AlternationRounds int     `json:"alternation_rounds"`
		MCReplications    int     `json:"mc_replications"`
		Stochastic        bool    `json:"stochastic"`
		Seed              int64   `json:"seed"`
		Aggregation       string  `json:"aggregation"`
		Quantile          float64 `json:"quantile"`
		TimeBudgetSeconds int     `json:"time_budget_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if req.Policy == "" {
		req.Policy = "Reference"
	}

	aggregation := montecarlo.Mean
	if req.Aggregation == "quantile" {
		aggregation = montecarlo.Quantile
	}

	cfg := optimize.Config{
		PolicyName: req.Policy,
		ListGA: listga.Options{
			PopulationSize: req.ListPopulation,
			Generations:    req.ListGenerations,
			Seed:           req.Seed,
		},
		ArcGA: arcga.Options{
			PopulationSize: req.ArcPopulation,
			Generations:    req.ArcGenerations,
			Seed:           req.Seed,
		},
		MCReplications:    req.MCReplications,
		Stochastic:        req.Stochastic,
		Seed:              req.Seed,
		Aggregation:       aggregation,
		Quantile:          req.Quantile,
		AlternationRounds: req.AlternationRounds,
		TimeBudget:        time.Duration(req.TimeBudgetSeconds) * time.Second,
		Cache:             s.store,
	}

	result, err := optimize.Optimize(c.Request.Context(), job, cfg, s.logger)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "optimize_failed", "message": err.Error()})
		return
	}

	for i, gen := range result.ListGALog {
		s.websocket.BroadcastOptimizeProgress(jobID, "list_ga", i, gen)
	}
	for i, gen := range result.ArcGALog {
		s.websocket.BroadcastOptimizeProgress(jobID, "arc_ga", i, gen)
	}

	job.Schedule = &domain.Schedule{PriorityList: result.BestList, Arcs: result.BestArcs}
	if err := s.store.SaveJob(c.Request.Context(), jobID, job); err != nil {
		s.logger.Warn("failed to persist optimized job", "job_id", jobID, "error", err)
	}
	if err := s.store.SaveSimulationResult(c.Request.Context(), jobID, "optimize", result.BestResult); err != nil {
		s.logger.Warn("failed to persist optimize result", "job_id", jobID, "error", err)
	}

	c.JSON(http.StatusOK, result)
}
