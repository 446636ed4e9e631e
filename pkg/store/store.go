// Package store provides the persistence layer for SPEC_FULL §6.6: a
// Postgres-backed job/result archive plus a Redis-backed Monte Carlo fitness
// cache. Connection and pooling setup follows the teacher's
// pkg/database.DatabaseManager, scaled down to the two tables and one cache
// this domain actually needs (no Users/Nodes/Models/Sessions repositories).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/srcpsp/deepthought/pkg/domain"
	"github.com/srcpsp/deepthought/pkg/simulate"
)

// Config mirrors the teacher's DatabaseConfig shape (host/port/credentials
// plus pool tuning), renamed to this domain's env var prefix.
type Config struct {
	Host     string `yaml:"host" env:"SRCPSP_DB_HOST"`
	Port     int    `yaml:"port" env:"SRCPSP_DB_PORT"`
	Name     string `yaml:"name" env:"SRCPSP_DB_NAME"`
	User     string `yaml:"user" env:"SRCPSP_DB_USER"`
	Password string `yaml:"password" env:"SRCPSP_DB_PASSWORD"`
	SSLMode  string `yaml:"ssl_mode" env:"SRCPSP_DB_SSL_MODE"`

	MaxOpenConns    int           `yaml:"max_open_conns" env:"SRCPSP_DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"SRCPSP_DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"SRCPSP_DB_CONN_MAX_LIFETIME"`

	RedisHost string `yaml:"redis_host" env:"SRCPSP_REDIS_HOST"`
	RedisPort int    `yaml:"redis_port" env:"SRCPSP_REDIS_PORT"`
	RedisDB   int    `yaml:"redis_db" env:"SRCPSP_REDIS_DB"`

	// FitnessCacheTTL bounds how long a Monte Carlo evaluation stays cached.
	FitnessCacheTTL time.Duration `yaml:"fitness_cache_ttl" env:"SRCPSP_FITNESS_CACHE_TTL"`
}

func (c *Config) applyDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.SSLMode == "" {
		c.SSLMode = "prefer"
	}
	if c.FitnessCacheTTL == 0 {
		c.FitnessCacheTTL = 1 * time.Hour
	}
}

// Store manages the Postgres and Redis connections backing job persistence
// and the Monte Carlo fitness cache.
type Store struct {
	db     *sqlx.DB
	redis  *redis.Client
	config *Config
	logger *slog.Logger
}

// Open connects to Postgres and Redis and ensures the schema exists.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		DB:   cfg.RedisDB,
	})
	redisCtx, cancel2 := context.WithTimeout(ctx, 5*time.Second)
	defer cancel2()
	if err := rdb.Ping(redisCtx).Err(); err != nil {
		return nil, fmt.Errorf("store: ping redis: %w", err)
	}

	s := &Store{db: db, redis: rdb, config: &cfg, logger: logger}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	logger.Info("store opened", "postgres_db", cfg.Name, "redis_db", cfg.RedisDB)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaDDL)
	return err
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS simulation_results (
	id         BIGSERIAL PRIMARY KEY,
	job_id     TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	mode       TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS simulation_results_job_id_idx ON simulation_results(job_id);
`

// Close releases the Postgres and Redis connections.
func (s *Store) Close() error {
	var err error
	if e := s.db.Close(); e != nil {
		err = e
	}
	if e := s.redis.Close(); e != nil {
		err = e
	}
	return err
}

// Health pings both backing stores, mirroring the teacher's
// DatabaseManager.Health contract.
type Health struct {
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
	Overall  string `json:"overall"`
}

func (s *Store) Health(ctx context.Context) Health {
	h := Health{Postgres: "healthy", Redis: "healthy", Overall: "healthy"}
	if err := s.db.PingContext(ctx); err != nil {
		h.Postgres = "unhealthy"
		h.Overall = "degraded"
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		h.Redis = "unhealthy"
		h.Overall = "degraded"
	}
	return h
}

// SaveJob upserts a job's current state (including the duration samples the
// precompute endpoint fills and any Schedule the optimize endpoint
// attached), keyed by id.
func (s *Store) SaveJob(ctx context.Context, id string, job *domain.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("store: marshal job: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, payload, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
		id, payload)
	return err
}

// LoadJob fetches a previously saved job by id.
func (s *Store) LoadJob(ctx context.Context, id string) (*domain.Job, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload, `SELECT payload FROM jobs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: job %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load job: %w", err)
	}
	job := domain.NewJob()
	if err := json.Unmarshal(payload, job); err != nil {
		return nil, fmt.Errorf("store: unmarshal job: %w", err)
	}
	// FulfilledBy is not serialized: resolve it again before returning.
	job.AlreadyInitialized = false
	if err := job.Initialize(); err != nil {
		return nil, fmt.Errorf("store: initialize job: %w", err)
	}
	return job, nil
}

// SaveSimulationResult appends a simulate/optimize run's result to a job's
// history.
func (s *Store) SaveSimulationResult(ctx context.Context, jobID, mode string, res *simulate.SimulationResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("store: marshal result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO simulation_results (job_id, mode, payload) VALUES ($1, $2, $3)`,
		jobID, mode, payload)
	return err
}

// CachedFitness looks up a Monte Carlo fitness value previously stored under
// key, returning ok=false on a cache miss.
func (s *Store) CachedFitness(ctx context.Context, key string) (float64, bool) {
	val, err := s.redis.Get(ctx, fitnessCacheKey(key)).Float64()
	if err != nil {
		return 0, false
	}
	return val, true
}

// StoreCachedFitness records a Monte Carlo fitness value under key.
func (s *Store) StoreCachedFitness(ctx context.Context, key string, fitness float64) error {
	return s.redis.Set(ctx, fitnessCacheKey(key), fitness, s.config.FitnessCacheTTL).Err()
}

func fitnessCacheKey(key string) string {
	return "srcpsp:fitness:" + key
}
