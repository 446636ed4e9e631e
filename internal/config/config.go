package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	JWT         JWTConfig         `json:"jwt"`
	Auth        AuthConfig        `json:"auth"`
	API         APIConfig         `json:"api"`
	Scheduling  SchedulingConfig  `json:"scheduling"`
	Persistence PersistenceConfig `json:"persistence"`
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	SecretKey    string        `json:"secret_key"`
	ExpiryTime   time.Duration `json:"expiry_time"`
	RefreshTime  time.Duration `json:"refresh_time"`
	Issuer       string        `json:"issuer"`
	Audience     string        `json:"audience"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Listen      string          `json:"listen"`
	ListenAddr  string          `json:"listen_addr"`
	Port        int             `json:"port"`
	TLSEnabled  bool            `json:"tls_enabled"`
	CertFile    string          `json:"cert_file"`
	KeyFile     string          `json:"key_file"`
	MaxBodySize int64           `json:"max_body_size"`
	RateLimit   RateLimitConfig `json:"rate_limit"`
	Cors        CorsConfig      `json:"cors"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled      bool          `json:"enabled"`
	Method       string        `json:"method"`
	TokenExpiry  time.Duration `json:"token_expiry"`
	SecretKey    string        `json:"secret_key"`
	RefreshTime  time.Duration `json:"refresh_time"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled     bool          `json:"enabled"`
	RequestsPer int           `json:"requests_per"`
	Duration    time.Duration `json:"duration"`
	BurstSize   int           `json:"burst_size"`
	// Legacy fields for backward compatibility
	RPS       int      `json:"rps"`
	Burst     int      `json:"burst"`
	WhiteList []string `json:"whitelist"`
}

// CorsConfig holds CORS configuration
type CorsConfig struct {
	Enabled          bool     `json:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

// SchedulingConfig holds the optimizer invocation defaults from spec.md §6,
// loaded from the environment and the optional config file. Neither the CLI
// nor the API reads it: the CLI takes its defaults from its own flags, and
// the API passes request values to optimize.Config, whose zero fields the
// optimize, listga and arcga defaults fill.
type SchedulingConfig struct {
	PolicyName        string        `json:"policy_name" yaml:"policy_name"`
	ListPopulationSize int          `json:"list_population_size" yaml:"list_population_size"`
	ListGenerations    int          `json:"list_generations" yaml:"list_generations"`
	ArcPopulationSize  int          `json:"arc_population_size" yaml:"arc_population_size"`
	ArcGenerations     int          `json:"arc_generations" yaml:"arc_generations"`
	AlternationRounds  int          `json:"alternation_rounds" yaml:"alternation_rounds"`
	MCReplications     int          `json:"mc_replications" yaml:"mc_replications"`
	Stochastic         bool         `json:"stochastic" yaml:"stochastic"`
	Seed               int64        `json:"seed" yaml:"seed"`
	Aggregation        string       `json:"aggregation" yaml:"aggregation"` // "mean" or "quantile"
	Quantile           float64      `json:"quantile" yaml:"quantile"`
	TimeBudget         time.Duration `json:"time_budget" yaml:"time_budget"`
}

// PersistenceConfig holds the Postgres/Redis connection settings consumed
// by pkg/store.
type PersistenceConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	Name            string        `json:"name" yaml:"name"`
	User            string        `json:"user" yaml:"user"`
	Password        string        `json:"password" yaml:"password"`
	SSLMode         string        `json:"ssl_mode" yaml:"ssl_mode"`
	RedisHost       string        `json:"redis_host" yaml:"redis_host"`
	RedisPort       int           `json:"redis_port" yaml:"redis_port"`
	RedisDB         int           `json:"redis_db" yaml:"redis_db"`
	FitnessCacheTTL time.Duration `json:"fitness_cache_ttl" yaml:"fitness_cache_ttl"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		JWT: JWTConfig{
			SecretKey:   getEnvOrDefault("JWT_SECRET_KEY", "your-secret-key-change-this"),
			ExpiryTime:  24 * time.Hour,
			RefreshTime: 7 * 24 * time.Hour,
			Issuer:      "srcpsp-deepthought",
			Audience:    "srcpsp-deepthought-users",
		},
		Auth: AuthConfig{
			Enabled:     getEnvBoolOrDefault("AUTH_ENABLED", true),
			Method:      getEnvOrDefault("AUTH_METHOD", "jwt"),
			TokenExpiry: 24 * time.Hour,
			SecretKey:   getEnvOrDefault("AUTH_SECRET_KEY", "your-secret-key-change-this"),
			RefreshTime: 7 * 24 * time.Hour,
		},
		API: APIConfig{
			Listen:      getEnvOrDefault("API_LISTEN", "0.0.0.0:11434"),
			ListenAddr:  getEnvOrDefault("API_LISTEN_ADDR", "0.0.0.0"),
			Port:        getEnvIntOrDefault("API_PORT", 11434),
			TLSEnabled:  getEnvBoolOrDefault("API_TLS_ENABLED", false),
			CertFile:    getEnvOrDefault("API_CERT_FILE", ""),
			KeyFile:     getEnvOrDefault("API_KEY_FILE", ""),
			MaxBodySize: int64(getEnvIntOrDefault("API_MAX_BODY_SIZE", 32*1024*1024)), // 32MB
			RateLimit: RateLimitConfig{
				Enabled:     getEnvBoolOrDefault("RATE_LIMIT_ENABLED", true),
				RequestsPer: getEnvIntOrDefault("RATE_LIMIT_REQUESTS", 100),
				Duration:    time.Minute,
				BurstSize:   getEnvIntOrDefault("RATE_LIMIT_BURST", 10),
			},
			Cors: CorsConfig{
				Enabled:          getEnvBoolOrDefault("CORS_ENABLED", true),
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: false,
			},
		},
		Scheduling: SchedulingConfig{
			PolicyName:         getEnvOrDefault("SCHED_POLICY", "Reference"),
			ListPopulationSize: getEnvIntOrDefault("SCHED_LIST_POPULATION_SIZE", 50),
			ListGenerations:    getEnvIntOrDefault("SCHED_LIST_GENERATIONS", 100),
			ArcPopulationSize:  getEnvIntOrDefault("SCHED_ARC_POPULATION_SIZE", 50),
			ArcGenerations:     getEnvIntOrDefault("SCHED_ARC_GENERATIONS", 100),
			AlternationRounds:  getEnvIntOrDefault("SCHED_ALTERNATION_ROUNDS", 1),
			MCReplications:     getEnvIntOrDefault("SCHED_MC_REPLICATIONS", 30),
			Stochastic:         getEnvBoolOrDefault("SCHED_STOCHASTIC", true),
			Seed:               int64(getEnvIntOrDefault("SCHED_SEED", 1)),
			Aggregation:        getEnvOrDefault("SCHED_AGGREGATION", "mean"),
			Quantile:           0.9,
			TimeBudget:         0,
		},
		Persistence: PersistenceConfig{
			Host:            getEnvOrDefault("SRCPSP_DB_HOST", "localhost"),
			Port:            getEnvIntOrDefault("SRCPSP_DB_PORT", 5432),
			Name:            getEnvOrDefault("SRCPSP_DB_NAME", "srcpsp"),
			User:            getEnvOrDefault("SRCPSP_DB_USER", "srcpsp"),
			Password:        getEnvOrDefault("SRCPSP_DB_PASSWORD", ""),
			SSLMode:         getEnvOrDefault("SRCPSP_DB_SSL_MODE", "prefer"),
			RedisHost:       getEnvOrDefault("SRCPSP_REDIS_HOST", "localhost"),
			RedisPort:       getEnvIntOrDefault("SRCPSP_REDIS_PORT", 6379),
			RedisDB:         getEnvIntOrDefault("SRCPSP_REDIS_DB", 0),
			FitnessCacheTTL: time.Hour,
		},
	}
}

// Helper functions to get environment variables with defaults
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// LoadConfig loads configuration from environment variables, optionally
// overlaying a YAML file named by the SRCPSP_CONFIG_FILE env var.
func LoadConfig() *Config {
	cfg := DefaultConfig()
	if path := os.Getenv("SRCPSP_CONFIG_FILE"); path != "" {
		if err := LoadConfigFile(path, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v, falling back to environment/defaults\n", err)
		}
	}
	return cfg
}

// LoadConfigFile unmarshals a YAML file into cfg, overriding whichever
// fields it sets. Fields the file omits keep whatever DefaultConfig/env
// already populated.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %q: %w", path, err)
	}
	return nil
}