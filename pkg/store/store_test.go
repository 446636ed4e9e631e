package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, "prefer", cfg.SSLMode)
	assert.Equal(t, 1*time.Hour, cfg.FitnessCacheTTL)
}

func TestConfigApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := Config{MaxOpenConns: 3, SSLMode: "require", FitnessCacheTTL: 10 * time.Minute}
	cfg.applyDefaults()

	assert.Equal(t, 3, cfg.MaxOpenConns)
	assert.Equal(t, "require", cfg.SSLMode)
	assert.Equal(t, 10*time.Minute, cfg.FitnessCacheTTL)
}

func TestFitnessCacheKeyIsNamespaced(t *testing.T) {
	assert.Equal(t, "srcpsp:fitness:abc123", fitnessCacheKey("abc123"))
}
