package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	clearDriftDetectEnv(t)
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.NodeEnv)
	assert.Equal(t, "zscore", cfg.DetectorBackend)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_ReadsOverridesFromEnv(t *testing.T) {
	clearDriftDetectEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("NODE_ENV", "production")
	t.Setenv("EXTERNAL_SCORER_TIMEOUT", "2s")
	t.Setenv("EXTERNAL_SCORER_RETRIES", "5")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 2*time.Second, cfg.ExternalScorerTimeout)
	assert.Equal(t, 5, cfg.ExternalScorerRetries)
}

func TestLoad_IgnoresUnparseableNumericOverride(t *testing.T) {
	clearDriftDetectEnv(t)
	t.Setenv("EXTERNAL_SCORER_RETRIES", "not-a-number")
	cfg := Load()
	assert.Equal(t, 3, cfg.ExternalScorerRetries)
}

func clearDriftDetectEnv(t *testing.T) {
	for _, key := range []string{
		"PORT", "FRONTEND_URL", "NODE_ENV", "LOG_LEVEL", "DATABASE_URL",
		"PIPELINE_LOGS_DIR", "BASELINE_MODEL_PATH", "DETECTOR_BACKEND",
		"EXTERNAL_SCORER_URL", "EXTERNAL_SCORER_TIMEOUT", "EXTERNAL_SCORER_RETRIES", "NATS_URL",
	} {
		t.Cleanup(func(k string) func() { return func() { os.Unsetenv(k) } }(key))
		os.Unsetenv(key)
	}
}
