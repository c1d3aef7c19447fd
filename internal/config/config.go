// Package config loads process configuration from environment
// variables, following the loadConfig/getEnv pattern used in
// backend/config-api/cmd/config-api/main.go.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full set of environment knobs the server reads at startup.
type Config struct {
	Port                  string
	FrontendURL           string
	NodeEnv               string
	LogLevel              string
	DatabaseURL           string
	PipelineLogsDir       string
	BaselineModelPath     string
	DetectorBackend       string
	ExternalScorerURL     string
	ExternalScorerTimeout time.Duration
	ExternalScorerRetries int
	NATSURL               string
}

// Load reads Config from the environment, applying defaults for every
// knob. No knob's absence is a startup error.
func Load() *Config {
	return &Config{
		Port:                  getEnv("PORT", "8080"),
		FrontendURL:           getEnv("FRONTEND_URL", "*"),
		NodeEnv:               getEnv("NODE_ENV", "development"),
		LogLevel:              getEnv("LOG_LEVEL", "INFO"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		PipelineLogsDir:       getEnv("PIPELINE_LOGS_DIR", "./pipeline-logs"),
		BaselineModelPath:     getEnv("BASELINE_MODEL_PATH", "./data"),
		DetectorBackend:       getEnv("DETECTOR_BACKEND", "zscore"),
		ExternalScorerURL:     getEnv("EXTERNAL_SCORER_URL", ""),
		ExternalScorerTimeout: getEnvDuration("EXTERNAL_SCORER_TIMEOUT", 5*time.Second),
		ExternalScorerRetries: getEnvInt("EXTERNAL_SCORER_RETRIES", 3),
		NATSURL:               getEnv("NATS_URL", ""),
	}
}

// IsProduction reports whether production safety checks (rejecting
// obvious test-data pipelines) are active.
func (c *Config) IsProduction() bool {
	return c.NodeEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
