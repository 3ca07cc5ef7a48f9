// Package config loads orchestrator configuration from the environment
// with an optional YAML overlay file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection (record store + durable job rows)
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// GOSH node endpoints
	NodeURL   string `yaml:"node_url"`
	NodeWSURL string `yaml:"node_ws_url"`

	// Confirmation polling: attempts x delay bounds every ledger-visible wait
	ConfirmAttempts int           `yaml:"confirm_attempts"`
	ConfirmDelay    time.Duration `yaml:"confirm_delay"`

	// Job retry defaults
	JobRetries    int           `yaml:"job_retries"`
	JobBackoff    time.Duration `yaml:"job_backoff"`
	DeployTimeout time.Duration `yaml:"deploy_timeout"`

	// Triage thresholds (addressable git objects) and pool widths
	SmallMaxObjects  int `yaml:"small_max_objects"`
	MediumMaxObjects int `yaml:"medium_max_objects"`
	SmallWorkers     int `yaml:"small_workers"`
	MediumWorkers    int `yaml:"medium_workers"`
	LargeWorkers     int `yaml:"large_workers"`

	// Scan trigger interval
	ScanInterval time.Duration `yaml:"scan_interval"`

	// Content transfer
	GitBinary string `yaml:"git_binary"`
	WorkDir   string `yaml:"work_dir"`

	// Daemon
	HealthPort string `yaml:"health_port"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from environment variables. If GOSH_ONBOARDING_CONFIG
// points at a YAML file, its values override the environment.
func Load() (Config, error) {
	cfg := Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "gosh"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "onboarding"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		NodeURL:   getEnv("GOSH_NODE_URL", "http://localhost:8600"),
		NodeWSURL: getEnv("GOSH_NODE_WS_URL", "ws://localhost:8600/events"),

		ConfirmAttempts: getEnvInt("GOSH_CONFIRM_ATTEMPTS", 60),
		ConfirmDelay:    getEnvDuration("GOSH_CONFIRM_DELAY", 10*time.Second),

		JobRetries:    getEnvInt("GOSH_JOB_RETRIES", 5),
		JobBackoff:    getEnvDuration("GOSH_JOB_BACKOFF", 30*time.Second),
		DeployTimeout: getEnvDuration("GOSH_DEPLOY_TIMEOUT", 3*time.Minute),

		SmallMaxObjects:  getEnvInt("GOSH_SMALL_MAX_OBJECTS", 2000),
		MediumMaxObjects: getEnvInt("GOSH_MEDIUM_MAX_OBJECTS", 20000),
		SmallWorkers:     getEnvInt("GOSH_SMALL_WORKERS", 8),
		MediumWorkers:    getEnvInt("GOSH_MEDIUM_WORKERS", 3),
		LargeWorkers:     getEnvInt("GOSH_LARGE_WORKERS", 1),

		ScanInterval: getEnvDuration("GOSH_SCAN_INTERVAL", 30*time.Second),

		GitBinary: getEnv("GOSH_GIT_BINARY", "git"),
		WorkDir:   getEnv("GOSH_WORK_DIR", os.TempDir()),

		HealthPort: getEnv("GOSH_HEALTH_PORT", "9090"),

		LogFile:  getEnv("GOSH_LOG_FILE", "/tmp/gosh-onboarding.log"),
		LogLevel: parseLogLevel(getEnv("GOSH_LOG_LEVEL", "INFO")),
	}

	if path := os.Getenv("GOSH_ONBOARDING_CONFIG"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	return cfg, nil
}

// applyFile overlays YAML values onto an already-populated config.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
