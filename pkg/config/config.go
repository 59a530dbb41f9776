package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the report engine.
// Configuration can come from a YAML file (config.yaml) or environment
// variables; environment variables override YAML values. Secrets
// (passwords) must only come from environment variables.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8091"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Engine bookkeeping database (job and history records)
	Database DatabaseConfig `yaml:"database"`

	// Backing data store the reports read from
	Source SourceConfig `yaml:"source"`

	// Blob store for generated report files
	Redis RedisConfig `yaml:"redis"`

	// Discovery, scoring, and report execution tuning
	Discovery DiscoveryConfig `yaml:"discovery"`
	Report    ReportConfig    `yaml:"report"`
	Scoring   ScoringConfig   `yaml:"scoring"`
}

// DatabaseConfig holds the engine-owned PostgreSQL configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"salary_reports"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"salary_reports"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// SourceConfig holds connection parameters for the backing data store.
// Type selects the dialect client: "postgres" or "mssql".
type SourceConfig struct {
	Type     string `yaml:"type" env:"SOURCE_TYPE" env-default:"postgres"`
	Host     string `yaml:"host" env:"SOURCE_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"SOURCE_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"SOURCE_USER" env-default:"salary_system"`
	Password string `yaml:"-" env:"SOURCE_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"SOURCE_DATABASE" env-default:"salary_system"`
	SSLMode  string `yaml:"ssl_mode" env:"SOURCE_SSLMODE" env-default:"prefer"`
}

// RedisConfig holds blob store configuration. An empty host disables Redis
// and falls back to the in-memory blob store.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	// FileTTLHours is how long generated report files stay downloadable.
	FileTTLHours int `yaml:"file_ttl_hours" env:"REDIS_FILE_TTL_HOURS" env-default:"72"`
}

// DiscoveryConfig tunes relation discovery and probing.
type DiscoveryConfig struct {
	// EnableErrorProbe opts into the error-message-scraping strategy.
	// Disabled by default: it issues deliberately failing probes.
	EnableErrorProbe bool `yaml:"enable_error_probe" env:"DISCOVERY_ENABLE_ERROR_PROBE" env-default:"false"`
	// ProbeTimeoutSeconds bounds each individual backend probe.
	ProbeTimeoutSeconds int `yaml:"probe_timeout_seconds" env:"DISCOVERY_PROBE_TIMEOUT_SECONDS" env-default:"10"`
	// ProbeRetries is the bounded retry count for a failed probe.
	ProbeRetries int `yaml:"probe_retries" env:"DISCOVERY_PROBE_RETRIES" env-default:"2"`
	// MaxConcurrentProbes bounds in-flight candidate analyses during scoring.
	MaxConcurrentProbes int `yaml:"max_concurrent_probes" env:"DISCOVERY_MAX_CONCURRENT_PROBES" env-default:"3"`
	// CuratedRelations overrides the built-in curated candidate list.
	CuratedRelations []string `yaml:"curated_relations" env:"DISCOVERY_CURATED_RELATIONS"`
}

// ReportConfig tunes report job execution.
type ReportConfig struct {
	// FetchRowCap bounds rows fetched per report (memory and file size).
	FetchRowCap int `yaml:"fetch_row_cap" env:"REPORT_FETCH_ROW_CAP" env-default:"1000"`
	// SampleRowLimit is the default sample size for column inference.
	SampleRowLimit int `yaml:"sample_row_limit" env:"REPORT_SAMPLE_ROW_LIMIT" env-default:"1"`
	// MaxConcurrentJobs bounds simultaneously running report jobs.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs" env:"REPORT_MAX_CONCURRENT_JOBS" env-default:"2"`
	// DropZeroColumns omits numeric columns that are zero in every row of
	// CSV output, matching the legacy export behavior.
	DropZeroColumns bool `yaml:"drop_zero_columns" env:"REPORT_DROP_ZERO_COLUMNS" env-default:"false"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. A missing config.yaml is fine: env vars and defaults apply.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.Scoring.ApplyDefaults()

	return cfg, nil
}
