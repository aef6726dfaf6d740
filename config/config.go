package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// IngestConfig drives the ingestion scheduler and the normalization rules.
type IngestConfig struct {
	Enabled               bool          `yaml:"enabled"`
	IntervalSeconds       int           `yaml:"interval_seconds"`
	Interval              time.Duration `yaml:"-"` // Ignored by YAML parser
	Concurrency           int           `yaml:"concurrency"`
	SourceTimeoutSeconds  int           `yaml:"source_timeout_seconds"`
	SourceTimeout         time.Duration `yaml:"-"`
	RetentionPastMonths   int           `yaml:"retention_past_months"`
	RetentionFutureMonths int           `yaml:"retention_future_months"`
	Timezone              string        `yaml:"timezone"`

	// SourcePriority is the explicit authority ranking used when conflicting
	// observations tie on completeness and recency; earlier means more
	// authoritative. Sources not listed rank below every listed one.
	SourcePriority []string       `yaml:"source_priority"`
	Sources        []SourceConfig `yaml:"sources"`
}

// SourceConfig defines one HTTP feed to ingest.
type SourceConfig struct {
	ID       string            `yaml:"id"`
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	PageSize int               `yaml:"page_size"`
}

// SchedulerConfig holds the scheduling-platform client settings and the
// service-time defaults used to derive turnover appointments.
type SchedulerConfig struct {
	BaseURL              string        `yaml:"base_url"`
	APIToken             string        `yaml:"api_token"`
	TimeoutSeconds       int           `yaml:"timeout_seconds"`
	Timeout              time.Duration `yaml:"-"`
	DefaultServiceTime   string        `yaml:"default_service_time"`
	AuditIntervalSeconds int           `yaml:"audit_interval_seconds"`
	AuditInterval        time.Duration `yaml:"-"`
}

// WorkerPoolConfig sizes the schedule-sync worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Ingest.IntervalSeconds <= 0 {
		cfg.Ingest.IntervalSeconds = 300
	}
	cfg.Ingest.Interval = time.Duration(cfg.Ingest.IntervalSeconds) * time.Second

	if cfg.Ingest.Concurrency <= 0 {
		cfg.Ingest.Concurrency = 10
	}

	if cfg.Ingest.SourceTimeoutSeconds <= 0 {
		cfg.Ingest.SourceTimeoutSeconds = 30
	}
	cfg.Ingest.SourceTimeout = time.Duration(cfg.Ingest.SourceTimeoutSeconds) * time.Second

	if cfg.Ingest.RetentionPastMonths <= 0 {
		cfg.Ingest.RetentionPastMonths = 3
	}
	if cfg.Ingest.RetentionFutureMonths <= 0 {
		cfg.Ingest.RetentionFutureMonths = 18
	}

	if cfg.Ingest.Timezone == "" {
		cfg.Ingest.Timezone = "UTC"
	}

	seen := make(map[string]bool, len(cfg.Ingest.Sources))
	kept := cfg.Ingest.Sources[:0]
	for _, src := range cfg.Ingest.Sources {
		if seen[src.ID] {
			log.Printf("ingest.sources: duplicate source id %q dropped", src.ID)
			continue
		}
		seen[src.ID] = true
		kept = append(kept, src)
	}
	cfg.Ingest.Sources = kept

	for i := range cfg.Ingest.Sources {
		if cfg.Ingest.Sources[i].PageSize <= 0 {
			cfg.Ingest.Sources[i].PageSize = 100
		}
	}

	if cfg.Scheduler.TimeoutSeconds <= 0 {
		cfg.Scheduler.TimeoutSeconds = 30
	}
	cfg.Scheduler.Timeout = time.Duration(cfg.Scheduler.TimeoutSeconds) * time.Second

	if cfg.Scheduler.DefaultServiceTime == "" {
		cfg.Scheduler.DefaultServiceTime = "10:00"
	}

	if cfg.Scheduler.AuditIntervalSeconds <= 0 {
		cfg.Scheduler.AuditIntervalSeconds = 3600
	}
	cfg.Scheduler.AuditInterval = time.Duration(cfg.Scheduler.AuditIntervalSeconds) * time.Second

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
