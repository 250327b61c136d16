// Package config loads LeadPipe settings from an optional YAML file and the
// environment, and decodes seed fixtures.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/LeadPipe/internal/util"
)

// Defaults
const (
	DefaultAPIAddr         = ":8080"
	DefaultDeliveryLatency = 2 * time.Second
	DefaultSweepSchedule   = "* * * * *"
	DefaultJobPollInterval = time.Second
	DefaultCompanyFallback = "sua empresa"
	// DefaultDBFileName is the SQLite file created in the state directory
	// when no DATABASE_URL is given and persistence is requested.
	DefaultDBFileName = "leadpipe.db"
)

// Config holds the service configuration.
type Config struct {
	StateDir   string           `yaml:"state_dir"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Automation AutomationConfig `yaml:"automation"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig configures the entity store.
type StorageConfig struct {
	// DatabaseURL is a Postgres URL, a SQLite file path, or "memory".
	DatabaseURL string `yaml:"database_url"`
	// DurableJobs schedules message transitions as database jobs.
	DurableJobs     bool          `yaml:"durable_jobs"`
	JobPollInterval time.Duration `yaml:"job_poll_interval"`
}

// AutomationConfig configures the message lifecycle.
type AutomationConfig struct {
	DeliveryLatency time.Duration `yaml:"delivery_latency"`
	SweepSchedule   string        `yaml:"sweep_schedule"`
	CompanyFallback string        `yaml:"company_fallback"`
	// SeedFile replaces the embedded default fixtures.
	SeedFile string `yaml:"seed_file"`
}

// DefaultStateDir returns $XDG_DATA_HOME/leadpipe.
func DefaultStateDir() string {
	return filepath.Join(xdg.DataHome, "leadpipe")
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StateDir: DefaultStateDir(),
		Server:   ServerConfig{Addr: DefaultAPIAddr},
		Storage:  StorageConfig{JobPollInterval: DefaultJobPollInterval},
		Automation: AutomationConfig{
			DeliveryLatency: DefaultDeliveryLatency,
			SweepSchedule:   DefaultSweepSchedule,
			CompanyFallback: DefaultCompanyFallback,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (when path
// is not empty) and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read configuration file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
		}
		slog.Debug("config.Load: configuration file loaded", "path", path)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from LEADPIPE_* and related environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LEADPIPE_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.DatabaseURL = v
	}
	c.Storage.DurableJobs = util.ParseBoolEnv("LEADPIPE_DURABLE_JOBS", c.Storage.DurableJobs)
	c.Storage.JobPollInterval = util.ParseDurationEnv("LEADPIPE_JOB_POLL_INTERVAL", c.Storage.JobPollInterval)
	c.Automation.DeliveryLatency = util.ParseDurationEnv("LEADPIPE_DELIVERY_LATENCY", c.Automation.DeliveryLatency)
	if v := os.Getenv("LEADPIPE_SWEEP_SCHEDULE"); v != "" {
		c.Automation.SweepSchedule = v
	}
	if v := os.Getenv("LEADPIPE_COMPANY_FALLBACK"); v != "" {
		c.Automation.CompanyFallback = v
	}
	if v := os.Getenv("LEADPIPE_SEED_FILE"); v != "" {
		c.Automation.SeedFile = v
	}
	slog.Debug("config.ApplyEnv: environment applied",
		"state_dir", c.StateDir,
		"api_addr", c.Server.Addr,
		"database_url_set", c.Storage.DatabaseURL != "",
		"durable_jobs", c.Storage.DurableJobs,
		"delivery_latency", c.Automation.DeliveryLatency,
		"sweep_schedule", c.Automation.SweepSchedule)
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	var errs []error
	if c.StateDir == "" {
		errs = append(errs, errors.New("state_dir is required"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Automation.DeliveryLatency < 0 {
		errs = append(errs, errors.New("automation.delivery_latency must be non-negative"))
	}
	if c.Storage.DurableJobs && c.Storage.JobPollInterval <= 0 {
		errs = append(errs, errors.New("storage.job_poll_interval must be positive"))
	}
	return errors.Join(errs...)
}

// StoreDSN returns the DSN for the entity store. "memory" selects the
// in-memory store; an empty DatabaseURL uses SQLite in the state directory.
func (c Config) StoreDSN() string {
	switch c.Storage.DatabaseURL {
	case "memory":
		return ""
	case "":
		return filepath.Join(c.StateDir, DefaultDBFileName)
	}
	return c.Storage.DatabaseURL
}
