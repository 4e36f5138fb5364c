package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/asegarra/lostfound/internal/leader"
)

// Config represents the application configuration.
type Config struct {
	Database       DatabaseConfig  `yaml:"database"`
	Server         ServerConfig    `yaml:"server"`
	Telemetry      TelemetryConfig `yaml:"telemetry"`
	Policy         PolicyConfig    `yaml:"policy"`
	LeaderElection leader.Config   `yaml:"leader_election"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // only "postgres" is registered
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ServerConfig holds HTTP server settings for the health endpoints.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// PolicyConfig holds matching and disposition policy knobs.
type PolicyConfig struct {
	// MatchThreshold is the minimum score at which a candidate pair is
	// surfaced or persisted.
	MatchThreshold int `yaml:"match_threshold"`
	// DateWindowDays is the half-width of the discovery-date pre-filter
	// window used when searching for candidate items.
	DateWindowDays int `yaml:"date_window_days"`
	// MinAgeDays is the unclaimed age after which a stored found item
	// becomes eligible for disposition.
	MinAgeDays int `yaml:"min_age_days"`
	// SweepInterval is how often the disposition sweep runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "postgres",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "lostfound",
			ServiceVersion: "0.1.0",
		},
		Policy: PolicyConfig{
			MatchThreshold: 30,
			DateWindowDays: 7,
			MinAgeDays:     730,
			SweepInterval:  24 * time.Hour,
		},
		LeaderElection: leader.Defaults(),
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.Policy.MatchThreshold < 0 || c.Policy.MatchThreshold > 100 {
		return fmt.Errorf("match_threshold %d out of range [0,100]", c.Policy.MatchThreshold)
	}
	if c.Policy.DateWindowDays < 0 {
		return fmt.Errorf("date_window_days must not be negative")
	}
	if c.Policy.MinAgeDays <= 0 {
		return fmt.Errorf("min_age_days must be positive")
	}
	return nil
}
