package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort        = 8080
	DefaultTickInterval    = time.Minute
	DefaultStreamInterval  = 5 * time.Second
	DefaultStoragePath     = "releasedeck.db"
	DefaultProbeDelayMin   = 5
	DefaultAnalysisTimeout = 10 * time.Second
)

// Config is the top-level releasedeck configuration. Fields map 1:1 to
// config.example.yaml.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Analysis  AnalysisConfig  `yaml:"analysis"`

	// Services is the list of deployed endpoints to monitor.
	Services []Service `yaml:"services"`
}

// ServerConfig holds the HTTP API and dashboard stream settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket stream listen on.
	HTTPPort int `yaml:"http_port"`

	// Auth configures API authentication for mutating endpoints.
	Auth AuthConfig `yaml:"auth"`

	// StreamInterval controls how often the dashboard stream broadcasts
	// the current portal snapshot.
	StreamInterval time.Duration `yaml:"stream_interval"`
}

// AuthConfig configures REST API authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header carrying the key. Defaults to
	// "x-releasedeck-key".
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable holding the expected
	// API key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name or its default.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header == "" {
		return "x-releasedeck-key"
	}
	return a.Header
}

// StorageConfig configures the SQLite persistence backend.
type StorageConfig struct {
	// Path is the filesystem path of the SQLite database file.
	Path string `yaml:"path"`
}

// SchedulerConfig holds the background worker settings.
type SchedulerConfig struct {
	// TickInterval is the period of the scheduler loop that drains the
	// deferred work queue and probes monitored services.
	TickInterval time.Duration `yaml:"tick_interval"`
}

// AnalysisConfig points at the external quality analysis source used to
// complete deferred quality audits.
type AnalysisConfig struct {
	// URL is the base URL of the analysis server. Empty disables deferred
	// audit completion.
	URL string `yaml:"url"`

	// TokenEnv is the name of the environment variable holding the bearer
	// token for the analysis API.
	TokenEnv string `yaml:"token_env"`

	// AcceptInvalidCertificate disables TLS verification for the analysis
	// server. Only for internal CAs in development environments.
	AcceptInvalidCertificate bool `yaml:"accept_invalid_certificate"`

	// Timeout bounds each analysis API call.
	Timeout time.Duration `yaml:"timeout"`
}

// Token returns the analysis bearer token resolved from the environment.
func (a AnalysisConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Service describes one monitored deployed endpoint.
type Service struct {
	// ID is a unique identifier for this service.
	ID string `yaml:"id"`

	// Label is the human-readable name shown on the dashboard.
	Label string `yaml:"label"`

	// Category groups services on the dashboard (e.g. "production").
	Category string `yaml:"category"`

	// URL is the endpoint probed for availability.
	URL string `yaml:"url"`

	// EnableMonitoring turns periodic probing on.
	EnableMonitoring bool `yaml:"enable_monitoring"`

	// DelayMonitoringMinutes is the minimum time between two probes.
	DelayMonitoringMinutes int `yaml:"delay_monitoring_minutes"`

	// AcceptInvalidCertificate probes HTTPS endpoints without verifying
	// the certificate chain.
	AcceptInvalidCertificate bool `yaml:"accept_invalid_certificate"`
}

// MonitoringAvailable reports whether the service should be probed at all.
func (s Service) MonitoringAvailable() bool {
	return s.EnableMonitoring && s.URL != ""
}

// Load reads and parses the YAML config file at path. Missing optional
// fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applyServiceDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:       DefaultHTTPPort,
			StreamInterval: DefaultStreamInterval,
		},
		Storage: StorageConfig{
			Path: DefaultStoragePath,
		},
		Scheduler: SchedulerConfig{
			TickInterval: DefaultTickInterval,
		},
		Analysis: AnalysisConfig{
			Timeout: DefaultAnalysisTimeout,
		},
	}
}

func applyServiceDefaults(cfg *Config) {
	for i := range cfg.Services {
		if cfg.Services[i].DelayMonitoringMinutes <= 0 {
			cfg.Services[i].DelayMonitoringMinutes = DefaultProbeDelayMin
		}
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d out of range", cfg.Server.HTTPPort)
	}
	if cfg.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler.tick_interval must be positive")
	}
	if cfg.Server.StreamInterval <= 0 {
		return fmt.Errorf("server.stream_interval must be positive")
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode: unknown mode %q", cfg.Server.Auth.Mode)
	}
	if cfg.Analysis.URL != "" {
		if _, err := url.Parse(cfg.Analysis.URL); err != nil {
			return fmt.Errorf("analysis.url: %w", err)
		}
	}

	seen := make(map[string]bool, len(cfg.Services))
	for i, svc := range cfg.Services {
		if svc.ID == "" {
			return fmt.Errorf("services[%d]: id is required", i)
		}
		if seen[svc.ID] {
			return fmt.Errorf("services[%d]: duplicate id %q", i, svc.ID)
		}
		seen[svc.ID] = true
		if svc.EnableMonitoring && svc.URL == "" {
			return fmt.Errorf("services[%d] %q: url is required when monitoring is enabled", i, svc.ID)
		}
	}
	return nil
}
