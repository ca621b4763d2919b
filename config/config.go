// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"maps"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // timezone names resolve without a system zoneinfo

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Routing RoutingConfig  `yaml:"routing"`
	Logging LoggingConfig  `yaml:"logging"`
	Metrics MetricsConfig  `yaml:"metrics"`
	CORS    CORSConfig     `yaml:"cors"`
	App     map[string]any `yaml:"app"` // free-form settings read by modules
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RoutingConfig configures route table compilation.
type RoutingConfig struct {
	// Predictive404 enables the guard that answers 404 as soon as no
	// compiled route can match the path.
	Predictive404 bool `yaml:"predictive_404"`
	// Predictive404Priority places the guard before the first router whose
	// priority is below it. Unset means after the last router.
	Predictive404Priority *float64 `yaml:"predictive_404_priority"`
}

// Threshold returns the guard placement priority; +Inf when unset.
func (r RoutingConfig) Threshold() float64 {
	if r.Predictive404Priority == nil {
		return math.Inf(1)
	}
	return *r.Predictive404Priority
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // "debug", "info", "warn", "error"
	Format   string `yaml:"format"`   // "json" or "console"
	Timezone string `yaml:"timezone"` // IANA name used for timestamps
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// CORSConfig configures the open default policy used when neither a route nor
// its router declares one.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// Clone returns a deep copy. Modules receive clones so they cannot change
// what other modules see.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	if c.Routing.Predictive404Priority != nil {
		p := *c.Routing.Predictive404Priority
		out.Routing.Predictive404Priority = &p
	}
	out.CORS.AllowedOrigins = slices.Clone(c.CORS.AllowedOrigins)
	out.CORS.AllowedHeaders = slices.Clone(c.CORS.AllowedHeaders)
	out.App = cloneMap(c.App)
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]string:
		return maps.Clone(x)
	case []string:
		return slices.Clone(x)
	}
	return v
}

// AppString returns a string setting from the app section.
func (c *Config) AppString(key, def string) string {
	if v, ok := c.App[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds configuration from YAML bytes, then applies environment
// overrides, defaults and validation.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	MODGATE_SERVER_HOST              - Server host (default: 0.0.0.0)
//	MODGATE_SERVER_PORT              - Server port (default: 8080)
//	MODGATE_SERVER_MAX_BODY_BYTES    - Request body limit (default: 1MiB)
//	MODGATE_PREDICTIVE_404           - Enable the predictive 404 guard
//	MODGATE_PREDICTIVE_404_PRIORITY  - Guard placement priority ("inf" allowed)
//	MODGATE_LOG_LEVEL                - Log level: debug, info, warn, error (default: info)
//	MODGATE_LOG_FORMAT               - Log format: json or console (default: json)
//	MODGATE_LOG_TIMEZONE             - Timezone for timestamps (default: UTC)
//	MODGATE_METRICS_ENABLED          - Enable /metrics endpoint
//	MODGATE_METRICS_PATH             - Metrics path (default: /metrics)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads the file when it exists and falls back to the
// environment otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies MODGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("MODGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("MODGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MODGATE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("MODGATE_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if v := os.Getenv("MODGATE_SERVER_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxBodyBytes = n
		}
	}

	// Routing configuration
	if v := os.Getenv("MODGATE_PREDICTIVE_404"); v != "" {
		cfg.Routing.Predictive404 = parseBool(v)
	}
	if v := os.Getenv("MODGATE_PREDICTIVE_404_PRIORITY"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.Routing.Predictive404Priority = &f
		}
	}

	// Logging configuration
	if v := os.Getenv("MODGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MODGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("MODGATE_LOG_TIMEZONE"); v != "" {
		cfg.Logging.Timezone = v
	}

	// Metrics configuration
	if v := os.Getenv("MODGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("MODGATE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Timezone == "" {
		cfg.Logging.Timezone = "UTC"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must not be negative")
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}
	if _, err := time.LoadLocation(cfg.Logging.Timezone); err != nil {
		return fmt.Errorf("logging.timezone: %w", err)
	}

	if p := cfg.Routing.Predictive404Priority; p != nil && math.IsNaN(*p) {
		return fmt.Errorf("routing.predictive_404_priority must be a number")
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}

	return nil
}
