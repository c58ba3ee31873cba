// Package config loads TOML configuration for an intercepting server and turns it
// into a middleware chain.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/sintercept/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='SINTERCEPT_CONFIG'"`
	Host     string `kong:"help='Listen host (overrides config).',env='SINTERCEPT_HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='SINTERCEPT_PORT'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='SINTERCEPT_LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
	Trace     TraceConfig     `toml:"trace"`
	ClientIP  ClientIPConfig  `toml:"client_ip"`
	CORS      CORSConfig      `toml:"cors"`
	Auth      AuthConfig      `toml:"auth"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Throttle  ThrottleConfig  `toml:"throttle"`
	Metrics   MetricsConfig   `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"` // 0 means "use default" (8080)
	BodyMaxBytes   int64  `toml:"body_max_bytes"`
	TimeoutSeconds int    `toml:"timeout_seconds"` // 0 disables the request timeout
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // json or console
}

// TraceConfig controls trace ID assignment.
type TraceConfig struct {
	Enabled bool `toml:"enabled"`
}

// ClientIPConfig controls how the client address is resolved.
type ClientIPConfig struct {
	Source       string `toml:"source"` // remote_addr, x_forwarded_for, x_real_ip or custom_header
	CustomHeader string `toml:"custom_header"`
	TrustProxy   bool   `toml:"trust_proxy"`
}

// CORSConfig holds Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	Enabled          bool     `toml:"enabled"`
	AllowOrigins     []string `toml:"allow_origins"`
	AllowMethods     []string `toml:"allow_methods"`
	AllowHeaders     []string `toml:"allow_headers"`
	ExposeHeaders    []string `toml:"expose_headers"`
	AllowCredentials bool     `toml:"allow_credentials"`
	MaxAgeSeconds    int      `toml:"max_age_seconds"`
}

// AuthConfig selects an authentication scheme. An empty Type disables authentication.
type AuthConfig struct {
	Type    string            `toml:"type"` // basic, bearer or api_key
	Users   map[string]string `toml:"users"`
	Tokens  []string          `toml:"tokens"`
	APIKeys []string          `toml:"api_keys"`
	Header  string            `toml:"header"`
	Query   string            `toml:"query"`
}

// RateLimitConfig controls per-client request rejection.
type RateLimitConfig struct {
	Enabled       bool   `toml:"enabled"`
	Limit         int    `toml:"limit"`
	WindowSeconds int    `toml:"window_seconds"`
	Bucket        string `toml:"bucket"`
}

// ThrottleConfig controls per-client request pacing.
type ThrottleConfig struct {
	Enabled           bool `toml:"enabled"`
	RequestsPerSecond int  `toml:"requests_per_second"`
	Slack             int  `toml:"slack"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Path      string `toml:"path"`
	Namespace string `toml:"namespace"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or SINTERCEPT_CONFIG), it searches
// /etc/sintercept/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfigInPaths(configSearchPaths)
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return cfg, nil
}

// Parse decodes TOML without validation or defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0-65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Server.TimeoutSeconds < 0 {
		return fmt.Errorf("server.timeout_seconds must be non-negative; got %d", c.Server.TimeoutSeconds)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console", "":
	default:
		return fmt.Errorf("log.format must be one of: json, console; got %q", c.Log.Format)
	}

	switch c.ClientIP.Source {
	case "", "remote_addr", "x_forwarded_for", "x_real_ip":
	case "custom_header":
		if c.ClientIP.CustomHeader == "" {
			return fmt.Errorf("client_ip.custom_header is required when client_ip.source is custom_header")
		}
	default:
		return fmt.Errorf("client_ip.source must be one of: remote_addr, x_forwarded_for, x_real_ip, custom_header; got %q", c.ClientIP.Source)
	}

	if c.CORS.Enabled && len(c.CORS.AllowOrigins) == 0 {
		return fmt.Errorf("cors.allow_origins must not be empty when CORS is enabled")
	}

	switch c.Auth.Type {
	case "":
	case "basic":
		if len(c.Auth.Users) == 0 {
			return fmt.Errorf("auth.users must not be empty for basic auth")
		}
	case "bearer":
		if len(c.Auth.Tokens) == 0 {
			return fmt.Errorf("auth.tokens must not be empty for bearer auth")
		}
	case "api_key":
		if len(c.Auth.APIKeys) == 0 {
			return fmt.Errorf("auth.api_keys must not be empty for api_key auth")
		}
		if c.Auth.Header == "" && c.Auth.Query == "" {
			return fmt.Errorf("auth.header or auth.query is required for api_key auth")
		}
	default:
		return fmt.Errorf("auth.type must be one of: basic, bearer, api_key; got %q", c.Auth.Type)
	}

	if c.RateLimit.Enabled && (c.RateLimit.Limit <= 0 || c.RateLimit.WindowSeconds <= 0) {
		return fmt.Errorf("rate_limit.limit and rate_limit.window_seconds must be > 0 when rate limiting is enabled")
	}
	if c.Throttle.Enabled && c.Throttle.RequestsPerSecond <= 0 {
		return fmt.Errorf("throttle.requests_per_second must be > 0 when throttling is enabled; got %d", c.Throttle.RequestsPerSecond)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" && c.Metrics.Path[0] != '/' {
		return fmt.Errorf("metrics.path must start with '/'; got %q", c.Metrics.Path)
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.ClientIP.Source == "" {
		c.ClientIP.Source = "x_forwarded_for"
		c.ClientIP.TrustProxy = true
	}
	if c.RateLimit.Bucket == "" {
		c.RateLimit.Bucket = "global"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Timeout returns the request timeout, zero when disabled.
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// FilePath returns the file the configuration was loaded from.
func (c *Config) FilePath() string {
	return c.filePath
}

// NewLogger builds a zap logger from the log settings.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if strings.ToLower(cfg.Format) == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("config: log level: %w", err)
	}
	zcfg.Level = lvl

	return zcfg.Build()
}
