// ABOUTME: Configuration loading and parsing for gigs-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// MinAdminSecretLength is the shortest accepted auth.admin_secret.
const MinAdminSecretLength = 32

// Config represents the complete gigs-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Cache    CacheConfig    `yaml:"cache" toml:"cache"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the listener configuration
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
	// AllowedOrigins are host patterns accepted on the websocket upgrade.
	// Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// CacheConfig holds the optional Redis identity cache configuration
type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr" toml:"redis_addr"`
	TTL       time.Duration `yaml:"-" toml:"-"`

	TTLRaw string `yaml:"ttl" toml:"ttl"`
}

// Enabled reports whether a Redis address is configured.
func (c CacheConfig) Enabled() bool {
	return c.RedisAddr != ""
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// AdminSecret signs operator API tokens. The admin API is disabled when empty.
	AdminSecret string `yaml:"admin_secret" toml:"admin_secret"`

	LookupTimeout time.Duration `yaml:"-" toml:"-"`
	MaxTokenAge   time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	LookupTimeoutRaw string `yaml:"lookup_timeout" toml:"lookup_timeout"`
	MaxTokenAgeRaw   string `yaml:"max_token_age" toml:"max_token_age"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: "127.0.0.1:8080"},
		Database: DatabaseConfig{Path: "gigs.db"},
		Cache:    CacheConfig{TTL: 5 * time.Minute},
		Auth:     AuthConfig{LookupTimeout: 5 * time.Second},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// DefaultPath returns the config file location used when no --config flag is given:
// GIGS_CONFIG, then $XDG_CONFIG_HOME/gigs/gateway.yaml, then ~/.config/gigs/gateway.yaml.
func DefaultPath() string {
	if p := os.Getenv("GIGS_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gigs", "gateway.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "gateway.yaml"
	}
	return filepath.Join(home, ".config", "gigs", "gateway.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.AdminSecret != "" && len(c.Auth.AdminSecret) < MinAdminSecretLength {
		return fmt.Errorf("auth.admin_secret must be at least %d bytes", MinAdminSecretLength)
	}

	if c.Auth.LookupTimeout <= 0 {
		return fmt.Errorf("auth.lookup_timeout must be positive")
	}
	if c.Auth.MaxTokenAge < 0 {
		return fmt.Errorf("auth.max_token_age must not be negative")
	}
	if c.Cache.Enabled() && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when cache.redis_addr is set")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"cache.ttl", cfg.Cache.TTLRaw, &cfg.Cache.TTL},
		{"auth.lookup_timeout", cfg.Auth.LookupTimeoutRaw, &cfg.Auth.LookupTimeout},
		{"auth.max_token_age", cfg.Auth.MaxTokenAgeRaw, &cfg.Auth.MaxTokenAge},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
