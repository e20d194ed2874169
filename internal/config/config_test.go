// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
server:
  addr: "0.0.0.0:9000"
  allowed_origins:
    - "*.example.com"

database:
  path: "./test.db"

cache:
  redis_addr: "localhost:6379"
  ttl: "30s"

auth:
  admin_secret: "`+testSecret+`"
  lookup_timeout: "2s"
  max_token_age: "720h"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, []string{"*.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "./test.db", cfg.Database.Path)
	assert.True(t, cfg.Cache.Enabled())
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, testSecret, cfg.Auth.AdminSecret)
	assert.Equal(t, 2*time.Second, cfg.Auth.LookupTimeout)
	assert.Equal(t, 720*time.Hour, cfg.Auth.MaxTokenAge)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_ValidTOML(t *testing.T) {
	path := writeConfig(t, "gateway.toml", `
[server]
addr = "127.0.0.1:7000"

[database]
path = "gigs.db"

[auth]
lookup_timeout = "750ms"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
	assert.Equal(t, 750*time.Millisecond, cfg.Auth.LookupTimeout)
	assert.Zero(t, cfg.Auth.MaxTokenAge)
	assert.False(t, cfg.Cache.Enabled())
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", "database:\n  path: x.db\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Server.Addr, cfg.Server.Addr)
	assert.Equal(t, def.Auth.LookupTimeout, cfg.Auth.LookupTimeout)
	assert.Equal(t, def.Cache.TTL, cfg.Cache.TTL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Empty(t, cfg.Auth.AdminSecret)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("GIGS_TEST_SECRET", testSecret)
	t.Setenv("GIGS_TEST_DB", "/tmp/from-env.db")

	path := writeConfig(t, "gateway.yaml", `
database:
  path: "${GIGS_TEST_DB}"
auth:
  admin_secret: "${GIGS_TEST_SECRET}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env.db", cfg.Database.Path)
	assert.Equal(t, testSecret, cfg.Auth.AdminSecret)
}

func TestExpandEnvVars_Unset(t *testing.T) {
	assert.Equal(t, "a--b", expandEnvVars("a-${GIGS_SURELY_UNSET_VAR}-b"))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"bad yaml", "c.yaml", "server: [", "parsing config file"},
		{"bad toml", "c.toml", "[server\naddr=", "parsing config file"},
		{"bad duration", "c.yaml", "auth:\n  lookup_timeout: soon\n", "auth.lookup_timeout"},
		{"empty addr", "c.yaml", "server:\n  addr: \"\"\n", "server.addr is required"},
		{"empty db", "c.yaml", "database:\n  path: \"\"\n", "database.path is required"},
		{"short secret", "c.yaml", "auth:\n  admin_secret: short\n", "auth.admin_secret"},
		{"negative age", "c.yaml", "auth:\n  max_token_age: -1h\n", "auth.max_token_age"},
		{"zero timeout", "c.yaml", "auth:\n  lookup_timeout: 0s\n", "auth.lookup_timeout"},
		{"cache without ttl", "c.yaml", "cache:\n  redis_addr: localhost:6379\n  ttl: 0s\n", "cache.ttl"},
		{"bad level", "c.yaml", "logging:\n  level: loud\n", "logging.level"},
		{"bad format", "c.yaml", "logging:\n  format: xml\n", "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultPath(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv("GIGS_CONFIG", "/etc/gigs.yaml")
		assert.Equal(t, "/etc/gigs.yaml", DefaultPath())
	})

	t.Run("xdg", func(t *testing.T) {
		t.Setenv("GIGS_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		assert.Equal(t, filepath.Join("/xdg", "gigs", "gateway.yaml"), DefaultPath())
	})
}
