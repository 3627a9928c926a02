package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 25, cfg.Answer.MaxContextRows)
	assert.Equal(t, 5, cfg.Answer.MaxExecutives)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
environment: production
server:
  port: 9100
cache:
  backend: none
embedding:
  provider: mock
  dimension: 384
answer:
  stream_delay: 5ms
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	t.Setenv("RIA_HUNTER_GENERATION_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("RIA_HUNTER_PORT", "9200")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "none", cfg.Cache.Backend)
	assert.Equal(t, "mock", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 5*time.Millisecond, cfg.Answer.StreamDelay)
	assert.Equal(t, "anthropic", cfg.Generation.Provider)
	assert.Equal(t, "sk-ant-test", cfg.Generation.APIKey)
}

func TestLoad_RedisURLSwitchesBackend(t *testing.T) {
	t.Setenv("RIA_HUNTER_REDIS_URL", "redis://cache:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "cache:6379", cfg.Cache.Redis.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad environment", func(c *Config) { c.Environment = "staging" }, "invalid environment"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"bad cache", func(c *Config) { c.Cache.Backend = "memcached" }, "invalid cache backend"},
		{"bad embedding provider", func(c *Config) { c.Embedding.Provider = "vertex" }, "invalid embedding provider"},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }, "embedding dimension"},
		{"bad generation provider", func(c *Config) { c.Generation.Provider = "gemini" }, "invalid generation provider"},
		{"limit above max", func(c *Config) { c.Retrieval.DefaultLimit = 500 }, "default_limit"},
		{"zero stream buffer", func(c *Config) { c.Answer.StreamBuffer = 0 }, "stream_buffer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}
