package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icgateway/internal/config"
	"icgateway/internal/constants"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, constants.DefaultNetworkURL, cfg.NetworkURL)
	assert.True(t, cfg.FetchRootKey)
	assert.Equal(t, 200*time.Millisecond, cfg.PollingInterval)
	assert.Equal(t, constants.DefaultRedisURL, cfg.RedisURL)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv(config.EnvPollingInterval, "1s")
	t.Setenv(config.EnvFetchRootKey, "false")
	t.Setenv(config.EnvRedisURL, "redis://cache:6379/2")
	t.Setenv(config.EnvAllowedOrigins, "https://a.example, ,https://b.example")

	cfg, err := config.Load("", []string{"-listen", "0.0.0.0:9000", "-polling-interval", "500ms"})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.Equal(t, 500*time.Millisecond, cfg.PollingInterval, "flags override the environment")
	assert.False(t, cfg.FetchRootKey)
	assert.Equal(t, "redis://cache:6379/2", cfg.RedisURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadDotEnv(t *testing.T) {
	// godotenv never overrides variables that are already set, so make sure
	// the key is absent before loading.
	os.Unsetenv(config.EnvNetworkURL)
	t.Cleanup(func() { os.Unsetenv(config.EnvNetworkURL) })

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(config.EnvNetworkURL+"=https://ic0.app\n"), 0o600))

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://ic0.app", cfg.NetworkURL)
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"), nil)
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty listen address", func(c *config.Config) { c.ListenAddr = " " }},
		{"bad network url", func(c *config.Config) { c.NetworkURL = "not a url" }},
		{"zero polling interval", func(c *config.Config) { c.PollingInterval = 0 }},
		{"negative call timeout", func(c *config.Config) { c.CallTimeout = -time.Second }},
		{"zero session ttl", func(c *config.Config) { c.SessionTTL = 0 }},
		{"zero connection limit", func(c *config.Config) { c.MaxConnectionsPerIP = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, config.Default().Validate())
}
