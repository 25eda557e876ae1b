package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chanhist.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	conf, err := Load("", false)
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".chanhist", "channels"), conf.Storage.Root)
	assert.Equal(t, "127.0.0.1:5002", conf.Addr())
	assert.Equal(t, 30*time.Second, conf.Transport.Timeout)
	assert.Equal(t, time.Minute, conf.Sync.Interval)
	assert.Empty(t, conf.Sync.Peers)
	assert.Equal(t, "info", conf.Logger.Level)
	assert.True(t, conf.Cache.Enabled)
	assert.Equal(t, 16, conf.Cache.Size)
	assert.False(t, conf.Metrics.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
storage:
  root: /var/lib/chanhist
server:
  host: 0.0.0.0
  port: 6000
transport:
  proxy: socks5h://127.0.0.1:9050
  timeout: 90s
sync:
  interval: 5m
  peers:
    - abc.onion:5002
    - 10.0.0.2:5002
logger:
  level: warn
cache:
  enabled: false
metrics:
  enabled: true
`)
	conf, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, path, conf.Path)
	assert.Equal(t, "/var/lib/chanhist", conf.Storage.Root)
	assert.Equal(t, "0.0.0.0:6000", conf.Addr())
	assert.Equal(t, "socks5h://127.0.0.1:9050", conf.Transport.Proxy)
	assert.Equal(t, 90*time.Second, conf.Transport.Timeout)
	assert.Equal(t, 5*time.Minute, conf.Sync.Interval)
	assert.Equal(t, []string{"abc.onion:5002", "10.0.0.2:5002"}, conf.Sync.Peers)
	assert.Equal(t, "warn", conf.Logger.Level)
	assert.False(t, conf.Cache.Enabled)
	assert.True(t, conf.Metrics.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CHANHIST_SERVER_PORT", "7000")
	t.Setenv("CHANHIST_LOGGER_LEVEL", "error")
	t.Setenv("CHANHIST_STORAGE_ROOT", "/srv/channels")

	conf, err := Load(writeConfig(t, "server:\n  port: 6000\n"), false)
	require.NoError(t, err)
	assert.Equal(t, 7000, conf.Server.Port)
	assert.Equal(t, "error", conf.Logger.Level)
	assert.Equal(t, "/srv/channels", conf.Storage.Root)
}

func TestLoad_DebugForcesLevel(t *testing.T) {
	conf, err := Load("", true)
	require.NoError(t, err)
	assert.True(t, conf.Debug)
	assert.Equal(t, "debug", conf.Logger.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), false)
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"port":       "server:\n  port: 70000\n",
		"level":      "logger:\n  level: verbose\n",
		"proxy":      "transport:\n  proxy: ftp://proxy:21\n",
		"cache size": "cache:\n  enabled: true\n  size: 0\n",
		"empty host": "server:\n  host: \"\"\n",
		"empty peer": "sync:\n  peers: [\"\"]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body), false)
			assert.Error(t, err)
		})
	}
}

func validConfig() *Config {
	return &Config{
		Storage:   StorageConfig{Root: "/tmp/channels"},
		Server:    ServerConfig{Host: "127.0.0.1", Port: 5002},
		Transport: TransportConfig{Timeout: time.Second},
		Sync:      SyncConfig{Interval: time.Minute},
		Logger:    LoggerConfig{Level: "info"},
		Cache:     CacheConfig{Enabled: true, Size: 4},
		Identity:  IdentityConfig{Path: "/tmp/id.json"},
	}
}

func TestValidator_ValidConfig(t *testing.T) {
	assert.NoError(t, NewValidator(validConfig()).Validate())
}

func TestValidator_ZeroPort(t *testing.T) {
	c := validConfig()
	c.Server.Port = 0
	assert.Error(t, NewValidator(c).Validate())
}

func TestValidator_EmptyRoot(t *testing.T) {
	c := validConfig()
	c.Storage.Root = ""
	assert.Error(t, NewValidator(c).Validate())
}

func TestValidator_ProxySchemes(t *testing.T) {
	for _, proxy := range []string{"socks5://127.0.0.1:9050", "socks5h://tor:9050", "http://proxy:3128"} {
		c := validConfig()
		c.Transport.Proxy = proxy
		assert.NoError(t, NewValidator(c).Validate(), proxy)
	}
	c := validConfig()
	c.Transport.Proxy = "socks5://"
	assert.Error(t, NewValidator(c).Validate())
}
