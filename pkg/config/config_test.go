package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/irctrakz/wgexporter/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8000", cfg.Exporter.ListenAddress)
	assert.Equal(t, "/metrics", cfg.Exporter.MetricsPath)
	assert.Equal(t, []string{"wg", "show", "all", "dump"}, cfg.Exporter.Command)
	assert.Equal(t, 10*time.Minute, time.Duration(cfg.Exporter.OnlineWindow))
	assert.Equal(t, "wireguard", cfg.Exporter.Namespace)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exporter.yaml")
	data := `
exporter:
  listenAddress: "127.0.0.1:9586"
  command: ["sudo", "wg", "show", "all", "dump"]
  interval: 30s
  timeout: 5s
  onlineWindow: 3m
logging:
  level: debug
  json: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg := DefaultConfig()
	require.NoError(t, LoadFromFile(path, cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:9586", cfg.Exporter.ListenAddress)
	assert.Equal(t, []string{"sudo", "wg", "show", "all", "dump"}, cfg.Exporter.Command)
	assert.Equal(t, 30*time.Second, time.Duration(cfg.Exporter.Interval))
	assert.Equal(t, 5*time.Second, time.Duration(cfg.Exporter.Timeout))
	assert.Equal(t, 3*time.Minute, time.Duration(cfg.Exporter.OnlineWindow))
	// untouched keys keep their defaults
	assert.Equal(t, "/metrics", cfg.Exporter.MetricsPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exporter.json")
	data := `{"exporter": {"interval": "1m", "namespace": "wg"}}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg := DefaultConfig()
	require.NoError(t, LoadFromFile(path, cfg))
	assert.Equal(t, time.Minute, time.Duration(cfg.Exporter.Interval))
	assert.Equal(t, "wg", cfg.Exporter.Namespace)
}

func TestLoadFromFile_Errors(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()

	assert.Error(t, LoadFromFile(filepath.Join(dir, "missing.yaml"), cfg))

	toml := filepath.Join(dir, "exporter.toml")
	require.NoError(t, os.WriteFile(toml, []byte("x = 1"), 0644))
	assert.Error(t, LoadFromFile(toml, cfg))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("exporter:\n  interval: soon\n"), 0644))
	assert.Error(t, LoadFromFile(bad, cfg))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WGEXPORTER_LISTEN_ADDRESS", ":9100")
	t.Setenv("WGEXPORTER_COMMAND", "cat /tmp/dump.txt")
	t.Setenv("WGEXPORTER_INTERVAL", "2s")
	t.Setenv("WGEXPORTER_TIMEOUT", "not-a-duration")
	t.Setenv("WGEXPORTER_MAX_CONNECTIONS", "8")
	t.Setenv("WGEXPORTER_ENABLE_RUNTIME_METRICS", "true")
	t.Setenv("LOGGING_LEVEL", "warn")
	t.Setenv("LOGGING_MAX_AGE", "many")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	assert.Equal(t, ":9100", cfg.Exporter.ListenAddress)
	assert.Equal(t, []string{"cat", "/tmp/dump.txt"}, cfg.Exporter.Command)
	assert.Equal(t, 2*time.Second, time.Duration(cfg.Exporter.Interval))
	assert.Equal(t, 10*time.Second, time.Duration(cfg.Exporter.Timeout))
	assert.Equal(t, 8, cfg.Exporter.MaxConnections)
	assert.True(t, cfg.Exporter.EnableRuntimeMetrics)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 7, cfg.Logging.MaxAge)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"listen address": func(c *Config) { c.Exporter.ListenAddress = "8000" },
		"metrics path":   func(c *Config) { c.Exporter.MetricsPath = "metrics" },
		"reserved path":  func(c *Config) { c.Exporter.HealthPath = "/ready" },
		"same paths":     func(c *Config) { c.Exporter.HealthPath = c.Exporter.MetricsPath },
		"empty command":  func(c *Config) { c.Exporter.Command = nil },
		"interval":       func(c *Config) { c.Exporter.Interval = 0 },
		"timeout":        func(c *Config) { c.Exporter.Timeout = -1 },
		"online window":  func(c *Config) { c.Exporter.OnlineWindow = 0 },
		"namespace":      func(c *Config) { c.Exporter.Namespace = "" },
		"connections":    func(c *Config) { c.Exporter.MaxConnections = -1 },
		"log level":      func(c *Config) { c.Logging.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	for _, ext := range []string{".yaml", ".json"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "exporter"+ext)
			cfg := DefaultConfig()
			cfg.Exporter.Interval = Duration(45 * time.Second)
			require.NoError(t, cfg.SaveToFile(path))

			loaded := &Config{}
			require.NoError(t, LoadFromFile(path, loaded))
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestApplyLogging_File(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.File = filepath.Join(t.TempDir(), "exporter.log")

	closer, err := cfg.ApplyLogging()
	require.NoError(t, err)
	require.NotNil(t, closer)
	require.NoError(t, closer.Close())
	logging.SetOutput(os.Stdout)
}
