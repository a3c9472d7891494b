// Package config provides configuration handling for the WireGuard exporter.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/irctrakz/wgexporter/pkg/command"
	"github.com/irctrakz/wgexporter/pkg/logging"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes as "15s" in both YAML
// and JSON.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config represents the complete exporter configuration.
type Config struct {
	// Exporter contains the scrape endpoint and refresh settings.
	Exporter ExporterConfig `json:"exporter" yaml:"exporter"`

	// Logging contains the logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ExporterConfig contains the scrape endpoint and refresh settings.
type ExporterConfig struct {
	// ListenAddress is the host:port the metrics server binds to.
	ListenAddress string `json:"listenAddress" yaml:"listenAddress"`

	// MetricsPath serves the exposition format.
	MetricsPath string `json:"metricsPath" yaml:"metricsPath"`

	// HealthPath answers liveness probes.
	HealthPath string `json:"healthPath" yaml:"healthPath"`

	// Command is the status command and its arguments.
	Command []string `json:"command" yaml:"command"`

	// Interval between status command invocations.
	Interval Duration `json:"interval" yaml:"interval"`

	// Timeout bounds a single status command invocation.
	Timeout Duration `json:"timeout" yaml:"timeout"`

	// OnlineWindow is how recent a handshake must be for a peer to count
	// as online.
	OnlineWindow Duration `json:"onlineWindow" yaml:"onlineWindow"`

	// Namespace prefixes every exported series.
	Namespace string `json:"namespace" yaml:"namespace"`

	// MaxConnections caps concurrent scrape connections. 0 disables the cap.
	MaxConnections int `json:"maxConnections" yaml:"maxConnections"`

	// DisableSelfMetrics hides the exporter's own refresh counters.
	DisableSelfMetrics bool `json:"disableSelfMetrics" yaml:"disableSelfMetrics"`

	// EnableRuntimeMetrics adds the Go runtime and process collectors.
	EnableRuntimeMetrics bool `json:"enableRuntimeMetrics" yaml:"enableRuntimeMetrics"`
}

// LoggingConfig contains configuration for logging.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// JSON selects the JSON formatter.
	JSON bool `json:"json" yaml:"json"`

	// File is the log file path.
	File string `json:"file" yaml:"file"`

	// MaxSize is the maximum size of the log file in megabytes.
	MaxSize int `json:"maxSize" yaml:"maxSize"`

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `json:"maxBackups" yaml:"maxBackups"`

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `json:"maxAge" yaml:"maxAge"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Exporter: ExporterConfig{
			ListenAddress:  ":8000",
			MetricsPath:    "/metrics",
			HealthPath:     "/health",
			Command:        append([]string(nil), command.DefaultCommand...),
			Interval:       Duration(15 * time.Second),
			Timeout:        Duration(10 * time.Second),
			OnlineWindow:   Duration(10 * time.Minute),
			Namespace:      "wireguard",
			MaxConnections: 64,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// LoadFromFile loads configuration from a file.
func LoadFromFile(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables. Values that
// do not parse are ignored.
func LoadFromEnv(config *Config) {
	e := &config.Exporter
	if val := os.Getenv("WGEXPORTER_LISTEN_ADDRESS"); val != "" {
		e.ListenAddress = val
	}
	if val := os.Getenv("WGEXPORTER_METRICS_PATH"); val != "" {
		e.MetricsPath = val
	}
	if val := os.Getenv("WGEXPORTER_COMMAND"); val != "" {
		if argv := strings.Fields(val); len(argv) > 0 {
			e.Command = argv
		}
	}
	envDuration("WGEXPORTER_INTERVAL", &e.Interval)
	envDuration("WGEXPORTER_TIMEOUT", &e.Timeout)
	envDuration("WGEXPORTER_ONLINE_WINDOW", &e.OnlineWindow)
	if val := os.Getenv("WGEXPORTER_NAMESPACE"); val != "" {
		e.Namespace = val
	}
	envInt("WGEXPORTER_MAX_CONNECTIONS", &e.MaxConnections)
	envBool("WGEXPORTER_DISABLE_SELF_METRICS", &e.DisableSelfMetrics)
	envBool("WGEXPORTER_ENABLE_RUNTIME_METRICS", &e.EnableRuntimeMetrics)

	// Logging config
	if val := os.Getenv("LOGGING_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	envBool("LOGGING_JSON", &config.Logging.JSON)
	if val := os.Getenv("LOGGING_FILE"); val != "" {
		config.Logging.File = val
	}
	envInt("LOGGING_MAX_SIZE", &config.Logging.MaxSize)
	envInt("LOGGING_MAX_BACKUPS", &config.Logging.MaxBackups)
	envInt("LOGGING_MAX_AGE", &config.Logging.MaxAge)
}

func envDuration(key string, dst *Duration) {
	if val := os.Getenv(key); val != "" {
		var d Duration
		if err := d.UnmarshalText([]byte(val)); err == nil {
			*dst = d
		}
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			*dst = v
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if v, err := strconv.ParseBool(val); err == nil {
			*dst = v
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	e := c.Exporter
	if _, _, err := net.SplitHostPort(e.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", e.ListenAddress, err)
	}
	for name, p := range map[string]string{"metrics": e.MetricsPath, "health": e.HealthPath} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s path must start with '/': %q", name, p)
		}
		if p == "/" || p == "/ready" {
			return fmt.Errorf("%s path %q is reserved", name, p)
		}
	}
	if e.MetricsPath == e.HealthPath {
		return fmt.Errorf("metrics and health paths must differ: %q", e.MetricsPath)
	}
	if len(e.Command) == 0 || strings.TrimSpace(e.Command[0]) == "" {
		return fmt.Errorf("status command cannot be empty")
	}
	if e.Interval <= 0 {
		return fmt.Errorf("invalid refresh interval: %s", time.Duration(e.Interval))
	}
	if e.Timeout <= 0 {
		return fmt.Errorf("invalid refresh timeout: %s", time.Duration(e.Timeout))
	}
	if e.OnlineWindow <= 0 {
		return fmt.Errorf("invalid online window: %s", time.Duration(e.OnlineWindow))
	}
	if e.Namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	if e.MaxConnections < 0 {
		return fmt.Errorf("invalid max connections: %d", e.MaxConnections)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	return nil
}

// ApplyLogging applies the logging configuration. The returned closer is
// non-nil when file logging was enabled.
func (c *Config) ApplyLogging() (io.Closer, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	logging.SetLevel(level)
	logging.SetJSON(c.Logging.JSON)

	if c.Logging.File == "" {
		return nil, nil
	}
	closer, err := logging.EnableFileLogging(c.Logging.File, logging.RotateOptions{
		MaxSizeMB:  c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enable file logging: %w", err)
	}
	return closer, nil
}

// SaveToFile saves the configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
