// Package config handles configuration loading, validation, and management
// for inputsentryd.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"inputsentry/internal/detect"
	"inputsentry/internal/engine"
	"inputsentry/internal/logging"
	"inputsentry/internal/verdict"
)

// Version is the current configuration schema version.
const Version = 1

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INPUTSENTRY_"

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Engine holds buffering and scheduling settings.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Detectors holds per-detector thresholds.
	Detectors detect.Thresholds `toml:"detectors" json:"detectors" yaml:"detectors"`

	// Weights are the confidence contributions of each detector.
	Weights verdict.Weights `toml:"weights" json:"weights" yaml:"weights"`

	// Input describes where capture events are read from.
	Input InputConfig `toml:"input" json:"input" yaml:"input"`

	// Reporting configures verdict delivery.
	Reporting ReportingConfig `toml:"reporting" json:"reporting" yaml:"reporting"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// EngineConfig holds buffering and scheduling settings.
type EngineConfig struct {
	// BufferCapacity is the number of records retained.
	BufferCapacity int `toml:"buffer_capacity" json:"buffer_capacity" yaml:"buffer_capacity"`

	// WindowSize is how many of the latest records one pass analyzes.
	WindowSize int `toml:"window_size" json:"window_size" yaml:"window_size"`

	// MinWindow is the smallest window that yields a verdict.
	MinWindow int `toml:"min_window" json:"min_window" yaml:"min_window"`

	// MinPassIntervalMs is the minimum gap between passes.
	MinPassIntervalMs int `toml:"min_pass_interval_ms" json:"min_pass_interval_ms" yaml:"min_pass_interval_ms"`

	// RecentCount is how many records statistics snapshots include.
	RecentCount int `toml:"recent_count" json:"recent_count" yaml:"recent_count"`
}

// InputConfig describes the capture source.
type InputConfig struct {
	// Path is a file of newline-delimited browser events, or "-" for stdin.
	Path string `toml:"path" json:"path" yaml:"path"`

	// Follow keeps reading a file as it grows, across truncation and
	// rotation. The daemon then runs until signalled.
	Follow bool `toml:"follow" json:"follow" yaml:"follow"`

	// ValidateSchema checks every line against the browser event schema
	// before normalization.
	ValidateSchema bool `toml:"validate_schema" json:"validate_schema" yaml:"validate_schema"`
}

// ReportingConfig configures verdict delivery.
type ReportingConfig struct {
	// QueueSize bounds the outbound verdict queue.
	QueueSize int `toml:"queue_size" json:"queue_size" yaml:"queue_size"`

	// TimeoutMs bounds each delivery attempt.
	TimeoutMs int `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`

	// ReportAll delivers clean verdicts as well as suspicious ones.
	ReportAll bool `toml:"report_all" json:"report_all" yaml:"report_all"`

	// HTTP posts verdicts to a collector.
	HTTP HTTPConfig `toml:"http" json:"http" yaml:"http"`

	// Store keeps a local SQLite verdict history.
	Store StoreConfig `toml:"store" json:"store" yaml:"store"`
}

// HTTPConfig configures the HTTP collector reporter.
type HTTPConfig struct {
	// Endpoint is the collector URL. Empty disables HTTP reporting.
	Endpoint string `toml:"endpoint" json:"endpoint" yaml:"endpoint"`

	// UserAgent and TargetApp are copied into every payload.
	UserAgent string `toml:"user_agent" json:"user_agent" yaml:"user_agent"`
	TargetApp string `toml:"target_app" json:"target_app" yaml:"target_app"`

	// SigningSecret enables the signature header when non-empty. Prefer the
	// INPUTSENTRY_SIGNING_SECRET environment variable over the file.
	SigningSecret string `toml:"signing_secret" json:"signing_secret,omitempty" yaml:"signing_secret,omitempty"`
}

// StoreConfig configures the verdict history.
type StoreConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `toml:"path" json:"path" yaml:"path"`

	// RetentionDays prunes older verdicts at startup; 0 keeps everything.
	RetentionDays int `toml:"retention_days" json:"retention_days" yaml:"retention_days"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stderr", "stdout", "file", or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is used when Output includes a file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	MaxSizeMB  int  `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool `toml:"compress" json:"compress" yaml:"compress"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Listen  string `toml:"listen" json:"listen" yaml:"listen"`
	Path    string `toml:"path" json:"path" yaml:"path"`
}

// DefaultConfig returns a configuration with the stock tuning.
func DefaultConfig() *Config {
	ec := engine.DefaultConfig()
	lc := logging.DefaultConfig()

	return &Config{
		Version: Version,
		Engine: EngineConfig{
			BufferCapacity:    ec.BufferCapacity,
			WindowSize:        ec.WindowSize,
			MinWindow:         ec.MinWindow,
			MinPassIntervalMs: int(ec.MinPassInterval / time.Millisecond),
			RecentCount:       ec.RecentCount,
		},
		Detectors: ec.Thresholds,
		Weights:   ec.Weights,
		Input: InputConfig{
			Path:           "-",
			ValidateSchema: true,
		},
		Reporting: ReportingConfig{
			QueueSize: ec.QueueSize,
			TimeoutMs: int(ec.ReportTimeout / time.Millisecond),
			HTTP: HTTPConfig{
				UserAgent: "inputsentryd",
			},
			Store: StoreConfig{
				Enabled:       false,
				Path:          filepath.Join(DataDir(), "verdicts.db"),
				RetentionDays: 30,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   lc.FilePath,
			MaxSizeMB:  int(lc.MaxSizeMB),
			MaxBackups: lc.MaxBackups,
			MaxAgeDays: lc.MaxAgeDays,
			Compress:   lc.Compress,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
			Path:    "/metrics",
		},
	}
}

// EngineSettings maps the file configuration onto engine.Config.
func (c *Config) EngineSettings() engine.Config {
	return engine.Config{
		BufferCapacity:  c.Engine.BufferCapacity,
		WindowSize:      c.Engine.WindowSize,
		MinWindow:       c.Engine.MinWindow,
		MinPassInterval: time.Duration(c.Engine.MinPassIntervalMs) * time.Millisecond,
		RecentCount:     c.Engine.RecentCount,
		Thresholds:      c.Detectors,
		Weights:         c.Weights,
		QueueSize:       c.Reporting.QueueSize,
		ReportTimeout:   time.Duration(c.Reporting.TimeoutMs) * time.Millisecond,
		ReportAll:       c.Reporting.ReportAll,
	}
}

// LoggingSettings maps the file configuration onto logging.Config.
// Unknown level or format strings fall back to the defaults; Validate
// reports them.
func (c *Config) LoggingSettings() *logging.Config {
	lc := logging.DefaultConfig()
	lc.Level, _ = logging.ParseLevel(c.Logging.Level)
	lc.Format, _ = logging.ParseFormat(c.Logging.Format)
	lc.Output = c.Logging.Output
	if c.Logging.FilePath != "" {
		lc.FilePath = expandPath(c.Logging.FilePath)
	}
	lc.MaxSizeMB = int64(c.Logging.MaxSizeMB)
	lc.MaxBackups = c.Logging.MaxBackups
	lc.MaxAgeDays = c.Logging.MaxAgeDays
	lc.Compress = c.Logging.Compress
	return lc
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// DataDir returns the base data directory, honoring INPUTSENTRY_DATA_DIR.
func DataDir() string {
	if envDir := os.Getenv(EnvPrefix + "DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies INPUTSENTRY_* environment variables. Values
// that do not parse are ignored.
func (c *Config) ApplyEnvOverrides() {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	flt := func(name string, dst *float64) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				*dst = f
			}
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = b
			}
		}
	}

	num("BUFFER_CAPACITY", &c.Engine.BufferCapacity)
	num("WINDOW_SIZE", &c.Engine.WindowSize)
	num("MIN_PASS_INTERVAL_MS", &c.Engine.MinPassIntervalMs)
	flt("MAX_WPM", &c.Detectors.Speed.MaxWPM)
	flt("BASELINE_WPM", &c.Detectors.Speed.BaselineWPM)

	str("INPUT", &c.Input.Path)
	boolean("FOLLOW", &c.Input.Follow)

	num("QUEUE_SIZE", &c.Reporting.QueueSize)
	num("REPORT_TIMEOUT_MS", &c.Reporting.TimeoutMs)
	boolean("REPORT_ALL", &c.Reporting.ReportAll)
	str("ENDPOINT", &c.Reporting.HTTP.Endpoint)
	str("TARGET_APP", &c.Reporting.HTTP.TargetApp)
	str("SIGNING_SECRET", &c.Reporting.HTTP.SigningSecret)
	boolean("STORE_ENABLED", &c.Reporting.Store.Enabled)
	str("STORE_PATH", &c.Reporting.Store.Path)

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_PATH", &c.Logging.FilePath)

	boolean("METRICS_ENABLED", &c.Metrics.Enabled)
	str("METRICS_LISTEN", &c.Metrics.Listen)
}

// Clone returns a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}
