package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidConfig is matched by every ValidationErrors value.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for i := range e {
		msgs = append(msgs, e[i].Error())
	}
	return strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrInvalidConfig) hold for validation failures.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Fields lists the offending field names in order.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, v := range e {
		fields = append(fields, v.Field)
	}
	return fields
}

func (e *ValidationErrors) add(field, format string, args ...any) {
	*e = append(*e, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs.add("version", "unsupported version %d (current: %d)", c.Version, Version)
	}

	validateEngine(&c.Engine, &errs)
	validateDetectors(c, &errs)
	validateReporting(&c.Reporting, &errs)
	validateLogging(&c.Logging, &errs)
	validateMetrics(&c.Metrics, &errs)

	if c.Input.Path == "" {
		errs.add("input.path", "input path is required (use \"-\" for stdin)")
	}
	if c.Input.Follow && c.Input.Path == "-" {
		errs.add("input.follow", "follow needs a file path, not stdin")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateEngine(e *EngineConfig, errs *ValidationErrors) {
	if e.BufferCapacity < 1 {
		errs.add("engine.buffer_capacity", "must be at least 1")
	}
	if e.MinWindow < 1 {
		errs.add("engine.min_window", "must be at least 1")
	}
	if e.WindowSize < e.MinWindow {
		errs.add("engine.window_size", "window %d is smaller than min_window %d", e.WindowSize, e.MinWindow)
	}
	if e.WindowSize > e.BufferCapacity {
		errs.add("engine.window_size", "window %d exceeds buffer_capacity %d", e.WindowSize, e.BufferCapacity)
	}
	if e.MinPassIntervalMs < 0 {
		errs.add("engine.min_pass_interval_ms", "cannot be negative")
	}
	if e.RecentCount < 0 {
		errs.add("engine.recent_count", "cannot be negative")
	}
}

func validateDetectors(c *Config, errs *ValidationErrors) {
	d := c.Detectors
	if d.Speed.MaxWPM <= 0 {
		errs.add("detectors.speed.max_wpm", "must be positive")
	}
	if d.Speed.BaselineWPM < 0 {
		errs.add("detectors.speed.baseline_wpm", "cannot be negative")
	}
	if d.Speed.BaselineDeviation < 0 {
		errs.add("detectors.speed.baseline_deviation", "cannot be negative")
	}
	if d.Rhythm.MinSamples < 2 {
		errs.add("detectors.rhythm.min_samples", "must be at least 2")
	}
	if d.Rhythm.MinStdDev < 0 || d.Rhythm.MaxStdDev <= d.Rhythm.MinStdDev {
		errs.add("detectors.rhythm", "need 0 <= min_std_dev < max_std_dev")
	}
	if d.Sequence.ModifierRatio < 0 || d.Sequence.ModifierRatio > 1 {
		errs.add("detectors.sequence.modifier_ratio", "must be between 0 and 1")
	}
	if d.Overlay.CoincidenceWindowMs <= 0 {
		errs.add("detectors.overlay.coincidence_window_ms", "must be positive")
	}

	w := c.Weights
	for name, v := range map[string]float64{
		"speed": w.Speed, "rhythm": w.Rhythm, "sequence": w.Sequence, "overlay": w.Overlay,
	} {
		if v < 0 {
			errs.add("weights."+name, "cannot be negative")
		}
	}
}

func validateReporting(r *ReportingConfig, errs *ValidationErrors) {
	if r.QueueSize < 1 {
		errs.add("reporting.queue_size", "must be at least 1")
	}
	if r.TimeoutMs < 1 {
		errs.add("reporting.timeout_ms", "must be at least 1")
	}
	if r.HTTP.Endpoint != "" && !isValidURL(r.HTTP.Endpoint) {
		errs.add("reporting.http.endpoint", "invalid URL: %s", r.HTTP.Endpoint)
	}
	if r.HTTP.SigningSecret != "" && r.HTTP.Endpoint == "" {
		errs.add("reporting.http.signing_secret", "set without an endpoint")
	}
	if r.Store.Enabled && r.Store.Path == "" {
		errs.add("reporting.store.path", "path is required when the store is enabled")
	}
	if r.Store.RetentionDays < 0 {
		errs.add("reporting.store.retention_days", "cannot be negative")
	}
}

func validateLogging(l *LoggingConfig, errs *ValidationErrors) {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs.add("logging.level", "invalid log level: %s (valid: debug, info, warn, error)", l.Level)
	}

	switch l.Format {
	case "text", "json":
	default:
		errs.add("logging.format", "invalid log format: %s (valid: text, json)", l.Format)
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs.add("logging.file_path", "file path is required when output is %q", l.Output)
		}
	default:
		errs.add("logging.output", "invalid output: %q (valid: stdout, stderr, file, both)", l.Output)
	}

	if l.MaxSizeMB < 1 {
		errs.add("logging.max_size_mb", "max size must be at least 1 MB")
	}
	if l.MaxBackups < 0 {
		errs.add("logging.max_backups", "max backups cannot be negative")
	}
	if l.MaxAgeDays < 0 {
		errs.add("logging.max_age_days", "max age cannot be negative")
	}
}

func validateMetrics(m *MetricsConfig, errs *ValidationErrors) {
	if !m.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		errs.add("metrics.listen", "invalid listen address %q: %v", m.Listen, err)
	}
	switch {
	case !strings.HasPrefix(m.Path, "/"):
		errs.add("metrics.path", "must start with /")
	case m.Path == "/healthz" || m.Path == "/readyz" || m.Path == "/health":
		errs.add("metrics.path", "%s is reserved for health checks", m.Path)
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

func isValidURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
