package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"ERROR", LevelError, false},
		{"invalid", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			if result := LevelString(test.level); result != test.expected {
				t.Errorf("expected %q, got %q", test.expected, result)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, LevelInfo, cfg.Level)
	assert.Equal(t, FormatText, cfg.Format)
	assert.Equal(t, "stderr", cfg.Output)
	assert.Equal(t, "inputsentryd", cfg.Component)
	assert.Positive(t, cfg.MaxSizeMB)
	assert.Positive(t, cfg.MaxAgeDays)
	assert.Positive(t, cfg.MaxBackups)
	assert.Contains(t, cfg.FilePath, "inputsentry")
}

// =============================================================================
// Logger
// =============================================================================

func TestJSONFormatCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Level: LevelDebug, Format: FormatJSON, Component: "test", Writer: &buf})
	require.NoError(t, err)

	logger.WithComponent("engine").Info("started", "window", 50)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "started", entry["msg"])
	assert.Equal(t, float64(50), entry["window"])
	assert.Equal(t, "engine", entry["component"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Level: LevelWarn, Writer: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key    string
		redact bool
	}{
		{"password", true},
		{"signing_secret", true},
		{"Authorization", true},
		{"api_key", true},
		{"signature", true},
		{"key", true},
		{"key_class", false},
		{"session", false},
		{"confidence", false},
		{"reasons", false},
	}

	for _, test := range tests {
		t.Run(test.key, func(t *testing.T) {
			assert.Equal(t, test.redact, shouldRedact(test.key))
		})
	}
}

func TestRedactionInOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Writer: &buf})
	require.NoError(t, err)

	logger.Info("reporter configured", "signing_secret", "hunter2", "endpoint", "http://collector")

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, "http://collector")
}

// =============================================================================
// FileRotator
// =============================================================================

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "inputsentryd.log")
	logger, err := New(&Config{Output: "file", FilePath: path, MaxSizeMB: 1, MaxBackups: 2})
	require.NoError(t, err)

	logger.Info("to file")
	require.NoError(t, logger.Sync())
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestFileRotatorRotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{FilePath: filepath.Join(dir, "app.log"), MaxSizeMB: 1, MaxBackups: 10}

	r, err := NewFileRotator(cfg)
	require.NoError(t, err)

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	_, err = r.Write(chunk)
	require.NoError(t, err)
	_, err = r.Write(chunk)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	rotated, err := r.Rotated()
	require.NoError(t, err)
	assert.Len(t, rotated, 1)

	info, err := os.Stat(cfg.FilePath)
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunk)), info.Size())
}

func TestFileRotatorRotatesOnDayChange(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{FilePath: filepath.Join(dir, "app.log"), MaxSizeMB: 100, MaxBackups: 10}

	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	r, err := NewFileRotator(cfg)
	require.NoError(t, err)
	r.now = func() time.Time { return day }
	r.opened = day

	_, err = r.Write([]byte("before midnight\n"))
	require.NoError(t, err)

	day = day.Add(2 * time.Minute)
	_, err = r.Write([]byte("after midnight\n"))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	rotated, err := r.Rotated()
	require.NoError(t, err)
	require.Len(t, rotated, 1)

	data, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "after midnight\n", string(data))
}

func TestFileRotatorCompressesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{FilePath: filepath.Join(dir, "app.log"), MaxSizeMB: 1, MaxBackups: 2, Compress: true}

	r, err := NewFileRotator(cfg)
	require.NoError(t, err)

	chunk := bytes.Repeat([]byte("y"), 700*1024)
	for i := 0; i < 5; i++ {
		_, err = r.Write(chunk)
		require.NoError(t, err)
		// let each rotation's background work settle so mod times order
		r.wg.Wait()
	}
	require.NoError(t, r.Close())

	rotated, err := r.Rotated()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(rotated), 2)
	for _, f := range rotated {
		assert.True(t, strings.HasSuffix(f, ".gz"), f)
	}
}

// =============================================================================
// CrashHandler
// =============================================================================

func TestCrashHandlerRecoversAndDumps(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger, err := New(&Config{Writer: &buf})
	require.NoError(t, err)

	h := NewCrashHandler(dir, "test", "v0", logger.Logger)
	h.SetSession("abc")

	panicked := h.Recover(func() { panic("boom") })
	assert.True(t, panicked)
	assert.False(t, h.Recover(func() {}))

	reports, err := h.Reports()
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "boom", reports[0].PanicValue)
	assert.Equal(t, "abc", reports[0].Session)
	assert.Equal(t, "test", reports[0].Component)
	assert.NotEmpty(t, reports[0].StackTrace)
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestCrashHandlerGoroutine(t *testing.T) {
	h := NewCrashHandler("", "test", "", nil)
	done := make(chan struct{})
	h.Go("worker", func() {
		defer close(done)
		panic("worker failed")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("guarded goroutine did not run")
	}

	reports, err := h.Reports()
	require.NoError(t, err)
	assert.Empty(t, reports)
}
