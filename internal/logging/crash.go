package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// CrashReport is the JSON dump written when a guarded goroutine panics.
type CrashReport struct {
	Timestamp    time.Time      `json:"timestamp"`
	Version      string         `json:"version,omitempty"`
	GOOS         string         `json:"goos"`
	GOARCH       string         `json:"goarch"`
	NumGoroutine int            `json:"num_goroutine"`
	PanicValue   string         `json:"panic_value"`
	StackTrace   string         `json:"stack_trace"`
	Component    string         `json:"component,omitempty"`
	Session      string         `json:"session,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// CrashHandler recovers panics, logs them and writes a crash dump.
type CrashHandler struct {
	mu        sync.Mutex
	dir       string
	version   string
	component string
	session   string
	logger    *slog.Logger
}

// DefaultCrashDir returns the platform-specific default crash directory.
func DefaultCrashDir() string {
	return filepath.Join(filepath.Dir(DefaultLogPath()), "crashes")
}

// NewCrashHandler creates a handler writing dumps to dir. An empty dir
// disables dumps; panics are still logged.
func NewCrashHandler(dir, component, version string, logger *slog.Logger) *CrashHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrashHandler{dir: dir, component: component, version: version, logger: logger}
}

// SetSession records the session id included in later reports.
func (h *CrashHandler) SetSession(session string) {
	h.mu.Lock()
	h.session = session
	h.mu.Unlock()
}

// Go runs fn on a new goroutine, recovering any panic.
func (h *CrashHandler) Go(name string, fn func()) {
	go func() {
		defer h.recover(map[string]any{"goroutine": name})
		fn()
	}()
}

// Recover runs fn and reports whether it panicked.
func (h *CrashHandler) Recover(fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			h.HandlePanic(r, nil)
			panicked = true
		}
	}()
	fn()
	return false
}

func (h *CrashHandler) recover(ctx map[string]any) {
	if r := recover(); r != nil {
		h.HandlePanic(r, ctx)
	}
}

// HandlePanic builds a report for panicValue, logs it and writes the dump.
func (h *CrashHandler) HandlePanic(panicValue any, ctx map[string]any) CrashReport {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", panicValue),
		StackTrace:   string(debug.Stack()),
		Component:    h.component,
		Session:      h.session,
		Context:      ctx,
	}

	path, err := h.writeDump(report)
	switch {
	case err != nil:
		h.logger.Error("panic recovered", "panic", report.PanicValue, "dump_error", err)
	case path != "":
		h.logger.Error("panic recovered", "panic", report.PanicValue, "dump", path)
	default:
		h.logger.Error("panic recovered", "panic", report.PanicValue)
	}
	return report
}

func (h *CrashHandler) writeDump(report CrashReport) (string, error) {
	if h.dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(h.dir, 0750); err != nil {
		return "", fmt.Errorf("create crash directory: %w", err)
	}

	name := fmt.Sprintf("crash-%s-%s.json", report.Component, report.Timestamp.Format("20060102-150405.000000000"))
	path := filepath.Join(h.dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// Reports reads all crash dumps in the handler's directory.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	if h.dir == "" {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var r CrashReport
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		reports = append(reports, r)
	}
	return reports, nil
}
