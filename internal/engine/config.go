package engine

import (
	"errors"
	"fmt"
	"time"

	"inputsentry/internal/buffer"
	"inputsentry/internal/detect"
	"inputsentry/internal/verdict"
)

// Config holds the engine tunables.
type Config struct {
	// BufferCapacity is the number of records retained. Changes made via
	// SetConfig take effect on the next Reset.
	BufferCapacity int

	// WindowSize is how many of the latest records one pass analyzes.
	WindowSize int

	// MinWindow is the smallest window that yields a verdict.
	MinWindow int

	// MinPassInterval is the minimum wall-clock gap between passes.
	MinPassInterval time.Duration

	// RecentCount is how many records Statistics returns.
	RecentCount int

	Thresholds detect.Thresholds
	Weights    verdict.Weights

	// QueueSize bounds the outbound verdict queue. Applied on Start.
	QueueSize int

	// ReportTimeout bounds each delivery attempt.
	ReportTimeout time.Duration

	// ReportAll delivers clean verdicts too; by default only suspicious
	// verdicts reach the reporter.
	ReportAll bool
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() Config {
	return Config{
		BufferCapacity:  buffer.DefaultCapacity,
		WindowSize:      50,
		MinWindow:       verdict.DefaultMinWindow,
		MinPassInterval: 2 * time.Second,
		RecentCount:     10,
		Thresholds:      detect.DefaultThresholds(),
		Weights:         verdict.DefaultWeights(),
		QueueSize:       64,
		ReportTimeout:   5 * time.Second,
	}
}

// ErrInvalidConfig is returned when a Config fails validation.
var ErrInvalidConfig = errors.New("engine: invalid config")

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.BufferCapacity > 0, "buffer capacity must be positive, got %d", c.BufferCapacity)
	check(c.WindowSize > 0, "window size must be positive, got %d", c.WindowSize)
	check(c.MinWindow > 0, "min window must be positive, got %d", c.MinWindow)
	check(c.WindowSize >= c.MinWindow, "window size %d is smaller than min window %d", c.WindowSize, c.MinWindow)
	check(c.WindowSize <= c.BufferCapacity, "window size %d exceeds buffer capacity %d", c.WindowSize, c.BufferCapacity)
	check(c.MinPassInterval >= 0, "min pass interval must not be negative")
	check(c.RecentCount >= 0, "recent count must not be negative")
	check(c.QueueSize > 0, "queue size must be positive, got %d", c.QueueSize)
	check(c.ReportTimeout > 0, "report timeout must be positive")

	w := c.Weights
	check(w.Speed >= 0 && w.Rhythm >= 0 && w.Sequence >= 0 && w.Overlay >= 0, "weights must not be negative")

	t := c.Thresholds
	check(t.Speed.MaxWPM > 0, "speed max_wpm must be positive")
	check(t.Speed.BaselineWPM >= 0, "speed baseline_wpm must not be negative")
	check(t.Rhythm.MinSamples >= 2, "rhythm min_samples must be at least 2")
	check(t.Rhythm.MinStdDev >= 0 && t.Rhythm.MaxStdDev > t.Rhythm.MinStdDev, "rhythm std dev bounds out of order")
	check(t.Sequence.ModifierRatio >= 0 && t.Sequence.ModifierRatio <= 1, "sequence modifier_ratio must be within [0,1]")
	check(t.Overlay.CoincidenceWindowMs > 0, "overlay coincidence window must be positive")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
