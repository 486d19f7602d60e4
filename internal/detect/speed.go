package detect

import (
	"fmt"
	"math"

	"inputsentry/internal/event"
)

// SpeedThresholds tunes the typing-speed detector.
type SpeedThresholds struct {
	// MaxWPM is the sustained rate above which typing is considered
	// beyond human ability.
	MaxWPM float64 `toml:"max_wpm" json:"max_wpm" yaml:"max_wpm"`

	// MinSamples is the minimum number of alphanumeric key downs needed.
	MinSamples int `toml:"min_samples" json:"min_samples" yaml:"min_samples"`

	// BaselineWPM is a calibrated rate for this user; 0 disables the
	// deviation check.
	BaselineWPM float64 `toml:"baseline_wpm" json:"baseline_wpm" yaml:"baseline_wpm"`

	// BaselineDeviation is the tolerated distance from BaselineWPM.
	BaselineDeviation float64 `toml:"baseline_deviation" json:"baseline_deviation" yaml:"baseline_deviation"`
}

// DefaultSpeedThresholds returns the stock speed tuning.
func DefaultSpeedThresholds() SpeedThresholds {
	return SpeedThresholds{
		MaxWPM:            200,
		MinSamples:        5,
		BaselineDeviation: 50,
	}
}

// Speed flags sustained typing rates no human produces.
type Speed struct {
	t SpeedThresholds
}

// NewSpeed creates a speed detector.
func NewSpeed(t SpeedThresholds) *Speed { return &Speed{t: t} }

// Name implements Detector.
func (s *Speed) Name() string { return NameSpeed }

// Detect implements Detector.
func (s *Speed) Detect(window []event.Record) Finding {
	f := Finding{Detector: NameSpeed}

	first, last, count := -1, -1, 0
	for i, r := range window {
		if r.Kind != event.KindKeyDown || r.KeyClass != event.KeyAlphanumeric {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
		count++
	}
	if count < s.t.MinSamples || count == 0 {
		return f
	}

	span := (window[last].TimestampMs - window[first].TimestampMs) / 1000
	wpm, ok := wordsPerMinute(count, span)
	if !ok {
		return f
	}

	if wpm > s.t.MaxWPM {
		f.flag(fmt.Sprintf("Impossibly fast typing: %.1f WPM", wpm))
	}
	if s.t.BaselineWPM > 0 && math.Abs(wpm-s.t.BaselineWPM) > s.t.BaselineDeviation {
		f.flag(fmt.Sprintf("Typing speed deviation from baseline: %.1f vs %.1f WPM", wpm, s.t.BaselineWPM))
	}
	return f
}
