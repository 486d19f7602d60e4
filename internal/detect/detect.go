// Package detect implements the heuristic detectors that look for automated,
// injected or overlay-mediated input in a window of records.
//
// Each detector is stateless: it reads the window it is given, never
// retains it, and returns a Finding. An under-populated window or a
// degenerate statistic (zero time span) yields a not-suspicious Finding;
// lack of data is never treated as evidence.
package detect

import (
	"math"

	"inputsentry/internal/event"
)

// Detector names, in aggregation order.
const (
	NameSpeed    = "speed"
	NameRhythm   = "rhythm"
	NameSequence = "sequence"
	NameOverlay  = "overlay"
)

// Finding is one detector's verdict on a window.
type Finding struct {
	Detector   string
	Suspicious bool
	Reasons    []string
}

func (f *Finding) flag(reason string) {
	f.Suspicious = true
	f.Reasons = append(f.Reasons, reason)
}

// Detector analyzes a window of records. Implementations must not modify
// or keep the slice.
type Detector interface {
	Name() string
	Detect(window []event.Record) Finding
}

// Thresholds collects the tunables of all four detectors.
type Thresholds struct {
	Speed    SpeedThresholds    `toml:"speed" json:"speed" yaml:"speed"`
	Rhythm   RhythmThresholds   `toml:"rhythm" json:"rhythm" yaml:"rhythm"`
	Sequence SequenceThresholds `toml:"sequence" json:"sequence" yaml:"sequence"`
	Overlay  OverlayThresholds  `toml:"overlay" json:"overlay" yaml:"overlay"`
}

// DefaultThresholds returns the stock tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Speed:    DefaultSpeedThresholds(),
		Rhythm:   DefaultRhythmThresholds(),
		Sequence: DefaultSequenceThresholds(),
		Overlay:  DefaultOverlayThresholds(),
	}
}

// Set returns the four detectors in aggregation order.
func Set(t Thresholds) []Detector {
	return []Detector{
		NewSpeed(t.Speed),
		NewRhythm(t.Rhythm),
		NewSequence(t.Sequence),
		NewOverlay(t.Overlay),
	}
}

func keyDowns(window []event.Record) []event.Record {
	out := make([]event.Record, 0, len(window))
	for _, r := range window {
		if r.Kind == event.KindKeyDown {
			out = append(out, r)
		}
	}
	return out
}

// intervals returns consecutive timestamp gaps in seconds.
func intervals(recs []event.Record) []float64 {
	if len(recs) < 2 {
		return nil
	}
	out := make([]float64, len(recs)-1)
	for i := 1; i < len(recs); i++ {
		out[i-1] = (recs[i].TimestampMs - recs[i-1].TimestampMs) / 1000
	}
	return out
}

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(values []float64) (mean, stdDev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// wordsPerMinute assumes five characters per word. ok is false when the
// span is not positive.
func wordsPerMinute(count int, spanSeconds float64) (wpm float64, ok bool) {
	if spanSeconds <= 0 || math.IsNaN(spanSeconds) || math.IsInf(spanSeconds, 0) {
		return 0, false
	}
	return (float64(count) / spanSeconds) * 60 / 5, true
}
