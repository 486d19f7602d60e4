package detect

import (
	"math"
	"sort"

	"inputsentry/internal/event"
)

// OverlayThresholds tunes the overlay-coincidence detector.
type OverlayThresholds struct {
	// CoincidenceWindowMs is the largest key/mouse gap, exclusive, that
	// counts as simultaneous.
	CoincidenceWindowMs float64 `toml:"coincidence_window_ms" json:"coincidence_window_ms" yaml:"coincidence_window_ms"`

	// MaxCoincidences is the number of coincident key downs tolerated.
	MaxCoincidences int `toml:"max_coincidences" json:"max_coincidences" yaml:"max_coincidences"`

	// MaxFocusChanges is the number of focus transitions tolerated while
	// typing.
	MaxFocusChanges int `toml:"max_focus_changes" json:"max_focus_changes" yaml:"max_focus_changes"`
}

// DefaultOverlayThresholds returns the stock overlay tuning.
func DefaultOverlayThresholds() OverlayThresholds {
	return OverlayThresholds{
		CoincidenceWindowMs: 100,
		MaxCoincidences:     2,
		MaxFocusChanges:     3,
	}
}

// Overlay correlates the keyboard and pointer channels, and watches focus
// churn, for signs of an overlay window or remote-control tool.
type Overlay struct {
	t OverlayThresholds
}

// NewOverlay creates an overlay detector.
func NewOverlay(t OverlayThresholds) *Overlay { return &Overlay{t: t} }

// Name implements Detector.
func (o *Overlay) Name() string { return NameOverlay }

// Detect implements Detector.
func (o *Overlay) Detect(window []event.Record) Finding {
	f := Finding{Detector: NameOverlay}

	var keys, mouse []float64
	var focus int
	for _, r := range window {
		switch {
		case r.Kind == event.KindKeyDown:
			keys = append(keys, r.TimestampMs)
		case r.Kind.IsMouse():
			mouse = append(mouse, r.TimestampMs)
		case r.Kind.IsFocus():
			focus++
		}
	}

	if len(keys) > 0 && len(mouse) > 0 {
		if coincidences(keys, mouse, o.t.CoincidenceWindowMs) > o.t.MaxCoincidences {
			f.flag("Simultaneous mouse and keyboard activity")
		}
	}

	if focus > o.t.MaxFocusChanges && len(keys) > 0 {
		f.flag("Frequent focus changes during input")
	}
	return f
}

// coincidences counts key timestamps with at least one mouse timestamp
// strictly closer than windowMs. Timestamps need not be ordered.
func coincidences(keys, mouse []float64, windowMs float64) int {
	sorted := append([]float64(nil), mouse...)
	sort.Float64s(sorted)

	var n int
	for _, k := range keys {
		i := sort.SearchFloat64s(sorted, k)
		if i < len(sorted) && math.Abs(sorted[i]-k) < windowMs {
			n++
			continue
		}
		if i > 0 && math.Abs(k-sorted[i-1]) < windowMs {
			n++
		}
	}
	return n
}
