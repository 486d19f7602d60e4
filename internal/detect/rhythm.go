package detect

import "inputsentry/internal/event"

// RhythmThresholds tunes the inter-key timing detector. All durations are
// in seconds.
type RhythmThresholds struct {
	MinSamples int `toml:"min_samples" json:"min_samples" yaml:"min_samples"`

	// MinStdDev: spread below this, with a mean under MechanicalMean, is
	// too regular for a person.
	MinStdDev      float64 `toml:"min_std_dev" json:"min_std_dev" yaml:"min_std_dev"`
	MechanicalMean float64 `toml:"mechanical_mean" json:"mechanical_mean" yaml:"mechanical_mean"`

	// MaxStdDev: spread above this is pathologically irregular.
	MaxStdDev float64 `toml:"max_std_dev" json:"max_std_dev" yaml:"max_std_dev"`
}

// DefaultRhythmThresholds returns the stock rhythm tuning.
func DefaultRhythmThresholds() RhythmThresholds {
	return RhythmThresholds{
		MinSamples:     10,
		MinStdDev:      0.01,
		MechanicalMean: 0.5,
		MaxStdDev:      2.0,
	}
}

// Rhythm classifies the variance of inter-key intervals. Human typing sits
// in a bounded band; both tails are reported, with distinct reasons.
type Rhythm struct {
	t RhythmThresholds
}

// NewRhythm creates a rhythm detector.
func NewRhythm(t RhythmThresholds) *Rhythm { return &Rhythm{t: t} }

// Name implements Detector.
func (r *Rhythm) Name() string { return NameRhythm }

// Detect implements Detector.
func (r *Rhythm) Detect(window []event.Record) Finding {
	f := Finding{Detector: NameRhythm}

	keys := keyDowns(window)
	if len(keys) < r.t.MinSamples || len(keys) < 2 {
		return f
	}

	mean, stdDev := meanStdDev(intervals(keys))

	if stdDev < r.t.MinStdDev && mean < r.t.MechanicalMean {
		f.flag("Mechanical typing rhythm detected")
	}
	if stdDev > r.t.MaxStdDev {
		f.flag("Highly irregular typing pattern")
	}
	return f
}

// RhythmProfile summarizes inter-key timing.
type RhythmProfile struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// Baseline is a calibrated typing profile for one user.
type Baseline struct {
	WPM    float64       `json:"wpm"`
	Rhythm RhythmProfile `json:"rhythm"`
}

// MinCalibrationSamples is the number of key downs CalibrateBaseline needs.
const MinCalibrationSamples = 50

// CalibrateBaseline derives a typing baseline from a known-human sample.
// ok is false when fewer than MinCalibrationSamples key downs are present
// or their span is zero.
func CalibrateBaseline(records []event.Record) (b Baseline, ok bool) {
	keys := keyDowns(records)
	if len(keys) < MinCalibrationSamples {
		return Baseline{}, false
	}

	span := (keys[len(keys)-1].TimestampMs - keys[0].TimestampMs) / 1000
	wpm, ok := wordsPerMinute(len(keys), span)
	if !ok {
		return Baseline{}, false
	}

	mean, stdDev := meanStdDev(intervals(keys))
	return Baseline{
		WPM:    wpm,
		Rhythm: RhythmProfile{Mean: mean, StdDev: stdDev},
	}, true
}
