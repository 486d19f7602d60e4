package verdict

import (
	"time"

	"golang.org/x/sync/errgroup"

	"inputsentry/internal/detect"
	"inputsentry/internal/event"
)

// DefaultMinWindow is the smallest window that yields a verdict.
const DefaultMinWindow = 10

// Weights is the evidence each detector contributes when it fires.
type Weights struct {
	Speed    float64 `toml:"speed" json:"speed" yaml:"speed"`
	Rhythm   float64 `toml:"rhythm" json:"rhythm" yaml:"rhythm"`
	Sequence float64 `toml:"sequence" json:"sequence" yaml:"sequence"`
	Overlay  float64 `toml:"overlay" json:"overlay" yaml:"overlay"`
}

// DefaultWeights returns the stock weights.
func DefaultWeights() Weights {
	return Weights{Speed: 0.30, Rhythm: 0.25, Sequence: 0.20, Overlay: 0.40}
}

// For returns the weight of the named detector.
func (w Weights) For(name string) float64 {
	switch name {
	case detect.NameSpeed:
		return w.Speed
	case detect.NameRhythm:
		return w.Rhythm
	case detect.NameSequence:
		return w.Sequence
	case detect.NameOverlay:
		return w.Overlay
	default:
		return 0
	}
}

// Aggregator runs a detector set over a window and sums the weights of the
// detectors that fire. The confidence is not clamped.
type Aggregator struct {
	detectors []detect.Detector
	weights   Weights
	minWindow int
	now       func() time.Time
}

// NewAggregator builds an aggregator over the standard detector set.
func NewAggregator(t detect.Thresholds, w Weights, minWindow int) *Aggregator {
	return NewAggregatorWith(detect.Set(t), w, minWindow)
}

// NewAggregatorWith builds an aggregator over an explicit detector list.
// Reasons are combined in list order.
func NewAggregatorWith(detectors []detect.Detector, w Weights, minWindow int) *Aggregator {
	if minWindow <= 0 {
		minWindow = DefaultMinWindow
	}
	return &Aggregator{
		detectors: detectors,
		weights:   w,
		minWindow: minWindow,
		now:       time.Now,
	}
}

// SetClock overrides the wall clock used to stamp verdicts.
func (a *Aggregator) SetClock(now func() time.Time) { a.now = now }

// MinWindow returns the smallest window Evaluate accepts.
func (a *Aggregator) MinWindow() int { return a.minWindow }

// Evaluate runs every detector against window. ok is false, and no verdict
// is produced, when the window holds fewer than MinWindow records.
func (a *Aggregator) Evaluate(window []event.Record) (v Verdict, ok bool) {
	if len(window) < a.minWindow {
		return Verdict{}, false
	}

	findings := a.run(window)

	v = Verdict{
		Timestamp: a.now(),
		Reasons:   []string{},
		Stats:     Summarize(window),
	}
	for i, f := range findings {
		if !f.Suspicious {
			continue
		}
		name := a.detectors[i].Name()
		v.Suspicious = true
		v.Confidence += a.weights.For(name)
		v.Reasons = append(v.Reasons, f.Reasons...)
		v.Fired = append(v.Fired, name)
	}
	return v, true
}

// run evaluates the detectors concurrently. Each goroutine writes only its
// own slot, and detectors only read the window.
func (a *Aggregator) run(window []event.Record) []detect.Finding {
	findings := make([]detect.Finding, len(a.detectors))
	var g errgroup.Group
	for i, d := range a.detectors {
		g.Go(func() error {
			findings[i] = d.Detect(window)
			return nil
		})
	}
	g.Wait()
	return findings
}
