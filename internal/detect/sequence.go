package detect

import "inputsentry/internal/event"

// SequenceThresholds tunes the key-sequence detector.
type SequenceThresholds struct {
	MinSamples int `toml:"min_samples" json:"min_samples" yaml:"min_samples"`

	// RecentKeys is how many of the latest key downs the repetition check
	// looks at.
	RecentKeys int `toml:"recent_keys" json:"recent_keys" yaml:"recent_keys"`

	// MaxDistinct: that many or fewer distinct key classes among the recent
	// keys is repetitive.
	MaxDistinct int `toml:"max_distinct" json:"max_distinct" yaml:"max_distinct"`

	// RepetitionLimit is the minimum number of recent keys for the
	// repetition check to apply.
	RepetitionLimit int `toml:"repetition_limit" json:"repetition_limit" yaml:"repetition_limit"`

	// ModifierRatio is the share of key downs carrying Ctrl, Alt or Meta
	// above which modifier use is excessive.
	ModifierRatio float64 `toml:"modifier_ratio" json:"modifier_ratio" yaml:"modifier_ratio"`
}

// DefaultSequenceThresholds returns the stock sequence tuning.
func DefaultSequenceThresholds() SequenceThresholds {
	return SequenceThresholds{
		MinSamples:      5,
		RecentKeys:      10,
		MaxDistinct:     2,
		RepetitionLimit: 5,
		ModifierRatio:   0.3,
	}
}

// Sequence looks for macro-like repetition and shortcut-driven input.
type Sequence struct {
	t SequenceThresholds
}

// NewSequence creates a sequence detector.
func NewSequence(t SequenceThresholds) *Sequence { return &Sequence{t: t} }

// Name implements Detector.
func (s *Sequence) Name() string { return NameSequence }

// Detect implements Detector.
func (s *Sequence) Detect(window []event.Record) Finding {
	f := Finding{Detector: NameSequence}

	keys := keyDowns(window)
	if len(keys) < s.t.MinSamples || len(keys) == 0 {
		return f
	}

	recent := keys
	if s.t.RecentKeys > 0 && len(recent) > s.t.RecentKeys {
		recent = recent[len(recent)-s.t.RecentKeys:]
	}
	distinct := make(map[event.KeyClass]struct{}, len(recent))
	for _, k := range recent {
		distinct[k.KeyClass] = struct{}{}
	}
	if len(distinct) <= s.t.MaxDistinct && len(recent) >= s.t.RepetitionLimit {
		f.flag("Repetitive key pattern detected")
	}

	var withMods int
	for _, k := range keys {
		if k.Modifiers.Any(event.ModCtrl | event.ModAlt | event.ModMeta) {
			withMods++
		}
	}
	if float64(withMods) > float64(len(keys))*s.t.ModifierRatio {
		f.flag("Excessive meta key usage")
	}
	return f
}
