// Package verdict combines detector findings into one analysis result.
package verdict

import (
	"fmt"
	"strings"
	"time"

	"inputsentry/internal/event"
)

// Severity buckets a verdict's confidence.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

// String returns a human-readable name for the severity.
func (s Severity) String() string {
	switch s {
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "low"
	}
}

// SeverityFor maps a raw confidence to a severity.
func SeverityFor(confidence float64) Severity {
	switch {
	case confidence >= 0.7:
		return SeverityHigh
	case confidence >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// WindowStats summarizes the window a verdict was computed over.
type WindowStats struct {
	TotalEvents     int     `json:"totalEvents"`
	KeyboardEvents  int     `json:"keyboardEvents"`
	MouseEvents     int     `json:"mouseEvents"`
	FocusEvents     int     `json:"focusEvents"`
	UniqueTargets   int     `json:"uniqueTargets"`
	TimeSpan        float64 `json:"timeSpan"`
	EventsPerSecond float64 `json:"eventsPerSecond"`
}

// Summarize computes WindowStats for a window.
func Summarize(window []event.Record) WindowStats {
	s := WindowStats{TotalEvents: len(window)}
	targets := make(map[string]struct{})
	for _, r := range window {
		switch {
		case r.Kind.IsKey():
			s.KeyboardEvents++
		case r.Kind.IsMouse():
			s.MouseEvents++
		case r.Kind.IsFocus():
			s.FocusEvents++
		}
		target := r.Target
		if target == "" {
			target = "unknown"
		}
		targets[target] = struct{}{}
	}
	s.UniqueTargets = len(targets)

	if len(window) > 0 {
		s.TimeSpan = (window[len(window)-1].TimestampMs - window[0].TimestampMs) / 1000
	}
	if s.TimeSpan > 0 {
		s.EventsPerSecond = float64(s.TotalEvents) / s.TimeSpan
	}
	return s
}

// Verdict is the outcome of one analysis pass. It is a value: built once,
// handed to reporters, then discarded.
type Verdict struct {
	Timestamp  time.Time   `json:"timestamp"`
	Suspicious bool        `json:"suspicious"`
	Confidence float64     `json:"confidence"`
	Reasons    []string    `json:"reasons"`
	Stats      WindowStats `json:"stats"`
	Fired      []string    `json:"fired,omitempty"`
}

// Severity returns the severity bucket of the raw confidence.
func (v Verdict) Severity() Severity { return SeverityFor(v.Confidence) }

// ClampedConfidence returns the confidence limited to [0, 1] for display.
// The raw value can exceed 1 when several detectors fire.
func (v Verdict) ClampedConfidence() float64 {
	if v.Confidence > 1 {
		return 1
	}
	if v.Confidence < 0 {
		return 0
	}
	return v.Confidence
}

// maxMessageReasons limits how many reasons Message includes.
const maxMessageReasons = 3

// Message renders a one-line alert. It is empty for clean verdicts.
func (v Verdict) Message() string {
	if !v.Suspicious {
		return ""
	}
	msg := fmt.Sprintf("Potential keylogger activity detected (Confidence: %.1f%%)", v.ClampedConfidence()*100)
	if len(v.Reasons) == 0 {
		return msg
	}
	reasons := v.Reasons
	if len(reasons) > maxMessageReasons {
		reasons = reasons[:maxMessageReasons]
	}
	return msg + ". Details: " + strings.Join(reasons, "; ")
}
