package verdict

import (
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inputsentry/internal/detect"
	"inputsentry/internal/event"
)

type stubDetector struct {
	name    string
	reasons []string
	calls   atomic.Int32
}

func (s *stubDetector) Name() string { return s.name }

func (s *stubDetector) Detect(window []event.Record) detect.Finding {
	s.calls.Add(1)
	return detect.Finding{Detector: s.name, Suspicious: len(s.reasons) > 0, Reasons: s.reasons}
}

func keys(n int) []event.Record {
	out := make([]event.Record, n)
	for i := range out {
		out[i] = event.Record{Kind: event.KindKeyDown, KeyClass: event.KeyOther, TimestampMs: float64(i * 300)}
	}
	return out
}

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		confidence float64
		expected   Severity
	}{
		{0, SeverityLow},
		{0.39, SeverityLow},
		{0.4, SeverityMedium},
		{0.69, SeverityMedium},
		{0.7, SeverityHigh},
		{1.15, SeverityHigh},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, SeverityFor(test.confidence), "confidence %v", test.confidence)
	}
	assert.Equal(t, "high", SeverityHigh.String())
	assert.Equal(t, "low", Severity(9).String())
}

func TestAggregatorRequiresMinimumWindow(t *testing.T) {
	stub := &stubDetector{name: detect.NameSpeed, reasons: []string{"x"}}
	a := NewAggregatorWith([]detect.Detector{stub}, DefaultWeights(), 0)
	assert.Equal(t, DefaultMinWindow, a.MinWindow())

	for n := 0; n < DefaultMinWindow; n++ {
		_, ok := a.Evaluate(keys(n))
		assert.False(t, ok, "window of %d", n)
	}
	assert.Zero(t, stub.calls.Load())

	_, ok := a.Evaluate(keys(DefaultMinWindow))
	assert.True(t, ok)
	assert.EqualValues(t, 1, stub.calls.Load())
}

func TestAggregatorOrderAndWeights(t *testing.T) {
	speed := &stubDetector{name: detect.NameSpeed, reasons: []string{"Impossibly fast typing: 999.0 WPM"}}
	rhythm := &stubDetector{name: detect.NameRhythm}
	sequence := &stubDetector{name: detect.NameSequence}
	overlay := &stubDetector{name: detect.NameOverlay, reasons: []string{"Simultaneous mouse and keyboard activity"}}

	a := NewAggregatorWith([]detect.Detector{speed, rhythm, sequence, overlay}, DefaultWeights(), 10)
	fixed := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	a.SetClock(func() time.Time { return fixed })

	// Repeated runs must agree despite concurrent evaluation.
	for i := 0; i < 20; i++ {
		v, ok := a.Evaluate(keys(12))
		require.True(t, ok)
		assert.True(t, v.Suspicious)
		assert.InDelta(t, 0.70, v.Confidence, 1e-9)
		assert.Equal(t, []string{
			"Impossibly fast typing: 999.0 WPM",
			"Simultaneous mouse and keyboard activity",
		}, v.Reasons)
		assert.Equal(t, []string{detect.NameSpeed, detect.NameOverlay}, v.Fired)
		assert.Equal(t, fixed, v.Timestamp)
	}
}

func TestAggregatorConfidenceIsNotClamped(t *testing.T) {
	var ds []detect.Detector
	for _, n := range []string{detect.NameSpeed, detect.NameRhythm, detect.NameSequence, detect.NameOverlay} {
		ds = append(ds, &stubDetector{name: n, reasons: []string{n}})
	}
	v, ok := NewAggregatorWith(ds, DefaultWeights(), 10).Evaluate(keys(10))
	require.True(t, ok)
	assert.InDelta(t, 1.15, v.Confidence, 1e-9)
	assert.Equal(t, 1.0, v.ClampedConfidence())
	assert.Equal(t, SeverityHigh, v.Severity())
	assert.Equal(t, []string{"speed", "rhythm", "sequence", "overlay"}, v.Reasons)
}

func TestAggregatorCleanVerdict(t *testing.T) {
	a := NewAggregatorWith([]detect.Detector{&stubDetector{name: detect.NameSpeed}}, DefaultWeights(), 10)
	v, ok := a.Evaluate(keys(10))
	require.True(t, ok)
	assert.False(t, v.Suspicious)
	assert.Zero(t, v.Confidence)
	assert.NotNil(t, v.Reasons)
	assert.Empty(t, v.Reasons)
	assert.Empty(t, v.Message())
}

func TestAggregatorRealDetectorsSpeedAndOverlay(t *testing.T) {
	classes := []event.KeyClass{
		event.KeyAlphanumeric, event.KeyTab, event.KeyAlphanumeric, event.KeyEnter,
		event.KeyAlphanumeric, event.KeySpace, event.KeyAlphanumeric, event.KeyBackspace,
		event.KeyAlphanumeric, event.KeyDelete, event.KeyAlphanumeric, event.KeyHome,
	}
	var window []event.Record
	ts := 0.0
	for i, c := range classes {
		if i > 0 {
			if i%2 == 1 {
				ts += 5
			} else {
				ts += 30
			}
		}
		window = append(window, event.Record{Kind: event.KindKeyDown, KeyClass: c, TimestampMs: ts, Target: "input-text"})
	}
	for _, m := range []float64{2, 36, 72} {
		window = append(window, event.Record{Kind: event.KindMouseDown, TimestampMs: m, Target: "div-none"})
	}
	sort.SliceStable(window, func(i, j int) bool { return window[i].TimestampMs < window[j].TimestampMs })

	v, ok := NewAggregator(detect.DefaultThresholds(), DefaultWeights(), DefaultMinWindow).Evaluate(window)
	require.True(t, ok)
	require.Len(t, v.Reasons, 2)
	assert.Contains(t, v.Reasons[0], "Impossibly fast")
	assert.Equal(t, "Simultaneous mouse and keyboard activity", v.Reasons[1])
	assert.InDelta(t, 0.70, v.Confidence, 1e-9)

	assert.Equal(t, WindowStats{
		TotalEvents:     15,
		KeyboardEvents:  12,
		MouseEvents:     3,
		UniqueTargets:   2,
		TimeSpan:        0.18,
		EventsPerSecond: 15 / 0.18,
	}, v.Stats)
}

func TestSummarize(t *testing.T) {
	window := []event.Record{
		{Kind: event.KindKeyDown, KeyClass: event.KeyOther, TimestampMs: 1000, Target: "input-text"},
		{Kind: event.KindKeyUp, KeyClass: event.KeyOther, TimestampMs: 1100, Target: "input-text"},
		{Kind: event.KindFocusLost, TimestampMs: 1500, Target: "window"},
		{Kind: event.KindMouseUp, TimestampMs: 2000},
	}
	s := Summarize(window)
	assert.Equal(t, 4, s.TotalEvents)
	assert.Equal(t, 2, s.KeyboardEvents)
	assert.Equal(t, 1, s.MouseEvents)
	assert.Equal(t, 1, s.FocusEvents)
	assert.Equal(t, 3, s.UniqueTargets)
	assert.InDelta(t, 1.0, s.TimeSpan, 1e-9)
	assert.InDelta(t, 4.0, s.EventsPerSecond, 1e-9)

	same := Summarize([]event.Record{{Kind: event.KindFocusLost, TimestampMs: 5}})
	assert.Zero(t, same.TimeSpan)
	assert.Zero(t, same.EventsPerSecond)
}

func TestMessage(t *testing.T) {
	v := Verdict{
		Suspicious: true,
		Confidence: 0.85,
		Reasons:    []string{"a", "b", "c", "d"},
	}
	assert.Equal(t, "Potential keylogger activity detected (Confidence: 85.0%). Details: a; b; c", v.Message())

	v.Reasons = nil
	assert.Equal(t, "Potential keylogger activity detected (Confidence: 85.0%)", v.Message())

	v.Confidence = 1.15
	assert.Equal(t, "Potential keylogger activity detected (Confidence: 100.0%)", v.Message())
}

func TestWeightsFor(t *testing.T) {
	w := DefaultWeights()
	assert.Equal(t, 0.30, w.For(detect.NameSpeed))
	assert.Equal(t, 0.25, w.For(detect.NameRhythm))
	assert.Equal(t, 0.20, w.For(detect.NameSequence))
	assert.Equal(t, 0.40, w.For(detect.NameOverlay))
	assert.Zero(t, w.For("nope"))
}
