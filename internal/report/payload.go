// Package report delivers verdicts to external collectors.
package report

import (
	"inputsentry/internal/verdict"
)

// PayloadType is the type tag collectors expect on behavioral verdicts.
const PayloadType = "behavioral_analysis"

// Payload is the JSON body posted to a collector.
type Payload struct {
	Timestamp  int64               `json:"timestamp"`
	Type       string              `json:"type"`
	Suspicious bool                `json:"suspicious"`
	Confidence float64             `json:"confidence"`
	Reasons    []string            `json:"reasons"`
	Patterns   verdict.WindowStats `json:"patterns"`
	UserAgent  string              `json:"user_agent"`
	TargetApp  string              `json:"target_app"`
}

// NewPayload builds the wire payload for v. Confidence is sent unclamped.
func NewPayload(v verdict.Verdict, userAgent, targetApp string) Payload {
	reasons := v.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return Payload{
		Timestamp:  v.Timestamp.UnixMilli(),
		Type:       PayloadType,
		Suspicious: v.Suspicious,
		Confidence: v.Confidence,
		Reasons:    reasons,
		Patterns:   v.Stats,
		UserAgent:  userAgent,
		TargetApp:  targetApp,
	}
}
