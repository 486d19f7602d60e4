package engine

import (
	"time"

	"inputsentry/internal/event"
	"inputsentry/internal/verdict"
)

// Observer receives engine telemetry. Calls are made outside the engine
// lock and must not block.
type Observer interface {
	EventIngested(kind event.Kind)
	EventRejected(reason string)
	PassCompleted(duration time.Duration, produced bool)
	VerdictProduced(v verdict.Verdict)
	ReportDelivered()
	ReportFailed()
	ReportDropped(reason string)
	BufferSize(n int)
}

type nopObserver struct{}

func (nopObserver) EventIngested(event.Kind) {}
func (nopObserver) EventRejected(string) {}
func (nopObserver) PassCompleted(time.Duration, bool) {}
func (nopObserver) VerdictProduced(verdict.Verdict) {}
func (nopObserver) ReportDelivered() {}
func (nopObserver) ReportFailed() {}
func (nopObserver) ReportDropped(string) {}
func (nopObserver) BufferSize(int) {}
