package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"inputsentry/internal/verdict"
)

// Reporter delivers a verdict to whatever collects them.
type Reporter interface {
	Report(ctx context.Context, v verdict.Verdict) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, v verdict.Verdict) error

// Report implements Reporter.
func (f ReporterFunc) Report(ctx context.Context, v verdict.Verdict) error { return f(ctx, v) }

// Drop reasons passed to Observer.ReportDropped.
const (
	DropQueueFull = "queue_full"
	DropStopped   = "stopped"
)

// dispatcher is a bounded outbound queue drained by one worker. Enqueue
// never blocks: when the queue is full the verdict is dropped. Failed
// deliveries are logged and not retried.
type dispatcher struct {
	queue    chan verdict.Verdict
	reporter Reporter
	timeout  time.Duration
	logger   *slog.Logger
	observer Observer

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	dropped   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

func newDispatcher(r Reporter, size int, timeout time.Duration, logger *slog.Logger, obs Observer) *dispatcher {
	return &dispatcher{
		queue:    make(chan verdict.Verdict, size),
		reporter: r,
		timeout:  timeout,
		logger:   logger,
		observer: obs,
		done:     make(chan struct{}),
	}
}

// enqueue hands v to the worker. It reports whether v was accepted.
func (d *dispatcher) enqueue(v verdict.Verdict) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(DropStopped)
		return false
	}
	select {
	case d.queue <- v:
		return true
	default:
		d.drop(DropQueueFull)
		return false
	}
}

func (d *dispatcher) drop(reason string) {
	d.dropped.Add(1)
	d.observer.ReportDropped(reason)
	d.logger.Warn("verdict dropped", "reason", reason)
}

// run drains the queue until it is closed or ctx is done. Once ctx is done
// the dispatcher refuses new verdicts and counts queued ones as dropped.
func (d *dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		if ctx.Err() != nil {
			d.abandon()
			return
		}
		select {
		case <-ctx.Done():
			d.abandon()
			return
		case v, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(ctx, v)
		}
	}
}

func (d *dispatcher) abandon() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	for range d.queue {
		d.drop(DropStopped)
	}
}

func (d *dispatcher) deliver(ctx context.Context, v verdict.Verdict) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.reporter.Report(ctx, v); err != nil {
		d.failed.Add(1)
		d.observer.ReportFailed()
		d.logger.Warn("verdict delivery failed",
			"error", err,
			"suspicious", v.Suspicious,
			"confidence", v.Confidence,
		)
		return
	}
	d.delivered.Add(1)
	d.observer.ReportDelivered()
}

// close stops accepting verdicts and waits for the worker to finish what
// is already queued.
func (d *dispatcher) close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}
