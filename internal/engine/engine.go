// Package engine runs windowed behavioral analysis over a stream of
// normalized input records.
//
// An Engine owns one event buffer and its configuration. Every valid record
// is appended; an analysis pass over the latest window runs at most once per
// MinPassInterval regardless of how fast records arrive. Verdicts are handed
// to a Reporter through a bounded queue so that a slow or failing collector
// never stalls capture.
//
// Engines are independent: construct one per capture session.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"inputsentry/internal/buffer"
	"inputsentry/internal/event"
	"inputsentry/internal/verdict"
)

var (
	// ErrInvalidRecord wraps the validation error of a rejected record.
	ErrInvalidRecord = errors.New("engine: invalid record")

	// ErrNotActive is returned by Ingest before Start or after Stop.
	ErrNotActive = errors.New("engine: not active")

	// ErrAlreadyRunning is returned when Start is called while running.
	ErrAlreadyRunning = errors.New("engine: already running")

	// ErrNotRunning is returned when Stop is called while stopped.
	ErrNotRunning = errors.New("engine: not running")
)

// State is the scheduler state.
type State int

const (
	// StateIdle means no pass is in progress.
	StateIdle State = iota
	// StatePending means a pass is running on a window snapshot.
	StatePending
)

// String returns a human-readable name for the state.
func (s State) String() string {
	if s == StatePending {
		return "pending"
	}
	return "idle"
}

// Engine is one analysis session.
type Engine struct {
	mu sync.Mutex

	cfg        Config
	buf        *buffer.Ring
	aggregator *verdict.Aggregator

	// targets seen since the last reset
	applications map[string]struct{}

	session  uuid.UUID
	active   bool
	state    State
	lastPass time.Time
	passes   uint64
	verdicts uint64
	last     *verdict.Verdict

	reporter   Reporter
	dispatcher *dispatcher
	dropped    uint64 // carried over from stopped dispatchers

	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithReporter sets where verdicts are delivered.
func WithReporter(r Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver sets the telemetry observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithSession sets the initial session identifier. Reset still assigns a
// fresh one.
func WithSession(id uuid.UUID) Option {
	return func(e *Engine) {
		if id != uuid.Nil {
			e.session = id
		}
	}
}

// WithClock overrides the wall clock used for scheduling and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an inactive engine. Call Start before ingesting.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:          cfg,
		buf:          buffer.New(cfg.BufferCapacity),
		applications: make(map[string]struct{}),
		session:      uuid.New(),
		logger:       slog.Default().With("component", "engine"),
		observer:     nopObserver{},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.aggregator = e.newAggregator(cfg)
	return e, nil
}

func (e *Engine) newAggregator(cfg Config) *verdict.Aggregator {
	a := verdict.NewAggregator(cfg.Thresholds, cfg.Weights, cfg.MinWindow)
	a.SetClock(e.now)
	return a
}

// Start activates the engine and, if a reporter is set, launches the
// delivery worker. Cancelling ctx stops delivery; queued verdicts are then
// dropped.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active {
		return ErrAlreadyRunning
	}
	e.active = true

	if e.reporter != nil {
		e.dispatcher = newDispatcher(e.reporter, e.cfg.QueueSize, e.cfg.ReportTimeout, e.logger, e.observer)
		go e.dispatcher.run(ctx)
	}

	e.logger.Info("engine started",
		"session", e.session.String(),
		"buffer_capacity", e.buf.Cap(),
		"window", e.cfg.WindowSize,
		"min_pass_interval", e.cfg.MinPassInterval,
	)
	return nil
}

// Stop deactivates the engine and waits for queued verdicts to be
// delivered.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.active = false
	d := e.dispatcher
	e.dispatcher = nil
	e.mu.Unlock()

	if d != nil {
		d.close()
		e.mu.Lock()
		e.dropped += d.dropped.Load()
		e.mu.Unlock()
	}

	e.logger.Info("engine stopped", "session", e.session.String())
	return nil
}

// Ingest validates and buffers rec, running an analysis pass if one is due.
// The verdict of that pass is returned; it is nil when no pass ran or the
// window was too small. A malformed record is rejected without affecting
// the stream.
func (e *Engine) Ingest(rec event.Record) (*verdict.Verdict, error) {
	if err := rec.Validate(); err != nil {
		e.observer.EventRejected(rejectReason(err))
		e.logger.Debug("record rejected", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return nil, ErrNotActive
	}

	e.buf.Append(rec)
	if rec.Target != "" && rec.Target != "window" {
		e.applications[rec.Target] = struct{}{}
	}
	size := e.buf.Len()

	due := e.state == StateIdle && e.now().Sub(e.lastPass) > e.cfg.MinPassInterval
	var window []event.Record
	var agg *verdict.Aggregator
	if due {
		e.state = StatePending
		window = e.buf.Window(e.cfg.WindowSize)
		agg = e.aggregator
	}
	e.mu.Unlock()

	e.observer.EventIngested(rec.Kind)
	e.observer.BufferSize(size)

	if !due {
		return nil, nil
	}
	return e.pass(window, agg), nil
}

// Analyze runs a pass immediately, ignoring the pass interval. It returns
// nil if a pass is already in progress or the window is too small.
func (e *Engine) Analyze() *verdict.Verdict {
	e.mu.Lock()
	if e.state == StatePending {
		e.mu.Unlock()
		return nil
	}
	e.state = StatePending
	window := e.buf.Window(e.cfg.WindowSize)
	agg := e.aggregator
	e.mu.Unlock()

	return e.pass(window, agg)
}

// pass evaluates a window snapshot outside the lock.
func (e *Engine) pass(window []event.Record, agg *verdict.Aggregator) *verdict.Verdict {
	start := time.Now()
	v, ok := agg.Evaluate(window)
	elapsed := time.Since(start)

	e.mu.Lock()
	e.state = StateIdle
	e.lastPass = e.now()
	e.passes++
	if ok {
		e.verdicts++
		last := v
		e.last = &last
	}
	d := e.dispatcher
	reportAll := e.cfg.ReportAll
	e.mu.Unlock()

	e.observer.PassCompleted(elapsed, ok)
	if !ok {
		return nil
	}

	e.observer.VerdictProduced(v)
	if v.Suspicious {
		e.logger.Info("suspicious input detected",
			"confidence", v.Confidence,
			"severity", v.Severity().String(),
			"reasons", v.Reasons,
		)
	} else {
		e.logger.Debug("window analyzed", "events", v.Stats.TotalEvents)
	}

	if d != nil && (v.Suspicious || reportAll) {
		d.enqueue(v)
	}
	return &v
}

// Stats is a read-only snapshot of engine state.
type Stats struct {
	Session      string           `json:"session"`
	BufferSize   int              `json:"buffer_size"`
	Capacity     int              `json:"capacity"`
	Active       bool             `json:"active"`
	State        string           `json:"state"`
	Applications []string         `json:"applications"`
	Recent       []event.Record   `json:"recent"`
	Passes       uint64           `json:"passes"`
	Verdicts     uint64           `json:"verdicts"`
	Dropped      uint64           `json:"dropped"`
	LastPass     time.Time        `json:"last_pass"`
	LastVerdict  *verdict.Verdict `json:"last_verdict,omitempty"`
}

// Statistics returns a snapshot. It has no side effects.
func (e *Engine) Statistics() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	apps := make([]string, 0, len(e.applications))
	for a := range e.applications {
		apps = append(apps, a)
	}
	sort.Strings(apps)

	dropped := e.dropped
	if e.dispatcher != nil {
		dropped += e.dispatcher.dropped.Load()
	}

	s := Stats{
		Session:      e.session.String(),
		BufferSize:   e.buf.Len(),
		Capacity:     e.buf.Cap(),
		Active:       e.active,
		State:        e.state.String(),
		Applications: apps,
		Recent:       e.buf.Window(e.cfg.RecentCount),
		Passes:       e.passes,
		Verdicts:     e.verdicts,
		Dropped:      dropped,
		LastPass:     e.lastPass,
	}
	if e.last != nil {
		last := *e.last
		last.Reasons = append([]string(nil), e.last.Reasons...)
		s.LastVerdict = &last
	}
	return s
}

// Reset clears the buffer and the application tracking state and starts a
// new session. A pending buffer capacity change is applied here.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.buf.Cap() != e.cfg.BufferCapacity {
		e.buf = buffer.New(e.cfg.BufferCapacity)
	} else {
		e.buf.Reset()
	}
	clear(e.applications)
	e.last = nil
	e.session = uuid.New()

	e.logger.Info("engine reset", "session", e.session.String())
}

// SetConfig swaps thresholds, weights and scheduling for subsequent passes.
func (e *Engine) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	agg := e.newAggregator(cfg)

	e.mu.Lock()
	e.cfg = cfg
	e.aggregator = agg
	e.mu.Unlock()

	e.logger.Info("engine config updated")
	return nil
}

// Config returns the current configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Session returns the current session identifier.
func (e *Engine) Session() uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, event.ErrUnknownKind):
		return "unknown_kind"
	case errors.Is(err, event.ErrBadTimestamp):
		return "bad_timestamp"
	case errors.Is(err, event.ErrMissingKeyClass):
		return "missing_key_class"
	case errors.Is(err, event.ErrUnexpectedField), errors.Is(err, event.ErrUnknownModifiers):
		return "unexpected_field"
	default:
		return "invalid"
	}
}
