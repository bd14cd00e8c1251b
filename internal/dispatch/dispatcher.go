package dispatch

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/rover-groundlink/internal/telemetry"
)

// DefaultThrottle is the minimum interval between two published snapshots (~30 Hz)
const DefaultThrottle = 33 * time.Millisecond

// Subscriber receives every published snapshot. The snapshot is shared and
// must be treated as read-only.
type Subscriber func(t *telemetry.Telemetry)

// WithLogger sets the logger for the dispatcher
func WithLogger(logger *slog.Logger) func(d *Dispatcher) {
	return func(d *Dispatcher) {
		d.logger = logger.With(slog.String("component", "dispatch"))
	}
}

// WithThrottle overrides DefaultThrottle
func WithThrottle(throttle time.Duration) func(d *Dispatcher) {
	return func(d *Dispatcher) {
		d.throttle = throttle
	}
}

// Dispatcher owns the mutable telemetry record. Envelopes are merged in
// arrival order; merged state is published at most once per throttle window,
// with a trailing publish carrying the most recent state.
type Dispatcher struct {
	throttle time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	record      *telemetry.Telemetry
	seq         uint64
	lastPublish time.Time
	timer       *time.Timer
	pending     uint64 // seq the armed timer was scheduled for, 0 when idle
	stopped     bool

	pubMu        sync.Mutex
	publishedSeq uint64
	published    atomic.Pointer[telemetry.Telemetry]
	subscribers  map[uint64]Subscriber
	nextID       uint64
}

// New creates a dispatcher seeded with telemetry.Default()
func New(options ...func(d *Dispatcher)) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	initial := telemetry.Default()
	d := Dispatcher{
		throttle:    DefaultThrottle,
		logger:      logger,
		record:      initial.Clone(),
		subscribers: make(map[uint64]Subscriber),
	}
	d.published.Store(&initial)

	for _, option := range options {
		option(&d)
	}

	return &d
}

// Apply merges env into the record and publishes it now, or defers the
// publish to the end of the current throttle window. Empty envelopes are
// ignored.
func (d *Dispatcher) Apply(env telemetry.Envelope) {
	if env.IsEmpty() {
		d.logger.Debug("ignoring empty envelope")
		return
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	d.record.Apply(env)
	d.seq++

	now := time.Now()
	elapsed := now.Sub(d.lastPublish)
	if elapsed >= d.throttle {
		d.cancelPendingLocked()
		d.lastPublish = now
		snapshot, seq := d.record.Clone(), d.seq
		d.mu.Unlock()

		d.publish(snapshot, seq)
		return
	}

	// A newer deferred publish supersedes the armed one.
	d.cancelPendingLocked()
	seq := d.seq
	d.pending = seq
	d.timer = time.AfterFunc(d.throttle-elapsed, func() { d.flush(seq) })
	d.mu.Unlock()

	d.logger.Debug("publish deferred", slog.Uint64("seq", seq), slog.Duration("in", d.throttle-elapsed))
}

func (d *Dispatcher) cancelPendingLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = 0
}

func (d *Dispatcher) flush(seq uint64) {
	d.mu.Lock()
	if d.stopped || d.pending != seq {
		d.mu.Unlock()
		return
	}

	d.timer = nil
	d.pending = 0
	d.lastPublish = time.Now()
	snapshot, current := d.record.Clone(), d.seq
	d.mu.Unlock()

	d.publish(snapshot, current)
}

func (d *Dispatcher) publish(snapshot *telemetry.Telemetry, seq uint64) {
	d.pubMu.Lock()
	defer d.pubMu.Unlock()

	if seq <= d.publishedSeq {
		return
	}
	d.publishedSeq = seq
	d.published.Store(snapshot)

	for _, sub := range d.subscribers {
		sub(snapshot)
	}
}

// Snapshot returns the most recently published telemetry. It must not be modified.
func (d *Dispatcher) Snapshot() *telemetry.Telemetry {
	return d.published.Load()
}

// Get implements telemetry.Provider
func (d *Dispatcher) Get() *telemetry.Telemetry {
	return d.Snapshot()
}

// Current returns a copy of the mutable record, including merges that have
// not been published yet.
func (d *Dispatcher) Current() *telemetry.Telemetry {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.record.Clone()
}

// Subscribe registers fn for every subsequent publish and returns a function
// that removes it. Subscribers run synchronously on the publishing goroutine
// and must not call Apply.
func (d *Dispatcher) Subscribe(fn Subscriber) (unsubscribe func()) {
	d.pubMu.Lock()
	defer d.pubMu.Unlock()

	d.nextID++
	id := d.nextID
	d.subscribers[id] = fn

	return func() {
		d.pubMu.Lock()
		defer d.pubMu.Unlock()

		delete(d.subscribers, id)
	}
}

// Stop cancels a pending deferred publish. Subsequent envelopes are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.cancelPendingLocked()
}
