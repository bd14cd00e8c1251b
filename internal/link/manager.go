package link

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/rover-groundlink/internal/missionevent"
	"github.com/roman-kulish/rover-groundlink/internal/normalize"
	"github.com/roman-kulish/rover-groundlink/internal/socketio"
	"github.com/roman-kulish/rover-groundlink/internal/telemetry"
)

// State is the connection state exposed to consumers
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// Realtime event names
const (
	EventTelemetry    = "telemetry"
	EventRoverData    = "rover_data"
	EventMissionEvent = "mission_event"
	EventPing         = "ping"
	EventPong         = "pong"
)

const (
	DefaultConnectDelay      = 100 * time.Millisecond
	DefaultHeartbeatInterval = 5 * time.Second
)

// ErrStopped is returned when starting a manager that has been stopped
var ErrStopped = errors.New("link manager stopped")

// Sink consumes normalized telemetry envelopes
type Sink interface {
	Apply(env telemetry.Envelope)
}

// EventSink consumes mission-narration events
type EventSink interface {
	Deliver(e missionevent.Event) bool
}

// WithLogger sets the logger for the manager
func WithLogger(logger *slog.Logger) func(m *Manager) {
	return func(m *Manager) {
		m.logger = logger.With(slog.String("component", "link"))
	}
}

// WithBackoff overrides the initial and maximum reconnect delays
func WithBackoff(initial, limit time.Duration) func(m *Manager) {
	return func(m *Manager) {
		m.initialBackoff = initial
		m.maxBackoff = limit
	}
}

// WithConnectDelay overrides the debounce applied before opening a session
func WithConnectDelay(delay time.Duration) func(m *Manager) {
	return func(m *Manager) {
		m.connectDelay = delay
	}
}

// WithHeartbeatInterval overrides the application-level ping interval
func WithHeartbeatInterval(interval time.Duration) func(m *Manager) {
	return func(m *Manager) {
		m.heartbeatInterval = interval
	}
}

// Manager owns the realtime session: it opens it, keeps it alive with a
// heartbeat, reconnects with backoff and routes inbound events.
type Manager struct {
	dial   Dialer
	sink   Sink
	events EventSink
	logger *slog.Logger

	initialBackoff    time.Duration
	maxBackoff        time.Duration
	connectDelay      time.Duration
	heartbeatInterval time.Duration

	mu             sync.Mutex
	state          State
	started        bool
	stopped        bool
	gen            uint64 // bumped on every teardown; stale callbacks compare against it
	session        Session
	backoff        time.Duration
	connectTimer   *time.Timer
	reconnectTimer *time.Timer
	reconnectSeq   uint64
	heartbeatStop  chan struct{}
	closing        sync.WaitGroup

	notifyMu     sync.Mutex
	lastNotified State
	listeners    map[uint64]func(State)
	nextID       uint64
}

// NewManager creates a manager in the connecting state. Nothing happens
// until Start is called.
func NewManager(dial Dialer, sink Sink, events EventSink, options ...func(m *Manager)) *Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	m := Manager{
		dial:              dial,
		sink:              sink,
		events:            events,
		logger:            logger,
		initialBackoff:    DefaultInitialBackoff,
		maxBackoff:        DefaultMaxBackoff,
		connectDelay:      DefaultConnectDelay,
		heartbeatInterval: DefaultHeartbeatInterval,
		state:             StateConnecting,
		lastNotified:      StateConnecting,
		listeners:         make(map[uint64]func(State)),
	}

	for _, option := range options {
		option(&m)
	}
	m.backoff = m.initialBackoff

	return &m
}

// Start opens the first session
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.connectLocked()
	m.mu.Unlock()

	m.notify()
	return nil
}

// Stop tears down the session and cancels every pending timer. The manager
// cannot be restarted.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.teardownLocked()
	m.mu.Unlock()

	m.closing.Wait()
	m.logger.Info("link stopped")
}

// ForceReconnect resets the backoff and replaces the current session
func (m *Manager) ForceReconnect() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.clearReconnectTimerLocked()
	m.backoff = m.initialBackoff
	m.connectLocked()
	m.mu.Unlock()

	m.logger.Info("manual reconnect")
	m.notify()
}

// EnsureConnected reconnects when there is no live session. It serves
// external "network is back" signals.
func (m *Manager) EnsureConnected() {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	if session == nil || !session.Connected() {
		m.ForceReconnect()
	}
}

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// OnStateChange registers fn to observe state transitions and returns a
// function removing it. Rapid transitions may be coalesced; the last state
// is always delivered.
func (m *Manager) OnStateChange(fn func(State)) (remove func()) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.nextID++
	id := m.nextID
	m.listeners[id] = fn

	return func() {
		m.notifyMu.Lock()
		defer m.notifyMu.Unlock()

		delete(m.listeners, id)
	}
}

func (m *Manager) notify() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	state := m.State()
	if state == m.lastNotified {
		return
	}
	m.lastNotified = state

	for _, fn := range m.listeners {
		fn(state)
	}
}

func (m *Manager) setStateLocked(state State) {
	if m.state != state {
		m.logger.Debug("state changed", slog.String("from", string(m.state)), slog.String("to", string(state)))
	}
	m.state = state
}

// connectLocked tears down the current session and opens a new one after
// the connect delay, coalescing bursts of reconnect requests.
func (m *Manager) connectLocked() {
	m.teardownLocked()
	m.setStateLocked(StateConnecting)

	gen := m.gen
	m.connectTimer = time.AfterFunc(m.connectDelay, func() { m.open(gen) })
}

func (m *Manager) open(gen uint64) {
	m.mu.Lock()
	if m.stopped || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.connectTimer = nil

	session, err := m.dial(m.handler(gen))
	if err != nil {
		m.logger.Error("failed to create session", slog.Any("error", err))
		m.setStateLocked(StateError)
		m.scheduleReconnectLocked()
		m.mu.Unlock()

		m.notify()
		return
	}

	m.session = session
	m.startHeartbeatLocked(session)
	m.mu.Unlock()

	session.Connect()
}

// teardownLocked invalidates the current session and its callbacks, stops
// timers and closes the session in the background.
func (m *Manager) teardownLocked() {
	m.gen++
	m.clearReconnectTimerLocked()

	if m.connectTimer != nil {
		m.connectTimer.Stop()
		m.connectTimer = nil
	}
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}

	if m.session != nil {
		// Close blocks until the session goroutine exits, and teardown may run
		// on that goroutine.
		session := m.session
		m.session = nil
		m.closing.Add(1)
		go func() {
			defer m.closing.Done()
			session.Close()
		}()
	}
}

func (m *Manager) clearReconnectTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.reconnectSeq++
}

// scheduleReconnectLocked arms the reconnect timer unless one is pending
func (m *Manager) scheduleReconnectLocked() {
	if m.reconnectTimer != nil || m.stopped {
		return
	}

	delay := min(m.backoff, m.maxBackoff)
	seq := m.reconnectSeq
	m.logger.Info("reconnect scheduled", slog.Duration("delay", delay))

	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.stopped || seq != m.reconnectSeq {
			m.mu.Unlock()
			return
		}
		m.reconnectTimer = nil
		m.backoff = NextBackoff(m.backoff, m.maxBackoff)
		m.connectLocked()
		m.mu.Unlock()

		m.notify()
	})
}

func (m *Manager) startHeartbeatLocked(session Session) {
	if m.heartbeatInterval <= 0 {
		return
	}

	stop := make(chan struct{})
	m.heartbeatStop = stop

	go func() {
		ticker := time.NewTicker(m.heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !session.Connected() {
					continue
				}
				if err := session.Emit(EventPing); err != nil {
					m.logger.Debug("heartbeat failed", slog.Any("error", err))
				}
			}
		}
	}()
}

// current runs fn under the lock if gen is still the live session and
// reports whether it did.
func (m *Manager) current(gen uint64, fn func()) bool {
	m.mu.Lock()
	if gen != m.gen || m.stopped {
		m.mu.Unlock()
		return false
	}
	fn()
	m.mu.Unlock()

	m.notify()
	return true
}

func (m *Manager) handler(gen uint64) socketio.Handler {
	return socketio.Handler{
		OnConnect: func() {
			var session Session
			ok := m.current(gen, func() {
				m.clearReconnectTimerLocked()
				m.backoff = m.initialBackoff
				m.setStateLocked(StateConnected)
				session = m.session
			})
			if !ok || session == nil {
				return
			}

			m.logger.Info("connected")
			if err := session.Emit(EventPing); err != nil {
				m.logger.Debug("initial ping failed", slog.Any("error", err))
			}
		},
		OnConnectError: func(err error) {
			m.current(gen, func() {
				m.logger.Error("connection error", slog.Any("error", err))
				m.setStateLocked(StateError)
				m.scheduleReconnectLocked()
			})
		},
		OnDisconnect: func(reason string) {
			m.current(gen, func() {
				m.logger.Warn("disconnected", slog.String("reason", reason))
				m.setStateLocked(StateDisconnected)

				if reason == socketio.ReasonServerDisconnect {
					m.connectLocked()
					return
				}
				m.scheduleReconnectLocked()
			})
		},
		OnReconnectAttempt: func(attempt int) {
			m.current(gen, func() {
				m.logger.Debug("transport reconnect attempt", slog.Int("attempt", attempt))
				m.setStateLocked(StateConnecting)
			})
		},
		OnReconnect: func(attempt int) {
			m.current(gen, func() {
				m.logger.Info("transport reconnected", slog.Int("attempts", attempt))
				m.clearReconnectTimerLocked()
				m.backoff = m.initialBackoff
				m.setStateLocked(StateConnected)
			})
		},
		OnReconnectError: func(err error) {
			m.current(gen, func() {
				m.logger.Error("transport reconnect failed", slog.Any("error", err))
				m.setStateLocked(StateError)
			})
		},
		OnReconnectFailed: func() {
			m.current(gen, func() {
				m.logger.Error("transport gave up reconnecting")
				m.clearReconnectTimerLocked()
				m.setStateLocked(StateError)
			})
		},
		OnEvent: func(name string, args []json.RawMessage) {
			m.mu.Lock()
			live := gen == m.gen && !m.stopped
			m.mu.Unlock()

			if live {
				m.route(name, args)
			}
		},
	}
}

// route normalizes an inbound event and hands it to the matching consumer
func (m *Manager) route(name string, args []json.RawMessage) {
	var payload json.RawMessage
	if len(args) > 0 {
		payload = args[0]
	}

	switch name {
	case EventTelemetry, EventRoverData:
		normalizer := normalize.Bridge
		if name == EventRoverData {
			normalizer = normalize.RoverData
		}

		env, ok := normalizer(payload)
		if !ok {
			m.logger.Debug("ignoring unrecognized payload", slog.String("event", name))
			return
		}
		m.logger.Debug("envelope received", slog.String("event", name), slog.Int64("ts", env.Timestamp))
		m.sink.Apply(env)

	case EventMissionEvent:
		e, err := missionevent.Parse(payload)
		if err != nil {
			m.logger.Debug("mission event is not an object", slog.Any("error", err))
		}
		if m.events != nil && !m.events.Deliver(e) {
			m.logger.Debug("mission event discarded, no subscriber")
		}

	case EventPong:
		m.logger.Debug("pong received")

	default:
		m.logger.Debug("ignoring event", slog.String("event", name))
	}
}
