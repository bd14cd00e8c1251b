package link

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roman-kulish/rover-groundlink/internal/missionevent"
	"github.com/roman-kulish/rover-groundlink/internal/socketio"
	"github.com/roman-kulish/rover-groundlink/internal/telemetry"
)

const waitTimeout = 3 * time.Second

var errRefused = errors.New("connection refused")

// fakeSession simulates a transport; its outcome on Connect is decided by
// the harness.
type fakeSession struct {
	h       socketio.Handler
	succeed bool

	connected atomic.Bool
	closed    atomic.Bool

	mu      sync.Mutex
	emitted []string
}

func (s *fakeSession) Connect() {
	go func() {
		if s.succeed {
			s.connected.Store(true)
			s.h.OnConnect()
			return
		}
		s.h.OnConnectError(errRefused)
	}()
}

func (s *fakeSession) Connected() bool {
	return s.connected.Load()
}

func (s *fakeSession) Emit(event string, _ ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.emitted = append(s.emitted, event)
	return nil
}

func (s *fakeSession) Close() {
	s.closed.Store(true)
	s.connected.Store(false)
}

func (s *fakeSession) pings() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.emitted {
		if e == EventPing {
			n++
		}
	}
	return n
}

// drop simulates the transport losing the session
func (s *fakeSession) drop(reason string) {
	s.connected.Store(false)
	s.h.OnDisconnect(reason)
}

type dial struct {
	at      time.Time
	session *fakeSession
}

type harness struct {
	succeed atomic.Bool
	dials   chan dial
}

func (h *harness) dialer() Dialer {
	return func(handler socketio.Handler) (Session, error) {
		s := &fakeSession{h: handler, succeed: h.succeed.Load()}
		h.dials <- dial{at: time.Now(), session: s}
		return s, nil
	}
}

func (h *harness) next(t *testing.T) dial {
	t.Helper()

	select {
	case d := <-h.dials:
		return d
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a dial")
	}
	return dial{}
}

func (h *harness) none(t *testing.T, within time.Duration) {
	t.Helper()

	select {
	case <-h.dials:
		t.Fatal("unexpected dial")
	case <-time.After(within):
	}
}

type sinkRecorder struct {
	mu        sync.Mutex
	envelopes []telemetry.Envelope
}

func (s *sinkRecorder) Apply(env telemetry.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.envelopes = append(s.envelopes, env)
}

func (s *sinkRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.envelopes)
}

func newTestManager(t *testing.T, succeed bool, options ...func(m *Manager)) (*Manager, *harness, *sinkRecorder, *missionevent.Relay) {
	t.Helper()

	h := &harness{dials: make(chan dial, 64)}
	h.succeed.Store(succeed)

	sink := &sinkRecorder{}
	relay := &missionevent.Relay{}

	defaults := []func(m *Manager){
		WithConnectDelay(time.Millisecond),
		WithBackoff(50*time.Millisecond, 400*time.Millisecond),
		WithHeartbeatInterval(0),
	}
	m := NewManager(h.dialer(), sink, relay, append(defaults, options...)...)
	t.Cleanup(m.Stop)

	return m, h, sink, relay
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

func waitState(t *testing.T, m *Manager, expected State) {
	t.Helper()

	if !eventually(func() bool { return m.State() == expected }) {
		t.Fatalf("expected state %q, got %q", expected, m.State())
	}
}

func TestNextBackoff(t *testing.T) {
	current := DefaultInitialBackoff
	expected := []time.Duration{
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		3375 * time.Millisecond,
		5062 * time.Millisecond,
		7593 * time.Millisecond,
		8000 * time.Millisecond,
		8000 * time.Millisecond,
	}

	for i, want := range expected {
		current = NextBackoff(current, DefaultMaxBackoff)
		if current != want {
			t.Errorf("step %d: expected %v, got %v", i+1, want, current)
		}
	}
}

func TestManager_StartConnects(t *testing.T) {
	m, h, _, _ := newTestManager(t, true)

	if m.State() != StateConnecting {
		t.Errorf("expected initial state %q, got %q", StateConnecting, m.State())
	}

	var (
		mu     sync.Mutex
		states []State
	)
	m.OnStateChange(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	})

	if err := m.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := h.next(t)
	waitState(t, m, StateConnected)

	if !eventually(func() bool { return d.session.pings() == 1 }) {
		t.Errorf("expected a ping on connect, got %d", d.session.pings())
	}

	observed := eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) > 0 && states[len(states)-1] == StateConnected
	})
	if !observed {
		t.Error("listener should observe connected")
	}
}

func TestManager_UncleanDisconnectUsesBackoff(t *testing.T) {
	const initial = 100 * time.Millisecond

	m, h, _, _ := newTestManager(t, true, WithBackoff(initial, time.Second))
	_ = m.Start()

	d := h.next(t)
	waitState(t, m, StateConnected)

	dropped := time.Now()
	d.session.drop(socketio.ReasonTransportClose)
	waitState(t, m, StateDisconnected)

	next := h.next(t)
	elapsed := next.at.Sub(dropped)
	if elapsed < initial {
		t.Errorf("reconnect attempt after %v, expected no sooner than %v", elapsed, initial)
	}
	if elapsed > initial+500*time.Millisecond {
		t.Errorf("reconnect attempt after %v, expected shortly after %v", elapsed, initial)
	}
	if !d.session.closed.Load() {
		t.Error("previous session should be closed")
	}

	waitState(t, m, StateConnected)
}

func TestManager_ServerDisconnectReconnectsImmediately(t *testing.T) {
	const initial = time.Second

	m, h, _, _ := newTestManager(t, true, WithBackoff(initial, 2*time.Second))
	_ = m.Start()

	d := h.next(t)
	waitState(t, m, StateConnected)

	dropped := time.Now()
	d.session.drop(socketio.ReasonServerDisconnect)

	next := h.next(t)
	if elapsed := next.at.Sub(dropped); elapsed >= initial {
		t.Errorf("server disconnect should skip the backoff, reconnected after %v", elapsed)
	}
	waitState(t, m, StateConnected)
}

func TestManager_BackoffGrowsAndCaps(t *testing.T) {
	const (
		initial  = 20 * time.Millisecond
		maxDelay = 60 * time.Millisecond
	)

	m, h, _, _ := newTestManager(t, false, WithBackoff(initial, maxDelay))
	_ = m.Start()

	// Delays between attempts: 20, 30, 45, 60 (capped from 67), 60
	expected := []time.Duration{20, 30, 45, 60, 60}

	prev := h.next(t)
	for i, want := range expected {
		d := h.next(t)
		gap := d.at.Sub(prev.at)
		want *= time.Millisecond

		if gap < want {
			t.Errorf("attempt %d: gap %v shorter than backoff %v", i+2, gap, want)
		}
		if gap > maxDelay+250*time.Millisecond {
			t.Errorf("attempt %d: gap %v exceeds the cap", i+2, gap)
		}
		prev = d
	}

	if m.State() != StateError && m.State() != StateConnecting {
		t.Errorf("unexpected state %q while failing", m.State())
	}
}

func TestManager_ConnectResetsBackoff(t *testing.T) {
	const initial = 30 * time.Millisecond

	m, h, _, _ := newTestManager(t, false, WithBackoff(initial, time.Second))
	_ = m.Start()

	h.next(t)
	h.next(t) // after 30ms
	h.succeed.Store(true)
	d := h.next(t) // after 45ms
	waitState(t, m, StateConnected)

	dropped := time.Now()
	d.session.drop(socketio.ReasonTransportError)

	next := h.next(t)
	if elapsed := next.at.Sub(dropped); elapsed > initial+200*time.Millisecond {
		t.Errorf("backoff should reset after a successful connect, waited %v", elapsed)
	}
}

func TestManager_StaleSessionIgnored(t *testing.T) {
	m, h, _, _ := newTestManager(t, true)
	_ = m.Start()

	old := h.next(t)
	waitState(t, m, StateConnected)

	m.ForceReconnect()
	fresh := h.next(t)
	waitState(t, m, StateConnected)

	if !old.session.closed.Load() {
		t.Error("forced reconnect should close the previous session")
	}

	old.session.drop(socketio.ReasonTransportClose)
	old.session.h.OnConnectError(errRefused)

	h.none(t, 150*time.Millisecond)
	if m.State() != StateConnected {
		t.Errorf("stale callbacks changed the state to %q", m.State())
	}
	if fresh.session.closed.Load() {
		t.Error("stale callbacks should not affect the live session")
	}
}

func TestManager_TransportReconnectEvents(t *testing.T) {
	m, h, _, _ := newTestManager(t, true, WithBackoff(200*time.Millisecond, time.Second))
	_ = m.Start()

	d := h.next(t)
	waitState(t, m, StateConnected)

	d.session.drop(socketio.ReasonPingTimeout)
	waitState(t, m, StateDisconnected)

	d.session.h.OnReconnectAttempt(1)
	waitState(t, m, StateConnecting)

	d.session.h.OnReconnectError(errRefused)
	waitState(t, m, StateError)

	d.session.h.OnReconnect(2)
	waitState(t, m, StateConnected)

	// The transport recovered on its own, so the scheduled reconnect is cancelled.
	h.none(t, 400*time.Millisecond)
}

func TestManager_EnsureConnected(t *testing.T) {
	m, h, _, _ := newTestManager(t, true, WithBackoff(time.Hour, time.Hour))
	_ = m.Start()

	d := h.next(t)
	waitState(t, m, StateConnected)

	m.EnsureConnected()
	h.none(t, 50*time.Millisecond)

	d.session.drop(socketio.ReasonTransportClose)
	waitState(t, m, StateDisconnected)

	m.EnsureConnected()
	h.next(t)
	waitState(t, m, StateConnected)
}

func TestManager_Heartbeat(t *testing.T) {
	m, h, _, _ := newTestManager(t, true, WithHeartbeatInterval(20*time.Millisecond))
	_ = m.Start()

	d := h.next(t)
	waitState(t, m, StateConnected)

	time.Sleep(150 * time.Millisecond)
	if n := d.session.pings(); n < 3 {
		t.Errorf("expected periodic pings, got %d", n)
	}
}

func TestManager_RoutesEvents(t *testing.T) {
	m, h, sink, relay := newTestManager(t, true)
	_ = m.Start()

	d := h.next(t)
	waitState(t, m, StateConnected)

	var received []missionevent.Event
	relay.Subscribe(func(e missionevent.Event) { received = append(received, e) })

	on := d.session.h.OnEvent
	on(EventRoverData, []json.RawMessage{json.RawMessage(`{"mode":"AUTO"}`)})
	on(EventTelemetry, []json.RawMessage{json.RawMessage(`{"battery":{"voltage":12.1}}`)})
	on(EventTelemetry, []json.RawMessage{json.RawMessage(`{}`)})
	on(EventRoverData, nil)
	on(EventPong, nil)
	on("unknown", []json.RawMessage{json.RawMessage(`{"mode":"AUTO"}`)})
	on(EventMissionEvent, []json.RawMessage{json.RawMessage(`{"timestamp":"t","message":"Waypoint 2 reached","waypointId":2}`)})

	if n := sink.count(); n != 2 {
		t.Errorf("expected 2 recognized envelopes, got %d", n)
	}
	if len(received) != 1 || received[0].Message != "Waypoint 2 reached" {
		t.Errorf("unexpected mission events %+v", received)
	}
}

func TestManager_StopTearsDown(t *testing.T) {
	m, h, sink, _ := newTestManager(t, true)
	_ = m.Start()

	d := h.next(t)
	waitState(t, m, StateConnected)

	m.Stop()
	if !d.session.closed.Load() {
		t.Error("stop should close the session")
	}

	d.session.h.OnEvent(EventRoverData, []json.RawMessage{json.RawMessage(`{"mode":"AUTO"}`)})
	d.session.drop(socketio.ReasonTransportClose)

	h.none(t, 150*time.Millisecond)
	if sink.count() != 0 {
		t.Error("events after stop should be dropped")
	}
	if err := m.Start(); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}
