package socketio

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/roman-kulish/rover-groundlink/internal/socketio/socketiotest"
)

const waitTimeout = 3 * time.Second

func testOptions() Options {
	opts := DefaultOptions()
	opts.ReconnectionDelay = 20 * time.Millisecond
	opts.ReconnectionDelayMax = 50 * time.Millisecond
	opts.Timeout = time.Second
	return opts
}

// recorder turns handler callbacks into channels
type recorder struct {
	connect       chan struct{}
	connectErr    chan error
	disconnect    chan string
	events        chan Event
	reconnectTry  chan int
	reconnected   chan int
	reconnectFail chan struct{}
}

type Event struct {
	Name string
	Args []json.RawMessage
}

func newRecorder() *recorder {
	return &recorder{
		connect:       make(chan struct{}, 16),
		connectErr:    make(chan error, 16),
		disconnect:    make(chan string, 16),
		events:        make(chan Event, 16),
		reconnectTry:  make(chan int, 16),
		reconnected:   make(chan int, 16),
		reconnectFail: make(chan struct{}, 1),
	}
}

func (r *recorder) handler() Handler {
	return Handler{
		OnConnect:          func() { r.connect <- struct{}{} },
		OnConnectError:     func(err error) { r.connectErr <- err },
		OnDisconnect:       func(reason string) { r.disconnect <- reason },
		OnEvent:            func(name string, args []json.RawMessage) { r.events <- Event{name, args} },
		OnReconnectAttempt: func(n int) { r.reconnectTry <- n },
		OnReconnect:        func(n int) { r.reconnected <- n },
		OnReconnectFailed:  func() { r.reconnectFail <- struct{}{} },
	}
}

func receive[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func connect(t *testing.T, srv *socketiotest.Server, opts Options) (*Socket, *recorder) {
	t.Helper()

	rec := newRecorder()
	s, err := New(srv.URL, opts, rec.handler())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(s.Close)

	s.Connect()
	receive(t, rec.connect, "connect")
	return s, rec
}

func TestEndpoint(t *testing.T) {
	testCases := []struct {
		base, path string
		expected   string
		wantErr    bool
	}{
		{"http://192.168.1.29:5001", "/socket.io", "ws://192.168.1.29:5001/socket.io/?EIO=4&transport=websocket", false},
		{"https://rover.local", "socket.io/", "wss://rover.local/socket.io/?EIO=4&transport=websocket", false},
		{"ws://rover:80/", "/rt", "ws://rover:80/rt/?EIO=4&transport=websocket", false},
		{"ftp://rover", "/socket.io", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.base, func(t *testing.T) {
			got, err := Endpoint(tc.base, tc.path)
			if (err != nil) != tc.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestNew_Transports(t *testing.T) {
	if _, err := New("http://localhost", Options{Transports: []string{"polling"}}, Handler{}); !errors.Is(err, ErrNoTransport) {
		t.Errorf("expected ErrNoTransport, got %v", err)
	}
	if _, err := New("http://localhost", Options{Transports: []string{"polling", "websocket"}}, Handler{}); err != nil {
		t.Errorf("polling alongside websocket should be accepted: %v", err)
	}
}

func TestSocket_EventsBothWays(t *testing.T) {
	srv := socketiotest.NewServer()
	defer srv.Close()

	s, rec := connect(t, srv, testOptions())

	if !s.Connected() {
		t.Error("expected socket to report connected")
	}

	if err := srv.EmitRaw("rover_data", `{"mode":"AUTO"}`); err != nil {
		t.Fatalf("emit failed: %v", err)
	}
	ev := receive(t, rec.events, "event")
	if ev.Name != "rover_data" || len(ev.Args) != 1 || string(ev.Args[0]) != `{"mode":"AUTO"}` {
		t.Errorf("unexpected event %s %s", ev.Name, ev.Args)
	}

	if err := s.Emit("ping"); err != nil {
		t.Fatalf("emit failed: %v", err)
	}
	got := receive(t, srv.Received(), "client event")
	if got.Name != "ping" || len(got.Args) != 0 {
		t.Errorf("unexpected client event %+v", got)
	}
}

func TestSocket_ServerDisconnectDoesNotReconnect(t *testing.T) {
	srv := socketiotest.NewServer()
	defer srv.Close()

	s, rec := connect(t, srv, testOptions())

	srv.Disconnect()
	if reason := receive(t, rec.disconnect, "disconnect"); reason != ReasonServerDisconnect {
		t.Errorf("expected %q, got %q", ReasonServerDisconnect, reason)
	}

	select {
	case <-rec.reconnectTry:
		t.Error("server disconnect must not trigger a transport reconnect")
	case <-time.After(200 * time.Millisecond):
	}
	if s.Connected() {
		t.Error("socket should no longer report connected")
	}

	// An explicit Connect reopens the session.
	s.Connect()
	receive(t, rec.connect, "second connect")
}

func TestSocket_TransportDropReconnects(t *testing.T) {
	srv := socketiotest.NewServer()
	defer srv.Close()

	_, rec := connect(t, srv, testOptions())

	srv.Drop()
	reason := receive(t, rec.disconnect, "disconnect")
	if reason != ReasonTransportClose && reason != ReasonTransportError {
		t.Errorf("unexpected reason %q", reason)
	}

	if n := receive(t, rec.reconnectTry, "reconnect attempt"); n != 1 {
		t.Errorf("expected attempt 1, got %d", n)
	}
	if n := receive(t, rec.reconnected, "reconnect"); n != 1 {
		t.Errorf("expected reconnect after attempt 1, got %d", n)
	}
	receive(t, rec.connect, "connect after reconnect")

	if srv.Sessions() != 2 {
		t.Errorf("expected 2 sessions, got %d", srv.Sessions())
	}
}

func TestSocket_ConnectRejected(t *testing.T) {
	srv := socketiotest.NewServer()
	defer srv.Close()
	srv.Reject("unauthorized")

	opts := testOptions()
	opts.Reconnection = false

	rec := newRecorder()
	s, err := New(srv.URL, opts, rec.handler())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.Connect()
	err = receive(t, rec.connectErr, "connect error")
	if !errors.Is(err, ErrConnectRejected) {
		t.Errorf("expected ErrConnectRejected, got %v", err)
	}
}

func TestSocket_HandshakeTimeout(t *testing.T) {
	srv := socketiotest.NewServer()
	defer srv.Close()
	srv.Silence(true)

	opts := testOptions()
	opts.Timeout = 100 * time.Millisecond
	opts.ReconnectionAttempts = 1

	rec := newRecorder()
	s, err := New(srv.URL, opts, rec.handler())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.Connect()
	err = receive(t, rec.connectErr, "connect error")
	if !errors.Is(err, ErrHandshakeTimeout) {
		t.Errorf("expected ErrHandshakeTimeout, got %v", err)
	}

	receive(t, rec.reconnectTry, "reconnect attempt")
	receive(t, rec.reconnectFail, "reconnect failed")
}

func TestSocket_PingTimeout(t *testing.T) {
	srv := socketiotest.NewServer()
	defer srv.Close()
	srv.PingInterval = 0
	srv.PingTimeout = 100 * time.Millisecond

	opts := testOptions()
	opts.Reconnection = false

	_, rec := connect(t, srv, opts)

	if reason := receive(t, rec.disconnect, "disconnect"); reason != ReasonPingTimeout {
		t.Errorf("expected %q, got %q", ReasonPingTimeout, reason)
	}
}

func TestSocket_PingPongKeepsSessionAlive(t *testing.T) {
	srv := socketiotest.NewServer()
	defer srv.Close()
	srv.PingInterval = 30 * time.Millisecond
	srv.PingTimeout = 60 * time.Millisecond

	s, rec := connect(t, srv, testOptions())

	select {
	case reason := <-rec.disconnect:
		t.Fatalf("session dropped while pings were answered: %s", reason)
	case <-time.After(300 * time.Millisecond):
	}
	if !s.Connected() {
		t.Error("expected session to stay connected")
	}
}

func TestSocket_CloseDetachesCallbacks(t *testing.T) {
	srv := socketiotest.NewServer()
	defer srv.Close()

	s, rec := connect(t, srv, testOptions())
	s.Close()

	select {
	case reason := <-rec.disconnect:
		t.Errorf("no callback expected after Close, got disconnect %q", reason)
	case <-time.After(100 * time.Millisecond):
	}

	if err := s.Emit("ping"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}

	s.Connect()
	select {
	case <-rec.connect:
		t.Error("closed socket must not reconnect")
	case <-time.After(100 * time.Millisecond):
	}
}
