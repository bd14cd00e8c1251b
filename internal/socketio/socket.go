package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Disconnect reasons reported to Handler.OnDisconnect
const (
	ReasonServerDisconnect = "io server disconnect"
	ReasonClientDisconnect = "io client disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
	ReasonPingTimeout      = "ping timeout"
)

var (
	// ErrHandshakeTimeout is returned when the server does not complete the handshake in time
	ErrHandshakeTimeout = errors.New("handshake timeout")

	// ErrNotConnected is returned when emitting on a socket without an established session
	ErrNotConnected = errors.New("socket not connected")

	// ErrNoTransport is returned when the transport list does not contain a supported transport
	ErrNoTransport = errors.New("no supported transport configured")

	// ErrConnectRejected is returned when the server answers the namespace connect with an error
	ErrConnectRejected = errors.New("connect rejected")
)

// Handler receives session lifecycle notifications and inbound events.
// Nil fields are skipped. All callbacks run on the socket's own goroutine
// in the order the underlying events occur.
type Handler struct {
	OnConnect      func()
	OnConnectError func(err error)
	OnDisconnect   func(reason string)
	OnEvent        func(name string, args []json.RawMessage)

	OnReconnectAttempt func(attempt int)
	OnReconnect        func(attempt int)
	OnReconnectError   func(err error)
	OnReconnectFailed  func()
}

// WithLogger sets the logger for the socket
func WithLogger(logger *slog.Logger) func(s *Socket) {
	return func(s *Socket) {
		s.logger = logger.With(slog.String("component", "socketio"))
	}
}

// WithDialer replaces the default WebSocket dialer
func WithDialer(dialer *websocket.Dialer) func(s *Socket) {
	return func(s *Socket) {
		s.dialer = dialer
	}
}

// Socket is a Socket.IO client session over a WebSocket transport
type Socket struct {
	endpoint string
	opts     Options
	dialer   *websocket.Dialer
	logger   *slog.Logger

	handler  atomic.Pointer[Handler]
	detached atomic.Bool

	mu        sync.Mutex
	running   bool
	connected bool
	conn      *websocket.Conn
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	writeMu sync.Mutex
	backoff *Backoff
}

// New creates a socket for the server at baseURL. The session is not opened
// until Connect is called.
func New(baseURL string, opts Options, h Handler, options ...func(s *Socket)) (*Socket, error) {
	s := Socket{
		opts:   opts,
		dialer: websocket.DefaultDialer,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}
	s.handler.Store(&h)

	for _, option := range options {
		option(&s)
	}

	defaults := DefaultOptions()
	if s.opts.ReconnectionDelay <= 0 {
		s.opts.ReconnectionDelay = defaults.ReconnectionDelay
	}
	if s.opts.ReconnectionDelayMax < s.opts.ReconnectionDelay {
		s.opts.ReconnectionDelayMax = max(defaults.ReconnectionDelayMax, s.opts.ReconnectionDelay)
	}
	if s.opts.Path == "" {
		s.opts.Path = DefaultPath
	}
	if len(s.opts.Transports) == 0 {
		s.opts.Transports = defaults.Transports
	}
	if !slices.Contains(s.opts.Transports, TransportWebSocket) {
		return nil, fmt.Errorf("%w: %v", ErrNoTransport, s.opts.Transports)
	}
	for _, t := range s.opts.Transports {
		if t != TransportWebSocket {
			s.logger.Debug("skipping unsupported transport", slog.String("transport", t))
		}
	}

	endpoint, err := Endpoint(baseURL, s.opts.Path)
	if err != nil {
		return nil, err
	}
	s.endpoint = endpoint
	s.backoff = NewBackoff(s.opts.ReconnectionDelay, s.opts.ReconnectionDelayMax, s.opts.RandomizationFactor)

	return &s, nil
}

// Endpoint builds the Engine.IO WebSocket URL for an HTTP(S) base URL
func Endpoint(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base URL scheme %q", u.Scheme)
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = strings.TrimRight(path, "/") + "/"
	u.RawQuery = url.Values{"EIO": {"4"}, "transport": {TransportWebSocket}}.Encode()
	u.Fragment = ""

	return u.String(), nil
}

// Connect opens the session in the background. It is a no-op while a
// session (or its reconnection loop) is already running or after Close.
func (s *Socket) Connect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.detached.Load() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)
}

// Connected reports whether the namespace handshake has completed and the
// session has not been lost since.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connected
}

// Emit sends a named event with JSON-encodable arguments
func (s *Socket) Emit(event string, args ...any) error {
	s.mu.Lock()
	conn, connected := s.conn, s.connected
	s.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	msg, err := encodeEvent(event, args...)
	if err != nil {
		return err
	}

	return s.write(conn, msg)
}

// Close detaches all callbacks and tears the session down. No callback is
// invoked after Close returns. It must not be called from a Handler callback.
func (s *Socket) Close() {
	s.detached.Store(true)

	s.mu.Lock()
	cancel := s.cancel
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		// Polite namespace disconnect, best effort.
		_ = s.write(conn, []byte{engineMessage, packetDisconnect})
	}
	if cancel != nil {
		cancel()
	}

	s.wg.Wait()
}

func (s *Socket) callbacks() *Handler {
	if s.detached.Load() {
		return &Handler{}
	}
	return s.handler.Load()
}

func (s *Socket) write(conn *websocket.Conn, msg []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("writing packet: %w", err)
	}
	return nil
}

// run owns the session: it opens the transport, serves it until it drops and
// applies the reconnection policy.
func (s *Socket) run(ctx context.Context) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	attempt := 0
	for {
		if attempt > 0 {
			if cb := s.callbacks().OnReconnectAttempt; cb != nil {
				cb(attempt)
			}
		}

		conn, hs, err := s.open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			s.logger.Warn("failed to open session", slog.String("endpoint", s.endpoint), slog.Any("error", err))
			if cb := s.callbacks().OnConnectError; cb != nil {
				cb(err)
			}
			if attempt > 0 {
				if cb := s.callbacks().OnReconnectError; cb != nil {
					cb(err)
				}
			}
			if !s.opts.Reconnection {
				return
			}
		} else {
			s.backoff.Reset()
			s.setConn(conn, true)

			s.logger.Info("session connected", slog.String("sid", hs.SID))
			if attempt > 0 {
				if cb := s.callbacks().OnReconnect; cb != nil {
					cb(attempt)
				}
			}
			if cb := s.callbacks().OnConnect; cb != nil {
				cb()
			}

			reason := s.serve(ctx, conn, hs)
			s.setConn(nil, false)
			_ = conn.Close()

			s.logger.Info("session disconnected", slog.String("reason", reason))
			if cb := s.callbacks().OnDisconnect; cb != nil {
				cb(reason)
			}

			if reason == ReasonServerDisconnect || reason == ReasonClientDisconnect || !s.opts.Reconnection {
				return
			}
			attempt = 0
		}

		if s.opts.ReconnectionAttempts > 0 && attempt >= s.opts.ReconnectionAttempts {
			s.logger.Warn("reconnection attempts exhausted", slog.Int("attempts", attempt))
			if cb := s.callbacks().OnReconnectFailed; cb != nil {
				cb()
			}
			return
		}

		attempt++
		delay := s.backoff.Duration()
		s.logger.Debug("transport reconnect scheduled", slog.Int("attempt", attempt), slog.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Socket) setConn(conn *websocket.Conn, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn = conn
	s.connected = connected
}

// open dials the transport and completes the Engine.IO and Socket.IO handshakes
func (s *Socket) open(ctx context.Context) (*websocket.Conn, handshake, error) {
	var hs handshake

	timeout := s.opts.Timeout
	if timeout <= 0 {
		timeout = DefaultOptions().Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := s.dialer.DialContext(ctx, s.endpoint, s.opts.Header)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, hs, fmt.Errorf("dialing %s: %w", s.endpoint, ErrHandshakeTimeout)
		}
		return nil, hs, fmt.Errorf("dialing %s: %w", s.endpoint, err)
	}

	// Unblock reads if the owner goes away mid-handshake.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	deadline, _ := ctx.Deadline()
	_ = conn.SetReadDeadline(deadline)

	hs, err = s.handshake(conn)
	if err != nil {
		_ = conn.Close()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeout(err) {
			return nil, hs, fmt.Errorf("%w: %w", ErrHandshakeTimeout, err)
		}
		return nil, hs, err
	}

	_ = conn.SetReadDeadline(time.Time{})
	return conn, hs, nil
}

func (s *Socket) handshake(conn *websocket.Conn) (handshake, error) {
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return handshake{}, fmt.Errorf("reading open packet: %w", err)
	}

	hs, err := parseHandshake(msg)
	if err != nil {
		return hs, err
	}

	if err := s.write(conn, []byte{engineMessage, packetConnect}); err != nil {
		return hs, err
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return hs, fmt.Errorf("reading connect packet: %w", err)
		}
		if len(msg) == 0 {
			continue
		}

		switch msg[0] {
		case enginePing:
			if err := s.write(conn, []byte{enginePong}); err != nil {
				return hs, err
			}
		case engineClose:
			return hs, errors.New("server closed during handshake")
		case engineMessage:
			if len(msg) < 2 {
				continue
			}
			switch msg[1] {
			case packetConnect:
				return hs, nil
			case packetConnectError:
				return hs, fmt.Errorf("%w: %s", ErrConnectRejected, decodeConnectError(string(msg[2:])))
			}
		}
	}
}

// serve reads packets until the session ends and returns the disconnect reason
func (s *Socket) serve(ctx context.Context, conn *websocket.Conn, hs handshake) string {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	liveness := hs.liveness()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(liveness))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return ReasonClientDisconnect
			case isTimeout(err):
				return ReasonPingTimeout
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure):
				return ReasonTransportClose
			default:
				s.logger.Error("transport read failed", slog.Any("error", err))
				return ReasonTransportError
			}
		}
		if len(msg) == 0 {
			continue
		}

		switch msg[0] {
		case enginePing:
			if err := s.write(conn, []byte{enginePong}); err != nil {
				s.logger.Error("failed to answer ping", slog.Any("error", err))
				return ReasonTransportError
			}
		case engineClose:
			return ReasonTransportClose
		case engineMessage:
			if reason, done := s.dispatch(msg[1:]); done {
				return reason
			}
		case enginePong, engineNoop, engineUpgrade, engineOpen:
		default:
			s.logger.Debug("ignoring unknown engine packet", slog.String("packet", string(msg)))
		}
	}
}

// dispatch handles a Socket.IO packet and reports whether it ended the session
func (s *Socket) dispatch(packet []byte) (string, bool) {
	if len(packet) == 0 {
		return "", false
	}

	switch packet[0] {
	case packetEvent:
		name, args, err := decodeEvent(string(packet[1:]))
		if err != nil {
			s.logger.Debug("dropping malformed event", slog.Any("error", err))
			return "", false
		}
		if cb := s.callbacks().OnEvent; cb != nil {
			cb(name, args)
		}
	case packetDisconnect:
		return ReasonServerDisconnect, true
	case packetConnectError:
		s.logger.Warn("namespace error", slog.String("message", decodeConnectError(string(packet[1:]))))
	case packetBinaryEvent, packetBinaryAck:
		s.logger.Debug("binary packets are not supported")
	case packetConnect, packetAck:
	}
	return "", false
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
