// Package socketiotest provides an in-process Socket.IO server speaking just
// enough of Engine.IO v4 / Socket.IO v5 over WebSocket to drive clients in tests.
package socketiotest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is a named event received from a client
type Event struct {
	Name string
	Args []json.RawMessage
}

type peer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *peer) send(msg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

// Server is a stub Socket.IO server backed by httptest
type Server struct {
	*httptest.Server

	PingInterval time.Duration
	PingTimeout  time.Duration

	upgrader websocket.Upgrader

	mu       sync.Mutex
	peers    map[*peer]struct{}
	accepted int
	sessions int
	reject   string
	silent   bool

	connected chan struct{}
	received  chan Event
}

// NewServer starts a stub server. Close it with Close.
func NewServer() *Server {
	s := &Server{
		PingInterval: 25 * time.Second,
		PingTimeout:  20 * time.Second,
		peers:        make(map[*peer]struct{}),
		connected:    make(chan struct{}, 64),
		received:     make(chan Event, 256),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Connected is signalled every time a client completes the namespace handshake
func (s *Server) Connected() <-chan struct{} {
	return s.connected
}

// Received yields events emitted by clients
func (s *Server) Received() <-chan Event {
	return s.received
}

// Sessions returns the number of completed namespace handshakes
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessions
}

// Accepted returns the number of WebSocket upgrades, including failed handshakes
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.accepted
}

// Reject makes subsequent namespace connects fail with the given message.
// An empty message accepts connects again.
func (s *Server) Reject(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reject = message
}

// Silence makes the server ignore namespace connects, stalling the handshake
func (s *Server) Silence(silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.silent = silent
}

// Emit broadcasts an event to every connected client
func (s *Server) Emit(event string, args ...any) error {
	payload := append([]any{event}, args...)
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return s.broadcast("42" + string(data))
}

// EmitRaw broadcasts a raw JSON argument without re-encoding it
func (s *Server) EmitRaw(event string, arg string) error {
	name, _ := json.Marshal(event)
	return s.broadcast("42[" + string(name) + "," + arg + "]")
}

// Disconnect sends a server-side namespace disconnect to every client
func (s *Server) Disconnect() {
	_ = s.broadcast("41")
	s.Drop()
}

// Drop closes every client transport without a disconnect packet
func (s *Server) Drop() {
	for _, p := range s.snapshot() {
		_ = p.conn.Close()
	}
}

func (s *Server) snapshot() []*peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	return peers
}

func (s *Server) broadcast(msg string) error {
	var firstErr error
	for _, p := range s.snapshot() {
		if err := p.send(msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "unsupported protocol", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p := &peer{conn: conn}

	s.mu.Lock()
	s.accepted++
	sid := fmt.Sprintf("sid-%d", s.accepted)
	s.peers[p] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	open, _ := json.Marshal(map[string]any{
		"sid":          sid,
		"upgrades":     []string{},
		"pingInterval": s.PingInterval.Milliseconds(),
		"pingTimeout":  s.PingTimeout.Milliseconds(),
		"maxPayload":   1000000,
	})
	if err := p.send("0" + string(open)); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	go s.ping(p, done)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		packet := string(msg)

		switch {
		case packet == "40" || strings.HasPrefix(packet, "40{"):
			s.mu.Lock()
			reject, silent := s.reject, s.silent
			if reject == "" && !silent {
				s.sessions++
			}
			s.mu.Unlock()

			switch {
			case reject != "":
				data, _ := json.Marshal(map[string]string{"message": reject})
				_ = p.send("44" + string(data))
			case silent:
			default:
				_ = p.send(`40{"sid":"` + sid + `"}`)
				select {
				case s.connected <- struct{}{}:
				default:
				}
			}
		case strings.HasPrefix(packet, "42"):
			var parts []json.RawMessage
			if err := json.Unmarshal(msg[2:], &parts); err != nil || len(parts) == 0 {
				continue
			}
			var name string
			_ = json.Unmarshal(parts[0], &name)
			select {
			case s.received <- Event{Name: name, Args: parts[1:]}:
			default:
			}
		case packet == "41":
			return
		}
	}
}

func (s *Server) ping(p *peer, done <-chan struct{}) {
	if s.PingInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := p.send("2"); err != nil {
				return
			}
		}
	}
}
