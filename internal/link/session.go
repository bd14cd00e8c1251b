package link

import (
	"github.com/roman-kulish/rover-groundlink/internal/socketio"
)

// Session is a realtime session driven by the Manager
type Session interface {
	Connect()
	Connected() bool
	Emit(event string, args ...any) error
	Close()
}

// Dialer creates a new, unopened session delivering its callbacks to h
type Dialer func(h socketio.Handler) (Session, error)

// SocketDialer returns a Dialer producing Socket.IO sessions for baseURL
func SocketDialer(baseURL string, opts socketio.Options, options ...func(s *socketio.Socket)) Dialer {
	return func(h socketio.Handler) (Session, error) {
		s, err := socketio.New(baseURL, opts, h, options...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
