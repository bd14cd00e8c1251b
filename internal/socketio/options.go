package socketio

import (
	"net/http"
	"time"
)

const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"

	DefaultPath = "/socket.io"
)

// Options configures the session and its transport-level reconnection policy
type Options struct {
	Path       string   // Engine.IO endpoint path
	Transports []string // Ordered transport preference

	Reconnection         bool          // Retry after an unclean disconnect or a failed open
	ReconnectionAttempts int           // Maximum attempts, 0 for unlimited
	ReconnectionDelay    time.Duration // Initial delay between attempts
	ReconnectionDelayMax time.Duration // Upper bound of the delay
	RandomizationFactor  float64       // Jitter applied to every delay, 0..1

	Timeout time.Duration // Handshake timeout
	Header  http.Header   // Extra headers sent with the WebSocket upgrade request
}

// DefaultOptions returns the policy the dashboard uses: unlimited attempts
// between 1s and 5s and a 20s handshake timeout.
func DefaultOptions() Options {
	return Options{
		Path:                 DefaultPath,
		Transports:           []string{TransportWebSocket, TransportPolling},
		Reconnection:         true,
		ReconnectionAttempts: 0,
		ReconnectionDelay:    time.Second,
		ReconnectionDelayMax: 5 * time.Second,
		RandomizationFactor:  0.5,
		Timeout:              20 * time.Second,
	}
}
