package groundlink

import (
	"time"

	"github.com/roman-kulish/rover-groundlink/internal/command"
	"github.com/roman-kulish/rover-groundlink/internal/dispatch"
	"github.com/roman-kulish/rover-groundlink/internal/link"
	"github.com/roman-kulish/rover-groundlink/internal/socketio"
)

// DefaultBaseURL is the bridge address used when none is configured
const DefaultBaseURL = "http://192.168.1.29:5001"

// Config is the injected configuration of a Client. Zero durations fall
// back to the package defaults.
type Config struct {
	BaseURL    string
	SocketPath string
	Transports []string
	APIPrefix  string

	Throttle          time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	HeartbeatInterval time.Duration
	ConnectDelay      time.Duration
}

// DefaultConfig returns the configuration of a stock ground station
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		SocketPath:        socketio.DefaultPath,
		Transports:        []string{socketio.TransportWebSocket, socketio.TransportPolling},
		APIPrefix:         command.DefaultAPIPrefix,
		Throttle:          dispatch.DefaultThrottle,
		InitialBackoff:    link.DefaultInitialBackoff,
		MaxBackoff:        link.DefaultMaxBackoff,
		HeartbeatInterval: link.DefaultHeartbeatInterval,
		ConnectDelay:      link.DefaultConnectDelay,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()

	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.SocketPath == "" {
		c.SocketPath = d.SocketPath
	}
	if len(c.Transports) == 0 {
		c.Transports = d.Transports
	}
	if c.APIPrefix == "" {
		c.APIPrefix = d.APIPrefix
	}
	if c.Throttle <= 0 {
		c.Throttle = d.Throttle
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.ConnectDelay <= 0 {
		c.ConnectDelay = d.ConnectDelay
	}
	return c
}
