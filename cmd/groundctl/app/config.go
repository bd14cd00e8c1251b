package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/rover-groundlink/internal/groundlink"
	"github.com/roman-kulish/rover-groundlink/internal/mirror"
	"github.com/roman-kulish/rover-groundlink/internal/socketio"
)

// Environment variables overriding the backend section
const (
	EnvHTTPBase         = "ROVER_HTTP_BASE"
	EnvSocketPath       = "ROVER_SOCKET_PATH"
	EnvSocketTransports = "ROVER_SOCKET_TRANSPORTS"
)

const (
	defaultStatusInterval = 5 * time.Second
	defaultRedisAddr      = "localhost:6379"
)

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	Backend  BackendConfig `yaml:"backend"`
	Link     LinkConfig    `yaml:"link"`
	Storage  StorageConfig `yaml:"storage"`
	Mirror   MirrorConfig  `yaml:"mirror"`
	Monitor  MonitorConfig `yaml:"monitor"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// BackendConfig is the address of the rover bridge
type BackendConfig struct {
	BaseURL    string   `yaml:"baseURL"`
	SocketPath string   `yaml:"socketPath"`
	Transports []string `yaml:"transports"`
	APIPrefix  string   `yaml:"apiPrefix"`
}

// LinkConfig tunes the realtime session and telemetry publishing
type LinkConfig struct {
	Throttle          Duration `yaml:"throttle"`
	InitialBackoff    Duration `yaml:"initialBackoff"`
	MaxBackoff        Duration `yaml:"maxBackoff"`
	HeartbeatInterval Duration `yaml:"heartbeatInterval"`
	ConnectDelay      Duration `yaml:"connectDelay"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
}

// MirrorConfig enables publishing snapshots to Redis
type MirrorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Key     string `yaml:"key"`
	Channel string `yaml:"channel"`
}

type MonitorConfig struct {
	StatusInterval Duration `yaml:"statusInterval"`
}

// Duration is a time.Duration read from strings such as "250ms"
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}
	if duration < 0 {
		return fmt.Errorf("app.Duration: must not be negative: %s", duration)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	d := groundlink.DefaultConfig()

	return &Config{
		Settings: Settings{LogLevel: "info"},
		Backend: BackendConfig{
			BaseURL:    d.BaseURL,
			SocketPath: d.SocketPath,
			Transports: d.Transports,
			APIPrefix:  d.APIPrefix,
		},
		Link: LinkConfig{
			Throttle:          Duration(d.Throttle),
			InitialBackoff:    Duration(d.InitialBackoff),
			MaxBackoff:        Duration(d.MaxBackoff),
			HeartbeatInterval: Duration(d.HeartbeatInterval),
			ConnectDelay:      Duration(d.ConnectDelay),
		},
		Storage: StorageConfig{DataDirectory: storageDir},
		Mirror: MirrorConfig{
			Addr:    defaultRedisAddr,
			Key:     mirror.DefaultKey,
			Channel: mirror.DefaultChannel,
		},
		Monitor: MonitorConfig{StatusInterval: Duration(defaultStatusInterval)},
	}
}

// LoadConfig reads the configuration at path over the defaults and applies
// environment overrides. An empty path uses the defaults only.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening config: %w", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err = dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decoding config: %w", err)
		}
	}

	config.applyEnv(os.LookupEnv)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvHTTPBase); ok && strings.TrimSpace(v) != "" {
		c.Backend.BaseURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvSocketPath); ok && strings.TrimSpace(v) != "" {
		c.Backend.SocketPath = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvSocketTransports); ok {
		c.Backend.Transports = ParseTransports(v)
	}
}

// ParseTransports splits a comma separated transport list. Entries are
// trimmed and empty ones dropped; an empty result falls back to websocket
// then polling.
func ParseTransports(s string) []string {
	var transports []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			transports = append(transports, t)
		}
	}

	if len(transports) == 0 {
		return []string{socketio.TransportWebSocket, socketio.TransportPolling}
	}
	return transports
}

func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend.baseURL is required")
	}
	if c.Monitor.StatusInterval <= 0 {
		return fmt.Errorf("monitor.statusInterval must be positive: %s", time.Duration(c.Monitor.StatusInterval))
	}
	if c.Mirror.Enabled && c.Mirror.Addr == "" {
		return errors.New("mirror.addr is required when the mirror is enabled")
	}
	if time.Duration(c.Link.InitialBackoff) > time.Duration(c.Link.MaxBackoff) && c.Link.MaxBackoff != 0 {
		return fmt.Errorf("link.initialBackoff %s exceeds link.maxBackoff %s",
			time.Duration(c.Link.InitialBackoff), time.Duration(c.Link.MaxBackoff))
	}
	return nil
}

// Groundlink converts the file configuration to the client configuration
func (c *Config) Groundlink() groundlink.Config {
	return groundlink.Config{
		BaseURL:           c.Backend.BaseURL,
		SocketPath:        c.Backend.SocketPath,
		Transports:        c.Backend.Transports,
		APIPrefix:         c.Backend.APIPrefix,
		Throttle:          time.Duration(c.Link.Throttle),
		InitialBackoff:    time.Duration(c.Link.InitialBackoff),
		MaxBackoff:        time.Duration(c.Link.MaxBackoff),
		HeartbeatInterval: time.Duration(c.Link.HeartbeatInterval),
		ConnectDelay:      time.Duration(c.Link.ConnectDelay),
	}
}
