package groundlink

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/roman-kulish/rover-groundlink/internal/command"
	"github.com/roman-kulish/rover-groundlink/internal/dispatch"
	"github.com/roman-kulish/rover-groundlink/internal/link"
	"github.com/roman-kulish/rover-groundlink/internal/missionevent"
	"github.com/roman-kulish/rover-groundlink/internal/socketio"
	"github.com/roman-kulish/rover-groundlink/internal/telemetry"
)

// WithLogger sets the logger shared by all components
func WithLogger(logger *slog.Logger) func(c *Client) {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets the HTTP client used for commands
func WithHTTPClient(client *http.Client) func(c *Client) {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithDialer replaces the Socket.IO session dialer
func WithDialer(dial link.Dialer) func(c *Client) {
	return func(c *Client) {
		c.dial = dial
	}
}

// Client is the ground station's view of one rover: live telemetry,
// connection state, the command surface and mission narration.
type Client struct {
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client
	dial       link.Dialer

	dispatcher *dispatch.Dispatcher
	manager    *link.Manager
	commands   *command.Client
	relay      *missionevent.Relay
}

// New wires a client from cfg. Call Start to connect.
func New(cfg Config, options ...func(c *Client)) (*Client, error) {
	c := Client{
		cfg:        cfg.withDefaults(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		httpClient: http.DefaultClient,
		relay:      &missionevent.Relay{},
	}

	for _, option := range options {
		option(&c)
	}

	if !slices.Contains(c.cfg.Transports, socketio.TransportWebSocket) {
		return nil, fmt.Errorf("%w: %v", socketio.ErrNoTransport, c.cfg.Transports)
	}
	if _, err := socketio.Endpoint(c.cfg.BaseURL, c.cfg.SocketPath); err != nil {
		return nil, fmt.Errorf("invalid backend address: %w", err)
	}

	if c.dial == nil {
		opts := socketio.DefaultOptions()
		opts.Path = c.cfg.SocketPath
		opts.Transports = c.cfg.Transports
		c.dial = link.SocketDialer(c.cfg.BaseURL, opts, socketio.WithLogger(c.logger))
	}

	c.dispatcher = dispatch.New(
		dispatch.WithThrottle(c.cfg.Throttle),
		dispatch.WithLogger(c.logger),
	)
	c.commands = command.NewClient(c.cfg.BaseURL,
		command.WithAPIPrefix(c.cfg.APIPrefix),
		command.WithHTTPClient(c.httpClient),
		command.WithStateSink(c.dispatcher),
		command.WithLogger(c.logger),
	)
	c.manager = link.NewManager(c.dial, c.dispatcher, c.relay,
		link.WithLogger(c.logger),
		link.WithBackoff(c.cfg.InitialBackoff, c.cfg.MaxBackoff),
		link.WithConnectDelay(c.cfg.ConnectDelay),
		link.WithHeartbeatInterval(c.cfg.HeartbeatInterval),
	)

	return &c, nil
}

// Start opens the realtime session
func (c *Client) Start() error {
	c.logger.Info("starting ground link",
		slog.String("baseURL", c.cfg.BaseURL),
		slog.String("socketPath", c.cfg.SocketPath),
		slog.Any("transports", c.cfg.Transports),
	)
	return c.manager.Start()
}

// Telemetry returns the latest published snapshot. It must not be modified.
func (c *Client) Telemetry() *telemetry.Telemetry {
	return c.dispatcher.Snapshot()
}

// TelemetryProvider exposes the published snapshot as a telemetry.Provider
func (c *Client) TelemetryProvider() telemetry.Provider {
	return c.dispatcher
}

func (c *Client) ConnectionState() link.State {
	return c.manager.State()
}

// Reconnect drops the current session and reconnects with a fresh backoff
func (c *Client) Reconnect() {
	c.manager.ForceReconnect()
}

// EnsureConnected reconnects only if the session is not live, e.g. after
// the host network comes back.
func (c *Client) EnsureConnected() {
	c.manager.EnsureConnected()
}

// Services returns the command surface
func (c *Client) Services() *command.Client {
	return c.commands
}

// OnMissionEvent installs the single mission event handler, replacing any
// previous one.
func (c *Client) OnMissionEvent(fn missionevent.Handler) {
	c.relay.Subscribe(fn)
}

// Subscribe registers fn for every published telemetry snapshot
func (c *Client) Subscribe(fn dispatch.Subscriber) (unsubscribe func()) {
	return c.dispatcher.Subscribe(fn)
}

// OnConnectionStateChange registers fn for connection state transitions
func (c *Client) OnConnectionStateChange(fn func(link.State)) (remove func()) {
	return c.manager.OnStateChange(fn)
}

// Close tears down the session, cancels pending timers and stops publishing
func (c *Client) Close() {
	c.manager.Stop()
	c.dispatcher.Stop()
	c.relay.Subscribe(nil)
}
