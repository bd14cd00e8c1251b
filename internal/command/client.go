package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roman-kulish/rover-groundlink/internal/telemetry"
)

// DefaultAPIPrefix is the path under the base URL where the bridge serves commands
const DefaultAPIPrefix = "/api"

// maxErrorBody bounds how much of a failed response is kept in HTTPError
const maxErrorBody = 4 << 10

var (
	// ErrEmptyMode is returned by SetMode for a blank mode
	ErrEmptyMode = errors.New("mode must not be empty")

	// ErrNoWaypoints is returned by UploadMission for an empty mission
	ErrNoWaypoints = errors.New("mission must contain at least one waypoint")

	// ErrEmptyNTRIPURL is returned by InjectRTK for a blank caster URL
	ErrEmptyNTRIPURL = errors.New("NTRIP URL must not be empty")
)

// HTTPError is returned for non-2xx responses
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Body)
}

// StateSink receives optimistic state patches. It is satisfied by the
// telemetry dispatcher, so patches are throttled like normalized telemetry.
type StateSink interface {
	Apply(env telemetry.Envelope)
}

// WithLogger sets the logger for the client
func WithLogger(logger *slog.Logger) func(c *Client) {
	return func(c *Client) {
		c.logger = logger.With(slog.String("component", "command"))
	}
}

// WithHTTPClient replaces http.DefaultClient
func WithHTTPClient(client *http.Client) func(c *Client) {
	return func(c *Client) {
		c.http = client
	}
}

// WithAPIPrefix overrides DefaultAPIPrefix
func WithAPIPrefix(prefix string) func(c *Client) {
	return func(c *Client) {
		c.apiPrefix = prefix
	}
}

// WithStateSink routes optimistic arm/disarm patches to sink
func WithStateSink(sink StateSink) func(c *Client) {
	return func(c *Client) {
		c.sink = sink
	}
}

// Client issues commands to the rover bridge. Each call is a single request;
// failures are returned to the caller and never retried.
type Client struct {
	baseURL   string
	apiPrefix string
	http      *http.Client
	sink      StateSink
	logger    *slog.Logger
}

// NewClient creates a command client for the bridge at baseURL
func NewClient(baseURL string, options ...func(c *Client)) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	c := Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiPrefix: DefaultAPIPrefix,
		http:      http.DefaultClient,
		logger:    logger,
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Arm arms the vehicle. On success the local state is patched to armed
// without waiting for telemetry.
func (c *Client) Arm(ctx context.Context) (Response, error) {
	return c.arm(ctx, true)
}

// Disarm disarms the vehicle. On success the local state is patched to disarmed.
func (c *Client) Disarm(ctx context.Context) (Response, error) {
	return c.arm(ctx, false)
}

func (c *Client) arm(ctx context.Context, value bool) (Response, error) {
	var resp Response
	if err := c.post(ctx, "/arm", map[string]any{"value": value}, &resp); err != nil {
		return resp, err
	}

	if resp.Success && c.sink != nil {
		status := telemetry.SystemStatusDisarmed
		if value {
			status = telemetry.SystemStatusArmed
		}

		now := time.Now().UnixMilli()
		c.sink.Apply(telemetry.Envelope{
			Timestamp: now,
			State: &telemetry.StatePatch{
				Armed:              telemetry.Ptr(value),
				SystemStatus:       telemetry.Ptr(status),
				HeartbeatTimestamp: telemetry.Ptr(now),
			},
		})
	}
	return resp, nil
}

// SetMode requests a flight mode change. State changes arrive via telemetry.
func (c *Client) SetMode(ctx context.Context, mode string) (Response, error) {
	if strings.TrimSpace(mode) == "" {
		return Response{}, ErrEmptyMode
	}

	var resp Response
	err := c.post(ctx, "/set_mode", map[string]any{"mode": mode}, &resp)
	return resp, err
}

// UploadMission replaces the mission on the rover
func (c *Client) UploadMission(ctx context.Context, waypoints []Waypoint) (Response, error) {
	if len(waypoints) == 0 {
		return Response{}, ErrNoWaypoints
	}

	var resp Response
	err := c.post(ctx, "/mission/upload", map[string]any{"waypoints": waypoints}, &resp)
	return resp, err
}

// DownloadMission fetches the mission stored on the rover
func (c *Client) DownloadMission(ctx context.Context) (MissionResponse, error) {
	var resp MissionResponse
	err := c.get(ctx, "/mission/download", &resp)
	return resp, err
}

func (c *Client) ClearMission(ctx context.Context) (Response, error) {
	var resp Response
	err := c.post(ctx, "/mission/clear", nil, &resp)
	return resp, err
}

func (c *Client) PauseMission(ctx context.Context) (Response, error) {
	var resp Response
	err := c.post(ctx, "/mission/pause", nil, &resp)
	return resp, err
}

func (c *Client) ResumeMission(ctx context.Context) (Response, error) {
	var resp Response
	err := c.post(ctx, "/mission/resume", nil, &resp)
	return resp, err
}

// SetCurrentWaypoint makes seq the active mission item
func (c *Client) SetCurrentWaypoint(ctx context.Context, seq int) (Response, error) {
	var resp Response
	err := c.post(ctx, "/mission/set_current", map[string]any{"wp_seq": seq}, &resp)
	return resp, err
}

// InjectRTK starts streaming corrections from an NTRIP caster
func (c *Client) InjectRTK(ctx context.Context, ntripURL string) (Response, error) {
	if strings.TrimSpace(ntripURL) == "" {
		return Response{}, ErrEmptyNTRIPURL
	}

	var resp Response
	err := c.post(ctx, "/rtk/inject", map[string]any{"ntrip_url": ntripURL}, &resp)
	return resp, err
}

func (c *Client) StopRTK(ctx context.Context) (Response, error) {
	var resp Response
	err := c.post(ctx, "/rtk/stop", nil, &resp)
	return resp, err
}

func (c *Client) RTKStatus(ctx context.Context) (RTKStatus, error) {
	var resp RTKStatus
	err := c.get(ctx, "/rtk/status", &resp)
	return resp, err
}

// ControlServo moves a servo to angle degrees
func (c *Client) ControlServo(ctx context.Context, servoID int, angle float64) (Response, error) {
	var resp Response
	err := c.post(ctx, "/servo/control", map[string]any{"servo_id": servoID, "angle": angle}, &resp)
	return resp, err
}

// ConfigureServoMission uploads a servo plan for the current mission
func (c *Client) ConfigureServoMission(ctx context.Context, cfg ServoConfig) (Response, error) {
	if err := cfg.Validate(); err != nil {
		return Response{}, err
	}

	var resp Response
	err := c.post(ctx, "/servo/mission", cfg, &resp)
	return resp, err
}

// HealthCheck reports whether the bridge HTTP API answers
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// do performs one JSON round trip. Non-2xx responses become *HTTPError.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	url := c.baseURL + c.apiPrefix + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("command failed", slog.String("method", method), slog.String("path", path), slog.Any("error", err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	c.logger.Debug("command completed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", res.StatusCode),
		slog.Duration("took", time.Since(start)),
	)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &HTTPError{StatusCode: res.StatusCode, Body: string(text)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
