// Package mirror copies published telemetry snapshots into Redis so other
// processes on the ground station can read the latest rover state.
//
// Each snapshot is written as one hash. Only fields that changed since the
// previous write are sent, followed by a notification on a pub/sub channel
// carrying the names of the changed groups.
package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/roman-kulish/rover-groundlink/internal/telemetry"
)

const (
	DefaultKey     = "rover"
	DefaultChannel = "rover telemetry"

	writeTimeout = 2 * time.Second
)

// WithLogger sets the logger for the publisher
func WithLogger(logger *slog.Logger) func(p *Publisher) {
	return func(p *Publisher) {
		p.logger = logger.With(slog.String("component", "mirror"))
	}
}

// WithKey overrides DefaultKey
func WithKey(key string) func(p *Publisher) {
	return func(p *Publisher) {
		p.key = key
	}
}

// WithChannel overrides DefaultChannel
func WithChannel(channel string) func(p *Publisher) {
	return func(p *Publisher) {
		p.channel = channel
	}
}

// Publisher writes snapshots to Redis from a single worker goroutine. Offer
// never blocks: when the worker is busy only the newest snapshot is kept.
type Publisher struct {
	redis   *redis.Client
	key     string
	channel string
	logger  *slog.Logger

	updates chan *telemetry.Telemetry

	mu   sync.Mutex
	last map[string]string

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

func NewPublisher(client *redis.Client, options ...func(p *Publisher)) *Publisher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	p := Publisher{
		redis:   client,
		key:     DefaultKey,
		channel: DefaultChannel,
		logger:  logger,
		updates: make(chan *telemetry.Telemetry, 1),
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// Start runs the worker until ctx is done or Stop is called
func (p *Publisher) Start(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		for {
			select {
			case <-ctx.Done():
				return
			case s := <-p.updates:
				wctx, cancel := context.WithTimeout(ctx, writeTimeout)
				if err := p.Send(wctx, s); err != nil {
					p.logger.Error("mirroring snapshot", slog.Any("error", err))
				}
				cancel()
			}
		}
	}()
}

// Offer queues s for the worker, replacing a snapshot that is still queued
func (p *Publisher) Offer(s *telemetry.Telemetry) {
	for {
		select {
		case p.updates <- s:
			return
		default:
		}

		select {
		case <-p.updates:
		default:
		}
	}
}

// Send writes the fields of s that differ from the previous write and
// notifies the channel. An unchanged snapshot sends nothing.
func (p *Publisher) Send(ctx context.Context, s *telemetry.Telemetry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fields := Flatten(s)
	set, del := diff(p.last, fields)
	if len(set) == 0 && len(del) == 0 {
		return nil
	}

	pipe := p.redis.Pipeline()
	if len(set) > 0 {
		values := make(map[string]interface{}, len(set))
		for k, v := range set {
			values[k] = v
		}
		pipe.HSet(ctx, p.key, values)
	}
	if len(del) > 0 {
		pipe.HDel(ctx, p.key, del...)
	}
	pipe.Publish(ctx, p.channel, strings.Join(groups(set, del), " "))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing %s: %w", p.key, err)
	}

	p.last = fields
	return nil
}

// Stop stops the worker. Queued snapshots are dropped.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}

	p.cancel()
	p.wg.Wait()
}

// Flatten maps s to hash fields named "<group>:<field>"
func Flatten(s *telemetry.Telemetry) map[string]string {
	f := map[string]string{
		"vehicle:armed":              onOff(s.State.Armed),
		"vehicle:mode":               s.State.Mode,
		"vehicle:system-status":      s.State.SystemStatus,
		"vehicle:heartbeat":          strconv.FormatInt(s.State.HeartbeatTimestamp, 10),
		"position:latitude":          formatFloat(s.Global.Latitude),
		"position:longitude":         formatFloat(s.Global.Longitude),
		"position:relative-altitude": formatFloat(s.Global.RelativeAltitude),
		"position:ground-velocity":   formatFloat(s.Global.GroundVelocity),
		"position:satellites":        strconv.Itoa(s.Global.SatellitesVisible),
		"battery:voltage":            formatFloat(s.Battery.Voltage),
		"battery:current":            formatFloat(s.Battery.Current),
		"battery:percentage":         formatFloat(s.Battery.Percentage),
		"rtk:fix-type":               strconv.Itoa(s.RTK.FixType),
		"rtk:baseline-age":           formatFloat(s.RTK.BaselineAge),
		"rtk:base-linked":            onOff(s.RTK.BaseLinked),
		"mission:total":              strconv.Itoa(s.Mission.TotalWaypoints),
		"mission:current":            strconv.Itoa(s.Mission.CurrentWaypointSeq),
		"mission:status":             s.Mission.Status,
		"mission:progress":           formatFloat(s.Mission.ProgressPercent),
		"servo:id":                   strconv.Itoa(s.Servo.ServoID),
		"servo:active":               onOff(s.Servo.Active),
		"servo:last-command":         strconv.FormatInt(s.Servo.LastCommandTimestamp, 10),
		"network:type":               string(s.Network.ConnectionType),
		"network:wifi-signal":        strconv.Itoa(s.Network.WifiSignalStrength),
		"network:wifi-rssi":          strconv.Itoa(s.Network.WifiRSSI),
		"network:interface":          s.Network.InterfaceName,
		"network:wifi":               onOff(s.Network.WifiConnected),
		"network:lora":               onOff(s.Network.LoraConnected),
	}

	for ch, pwm := range s.Servo.ChannelPWM {
		f["servo:pwm:"+strconv.Itoa(ch)] = strconv.Itoa(pwm)
	}
	if s.LastMessageTimestamp != nil {
		f["last-message"] = strconv.FormatInt(*s.LastMessageTimestamp, 10)
	}

	return f
}

func diff(prev, next map[string]string) (set map[string]string, del []string) {
	set = make(map[string]string)
	for k, v := range next {
		if old, ok := prev[k]; !ok || old != v {
			set[k] = v
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			del = append(del, k)
		}
	}
	slices.Sort(del)
	return set, del
}

// groups returns the sorted, distinct group prefixes of the changed fields
func groups(set map[string]string, del []string) []string {
	var names []string
	add := func(field string) {
		name, _, _ := strings.Cut(field, ":")
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	for k := range set {
		add(k)
	}
	for _, k := range del {
		add(k)
	}
	slices.Sort(names)
	return names
}

func onOff(v bool) string {
	return map[bool]string{true: "on", false: "off"}[v]
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
