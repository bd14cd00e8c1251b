package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-redis/redis/v8"

	"github.com/roman-kulish/rover-groundlink/internal/command"
	"github.com/roman-kulish/rover-groundlink/internal/groundlink"
	"github.com/roman-kulish/rover-groundlink/internal/link"
	"github.com/roman-kulish/rover-groundlink/internal/mirror"
	"github.com/roman-kulish/rover-groundlink/internal/missionevent"
	"github.com/roman-kulish/rover-groundlink/internal/storage"
	"github.com/roman-kulish/rover-groundlink/internal/telemetry"
)

const (
	storageDir  = "data"
	storageFile = "mission_logs.sqlite"

	commandTimeout = 10 * time.Second
)

// ErrUsage is returned for an unknown verb or missing arguments
var ErrUsage = errors.New("usage")

// Usage lists the supported verbs
const Usage = `usage: groundctl [-c config.yaml] [-log level] <verb> [args]

verbs:
  monitor                  run the link, log status and record mission events
  arm | disarm
  mode <MODE>
  mission-download
  mission-clear | mission-pause | mission-resume
  set-wp <seq>
  rtk-inject <ntrip-url> | rtk-stop | rtk-status
  servo <id> <angle>
  servo-mission <file.json>
  health
  export-log [file.csv]`

// Run executes the verb in args[0]. Output meant for the operator goes to out.
func Run(ctx context.Context, config *Config, logger *slog.Logger, out io.Writer, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	verb, args := args[0], args[1:]
	switch verb {
	case "monitor":
		return monitor(ctx, config, logger)
	case "export-log":
		return exportLog(ctx, config, out, args)
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	return runCommand(ctx, newCommandClient(config, logger), out, verb, args)
}

func newCommandClient(config *Config, logger *slog.Logger) *command.Client {
	options := []func(c *command.Client){command.WithLogger(logger)}
	if config.Backend.APIPrefix != "" {
		options = append(options, command.WithAPIPrefix(config.Backend.APIPrefix))
	}
	return command.NewClient(config.Backend.BaseURL, options...)
}

func runCommand(ctx context.Context, c *command.Client, out io.Writer, verb string, args []string) error {
	var (
		resp command.Response
		err  error
	)

	switch verb {
	case "arm":
		resp, err = c.Arm(ctx)

	case "disarm":
		resp, err = c.Disarm(ctx)

	case "mode":
		if len(args) != 1 {
			return fmt.Errorf("%w: mode <MODE>", ErrUsage)
		}
		resp, err = c.SetMode(ctx, args[0])

	case "mission-download":
		var mission command.MissionResponse
		if mission, err = c.DownloadMission(ctx); err != nil {
			return err
		}
		return printMission(out, mission)

	case "mission-clear":
		resp, err = c.ClearMission(ctx)

	case "mission-pause":
		resp, err = c.PauseMission(ctx)

	case "mission-resume":
		resp, err = c.ResumeMission(ctx)

	case "set-wp":
		if len(args) != 1 {
			return fmt.Errorf("%w: set-wp <seq>", ErrUsage)
		}
		var seq int
		if seq, err = strconv.Atoi(args[0]); err != nil {
			return fmt.Errorf("invalid waypoint sequence %q: %w", args[0], err)
		}
		resp, err = c.SetCurrentWaypoint(ctx, seq)

	case "rtk-inject":
		if len(args) != 1 {
			return fmt.Errorf("%w: rtk-inject <ntrip-url>", ErrUsage)
		}
		resp, err = c.InjectRTK(ctx, args[0])

	case "rtk-stop":
		resp, err = c.StopRTK(ctx)

	case "rtk-status":
		var status command.RTKStatus
		if status, err = c.RTKStatus(ctx); err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, formatRTKStatus(status))
		return err

	case "servo":
		if len(args) != 2 {
			return fmt.Errorf("%w: servo <id> <angle>", ErrUsage)
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid servo id %q: %w", args[0], err)
		}
		angle, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid angle %q: %w", args[1], err)
		}
		resp, err = c.ControlServo(ctx, id, angle)
		if err != nil {
			return err
		}

	case "servo-mission":
		if len(args) != 1 {
			return fmt.Errorf("%w: servo-mission <file.json>", ErrUsage)
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading servo mission: %w", err)
		}
		cfg, err := command.DecodeServoConfig(data)
		if err != nil {
			return err
		}
		resp, err = c.ConfigureServoMission(ctx, cfg)
		if err != nil {
			return err
		}

	case "health":
		if err = c.HealthCheck(ctx); err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, "ok")
		return err

	default:
		return fmt.Errorf("%w: unknown verb %q", ErrUsage, verb)
	}

	if err != nil {
		return err
	}
	return printResponse(out, resp)
}

func printResponse(out io.Writer, resp command.Response) error {
	status := "ok"
	if !resp.Success {
		status = "rejected"
	}
	if resp.Message != "" {
		status += ": " + resp.Message
	}
	if _, err := fmt.Fprintln(out, status); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New("command rejected by the rover")
	}
	return nil
}

func printMission(out io.Writer, mission command.MissionResponse) error {
	waypoints, legs := command.DistancesForMission(mission.Waypoints)

	var total float64
	for i, wp := range waypoints {
		total += legs[i]
		if _, err := fmt.Fprintf(out, "%3d %-20s %.7f,%.7f alt %.1fm leg %.1fm\n",
			wp.ID, wp.Command, wp.Lat, wp.Lng, wp.Alt, legs[i]); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(out, "%s waypoints, %.1fm\n", humanize.Comma(int64(len(waypoints))), total)
	return err
}

func formatRTKStatus(s command.RTKStatus) string {
	if !s.Running {
		return "rtk: stopped"
	}
	return fmt.Sprintf("rtk: streaming from %s, %s received", s.Caster, humanize.Bytes(s.TotalBytes))
}

func openStore(config *StorageConfig) (*storage.SqliteStore, error) {
	dir := config.DataDirectory
	if dir == "" {
		dir = storageDir
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory '%s': %w", dir, err)
	}

	return storage.NewSqliteStore(filepath.Join(dir, storageFile)), nil
}

func exportLog(ctx context.Context, config *Config, out io.Writer, args []string) (err error) {
	store, err := openStore(&config.Storage)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, store.Close())
	}()

	entries, err := store.ActiveEntries(ctx)
	if err != nil {
		return fmt.Errorf("reading mission log: %w", err)
	}

	path := storage.ExportFileName(time.Now())
	if len(args) > 0 {
		path = args[0]
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err = storage.ExportCSV(f, entries); err != nil {
		return errors.Join(err, f.Close(), os.Remove(path))
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}

	_, err = fmt.Fprintf(out, "exported %s entries to %s\n", humanize.Comma(int64(len(entries))), path)
	return err
}

func monitor(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	store, err := openStore(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer func() {
		err = errors.Join(err, store.Close())
	}()

	missionLog, err := store.CreateLog(ctx, "Mission "+time.Now().Format("2006-01-02 15:04"))
	if err != nil {
		return fmt.Errorf("creating mission log: %w", err)
	}
	logger.Info("recording mission log", slog.String("id", missionLog.ID), slog.String("name", missionLog.Name))

	client, err := groundlink.New(config.Groundlink(), groundlink.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	var recorded atomic.Int64
	client.OnMissionEvent(func(e missionevent.Event) {
		if err := store.AddEntry(ctx, entryFromEvent(e)); err != nil {
			logger.Error("recording mission event", slog.Any("error", err))
			return
		}
		recorded.Add(1)
		logger.Info("mission event", slog.String("message", e.Message))
	})

	removeListener := client.OnConnectionStateChange(func(state link.State) {
		logger.Info("connection state changed", slog.String("state", string(state)))
	})
	defer removeListener()

	if config.Mirror.Enabled {
		stop, err := startMirror(ctx, &config.Mirror, client, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	if err = client.Start(); err != nil {
		return fmt.Errorf("starting client: %w", err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	ticker := time.NewTicker(time.Duration(config.Monitor.StatusInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down", slog.String("events", humanize.Comma(recorded.Load())))
			if err := store.SetActiveStatus(context.Background(), storage.StatusIncomplete); err != nil {
				logger.Error("closing mission log", slog.Any("error", err))
			}
			return nil

		case <-hup:
			logger.Info("checking connection")
			client.EnsureConnected()

		case now := <-ticker.C:
			logger.Info("status", statusAttrs(client.Telemetry(), client.ConnectionState(), now)...)
		}
	}
}

func startMirror(ctx context.Context, config *MirrorConfig, client *groundlink.Client, logger *slog.Logger) (stop func(), err error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: config.Addr,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err = rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", config.Addr, err)
	}

	pub := mirror.NewPublisher(rdb,
		mirror.WithKey(config.Key),
		mirror.WithChannel(config.Channel),
		mirror.WithLogger(logger),
	)
	pub.Start(ctx)
	unsubscribe := client.Subscribe(pub.Offer)

	logger.Info("mirroring telemetry", slog.String("addr", config.Addr), slog.String("key", config.Key))

	return func() {
		unsubscribe()
		pub.Stop()
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", slog.Any("error", err))
		}
	}, nil
}

func entryFromEvent(e missionevent.Event) storage.LogEntry {
	return storage.LogEntry{
		Timestamp:   e.Timestamp,
		Lat:         e.Lat,
		Lng:         e.Lng,
		WaypointID:  e.WaypointID,
		Status:      e.Status,
		ServoAction: e.ServoAction,
		Event:       e.Message,
	}
}

func statusAttrs(s *telemetry.Telemetry, state link.State, now time.Time) []any {
	lastMessage := "never"
	if s.LastMessageTimestamp != nil {
		lastMessage = humanize.RelTime(time.UnixMilli(*s.LastMessageTimestamp), now, "ago", "from now")
	}

	return []any{
		slog.String("link", string(state)),
		slog.String("mode", s.State.Mode),
		slog.Bool("armed", s.State.Armed),
		slog.String("position", fmt.Sprintf("%.7f,%.7f", s.Global.Latitude, s.Global.Longitude)),
		slog.String("rtk", telemetry.FixLabel(s.RTK.FixType)),
		slog.String("battery", fmt.Sprintf("%.1fV %.0f%%", s.Battery.Voltage, s.Battery.Percentage)),
		slog.String("mission", fmt.Sprintf("%d/%d %s", s.Mission.CurrentWaypointSeq, s.Mission.TotalWaypoints, s.Mission.Status)),
		slog.String("last message", lastMessage),
	}
}
