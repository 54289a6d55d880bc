package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrianEstime1/drone-swarm/internal/admin"
	"github.com/BrianEstime1/drone-swarm/internal/config"
	"github.com/BrianEstime1/drone-swarm/internal/formation"
	"github.com/BrianEstime1/drone-swarm/internal/geo"
	"github.com/BrianEstime1/drone-swarm/internal/link"
	"github.com/BrianEstime1/drone-swarm/internal/logging"
	"github.com/BrianEstime1/drone-swarm/internal/mission"
	"github.com/BrianEstime1/drone-swarm/internal/observability"
	"github.com/BrianEstime1/drone-swarm/internal/swarm"
	"github.com/BrianEstime1/drone-swarm/internal/vehicle"
)

var (
	flyConfigPath string
	flySchemaPath string
	flyPrintOnly  bool
	flyPlain      bool
	flyLogFile    string
	flyArchive    string
	flyDuration   time.Duration
	flyAdminAddr  string
)

var flyCmd = &cobra.Command{
	Use:   "fly",
	Short: "Run the swarm control loop",
	Long:  "fly polls the leader, computes formation waypoints for every follower and dispatches them at a fixed rate until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flyConfigPath, flySchemaPath)
		if err != nil {
			return err
		}
		if id := os.Getenv("SWARM_ID"); id != "" {
			cfg.SwarmID = id
		}
		if env := os.Getenv("SWARM_PERIOD"); env != "" {
			d, err := time.ParseDuration(env)
			if err != nil {
				return fmt.Errorf("invalid SWARM_PERIOD: %w", err)
			}
			cfg.Loop.Period = config.Duration(d)
		}

		members, closeLinks, err := buildMembers(cfg)
		if err != nil {
			return err
		}
		defer closeLinks()

		form, err := formation.New(cfg.Formation.Shape, cfg.Formation.SpacingM, cfg.Formation.AltitudeStaggerM)
		if err != nil {
			return err
		}

		rec, tui, cleanup, err := newWriters(cfg, flyPrintOnly, flyPlain, flyLogFile, flyArchive)
		if err != nil {
			return err
		}
		defer cleanup()

		metrics, err := observability.NewSwarmCollector(nil)
		if err != nil {
			return err
		}

		coord, err := swarm.NewCoordinator(swarm.Config{
			SwarmID:     cfg.SwarmID,
			Period:      cfg.Loop.Period.Std(),
			PollTimeout: cfg.Loop.PollTimeout.Std(),
			SendTimeout: cfg.Loop.SendTimeout.Std(),
			GraceCycles: cfg.Loop.GraceCycles,
		}, members, form, rec, rec, rec, metrics)
		if err != nil {
			return err
		}

		if tui != nil {
			tui.SetShapeSetter(coord.SetShape)
			tui.SetSpacingSetter(coord.SetSpacing)
			tui.SetStaggerSetter(func(m float64) error {
				coord.SetAltitudeStagger(m)
				return nil
			})
		}

		logger := logging.New(slog.LevelInfo)
		ctx := logging.NewContext(context.Background(), logger)

		srv := admin.NewServer(coord, metrics)
		go func() {
			logger.Info("admin server listening", "addr", flyAdminAddr)
			if err := srv.Start(flyAdminAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server failed", "err", err)
			}
		}()
		if tui != nil {
			tui.SetAdminStatus(true)
		}

		runCtx, cancel := newRunContext(ctx, cfg)
		defer cancel()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigs
			cancel()
		}()

		err = coord.Run(runCtx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}

		snap := coord.Snapshot()
		logger.Info("flight complete", "cycles", snap.Cycle, "state", snap.State)
		return err
	},
}

// newRunContext bounds the run when a duration was configured. The
// duration flag wins over the config value; zero runs until a signal.
func newRunContext(ctx context.Context, cfg *config.SwarmConfig) (context.Context, context.CancelFunc) {
	d := cfg.Loop.RunDuration.Std()
	if flyDuration > 0 {
		d = flyDuration
	}
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// buildMembers wires one link and one state record per roster entry.
// Simulated vehicles launch from home; the leader additionally gets its
// patrol route. The returned func closes any serial links.
func buildMembers(cfg *config.SwarmConfig) ([]swarm.Member, func(), error) {
	home := geo.Point{Lat: cfg.Home.Lat, Lon: cfg.Home.Lon, Alt: cfg.Home.Alt}
	th := thresholds(cfg.Safety)

	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	members := make([]swarm.Member, 0, len(cfg.Vehicles))
	for i, v := range cfg.Vehicles {
		var vl swarm.VehicleLink
		switch v.Link {
		case "msp":
			l, err := link.DialMSP(v.ID, v.Device, v.Baud)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("dial %s: %w", v.ID, err)
			}
			closers = append(closers, l.Close)
			vl = l
		default:
			l := link.NewSimLink(v.ID, home, simBehavior(cfg.Sim), cfg.Sim.Seed+int64(i))
			if v.Route != "" {
				cursor, err := routeCursor(v.Route, home)
				if err != nil {
					closeAll()
					return nil, nil, err
				}
				l.SetRoute(cursor)
			}
			vl = l
		}

		members = append(members, swarm.Member{
			State: vehicle.New(v.ID, vehicle.Role(v.Role), v.Slot, th),
			Link:  vl,
		})
	}
	return members, closeAll, nil
}

// routeCursor resolves a route name against the built-in catalog first,
// then as a YAML file path.
func routeCursor(name string, home geo.Point) (*mission.Cursor, error) {
	if r, ok := mission.BuiltIn()[name]; ok {
		return mission.NewCursor(r, home)
	}
	r, err := mission.Load(name)
	if err != nil {
		return nil, err
	}
	return mission.NewCursor(*r, home)
}

// thresholds overlays configured safety limits onto the defaults,
// keeping the default for any field the config leaves zero.
func thresholds(s config.Safety) vehicle.Thresholds {
	th := vehicle.DefaultThresholds()
	if s.BatteryWarnPct > 0 {
		th.BatteryWarnPct = s.BatteryWarnPct
	}
	if s.BatteryCriticalPct > 0 {
		th.BatteryCriticalPct = s.BatteryCriticalPct
	}
	if s.MinSatellites > 0 {
		th.MinSatellites = s.MinSatellites
	}
	if s.WarnSatellites > 0 {
		th.WarnSatellites = s.WarnSatellites
	}
	if s.LinkTimeout > 0 {
		th.LinkTimeout = s.LinkTimeout.Std()
	}
	if s.BatteryCells > 0 {
		th.BatteryCells = s.BatteryCells
	}
	return th
}

func simBehavior(s config.Sim) link.Behavior {
	return link.Behavior{
		CruiseSpeedMPS:     s.CruiseSpeedMPS,
		StartBatteryV:      s.StartBatteryV,
		BatteryCells:       s.BatteryCells,
		DrainVPerS:         s.DrainVPerS,
		Satellites:         s.Satellites,
		JitterM:            s.JitterM,
		DropoutRate:        s.DropoutRate,
		BatteryAnomalyRate: s.BatteryAnomalyRate,
		FixLossRate:        s.FixLossRate,
	}
}

func init() {
	flyCmd.Flags().StringVar(&flyConfigPath, "config", "config/swarm.yaml", "Path to swarm configuration YAML")
	flyCmd.Flags().StringVar(&flySchemaPath, "schema", "schemas/swarm.cue", "Path to CUE schema file")
	flyCmd.Flags().BoolVar(&flyPrintOnly, "print-only", false, "Print telemetry to STDOUT instead of writing to DB")
	flyCmd.Flags().BoolVar(&flyPlain, "plain", false, "Log to the terminal without the TUI")
	flyCmd.Flags().StringVar(&flyLogFile, "log-file", "", "Path to export flight logs (JSONL)")
	flyCmd.Flags().StringVar(&flyArchive, "archive", "", "Path to a SQLite flight archive")
	flyCmd.Flags().DurationVar(&flyDuration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	flyCmd.Flags().StringVar(&flyAdminAddr, "admin-addr", ":8080", "Admin UI listen address")
}
