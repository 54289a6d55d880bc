package main

import (
	"os"

	"golang.org/x/term"

	"github.com/BrianEstime1/drone-swarm/internal/config"
	"github.com/BrianEstime1/drone-swarm/internal/swarm"
)

// flightRecorder is the full writer surface the coordinator records to.
type flightRecorder interface {
	swarm.TelemetryWriter
	swarm.EventWriter
	swarm.CycleWriter
}

// newWriters picks the flight recorder stack from flags and env vars.
// Interactive terminals get the TUI unless plain or printOnly asks for
// line output; GREPTIMEDB_ENDPOINT adds the database writer; logFile
// and archive add JSONL and SQLite copies. The returned TUIWriter is
// nil when no TUI was started. Callers must run cleanup when done.
func newWriters(cfg *config.SwarmConfig, printOnly, plain bool, logFile, archive string) (flightRecorder, *swarm.TUIWriter, func(), error) {
	var (
		all     []flightRecorder
		closers []func() error
		tui     *swarm.TUIWriter
	)
	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	switch {
	case printOnly || !isInteractive():
		all = append(all, swarm.NewJSONStdoutWriter())
	case plain:
		all = append(all, swarm.NewColorStdoutWriter(cfg))
	default:
		tui = swarm.NewTUIWriter(cfg)
		closers = append(closers, tui.Close)
		all = append(all, tui)
	}

	if endpoint := os.Getenv("GREPTIMEDB_ENDPOINT"); endpoint != "" && !printOnly {
		gw, err := swarm.NewGreptimeDBWriter(endpoint, greptimeDatabase())
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		all = append(all, gw)
	}

	if logFile != "" {
		fw, err := swarm.NewFileWriter(logFile, logFile+".events", logFile+".cycles")
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		closers = append(closers, fw.Close)
		all = append(all, fw)
	}

	if archive != "" {
		sw, err := swarm.NewSQLiteWriter(archive)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		closers = append(closers, sw.Close)
		all = append(all, sw)
	}

	if len(all) == 1 {
		return all[0], tui, cleanup, nil
	}

	tws := make([]swarm.TelemetryWriter, len(all))
	ews := make([]swarm.EventWriter, len(all))
	cws := make([]swarm.CycleWriter, len(all))
	for i, w := range all {
		tws[i] = w
		ews[i] = w
		cws[i] = w
	}
	return swarm.NewMultiWriter(tws, ews, cws), tui, cleanup, nil
}

// newReplayWriter picks the destination for replayed telemetry rows.
func newReplayWriter(printOnly bool) (swarm.TelemetryWriter, error) {
	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	if printOnly || endpoint == "" {
		return swarm.NewJSONStdoutWriter(), nil
	}
	return swarm.NewGreptimeDBWriter(endpoint, greptimeDatabase())
}

// isInteractive reports whether stdout is a terminal the TUI can own.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func greptimeDatabase() string {
	if db := os.Getenv("GREPTIMEDB_DATABASE"); db != "" {
		return db
	}
	return "public"
}
