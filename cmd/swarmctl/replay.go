package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BrianEstime1/drone-swarm/internal/swarm"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded flight log",
	Long:  "replay feeds telemetry rows from a JSONL flight log or SQLite archive back into GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		writer, err := newReplayWriter(replayPrintOnly)
		if err != nil {
			return err
		}
		if strings.EqualFold(filepath.Ext(replayInput), ".db") {
			return swarm.ReplayArchive(replayInput, writer, replaySpeed)
		}
		return swarm.ReplayLogFile(replayInput, writer, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to a JSONL flight log or .db archive")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print telemetry to STDOUT instead of writing to DB")
	replayCmd.MarkFlagRequired("input")
}
