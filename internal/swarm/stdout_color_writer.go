// ColorStdoutWriter prints human-friendly, colorized telemetry to STDOUT.
package swarm

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/BrianEstime1/drone-swarm/internal/config"
	"github.com/BrianEstime1/drone-swarm/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorWhite   = "\x1b[37m"
	colorGray    = "\x1b[90m"
)

// ColorStdoutWriter prints telemetry rows using ANSI colors.
type ColorStdoutWriter struct {
	cfg           *config.SwarmConfig
	out           io.Writer
	once          sync.Once
	vehicleColors map[string]string
	colorIdx      int
}

var vehiclePalette = []string{colorBlue, colorMagenta, colorCyan, colorGreen, colorYellow, colorWhite}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter(cfg *config.SwarmConfig) *ColorStdoutWriter {
	return &ColorStdoutWriter{
		cfg:           cfg,
		out:           os.Stdout,
		vehicleColors: make(map[string]string),
	}
}

func (w *ColorStdoutWriter) getVehicleColor(id string) string {
	if c, ok := w.vehicleColors[id]; ok {
		return c
	}
	c := vehiclePalette[w.colorIdx%len(vehiclePalette)]
	w.vehicleColors[id] = c
	w.colorIdx++
	return c
}

func statusColor(status string) string {
	switch status {
	case "critical":
		return colorRed
	case "warning":
		return colorYellow
	case "lost":
		return colorGray
	default:
		return colorGreen
	}
}

func (w *ColorStdoutWriter) printOverview() {
	if w.cfg == nil {
		return
	}

	fmt.Fprintln(w.out, "Swarm Configuration:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Swarm ID:\t%s\n", w.cfg.SwarmID)
	fmt.Fprintf(tw, "Formation:\t%s\n", w.cfg.Formation.Shape)
	fmt.Fprintf(tw, "Spacing (m):\t%.1f\n", w.cfg.Formation.SpacingM)
	fmt.Fprintf(tw, "Altitude Stagger (m):\t%.1f\n", w.cfg.Formation.AltitudeStaggerM)
	fmt.Fprintf(tw, "Cycle Period:\t%s\n", w.cfg.Loop.Period.Std())
	fmt.Fprintf(tw, "Grace Cycles:\t%d\n", w.cfg.Loop.GraceCycles)
	fmt.Fprintf(tw, "Home:\t(%.5f, %.5f, %.1f)\n", w.cfg.Home.Lat, w.cfg.Home.Lon, w.cfg.Home.Alt)
	tw.Flush()

	fmt.Fprintln(w.out, "\nVehicles:")
	tw = tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tRole\tSlot\tLink\n")
	for _, v := range w.cfg.Vehicles {
		col := w.getVehicleColor(v.ID)
		fmt.Fprintf(tw, "%s%s%s\t%s\t%d\t%s\n", col, v.ID, colorReset, v.Role, v.Slot, v.Link)
	}
	tw.Flush()
	fmt.Fprintln(w.out)
}

// Write outputs a single telemetry row in colorized format.
func (w *ColorStdoutWriter) Write(row telemetry.TelemetryRow) error {
	w.once.Do(w.printOverview)

	vColor := w.getVehicleColor(row.VehicleID)
	sColor := statusColor(row.Status)

	fmt.Fprintf(w.out, "%s[%s]%s ", colorGray, row.Timestamp.Format(time.RFC3339), colorReset)
	fmt.Fprintf(w.out, "%scycle=%d%s ", colorGray, row.Cycle, colorReset)
	fmt.Fprintf(w.out, "%s%s%s ", vColor, row.VehicleID, colorReset)
	fmt.Fprintf(w.out, "%s%s%s ", colorBlue, row.Role, colorReset)
	fmt.Fprintf(w.out, "%slat=%.5f%s ", colorGreen, row.Lat, colorReset)
	fmt.Fprintf(w.out, "%slon=%.5f%s ", colorYellow, row.Lon, colorReset)
	fmt.Fprintf(w.out, "%salt=%.1f%s ", colorMagenta, row.Alt, colorReset)
	fmt.Fprintf(w.out, "%sbatt=%.0f%%/%.1fV%s ", colorCyan, row.BatteryPct, row.BatteryV, colorReset)
	fmt.Fprintf(w.out, "%ssats=%d%s ", colorBlue, row.Satellites, colorReset)
	fmt.Fprintf(w.out, "%sspd=%.1f%s ", colorYellow, row.SpeedMPS, colorReset)
	fmt.Fprintf(w.out, "%shdg=%.1f%s ", colorCyan, row.HeadingDeg, colorReset)
	if row.TargetLat != nil && row.TargetLon != nil && row.TargetAlt != nil {
		fmt.Fprintf(w.out, "%starget=(%.5f,%.5f,%.1f)%s ", colorGray, *row.TargetLat, *row.TargetLon, *row.TargetAlt, colorReset)
	}
	if row.FormationErrorM != nil {
		fmt.Fprintf(w.out, "%serr=%.1fm%s ", colorMagenta, *row.FormationErrorM, colorReset)
	}
	fmt.Fprintf(w.out, "%sstatus=%s%s", sColor, row.Status, colorReset)
	fmt.Fprintln(w.out)
	return nil
}

// WriteBatch outputs multiple telemetry rows.
func (w *ColorStdoutWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteEvent prints a coordination event to STDOUT.
func (w *ColorStdoutWriter) WriteEvent(e telemetry.EventRow) error {
	w.once.Do(w.printOverview)
	col := colorCyan
	switch e.Type {
	case telemetry.EventLeaderFault, telemetry.EventStandDown, telemetry.EventDispatchFailed:
		col = colorRed
	case telemetry.EventLeaderHold, telemetry.EventRTLFlagged, telemetry.EventCycleOverrun, telemetry.EventPollFailed:
		col = colorYellow
	case telemetry.EventLeaderRecovered:
		col = colorGreen
	}
	fmt.Fprintf(w.out, "%s[%s]%s %sEVENT%s cycle=%d type=%s",
		colorGray, e.Timestamp.Format(time.RFC3339), colorReset,
		col, colorReset, e.Cycle, e.Type)
	if e.VehicleID != "" {
		fmt.Fprintf(w.out, " vehicle=%s", e.VehicleID)
	}
	if e.Detail != "" {
		fmt.Fprintf(w.out, " detail=%q", e.Detail)
	}
	fmt.Fprintln(w.out)
	return nil
}

// WriteEvents prints multiple coordination events.
func (w *ColorStdoutWriter) WriteEvents(rows []telemetry.EventRow) error {
	for _, e := range rows {
		_ = w.WriteEvent(e)
	}
	return nil
}

// WriteCycle prints a cycle summary line to STDOUT.
func (w *ColorStdoutWriter) WriteCycle(row telemetry.CycleRow) error {
	w.once.Do(w.printOverview)
	col := colorBlue
	if row.Overrun {
		col = colorYellow
	}
	fmt.Fprintf(w.out, "%s[%s]%s %sCYCLE%s n=%d dur=%.1fms polled=%d poll_fail=%d sent=%d send_fail=%d withheld=%d overrun=%t\n",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		col, colorReset, row.Cycle, row.DurationMS, row.Polled, row.PollFailures,
		row.Dispatched, row.DispatchFailures, row.Withheld, row.Overrun)
	return nil
}
