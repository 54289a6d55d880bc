package swarm

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/BrianEstime1/drone-swarm/internal/config"
	"github.com/BrianEstime1/drone-swarm/internal/geo"
	"github.com/BrianEstime1/drone-swarm/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a telemetry log line for the viewport.
type logMsg struct{ line string }

// eventMsg carries a coordination event log line and row data.
type eventMsg struct {
	line string
	row  telemetry.EventRow
}

// cycleMsg carries a cycle summary update.
type cycleMsg struct{ telemetry.CycleRow }

// telemetryMsg carries row data for the map and summary views.
type telemetryMsg struct{ telemetry.TelemetryRow }

// adminMsg reports admin UI status.
type adminMsg struct{ active bool }

type setShapeMsg struct{ fn func(string) error }
type setSpacingMsg struct{ fn func(float64) error }
type setStaggerMsg struct{ fn func(float64) error }

const (
	bgRed    = "\x1b[41m"
	bgYellow = "\x1b[43m"
	bgGreen  = "\x1b[42m"

	maxSectionHeightPct = 0.2
	highAltDeltaM       = 50.0
)

// TUIWriter renders telemetry using a bubbletea TUI.
type TUIWriter struct {
	program       teaProgram
	vehicleColors map[string]string
	colorIdx      int
	done          chan struct{}
	sendSignal    atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter.
func NewTUIWriter(cfg *config.SwarmConfig) *TUIWriter {
	vc := make(map[string]string)
	w := &TUIWriter{vehicleColors: vc, done: make(chan struct{})}
	w.sendSignal.Store(true)
	m := newTUIModel(cfg, vc)
	p := tea.NewProgram(m, tea.WithAltScreen())
	w.program = p
	for _, v := range cfg.Vehicles {
		w.getVehicleColor(v.ID)
	}
	go func() {
		_ = p.Start()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

func (w *TUIWriter) getVehicleColor(id string) string {
	if c, ok := w.vehicleColors[id]; ok {
		return c
	}
	c := vehiclePalette[w.colorIdx%len(vehiclePalette)]
	w.vehicleColors[id] = c
	w.colorIdx++
	return c
}

// Write implements TelemetryWriter.
func (w *TUIWriter) Write(row telemetry.TelemetryRow) error {
	vColor := w.getVehicleColor(row.VehicleID)
	sColor := statusColor(row.Status)

	line := fmt.Sprintf("%s[%s]%s %scycle=%d%s %s%s%s %s%s%s %slat=%.5f%s %slon=%.5f%s %salt=%.1f%s %sbatt=%.0f%%%s %ssats=%d%s %sspd=%.1f%s %shdg=%.1f%s %sstatus=%s%s",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		colorGray, row.Cycle, colorReset,
		vColor, row.VehicleID, colorReset,
		colorBlue, row.Role, colorReset,
		colorGreen, row.Lat, colorReset,
		colorYellow, row.Lon, colorReset,
		colorMagenta, row.Alt, colorReset,
		colorCyan, row.BatteryPct, colorReset,
		colorBlue, row.Satellites, colorReset,
		colorYellow, row.SpeedMPS, colorReset,
		colorCyan, row.HeadingDeg, colorReset,
		sColor, row.Status, colorReset,
	)
	if row.FormationErrorM != nil {
		line += fmt.Sprintf(" %serr=%.1fm%s", colorMagenta, *row.FormationErrorM, colorReset)
	}
	w.program.Send(logMsg{line: line})
	w.program.Send(telemetryMsg{row})
	return nil
}

// WriteBatch outputs multiple telemetry rows.
func (w *TUIWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteEvent implements EventWriter.
func (w *TUIWriter) WriteEvent(e telemetry.EventRow) error {
	line := fmt.Sprintf("%s[%s]%s %sEVENT%s cycle=%d type=%s",
		colorGray, e.Timestamp.Format(time.RFC3339), colorReset,
		colorCyan, colorReset, e.Cycle, e.Type)
	if e.VehicleID != "" {
		line += fmt.Sprintf(" %svehicle=%s%s", w.getVehicleColor(e.VehicleID), e.VehicleID, colorReset)
	}
	if e.Detail != "" {
		line += fmt.Sprintf(" detail=%q", e.Detail)
	}
	w.program.Send(eventMsg{line: line, row: e})
	return nil
}

// WriteEvents outputs multiple coordination events.
func (w *TUIWriter) WriteEvents(rows []telemetry.EventRow) error {
	for _, e := range rows {
		_ = w.WriteEvent(e)
	}
	return nil
}

// WriteCycle implements CycleWriter.
func (w *TUIWriter) WriteCycle(row telemetry.CycleRow) error {
	w.program.Send(cycleMsg{CycleRow: row})
	return nil
}

// SetAdminStatus updates the admin UI indicator.
func (w *TUIWriter) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// SetShapeSetter registers a callback for changing the formation shape.
func (w *TUIWriter) SetShapeSetter(fn func(string) error) {
	w.program.Send(setShapeMsg{fn: fn})
}

// SetSpacingSetter registers a callback for changing the slot spacing.
func (w *TUIWriter) SetSpacingSetter(fn func(float64) error) {
	w.program.Send(setSpacingMsg{fn: fn})
}

// SetStaggerSetter registers a callback for changing the altitude stagger.
func (w *TUIWriter) SetStaggerSetter(fn func(float64) error) {
	w.program.Send(setStaggerMsg{fn: fn})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	cfg              *config.SwarmConfig
	table            table.Model
	vp               viewport.Model
	eventVP          viewport.Model
	logs             []string
	eventLogs        []string
	cycle            telemetry.CycleRow
	admin            bool
	holding          bool
	wrap             bool
	autoscroll       bool
	header           string
	headerHeight     int
	height           int
	vehicleColors    map[string]string
	formationInput   textinput.Model
	formationDialog  bool
	setShape         func(string) error
	setSpacing       func(float64) error
	setStagger       func(float64) error
	summary          bool
	help             bool
	showRoster       bool
	vehiclePositions map[string]geo.Point
	vehicleHeadings  map[string]float64
	vehicleBatteries map[string]float64
	vehicleStatuses  map[string]string
	vehicleErrors    map[string]float64
	vehicleTargets   map[string]geo.Point
	showMap          bool
	mapCenterLat     float64
	mapCenterLon     float64
	mapLatSpan       float64
	mapLonSpan       float64
	mapInitialized   bool
	mapShowVehicles  bool
	mapShowTargets   bool
	eventCounts      map[string]int
	totalEvents      int
}

func newTUIModel(cfg *config.SwarmConfig, vehicleColors map[string]string) tuiModel {
	cols := []table.Column{
		{Title: "Config", Width: 20},
		{Title: "Value", Width: 12},
		{Title: "Config", Width: 20},
		{Title: "Value", Width: 12},
	}
	rows := []table.Row{
		{"Swarm ID", cfg.SwarmID, "Formation", cfg.Formation.Shape},
		{"Spacing (m)", fmt.Sprintf("%.1f", cfg.Formation.SpacingM), "Stagger (m)", fmt.Sprintf("%.1f", cfg.Formation.AltitudeStaggerM)},
		{"Cycle Period", cfg.Loop.Period.Std().String(), "Grace Cycles", fmt.Sprintf("%d", cfg.Loop.GraceCycles)},
		{"Home Lat", fmt.Sprintf("%.5f", cfg.Home.Lat), "Home Lon", fmt.Sprintf("%.5f", cfg.Home.Lon)},
	}
	t := table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	vp := viewport.New(0, 0)
	eventVP := viewport.New(0, 0)
	m := tuiModel{
		cfg:              cfg,
		table:            t,
		vp:               vp,
		eventVP:          eventVP,
		vehicleColors:    vehicleColors,
		autoscroll:       true,
		showRoster:       true,
		mapShowVehicles:  true,
		mapShowTargets:   true,
		vehiclePositions: make(map[string]geo.Point),
		vehicleHeadings:  make(map[string]float64),
		vehicleBatteries: make(map[string]float64),
		vehicleStatuses:  make(map[string]string),
		vehicleErrors:    make(map[string]float64),
		vehicleTargets:   make(map[string]geo.Point),
		eventCounts:      make(map[string]int),
	}
	return m
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		tableWidth := msg.Width
		if m.showRoster {
			tableWidth = msg.Width / 2
		}
		m.table.SetWidth(tableWidth)
		m.vp.Width = msg.Width
		m.eventVP.Width = msg.Width
		m.height = msg.Height
		m.header = m.renderHeader()
		m.headerHeight = lipgloss.Height(m.header)
		m.updateViewportHeight()
		m.refreshViewport()
		m.refreshEvents()
	case tea.KeyMsg:
		if m.formationDialog {
			switch msg.Type {
			case tea.KeyEnter:
				shape, spacing, stagger, err := parseFormationInput(m.formationInput.Value())
				if err == nil {
					if m.setShape != nil {
						go m.setShape(shape)
					}
					if m.setSpacing != nil {
						go m.setSpacing(spacing)
					}
					if m.setStagger != nil {
						go m.setStagger(stagger)
					}
				}
				m.formationDialog = false
				m.updateViewportHeight()
			case tea.KeyEsc:
				m.formationDialog = false
				m.updateViewportHeight()
			default:
				var cmd tea.Cmd
				m.formationInput, cmd = m.formationInput.Update(msg)
				return m, cmd
			}
			return m, nil
		}
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
				m.updateViewportHeight()
			}
			return m, nil
		}
		if m.showMap {
			switch msg.String() {
			case "+", "=":
				m.mapLatSpan *= 0.8
				m.mapLonSpan *= 0.8
				if m.mapLatSpan < 0.0001 {
					m.mapLatSpan = 0.0001
				}
				if m.mapLonSpan < 0.0001 {
					m.mapLonSpan = 0.0001
				}
				return m, nil
			case "-":
				m.mapLatSpan *= 1.25
				m.mapLonSpan *= 1.25
				return m, nil
			case "left":
				m.mapCenterLon -= m.mapLonSpan * 0.1
				return m, nil
			case "right":
				m.mapCenterLon += m.mapLonSpan * 0.1
				return m, nil
			case "up":
				m.mapCenterLat += m.mapLatSpan * 0.1
				return m, nil
			case "down":
				m.mapCenterLat -= m.mapLatSpan * 0.1
				return m, nil
			case "1":
				m.mapShowVehicles = !m.mapShowVehicles
				return m, nil
			case "2":
				m.mapShowTargets = !m.mapShowTargets
				return m, nil
			}
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			m.header = m.renderHeader()
			m.headerHeight = lipgloss.Height(m.header)
			m.updateViewportHeight()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
				m.eventVP.GotoBottom()
			}
			return m, nil
		case "f":
			m.formationInput = textinput.New()
			m.formationInput.Placeholder = "shape,spacing,stagger"
			m.formationInput.SetValue(fmt.Sprintf("%s,%.1f,%.1f", m.cfg.Formation.Shape, m.cfg.Formation.SpacingM, m.cfg.Formation.AltitudeStaggerM))
			m.formationInput.CursorEnd()
			m.formationInput.Focus()
			m.formationDialog = true
			m.updateViewportHeight()
			return m, nil
		case "p":
			m.showRoster = !m.showRoster
			width := m.vp.Width
			if m.showRoster {
				m.table.SetWidth(width / 2)
			} else {
				m.table.SetWidth(width)
			}
			m.header = m.renderHeader()
			m.headerHeight = lipgloss.Height(m.header)
			m.updateViewportHeight()
			return m, nil
		case "m":
			m.showMap = !m.showMap
			if m.showMap && !m.mapInitialized {
				m.initMapViewport()
			}
			m.updateViewportHeight()
			return m, nil
		case "t":
			m.summary = !m.summary
			m.updateViewportHeight()
			return m, nil
		case "h", "?":
			m.help = !m.help
			m.updateViewportHeight()
			return m, nil
		}
		if !m.autoscroll {
			switch msg.String() {
			case "j", "down":
				m.vp.LineDown(1)
				m.eventVP.LineDown(1)
			case "k", "up":
				m.vp.LineUp(1)
				m.eventVP.LineUp(1)
			case "pgdown", "ctrl+n":
				m.vp.LineDown(10)
				m.eventVP.LineDown(10)
			case "pgup", "ctrl+p":
				m.vp.LineUp(10)
				m.eventVP.LineUp(10)
			default:
				var cmd tea.Cmd
				m.vp, cmd = m.vp.Update(msg)
				m.eventVP, _ = m.eventVP.Update(msg)
				return m, cmd
			}
			return m, nil
		}
		return m, nil
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > 1000 {
			m.logs = m.logs[len(m.logs)-1000:]
		}
		m.refreshViewport()
	case eventMsg:
		m.eventLogs = append(m.eventLogs, msg.line)
		if len(m.eventLogs) > 1000 {
			m.eventLogs = m.eventLogs[len(m.eventLogs)-1000:]
		}
		m.totalEvents++
		if m.eventCounts == nil {
			m.eventCounts = make(map[string]int)
		}
		m.eventCounts[msg.row.Type]++
		switch msg.row.Type {
		case telemetry.EventLeaderHold:
			m.holding = true
		case telemetry.EventLeaderRecovered, telemetry.EventStandDown:
			m.holding = false
		}
		m.updateViewportHeight()
		m.refreshEvents()
		m.refreshViewport()
	case telemetryMsg:
		m.vehiclePositions[msg.VehicleID] = geo.Point{Lat: msg.Lat, Lon: msg.Lon, Alt: msg.Alt}
		m.vehicleHeadings[msg.VehicleID] = msg.HeadingDeg
		m.vehicleBatteries[msg.VehicleID] = msg.BatteryPct
		m.vehicleStatuses[msg.VehicleID] = msg.Status
		if msg.FormationErrorM != nil {
			m.vehicleErrors[msg.VehicleID] = *msg.FormationErrorM
		}
		if msg.TargetLat != nil && msg.TargetLon != nil && msg.TargetAlt != nil {
			m.vehicleTargets[msg.VehicleID] = geo.Point{Lat: *msg.TargetLat, Lon: *msg.TargetLon, Alt: *msg.TargetAlt}
		} else {
			delete(m.vehicleTargets, msg.VehicleID)
		}
	case cycleMsg:
		m.cycle = msg.CycleRow
	case adminMsg:
		m.admin = msg.active
	case setShapeMsg:
		m.setShape = msg.fn
	case setSpacingMsg:
		m.setSpacing = msg.fn
	case setStaggerMsg:
		m.setStagger = msg.fn
	}
	return m, nil
}

func (m *tuiModel) updateViewportHeight() {
	bottomHeight := lipgloss.Height(m.renderBottom())

	maxLines := m.maxSectionLines()

	eventLines := len(m.eventLogs)
	if eventLines == 0 {
		eventLines = 1
	}
	if eventLines > maxLines {
		eventLines = maxLines
	}
	m.eventVP.Height = eventLines

	eventHeight := 1 + m.eventVP.Height
	dialogHeight := 0
	if m.formationDialog {
		dialogHeight = 1
	}
	h := m.height - m.headerHeight - bottomHeight - eventHeight - dialogHeight - 4
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.eventVP.GotoBottom()
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshEvents() {
	content := "none"
	if len(m.eventLogs) > 0 {
		content = strings.Join(m.eventLogs, "\n")
	}
	m.eventVP.SetContent(content)
	if m.autoscroll {
		m.eventVP.GotoBottom()
	}
}

func (m tuiModel) maxSectionLines() int {
	h := int(float64(m.height) * maxSectionHeightPct)
	if h < 1 {
		h = 1
	}
	return h
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	bottom := m.renderBottom()
	divider := strings.Repeat("─", m.vp.Width)
	if m.showMap {
		sections := []string{
			m.header,
			divider,
			m.renderMap(),
			divider,
			bottom,
		}
		return strings.Join(sections, "\n")
	}
	sections := []string{
		m.header,
		divider,
		m.vp.View(),
		divider,
		"Events:",
		m.eventVP.View(),
	}
	if m.formationDialog {
		sections = append(sections, divider, m.renderFormationDialog())
	}
	sections = append(sections, divider, bottom)
	return strings.Join(sections, "\n")
}

func (m tuiModel) renderHeader() string {
	tableView := m.table.View()
	if !m.showRoster {
		return tableView
	}
	rosterWidth := m.vp.Width/2 - 1
	roster := renderRoster(m.cfg, m.vehicleColors, m.wrap, rosterWidth)
	sep := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("│")
	return lipgloss.JoinHorizontal(lipgloss.Top, tableView, sep, roster)
}

func renderRoster(cfg *config.SwarmConfig, colors map[string]string, wrap bool, width int) string {
	var b strings.Builder
	b.WriteString("Vehicles\n")
	for i, v := range cfg.Vehicles {
		prefix := "├─"
		if i == len(cfg.Vehicles)-1 {
			prefix = "└─"
		}
		c := colors[v.ID]
		line := fmt.Sprintf("%s %s%s%s %s slot=%d link=%s", prefix, c, v.ID, colorReset, v.Role, v.Slot, v.Link)
		if wrap && width > 0 {
			line = wordwrap.String(line, width)
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m tuiModel) renderSummary() string {
	total := len(m.vehicleBatteries)
	var sum float64
	for _, b := range m.vehicleBatteries {
		sum += b
	}
	avg := 0.0
	if total > 0 {
		avg = sum / float64(total)
	}
	var errSum float64
	errCount := 0
	for _, e := range m.vehicleErrors {
		errSum += e
		errCount++
	}
	avgErr := 0.0
	if errCount > 0 {
		avgErr = errSum / float64(errCount)
	}
	var eventParts []string
	for typ, c := range m.eventCounts {
		eventParts = append(eventParts, fmt.Sprintf("%s%s%s=%d", colorWhite, typ, colorReset, c))
	}
	events := strings.Join(eventParts, " ")
	summary := fmt.Sprintf("%sSUMMARY%s %svehicles=%d%s %savg_batt=%.0f%%%s %savg_err=%.1fm%s %sevents=%d%s",
		colorBlue, colorReset,
		colorGreen, total, colorReset,
		colorCyan, avg, colorReset,
		colorMagenta, avgErr, colorReset,
		colorYellow, m.totalEvents, colorReset)
	if events != "" {
		summary = fmt.Sprintf("%s [%s]", summary, events)
	}
	return summary
}

func (m tuiModel) renderBottom() string {
	adminColor := lipgloss.Color("9")
	if m.admin {
		adminColor = lipgloss.Color("10")
	}
	wrapColor := lipgloss.Color("9")
	if m.wrap {
		wrapColor = lipgloss.Color("10")
	}
	scrollColor := lipgloss.Color("10")
	if !m.autoscroll {
		scrollColor = lipgloss.Color("9")
	}
	summaryColor := lipgloss.Color("9")
	if m.summary {
		summaryColor = lipgloss.Color("10")
	}
	holdColor := lipgloss.Color("10")
	if m.holding {
		holdColor = lipgloss.Color("9")
	}
	adminIndicator := lipgloss.NewStyle().Foreground(adminColor).Render("●")
	wrapIndicator := lipgloss.NewStyle().Foreground(wrapColor).Render("●")
	scrollIndicator := lipgloss.NewStyle().Foreground(scrollColor).Render("●")
	summaryIndicator := lipgloss.NewStyle().Foreground(summaryColor).Render("●")
	holdIndicator := lipgloss.NewStyle().Foreground(holdColor).Render("●")
	state := fmt.Sprintf("%sCYCLE%s %sn=%d%s %sdur=%.1fms%s %spolled=%d/%d%s %ssent=%d%s %swithheld=%d%s %soverrun=%t%s",
		colorBlue, colorReset,
		colorGreen, m.cycle.Cycle, colorReset,
		colorYellow, m.cycle.DurationMS, colorReset,
		colorCyan, m.cycle.Polled, m.cycle.Polled+m.cycle.PollFailures, colorReset,
		colorMagenta, m.cycle.Dispatched, colorReset,
		colorYellow, m.cycle.Withheld, colorReset,
		colorRed, m.cycle.Overrun, colorReset)
	line := fmt.Sprintf("%s | Leader OK %s | Admin UI %s | Wrap %s | Scroll %s | Summary %s", state, holdIndicator, adminIndicator, wrapIndicator, scrollIndicator, summaryIndicator)
	if m.summary {
		return fmt.Sprintf("%s\n%s", m.renderSummary(), line)
	}
	return line
}

func (m tuiModel) renderFormationDialog() string {
	return fmt.Sprintf("Formation (shape,spacing,stagger) - Enter to stage, Esc to cancel: %s", m.formationInput.View())
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit",
		" w  toggle wrap for roster",
		" s  toggle auto-scroll",
		" f  stage formation change (shape,spacing,stagger)",
		" t  toggle summary footer",
		" m  toggle map view",
		" +  zoom in map",
		" -  zoom out map",
		" ←→↑↓ pan map",
		" 1  toggle vehicle layer",
		" 2  toggle target layer",
		" p  toggle vehicle roster",
		" h/? toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}

func headingIcon(h float64) string {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	switch {
	case h >= 45 && h < 135:
		return ">"
	case h >= 135 && h < 225:
		return "v"
	case h >= 225 && h < 315:
		return "<"
	default:
		return "^"
	}
}

func altitudeIcon(h, altDelta float64) string {
	icon := headingIcon(h)
	if altDelta >= highAltDeltaM {
		switch icon {
		case "^":
			return "▲"
		case ">":
			return "▶"
		case "v":
			return "▼"
		case "<":
			return "◀"
		}
	}
	return icon
}

func batteryBG(b float64) string {
	switch {
	case b < 25:
		return bgRed
	case b < 75:
		return bgYellow
	default:
		return bgGreen
	}
}

func (m *tuiModel) initMapViewport() {
	minLat, maxLat := math.Inf(1), math.Inf(-1)
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	for _, p := range m.vehiclePositions {
		if p.Lat < minLat {
			minLat = p.Lat
		}
		if p.Lat > maxLat {
			maxLat = p.Lat
		}
		if p.Lon < minLon {
			minLon = p.Lon
		}
		if p.Lon > maxLon {
			maxLon = p.Lon
		}
	}
	for _, p := range m.vehicleTargets {
		if p.Lat < minLat {
			minLat = p.Lat
		}
		if p.Lat > maxLat {
			maxLat = p.Lat
		}
		if p.Lon < minLon {
			minLon = p.Lon
		}
		if p.Lon > maxLon {
			maxLon = p.Lon
		}
	}
	home := m.cfg.Home
	if home.Lat < minLat {
		minLat = home.Lat
	}
	if home.Lat > maxLat {
		maxLat = home.Lat
	}
	if home.Lon < minLon {
		minLon = home.Lon
	}
	if home.Lon > maxLon {
		maxLon = home.Lon
	}
	if minLat == math.Inf(1) {
		minLat, maxLat = 0, 1
		minLon, maxLon = 0, 1
	}
	m.mapCenterLat = (maxLat + minLat) / 2
	m.mapCenterLon = (maxLon + minLon) / 2
	m.mapLatSpan = maxLat - minLat
	m.mapLonSpan = maxLon - minLon
	if m.mapLatSpan == 0 {
		m.mapLatSpan = 0.02
	}
	if m.mapLonSpan == 0 {
		m.mapLonSpan = 0.02
	}
	m.mapInitialized = true
}

func (m tuiModel) renderMap() string {
	width := m.vp.Width
	bottomHeight := lipgloss.Height(m.renderBottom())
	mapHeight := m.height - m.headerHeight - bottomHeight - 4
	if mapHeight < 1 {
		mapHeight = 1
	}
	if len(m.vehiclePositions) == 0 && len(m.vehicleTargets) == 0 {
		return "No position data"
	}
	minLat := m.mapCenterLat - m.mapLatSpan/2
	maxLat := m.mapCenterLat + m.mapLatSpan/2
	minLon := m.mapCenterLon - m.mapLonSpan/2
	maxLon := m.mapCenterLon + m.mapLonSpan/2
	lonRange := maxLon - minLon
	grid := make([][]string, mapHeight)
	for i := range grid {
		row := make([]string, width)
		for j := range row {
			row[j] = "."
		}
		grid[i] = row
	}
	// overlay simple lat/lon gridlines
	const divisions = 4
	for i := 1; i < divisions; i++ {
		x := int(float64(width-1) * float64(i) / divisions)
		for y := 0; y < mapHeight; y++ {
			if grid[y][x] == "-" {
				grid[y][x] = "+"
			} else if grid[y][x] == "." {
				grid[y][x] = "|"
			}
		}
		y := int(float64(mapHeight-1) * float64(i) / divisions)
		for x2 := 0; x2 < width; x2++ {
			if grid[y][x2] == "|" {
				grid[y][x2] = "+"
			} else if grid[y][x2] == "." {
				grid[y][x2] = "-"
			}
		}
	}
	hx := int((m.cfg.Home.Lon - minLon) / (maxLon - minLon) * float64(width-1))
	hy := int((maxLat - m.cfg.Home.Lat) / (maxLat - minLat) * float64(mapHeight-1))
	if hy >= 0 && hy < mapHeight && hx >= 0 && hx < width {
		grid[hy][hx] = fmt.Sprintf("%s%s%s", colorWhite, "H", colorReset)
	}
	if m.mapShowTargets {
		for id, p := range m.vehicleTargets {
			x := int((p.Lon - minLon) / (maxLon - minLon) * float64(width-1))
			y := int((maxLat - p.Lat) / (maxLat - minLat) * float64(mapHeight-1))
			if y >= 0 && y < mapHeight && x >= 0 && x < width {
				c := colorGray
				if col, ok := m.vehicleColors[id]; ok {
					c = col
				}
				grid[y][x] = fmt.Sprintf("%s%s%s", c, "o", colorReset)
			}
		}
	}
	if m.mapShowVehicles {
		for id, p := range m.vehiclePositions {
			x := int((p.Lon - minLon) / (maxLon - minLon) * float64(width-1))
			y := int((maxLat - p.Lat) / (maxLat - minLat) * float64(mapHeight-1))
			if y < 0 || y >= mapHeight || x < 0 || x >= width {
				continue
			}
			c := colorWhite
			if col, ok := m.vehicleColors[id]; ok {
				c = col
			}
			icon := altitudeIcon(m.vehicleHeadings[id], p.Alt-m.cfg.Home.Alt)
			bg := batteryBG(m.vehicleBatteries[id])
			grid[y][x] = fmt.Sprintf("%s%s%s%s", bg, c, icon, colorReset)
		}
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("lat %.5f..%.5f lon %.5f..%.5f N↑\n", maxLat, minLat, minLon, maxLon))
	for _, row := range grid {
		b.WriteString(strings.Join(row, ""))
		b.WriteByte('\n')
	}
	// simple horizontal scale bar based on longitude range
	midLat := (maxLat + minLat) / 2
	kmPerLon := 111.0 * math.Cos(midLat*math.Pi/180)
	kmPerChar := lonRange * kmPerLon / float64(width)
	barChars := int(math.Min(10, float64(width)/3))
	scaleKM := kmPerChar * float64(barChars)
	b.WriteString(fmt.Sprintf("Scale: |%s| %.2fkm\n", strings.Repeat("-", barChars), scaleKM))
	var legendParts []string
	for _, v := range m.cfg.Vehicles {
		if c, ok := m.vehicleColors[v.ID]; ok {
			legendParts = append(legendParts, fmt.Sprintf("%s^%s=%s", c, colorReset, v.ID))
		}
	}
	legendParts = append(legendParts, "o=target H=home")
	legendParts = append(legendParts, "▲=high_alt ^=low_alt")
	legendParts = append(legendParts, fmt.Sprintf("%s█%s=high_batt %s█%s=med %s█%s=low", bgGreen, colorReset, bgYellow, colorReset, bgRed, colorReset))
	b.WriteString(strings.Join(legendParts, " "))
	return strings.TrimRight(b.String(), "\n")
}

func parseFormationInput(val string) (string, float64, float64, error) {
	parts := strings.Split(val, ",")
	if len(parts) < 3 {
		return "", 0, 0, fmt.Errorf("expected shape,spacing,stagger")
	}
	shape := strings.TrimSpace(parts[0])
	spacing, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return "", 0, 0, err
	}
	stagger, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return "", 0, 0, err
	}
	return shape, spacing, stagger, nil
}
