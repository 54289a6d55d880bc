package swarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BrianEstime1/drone-swarm/internal/geo"
	"github.com/BrianEstime1/drone-swarm/internal/logging"
	"github.com/BrianEstime1/drone-swarm/internal/telemetry"
	"github.com/BrianEstime1/drone-swarm/internal/vehicle"
)

// Run starts the control loop and blocks until the context is
// cancelled, Stop takes effect, or a safety fault stands the swarm
// down. Every exit path parks the followers before returning. The
// returned error is nil for a requested stop, ctx.Err() for
// cancellation, and a *SafetyFault when the swarm stood down.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case stateRunning:
		c.mu.Unlock()
		return ErrRunning
	case stateStopped:
		c.mu.Unlock()
		return ErrStopped
	}
	c.state = stateRunning
	c.mu.Unlock()
	defer c.markStopped()

	log := logging.FromContext(ctx)
	log.Info("starting coordinator",
		"swarm_id", c.cfg.SwarmID,
		"run_id", c.runID,
		"period", c.cfg.Period,
		"followers", len(c.followers),
		"shape", c.shape())

	ticker := time.NewTicker(c.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.runCycle(ctx); err != nil {
				log.Error("swarm stood down", "err", err)
				return err
			}
			if c.stopRequested() {
				cycle := c.cycleCount()
				log.Info("stopping coordinator", "cycle", cycle)
				events := c.parkFollowers(cycle)
				events = append(events, c.event(cycle, telemetry.EventStopped, "", "stop requested"))
				c.writeEvents(ctx, events)
				return nil
			}
		case <-ctx.Done():
			cycle := c.cycleCount()
			log.Info("stopping coordinator", "reason", ctx.Err())
			events := c.parkFollowers(cycle)
			events = append(events, c.event(cycle, telemetry.EventStopped, "", ctx.Err().Error()))
			c.writeEvents(ctx, events)
			return ctx.Err()
		}
	}
}

func (c *Coordinator) markStopped() {
	c.mu.Lock()
	c.state = stateStopped
	c.mu.Unlock()
}

func (c *Coordinator) stopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopReq
}

func (c *Coordinator) cycleCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycle
}

func (c *Coordinator) shape() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form.Shape()
}

// pollResult carries one vehicle's poll outcome into the merge step.
type pollResult struct {
	m      *member
	sample telemetry.Sample
	err    error
}

// dispatchOrder is one planned send. A non-empty mode makes it a mode
// command; otherwise it is a formation waypoint.
type dispatchOrder struct {
	m       *member
	mode    vehicle.Mode
	target  geo.Point
	heading *float64
}

// dispatchResult reports one send outcome.
type dispatchResult struct {
	order dispatchOrder
	err   error
}

// cycleOutcome aggregates what one cycle observed and decided.
type cycleOutcome struct {
	rows   []telemetry.TelemetryRow
	events []telemetry.EventRow

	polled           int
	pollFailures     int
	dispatched       int
	dispatchFailures int
	withheld         int

	fault *SafetyFault
}

// runCycle executes one poll, plan and dispatch round. A non-nil error
// means the swarm stood down and the loop must exit.
func (c *Coordinator) runCycle(ctx context.Context) error {
	started := c.now()

	cycle, events, ok := c.beginCycle()
	if !ok {
		return nil
	}

	polls := c.pollAll(ctx)
	orders, out := c.plan(cycle, polls)
	out.events = append(events, out.events...)

	if out.fault != nil {
		c.standDown(ctx, cycle, out)
		c.flush(ctx, cycle, started, out)
		return out.fault
	}

	results := c.dispatchAll(ctx, orders)
	c.recordDispatches(cycle, results, out)
	c.flush(ctx, cycle, started, out)
	return nil
}

// beginCycle opens the next cycle and applies staged formation changes
// at the boundary. ok is false when a stop raced in ahead of the tick.
func (c *Coordinator) beginCycle() (uint64, []telemetry.EventRow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateRunning || c.stopReq {
		return 0, nil, false
	}
	c.cycle++
	return c.cycle, c.applyStagedLocked(c.cycle), true
}

// pollAll queries every vehicle link in parallel, each under its own
// poll timeout. Vehicle state is not touched here; the merge happens
// serially in plan.
func (c *Coordinator) pollAll(ctx context.Context) []pollResult {
	members := c.members()
	results := make([]pollResult, len(members))
	var wg sync.WaitGroup
	for i, m := range members {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pollCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
			defer cancel()
			sample, err := m.link.Poll(pollCtx)
			results[i] = pollResult{m: m, sample: sample, err: err}
		}()
	}
	wg.Wait()
	return results
}

// plan merges poll results into vehicle state and decides this cycle's
// sends. It holds the lock for the whole merge so snapshots never see a
// half-updated fleet.
func (c *Coordinator) plan(cycle uint64, polls []pollResult) ([]dispatchOrder, *cycleOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := &cycleOutcome{}

	leaderPolled := false
	for _, p := range polls {
		if p.err != nil {
			p.m.state.MarkStale(now)
			out.pollFailures++
			out.events = append(out.events, c.event(cycle, telemetry.EventPollFailed, p.m.state.ID(), p.err.Error()))
			c.metrics.RecordPollFailure(p.m.state.ID())
			continue
		}
		p.m.state.Update(p.sample, now)
		out.polled++
		if p.m == c.leader {
			leaderPolled = true
		}
	}

	orders, targets := c.planFollowersLocked(cycle, leaderPolled, out)

	ts := now.UTC()
	for _, m := range c.members() {
		var target *geo.Point
		if t, ok := targets[m]; ok {
			target = &t
		}
		out.rows = append(out.rows, c.row(m, cycle, target, ts))
	}
	return orders, out
}

// planFollowersLocked runs the leader gate and, when the leader is
// usable, computes one waypoint per follower slot. Critical followers
// are withheld and flagged for return to launch instead.
func (c *Coordinator) planFollowersLocked(cycle uint64, leaderPolled bool, out *cycleOutcome) ([]dispatchOrder, map[*member]geo.Point) {
	leader := c.leader.state

	status := leader.Status()
	switch {
	case status == vehicle.StatusLost || status == vehicle.StatusCritical:
		c.holdCount++
		if !c.holding {
			c.holding = true
			out.events = append(out.events, c.event(cycle, telemetry.EventLeaderHold, leader.ID(), "status "+string(status)))
		}
		if c.holdCount > c.cfg.GraceCycles {
			fault := &SafetyFault{
				VehicleID: leader.ID(),
				Cycle:     cycle,
				Reason:    fmt.Sprintf("leader %s past %d-cycle grace", status, c.cfg.GraceCycles),
			}
			c.fault = fault
			out.fault = fault
		}
		return nil, nil
	case !leaderPolled:
		// Stale but inside the link timeout: hold this cycle without
		// charging the grace budget.
		if !c.holding {
			c.holding = true
			out.events = append(out.events, c.event(cycle, telemetry.EventLeaderHold, leader.ID(), "telemetry stale"))
		}
		return nil, nil
	}

	if c.holding {
		c.holding = false
		c.holdCount = 0
		out.events = append(out.events, c.event(cycle, telemetry.EventLeaderRecovered, leader.ID(), ""))
	}

	maxSlot := c.followers[len(c.followers)-1].state.Slot()
	offsets := c.form.Offsets(maxSlot + 1)

	var orders []dispatchOrder
	targets := make(map[*member]geo.Point, len(c.followers))
	for _, f := range c.followers {
		id := f.state.ID()

		if f.state.NeedsReturnToLaunch() {
			out.withheld++
			if !f.rtl {
				f.rtl = true
				out.events = append(out.events, c.event(cycle, telemetry.EventRTLFlagged, id, "status critical"))
				if _, ok := f.link.(ModeCommander); ok {
					orders = append(orders, dispatchOrder{m: f, mode: vehicle.ModeReturnToLaunch})
				}
			}
			continue
		}
		f.rtl = false

		target, err := leader.Position().Offset(offsets[f.state.Slot()])
		if err != nil {
			fault := &SafetyFault{
				VehicleID: c.leader.state.ID(),
				Cycle:     cycle,
				Reason:    fmt.Sprintf("formation target for %s: %v", id, err),
			}
			c.fault = fault
			out.fault = fault
			return nil, nil
		}

		order := dispatchOrder{m: f, target: target}
		if f.state.Fresh() {
			h := geo.Bearing(f.state.Position(), target)
			order.heading = &h
		}
		orders = append(orders, order)
		targets[f] = target
		f.state.SetTarget(target)
	}
	return orders, targets
}

// row builds one flight-history record from the vehicle's merged state.
func (c *Coordinator) row(m *member, cycle uint64, target *geo.Point, ts time.Time) telemetry.TelemetryRow {
	v := m.state.View()
	row := telemetry.TelemetryRow{
		SwarmID:    c.cfg.SwarmID,
		RunID:      c.runID,
		VehicleID:  v.ID,
		Role:       string(v.Role),
		Status:     string(v.Status),
		Cycle:      cycle,
		Lat:        v.Position.Lat,
		Lon:        v.Position.Lon,
		Alt:        v.Position.Alt,
		HeadingDeg: v.HeadingDeg,
		SpeedMPS:   v.SpeedMPS,
		BatteryV:   v.BatteryV,
		BatteryPct: v.BatteryPct,
		Satellites: v.Satellites,
		GPSFix:     v.GPSFix,
		Timestamp:  ts,
	}
	if target != nil {
		row.TargetLat = &target.Lat
		row.TargetLon = &target.Lon
		row.TargetAlt = &target.Alt
		if m.state.Fresh() {
			errM := geo.Distance(v.Position, *target)
			row.FormationErrorM = &errM
		}
	}
	return row
}

// dispatchAll pushes this cycle's orders out in parallel, each under
// its own send timeout.
func (c *Coordinator) dispatchAll(ctx context.Context, orders []dispatchOrder) []dispatchResult {
	results := make([]dispatchResult, len(orders))
	var wg sync.WaitGroup
	for i, o := range orders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, c.cfg.SendTimeout)
			defer cancel()
			results[i] = dispatchResult{order: o, err: c.send(sendCtx, o)}
		}()
	}
	wg.Wait()
	return results
}

func (c *Coordinator) send(ctx context.Context, o dispatchOrder) error {
	if o.mode != "" {
		mc, ok := o.m.link.(ModeCommander)
		if !ok {
			return fmt.Errorf("link for %s cannot command mode %s", o.m.state.ID(), o.mode)
		}
		return mc.SendMode(ctx, o.mode)
	}
	return o.m.link.SendWaypoint(ctx, o.target, o.heading)
}

// recordDispatches folds send results back into the fleet state.
func (c *Coordinator) recordDispatches(cycle uint64, results []dispatchResult, out *cycleOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range results {
		id := r.order.m.state.ID()
		if r.err != nil {
			out.dispatchFailures++
			out.events = append(out.events, c.event(cycle, telemetry.EventDispatchFailed, id, r.err.Error()))
			c.metrics.RecordDispatchFailure(id)
			continue
		}
		if r.order.mode != "" {
			r.order.m.state.SetMode(r.order.mode)
			continue
		}
		out.dispatched++
		r.order.m.state.SetMode(vehicle.ModeFormation)
	}
}

// standDown parks the fleet after a leader fault: return to launch for
// critical followers, hold for the rest. Links that cannot switch modes
// get a hold waypoint at their last known position.
func (c *Coordinator) standDown(ctx context.Context, cycle uint64, out *cycleOutcome) {
	c.mu.Lock()
	out.events = append(out.events,
		c.event(cycle, telemetry.EventLeaderFault, out.fault.VehicleID, out.fault.Reason),
		c.event(cycle, telemetry.EventStandDown, "", out.fault.Reason))
	c.mu.Unlock()

	failures := c.parkFollowers(cycle)
	out.dispatchFailures += len(failures)
	out.events = append(out.events, failures...)
}

// parkFollowers sends every follower hold, or return to launch when its
// own state demands it, and returns dispatch-failure events. Sends run
// under fresh timeouts so parking still goes out when the run context
// is already done.
func (c *Coordinator) parkFollowers(cycle uint64) []telemetry.EventRow {
	c.mu.Lock()
	modes := make([]vehicle.Mode, len(c.followers))
	for i, f := range c.followers {
		modes[i] = vehicle.ModeHold
		if f.state.NeedsReturnToLaunch() {
			modes[i] = vehicle.ModeReturnToLaunch
		}
	}
	c.mu.Unlock()

	errs := make([]error, len(c.followers))
	var wg sync.WaitGroup
	for i, f := range c.followers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(context.Background(), c.cfg.SendTimeout)
			defer cancel()
			errs[i] = c.commandMode(sendCtx, f, modes[i])
		}()
	}
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	var events []telemetry.EventRow
	for i, f := range c.followers {
		id := f.state.ID()
		if errs[i] != nil {
			events = append(events, c.event(cycle, telemetry.EventDispatchFailed, id, errs[i].Error()))
			c.metrics.RecordDispatchFailure(id)
			continue
		}
		f.state.SetMode(modes[i])
	}
	return events
}

// commandMode switches a follower's flight mode, falling back to a hold
// waypoint at the last known position when the link cannot switch modes.
func (c *Coordinator) commandMode(ctx context.Context, m *member, mode vehicle.Mode) error {
	if mc, ok := m.link.(ModeCommander); ok {
		return mc.SendMode(ctx, mode)
	}
	if !m.state.Fresh() {
		return fmt.Errorf("link for %s cannot command %s and position is unknown", m.state.ID(), mode)
	}
	return m.link.SendWaypoint(ctx, m.state.Position(), nil)
}

// flush writes the cycle's rows, events and summary, then updates
// metrics. Overruns are logged every time they happen.
func (c *Coordinator) flush(ctx context.Context, cycle uint64, started time.Time, out *cycleOutcome) {
	log := logging.FromContext(ctx)

	if bw, ok := c.writer.(batchWriter); ok {
		if err := bw.WriteBatch(out.rows); err != nil {
			log.Error("telemetry batch write failed", "err", err)
		}
	} else {
		for _, row := range out.rows {
			if err := c.writer.Write(row); err != nil {
				log.Error("telemetry write failed", "vehicle_id", row.VehicleID, "err", err)
			}
		}
	}

	elapsed := c.now().Sub(started)
	overrun := elapsed > c.cfg.Period
	if overrun {
		log.Warn("cycle overrun", "cycle", cycle, "elapsed", elapsed, "period", c.cfg.Period)
		out.events = append(out.events, c.event(cycle, telemetry.EventCycleOverrun, "",
			fmt.Sprintf("elapsed %s over period %s", elapsed, c.cfg.Period)))
	}

	c.writeEvents(ctx, out.events)

	if c.cycleWriter != nil {
		row := telemetry.CycleRow{
			SwarmID:          c.cfg.SwarmID,
			RunID:            c.runID,
			Cycle:            cycle,
			DurationMS:       float64(elapsed) / float64(time.Millisecond),
			Overrun:          overrun,
			Polled:           out.polled,
			PollFailures:     out.pollFailures,
			Dispatched:       out.dispatched,
			DispatchFailures: out.dispatchFailures,
			Withheld:         out.withheld,
			Timestamp:        c.now().UTC(),
		}
		if err := c.cycleWriter.WriteCycle(row); err != nil {
			log.Error("cycle write failed", "cycle", cycle, "err", err)
		}
	}

	c.metrics.ObserveCycle(elapsed, overrun)
	c.metrics.RecordWaypoints(out.dispatched)
	c.metrics.SetFleetStatus(c.statusCounts())
	c.metrics.SetLeaderHold(c.holdCountNow())
}

// writeEvents fans events out to the event writer, batch mode first.
func (c *Coordinator) writeEvents(ctx context.Context, events []telemetry.EventRow) {
	if c.eventWriter == nil || len(events) == 0 {
		return
	}
	log := logging.FromContext(ctx)
	if bw, ok := c.eventWriter.(batchEventWriter); ok {
		if err := bw.WriteEvents(events); err != nil {
			log.Error("event batch write failed", "err", err)
		}
		return
	}
	for _, ev := range events {
		if err := c.eventWriter.WriteEvent(ev); err != nil {
			log.Error("event write failed", "event_type", ev.Type, "err", err)
		}
	}
}

func (c *Coordinator) statusCounts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[string]int, 4)
	for _, m := range c.members() {
		counts[string(m.state.Status())]++
	}
	return counts
}

func (c *Coordinator) holdCountNow() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holdCount
}
