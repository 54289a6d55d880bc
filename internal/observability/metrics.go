// Package observability exposes Prometheus metrics for the control loop.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// fleetStatuses are the gauge labels kept in lockstep with the vehicle
// state machine.
var fleetStatuses = []string{"nominal", "warning", "critical", "lost"}

// SwarmCollector bundles Prometheus metrics for the coordination loop
// and provides a ready-to-mount /metrics handler.
type SwarmCollector struct {
	gatherer prometheus.Gatherer

	CyclesTotal         prometheus.Counter
	CycleDuration       prometheus.Histogram
	CycleOverruns       prometheus.Counter
	WaypointsDispatched prometheus.Counter
	PollFailures        *prometheus.CounterVec
	DispatchFailures    *prometheus.CounterVec
	FleetStatus         *prometheus.GaugeVec
	LeaderHoldCycles    prometheus.Gauge
}

// NewSwarmCollector registers swarm metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSwarmCollector(reg prometheus.Registerer) (*SwarmCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	cycles, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarm_cycles_total",
		Help: "Total number of completed coordination cycles.",
	}), "swarm_cycles_total")
	if err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarm_cycle_duration_seconds",
		Help:    "Coordination cycle wall time in seconds.",
		Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})
	duration, err = registerHistogram(reg, duration, "swarm_cycle_duration_seconds")
	if err != nil {
		return nil, err
	}

	overruns, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarm_cycle_overruns_total",
		Help: "Cycles whose wall time exceeded the configured period.",
	}), "swarm_cycle_overruns_total")
	if err != nil {
		return nil, err
	}

	waypoints, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarm_waypoints_dispatched_total",
		Help: "Formation waypoints successfully dispatched to followers.",
	}), "swarm_waypoints_dispatched_total")
	if err != nil {
		return nil, err
	}

	pollFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_poll_failures_total",
		Help: "Telemetry poll failures, labeled by vehicle.",
	}, []string{"vehicle_id"})
	pollFailures, err = registerCounterVec(reg, pollFailures, "swarm_poll_failures_total")
	if err != nil {
		return nil, err
	}

	dispatchFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_dispatch_failures_total",
		Help: "Waypoint dispatch failures, labeled by vehicle.",
	}, []string{"vehicle_id"})
	dispatchFailures, err = registerCounterVec(reg, dispatchFailures, "swarm_dispatch_failures_total")
	if err != nil {
		return nil, err
	}

	fleetStatus := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "swarm_fleet_status",
		Help: "Number of vehicles currently in each safety status.",
	}, []string{"status"})
	fleetStatus, err = registerGaugeVec(reg, fleetStatus, "swarm_fleet_status")
	if err != nil {
		return nil, err
	}

	leaderHold, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swarm_leader_hold_cycles",
		Help: "Consecutive cycles the swarm has held position waiting for the leader.",
	}), "swarm_leader_hold_cycles")
	if err != nil {
		return nil, err
	}

	return &SwarmCollector{
		gatherer:            gatherer,
		CyclesTotal:         cycles,
		CycleDuration:       duration,
		CycleOverruns:       overruns,
		WaypointsDispatched: waypoints,
		PollFailures:        pollFailures,
		DispatchFailures:    dispatchFailures,
		FleetStatus:         fleetStatus,
		LeaderHoldCycles:    leaderHold,
	}, nil
}

// ObserveCycle records one finished cycle.
func (c *SwarmCollector) ObserveCycle(d time.Duration, overrun bool) {
	if c == nil {
		return
	}
	if c.CyclesTotal != nil {
		c.CyclesTotal.Inc()
	}
	if c.CycleDuration != nil {
		c.CycleDuration.Observe(d.Seconds())
	}
	if overrun && c.CycleOverruns != nil {
		c.CycleOverruns.Inc()
	}
}

// RecordPollFailure counts a failed telemetry poll for one vehicle.
func (c *SwarmCollector) RecordPollFailure(vehicleID string) {
	if c == nil || c.PollFailures == nil {
		return
	}
	c.PollFailures.WithLabelValues(vehicleID).Inc()
}

// RecordDispatchFailure counts a failed waypoint send for one vehicle.
func (c *SwarmCollector) RecordDispatchFailure(vehicleID string) {
	if c == nil || c.DispatchFailures == nil {
		return
	}
	c.DispatchFailures.WithLabelValues(vehicleID).Inc()
}

// RecordWaypoints counts successfully dispatched waypoints.
func (c *SwarmCollector) RecordWaypoints(n int) {
	if c == nil || c.WaypointsDispatched == nil || n <= 0 {
		return
	}
	c.WaypointsDispatched.Add(float64(n))
}

// SetFleetStatus drives the per-status gauges from a status count map.
// Statuses missing from the map read as zero.
func (c *SwarmCollector) SetFleetStatus(counts map[string]int) {
	if c == nil || c.FleetStatus == nil {
		return
	}
	for _, status := range fleetStatuses {
		c.FleetStatus.WithLabelValues(status).Set(float64(counts[status]))
	}
}

// SetLeaderHold publishes the current leader grace counter.
func (c *SwarmCollector) SetLeaderHold(cycles int) {
	if c == nil || c.LeaderHoldCycles == nil {
		return
	}
	c.LeaderHoldCycles.Set(float64(cycles))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SwarmCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
