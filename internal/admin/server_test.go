package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BrianEstime1/drone-swarm/internal/formation"
	"github.com/BrianEstime1/drone-swarm/internal/geo"
	"github.com/BrianEstime1/drone-swarm/internal/observability"
	"github.com/BrianEstime1/drone-swarm/internal/swarm"
	"github.com/BrianEstime1/drone-swarm/internal/telemetry"
	"github.com/BrianEstime1/drone-swarm/internal/vehicle"
)

type stubLink struct{}

func (stubLink) Poll(ctx context.Context) (telemetry.Sample, error) {
	return telemetry.Sample{
		Position:   geo.Point{Lat: 47.3769, Lon: 8.5417, Alt: 400},
		BatteryV:   12.6,
		Satellites: 10,
		GPSFix:     true,
	}, nil
}

func (stubLink) SendWaypoint(ctx context.Context, target geo.Point, headingDeg *float64) error {
	return nil
}

type discardWriter struct{}

func (discardWriter) Write(telemetry.TelemetryRow) error { return nil }

func newTestServer(t *testing.T, metrics *observability.SwarmCollector) (*Server, *swarm.Coordinator) {
	t.Helper()
	members := []swarm.Member{
		{State: vehicle.New("leader-1", vehicle.RoleLeader, 0, vehicle.DefaultThresholds()), Link: stubLink{}},
		{State: vehicle.New("scout-1", vehicle.RoleFollower, 0, vehicle.DefaultThresholds()), Link: stubLink{}},
	}
	form, err := formation.New(formation.ShapeLine, 10, 0)
	if err != nil {
		t.Fatalf("formation: %v", err)
	}
	coord, err := swarm.NewCoordinator(swarm.Config{SwarmID: "alpha", Period: 100 * time.Millisecond},
		members, form, discardWriter{}, nil, nil, metrics)
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}
	return NewServer(coord, metrics), coord
}

func TestHandleFleet(t *testing.T) {
	server, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/fleet", nil)
	w := httptest.NewRecorder()
	server.handleFleet(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status OK, got %v", resp.StatusCode)
	}
	var snap swarm.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if snap.SwarmID != "alpha" || snap.State != "idle" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if len(snap.Vehicles) != 2 || snap.Vehicles[0].ID != "leader-1" {
		t.Errorf("unexpected vehicles: %+v", snap.Vehicles)
	}
}

func TestHandleFormationStagesChanges(t *testing.T) {
	server, coord := newTestServer(t, nil)

	body := url.Values{"shape": {"vee"}, "spacing": {"25"}, "stagger": {"3"}}
	req := httptest.NewRequest(http.MethodPost, "/formation", strings.NewReader(body.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	server.handleFormation(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status OK, got %v", resp.StatusCode)
	}
	var out struct {
		Staged map[string]any `json:"staged"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if out.Staged["shape"] != "vee" || out.Staged["spacing_m"] != 25.0 || out.Staged["stagger_m"] != 3.0 {
		t.Errorf("unexpected staged values: %+v", out.Staged)
	}

	// Changes wait for the next cycle boundary, so the live snapshot
	// still reports the old formation.
	if snap := coord.Snapshot(); snap.Shape != "line" || snap.SpacingM != 10 {
		t.Errorf("staged change applied early: %+v", snap)
	}
}

func TestHandleFormationRejectsBadInput(t *testing.T) {
	server, _ := newTestServer(t, nil)

	cases := []string{
		"/formation?shape=spiral",
		"/formation?spacing=-1",
		"/formation?spacing=abc",
		"/formation?stagger=abc",
	}
	for _, target := range cases {
		req := httptest.NewRequest(http.MethodPost, target, nil)
		w := httptest.NewRecorder()
		server.handleFormation(w, req)
		resp := w.Result()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected status BadRequest, got %v", target, resp.StatusCode)
		}
		var out map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Errorf("%s: decode error: %v", target, err)
		} else if out["error"] == "" {
			t.Errorf("%s: expected error message", target)
		}
	}
}

func TestHandleStop(t *testing.T) {
	server, coord := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/stop", nil)
	w := httptest.NewRecorder()
	server.handleStop(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected status NoContent, got %v", resp.StatusCode)
	}
	if snap := coord.Snapshot(); snap.State != "stopped" {
		t.Errorf("expected stopped coordinator, got %q", snap.State)
	}
}

func TestHandleHealthz(t *testing.T) {
	server, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	server.handleHealthz(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status OK, got %v", resp.StatusCode)
	}
	var out struct {
		State   string `json:"state"`
		Holding bool   `json:"holding"`
		Fault   string `json:"fault"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if out.State != "idle" || out.Holding || out.Fault != "" {
		t.Errorf("unexpected health: %+v", out)
	}
}

func TestHandleIndex(t *testing.T) {
	server, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	server.handleIndex(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status OK, got %v", resp.StatusCode)
	}
	page := w.Body.String()
	for _, want := range []string{"alpha", "leader-1", "scout-1", `value="vee"`, "Stage formation"} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewSwarmCollector(reg)
	if err != nil {
		t.Fatalf("collector: %v", err)
	}
	server, _ := newTestServer(t, collector)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status OK, got %v", resp.StatusCode)
	}
	if !strings.Contains(w.Body.String(), "swarm_cycles_total") {
		t.Errorf("metrics output missing swarm_cycles_total")
	}
}
