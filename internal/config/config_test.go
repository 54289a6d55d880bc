package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const schemaPath = "../../schemas/swarm.cue"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swarm.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
swarm_id: test-swarm
home:
  lat: 47.3769
  lon: 8.5417
  alt: 400
formation:
  shape: vee
  spacing_m: 12
  altitude_stagger_m: 2
loop:
  period: 500ms
  poll_timeout: 200ms
  grace_cycles: 5
  run_duration: 30s
safety:
  battery_warn_pct: 40
  link_timeout: 2s
vehicles:
  - id: scout-1
    role: leader
    link: sim
    route: perimeter
  - id: scout-2
    role: follower
    slot: 0
    link: sim
  - id: scout-3
    role: follower
    slot: 1
    link: msp
    device: /dev/ttyACM0
    baud: 115200
`

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig), schemaPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SwarmID != "test-swarm" {
		t.Errorf("swarm id = %q", cfg.SwarmID)
	}
	if cfg.Home.Lat != 47.3769 || cfg.Home.Alt != 400 {
		t.Errorf("home = %+v", cfg.Home)
	}
	if cfg.Formation.Shape != "vee" || cfg.Formation.SpacingM != 12 {
		t.Errorf("formation = %+v", cfg.Formation)
	}
	if cfg.Loop.Period.Std() != 500*time.Millisecond {
		t.Errorf("period = %v", cfg.Loop.Period.Std())
	}
	if cfg.Loop.PollTimeout.Std() != 200*time.Millisecond {
		t.Errorf("poll timeout = %v", cfg.Loop.PollTimeout.Std())
	}
	if cfg.Loop.RunDuration.Std() != 30*time.Second {
		t.Errorf("run duration = %v", cfg.Loop.RunDuration.Std())
	}
	if cfg.Safety.LinkTimeout.Std() != 2*time.Second {
		t.Errorf("link timeout = %v", cfg.Safety.LinkTimeout.Std())
	}
	if len(cfg.Vehicles) != 3 {
		t.Fatalf("vehicles = %d, want 3", len(cfg.Vehicles))
	}
	if cfg.Leader().ID != "scout-1" {
		t.Errorf("leader = %q", cfg.Leader().ID)
	}
	if got := cfg.Followers(); len(got) != 2 || got[1].Device != "/dev/ttyACM0" {
		t.Errorf("followers = %+v", got)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	minimal := `
home:
  lat: 47.0
  lon: 8.0
  alt: 300
vehicles:
  - id: a
    role: leader
    link: sim
  - id: b
    role: follower
    link: sim
`
	cfg, err := Load(writeConfig(t, minimal), schemaPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Formation.Shape != "line" {
		t.Errorf("default shape = %q, want line", cfg.Formation.Shape)
	}
	if cfg.Formation.SpacingM != 10 {
		t.Errorf("default spacing = %v, want 10", cfg.Formation.SpacingM)
	}
	if cfg.Loop.Period.Std() != 500*time.Millisecond {
		t.Errorf("default period = %v, want 500ms", cfg.Loop.Period.Std())
	}
}

func TestLoad_SchemaRejectsUnknownShape(t *testing.T) {
	bad := strings.Replace(validConfig, "shape: vee", "shape: diamond", 1)
	if _, err := Load(writeConfig(t, bad), schemaPath); err == nil {
		t.Fatal("expected schema error for unknown shape")
	}
}

func TestLoad_SchemaRejectsMissingHome(t *testing.T) {
	bad := `
vehicles:
  - id: a
    role: leader
    link: sim
  - id: b
    role: follower
    link: sim
`
	if _, err := Load(writeConfig(t, bad), schemaPath); err == nil {
		t.Fatal("expected schema error for missing home")
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	bad := strings.Replace(validConfig, "period: 500ms", "period: banana", 1)
	if _, err := Load(writeConfig(t, bad), schemaPath); err == nil {
		t.Fatal("expected duration parse error")
	}
}

func TestValidate_FleetInvariants(t *testing.T) {
	base := func() *SwarmConfig {
		return &SwarmConfig{
			Formation: Formation{Shape: "line", SpacingM: 10},
			Loop:      Loop{Period: Duration(500 * time.Millisecond)},
			Vehicles: []Vehicle{
				{ID: "a", Role: "leader", Link: "sim"},
				{ID: "b", Role: "follower", Slot: 0, Link: "sim"},
				{ID: "c", Role: "follower", Slot: 1, Link: "sim"},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*SwarmConfig)
		want   string
	}{
		{"two leaders", func(c *SwarmConfig) { c.Vehicles[1].Role = "leader" }, "exactly one leader"},
		{"no follower", func(c *SwarmConfig) {
			c.Vehicles = []Vehicle{c.Vehicles[0], {ID: "x", Role: "leader", Link: "sim"}}
		}, "exactly one leader"},
		{"duplicate id", func(c *SwarmConfig) { c.Vehicles[2].ID = "b" }, "duplicate vehicle id"},
		{"duplicate slot", func(c *SwarmConfig) { c.Vehicles[2].Slot = 0 }, "share slot"},
		{"negative slot", func(c *SwarmConfig) { c.Vehicles[1].Slot = -1 }, "negative slot"},
		{"unknown role", func(c *SwarmConfig) { c.Vehicles[1].Role = "wingman" }, "unknown role"},
		{"unknown link", func(c *SwarmConfig) { c.Vehicles[1].Link = "lora" }, "unknown link"},
		{"msp without device", func(c *SwarmConfig) { c.Vehicles[1].Link = "msp" }, "no device"},
		{"bad spacing", func(c *SwarmConfig) { c.Formation.SpacingM = -1 }, "spacing"},
		{"too few vehicles", func(c *SwarmConfig) { c.Vehicles = c.Vehicles[:1] }, "at least one follower"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want substring %q", err, tt.want)
			}
		})
	}

	if err := base().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}
