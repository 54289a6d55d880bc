// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can carry values like "500ms".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Home is the launch point. Formation offsets are anchored to the
// leader, but return-to-launch and simulated vehicles start here.
type Home struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
	Alt float64 `yaml:"alt"`
}

// Formation selects the slot geometry the followers fly.
type Formation struct {
	Shape            string  `yaml:"shape"`
	SpacingM         float64 `yaml:"spacing_m"`
	AltitudeStaggerM float64 `yaml:"altitude_stagger_m"`
}

// Loop tunes the control cycle. Zero timeouts and grace fall back to
// the coordinator defaults. A zero RunDuration runs until interrupted.
type Loop struct {
	Period      Duration `yaml:"period"`
	PollTimeout Duration `yaml:"poll_timeout"`
	SendTimeout Duration `yaml:"send_timeout"`
	GraceCycles int      `yaml:"grace_cycles"`
	RunDuration Duration `yaml:"run_duration"`
}

// Safety holds the per-vehicle status thresholds. Zero fields fall back
// to the vehicle defaults.
type Safety struct {
	BatteryWarnPct     float64  `yaml:"battery_warn_pct"`
	BatteryCriticalPct float64  `yaml:"battery_critical_pct"`
	MinSatellites      int      `yaml:"min_satellites"`
	WarnSatellites     int      `yaml:"warn_satellites"`
	LinkTimeout        Duration `yaml:"link_timeout"`
	BatteryCells       int      `yaml:"battery_cells"`
}

// Vehicle defines one swarm member and how to reach it.
type Vehicle struct {
	ID   string `yaml:"id"`
	Role string `yaml:"role"` // leader or follower
	Slot int    `yaml:"slot"` // stable formation index, followers only
	Link string `yaml:"link"` // sim or msp

	// Route names a built-in patrol route or a YAML file for the
	// simulated leader autopilot.
	Route string `yaml:"route,omitempty"`

	// Device and Baud select the serial port for msp links.
	Device string `yaml:"device,omitempty"`
	Baud   int    `yaml:"baud,omitempty"`
}

// Sim tunes the built-in vehicle simulator.
type Sim struct {
	CruiseSpeedMPS     float64 `yaml:"cruise_speed_mps"`
	StartBatteryV      float64 `yaml:"start_battery_v"`
	BatteryCells       int     `yaml:"battery_cells"`
	DrainVPerS         float64 `yaml:"drain_v_per_s"`
	Satellites         int     `yaml:"satellites"`
	JitterM            float64 `yaml:"jitter_m"`
	DropoutRate        float64 `yaml:"dropout_rate"`
	BatteryAnomalyRate float64 `yaml:"battery_anomaly_rate"`
	FixLossRate        float64 `yaml:"fix_loss_rate"`
	Seed               int64   `yaml:"seed"`
}

// SwarmConfig is the root configuration for one swarm run.
type SwarmConfig struct {
	SwarmID   string    `yaml:"swarm_id"`
	Home      Home      `yaml:"home"`
	Formation Formation `yaml:"formation"`
	Loop      Loop      `yaml:"loop"`
	Safety    Safety    `yaml:"safety"`
	Vehicles  []Vehicle `yaml:"vehicles"`
	Sim       Sim       `yaml:"sim"`
}

// Load loads YAML config, validates it against a CUE schema, applies
// defaults and checks the fleet invariants.
func Load(configPath, cueSchemaPath string) (*SwarmConfig, error) {
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var cfg SwarmConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *SwarmConfig) applyDefaults() {
	if c.Formation.Shape == "" {
		c.Formation.Shape = "line"
	}
	if c.Formation.SpacingM == 0 {
		c.Formation.SpacingM = 10
	}
	if c.Loop.Period == 0 {
		c.Loop.Period = Duration(500 * time.Millisecond)
	}
}

// Validate checks the fleet invariants the schema cannot express.
func (c *SwarmConfig) Validate() error {
	if len(c.Vehicles) < 2 {
		return fmt.Errorf("config: need a leader and at least one follower, got %d vehicles", len(c.Vehicles))
	}

	var leaders, followers int
	ids := make(map[string]bool, len(c.Vehicles))
	slots := make(map[int]string, len(c.Vehicles))
	for _, v := range c.Vehicles {
		if v.ID == "" {
			return fmt.Errorf("config: vehicle without id")
		}
		if ids[v.ID] {
			return fmt.Errorf("config: duplicate vehicle id %q", v.ID)
		}
		ids[v.ID] = true

		switch v.Role {
		case "leader":
			leaders++
		case "follower":
			followers++
			if v.Slot < 0 {
				return fmt.Errorf("config: vehicle %s has negative slot %d", v.ID, v.Slot)
			}
			if other, ok := slots[v.Slot]; ok {
				return fmt.Errorf("config: vehicles %s and %s share slot %d", other, v.ID, v.Slot)
			}
			slots[v.Slot] = v.ID
		default:
			return fmt.Errorf("config: vehicle %s has unknown role %q", v.ID, v.Role)
		}

		switch v.Link {
		case "sim":
		case "msp":
			if v.Device == "" {
				return fmt.Errorf("config: vehicle %s uses msp but has no device", v.ID)
			}
		default:
			return fmt.Errorf("config: vehicle %s has unknown link %q", v.ID, v.Link)
		}
	}
	if leaders != 1 {
		return fmt.Errorf("config: exactly one leader required, got %d", leaders)
	}
	if followers == 0 {
		return fmt.Errorf("config: at least one follower required")
	}

	if c.Formation.SpacingM <= 0 {
		return fmt.Errorf("config: formation spacing must be positive, got %v", c.Formation.SpacingM)
	}
	if c.Loop.Period <= 0 {
		return fmt.Errorf("config: loop period must be positive, got %v", c.Loop.Period.Std())
	}
	return nil
}

// Leader returns the leader entry. Call after Validate.
func (c *SwarmConfig) Leader() Vehicle {
	for _, v := range c.Vehicles {
		if v.Role == "leader" {
			return v
		}
	}
	return Vehicle{}
}

// Followers returns the follower entries in file order.
func (c *SwarmConfig) Followers() []Vehicle {
	out := make([]Vehicle, 0, len(c.Vehicles))
	for _, v := range c.Vehicles {
		if v.Role == "follower" {
			out = append(out, v)
		}
	}
	return out
}
