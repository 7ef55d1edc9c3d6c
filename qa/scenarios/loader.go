package scenarios

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/bloodlift/core/model"
	"github.com/kilianp07/bloodlift/core/safety"
	"github.com/kilianp07/bloodlift/infra/simlink"
)

type DroneDef struct {
	Lat      float64 `yaml:"lat"`
	Lon      float64 `yaml:"lon"`
	Battery  float64 `yaml:"battery"`
	Charging *bool   `yaml:"charging,omitempty"`
	// Offline starts the scenario with the link down.
	Offline bool `yaml:"offline,omitempty"`
}

func (d DroneDef) ToConfig() simlink.Config {
	cfg := simlink.DefaultConfig()
	cfg.Home = model.Coordinate{Lat: d.Lat, Lon: d.Lon}
	cfg.Battery = d.Battery
	cfg.Charging = d.Charging
	return cfg
}

type HospitalDef struct {
	Name  string         `yaml:"name"`
	Lat   float64        `yaml:"lat"`
	Lon   float64        `yaml:"lon"`
	Stock map[string]int `yaml:"stock,omitempty"`
}

type RequestDef struct {
	Hospital   string `yaml:"hospital"`
	BloodType  string `yaml:"blood_type"`
	Units      int    `yaml:"units"`
	Urgency    string `yaml:"urgency"`
	AgeMinutes int    `yaml:"age_minutes,omitempty"`
}

// LimitsDef overrides individual safety limits.
type LimitsDef struct {
	MinBatteryReserve *float64 `yaml:"min_battery_reserve,omitempty"`
	MaxWindSpeed      *float64 `yaml:"max_wind_speed,omitempty"`
	MaxDistanceKm     *float64 `yaml:"max_distance_km,omitempty"`
	MinAltitude       *float64 `yaml:"min_altitude,omitempty"`
	MaxAltitude       *float64 `yaml:"max_altitude,omitempty"`
	MinVisibility     *float64 `yaml:"min_visibility,omitempty"`
}

func (l LimitsDef) Apply(base safety.Limits) safety.Limits {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&base.MinBatteryReserve, l.MinBatteryReserve)
	set(&base.MaxWindSpeed, l.MaxWindSpeed)
	set(&base.MaxDistanceKm, l.MaxDistanceKm)
	set(&base.MinAltitude, l.MinAltitude)
	set(&base.MaxAltitude, l.MaxAltitude)
	set(&base.MinVisibility, l.MinVisibility)
	return base
}

type WeatherDef struct {
	WindSpeed  float64 `yaml:"wind_speed"`
	Visibility float64 `yaml:"visibility"`
}

type Expected struct {
	Outcome     string `yaml:"outcome"`
	Status      string `yaml:"status,omitempty"`
	Source      string `yaml:"source,omitempty"`
	Destination string `yaml:"destination,omitempty"`
	// Commands is the exact command sequence received by the vehicle.
	Commands []string `yaml:"commands"`
}

type Scenario struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Altitude    float64           `yaml:"altitude"`
	Drone       DroneDef          `yaml:"drone"`
	Weather     WeatherDef        `yaml:"weather"`
	Limits      LimitsDef         `yaml:"limits,omitempty"`
	Zones       []model.NoFlyZone `yaml:"zones,omitempty"`
	Hospitals   []HospitalDef     `yaml:"hospitals"`
	Requests    []RequestDef      `yaml:"requests"`
	Expected    Expected          `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (r RequestDef) age() time.Duration { return time.Duration(r.AgeMinutes) * time.Minute }
