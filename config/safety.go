package config

import (
	"errors"

	"github.com/kilianp07/bloodlift/core/safety"
)

// SafetyConfig holds the mission limits, the no-fly-zone file and the static
// weather reported to the gate.
type SafetyConfig struct {
	safety.Limits  `json:",squash"`
	NoFlyZonesPath string         `json:"no_fly_zones_path"`
	Weather        safety.Weather `json:"weather"`
}

func DefaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		Limits:  safety.DefaultLimits(),
		Weather: safety.Weather{WindSpeed: 0, Visibility: 10000},
	}
}

func (c SafetyConfig) Validate() error {
	if c.Weather.WindSpeed < 0 || c.Weather.Visibility < 0 {
		return errors.Join(c.Limits.Validate(), errors.New("weather values must not be negative"))
	}
	return c.Limits.Validate()
}
