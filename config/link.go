package config

import (
	"fmt"

	"github.com/kilianp07/bloodlift/infra/mqtt"
	"github.com/kilianp07/bloodlift/infra/simlink"
)

const (
	LinkModeMQTT = "mqtt"
	LinkModeSim  = "sim"
)

// LinkConfig selects the vehicle link.
type LinkConfig struct {
	// Mode is "mqtt" for the companion bridge or "sim" for the in-process
	// simulated vehicle.
	Mode string         `json:"mode"`
	MQTT mqtt.Config    `json:"mqtt"`
	Sim  simlink.Config `json:"sim"`
}

// DefaultLinkConfig uses the simulated vehicle.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{Mode: LinkModeSim, Sim: simlink.DefaultConfig()}
}

func (c *LinkConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = LinkModeSim
	}
	c.MQTT.SetDefaults()
}

func (c LinkConfig) Validate() error {
	switch c.Mode {
	case LinkModeMQTT:
		return c.MQTT.Validate()
	case LinkModeSim:
		if c.Sim.Battery < 0 || c.Sim.Battery > 100 {
			return fmt.Errorf("sim battery %.1f outside [0,100]", c.Sim.Battery)
		}
		return nil
	default:
		return fmt.Errorf("unknown link mode %q", c.Mode)
	}
}
