package config

import (
	"github.com/kilianp07/bloodlift/core/dispatch"
	"github.com/kilianp07/bloodlift/core/model"
)

// DispatchConfig holds the flight sequence parameters and the home location
// used when the vehicle position is unknown.
type DispatchConfig struct {
	dispatch.Config `json:",squash"`
	Home            model.Coordinate `json:"home"`
}

func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Config: dispatch.DefaultConfig(),
		Home:   model.Coordinate{Lat: 40.7128, Lon: -74.0060},
	}
}
