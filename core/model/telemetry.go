package model

import "time"

// Location is an accepted position fix. Altitude is relative to home in
// metres, heading in degrees.
type Location struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Alt     float64 `json:"alt"`
	Heading float64 `json:"heading"`
}

// Coordinate drops altitude and heading.
func (l Location) Coordinate() Coordinate { return Coordinate{Lat: l.Lat, Lon: l.Lon} }

// TelemetrySnapshot is the combined view of one telemetry poll.
type TelemetrySnapshot struct {
	Connected bool      `json:"connected"`
	Location  *Location `json:"location,omitempty"`
	// Battery is the remaining charge in percent. BatteryAssumed is set when
	// no battery telemetry arrived and the value is the optimistic default.
	Battery        float64   `json:"battery"`
	BatteryKnown   bool      `json:"battery_known"`
	BatteryAssumed bool      `json:"battery_assumed"`
	Speed          float64   `json:"speed"`
	SpeedKnown     bool      `json:"speed_known"`
	Charging       *bool     `json:"charging,omitempty"`
	Armed          bool      `json:"armed"`
	Mode           string    `json:"mode,omitempty"`
	SampledAt      time.Time `json:"sampled_at"`
}
