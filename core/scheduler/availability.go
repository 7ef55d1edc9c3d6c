package scheduler

import (
	"fmt"

	"github.com/kilianp07/bloodlift/core/model"
)

// Availability is what the scheduler needs to know about the vehicle.
type Availability struct {
	Connected      bool
	Battery        float64
	BatteryKnown   bool
	BatteryAssumed bool
	Charging       *bool
	Location       *model.Coordinate
}

// AvailabilityFromSnapshot extracts the availability inputs of a snapshot.
func AvailabilityFromSnapshot(s model.TelemetrySnapshot) Availability {
	a := Availability{
		Connected:      s.Connected,
		Battery:        s.Battery,
		BatteryKnown:   s.BatteryKnown,
		BatteryAssumed: s.BatteryAssumed,
		Charging:       s.Charging,
	}
	if s.Location != nil {
		c := s.Location.Coordinate()
		a.Location = &c
	}
	return a
}

// Assessment explains whether the vehicle can take a mission.
type Assessment struct {
	Available        bool   `json:"available"`
	Charging         bool   `json:"charging"`
	ChargingInferred bool   `json:"charging_inferred"`
	Reason           string `json:"reason,omitempty"`
}

// Assess applies the availability rules: the link must be up, the battery
// known and at or above the floor, and the vehicle not charging. An explicit
// charging signal wins over the battery level inference, and an assumed
// battery value never implies charging.
func (c Config) Assess(a Availability) Assessment {
	var res Assessment
	switch {
	case a.Charging != nil:
		res.Charging = *a.Charging
	case a.BatteryKnown && !a.BatteryAssumed && a.Battery > c.ChargingThreshold:
		res.Charging, res.ChargingInferred = true, true
	}
	switch {
	case !a.Connected:
		res.Reason = "link down"
	case !a.BatteryKnown:
		res.Reason = "battery unknown"
	case a.Battery < c.AvailabilityFloor:
		res.Reason = fmt.Sprintf("battery %.0f%% below %.0f%%", a.Battery, c.AvailabilityFloor)
	case res.Charging && res.ChargingInferred:
		res.Reason = fmt.Sprintf("charging (battery above %.0f%%)", c.ChargingThreshold)
	case res.Charging:
		res.Reason = "charging"
	default:
		res.Available = true
	}
	return res
}
