package safety

import (
	"errors"
	"fmt"
)

// Limits is the fixed set of mission limits. Distances are km, wind is km/h,
// altitudes and visibility are metres, battery is percent.
type Limits struct {
	MinBatteryReserve float64 `json:"min_battery_reserve" koanf:"min_battery_reserve"`
	MaxWindSpeed      float64 `json:"max_wind_speed" koanf:"max_wind_speed"`
	MaxDistanceKm     float64 `json:"max_distance_km" koanf:"max_distance_km"`
	MinAltitude       float64 `json:"min_altitude" koanf:"min_altitude"`
	MaxAltitude       float64 `json:"max_altitude" koanf:"max_altitude"`
	MinVisibility     float64 `json:"min_visibility" koanf:"min_visibility"`
}

// DefaultLimits returns the limits used when nothing is configured.
func DefaultLimits() Limits {
	return Limits{
		MinBatteryReserve: 20,
		MaxWindSpeed:      25,
		MaxDistanceKm:     10,
		MinAltitude:       30,
		MaxAltitude:       120,
		MinVisibility:     5000,
	}
}

// Validate reports inconsistent limits.
func (l Limits) Validate() error {
	var errs []error
	if l.MinBatteryReserve < 0 || l.MinBatteryReserve > 100 {
		errs = append(errs, fmt.Errorf("min_battery_reserve %.1f outside [0,100]", l.MinBatteryReserve))
	}
	if l.MaxWindSpeed <= 0 {
		errs = append(errs, errors.New("max_wind_speed must be positive"))
	}
	if l.MaxDistanceKm <= 0 {
		errs = append(errs, errors.New("max_distance_km must be positive"))
	}
	if l.MinAltitude < 0 || l.MaxAltitude <= l.MinAltitude {
		errs = append(errs, fmt.Errorf("altitude band [%.0f, %.0f] is empty", l.MinAltitude, l.MaxAltitude))
	}
	if l.MinVisibility < 0 {
		errs = append(errs, errors.New("min_visibility must not be negative"))
	}
	return errors.Join(errs...)
}
