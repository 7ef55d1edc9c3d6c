package scheduler

import (
	"errors"
	"fmt"

	"github.com/kilianp07/bloodlift/core/model"
)

// ChargingInferenceThreshold is the battery percentage above which a vehicle
// with no explicit charging signal is assumed to be on its charger. This is
// an assumption carried over from the field setup, where the vehicle only
// reports near full charge while docked.
const ChargingInferenceThreshold = 90.0

// Weights are the priority score coefficients. A lower score is dispatched
// sooner, so urgency weights grow as urgency drops and waiting time lowers
// the score.
type Weights struct {
	Critical      float64 `json:"critical" koanf:"critical"`
	Urgent        float64 `json:"urgent" koanf:"urgent"`
	Normal        float64 `json:"normal" koanf:"normal"`
	WaitPerHour   float64 `json:"wait_per_hour" koanf:"wait_per_hour"`
	DistancePerKm float64 `json:"distance_per_km" koanf:"distance_per_km"`
}

// Urgency returns the weight for u. Unknown urgencies rank as normal.
func (w Weights) Urgency(u model.Urgency) float64 {
	switch u {
	case model.UrgencyCritical:
		return w.Critical
	case model.UrgencyUrgent:
		return w.Urgent
	default:
		return w.Normal
	}
}

// Config holds scheduling parameters.
type Config struct {
	AvailabilityFloor float64 `json:"availability_floor" koanf:"availability_floor"`
	ChargingThreshold float64 `json:"charging_threshold" koanf:"charging_threshold"`
	Weights           Weights `json:"weights" koanf:"weights"`
}

// DefaultConfig returns the standard scheduling parameters.
func DefaultConfig() Config {
	return Config{
		AvailabilityFloor: 20,
		ChargingThreshold: ChargingInferenceThreshold,
		Weights: Weights{
			Critical:      0,
			Urgent:        10,
			Normal:        20,
			WaitPerHour:   5,
			DistancePerKm: 2,
		},
	}
}

// Validate reports inconsistent parameters.
func (c Config) Validate() error {
	var errs []error
	if c.AvailabilityFloor < 0 || c.AvailabilityFloor > 100 {
		errs = append(errs, fmt.Errorf("availability_floor %.1f outside [0,100]", c.AvailabilityFloor))
	}
	if c.ChargingThreshold <= c.AvailabilityFloor {
		errs = append(errs, errors.New("charging_threshold must be above availability_floor"))
	}
	if c.Weights.WaitPerHour < 0 || c.Weights.DistancePerKm < 0 {
		errs = append(errs, errors.New("score weights must not be negative"))
	}
	return errors.Join(errs...)
}
