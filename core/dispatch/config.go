package dispatch

import (
	"errors"
	"time"
)

// Config holds the command parameters and settle delays of the sequence.
type Config struct {
	CruiseAltitude float64       `json:"cruise_altitude" koanf:"cruise_altitude"`
	GuidedMode     string        `json:"guided_mode" koanf:"guided_mode"`
	ModeSettle     time.Duration `json:"mode_settle" koanf:"mode_settle"`
	ArmSettle      time.Duration `json:"arm_settle" koanf:"arm_settle"`
	TakeoffSettle  time.Duration `json:"takeoff_settle" koanf:"takeoff_settle"`
	LegSettle      time.Duration `json:"leg_settle" koanf:"leg_settle"`
	ReturnSettle   time.Duration `json:"return_settle" koanf:"return_settle"`
	CommandTimeout time.Duration `json:"command_timeout" koanf:"command_timeout"`
}

// DefaultConfig returns the settle delays used with a small multirotor.
func DefaultConfig() Config {
	return Config{
		CruiseAltitude: 40,
		GuidedMode:     "GUIDED",
		ModeSettle:     time.Second,
		ArmSettle:      3 * time.Second,
		TakeoffSettle:  10 * time.Second,
		LegSettle:      5 * time.Second,
		ReturnSettle:   time.Second,
		CommandTimeout: 5 * time.Second,
	}
}

// Validate reports unusable parameters.
func (c Config) Validate() error {
	var errs []error
	if c.CruiseAltitude <= 0 {
		errs = append(errs, errors.New("cruise_altitude must be positive"))
	}
	if c.GuidedMode == "" {
		errs = append(errs, errors.New("guided_mode is required"))
	}
	for _, d := range []time.Duration{c.ModeSettle, c.ArmSettle, c.TakeoffSettle, c.LegSettle, c.ReturnSettle} {
		if d < 0 {
			errs = append(errs, errors.New("settle delays must not be negative"))
			break
		}
	}
	return errors.Join(errs...)
}
