package config

import (
	"errors"
	"time"

	"github.com/kilianp07/bloodlift/core/telemetry"
)

// TelemetryConfig holds the read retry policy, the poll interval and the
// acquirer plausibility limits.
type TelemetryConfig struct {
	Attempts       int           `json:"attempts"`
	AttemptDelay   time.Duration `json:"attempt_delay"`
	ReceiveTimeout time.Duration `json:"receive_timeout"`
	PollInterval   time.Duration `json:"poll_interval"`

	telemetry.Config `json:",squash"`
}

func DefaultTelemetryConfig() TelemetryConfig {
	p := telemetry.DefaultRetryPolicy()
	return TelemetryConfig{
		Attempts:       p.Attempts,
		AttemptDelay:   p.Delay,
		ReceiveTimeout: p.Timeout,
		PollInterval:   2 * time.Second,
		Config:         telemetry.DefaultConfig(),
	}
}

// RetryPolicy returns the policy used for every telemetry read.
func (c TelemetryConfig) RetryPolicy() telemetry.RetryPolicy {
	return telemetry.RetryPolicy{Attempts: c.Attempts, Delay: c.AttemptDelay, Timeout: c.ReceiveTimeout}
}

func (c TelemetryConfig) Validate() error {
	var errs []error
	if c.Attempts <= 0 {
		errs = append(errs, errors.New("attempts must be positive"))
	}
	if c.ReceiveTimeout <= 0 || c.PollInterval <= 0 {
		errs = append(errs, errors.New("receive_timeout and poll_interval must be positive"))
	}
	if c.FullVoltage <= c.EmptyVoltage {
		errs = append(errs, errors.New("full_voltage must be above empty_voltage"))
	}
	if c.VoltageWindow <= 0 {
		errs = append(errs, errors.New("voltage_window must be positive"))
	}
	return errors.Join(errs...)
}
