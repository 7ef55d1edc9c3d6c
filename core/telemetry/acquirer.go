// Package telemetry reads position, battery and speed from the vehicle link,
// absorbing missing messages and implausible values. Every read returns a
// Reading whose Status tells callers whether the value is usable.
package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kilianp07/bloodlift/core/geo"
	"github.com/kilianp07/bloodlift/core/logger"
	"github.com/kilianp07/bloodlift/core/model"
)

// Config holds the plausibility limits and battery calibration.
type Config struct {
	EmptyVoltage    float64 `json:"empty_voltage" koanf:"empty_voltage"`
	FullVoltage     float64 `json:"full_voltage" koanf:"full_voltage"`
	VoltageWindow   int     `json:"voltage_window" koanf:"voltage_window"`
	AltitudeCeiling float64 `json:"altitude_ceiling" koanf:"altitude_ceiling"`
	SpeedCeiling    float64 `json:"speed_ceiling" koanf:"speed_ceiling"`
	MinFixType      int     `json:"min_fix_type" koanf:"min_fix_type"`
	// AssumedBattery is reported when no battery telemetry arrives at all.
	AssumedBattery float64 `json:"assumed_battery" koanf:"assumed_battery"`
}

// DefaultConfig returns the limits for a 3S pack on a small multirotor.
func DefaultConfig() Config {
	return Config{
		EmptyVoltage:    10.5,
		FullVoltage:     12.6,
		VoltageWindow:   5,
		AltitudeCeiling: 1000,
		SpeedCeiling:    100,
		MinFixType:      2,
		AssumedBattery:  100,
	}
}

type fix struct {
	loc model.Location
	at  time.Time
}

var errRejectedFix = errors.New("telemetry: fix rejected")
var errNoBatteryField = errors.New("telemetry: no battery field")
var errNoAirspeed = errors.New("telemetry: no airspeed")

// Acquirer turns raw link messages into readings. It keeps the last two
// accepted fixes and the last known speed between calls. Methods are safe for
// concurrent use; calls are serialised.
type Acquirer struct {
	link  Link
	cfg   Config
	retry RetryPolicy
	log   logger.Logger
	now   func() time.Time

	mu         sync.Mutex
	connected  bool
	prev, last *fix
	lastSpeed  float64
	speedKnown bool
	volts      voltageWindow
	charging   *bool
	armed      bool
	mode       string
}

// Option customises an Acquirer.
type Option func(*Acquirer)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(a *Acquirer) { a.log = l } }

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option { return func(a *Acquirer) { a.retry = p } }

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option { return func(a *Acquirer) { a.now = now } }

// NewAcquirer creates an Acquirer reading from link.
func NewAcquirer(link Link, cfg Config, opts ...Option) *Acquirer {
	a := &Acquirer{
		link:  link,
		cfg:   cfg,
		retry: DefaultRetryPolicy(),
		log:   logger.Nop{},
		now:   time.Now,
		volts: voltageWindow{size: cfg.VoltageWindow},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Connected reports the connection state observed by the last read.
func (a *Acquirer) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// Location returns the current position fix, trying each message kind of the
// fallback chain in turn.
func (a *Acquirer) Location(ctx context.Context) Reading[model.Location] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.location(ctx)
}

// Battery returns the remaining charge in percent.
func (a *Acquirer) Battery(ctx context.Context) Reading[float64] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.battery(ctx)
}

// Speed returns the ground or air speed in m/s.
func (a *Acquirer) Speed(ctx context.Context) Reading[float64] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speed(ctx)
}

// Sample is a full poll: the snapshot plus the status of each reading.
type Sample struct {
	Snapshot model.TelemetrySnapshot
	Location Reading[model.Location]
	Battery  Reading[float64]
	Speed    Reading[float64]
}

// Sample reads location, battery and speed, in that order, so a fresh fix is
// available when speed has to be derived.
func (a *Acquirer) Sample(ctx context.Context) Sample {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Sample{
		Location: a.location(ctx),
		Battery:  a.battery(ctx),
		Speed:    a.speed(ctx),
	}
	a.heartbeat(ctx)
	snap := model.TelemetrySnapshot{
		Connected:      a.connected,
		Battery:        s.Battery.Value,
		BatteryKnown:   s.Battery.Valid,
		BatteryAssumed: s.Battery.Status == StatusAssumed,
		Speed:          s.Speed.Value,
		SpeedKnown:     s.Speed.Valid,
		Charging:       a.charging,
		Armed:          a.armed,
		Mode:           a.mode,
		SampledAt:      a.now(),
	}
	if s.Location.Valid {
		loc := s.Location.Value
		snap.Location = &loc
	}
	s.Snapshot = snap
	return s
}

// Snapshot is Sample without the per-reading statuses.
func (a *Acquirer) Snapshot(ctx context.Context) model.TelemetrySnapshot {
	return a.Sample(ctx).Snapshot
}

func (a *Acquirer) linkUp() bool {
	a.connected = a.link.Connected()
	return a.connected
}

func (a *Acquirer) receive(ctx context.Context, kind MessageKind, accept func(Message) error) error {
	return a.receiveWith(ctx, a.retry, kind, accept)
}

func (a *Acquirer) receiveWith(ctx context.Context, policy RetryPolicy, kind MessageKind, accept func(Message) error) error {
	err := policy.Do(ctx, func(ctx context.Context) error {
		msg, err := a.link.Receive(ctx, kind)
		if err != nil {
			return err
		}
		return accept(msg)
	})
	if errors.Is(err, ErrLinkDown) {
		a.connected = false
		a.log.Warnf("link lost while waiting for %s", kind)
	}
	return err
}

func (a *Acquirer) location(ctx context.Context) Reading[model.Location] {
	if !a.linkUp() {
		return unknown[model.Location](StatusLinkDown)
	}
	// Fallback kinds get a single attempt so a dead chain costs one full
	// retry cycle plus one timeout per fallback.
	fallback := a.retry
	fallback.Attempts = 1
	for i, kind := range locationChain {
		policy := a.retry
		if i > 0 {
			policy = fallback
		}
		var got model.Location
		err := a.receiveWith(ctx, policy, kind, func(msg Message) error {
			loc, ok := a.acceptFix(msg)
			if !ok {
				return errRejectedFix
			}
			got = loc
			return nil
		})
		switch {
		case err == nil:
			a.prev, a.last = a.last, &fix{loc: got, at: a.now()}
			return Reading[model.Location]{Value: got, Valid: true, Status: StatusOK, Source: kind}
		case errors.Is(err, ErrLinkDown):
			return unknown[model.Location](StatusLinkDown)
		case ctx.Err() != nil:
			return unknown[model.Location](StatusUnavailable)
		}
		a.log.Debugw("no accepted fix", map[string]any{"kind": string(kind), "error": err.Error()})
	}
	a.log.Warnf("no position fix from any source")
	return unknown[model.Location](StatusUnavailable)
}

// acceptFix applies the fix quality and plausibility rules. Kinds without a
// fix type field are accepted on coordinates alone.
func (a *Acquirer) acceptFix(msg Message) (model.Location, bool) {
	if msg.FixType != nil && *msg.FixType < a.cfg.MinFixType {
		a.log.Debugw("fix below minimum quality", map[string]any{"kind": string(msg.Kind), "fix_type": *msg.FixType, "min": a.cfg.MinFixType})
		return model.Location{}, false
	}
	if msg.Lat == 0 || msg.Lon == 0 {
		a.log.Debugw("fix with zero coordinates", map[string]any{"kind": string(msg.Kind), "lat": msg.Lat, "lon": msg.Lon})
		return model.Location{}, false
	}
	loc := model.Location{Lat: msg.Lat, Lon: msg.Lon, Alt: msg.Alt, Heading: msg.Heading}
	if a.cfg.AltitudeCeiling > 0 && loc.Alt > a.cfg.AltitudeCeiling {
		a.log.Warnw("suspect altitude clamped to zero", map[string]any{"kind": string(msg.Kind), "alt": loc.Alt, "ceiling": a.cfg.AltitudeCeiling})
		loc.Alt = 0
	}
	return loc, true
}

func (a *Acquirer) battery(ctx context.Context) Reading[float64] {
	if !a.linkUp() {
		return unknown[float64](StatusLinkDown)
	}
	var msg Message
	err := a.receive(ctx, KindSysStatus, func(m Message) error {
		remaining := m.BatteryRemaining != nil && *m.BatteryRemaining >= 0
		voltage := m.VoltageV != nil && *m.VoltageV > 0
		if !remaining && !voltage {
			return errNoBatteryField
		}
		msg = m
		return nil
	})
	if errors.Is(err, ErrLinkDown) {
		return unknown[float64](StatusLinkDown)
	}
	if err == nil {
		if msg.Charging != nil {
			c := *msg.Charging
			a.charging = &c
		}
		if msg.BatteryRemaining != nil && *msg.BatteryRemaining >= 0 {
			return Reading[float64]{Value: clampPercent(*msg.BatteryRemaining), Valid: true, Status: StatusOK, Source: KindSysStatus}
		}
		mean := a.volts.add(*msg.VoltageV)
		pct := PercentFromVoltage(mean, a.cfg.EmptyVoltage, a.cfg.FullVoltage)
		a.log.Debugw("battery derived from voltage", map[string]any{"voltage": *msg.VoltageV, "smoothed": mean, "percent": pct})
		return Reading[float64]{Value: pct, Valid: true, Status: StatusOK, Source: SourceDerived}
	}
	a.log.Warnf("no battery telemetry, assuming %.0f%%", a.cfg.AssumedBattery)
	return Reading[float64]{Value: a.cfg.AssumedBattery, Valid: true, Status: StatusAssumed}
}

func (a *Acquirer) speed(ctx context.Context) Reading[float64] {
	if !a.linkUp() {
		return unknown[float64](StatusLinkDown)
	}
	var airspeed float64
	err := a.receive(ctx, KindVFRHUD, func(m Message) error {
		if m.Airspeed == nil {
			return errNoAirspeed
		}
		airspeed = *m.Airspeed
		return nil
	})
	if errors.Is(err, ErrLinkDown) {
		return unknown[float64](StatusLinkDown)
	}
	if err == nil {
		a.lastSpeed, a.speedKnown = airspeed, true
		return Reading[float64]{Value: airspeed, Valid: true, Status: StatusOK, Source: KindVFRHUD}
	}
	return a.derivedSpeed()
}

// derivedSpeed divides the distance between the last two accepted fixes by
// the wall clock time between them.
func (a *Acquirer) derivedSpeed() Reading[float64] {
	previous := Reading[float64]{Value: a.lastSpeed, Valid: a.speedKnown}
	if a.prev == nil || a.last == nil {
		previous.Status = StatusUnavailable
		return previous
	}
	dt := a.last.at.Sub(a.prev.at).Seconds()
	if dt <= 0 {
		previous.Status = StatusUnavailable
		return previous
	}
	v := geo.DistanceMeters(a.prev.loc.Coordinate(), a.last.loc.Coordinate()) / dt
	if a.cfg.SpeedCeiling > 0 && v > a.cfg.SpeedCeiling {
		a.log.Warnw("derived speed discarded", map[string]any{"speed": v, "ceiling": a.cfg.SpeedCeiling, "elapsed_s": dt})
		previous.Status = StatusDiscarded
		previous.Source = SourceDerived
		return previous
	}
	a.lastSpeed, a.speedKnown = v, true
	return Reading[float64]{Value: v, Valid: true, Status: StatusOK, Source: SourceDerived}
}

// heartbeat refreshes armed state and flight mode with a single attempt.
func (a *Acquirer) heartbeat(ctx context.Context) {
	if !a.connected {
		return
	}
	hctx := ctx
	if a.retry.Timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, a.retry.Timeout)
		defer cancel()
	}
	msg, err := a.link.Receive(hctx, KindHeartbeat)
	if err != nil {
		if errors.Is(err, ErrLinkDown) {
			a.connected = false
		}
		return
	}
	a.armed, a.mode = msg.Armed, msg.Mode
}
