// Package simlink provides an in-process simulated vehicle that implements
// the telemetry link and flight controller capabilities. It backs the sim
// link mode, the QA scenarios and the MQTT companion simulator.
package simlink

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/kilianp07/bloodlift/core/dispatch"
	"github.com/kilianp07/bloodlift/core/geo"
	"github.com/kilianp07/bloodlift/core/model"
	"github.com/kilianp07/bloodlift/core/telemetry"
)

// ErrNotArmed is returned for flight commands issued while disarmed.
var ErrNotArmed = errors.New("simlink: vehicle not armed")

// Config describes the simulated vehicle.
type Config struct {
	Home       model.Coordinate `json:"home" koanf:"home"`
	Battery    float64          `json:"battery" koanf:"battery"`
	DrainPerKm float64          `json:"drain_per_km" koanf:"drain_per_km"`
	FixType    int              `json:"fix_type" koanf:"fix_type"`
	Airspeed   float64          `json:"airspeed" koanf:"airspeed"`
	Charging   *bool            `json:"charging,omitempty" koanf:"charging"`
	// ReportPercent sends battery_remaining. When false only the pack
	// voltage is reported.
	ReportPercent bool `json:"report_percent" koanf:"report_percent"`
	// DropRate is the probability that a receive finds no message.
	DropRate float64 `json:"drop_rate" koanf:"drop_rate"`
	// Silent lists message kinds the vehicle never emits.
	Silent []telemetry.MessageKind `json:"silent" koanf:"silent"`
}

// DefaultConfig is a charged vehicle parked at the default home location.
func DefaultConfig() Config {
	return Config{
		Home:          model.Coordinate{Lat: 40.7128, Lon: -74.0060},
		Battery:       80,
		DrainPerKm:    2,
		FixType:       3,
		Airspeed:      12,
		ReportPercent: true,
	}
}

// Drone is a simulated vehicle. Commands take effect immediately.
type Drone struct {
	cfg     Config
	battery *Battery
	silent  map[telemetry.MessageKind]bool

	mu        sync.Mutex
	connected bool
	pos       model.Coordinate
	alt       float64
	heading   float64
	armed     bool
	mode      string
	commands  []string
	failNext  map[string]error
	rng       *rand.Rand
}

// New creates a connected drone on the ground at home.
func New(cfg Config) *Drone {
	d := &Drone{
		cfg: cfg,
		battery: &Battery{
			Percent:    cfg.Battery,
			DrainPerKm: cfg.DrainPerKm,
			Full:       12.6,
			Empty:      10.5,
		},
		silent:    make(map[telemetry.MessageKind]bool),
		connected: true,
		pos:       cfg.Home,
		mode:      "STABILIZE",
		failNext:  make(map[string]error),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, k := range cfg.Silent {
		d.silent[k] = true
	}
	return d
}

// SetConnected simulates losing or regaining the link.
func (d *Drone) SetConnected(up bool) {
	d.mu.Lock()
	d.connected = up
	d.mu.Unlock()
}

// FailNext makes the next command of the given type return err.
func (d *Drone) FailNext(command string, err error) {
	d.mu.Lock()
	d.failNext[command] = err
	d.mu.Unlock()
}

// Commands returns the commands executed so far.
func (d *Drone) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// Position returns the current position and altitude.
func (d *Drone) Position() (model.Coordinate, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos, d.alt
}

// Battery exposes the simulated pack.
func (d *Drone) Battery() *Battery { return d.battery }

func (d *Drone) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Receive builds the requested message from the current state.
func (d *Drone) Receive(ctx context.Context, kind telemetry.MessageKind) (telemetry.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return telemetry.Message{}, telemetry.ErrLinkDown
	}
	if err := ctx.Err(); err != nil {
		return telemetry.Message{}, telemetry.ErrNoMessage
	}
	if d.silent[kind] || (d.cfg.DropRate > 0 && d.rng.Float64() < d.cfg.DropRate) {
		return telemetry.Message{}, fmt.Errorf("%s: %w", kind, telemetry.ErrNoMessage)
	}
	return d.message(kind), nil
}

// Message is Receive without the link checks, used by the MQTT bridge.
func (d *Drone) Message(kind telemetry.MessageKind) telemetry.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.message(kind)
}

func (d *Drone) message(kind telemetry.MessageKind) telemetry.Message {
	m := telemetry.Message{Kind: kind, Armed: d.armed, Mode: d.mode, Received: time.Now()}
	switch kind {
	case telemetry.KindGPSRaw, telemetry.KindGlobalPosition:
		fix := d.cfg.FixType
		m.Lat, m.Lon, m.Alt, m.Heading = d.pos.Lat, d.pos.Lon, d.alt, d.heading
		if kind == telemetry.KindGPSRaw {
			m.FixType = &fix
		}
	case telemetry.KindGPSGlobalOrigin:
		m.Lat, m.Lon = d.cfg.Home.Lat, d.cfg.Home.Lon
	case telemetry.KindSysStatus:
		v := d.battery.Voltage()
		m.VoltageV = &v
		if d.cfg.ReportPercent {
			p := d.battery.Level()
			m.BatteryRemaining = &p
		}
		if d.cfg.Charging != nil {
			c := *d.cfg.Charging
			m.Charging = &c
		}
	case telemetry.KindVFRHUD:
		s := 0.0
		if d.armed && d.alt > 0 {
			s = d.cfg.Airspeed
		}
		m.Airspeed = &s
	}
	return m
}

func (d *Drone) exec(name string, fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return fmt.Errorf("%s: %w", name, dispatch.ErrLinkDown)
	}
	d.commands = append(d.commands, name)
	if err, ok := d.failNext[name]; ok {
		delete(d.failNext, name)
		return err
	}
	return fn()
}

func (d *Drone) SetMode(_ context.Context, mode string) error {
	return d.exec("set_mode", func() error {
		d.mode = mode
		return nil
	})
}

func (d *Drone) Arm(context.Context) error {
	return d.exec("arm", func() error {
		d.armed = true
		return nil
	})
}

func (d *Drone) Takeoff(_ context.Context, altitude float64) error {
	return d.exec("takeoff", func() error {
		if !d.armed {
			return ErrNotArmed
		}
		d.alt = altitude
		return nil
	})
}

func (d *Drone) GoTo(_ context.Context, target model.Coordinate, altitude float64) error {
	return d.exec("goto", func() error {
		if !d.armed {
			return ErrNotArmed
		}
		d.fly(target)
		d.alt = altitude
		return nil
	})
}

func (d *Drone) ReturnToLaunch(context.Context) error {
	return d.exec("return_to_launch", func() error {
		d.mode = "RTL"
		d.fly(d.cfg.Home)
		d.alt, d.armed = 0, false
		return nil
	})
}

// fly must be called with mu held.
func (d *Drone) fly(target model.Coordinate) {
	km := geo.DistanceKm(d.pos, target)
	d.battery.Drain(km)
	d.pos = target
}
