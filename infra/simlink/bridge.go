package simlink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/bloodlift/core/model"
	"github.com/kilianp07/bloodlift/core/telemetry"
	"github.com/kilianp07/bloodlift/infra/logger"
)

// telemetryKinds are published on every bridge tick.
var telemetryKinds = []telemetry.MessageKind{
	telemetry.KindHeartbeat,
	telemetry.KindGPSRaw,
	telemetry.KindGlobalPosition,
	telemetry.KindSysStatus,
	telemetry.KindVFRHUD,
}

// Bridge plays the companion computer for a simulated drone: it publishes
// telemetry on <prefix>/<vehicle>/telemetry/<KIND>, executes commands from
// <prefix>/<vehicle>/command and acknowledges them on <prefix>/<vehicle>/ack.
type Bridge struct {
	Drone     *Drone
	Client    paho.Client
	Prefix    string
	VehicleID string
	Interval  time.Duration
	log       logger.Logger
}

// NewBridge creates a bridge publishing every interval.
func NewBridge(d *Drone, cli paho.Client, prefix, vehicleID string, interval time.Duration) *Bridge {
	if interval <= 0 {
		interval = time.Second
	}
	return &Bridge{Drone: d, Client: cli, Prefix: strings.TrimSuffix(prefix, "/"), VehicleID: vehicleID, Interval: interval, log: logger.New("sim_bridge")}
}

func (b *Bridge) topic(parts ...string) string {
	return strings.Join(append([]string{b.Prefix, b.VehicleID}, parts...), "/")
}

// Run subscribes to commands and publishes telemetry until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	if token := b.Client.Subscribe(b.topic("command"), 1, b.onCommand(ctx)); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	t := time.NewTicker(b.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			b.PublishTelemetry()
		}
	}
}

// PublishTelemetry sends one message of every kind while the drone is
// connected.
func (b *Bridge) PublishTelemetry() {
	if !b.Drone.Connected() {
		return
	}
	for _, kind := range telemetryKinds {
		if b.Drone.silent[kind] {
			continue
		}
		payload, err := json.Marshal(wire(b.Drone.Message(kind)))
		if err != nil {
			b.log.Errorf("marshal %s: %v", kind, err)
			continue
		}
		b.Client.Publish(b.topic("telemetry", string(kind)), 0, false, payload)
	}
}

type wireCommand struct {
	CommandID string  `json:"command_id"`
	Type      string  `json:"type"`
	Mode      string  `json:"mode"`
	Altitude  float64 `json:"altitude"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

func (b *Bridge) onCommand(ctx context.Context) func(paho.Client, paho.Message) {
	return func(_ paho.Client, msg paho.Message) {
		var c wireCommand
		if err := json.Unmarshal(msg.Payload(), &c); err != nil {
			b.log.Warnf("decode command: %v", err)
			return
		}
		err := b.Execute(ctx, c.Type, c.Mode, c.Altitude, model.Coordinate{Lat: c.Lat, Lon: c.Lon})
		result := "accepted"
		if err != nil {
			result = err.Error()
			b.log.Warnf("command %s %s failed: %v", c.CommandID, c.Type, err)
		}
		ack, _ := json.Marshal(map[string]string{"command_id": c.CommandID, "result": result})
		b.Client.Publish(b.topic("ack"), 1, false, ack)
	}
}

// Execute applies a decoded command to the drone.
func (b *Bridge) Execute(ctx context.Context, typ, mode string, altitude float64, target model.Coordinate) error {
	switch typ {
	case "set_mode":
		return b.Drone.SetMode(ctx, mode)
	case "arm":
		return b.Drone.Arm(ctx)
	case "takeoff":
		return b.Drone.Takeoff(ctx, altitude)
	case "goto":
		return b.Drone.GoTo(ctx, target, altitude)
	case "return_to_launch":
		return b.Drone.ReturnToLaunch(ctx)
	default:
		return fmt.Errorf("unknown command %q", typ)
	}
}

func wire(m telemetry.Message) map[string]any {
	out := map[string]any{"armed": m.Armed, "mode": m.Mode}
	if m.Lat != 0 || m.Lon != 0 {
		out["lat"], out["lon"], out["alt"], out["heading"] = m.Lat, m.Lon, m.Alt, m.Heading
	}
	if m.FixType != nil {
		out["fix_type"] = *m.FixType
	}
	if m.BatteryRemaining != nil {
		out["battery_remaining"] = *m.BatteryRemaining
	}
	if m.VoltageV != nil {
		out["voltage"] = *m.VoltageV
	}
	if m.Airspeed != nil {
		out["airspeed"] = *m.Airspeed
	}
	if m.Charging != nil {
		out["charging"] = *m.Charging
	}
	return out
}
