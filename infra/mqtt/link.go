package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/bloodlift/core/dispatch"
	"github.com/kilianp07/bloodlift/core/model"
	"github.com/kilianp07/bloodlift/core/monitoring"
	"github.com/kilianp07/bloodlift/core/telemetry"
	"github.com/kilianp07/bloodlift/infra/logger"
)

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// wireTelemetry is the JSON body relayed by the companion computer for one
// flight controller message. Units are already converted: degrees, metres,
// volts, percent and m/s.
type wireTelemetry struct {
	Lat              float64  `json:"lat"`
	Lon              float64  `json:"lon"`
	Alt              float64  `json:"alt"`
	Heading          float64  `json:"heading"`
	FixType          *int     `json:"fix_type,omitempty"`
	BatteryRemaining *float64 `json:"battery_remaining,omitempty"`
	Voltage          *float64 `json:"voltage,omitempty"`
	Airspeed         *float64 `json:"airspeed,omitempty"`
	Charging         *bool    `json:"charging,omitempty"`
	Armed            bool     `json:"armed"`
	Mode             string   `json:"mode,omitempty"`
}

// command is published on the vehicle command topic.
type command struct {
	CommandID string  `json:"command_id"`
	VehicleID string  `json:"vehicle_id"`
	Type      string  `json:"type"`
	Mode      string  `json:"mode,omitempty"`
	Altitude  float64 `json:"altitude,omitempty"`
	Lat       float64 `json:"lat,omitempty"`
	Lon       float64 `json:"lon,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// VehicleLink bridges the flight controller through an MQTT broker. It
// implements telemetry.Link and dispatch.FlightController and serialises
// every read and command on a single I/O lock.
type VehicleLink struct {
	cfg     Config
	cli     pahoClient
	log     logger.Logger
	now     func() time.Time
	backoff time.Duration

	io sync.Mutex

	mu            sync.Mutex
	inbox         map[telemetry.MessageKind]chan telemetry.Message
	lastHeartbeat time.Time
}

// NewVehicleLink connects to the broker and subscribes to the vehicle
// telemetry and ack topics.
func NewVehicleLink(cfg Config) (*VehicleLink, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("vehicle_link")
	l := &VehicleLink{
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		backoff: time.Duration(cfg.BackoffMS) * time.Millisecond,
		inbox:   make(map[telemetry.MessageKind]chan telemetry.Message),
	}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected, vehicle %s", cfg.VehicleID)
		l.subscribe(c)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	l.cli = c
	return l, nil
}

func (l *VehicleLink) subscribe(c pahoClient) {
	topic := l.cfg.vehicleTopic("telemetry", "+")
	if token := c.Subscribe(topic, l.cfg.qos("telemetry"), l.onTelemetry); token.Wait() && token.Error() != nil {
		l.log.Errorf("subscribe %s: %v", topic, token.Error())
	}
	ack := l.cfg.vehicleTopic("ack")
	if token := c.Subscribe(ack, l.cfg.qos("ack"), l.onAck); token.Wait() && token.Error() != nil {
		l.log.Errorf("subscribe %s: %v", ack, token.Error())
	}
}

func (l *VehicleLink) onTelemetry(_ paho.Client, msg paho.Message) {
	parts := strings.Split(msg.Topic(), "/")
	kind := telemetry.MessageKind(parts[len(parts)-1])
	var w wireTelemetry
	if err := json.Unmarshal(msg.Payload(), &w); err != nil {
		l.log.Warnf("decode %s: %v", kind, err)
		return
	}
	m := telemetry.Message{
		Kind:             kind,
		Lat:              w.Lat,
		Lon:              w.Lon,
		Alt:              w.Alt,
		Heading:          w.Heading,
		FixType:          w.FixType,
		BatteryRemaining: w.BatteryRemaining,
		VoltageV:         w.Voltage,
		Airspeed:         w.Airspeed,
		Charging:         w.Charging,
		Armed:            w.Armed,
		Mode:             w.Mode,
		Received:         l.now(),
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if kind == telemetry.KindHeartbeat {
		l.lastHeartbeat = m.Received
	}
	ch := l.channel(kind)
	// Latest message wins.
	select {
	case <-ch:
	default:
	}
	ch <- m
}

func (l *VehicleLink) onAck(_ paho.Client, msg paho.Message) {
	var a struct {
		CommandID string `json:"command_id"`
		Result    string `json:"result"`
	}
	if err := json.Unmarshal(msg.Payload(), &a); err != nil {
		l.log.Errorf("failed to decode ack: %v", err)
		return
	}
	l.log.Debugf("ack %s: %s", a.CommandID, a.Result)
}

// channel must be called with mu held.
func (l *VehicleLink) channel(kind telemetry.MessageKind) chan telemetry.Message {
	ch, ok := l.inbox[kind]
	if !ok {
		ch = make(chan telemetry.Message, 1)
		l.inbox[kind] = ch
	}
	return ch
}

// Connected reports whether the broker connection is up and a heartbeat
// arrived within the heartbeat timeout.
func (l *VehicleLink) Connected() bool {
	if l.cli == nil || !l.cli.IsConnected() {
		return false
	}
	if l.cfg.HeartbeatTimeout <= 0 {
		return true
	}
	l.mu.Lock()
	last := l.lastHeartbeat
	l.mu.Unlock()
	return !last.IsZero() && l.now().Sub(last) <= l.cfg.HeartbeatTimeout
}

// Receive waits for the next message of kind until ctx is done. Messages
// older than the heartbeat timeout are skipped.
func (l *VehicleLink) Receive(ctx context.Context, kind telemetry.MessageKind) (telemetry.Message, error) {
	if !l.Connected() {
		return telemetry.Message{}, telemetry.ErrLinkDown
	}
	l.io.Lock()
	defer l.io.Unlock()
	l.mu.Lock()
	ch := l.channel(kind)
	l.mu.Unlock()
	for {
		select {
		case m := <-ch:
			if l.cfg.HeartbeatTimeout > 0 && l.now().Sub(m.Received) > l.cfg.HeartbeatTimeout {
				continue
			}
			return m, nil
		case <-ctx.Done():
			if !l.Connected() {
				return telemetry.Message{}, telemetry.ErrLinkDown
			}
			return telemetry.Message{}, fmt.Errorf("%s: %w", kind, telemetry.ErrNoMessage)
		}
	}
}

// WaitHeartbeat blocks until the link is connected or ctx is done.
func (l *VehicleLink) WaitHeartbeat(ctx context.Context) error {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for !l.Connected() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("no heartbeat from %s: %w", l.cfg.VehicleID, telemetry.ErrLinkDown)
		case <-t.C:
		}
	}
	return nil
}

func (l *VehicleLink) SetMode(ctx context.Context, mode string) error {
	return l.send(ctx, command{Type: "set_mode", Mode: mode})
}

func (l *VehicleLink) Arm(ctx context.Context) error {
	return l.send(ctx, command{Type: "arm"})
}

func (l *VehicleLink) Takeoff(ctx context.Context, altitude float64) error {
	return l.send(ctx, command{Type: "takeoff", Altitude: altitude})
}

func (l *VehicleLink) GoTo(ctx context.Context, target model.Coordinate, altitude float64) error {
	return l.send(ctx, command{Type: "goto", Lat: target.Lat, Lon: target.Lon, Altitude: altitude})
}

func (l *VehicleLink) ReturnToLaunch(ctx context.Context) error {
	return l.send(ctx, command{Type: "return_to_launch"})
}

// send publishes a command with bounded retries. It does not wait for the
// acknowledgement.
func (l *VehicleLink) send(ctx context.Context, cmd command) error {
	if !l.Connected() {
		return fmt.Errorf("%s: %w", cmd.Type, dispatch.ErrLinkDown)
	}
	cmd.CommandID = uuid.NewString()
	cmd.VehicleID = l.cfg.VehicleID
	cmd.Timestamp = l.now().UnixMilli()
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	l.io.Lock()
	defer l.io.Unlock()
	topic := l.cfg.vehicleTopic("command")
	var publishErr error
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		token := l.cli.Publish(topic, l.cfg.qos("command"), false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			l.log.Infof("sent %s command %s to %s", cmd.Type, cmd.CommandID, topic)
			return nil
		}
		l.log.Errorf("publish %s attempt %d failed: %v", cmd.Type, attempt+1, publishErr)
		if attempt < l.cfg.MaxRetries {
			if err := telemetry.SleepContext(ctx, l.backoff*time.Duration(1<<attempt)); err != nil {
				break
			}
		}
	}
	monitoring.CaptureException(publishErr, map[string]string{
		"module":     "mqtt",
		"vehicle_id": l.cfg.VehicleID,
		"command":    cmd.Type,
	})
	return fmt.Errorf("%s command: %w", cmd.Type, publishErr)
}

// Close disconnects from the broker.
func (l *VehicleLink) Close() {
	if l.cli != nil && l.cli.IsConnected() {
		l.cli.Disconnect(250)
	}
}
