package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bloodlift/core/dispatch"
	"github.com/kilianp07/bloodlift/core/model"
	coremon "github.com/kilianp07/bloodlift/core/monitoring"
	"github.com/kilianp07/bloodlift/core/telemetry"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLink(t *testing.T, cfg Config) (*VehicleLink, *mockClient, *clock) {
	t.Helper()
	mc := &mockClient{}
	t.Cleanup(useMock(mc))
	if cfg.Broker == "" {
		cfg.Broker = "tcp://localhost:1883"
	}
	l, err := NewVehicleLink(cfg)
	require.NoError(t, err)
	clk := &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	l.now = clk.Now
	return l, mc, clk
}

func push(l *VehicleLink, kind telemetry.MessageKind, body string) {
	l.onTelemetry(nil, mockMessage{topic: l.cfg.vehicleTopic("telemetry", string(kind)), p: []byte(body)})
}

func TestLinkSubscribesWithQoS(t *testing.T) {
	_, mc, _ := newTestLink(t, Config{QoS: map[string]byte{"telemetry": 1, "ack": 2}})
	require.Len(t, mc.subscribed, 2)
	assert.Equal(t, "bloodlift/drone-1/telemetry/+", mc.subscribed[0].topic)
	assert.Equal(t, byte(1), mc.subscribed[0].qos)
	assert.Equal(t, "bloodlift/drone-1/ack", mc.subscribed[1].topic)
	assert.Equal(t, byte(2), mc.subscribed[1].qos)
}

func TestLinkReceive(t *testing.T) {
	l, _, _ := newTestLink(t, Config{})
	assert.False(t, l.Connected(), "no heartbeat yet")

	push(l, telemetry.KindHeartbeat, `{"armed":false,"mode":"STABILIZE"}`)
	push(l, telemetry.KindSysStatus, `{"battery_remaining":40,"voltage":11.1}`)
	push(l, telemetry.KindSysStatus, `{"battery_remaining":55,"voltage":11.6}`)
	require.True(t, l.Connected())

	m, err := l.Receive(context.Background(), telemetry.KindSysStatus)
	require.NoError(t, err)
	require.NotNil(t, m.BatteryRemaining)
	assert.Equal(t, 55.0, *m.BatteryRemaining)
	require.NotNil(t, m.VoltageV)
	assert.Equal(t, 11.6, *m.VoltageV)

	hb, err := l.Receive(context.Background(), telemetry.KindHeartbeat)
	require.NoError(t, err)
	assert.Equal(t, "STABILIZE", hb.Mode)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Receive(ctx, telemetry.KindSysStatus)
	assert.ErrorIs(t, err, telemetry.ErrNoMessage)
}

func TestLinkDropsMalformedTelemetry(t *testing.T) {
	l, _, _ := newTestLink(t, Config{})
	push(l, telemetry.KindHeartbeat, `{}`)
	push(l, telemetry.KindGPSRaw, `not json`)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := l.Receive(ctx, telemetry.KindGPSRaw)
	assert.ErrorIs(t, err, telemetry.ErrNoMessage)
}

func TestLinkHeartbeatTimeout(t *testing.T) {
	l, mc, clk := newTestLink(t, Config{HeartbeatTimeout: 2 * time.Second})
	push(l, telemetry.KindHeartbeat, `{}`)
	require.True(t, l.Connected())

	clk.Advance(3 * time.Second)
	assert.False(t, l.Connected())
	_, err := l.Receive(context.Background(), telemetry.KindGPSRaw)
	assert.ErrorIs(t, err, telemetry.ErrLinkDown)

	err = l.Arm(context.Background())
	assert.ErrorIs(t, err, dispatch.ErrLinkDown)
	assert.Empty(t, mc.commands())
}

func TestLinkCommands(t *testing.T) {
	l, mc, _ := newTestLink(t, Config{VehicleID: "veh1", QoS: map[string]byte{"command": 1}})
	push(l, telemetry.KindHeartbeat, `{}`)
	ctx := context.Background()

	require.NoError(t, l.SetMode(ctx, "GUIDED"))
	require.NoError(t, l.Arm(ctx))
	require.NoError(t, l.Takeoff(ctx, 40))
	require.NoError(t, l.GoTo(ctx, model.Coordinate{Lat: 40.75, Lon: -73.99}, 40))
	require.NoError(t, l.ReturnToLaunch(ctx))

	cmds := mc.commands()
	require.Len(t, cmds, 5)
	assert.Equal(t, "set_mode", cmds[0].Type)
	assert.Equal(t, "GUIDED", cmds[0].Mode)
	assert.Equal(t, 40.0, cmds[2].Altitude)
	assert.Equal(t, 40.75, cmds[3].Lat)
	assert.Equal(t, "return_to_launch", cmds[4].Type)
	for _, c := range cmds {
		assert.Equal(t, "veh1", c.VehicleID)
		assert.NotEmpty(t, c.CommandID)
	}
	assert.Equal(t, "bloodlift/veh1/command", mc.published[0].topic)
	assert.Equal(t, byte(1), mc.published[0].qos)
}

func TestLinkCommandRetry(t *testing.T) {
	l, mc, _ := newTestLink(t, Config{MaxRetries: 1, BackoffMS: 1})
	push(l, telemetry.KindHeartbeat, `{}`)
	mc.publishErrs = []error{fmt.Errorf("net fail"), nil}

	require.NoError(t, l.Arm(context.Background()))
	assert.Len(t, mc.published, 2)
}

type recordMonitor struct {
	mu   sync.Mutex
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.mu.Lock()
	r.err, r.tags = err, tags
	r.mu.Unlock()
}
func (r *recordMonitor) CapturePanic(any, map[string]string) {}
func (r *recordMonitor) Flush(time.Duration)                 {}

func TestLinkCommandFailureCaptured(t *testing.T) {
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(nil)

	l, mc, _ := newTestLink(t, Config{VehicleID: "veh1", MaxRetries: 1, BackoffMS: 1})
	push(l, telemetry.KindHeartbeat, `{}`)
	netErr := errors.New("net fail")
	mc.publishErrs = []error{netErr, netErr}

	err := l.Takeoff(context.Background(), 40)
	require.ErrorIs(t, err, netErr)
	assert.Len(t, mc.published, 2)

	mon.mu.Lock()
	defer mon.mu.Unlock()
	require.Error(t, mon.err)
	assert.Equal(t, "veh1", mon.tags["vehicle_id"])
	assert.Equal(t, "mqtt", mon.tags["module"])
	assert.Equal(t, "takeoff", mon.tags["command"])
}

func TestLinkWaitHeartbeat(t *testing.T) {
	l, _, _ := newTestLink(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.WaitHeartbeat(ctx), telemetry.ErrLinkDown)

	push(l, telemetry.KindHeartbeat, `{}`)
	assert.NoError(t, l.WaitHeartbeat(context.Background()))
}
