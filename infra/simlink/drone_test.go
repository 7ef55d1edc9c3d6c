package simlink

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bloodlift/core/dispatch"
	"github.com/kilianp07/bloodlift/core/geo"
	"github.com/kilianp07/bloodlift/core/telemetry"
)

func TestDroneTelemetryThroughAcquirer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Battery = 64
	d := New(cfg)
	acq := telemetry.NewAcquirer(d, telemetry.DefaultConfig())

	snap := acq.Snapshot(context.Background())
	assert.True(t, snap.Connected)
	require.NotNil(t, snap.Location)
	assert.InDelta(t, cfg.Home.Lat, snap.Location.Lat, 1e-9)
	assert.Equal(t, 64.0, snap.Battery)
	assert.True(t, snap.BatteryKnown)
	assert.Equal(t, "STABILIZE", snap.Mode)
}

func TestDroneVoltageOnlyBattery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Battery = 50
	cfg.ReportPercent = false
	d := New(cfg)
	r := telemetry.NewAcquirer(d, telemetry.DefaultConfig()).Battery(context.Background())
	require.True(t, r.Valid)
	assert.Equal(t, telemetry.SourceDerived, r.Source)
	assert.InDelta(t, 50, r.Value, 0.01)
}

func TestDroneSilentKind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Silent = []telemetry.MessageKind{telemetry.KindSysStatus}
	d := New(cfg)
	_, err := d.Receive(context.Background(), telemetry.KindSysStatus)
	assert.ErrorIs(t, err, telemetry.ErrNoMessage)
}

func TestDroneFlightCommands(t *testing.T) {
	d := New(DefaultConfig())
	ctx := context.Background()
	target := geo.Offset(d.cfg.Home, 5, 0)

	assert.ErrorIs(t, d.Takeoff(ctx, 40), ErrNotArmed)
	require.NoError(t, d.SetMode(ctx, "GUIDED"))
	require.NoError(t, d.Arm(ctx))
	require.NoError(t, d.Takeoff(ctx, 40))
	require.NoError(t, d.GoTo(ctx, target, 40))

	pos, alt := d.Position()
	assert.Equal(t, target, pos)
	assert.Equal(t, 40.0, alt)
	assert.InDelta(t, 70, d.Battery().Level(), 0.1)

	require.NoError(t, d.ReturnToLaunch(ctx))
	pos, alt = d.Position()
	assert.Equal(t, d.cfg.Home, pos)
	assert.Zero(t, alt)
	assert.Equal(t, []string{"takeoff", "set_mode", "arm", "takeoff", "goto", "return_to_launch"}, d.Commands())
}

func TestDroneLinkDown(t *testing.T) {
	d := New(DefaultConfig())
	d.SetConnected(false)
	_, err := d.Receive(context.Background(), telemetry.KindHeartbeat)
	assert.ErrorIs(t, err, telemetry.ErrLinkDown)
	assert.ErrorIs(t, d.Arm(context.Background()), dispatch.ErrLinkDown)
	assert.Empty(t, d.Commands())
}

func TestDroneFailNext(t *testing.T) {
	d := New(DefaultConfig())
	boom := errors.New("boom")
	d.FailNext("arm", boom)
	assert.ErrorIs(t, d.Arm(context.Background()), boom)
	assert.NoError(t, d.Arm(context.Background()))
}

func TestBatteryClamp(t *testing.T) {
	b := &Battery{Percent: 10, DrainPerKm: 2, Full: 12.6, Empty: 10.5}
	assert.Equal(t, 0.0, b.Drain(20))
	assert.Equal(t, 10.5, b.Voltage())
	assert.Equal(t, 100.0, b.Charge(150))
	assert.InDelta(t, 12.6, b.Voltage(), 1e-9)
}

func TestBridgeExecute(t *testing.T) {
	d := New(DefaultConfig())
	b := &Bridge{Drone: d}
	ctx := context.Background()
	require.NoError(t, b.Execute(ctx, "set_mode", "GUIDED", 0, d.cfg.Home))
	require.NoError(t, b.Execute(ctx, "arm", "", 0, d.cfg.Home))
	assert.Error(t, b.Execute(ctx, "flip", "", 0, d.cfg.Home))

	w := wire(d.Message(telemetry.KindSysStatus))
	assert.Equal(t, 80.0, w["battery_remaining"])
	assert.Equal(t, true, w["armed"])
}
