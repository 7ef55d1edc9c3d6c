package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bloodlift/core/events"
	"github.com/kilianp07/bloodlift/core/model"
	"github.com/kilianp07/bloodlift/internal/eventbus"
)

type fakeController struct {
	mu        sync.Mutex
	connected bool
	calls     []string
	failOn    map[string]error
	panicOn   string
	// dropAfter disconnects the link after the named command.
	dropAfter string
}

func newFakeController() *fakeController {
	return &fakeController{connected: true, failOn: map[string]error{}}
}

func (f *fakeController) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeController) call(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.panicOn != "" && len(name) >= len(f.panicOn) && name[:len(f.panicOn)] == f.panicOn {
		panic("controller fault")
	}
	if name == f.dropAfter || (f.dropAfter != "" && len(name) > len(f.dropAfter) && name[:len(f.dropAfter)] == f.dropAfter) {
		f.connected = false
	}
	return f.failOn[name]
}

func (f *fakeController) SetMode(_ context.Context, mode string) error {
	return f.call("mode:" + mode)
}
func (f *fakeController) Arm(context.Context) error { return f.call("arm") }
func (f *fakeController) Takeoff(_ context.Context, alt float64) error {
	return f.call(fmt.Sprintf("takeoff:%.0f", alt))
}
func (f *fakeController) GoTo(_ context.Context, c model.Coordinate, alt float64) error {
	return f.call(fmt.Sprintf("goto:%.4f,%.4f@%.0f", c.Lat, c.Lon, alt))
}
func (f *fakeController) ReturnToLaunch(context.Context) error { return f.call("rtl") }

func (f *fakeController) issued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func testMission() Mission {
	return Mission{
		ID: "m-1",
		Candidate: model.MissionCandidate{
			Request:     model.DeliveryRequest{ID: 5},
			Source:      model.Hospital{ID: 1, Name: "Central", Latitude: 40.7128, Longitude: -74.0060},
			Destination: model.Hospital{ID: 2, Name: "Northside", Latitude: 40.7306, Longitude: -73.9352},
		},
	}
}

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return nil
}

func newTestDispatcher(fc FlightController, opts ...Option) (*Dispatcher, *sleepRecorder) {
	rec := &sleepRecorder{}
	opts = append([]Option{WithSleep(rec.sleep)}, opts...)
	return NewDispatcher(fc, DefaultConfig(), nil, opts...), rec
}

func resetMetrics(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	t.Cleanup(func() { ResetMetrics(nil) })
}

func TestRunIssuesFullSequence(t *testing.T) {
	resetMetrics(t)
	fc := newFakeController()
	d, sleeps := newTestDispatcher(fc)

	res, err := d.Run(context.Background(), testMission())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"mode:GUIDED",
		"arm",
		"takeoff:40",
		"goto:40.7128,-74.0060@40",
		"goto:40.7306,-73.9352@40",
		"rtl",
	}, fc.issued())
	assert.Equal(t, model.PhaseLanded, res.Phase)
	assert.Equal(t, model.PhaseLanded, d.Phase())
	assert.False(t, d.Busy())
	require.Len(t, res.Steps, 6)
	assert.Equal(t, model.PhaseAirborneToDestination, res.Steps[4].Phase)
	cfg := DefaultConfig()
	assert.Equal(t, []time.Duration{cfg.ModeSettle, cfg.ArmSettle, cfg.TakeoffSettle, cfg.LegSettle, cfg.LegSettle, cfg.ReturnSettle}, sleeps.slept)
	assert.Equal(t, 1.0, testutil.ToFloat64(missionsTotal.WithLabelValues("landed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(missionInFlight))
}

func TestCommandFailureContinuesSequence(t *testing.T) {
	resetMetrics(t)
	fc := newFakeController()
	fc.failOn["arm"] = errors.New("prearm check failed")
	d, _ := newTestDispatcher(fc)

	res, err := d.Run(context.Background(), testMission())
	require.NoError(t, err)
	assert.Len(t, fc.issued(), 6)
	assert.Equal(t, 1, res.Failed())
	assert.Equal(t, "prearm check failed", res.Steps[1].Error)
	assert.Equal(t, model.PhaseLanded, res.Phase)
	assert.Equal(t, 1.0, testutil.ToFloat64(stepsTotal.WithLabelValues("arm", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(stepsTotal.WithLabelValues("return_to_launch", "ok")))
}

func TestLinkLossStopsSequence(t *testing.T) {
	resetMetrics(t)
	fc := newFakeController()
	fc.dropAfter = "takeoff"
	d, _ := newTestDispatcher(fc)

	res, err := d.Run(context.Background(), testMission())
	require.ErrorIs(t, err, ErrLinkDown)
	assert.Equal(t, []string{"mode:GUIDED", "arm", "takeoff:40"}, fc.issued())
	assert.Equal(t, model.PhaseError, res.Phase)
	assert.Equal(t, model.PhaseError, d.Phase())
	assert.False(t, d.Busy())
}

func TestLinkLossReportedByCommand(t *testing.T) {
	resetMetrics(t)
	fc := newFakeController()
	fc.failOn["rtl"] = fmt.Errorf("publish: %w", ErrLinkDown)
	d, _ := newTestDispatcher(fc)

	res, err := d.Run(context.Background(), testMission())
	require.ErrorIs(t, err, ErrLinkDown)
	assert.Equal(t, model.PhaseError, res.Phase)
}

func TestBeginGuards(t *testing.T) {
	resetMetrics(t)
	fc := newFakeController()
	d, _ := newTestDispatcher(fc)

	same := testMission()
	same.Candidate.Destination = same.Candidate.Source
	assert.ErrorIs(t, d.Begin(same), ErrSameEndpoints)

	require.NoError(t, d.Begin(testMission()))
	assert.True(t, d.Busy())
	assert.ErrorIs(t, d.Begin(testMission()), ErrBusy)
	cur, ok := d.Current()
	require.True(t, ok)
	assert.Equal(t, 40.0, cur.Altitude)

	res := d.Execute(context.Background())
	require.NoError(t, res.Err)
	assert.Empty(t, fc.issued()[6:])

	fc.connected = false
	assert.ErrorIs(t, d.Begin(testMission()), ErrLinkDown)
	assert.Len(t, fc.issued(), 6)
}

func TestExecuteWithoutBegin(t *testing.T) {
	d, _ := newTestDispatcher(newFakeController())
	res := d.Execute(context.Background())
	assert.ErrorIs(t, res.Err, ErrNotBegun)
	assert.Equal(t, model.PhaseIdle, res.Phase)
}

func TestCancelledContextDoesNotAbort(t *testing.T) {
	resetMetrics(t)
	fc := newFakeController()
	d, _ := newTestDispatcher(fc)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Begin(testMission()))
	cancel()
	res := d.Execute(ctx)
	require.NoError(t, res.Err)
	assert.Len(t, fc.issued(), 6)
}

func TestControllerPanicEndsInError(t *testing.T) {
	resetMetrics(t)
	fc := newFakeController()
	fc.panicOn = "goto"
	d, _ := newTestDispatcher(fc)

	res, err := d.Run(context.Background(), testMission())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "controller fault")
	assert.Equal(t, model.PhaseError, res.Phase)
	assert.False(t, d.Busy())
}

func TestPhaseEventsPublished(t *testing.T) {
	resetMetrics(t)
	bus := eventbus.NewTypedWithBuffer[events.Event](64)
	sub := bus.Subscribe()
	d, _ := newTestDispatcher(newFakeController(), WithBus(bus))

	_, err := d.Run(context.Background(), testMission())
	require.NoError(t, err)
	bus.Close()

	var phases []model.FlightPhase
	steps := 0
	for ev := range sub {
		pc, ok := ev.(events.PhaseChanged)
		require.True(t, ok)
		assert.Equal(t, "m-1", pc.MissionID)
		if pc.Step != "" {
			steps++
			continue
		}
		phases = append(phases, pc.Phase)
	}
	assert.Equal(t, 6, steps)
	assert.Equal(t, []model.FlightPhase{
		model.PhaseArming,
		model.PhaseAirborneToSource,
		model.PhaseAirborneToDestination,
		model.PhaseReturning,
		model.PhaseLanded,
	}, phases)
}
