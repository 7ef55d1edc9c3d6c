// Package dispatch sequences the flight commands of an approved mission and
// owns the "mission in flight" state.
//
// Commands are fire and forget: each step is followed by a fixed settle
// delay, not by an acknowledgement wait. A failed command is recorded and the
// sequence continues unless the link is down. There is no abort path once a
// sequence has started.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/bloodlift/core/events"
	"github.com/kilianp07/bloodlift/core/logger"
	"github.com/kilianp07/bloodlift/core/metrics"
	"github.com/kilianp07/bloodlift/core/model"
	"github.com/kilianp07/bloodlift/core/monitoring"
	"github.com/kilianp07/bloodlift/internal/eventbus"
)

// Step names a command of the sequence.
type Step string

const (
	StepSetMode         Step = "set_mode"
	StepArm             Step = "arm"
	StepTakeoff         Step = "takeoff"
	StepGoToSource      Step = "goto_source"
	StepGoToDestination Step = "goto_destination"
	StepReturnToLaunch  Step = "return_to_launch"
)

// Mission is an approved candidate handed to the dispatcher.
type Mission struct {
	ID        string
	Candidate model.MissionCandidate
	Altitude  float64
}

// StepResult is the observable outcome of one command.
type StepResult struct {
	Step     Step              `json:"step"`
	Phase    model.FlightPhase `json:"phase"`
	Err      error             `json:"-"`
	Error    string            `json:"error,omitempty"`
	Started  time.Time         `json:"started"`
	Duration time.Duration     `json:"duration"`
}

// Result summarises a completed sequence.
type Result struct {
	MissionID string            `json:"mission_id"`
	Phase     model.FlightPhase `json:"phase"`
	Steps     []StepResult      `json:"steps"`
	Err       error             `json:"-"`
}

// Failed counts steps that returned an error.
func (r Result) Failed() int {
	n := 0
	for _, s := range r.Steps {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// Dispatcher runs one mission at a time against a FlightController.
type Dispatcher struct {
	fc    FlightController
	cfg   Config
	log   logger.Logger
	bus   *eventbus.TypedBus[events.Event]
	rec   metrics.DispatchStepRecorder
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu       sync.Mutex
	phase    model.FlightPhase
	mission  *Mission
	steps    []StepResult
	inFlight bool
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithSleep replaces the settle delay implementation.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = fn }
}

// WithBus publishes PhaseChanged events on bus.
func WithBus(bus *eventbus.TypedBus[events.Event]) Option {
	return func(d *Dispatcher) { d.bus = bus }
}

// WithRecorder exports step outcomes to a metrics sink.
func WithRecorder(rec metrics.DispatchStepRecorder) Option {
	return func(d *Dispatcher) { d.rec = rec }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(d *Dispatcher) { d.now = now } }

// NewDispatcher creates an idle Dispatcher.
func NewDispatcher(fc FlightController, cfg Config, log logger.Logger, opts ...Option) *Dispatcher {
	if log == nil {
		log = logger.Nop{}
	}
	d := &Dispatcher{
		fc:    fc,
		cfg:   cfg,
		log:   log,
		rec:   metrics.NopSink{},
		sleep: sleepContext,
		now:   time.Now,
		phase: model.PhaseIdle,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Phase returns the current phase.
func (d *Dispatcher) Phase() model.FlightPhase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// Busy reports whether a mission is in flight.
func (d *Dispatcher) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

// Current returns the mission in flight or the last one run.
func (d *Dispatcher) Current() (Mission, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mission == nil {
		return Mission{}, false
	}
	return *d.mission, true
}

// Steps returns the step results of the current or last mission.
func (d *Dispatcher) Steps() []StepResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]StepResult(nil), d.steps...)
}

// Begin takes ownership of m. It fails with ErrBusy while another mission is
// in flight, and rejects same-endpoint missions and a down link before any
// command is issued.
func (d *Dispatcher) Begin(m Mission) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inFlight {
		return ErrBusy
	}
	if m.Candidate.SameEndpoints() {
		return ErrSameEndpoints
	}
	if !d.fc.Connected() {
		return ErrLinkDown
	}
	if m.Altitude <= 0 {
		m.Altitude = d.cfg.CruiseAltitude
	}
	d.mission = &m
	d.steps = nil
	d.inFlight = true
	d.phase = model.PhaseIdle
	missionInFlight.Set(1)
	return nil
}

// Run is Begin followed by Execute.
func (d *Dispatcher) Run(ctx context.Context, m Mission) (Result, error) {
	if err := d.Begin(m); err != nil {
		return Result{MissionID: m.ID, Phase: d.Phase()}, err
	}
	res := d.Execute(ctx)
	return res, res.Err
}

type step struct {
	name   Step
	phase  model.FlightPhase
	settle time.Duration
	do     func(ctx context.Context) error
}

func (d *Dispatcher) plan(m Mission) []step {
	src := m.Candidate.Source.Coordinate()
	dst := m.Candidate.Destination.Coordinate()
	return []step{
		{StepSetMode, model.PhaseArming, d.cfg.ModeSettle, func(ctx context.Context) error { return d.fc.SetMode(ctx, d.cfg.GuidedMode) }},
		{StepArm, model.PhaseArming, d.cfg.ArmSettle, d.fc.Arm},
		{StepTakeoff, model.PhaseAirborneToSource, d.cfg.TakeoffSettle, func(ctx context.Context) error { return d.fc.Takeoff(ctx, m.Altitude) }},
		{StepGoToSource, model.PhaseAirborneToSource, d.cfg.LegSettle, func(ctx context.Context) error { return d.fc.GoTo(ctx, src, m.Altitude) }},
		{StepGoToDestination, model.PhaseAirborneToDestination, d.cfg.LegSettle, func(ctx context.Context) error { return d.fc.GoTo(ctx, dst, m.Altitude) }},
		{StepReturnToLaunch, model.PhaseReturning, d.cfg.ReturnSettle, d.fc.ReturnToLaunch},
	}
}

// Execute issues the command sequence of the begun mission. Caller
// cancellation does not interrupt a started sequence.
func (d *Dispatcher) Execute(ctx context.Context) Result {
	d.mu.Lock()
	if !d.inFlight || d.mission == nil {
		d.mu.Unlock()
		return Result{Phase: d.Phase(), Err: ErrNotBegun}
	}
	m := *d.mission
	d.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	d.log.Infof("dispatching mission %s: request %d from %s to %s at %.0fm", m.ID, m.Candidate.Request.ID, m.Candidate.Source.Name, m.Candidate.Destination.Name, m.Altitude)
	runErr := d.runSteps(ctx, m)

	final := model.PhaseLanded
	if runErr != nil {
		final = model.PhaseError
	}
	d.setPhase(m, final)
	missionsTotal.WithLabelValues(string(final)).Inc()

	d.mu.Lock()
	d.inFlight = false
	steps := append([]StepResult(nil), d.steps...)
	d.mu.Unlock()
	missionInFlight.Set(0)

	res := Result{MissionID: m.ID, Phase: final, Steps: steps, Err: runErr}
	if runErr != nil {
		d.log.Errorf("mission %s aborted: %v", m.ID, runErr)
	} else if n := res.Failed(); n > 0 {
		d.log.Warnf("mission %s sequence finished with %d failed commands", m.ID, n)
	} else {
		d.log.Infof("mission %s sequence finished", m.ID)
	}
	return res
}

// runSteps issues every step in order. It stops early only when the link
// is down. A panic inside the controller ends the sequence in error.
func (d *Dispatcher) runSteps(ctx context.Context, m Mission) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = monitoring.CapturePanic(r, map[string]string{"component": "dispatch", "mission": m.ID})
			d.log.Errorf("dispatch panic: %v", r)
		}
	}()
	for _, st := range d.plan(m) {
		if !d.fc.Connected() {
			d.record(m, StepResult{Step: st.name, Phase: model.PhaseError, Err: ErrLinkDown, Started: d.now()})
			return ErrLinkDown
		}
		d.setPhase(m, st.phase)
		res := d.issue(ctx, st)
		d.record(m, res)
		if res.Err != nil && (errors.Is(res.Err, ErrLinkDown) || !d.fc.Connected()) {
			return ErrLinkDown
		}
		if err := d.sleep(ctx, st.settle); err != nil {
			d.log.Warnf("settle after %s interrupted: %v", st.name, err)
		}
	}
	return nil
}

func (d *Dispatcher) issue(ctx context.Context, st step) StepResult {
	cctx := ctx
	if d.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, d.cfg.CommandTimeout)
		defer cancel()
	}
	start := d.now()
	err := st.do(cctx)
	res := StepResult{Step: st.name, Phase: st.phase, Err: err, Started: start, Duration: d.now().Sub(start)}
	stepDuration.WithLabelValues(string(st.name)).Observe(res.Duration.Seconds())
	if err != nil {
		res.Error = err.Error()
		stepsTotal.WithLabelValues(string(st.name), "error").Inc()
		d.log.Errorf("command %s failed: %v", st.name, err)
		monitoring.CaptureException(fmt.Errorf("command %s: %w", st.name, err), map[string]string{"component": "dispatch", "step": string(st.name)})
	} else {
		stepsTotal.WithLabelValues(string(st.name), "ok").Inc()
		d.log.Debugf("command %s issued", st.name)
	}
	return res
}

func (d *Dispatcher) record(m Mission, res StepResult) {
	if res.Err != nil && res.Error == "" {
		res.Error = res.Err.Error()
	}
	d.mu.Lock()
	d.steps = append(d.steps, res)
	d.mu.Unlock()
	if err := d.rec.RecordDispatchStep(metrics.DispatchStepEvent{
		MissionID: m.ID,
		Step:      string(res.Step),
		Phase:     string(res.Phase),
		Err:       res.Error,
		Duration:  res.Duration,
		Time:      res.Started,
	}); err != nil {
		d.log.Errorf("dispatch metrics error: %v", err)
	}
	d.publish(events.PhaseChanged{MissionID: m.ID, RequestID: m.Candidate.Request.ID, Phase: res.Phase, Step: string(res.Step), Err: res.Error, At: d.now()})
}

func (d *Dispatcher) setPhase(m Mission, p model.FlightPhase) {
	d.mu.Lock()
	changed := d.phase != p
	d.phase = p
	d.mu.Unlock()
	if changed {
		d.log.Infof("mission %s phase %s", m.ID, p)
		d.publish(events.PhaseChanged{MissionID: m.ID, RequestID: m.Candidate.Request.ID, Phase: p, At: d.now()})
	}
}

func (d *Dispatcher) publish(ev events.Event) {
	if d.bus != nil {
		d.bus.Publish(ev)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
