// Package mission ties scheduling, the safety gate and the dispatcher
// together behind a single-flight guard so that at most one mission is
// dispatched at a time.
package mission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/bloodlift/core/dispatch"
	"github.com/kilianp07/bloodlift/core/events"
	"github.com/kilianp07/bloodlift/core/logger"
	"github.com/kilianp07/bloodlift/core/metrics"
	"github.com/kilianp07/bloodlift/core/missionlog"
	"github.com/kilianp07/bloodlift/core/model"
	"github.com/kilianp07/bloodlift/core/monitoring"
	"github.com/kilianp07/bloodlift/core/records"
	"github.com/kilianp07/bloodlift/core/safety"
	"github.com/kilianp07/bloodlift/core/scheduler"
	"github.com/kilianp07/bloodlift/core/status"
	"github.com/kilianp07/bloodlift/internal/eventbus"
)

// Outcome is the result of a scheduling pass.
type Outcome string

const (
	OutcomeBusy           Outcome = "busy"
	OutcomeNoMission      Outcome = "no_mission"
	OutcomeInvalidMission Outcome = "invalid_mission"
	OutcomeSafetyRejected Outcome = "safety_rejected"
	OutcomeDispatchFailed Outcome = "dispatch_failed"
	OutcomeDispatched     Outcome = "dispatched"
	OutcomeStoreError     Outcome = "store_error"
)

// ErrUnknownRequest is returned by Complete for a request that is not
// scheduled.
var ErrUnknownRequest = errors.New("request is not scheduled")

// SnapshotSource provides the latest telemetry snapshot. *telemetry.Poller
// implements it.
type SnapshotSource interface {
	Latest() (model.TelemetrySnapshot, bool)
}

// Recorder exports mission and safety outcomes.
type Recorder interface {
	metrics.MissionRecorder
	metrics.SafetyRecorder
}

// Config holds mission level parameters.
type Config struct {
	// Altitude is the planned cruise altitude checked by the safety gate
	// and flown by the dispatcher.
	Altitude float64
	// Home is reported in status output and used as the mission start when
	// the vehicle position is unknown.
	Home model.Coordinate
}

// Result describes one scheduling pass.
type Result struct {
	Outcome   Outcome                 `json:"outcome"`
	MissionID string                  `json:"mission_id,omitempty"`
	Candidate *model.MissionCandidate `json:"candidate,omitempty"`
	Decision  *safety.Decision        `json:"decision,omitempty"`
	Err       error                   `json:"-"`
}

// Manager owns the mission state.
type Manager struct {
	cfg       Config
	store     records.Store
	sched     *scheduler.Scheduler
	gate      *safety.Gate
	disp      *dispatch.Dispatcher
	weather   safety.WeatherProvider
	snapshots SnapshotSource
	bus       *eventbus.TypedBus[events.Event]
	journal   missionlog.Store
	rec       Recorder
	log       logger.Logger
	now       func() time.Time
	newID     func() string

	triggers chan string
	wg       sync.WaitGroup

	// mu is the single-flight guard around selection and hand-off.
	mu sync.Mutex
	// state guards the fields below, which status reads.
	state      sync.RWMutex
	lastSafety *safety.Decision
	active     *dispatch.Mission
}

// Option customises a Manager.
type Option func(*Manager)

// WithBus publishes snapshots and decisions on bus.
func WithBus(bus *eventbus.TypedBus[events.Event]) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithJournal appends decisions and step results to a mission log.
func WithJournal(s missionlog.Store) Option { return func(m *Manager) { m.journal = s } }

// WithRecorder exports outcomes to a metrics sink.
func WithRecorder(r Recorder) Option { return func(m *Manager) { m.rec = r } }

// WithWeather replaces the weather provider.
func WithWeather(w safety.WeatherProvider) Option { return func(m *Manager) { m.weather = w } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithIDGenerator replaces the mission id generator.
func WithIDGenerator(fn func() string) Option { return func(m *Manager) { m.newID = fn } }

// NewManager creates a Manager. Weather defaults to calm conditions with
// unlimited visibility only when no provider is supplied.
func NewManager(cfg Config, store records.Store, sched *scheduler.Scheduler, gate *safety.Gate, disp *dispatch.Dispatcher, snaps SnapshotSource, log logger.Logger, opts ...Option) *Manager {
	if log == nil {
		log = logger.Nop{}
	}
	m := &Manager{
		cfg:       cfg,
		store:     store,
		sched:     sched,
		gate:      gate,
		disp:      disp,
		snapshots: snaps,
		weather:   safety.StaticWeather{Visibility: 10000},
		journal:   missionlog.NopStore{},
		rec:       metrics.NopSink{},
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
		triggers:  make(chan string, 1),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Trigger requests a scheduling pass. Triggers arriving while one is
// pending are coalesced.
func (m *Manager) Trigger(reason string) {
	select {
	case m.triggers <- reason:
	default:
		m.log.Debugf("scheduling pass already pending, coalescing %q", reason)
	}
}

// Run serialises scheduling passes from Trigger and from the external
// channel until ctx is done. It waits for a running dispatch to finish
// before returning.
func (m *Manager) Run(ctx context.Context, external <-chan string) {
	defer m.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-m.triggers:
			m.Process(ctx, reason)
		case reason, ok := <-external:
			if !ok {
				external = nil
				continue
			}
			m.Process(ctx, reason)
		}
	}
}

// Wait blocks until every dispatch goroutine has returned.
func (m *Manager) Wait() { m.wg.Wait() }

// Process runs one guarded scheduling pass and, when a mission is approved,
// starts its flight sequence in the background.
func (m *Manager) Process(ctx context.Context, reason string) Result {
	m.mu.Lock()
	res := m.process(ctx, reason)
	m.mu.Unlock()

	passesTotal.WithLabelValues(string(res.Outcome)).Inc()
	if res.Outcome != OutcomeBusy {
		m.publishSnapshots(ctx)
	}
	return res
}

func (m *Manager) process(ctx context.Context, reason string) Result {
	if m.disp.Busy() {
		m.log.Debugf("pass %q skipped: mission in flight", reason)
		return Result{Outcome: OutcomeBusy}
	}
	if !m.sched.Supersede() {
		// The dispatcher is idle, so a dispatched candidate still cached
		// belongs to a flight that has ended.
		m.sched.Clear()
	}

	reqs, inv, hospitals, err := m.load(ctx)
	if err != nil {
		m.log.Errorf("pass %q: load records: %v", reason, err)
		return Result{Outcome: OutcomeStoreError, Err: err}
	}
	snap, _ := m.snapshots.Latest()
	avail := scheduler.AvailabilityFromSnapshot(snap)

	cand, ok := m.sched.SelectBestMission(reqs, inv, hospitals, avail)
	if !ok {
		return Result{Outcome: OutcomeNoMission}
	}
	id := m.newID()
	m.journalAppend(ctx, missionlog.Record{MissionID: id, RequestID: cand.Request.ID, Event: missionlog.EventSelected, Candidate: &cand, Message: reason})

	if cand.SameEndpoints() {
		m.log.Warnw("mission rejected: source equals destination", map[string]any{
			"mission_id": id, "request_id": cand.Request.ID, "hospital_id": cand.Source.ID,
		})
		m.reject(ctx, id, cand, missionlog.EventInvalid, "source equals destination")
		return m.resolved(id, cand, OutcomeInvalidMission, nil, nil)
	}

	d := m.evaluate(ctx, id, snap, cand)
	if !d.Safe {
		safetyRejects.WithLabelValues(string(d.Check)).Inc()
		m.reject(ctx, id, cand, missionlog.EventRejected, d.Reason)
		return m.resolved(id, cand, OutcomeSafetyRejected, &d, nil)
	}

	if err := m.store.UpdateRequestStatus(ctx, cand.Request.ID, model.StatusScheduled); err != nil {
		m.log.Errorf("mission %s: mark request %d scheduled: %v", id, cand.Request.ID, err)
		m.sched.Clear()
		return m.resolved(id, cand, OutcomeStoreError, &d, err)
	}

	mission := dispatch.Mission{ID: id, Candidate: cand, Altitude: m.cfg.Altitude}
	if err := m.disp.Begin(mission); err != nil {
		m.log.Errorf("mission %s: dispatch refused: %v", id, err)
		m.setStatus(ctx, cand.Request.ID, model.StatusError)
		m.sched.Clear()
		m.journalAppend(ctx, missionlog.Record{MissionID: id, RequestID: cand.Request.ID, Event: missionlog.EventFailed, Message: err.Error()})
		return m.resolved(id, cand, OutcomeDispatchFailed, &d, err)
	}
	m.sched.MarkDispatched()
	m.state.Lock()
	m.active = &mission
	m.state.Unlock()
	m.journalAppend(ctx, missionlog.Record{MissionID: id, RequestID: cand.Request.ID, Event: missionlog.EventDispatched, Phase: model.PhaseIdle})

	m.wg.Add(1)
	go m.fly(ctx, mission)
	return m.resolved(id, cand, OutcomeDispatched, &d, nil)
}

func (m *Manager) load(ctx context.Context) ([]model.DeliveryRequest, []model.InventoryRecord, scheduler.Hospitals, error) {
	reqs, err := m.store.ListPendingRequests(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list pending requests: %w", err)
	}
	inv, err := m.store.ListInventory(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list inventory: %w", err)
	}
	hs, err := m.store.ListHospitals(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list hospitals: %w", err)
	}
	return reqs, inv, scheduler.IndexHospitals(hs), nil
}

// evaluate checks the whole route: the vehicle position (home when
// unknown) to the source, then to the destination.
func (m *Manager) evaluate(ctx context.Context, id string, snap model.TelemetrySnapshot, cand model.MissionCandidate) safety.Decision {
	start := m.cfg.Home
	if snap.Location != nil {
		start = snap.Location.Coordinate()
	}
	params := safety.MissionParams{
		BatteryPercent:  snap.Battery,
		Start:           start,
		Destination:     cand.Destination.Coordinate(),
		Via:             []model.Coordinate{cand.Source.Coordinate()},
		PlannedAltitude: m.cfg.Altitude,
		RouteDistanceKm: cand.TotalDistance,
	}
	var d safety.Decision
	if w, err := m.weather.Current(ctx); err != nil {
		m.log.Warnf("mission %s: weather unavailable: %v", id, err)
		d = safety.Decision{Check: safety.CheckWeather, Reason: "weather unavailable: " + err.Error(), Params: params}
	} else {
		params.WindSpeed, params.Visibility = w.WindSpeed, w.Visibility
		d = m.gate.Evaluate(params)
	}

	m.state.Lock()
	m.lastSafety = &d
	m.state.Unlock()

	at := m.now()
	if err := m.rec.RecordSafetyDecision(metrics.SafetyEvent{
		MissionID:       id,
		Safe:            d.Safe,
		Check:           string(d.Check),
		Reason:          d.Reason,
		DistanceKm:      d.DistanceKm,
		BatteryPercent:  params.BatteryPercent,
		WindSpeed:       params.WindSpeed,
		Visibility:      params.Visibility,
		PlannedAltitude: params.PlannedAltitude,
		Time:            at,
	}); err != nil {
		m.log.Warnf("record safety decision: %v", err)
	}
	m.publish(events.SafetyEvaluated{MissionID: id, RequestID: cand.Request.ID, Decision: d, At: at})
	return d
}

func (m *Manager) reject(ctx context.Context, id string, cand model.MissionCandidate, ev missionlog.Event, reason string) {
	m.setStatus(ctx, cand.Request.ID, model.StatusError)
	m.sched.Clear()
	rec := missionlog.Record{MissionID: id, RequestID: cand.Request.ID, Event: ev, Message: reason}
	if ev == missionlog.EventRejected {
		m.state.RLock()
		rec.Safety = m.lastSafety
		m.state.RUnlock()
	}
	m.journalAppend(ctx, rec)
}

func (m *Manager) resolved(id string, cand model.MissionCandidate, o Outcome, d *safety.Decision, err error) Result {
	at := m.now()
	if rerr := m.rec.RecordMission(metrics.MissionEvent{
		MissionID:       id,
		RequestID:       cand.Request.ID,
		SourceID:        cand.Source.ID,
		DestinationID:   cand.Destination.ID,
		Urgency:         cand.Request.Urgency,
		Outcome:         string(o),
		PriorityScore:   cand.PriorityScore,
		TotalDistanceKm: cand.TotalDistance,
		Time:            at,
	}); rerr != nil {
		m.log.Warnf("record mission: %v", rerr)
	}
	m.publish(events.MissionResolved{MissionID: id, Outcome: string(o), Candidate: cand, At: at})
	return Result{Outcome: o, MissionID: id, Candidate: &cand, Decision: d, Err: err}
}

// fly executes the begun mission. Losing the link mid-sequence marks the
// request error. Otherwise the request stays scheduled until delivery is
// confirmed through Complete.
func (m *Manager) fly(ctx context.Context, mission dispatch.Mission) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			err := monitoring.CapturePanic(r, map[string]string{"component": "mission", "mission_id": mission.ID})
			m.log.Errorf("mission %s: %v", mission.ID, err)
		}
	}()
	ctx = context.WithoutCancel(ctx)
	res := m.disp.Execute(ctx)
	reqID := mission.Candidate.Request.ID
	m.mu.Lock()
	if cur, ok := m.sched.Current(); ok && cur.Request.ID == reqID {
		m.sched.Clear()
	}
	m.mu.Unlock()
	for _, st := range res.Steps {
		m.journalAppend(ctx, missionlog.Record{
			MissionID: mission.ID,
			RequestID: reqID,
			Event:     missionlog.EventStep,
			Phase:     st.Phase,
			Step:      &missionlog.Step{Name: string(st.Step), Phase: st.Phase, Error: st.Error, Duration: st.Duration},
		})
	}
	end := missionlog.Record{MissionID: mission.ID, RequestID: reqID, Event: missionlog.EventFinished, Phase: res.Phase}
	if res.Err != nil {
		end.Message = res.Err.Error()
		m.setStatus(ctx, reqID, model.StatusError)
	}
	m.journalAppend(ctx, end)
	m.publishSnapshots(ctx)
	// Requests that arrived during the flight were skipped as busy.
	m.Trigger("mission_finished")
}

// Complete marks a scheduled request completed once delivery is confirmed.
func (m *Manager) Complete(ctx context.Context, requestID int64) error {
	req, err := m.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != model.StatusScheduled {
		return fmt.Errorf("request %d is %s: %w", requestID, req.Status, ErrUnknownRequest)
	}
	if err := m.store.UpdateRequestStatus(ctx, requestID, model.StatusCompleted); err != nil {
		return err
	}
	m.state.Lock()
	var missionID string
	if m.active != nil && m.active.Candidate.Request.ID == requestID {
		missionID = m.active.ID
		if !m.disp.Busy() {
			m.active = nil
		}
	}
	m.state.Unlock()
	if cur, ok := m.sched.Current(); ok && cur.Request.ID == requestID {
		m.sched.Clear()
	}
	m.log.Infof("request %d delivered", requestID)
	m.journalAppend(ctx, missionlog.Record{MissionID: missionID, RequestID: requestID, Event: missionlog.EventCompleted})
	m.publishSnapshots(ctx)
	return nil
}

// Status aggregates the current drone status.
func (m *Manager) Status(context.Context) status.DroneStatus {
	snap, _ := m.snapshots.Latest()
	in := status.Input{
		Snapshot:     snap,
		Phase:        m.disp.Phase(),
		Availability: m.sched.Config().Assess(scheduler.AvailabilityFromSnapshot(snap)),
		Home:         m.cfg.Home,
	}
	m.state.RLock()
	if m.lastSafety != nil {
		d := *m.lastSafety
		in.LastSafety = &d
	}
	if m.active != nil && (m.disp.Busy() || in.Phase.InFlight()) {
		c := m.active.Candidate
		in.Mission, in.MissionID = &c, m.active.ID
	}
	m.state.RUnlock()
	if in.Mission == nil {
		if c, ok := m.sched.Current(); ok {
			in.Mission = &c
		}
	}
	return status.Aggregate(in)
}

// Queue returns every feasible pending mission sorted by ascending score.
func (m *Manager) Queue(ctx context.Context) ([]model.MissionCandidate, error) {
	reqs, inv, hospitals, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	snap, _ := m.snapshots.Latest()
	var drone *model.Coordinate
	if snap.Location != nil {
		c := snap.Location.Coordinate()
		drone = &c
	}
	return m.sched.Queue(reqs, inv, hospitals, drone), nil
}

func (m *Manager) publishSnapshots(ctx context.Context) {
	q, err := m.Queue(ctx)
	if err != nil {
		m.log.Warnf("queue snapshot: %v", err)
	} else {
		queueLength.Set(float64(len(q)))
		m.publish(events.QueueSnapshot{Missions: q, At: m.now()})
	}
	m.publish(events.StatusSnapshot{Status: m.Status(ctx)})
}

func (m *Manager) publish(ev events.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}

func (m *Manager) setStatus(ctx context.Context, id int64, st model.RequestStatus) {
	if err := m.store.UpdateRequestStatus(ctx, id, st); err != nil {
		m.log.Errorf("mark request %d %s: %v", id, st, err)
		return
	}
	m.log.Infof("request %d marked %s", id, st)
}

func (m *Manager) journalAppend(ctx context.Context, rec missionlog.Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = m.now()
	}
	if err := m.journal.Append(ctx, rec); err != nil {
		m.log.Warnf("mission log append: %v", err)
	}
}
