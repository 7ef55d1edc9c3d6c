package scenarios

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/bloodlift/core/dispatch"
	"github.com/kilianp07/bloodlift/core/mission"
	"github.com/kilianp07/bloodlift/core/model"
	"github.com/kilianp07/bloodlift/core/records"
	"github.com/kilianp07/bloodlift/core/safety"
	"github.com/kilianp07/bloodlift/core/scheduler"
	"github.com/kilianp07/bloodlift/core/telemetry"
	"github.com/kilianp07/bloodlift/infra/logger"
	"github.com/kilianp07/bloodlift/infra/simlink"
)

// Report is what a scenario run observed.
type Report struct {
	Result   mission.Result
	Status   model.RequestStatus
	Commands []string
}

// Run plays one scheduling pass of sc against a simulated vehicle and an
// in-memory record store. The first request in sc is the one reported.
func Run(ctx context.Context, sc *Scenario) (Report, error) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := records.NewMemoryStore()

	ids := make(map[string]int64, len(sc.Hospitals))
	for _, h := range sc.Hospitals {
		created, err := store.AddHospital(ctx, model.Hospital{Name: h.Name, Latitude: h.Lat, Longitude: h.Lon})
		if err != nil {
			return Report{}, fmt.Errorf("hospital %s: %w", h.Name, err)
		}
		ids[h.Name] = created.ID
		for bt, units := range h.Stock {
			if err := store.UpsertInventory(ctx, model.InventoryRecord{HospitalID: created.ID, BloodType: bt, Units: units}); err != nil {
				return Report{}, fmt.Errorf("stock %s %s: %w", h.Name, bt, err)
			}
		}
	}
	var first int64
	for i, r := range sc.Requests {
		hid, ok := ids[r.Hospital]
		if !ok {
			return Report{}, fmt.Errorf("request %d: unknown hospital %q", i, r.Hospital)
		}
		created, err := store.CreateRequest(ctx, model.DeliveryRequest{
			HospitalID: hid,
			BloodType:  r.BloodType,
			Units:      r.Units,
			Urgency:    model.Urgency(r.Urgency),
			CreatedAt:  now.Add(-r.age()),
		})
		if err != nil {
			return Report{}, fmt.Errorf("request %d: %w", i, err)
		}
		if i == 0 {
			first = created.ID
		}
	}

	drone := simlink.New(sc.Drone.ToConfig())
	drone.SetConnected(!sc.Drone.Offline)
	poller := telemetry.NewPoller(telemetry.NewAcquirer(drone, telemetry.DefaultConfig()), time.Second, nil, logger.NopLogger{})
	poller.PollOnce(ctx)

	noSleep := func(context.Context, time.Duration) error { return nil }
	disp := dispatch.NewDispatcher(drone, dispatch.DefaultConfig(), logger.NopLogger{}, dispatch.WithSleep(noSleep))
	altitude := sc.Altitude
	if altitude == 0 {
		altitude = dispatch.DefaultConfig().CruiseAltitude
	}
	mgr := mission.NewManager(
		mission.Config{Altitude: altitude, Home: sc.Drone.ToConfig().Home},
		store,
		scheduler.New(scheduler.DefaultConfig(), logger.NopLogger{}, scheduler.WithClock(clock)),
		safety.NewGate(sc.Limits.Apply(safety.DefaultLimits()), sc.Zones, logger.NopLogger{}),
		disp,
		poller,
		logger.NopLogger{},
		mission.WithWeather(safety.StaticWeather(safety.Weather{WindSpeed: sc.Weather.WindSpeed, Visibility: sc.Weather.Visibility})),
		mission.WithClock(clock),
	)

	res := mgr.Process(ctx, "scenario")
	mgr.Wait()

	rep := Report{Result: res, Commands: drone.Commands()}
	if first != 0 {
		req, err := store.GetRequest(ctx, first)
		if err != nil {
			return rep, err
		}
		rep.Status = req.Status
	}
	return rep, nil
}
