package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kilianp07/bloodlift/api"
	"github.com/kilianp07/bloodlift/config"
	"github.com/kilianp07/bloodlift/core/dispatch"
	"github.com/kilianp07/bloodlift/core/events"
	coremetrics "github.com/kilianp07/bloodlift/core/metrics"
	"github.com/kilianp07/bloodlift/core/mission"
	"github.com/kilianp07/bloodlift/core/missionlog"
	coremon "github.com/kilianp07/bloodlift/core/monitoring"
	"github.com/kilianp07/bloodlift/core/safety"
	"github.com/kilianp07/bloodlift/core/scheduler"
	"github.com/kilianp07/bloodlift/core/telemetry"
	"github.com/kilianp07/bloodlift/infra/logger"
	"github.com/kilianp07/bloodlift/infra/metrics"
	"github.com/kilianp07/bloodlift/infra/monitoring"
	"github.com/kilianp07/bloodlift/infra/mqtt"
	"github.com/kilianp07/bloodlift/infra/simlink"
	"github.com/kilianp07/bloodlift/infra/sqlite"
	"github.com/kilianp07/bloodlift/infra/ws"
	"github.com/kilianp07/bloodlift/internal/eventbus"
)

// Vehicle is a link that carries both telemetry and flight commands.
type Vehicle interface {
	telemetry.Link
	dispatch.FlightController
}

// Service wires the record store, the vehicle link and the mission manager
// behind the HTTP API.
type Service struct {
	Manager *mission.Manager
	Records *sqlite.Store

	cfg      *config.Config
	log      logger.Logger
	vehicle  Vehicle
	closers  []func() error
	journal  missionlog.Store
	sink     coremetrics.MetricsSink
	bus      *eventbus.TypedBus[events.Event]
	poller   *telemetry.Poller
	hub      *ws.Hub
	notifier *mqtt.Notifier
	handler  http.Handler
}

// NewVehicle opens the link selected by cfg. The returned function closes it.
func NewVehicle(cfg config.LinkConfig) (Vehicle, func(), error) {
	switch cfg.Mode {
	case config.LinkModeMQTT:
		l, err := mqtt.NewVehicleLink(cfg.MQTT)
		if err != nil {
			return nil, nil, fmt.Errorf("mqtt link: %w", err)
		}
		return l, l.Close, nil
	case config.LinkModeSim:
		return simlink.New(cfg.Sim), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown link mode %q", cfg.Mode)
	}
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	s := &Service{cfg: cfg, log: logg, bus: eventbus.NewTyped[events.Event]()}
	ok := false
	defer func() {
		if !ok {
			_ = s.Close()
		}
	}()

	if s.Records, err = sqlite.Open(cfg.Store.Path); err != nil {
		return nil, fmt.Errorf("record store: %w", err)
	}
	s.closers = append(s.closers, s.Records.Close)
	if s.journal, err = missionlog.Open(cfg.MissionLog); err != nil {
		return nil, fmt.Errorf("mission log: %w", err)
	}
	s.closers = append(s.closers, s.journal.Close)
	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	vehicle, closeVehicle, err := NewVehicle(cfg.Link)
	if err != nil {
		return nil, err
	}
	s.vehicle = vehicle
	s.closers = append(s.closers, func() error { closeVehicle(); return nil })

	zones, err := safety.LoadNoFlyZones(cfg.Safety.NoFlyZonesPath, logger.New("safety"))
	if err != nil {
		return nil, fmt.Errorf("no-fly zones: %w", err)
	}

	acq := telemetry.NewAcquirer(vehicle, cfg.Telemetry.Config,
		telemetry.WithLogger(logger.New("telemetry")),
		telemetry.WithRetryPolicy(cfg.Telemetry.RetryPolicy()))
	s.poller = telemetry.NewPoller(acq, cfg.Telemetry.PollInterval, s.sink, logger.New("telemetry-poller"))
	sched := scheduler.New(cfg.Scheduler, logger.New("scheduler"))
	gate := safety.NewGate(cfg.Safety.Limits, zones, logger.New("safety"))
	disp := dispatch.NewDispatcher(vehicle, cfg.Dispatch.Config, logger.New("dispatcher"),
		dispatch.WithBus(s.bus),
		dispatch.WithRecorder(s.sink))
	s.Manager = mission.NewManager(
		mission.Config{Altitude: cfg.Dispatch.CruiseAltitude, Home: cfg.Dispatch.Home},
		s.Records, sched, gate, disp, s.poller, logger.New("mission"),
		mission.WithBus(s.bus),
		mission.WithJournal(s.journal),
		mission.WithRecorder(s.sink),
		mission.WithWeather(safety.StaticWeather(cfg.Safety.Weather)),
	)
	s.triggerOnAvailability(sched.Config())

	if cfg.Notify.Enabled && cfg.Link.Mode == config.LinkModeMQTT {
		if s.notifier, err = mqtt.NewNotifier(cfg.Link.MQTT, cfg.Notify); err != nil {
			return nil, fmt.Errorf("notifier: %w", err)
		}
		s.closers = append(s.closers, func() error { s.notifier.Close(); return nil })
	}
	s.hub = ws.NewHub(cfg.HTTP.AllowedOrigins, logger.New("ws"))
	s.handler = api.NewRouter(api.Deps{
		Missions:  s.Manager,
		Records:   s.Records,
		Journal:   s.journal,
		Token:     cfg.HTTP.Token,
		Observers: s.hub,
		Log:       logger.New("http"),
	})
	ok = true
	return s, nil
}

// triggerOnAvailability requests a scheduling pass whenever the vehicle
// becomes available, so requests that waited for a charge are picked up.
func (s *Service) triggerOnAvailability(cfg scheduler.Config) {
	var available atomic.Bool
	s.poller.OnSample(func(sample telemetry.Sample) {
		now := cfg.Assess(scheduler.AvailabilityFromSnapshot(sample.Snapshot)).Available
		if now && !available.Swap(now) {
			s.Manager.Trigger("vehicle_available")
			return
		}
		available.Store(now)
	})
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler { return s.handler }

// Run starts the service and blocks until the context is cancelled and the
// mission in flight, if any, has finished.
func (s *Service) Run(ctx context.Context) error {
	go s.poller.Start(ctx)
	go s.hub.Run(ctx, s.bus)
	if s.notifier != nil {
		go s.notifier.Run(ctx, s.bus)
	}
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr, logger.New("metrics")); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{Addr: s.cfg.HTTP.Addr, Handler: s.handler, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("http api on %s", s.cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Manager.Run(runCtx, nil)
	}()
	s.Manager.Trigger("startup")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancel()
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("http shutdown: %v", err)
	}
	<-done
	return runErr
}

// Close releases resources held by the service in reverse order.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	s.bus.Close()
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
