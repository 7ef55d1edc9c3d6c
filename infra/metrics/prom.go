package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/bloodlift/core/metrics"
)

// PromSink records telemetry, mission and safety events in Prometheus metrics.
type PromSink struct {
	polls     *prometheus.CounterVec
	latency   prometheus.Histogram
	battery   prometheus.Gauge
	missions  *prometheus.CounterVec
	distance  prometheus.Histogram
	decisions *prometheus.CounterVec
	steps     *prometheus.HistogramVec
	available prometheus.Gauge
}

// NewPromSink registers the sink metrics on the default Prometheus registerer.
// The Prometheus server should be started separately with StartPromServer.
func NewPromSink() (coremetrics.MetricsSink, error) {
	s, err := NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_readings_total",
			Help: "Telemetry readings by kind and outcome",
		}, []string{"reading", "status"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "telemetry_poll_seconds",
			Help:    "Duration of a full telemetry poll",
			Buckets: prometheus.DefBuckets,
		}),
		battery: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drone_battery_percent",
			Help: "Last reported battery level",
		}),
		missions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mission_outcomes_total",
			Help: "Scheduling outcomes by urgency",
		}, []string{"outcome", "urgency"}),
		distance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mission_route_distance_km",
			Help:    "Total route distance of selected missions",
			Buckets: []float64{1, 2, 5, 8, 10, 15, 20},
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_decisions_total",
			Help: "Safety gate decisions by failing check",
		}, []string{"safe", "check"}),
		steps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_step_seconds",
			Help:    "Duration of flight steps",
			Buckets: prometheus.DefBuckets,
		}, []string{"step", "result"}),
		available: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drone_available",
			Help: "1 when the drone can accept a mission",
		}),
	}
	var err error
	if s.polls, err = register(reg, s.polls); err != nil {
		return nil, err
	}
	if s.latency, err = register(reg, s.latency); err != nil {
		return nil, err
	}
	if s.battery, err = register(reg, s.battery); err != nil {
		return nil, err
	}
	if s.missions, err = register(reg, s.missions); err != nil {
		return nil, err
	}
	if s.distance, err = register(reg, s.distance); err != nil {
		return nil, err
	}
	if s.decisions, err = register(reg, s.decisions); err != nil {
		return nil, err
	}
	if s.steps, err = register(reg, s.steps); err != nil {
		return nil, err
	}
	if s.available, err = register(reg, s.available); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when c is a duplicate.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordTelemetry counts each reading outcome and tracks the battery level.
func (s *PromSink) RecordTelemetry(ev coremetrics.TelemetryEvent) error {
	s.polls.WithLabelValues("location", ev.LocationStatus).Inc()
	s.polls.WithLabelValues("battery", ev.BatteryStatus).Inc()
	s.polls.WithLabelValues("speed", ev.SpeedStatus).Inc()
	s.latency.Observe(ev.Latency.Seconds())
	if ev.Snapshot.BatteryKnown {
		s.battery.Set(ev.Snapshot.Battery)
	}
	return nil
}

// RecordMission counts the outcome and observes the route distance.
func (s *PromSink) RecordMission(ev coremetrics.MissionEvent) error {
	s.missions.WithLabelValues(ev.Outcome, string(ev.Urgency)).Inc()
	if ev.TotalDistanceKm > 0 {
		s.distance.Observe(ev.TotalDistanceKm)
	}
	return nil
}

// RecordSafetyDecision counts decisions by failing check.
func (s *PromSink) RecordSafetyDecision(ev coremetrics.SafetyEvent) error {
	s.decisions.WithLabelValues(strconv.FormatBool(ev.Safe), ev.Check).Inc()
	return nil
}

// RecordDispatchStep observes the step duration.
func (s *PromSink) RecordDispatchStep(ev coremetrics.DispatchStepEvent) error {
	result := "ok"
	if ev.Err != "" {
		result = "error"
	}
	s.steps.WithLabelValues(ev.Step, result).Observe(ev.Duration.Seconds())
	return nil
}

// RecordStatus sets the availability gauge.
func (s *PromSink) RecordStatus(ev coremetrics.StatusEvent) error {
	if ev.Available {
		s.available.Set(1)
	} else {
		s.available.Set(0)
	}
	return nil
}
