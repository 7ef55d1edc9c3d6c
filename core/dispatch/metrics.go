package dispatch

import "github.com/prometheus/client_golang/prometheus"

var (
	stepsTotal      *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	missionsTotal   *prometheus.CounterVec
	missionInFlight prometheus.Gauge
)

func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, *prometheus.CounterVec, prometheus.Gauge) {
	steps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_steps_total",
			Help: "Flight commands issued, by step and result",
		},
		[]string{"step", "result"},
	)
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_step_command_seconds",
			Help:    "Time taken to issue a flight command, settle delay excluded",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)
	missions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_missions_total",
			Help: "Dispatch sequences run, by final phase",
		},
		[]string{"phase"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_mission_in_flight",
			Help: "1 while a dispatch sequence is running",
		},
	)
	return steps, dur, missions, inFlight
}

func init() {
	stepsTotal, stepDuration, missionsTotal, missionInFlight = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(stepsTotal, stepDuration, missionsTotal, missionInFlight)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	stepsTotal, stepDuration, missionsTotal, missionInFlight = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
