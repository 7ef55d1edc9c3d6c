package mission

import "github.com/prometheus/client_golang/prometheus"

var (
	passesTotal   *prometheus.CounterVec
	queueLength   prometheus.Gauge
	safetyRejects *prometheus.CounterVec
)

func newCollectors() (*prometheus.CounterVec, prometheus.Gauge, *prometheus.CounterVec) {
	passes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_scheduling_passes_total",
			Help: "Scheduling passes, by outcome",
		},
		[]string{"outcome"},
	)
	queue := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mission_queue_length",
			Help: "Feasible missions in the last published queue snapshot",
		},
	)
	rejects := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_safety_rejections_total",
			Help: "Missions rejected by the safety gate, by failing check",
		},
		[]string{"check"},
	)
	return passes, queue, rejects
}

func init() {
	passesTotal, queueLength, safetyRejects = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers mission metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(passesTotal, queueLength, safetyRejects)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	passesTotal, queueLength, safetyRejects = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
