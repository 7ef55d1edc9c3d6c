package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	pollsTotal      prometheus.Counter
	linkDownPolls   prometheus.Counter
	unknownReadings *prometheus.CounterVec
	pollLatency     prometheus.Histogram
	lastPoll        prometheus.Gauge
)

func newCollectors() (prometheus.Counter, prometheus.Counter, *prometheus.CounterVec, prometheus.Histogram, prometheus.Gauge) {
	polls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_polls_total",
		Help: "Number of telemetry polls",
	})
	down := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_link_down_polls_total",
		Help: "Number of telemetry polls that found the link down",
	})
	unk := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_unknown_readings_total",
		Help: "Readings that produced no usable value, by reading and status",
	}, []string{"reading", "status"})
	lat := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "telemetry_poll_latency_seconds",
		Help:    "Duration of a full telemetry poll",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
	})
	last := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_last_poll_timestamp_seconds",
		Help: "Unix timestamp of the last telemetry poll",
	})
	return polls, down, unk, lat, last
}

func init() {
	pollsTotal, linkDownPolls, unknownReadings, pollLatency, lastPoll = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers telemetry metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(pollsTotal, linkDownPolls, unknownReadings, pollLatency, lastPoll)
}

// ResetMetrics reinitializes the collectors for tests and registers them on
// reg when it is not nil.
func ResetMetrics(reg prometheus.Registerer) {
	pollsTotal, linkDownPolls, unknownReadings, pollLatency, lastPoll = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
