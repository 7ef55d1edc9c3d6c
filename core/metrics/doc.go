// Package metrics defines the recorder interfaces used to export telemetry
// polls, mission outcomes, safety decisions and flight command results.
// Concrete sinks live in infra/metrics and register themselves with the
// factory registry; NewMetricsSink returns a MultiSink when more than one
// sink is configured.
package metrics
