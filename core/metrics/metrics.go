package metrics

import (
	"time"

	"github.com/kilianp07/bloodlift/core/model"
)

// TelemetryEvent is one completed telemetry poll. The status fields carry the
// outcome of each reading ("ok", "unavailable", "link_down", "discarded",
// "assumed").
type TelemetryEvent struct {
	Snapshot       model.TelemetrySnapshot
	LocationStatus string
	BatteryStatus  string
	SpeedStatus    string
	Latency        time.Duration
	Time           time.Time
}

// TelemetryRecorder records telemetry polls.
type TelemetryRecorder interface {
	RecordTelemetry(ev TelemetryEvent) error
}

// MissionEvent records the outcome of one scheduling pass.
type MissionEvent struct {
	MissionID       string
	RequestID       int64
	SourceID        int64
	DestinationID   int64
	Urgency         model.Urgency
	Outcome         string
	PriorityScore   float64
	TotalDistanceKm float64
	Time            time.Time
}

// MissionRecorder records mission outcomes.
type MissionRecorder interface {
	RecordMission(ev MissionEvent) error
}

// SafetyEvent is a safety gate decision together with its inputs.
type SafetyEvent struct {
	MissionID       string
	Safe            bool
	Check           string
	Reason          string
	DistanceKm      float64
	BatteryPercent  float64
	WindSpeed       float64
	Visibility      float64
	PlannedAltitude float64
	Time            time.Time
}

// SafetyRecorder records safety decisions.
type SafetyRecorder interface {
	RecordSafetyDecision(ev SafetyEvent) error
}

// DispatchStepEvent is the observable outcome of a single flight command.
type DispatchStepEvent struct {
	MissionID string
	Step      string
	Phase     string
	Err       string
	Duration  time.Duration
	Time      time.Time
}

// DispatchStepRecorder records flight command outcomes.
type DispatchStepRecorder interface {
	RecordDispatchStep(ev DispatchStepEvent) error
}

// MetricsSink is implemented by every configured sink.
type MetricsSink interface {
	TelemetryRecorder
	MissionRecorder
	SafetyRecorder
	DispatchStepRecorder
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordTelemetry(TelemetryEvent) error       { return nil }
func (NopSink) RecordMission(MissionEvent) error           { return nil }
func (NopSink) RecordSafetyDecision(SafetyEvent) error     { return nil }
func (NopSink) RecordDispatchStep(DispatchStepEvent) error { return nil }

// QueueEvent summarises a published mission queue.
type QueueEvent struct {
	Length   int
	TopScore float64
	Time     time.Time
}

// QueueRecorder is implemented by sinks that track the mission queue.
type QueueRecorder interface {
	RecordQueue(ev QueueEvent) error
}

// StatusEvent is a published drone status.
type StatusEvent struct {
	Battery   float64
	Available bool
	Connected bool
	Phase     string
	Time      time.Time
}

// StatusRecorder is implemented by sinks that track the drone status.
type StatusRecorder interface {
	RecordStatus(ev StatusEvent) error
}
