package events

import (
	"time"

	"github.com/kilianp07/bloodlift/core/model"
	"github.com/kilianp07/bloodlift/core/safety"
	"github.com/kilianp07/bloodlift/core/status"
)

// Event is anything published on the bus. Type names the event on the wire.
type Event interface {
	Type() string
}

// QueueSnapshot is the current mission queue sorted by ascending score.
type QueueSnapshot struct {
	Missions []model.MissionCandidate `json:"missions"`
	At       time.Time                `json:"at"`
}

func (QueueSnapshot) Type() string { return "mission_queue" }

// StatusSnapshot carries the aggregated drone status.
type StatusSnapshot struct {
	Status status.DroneStatus `json:"status"`
}

func (StatusSnapshot) Type() string { return "drone_status" }

// PhaseChanged is emitted for every dispatch step and phase transition.
type PhaseChanged struct {
	MissionID string            `json:"mission_id"`
	RequestID int64             `json:"request_id"`
	Phase     model.FlightPhase `json:"phase"`
	Step      string            `json:"step,omitempty"`
	Err       string            `json:"error,omitempty"`
	At        time.Time         `json:"at"`
}

func (PhaseChanged) Type() string { return "dispatch_phase" }

// SafetyEvaluated reports a safety gate decision.
type SafetyEvaluated struct {
	MissionID string          `json:"mission_id"`
	RequestID int64           `json:"request_id"`
	Decision  safety.Decision `json:"decision"`
	At        time.Time       `json:"at"`
}

func (SafetyEvaluated) Type() string { return "safety_decision" }

// MissionResolved is the outcome of a scheduling pass that found a candidate.
type MissionResolved struct {
	MissionID string                 `json:"mission_id"`
	Outcome   string                 `json:"outcome"`
	Candidate model.MissionCandidate `json:"candidate"`
	At        time.Time              `json:"at"`
}

func (MissionResolved) Type() string { return "mission_resolved" }
