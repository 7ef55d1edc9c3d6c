// Package status merges telemetry, mission and safety state into the record
// shown to operators. Aggregate is a pure function.
package status

import (
	"fmt"
	"time"

	"github.com/kilianp07/bloodlift/core/model"
	"github.com/kilianp07/bloodlift/core/safety"
	"github.com/kilianp07/bloodlift/core/scheduler"
)

// MissionSummary is the operator view of a mission candidate.
type MissionSummary struct {
	ID              string        `json:"id,omitempty"`
	RequestID       int64         `json:"request_id"`
	BloodType       string        `json:"blood_type"`
	Units           int           `json:"units"`
	Urgency         model.Urgency `json:"urgency"`
	Source          string        `json:"source"`
	Destination     string        `json:"destination"`
	TotalDistanceKm float64       `json:"total_distance_km"`
	PriorityScore   float64       `json:"priority_score"`
}

// DroneStatus is the externally consumable status record.
type DroneStatus struct {
	Connected        bool              `json:"connected"`
	Location         *model.Location   `json:"location,omitempty"`
	NavigationKnown  bool              `json:"navigation_known"`
	Battery          float64           `json:"battery"`
	BatteryKnown     bool              `json:"battery_known"`
	BatteryAssumed   bool              `json:"battery_assumed"`
	Speed            float64           `json:"speed"`
	SpeedKnown       bool              `json:"speed_known"`
	Charging         bool              `json:"charging"`
	ChargingInferred bool              `json:"charging_inferred"`
	Available        bool              `json:"available"`
	Armed            bool              `json:"armed"`
	Mode             string            `json:"mode,omitempty"`
	Phase            model.FlightPhase `json:"phase"`
	Status           string            `json:"status"`
	Mission          *MissionSummary   `json:"mission,omitempty"`
	LastSafety       *safety.Decision  `json:"last_safety,omitempty"`
	Home             model.Coordinate  `json:"home"`
	SampledAt        time.Time         `json:"sampled_at"`
}

// Input gathers everything Aggregate needs.
type Input struct {
	Snapshot     model.TelemetrySnapshot
	Mission      *model.MissionCandidate
	MissionID    string
	Phase        model.FlightPhase
	LastSafety   *safety.Decision
	Availability scheduler.Assessment
	Home         model.Coordinate
}

// Aggregate builds the status record.
func Aggregate(in Input) DroneStatus {
	s := in.Snapshot
	phase := in.Phase
	if phase == "" {
		phase = model.PhaseIdle
	}
	out := DroneStatus{
		Connected:        s.Connected,
		NavigationKnown:  s.Location != nil,
		Battery:          s.Battery,
		BatteryKnown:     s.BatteryKnown,
		BatteryAssumed:   s.BatteryAssumed,
		Speed:            s.Speed,
		SpeedKnown:       s.SpeedKnown,
		Charging:         in.Availability.Charging,
		ChargingInferred: in.Availability.ChargingInferred,
		Available:        in.Availability.Available,
		Armed:            s.Armed,
		Mode:             s.Mode,
		Phase:            phase,
		Home:             in.Home,
		SampledAt:        s.SampledAt,
	}
	if s.Location != nil {
		loc := *s.Location
		out.Location = &loc
	}
	if in.Mission != nil {
		m := in.Mission
		out.Mission = &MissionSummary{
			ID:              in.MissionID,
			RequestID:       m.Request.ID,
			BloodType:       m.Request.BloodType,
			Units:           m.Request.Units,
			Urgency:         m.Request.Urgency,
			Source:          m.Source.Name,
			Destination:     m.Destination.Name,
			TotalDistanceKm: m.TotalDistance,
			PriorityScore:   m.PriorityScore,
		}
	}
	if in.LastSafety != nil {
		d := *in.LastSafety
		out.LastSafety = &d
	}
	out.Status = phrase(out, in.Availability)
	return out
}

func phrase(s DroneStatus, a scheduler.Assessment) string {
	switch s.Phase {
	case model.PhaseArming:
		return "Arming"
	case model.PhaseAirborneToSource:
		return "En route to " + missionEnd(s.Mission, true)
	case model.PhaseAirborneToDestination:
		return "Delivering to " + missionEnd(s.Mission, false)
	case model.PhaseReturning:
		return "Returning to launch"
	case model.PhaseError:
		return "Mission error"
	}
	if !s.Connected {
		return "Disconnected"
	}
	if s.Charging {
		return "Charging"
	}
	if !a.Available {
		if a.Reason != "" {
			return "Unavailable: " + a.Reason
		}
		return "Unavailable"
	}
	if s.Mission != nil {
		return fmt.Sprintf("Mission queued: request %d", s.Mission.RequestID)
	}
	if s.LastSafety != nil && !s.LastSafety.Safe {
		return "Ready (last mission rejected: " + s.LastSafety.Reason + ")"
	}
	if !s.NavigationKnown {
		return "Ready (no navigation data)"
	}
	return "Ready"
}

func missionEnd(m *MissionSummary, source bool) string {
	switch {
	case m == nil:
		return "target"
	case source:
		return m.Source
	default:
		return m.Destination
	}
}
