package model

// MissionCandidate is a (request, source hospital) pair considered for
// dispatch. Candidates are rebuilt on every scheduling pass. Distances are in
// kilometres. A lower PriorityScore means the mission is dispatched sooner.
type MissionCandidate struct {
	Request             DeliveryRequest `json:"request"`
	Source              Hospital        `json:"source"`
	Destination         Hospital        `json:"destination"`
	DroneToSource       float64         `json:"drone_to_source_km"`
	SourceToDestination float64         `json:"source_to_destination_km"`
	TotalDistance       float64         `json:"total_distance_km"`
	PriorityScore       float64         `json:"priority_score"`
}

// SameEndpoints reports whether the mission would fly from a hospital to itself.
func (m MissionCandidate) SameEndpoints() bool {
	return m.Source.ID == m.Destination.ID
}

// FlightPhase is the state of the dispatch sequence for the mission in flight.
type FlightPhase string

const (
	PhaseIdle                  FlightPhase = "idle"
	PhaseArming                FlightPhase = "arming"
	PhaseAirborneToSource      FlightPhase = "airborne_to_source"
	PhaseAirborneToDestination FlightPhase = "airborne_to_destination"
	PhaseReturning             FlightPhase = "returning"
	PhaseLanded                FlightPhase = "landed"
	PhaseError                 FlightPhase = "error"
)

// InFlight reports whether the vehicle is executing a mission.
func (p FlightPhase) InFlight() bool {
	switch p {
	case PhaseArming, PhaseAirborneToSource, PhaseAirborneToDestination, PhaseReturning:
		return true
	default:
		return false
	}
}
