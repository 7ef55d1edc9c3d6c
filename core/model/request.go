package model

import (
	"fmt"
	"strings"
	"time"
)

// Urgency ranks how quickly a blood request has to be served.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyNormal   Urgency = "normal"
)

// ParseUrgency converts user input into an Urgency.
func ParseUrgency(s string) (Urgency, error) {
	switch u := Urgency(strings.ToLower(strings.TrimSpace(s))); u {
	case UrgencyCritical, UrgencyUrgent, UrgencyNormal:
		return u, nil
	default:
		return "", fmt.Errorf("unknown urgency %q", s)
	}
}

// RequestStatus is the lifecycle state of a DeliveryRequest.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusScheduled RequestStatus = "scheduled"
	StatusCompleted RequestStatus = "completed"
	StatusError     RequestStatus = "error"
)

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition reports whether moving from s to next keeps the status
// monotonic: pending -> scheduled -> (completed | error). A pending request
// may also go straight to error when it is rejected before dispatch.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusScheduled || next == StatusError
	case StatusScheduled:
		return next == StatusCompleted || next == StatusError
	default:
		return false
	}
}

// DeliveryRequest asks for units of a blood type to be flown to a hospital.
type DeliveryRequest struct {
	ID         int64         `json:"id"`
	HospitalID int64         `json:"hospital_id"`
	BloodType  string        `json:"blood_type"`
	Units      int           `json:"units"`
	Urgency    Urgency       `json:"urgency"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Validate checks the fields required to schedule the request.
func (r DeliveryRequest) Validate() error {
	if r.HospitalID <= 0 {
		return fmt.Errorf("hospital id is required")
	}
	if strings.TrimSpace(r.BloodType) == "" {
		return fmt.Errorf("blood type is required")
	}
	if r.Units <= 0 {
		return fmt.Errorf("units must be positive")
	}
	if _, err := ParseUrgency(string(r.Urgency)); err != nil {
		return err
	}
	return nil
}
