// Package missionlog persists every scheduling decision, safety verdict and
// flight command outcome so a mission can be reconstructed afterwards.
package missionlog

import (
	"context"
	"time"

	"github.com/kilianp07/bloodlift/core/model"
	"github.com/kilianp07/bloodlift/core/safety"
)

// Event classifies a Record.
type Event string

const (
	EventSelected   Event = "selected"
	EventRejected   Event = "safety_rejected"
	EventInvalid    Event = "invalid_mission"
	EventDispatched Event = "dispatched"
	EventStep       Event = "step"
	EventFinished   Event = "finished"
	EventCompleted  Event = "completed"
	EventFailed     Event = "failed"
)

// Step is the logged form of a flight command result.
type Step struct {
	Name     string            `json:"name"`
	Phase    model.FlightPhase `json:"phase"`
	Error    string            `json:"error,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// Record is one mission log entry.
type Record struct {
	Timestamp time.Time               `json:"timestamp"`
	MissionID string                  `json:"mission_id,omitempty"`
	RequestID int64                   `json:"request_id"`
	Event     Event                   `json:"event"`
	Phase     model.FlightPhase       `json:"phase,omitempty"`
	Candidate *model.MissionCandidate `json:"candidate,omitempty"`
	Safety    *safety.Decision        `json:"safety,omitempty"`
	Step      *Step                   `json:"step,omitempty"`
	Message   string                  `json:"message,omitempty"`
}

// Query filters records. Zero fields match everything.
type Query struct {
	Start     time.Time
	End       time.Time
	MissionID string
	RequestID int64
	Event     Event
	Limit     int
}

// Match reports whether r satisfies the time, mission, request and event
// filters. Limit is applied by the store.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.MissionID != "" && r.MissionID != q.MissionID {
		return false
	}
	if q.RequestID != 0 && r.RequestID != q.RequestID {
		return false
	}
	if q.Event != "" && r.Event != q.Event {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore drops every record.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }
