// Package drone exposes the aggregated drone status and the mission queue.
package drone

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kilianp07/bloodlift/core/model"
	"github.com/kilianp07/bloodlift/core/status"
)

// StatusSource computes the current drone status.
type StatusSource interface {
	Status(ctx context.Context) status.DroneStatus
}

// QueueSource lists the feasible pending missions.
type QueueSource interface {
	Queue(ctx context.Context) ([]model.MissionCandidate, error)
}

// NewStatusHandler returns an HTTP handler exposing the drone status via GET /api/drone/status.
func NewStatusHandler(src StatusSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, src.Status(r.Context()))
	})
}

// NewQueueHandler returns an HTTP handler exposing the mission queue via GET /api/missions/queue.
func NewQueueHandler(src QueueSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, err := src.Queue(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if q == nil {
			q = []model.MissionCandidate{}
		}
		writeJSON(w, http.StatusOK, q)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
