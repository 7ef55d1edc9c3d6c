// Package missions exposes the mission log, manual scheduling passes and
// delivery confirmation.
package missions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/bloodlift/core/mission"
	"github.com/kilianp07/bloodlift/core/missionlog"
	"github.com/kilianp07/bloodlift/core/records"
)

// Processor runs a scheduling pass.
type Processor interface {
	Process(ctx context.Context, reason string) mission.Result
}

// Completer confirms a delivery.
type Completer interface {
	Complete(ctx context.Context, requestID int64) error
}

// NewLogHandler returns an HTTP handler exposing mission logs via GET /api/missions/logs.
// Requests must include an Authorization header with "Bearer <token>" when token is non-empty.
func NewLogHandler(store missionlog.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		q := missionlog.Query{}
		params := r.URL.Query()
		if s := params.Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := params.Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		q.MissionID = params.Get("mission_id")
		q.Event = missionlog.Event(params.Get("event"))
		if s := params.Get("request_id"); s != "" {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				http.Error(w, "invalid request_id", http.StatusBadRequest)
				return
			}
			q.RequestID = id
		}
		if s := params.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			q.Limit = n
		}
		recs, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if recs == nil {
			recs = []missionlog.Record{}
		}
		writeJSON(w, http.StatusOK, recs)
	})
}

type passResponse struct {
	mission.Result
	Error string `json:"error,omitempty"`
}

// NewTriggerHandler returns an HTTP handler running a scheduling pass via POST /api/missions/trigger.
func NewTriggerHandler(p Processor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := p.Process(r.Context(), "api")
		out := passResponse{Result: res}
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
		code := http.StatusOK
		if res.Outcome == mission.OutcomeStoreError {
			code = http.StatusInternalServerError
		}
		writeJSON(w, code, out)
	})
}

// NewCompleteHandler returns an HTTP handler confirming delivery via POST /api/requests/{id}/complete.
func NewCompleteHandler(c Completer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid request id", http.StatusBadRequest)
			return
		}
		err = c.Complete(r.Context(), id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "completed"})
		case errors.Is(err, records.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, mission.ErrUnknownRequest), errors.Is(err, records.ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
