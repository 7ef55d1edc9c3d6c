// Package api assembles the HTTP surface of the service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kilianp07/bloodlift/api/drone"
	"github.com/kilianp07/bloodlift/api/missions"
	"github.com/kilianp07/bloodlift/api/records"
	"github.com/kilianp07/bloodlift/core/logger"
	"github.com/kilianp07/bloodlift/core/mission"
	"github.com/kilianp07/bloodlift/core/missionlog"
	"github.com/kilianp07/bloodlift/core/model"
	"github.com/kilianp07/bloodlift/core/status"
)

// Missions is the mission manager surface used by the API.
type Missions interface {
	Status(ctx context.Context) status.DroneStatus
	Queue(ctx context.Context) ([]model.MissionCandidate, error)
	Process(ctx context.Context, reason string) mission.Result
	Complete(ctx context.Context, requestID int64) error
	Trigger(reason string)
}

// Deps are the components served by the router.
type Deps struct {
	Missions Missions
	Records  records.Store
	Journal  missionlog.Store
	// Token protects the mission log query when set.
	Token string
	// Observers serves /ws when set.
	Observers http.Handler
	Log       logger.Logger
}

// NewRouter returns the HTTP handler for every endpoint.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = logger.Nop{}
	}
	if d.Journal == nil {
		d.Journal = missionlog.NopStore{}
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Log))

	r.Method(http.MethodGet, "/api/drone/status", drone.NewStatusHandler(d.Missions))
	r.Method(http.MethodGet, "/api/missions/queue", drone.NewQueueHandler(d.Missions))
	r.Method(http.MethodGet, "/api/missions/logs", missions.NewLogHandler(d.Journal, d.Token))
	r.Method(http.MethodPost, "/api/missions/trigger", missions.NewTriggerHandler(d.Missions))
	r.Method(http.MethodPost, "/api/requests/{id}/complete", missions.NewCompleteHandler(d.Missions))
	if d.Records != nil {
		records.NewHandler(d.Records, d.Missions, d.Log).Mount(r)
	}
	if d.Observers != nil {
		r.Method(http.MethodGet, "/ws", d.Observers)
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debugw("http request", map[string]any{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			})
		})
	}
}
