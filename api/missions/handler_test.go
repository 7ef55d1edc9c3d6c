package missions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/bloodlift/core/mission"
	"github.com/kilianp07/bloodlift/core/missionlog"
	"github.com/kilianp07/bloodlift/core/records"
)

type memStore struct{ recs []missionlog.Record }

func (m *memStore) Append(_ context.Context, r missionlog.Record) error {
	m.recs = append(m.recs, r)
	return nil
}

func (m *memStore) Query(_ context.Context, q missionlog.Query) ([]missionlog.Record, error) {
	var res []missionlog.Record
	for _, r := range m.recs {
		if q.Match(r) {
			res = append(res, r)
		}
	}
	return res, nil
}

func (m *memStore) Close() error { return nil }

func TestLogHandler_AuthAndFilters(t *testing.T) {
	store := &memStore{}
	now := time.Now()
	_ = store.Append(context.Background(), missionlog.Record{Timestamp: now, MissionID: "m1", RequestID: 1, Event: missionlog.EventSelected})
	_ = store.Append(context.Background(), missionlog.Record{Timestamp: now, MissionID: "m1", RequestID: 1, Event: missionlog.EventDispatched})
	_ = store.Append(context.Background(), missionlog.Record{Timestamp: now, MissionID: "m2", RequestID: 2, Event: missionlog.EventRejected})
	h := NewLogHandler(store, "tok")

	req := httptest.NewRequest("GET", "/api/missions/logs?mission_id=m1&event=dispatched", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out []missionlog.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].Event != missionlog.EventDispatched {
		t.Fatalf("unexpected records %#v", out)
	}

	req = httptest.NewRequest("GET", "/api/missions/logs?request_id=2", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	out = nil
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].MissionID != "m2" {
		t.Fatalf("unexpected records %#v", out)
	}

	// unauthorized
	req = httptest.NewRequest("GET", "/api/missions/logs", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}

	req = httptest.NewRequest("GET", "/api/missions/logs?limit=-3", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

type fakeProcessor struct {
	res     mission.Result
	reasons []string
}

func (f *fakeProcessor) Process(_ context.Context, reason string) mission.Result {
	f.reasons = append(f.reasons, reason)
	return f.res
}

func TestTriggerHandler(t *testing.T) {
	p := &fakeProcessor{res: mission.Result{Outcome: mission.OutcomeSafetyRejected, MissionID: "m7", Err: errors.New("route too long")}}
	rr := httptest.NewRecorder()
	NewTriggerHandler(p).ServeHTTP(rr, httptest.NewRequest("POST", "/api/missions/trigger", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["outcome"] != "safety_rejected" || out["mission_id"] != "m7" || out["error"] != "route too long" {
		t.Fatalf("unexpected body %v", out)
	}
	if len(p.reasons) != 1 || p.reasons[0] != "api" {
		t.Fatalf("unexpected reasons %v", p.reasons)
	}

	p.res = mission.Result{Outcome: mission.OutcomeStoreError, Err: errors.New("disk full")}
	rr = httptest.NewRecorder()
	NewTriggerHandler(p).ServeHTTP(rr, httptest.NewRequest("POST", "/api/missions/trigger", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
}

type completerFunc func(ctx context.Context, id int64) error

func (f completerFunc) Complete(ctx context.Context, id int64) error { return f(ctx, id) }

func TestCompleteHandler(t *testing.T) {
	c := completerFunc(func(_ context.Context, id int64) error {
		switch id {
		case 1:
			return nil
		case 2:
			return fmt.Errorf("request 2 is pending: %w", mission.ErrUnknownRequest)
		default:
			return fmt.Errorf("request %d: %w", id, records.ErrNotFound)
		}
	})
	r := chi.NewRouter()
	r.Method(http.MethodPost, "/api/requests/{id}/complete", NewCompleteHandler(c))

	cases := []struct {
		path string
		want int
	}{
		{"/api/requests/1/complete", http.StatusOK},
		{"/api/requests/2/complete", http.StatusConflict},
		{"/api/requests/9/complete", http.StatusNotFound},
		{"/api/requests/abc/complete", http.StatusBadRequest},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, tc.path, nil))
		if rr.Code != tc.want {
			t.Errorf("%s: expected %d got %d", tc.path, tc.want, rr.Code)
		}
	}
}
