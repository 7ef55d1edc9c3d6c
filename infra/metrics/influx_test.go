package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/bloodlift/core/metrics"
	"github.com/kilianp07/bloodlift/core/model"
)

type bodyRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (b *bodyRecorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.bodies = append(b.bodies, strings.TrimSpace(string(data)))
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (b *bodyRecorder) all() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.bodies...)
}

func lineProtocol(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSink_RecordMission(t *testing.T) {
	rec := &bodyRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	ev := coremetrics.MissionEvent{
		MissionID:       "m1",
		RequestID:       4,
		SourceID:        1,
		DestinationID:   2,
		Urgency:         model.UrgencyCritical,
		Outcome:         "dispatched",
		PriorityScore:   -5.25,
		TotalDistanceKm: 7.1234,
		Time:            now,
	}
	if err := sink.RecordMission(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("mission").
		AddTag("mission_id", "m1").
		AddTag("outcome", "dispatched").
		AddTag("urgency", "critical").
		AddTag("component", "mission_scheduler").
		AddField("request_id", int64(4)).
		AddField("source_id", int64(1)).
		AddField("destination_id", int64(2)).
		AddField("priority_score", -5.25).
		AddField("distance_km", 7.123).
		SetTime(now)
	bodies := rec.all()
	if len(bodies) != 1 || bodies[0] != lineProtocol(p) {
		t.Errorf("unexpected bodies: %#v", bodies)
	}
}

func TestInfluxSink_RecordSafetyDecision(t *testing.T) {
	rec := &bodyRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	ev := coremetrics.SafetyEvent{
		MissionID:       "m1",
		Safe:            false,
		Check:           "distance",
		Reason:          "route 15.00 km exceeds 10.00 km",
		DistanceKm:      15,
		BatteryPercent:  80,
		WindSpeed:       5,
		Visibility:      10000,
		PlannedAltitude: 40,
		Time:            now,
	}
	if err := sink.RecordSafetyDecision(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("safety_decision").
		AddTag("mission_id", "m1").
		AddTag("safe", "false").
		AddTag("check", "distance").
		AddTag("component", "safety_gate").
		AddField("reason", "route 15.00 km exceeds 10.00 km").
		AddField("distance_km", 15.0).
		AddField("battery", 80.0).
		AddField("wind_speed", 5.0).
		AddField("visibility", 10000.0).
		AddField("altitude", 40.0).
		SetTime(now)
	bodies := rec.all()
	if len(bodies) != 1 || bodies[0] != lineProtocol(p) {
		t.Errorf("unexpected bodies: %#v", bodies)
	}
}

func TestInfluxSink_RecordDispatchStep(t *testing.T) {
	rec := &bodyRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	ev := coremetrics.DispatchStepEvent{MissionID: "m1", Step: "arm", Phase: "arming", Duration: 1500 * time.Millisecond, Time: now}
	if err := sink.RecordDispatchStep(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("dispatch_step").
		AddTag("mission_id", "m1").
		AddTag("step", "arm").
		AddTag("phase", "arming").
		AddTag("component", "mission_dispatcher").
		AddField("duration_ms", 1500.0).
		AddField("errors", "").
		SetTime(now)
	bodies := rec.all()
	if len(bodies) != 1 || bodies[0] != lineProtocol(p) {
		t.Errorf("bodies: %#v", bodies)
	}
}

func TestInfluxSink_RecordTelemetryWithoutFix(t *testing.T) {
	rec := &bodyRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	ev := coremetrics.TelemetryEvent{
		Snapshot:       model.TelemetrySnapshot{Connected: true, Battery: 64, BatteryKnown: true},
		LocationStatus: "unavailable",
		BatteryStatus:  "ok",
		SpeedStatus:    "ok",
		Latency:        20 * time.Millisecond,
		Time:           now,
	}
	if err := sink.RecordTelemetry(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("telemetry").
		AddTag("component", "telemetry_acquirer").
		AddTag("location_status", "unavailable").
		AddTag("battery_status", "ok").
		AddTag("speed_status", "ok").
		AddField("connected", true).
		AddField("battery", 64.0).
		AddField("speed", 0.0).
		AddField("latency_ms", 20.0).
		SetTime(now)
	bodies := rec.all()
	if len(bodies) != 1 || bodies[0] != lineProtocol(p) {
		t.Errorf("bodies: %#v", bodies)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
