package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/bloodlift/core/metrics"
	"github.com/kilianp07/bloodlift/infra/logger"
)

// InfluxSink writes drone and mission events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordTelemetry writes a telemetry poll.
func (s *InfluxSink) RecordTelemetry(ev coremetrics.TelemetryEvent) error {
	snap := ev.Snapshot
	p := write.NewPointWithMeasurement("telemetry").
		AddTag("component", "telemetry_acquirer").
		AddTag("location_status", ev.LocationStatus).
		AddTag("battery_status", ev.BatteryStatus).
		AddTag("speed_status", ev.SpeedStatus).
		AddField("connected", snap.Connected).
		AddField("battery", round3(snap.Battery)).
		AddField("speed", round3(snap.Speed)).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000))
	if snap.Location != nil {
		p = p.AddField("lat", snap.Location.Lat).
			AddField("lon", snap.Location.Lon).
			AddField("alt", round3(snap.Location.Alt))
	}
	return s.write(p.SetTime(ev.Time))
}

// RecordMission writes a scheduling outcome.
func (s *InfluxSink) RecordMission(ev coremetrics.MissionEvent) error {
	p := write.NewPointWithMeasurement("mission").
		AddTag("mission_id", ev.MissionID).
		AddTag("outcome", ev.Outcome).
		AddTag("urgency", string(ev.Urgency)).
		AddTag("component", "mission_scheduler").
		AddField("request_id", ev.RequestID).
		AddField("source_id", ev.SourceID).
		AddField("destination_id", ev.DestinationID).
		AddField("priority_score", round3(ev.PriorityScore)).
		AddField("distance_km", round3(ev.TotalDistanceKm)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordSafetyDecision writes a safety gate decision with its inputs.
func (s *InfluxSink) RecordSafetyDecision(ev coremetrics.SafetyEvent) error {
	p := write.NewPointWithMeasurement("safety_decision").
		AddTag("mission_id", ev.MissionID).
		AddTag("safe", strconv.FormatBool(ev.Safe)).
		AddTag("check", ev.Check).
		AddTag("component", "safety_gate").
		AddField("reason", ev.Reason).
		AddField("distance_km", round3(ev.DistanceKm)).
		AddField("battery", round3(ev.BatteryPercent)).
		AddField("wind_speed", round3(ev.WindSpeed)).
		AddField("visibility", round3(ev.Visibility)).
		AddField("altitude", round3(ev.PlannedAltitude)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordDispatchStep writes the outcome of a flight command.
func (s *InfluxSink) RecordDispatchStep(ev coremetrics.DispatchStepEvent) error {
	p := write.NewPointWithMeasurement("dispatch_step").
		AddTag("mission_id", ev.MissionID).
		AddTag("step", ev.Step).
		AddTag("phase", ev.Phase).
		AddTag("component", "mission_dispatcher").
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		AddField("errors", ev.Err).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordQueue writes the mission queue length.
func (s *InfluxSink) RecordQueue(ev coremetrics.QueueEvent) error {
	p := write.NewPointWithMeasurement("mission_queue").
		AddField("length", ev.Length).
		AddField("top_score", round3(ev.TopScore)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordStatus writes the aggregated drone status.
func (s *InfluxSink) RecordStatus(ev coremetrics.StatusEvent) error {
	p := write.NewPointWithMeasurement("drone_status").
		AddTag("phase", ev.Phase).
		AddField("battery", round3(ev.Battery)).
		AddField("available", ev.Available).
		AddField("connected", ev.Connected).
		SetTime(ev.Time)
	return s.write(p)
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
