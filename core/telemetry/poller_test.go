package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bloodlift/core/metrics"
)

type telemetryRecorder struct {
	metrics.NopSink
	events []metrics.TelemetryEvent
}

func (r *telemetryRecorder) RecordTelemetry(ev metrics.TelemetryEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func TestPollerPublishesLatest(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	t.Cleanup(func() { ResetMetrics(nil) })

	link := newScriptedLink()
	link.always(gpsRaw(home, 3, 40))
	link.always(Message{Kind: KindSysStatus, BatteryRemaining: floatPtr(64)})
	a := newTestAcquirer(link, &fakeClock{t: time.Unix(1000, 0)})
	rec := &telemetryRecorder{}
	p := NewPoller(a, time.Second, rec, nil)

	_, ok := p.Latest()
	assert.False(t, ok)

	var seen []Sample
	p.OnSample(func(s Sample) { seen = append(seen, s) })
	p.PollOnce(context.Background())

	snap, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, 64.0, snap.Battery)
	require.Len(t, seen, 1)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "ok", rec.events[0].LocationStatus)
	assert.Equal(t, "unavailable", rec.events[0].SpeedStatus)
	assert.Equal(t, 1.0, testutil.ToFloat64(pollsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(unknownReadings.WithLabelValues("speed", "unavailable")))
	assert.Equal(t, 0.0, testutil.ToFloat64(linkDownPolls))
}

func TestPollerCountsLinkDown(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	t.Cleanup(func() { ResetMetrics(nil) })

	link := newScriptedLink()
	link.down = true
	p := NewPoller(newTestAcquirer(link, &fakeClock{t: time.Unix(1000, 0)}), time.Second, nil, nil)
	p.PollOnce(context.Background())

	snap, ok := p.Latest()
	require.True(t, ok)
	assert.False(t, snap.Connected)
	assert.Equal(t, 1.0, testutil.ToFloat64(linkDownPolls))
	assert.Equal(t, 1.0, testutil.ToFloat64(unknownReadings.WithLabelValues("location", "link_down")))
}

func TestPollerStopsWithContext(t *testing.T) {
	link := newScriptedLink()
	p := NewPoller(newTestAcquirer(link, &fakeClock{t: time.Unix(1000, 0)}), 5*time.Millisecond, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		_, ok := p.Latest()
		return ok
	}, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
