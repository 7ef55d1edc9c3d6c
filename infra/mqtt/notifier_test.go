package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bloodlift/core/events"
	"github.com/kilianp07/bloodlift/core/model"
	"github.com/kilianp07/bloodlift/core/status"
	"github.com/kilianp07/bloodlift/internal/eventbus"
)

func TestNotifierTopicsAndRetain(t *testing.T) {
	mc := &mockClient{}
	defer useMock(mc)()
	n, err := NewNotifier(Config{Broker: "tcp://localhost:1883", LWTTopic: "lwt"}, NotifyConfig{
		Enabled: true,
		Retain:  true,
		Topics:  map[string]string{"drone_status": "hospital/drone/status"},
	})
	require.NoError(t, err)
	assert.Equal(t, "bloodlift-notify", mc.opts.ClientID)
	assert.False(t, mc.opts.WillEnabled)

	require.NoError(t, n.Publish(events.StatusSnapshot{Status: status.DroneStatus{Status: "Ready"}}))
	require.NoError(t, n.Publish(events.QueueSnapshot{Missions: []model.MissionCandidate{{PriorityScore: 4}}}))

	require.Len(t, mc.published, 2)
	assert.Equal(t, "hospital/drone/status", mc.published[0].topic)
	assert.True(t, mc.published[0].retained)
	assert.Equal(t, "bloodlift/drone-1/events/mission_queue", mc.published[1].topic)

	var q events.QueueSnapshot
	require.NoError(t, json.Unmarshal(mc.published[1].payload, &q))
	require.Len(t, q.Missions, 1)
	assert.Equal(t, 4.0, q.Missions[0].PriorityScore)
}

func TestNotifierRunForwardsBusEvents(t *testing.T) {
	mc := &mockClient{}
	defer useMock(mc)()
	n, err := NewNotifier(Config{Broker: "tcp://localhost:1883"}, NotifyConfig{Enabled: true})
	require.NoError(t, err)

	bus := eventbus.NewTyped[events.Event]()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx, bus)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return bus.Publish(events.PhaseChanged{MissionID: "m1", Phase: model.PhaseArming}) == 1
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		mc.mu.Lock()
		defer mc.mu.Unlock()
		return len(mc.published) >= 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	mc.mu.Lock()
	defer mc.mu.Unlock()
	assert.Equal(t, "bloodlift/drone-1/events/dispatch_phase", mc.published[0].topic)
	assert.True(t, mc.disconnect)
}
