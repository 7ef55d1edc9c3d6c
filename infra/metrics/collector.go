package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/bloodlift/core/events"
	coremetrics "github.com/kilianp07/bloodlift/core/metrics"
	"github.com/kilianp07/bloodlift/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records queue and
// status snapshots on sinks that support them. It stops when the context is
// canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[events.Event], sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				collect(sink, ev, time.Now())
			}
		}
	}()
}

func collect(sink coremetrics.MetricsSink, ev events.Event, now time.Time) {
	switch e := ev.(type) {
	case events.QueueSnapshot:
		if r, ok := sink.(coremetrics.QueueRecorder); ok {
			qe := coremetrics.QueueEvent{Length: len(e.Missions), Time: now}
			if len(e.Missions) > 0 {
				qe.TopScore = e.Missions[0].PriorityScore
			}
			_ = r.RecordQueue(qe)
		}
	case events.StatusSnapshot:
		if r, ok := sink.(coremetrics.StatusRecorder); ok {
			_ = r.RecordStatus(coremetrics.StatusEvent{
				Battery:   e.Status.Battery,
				Available: e.Status.Available,
				Connected: e.Status.Connected,
				Phase:     string(e.Status.Phase),
				Time:      now,
			})
		}
	}
}
