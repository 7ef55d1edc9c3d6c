package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/bloodlift/core/logger"
	"github.com/kilianp07/bloodlift/core/metrics"
	"github.com/kilianp07/bloodlift/core/model"
)

// Sampler produces full telemetry polls. *Acquirer implements it.
type Sampler interface {
	Sample(ctx context.Context) Sample
}

// Poller samples telemetry in the background and publishes the latest
// snapshot, so request handlers never block on the link.
type Poller struct {
	src      Sampler
	interval time.Duration
	rec      metrics.TelemetryRecorder
	log      logger.Logger

	latest atomic.Pointer[model.TelemetrySnapshot]

	mu   sync.Mutex
	subs []func(Sample)
}

// NewPoller creates a Poller. A nil recorder disables metric export.
func NewPoller(src Sampler, interval time.Duration, rec metrics.TelemetryRecorder, log logger.Logger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if rec == nil {
		rec = metrics.NopSink{}
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Poller{src: src, interval: interval, rec: rec, log: log}
}

// OnSample registers fn to be called after every poll.
func (p *Poller) OnSample(fn func(Sample)) {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

// Latest returns the most recent snapshot. ok is false before the first poll.
func (p *Poller) Latest() (model.TelemetrySnapshot, bool) {
	s := p.latest.Load()
	if s == nil {
		return model.TelemetrySnapshot{}, false
	}
	return *s, true
}

// Start polls immediately and then every interval until ctx is done.
func (p *Poller) Start(ctx context.Context) {
	p.PollOnce(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.PollOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// PollOnce runs a single poll and publishes the result.
func (p *Poller) PollOnce(ctx context.Context) Sample {
	start := time.Now()
	s := p.src.Sample(ctx)
	elapsed := time.Since(start)

	pollsTotal.Inc()
	pollLatency.Observe(elapsed.Seconds())
	lastPoll.SetToCurrentTime()
	if !s.Snapshot.Connected {
		linkDownPolls.Inc()
	}
	countUnknown("location", s.Location.Valid, s.Location.Status)
	countUnknown("battery", s.Battery.Valid && s.Battery.Status != StatusAssumed, s.Battery.Status)
	countUnknown("speed", s.Speed.Status == StatusOK, s.Speed.Status)

	snap := s.Snapshot
	p.latest.Store(&snap)

	ev := metrics.TelemetryEvent{
		Snapshot:       snap,
		LocationStatus: s.Location.Status.String(),
		BatteryStatus:  s.Battery.Status.String(),
		SpeedStatus:    s.Speed.Status.String(),
		Latency:        elapsed,
		Time:           snap.SampledAt,
	}
	if err := p.rec.RecordTelemetry(ev); err != nil {
		p.log.Errorf("telemetry metrics error: %v", err)
	}

	p.mu.Lock()
	subs := append([]func(Sample){}, p.subs...)
	p.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
	return s
}

func countUnknown(reading string, ok bool, st Status) {
	if !ok {
		unknownReadings.WithLabelValues(reading, st.String()).Inc()
	}
}
