package telemetry

import (
	"context"
	"sync"
	"time"
)

// scriptedLink replays queued messages per kind, then falls back to a sticky
// message, then to ErrNoMessage.
type scriptedLink struct {
	mu     sync.Mutex
	down   bool
	queue  map[MessageKind][]Message
	sticky map[MessageKind]Message
	calls  map[MessageKind]int
}

func newScriptedLink() *scriptedLink {
	return &scriptedLink{
		queue:  map[MessageKind][]Message{},
		sticky: map[MessageKind]Message{},
		calls:  map[MessageKind]int{},
	}
}

func (l *scriptedLink) push(m Message) {
	l.mu.Lock()
	l.queue[m.Kind] = append(l.queue[m.Kind], m)
	l.mu.Unlock()
}

func (l *scriptedLink) always(m Message) {
	l.mu.Lock()
	l.sticky[m.Kind] = m
	l.mu.Unlock()
}

func (l *scriptedLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.down
}

func (l *scriptedLink) Receive(_ context.Context, kind MessageKind) (Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[kind]++
	if l.down {
		return Message{}, ErrLinkDown
	}
	if q := l.queue[kind]; len(q) > 0 {
		l.queue[kind] = q[1:]
		return q[0], nil
	}
	if m, ok := l.sticky[kind]; ok {
		return m, nil
	}
	return Message{}, ErrNoMessage
}

func (l *scriptedLink) callCount(kind MessageKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[kind]
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func instantRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		Attempts: attempts,
		Delay:    time.Second,
		Sleep:    func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }
