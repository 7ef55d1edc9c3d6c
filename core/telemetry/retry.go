package telemetry

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds how long a single read may take: Attempts tries, each
// limited to Timeout, separated by Delay. Sleep is injectable so tests can
// run without real delays.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
	Sleep    func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy mirrors the flight controller defaults: three attempts
// of 500ms separated by 200ms, bounding a read to 1.9s. Location adds 500ms
// per fallback kind, so a full Sample on a silent link takes about 7.2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 200 * time.Millisecond, Timeout: 500 * time.Millisecond}
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do calls fn until it succeeds, the attempts are exhausted, the link goes
// down or ctx is done. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	var last error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := sleep(ctx, p.Delay); err != nil {
				return errors.Join(last, err)
			}
		}
		actx, cancel := ctx, context.CancelFunc(func() {})
		if p.Timeout > 0 {
			actx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		last = fn(actx)
		cancel()
		if last == nil || errors.Is(last, ErrLinkDown) {
			return last
		}
		if ctx.Err() != nil {
			return errors.Join(last, ctx.Err())
		}
	}
	return last
}
