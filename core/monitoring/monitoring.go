// Package monitoring forwards failures to an error tracking backend. The
// process wide monitor defaults to a no-op and is replaced at startup.
package monitoring

import (
	"fmt"
	"sync"
	"time"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	// CapturePanic records a value obtained from recover().
	CapturePanic(r any, tags map[string]string)
	Flush(timeout time.Duration)
}

// NopMonitor discards every report.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) CapturePanic(any, map[string]string)       {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init sets the global monitor implementation. A nil m restores the no-op.
func Init(m Monitor) {
	mu.Lock()
	defer mu.Unlock()
	if m == nil {
		m = NopMonitor{}
	}
	current = m
}

func get() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	get().CaptureException(err, tags)
}

// CapturePanic records a recovered panic value and returns it as an error.
//
//	defer func() {
//	    if r := recover(); r != nil {
//	        err = monitoring.CapturePanic(r, tags)
//	    }
//	}()
func CapturePanic(r any, tags map[string]string) error {
	get().CapturePanic(r, tags)
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}

// Flush flushes buffered events.
func Flush(d time.Duration) {
	get().Flush(d)
}
