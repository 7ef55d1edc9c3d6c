package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremon "github.com/kilianp07/bloodlift/core/monitoring"
)

func TestNewSentryMonitorDisabled(t *testing.T) {
	m, err := NewSentryMonitor(Config{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestNewSentryMonitorInvalidDSN(t *testing.T) {
	_, err := NewSentryMonitor(Config{DSN: "://nope"})
	assert.Error(t, err)
}

func TestSentryMonitorSendsEvents(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/api/1/") {
			hits.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dsn := "http://public@" + strings.TrimPrefix(srv.URL, "http://") + "/1"
	m, err := NewSentryMonitor(Config{DSN: dsn, Environment: "test"})
	require.NoError(t, err)

	m.CaptureException(errors.New("goto rejected"), map[string]string{"module": "mqtt"})
	m.CapturePanic("boom", map[string]string{"component": "dispatcher"})
	m.Flush(2 * time.Second)
	assert.GreaterOrEqual(t, hits.Load(), int32(2))
}
