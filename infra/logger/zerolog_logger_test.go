package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Warnw("warn", map[string]any{"check": "distance"})
	l.Errorf("error")
}

func TestZerologLoggerFields(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "safety")
	l.Infof("dropped")
	l.Warnw("mission rejected", map[string]any{"check": "battery", "required": 40.0})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "safety", rec["component"])
	assert.Equal(t, "battery", rec["check"])
	assert.Equal(t, "warn", rec["level"])
}
