package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogSink_EmitsPrefixedJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sink := NewSlogSink(logger)

	ev := NewEvent("dangerous_command", SeverityHigh, "2026-08-03T00:00:00Z", "10.0.0.0", map[string]any{"command": "curl|sh"})
	sink.Emit(context.Background(), ev)

	out := buf.String()
	assert.Contains(t, out, "SECURITY_EVENT:")
	assert.Contains(t, out, `"type":"dangerous_command"`)
	assert.Contains(t, out, `"severity":"high"`)
}

func TestNewEvent_GeneratesUniqueID(t *testing.T) {
	a := NewEvent("public_bind_attempt", SeverityCritical, "t", "", nil)
	b := NewEvent("public_bind_attempt", SeverityCritical, "t", "", nil)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestEvent_JSONShape(t *testing.T) {
	ev := NewEvent("identity_manipulation", SeverityMedium, "2026-08-03T00:00:00Z", "", map[string]any{"field": "impersonate"})
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "identity_manipulation", decoded["type"])
	_, hasSourceIP := decoded["sourceIp"]
	assert.False(t, hasSourceIP, "empty sourceIp should be omitted")
}

func TestNopSink_DoesNothing(t *testing.T) {
	assert.NotPanics(t, func() {
		NopSink{}.Emit(context.Background(), NewEvent("x", SeverityLow, "t", "", nil))
	})
}

func TestMultiSink_FansOutToAll(t *testing.T) {
	var bufA, bufB bytes.Buffer
	a := NewSlogSink(slog.New(slog.NewTextHandler(&bufA, nil)))
	b := NewSlogSink(slog.New(slog.NewTextHandler(&bufB, nil)))
	m := MultiSink{Sinks: []Sink{a, b, nil}}

	m.Emit(context.Background(), NewEvent("request_rate_spike", SeverityMedium, "t", "", nil))

	assert.True(t, strings.Contains(bufA.String(), "SECURITY_EVENT:"))
	assert.True(t, strings.Contains(bufB.String(), "SECURITY_EVENT:"))
}
