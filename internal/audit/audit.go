// Package audit provides the security-event sink the rest of the core logs
// denials, violations, and anomalies through. There is no persistence here
// and no tamper-evidence chain: the core does not own a log store, it only
// emits to whatever slog.Logger the host wires up.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
)

// Severity is the anomaly/event severity scale, low to critical.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is a single security-relevant occurrence: a policy denial, a
// stripped identity field, an anomaly, or similar. SourceIP and Details are
// expected to already be redacted by the caller before Emit is invoked.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Severity  Severity       `json:"severity"`
	Timestamp string         `json:"timestamp"`
	SourceIP  string         `json:"sourceIp,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// NewEvent stamps a new Event with a generated ID. now is passed in by the
// caller (typically time.Now().UTC().Format(time.RFC3339)) so audit stays
// free of direct time reads, matching the rest of the security core.
func NewEvent(typ string, severity Severity, timestamp string, sourceIP string, details map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Severity:  severity,
		Timestamp: timestamp,
		SourceIP:  sourceIP,
		Details:   details,
	}
}

// Sink is anything that can accept a security Event. Implementations must
// be best-effort: a Sink failure is logged and swallowed by the caller, and
// must never cause a security decision to flip.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// SlogSink is the default production Sink: it writes a single log line
// prefixed "SECURITY_EVENT:" followed by the JSON-encoded event, at warn
// level.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink wraps logger. A nil logger falls back to slog.Default().
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Emit(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.WarnContext(ctx, "audit: failed to marshal security event", "error", err, "type", ev.Type)
		return
	}
	s.logger.WarnContext(ctx, "SECURITY_EVENT:"+string(payload))
}

// NopSink discards every event. Useful for tests and for components that
// run without an audit sink wired in.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

// MultiSink fans a single Emit out to every wrapped sink.
type MultiSink struct {
	Sinks []Sink
}

func (m MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m.Sinks {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}
