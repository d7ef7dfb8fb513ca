package anomaly

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/sentinel/internal/audit"
)

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Emit(_ context.Context, ev audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *recordingSink) last() audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	now := start
	get := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}
	return get, advance
}

func TestRecordAuthFailure_FiresExactlyAtThreshold(t *testing.T) {
	sink := &recordingSink{}
	clock, _ := fixedClock(time.Unix(0, 0))
	d := Init(Config{AuthFailureThreshold: 3, AuthFailureWindow: time.Minute, Sink: sink, Now: clock})

	d.RecordAuthFailure("203.0.113.1")
	assert.Equal(t, 0, sink.count())
	d.RecordAuthFailure("203.0.113.1")
	assert.Equal(t, 0, sink.count())
	d.RecordAuthFailure("203.0.113.1")
	require.Equal(t, 1, sink.count())
	assert.Equal(t, "auth_failure_burst", sink.last().Type)
}

func TestRecordAuthFailure_ClearsAfterFiring(t *testing.T) {
	sink := &recordingSink{}
	clock, _ := fixedClock(time.Unix(0, 0))
	d := Init(Config{AuthFailureThreshold: 2, AuthFailureWindow: time.Minute, Sink: sink, Now: clock})

	d.RecordAuthFailure("203.0.113.1")
	d.RecordAuthFailure("203.0.113.1")
	require.Equal(t, 1, sink.count())

	d.RecordAuthFailure("203.0.113.1")
	assert.Equal(t, 1, sink.count(), "list was cleared so a single new failure should not re-fire")
}

func TestRecordAuthFailure_WindowEviction(t *testing.T) {
	sink := &recordingSink{}
	clock, advance := fixedClock(time.Unix(0, 0))
	d := Init(Config{AuthFailureThreshold: 2, AuthFailureWindow: time.Minute, Sink: sink, Now: clock})

	d.RecordAuthFailure("203.0.113.1")
	advance(2 * time.Minute)
	d.RecordAuthFailure("203.0.113.1")
	assert.Equal(t, 0, sink.count(), "first failure should have expired out of the window")
}

func TestRecordRequest_DoesNotClearOnFire(t *testing.T) {
	sink := &recordingSink{}
	clock, _ := fixedClock(time.Unix(0, 0))
	d := Init(Config{RequestRateThreshold: 2, RequestRateWindow: time.Second, Sink: sink, Now: clock})

	d.RecordRequest("203.0.113.1")
	d.RecordRequest("203.0.113.1")
	require.Equal(t, 1, sink.count())

	d.RecordRequest("203.0.113.1")
	assert.Equal(t, 2, sink.count(), "request spike should keep firing while condition persists")
}

func TestRecordWrite_ProcessWideCounter(t *testing.T) {
	sink := &recordingSink{}
	clock, _ := fixedClock(time.Unix(0, 0))
	d := Init(Config{WriteVolumeThreshold: 3, WriteVolumeWindow: time.Minute, Sink: sink, Now: clock})

	d.RecordWrite()
	d.RecordWrite()
	assert.Equal(t, 0, sink.count())
	d.RecordWrite()
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, "abnormal_write_volume", sink.last().Type)
}

func TestRecordAnomaly_PassesThrough(t *testing.T) {
	sink := &recordingSink{}
	d := Init(Config{Sink: sink})
	d.RecordAnomaly(Event{Type: "identity_manipulation", Severity: audit.SeverityMedium, Details: map[string]any{"field": "impersonate"}})
	require.Equal(t, 1, sink.count())
	assert.Equal(t, "identity_manipulation", sink.last().Type)
}

func TestIsIPBlocked_BlocksOnHighSeverityWithSourceIP(t *testing.T) {
	sink := &recordingSink{}
	clock, advance := fixedClock(time.Unix(0, 0))
	d := Init(Config{
		AuthFailureThreshold: 1,
		AuthFailureWindow:    time.Minute,
		EnableIPBlocking:     true,
		BlockDuration:        time.Minute,
		Sink:                 sink,
		Now:                  clock,
	})

	assert.False(t, d.IsIPBlocked("203.0.113.1"))
	d.RecordAuthFailure("203.0.113.1")
	assert.True(t, d.IsIPBlocked("203.0.113.1"))

	advance(2 * time.Minute)
	assert.False(t, d.IsIPBlocked("203.0.113.1"), "block should have expired")
}

func TestIsIPBlocked_NoBlockingWithoutOptIn(t *testing.T) {
	sink := &recordingSink{}
	clock, _ := fixedClock(time.Unix(0, 0))
	d := Init(Config{AuthFailureThreshold: 1, AuthFailureWindow: time.Minute, EnableIPBlocking: false, Sink: sink, Now: clock})
	d.RecordAuthFailure("203.0.113.1")
	assert.False(t, d.IsIPBlocked("203.0.113.1"))
}

func TestClear_ResetsAllState(t *testing.T) {
	sink := &recordingSink{}
	clock, _ := fixedClock(time.Unix(0, 0))
	d := Init(Config{AuthFailureThreshold: 1, EnableIPBlocking: true, Sink: sink, Now: clock})
	d.RecordAuthFailure("203.0.113.1")
	require.True(t, d.IsIPBlocked("203.0.113.1"))

	d.Clear()
	assert.False(t, d.IsIPBlocked("203.0.113.1"))
}

func TestFire_RedactsSourceIPInEmittedEvent(t *testing.T) {
	sink := &recordingSink{}
	clock, _ := fixedClock(time.Unix(0, 0))
	d := Init(Config{AuthFailureThreshold: 1, Sink: sink, Now: clock})
	d.RecordAuthFailure("203.0.113.42")
	assert.Equal(t, "203.xxx.xxx.xxx", sink.last().SourceIP)
}

func TestFire_RedactsIPv6SourceIP(t *testing.T) {
	sink := &recordingSink{}
	clock, _ := fixedClock(time.Unix(0, 0))
	d := Init(Config{AuthFailureThreshold: 1, Sink: sink, Now: clock})
	d.RecordAuthFailure("2001:db8::dead:beef")
	assert.Equal(t, "2001:xxxx:xxxx:xxxx:xxxx", sink.last().SourceIP)
}

func TestDefault_ReturnsSameInstance(t *testing.T) {
	Init(Config{})
	a := Default()
	b := Default()
	assert.Same(t, a, b)
}

func TestRecordAuthFailure_ConcurrentCallsAreRaceClean(t *testing.T) {
	sink := &recordingSink{}
	d := Init(Config{AuthFailureThreshold: 1000000, Sink: sink})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(ip string) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				d.RecordAuthFailure(ip)
			}
		}("203.0.113." + string(rune('0'+i%10)))
	}
	wg.Wait()
}
