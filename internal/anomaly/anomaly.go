// Package anomaly tracks per-IP and process-wide behavioral counters and
// fires security events when they cross a threshold: auth-failure bursts,
// request-rate spikes, abnormal write volume, and caller-supplied custom
// anomalies. State lives in a single process-wide Detector guarded by a
// mutex, with sliding windows read off an injectable clock so tests can
// advance time deterministically.
package anomaly

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/openclaw/sentinel/internal/audit"
	"github.com/openclaw/sentinel/internal/redact"
	"github.com/openclaw/sentinel/internal/webhook"
)

// Config tunes a Detector's thresholds and wiring.
type Config struct {
	AuthFailureThreshold int
	AuthFailureWindow    time.Duration
	RequestRateThreshold int
	RequestRateWindow    time.Duration
	WriteVolumeThreshold int
	WriteVolumeWindow    time.Duration
	BlockDuration        time.Duration
	EnableIPBlocking     bool
	MaxTrackedIPs        int

	Sink       audit.Sink
	Dispatcher *webhook.Dispatcher
	Now        func() time.Time
}

func (c *Config) setDefaults() {
	if c.AuthFailureThreshold <= 0 {
		c.AuthFailureThreshold = 10
	}
	if c.AuthFailureWindow <= 0 {
		c.AuthFailureWindow = 60 * time.Second
	}
	if c.RequestRateThreshold <= 0 {
		c.RequestRateThreshold = 100
	}
	if c.RequestRateWindow <= 0 {
		c.RequestRateWindow = time.Second
	}
	if c.WriteVolumeThreshold <= 0 {
		c.WriteVolumeThreshold = 1000
	}
	if c.WriteVolumeWindow <= 0 {
		c.WriteVolumeWindow = 60 * time.Second
	}
	if c.BlockDuration <= 0 {
		c.BlockDuration = 5 * time.Minute
	}
	if c.MaxTrackedIPs <= 0 {
		c.MaxTrackedIPs = 10000
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now() }
	}
	if c.Sink == nil {
		c.Sink = audit.NopSink{}
	}
}

// Event is a caller-supplied anomaly, timestamped by RecordAnomaly.
type Event struct {
	Type     string
	SourceIP string
	Severity audit.Severity
	Details  map[string]any
}

// Detector is a single process-wide instance with mutable, mutex-guarded
// state.
type Detector struct {
	mu sync.Mutex

	cfg Config

	authFailures *lru.Cache[string, []time.Time]
	requestTimes *lru.Cache[string, []time.Time]
	writeTimes   []time.Time
	blockedIPs   *lru.Cache[string, time.Time]
}

var (
	defaultMu       sync.Mutex
	defaultDetector *Detector
)

// Default returns the process-wide Detector, constructing one with default
// configuration on first use.
func Default() *Detector {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultDetector == nil {
		defaultDetector = newDetector(Config{})
	}
	return defaultDetector
}

// Init constructs a fresh Detector from cfg and installs it as the
// process-wide default, replacing whatever was there before. Tests call
// Init to reset global state between cases.
func Init(cfg Config) *Detector {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultDetector = newDetector(cfg)
	return defaultDetector
}

func newDetector(cfg Config) *Detector {
	cfg.setDefaults()
	authFailures, _ := lru.New[string, []time.Time](cfg.MaxTrackedIPs)
	requestTimes, _ := lru.New[string, []time.Time](cfg.MaxTrackedIPs)
	blockedIPs, _ := lru.New[string, time.Time](cfg.MaxTrackedIPs)
	return &Detector{
		cfg:          cfg,
		authFailures: authFailures,
		requestTimes: requestTimes,
		blockedIPs:   blockedIPs,
	}
}

// evictExpired drops timestamps older than now-window from ts, returning
// the surviving slice. Eviction is O(k) in the number of expired entries:
// ts is append-ordered, so expired entries are always a prefix.
func evictExpired(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append([]time.Time(nil), ts[i:]...)
}

// RecordAuthFailure appends a failure timestamp for ip, evicts expired
// entries, and fires auth_failure_burst at high severity when the
// threshold is reached — then clears that IP's list to prevent immediate
// re-triggering.
func (d *Detector) RecordAuthFailure(ip string) {
	d.mu.Lock()
	now := d.cfg.Now()
	ts, _ := d.authFailures.Get(ip)
	ts = evictExpired(ts, now, d.cfg.AuthFailureWindow)
	ts = append(ts, now)

	fire := len(ts) >= d.cfg.AuthFailureThreshold
	if fire {
		d.authFailures.Remove(ip)
	} else {
		d.authFailures.Add(ip, ts)
	}
	d.mu.Unlock()

	if fire {
		d.fire(context.Background(), "auth_failure_burst", audit.SeverityHigh, ip, map[string]any{
			"count": len(ts),
		})
	}
}

// RecordRequest follows the same pattern as RecordAuthFailure over a 1s
// window, firing request_rate_spike at medium severity. Unlike auth
// failures, the list is NOT cleared on fire: a sustained rate-limit
// condition is expected to keep firing.
func (d *Detector) RecordRequest(ip string) {
	d.mu.Lock()
	now := d.cfg.Now()
	ts, _ := d.requestTimes.Get(ip)
	ts = evictExpired(ts, now, d.cfg.RequestRateWindow)
	ts = append(ts, now)
	d.requestTimes.Add(ip, ts)
	fire := len(ts) >= d.cfg.RequestRateThreshold
	d.mu.Unlock()

	if fire {
		d.fire(context.Background(), "request_rate_spike", audit.SeverityMedium, ip, map[string]any{
			"count": len(ts),
		})
	}
}

// RecordWrite tracks a single process-wide sliding window, firing
// abnormal_write_volume at high severity on threshold breach.
func (d *Detector) RecordWrite() {
	d.mu.Lock()
	now := d.cfg.Now()
	d.writeTimes = evictExpired(d.writeTimes, now, d.cfg.WriteVolumeWindow)
	d.writeTimes = append(d.writeTimes, now)
	fire := len(d.writeTimes) >= d.cfg.WriteVolumeThreshold
	count := len(d.writeTimes)
	d.mu.Unlock()

	if fire {
		d.fire(context.Background(), "abnormal_write_volume", audit.SeverityHigh, "", map[string]any{
			"count": count,
		})
	}
}

// RecordAnomaly emits a caller-supplied event as-is.
func (d *Detector) RecordAnomaly(ev Event) {
	d.fire(context.Background(), ev.Type, ev.Severity, ev.SourceIP, ev.Details)
}

// IsIPBlocked reports whether ip has an unblock time still in the future,
// lazily deleting expired entries.
func (d *Detector) IsIPBlocked(ip string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	unblockAt, ok := d.blockedIPs.Get(ip)
	if !ok {
		return false
	}
	now := d.cfg.Now()
	if now.After(unblockAt) {
		d.blockedIPs.Remove(ip)
		return false
	}
	return true
}

// blockIP records an unblock time of now+BlockDuration, iff IP blocking is
// enabled.
func (d *Detector) blockIP(ip string) {
	if !d.cfg.EnableIPBlocking || ip == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blockedIPs.Add(ip, d.cfg.Now().Add(d.cfg.BlockDuration))
}

// Clear resets all state. Intended for tests.
func (d *Detector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.authFailures.Purge()
	d.requestTimes.Purge()
	d.blockedIPs.Purge()
	d.writeTimes = nil
}

// fire performs the three steps every emitted event goes through: (a) warn
// log with IP-redacted details, (b) optional IP block for severity >= high
// with a source IP, (c) best-effort webhook POST with the same redacted
// payload.
func (d *Detector) fire(ctx context.Context, typ string, severity audit.Severity, sourceIP string, details map[string]any) {
	redactedIP := redactSourceIP(sourceIP)
	redactedDetails, _ := redact.Default().RedactPayloadDeep(details, 10).(map[string]any)
	now := d.cfg.Now().UTC().Format(time.RFC3339)

	d.cfg.Sink.Emit(ctx, audit.NewEvent(typ, severity, now, redactedIP, redactedDetails))

	if sourceIP != "" && severityRank(severity) >= severityRank(audit.SeverityHigh) {
		d.blockIP(sourceIP)
	}

	if d.cfg.Dispatcher != nil {
		var ipPtr *string
		if redactedIP != "" {
			ipPtr = &redactedIP
		}
		d.cfg.Dispatcher.Dispatch(ctx, webhook.Payload{
			Event:     "SECURITY_EVENT",
			Type:      typ,
			Timestamp: now,
			SourceIP:  ipPtr,
			Severity:  string(severity),
			Details:   redactedDetails,
		})
	}
}

func severityRank(s audit.Severity) int {
	switch s {
	case audit.SeverityDebug:
		return 0
	case audit.SeverityLow:
		return 1
	case audit.SeverityMedium:
		return 2
	case audit.SeverityHigh:
		return 3
	case audit.SeverityCritical:
		return 4
	default:
		return -1
	}
}

// redactSourceIP keeps only the first IPv4 octet or the first IPv6 segment.
func redactSourceIP(ip string) string {
	if ip == "" {
		return ""
	}
	if strings.Contains(ip, ":") {
		segments := strings.Split(ip, ":")
		if len(segments) > 0 && segments[0] != "" {
			return segments[0] + ":xxxx:xxxx:xxxx:xxxx"
		}
		return "xxxx"
	}
	octets := strings.Split(ip, ".")
	if len(octets) != 4 {
		return "xxx.xxx.xxx.xxx"
	}
	if _, err := strconv.Atoi(octets[0]); err != nil {
		return "xxx.xxx.xxx.xxx"
	}
	return octets[0] + ".xxx.xxx.xxx"
}
