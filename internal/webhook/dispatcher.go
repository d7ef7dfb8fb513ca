// Package webhook sends the anomaly detector's security events to a single
// best-effort HTTP endpoint: one POST per event, a fixed timeout, no
// batching, no retries. A failed delivery is logged and swallowed; it never
// flips a security decision.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const defaultTimeout = 5 * time.Second

// Dispatcher posts a JSON payload to a single configured URL.
type Dispatcher struct {
	url     string
	client  *http.Client
	logger  *slog.Logger
}

// NewDispatcher builds a Dispatcher bound to url. An empty url makes every
// Dispatch call a no-op, so callers can construct one unconditionally.
func NewDispatcher(url string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger,
	}
}

// Payload is the exact JSON shape posted to the configured webhook URL.
type Payload struct {
	Event     string         `json:"event"`
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	SourceIP  *string        `json:"sourceIp"`
	Severity  string         `json:"severity"`
	Details   map[string]any `json:"details"`
}

// Dispatch POSTs payload to the configured URL in a new goroutine with a
// 5s timeout, if a URL is configured. Delivery failures are logged and
// never propagated to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, payload Payload) {
	if d == nil || d.url == "" {
		return
	}
	go d.send(ctx, payload)
}

func (d *Dispatcher) send(ctx context.Context, payload Payload) {
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Warn("webhook: failed to marshal payload", "error", err, "type", payload.Type)
		return
	}

	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		d.logger.Warn("webhook: failed to build request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("webhook: delivery failed", "error", err, "url", d.url)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.logger.Warn("webhook: non-2xx response", "status", resp.StatusCode, "url", d.url)
	}
}
