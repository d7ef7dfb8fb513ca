// Package identityguard sanitizes inbound request payloads against
// impersonation fields and resolves which identity a request should be
// attributed to.
package identityguard

import (
	"context"

	"github.com/openclaw/sentinel/internal/audit"
)

// forbiddenFields are stripped from every payload, unconditionally.
var forbiddenFields = map[string]struct{}{
	"impersonate":        {},
	"impersonate_as":     {},
	"impersonateAs":      {},
	"post_as":            {},
	"postAs":             {},
	"send_as":            {},
	"sendAs":             {},
	"as_user":            {},
	"asUser":             {},
	"from_user":          {},
	"fromUser":           {},
	"from_id":            {},
	"fromId":             {},
	"actor_id":           {},
	"actorId":            {},
	"override_identity": {},
	"overrideIdentity":  {},
	"spoof":             {},
	"spoof_as":          {},
}

// monitoredFields are logged at debug when present but never stripped.
var monitoredFields = map[string]struct{}{
	"agent_id":     {},
	"agentId":      {},
	"display_name": {},
	"displayName":  {},
	"actor":        {},
}

// StripResult describes the outcome of a Strip call.
type StripResult struct {
	Sanitized          bool
	StrippedFields     []string
	OriginalFieldCount int
}

// Strip returns a shallow copy of payload with every forbidden key removed.
// When silent is false, an audit event is emitted at warn severity for the
// removal of any forbidden field, and at debug severity for the presence of
// any monitored field. Strip is idempotent: Strip(Strip(p).output).StrippedFields
// is always empty.
func Strip(ctx context.Context, sink audit.Sink, now string, payload map[string]any, silent bool) (map[string]any, StripResult) {
	out := make(map[string]any, len(payload))
	var stripped []string
	var monitored []string

	for k, v := range payload {
		if _, forbidden := forbiddenFields[k]; forbidden {
			stripped = append(stripped, k)
			continue
		}
		if _, watched := monitoredFields[k]; watched {
			monitored = append(monitored, k)
		}
		out[k] = v
	}

	result := StripResult{
		Sanitized:          len(stripped) > 0,
		StrippedFields:     stripped,
		OriginalFieldCount: len(payload),
	}

	if !silent && sink != nil {
		if len(stripped) > 0 {
			sink.Emit(ctx, audit.NewEvent("identity_manipulation", audit.SeverityMedium, now, "", map[string]any{
				"stripped_fields": stripped,
			}))
		}
		for _, f := range monitored {
			sink.Emit(ctx, audit.NewEvent("identity_manipulation", audit.SeverityDebug, now, "", map[string]any{
				"monitored_field": f,
			}))
		}
	}

	return out, result
}

// ContainsForbidden reports whether payload carries any forbidden field,
// without mutating it.
func ContainsForbidden(payload map[string]any) (bool, []string) {
	var fields []string
	for k := range payload {
		if _, ok := forbiddenFields[k]; ok {
			fields = append(fields, k)
		}
	}
	return len(fields) > 0, fields
}

// DeepStrip recursively strips forbidden keys from any combination of
// map[string]any and []any, down to maxDepth levels. Values beyond maxDepth
// are returned unmodified, matching the redaction package's depth-bound
// convention.
func DeepStrip(payload any, maxDepth int) any {
	return deepStrip(payload, 0, maxDepth)
}

func deepStrip(v any, depth, maxDepth int) any {
	if depth >= maxDepth {
		return v
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if _, forbidden := forbiddenFields[k]; forbidden {
				continue
			}
			out[k] = deepStrip(val, depth+1, maxDepth)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepStrip(item, depth+1, maxDepth)
		}
		return out
	default:
		return v
	}
}

// Source identifies where a resolved identity came from.
type Source string

const (
	SourceSession Source = "session"
	SourceBot     Source = "bot"
	SourceNone    Source = "none"
)

// Resolution is the outcome of ValidateSource.
type Resolution struct {
	Valid            bool
	ResolvedIdentity string
	Source           Source
	Mismatch         bool
}

// ValidateSource resolves a trusted identity with priority (1) session,
// (2) bot, (3) none. A request-supplied user_id that disagrees with the
// session is overridden by the session identity and flagged as a mismatch.
// A request-supplied identity with no session or bot identity backing it is
// rejected outright.
func ValidateSource(sessionUserID, requestUserID, botIdentity string) Resolution {
	if sessionUserID != "" {
		return Resolution{
			Valid:            true,
			ResolvedIdentity: sessionUserID,
			Source:           SourceSession,
			Mismatch:         requestUserID != "" && requestUserID != sessionUserID,
		}
	}
	if botIdentity != "" {
		return Resolution{Valid: true, ResolvedIdentity: botIdentity, Source: SourceBot}
	}
	if requestUserID != "" {
		return Resolution{Valid: false, Source: SourceNone}
	}
	return Resolution{Valid: false, Source: SourceNone}
}
