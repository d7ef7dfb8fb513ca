// Package bindguard gates a listener bind against public exposure,
// following the same textual, case-insensitive host classification the
// rest of the core's listener setup uses, with no DNS resolution at bind
// time.
package bindguard

import (
	"context"
	"fmt"
	"strings"

	"github.com/openclaw/sentinel/internal/audit"
	"github.com/openclaw/sentinel/internal/ipallow"
)

// BindContext carries everything a gate needs to decide whether a listen
// attempt should be admitted.
type BindContext struct {
	Host             string
	Env              map[string]string
	TLSEnabled       bool
	HasToken         bool
	HasPassword      bool
	HasTailscaleAuth bool
}

// Remediation is one actionable alternative offered alongside a denial.
type Remediation = string

// Decision is the outcome of Check.
type Decision struct {
	Allowed      bool
	Reason       string
	Remediations []string
}

// IsPublic classifies host. Loopback (127.0.0.0/8, ::1, ::ffff:127.*,
// literal "localhost") and Tailscale CGNAT (100.64.0.0/10) are not public;
// the wildcard binds (0.0.0.0, ::, [::]) are public; everything else is
// public. Classification is purely textual and case-insensitive.
func IsPublic(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	h = strings.TrimPrefix(h, "[")
	h = strings.TrimSuffix(h, "]")
	if h == "" {
		return false
	}

	if h == "0.0.0.0" || h == "::" {
		return true
	}
	if h == "localhost" || h == "::1" {
		return false
	}
	if strings.HasPrefix(h, "127.") {
		return false
	}
	if strings.HasPrefix(h, "::ffff:127.") {
		return false
	}
	if isTailscaleCGNAT(h) {
		return false
	}
	return true
}

// isTailscaleCGNAT reports whether h falls inside 100.64.0.0/10.
func isTailscaleCGNAT(h string) bool {
	list, err := ipallow.Parse("100.64.0.0/10")
	if err != nil {
		return false
	}
	return list.Matches(h)
}

type gate struct {
	name        string
	check       func(BindContext) bool
	reason      string
	remediation []string
}

// gates are evaluated in order; every gate must pass for a non-loopback
// bind to be admitted.
var gates = []gate{
	{
		name: "G1",
		check: func(c BindContext) bool {
			return strings.EqualFold(strings.TrimSpace(c.Env["ALLOW_PUBLIC_BIND"]), "true")
		},
		reason: "public bind requires explicit opt-in",
		remediation: []string{
			`set ALLOW_PUBLIC_BIND=true to acknowledge the exposure`,
			`bind to a loopback address (127.0.0.1 or localhost) instead`,
		},
	},
	{
		name: "G2",
		check: func(c BindContext) bool {
			list, err := ipallow.Parse(c.Env["PUBLIC_BIND_IP_ALLOWLIST"])
			return err == nil && list.Len() > 0
		},
		reason: "public bind requires a non-empty PUBLIC_BIND_IP_ALLOWLIST",
		remediation: []string{
			`set PUBLIC_BIND_IP_ALLOWLIST to a comma-separated list of IPs/CIDRs permitted to connect`,
			`tunnel over SSH instead of exposing the port directly`,
		},
	},
	{
		name: "G3",
		check: func(c BindContext) bool {
			return c.TLSEnabled
		},
		reason: "public bind requires TLS",
		remediation: []string{
			`enable TLS (server.tls.enabled=true with a cert_file/key_file pair)`,
			`put a TLS-terminating reverse proxy in front of this listener`,
		},
	},
	{
		name: "G4",
		check: func(c BindContext) bool {
			return c.HasToken || c.HasPassword || c.HasTailscaleAuth
		},
		reason: "public bind requires at least one authentication mechanism",
		remediation: []string{
			`configure a gateway token or password`,
			`join a Tailscale network and rely on its identity-aware auth`,
			`route through a private-network overlay instead of a public bind`,
		},
	},
}

// Check applies G0 followed by gates G1-G4 in order. G0 short-circuits: a
// non-public host is admitted unconditionally.
func Check(ctx BindContext) Decision {
	if !IsPublic(ctx.Host) {
		return Decision{Allowed: true}
	}

	var remediations []string
	for _, g := range gates {
		if !g.check(ctx) {
			remediations = append(remediations, g.remediation...)
			return Decision{
				Allowed:      false,
				Reason:       g.reason,
				Remediations: remediations,
			}
		}
	}
	return Decision{Allowed: true}
}

// Enforce raises a fatal, self-contained error when Check denies.
func Enforce(ctx BindContext) error {
	d := Check(ctx)
	if d.Allowed {
		return nil
	}
	return fmt.Errorf(
		"bindguard: refusing to bind %q: %s\nremediations:\n  - %s",
		ctx.Host, d.Reason, strings.Join(d.Remediations, "\n  - "),
	)
}

// LogAttempt emits a public_bind_attempt audit event regardless of outcome.
func LogAttempt(ctx context.Context, sink audit.Sink, now string, bindCtx BindContext, d Decision) {
	if sink == nil {
		return
	}
	severity := audit.SeverityLow
	if !d.Allowed {
		severity = audit.SeverityHigh
	}
	sink.Emit(ctx, audit.NewEvent("public_bind_attempt", severity, now, "", map[string]any{
		"host":    bindCtx.Host,
		"allowed": d.Allowed,
		"reason":  d.Reason,
	}))
}
