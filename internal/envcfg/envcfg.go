// Package envcfg reads the environment variables the security core
// consults for bind/auth/webhook configuration. Unknown or malformed
// values are always treated as absent rather than erroring, per the core's
// "unknown environment variable values are treated as absent" rule.
package envcfg

import (
	"os"
	"strings"
)

// Prefix is prepended to every variable name by Bool/String/Lookup.
const Prefix = "SENTINEL_"

// Bool reports whether the environment variable name (after Prefix) is set
// to exactly "true". Any other value — "1", "yes", "TRUE", "" — is treated
// as false/absent.
func Bool(name string) bool {
	return os.Getenv(Prefix+name) == "true"
}

// String returns the environment variable name (after Prefix), or fallback
// if it is unset or empty.
func String(name, fallback string) string {
	if v := os.Getenv(Prefix + name); v != "" {
		return v
	}
	return fallback
}

// Lookup returns the raw value and whether it was present and non-empty.
func Lookup(name string) (string, bool) {
	v := os.Getenv(Prefix + name)
	return v, v != ""
}

// Snapshot returns every SENTINEL_-prefixed variable as a plain map,
// stripped of the prefix, for callers that need to pass the whole
// environment through (e.g. to bindguard.BindContext.Env).
func Snapshot() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, Prefix) {
			continue
		}
		out[strings.TrimPrefix(k, Prefix)] = v
	}
	return out
}
