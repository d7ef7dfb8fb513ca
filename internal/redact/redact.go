// Package redact masks secrets in free text, HTTP headers, and nested
// request/response payloads before they cross a log or webhook boundary.
package redact

import (
	"regexp"
	"strings"
	"sync"
)

// Mode selects whether the engine rewrites anything at all.
type Mode string

const (
	ModeOff   Mode = "off"
	ModeTools Mode = "tools"
)

// sensitiveHeaders is the fixed set of header names masked wholesale by
// RedactHeaders, compared case-insensitively.
var sensitiveHeaders = map[string]struct{}{
	"authorization":       {},
	"cookie":              {},
	"set-cookie":          {},
	"x-api-key":           {},
	"x-auth-token":        {},
	"apikey":              {},
	"api-key":             {},
	"supabase-api-key":    {},
	"x-supabase-auth":     {},
	"x-access-token":      {},
	"x-refresh-token":     {},
	"proxy-authorization": {},
}

// sensitivePayloadKeys is the fixed set of top-level payload keys masked
// wholesale by RedactPayloadShallow and RedactPayloadDeep.
var sensitivePayloadKeys = map[string]struct{}{
	"token": {}, "tokens": {}, "key": {}, "keys": {},
	"secret": {}, "secrets": {}, "password": {}, "passwd": {},
	"api_key": {}, "apikey": {}, "access_token": {}, "accesstoken": {},
	"refresh_token": {}, "refreshtoken": {}, "private_key": {}, "privatekey": {},
	"service_role": {}, "servicerole": {}, "anon_key": {}, "anonkey": {},
	"supabase_key": {}, "supabasekey": {}, "credentials": {}, "auth": {},
}

const redactedLiteral = "[REDACTED]"

// Engine holds a compiled, immutable set of redaction rules. It is safe for
// concurrent use: nothing in it mutates after NewEngine returns.
type Engine struct {
	mode  Mode
	rules []rule
}

// NewEngine compiles an engine. When custom is non-empty it replaces the
// default pattern set entirely: a custom pattern list overrides the
// default set rather than extending it. mode == ModeOff makes every redact
// operation a no-op passthrough (still performing key-based masking for
// headers/payloads, since those are structural rather than pattern-driven).
func NewEngine(mode Mode, custom []string) (*Engine, error) {
	if mode == "" {
		mode = ModeTools
	}
	e := &Engine{mode: mode}
	if len(custom) == 0 {
		e.rules = builtinRules()
		return e, nil
	}
	rules := make([]rule, 0, len(custom))
	for _, p := range custom {
		r, err := compileCustomPattern(p)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	e.rules = rules
	return e, nil
}

var (
	defaultOnce   sync.Once
	defaultMu     sync.RWMutex
	defaultEngine *Engine
)

// Default returns the process-wide default engine (mode "tools", builtin
// patterns unless overridden by SetDefault), built once lazily.
func Default() *Engine {
	defaultOnce.Do(func() {
		defaultMu.Lock()
		defaultEngine, _ = NewEngine(ModeTools, nil)
		defaultMu.Unlock()
	})
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultEngine
}

// SetDefault swaps the process-wide default engine, used by the config
// loader's hot-reload path to apply an edited custom pattern overlay without
// restarting the process. It never returns a nil engine to callers already
// holding a reference to the old one.
func SetDefault(e *Engine) {
	if e == nil {
		return
	}
	defaultOnce.Do(func() {})
	defaultMu.Lock()
	defaultEngine = e
	defaultMu.Unlock()
}

// RedactText rewrites every match of every configured pattern in s. It is
// idempotent: re-running it over already-redacted text is a no-op.
func (e *Engine) RedactText(s string) string {
	if e.mode == ModeOff {
		return s
	}
	for _, r := range e.rules {
		s = r.apply(s)
	}
	return s
}

// RedactText is the package-level convenience form using Default().
func RedactText(s string) string { return Default().RedactText(s) }

// RedactHeaders returns a shallow copy of h with sensitive header values
// fully masked and all other values passed through RedactText.
func (e *Engine) RedactHeaders(h map[string][]string) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, vs := range h {
		if _, sensitive := sensitiveHeaders[strings.ToLower(k)]; sensitive {
			out[k] = []string{redactedLiteral}
			continue
		}
		cp := make([]string, len(vs))
		for i, v := range vs {
			cp[i] = e.RedactText(v)
		}
		out[k] = cp
	}
	return out
}

// RedactHeaders is the package-level convenience form using Default().
func RedactHeaders(h map[string][]string) map[string][]string { return Default().RedactHeaders(h) }

// RedactHeaderMap is the single-value-per-header convenience used by callers
// that hold headers as map[string]string rather than net/http's
// map[string][]string.
func (e *Engine) RedactHeaderMap(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if _, sensitive := sensitiveHeaders[strings.ToLower(k)]; sensitive {
			out[k] = redactedLiteral
			continue
		}
		out[k] = e.RedactText(v)
	}
	return out
}

// RedactHeaderMap is the package-level convenience form using Default().
func RedactHeaderMap(h map[string]string) map[string]string { return Default().RedactHeaderMap(h) }

// RedactPayloadShallow returns a copy of v with sensitive top-level keys
// replaced by "[REDACTED]". Non-sensitive values pass through unchanged.
func (e *Engine) RedactPayloadShallow(v map[string]any) map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		if _, sensitive := sensitivePayloadKeys[strings.ToLower(k)]; sensitive {
			out[k] = redactedLiteral
			continue
		}
		out[k] = val
	}
	return out
}

// RedactPayloadShallow is the package-level convenience form using Default().
func RedactPayloadShallow(v map[string]any) map[string]any { return Default().RedactPayloadShallow(v) }

const defaultMaxDepth = 10

// RedactPayloadDeep recursively masks sensitive keys at every mapping level
// and rewrites string leaves via RedactText, preserving sequence vs mapping
// shape. maxDepth <= 0 means "use the default of 10".
func (e *Engine) RedactPayloadDeep(v any, maxDepth int) any {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	return e.redactDeep(v, maxDepth)
}

// RedactPayloadDeep is the package-level convenience form using Default().
func RedactPayloadDeep(v any, maxDepth int) any { return Default().RedactPayloadDeep(v, maxDepth) }

func (e *Engine) redactDeep(v any, depth int) any {
	if depth <= 0 {
		return e.redactLeaf(v)
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if _, sensitive := sensitivePayloadKeys[strings.ToLower(k)]; sensitive {
				out[k] = redactedLiteral
				continue
			}
			out[k] = e.redactDeep(val, depth-1)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = e.redactDeep(val, depth-1)
		}
		return out
	default:
		return e.redactLeaf(v)
	}
}

func (e *Engine) redactLeaf(v any) any {
	switch t := v.(type) {
	case string:
		return e.RedactText(t)
	case map[string]any:
		// Depth exhausted on a mapping: still apply key-based shallow
		// masking rather than passing secrets through untouched.
		return e.RedactPayloadShallow(t)
	default:
		return t
	}
}

// envVarNamePattern flags environment variable names that plausibly carry
// secrets, independent of the structural key lists above.
var envVarNamePattern = regexp.MustCompile(`(?i)key|token|secret|password|passwd|credential|auth|private|supabase`)

// SafeEnvSnapshot returns a copy of env with any matching variable name
// replaced by "[REDACTED]"; empty values are omitted entirely.
func SafeEnvSnapshot(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		if v == "" {
			continue
		}
		if envVarNamePattern.MatchString(k) {
			out[k] = redactedLiteral
			continue
		}
		out[k] = v
	}
	return out
}
