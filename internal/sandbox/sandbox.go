// Package sandbox arbitrates filesystem, network, and subprocess access
// for skill invocations, layering a set of hardcoded, policy-proof denials
// ahead of a per-skill, policy-supplied rule set.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/openclaw/sentinel/internal/audit"
	"github.com/openclaw/sentinel/internal/blocklist"
)

// FSOp is a filesystem operation kind.
type FSOp string

const (
	FSRead    FSOp = "read"
	FSWrite   FSOp = "write"
	FSExecute FSOp = "execute"
)

// NetOp is a network operation kind.
type NetOp string

const (
	NetConnect NetOp = "connect"
	NetListen  NetOp = "listen"
)

// FilesystemMode gates filesystem access independent of the allow/deny path
// lists.
type FilesystemMode string

const (
	FSModeDeny         FilesystemMode = "deny"
	FSModeReadOnly      FilesystemMode = "read-only"
	FSModeSandboxOnly   FilesystemMode = "sandbox-only"
	FSModeWorkspaceOnly FilesystemMode = "workspace-only"
	FSModeUnrestricted  FilesystemMode = "unrestricted"
)

// Egress gates outbound network connections.
type Egress string

const (
	EgressDeny        Egress = "deny"
	EgressAllowlist   Egress = "allowlist"
	EgressUnrestricted Egress = "unrestricted"
)

// Permissions is the policy-supplied overlay merged over the hardcoded
// defaults by CreatePolicy.
type Permissions struct {
	FilesystemMode  FilesystemMode
	AllowedPaths    []string
	DeniedPaths     []string
	NetworkListen   bool
	Egress          Egress
	AllowedHosts    []string
	SubprocessAllowed bool
	ShellAccess     bool
	AllowedCommands []string
	DeniedCommands  []string
	TimeoutSeconds  int
	MemoryLimitMB   int
}

// defaultPermissions are the hardcoded starting point: filesystem read-only,
// network deny, subprocess disabled, 30s/128MB runtime limits.
func defaultPermissions() Permissions {
	return Permissions{
		FilesystemMode:    FSModeReadOnly,
		DeniedPaths:       append([]string(nil), defaultDeniedPaths...),
		Egress:            EgressDeny,
		SubprocessAllowed: false,
		ShellAccess:       false,
		TimeoutSeconds:    30,
		MemoryLimitMB:     128,
	}
}

// alwaysDeniedPaths can never be overridden by policy.
var alwaysDeniedPaths = []string{
	"/etc/shadow",
	"/etc/sudoers",
	"~/.ssh/id_*",
	"~/.gnupg/private*",
}

// defaultDeniedPaths are denied unless a policy explicitly removes them
// from DeniedPaths (the merge is additive, so policies cannot currently
// un-deny them; they exist to document intent for future overlays).
var defaultDeniedPaths = []string{
	"/etc/passwd",
	"~/.ssh",
	"~/.gnupg",
	"~/.aws",
	"~/.openclaw/credentials",
}

// alwaysDeniedCommands are rejected by substring match regardless of policy.
var alwaysDeniedCommands = []string{
	"rm -rf /",
	"rm -rf /*",
	"dd if=/dev/zero of=/dev/sda",
	"mkfs",
	":(){ :|:& };:",
	"chmod -R 777 /",
}

var shellBasenames = map[string]struct{}{
	"sh": {}, "bash": {}, "zsh": {}, "fish": {}, "cmd": {}, "powershell": {}, "pwsh": {},
}

// Decision is the outcome of a single check.
type Decision struct {
	Allowed bool
	Reason  string
}

// PolicyOptions configures CreatePolicy.
type PolicyOptions struct {
	SkillID     string
	Permissions *Permissions
	BaseDir     string
	WorkspaceRoot string
}

// Policy is a fully-resolved sandbox policy for one skill.
type Policy struct {
	SkillID       string
	Permissions   Permissions
	SandboxDir    string
	WorkspaceRoot string

	allowedPathGlobs []pathMatcher
	deniedPathGlobs  []pathMatcher
	allowedHostGlobs []glob.Glob
}

type pathMatcher struct {
	raw string
}

func (m pathMatcher) matches(abs string) bool {
	expanded := expandHome(m.raw)
	expandedAbs, err := filepath.Abs(expanded)
	if err != nil {
		expandedAbs = expanded
	}
	return abs == expandedAbs || strings.HasPrefix(abs, expandedAbs+string(filepath.Separator)) || strings.Contains(abs, strings.TrimSuffix(expanded, "*"))
}

// CreatePolicy merges opts.Permissions over the hardcoded defaults and
// computes the skill's sandbox directory.
func CreatePolicy(opts PolicyOptions) (*Policy, error) {
	if opts.SkillID == "" {
		return nil, fmt.Errorf("sandbox: skill_id is required")
	}
	perms := defaultPermissions()
	if opts.Permissions != nil {
		perms = mergePermissions(perms, *opts.Permissions)
	}

	baseDir := opts.BaseDir
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	sandboxDir := filepath.Join(baseDir, "skill_sandboxes", opts.SkillID)

	p := &Policy{
		SkillID:       opts.SkillID,
		Permissions:   perms,
		SandboxDir:    sandboxDir,
		WorkspaceRoot: opts.WorkspaceRoot,
	}

	for _, raw := range perms.AllowedPaths {
		p.allowedPathGlobs = append(p.allowedPathGlobs, pathMatcher{raw: raw})
	}
	for _, raw := range perms.DeniedPaths {
		p.deniedPathGlobs = append(p.deniedPathGlobs, pathMatcher{raw: raw})
	}
	for _, raw := range perms.AllowedHosts {
		g, err := glob.Compile(strings.ToLower(raw), '.')
		if err != nil {
			return nil, fmt.Errorf("sandbox: compile allowed host glob %q: %w", raw, err)
		}
		p.allowedHostGlobs = append(p.allowedHostGlobs, g)
	}

	return p, nil
}

// mergePermissions overlays override's non-zero fields onto base. Slice
// fields are appended rather than replaced: supplied permissions merge
// over the hardcoded defaults instead of supplanting them.
func mergePermissions(base, override Permissions) Permissions {
	if override.FilesystemMode != "" {
		base.FilesystemMode = override.FilesystemMode
	}
	base.AllowedPaths = append(base.AllowedPaths, override.AllowedPaths...)
	if override.DeniedPaths != nil {
		// Default denied paths are overridable: a policy that supplies its
		// own list replaces the defaults rather than adding to them.
		base.DeniedPaths = override.DeniedPaths
	}
	base.NetworkListen = override.NetworkListen
	if override.Egress != "" {
		base.Egress = override.Egress
	}
	base.AllowedHosts = append(base.AllowedHosts, override.AllowedHosts...)
	base.SubprocessAllowed = override.SubprocessAllowed
	base.ShellAccess = override.ShellAccess
	base.AllowedCommands = append(base.AllowedCommands, override.AllowedCommands...)
	base.DeniedCommands = append(base.DeniedCommands, override.DeniedCommands...)
	if override.TimeoutSeconds > 0 {
		base.TimeoutSeconds = override.TimeoutSeconds
	}
	if override.MemoryLimitMB > 0 {
		base.MemoryLimitMB = override.MemoryLimitMB
	}
	return base
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return home + strings.TrimPrefix(p, "~")
}

func matchesHardcodedPath(abs string, raw string) bool {
	expanded := expandHome(raw)
	if strings.Contains(expanded, "*") {
		g, err := glob.Compile(expanded, '/')
		if err == nil && g.Match(abs) {
			return true
		}
		prefix := strings.TrimSuffix(expanded, "*")
		return strings.HasPrefix(abs, prefix)
	}
	expandedAbs, err := filepath.Abs(expanded)
	if err != nil {
		expandedAbs = expanded
	}
	return abs == expandedAbs || strings.HasPrefix(abs, expandedAbs+string(filepath.Separator)) || strings.Contains(abs, expanded)
}

// CheckFS arbitrates a filesystem operation against the policy.
func (p *Policy) CheckFS(path string, op FSOp) Decision {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Decision{Allowed: false, Reason: fmt.Sprintf("cannot resolve path %q", path)}
	}

	for _, raw := range alwaysDeniedPaths {
		if matchesHardcodedPath(abs, raw) {
			return Decision{Allowed: false, Reason: fmt.Sprintf("path is in the always-denied set: %s", raw)}
		}
	}

	for _, m := range p.deniedPathGlobs {
		if m.matches(abs) {
			return Decision{Allowed: false, Reason: fmt.Sprintf("path is denied by policy: %s", m.raw)}
		}
	}

	switch p.Permissions.FilesystemMode {
	case FSModeDeny:
		return Decision{Allowed: false, Reason: "filesystem mode is deny"}
	case FSModeReadOnly:
		if op != FSRead {
			return Decision{Allowed: false, Reason: "filesystem mode is read-only"}
		}
	case FSModeSandboxOnly:
		if op != FSRead && !strings.HasPrefix(abs, p.SandboxDir+string(filepath.Separator)) && abs != p.SandboxDir {
			return Decision{Allowed: false, Reason: "path is outside the skill sandbox directory"}
		}
	case FSModeWorkspaceOnly:
		if p.WorkspaceRoot != "" && !strings.HasPrefix(abs, p.WorkspaceRoot+string(filepath.Separator)) && abs != p.WorkspaceRoot {
			return Decision{Allowed: false, Reason: "path is outside the workspace root"}
		}
	case FSModeUnrestricted:
		// no mode check
	}

	if len(p.allowedPathGlobs) > 0 && op != FSRead {
		matched := false
		for _, m := range p.allowedPathGlobs {
			if m.matches(abs) {
				matched = true
				break
			}
		}
		if !matched {
			return Decision{Allowed: false, Reason: "path does not match any allowed path"}
		}
	}

	return Decision{Allowed: true}
}

// CheckNet arbitrates a network operation against the policy.
func (p *Policy) CheckNet(hostname string, op NetOp) Decision {
	if op == NetListen {
		if !p.Permissions.NetworkListen {
			return Decision{Allowed: false, Reason: "network.listen is disabled"}
		}
		return Decision{Allowed: true}
	}

	switch p.Permissions.Egress {
	case EgressDeny:
		return Decision{Allowed: false, Reason: "egress is denied"}
	case EgressUnrestricted:
		return Decision{Allowed: true}
	case EgressAllowlist:
		h := strings.ToLower(hostname)
		for _, raw := range p.Permissions.AllowedHosts {
			entry := strings.ToLower(raw)
			if h == entry || strings.HasSuffix(h, "."+strings.TrimPrefix(entry, "*.")) {
				return Decision{Allowed: true}
			}
		}
		for _, g := range p.allowedHostGlobs {
			if g.Match(h) {
				return Decision{Allowed: true}
			}
		}
		return Decision{Allowed: false, Reason: fmt.Sprintf("host %q is not in the egress allowlist", hostname)}
	default:
		return Decision{Allowed: false, Reason: "egress is denied"}
	}
}

// CheckSub arbitrates a subprocess invocation against the policy.
func (p *Policy) CheckSub(command string, args []string) Decision {
	full := command
	if len(args) > 0 {
		full = command + " " + strings.Join(args, " ")
	}

	if r := blocklist.Check(full); r.Blocked {
		return Decision{Allowed: false, Reason: fmt.Sprintf("one-liner blocklist: %s", r.Description)}
	}

	if !p.Permissions.SubprocessAllowed {
		return Decision{Allowed: false, Reason: "subprocess access is disabled"}
	}

	for _, denied := range alwaysDeniedCommands {
		if strings.Contains(full, denied) {
			return Decision{Allowed: false, Reason: fmt.Sprintf("command matches an always-denied command: %s", denied)}
		}
	}

	base := filepath.Base(command)
	if _, isShell := shellBasenames[base]; isShell && !p.Permissions.ShellAccess {
		return Decision{Allowed: false, Reason: fmt.Sprintf("shell access is disabled (base=%s)", base)}
	}

	for _, denied := range p.Permissions.DeniedCommands {
		if base == denied || strings.Contains(command, denied) {
			return Decision{Allowed: false, Reason: fmt.Sprintf("command is in the policy denied-command set: %s", denied)}
		}
	}

	if len(p.Permissions.AllowedCommands) > 0 {
		matched := false
		for _, allowed := range p.Permissions.AllowedCommands {
			if base == allowed || command == allowed {
				matched = true
				break
			}
		}
		if !matched {
			return Decision{Allowed: false, Reason: "command does not match any allowed command"}
		}
	}

	return Decision{Allowed: true}
}

// OperationKind discriminates the Operation union Enforce dispatches on.
type OperationKind int

const (
	OpFS OperationKind = iota
	OpNet
	OpSub
)

// Operation is the tagged union Enforce accepts.
type Operation struct {
	Kind    OperationKind
	Path    string
	FSOp    FSOp
	Host    string
	NetOp   NetOp
	Command string
	Args    []string
}

// ViolationError is raised by Enforce on denial.
type ViolationError struct {
	SkillID string
	Reason  string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("sandbox: skill %q violated policy: %s", e.SkillID, e.Reason)
}

// Enforce dispatches op to the matching checker and raises a
// *ViolationError on denial, emitting an audit event tagged with the
// skill's identifier. Before dispatching a subprocess operation, Enforce
// also invokes the one-liner blocklist directly, so the check cannot be
// skipped by a caller that bypasses CheckSub.
func (p *Policy) Enforce(ctx context.Context, sink audit.Sink, now string, op Operation) error {
	var d Decision
	switch op.Kind {
	case OpFS:
		d = p.CheckFS(op.Path, op.FSOp)
	case OpNet:
		d = p.CheckNet(op.Host, op.NetOp)
	case OpSub:
		full := op.Command
		if len(op.Args) > 0 {
			full = op.Command + " " + strings.Join(op.Args, " ")
		}
		if err := blocklist.Enforce(full); err != nil {
			d = Decision{Allowed: false, Reason: err.Error()}
			break
		}
		d = p.CheckSub(op.Command, op.Args)
	}

	if !d.Allowed {
		if sink != nil {
			sink.Emit(ctx, audit.NewEvent("dangerous_command", audit.SeverityHigh, now, "", map[string]any{
				"skill_id": p.SkillID,
				"reason":   d.Reason,
			}))
		}
		return &ViolationError{SkillID: p.SkillID, Reason: d.Reason}
	}
	return nil
}
