// Package config loads and merges the gateway's YAML configuration and,
// for the surfaces the data model allows to change underneath a running
// process, watches it for edits and re-applies them.
//
// Skill sandbox policies are immutable once a skill is mounted and are
// never touched by the reload path; only the command blocklist's custom
// pattern overlay and the redaction pattern overlay are hot-reloadable.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openclaw/sentinel/internal/blocklist"
	"github.com/openclaw/sentinel/internal/redact"
)

// Config is the root of the gateway's static configuration, covering the
// defaults fed into the public-bind guard, the sandbox engine, and the two
// overlay files watched for hot-reload.
type Config struct {
	BindGuard BindGuardConfig `yaml:"bind_guard"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Anomaly   AnomalyConfig   `yaml:"anomaly"`
	Audit     AuditConfig     `yaml:"audit"`
	Overlays  OverlaysConfig  `yaml:"overlays"`
}

// BindGuardConfig seeds the defaults the public-bind guard's gates read
// when a caller doesn't supply an explicit BindContext field.
type BindGuardConfig struct {
	RequireTLS        bool `yaml:"require_tls"`
	RequireAuth       bool `yaml:"require_auth"`
	AllowTailscaleOptOut bool `yaml:"allow_tailscale_opt_out"`
}

// SandboxConfig seeds internal/sandbox.PolicyOptions defaults that apply to
// every skill unless a skill manifest overrides them.
type SandboxConfig struct {
	DefaultMode       string   `yaml:"default_mode"`
	ExtraDeniedPaths  []string `yaml:"extra_denied_paths"`
	SubprocessAllowed bool     `yaml:"subprocess_allowed"`
}

// AnomalyConfig seeds internal/anomaly.Config thresholds.
type AnomalyConfig struct {
	AuthFailureThreshold int    `yaml:"auth_failure_threshold"`
	AuthFailureWindow    string `yaml:"auth_failure_window"`
	RequestRateThreshold int    `yaml:"request_rate_threshold"`
	RequestRateWindow    string `yaml:"request_rate_window"`
	WriteVolumeThreshold int    `yaml:"write_volume_threshold"`
	BlockDuration        string `yaml:"block_duration"`
	EnableIPBlocking     bool   `yaml:"enable_ip_blocking"`
	MaxTrackedIPs        int    `yaml:"max_tracked_ips"`
	WebhookURL           string `yaml:"webhook_url"`
}

// AuditConfig selects which audit sink the process wires up.
type AuditConfig struct {
	// Sink is "slog" (default) or "nop". Anything else is a config error.
	Sink string `yaml:"sink"`
}

// OverlaysConfig points at the two live-editable overlay files. Either path
// may be empty, which disables hot-reload for that surface entirely.
type OverlaysConfig struct {
	BlocklistPatternsPath string `yaml:"blocklist_patterns_path"`
	RedactionPatternsPath string `yaml:"redaction_patterns_path"`
}

// Load reads path, applies defaults, validates, and returns the parsed
// configuration. It does not start hot-reload watching; call Watch
// separately once the process is ready to react to file changes.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return LoadFromBytes(b)
}

// LoadFromBytes parses raw YAML without touching the filesystem, used by
// tests and by Watch's reload path.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Sandbox.DefaultMode == "" {
		cfg.Sandbox.DefaultMode = "sandbox_only"
	}
	if cfg.Audit.Sink == "" {
		cfg.Audit.Sink = "slog"
	}
	if cfg.Anomaly.MaxTrackedIPs == 0 {
		cfg.Anomaly.MaxTrackedIPs = 10000
	}
}

func validate(cfg *Config) error {
	switch cfg.Sandbox.DefaultMode {
	case "read_only", "sandbox_only", "full_access", "no_access":
	default:
		return fmt.Errorf("invalid sandbox.default_mode %q", cfg.Sandbox.DefaultMode)
	}
	switch cfg.Audit.Sink {
	case "slog", "nop":
	default:
		return fmt.Errorf("invalid audit.sink %q", cfg.Audit.Sink)
	}
	if cfg.Anomaly.MaxTrackedIPs < 0 {
		return fmt.Errorf("anomaly.max_tracked_ips must be >= 0")
	}
	return nil
}

// ApplyOverlays loads the two hot-reloadable overlay files (if configured)
// and installs them as the process-wide blocklist/redaction overlays. It is
// called once at startup and again on every debounced reload.
func (c *Config) ApplyOverlays() error {
	if c.Overlays.BlocklistPatternsPath != "" {
		if err := applyBlocklistOverlay(c.Overlays.BlocklistPatternsPath); err != nil {
			return fmt.Errorf("apply blocklist overlay: %w", err)
		}
	}
	if c.Overlays.RedactionPatternsPath != "" {
		if err := applyRedactionOverlay(c.Overlays.RedactionPatternsPath); err != nil {
			return fmt.Errorf("apply redaction overlay: %w", err)
		}
	}
	return nil
}

// blocklistOverlayFile is the on-disk shape of the blocklist overlay YAML.
type blocklistOverlayFile struct {
	Patterns []overlayPattern `yaml:"patterns"`
}

type overlayPattern struct {
	Pattern     string `yaml:"pattern"`
	Description string `yaml:"description"`
	Tier        string `yaml:"tier"` // "blocked" (default) or "suspicious"
}

func applyBlocklistOverlay(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f blocklistOverlayFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return err
	}
	patterns := make([]blocklist.CustomPattern, 0, len(f.Patterns))
	for _, p := range f.Patterns {
		tier := blocklist.TierBlocked
		if p.Tier == "suspicious" {
			tier = blocklist.TierSuspicious
		}
		patterns = append(patterns, blocklist.CustomPattern{
			Pattern:     p.Pattern,
			Description: p.Description,
			Tier:        tier,
		})
	}
	return blocklist.SetCustom(patterns)
}

// redactionOverlayFile is the on-disk shape of the redaction overlay YAML.
// Per the redaction engine's "custom pattern list overrides the default
// set" rule, a non-empty Patterns list here replaces the builtin patterns
// entirely rather than extending them.
type redactionOverlayFile struct {
	Patterns []string `yaml:"patterns"`
}

func applyRedactionOverlay(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f redactionOverlayFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return err
	}
	engine, err := redact.NewEngine(redact.ModeTools, f.Patterns)
	if err != nil {
		return err
	}
	redact.SetDefault(engine)
	return nil
}
