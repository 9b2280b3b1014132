package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/flowgraph/internal/alert"
	"github.com/ppiankov/flowgraph/internal/ratelimit"
	"github.com/ppiankov/flowgraph/internal/taint"
)

// Enforcement modes.
const (
	ModeKill = "kill" // terminate every process of the receiving principal
	ModeLog  = "log"  // record and alert only
)

// Window configures the decaying counters and the maintenance cadence.
type Window struct {
	Buckets  int           `yaml:"buckets"`
	Interval time.Duration `yaml:"interval"`
}

// Span returns the total time covered by the window.
func (w Window) Span() time.Duration {
	return time.Duration(w.Buckets) * w.Interval
}

// Rule bounds the bytes of one tag a principal may receive within the window.
type Rule struct {
	Tag      taint.Tag `yaml:"tag"`
	MaxBytes uint64    `yaml:"max_bytes"`
}

// PolicyConfig holds all configurable policy parameters.
type PolicyConfig struct {
	Window      Window              `yaml:"window"`
	Rules       []Rule              `yaml:"rules"`
	TagNames    taint.Names         `yaml:"tag_names,omitempty"`
	Enforcement string              `yaml:"enforcement"`
	Alerts      []alert.AlertConfig `yaml:"alerts,omitempty"`
	AlertLimit  ratelimit.Limit     `yaml:"alert_limit,omitempty"`
}

// DefaultConfig returns the reference policy: contacts above 1000 bytes and
// SMS above 10000 bytes per 60s window.
func DefaultConfig() *PolicyConfig {
	return &PolicyConfig{
		Window: Window{
			Buckets:  6,
			Interval: 10 * time.Second,
		},
		Rules: []Rule{
			{Tag: taint.Contacts, MaxBytes: 1000},
			{Tag: taint.SMS, MaxBytes: 10000},
		},
		Enforcement: ModeKill,
	}
}

// Validate checks window bounds, enforcement mode and rule uniqueness.
func (c *PolicyConfig) Validate() error {
	var errs []error
	if c.Window.Buckets < 1 {
		errs = append(errs, fmt.Errorf("window.buckets must be >= 1, got %d", c.Window.Buckets))
	}
	if c.Window.Interval <= 0 {
		errs = append(errs, fmt.Errorf("window.interval must be positive, got %s", c.Window.Interval))
	}
	switch c.Enforcement {
	case ModeKill, ModeLog:
	default:
		errs = append(errs, fmt.Errorf("enforcement must be %q or %q, got %q", ModeKill, ModeLog, c.Enforcement))
	}

	if c.AlertLimit.MaxEvents < 0 || c.AlertLimit.Window < 0 {
		errs = append(errs, fmt.Errorf("alert_limit values must not be negative"))
	}

	seen := make(map[taint.Tag]bool, len(c.Rules))
	for i, r := range c.Rules {
		if !r.Tag.Valid() {
			errs = append(errs, fmt.Errorf("rules[%d]: %w", i, taint.ErrInvalidTag))
			continue
		}
		if seen[r.Tag] {
			errs = append(errs, fmt.Errorf("rules[%d]: duplicate rule for tag %s", i, r.Tag))
		}
		seen[r.Tag] = true
	}
	return errors.Join(errs...)
}

// Namer returns the tag labeller configured by tag_names.
func (c *PolicyConfig) Namer() taint.Namer {
	if len(c.TagNames) == 0 {
		return taint.DefaultNames
	}
	return c.TagNames
}

// DefaultPath returns ~/.flowgraph/policy.yaml, or "" if there is no home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".flowgraph", "policy.yaml")
}

// LoadConfig loads policy configuration from a YAML file.
// Empty path falls back to ~/.flowgraph/policy.yaml.
// Missing file returns defaults. Invalid YAML or rules return an error.
func LoadConfig(path string) (*PolicyConfig, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads policy configuration and returns its SHA-256 hash.
// The hash is computed over the raw YAML bytes on disk.
// When no file exists (defaults used), the hash is the SHA-256 of empty input.
func LoadConfigWithHash(path string) (*PolicyConfig, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("failed to read policy config: %w", err)
		}
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("failed to parse policy config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid policy config: %w", err)
	}
	return cfg, hash, nil
}

// DefaultConfigYAML returns a commented YAML string for init-policy.
func DefaultConfigYAML() string {
	return `# flowgraph policy configuration
# Generated by: flowgraph init-policy

# Decaying window. Each tick shifts every counter by one bucket, so a byte
# counts toward a flow for buckets * interval (60s by default). Graph
# throughput is labelled per window span: Bytes/min for one minute,
# otherwise the span itself (Bytes/2m0s).
window:
  buckets: 6
  interval: 10s

# Per-tag byte thresholds. When a flow's window total for a tag exceeds
# max_bytes, every process of the receiving UID is terminated.
# Tags: location contacts mic phone_number location_gps location_net
#       location_last camera accelerometer sms imei imsi iccid device_sn
#       account history incoming_data (or bit:N, or a single-bit mask like 0x200)
# Tags without a rule are monitored but never enforced.
rules:
  - tag: contacts
    max_bytes: 1000
  - tag: sms
    max_bytes: 10000

# kill: terminate the receiving UID's processes
# log:  record and alert only
enforcement: kill

# Optional label overrides used in graph output.
# tag_names:
#   contacts: Address Book

# Webhook alerts on enforcement.
# alerts:
#   - url: https://hooks.example.com/flowgraph
#     format: slack          # generic | slack | pagerduty
#     events: [enforce, kill_failed]

# Enforcement repeats while a flow stays over its threshold. Cap enforce
# alerts per receiving UID and tag (kill_failed alerts are never capped).
# alert_limit:
#   max_events: 3
#   window: 1m
`
}
