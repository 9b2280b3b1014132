package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/flowgraph/internal/taint"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 6, cfg.Window.Buckets)
	assert.Equal(t, 10*time.Second, cfg.Window.Interval)
	assert.Equal(t, time.Minute, cfg.Window.Span())
	assert.Equal(t, ModeKill, cfg.Enforcement)
	assert.Equal(t, []Rule{
		{Tag: taint.Contacts, MaxBytes: 1000},
		{Tag: taint.SMS, MaxBytes: 10000},
	}, cfg.Rules)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, hash, err := LoadConfigWithHash("/nonexistent/path/policy.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", hash)
}

func TestLoadConfigOverridesRules(t *testing.T) {
	path := writePolicy(t, `
rules:
  - tag: camera
    max_bytes: 50
  - tag: "0x200"
    max_bytes: 20
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []Rule{
		{Tag: taint.Camera, MaxBytes: 50},
		{Tag: taint.SMS, MaxBytes: 20},
	}, cfg.Rules)
	// Unspecified sections keep defaults.
	assert.Equal(t, 6, cfg.Window.Buckets)
	assert.Equal(t, ModeKill, cfg.Enforcement)
}

func TestLoadConfigWindowAndNames(t *testing.T) {
	path := writePolicy(t, `
window:
  buckets: 12
  interval: 5s
enforcement: log
tag_names:
  contacts: Address Book
alerts:
  - url: http://localhost:9/hook
    format: slack
    events: [enforce]
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Window{Buckets: 12, Interval: 5 * time.Second}, cfg.Window)
	assert.Equal(t, ModeLog, cfg.Enforcement)
	assert.Equal(t, "Address Book", cfg.Namer().Name(taint.Contacts))
	assert.Equal(t, "SMS", cfg.Namer().Name(taint.SMS))
	require.Len(t, cfg.Alerts, 1)
	assert.Equal(t, "slack", cfg.Alerts[0].Format)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":      "rules: [",
		"unknown tag":   "rules:\n  - tag: telepathy\n    max_bytes: 1\n",
		"duplicate tag": "rules:\n  - tag: sms\n    max_bytes: 1\n  - tag: bit:9\n    max_bytes: 2\n",
		"zero buckets":  "window:\n  buckets: 0\n",
		"bad mode":      "enforcement: maim\n",
		"bad interval":  "window:\n  interval: -1s\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writePolicy(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigHashChangesWithContent(t *testing.T) {
	_, h1, err := LoadConfigWithHash(writePolicy(t, "enforcement: kill\n"))
	require.NoError(t, err)
	_, h2, err := LoadConfigWithHash(writePolicy(t, "enforcement: log\n"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
	assert.True(t, strings.HasPrefix(h1, "sha256:"))
}

func TestDefaultConfigYAMLMatchesDefaults(t *testing.T) {
	cfg := &PolicyConfig{}
	require.NoError(t, yaml.Unmarshal([]byte(DefaultConfigYAML()), cfg))
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigAlertLimit(t *testing.T) {
	cfg, err := LoadConfig(writePolicy(t, `
alert_limit:
  max_events: 3
  window: 1m
`))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.AlertLimit.MaxEvents)
	assert.Equal(t, time.Minute, cfg.AlertLimit.Window)
	assert.True(t, cfg.AlertLimit.Enabled())

	_, err = LoadConfig(writePolicy(t, "alert_limit: {max_events: -1, window: 1m}\n"))
	assert.ErrorContains(t, err, "alert_limit")
}
