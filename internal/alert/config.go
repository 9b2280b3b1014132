package alert

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["enforce", "kill_failed"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event types carried in AlertEvent.Type.
const (
	TypeEnforce    = "enforce"
	TypeKillFailed = "kill_failed"
)

// AlertEvent is the payload sent to webhook endpoints when a principal is
// found over a tag threshold.
type AlertEvent struct {
	Timestamp  string  `json:"timestamp"`
	Type       string  `json:"type"`
	Mode       string  `json:"mode"` // "kill" or "log"
	Source     int32   `json:"source_uid"`
	Target     int32   `json:"target_uid"`
	Tag        string  `json:"tag"`
	TagName    string  `json:"tag_name"`
	Bytes      uint64  `json:"bytes"`
	Threshold  uint64  `json:"threshold"`
	PIDs       []int32 `json:"pids"`
	Killed     int     `json:"killed"`
	Reason     string  `json:"reason"`
	PolicyHash string  `json:"policy_hash"`
}
