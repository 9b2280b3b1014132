package audit

// Event kinds recorded in Entry.Event.
const (
	EventEnforce    = "enforce"
	EventKillFailed = "kill_failed"
	EventReload     = "policy_reload"
)

// Entry is one enforcement record. All fields are concrete types (no
// map[string]any) so json.Marshal output, and therefore the chain hash,
// is deterministic.
type Entry struct {
	Timestamp  string  `json:"ts"`
	Event      string  `json:"event"`
	Mode       string  `json:"mode"`
	SourceUID  int32   `json:"source_uid"`
	TargetUID  int32   `json:"target_uid"`
	Tag        string  `json:"tag"`
	Bytes      uint64  `json:"bytes"`
	Threshold  uint64  `json:"threshold"`
	PIDs       []int32 `json:"pids"`
	Killed     int     `json:"killed"`
	Reason     string  `json:"reason"`
	PolicyID   string  `json:"policy_id"`
	PolicyHash string  `json:"policy_hash"`
	PrevHash   string  `json:"prev_hash"`
}
