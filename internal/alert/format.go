package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event AlertEvent) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("flowgraph: %s UID %d", event.Type, event.Target),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Flow:* UID %d -> UID %d", event.Source, event.Target)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Tag:* %s", event.TagName)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Throughput:* %d / %d bytes", event.Bytes, event.Threshold)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Processes:* %d (%d killed, mode %s)", len(event.PIDs), event.Killed, event.Mode)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	severity := "error"
	if event.Type == TypeKillFailed {
		severity = "critical"
	} else if event.Mode == "log" {
		severity = "warning"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("flowgraph %s: UID %d exceeded %s threshold", event.Type, event.Target, event.TagName),
			"severity": severity,
			"source":   "flowgraph",
			"custom_details": map[string]any{
				"source_uid": event.Source,
				"target_uid": event.Target,
				"tag":        event.Tag,
				"bytes":      event.Bytes,
				"threshold":  event.Threshold,
				"pids":       event.PIDs,
				"reason":     event.Reason,
			},
		},
	}
	return json.Marshal(payload)
}
