package claude

import "strings"

// ActivityState is a coarse classification of what a session is doing,
// derived from the hook events the Claude CLI appends to its state log.
type ActivityState string

const (
	ActivityIdle                 ActivityState = "idle"
	ActivityWorking              ActivityState = "working"
	ActivityAwaitingApproval     ActivityState = "awaiting_approval"
	ActivityAwaitingUserResponse ActivityState = "awaiting_user_response"
	ActivityUnknown              ActivityState = "unknown"
)

// HookEvent is one line of the newline-delimited JSON state log.
// timestamp, session_id and hook_event_name are required; everything else
// depends on the event.
type HookEvent struct {
	Timestamp        string `json:"timestamp"`
	SessionID        string `json:"session_id"`
	HookEventName    string `json:"hook_event_name"`
	Prompt           string `json:"prompt,omitempty"`
	NotificationType string `json:"notification_type,omitempty"`
	ToolName         string `json:"tool_name,omitempty"`
	Reason           string `json:"reason,omitempty"`
	CWD              string `json:"cwd,omitempty"`
	StopHookActive   bool   `json:"stop_hook_active,omitempty"`
	TranscriptPath   string `json:"transcript_path,omitempty"`
}

// valid reports whether the event carries the required fields
func (e HookEvent) valid() bool {
	return e.Timestamp != "" && e.SessionID != "" && e.HookEventName != ""
}

// reduceActivity maps a hook event onto the activity state, regardless of
// the prior state. Unknown event names leave the state unchanged.
//
// The Notification sub-dispatch keys off notification_type, a vocabulary
// owned by the CLI; unrecognized values deliberately map to "no change"
// instead of inventing new states.
func reduceActivity(current ActivityState, ev HookEvent) ActivityState {
	switch ev.HookEventName {
	case "SessionStart", "SessionEnd":
		return ActivityIdle
	case "Stop":
		return ActivityAwaitingUserResponse
	case "UserPromptSubmit", "PreToolUse", "PostToolUse":
		return ActivityWorking
	case "PermissionRequest":
		return ActivityAwaitingApproval
	case "Notification":
		nt := strings.ToLower(ev.NotificationType)
		switch {
		case strings.Contains(nt, "permission"):
			return ActivityAwaitingApproval
		case strings.Contains(nt, "idle"):
			return ActivityAwaitingUserResponse
		default:
			return current
		}
	default:
		return current
	}
}
