package claude

// EventType represents the type of registry event delivered to subscribers
type EventType string

const (
	EventData          EventType = "data"
	EventStatus        EventType = "status"
	EventActivity      EventType = "activity"
	EventError         EventType = "error"
	EventTitleChanged  EventType = "title_changed"
	EventActiveChanged EventType = "active_session_changed"
)

// Event is a single registry notification. SessionID is empty only for
// active_session_changed events that clear the active pointer.
type Event struct {
	Type      EventType     `json:"type"`
	SessionID string        `json:"sessionId,omitempty"`
	Data      string        `json:"data,omitempty"`
	Status    Status        `json:"status,omitempty"`
	Activity  ActivityState `json:"activity,omitempty"`
	Error     string        `json:"error,omitempty"`
	Name      string        `json:"name,omitempty"`
}

// EventCallback is called for every registry event a subscriber receives
type EventCallback func(event Event)
