package claude

import (
	"sync"
	"time"

	"github.com/xiaoyuanzhu-com/claude-deck/termbuf"
)

// Session is one supervised Claude CLI session: its durable identity plus
// the live process, activity monitor and output buffer attached to it.
// Mutable fields are guarded by mu; the Registry is the only writer.
type Session struct {
	mu sync.RWMutex

	id              string
	workingDir      string
	name            string
	status          Status
	activity        ActivityState
	activityWarning string
	lastError       string
	createdAt       time.Time
	lastActivityAt  time.Time
	logPath         string

	process *Process
	monitor *Monitor
	buffer  *termbuf.Buffer

	// Events produced while the session record is still being initialized
	// are parked here and flushed in order once it is registered, so
	// subscribers never see events for a session that GetSnapshot cannot
	// yet return.
	pending []Event
	ready   bool

	titleRequested bool
}

// Snapshot is the durable, serializable view of a session
type Snapshot struct {
	SessionID       string        `json:"sessionId"`
	WorkingDir      string        `json:"cwd"`
	Name            string        `json:"sessionName,omitempty"`
	Status          Status        `json:"status"`
	Activity        ActivityState `json:"activityState"`
	ActivityWarning string        `json:"activityWarning,omitempty"`
	LastError       string        `json:"lastError,omitempty"`
	CreatedAt       int64         `json:"createdAt"`
	LastActivityAt  int64         `json:"lastActivityAt"`
}

func (s *Session) ID() string {
	return s.id
}

// Snapshot returns the serializable view of the session
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		SessionID:       s.id,
		WorkingDir:      s.workingDir,
		Name:            s.name,
		Status:          s.status,
		Activity:        s.activity,
		ActivityWarning: s.activityWarning,
		LastError:       s.lastError,
		CreatedAt:       s.createdAt.UnixMilli(),
		LastActivityAt:  s.lastActivityAt.UnixMilli(),
	}
}

// BufferContents returns the retained terminal output for replay
func (s *Session) BufferContents() string {
	return s.buffer.String()
}

// touch advances the activity timestamp, keeping it monotonic
func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now := time.Now(); now.After(s.lastActivityAt) {
		s.lastActivityAt = now
	}
}

// park queues an event if the session is not yet ready; returns true when
// the event was parked. Flushing happens via takePending.
func (s *Session) park(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return false
	}
	s.pending = append(s.pending, ev)
	return true
}

// takePending marks the session ready and returns the parked events in order
func (s *Session) takePending() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	pending := s.pending
	s.pending = nil
	return pending
}
