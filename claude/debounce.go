package claude

import (
	"sync"
	"time"
)

// saver coalesces bursts of persistence triggers into a single delayed write.
// Only one timer is ever armed; each Schedule pushes the deadline out again,
// so a stream of output chunks results in one save shortly after the stream
// pauses. Flush runs the save immediately and disarms any pending timer.
type saver struct {
	mu      sync.Mutex
	timer   *time.Timer
	delay   time.Duration
	fn      func()
	stopped bool
}

func newSaver(delay time.Duration, fn func()) *saver {
	return &saver{delay: delay, fn: fn}
}

// Schedule arms (or re-arms) the delayed save
func (s *saver) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.fire)
}

func (s *saver) fire() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()
	s.fn()
}

// Flush cancels any pending timer and runs the save synchronously
func (s *saver) Flush() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.fn()
}

// Stop disarms the saver permanently without a final save
func (s *saver) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
