package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/xiaoyuanzhu-com/claude-deck/log"
)

const (
	// monitorTickInterval drives the fallback ticker; monitorStaleAfter is
	// how long the log may go unread before a tick forces a re-check even
	// while the filesystem watcher is healthy.
	monitorTickInterval = 180 * time.Millisecond
	monitorStaleAfter   = 250 * time.Millisecond
)

// MonitorCallbacks receives parsed hook events and activity transitions
type MonitorCallbacks struct {
	OnActivity func(state ActivityState)
	OnEvent    func(event HookEvent)
	// OnDegraded fires once per Start if the filesystem watcher could not
	// be established and the monitor is running on polling alone.
	OnDegraded func(reason string)
}

// Monitor tails a session's append-only NDJSON state log and reduces its
// hook events into an activity state. It reads incrementally from a byte
// offset, carries partial trailing lines across reads, and drops malformed
// lines without losing its place.
//
// Change detection is fsnotify first with a ticker as backstop: ticks only
// trigger a read when the watcher is degraded or the log has not been read
// for monitorStaleAfter. Read requests are coalesced through a one-slot
// channel so concurrent wakeups collapse into a single follow-up read.
type Monitor struct {
	mu       sync.Mutex
	logPath  string
	offset   int64
	lineBuf  []byte
	state    ActivityState
	lastRead time.Time
	degraded bool

	pollCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	callbacks MonitorCallbacks
}

func NewMonitor(callbacks MonitorCallbacks) *Monitor {
	return &Monitor{
		state:     ActivityUnknown,
		callbacks: callbacks,
	}
}

// State returns the current reduced activity state
func (m *Monitor) State() ActivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start begins tailing logPath from the beginning. Safe to call after Stop
// to re-attach, as happens when a stopped session is resumed.
func (m *Monitor) Start(logPath string) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.logPath = logPath
	m.offset = 0
	m.lineBuf = nil
	m.lastRead = time.Time{}
	m.degraded = false
	m.pollCh = make(chan struct{}, 1)
	m.running = true

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		// Watch the containing directory: watching the file itself breaks
		// if the CLI recreates it.
		if addErr := watcher.Add(filepath.Dir(logPath)); addErr != nil {
			watcher.Close()
			watcher = nil
			err = addErr
		}
	}
	if watcher == nil {
		m.degraded = true
		log.Warn().Err(err).Str("path", logPath).Msg("state log watcher unavailable, falling back to polling")
		if m.callbacks.OnDegraded != nil {
			go m.callbacks.OnDegraded("file watching unavailable; activity updates are poll-based and may lag")
		}
	}
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx, watcher)

	// Pick up anything already in the log.
	m.requestPoll()
}

// Stop halts tailing. When preserveState is false the activity state resets
// to unknown; preserving it keeps the last observed state visible, which is
// what a deliberate session stop wants.
func (m *Monitor) Stop(preserveState bool) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	m.mu.Lock()
	m.offset = 0
	m.lineBuf = nil
	changed := false
	if !preserveState && m.state != ActivityUnknown {
		m.state = ActivityUnknown
		changed = true
	}
	m.mu.Unlock()

	if changed && m.callbacks.OnActivity != nil {
		m.callbacks.OnActivity(ActivityUnknown)
	}
}

// requestPoll asks the run loop for a read; a request already pending
// absorbs this one.
func (m *Monitor) requestPoll() {
	m.mu.Lock()
	ch := m.pollCh
	running := m.running
	m.mu.Unlock()
	if !running || ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// run is the single goroutine that performs reads, so reads never overlap
func (m *Monitor) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer m.wg.Done()
	if watcher != nil {
		defer watcher.Close()
	}

	ticker := time.NewTicker(monitorTickInterval)
	defer ticker.Stop()

	var events chan fsnotify.Event
	var errors chan error
	if watcher != nil {
		events = watcher.Events
		errors = watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				m.markDegraded("file watcher closed")
				continue
			}
			if ev.Name == m.path() && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				m.readNew()
			}

		case err, ok := <-errors:
			if !ok {
				errors = nil
				continue
			}
			log.Debug().Err(err).Msg("state log watcher error")
			m.markDegraded("file watcher reported an error; activity updates are poll-based and may lag")

		case <-m.pollCh:
			m.readNew()

		case <-ticker.C:
			if m.tickDue() {
				m.readNew()
			}
		}
	}
}

func (m *Monitor) path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logPath
}

func (m *Monitor) markDegraded(reason string) {
	m.mu.Lock()
	already := m.degraded
	m.degraded = true
	m.mu.Unlock()
	if !already && m.callbacks.OnDegraded != nil {
		m.callbacks.OnDegraded(reason)
	}
}

// tickDue reports whether the fallback ticker should trigger a read
func (m *Monitor) tickDue() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded || time.Since(m.lastRead) >= monitorStaleAfter
}

// readNew reads everything appended since the last read, splits it into
// lines, and dispatches each complete line. Only called from the run loop.
func (m *Monitor) readNew() {
	m.mu.Lock()
	path := m.logPath
	offset := m.offset
	m.lastRead = time.Now()
	m.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		// The CLI may not have created the log yet.
		return
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() < offset {
		// Log was truncated or replaced; start over.
		offset = 0
		m.mu.Lock()
		m.offset = 0
		m.lineBuf = nil
		m.mu.Unlock()
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return
	}
	data, err := io.ReadAll(f)
	if err != nil && len(data) == 0 {
		return
	}
	if len(data) == 0 {
		return
	}

	m.mu.Lock()
	m.offset += int64(len(data))
	m.lineBuf = append(m.lineBuf, data...)
	var lines [][]byte
	for {
		idx := bytes.IndexByte(m.lineBuf, '\n')
		if idx < 0 {
			break
		}
		line := make([]byte, idx)
		copy(line, m.lineBuf[:idx])
		lines = append(lines, line)
		m.lineBuf = m.lineBuf[idx+1:]
	}
	m.mu.Unlock()

	for _, line := range lines {
		m.dispatchLine(line)
	}
}

func (m *Monitor) dispatchLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	var ev HookEvent
	if err := json.Unmarshal(line, &ev); err != nil || !ev.valid() {
		log.Debug().Str("line", string(line)).Msg("dropping malformed state log line")
		return
	}

	m.mu.Lock()
	next := reduceActivity(m.state, ev)
	changed := next != m.state
	m.state = next
	m.mu.Unlock()

	if m.callbacks.OnEvent != nil {
		m.callbacks.OnEvent(ev)
	}
	if changed && m.callbacks.OnActivity != nil {
		m.callbacks.OnActivity(next)
	}
}
