package claude

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xiaoyuanzhu-com/claude-deck/config"
	"github.com/xiaoyuanzhu-com/claude-deck/log"
	"github.com/xiaoyuanzhu-com/claude-deck/termbuf"
)

const (
	saveDebounceDelay   = 300 * time.Millisecond
	idAllocationRetries = 5
	titleTimeout        = 15 * time.Second
	maxDefaultTitleLen  = 48
)

// TitleGenerator produces a short display name from a session's first prompt
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, prompt string) (string, error)
}

// Options configures a Registry. Zero-valued fields fall back to the
// application config.
type Options struct {
	Store          Store
	Titles         TitleGenerator // optional
	StateLogDir    string
	ClaudeBinary   string
	BufferMaxLines int
	BufferMaxBytes int
	SaveDelay      time.Duration
}

// StartRequest describes a new session launch
type StartRequest struct {
	WorkingDir     string
	Name           string
	Model          string
	PermissionMode string
	InitialPrompt  string
	Cols, Rows     uint16
}

// State is the full registry snapshot returned to clients
type State struct {
	Sessions        []Snapshot `json:"sessions"`
	Projects        []Project  `json:"projects"`
	ActiveSessionID string     `json:"activeSessionId,omitempty"`
}

// Registry supervises every Claude session: it owns the session records,
// routes process and monitor callbacks into them, fans events out to
// subscribers, and persists state through the Store. High-churn updates
// (output, activity) are persisted on a debounce; lifecycle transitions
// are persisted immediately.
type Registry struct {
	mu              sync.RWMutex
	sessions        map[string]*Session
	projects        []Project
	activeSessionID string

	store  Store
	titles TitleGenerator
	saver  *saver

	subscribersMu sync.RWMutex
	subscribers   map[chan Event]struct{}
	closed        bool

	stateLogDir    string
	claudeBinary   string
	bufferMaxLines int
	bufferMaxBytes int
}

// NewRegistry builds a registry and rehydrates persisted state. Rehydrated
// sessions have no live process, so their status is forced to stopped and
// their activity to idle regardless of what was persisted mid-crash.
func NewRegistry(opts Options) (*Registry, error) {
	cfg := config.Get()
	if opts.StateLogDir == "" {
		opts.StateLogDir = cfg.StateLogDir
	}
	if opts.ClaudeBinary == "" {
		opts.ClaudeBinary = cfg.ClaudeBinary
	}
	if opts.BufferMaxLines == 0 {
		opts.BufferMaxLines = cfg.BufferMaxLines
	}
	if opts.BufferMaxBytes == 0 {
		opts.BufferMaxBytes = cfg.BufferMaxBytes
	}
	if opts.SaveDelay == 0 {
		opts.SaveDelay = saveDebounceDelay
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("registry requires a store")
	}

	if err := os.MkdirAll(opts.StateLogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state log directory: %w", err)
	}

	r := &Registry{
		sessions:       make(map[string]*Session),
		subscribers:    make(map[chan Event]struct{}),
		store:          opts.Store,
		titles:         opts.Titles,
		stateLogDir:    opts.StateLogDir,
		claudeBinary:   opts.ClaudeBinary,
		bufferMaxLines: opts.BufferMaxLines,
		bufferMaxBytes: opts.BufferMaxBytes,
	}
	r.saver = newSaver(opts.SaveDelay, r.saveState)

	if err := r.rehydrate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) rehydrate() error {
	snapshots, err := r.store.LoadSessions()
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}
	for _, snap := range snapshots {
		sess := &Session{
			id:             snap.SessionID,
			workingDir:     snap.WorkingDir,
			name:           snap.Name,
			status:         StatusStopped,
			activity:       ActivityIdle,
			lastError:      snap.LastError,
			createdAt:      time.UnixMilli(snap.CreatedAt),
			lastActivityAt: time.UnixMilli(snap.LastActivityAt),
			logPath:        r.logPath(snap.SessionID),
			ready:          true,
		}
		if snap.Name != "" {
			sess.titleRequested = true
		}
		r.wire(sess)
		r.sessions[snap.SessionID] = sess
	}

	projects, err := r.store.LoadProjects()
	if err != nil {
		return fmt.Errorf("failed to load projects: %w", err)
	}
	r.projects = projects

	active, err := r.store.LoadActiveSessionID()
	if err != nil {
		return fmt.Errorf("failed to load active session: %w", err)
	}
	if _, ok := r.sessions[active]; ok {
		r.activeSessionID = active
	}

	log.Info().
		Int("sessions", len(r.sessions)).
		Int("projects", len(r.projects)).
		Msg("registry rehydrated")
	return nil
}

func (r *Registry) logPath(id string) string {
	return filepath.Join(r.stateLogDir, id+".jsonl")
}

// ensureLogFile creates the session's state log if it does not exist, so the
// monitor has something to watch before the CLI's first hook fires.
func ensureLogFile(path string) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to create state log")
		return
	}
	f.Close()
}

// wire attaches a process, monitor and output buffer to a session record
// and connects their callbacks to the registry.
func (r *Registry) wire(sess *Session) {
	sess.buffer = termbuf.New(r.bufferMaxLines, r.bufferMaxBytes)

	sess.process = NewProcess(ProcessCallbacks{
		OnData: func(chunk string) {
			sess.buffer.Append(chunk)
			sess.touch()
			r.publishSession(sess, Event{Type: EventData, SessionID: sess.id, Data: chunk})
			r.saver.Schedule()
		},
		OnStatus: func(status Status) {
			sess.mu.Lock()
			sess.status = status
			if status == StatusStarting {
				sess.lastError = ""
			}
			sess.mu.Unlock()
			r.publishSession(sess, Event{Type: EventStatus, SessionID: sess.id, Status: status})
			r.persistNow()
		},
		OnError: func(message string) {
			sess.mu.Lock()
			sess.lastError = message
			sess.mu.Unlock()
			r.publishSession(sess, Event{Type: EventError, SessionID: sess.id, Error: message})
			r.persistNow()
		},
		OnExit: func(exitCode int) {
			// Preserve the final activity state so a finished session still
			// shows what it was last doing.
			sess.monitor.Stop(true)
		},
	})

	sess.monitor = NewMonitor(MonitorCallbacks{
		OnActivity: func(state ActivityState) {
			sess.mu.Lock()
			sess.activity = state
			sess.mu.Unlock()
			sess.touch()
			r.publishSession(sess, Event{Type: EventActivity, SessionID: sess.id, Activity: state})
			r.saver.Schedule()
		},
		OnEvent: func(ev HookEvent) {
			sess.touch()
			r.saver.Schedule()
			r.maybeGenerateTitle(sess, ev)
		},
		OnDegraded: func(reason string) {
			sess.mu.Lock()
			sess.activityWarning = reason
			sess.mu.Unlock()
			r.saver.Schedule()
		},
	})
}

// Start launches a brand-new session in req.WorkingDir
func (r *Registry) Start(req StartRequest) (Snapshot, error) {
	if info, err := os.Stat(req.WorkingDir); err != nil || !info.IsDir() {
		return Snapshot{}, ErrInvalidWorkingDir
	}

	r.mu.Lock()
	id, err := r.allocateIDLocked()
	if err != nil {
		r.mu.Unlock()
		return Snapshot{}, err
	}
	now := time.Now()
	sess := &Session{
		id:             id,
		workingDir:     req.WorkingDir,
		name:           req.Name,
		status:         StatusIdle,
		activity:       ActivityUnknown,
		createdAt:      now,
		lastActivityAt: now,
		logPath:        r.logPath(id),
	}
	if req.Name != "" {
		sess.titleRequested = true
	}
	r.wire(sess)
	r.sessions[id] = sess
	r.mu.Unlock()

	launch := LaunchOptions{
		Binary:         r.claudeBinary,
		WorkingDir:     req.WorkingDir,
		SessionID:      id,
		Model:          req.Model,
		PermissionMode: req.PermissionMode,
		InitialPrompt:  req.InitialPrompt,
	}

	ensureLogFile(sess.logPath)
	sess.monitor.Start(sess.logPath)
	err = sess.process.Start(launch, req.Cols, req.Rows)
	r.flushPending(sess)
	if err != nil {
		sess.mu.Lock()
		sess.status = StatusError
		sess.lastError = err.Error()
		sess.mu.Unlock()
		sess.monitor.Stop(true)
		r.persistNow()
		return sess.Snapshot(), err
	}

	log.Info().Str("session_id", id).Str("cwd", req.WorkingDir).Msg("session started")
	r.persistNow()
	return sess.Snapshot(), nil
}

// Resume relaunches a stopped session with its original conversation.
// A no-op when the session is already starting or running.
func (r *Registry) Resume(id string, cols, rows uint16) error {
	sess, err := r.get(id)
	if err != nil {
		return err
	}
	if st := sess.process.Status(); st == StatusStarting || st == StatusRunning {
		return nil
	}

	sess.mu.RLock()
	workingDir := sess.workingDir
	sess.mu.RUnlock()

	launch := LaunchOptions{
		Binary:          r.claudeBinary,
		WorkingDir:      workingDir,
		ResumeSessionID: id,
	}

	ensureLogFile(sess.logPath)
	sess.monitor.Start(sess.logPath)
	if err := sess.process.Start(launch, cols, rows); err != nil {
		sess.mu.Lock()
		sess.status = StatusError
		sess.lastError = err.Error()
		sess.mu.Unlock()
		// A failed launch keeps the last observed activity state visible
		// instead of wiping it to unknown; the record still describes what
		// the session was doing before.
		sess.monitor.Stop(true)
		r.persistNow()
		return err
	}

	log.Info().Str("session_id", id).Msg("session resumed")
	r.persistNow()
	return nil
}

// Fork starts a new session that branches off an existing conversation
func (r *Registry) Fork(sourceID string, cols, rows uint16) (Snapshot, error) {
	source, err := r.get(sourceID)
	if err != nil {
		return Snapshot{}, err
	}

	source.mu.RLock()
	workingDir := source.workingDir
	source.mu.RUnlock()

	if info, err := os.Stat(workingDir); err != nil || !info.IsDir() {
		return Snapshot{}, ErrInvalidWorkingDir
	}

	r.mu.Lock()
	id, err := r.allocateIDLocked()
	if err != nil {
		r.mu.Unlock()
		return Snapshot{}, err
	}
	now := time.Now()
	sess := &Session{
		id:             id,
		workingDir:     workingDir,
		status:         StatusIdle,
		activity:       ActivityUnknown,
		createdAt:      now,
		lastActivityAt: now,
		logPath:        r.logPath(id),
	}
	r.wire(sess)
	r.sessions[id] = sess
	r.mu.Unlock()

	launch := LaunchOptions{
		Binary:          r.claudeBinary,
		WorkingDir:      workingDir,
		ResumeSessionID: sourceID,
		ForkSession:     true,
	}

	ensureLogFile(sess.logPath)
	sess.monitor.Start(sess.logPath)
	err = sess.process.Start(launch, cols, rows)
	r.flushPending(sess)
	if err != nil {
		sess.mu.Lock()
		sess.status = StatusError
		sess.lastError = err.Error()
		sess.mu.Unlock()
		sess.monitor.Stop(true)
		r.persistNow()
		return sess.Snapshot(), err
	}

	log.Info().Str("session_id", id).Str("source", sourceID).Msg("session forked")
	r.persistNow()
	return sess.Snapshot(), nil
}

// Stop gracefully stops a session's process. Blocks until the process has
// exited or the stop windows have elapsed.
func (r *Registry) Stop(id string) error {
	sess, err := r.get(id)
	if err != nil {
		return err
	}
	sess.process.Stop()
	r.persistNow()
	return nil
}

// Delete removes a session entirely: process, monitor, state log and record
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	activeCleared := r.activeSessionID == id
	if activeCleared {
		r.activeSessionID = ""
	}
	r.mu.Unlock()

	sess.monitor.Stop(false)
	sess.process.Stop()
	sess.process.Dispose()

	if err := os.Remove(sess.logPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("session_id", id).Msg("failed to remove state log")
	}

	if activeCleared {
		r.publish(Event{Type: EventActiveChanged})
	}
	log.Info().Str("session_id", id).Msg("session deleted")
	r.persistNow()
	return nil
}

// Write forwards terminal input to a session. A no-op for sessions without
// a live process.
func (r *Registry) Write(id, data string) error {
	sess, err := r.get(id)
	if err != nil {
		return err
	}
	sess.process.Write(data)
	return nil
}

// Resize updates a session's PTY window size
func (r *Registry) Resize(id string, cols, rows uint16) error {
	sess, err := r.get(id)
	if err != nil {
		return err
	}
	sess.process.Resize(cols, rows)
	return nil
}

// Rename sets a session's display name and suppresses title generation
func (r *Registry) Rename(id, name string) error {
	sess, err := r.get(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	sess.name = name
	sess.titleRequested = true
	sess.mu.Unlock()

	r.publish(Event{Type: EventTitleChanged, SessionID: id, Name: name})
	r.persistNow()
	return nil
}

// SetActive points the active-session marker at id, or clears it when id
// is empty.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	if id != "" {
		if _, ok := r.sessions[id]; !ok {
			r.mu.Unlock()
			return ErrSessionNotFound
		}
	}
	if r.activeSessionID == id {
		r.mu.Unlock()
		return nil
	}
	r.activeSessionID = id
	r.mu.Unlock()

	r.publish(Event{Type: EventActiveChanged, SessionID: id})
	r.persistNow()
	return nil
}

// GetSession returns the session with the given id
func (r *Registry) GetSession(id string) (*Session, error) {
	return r.get(id)
}

// GetState returns a consistent snapshot of all sessions, projects and the
// active-session marker.
func (r *Registry) GetState() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stateLocked()
}

func (r *Registry) stateLocked() State {
	sessions := make([]Snapshot, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess.Snapshot())
	}
	sortSnapshots(sessions)
	projects := make([]Project, len(r.projects))
	copy(projects, r.projects)
	return State{
		Sessions:        sessions,
		Projects:        projects,
		ActiveSessionID: r.activeSessionID,
	}
}

// AddProject registers a working directory for display grouping
func (r *Registry) AddProject(path string) error {
	r.mu.Lock()
	for _, p := range r.projects {
		if p.Path == path {
			r.mu.Unlock()
			return nil
		}
	}
	r.projects = append(r.projects, Project{Path: path})
	r.mu.Unlock()

	r.persistNow()
	return nil
}

// RemoveProject unregisters a project. Rejected while any session still
// uses the path as its working directory.
func (r *Registry) RemoveProject(path string) error {
	r.mu.Lock()
	for _, sess := range r.sessions {
		sess.mu.RLock()
		inUse := sess.workingDir == path
		sess.mu.RUnlock()
		if inUse {
			r.mu.Unlock()
			return ErrProjectInUse
		}
	}
	found := false
	kept := r.projects[:0]
	for _, p := range r.projects {
		if p.Path == path {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	r.projects = kept
	r.mu.Unlock()

	if !found {
		return ErrProjectNotFound
	}
	r.persistNow()
	return nil
}

// UpdateProject applies partial updates to a project's display and launch
// defaults. Nil fields are left unchanged.
func (r *Registry) UpdateProject(path string, collapsed *bool, model, permissionMode *string) error {
	r.mu.Lock()
	found := false
	for i := range r.projects {
		if r.projects[i].Path != path {
			continue
		}
		found = true
		if collapsed != nil {
			r.projects[i].Collapsed = *collapsed
		}
		if model != nil {
			r.projects[i].DefaultModel = *model
		}
		if permissionMode != nil {
			r.projects[i].DefaultPermissionMode = *permissionMode
		}
		break
	}
	r.mu.Unlock()

	if !found {
		return ErrProjectNotFound
	}
	r.persistNow()
	return nil
}

// Subscribe registers a callback for registry events and returns an
// unsubscribe function. Events are delivered from a dedicated goroutine;
// a subscriber that falls far behind loses events rather than blocking
// the registry.
func (r *Registry) Subscribe(cb EventCallback) func() {
	ch := make(chan Event, 256)

	r.subscribersMu.Lock()
	if r.closed {
		r.subscribersMu.Unlock()
		close(ch)
		return func() {}
	}
	r.subscribers[ch] = struct{}{}
	r.subscribersMu.Unlock()

	go func() {
		for ev := range ch {
			cb(ev)
		}
	}()

	return func() {
		r.subscribersMu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.subscribersMu.Unlock()
	}
}

func (r *Registry) publish(ev Event) {
	r.subscribersMu.RLock()
	defer r.subscribersMu.RUnlock()
	for ch := range r.subscribers {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("type", string(ev.Type)).Msg("dropping event for slow subscriber")
		}
	}
}

// publishSession routes an event through the session's pending queue while
// the record is still initializing.
func (r *Registry) publishSession(sess *Session, ev Event) {
	if sess.park(ev) {
		return
	}
	r.publish(ev)
}

func (r *Registry) flushPending(sess *Session) {
	for _, ev := range sess.takePending() {
		r.publish(ev)
	}
}

func (r *Registry) get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// allocateIDLocked picks a session id that is not already registered.
// UUID collisions are effectively impossible, but ids also come from
// persisted state, so the check guards against a corrupted store. After
// bounded retries it falls back to random hex rather than looping forever.
func (r *Registry) allocateIDLocked() (string, error) {
	for i := 0; i < idAllocationRetries; i++ {
		id := uuid.New().String()
		if _, exists := r.sessions[id]; !exists {
			return id, nil
		}
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to allocate session id: %w", err)
	}
	id := hex.EncodeToString(buf)
	if _, exists := r.sessions[id]; exists {
		return "", fmt.Errorf("failed to allocate unique session id")
	}
	return id, nil
}

// maybeGenerateTitle kicks off asynchronous title generation the first time
// an unnamed session sees a user prompt.
func (r *Registry) maybeGenerateTitle(sess *Session, ev HookEvent) {
	if ev.HookEventName != "UserPromptSubmit" || ev.Prompt == "" {
		return
	}
	sess.mu.Lock()
	if sess.titleRequested || sess.name != "" {
		sess.mu.Unlock()
		return
	}
	sess.titleRequested = true
	sess.mu.Unlock()

	go func() {
		title := defaultTitle(ev.Prompt)
		if r.titles != nil {
			ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
			defer cancel()
			if generated, err := r.titles.GenerateTitle(ctx, ev.Prompt); err == nil && generated != "" {
				title = generated
			} else if err != nil {
				log.Debug().Err(err).Str("session_id", sess.id).Msg("title generation failed, using default")
			}
		}

		sess.mu.Lock()
		if sess.name != "" {
			// Renamed while we were generating; the user wins.
			sess.mu.Unlock()
			return
		}
		sess.name = title
		sess.mu.Unlock()

		r.publish(Event{Type: EventTitleChanged, SessionID: sess.id, Name: title})
		r.persistNow()
	}()
}

// defaultTitle derives a display name from the first prompt line
func defaultTitle(prompt string) string {
	for i, r := range prompt {
		if r == '\n' {
			prompt = prompt[:i]
			break
		}
	}
	runes := []rune(prompt)
	if len(runes) > maxDefaultTitleLen {
		return string(runes[:maxDefaultTitleLen]) + "…"
	}
	return prompt
}

// persistNow writes the full state immediately and disarms any pending
// debounced save.
func (r *Registry) persistNow() {
	r.saver.Flush()
}

// saveState is the single persistence path, invoked by the saver
func (r *Registry) saveState() {
	r.mu.RLock()
	state := r.stateLocked()
	r.mu.RUnlock()

	if err := r.store.SaveSessions(state.Sessions); err != nil {
		log.Error().Err(err).Msg("failed to persist sessions")
	}
	if err := r.store.SaveProjects(state.Projects); err != nil {
		log.Error().Err(err).Msg("failed to persist projects")
	}
	if err := r.store.SaveActiveSessionID(state.ActiveSessionID); err != nil {
		log.Error().Err(err).Msg("failed to persist active session")
	}
}

// Shutdown tears down all live sessions without waiting for graceful exits
// and writes a final state snapshot.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	for _, sess := range sessions {
		sess.monitor.Stop(true)
		sess.process.Dispose()
	}

	r.saver.Stop()
	r.saveState()

	r.subscribersMu.Lock()
	r.closed = true
	for ch := range r.subscribers {
		close(ch)
	}
	r.subscribers = make(map[chan Event]struct{})
	r.subscribersMu.Unlock()

	log.Info().Int("sessions", len(sessions)).Msg("registry shut down")
}

func sortSnapshots(snapshots []Snapshot) {
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].CreatedAt != snapshots[j].CreatedAt {
			return snapshots[i].CreatedAt < snapshots[j].CreatedAt
		}
		return snapshots[i].SessionID < snapshots[j].SessionID
	})
}
