package claude

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory Store for registry tests
type memStore struct {
	mu       sync.Mutex
	sessions []Snapshot
	projects []Project
	active   string
}

func (m *memStore) LoadSessions() ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Snapshot(nil), m.sessions...), nil
}

func (m *memStore) SaveSessions(sessions []Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append([]Snapshot(nil), sessions...)
	return nil
}

func (m *memStore) LoadProjects() ([]Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Project(nil), m.projects...), nil
}

func (m *memStore) SaveProjects(projects []Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects = append([]Project(nil), projects...)
	return nil
}

func (m *memStore) LoadActiveSessionID() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, nil
}

func (m *memStore) SaveActiveSessionID(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = id
	return nil
}

func (m *memStore) storedSessions() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Snapshot(nil), m.sessions...)
}

// fakeCLI writes a shell script that prints a line and then idles, standing
// in for the real binary.
func fakeCLI(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-claude")
	script := "#!/bin/sh\necho ready\nwhile true; do sleep 0.1; done\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write fake cli: %v", err)
	}
	return path
}

func newTestRegistry(t *testing.T, store *memStore, binary string) *Registry {
	t.Helper()
	r, err := NewRegistry(Options{
		Store:          store,
		StateLogDir:    t.TempDir(),
		ClaudeBinary:   binary,
		BufferMaxLines: 1000,
		BufferMaxBytes: 64 * 1024,
		SaveDelay:      20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	t.Cleanup(r.Shutdown)
	return r
}

func waitForStatus(t *testing.T, r *Registry, id string, want Status) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, s := range r.GetState().Sessions {
			if s.SessionID == id && s.Status == want {
				return s
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("session %s never reached status %s", id, want)
	return Snapshot{}
}

func TestRegistry_StartCreatesSessionAndPersists(t *testing.T) {
	store := &memStore{}
	r := newTestRegistry(t, store, fakeCLI(t))

	snap, err := r.Start(StartRequest{WorkingDir: t.TempDir(), Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if snap.SessionID == "" {
		t.Fatal("expected a session id")
	}

	got := waitForStatus(t, r, snap.SessionID, StatusRunning)
	if got.WorkingDir != snap.WorkingDir {
		t.Errorf("working dir mismatch: %q vs %q", got.WorkingDir, snap.WorkingDir)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(store.storedSessions()) == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("session was never persisted")
}

func TestRegistry_StartRejectsMissingWorkingDir(t *testing.T) {
	store := &memStore{}
	r := newTestRegistry(t, store, fakeCLI(t))

	_, err := r.Start(StartRequest{WorkingDir: "/definitely/does/not/exist"})
	if err != ErrInvalidWorkingDir {
		t.Fatalf("expected ErrInvalidWorkingDir, got %v", err)
	}
	if n := len(r.GetState().Sessions); n != 0 {
		t.Errorf("expected no session records, got %d", n)
	}
}

func TestRegistry_StopTransitionsToStopped(t *testing.T) {
	store := &memStore{}
	r := newTestRegistry(t, store, fakeCLI(t))

	snap, err := r.Start(StartRequest{WorkingDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForStatus(t, r, snap.SessionID, StatusRunning)

	if err := r.Stop(snap.SessionID); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	waitForStatus(t, r, snap.SessionID, StatusStopped)

	// Stopping again is harmless.
	if err := r.Stop(snap.SessionID); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestRegistry_ResumeReusesIdentityAndNoopsWhileRunning(t *testing.T) {
	store := &memStore{}
	r := newTestRegistry(t, store, fakeCLI(t))
	workDir := t.TempDir()

	snap, err := r.Start(StartRequest{WorkingDir: workDir})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForStatus(t, r, snap.SessionID, StatusRunning)

	// Resuming a session that is already running is a no-op.
	if err := r.Resume(snap.SessionID, 80, 24); err != nil {
		t.Fatalf("Resume of a running session should be a no-op, got %v", err)
	}
	if got := waitForStatus(t, r, snap.SessionID, StatusRunning); got.WorkingDir != workDir {
		t.Errorf("no-op resume changed working dir to %q", got.WorkingDir)
	}

	if err := r.Stop(snap.SessionID); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	waitForStatus(t, r, snap.SessionID, StatusStopped)

	if err := r.Resume(snap.SessionID, 80, 24); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	got := waitForStatus(t, r, snap.SessionID, StatusRunning)
	if got.SessionID != snap.SessionID {
		t.Errorf("resume changed the session id: %q vs %q", got.SessionID, snap.SessionID)
	}
	if got.WorkingDir != workDir {
		t.Errorf("resume changed the working dir: %q vs %q", got.WorkingDir, workDir)
	}
	if n := len(r.GetState().Sessions); n != 1 {
		t.Errorf("resume must reuse the record, got %d sessions", n)
	}

	if err := r.Resume("no-such-session", 0, 0); err != ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRegistry_ForkAllocatesNewIdWithSourceCwd(t *testing.T) {
	store := &memStore{}
	r := newTestRegistry(t, store, fakeCLI(t))
	workDir := t.TempDir()

	source, err := r.Start(StartRequest{WorkingDir: workDir})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForStatus(t, r, source.SessionID, StatusRunning)

	fork, err := r.Fork(source.SessionID, 80, 24)
	if err != nil {
		t.Fatalf("Fork failed: %v", err)
	}
	if fork.SessionID == "" || fork.SessionID == source.SessionID {
		t.Errorf("fork must allocate a fresh id, got %q (source %q)", fork.SessionID, source.SessionID)
	}
	if fork.WorkingDir != workDir {
		t.Errorf("fork must copy the source cwd, got %q", fork.WorkingDir)
	}
	waitForStatus(t, r, fork.SessionID, StatusRunning)
	if n := len(r.GetState().Sessions); n != 2 {
		t.Errorf("expected source and fork records, got %d sessions", n)
	}

	if _, err := r.Fork("no-such-session", 0, 0); err != ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRegistry_NewIdsNeverCollideWithRehydrated(t *testing.T) {
	const seeded = "rehydrated-session-id"
	store := &memStore{
		sessions: []Snapshot{{
			SessionID:      seeded,
			WorkingDir:     "/tmp",
			Status:         StatusStopped,
			Activity:       ActivityIdle,
			CreatedAt:      time.Now().UnixMilli(),
			LastActivityAt: time.Now().UnixMilli(),
		}},
	}
	r := newTestRegistry(t, store, fakeCLI(t))

	// Allocation consults the registered set, which includes rehydrated ids.
	r.mu.Lock()
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		id, err := r.allocateIDLocked()
		if err != nil {
			r.mu.Unlock()
			t.Fatalf("allocateIDLocked failed: %v", err)
		}
		if id == seeded {
			r.mu.Unlock()
			t.Fatalf("allocated id collides with rehydrated id %q", seeded)
		}
		if seen[id] {
			r.mu.Unlock()
			t.Fatalf("allocated duplicate id %q", id)
		}
		seen[id] = true
	}
	r.mu.Unlock()

	// A real post-restart start also gets a distinct id.
	snap, err := r.Start(StartRequest{WorkingDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if snap.SessionID == seeded {
		t.Errorf("started session reused rehydrated id %q", seeded)
	}
	if n := len(r.GetState().Sessions); n != 2 {
		t.Errorf("expected rehydrated + new session, got %d", n)
	}
}

func TestRegistry_FailedResumePreservesActivityState(t *testing.T) {
	gone := filepath.Join(t.TempDir(), "gone") // never created
	store := &memStore{
		sessions: []Snapshot{{
			SessionID:      "s1",
			WorkingDir:     gone,
			Status:         StatusStopped,
			Activity:       ActivityWorking,
			CreatedAt:      time.Now().UnixMilli(),
			LastActivityAt: time.Now().UnixMilli(),
		}},
	}
	r := newTestRegistry(t, store, fakeCLI(t))

	if err := r.Resume("s1", 80, 24); err != ErrInvalidWorkingDir {
		t.Fatalf("expected ErrInvalidWorkingDir, got %v", err)
	}

	s := r.GetState().Sessions[0]
	if s.Status != StatusError {
		t.Errorf("expected error status after failed resume, got %s", s.Status)
	}
	// Rehydration forced activity to idle; a failed relaunch must keep that
	// visible instead of wiping it to unknown.
	if s.Activity != ActivityIdle {
		t.Errorf("expected preserved activity idle, got %s", s.Activity)
	}
}

func TestRegistry_ExecutableNotFoundReportsError(t *testing.T) {
	store := &memStore{}
	r := newTestRegistry(t, store, "definitely-not-a-real-binary-4f2a")

	snap, err := r.Start(StartRequest{WorkingDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	got := waitForStatus(t, r, snap.SessionID, StatusError)
	if !strings.Contains(got.LastError, "not found") {
		t.Errorf("expected a not-found error, got %q", got.LastError)
	}
}

func TestRegistry_DeleteRemovesEverything(t *testing.T) {
	store := &memStore{}
	r := newTestRegistry(t, store, fakeCLI(t))

	snap, err := r.Start(StartRequest{WorkingDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForStatus(t, r, snap.SessionID, StatusRunning)

	if err := r.SetActive(snap.SessionID); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	if err := r.Delete(snap.SessionID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	state := r.GetState()
	if len(state.Sessions) != 0 {
		t.Errorf("expected no sessions after delete, got %d", len(state.Sessions))
	}
	if state.ActiveSessionID != "" {
		t.Errorf("expected active pointer cleared, got %q", state.ActiveSessionID)
	}
	if err := r.Delete(snap.SessionID); err != ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound on second delete, got %v", err)
	}
}

func TestRegistry_RehydrationForcesStoppedIdle(t *testing.T) {
	store := &memStore{
		sessions: []Snapshot{{
			SessionID:      "crashed-session",
			WorkingDir:     "/tmp",
			Status:         StatusRunning,
			Activity:       ActivityWorking,
			CreatedAt:      time.Now().UnixMilli(),
			LastActivityAt: time.Now().UnixMilli(),
		}},
		active: "crashed-session",
	}
	r := newTestRegistry(t, store, fakeCLI(t))

	state := r.GetState()
	if len(state.Sessions) != 1 {
		t.Fatalf("expected 1 rehydrated session, got %d", len(state.Sessions))
	}
	s := state.Sessions[0]
	if s.Status != StatusStopped {
		t.Errorf("expected rehydrated status stopped, got %s", s.Status)
	}
	if s.Activity != ActivityIdle {
		t.Errorf("expected rehydrated activity idle, got %s", s.Activity)
	}
	if state.ActiveSessionID != "crashed-session" {
		t.Errorf("expected active pointer preserved, got %q", state.ActiveSessionID)
	}
}

func TestRegistry_RehydrationDropsDanglingActivePointer(t *testing.T) {
	store := &memStore{active: "no-such-session"}
	r := newTestRegistry(t, store, fakeCLI(t))

	if got := r.GetState().ActiveSessionID; got != "" {
		t.Errorf("expected dangling active pointer cleared, got %q", got)
	}
}

func TestRegistry_SetActiveValidates(t *testing.T) {
	store := &memStore{}
	r := newTestRegistry(t, store, fakeCLI(t))

	if err := r.SetActive("nope"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	snap, err := r.Start(StartRequest{WorkingDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.SetActive(snap.SessionID); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	if got := r.GetState().ActiveSessionID; got != snap.SessionID {
		t.Errorf("expected active %q, got %q", snap.SessionID, got)
	}
	if err := r.SetActive(""); err != nil {
		t.Fatalf("clearing active failed: %v", err)
	}
	if got := r.GetState().ActiveSessionID; got != "" {
		t.Errorf("expected active cleared, got %q", got)
	}
}

func TestRegistry_RemoveProjectRejectedWhileInUse(t *testing.T) {
	store := &memStore{}
	r := newTestRegistry(t, store, fakeCLI(t))

	workDir := t.TempDir()
	if err := r.AddProject(workDir); err != nil {
		t.Fatalf("AddProject failed: %v", err)
	}
	snap, err := r.Start(StartRequest{WorkingDir: workDir})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := r.RemoveProject(workDir); err != ErrProjectInUse {
		t.Fatalf("expected ErrProjectInUse, got %v", err)
	}

	waitForStatus(t, r, snap.SessionID, StatusRunning)
	if err := r.Delete(snap.SessionID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := r.RemoveProject(workDir); err != nil {
		t.Errorf("RemoveProject after delete failed: %v", err)
	}
}

func TestRegistry_SubscribersSeeLifecycleEvents(t *testing.T) {
	store := &memStore{}
	r := newTestRegistry(t, store, fakeCLI(t))

	events := make(chan Event, 64)
	unsubscribe := r.Subscribe(func(ev Event) { events <- ev })
	defer unsubscribe()

	snap, err := r.Start(StartRequest{WorkingDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sawStarting := false
	sawRunning := false
	deadline := time.After(5 * time.Second)
	for !sawStarting || !sawRunning {
		select {
		case ev := <-events:
			if ev.Type == EventStatus && ev.SessionID == snap.SessionID {
				switch ev.Status {
				case StatusStarting:
					sawStarting = true
				case StatusRunning:
					sawRunning = true
				}
			}
		case <-deadline:
			t.Fatalf("missing status events: starting=%v running=%v", sawStarting, sawRunning)
		}
	}
}

func TestDefaultTitle(t *testing.T) {
	if got := defaultTitle("fix the login bug"); got != "fix the login bug" {
		t.Errorf("short prompt should pass through, got %q", got)
	}
	if got := defaultTitle("first line\nsecond line"); got != "first line" {
		t.Errorf("expected first line only, got %q", got)
	}
	long := strings.Repeat("x", 100)
	got := defaultTitle(long)
	if len([]rune(got)) != maxDefaultTitleLen+1 {
		t.Errorf("expected truncation to %d runes plus ellipsis, got %d", maxDefaultTitleLen, len([]rune(got)))
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("expected ellipsis suffix, got %q", got)
	}
}
