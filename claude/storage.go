package claude

import "github.com/xiaoyuanzhu-com/claude-deck/db"

// Project is a working directory the user has registered, with per-project
// launch defaults. The path is a display hint; it is never validated against
// the filesystem.
type Project struct {
	Path                  string `json:"path"`
	Collapsed             bool   `json:"collapsed"`
	DefaultModel          string `json:"defaultModel,omitempty"`
	DefaultPermissionMode string `json:"defaultPermissionMode,omitempty"`
}

// Store persists registry state. Saves always write the full set; the
// registry is the single writer and keeps the authoritative copy in memory.
type Store interface {
	LoadSessions() ([]Snapshot, error)
	SaveSessions(sessions []Snapshot) error
	LoadProjects() ([]Project, error)
	SaveProjects(projects []Project) error
	LoadActiveSessionID() (string, error)
	SaveActiveSessionID(id string) error
}

// dbStore backs Store with the sqlite database
type dbStore struct{}

// NewDBStore returns a Store backed by the application database
func NewDBStore() Store {
	return dbStore{}
}

func (dbStore) LoadSessions() ([]Snapshot, error) {
	rows, err := db.GetSessions()
	if err != nil {
		return nil, err
	}
	snapshots := make([]Snapshot, 0, len(rows))
	for _, r := range rows {
		snapshots = append(snapshots, Snapshot{
			SessionID:       r.ID,
			WorkingDir:      r.WorkingDir,
			Name:            r.Name,
			Status:          Status(r.Status),
			Activity:        ActivityState(r.Activity),
			ActivityWarning: r.ActivityWarning,
			LastError:       r.LastError,
			CreatedAt:       r.CreatedAt,
			LastActivityAt:  r.LastActivityAt,
		})
	}
	return snapshots, nil
}

func (dbStore) SaveSessions(sessions []Snapshot) error {
	rows := make([]db.SessionRow, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, db.SessionRow{
			ID:              s.SessionID,
			WorkingDir:      s.WorkingDir,
			Name:            s.Name,
			Status:          string(s.Status),
			Activity:        string(s.Activity),
			ActivityWarning: s.ActivityWarning,
			LastError:       s.LastError,
			CreatedAt:       s.CreatedAt,
			LastActivityAt:  s.LastActivityAt,
		})
	}
	return db.ReplaceSessions(rows)
}

func (dbStore) LoadProjects() ([]Project, error) {
	rows, err := db.GetProjects()
	if err != nil {
		return nil, err
	}
	projects := make([]Project, 0, len(rows))
	for _, r := range rows {
		projects = append(projects, Project{
			Path:                  r.Path,
			Collapsed:             r.Collapsed,
			DefaultModel:          r.DefaultModel,
			DefaultPermissionMode: r.DefaultPermissionMode,
		})
	}
	return projects, nil
}

func (dbStore) SaveProjects(projects []Project) error {
	rows := make([]db.ProjectRow, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, db.ProjectRow{
			Path:                  p.Path,
			Collapsed:             p.Collapsed,
			DefaultModel:          p.DefaultModel,
			DefaultPermissionMode: p.DefaultPermissionMode,
		})
	}
	return db.ReplaceProjects(rows)
}

func (dbStore) LoadActiveSessionID() (string, error) {
	return db.GetSetting("active_session_id")
}

func (dbStore) SaveActiveSessionID(id string) error {
	return db.SetSetting("active_session_id", id)
}
