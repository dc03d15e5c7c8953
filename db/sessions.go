package db

// SessionRow mirrors one row of the sessions table
type SessionRow struct {
	ID              string
	WorkingDir      string
	Name            string
	Status          string
	Activity        string
	ActivityWarning string
	LastError       string
	CreatedAt       int64
	LastActivityAt  int64
}

// GetSessions returns all persisted sessions, oldest first
func GetSessions() ([]SessionRow, error) {
	rows, err := Get().Query(`
		SELECT id, working_dir, name, status, activity, activity_warning,
		       last_error, created_at, last_activity_at
		FROM sessions
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionRow
	for rows.Next() {
		var s SessionRow
		if err := rows.Scan(
			&s.ID, &s.WorkingDir, &s.Name, &s.Status, &s.Activity,
			&s.ActivityWarning, &s.LastError, &s.CreatedAt, &s.LastActivityAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ReplaceSessions atomically replaces the persisted session set
func ReplaceSessions(sessions []SessionRow) error {
	tx, err := Get().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sessions`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO sessions (
			id, working_dir, name, status, activity, activity_warning,
			last_error, created_at, last_activity_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range sessions {
		if _, err := stmt.Exec(
			s.ID, s.WorkingDir, s.Name, s.Status, s.Activity,
			s.ActivityWarning, s.LastError, s.CreatedAt, s.LastActivityAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}
