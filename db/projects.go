package db

// ProjectRow mirrors one row of the projects table
type ProjectRow struct {
	Path                  string
	Collapsed             bool
	DefaultModel          string
	DefaultPermissionMode string
}

// GetProjects returns all registered projects in their stored order
func GetProjects() ([]ProjectRow, error) {
	rows, err := Get().Query(`
		SELECT path, collapsed, default_model, default_permission_mode
		FROM projects
		ORDER BY position ASC, path ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []ProjectRow
	for rows.Next() {
		var p ProjectRow
		if err := rows.Scan(&p.Path, &p.Collapsed, &p.DefaultModel, &p.DefaultPermissionMode); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ReplaceProjects atomically replaces the registered project set,
// preserving the given order.
func ReplaceProjects(projects []ProjectRow) error {
	tx, err := Get().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM projects`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO projects (path, collapsed, default_model, default_permission_mode, position)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range projects {
		if _, err := stmt.Exec(p.Path, p.Collapsed, p.DefaultModel, p.DefaultPermissionMode, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}
