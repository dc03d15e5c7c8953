package db

import "database/sql"

func init() {
	registerMigration(1, "initial schema", func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			CREATE TABLE sessions (
				id TEXT PRIMARY KEY,
				working_dir TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				activity TEXT NOT NULL,
				activity_warning TEXT NOT NULL DEFAULT '',
				last_error TEXT NOT NULL DEFAULT '',
				created_at INTEGER NOT NULL,
				last_activity_at INTEGER NOT NULL
			);

			CREATE TABLE projects (
				path TEXT PRIMARY KEY,
				collapsed INTEGER NOT NULL DEFAULT 0,
				default_model TEXT NOT NULL DEFAULT '',
				default_permission_mode TEXT NOT NULL DEFAULT '',
				position INTEGER NOT NULL DEFAULT 0
			);

			CREATE TABLE settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);
		`)
		return err
	})
}
