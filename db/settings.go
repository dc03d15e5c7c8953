package db

import "database/sql"

// GetSetting returns the value for key, or "" if unset
func GetSetting(key string) (string, error) {
	var value string
	err := Get().QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetSetting upserts the value for key
func SetSetting(key, value string) error {
	_, err := Get().Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
