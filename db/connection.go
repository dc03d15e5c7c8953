package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaoyuanzhu-com/claude-deck/config"
	"github.com/xiaoyuanzhu-com/claude-deck/log"
)

var (
	database *sql.DB
	dbOnce   sync.Once
	dbErr    error
)

// Init opens the sqlite database and runs pending migrations.
// Safe to call more than once; only the first call does work.
func Init() error {
	dbOnce.Do(func() {
		dbErr = initialize()
	})
	return dbErr
}

func initialize() error {
	cfg := config.Get()

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", cfg.DatabasePath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent saves.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	database = conn

	if err := runMigrations(conn); err != nil {
		conn.Close()
		database = nil
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Str("path", cfg.DatabasePath).Msg("database ready")
	return nil
}

// Get returns the database handle. Init must have succeeded first.
func Get() *sql.DB {
	return database
}

// Close closes the database connection
func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}
