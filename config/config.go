package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port int
	Host string
	Env  string // "development" or "production"

	// Data directory
	DataDir string

	// Database
	DatabasePath string

	// Directory holding per-session hook-event logs (one .jsonl per session)
	StateLogDir string

	// Claude CLI
	ClaudeBinary string

	// Terminal output retention per session
	BufferMaxLines int
	BufferMaxBytes int

	// Title generation (OpenAI-compatible endpoint)
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
}

var (
	cfg  *Config
	once sync.Once
)

// Get returns the global configuration (singleton)
func Get() *Config {
	once.Do(func() {
		cfg = load()
	})
	return cfg
}

// load reads configuration from environment variables
func load() *Config {
	dataDir := getEnv("CLAUDE_DECK_DATA_DIR", "./data")
	appDir := filepath.Join(dataDir, "app", "claude-deck")

	return &Config{
		// Server
		Port: getEnvInt("PORT", 12400),
		Host: getEnv("HOST", "127.0.0.1"),
		Env:  getEnv("ENV", "development"),

		// Data
		DataDir:      dataDir,
		DatabasePath: filepath.Join(appDir, "database.sqlite"),
		StateLogDir:  filepath.Join(appDir, "state-logs"),

		// Claude CLI
		ClaudeBinary: getEnv("CLAUDE_DECK_CLAUDE_BIN", "claude"),

		// Terminal buffers
		BufferMaxLines: getEnvInt("CLAUDE_DECK_BUFFER_MAX_LINES", 10000),
		BufferMaxBytes: getEnvInt("CLAUDE_DECK_BUFFER_MAX_BYTES", 2*1024*1024),

		// OpenAI
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
