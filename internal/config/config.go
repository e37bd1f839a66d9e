package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config holds all configuration values.
type Config struct {
	// Vault
	VaultDir  string
	PluginDir string // relative to VaultDir

	// Persistence
	Persistence string
	ChatFolder  string // relative to VaultDir
	SQLitePath  string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Model preselected at startup
	ModelID string

	// HTTP host
	ServerAddr string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	vault := getEnv("VAULTWIZ_VAULT", "")
	if vault == "" {
		if wd, err := os.Getwd(); err == nil {
			vault = wd
		} else {
			vault = "."
		}
	}
	pluginDir := getEnv("VAULTWIZ_PLUGIN_DIR", ".vaultwiz")

	return Config{
		VaultDir:  vault,
		PluginDir: pluginDir,

		Persistence: getEnv("VAULTWIZ_PERSISTENCE", "local"),
		ChatFolder:  getEnv("VAULTWIZ_CHAT_FOLDER", filepath.ToSlash(filepath.Join(pluginDir, "chats"))),
		SQLitePath:  getEnv("VAULTWIZ_SQLITE_PATH", ""),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "vaultwiz"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "chats"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		ModelID: getEnv("VAULTWIZ_MODEL", ""),

		ServerAddr: getEnv("VAULTWIZ_SERVER_ADDR", ":8485"),

		LogFile:  getEnv("VAULTWIZ_LOG_FILE", "/tmp/vaultwiz.log"),
		LogLevel: parseLogLevel(getEnv("VAULTWIZ_LOG_LEVEL", "INFO")),
	}
}

// PluginPath returns the absolute plugin data directory.
func (c Config) PluginPath() string {
	if filepath.IsAbs(c.PluginDir) {
		return c.PluginDir
	}
	return filepath.Join(c.VaultDir, c.PluginDir)
}

// SQLiteFile returns the sqlite database path. Relative paths are taken
// from the vault root.
func (c Config) SQLiteFile() string {
	switch {
	case c.SQLitePath == "":
		return filepath.Join(c.PluginPath(), "chats.db")
	case filepath.IsAbs(c.SQLitePath):
		return c.SQLitePath
	default:
		return filepath.Join(c.VaultDir, c.SQLitePath)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
