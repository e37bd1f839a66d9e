package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"VAULTWIZ_VAULT", "VAULTWIZ_PLUGIN_DIR", "VAULTWIZ_PERSISTENCE", "VAULTWIZ_CHAT_FOLDER",
		"VAULTWIZ_SQLITE_PATH", "VAULTWIZ_SERVER_ADDR", "VAULTWIZ_LOG_LEVEL", "VAULTWIZ_MODEL",
		"SURREALDB_URL", "SURREALDB_NAMESPACE", "SURREALDB_DATABASE",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.NotEmpty(t, cfg.VaultDir)
	assert.Equal(t, ".vaultwiz", cfg.PluginDir)
	assert.Equal(t, "local", cfg.Persistence)
	assert.Equal(t, ".vaultwiz/chats", cfg.ChatFolder)
	assert.Equal(t, "ws://localhost:8000/rpc", cfg.SurrealDBURL)
	assert.Equal(t, "vaultwiz", cfg.SurrealDBNamespace)
	assert.Equal(t, "chats", cfg.SurrealDBDatabase)
	assert.Equal(t, ":8485", cfg.ServerAddr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, filepath.Join(cfg.VaultDir, ".vaultwiz", "chats.db"), cfg.SQLiteFile())
}

func TestLoadFromEnv(t *testing.T) {
	vault := t.TempDir()
	t.Setenv("VAULTWIZ_VAULT", vault)
	t.Setenv("VAULTWIZ_PLUGIN_DIR", "plugin")
	t.Setenv("VAULTWIZ_CHAT_FOLDER", "")
	t.Setenv("VAULTWIZ_PERSISTENCE", "sqlite")
	t.Setenv("VAULTWIZ_SQLITE_PATH", "data/c.db")
	t.Setenv("VAULTWIZ_LOG_LEVEL", "debug")

	cfg := Load()
	assert.Equal(t, vault, cfg.VaultDir)
	assert.Equal(t, "plugin/chats", cfg.ChatFolder)
	assert.Equal(t, "sqlite", cfg.Persistence)
	assert.Equal(t, filepath.Join(vault, "plugin"), cfg.PluginPath())
	assert.Equal(t, filepath.Join(vault, "data", "c.db"), cfg.SQLiteFile())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARNING", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.in))
		})
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("turn complete", "conversation_id", "conv_1")

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "conversation_id=conv_1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(file.String())), &entry))
	assert.Equal(t, "turn complete", entry["msg"])
	assert.Equal(t, "conv_1", entry["conversation_id"])
}

func TestSetupFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultwiz.log")
	logger, cleanup := SetupFileLogger(path, slog.LevelInfo)
	logger.Info("hello")
	require.NoError(t, cleanup())

	logger, cleanup = SetupFileLogger(filepath.Join(t.TempDir(), "missing", "x.log"), slog.LevelInfo)
	logger.Info("dropped")
	assert.NoError(t, cleanup())
}
