package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure Go driver

	"github.com/raphaelgruber/vaultwiz/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at DESC);

CREATE TABLE IF NOT EXISTS user_background (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    informations TEXT NOT NULL,
    updated_at   INTEGER NOT NULL
);
`

// SQLiteProvider stores conversations in a single SQLite file.
type SQLiteProvider struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLiteProvider opens or creates the database at path.
func OpenSQLiteProvider(ctx context.Context, path string, logger *slog.Logger) (*SQLiteProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, errors.New("sqlite persistence needs a database path")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; the persistence queue serializes saves anyway
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	logger.Info("sqlite persistence ready", "path", path)
	return &SQLiteProvider{db: db, path: path, logger: logger}, nil
}

func (p *SQLiteProvider) Name() string { return string(KindSQLite) }

func (p *SQLiteProvider) Load(ctx context.Context, id string) (models.PersistedConversation, error) {
	var payload string
	err := p.db.QueryRowContext(ctx, `SELECT payload FROM conversations WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PersistedConversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return models.PersistedConversation{}, fmt.Errorf("query conversation %s: %w", id, err)
	}
	return decodeRecord([]byte(payload))
}

func (p *SQLiteProvider) Save(ctx context.Context, rec models.PersistedConversation) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, updated_at, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at,
			payload = excluded.payload
	`, rec.ConversationID, rec.Title, rec.UpdatedAt, string(data))
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", rec.ConversationID, err)
	}
	return nil
}

func (p *SQLiteProvider) List(ctx context.Context) ([]models.PersistedConversation, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, payload FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := []models.PersistedConversation{}
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		rec, err := decodeRecord([]byte(payload))
		if err != nil {
			p.logger.Warn("skipping unreadable conversation row", "conversation_id", id, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *SQLiteProvider) Delete(ctx context.Context, id string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return nil
}

func (p *SQLiteProvider) LoadUserBackground(ctx context.Context) (string, error) {
	var text string
	err := p.db.QueryRowContext(ctx, `SELECT informations FROM user_background WHERE id = 1`).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query user background: %w", err)
	}
	return text, nil
}

func (p *SQLiteProvider) SaveUserBackground(ctx context.Context, text string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO user_background (id, informations, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			informations = excluded.informations,
			updated_at = excluded.updated_at
	`, text, models.NowMillis())
	if err != nil {
		return fmt.Errorf("save user background: %w", err)
	}
	return nil
}

func (p *SQLiteProvider) Close() error {
	return p.db.Close()
}
