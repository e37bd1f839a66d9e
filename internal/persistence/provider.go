// Package persistence saves and restores whole conversations.
//
// A Gateway owns the shared record logic (titles, updatedAt, ordering) and
// delegates storage to a Provider. Providers exist for JSON files inside the
// vault, a SQLite database and SurrealDB.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/vaultwiz/internal/db"
	"github.com/raphaelgruber/vaultwiz/internal/models"
)

var (
	// ErrNotFound is returned by providers when a conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrNotImplemented is returned for provider kinds that are recognised
	// but have no backend.
	ErrNotImplemented = errors.New("persistence provider not implemented")

	// ErrInvalidRecord is returned when a stored record fails validation.
	ErrInvalidRecord = errors.New("invalid conversation record")
)

// Provider stores conversation records by id.
type Provider interface {
	// Name identifies the backend in logs.
	Name() string
	// Load returns the record for id, or ErrNotFound.
	Load(ctx context.Context, id string) (models.PersistedConversation, error)
	// Save creates or replaces the record keyed by rec.ConversationID.
	Save(ctx context.Context, rec models.PersistedConversation) error
	// List returns every readable record in no particular order.
	List(ctx context.Context) ([]models.PersistedConversation, error)
	// Delete removes the record for id. Missing records are not an error.
	Delete(ctx context.Context, id string) error
	// LoadUserBackground returns the stored background text, or "".
	LoadUserBackground(ctx context.Context) (string, error)
	// SaveUserBackground replaces the stored background text.
	SaveUserBackground(ctx context.Context, text string) error
	// Close releases backend resources.
	Close() error
}

// Kind selects a Provider implementation.
type Kind string

// Provider kinds.
const (
	KindLocal   Kind = "local"
	KindSQLite  Kind = "sqlite"
	KindSurreal Kind = "surrealdb"
	KindCosmos  Kind = "cosmosDB"
)

// cosmosNotImplemented is the user-facing message for the cosmosDB kind.
const cosmosNotImplemented = "CosmosDB persistence provider is not implemented yet."

// ParseKind maps a configured provider name to a Kind. Matching ignores
// case and surrounding whitespace.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "local":
		return KindLocal, nil
	case "sqlite":
		return KindSQLite, nil
	case "surrealdb", "surreal":
		return KindSurreal, nil
	case "cosmosdb", "cosmos":
		return KindCosmos, nil
	}
	return "", fmt.Errorf("unknown persistence provider: %q", s)
}

// Config describes which provider to use and how to reach it.
type Config struct {
	Kind Kind `json:"provider"`
	// Folder is the vault-relative folder for the local provider.
	Folder string `json:"folder,omitempty"`
	// SQLitePath is the database file for the sqlite provider.
	SQLitePath string `json:"sqlitePath,omitempty"`
	// Surreal holds the surrealdb connection settings.
	Surreal db.Config `json:"-"`
}

// Opener builds a Provider for a Config.
type Opener func(ctx context.Context, cfg Config) (Provider, error)

// NewOpener returns an Opener that creates local providers on files and
// opens sqlite and surrealdb backends on demand.
func NewOpener(files FileAdapter, logger *slog.Logger) Opener {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, cfg Config) (Provider, error) {
		switch cfg.Kind {
		case KindLocal, "":
			if files == nil {
				return nil, errors.New("local persistence needs a vault")
			}
			return NewLocalProvider(files, cfg.Folder, logger), nil
		case KindSQLite:
			return OpenSQLiteProvider(ctx, cfg.SQLitePath, logger)
		case KindSurreal:
			return OpenSurrealProvider(ctx, cfg.Surreal, logger)
		case KindCosmos:
			return nil, fmt.Errorf("%w: %s", ErrNotImplemented, cosmosNotImplemented)
		}
		return nil, fmt.Errorf("unknown persistence provider: %q", cfg.Kind)
	}
}
