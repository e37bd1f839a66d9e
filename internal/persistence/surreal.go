package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/vaultwiz/internal/db"
	"github.com/raphaelgruber/vaultwiz/internal/models"
)

// SurrealProvider stores conversations in SurrealDB.
type SurrealProvider struct {
	client *db.Client
	owned  bool
	logger *slog.Logger
}

// NewSurrealProvider wraps an existing client. Close leaves the client open.
func NewSurrealProvider(client *db.Client, logger *slog.Logger) *SurrealProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &SurrealProvider{client: client, logger: logger}
}

// OpenSurrealProvider connects to SurrealDB and defines the schema.
// Close closes the connection.
func OpenSurrealProvider(ctx context.Context, cfg db.Config, logger *slog.Logger) (*SurrealProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := db.NewClient(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect surrealdb: %w", err)
	}
	if err := client.InitSchema(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	return &SurrealProvider{client: client, owned: true, logger: logger}, nil
}

func (p *SurrealProvider) Name() string { return string(KindSurreal) }

func (p *SurrealProvider) Load(ctx context.Context, id string) (models.PersistedConversation, error) {
	row, err := p.client.QueryGetConversation(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return models.PersistedConversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return models.PersistedConversation{}, err
	}
	return decodeRecord([]byte(row.Payload))
}

func (p *SurrealProvider) Save(ctx context.Context, rec models.PersistedConversation) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return p.client.QueryUpsertConversation(ctx, db.ConversationRow{
		ConversationID: rec.ConversationID,
		Title:          rec.Title,
		UpdatedAt:      rec.UpdatedAt,
		MessageCount:   len(rec.Messages),
		Payload:        string(data),
	})
}

func (p *SurrealProvider) List(ctx context.Context) ([]models.PersistedConversation, error) {
	rows, err := p.client.QueryListConversations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.PersistedConversation, 0, len(rows))
	for _, row := range rows {
		rec, err := decodeRecord([]byte(row.Payload))
		if err != nil {
			p.logger.Warn("skipping unreadable conversation record", "conversation_id", row.ConversationID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (p *SurrealProvider) Delete(ctx context.Context, id string) error {
	_, err := p.client.QueryDeleteConversation(ctx, id)
	return err
}

func (p *SurrealProvider) LoadUserBackground(ctx context.Context) (string, error) {
	row, err := p.client.QueryGetUserBackground(ctx)
	if errors.Is(err, db.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.Informations, nil
}

func (p *SurrealProvider) SaveUserBackground(ctx context.Context, text string) error {
	return p.client.QuerySetUserBackground(ctx, db.UserBackgroundRow{
		Informations: text,
		UpdatedAt:    models.NowMillis(),
	})
}

func (p *SurrealProvider) Close() error {
	if !p.owned {
		return nil
	}
	return p.client.Close(context.Background())
}
