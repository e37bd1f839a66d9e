package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
)

// ConversationRow is a stored conversation. Payload holds the JSON record.
type ConversationRow struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
	UpdatedAt      int64  `json:"updated_at"`
	MessageCount   int    `json:"message_count"`
	Payload        string `json:"payload"`
}

// UserBackgroundRow is the stored user background text.
type UserBackgroundRow struct {
	Informations string `json:"informations"`
	UpdatedAt    int64  `json:"updated_at"`
}

const userBackgroundID = "default"

// QueryUpsertConversation creates or replaces a conversation record.
func (c *Client) QueryUpsertConversation(ctx context.Context, row ConversationRow) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("conversation", $id) SET
			conversation_id = $id,
			title = $title,
			updated_at = $updated_at,
			message_count = $message_count,
			payload = $payload
		RETURN NONE
	`, map[string]any{
		"id":            row.ConversationID,
		"title":         row.Title,
		"updated_at":    row.UpdatedAt,
		"message_count": row.MessageCount,
		"payload":       row.Payload,
	})
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", wrapQueryError(err))
	}
	return nil
}

// QueryGetConversation returns one conversation, or ErrNotFound.
func (c *Client) QueryGetConversation(ctx context.Context, id string) (*ConversationRow, error) {
	results, err := surrealdb.Query[[]ConversationRow](ctx, c.db, `
		SELECT conversation_id, title, updated_at, message_count, payload
		FROM type::record("conversation", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	return &(*results)[0].Result[0], nil
}

// QueryListConversations returns all conversations, newest first.
func (c *Client) QueryListConversations(ctx context.Context) ([]ConversationRow, error) {
	results, err := surrealdb.Query[[]ConversationRow](ctx, c.db, `
		SELECT conversation_id, title, updated_at, message_count, payload
		FROM conversation
		ORDER BY updated_at DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []ConversationRow{}, nil
	}
	return (*results)[0].Result, nil
}

// QueryDeleteConversation deletes a conversation. It returns the number of
// records removed (0 when it did not exist).
func (c *Client) QueryDeleteConversation(ctx context.Context, id string) (int, error) {
	results, err := surrealdb.Query[[]ConversationRow](ctx, c.db, `
		DELETE type::record("conversation", $id) RETURN BEFORE
	`, map[string]any{"id": id})
	if err != nil {
		return 0, fmt.Errorf("delete conversation: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// QueryGetUserBackground returns the stored background, or ErrNotFound.
func (c *Client) QueryGetUserBackground(ctx context.Context) (*UserBackgroundRow, error) {
	results, err := surrealdb.Query[[]UserBackgroundRow](ctx, c.db, `
		SELECT informations, updated_at FROM type::record("user_background", $id)
	`, map[string]any{"id": userBackgroundID})
	if err != nil {
		return nil, fmt.Errorf("get user background: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("%w: user background", ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// QuerySetUserBackground replaces the stored background.
func (c *Client) QuerySetUserBackground(ctx context.Context, row UserBackgroundRow) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("user_background", $id) SET
			informations = $informations,
			updated_at = $updated_at
		RETURN NONE
	`, map[string]any{
		"id":           userBackgroundID,
		"informations": row.Informations,
		"updated_at":   row.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("set user background: %w", wrapQueryError(err))
	}
	return nil
}
