package persistence

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/raphaelgruber/vaultwiz/internal/models"
)

// recordPayload mirrors the stored JSON document. Pointer fields let
// decodeRecord tell missing values from zero values.
type recordPayload struct {
	ConversationID *string                  `json:"chatId"`
	Title          *string                  `json:"title"`
	UpdatedAt      *float64                 `json:"updatedAt"`
	Messages       *[]models.ChatMessage    `json:"messages"`
	DebugTraces    *[]models.DebugTurnTrace `json:"debugTraces"`
}

// encodeRecord renders rec as an indented JSON document.
func encodeRecord(rec models.PersistedConversation) ([]byte, error) {
	rec = rec.Clone()
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode conversation %s: %w", rec.ConversationID, err)
	}
	return data, nil
}

// decodeRecord parses and validates a stored document. chatId, title,
// updatedAt and messages are required; debugTraces defaults to empty.
func decodeRecord(data []byte) (models.PersistedConversation, error) {
	var p recordPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return models.PersistedConversation{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	switch {
	case p.ConversationID == nil:
		return models.PersistedConversation{}, fmt.Errorf("%w: missing chatId", ErrInvalidRecord)
	case p.Title == nil:
		return models.PersistedConversation{}, fmt.Errorf("%w: missing title", ErrInvalidRecord)
	case p.UpdatedAt == nil || math.IsNaN(*p.UpdatedAt) || math.IsInf(*p.UpdatedAt, 0):
		return models.PersistedConversation{}, fmt.Errorf("%w: missing updatedAt", ErrInvalidRecord)
	case p.Messages == nil || *p.Messages == nil:
		return models.PersistedConversation{}, fmt.Errorf("%w: missing messages", ErrInvalidRecord)
	}

	rec := models.PersistedConversation{
		ConversationID: *p.ConversationID,
		Title:          *p.Title,
		UpdatedAt:      int64(*p.UpdatedAt),
		Messages:       *p.Messages,
		DebugTraces:    []models.DebugTurnTrace{},
	}
	if p.DebugTraces != nil && *p.DebugTraces != nil {
		rec.DebugTraces = *p.DebugTraces
	}
	return rec, nil
}
