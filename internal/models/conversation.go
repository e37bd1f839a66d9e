package models

// PersistedConversation is the durable record of one conversation.
// ConversationID is also the storage key.
type PersistedConversation struct {
	ConversationID string           `json:"chatId"`
	Title          string           `json:"title"`
	UpdatedAt      int64            `json:"updatedAt"`
	Messages       []ChatMessage    `json:"messages"`
	DebugTraces    []DebugTurnTrace `json:"debugTraces"`
}

// Clone returns a deep copy so callers never alias stored slices.
func (c PersistedConversation) Clone() PersistedConversation {
	out := c
	out.Messages = CloneMessages(c.Messages)
	if out.Messages == nil {
		out.Messages = []ChatMessage{}
	}
	out.DebugTraces = CloneTraces(c.DebugTraces)
	return out
}

// ConversationSummary is the list view of a stored conversation.
type ConversationSummary struct {
	ConversationID string `json:"chatId"`
	Title          string `json:"title"`
	UpdatedAt      int64  `json:"updatedAt"`
	MessageCount   int    `json:"messageCount"`
}

// Summary returns the list view of c.
func (c PersistedConversation) Summary() ConversationSummary {
	return ConversationSummary{
		ConversationID: c.ConversationID,
		Title:          c.Title,
		UpdatedAt:      c.UpdatedAt,
		MessageCount:   len(c.Messages),
	}
}
