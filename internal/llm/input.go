package llm

import (
	"strings"

	"github.com/raphaelgruber/vaultwiz/internal/models"
)

// Context block markers wrapped around developer messages when they are
// sent with the user role.
const (
	ContextBlockStart = "<CONTEXT_BLOCK_START>"
	ContextBlockEnd   = "<CONTEXT_BLOCK_END>"
)

// InputItem is one message as sent to a provider.
type InputItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildInput maps the conversation log to provider messages. Developer
// messages become user messages holding a delimited context block, and
// messages with blank content (such as the pending reply) are dropped.
func BuildInput(messages []models.ChatMessage) []InputItem {
	items := make([]InputItem, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case models.RoleSystem, models.RoleUser, models.RoleAssistant:
			items = append(items, InputItem{Role: string(m.Role), Content: m.Content})
		case models.RoleDeveloper:
			items = append(items, InputItem{
				Role:    string(models.RoleUser),
				Content: ContextBlockStart + "\n" + m.Content + "\n" + ContextBlockEnd,
			})
		}
	}
	return items
}
