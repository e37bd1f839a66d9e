package chat_test

import (
	"net/url"
	"strings"
	"testing"

	"github.com/raphaelgruber/vaultwiz/internal/chat"
	"github.com/stretchr/testify/assert"
)

func TestEmbedLink(t *testing.T) {
	assert.Equal(t, "obsidian://vault-wizard-chat?chatId=conv_abc_123", chat.EmbedLink("conv_abc_123"))
	assert.Equal(t, "obsidian://vault-wizard-chat?chatId=a%2Fb", chat.EmbedLink("a/b"))
	assert.Empty(t, chat.EmbedLink("   "))
}

func TestEmbedMarkdown(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		label string
		want  string
	}{
		{"default label", "c1", "", "[wizard_convo](obsidian://vault-wizard-chat?chatId=c1)"},
		{"custom label", "c1", "Design chat", "[Design chat](obsidian://vault-wizard-chat?chatId=c1)"},
		{"escaped bracket", "c1", "a]b", `[a\]b](obsidian://vault-wizard-chat?chatId=c1)`},
		{"empty id", "", "x", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chat.EmbedMarkdown(tt.id, tt.label))
		})
	}
}

func TestResolveConversationID(t *testing.T) {
	assert.Equal(t, "c1", chat.ResolveConversationID(url.Values{"chatId": {" c1 "}, "id": {"c2"}}))
	assert.Equal(t, "c2", chat.ResolveConversationID(url.Values{"id": {"c2"}}))
	assert.Equal(t, "c2", chat.ResolveConversationID(url.Values{"chatId": {"  "}, "id": {"c2"}}))
	assert.Empty(t, chat.ResolveConversationID(url.Values{}))
}

func TestNormalizeUserBackground(t *testing.T) {
	assert.Equal(t, "line one\nline two", chat.NormalizeUserBackground("  line one\r\nline two \r\n"))

	long := strings.Repeat("é", chat.UserBackgroundMaxLength+10)
	got := chat.NormalizeUserBackground(long)
	assert.Equal(t, chat.UserBackgroundMaxLength, len([]rune(got)))
}
