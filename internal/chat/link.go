package chat

import (
	"net/url"
	"strings"
)

// ProtocolAction is the deep-link action that opens a conversation.
const ProtocolAction = "vault-wizard-chat"

// DefaultLinkLabel is used when no label is given for an embed link.
const DefaultLinkLabel = "wizard_convo"

// EmbedLink returns the deep link that reopens a conversation.
// An empty id yields an empty string.
func EmbedLink(conversationID string) string {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return ""
	}
	return "obsidian://" + ProtocolAction + "?chatId=" + url.QueryEscape(id)
}

// EmbedMarkdown returns a markdown link to the conversation.
func EmbedMarkdown(conversationID, label string) string {
	link := EmbedLink(conversationID)
	if link == "" {
		return ""
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = DefaultLinkLabel
	}
	label = strings.ReplaceAll(label, "]", `\]`)
	return "[" + label + "](" + link + ")"
}

// ResolveConversationID extracts the conversation id from deep-link
// parameters, preferring chatId over id.
func ResolveConversationID(params url.Values) string {
	if id := strings.TrimSpace(params.Get("chatId")); id != "" {
		return id
	}
	return strings.TrimSpace(params.Get("id"))
}
