// Package models defines the data structures shared by the vaultwiz chat core.
package models

import "time"

// Role identifies who authored a chat message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleDeveloper, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ChatMessage is a single entry of a conversation log.
// Timestamp is epoch milliseconds and may be zero when unknown.
type ChatMessage struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role Role, content string) ChatMessage {
	return ChatMessage{Role: role, Content: content, Timestamp: NowMillis()}
}

// Visible reports whether the message is shown to the end user.
// System and developer messages only travel to the provider.
func (m ChatMessage) Visible() bool {
	return m.Role == RoleUser || m.Role == RoleAssistant
}

// CloneMessages returns a copy of msgs that shares no backing array with it.
func CloneMessages(msgs []ChatMessage) []ChatMessage {
	if msgs == nil {
		return nil
	}
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

// NowMillis returns the current time as epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
