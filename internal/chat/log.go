// Package chat holds the in-memory conversation log and the helpers that
// shape what a conversation looks like: system prompt, ids and embed links.
package chat

import (
	"strings"
	"sync"

	"github.com/raphaelgruber/vaultwiz/internal/models"
)

// Log is the ordered message log of the current conversation.
//
// Messages are append-only. The one exception is the assistant reply of an
// in-flight turn, which lives in a PendingTurn until it is committed.
type Log struct {
	mu           sync.RWMutex
	id           string
	messages     []models.ChatMessage
	systemPrompt string
	background   string

	pending      *PendingTurn
	pendingIndex int
}

// NewLog returns a log holding only the system message.
func NewLog(systemPrompt string) *Log {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	l := &Log{systemPrompt: systemPrompt}
	l.messages = l.freshMessages()
	return l
}

// ID returns the conversation id the log currently belongs to.
func (l *Log) ID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.id
}

// SetUserBackground sets the background text injected on the next Clear.
func (l *Log) SetUserBackground(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.background = strings.TrimSpace(text)
}

// Clear resets the log to a fresh system message (plus the user background
// message when one is set) and assigns id. Any pending turn is detached.
func (l *Log) Clear(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.id = id
	l.messages = l.freshMessages()
	l.detach()
}

// ReplaceConversation restores a stored conversation. The messages are
// copied, and a system message is prepended if none is present.
func (l *Log) ReplaceConversation(id string, messages []models.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.id = id
	restored := models.CloneMessages(messages)
	hasSystem := false
	for _, m := range restored {
		if m.Role == models.RoleSystem {
			hasSystem = true
			break
		}
	}
	if !hasSystem {
		restored = append([]models.ChatMessage{{Role: models.RoleSystem, Content: l.systemPrompt}}, restored...)
	}
	l.messages = restored
	l.detach()
}

// Append adds a message to the end of the log.
func (l *Log) Append(msg models.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// Messages returns a snapshot of the log in conversational order. A pending
// turn appears as an assistant message holding the text received so far.
func (l *Log) Messages() []models.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := models.CloneMessages(l.messages)
	if l.pending != nil && l.pendingIndex < len(out) {
		out[l.pendingIndex].Content = l.pending.Content()
	}
	return out
}

// Len returns the number of messages, including a pending placeholder.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// HasConversationContent reports whether any user or assistant message exists.
func (l *Log) HasConversationContent() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, m := range l.messages {
		if m.Visible() {
			return true
		}
	}
	return false
}

// BeginTurn appends an empty assistant placeholder and returns the pending
// turn that owns its content. A previous pending turn is detached.
func (l *Log) BeginTurn() *PendingTurn {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.detach()
	turn := &PendingTurn{conversationID: l.id, timestamp: models.NowMillis()}
	l.messages = append(l.messages, models.ChatMessage{
		Role:      models.RoleAssistant,
		Timestamp: turn.timestamp,
	})
	l.pending = turn
	l.pendingIndex = len(l.messages) - 1
	return turn
}

// ApplyChunk appends chunk to the turn. It reports whether the turn is still
// attached to this log, i.e. whether the change is visible in Messages.
func (l *Log) ApplyChunk(turn *PendingTurn, chunk string) bool {
	turn.append(chunk)

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.attached(turn)
}

// Attached reports whether turn still feeds this log's placeholder.
func (l *Log) Attached(turn *PendingTurn) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.attached(turn)
}

// CommitTurn writes the turn's final content into its placeholder and
// detaches it. It returns false when the conversation moved on in between.
func (l *Log) CommitTurn(turn *PendingTurn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.attached(turn) {
		return false
	}
	l.messages[l.pendingIndex].Content = turn.Content()
	l.detach()
	return true
}

func (l *Log) attached(turn *PendingTurn) bool {
	return turn != nil && l.pending == turn && turn.conversationID == l.id
}

// detach forgets the pending turn. Caller must hold the write lock.
func (l *Log) detach() {
	l.pending = nil
	l.pendingIndex = 0
}

// freshMessages builds the head of a new conversation. Caller must hold the lock
// (or be constructing the log).
func (l *Log) freshMessages() []models.ChatMessage {
	msgs := []models.ChatMessage{{Role: models.RoleSystem, Content: l.systemPrompt}}
	if l.background != "" {
		msgs = append(msgs, models.ChatMessage{
			Role:    models.RoleDeveloper,
			Content: WrapUserBackground(l.background),
		})
	}
	return msgs
}

// PendingTurn owns the assistant text of a turn while it streams.
type PendingTurn struct {
	conversationID string
	timestamp      int64

	mu  sync.Mutex
	buf strings.Builder
}

// ConversationID returns the conversation the turn was started in.
func (t *PendingTurn) ConversationID() string {
	return t.conversationID
}

// Timestamp returns the timestamp of the turn's assistant message.
func (t *PendingTurn) Timestamp() int64 {
	return t.timestamp
}

// Content returns the text received so far.
func (t *PendingTurn) Content() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

func (t *PendingTurn) append(chunk string) {
	t.mu.Lock()
	t.buf.WriteString(chunk)
	t.mu.Unlock()
}
