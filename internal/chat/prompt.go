package chat

import (
	"strings"
	"unicode/utf8"
)

// ContextCommand is the chat input that only injects context without
// invoking a model.
const ContextCommand = "/c"

// UserBackgroundMaxLength caps the stored user background text, in characters.
const UserBackgroundMaxLength = 4000

// Context envelope markers understood by the system prompt.
const (
	NoteContentStart     = "<NOTE_CONTENT_START>"
	NoteContentEnd       = "<NOTE_CONTENT_END>"
	SelectedContextStart = "<SELECTED_CONTEXT_START>"
	SelectedContextEnd   = "<SELECTED_CONTEXT_END>"
	UserBackgroundStart  = "<USER_BACKGROUND_START>"
	UserBackgroundEnd    = "<USER_BACKGROUND_END>"
)

// DefaultSystemPrompt heads every conversation.
var DefaultSystemPrompt = strings.Join([]string{
	"You are Vault Wizard, an expert assistant for note-based work.",
	"Your core goal is to help the user think, write, and make decisions using their notes as primary context. Such notes could be just thoughts, research, or any other relevant information the user has stored in their note-taking app. You should use the content of the notes to provide informed, context-aware responses to the user's queries and requests.",
	"",
	"Expected inputs:",
	"- <NOTE_CONTENT_START> ... <NOTE_CONTENT_END>: the content of the user's active note.",
	"- <SELECTED_CONTEXT_START> ... <SELECTED_CONTEXT_END>: the content of the user's selected context within the active note.",
	"- <USER_BACKGROUND_START> ... <USER_BACKGROUND_END>: background information the user shared about themselves.",
	"",
	"Behavior rules:",
	"- Regardless of the context provided, always prioritize the user's query: you could receive a query that is not related to the note content, but you should still try to be helpful and answer it to the best of your ability.",
	"- Infer the domain from the notes and respond like a domain expert in that field.",
	"- If context is incomplete or ambiguous, ask focused clarifying questions before making strong claims.",
	"- Discuss the validity of the notes; you will usually work with imperfect notes and it is important to be aware of their limitations.",
	"- Clearly distinguish facts from assumptions.",
	"- Prefer concise, structured answers with actionable next steps.",
	"- Use Markdown formatting for readability.",
	"",
	"Safety and quality:",
	"- Do not invent details that are not supported by the note context or the user's message.",
	"- If a request conflicts with available context, explain the conflict and propose the safest useful alternative.",
	"",
	"Notes:",
	"- If SELECTED_CONTEXT is provided, it is more relevant than the general NOTE_CONTENT. Always prioritize it when formulating your response.",
	"- When providing copy-paste snippets, wrap them in ```...```.",
	"- The user does not know about the context tags. They only describe the structure of the input. Never mention them.",
}, "\n")

// WrapNoteContent wraps the active note text in its envelope.
func WrapNoteContent(text string) string {
	return NoteContentStart + "\n" + text + "\n" + NoteContentEnd
}

// WrapSelectedContext wraps a captured selection in its envelope.
func WrapSelectedContext(text string) string {
	return SelectedContextStart + "\n" + text + "\n" + SelectedContextEnd
}

// WrapUserBackground wraps the user background in its envelope.
func WrapUserBackground(text string) string {
	return UserBackgroundStart + "\n" + text + "\n" + UserBackgroundEnd
}

// NormalizeUserBackground converts CRLF to LF, trims, and truncates to
// UserBackgroundMaxLength characters.
func NormalizeUserBackground(raw string) string {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))
	if utf8.RuneCountInString(s) <= UserBackgroundMaxLength {
		return s
	}
	return string([]rune(s)[:UserBackgroundMaxLength])
}
