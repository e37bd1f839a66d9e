package models

// TokenUsage holds the token counts reported by a provider for one turn.
type TokenUsage struct {
	InputTokens       int64 `json:"inputTokens"`
	OutputTokens      int64 `json:"outputTokens"`
	CachedInputTokens int64 `json:"cachedInputTokens"`
}

// Add returns the coordinate-wise sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:       u.InputTokens + other.InputTokens,
		OutputTokens:      u.OutputTokens + other.OutputTokens,
		CachedInputTokens: u.CachedInputTokens + other.CachedInputTokens,
	}
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// TraceRequest captures what was sent for a turn.
type TraceRequest struct {
	Prompt          string  `json:"prompt"`
	Context         string  `json:"context"`
	SelectedContext *string `json:"selectedContext"`
}

// TraceResponseMetadata describes how a turn ended.
type TraceResponseMetadata struct {
	ConversationID    string `json:"chatId"`
	Provider          string `json:"provider"`
	ModelName         string `json:"modelName"`
	ConfiguredModelID string `json:"configuredModelId"`
	CompletedAt       int64  `json:"completedAt"`
	HadError          bool   `json:"hadError"`
	ErrorMessage      string `json:"errorMessage"`
}

// DebugTurnTrace is recorded once per completed or failed turn.
type DebugTurnTrace struct {
	Timestamp         int64                 `json:"timestamp"`
	UserPrompt        string                `json:"userPrompt"`
	Context           string                `json:"context"`
	AssistantResponse string                `json:"assistantResponse"`
	TokenUsage        *TokenUsage           `json:"tokenUsage"`
	Request           TraceRequest          `json:"request"`
	ResponseMetadata  TraceResponseMetadata `json:"responseMetadata"`
}

// Clone returns a deep copy of the trace.
func (t DebugTurnTrace) Clone() DebugTurnTrace {
	out := t
	if t.TokenUsage != nil {
		u := *t.TokenUsage
		out.TokenUsage = &u
	}
	if t.Request.SelectedContext != nil {
		s := *t.Request.SelectedContext
		out.Request.SelectedContext = &s
	}
	return out
}

// CloneTraces deep-copies a trace list.
func CloneTraces(traces []DebugTurnTrace) []DebugTurnTrace {
	out := make([]DebugTurnTrace, len(traces))
	for i, t := range traces {
		out[i] = t.Clone()
	}
	return out
}
