package llm

import (
	"math"
	"strings"

	"github.com/raphaelgruber/vaultwiz/internal/models"
)

// ExtractDelta returns the text delta carried by one stream event, or "".
func ExtractDelta(event map[string]any) string {
	if s, ok := event["delta"].(string); ok {
		return s
	}
	if s, ok := lookupString(event, "choices", 0, "delta", "content"); ok {
		return s
	}
	if s, ok := lookupString(event, "output_text", "delta"); ok {
		return s
	}
	if s, ok := lookupString(event, "response", "output_text", "delta"); ok {
		return s
	}
	return ""
}

// ExtractText returns the full reply text of a non-streamed response body.
func ExtractText(body map[string]any) string {
	if s, ok := body["output_text"].(string); ok {
		return s
	}
	if s, ok := lookupString(body, "choices", 0, "message", "content"); ok {
		return s
	}

	output, _ := body["output"].([]any)
	var b strings.Builder
	for _, item := range output {
		obj, _ := item.(map[string]any)
		content, _ := obj["content"].([]any)
		for _, c := range content {
			part, _ := c.(map[string]any)
			if text, ok := part["text"].(string); ok {
				b.WriteString(text)
			}
		}
	}
	return b.String()
}

// ExtractUsage finds token usage in a response payload. It looks at usage,
// response.usage and data.usage, and returns nil when no count is present.
func ExtractUsage(payload map[string]any) *models.TokenUsage {
	var usage map[string]any
	for _, path := range [][]any{{"usage"}, {"response", "usage"}, {"data", "usage"}} {
		if u, ok := lookup(payload, path...).(map[string]any); ok {
			usage = u
			break
		}
	}
	if usage == nil {
		return nil
	}

	input := firstCount(usage,
		[]any{"input_tokens"}, []any{"prompt_tokens"}, []any{"inputTokens"})
	output := firstCount(usage,
		[]any{"output_tokens"}, []any{"completion_tokens"}, []any{"outputTokens"})
	cached := firstCount(usage,
		[]any{"cached_input_tokens"}, []any{"cached_tokens"},
		[]any{"input_tokens_details", "cached_tokens"}, []any{"prompt_tokens_details", "cached_tokens"})

	return buildUsage(input, output, cached)
}

// UsageFromGenerationInfo reads token counts from a langchaingo choice.
// Key names differ per provider.
func UsageFromGenerationInfo(info map[string]any) *models.TokenUsage {
	if len(info) == 0 {
		return nil
	}
	input := firstCount(info, []any{"InputTokens"}, []any{"PromptTokens"}, []any{"input_tokens"})
	output := firstCount(info, []any{"OutputTokens"}, []any{"CompletionTokens"}, []any{"output_tokens"})
	cached := firstCount(info, []any{"CacheReadInputTokens"}, []any{"PromptCachedTokens"}, []any{"CachedTokens"})
	return buildUsage(input, output, cached)
}

func buildUsage(input, output, cached *int64) *models.TokenUsage {
	if input == nil && output == nil && cached == nil {
		return nil
	}
	u := &models.TokenUsage{}
	if input != nil {
		u.InputTokens = *input
	}
	if output != nil {
		u.OutputTokens = *output
	}
	if cached != nil {
		u.CachedInputTokens = *cached
	}
	return u
}

// firstCount reads the first path that holds a value. Only absent values
// fall through to the next path; a present value that is negative,
// non-finite or non-numeric yields nil.
func firstCount(obj map[string]any, paths ...[]any) *int64 {
	for _, path := range paths {
		v := lookup(obj, path...)
		if v == nil {
			continue
		}
		n, ok := toCount(v)
		if !ok {
			return nil
		}
		return &n
	}
	return nil
}

func toCount(v any) (int64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return int64(f), true
}

// lookup walks nested maps (string keys) and slices (int indexes).
func lookup(v any, path ...any) any {
	cur := v
	for _, p := range path {
		switch key := p.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return nil
			}
			cur = m[key]
		case int:
			s, ok := cur.([]any)
			if !ok || key >= len(s) {
				return nil
			}
			cur = s[key]
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

func lookupString(v any, path ...any) (string, bool) {
	s, ok := lookup(v, path...).(string)
	return s, ok
}
