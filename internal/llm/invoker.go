// Package llm drives a single chat turn against the selected model's
// provider and turns the provider's output into text chunks and token usage.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/vaultwiz/internal/models"
)

// Request is everything a client needs to produce one assistant reply.
type Request struct {
	ConversationID string
	// Prompt is the user's message for this turn.
	Prompt string
	// Context is the note context injected ahead of the prompt, if any.
	Context string
	// Messages is the conversation log, including Prompt and Context.
	Messages []models.ChatMessage
	Model    models.ConfiguredModel
}

// Invoker streams one reply from a provider. onChunk receives text deltas
// in order. The returned usage is nil when the provider reported none.
type Invoker interface {
	Stream(ctx context.Context, req Request, onChunk func(string)) (*models.TokenUsage, error)
}

// Factory maps a provider to its client.
type Factory struct {
	invokers map[models.Provider]Invoker
}

// NewFactory returns a factory with the given provider clients.
func NewFactory(invokers map[models.Provider]Invoker) *Factory {
	m := make(map[models.Provider]Invoker, len(invokers))
	for p, inv := range invokers {
		m[p] = inv
	}
	return &Factory{invokers: m}
}

// NewDefaultFactory wires every supported provider.
func NewDefaultFactory(logger *slog.Logger) *Factory {
	lc := NewLangchainInvoker(logger)
	return NewFactory(map[models.Provider]Invoker{
		models.ProviderAzure:     NewAzureInvoker(nil, logger),
		models.ProviderOpenAI:    lc,
		models.ProviderAnthropic: lc,
		models.ProviderOllama:    lc,
		models.ProviderBedrock:   lc,
	})
}

// Invoker returns the client for provider.
func (f *Factory) Invoker(provider models.Provider) (Invoker, error) {
	inv, ok := f.invokers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoInvoker, provider)
	}
	return inv, nil
}
