package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/raphaelgruber/vaultwiz/internal/models"
)

// NoModelSelectedMessage is streamed instead of a reply when no model is selected.
const NoModelSelectedMessage = "No model selected. Please configure and select a model."

// ModelSelector exposes the currently selected model.
type ModelSelector interface {
	Selected() (models.ConfiguredModel, bool)
}

// Turn is the input of one dispatched turn.
type Turn struct {
	ConversationID string
	Prompt         string
	Context        string
	Messages       []models.ChatMessage
	// Model overrides the selector. Callers that already took a snapshot of
	// the selection pass it here so the turn and its trace agree.
	Model *models.ConfiguredModel
}

// Result is the outcome of a successful turn.
type Result struct {
	TokenUsage *models.TokenUsage
}

// Dispatcher runs a turn against the selected model's provider.
type Dispatcher struct {
	factory  *Factory
	selector ModelSelector
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(factory *Factory, selector ModelSelector, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{factory: factory, selector: selector, logger: logger}
}

// StreamAssistantReply streams one reply to onChunk. Without a selected
// model a single explanatory chunk is delivered and no request is made.
func (d *Dispatcher) StreamAssistantReply(ctx context.Context, turn Turn, onChunk func(string)) (Result, error) {
	model, ok := d.resolveModel(turn)
	if !ok {
		onChunk(NoModelSelectedMessage)
		return Result{}, nil
	}

	inv, err := d.factory.Invoker(model.Provider)
	if err != nil {
		return Result{}, err
	}

	d.logger.Debug("dispatching turn",
		"conversation_id", turn.ConversationID,
		"provider", model.Provider,
		"model_name", model.ModelName,
		"messages", len(turn.Messages))

	start := time.Now()
	usage, err := inv.Stream(ctx, Request{
		ConversationID: turn.ConversationID,
		Prompt:         turn.Prompt,
		Context:        turn.Context,
		Messages:       turn.Messages,
		Model:          model,
	}, onChunk)
	duration := time.Since(start)

	if err != nil {
		d.logger.Warn("turn failed",
			"conversation_id", turn.ConversationID,
			"provider", model.Provider,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return Result{}, err
	}

	d.logger.Debug("turn complete",
		"conversation_id", turn.ConversationID,
		"provider", model.Provider,
		"duration_ms", duration.Milliseconds())
	return Result{TokenUsage: usage}, nil
}

func (d *Dispatcher) resolveModel(turn Turn) (models.ConfiguredModel, bool) {
	if turn.Model != nil {
		return *turn.Model, true
	}
	if d.selector == nil {
		return models.ConfiguredModel{}, false
	}
	return d.selector.Selected()
}
