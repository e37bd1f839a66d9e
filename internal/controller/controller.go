// Package controller orchestrates chat turns: it assembles note context,
// streams the assistant reply into the conversation log, records debug
// traces and persists conversations in the background.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/vaultwiz/internal/chat"
	"github.com/raphaelgruber/vaultwiz/internal/debugtrace"
	"github.com/raphaelgruber/vaultwiz/internal/llm"
	"github.com/raphaelgruber/vaultwiz/internal/metrics"
	"github.com/raphaelgruber/vaultwiz/internal/models"
	"github.com/raphaelgruber/vaultwiz/internal/notes"
	"github.com/raphaelgruber/vaultwiz/internal/notify"
	"github.com/raphaelgruber/vaultwiz/internal/persistence"
	"github.com/raphaelgruber/vaultwiz/internal/registry"
)

const (
	// UnexpectedErrorMessage is shown when a failed turn carries no message.
	UnexpectedErrorMessage = "Unexpected LLM error."

	// CancelledMessage is appended to a reply whose turn was cancelled.
	CancelledMessage = "Response cancelled."
)

// Dispatcher streams one assistant reply.
type Dispatcher interface {
	StreamAssistantReply(ctx context.Context, turn llm.Turn, onChunk func(string)) (llm.Result, error)
}

// Dependencies holds the components the controller drives.
type Dependencies struct {
	Log        *chat.Log
	Traces     *debugtrace.Log
	Assembler  *notes.Assembler
	Source     notes.Source
	Registry   *registry.Registry
	Dispatcher Dispatcher
	Gateway    *persistence.Gateway
	Queue      *persistence.Queue
	Metrics    *metrics.Collector
	Logger     *slog.Logger
}

// activeTurn is the turn currently allowed to drive the streaming state.
type activeTurn struct {
	conversationID string
	cancel         context.CancelFunc
}

// Controller is the single writer of the conversation state. Hosts read
// it through State and are told about changes through Subscribe.
type Controller struct {
	log        *chat.Log
	traces     *debugtrace.Log
	assembler  *notes.Assembler
	source     notes.Source
	registry   *registry.Registry
	dispatcher Dispatcher
	gateway    *persistence.Gateway
	queue      *persistence.Queue
	metrics    *metrics.Collector
	logger     *slog.Logger

	listeners notify.Registry
	unsubs    []func()

	mu             sync.Mutex
	panel          models.Panel
	streaming      bool
	turn           *activeTurn
	editingModelID string
}

// New creates a controller holding a fresh conversation.
func New(deps Dependencies) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		log:        deps.Log,
		traces:     deps.Traces,
		assembler:  deps.Assembler,
		source:     deps.Source,
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		gateway:    deps.Gateway,
		queue:      deps.Queue,
		metrics:    deps.Metrics,
		logger:     logger,
		panel:      models.PanelChat,
	}

	id := models.NewConversationID(time.Now())
	c.log.Clear(id)
	c.traces.Clear(id)

	c.gateway.SetResolver(persistence.Resolver{
		Messages: func(id string) ([]models.ChatMessage, bool) {
			if c.log.ID() != id {
				return nil, false
			}
			return c.log.Messages(), true
		},
		Traces: func(id string) []models.DebugTurnTrace {
			if c.traces.ID() != id {
				return nil
			}
			return c.traces.Traces()
		},
	})

	c.unsubs = append(c.unsubs,
		c.registry.Selection().Subscribe(c.notify),
		c.assembler.Selection().Subscribe(c.notify),
	)
	return c
}

// Initialize loads the configured models and the user background. The
// first model is selected.
func (c *Controller) Initialize(ctx context.Context) error {
	if err := c.registry.Load(ctx); err != nil {
		return err
	}

	background, err := c.gateway.UserBackground(ctx)
	if err != nil {
		c.logger.Warn("failed to load user background", "error", err)
	}
	c.applyUserBackground(background)

	c.notify()
	return nil
}

// Subscribe registers fn to run after every state change.
func (c *Controller) Subscribe(fn func()) (unsubscribe func()) {
	return c.listeners.Subscribe(fn)
}

func (c *Controller) notify() {
	c.listeners.Notify()
}

// ConversationID returns the id of the current conversation.
func (c *Controller) ConversationID() string {
	return c.log.ID()
}

// Messages returns the current transcript, including a streaming reply.
func (c *Controller) Messages() []models.ChatMessage {
	return c.log.Messages()
}

// DebugTraces returns the traces of the current conversation.
func (c *Controller) DebugTraces() []models.DebugTurnTrace {
	return c.traces.Traces()
}

// AggregateTokenUsage sums token usage over the current conversation.
func (c *Controller) AggregateTokenUsage() models.TokenUsage {
	return c.traces.AggregateUsage()
}

// Streaming reports whether a reply is being streamed.
func (c *Controller) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// OnUserMessage runs one turn for raw. It returns once the reply has been
// streamed (or failed). Empty input and input received while another turn
// is in flight are ignored. Turn failures are written into the transcript,
// never returned.
func (c *Controller) OnUserMessage(ctx context.Context, raw string) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return
	}

	c.mu.Lock()
	if c.turn != nil || c.streaming {
		c.mu.Unlock()
		c.logger.Debug("ignoring message while a turn is in flight")
		return
	}
	turn := &activeTurn{conversationID: c.log.ID()}
	c.turn = turn
	c.mu.Unlock()

	noteContext, err := c.assembler.GetContext(ctx)
	if err != nil {
		c.logger.Warn("failed to assemble note context", "error", err)
		noteContext = ""
	}

	conversationID := turn.conversationID
	isContextCommand := input == chat.ContextCommand

	// Ownership is checked and the turn head written under c.mu. A reset
	// either lands before anything is appended or sees the whole head.
	c.mu.Lock()
	if c.turn != turn || c.log.ID() != conversationID {
		if c.turn == turn {
			c.turn = nil
		}
		c.mu.Unlock()
		// The note was read for a turn that never happened.
		c.assembler.MarkContextRequired()
		return
	}
	c.log.Append(models.NewMessage(models.RoleUser, input))
	c.log.Append(models.NewMessage(models.RoleDeveloper, noteContext))
	var (
		history []models.ChatMessage
		pending *chat.PendingTurn
	)
	if !isContextCommand {
		history = c.log.Messages()
		pending = c.log.BeginTurn()
	}
	c.mu.Unlock()

	if isContextCommand {
		c.release(turn)
		c.persist(conversationID)
		c.notify()
		return
	}

	var model *models.ConfiguredModel
	if m, ok := c.registry.Selected(); ok {
		model = &m
	}
	var selectedContext *string
	if sel, ok := c.assembler.Selection().Get(); ok {
		s := sel.String()
		selectedContext = &s
		c.assembler.Selection().Clear()
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	owned := c.turn == turn
	if owned {
		turn.cancel = cancel
		c.streaming = true
	}
	c.mu.Unlock()

	var (
		result   llm.Result
		duration time.Duration
	)
	if owned {
		c.notify()
		start := time.Now()
		result, err = c.dispatcher.StreamAssistantReply(turnCtx, llm.Turn{
			ConversationID: conversationID,
			Prompt:         input,
			Context:        noteContext,
			Messages:       history,
			Model:          model,
		}, func(chunk string) {
			if c.log.ApplyChunk(pending, chunk) {
				c.notify()
			}
		})
		duration = time.Since(start)
	} else {
		// Aborted before the reply started: finish as a cancelled turn.
		cancel()
		err = context.Canceled
	}

	var errorMessage string
	if err != nil {
		errorMessage = turnErrorMessage(turnCtx, err)
		c.log.ApplyChunk(pending, "\n"+errorMessage)
	}

	trace := models.DebugTurnTrace{
		Timestamp:         models.NowMillis(),
		UserPrompt:        input,
		Context:           noteContext,
		AssistantResponse: pending.Content(),
		TokenUsage:        result.TokenUsage,
		Request: models.TraceRequest{
			Prompt:          input,
			Context:         noteContext,
			SelectedContext: selectedContext,
		},
		ResponseMetadata: models.TraceResponseMetadata{
			ConversationID: conversationID,
			CompletedAt:    models.NowMillis(),
			HadError:       err != nil,
			ErrorMessage:   errorMessage,
		},
	}
	if model != nil {
		trace.ResponseMetadata.Provider = string(model.Provider)
		trace.ResponseMetadata.ModelName = model.ModelName
		trace.ResponseMetadata.ConfiguredModelID = model.ID
	}
	if owned {
		c.recordTurnMetrics(duration, err != nil, result.TokenUsage)
	}

	if c.log.CommitTurn(pending) && c.traces.ID() == conversationID {
		c.traces.Append(trace)
		c.persist(conversationID)
	} else {
		c.persistDetachedTurn(conversationID, pending, trace)
	}

	c.release(turn)
	c.notify()
}

func turnErrorMessage(ctx context.Context, err error) string {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return CancelledMessage
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return UnexpectedErrorMessage
}

func (c *Controller) recordTurnMetrics(d time.Duration, failed bool, usage *models.TokenUsage) {
	if usage == nil {
		c.metrics.RecordTurn(d, failed, 0, 0, 0, false)
		return
	}
	c.metrics.RecordTurn(d, failed, usage.InputTokens, usage.OutputTokens, usage.CachedInputTokens, true)
}

// owns reports whether turn is still the active turn.
func (c *Controller) owns(turn *activeTurn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turn == turn
}

// release ends turn if it is still the active one.
func (c *Controller) release(turn *activeTurn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn != turn {
		return
	}
	c.turn = nil
	c.streaming = false
}

// abortTurn cancels the in-flight turn, if any, and resets the streaming
// state. The cancelled turn finishes against its own conversation.
func (c *Controller) abortTurn() {
	c.mu.Lock()
	turn := c.turn
	c.turn = nil
	c.streaming = false
	c.mu.Unlock()

	if turn != nil && turn.cancel != nil {
		c.logger.Info("cancelling in-flight turn", "conversation_id", turn.conversationID)
		turn.cancel()
	}
}

// ResetChatAndStartNewConversation stores the current conversation when it
// has content and starts an empty one with a new id.
func (c *Controller) ResetChatAndStartNewConversation() {
	c.abortTurn()
	if c.log.HasConversationContent() {
		c.persist(c.log.ID())
	}

	id := models.NewConversationID(time.Now())
	c.log.Clear(id)
	c.traces.Clear(id)
	c.logger.Debug("new conversation", "conversation_id", id)
	c.notify()
}

// OpenConversationByID restores a stored conversation into the chat panel.
// It returns false when no conversation with that id exists.
func (c *Controller) OpenConversationByID(ctx context.Context, id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	if id == c.log.ID() {
		c.setPanel(models.PanelChat)
		return true
	}

	c.flush(ctx)
	rec := c.gateway.Get(ctx, id)
	if rec == nil {
		return false
	}
	c.OpenConversation(*rec)
	return true
}

// OpenConversation replaces the current conversation with rec. The
// current one is stored first.
func (c *Controller) OpenConversation(rec models.PersistedConversation) {
	c.abortTurn()
	if c.log.HasConversationContent() {
		c.persist(c.log.ID())
	}

	c.log.ReplaceConversation(rec.ConversationID, rec.Messages)
	c.traces.Replace(rec.ConversationID, rec.DebugTraces)

	c.mu.Lock()
	c.panel = models.PanelChat
	c.mu.Unlock()

	c.logger.Debug("conversation opened", "conversation_id", rec.ConversationID, "messages", len(rec.Messages))
	c.notify()
}

// History returns up to n stored conversations, newest first.
func (c *Controller) History(ctx context.Context, n int) ([]models.PersistedConversation, error) {
	c.flush(ctx)
	return c.gateway.MostRecent(ctx, n)
}

// Conversation returns the stored conversation id, or nil.
func (c *Controller) Conversation(ctx context.Context, id string) *models.PersistedConversation {
	c.flush(ctx)
	return c.gateway.Get(ctx, strings.TrimSpace(id))
}

// DeleteConversation removes a stored conversation. Deleting the current
// conversation starts a new one without storing it again.
func (c *Controller) DeleteConversation(ctx context.Context, id string) error {
	c.flush(ctx)
	if err := c.gateway.Delete(ctx, id); err != nil {
		return err
	}
	if id == c.log.ID() {
		c.abortTurn()
		next := models.NewConversationID(time.Now())
		c.log.Clear(next)
		c.traces.Clear(next)
	}
	c.notify()
	return nil
}

// persist schedules a background save of conversation id as it is now.
func (c *Controller) persist(id string) {
	messages, traces, ok := c.gateway.Snapshot(id)
	if !ok {
		return
	}
	_, err := c.queue.Enqueue("update", id, func(ctx context.Context) error {
		return c.gateway.Store(ctx, id, messages, traces)
	})
	if err != nil {
		c.logger.Warn("failed to schedule conversation save", "conversation_id", id, "error", err)
	}
}

// persistDetachedTurn stores the result of a turn whose conversation is no
// longer the current one.
func (c *Controller) persistDetachedTurn(id string, pending *chat.PendingTurn, trace models.DebugTurnTrace) {
	content := pending.Content()
	timestamp := pending.Timestamp()
	_, err := c.queue.Enqueue("amend", id, func(ctx context.Context) error {
		return c.gateway.Amend(ctx, id, func(rec *models.PersistedConversation) {
			for i := len(rec.Messages) - 1; i >= 0; i-- {
				m := &rec.Messages[i]
				if m.Role == models.RoleAssistant && m.Timestamp == timestamp {
					m.Content = content
					break
				}
			}
			rec.DebugTraces = append(rec.DebugTraces, trace)
		})
	})
	if err != nil {
		c.logger.Warn("failed to schedule detached turn save", "conversation_id", id, "error", err)
	}
}

func (c *Controller) flush(ctx context.Context) {
	if err := c.queue.Flush(ctx); err != nil {
		c.logger.Debug("persistence flush interrupted", "error", err)
	}
}

// Flush waits for scheduled saves to finish.
func (c *Controller) Flush(ctx context.Context) error {
	return c.queue.Flush(ctx)
}

// LastPersistenceError returns the error of the latest failed background
// save, or nil once a later save succeeded.
func (c *Controller) LastPersistenceError() error {
	return c.queue.LastError()
}

// ConfigurePersistence switches the persistence provider after pending
// saves are written. The user background is reloaded from the new provider.
func (c *Controller) ConfigurePersistence(ctx context.Context, cfg persistence.Config) error {
	c.flush(ctx)
	if err := c.gateway.Configure(ctx, cfg); err != nil {
		return err
	}
	background, err := c.gateway.UserBackground(ctx)
	if err != nil {
		c.logger.Warn("failed to load user background", "error", err)
	}
	c.applyUserBackground(background)
	c.notify()
	return nil
}

// PersistenceConfig returns the active persistence configuration.
func (c *Controller) PersistenceConfig() persistence.Config {
	return c.gateway.Config()
}

// Close cancels an in-flight turn, writes pending saves and closes the
// persistence provider.
func (c *Controller) Close() error {
	c.abortTurn()
	c.queue.Close()
	for _, unsub := range c.unsubs {
		unsub()
	}
	return c.gateway.Close()
}
