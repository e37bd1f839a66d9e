package controller

import (
	"context"
	"strings"

	"github.com/raphaelgruber/vaultwiz/internal/chat"
	"github.com/raphaelgruber/vaultwiz/internal/models"
)

// State is a point-in-time view of everything a host renders.
type State struct {
	ConversationID       string                   `json:"conversationId"`
	Panel                models.Panel             `json:"panel"`
	Streaming            bool                     `json:"streaming"`
	Messages             []models.ChatMessage     `json:"messages"`
	DebugTraces          []models.DebugTurnTrace  `json:"debugTraces"`
	Usage                models.TokenUsage        `json:"usage"`
	Models               []models.ConfiguredModel `json:"models"`
	SelectedModel        *models.ConfiguredModel  `json:"selectedModel"`
	EditingModelID       string                   `json:"editingModelId,omitempty"`
	Selection            *models.Selection        `json:"selection"`
	ActiveNotePath       string                   `json:"activeNotePath"`
	ContextRequired      bool                     `json:"contextRequired"`
	LastPersistenceError string                   `json:"lastPersistenceError,omitempty"`
}

// State returns a snapshot of the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	panel, streaming, editing := c.panel, c.streaming, c.editingModelID
	c.mu.Unlock()

	s := State{
		ConversationID:  c.log.ID(),
		Panel:           panel,
		Streaming:       streaming,
		Messages:        c.log.Messages(),
		DebugTraces:     c.traces.Traces(),
		Usage:           c.traces.AggregateUsage(),
		Models:          c.registry.Models(),
		EditingModelID:  editing,
		ActiveNotePath:  c.ActiveNotePath(),
		ContextRequired: c.assembler.ContextRequired(),
	}
	if m, ok := c.registry.Selected(); ok {
		s.SelectedModel = &m
	}
	if sel, ok := c.assembler.Selection().Get(); ok {
		s.Selection = &sel
	}
	if err := c.queue.LastError(); err != nil {
		s.LastPersistenceError = err.Error()
	}
	return s
}

// Panel returns the active panel.
func (c *Controller) Panel() models.Panel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.panel
}

func (c *Controller) OpenChatPanel()     { c.setPanel(models.PanelChat) }
func (c *Controller) OpenDebugPanel()    { c.setPanel(models.PanelDebug) }
func (c *Controller) OpenSettingsPanel() { c.setPanel(models.PanelSettings) }

// OpenAddModelPanel opens the model form for a new model.
func (c *Controller) OpenAddModelPanel() {
	c.mu.Lock()
	c.editingModelID = ""
	c.mu.Unlock()
	c.setPanel(models.PanelAddModel)
}

// ReturnToSettingsPanel leaves the model form.
func (c *Controller) ReturnToSettingsPanel() {
	c.mu.Lock()
	c.editingModelID = ""
	c.mu.Unlock()
	c.setPanel(models.PanelSettings)
}

// setPanel notifies only when the panel changes.
func (c *Controller) setPanel(p models.Panel) {
	c.mu.Lock()
	if c.panel == p {
		c.mu.Unlock()
		return
	}
	c.panel = p
	c.mu.Unlock()
	c.notify()
}

// Models returns the configured models.
func (c *Controller) Models() []models.ConfiguredModel {
	return c.registry.Models()
}

// SelectedModel returns the selected model.
func (c *Controller) SelectedModel() (models.ConfiguredModel, bool) {
	return c.registry.Selected()
}

// SelectConfiguredModelByID selects model id. An unknown id clears the selection.
func (c *Controller) SelectConfiguredModelByID(id string) bool {
	ok := c.registry.Select(id)
	c.notify()
	return ok
}

// EditingModelID returns the model open in the model form, if any.
func (c *Controller) EditingModelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editingModelID
}

// StartEditingModel opens the model form on an existing model.
func (c *Controller) StartEditingModel(id string) bool {
	if _, ok := c.registry.Get(id); !ok {
		return false
	}
	c.mu.Lock()
	c.editingModelID = id
	c.mu.Unlock()
	c.setPanel(models.PanelAddModel)
	c.notify()
	return true
}

// SaveConfiguredModel adds a model. A blank model name is ignored and
// reported as ok == false.
func (c *Controller) SaveConfiguredModel(ctx context.Context, in models.NewConfiguredModelInput) (models.ConfiguredModel, bool, error) {
	m, ok, err := c.registry.Add(ctx, in)
	if err != nil || !ok {
		return m, ok, err
	}
	c.mu.Lock()
	c.editingModelID = ""
	c.mu.Unlock()
	c.notify()
	return m, true, nil
}

// UpdateConfiguredModel changes an existing model.
func (c *Controller) UpdateConfiguredModel(ctx context.Context, id string, in models.NewConfiguredModelInput) (models.ConfiguredModel, error) {
	m, err := c.registry.Update(ctx, id, in)
	if err != nil {
		return m, err
	}
	c.mu.Lock()
	c.editingModelID = ""
	c.mu.Unlock()
	c.notify()
	return m, nil
}

// DeleteConfiguredModel removes a model. A deleted selected model is
// replaced by the first remaining one.
func (c *Controller) DeleteConfiguredModel(ctx context.Context, id string) error {
	if err := c.registry.Delete(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	if c.editingModelID == id {
		c.editingModelID = ""
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// UserBackground returns the stored user background.
func (c *Controller) UserBackground(ctx context.Context) (string, error) {
	return c.gateway.UserBackground(ctx)
}

// SaveUserBackground normalizes and stores the user background. It is
// injected into conversations started from now on, and into the current
// one when it has no messages yet.
func (c *Controller) SaveUserBackground(ctx context.Context, raw string) (string, error) {
	text := chat.NormalizeUserBackground(raw)
	if err := c.gateway.SaveUserBackground(ctx, text); err != nil {
		return "", err
	}
	c.applyUserBackground(text)
	c.notify()
	return text, nil
}

func (c *Controller) applyUserBackground(text string) {
	c.log.SetUserBackground(text)
	if c.log.HasConversationContent() || c.Streaming() {
		return
	}
	c.log.Clear(c.log.ID())
}

// ActiveNotePath returns the path of the active note, or "".
func (c *Controller) ActiveNotePath() string {
	if c.source == nil {
		return ""
	}
	return c.source.ActiveNotePath()
}

// NotifyFileOpened tells the controller the active note changed.
func (c *Controller) NotifyFileOpened(path string) {
	c.assembler.NotifyFileOpened(path)
	c.notify()
}

// NotifyFileModified tells the controller a note was edited.
func (c *Controller) NotifyFileModified(path string) {
	if path != c.ActiveNotePath() {
		return
	}
	c.assembler.NotifyFileModified(path)
	c.notify()
}

// CaptureSelectionFromActiveNote stores the editor selection as context.
func (c *Controller) CaptureSelectionFromActiveNote() {
	c.assembler.CaptureSelection()
	c.notify()
}

// ClearSelection drops the captured selection.
func (c *Controller) ClearSelection() {
	c.assembler.Selection().Clear()
}

// InsertIntoNote inserts text at the cursor of the active note.
func (c *Controller) InsertIntoNote(ctx context.Context, text string) bool {
	if c.source == nil || strings.TrimSpace(text) == "" {
		return false
	}
	ok, err := c.source.InsertTextAtCursor(ctx, text)
	if err != nil {
		c.logger.Warn("failed to insert into note", "path", c.source.ActiveNotePath(), "error", err)
		return false
	}
	if ok {
		c.notify()
	}
	return ok
}

// ConversationLink returns the deep link to the current conversation.
func (c *Controller) ConversationLink() string {
	return chat.EmbedLink(c.log.ID())
}

// InsertConversationLink inserts a markdown link to the current
// conversation into the active note.
func (c *Controller) InsertConversationLink(ctx context.Context) bool {
	return c.InsertIntoNote(ctx, chat.EmbedMarkdown(c.log.ID(), ""))
}
