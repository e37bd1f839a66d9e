// Package notes decides which note-derived context accompanies a chat turn
// and provides a filesystem-backed implementation of the active note.
package notes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/raphaelgruber/vaultwiz/internal/chat"
	"github.com/raphaelgruber/vaultwiz/internal/models"
)

// Source is the host's view of the active note and its editor.
type Source interface {
	// ActiveNotePath returns the active note's path, or "" when none is open.
	ActiveNotePath() string
	// ActiveNoteContent reads the full text of the active note.
	ActiveNoteContent(ctx context.Context) (string, error)
	// EditorSelection returns the editor's current selection. ok is false
	// when nothing is selected.
	EditorSelection() (sel models.Selection, ok bool)
	// EditorFocused reports whether the user is interacting with the editor
	// rather than the chat panel.
	EditorFocused() bool
	// InsertTextAtCursor inserts text into the active note.
	InsertTextAtCursor(ctx context.Context, text string) (bool, error)
}

// Assembler produces the context injected ahead of a user query.
//
// The full note is only sent when it changed since the last turn (or was
// never sent). A captured selection is sent on every turn until cleared.
type Assembler struct {
	source    Source
	selection *SelectionStore
	logger    *slog.Logger

	mu       sync.Mutex
	required bool
}

// NewAssembler creates an assembler. The first turn always carries the note.
func NewAssembler(source Source, selection *SelectionStore, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	if selection == nil {
		selection = NewSelectionStore()
	}
	return &Assembler{
		source:    source,
		selection: selection,
		logger:    logger,
		required:  true,
	}
}

// Selection returns the selection store used by the assembler.
func (a *Assembler) Selection() *SelectionStore {
	return a.selection
}

// ContextRequired reports whether the next turn will carry the full note.
func (a *Assembler) ContextRequired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.required
}

// NotifyFileOpened marks the note context stale. A selection taken from a
// different note is dropped.
func (a *Assembler) NotifyFileOpened(path string) {
	a.markRequired()

	if sel, ok := a.selection.Get(); ok && sel.SourcePath != path {
		a.selection.Clear()
	}
	a.logger.Debug("note opened", "path", path)
}

// NotifyFileModified marks the note context stale.
func (a *Assembler) NotifyFileModified(path string) {
	a.markRequired()
	a.logger.Debug("note modified", "path", path)
}

// CaptureSelection records the editor selection. An empty selection clears
// the stored one only while the editor has focus, so clicking into the chat
// panel keeps it.
func (a *Assembler) CaptureSelection() {
	sel, ok := a.source.EditorSelection()
	if ok && strings.TrimSpace(sel.Text) != "" {
		if sel.SourcePath == "" {
			sel.SourcePath = a.source.ActiveNotePath()
		}
		if a.selection.Set(sel) {
			a.markRequired()
		}
		return
	}
	if a.source.EditorFocused() && a.selection.Clear() {
		a.markRequired()
	}
}

// GetContext returns the context for the next turn, or "" when there is
// nothing to add. Reading the note consumes the stale flag.
func (a *Assembler) GetContext(ctx context.Context) (string, error) {
	var parts []string

	a.mu.Lock()
	required := a.required
	a.mu.Unlock()

	if path := a.source.ActiveNotePath(); required && path != "" {
		content, err := a.source.ActiveNoteContent(ctx)
		if err != nil {
			return "", fmt.Errorf("read active note: %w", err)
		}
		parts = append(parts, chat.WrapNoteContent(content))

		a.mu.Lock()
		a.required = false
		a.mu.Unlock()
	}

	if sel, ok := a.selection.Get(); ok {
		parts = append(parts, chat.WrapSelectedContext(sel.Text))
	}

	return strings.Join(parts, "\n\n"), nil
}

// MarkContextRequired makes the next turn carry the full note again.
func (a *Assembler) MarkContextRequired() {
	a.markRequired()
}

func (a *Assembler) markRequired() {
	a.mu.Lock()
	a.required = true
	a.mu.Unlock()
}
