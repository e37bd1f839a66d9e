package notes

import (
	"strings"
	"sync"

	"github.com/raphaelgruber/vaultwiz/internal/models"
	"github.com/raphaelgruber/vaultwiz/internal/notify"
)

// SelectionStore holds the selection captured from the active note until it
// is consumed by a turn or cleared.
type SelectionStore struct {
	mu        sync.RWMutex
	selection *models.Selection
	listeners notify.Registry
}

// NewSelectionStore returns an empty store.
func NewSelectionStore() *SelectionStore {
	return &SelectionStore{}
}

// Set stores sel. Selections whose text is blank are ignored.
func (s *SelectionStore) Set(sel models.Selection) bool {
	text := strings.TrimSpace(sel.Text)
	if text == "" {
		return false
	}
	sel = sel.Normalize()
	sel.Text = text
	if sel.CapturedAt == 0 {
		sel.CapturedAt = models.NowMillis()
	}

	s.mu.Lock()
	s.selection = &sel
	s.mu.Unlock()

	s.listeners.Notify()
	return true
}

// Get returns the current selection.
func (s *SelectionStore) Get() (models.Selection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selection == nil {
		return models.Selection{}, false
	}
	return *s.selection, true
}

// Clear drops the selection and reports whether one was stored. Listeners
// are notified only in that case.
func (s *SelectionStore) Clear() bool {
	s.mu.Lock()
	had := s.selection != nil
	s.selection = nil
	s.mu.Unlock()

	if had {
		s.listeners.Notify()
	}
	return had
}

// Subscribe registers fn for selection changes.
func (s *SelectionStore) Subscribe(fn func()) (unsubscribe func()) {
	return s.listeners.Subscribe(fn)
}
