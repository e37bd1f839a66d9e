// Package registry keeps the list of configured models and the currently
// selected one.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/vaultwiz/internal/models"
	"github.com/raphaelgruber/vaultwiz/internal/notify"
)

// ErrModelNotFound is returned when no configured model has the given id.
var ErrModelNotFound = errors.New("configured model not found")

// SettingsStore persists the whole model list.
type SettingsStore interface {
	LoadModels(ctx context.Context) ([]models.ConfiguredModel, error)
	SaveModels(ctx context.Context, list []models.ConfiguredModel) error
}

// Registry is the ordered list of configured models. Every mutation is
// written to the store before it becomes visible in memory.
type Registry struct {
	store     SettingsStore
	selection *Selection
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	models []models.ConfiguredModel
}

// New creates an empty registry backed by store.
func New(store SettingsStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:     store,
		selection: &Selection{},
		logger:    logger,
		now:       time.Now,
	}
}

// Selection returns the model selection tracked by this registry.
func (r *Registry) Selection() *Selection {
	return r.selection
}

// Load replaces the in-memory list with the stored one and selects the
// first model, or nothing when the list is empty.
func (r *Registry) Load(ctx context.Context) error {
	loaded, err := r.store.LoadModels(ctx)
	if err != nil {
		return fmt.Errorf("load models: %w", err)
	}

	r.mu.Lock()
	r.models = cloneModels(loaded)
	r.mu.Unlock()

	if len(loaded) > 0 {
		r.selection.set(&loaded[0])
	} else {
		r.selection.set(nil)
	}
	r.logger.Debug("models loaded", "count", len(loaded))
	return nil
}

// Models returns a copy of the configured models in order.
func (r *Registry) Models() []models.ConfiguredModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneModels(r.models)
}

// Get looks up a model by id.
func (r *Registry) Get(id string) (models.ConfiguredModel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.models[i].Clone(), true
	}
	return models.ConfiguredModel{}, false
}

// Add stores a new model. A blank model name makes the call a no-op and ok
// is false. The new model is selected when nothing was selected.
func (r *Registry) Add(ctx context.Context, in models.NewConfiguredModelInput) (m models.ConfiguredModel, ok bool, err error) {
	name := strings.TrimSpace(in.ModelName)
	if name == "" {
		return models.ConfiguredModel{}, false, nil
	}
	provider, err := models.ParseProvider(string(in.Provider))
	if err != nil {
		return models.ConfiguredModel{}, false, err
	}

	now := r.now()
	m = models.ConfiguredModel{
		ID:        models.NewModelID(now),
		Provider:  provider,
		ModelName: name,
		Settings:  copySettings(in.Settings),
		CreatedAt: now.UnixMilli(),
	}

	r.mu.Lock()
	next := append(cloneModels(r.models), m)
	if err := r.store.SaveModels(ctx, next); err != nil {
		r.mu.Unlock()
		return models.ConfiguredModel{}, false, fmt.Errorf("save models: %w", err)
	}
	r.models = next
	r.mu.Unlock()

	if _, selected := r.selection.Get(); !selected {
		r.selection.set(&m)
	}
	r.logger.Info("model added", "model_id", m.ID, "provider", m.Provider, "model_name", m.ModelName)
	return m.Clone(), true, nil
}

// Update replaces the editable fields of model id. The id and creation
// time are kept. A selected model's snapshot is refreshed.
func (r *Registry) Update(ctx context.Context, id string, in models.NewConfiguredModelInput) (models.ConfiguredModel, error) {
	name := strings.TrimSpace(in.ModelName)
	if name == "" {
		return models.ConfiguredModel{}, errors.New("model name is required")
	}
	provider, err := models.ParseProvider(string(in.Provider))
	if err != nil {
		return models.ConfiguredModel{}, err
	}

	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return models.ConfiguredModel{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	next := cloneModels(r.models)
	next[i].Provider = provider
	next[i].ModelName = name
	next[i].Settings = copySettings(in.Settings)
	if err := r.store.SaveModels(ctx, next); err != nil {
		r.mu.Unlock()
		return models.ConfiguredModel{}, fmt.Errorf("save models: %w", err)
	}
	r.models = next
	updated := next[i].Clone()
	r.mu.Unlock()

	if sel, ok := r.selection.Get(); ok && sel.ID == id {
		r.selection.set(&updated)
	}
	r.logger.Info("model updated", "model_id", id)
	return updated, nil
}

// Delete removes model id. Deleting the selected model selects the first
// remaining one, or nothing.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	next := make([]models.ConfiguredModel, 0, len(r.models)-1)
	next = append(next, r.models[:i]...)
	next = append(next, r.models[i+1:]...)
	if err := r.store.SaveModels(ctx, next); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("save models: %w", err)
	}
	r.models = next
	var fallback *models.ConfiguredModel
	if len(next) > 0 {
		first := next[0].Clone()
		fallback = &first
	}
	r.mu.Unlock()

	if sel, ok := r.selection.Get(); ok && sel.ID == id {
		r.selection.set(fallback)
	}
	r.logger.Info("model deleted", "model_id", id)
	return nil
}

// Select makes model id the selected one. An unknown id clears the
// selection and returns false.
func (r *Registry) Select(id string) bool {
	m, ok := r.Get(id)
	if !ok {
		r.selection.set(nil)
		return false
	}
	r.selection.set(&m)
	return true
}

// Selected returns a snapshot of the selected model.
func (r *Registry) Selected() (models.ConfiguredModel, bool) {
	return r.selection.Get()
}

// indexOf must be called with r.mu held.
func (r *Registry) indexOf(id string) int {
	for i := range r.models {
		if r.models[i].ID == id {
			return i
		}
	}
	return -1
}

// Selection holds a snapshot of at most one selected model.
type Selection struct {
	mu        sync.RWMutex
	model     *models.ConfiguredModel
	listeners notify.Registry
}

// Get returns a copy of the selected model.
func (s *Selection) Get() (models.ConfiguredModel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil {
		return models.ConfiguredModel{}, false
	}
	return s.model.Clone(), true
}

// Subscribe registers fn for selection changes.
func (s *Selection) Subscribe(fn func()) (unsubscribe func()) {
	return s.listeners.Subscribe(fn)
}

func (s *Selection) set(m *models.ConfiguredModel) {
	s.mu.Lock()
	if m == nil {
		s.model = nil
	} else {
		c := m.Clone()
		s.model = &c
	}
	s.mu.Unlock()
	s.listeners.Notify()
}

func cloneModels(in []models.ConfiguredModel) []models.ConfiguredModel {
	out := make([]models.ConfiguredModel, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func copySettings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
