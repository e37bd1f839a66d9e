package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/vaultwiz/internal/metrics"
	"github.com/raphaelgruber/vaultwiz/internal/models"
)

const (
	// UntitledTitle is used when a conversation has no user message yet.
	UntitledTitle = "Untitled chat"

	titleMaxRunes = 48
)

// Resolver looks up the live state of a conversation. Messages reports
// false when id is not the conversation currently held in memory.
type Resolver struct {
	Messages func(id string) ([]models.ChatMessage, bool)
	Traces   func(id string) []models.DebugTurnTrace
}

// Gateway builds conversation records from live state and stores them
// through the configured Provider. The provider can be swapped at runtime.
type Gateway struct {
	mu       sync.RWMutex
	provider Provider
	cfg      Config
	open     Opener

	resolve Resolver
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time
}

// NewGateway creates a gateway on provider. open is used by Configure and
// may be nil when the provider never changes.
func NewGateway(provider Provider, cfg Config, open Opener, collector *metrics.Collector, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		provider: provider,
		cfg:      cfg,
		open:     open,
		metrics:  collector,
		logger:   logger,
		now:      time.Now,
	}
}

// SetResolver installs the callbacks used by Update.
func (g *Gateway) SetResolver(r Resolver) {
	g.mu.Lock()
	g.resolve = r
	g.mu.Unlock()
}

// Config returns the active provider configuration.
func (g *Gateway) Config() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

func (g *Gateway) current() (Provider, Resolver) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.provider, g.resolve
}

// Snapshot resolves the live state of conversation id. ok is false when
// id is not the conversation held in memory.
func (g *Gateway) Snapshot(id string) (messages []models.ChatMessage, traces []models.DebugTurnTrace, ok bool) {
	_, resolve := g.current()
	if resolve.Messages == nil {
		return nil, nil, false
	}
	messages, ok = resolve.Messages(id)
	if !ok {
		return nil, nil, false
	}
	if resolve.Traces != nil {
		traces = resolve.Traces(id)
	}
	return models.CloneMessages(messages), models.CloneTraces(traces), true
}

// Update persists the live state of conversation id. It does nothing when
// id does not resolve to live messages.
func (g *Gateway) Update(ctx context.Context, id string) error {
	messages, traces, ok := g.Snapshot(id)
	if !ok {
		return nil
	}
	return g.Store(ctx, id, messages, traces)
}

// Store writes a record for id built from messages and traces. The title
// is derived from the first user message and updatedAt never decreases.
func (g *Gateway) Store(ctx context.Context, id string, messages []models.ChatMessage, traces []models.DebugTurnTrace) error {
	provider, _ := g.current()

	var existingUpdatedAt *int64
	if existing, err := provider.Load(ctx, id); err == nil {
		existingUpdatedAt = &existing.UpdatedAt
	} else if !errors.Is(err, ErrNotFound) {
		g.logger.Debug("ignoring unreadable previous record", "conversation_id", id, "error", err)
	}

	rec := models.PersistedConversation{
		ConversationID: id,
		Title:          BuildTitle(messages),
		UpdatedAt:      resolveUpdatedAt(messages, existingUpdatedAt, g.now),
		Messages:       models.CloneMessages(messages),
		DebugTraces:    models.CloneTraces(traces),
	}

	start := time.Now()
	err := provider.Save(ctx, rec)
	g.metrics.RecordTiming(metrics.OpPersistSave, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("persist conversation %s: %w", id, err)
	}
	g.logger.Debug("conversation persisted",
		"conversation_id", id,
		"provider", provider.Name(),
		"messages", len(rec.Messages),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Amend applies fn to the stored record for id and saves the result.
// It is used for turns that finish after their conversation was left,
// when the live state no longer holds them.
func (g *Gateway) Amend(ctx context.Context, id string, fn func(rec *models.PersistedConversation)) error {
	provider, _ := g.current()
	rec, err := provider.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("load conversation %s: %w", id, err)
	}
	fn(&rec)
	if latest := resolveUpdatedAt(rec.Messages, &rec.UpdatedAt, g.now); latest > rec.UpdatedAt {
		rec.UpdatedAt = latest
	}

	start := time.Now()
	err = provider.Save(ctx, rec)
	g.metrics.RecordTiming(metrics.OpPersistSave, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("persist conversation %s: %w", id, err)
	}
	return nil
}

// Get returns the stored record for id, or nil when it is missing or
// cannot be read.
func (g *Gateway) Get(ctx context.Context, id string) *models.PersistedConversation {
	provider, _ := g.current()

	start := time.Now()
	rec, err := provider.Load(ctx, id)
	g.metrics.RecordTiming(metrics.OpPersistLoad, time.Since(start), err)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			g.logger.Warn("failed to load conversation", "conversation_id", id, "error", err)
		}
		return nil
	}
	return &rec
}

// MostRecent returns up to n records ordered by UpdatedAt, newest first.
func (g *Gateway) MostRecent(ctx context.Context, n int) ([]models.PersistedConversation, error) {
	provider, _ := g.current()

	start := time.Now()
	all, err := provider.List(ctx)
	g.metrics.RecordTiming(metrics.OpPersistList, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].UpdatedAt > all[j].UpdatedAt
	})
	if n < 0 {
		n = 0
	}
	if n < len(all) {
		all = all[:n]
	}
	return all, nil
}

// Delete removes the record for id.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	provider, _ := g.current()

	start := time.Now()
	err := provider.Delete(ctx, id)
	g.metrics.RecordTiming(metrics.OpPersistDelete, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return nil
}

// UserBackground returns the stored user background text.
func (g *Gateway) UserBackground(ctx context.Context) (string, error) {
	provider, _ := g.current()
	return provider.LoadUserBackground(ctx)
}

// SaveUserBackground stores the user background text.
func (g *Gateway) SaveUserBackground(ctx context.Context, text string) error {
	provider, _ := g.current()
	return provider.SaveUserBackground(ctx, text)
}

// Configure switches to the provider described by cfg. On failure the
// current provider stays active.
func (g *Gateway) Configure(ctx context.Context, cfg Config) error {
	if g.open == nil {
		return errors.New("persistence provider cannot be changed")
	}
	next, err := g.open(ctx, cfg)
	if err != nil {
		return err
	}

	g.mu.Lock()
	prev := g.provider
	g.provider = next
	g.cfg = cfg
	g.mu.Unlock()

	g.logger.Info("persistence provider configured", "provider", next.Name())
	if prev != nil {
		if err := prev.Close(); err != nil {
			g.logger.Warn("failed to close previous persistence provider", "provider", prev.Name(), "error", err)
		}
	}
	return nil
}

// Close closes the active provider.
func (g *Gateway) Close() error {
	provider, _ := g.current()
	if provider == nil {
		return nil
	}
	return provider.Close()
}

// BuildTitle derives a record title from the first user message.
func BuildTitle(messages []models.ChatMessage) string {
	for _, m := range messages {
		if m.Role != models.RoleUser {
			continue
		}
		title := strings.Join(strings.Fields(m.Content), " ")
		if title == "" {
			return UntitledTitle
		}
		runes := []rune(title)
		if len(runes) <= titleMaxRunes {
			return title
		}
		return string(runes[:titleMaxRunes]) + "…"
	}
	return UntitledTitle
}

// resolveUpdatedAt never moves a record's timestamp backwards.
func resolveUpdatedAt(messages []models.ChatMessage, existing *int64, now func() time.Time) int64 {
	var latest int64
	for _, m := range messages {
		if m.Timestamp > latest {
			latest = m.Timestamp
		}
	}
	switch {
	case latest > 0:
		if existing != nil && *existing > latest {
			return *existing
		}
		return latest
	case existing != nil:
		return *existing
	default:
		return now().UnixMilli()
	}
}
