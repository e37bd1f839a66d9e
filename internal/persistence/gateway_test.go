package persistence

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/vaultwiz/internal/metrics"
	"github.com/raphaelgruber/vaultwiz/internal/models"
	"github.com/raphaelgruber/vaultwiz/internal/notes"
)

// liveState stands in for the conversation log and trace log.
type liveState struct {
	id       string
	messages []models.ChatMessage
	traces   []models.DebugTurnTrace
}

func (s *liveState) resolver() Resolver {
	return Resolver{
		Messages: func(id string) ([]models.ChatMessage, bool) {
			if id != s.id {
				return nil, false
			}
			return s.messages, true
		},
		Traces: func(id string) []models.DebugTurnTrace {
			if id != s.id {
				return nil
			}
			return s.traces
		},
	}
}

func newLocalGateway(t *testing.T) (*Gateway, *notes.Vault, *liveState) {
	t.Helper()
	vault, err := notes.NewVault(t.TempDir())
	require.NoError(t, err)
	provider := NewLocalProvider(vault, "", nil)
	g := NewGateway(provider, Config{Kind: KindLocal}, NewOpener(vault, nil), metrics.NewCollector(), nil)
	live := &liveState{}
	g.SetResolver(live.resolver())
	return g, vault, live
}

func TestGatewayRoundTrip(t *testing.T) {
	ctx := context.Background()
	g, _, live := newLocalGateway(t)

	usage := &models.TokenUsage{InputTokens: 12, OutputTokens: 3}
	selected := "line one"
	live.id = "conv_abc_12345678"
	live.messages = []models.ChatMessage{
		{Role: models.RoleSystem, Content: "sys", Timestamp: 1000},
		{Role: models.RoleUser, Content: "Hello there", Timestamp: 1001},
		{Role: models.RoleDeveloper, Content: "<NOTE_CONTENT>x</NOTE_CONTENT>", Timestamp: 1002},
		{Role: models.RoleAssistant, Content: "Hi!", Timestamp: 1003},
	}
	live.traces = []models.DebugTurnTrace{{
		Timestamp:         1004,
		UserPrompt:        "Hello there",
		AssistantResponse: "Hi!",
		TokenUsage:        usage,
		Request:           models.TraceRequest{Prompt: "Hello there", SelectedContext: &selected},
		ResponseMetadata:  models.TraceResponseMetadata{ConversationID: live.id, Provider: "azure"},
	}}

	require.NoError(t, g.Update(ctx, live.id))

	got := g.Get(ctx, live.id)
	require.NotNil(t, got)
	assert.Equal(t, live.messages, got.Messages)
	assert.Equal(t, live.traces, got.DebugTraces)
	assert.Equal(t, "Hello there", got.Title)
	assert.Equal(t, int64(1003), got.UpdatedAt)
}

func TestGatewayUpdateIgnoresUnresolvedID(t *testing.T) {
	ctx := context.Background()
	g, _, live := newLocalGateway(t)
	live.id = "current"
	live.messages = []models.ChatMessage{{Role: models.RoleUser, Content: "hi", Timestamp: 1}}

	require.NoError(t, g.Update(ctx, "other"))
	assert.Nil(t, g.Get(ctx, "other"))
}

func TestGatewayMostRecent(t *testing.T) {
	ctx := context.Background()
	g, _, live := newLocalGateway(t)

	for i, id := range []string{"one", "two", "three"} {
		live.id = id
		live.messages = []models.ChatMessage{{Role: models.RoleUser, Content: id, Timestamp: int64(i + 1)}}
		require.NoError(t, g.Update(ctx, id))
	}

	recent, err := g.MostRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(3), recent[0].UpdatedAt)
	assert.Equal(t, int64(2), recent[1].UpdatedAt)

	none, err := g.MostRecent(ctx, -1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGatewayUpdatedAtNeverDecreases(t *testing.T) {
	ctx := context.Background()
	g, _, live := newLocalGateway(t)
	live.id = "c"
	live.messages = []models.ChatMessage{{Role: models.RoleUser, Content: "a", Timestamp: 500}}
	require.NoError(t, g.Update(ctx, "c"))

	live.messages = []models.ChatMessage{{Role: models.RoleUser, Content: "a", Timestamp: 100}}
	require.NoError(t, g.Update(ctx, "c"))
	assert.Equal(t, int64(500), g.Get(ctx, "c").UpdatedAt)

	// no timestamps at all keeps the previous value
	live.messages = []models.ChatMessage{{Role: models.RoleUser, Content: "a"}}
	require.NoError(t, g.Update(ctx, "c"))
	assert.Equal(t, int64(500), g.Get(ctx, "c").UpdatedAt)
}

func TestGatewayUpdatedAtFallsBackToNow(t *testing.T) {
	ctx := context.Background()
	g, _, live := newLocalGateway(t)
	g.now = func() time.Time { return time.UnixMilli(777) }

	live.id = "c"
	live.messages = []models.ChatMessage{{Role: models.RoleUser, Content: "a"}}
	require.NoError(t, g.Update(ctx, "c"))
	assert.Equal(t, int64(777), g.Get(ctx, "c").UpdatedAt)
}

func TestGatewayDelete(t *testing.T) {
	ctx := context.Background()
	g, _, live := newLocalGateway(t)
	live.id = "c"
	live.messages = []models.ChatMessage{{Role: models.RoleUser, Content: "a", Timestamp: 1}}
	require.NoError(t, g.Update(ctx, "c"))

	require.NoError(t, g.Delete(ctx, "c"))
	assert.Nil(t, g.Get(ctx, "c"))
	assert.NoError(t, g.Delete(ctx, "c"))
}

func TestGatewayConfigureCosmosKeepsProvider(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newLocalGateway(t)

	err := g.Configure(ctx, Config{Kind: KindCosmos})
	require.ErrorIs(t, err, ErrNotImplemented)
	assert.Contains(t, err.Error(), "CosmosDB persistence provider is not implemented yet.")
	assert.Equal(t, KindLocal, g.Config().Kind)
}

func TestGatewayConfigureSQLite(t *testing.T) {
	ctx := context.Background()
	g, _, live := newLocalGateway(t)
	t.Cleanup(func() { _ = g.Close() })

	dbPath := t.TempDir() + "/chats.db"
	require.NoError(t, g.Configure(ctx, Config{Kind: KindSQLite, SQLitePath: dbPath}))
	assert.Equal(t, KindSQLite, g.Config().Kind)

	live.id = "c"
	live.messages = []models.ChatMessage{{Role: models.RoleUser, Content: "stored in sqlite", Timestamp: 9}}
	require.NoError(t, g.Update(ctx, "c"))
	got := g.Get(ctx, "c")
	require.NotNil(t, got)
	assert.Equal(t, "stored in sqlite", got.Title)
}

func TestGatewayRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	vault, err := notes.NewVault(t.TempDir())
	require.NoError(t, err)
	collector := metrics.NewCollector()
	g := NewGateway(NewLocalProvider(vault, "", nil), Config{}, nil, collector, nil)
	live := &liveState{id: "c", messages: []models.ChatMessage{{Role: models.RoleUser, Content: "a", Timestamp: 1}}}
	g.SetResolver(live.resolver())

	require.NoError(t, g.Update(ctx, "c"))
	_, err = g.MostRecent(ctx, 5)
	require.NoError(t, err)

	snap := collector.Snapshot()
	require.NotNil(t, snap.PersistSave)
	assert.Equal(t, int64(1), snap.PersistSave.Count)
	require.NotNil(t, snap.PersistList)
	assert.Equal(t, int64(1), snap.PersistList.Count)
}

func TestBuildTitle(t *testing.T) {
	long := strings.Repeat("a", 60)

	tests := []struct {
		name     string
		messages []models.ChatMessage
		want     string
	}{
		{"no user message", []models.ChatMessage{{Role: models.RoleSystem, Content: "sys"}}, UntitledTitle},
		{"blank user message", []models.ChatMessage{{Role: models.RoleUser, Content: "  \n "}}, UntitledTitle},
		{"collapses whitespace", []models.ChatMessage{{Role: models.RoleUser, Content: "  hello\n\t world  "}}, "hello world"},
		{"first user message wins", []models.ChatMessage{
			{Role: models.RoleAssistant, Content: "ignored"},
			{Role: models.RoleUser, Content: "first"},
			{Role: models.RoleUser, Content: "second"},
		}, "first"},
		{"truncates long titles", []models.ChatMessage{{Role: models.RoleUser, Content: long}}, strings.Repeat("a", 48) + "…"},
		{"exactly at limit", []models.ChatMessage{{Role: models.RoleUser, Content: strings.Repeat("b", 48)}}, strings.Repeat("b", 48)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildTitle(tt.messages))
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := map[string]Kind{
		"":          KindLocal,
		"local":     KindLocal,
		"SQLite":    KindSQLite,
		"surrealdb": KindSurreal,
		"cosmosDB":  KindCosmos,
	}
	for in, want := range tests {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseKind("mongo")
	assert.Error(t, err)
}
