package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/vaultwiz/internal/models"
	"github.com/raphaelgruber/vaultwiz/internal/notes"
)

func newLocalProvider(t *testing.T, folder string) (*LocalProvider, *notes.Vault) {
	t.Helper()
	vault, err := notes.NewVault(t.TempDir())
	require.NoError(t, err)
	return NewLocalProvider(vault, folder, nil), vault
}

func TestFileNameForID(t *testing.T) {
	assert.Equal(t, "conv_abc_123.json", FileNameForID("conv_abc_123"))
	assert.Equal(t, "a_b_c-d.json", FileNameForID("a/b.c-d"))
	assert.Equal(t, "___.json", FileNameForID("../"))
}

func TestLocalProviderDefaultFolder(t *testing.T) {
	p, _ := newLocalProvider(t, "  ")
	assert.Equal(t, DefaultChatFolder, p.Folder())

	p, _ = newLocalProvider(t, "/archive/chats/")
	assert.Equal(t, "archive/chats", p.Folder())
}

func TestLocalProviderSaveWritesIndentedJSON(t *testing.T) {
	ctx := context.Background()
	p, vault := newLocalProvider(t, "")

	require.NoError(t, p.Save(ctx, models.PersistedConversation{
		ConversationID: "c/1",
		Title:          "t",
		UpdatedAt:      5,
		Messages:       []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
	}))

	raw, err := vault.Read(ctx, DefaultChatFolder+"/c_1.json")
	require.NoError(t, err)
	assert.Contains(t, raw, "\n  \"chatId\": \"c/1\"")
	assert.Contains(t, raw, "\"debugTraces\": []")
}

func TestLocalProviderListSkipsReservedAndInvalid(t *testing.T) {
	ctx := context.Background()
	p, vault := newLocalProvider(t, "")

	require.NoError(t, p.Save(ctx, models.PersistedConversation{
		ConversationID: "good", Title: "Good", UpdatedAt: 1, Messages: []models.ChatMessage{},
	}))
	require.NoError(t, p.SaveUserBackground(ctx, "I like Go"))
	require.NoError(t, vault.Write(ctx, DefaultChatFolder+"/broken.json", "{not json"))
	require.NoError(t, vault.Write(ctx, DefaultChatFolder+"/partial.json", `{"chatId":"p","title":"P"}`))
	require.NoError(t, vault.Write(ctx, DefaultChatFolder+"/notes.txt", "ignored"))

	list, err := p.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "good", list[0].ConversationID)
}

func TestLocalProviderListMissingFolder(t *testing.T) {
	p, _ := newLocalProvider(t, "nowhere")
	list, err := p.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLocalProviderLoad(t *testing.T) {
	ctx := context.Background()
	p, vault := newLocalProvider(t, "")

	_, err := p.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, vault.Mkdir(ctx, DefaultChatFolder))
	require.NoError(t, vault.Write(ctx, DefaultChatFolder+"/old.json",
		`{"chatId":"old","title":"Old","updatedAt":42,"messages":[{"role":"user","content":"x"}]}`))

	rec, err := p.Load(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, int64(42), rec.UpdatedAt)
	assert.NotNil(t, rec.DebugTraces)
	assert.Empty(t, rec.DebugTraces)
}

func TestLocalProviderUserBackground(t *testing.T) {
	ctx := context.Background()
	p, vault := newLocalProvider(t, "")

	text, err := p.LoadUserBackground(ctx)
	require.NoError(t, err)
	assert.Empty(t, text)

	require.NoError(t, p.SaveUserBackground(ctx, "Backend developer"))
	text, err = p.LoadUserBackground(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Backend developer", text)

	require.NoError(t, vault.Write(ctx, DefaultChatFolder+"/"+UserBackgroundFileName, `{"informations": 3}`))
	text, err = p.LoadUserBackground(ctx)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestDecodeRecordValidation(t *testing.T) {
	tests := []struct {
		name string
		data string
		ok   bool
	}{
		{"complete", `{"chatId":"a","title":"t","updatedAt":1,"messages":[],"debugTraces":[]}`, true},
		{"no traces", `{"chatId":"a","title":"t","updatedAt":1,"messages":[]}`, true},
		{"null traces", `{"chatId":"a","title":"t","updatedAt":1,"messages":[],"debugTraces":null}`, true},
		{"missing id", `{"title":"t","updatedAt":1,"messages":[]}`, false},
		{"numeric title", `{"chatId":"a","title":1,"updatedAt":1,"messages":[]}`, false},
		{"string updatedAt", `{"chatId":"a","title":"t","updatedAt":"1","messages":[]}`, false},
		{"null messages", `{"chatId":"a","title":"t","updatedAt":1,"messages":null}`, false},
		{"not an object", `[1,2]`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeRecord([]byte(tt.data))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidRecord)
			}
		})
	}
}
