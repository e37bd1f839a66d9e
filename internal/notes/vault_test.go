package notes_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/vaultwiz/internal/notes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVault(t *testing.T, files map[string]string) *notes.Vault {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	v, err := notes.NewVault(dir)
	require.NoError(t, err)
	return v
}

func TestVaultOpenAndRead(t *testing.T) {
	v := newVault(t, map[string]string{"daily/today.md": "line1\nline2\nline3"})
	ctx := context.Background()

	rel, err := v.Open("daily/today.md")
	require.NoError(t, err)
	assert.Equal(t, "daily/today.md", rel)
	assert.Equal(t, "daily/today.md", v.ActiveNotePath())

	content, err := v.ActiveNoteContent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\nline3", content)

	_, err = v.Open("missing.md")
	assert.Error(t, err)
}

func TestVaultRejectsEscapingPaths(t *testing.T) {
	v := newVault(t, nil)

	_, err := v.Open("../etc/passwd")
	assert.ErrorIs(t, err, notes.ErrOutsideVault)

	_, err = v.Read(context.Background(), "../../x")
	assert.ErrorIs(t, err, notes.ErrOutsideVault)
}

func TestVaultSelection(t *testing.T) {
	v := newVault(t, map[string]string{"a.md": "one\ntwo\nthree\nfour"})

	_, ok := v.EditorSelection()
	assert.False(t, ok)

	assert.ErrorIs(t, v.Select(1, 2), notes.ErrNoActiveNote)

	_, err := v.Open("a.md")
	require.NoError(t, err)
	require.NoError(t, v.Select(2, 9))

	sel, ok := v.EditorSelection()
	require.True(t, ok)
	assert.Equal(t, "two\nthree\nfour", sel.Text)
	assert.Equal(t, "a.md", sel.SourcePath)
	assert.Equal(t, 2, sel.StartLine)
	assert.Equal(t, 4, sel.EndLine)
	assert.True(t, v.EditorFocused())

	v.ClearSelection()
	_, ok = v.EditorSelection()
	assert.False(t, ok)
}

func TestVaultInsertTextAtCursor(t *testing.T) {
	ctx := context.Background()

	t.Run("no active note", func(t *testing.T) {
		v := newVault(t, nil)
		ok, err := v.InsertTextAtCursor(ctx, "x")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("appends at end", func(t *testing.T) {
		v := newVault(t, map[string]string{"a.md": "first"})
		_, _ = v.Open("a.md")

		ok, err := v.InsertTextAtCursor(ctx, "[wizard_convo](x)")
		require.NoError(t, err)
		assert.True(t, ok)

		content, _ := v.Read(ctx, "a.md")
		assert.Equal(t, "first\n[wizard_convo](x)", content)
	})

	t.Run("after selection", func(t *testing.T) {
		v := newVault(t, map[string]string{"a.md": "a\nb\nc"})
		_, _ = v.Open("a.md")
		require.NoError(t, v.Select(1, 1))

		_, err := v.InsertTextAtCursor(ctx, "inserted")
		require.NoError(t, err)

		content, _ := v.Read(ctx, "a.md")
		assert.Equal(t, "a\ninserted\nb\nc", content)
	})
}

func TestVaultFileAdapter(t *testing.T) {
	v := newVault(t, nil)
	ctx := context.Background()

	exists, err := v.Exists(ctx, ".vaultwiz/chats")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, v.Mkdir(ctx, ".vaultwiz/chats"))
	require.NoError(t, v.Write(ctx, ".vaultwiz/chats/b.json", "{}"))
	require.NoError(t, v.Write(ctx, ".vaultwiz/chats/a.json", "{}"))
	require.NoError(t, v.Mkdir(ctx, ".vaultwiz/chats/sub"))

	files, folders, err := v.List(ctx, ".vaultwiz/chats")
	require.NoError(t, err)
	assert.Equal(t, []string{".vaultwiz/chats/a.json", ".vaultwiz/chats/b.json"}, files)
	assert.Equal(t, []string{".vaultwiz/chats/sub"}, folders)

	require.NoError(t, v.Remove(ctx, ".vaultwiz/chats/a.json"))
	exists, err = v.Exists(ctx, ".vaultwiz/chats/a.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWatcherReportsModifiedNotes(t *testing.T) {
	v := newVault(t, map[string]string{"notes/a.md": "a", "notes/b.txt": "b"})

	var mu sync.Mutex
	var seen []string
	w, err := notes.NewWatcher(v.Root(), 20*time.Millisecond, func(path string) {
		mu.Lock()
		seen = append(seen, path)
		mu.Unlock()
	}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(filepath.Join(v.Root(), "notes", "b.txt"), []byte("bb"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(v.Root(), "notes", "a.md"), []byte("aa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(v.Root(), "notes", "a.md"), []byte("aaa"), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 3*time.Second, 20*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	for _, path := range seen {
		assert.Equal(t, "notes/a.md", path)
	}
}
