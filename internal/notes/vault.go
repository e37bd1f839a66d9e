package notes

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/raphaelgruber/vaultwiz/internal/fsutil"
	"github.com/raphaelgruber/vaultwiz/internal/models"
)

var (
	// ErrOutsideVault is returned for paths that escape the vault root.
	ErrOutsideVault = errors.New("path is outside the vault")

	// ErrNoActiveNote is returned when an operation needs an open note.
	ErrNoActiveNote = errors.New("no active note")
)

// Vault is a directory of notes on disk. It plays the role of the editor
// (active note, line selection, cursor) and of the file adapter used by
// the local persistence provider. All paths are relative to the root and
// use forward slashes.
type Vault struct {
	root string

	mu       sync.RWMutex
	active   string
	selStart int
	selEnd   int
	focused  bool
}

// NewVault opens the vault rooted at dir.
func NewVault(dir string) (*Vault, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat vault root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault root %s is not a directory", abs)
	}
	return &Vault{root: abs}, nil
}

// Root returns the absolute vault root.
func (v *Vault) Root() string {
	return v.root
}

// Open makes path the active note and drops any line selection.
func (v *Vault) Open(path string) (string, error) {
	rel, abs, err := v.resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("open note: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("open note: %s is a directory", rel)
	}

	v.mu.Lock()
	v.active = rel
	v.selStart, v.selEnd = 0, 0
	v.mu.Unlock()
	return rel, nil
}

// Select marks lines start..end (1-based, inclusive) of the active note as
// selected and gives the editor focus.
func (v *Vault) Select(start, end int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active == "" {
		return ErrNoActiveNote
	}
	if start < 1 {
		start = 1
	}
	if end < start {
		end = start
	}
	v.selStart, v.selEnd = start, end
	v.focused = true
	return nil
}

// ClearSelection removes the line selection.
func (v *Vault) ClearSelection() {
	v.mu.Lock()
	v.selStart, v.selEnd = 0, 0
	v.mu.Unlock()
}

// SetEditorFocused records whether the user is in the editor or the chat.
func (v *Vault) SetEditorFocused(focused bool) {
	v.mu.Lock()
	v.focused = focused
	v.mu.Unlock()
}

func (v *Vault) ActiveNotePath() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.active
}

func (v *Vault) ActiveNoteContent(ctx context.Context) (string, error) {
	path := v.ActiveNotePath()
	if path == "" {
		return "", ErrNoActiveNote
	}
	return v.Read(ctx, path)
}

func (v *Vault) EditorFocused() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.focused
}

// EditorSelection reads the selected lines from the active note.
func (v *Vault) EditorSelection() (models.Selection, bool) {
	v.mu.RLock()
	path, start, end := v.active, v.selStart, v.selEnd
	v.mu.RUnlock()

	if path == "" || start == 0 {
		return models.Selection{}, false
	}
	content, err := v.Read(context.Background(), path)
	if err != nil {
		return models.Selection{}, false
	}

	lines := strings.Split(content, "\n")
	if start > len(lines) {
		return models.Selection{}, false
	}
	if end > len(lines) {
		end = len(lines)
	}
	return models.Selection{
		Text:       strings.Join(lines[start-1:end], "\n"),
		SourcePath: path,
		StartLine:  start,
		EndLine:    end,
		CapturedAt: models.NowMillis(),
	}, true
}

// InsertTextAtCursor inserts text after the selected lines, or at the end
// of the note when nothing is selected.
func (v *Vault) InsertTextAtCursor(ctx context.Context, text string) (bool, error) {
	v.mu.RLock()
	path, end := v.active, v.selEnd
	v.mu.RUnlock()

	if path == "" {
		return false, nil
	}
	content, err := v.Read(ctx, path)
	if err != nil {
		return false, err
	}

	lines := strings.Split(content, "\n")
	if end == 0 || end >= len(lines) {
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += text
	} else {
		head := strings.Join(lines[:end], "\n")
		tail := strings.Join(lines[end:], "\n")
		content = head + "\n" + text + "\n" + tail
	}

	if err := v.Write(ctx, path, content); err != nil {
		return false, err
	}
	return true, nil
}

// Exists reports whether path exists in the vault.
func (v *Vault) Exists(ctx context.Context, path string) (bool, error) {
	_, abs, err := v.resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Mkdir creates path and any missing parents.
func (v *Vault) Mkdir(ctx context.Context, path string) error {
	_, abs, err := v.resolve(path)
	if err != nil {
		return err
	}
	return os.MkdirAll(abs, 0o755)
}

func (v *Vault) Read(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	_, abs, err := v.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Write replaces the file at path atomically.
func (v *Vault) Write(ctx context.Context, path, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, abs, err := v.resolve(path)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(abs, []byte(text), 0o644)
}

// List returns the vault paths of the direct children of the folder at path.
func (v *Vault) List(ctx context.Context, path string) (files, folders []string, err error) {
	rel, abs, err := v.resolve(path)
	if err != nil {
		return nil, nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, nil, err
	}

	for _, e := range entries {
		child := e.Name()
		if rel != "" {
			child = rel + "/" + child
		}
		if e.IsDir() {
			folders = append(folders, child)
		} else {
			files = append(files, child)
		}
	}
	sort.Strings(files)
	sort.Strings(folders)
	return files, folders, nil
}

// Remove deletes the file at path.
func (v *Vault) Remove(ctx context.Context, path string) error {
	_, abs, err := v.resolve(path)
	if err != nil {
		return err
	}
	return os.Remove(abs)
}

// resolve maps a vault path to its normalized relative and absolute forms.
func (v *Vault) resolve(path string) (rel, abs string, err error) {
	p := filepath.FromSlash(strings.TrimSpace(path))
	if filepath.IsAbs(p) {
		abs = filepath.Clean(p)
	} else {
		abs = filepath.Join(v.root, p)
	}

	r, err := filepath.Rel(v.root, abs)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %s", ErrOutsideVault, path)
	}
	if r == "." {
		r = ""
	}
	return filepath.ToSlash(r), abs, nil
}
