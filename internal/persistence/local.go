package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/raphaelgruber/vaultwiz/internal/models"
)

// DefaultChatFolder is the vault folder used when none is configured.
const DefaultChatFolder = ".vaultwiz/chats"

// UserBackgroundFileName is the reserved file holding the user background.
// It lives next to the conversation files and is never listed as one.
const UserBackgroundFileName = "user-background-informations.json"

// FileAdapter is the vault file API the local provider writes through.
// Paths are vault-relative with forward slashes.
type FileAdapter interface {
	Exists(ctx context.Context, path string) (bool, error)
	Mkdir(ctx context.Context, path string) error
	Read(ctx context.Context, path string) (string, error)
	Write(ctx context.Context, path, text string) error
	List(ctx context.Context, path string) (files, folders []string, err error)
	Remove(ctx context.Context, path string) error
}

var unsafeFileChars = regexp.MustCompile(`[^\w-]`)

// FileNameForID returns the file name a conversation id is stored under.
func FileNameForID(id string) string {
	return unsafeFileChars.ReplaceAllString(id, "_") + ".json"
}

type userBackgroundFile struct {
	Informations *string `json:"informations"`
	UpdatedAt    int64   `json:"updatedAt"`
}

// LocalProvider stores one JSON document per conversation in a vault folder.
type LocalProvider struct {
	files  FileAdapter
	folder string
	logger *slog.Logger
}

// NewLocalProvider creates a provider writing into folder, or
// DefaultChatFolder when folder is blank.
func NewLocalProvider(files FileAdapter, folder string, logger *slog.Logger) *LocalProvider {
	if logger == nil {
		logger = slog.Default()
	}
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" {
		folder = DefaultChatFolder
	}
	return &LocalProvider{files: files, folder: folder, logger: logger}
}

func (p *LocalProvider) Name() string { return string(KindLocal) }

// Folder returns the vault folder holding the conversation files.
func (p *LocalProvider) Folder() string { return p.folder }

func (p *LocalProvider) Load(ctx context.Context, id string) (models.PersistedConversation, error) {
	filePath := p.conversationPath(id)
	ok, err := p.files.Exists(ctx, filePath)
	if err != nil {
		return models.PersistedConversation{}, fmt.Errorf("stat %s: %w", filePath, err)
	}
	if !ok {
		return models.PersistedConversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p.readConversation(ctx, filePath)
}

func (p *LocalProvider) Save(ctx context.Context, rec models.PersistedConversation) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := p.ensureFolder(ctx); err != nil {
		return err
	}
	filePath := p.conversationPath(rec.ConversationID)
	if err := p.files.Write(ctx, filePath, string(data)); err != nil {
		return fmt.Errorf("write %s: %w", filePath, err)
	}
	return nil
}

// List reads every conversation file in the folder. Unreadable or invalid
// files are skipped.
func (p *LocalProvider) List(ctx context.Context) ([]models.PersistedConversation, error) {
	ok, err := p.files.Exists(ctx, p.folder)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", p.folder, err)
	}
	if !ok {
		return []models.PersistedConversation{}, nil
	}

	files, _, err := p.files.List(ctx, p.folder)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p.folder, err)
	}

	out := make([]models.PersistedConversation, 0, len(files))
	for _, f := range files {
		if !strings.HasSuffix(f, ".json") || path.Base(f) == UserBackgroundFileName {
			continue
		}
		rec, err := p.readConversation(ctx, f)
		if err != nil {
			p.logger.Warn("skipping unreadable conversation file", "path", f, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (p *LocalProvider) Delete(ctx context.Context, id string) error {
	filePath := p.conversationPath(id)
	ok, err := p.files.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", filePath, err)
	}
	if !ok {
		return nil
	}
	if err := p.files.Remove(ctx, filePath); err != nil {
		return fmt.Errorf("remove %s: %w", filePath, err)
	}
	return nil
}

// LoadUserBackground returns "" when the file is missing or malformed.
func (p *LocalProvider) LoadUserBackground(ctx context.Context) (string, error) {
	filePath := p.userBackgroundPath()
	ok, err := p.files.Exists(ctx, filePath)
	if err != nil || !ok {
		return "", err
	}
	raw, err := p.files.Read(ctx, filePath)
	if err != nil {
		p.logger.Warn("failed to read user background", "path", filePath, "error", err)
		return "", nil
	}
	var f userBackgroundFile
	if err := json.Unmarshal([]byte(raw), &f); err != nil || f.Informations == nil {
		return "", nil
	}
	return *f.Informations, nil
}

func (p *LocalProvider) SaveUserBackground(ctx context.Context, text string) error {
	if err := p.ensureFolder(ctx); err != nil {
		return err
	}
	data, err := json.MarshalIndent(userBackgroundFile{
		Informations: &text,
		UpdatedAt:    models.NowMillis(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user background: %w", err)
	}
	if err := p.files.Write(ctx, p.userBackgroundPath(), string(data)); err != nil {
		return fmt.Errorf("write user background: %w", err)
	}
	return nil
}

func (p *LocalProvider) Close() error { return nil }

func (p *LocalProvider) ensureFolder(ctx context.Context) error {
	ok, err := p.files.Exists(ctx, p.folder)
	if err != nil {
		return fmt.Errorf("stat %s: %w", p.folder, err)
	}
	if ok {
		return nil
	}
	if err := p.files.Mkdir(ctx, p.folder); err != nil {
		return fmt.Errorf("create %s: %w", p.folder, err)
	}
	return nil
}

func (p *LocalProvider) readConversation(ctx context.Context, filePath string) (models.PersistedConversation, error) {
	raw, err := p.files.Read(ctx, filePath)
	if err != nil {
		return models.PersistedConversation{}, fmt.Errorf("read %s: %w", filePath, err)
	}
	rec, err := decodeRecord([]byte(raw))
	if err != nil {
		return models.PersistedConversation{}, fmt.Errorf("decode %s: %w", filePath, err)
	}
	return rec, nil
}

func (p *LocalProvider) conversationPath(id string) string {
	return p.folder + "/" + FileNameForID(id)
}

func (p *LocalProvider) userBackgroundPath() string {
	return p.folder + "/" + UserBackgroundFileName
}
