package notes

import (
	"context"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var h1Regex = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// SplitFrontmatter separates a leading YAML frontmatter block from the note
// body. Malformed YAML yields an empty map; the block is still stripped.
func SplitFrontmatter(content string) (map[string]any, string) {
	fm := make(map[string]any)
	if !strings.HasPrefix(content, "---\n") {
		return fm, content
	}
	end := strings.Index(content[4:], "\n---")
	if end < 0 {
		return fm, content
	}
	body := strings.TrimPrefix(content[4+end+4:], "\n")
	if err := yaml.Unmarshal([]byte(content[4:4+end]), &fm); err != nil || fm == nil {
		fm = make(map[string]any)
	}
	return fm, body
}

// NoteTitle returns the display title of a note: frontmatter title or name,
// then the first level-one heading, then the file name without extension.
func NoteTitle(notePath, content string) string {
	fm, body := SplitFrontmatter(content)
	for _, key := range []string{"title", "name"} {
		if s, ok := fm[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	if m := h1Regex.FindStringSubmatch(body); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	base := path.Base(notePath)
	return strings.TrimSuffix(base, path.Ext(base))
}

// ActiveNoteTitle returns the title of the active note, or "" when no note
// is open.
func (v *Vault) ActiveNoteTitle(ctx context.Context) (string, error) {
	p := v.ActiveNotePath()
	if p == "" {
		return "", nil
	}
	content, err := v.Read(ctx, p)
	if err != nil {
		return "", err
	}
	return NoteTitle(p, content), nil
}
