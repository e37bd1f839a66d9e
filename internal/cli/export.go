package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var exportWithContext bool

var exportCmd = &cobra.Command{
	Use:   "export <id> <path>",
	Short: "Export a conversation as a markdown transcript",
	Long: `Write a stored conversation to a markdown file.

A relative path inside the vault makes the transcript a regular note.

Examples:
  vaultwiz export conv_m3k2_a8f0c1d2 ./chat.md
  vaultwiz export conv_m3k2_a8f0c1d2 notes/chats/auth.md --with-context`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().BoolVar(&exportWithContext, "with-context", false, "include the note context sent with each turn")
}

func runExport(cmd *cobra.Command, args []string) error {
	id, exportPath := args[0], args[1]
	ctx := context.Background()

	rec := loadConversation(ctx, id)

	var buf bytes.Buffer
	writeTranscript(&buf, rec, exportWithContext)

	if dir := filepath.Dir(exportPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}
	if err := os.WriteFile(exportPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}

	fmt.Printf("Exported %d messages to %s\n", countVisible(rec.Messages), exportPath)
	return nil
}
