package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/vaultwiz/internal/debugtrace"
	"github.com/raphaelgruber/vaultwiz/internal/models"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List, show or delete stored conversations",
	Long: `List stored conversations, newest first.

Subcommands:
  show <id>    print a conversation
  delete <id>  delete a conversation

Examples:
  vaultwiz history
  vaultwiz history -n 5
  vaultwiz history show conv_m3k2_a8f0c1d2
  vaultwiz history delete conv_m3k2_a8f0c1d2`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a stored conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "max conversations")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	records, err := application.Controller.History(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No conversations found.")
		return nil
	}

	fmt.Printf("Conversations (%d):\n\n", len(records))
	for _, rec := range records {
		fmt.Printf("- %s  %s  %s\n", rec.ConversationID, formatMillis(rec.UpdatedAt), rec.Title)
		if verbose {
			usage := debugtrace.Aggregate(rec.DebugTraces)
			fmt.Printf("  %d messages, %d turns, %d tokens\n", countVisible(rec.Messages), len(rec.DebugTraces), usage.Total())
		}
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	rec := loadConversation(context.Background(), args[0])
	writeTranscript(cmd.OutOrStdout(), rec, verbose)
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id := args[0]
	loadConversation(ctx, id)
	if err := application.Controller.DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	fmt.Printf("Deleted conversation %s\n", id)
	return nil
}

// loadConversation returns the stored conversation or exits when it does
// not exist.
func loadConversation(ctx context.Context, id string) *models.PersistedConversation {
	rec := application.Controller.Conversation(ctx, id)
	if rec == nil {
		exitWithError("conversation not found: %s", id)
	}
	return rec
}

// writeTranscript renders the visible messages of a conversation as
// markdown. Developer messages (note context) are included when
// withContext is set.
func writeTranscript(w io.Writer, rec *models.PersistedConversation, withContext bool) {
	fmt.Fprintf(w, "# %s\n\n", rec.Title)
	fmt.Fprintf(w, "_%s, updated %s_\n", rec.ConversationID, formatMillis(rec.UpdatedAt))

	for _, m := range rec.Messages {
		switch {
		case m.Role == models.RoleUser:
			fmt.Fprintf(w, "\n## You\n\n%s\n", m.Content)
		case m.Role == models.RoleAssistant:
			fmt.Fprintf(w, "\n## Assistant\n\n%s\n", m.Content)
		case m.Role == models.RoleDeveloper && withContext && m.Content != "":
			fmt.Fprintf(w, "\n## Context\n\n```\n%s\n```\n", m.Content)
		}
	}
}

func countVisible(msgs []models.ChatMessage) int {
	n := 0
	for _, m := range msgs {
		if m.Visible() {
			n++
		}
	}
	return n
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}
