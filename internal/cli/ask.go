package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/vaultwiz/internal/app"
	"github.com/raphaelgruber/vaultwiz/internal/controller"
	"github.com/raphaelgruber/vaultwiz/internal/models"
)

var (
	askNote         string
	askLines        string
	askConversation string
)

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Run one chat turn and stream the reply",
	Long: `Send one message to the selected model and stream the reply to stdout.

With --note the note becomes the active note and its content is sent as
context. --lines additionally sends a range of lines as selected context.
--conversation continues a stored conversation.

Examples:
  vaultwiz ask "Summarize this note" --note projects/auth.md
  vaultwiz ask "Explain these lines" --note main.md --lines 10:24
  vaultwiz ask "And what about tests?" --conversation conv_m3k2_a8f0c1d2
  vaultwiz ask /c --note todo.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askNote, "note", "", "vault-relative path of the active note")
	askCmd.Flags().StringVar(&askLines, "lines", "", "selected line range of the note, e.g. 3:12")
	askCmd.Flags().StringVarP(&askConversation, "conversation", "c", "", "continue this conversation")
}

func runAsk(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args, " ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ctrl := application.Controller
	if askConversation != "" && !ctrl.OpenConversationByID(ctx, askConversation) {
		return fmt.Errorf("conversation not found: %s", askConversation)
	}
	if err := openNoteWithLines(application, askNote, askLines); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	before := len(ctrl.Messages())
	printed := 0
	unsub := ctrl.Subscribe(func() {
		msgs := ctrl.Messages()
		if len(msgs) <= before {
			return
		}
		last := msgs[len(msgs)-1]
		if last.Role != models.RoleAssistant || len(last.Content) <= printed {
			return
		}
		fmt.Fprint(out, last.Content[printed:])
		printed = len(last.Content)
	})
	ctrl.OnUserMessage(ctx, prompt)
	unsub()

	msgs := ctrl.Messages()
	last := msgs[len(msgs)-1]
	switch {
	case last.Role == models.RoleAssistant && len(last.Content) > printed:
		fmt.Fprint(out, last.Content[printed:])
		fmt.Fprintln(out)
	case last.Role == models.RoleAssistant:
		fmt.Fprintln(out)
	case last.Role == models.RoleDeveloper && last.Content == "":
		fmt.Fprintln(out, "No note context to add.")
	case last.Role == models.RoleDeveloper:
		fmt.Fprintln(out, "Note context added to the conversation.")
	}

	if err := ctrl.Flush(ctx); err != nil {
		return err
	}
	if err := ctrl.LastPersistenceError(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: conversation not saved: %v\n", err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "conversation: %s\n", ctrl.ConversationID())
	}
	if strings.HasSuffix(last.Content, "\n"+controller.CancelledMessage) {
		return context.Canceled
	}
	return nil
}

// openNoteWithLines opens note and captures lines ("a:b" or "a") as the
// selection. Empty arguments are skipped.
func openNoteWithLines(a *app.App, note, lines string) error {
	if note == "" {
		if lines != "" {
			return fmt.Errorf("--lines needs --note")
		}
		return nil
	}
	if err := a.OpenNote(note); err != nil {
		return err
	}
	if lines == "" {
		return nil
	}
	start, end, err := parseLineRange(lines)
	if err != nil {
		return err
	}
	return a.SelectLines(start, end)
}

// parseLineRange parses "a:b", "a-b" or "a".
func parseLineRange(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	sep := strings.IndexAny(s, ":-")
	if sep < 0 {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("invalid line range: %q", s)
		}
		return n, n, nil
	}
	start, err1 := strconv.Atoi(strings.TrimSpace(s[:sep]))
	end, err2 := strconv.Atoi(strings.TrimSpace(s[sep+1:]))
	if err1 != nil || err2 != nil || start < 1 || end < start {
		return 0, 0, fmt.Errorf("invalid line range: %q", s)
	}
	return start, end, nil
}
