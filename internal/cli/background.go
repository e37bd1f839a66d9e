package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/vaultwiz/internal/chat"
)

var backgroundClear bool

var backgroundCmd = &cobra.Command{
	Use:   "background [text]",
	Short: "Show or set background information about you",
	Long: fmt.Sprintf(`Show or set free-text background information that is sent at the
start of every new conversation (at most %d characters).

Without arguments the stored text is printed. "-" reads the text from stdin.

Examples:
  vaultwiz background
  vaultwiz background "I am a backend developer working mostly in Go."
  cat about-me.md | vaultwiz background -
  vaultwiz background --clear`, chat.UserBackgroundMaxLength),
	RunE: runBackground,
}

func init() {
	backgroundCmd.Flags().BoolVar(&backgroundClear, "clear", false, "remove the stored background")
}

func runBackground(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ctrl := application.Controller

	var text string
	switch {
	case backgroundClear:
		text = ""
	case len(args) == 1 && args[0] == "-":
		if term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "Reading background from stdin, end with Ctrl+D")
		}
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(b)
	case len(args) > 0:
		text = strings.Join(args, " ")
	default:
		stored, err := ctrl.UserBackground(ctx)
		if err != nil {
			return fmt.Errorf("load background: %w", err)
		}
		if stored == "" {
			fmt.Println("No background information stored.")
			return nil
		}
		fmt.Println(stored)
		return nil
	}

	saved, err := ctrl.SaveUserBackground(ctx, text)
	if err != nil {
		return fmt.Errorf("save background: %w", err)
	}
	if saved == "" {
		fmt.Println("Background information cleared.")
		return nil
	}
	fmt.Printf("Saved %d characters of background information.\n", len([]rune(saved)))
	return nil
}
