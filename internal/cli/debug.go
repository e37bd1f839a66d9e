package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/vaultwiz/internal/llm"
	"github.com/raphaelgruber/vaultwiz/internal/models"
)

var debugFull bool

var debugCmd = &cobra.Command{
	Use:   "debug <id>",
	Short: "Print the debug traces of a conversation",
	Long: `Print one block per turn: the prompt, the context that was sent, the
reply, the model and the token usage reported by the provider next to a
local estimate of the prompt size.

Examples:
  vaultwiz debug conv_m3k2_a8f0c1d2
  vaultwiz debug conv_m3k2_a8f0c1d2 --full`,
	Args: cobra.ExactArgs(1),
	RunE: runDebug,
}

func init() {
	debugCmd.Flags().BoolVar(&debugFull, "full", false, "print context and reply without truncation")
}

func runDebug(cmd *cobra.Command, args []string) error {
	rec := loadConversation(context.Background(), args[0])
	if len(rec.DebugTraces) == 0 {
		fmt.Println("No turns recorded.")
		return nil
	}
	for i, tr := range rec.DebugTraces {
		writeTrace(cmd.OutOrStdout(), application.Tokens, i+1, tr, debugFull)
	}
	return nil
}

// writeTrace prints one debug trace.
func writeTrace(w io.Writer, tokens *llm.TokenEstimator, n int, tr models.DebugTurnTrace, full bool) {
	meta := tr.ResponseMetadata
	fmt.Fprintf(w, "── Turn %d  %s ──\n", n, formatMillis(tr.Timestamp))
	if meta.Provider != "" {
		fmt.Fprintf(w, "Model:    %s / %s (%s)\n", meta.Provider, meta.ModelName, meta.ConfiguredModelID)
	} else {
		fmt.Fprintf(w, "Model:    none selected\n")
	}
	if meta.HadError {
		fmt.Fprintf(w, "Error:    %s\n", meta.ErrorMessage)
	}
	if tr.TokenUsage != nil {
		fmt.Fprintf(w, "Usage:    %d in (%d cached), %d out\n",
			tr.TokenUsage.InputTokens, tr.TokenUsage.CachedInputTokens, tr.TokenUsage.OutputTokens)
	} else {
		fmt.Fprintf(w, "Usage:    not reported\n")
	}
	fmt.Fprintf(w, "Estimate: %d prompt tokens, %d reply tokens\n",
		tokens.Count(tr.Request.Prompt+tr.Request.Context), tokens.Count(tr.AssistantResponse))

	fmt.Fprintf(w, "Prompt:   %s\n", tr.UserPrompt)
	if tr.Request.SelectedContext != nil {
		fmt.Fprintf(w, "Selected: %s\n", clip(*tr.Request.SelectedContext, full))
	}
	if tr.Context != "" {
		fmt.Fprintf(w, "Context:\n%s\n", indent(clip(tr.Context, full)))
	}
	fmt.Fprintf(w, "Reply:\n%s\n\n", indent(clip(tr.AssistantResponse, full)))
}

const clipRunes = 400

func clip(s string, full bool) string {
	if full {
		return s
	}
	r := []rune(s)
	if len(r) <= clipRunes {
		return s
	}
	return string(r[:clipRunes]) + fmt.Sprintf(" … (%d more characters)", len(r)-clipRunes)
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
