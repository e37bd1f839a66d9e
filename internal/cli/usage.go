package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/vaultwiz/internal/debugtrace"
	"github.com/raphaelgruber/vaultwiz/internal/models"
)

var (
	usageConversation string
	usageDetailed     bool
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show token usage",
	Long: `Show token usage summed over stored conversations.

Examples:
  vaultwiz usage
  vaultwiz usage --conversation conv_m3k2_a8f0c1d2
  vaultwiz usage --detailed`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().StringVarP(&usageConversation, "conversation", "c", "", "only this conversation")
	usageCmd.Flags().BoolVar(&usageDetailed, "detailed", false, "show a breakdown by model")
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var records []models.PersistedConversation
	if usageConversation != "" {
		records = []models.PersistedConversation{*loadConversation(ctx, usageConversation)}
	} else {
		var err error
		records, err = application.Controller.History(ctx, 1<<30)
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}
	}

	var total models.TokenUsage
	turns := 0
	byModel := make(map[string]models.TokenUsage)
	var order []string
	for _, rec := range records {
		total = total.Add(debugtrace.Aggregate(rec.DebugTraces))
		turns += len(rec.DebugTraces)
		for _, tr := range rec.DebugTraces {
			if tr.TokenUsage == nil {
				continue
			}
			key := tr.ResponseMetadata.Provider + "/" + tr.ResponseMetadata.ModelName
			if _, ok := byModel[key]; !ok {
				order = append(order, key)
			}
			byModel[key] = byModel[key].Add(*tr.TokenUsage)
		}
	}

	fmt.Printf("Token Usage (%d conversations, %d turns)\n", len(records), turns)
	fmt.Printf("═══════════════════════════════════════\n\n")
	printUsage(total)

	if usageDetailed && len(order) > 0 {
		fmt.Printf("\nBy Model:\n")
		for _, key := range order {
			u := byModel[key]
			pct := 0.0
			if total.Total() > 0 {
				pct = float64(u.Total()) / float64(total.Total()) * 100
			}
			fmt.Printf("  %-35s %10d (%5.1f%%)\n", key, u.Total(), pct)
		}
	}
	return nil
}

func printUsage(u models.TokenUsage) {
	fmt.Printf("Input tokens:  %d\n", u.InputTokens)
	fmt.Printf("Cached input:  %d\n", u.CachedInputTokens)
	fmt.Printf("Output tokens: %d\n", u.OutputTokens)
	fmt.Printf("Total tokens:  %d\n", u.Total())
}
