package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/vaultwiz/internal/chat"
)

var (
	linkLabel  string
	linkInsert string
)

var linkCmd = &cobra.Command{
	Use:   "link <id>",
	Short: "Print or insert a markdown link to a conversation",
	Long: `Print a markdown link that reopens a conversation.

With --insert the link is appended to the given note instead.

Examples:
  vaultwiz link conv_m3k2_a8f0c1d2
  vaultwiz link conv_m3k2_a8f0c1d2 --label "auth design chat"
  vaultwiz link conv_m3k2_a8f0c1d2 --insert projects/auth.md`,
	Args: cobra.ExactArgs(1),
	RunE: runLink,
}

func init() {
	linkCmd.Flags().StringVarP(&linkLabel, "label", "l", "", "link label (default "+chat.DefaultLinkLabel+")")
	linkCmd.Flags().StringVar(&linkInsert, "insert", "", "append the link to this note")
}

func runLink(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id := args[0]

	markdown := chat.EmbedMarkdown(id, linkLabel)
	if markdown == "" {
		return fmt.Errorf("empty conversation id")
	}
	if linkInsert == "" {
		fmt.Println(markdown)
		return nil
	}

	loadConversation(ctx, id)
	if err := application.OpenNote(linkInsert); err != nil {
		return err
	}
	if !application.Controller.InsertIntoNote(ctx, markdown) {
		return fmt.Errorf("could not insert link into %s", linkInsert)
	}
	fmt.Printf("Linked %s from %s\n", id, linkInsert)
	return nil
}
