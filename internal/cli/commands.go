package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/vaultwiz/internal/app"
	"github.com/raphaelgruber/vaultwiz/internal/models"
)

// chatHelp lists the commands understood inside a chat session.
const chatHelp = `/c               send the active note as context without asking
/open <note>     make <note> the active note
/lines <a:b>     select lines of the active note as context
/unselect        drop the selected lines
/link            insert a link to this conversation into the active note
/insert          insert the last reply into the active note
/new             start a new conversation
/resume <id>     reopen a stored conversation
/help            show this help
/quit            leave`

// commandResult is the outcome of a chat command.
type commandResult struct {
	handled bool
	reply   string
	quit    bool
}

// runChatCommand executes a local chat command. Input that is not one of
// them (including /c) is left for the controller.
func runChatCommand(ctx context.Context, a *app.App, line string) commandResult {
	fields := strings.Fields(line)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return commandResult{}
	}
	arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
	ctrl := a.Controller

	switch fields[0] {
	case "/quit", "/exit":
		return commandResult{handled: true, quit: true}

	case "/help":
		return commandResult{handled: true, reply: chatHelp}

	case "/open":
		if arg == "" {
			return replyf("usage: /open <note>")
		}
		if err := a.OpenNote(arg); err != nil {
			return replyf("cannot open %s: %v", arg, err)
		}
		return replyf("active note: %s", ctrl.ActiveNotePath())

	case "/lines":
		start, end, err := parseLineRange(arg)
		if err != nil {
			return replyf("%v", err)
		}
		if err := a.SelectLines(start, end); err != nil {
			return replyf("cannot select lines: %v", err)
		}
		sel := ctrl.State().Selection
		if sel == nil {
			return replyf("nothing selected")
		}
		return replyf("selected %s:%d-%d", sel.SourcePath, sel.StartLine, sel.EndLine)

	case "/unselect":
		ctrl.ClearSelection()
		return replyf("selection cleared")

	case "/link":
		if !ctrl.InsertConversationLink(ctx) {
			return replyf("open a note first")
		}
		return replyf("link inserted into %s", ctrl.ActiveNotePath())

	case "/insert":
		reply := lastAssistantReply(ctrl.Messages())
		if reply == "" {
			return replyf("no reply to insert")
		}
		if !ctrl.InsertIntoNote(ctx, reply) {
			return replyf("open a note first")
		}
		return replyf("reply inserted into %s", ctrl.ActiveNotePath())

	case "/new":
		ctrl.ResetChatAndStartNewConversation()
		return replyf("new conversation %s", ctrl.ConversationID())

	case "/resume":
		if arg == "" {
			return replyf("usage: /resume <id>")
		}
		if !ctrl.OpenConversationByID(ctx, arg) {
			return replyf("Conversation not found")
		}
		return replyf("resumed %s", ctrl.ConversationID())
	}
	return commandResult{}
}

func replyf(format string, args ...any) commandResult {
	return commandResult{handled: true, reply: fmt.Sprintf(format, args...)}
}

func lastAssistantReply(msgs []models.ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleAssistant {
			return msgs[i].Content
		}
	}
	return ""
}
