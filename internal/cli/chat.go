package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/vaultwiz/internal/app"
	"github.com/raphaelgruber/vaultwiz/internal/controller"
	"github.com/raphaelgruber/vaultwiz/internal/models"
)

var (
	chatNote         string
	chatConversation string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	Long: `Start an interactive chat about the active note.

Keys:
  enter    send            ctrl+j   new line
  ctrl+n   new chat        ctrl+d   debug panel
  ctrl+s   settings        esc      back to chat
  ctrl+c   quit

Type /help in the input for the note commands. When stdin is not a
terminal a plain line-based session is started instead.

Examples:
  vaultwiz chat
  vaultwiz chat --note projects/auth.md
  vaultwiz chat --conversation conv_m3k2_a8f0c1d2`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatNote, "note", "", "vault-relative path of the active note")
	chatCmd.Flags().StringVarP(&chatConversation, "conversation", "c", "", "reopen this conversation")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := application.Controller
	if chatConversation != "" && !ctrl.OpenConversationByID(ctx, chatConversation) {
		return fmt.Errorf("conversation not found: %s", chatConversation)
	}
	if chatNote != "" {
		if err := application.OpenNote(chatNote); err != nil {
			return err
		}
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return runLineChat(ctx, application, os.Stdin, cmd.OutOrStdout())
	}

	changes := make(chan struct{}, 1)
	unsub := ctrl.Subscribe(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	defer unsub()

	p := tea.NewProgram(newChatModel(ctx, application, changes), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	return nil
}

// stateMsg reports a controller state change.
type stateMsg struct{}

// turnDoneMsg is sent when a turn returned.
type turnDoneMsg struct{}

// chatModel is the bubbletea model of the chat view.
type chatModel struct {
	ctx     context.Context
	app     *app.App
	ctrl    *controller.Controller
	changes <-chan struct{}
	theme   Theme

	viewport viewport.Model
	input    textarea.Model
	form     textarea.Model
	spinner  spinner.Model

	width, height int
	cursor        int // settings list position
	notePath      string
	noteTitle     string
	formProvider  models.Provider
	status        string
	statusIsError bool
}

func newChatModel(ctx context.Context, a *app.App, changes <-chan struct{}) chatModel {
	input := textarea.New()
	input.Placeholder = "Ask about the active note, or /help"
	input.ShowLineNumbers = false
	input.Prompt = "> "
	input.SetHeight(3)
	input.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("ctrl+j"))
	input.Focus()

	form := textarea.New()
	form.ShowLineNumbers = false
	form.Prompt = ""
	form.SetHeight(10)

	return chatModel{
		ctx:          ctx,
		app:          a,
		ctrl:         a.Controller,
		changes:      changes,
		theme:        defaultTheme,
		viewport:     viewport.New(),
		input:        input,
		form:         form,
		spinner:      spinner.New(spinner.WithSpinner(spinner.Dot)),
		formProvider: models.ProviderAzure,
	}
}

// Init starts listening for controller changes.
func (m chatModel) Init() tea.Cmd {
	return m.waitForChange()
}

func (m chatModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.changes:
			return stateMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

// Update handles messages and returns the updated model.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refresh()
		return m, nil

	case stateMsg:
		m.refresh()
		return m, m.waitForChange()

	case turnDoneMsg:
		if err := m.ctrl.LastPersistenceError(); err != nil {
			m.setStatus(true, "conversation not saved: %v", err)
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.ctrl.Streaming() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyPressMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	panel := m.ctrl.Panel()

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "ctrl+n":
		m.ctrl.ResetChatAndStartNewConversation()
		m.setStatus(false, "new conversation")
		return m, nil
	case "ctrl+d":
		m.ctrl.OpenDebugPanel()
		m.viewport.GotoTop()
		return m, nil
	case "ctrl+s":
		if panel == models.PanelAddModel {
			return m.saveForm()
		}
		m.ctrl.OpenSettingsPanel()
		return m, nil
	case "esc":
		if panel == models.PanelAddModel {
			m.ctrl.ReturnToSettingsPanel()
			return m, nil
		}
		m.ctrl.OpenChatPanel()
		return m, nil
	}

	switch panel {
	case models.PanelSettings:
		return m.handleSettingsKey(msg)
	case models.PanelAddModel:
		if msg.String() == "ctrl+p" && m.ctrl.EditingModelID() == "" {
			m.formProvider = nextProvider(m.formProvider)
			m.form.SetValue(modelForm(m.formProvider, nil))
			return m, nil
		}
		var cmd tea.Cmd
		m.form, cmd = m.form.Update(msg)
		return m, cmd
	case models.PanelDebug:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "enter":
		return m.submit()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the input as a turn or runs it as a chat command.
func (m chatModel) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.ctrl.Streaming() {
		return m, nil
	}
	m.input.Reset()

	if res := runChatCommand(m.ctx, m.app, text); res.handled {
		if res.quit {
			return m, tea.Quit
		}
		m.setStatus(false, "%s", res.reply)
		m.refresh()
		return m, nil
	}

	m.status = ""
	ctx, ctrl := m.ctx, m.ctrl
	turn := func() tea.Msg {
		ctrl.OnUserMessage(ctx, text)
		return turnDoneMsg{}
	}
	return m, tea.Batch(turn, m.spinner.Tick)
}

func (m chatModel) handleSettingsKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	list := m.ctrl.Models()
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(list)-1 {
			m.cursor++
		}
	case "enter", "space", " ":
		if m.cursor < len(list) {
			m.ctrl.SelectConfiguredModelByID(list[m.cursor].ID)
			m.setStatus(false, "selected %s", list[m.cursor].ModelName)
		}
	case "a":
		m.formProvider = models.ProviderAzure
		m.form.SetValue(modelForm(m.formProvider, nil))
		m.form.Focus()
		m.ctrl.OpenAddModelPanel()
	case "e":
		if m.cursor < len(list) {
			sel := list[m.cursor]
			m.form.SetValue(modelForm(sel.Provider, &sel))
			m.form.Focus()
			m.ctrl.StartEditingModel(sel.ID)
		}
	case "d", "x":
		if m.cursor < len(list) {
			if err := m.ctrl.DeleteConfiguredModel(m.ctx, list[m.cursor].ID); err != nil {
				m.setStatus(true, "%v", err)
			} else if m.cursor > 0 && m.cursor >= len(list)-1 {
				m.cursor--
			}
		}
	}
	return m, nil
}

func (m chatModel) saveForm() (tea.Model, tea.Cmd) {
	in, err := parseModelForm(m.form.Value())
	if err != nil {
		m.setStatus(true, "%v", err)
		return m, nil
	}

	var saved models.ConfiguredModel
	if id := m.ctrl.EditingModelID(); id != "" {
		saved, err = m.ctrl.UpdateConfiguredModel(m.ctx, id, in)
	} else {
		var ok bool
		saved, ok, err = m.ctrl.SaveConfiguredModel(m.ctx, in)
		if err == nil && !ok {
			m.setStatus(true, "model name is required")
			return m, nil
		}
	}
	if err != nil {
		m.setStatus(true, "%v", err)
		return m, nil
	}

	if _, err := saved.ProviderSettings(); err != nil {
		m.setStatus(true, "saved, but %v", err)
	} else {
		m.setStatus(false, "saved %s", saved.ModelName)
	}
	m.form.Blur()
	m.ctrl.ReturnToSettingsPanel()
	return m, nil
}

func (m *chatModel) setStatus(isErr bool, format string, args ...any) {
	m.status = fmt.Sprintf(format, args...)
	m.statusIsError = isErr
}

// layout sizes the components to the window.
func (m *chatModel) layout() {
	inputHeight := m.input.Height() + 1
	bodyHeight := m.height - 1 - inputHeight - 1
	if bodyHeight < 3 {
		bodyHeight = 3
	}
	m.viewport.SetWidth(m.width)
	m.viewport.SetHeight(bodyHeight)
	m.input.SetWidth(m.width)
	m.form.SetWidth(m.width)
	m.form.SetHeight(bodyHeight - 2)
}

// refresh re-renders the scrollable body from the controller state.
func (m *chatModel) refresh() {
	width := m.width
	if width <= 0 {
		width = 80
	}
	if p := m.ctrl.ActiveNotePath(); p != m.notePath {
		m.notePath = p
		m.noteTitle, _ = m.app.Vault.ActiveNoteTitle(m.ctx)
	}
	switch m.ctrl.Panel() {
	case models.PanelChat:
		atBottom := m.viewport.AtBottom()
		m.viewport.SetContent(renderMessages(m.theme, m.ctrl.Messages(), width))
		if atBottom || m.ctrl.Streaming() {
			m.viewport.GotoBottom()
		}
	case models.PanelDebug:
		var b strings.Builder
		traces := m.ctrl.DebugTraces()
		if len(traces) == 0 {
			b.WriteString(m.theme.hintStyle().Render("No turns recorded yet."))
		}
		for i, tr := range traces {
			writeTrace(&b, m.app.Tokens, i+1, tr, false)
		}
		m.viewport.SetContent(lipgloss.NewStyle().Width(width).Render(b.String()))
	}
}

// renderMessages renders the visible transcript.
func renderMessages(theme Theme, msgs []models.ChatMessage, width int) string {
	body := lipgloss.NewStyle().Width(width)
	var parts []string
	for _, msg := range msgs {
		switch msg.Role {
		case models.RoleUser:
			parts = append(parts, theme.userStyle().Render("You")+"\n"+body.Render(msg.Content))
		case models.RoleAssistant:
			content := msg.Content
			if content == "" {
				content = theme.hintStyle().Render("…")
			}
			parts = append(parts, theme.assistantStyle().Render("Assistant")+"\n"+body.Render(content))
		case models.RoleDeveloper:
			if msg.Content != "" {
				parts = append(parts, theme.hintStyle().Render(fmt.Sprintf("(note context sent, %d characters)", len([]rune(msg.Content)))))
			}
		}
	}
	if len(parts) == 0 {
		return theme.hintStyle().Render("Start typing to chat about the active note.")
	}
	return strings.Join(parts, "\n\n")
}

// View renders the chat view.
func (m chatModel) View() tea.View {
	v := tea.NewView(m.renderContent())
	v.AltScreen = true
	return v
}

func (m chatModel) renderContent() string {
	panel := m.ctrl.Panel()

	var body, footer string
	switch panel {
	case models.PanelSettings:
		body = m.renderSettings()
		footer = m.theme.hintStyle().Render("↑/↓ move · enter select · a add · e edit · d delete · esc chat")
	case models.PanelAddModel:
		title := "New model (ctrl+p switches provider)"
		if m.ctrl.EditingModelID() != "" {
			title = "Edit model " + m.ctrl.EditingModelID()
		}
		body = m.theme.headerStyle().Render(title) + "\n\n" + m.form.View()
		footer = m.theme.hintStyle().Render("ctrl+s save · esc cancel")
	case models.PanelDebug:
		body = m.viewport.View()
		footer = m.theme.hintStyle().Render(fmt.Sprintf("%s · esc chat", usageLine(m.ctrl.AggregateTokenUsage())))
	default:
		body = m.viewport.View()
		footer = m.theme.inputStyle().Width(m.width).Render(m.input.View())
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(panel), body, footer, m.renderStatus())
}

func (m chatModel) renderHeader(panel models.Panel) string {
	tabs := []struct {
		panel models.Panel
		label string
	}{
		{models.PanelChat, "chat"},
		{models.PanelDebug, "debug ^d"},
		{models.PanelSettings, "settings ^s"},
	}
	parts := []string{m.theme.headerStyle().Render("vaultwiz")}
	for _, t := range tabs {
		active := t.panel == panel || (t.panel == models.PanelSettings && panel == models.PanelAddModel)
		parts = append(parts, m.theme.tabStyle(active).Render(t.label))
	}

	model := "no model"
	if sel, ok := m.ctrl.SelectedModel(); ok {
		model = string(sel.Provider) + "/" + sel.ModelName
	}
	note := m.notePath
	switch {
	case note == "":
		note = "no note"
	case m.noteTitle != "":
		note = m.noteTitle + " (" + note + ")"
	}
	parts = append(parts, m.theme.hintStyle().Render(model+" · "+note))
	return strings.Join(parts, "  ")
}

func (m chatModel) renderStatus() string {
	var parts []string
	if m.ctrl.Streaming() {
		parts = append(parts, m.spinner.View()+" streaming")
	}
	if sel := m.ctrl.State().Selection; sel != nil {
		parts = append(parts, fmt.Sprintf("selection %s:%d-%d", sel.SourcePath, sel.StartLine, sel.EndLine))
	}
	if m.status != "" {
		if m.statusIsError {
			parts = append(parts, m.theme.errorStyle().Render(m.status))
		} else {
			parts = append(parts, m.status)
		}
	}
	return m.theme.hintStyle().Render(strings.Join(parts, " · "))
}

func (m chatModel) renderSettings() string {
	var b strings.Builder
	b.WriteString(m.theme.headerStyle().Render("Models") + "\n\n")

	list := m.ctrl.Models()
	if len(list) == 0 {
		b.WriteString(m.theme.hintStyle().Render("No models configured. Press a to add one.") + "\n")
	}
	selected, _ := m.ctrl.SelectedModel()
	for i, model := range list {
		marker := "  "
		if model.ID == selected.ID {
			marker = "* "
		}
		line := fmt.Sprintf("%s%-9s %s  %s", marker, model.Provider, model.ModelName, model.ID)
		if i == m.cursor {
			line = m.theme.selectedStyle().Render("› " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}

	cfg := m.ctrl.PersistenceConfig()
	fmt.Fprintf(&b, "\n%s\n", m.theme.headerStyle().Render("Storage"))
	fmt.Fprintf(&b, "  provider: %s\n", cfg.Kind)
	if cfg.Folder != "" {
		fmt.Fprintf(&b, "  folder:   %s\n", cfg.Folder)
	}
	return b.String()
}

func usageLine(u models.TokenUsage) string {
	return fmt.Sprintf("%d in (%d cached) · %d out", u.InputTokens, u.CachedInputTokens, u.OutputTokens)
}

// runLineChat runs a plain chat session: one line per message, replies
// streamed to out.
func runLineChat(ctx context.Context, a *app.App, in io.Reader, out io.Writer) error {
	ctrl := a.Controller
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if res := runChatCommand(ctx, a, line); res.handled {
			if res.quit {
				return nil
			}
			fmt.Fprintln(out, res.reply)
			continue
		}

		before := len(ctrl.Messages())
		printed := 0
		unsub := ctrl.Subscribe(func() {
			msgs := ctrl.Messages()
			if len(msgs) <= before {
				return
			}
			last := msgs[len(msgs)-1]
			if last.Role == models.RoleAssistant && len(last.Content) > printed {
				fmt.Fprint(out, last.Content[printed:])
				printed = len(last.Content)
			}
		})
		ctrl.OnUserMessage(ctx, line)
		unsub()

		msgs := ctrl.Messages()
		last := msgs[len(msgs)-1]
		switch {
		case last.Role == models.RoleAssistant:
			if len(last.Content) > printed {
				fmt.Fprint(out, last.Content[printed:])
			}
			fmt.Fprintln(out)
		case last.Role == models.RoleDeveloper:
			fmt.Fprintf(out, "(note context added, %d characters)\n", len([]rune(last.Content)))
		}
	}
}
