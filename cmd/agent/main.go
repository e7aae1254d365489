// Command agent is a terminal chat client over the agent core: it
// drives one pkg/session.Facade at a time, rendering the active session's
// journal as it grows and relaying typed input back into the loop.
//
// Usage:
//
//	export GEMINI_API_KEY="your-api-key"
//	go run ./cmd/agent
//
// Commands typed in chat:
//
//	/exit          - end the session and quit
//	/model <id>    - record a model change on the active session
//	/compact [msg] - manually trigger compaction, optionally with instructions
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/mariozechner/agentcore/pkg/agent"
	"github.com/mariozechner/agentcore/pkg/compaction"
	"github.com/mariozechner/agentcore/pkg/journal"
	"github.com/mariozechner/agentcore/pkg/llmclient"
	"github.com/mariozechner/agentcore/pkg/llmclient/gemini"
	"github.com/mariozechner/agentcore/pkg/message"
	"github.com/mariozechner/agentcore/pkg/notes"
	notessqlite "github.com/mariozechner/agentcore/pkg/notes/sqlite"
	"github.com/mariozechner/agentcore/pkg/patch"
	"github.com/mariozechner/agentcore/pkg/retry"
	"github.com/mariozechner/agentcore/pkg/sandbox"
	"github.com/mariozechner/agentcore/pkg/sandbox/docker"
	"github.com/mariozechner/agentcore/pkg/session"
	"github.com/mariozechner/agentcore/pkg/tools"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	cursorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	selectedItemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1)
	dimStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

const systemPrompt = "You are a helpful coding agent with access to files, a sandbox, and a note-taking scratchpad."

type state int

const (
	stateMenu state = iota
	stateSelectingModel
	stateSelectingSession
	stateChatting
	stateConfirmExit
)

type errMsg struct{ err error }
type sessionUpdateMsg string
type updateViewMsg struct {
	content string
}

// env bundles the process-wide dependencies every session's facade is
// built from: one client, one journal root, one sandbox manager, one
// note store, shared across however many sessions the TUI opens in turn.
type env struct {
	ctx        context.Context
	client     llmclient.Client
	journalMgr *journal.Manager
	sandboxMgr sandbox.Manager
	noteStore  notes.Store
	fuzzy      patch.FuzzyConfig
	editRoot   string
}

type model struct {
	env env

	facade  *session.Facade
	updates <-chan string

	state             state
	availableModels   []string
	availableSessions []journal.SessionMeta
	selectedModel     string
	cursor            int
	listOffset        int
	width             int
	height            int
	err               error

	viewport viewport.Model
	textarea textarea.Model
	renderer *glamour.TermRenderer
}

func initialModel(e env, modelsList []string) model {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 4000
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)
	vp.SetContent("Welcome! Select an option.")

	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(80),
	)

	return model{
		env:             e,
		availableModels: modelsList,
		selectedModel:   modelsList[0],
		state:           stateMenu,
		viewport:        vp,
		textarea:        ta,
		renderer:        r,
	}
}

func (m model) Init() tea.Cmd {
	return textarea.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	var tiCmd, vpCmd tea.Cmd
	switch msg.(type) {
	case tea.KeyMsg:
		if m.state == stateChatting {
			m.textarea, tiCmd = m.textarea.Update(msg)
			cmds = append(cmds, tiCmd)
		}
	default:
		m.textarea, tiCmd = m.textarea.Update(msg)
		cmds = append(cmds, tiCmd)
	}
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = msg.Height - m.textarea.Height() - 2
		if m.viewport.Height < 0 {
			m.viewport.Height = 0
		}
		m.viewport.YPosition = 2
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("light"),
			glamour.WithWordWrap(m.width-4),
		)
		m.clampListOffset()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.facade != nil {
				m.state = stateConfirmExit
				return m, nil
			}
			return m, tea.Quit
		case tea.KeyEsc:
			if m.state == stateConfirmExit {
				m.state = stateChatting
				return m, nil
			}
			if m.facade != nil {
				m.state = stateConfirmExit
				return m, nil
			}
			return m, tea.Quit
		case tea.KeyEnter:
			switch m.state {
			case stateMenu:
				if m.cursor == 0 {
					m.state = stateSelectingModel
					m.cursor = 0
					m.listOffset = 0
				} else {
					sessions, err := m.env.journalMgr.ListSessions()
					if err != nil {
						m.err = err
					} else if len(sessions) == 0 {
						m.err = fmt.Errorf("no existing sessions found")
					} else {
						m.availableSessions = sessions
						m.state = stateSelectingSession
						m.cursor = 0
						m.listOffset = 0
					}
				}
			case stateSelectingModel:
				m.selectedModel = m.availableModels[m.cursor]
				return m.startNewSession()
			case stateSelectingSession:
				return m.continueSession()
			case stateChatting:
				m.err = nil
				return m.sendInput()
			}
		case tea.KeyUp:
			if m.cursor > 0 {
				m.cursor--
				if m.cursor < m.listOffset {
					m.listOffset = m.cursor
				}
			}
		case tea.KeyDown:
			var maxCursor int
			switch m.state {
			case stateMenu:
				maxCursor = 1
			case stateSelectingModel:
				maxCursor = len(m.availableModels) - 1
			case stateSelectingSession:
				maxCursor = len(m.availableSessions) - 1
			}
			if m.cursor < maxCursor {
				m.cursor++
				m.clampListOffset()
			}
		default:
			if m.state == stateConfirmExit {
				switch msg.String() {
				case "y", "Y":
					return m, tea.Sequence(m.endSessionCmd(), tea.Quit)
				case "n", "N":
					return m, tea.Quit
				}
			}
		}

	case sessionUpdateMsg:
		if m.facade != nil && string(msg) == m.facade.Session().ID() {
			cmds = append(cmds, m.reloadMessages(), waitForUpdate(m.updates))
		} else {
			cmds = append(cmds, waitForUpdate(m.updates))
		}

	case updateViewMsg:
		m.viewport.SetContent(msg.content)
		m.viewport.GotoBottom()

	case errMsg:
		m.err = msg.err
	}

	return m, tea.Batch(cmds...)
}

func (m *model) clampListOffset() {
	maxViewable := m.height - 7
	if maxViewable < 1 {
		maxViewable = 1
	}
	if m.cursor < m.listOffset {
		m.listOffset = m.cursor
	}
	if m.cursor >= m.listOffset+maxViewable {
		m.listOffset = m.cursor - maxViewable + 1
	}
	if m.listOffset < 0 {
		m.listOffset = 0
	}
}

func (m model) View() string {
	var errorView string
	if m.err != nil {
		errorView = errorStyle.Width(m.width).Render(fmt.Sprintf("\nError: %v", m.err))
	}

	switch m.state {
	case stateMenu:
		return m.listView("Main Menu", []string{"New Session", "Continue Session"}, errorView)

	case stateSelectingModel:
		return m.listView("Select Model", m.availableModels, errorView)

	case stateSelectingSession:
		labels := make([]string, len(m.availableSessions))
		for i, s := range m.availableSessions {
			labels[i] = fmt.Sprintf("%s (%s, %s)", s.ID, s.ModelID, s.Modified.Format(time.RFC822))
		}
		return m.listView("Select Session", labels, errorView)

	case stateConfirmExit:
		header := titleStyle.Render("Confirm Exit")
		return lipgloss.JoinVertical(lipgloss.Left, header, "", "End session? (y/n)", errorView)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("Agent"),
		"",
		m.viewport.View(),
		"",
		errorView,
		m.textarea.View(),
	)
}

func (m model) listView(title string, choices []string, errorView string) string {
	header := titleStyle.Render(title)

	maxViewable := m.height - 7
	if maxViewable < 1 {
		maxViewable = 1
	}
	start := m.listOffset
	end := start + maxViewable
	if end > len(choices) {
		end = len(choices)
	}

	var optionsView []string
	for i := start; i < end; i++ {
		choice := choices[i]
		cursor := " "
		if m.cursor == i {
			cursor = ">"
			choice = selectedItemStyle.Render(choice)
		}
		optionsView = append(optionsView, fmt.Sprintf("%s %s", cursorStyle.Render(cursor), choice))
	}

	list := lipgloss.JoinVertical(lipgloss.Left, optionsView...)
	footer := "Press Enter to select, Esc to quit."
	return lipgloss.JoinVertical(lipgloss.Left, header, "", list, "", footer, errorView)
}

// buildRegistry assembles the toolset for one session: file/edit tools
// rooted at the process cwd, sandbox collaborators backed by a per-session
// container, and note collaborators scoped to sessionID.
func (m model) buildRegistry(sessionID string) *tools.Registry {
	reg := tools.NewRegistry()
	reg.Register(&tools.ListFilesTool{})
	reg.Register(&tools.ReadFileTool{})
	reg.Register(&tools.WriteFileTool{})
	reg.Register(tools.NewEditTool(m.env.editRoot, m.env.fuzzy, patch.NewCache()))

	reg.Register(&sandbox.BashTool{Mgr: m.env.sandboxMgr, SessionID: sessionID})
	reg.Register(&sandbox.PythonTool{Mgr: m.env.sandboxMgr, SessionID: sessionID})

	reg.Register(&notes.StoreNoteTool{Store: m.env.noteStore, SessionID: sessionID})
	reg.Register(&notes.KeywordSearchNotesTool{Store: m.env.noteStore, SessionID: sessionID})
	reg.Register(&notes.GetNoteTool{Store: m.env.noteStore})
	reg.Register(&notes.DeleteNoteTool{Store: m.env.noteStore})
	return reg
}

// wireRecorders gives the bash/python tools a way back into sess's journal
// for their auxiliary BashExecution/PythonExecution entries, once sess is
// known. tools.Registry only exposes tools by name, so this reaches in
// directly rather than threading the session through buildRegistry.
func wireRecorders(reg *tools.Registry, sess *journal.Session) {
	record := func(m message.Message) (string, error) { return sess.AppendMessage(m) }
	if t, ok := reg.Get("bash"); ok {
		t.(*sandbox.BashTool).Record = record
	}
	if t, ok := reg.Get("python"); ok {
		t.(*sandbox.PythonTool).Record = record
	}
}

func (m model) agentConfig(sess *journal.Session, reg *tools.Registry) agent.Config {
	return agent.Config{
		Client:       m.env.client,
		ModelID:      m.selectedModel,
		SystemPrompt: systemPrompt,
		Tools:        reg,
		EditRoot:     m.env.editRoot,
		EditFuzzy:    m.env.fuzzy,
		RetryConfig:  retry.DefaultConfig,
	}
}

func (m model) compactionConfig() compaction.Config {
	cfg := compaction.DefaultConfig
	cfg.Client = m.env.client
	cfg.DefaultModelID = m.selectedModel
	return cfg
}

func (m model) startNewSession() (model, tea.Cmd) {
	sess, err := m.env.journalMgr.NewSession(m.env.editRoot, systemPrompt, m.selectedModel, m.env.client.Name(), "")
	if err != nil {
		return m, func() tea.Msg { return errMsg{err} }
	}
	reg := m.buildRegistry(sess.ID())
	wireRecorders(reg, sess)
	m.facade = session.New(m.env.journalMgr, sess, m.agentConfig(sess, reg), m.compactionConfig())
	return m.enterChat()
}

func (m model) continueSession() (model, tea.Cmd) {
	meta := m.availableSessions[m.cursor]
	sess, err := m.env.journalMgr.LoadSession(meta.ID)
	if err != nil {
		return m, func() tea.Msg { return errMsg{err} }
	}
	modelID := sess.Header().ModelID
	if modelID != "" {
		m.selectedModel = modelID
	}
	reg := m.buildRegistry(sess.ID())
	wireRecorders(reg, sess)
	m.facade = session.New(m.env.journalMgr, sess, m.agentConfig(sess, reg), m.compactionConfig())
	return m.enterChat()
}

func (m model) enterChat() (model, tea.Cmd) {
	m.updates = m.env.journalMgr.Subscribe()
	m.state = stateChatting
	m.textarea.Placeholder = "Type a message..."
	m.textarea.Focus()
	return m, tea.Batch(m.reloadMessages(), waitForUpdate(m.updates))
}

func (m model) sendInput() (model, tea.Cmd) {
	v := strings.TrimSpace(m.textarea.Value())
	if v == "" {
		return m, nil
	}

	if v == "/exit" {
		m.state = stateConfirmExit
		return m, nil
	}

	if rest, ok := strings.CutPrefix(v, "/model "); ok {
		modelID := strings.TrimSpace(rest)
		if modelID == "" {
			return m, nil
		}
		m.textarea.Reset()
		sess := m.facade.Session()
		m.selectedModel = modelID
		return m, func() tea.Msg {
			if _, err := sess.AppendModelChange(m.env.client.Name(), modelID); err != nil {
				return errMsg{err}
			}
			return nil
		}
	}

	if rest, ok := strings.CutPrefix(v, "/compact"); ok {
		instructions := strings.TrimSpace(rest)
		m.textarea.Reset()
		facade := m.facade
		return m, func() tea.Msg {
			if _, err := facade.Compact(m.env.ctx, instructions); err != nil {
				return errMsg{err}
			}
			return nil
		}
	}

	m.textarea.Reset()
	facade := m.facade
	return m, func() tea.Msg {
		if _, err := facade.Prompt(m.env.ctx, v, session.PromptOptions{StreamingBehavior: session.BehaviorFollowUp}); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m model) endSessionCmd() tea.Cmd {
	return func() tea.Msg {
		if m.facade == nil {
			return nil
		}
		id := m.facade.Session().ID()
		m.facade.Abort()
		if m.env.sandboxMgr != nil {
			if err := m.env.sandboxMgr.Stop(m.env.ctx, id); err != nil {
				slog.Error("failed to stop sandbox", "error", err)
			}
		}
		return nil
	}
}

func (m model) reloadMessages() tea.Cmd {
	facade := m.facade
	renderer := m.renderer
	return func() tea.Msg {
		sess := facade.Session()
		entries, err := sess.GetContext()
		if err != nil {
			return errMsg{err}
		}

		var sb strings.Builder
		for _, e := range entries {
			renderEntry(&sb, e, renderer)
		}
		return updateViewMsg{content: sb.String()}
	}
}

func renderEntry(sb *strings.Builder, e journal.Entry, renderer *glamour.TermRenderer) {
	if e.Message == nil {
		switch e.Type {
		case journal.EntryModelChange:
			sb.WriteString(dimStyle.Render(fmt.Sprintf("[model changed to %s]\n", e.ModelChange.ModelID)))
		case journal.EntrySessionInfo:
			sb.WriteString(dimStyle.Render(fmt.Sprintf("[%s]\n", e.SessionInfo.Name)))
		case journal.EntryThinkingLevelChange:
			sb.WriteString(dimStyle.Render(fmt.Sprintf("[thinking level changed to %s]\n", e.ThinkingLevelChange.ThinkingLevel)))
		case journal.EntryModeChange:
			sb.WriteString(dimStyle.Render(fmt.Sprintf("[mode changed to %s]\n", e.ModeChange.Mode)))
		}
		return
	}

	msg := e.Message
	switch msg.Role {
	case message.RoleUser:
		sb.WriteString(userStyle.Render("User: "))
		sb.WriteString("\n")
		sb.WriteString(renderBlocks(msg.User.Content, renderer))
	case message.RoleAssistant:
		sb.WriteString(senderStyle.Render("AI: "))
		sb.WriteString("\n")
		for _, b := range msg.Assistant.Content {
			switch b.Type {
			case message.BlockText:
				sb.WriteString(renderMarkdown(b.Text.Text, renderer))
			case message.BlockThinking:
				sb.WriteString(dimStyle.Render("(thinking: " + b.Thinking.Text + ")\n"))
			case message.BlockToolCall:
				sb.WriteString(fmt.Sprintf("[tool call: %s]\n", b.ToolCall.Name))
			}
		}
	case message.RoleTool:
		status := "ok"
		if msg.ToolResult.IsError {
			status = "error"
		}
		sb.WriteString(dimStyle.Render(fmt.Sprintf("[%s result (%s)]\n", msg.ToolResult.ToolName, status)))
		sb.WriteString(renderBlocks(msg.ToolResult.Content, renderer))
	case message.RoleBashExecution:
		sb.WriteString(dimStyle.Render(fmt.Sprintf("$ %s\n", msg.BashExecution.Command)))
		sb.WriteString(msg.BashExecution.Output)
		sb.WriteString("\n")
	case message.RolePythonExecution:
		sb.WriteString(dimStyle.Render("python> " + msg.PythonExecution.Code + "\n"))
		sb.WriteString(msg.PythonExecution.Output)
		sb.WriteString("\n")
	case message.RoleCompactionSummary:
		sb.WriteString(dimStyle.Render("[context compacted]\n"))
		sb.WriteString(msg.CompactionSummary.Summary)
		sb.WriteString("\n")
	case message.RoleBranchSummary:
		sb.WriteString(dimStyle.Render("[branch summary]\n"))
		sb.WriteString(msg.BranchSummary.Summary)
		sb.WriteString("\n")
	default:
		sb.WriteString(dimStyle.Render(string(msg.Role) + ":\n"))
	}
	sb.WriteString("\n")
}

func renderBlocks(blocks []message.Block, renderer *glamour.TermRenderer) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == message.BlockText && b.Text != nil {
			sb.WriteString(renderMarkdown(b.Text.Text, renderer))
		}
	}
	return sb.String()
}

func renderMarkdown(text string, renderer *glamour.TermRenderer) string {
	if renderer == nil {
		return text + "\n"
	}
	rendered, err := renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return rendered
}

func waitForUpdate(sub <-chan string) tea.Cmd {
	return func() tea.Msg {
		id, ok := <-sub
		if !ok {
			return nil
		}
		return sessionUpdateMsg(id)
	}
}

func main() {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		fmt.Println("Error: GEMINI_API_KEY environment variable not set.")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, err := os.OpenFile("agent.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	defer f.Close()

	logLevel := slog.LevelInfo
	if lv := os.Getenv("LOG_LEVEL"); lv != "" {
		switch strings.ToUpper(lv) {
		case "DEBUG":
			logLevel = slog.LevelDebug
		case "INFO":
			logLevel = slog.LevelInfo
		case "WARN":
			logLevel = slog.LevelWarn
		case "ERROR":
			logLevel = slog.LevelError
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel})))
	slog.Info("logging initialized", "level", logLevel)

	client, err := gemini.New(ctx, apiKey)
	if err != nil {
		slog.Error("failed to initialize gemini client", "error", err)
		os.Exit(1)
	}

	models, err := client.List(ctx)
	if err != nil {
		slog.Error("failed to list models", "error", err)
		os.Exit(1)
	}
	if len(models) == 0 {
		slog.Info("no models available")
		os.Exit(1)
	}
	modelIDs := make([]string, len(models))
	for i, mi := range models {
		modelIDs[i] = mi.ID
	}

	journalMgr := journal.NewManager("./sessions", func(err error) {
		slog.Error("journal write failed", "error", err)
	})

	sandboxMgr, err := docker.New()
	if err != nil {
		slog.Error("failed to initialize sandbox manager", "error", err)
		os.Exit(1)
	}
	defer sandboxMgr.Close()

	noteStore, err := notessqlite.New("./agent-notes.db")
	if err != nil {
		slog.Error("failed to initialize note store", "error", err)
		os.Exit(1)
	}
	defer noteStore.Close()

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	e := env{
		ctx:        ctx,
		client:     client,
		journalMgr: journalMgr,
		sandboxMgr: sandboxMgr,
		noteStore:  noteStore,
		fuzzy:      fuzzyConfigFromEnv(),
		editRoot:   cwd,
	}

	p := tea.NewProgram(initialModel(e, modelIDs))
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}

// fuzzyConfigFromEnv applies PI_EDIT_FUZZY and PI_EDIT_FUZZY_THRESHOLD on
// top of patch.DefaultFuzzyConfig. PI_EDIT_VARIANT is read only to log the
// requested choice: the edit tool here implements a single line-hash diff
// format, so every variant value resolves to it.
func fuzzyConfigFromEnv() patch.FuzzyConfig {
	cfg := patch.DefaultFuzzyConfig

	if v := os.Getenv("PI_EDIT_FUZZY"); v != "" {
		switch v {
		case "1":
			cfg.Enabled = true
		case "0":
			cfg.Enabled = false
		case "auto":
			cfg.Enabled = true
		}
	}
	if v := os.Getenv("PI_EDIT_FUZZY_THRESHOLD"); v != "" && v != "auto" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Threshold = n
		}
	}
	if variant := os.Getenv("PI_EDIT_VARIANT"); variant != "" {
		slog.Info("edit variant requested", "variant", variant, "implemented", "hashline")
	}
	return cfg
}
