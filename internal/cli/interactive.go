package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/apresai/docchat/internal/chart"
	"github.com/apresai/docchat/internal/completion"
	"github.com/apresai/docchat/internal/ingest"
	"github.com/apresai/docchat/internal/progress"
	"github.com/apresai/docchat/internal/session"
)

const (
	chatPlaceholder     = "Ask a question about the document..."
	insightsPlaceholder = "Ask to visualize something (e.g. 'Show me a bar chart of the budget')..."
	extractingLabel     = "Extracting document metadata..."
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#6366F1"))

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	docNameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA"))

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#6366F1")).
			Padding(0, 2)

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Padding(0, 2)

	userLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#10B981"))

	modelLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#6366F1"))

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	headerBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("#6366F1"))
)

type keyMap struct {
	Submit  key.Binding
	Newline key.Binding
	Mode    key.Binding
	Reset   key.Binding
	Dismiss key.Binding
	Quit    key.Binding
	Scroll  key.Binding
}

var keys = keyMap{
	Submit:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	Newline: key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"), key.WithHelp("alt+enter", "newline")),
	Mode:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "chat/insights")),
	Reset:   key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "new document")),
	Dismiss: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "dismiss error")),
	Quit:    key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	Scroll:  key.NewBinding(key.WithKeys("pgup", "pgdown")),
}

// Messages delivered back to Update by the async commands.
type (
	openFileMsg  struct{ path string }
	extractedMsg struct {
		x   session.Extraction
		doc *ingest.Document
		err error
	}
	answeredMsg struct {
		turn     session.Turn
		response string
		err      error
	}
	pageMsg progress.Event
)

type tuiDeps struct {
	ctx       context.Context
	sess      *session.Session
	extractor ingest.Extractor
	completer completion.Completer
	logger    *slog.Logger
	startFile string
}

// tuiModel is the Bubble Tea model for the document chat screen.
type tuiModel struct {
	deps tuiDeps
	sess *session.Session

	picker   filepicker.Model
	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	page   progress.Event
	width  int
	height int
	ready  bool
}

func newTUIModel(deps tuiDeps) tuiModel {
	if deps.ctx == nil {
		deps.ctx = context.Background()
	}
	if deps.logger == nil {
		deps.logger = slog.Default()
	}

	fp := filepicker.New()
	fp.AllowedTypes = []string{".pdf"}
	fp.AutoHeight = true
	fp.ShowPermissions = false

	ta := textarea.New()
	ta.Placeholder = chatPlaceholder
	ta.ShowLineNumbers = false
	ta.Prompt = "┃ "
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline = keys.Newline
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#6366F1"))

	m := tuiModel{
		deps:     deps,
		sess:     deps.sess,
		picker:   fp,
		input:    ta,
		viewport: viewport.New(80, 20),
		spinner:  sp,
	}
	m.syncPlaceholder()
	return m
}

func (m tuiModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.picker.Init(), textarea.Blink}
	if m.deps.startFile != "" {
		path := m.deps.startFile
		cmds = append(cmds, func() tea.Msg { return openFileMsg{path: path} })
	}
	return tea.Batch(cmds...)
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		if !m.sess.Pending() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case openFileMsg:
		return m.openFile(msg.path)

	case pageMsg:
		m.page = progress.Event(msg)
		return m, nil

	case extractedMsg:
		if !m.sess.CompleteExtraction(msg.x, msg.doc, msg.err) {
			return m, nil
		}
		m.page = progress.Event{}
		if msg.err != nil {
			m.deps.logger.Warn("extraction failed", "file", msg.x.Upload.Name, "error", msg.err)
			return m, m.picker.Init()
		}
		m.deps.logger.Info("document loaded", "file", msg.doc.Name, "pages", msg.doc.Pages, "chars", len(msg.doc.Text))
		m.refresh()
		return m, m.input.Focus()

	case answeredMsg:
		if _, ok := m.sess.SettleTurn(msg.turn, msg.response, msg.err); !ok && msg.err == nil {
			// Answer to a question asked before a reset.
			return m, nil
		}
		if msg.err != nil {
			m.deps.logger.Error("completion failed", "mode", msg.turn.Mode.String(), "error", msg.err)
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if !m.sess.HasDocument() && !m.sess.Extracting() {
		return m.updatePicker(msg)
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Dismiss):
		m.sess.DismissError()
		return m, nil

	case key.Matches(msg, keys.Reset):
		m.sess.Reset()
		m.input.Reset()
		m.page = progress.Event{}
		m.syncPlaceholder()
		m.refresh()
		return m, m.picker.Init()
	}

	if !m.sess.HasDocument() {
		if m.sess.Extracting() {
			return m, nil
		}
		return m.updatePicker(msg)
	}

	switch {
	case key.Matches(msg, keys.Mode):
		if m.sess.Mode() == session.ModeChat {
			m.sess.SetMode(session.ModeInsights)
		} else {
			m.sess.SetMode(session.ModeChat)
		}
		m.syncPlaceholder()
		m.refresh()
		return m, nil

	case key.Matches(msg, keys.Submit):
		return m.submit()

	case key.Matches(msg, keys.Scroll):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	// Input is locked while a response is pending.
	if m.sess.Awaiting() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.sess.SetDraft(m.input.Value())
	return m, cmd
}

func (m tuiModel) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)

	if ok, path := m.picker.DidSelectFile(msg); ok {
		next, openCmd := m.openFile(path)
		return next, tea.Batch(cmd, openCmd)
	}
	if ok, path := m.picker.DidSelectDisabledFile(msg); ok {
		m.deps.logger.Info("upload rejected", "file", path, "reason", "extension")
		m.sess.SetError(ingest.UserMessage(ingest.ErrNotPDF))
	}
	return m, cmd
}

// openFile reads path and starts extraction when it holds a PDF.
func (m tuiModel) openFile(path string) (tuiModel, tea.Cmd) {
	if m.sess.Pending() {
		return m, nil
	}
	upload, err := ingest.ReadUpload(path)
	if err != nil {
		m.sess.SetError(err.Error())
		return m, nil
	}
	x, err := m.sess.BeginExtraction(upload)
	if err != nil {
		m.deps.logger.Info("upload rejected", "file", upload.Name, "mime_type", upload.MIMEType, "error", err)
		return m, nil
	}
	m.page = progress.Event{}
	return m, tea.Batch(m.spinner.Tick, startExtraction(m.deps.ctx, m.deps.extractor, x))
}

func (m tuiModel) submit() (tea.Model, tea.Cmd) {
	turn, err := m.sess.BeginTurn(m.input.Value())
	if err != nil {
		return m, nil
	}
	m.input.Reset()
	m.refresh()
	m.deps.logger.Info("question submitted", "mode", turn.Mode.String(), "chars", len(turn.Input))
	return m, tea.Batch(m.spinner.Tick, startCompletion(m.deps.ctx, m.deps.completer, turn))
}

func startExtraction(ctx context.Context, ex ingest.Extractor, x session.Extraction) tea.Cmd {
	return func() tea.Msg {
		doc, err := ex.Extract(ctx, x.Upload)
		return extractedMsg{x: x, doc: doc, err: err}
	}
}

func startCompletion(ctx context.Context, c completion.Completer, turn session.Turn) tea.Cmd {
	return func() tea.Msg {
		resp, err := c.Complete(ctx, turn.Request)
		return answeredMsg{turn: turn, response: resp, err: err}
	}
}

func (m *tuiModel) resize(width, height int) {
	m.width = width
	m.height = height

	headerHeight := 3
	inputHeight := 5
	footerHeight := 3
	m.viewport.Width = width - 2
	m.viewport.Height = max(height-headerHeight-inputHeight-footerHeight, 3)
	m.input.SetWidth(width - 2)

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(width-6, 20)),
	)
	if err == nil {
		m.renderer = r
	}
	m.ready = true
	m.refresh()
}

func (m *tuiModel) syncPlaceholder() {
	if m.sess.Mode() == session.ModeInsights {
		m.input.Placeholder = insightsPlaceholder
	} else {
		m.input.Placeholder = chatPlaceholder
	}
}

func (m *tuiModel) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m tuiModel) renderTranscript() string {
	var b strings.Builder
	width := max(m.viewport.Width-2, 24)
	for _, e := range m.sess.Visible() {
		label := modelLabelStyle.Render("docchat")
		if e.Role == session.RoleUser {
			label = userLabelStyle.Render("You")
		}
		b.WriteString(label + " " + timestampStyle.Render(e.CreatedAt.Format("15:04")) + "\n")

		switch {
		case e.Kind == session.KindChart && e.Chart != nil:
			b.WriteString(chart.Render(e.Chart, width))
			b.WriteString("\n\n")
			b.WriteString(m.markdown(e.Content))
		case e.Role == session.RoleUser:
			b.WriteString(lipgloss.NewStyle().Width(width).Render(e.Content))
		default:
			b.WriteString(m.markdown(e.Content))
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m tuiModel) markdown(s string) string {
	if m.renderer == nil {
		return s
	}
	out, err := m.renderer.Render(s)
	if err != nil {
		return s
	}
	return strings.Trim(out, "\n")
}

func (m tuiModel) View() string {
	if !m.sess.HasDocument() {
		return m.uploadView()
	}
	return m.chatView()
}

func (m tuiModel) uploadView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("docchat") + " " + subtitleStyle.Render("AI Analyst") + "\n\n")
	b.WriteString("Analyze with visuals\n")
	b.WriteString(subtitleStyle.Render("Upload a PDF to chat, extract metrics, and generate charts from your document's data.") + "\n\n")

	if m.sess.Extracting() {
		status := extractingLabel
		if m.page.Pages > 0 {
			status = fmt.Sprintf("%s (page %d/%d)", extractingLabel, m.page.Page, m.page.Pages)
		}
		b.WriteString(m.spinner.View() + " " + status + "\n")
	} else {
		b.WriteString(m.picker.View() + "\n")
	}

	if msg := m.sess.Err(); msg != "" {
		b.WriteString("\n" + errorStyle.Render("  "+msg) + "\n")
	}
	b.WriteString(helpStyle.Render("  arrows to browse | enter to open | esc to dismiss | ctrl+c to quit"))
	b.WriteString("\n")
	return b.String()
}

func (m tuiModel) chatView() string {
	doc := m.sess.Document()

	chatTab, insightsTab := activeTabStyle, tabStyle
	if m.sess.Mode() == session.ModeInsights {
		chatTab, insightsTab = tabStyle, activeTabStyle
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		docNameStyle.Render(doc.Name), " ",
		subtitleStyle.Render(ingest.FormatSize(doc.Size)), "   ",
		chatTab.Render("Chat"), insightsTab.Render("Insights"),
	)

	var b strings.Builder
	b.WriteString(headerBorder.Width(max(m.width-2, 0)).Render(header) + "\n")
	b.WriteString(m.viewport.View() + "\n")

	if m.sess.Awaiting() {
		b.WriteString(m.spinner.View() + subtitleStyle.Render(" thinking...") + "\n")
	} else {
		b.WriteString("\n")
	}
	if msg := m.sess.Err(); msg != "" {
		b.WriteString(errorStyle.Render("  Error: "+msg) + "\n")
	}
	b.WriteString(m.input.View() + "\n")
	b.WriteString(helpStyle.Render("  enter send | alt+enter newline | tab chat/insights | ctrl+r new document | ctrl+c quit"))
	return b.String()
}

// runTUI starts the full-screen chat. Extraction progress is forwarded into
// the program as pageMsg events.
func runTUI(deps tuiDeps, ex *ingest.PDFExtractor) error {
	m := newTUIModel(deps)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(deps.ctx))
	ex.OnProgress = func(e progress.Event) { p.Send(pageMsg(e)) }

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
