// Package tui is the interactive chat screen: a question input, the
// candidate answer in an editable box with approve and reject actions, and
// the approved history newest first.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"go.uber.org/zap"

	"github.com/dshills/multitool-chat/chat"
	"github.com/dshills/multitool-chat/graph/emit"
)

const (
	editorHeight  = 8
	defaultWidth  = 80
	defaultHeight = 24
)

// answerMsg carries the result of a Submit back into Update.
type answerMsg struct {
	pending chat.Pending
	err     error
}

// Option configures a Model.
type Option func(*Model)

// WithEvents shows per-tool outcomes for the pending answer from the run's
// buffered events.
func WithEvents(events *emit.BufferedEmitter) Option {
	return func(m *Model) { m.events = events }
}

// WithRequestTimeout bounds each submission. Zero means no timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(m *Model) { m.timeout = d }
}

// WithGlamourStyle selects the markdown style for the history, e.g. "dark",
// "light" or "notty".
func WithGlamourStyle(style string) Option {
	return func(m *Model) { m.glamourStyle = style }
}

// WithContext sets the parent context of submissions.
func WithContext(ctx context.Context) Option {
	return func(m *Model) { m.ctx = ctx }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Model is the bubbletea model of the chat screen.
type Model struct {
	session *chat.Session
	events  *emit.BufferedEmitter
	ctx     context.Context
	timeout time.Duration
	logger  *zap.Logger

	keys    keyMap
	styles  styles
	input   textinput.Model
	editor  textarea.Model
	history viewport.Model
	spinner spinner.Model
	help    help.Model

	glamourStyle string
	renderer     *glamour.TermRenderer

	width, height int

	busy     bool
	question string
	tools    []string
	status   string
	err      error
}

// New builds the model around session.
func New(session *chat.Session, opts ...Option) Model {
	input := textinput.New()
	input.Placeholder = "Ask about a paper, a person, or today's news..."
	input.Prompt = "> "
	input.CharLimit = 0
	input.Focus()

	editor := textarea.New()
	editor.CharLimit = 0
	editor.MaxHeight = 0
	editor.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		session:      session,
		ctx:          context.Background(),
		logger:       zap.NewNop(),
		keys:         defaultKeyMap(),
		styles:       defaultStyles(),
		input:        input,
		editor:       editor,
		history:      viewport.New(defaultWidth, defaultHeight),
		spinner:      sp,
		help:         help.New(),
		glamourStyle: "dark",
	}
	for _, opt := range opts {
		opt(&m)
	}

	m.resize(defaultWidth, defaultHeight)
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case answerMsg:
		return m.handleAnswer(msg)

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.forward(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.busy {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Scroll):
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		return m, cmd

	case m.reviewing() && key.Matches(msg, m.keys.Approve):
		return m.approve()

	case m.reviewing() && key.Matches(msg, m.keys.Reject):
		return m.reject()

	case !m.reviewing() && key.Matches(msg, m.keys.Submit):
		return m.submit()
	}

	return m.forward(msg)
}

// forward passes msg to the focused component.
func (m Model) forward(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.reviewing() {
		before := m.editor.Value()
		m.editor, cmd = m.editor.Update(msg)
		if after := m.editor.Value(); after != before {
			if err := m.session.Edit(after); err != nil {
				m.setError(err)
			}
		}
		return m, cmd
	}
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	query := strings.TrimSpace(m.input.Value())
	if query == "" {
		m.setError(chat.ErrEmptyQuery)
		return m, nil
	}

	m.busy = true
	m.question = query
	m.err = nil
	m.status = "Thinking..."
	m.input.Blur()

	return m, tea.Batch(m.answer(query), m.spinner.Tick)
}

// answer runs Submit off the update loop.
func (m Model) answer(query string) tea.Cmd {
	session, parent, timeout := m.session, m.ctx, m.timeout
	return func() tea.Msg {
		ctx := parent
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(parent, timeout)
			defer cancel()
		}
		p, err := session.Submit(ctx, query)
		return answerMsg{pending: p, err: err}
	}
}

func (m Model) handleAnswer(msg answerMsg) (tea.Model, tea.Cmd) {
	m.busy = false

	if msg.err != nil {
		m.logger.Warn("submit failed", zap.String("run_id", msg.pending.RunID), zap.Error(msg.err))
		m.clearEvents(msg.pending.RunID)
		m.setError(msg.err)
		cmd := m.input.Focus()
		return m, cmd
	}

	m.input.Reset()
	m.tools = m.toolSummary(msg.pending)
	m.editor.SetValue(msg.pending.Answer)
	m.err = nil
	m.status = "Review the answer, then approve or reject."
	m.resize(m.width, m.height)
	cmd := m.editor.Focus()
	return m, cmd
}

func (m Model) approve() (tea.Model, tea.Cmd) {
	p, _ := m.session.Pending()
	if err := m.session.Approve(m.editor.Value()); err != nil {
		m.setError(err)
		return m, nil
	}
	m.clearEvents(p.RunID)

	m.editor.Blur()
	m.editor.Reset()
	m.question, m.tools = "", nil
	m.err = nil
	m.status = "Answer approved."
	m.resize(m.width, m.height)
	m.history.GotoTop()
	cmd := m.input.Focus()
	return m, cmd
}

func (m Model) reject() (tea.Model, tea.Cmd) {
	p, _ := m.session.Pending()
	question, err := m.session.Reject()
	if err != nil {
		m.setError(err)
		return m, nil
	}
	m.clearEvents(p.RunID)

	m.editor.Blur()
	m.editor.Reset()
	m.question, m.tools = "", nil
	m.input.SetValue(question)
	m.input.CursorEnd()
	m.err = nil
	m.status = "Answer rejected. Edit the question and press enter to retry."
	m.resize(m.width, m.height)
	cmd := m.input.Focus()
	return m, cmd
}

func (m Model) reviewing() bool {
	return m.session.State() == chat.AwaitingReview
}

func (m *Model) setError(err error) {
	m.err = err
	m.status = ""
}

func (m Model) clearEvents(runID string) {
	if m.events != nil && runID != "" {
		m.events.Clear(runID)
	}
}

// toolSummary lists the tools behind p, with outcome and latency when run
// events are available.
func (m Model) toolSummary(p chat.Pending) []string {
	if m.events == nil {
		return append([]string(nil), p.ToolCalls...)
	}

	calls := m.events.GetHistoryWithFilter(p.RunID, emit.HistoryFilter{Msg: "tool_call"})
	if len(calls) == 0 {
		return append([]string(nil), p.ToolCalls...)
	}

	lines := make([]string, 0, len(calls))
	for _, ev := range calls {
		line := fmt.Sprintf("%v %v", ev.Meta["tool"], ev.Meta["status"])
		if ms, ok := ev.Meta["duration_ms"].(int64); ok {
			line += fmt.Sprintf(" (%dms)", ms)
		}
		lines = append(lines, line)
	}
	return lines
}

// resize lays the screen out for width x height and re-renders the history.
func (m *Model) resize(width, height int) {
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	m.width, m.height = width, height

	m.input.Width = width - lipgloss.Width(m.input.Prompt) - 1
	m.editor.SetWidth(width - 2)
	m.editor.SetHeight(editorHeight)
	m.help.Width = width

	// title, status and help lines plus the input or the review block
	reserved := 3 + 1
	if m.reviewing() {
		reserved = 3 + 1 + editorHeight + 2 + 1
		if len(m.tools) > 0 {
			reserved++
		}
	}
	m.history.Width = width
	m.history.Height = max(height-reserved, 3)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.glamourStyle),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		m.logger.Warn("markdown renderer unavailable", zap.Error(err))
		renderer = nil
	}
	m.renderer = renderer
	m.history.SetContent(m.renderHistory())
}

// renderHistory renders approved exchanges newest first.
func (m Model) renderHistory() string {
	var b strings.Builder
	for pair := range m.session.Transcript().Pairs() {
		fmt.Fprintf(&b, "**You:** %s\n\n", pair.User)
		if pair.Assistant != "" {
			fmt.Fprintf(&b, "**Assistant:**\n\n%s\n\n", pair.Assistant)
		}
		b.WriteString("---\n\n")
	}

	md := b.String()
	if md == "" {
		return "No approved answers yet."
	}
	if m.renderer == nil {
		return md
	}
	out, err := m.renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

// View implements tea.Model.
func (m Model) View() string {
	var sections []string

	sections = append(sections,
		m.styles.title.Render("Multi-tool chat"),
		m.styles.history.Render(m.history.View()),
	)

	if m.reviewing() {
		sections = append(sections, m.styles.label.Render("Q: ")+m.question)
		if len(m.tools) > 0 {
			sections = append(sections, m.styles.tools.Render("tools: "+strings.Join(m.tools, ", ")))
		}
		sections = append(sections,
			m.styles.editor.Render(m.editor.View()),
			m.help.ShortHelpView(m.keys.reviewHelp()),
		)
	} else {
		sections = append(sections,
			m.input.View(),
			m.help.ShortHelpView(m.keys.idleHelp()),
		)
	}

	sections = append(sections, m.statusLine())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) statusLine() string {
	var line string
	switch {
	case m.busy:
		line = m.styles.status.Render(m.spinner.View() + " " + m.status)
	case m.err != nil:
		line = m.styles.failure.Render("error: " + describe(m.err))
	case m.status != "":
		line = m.styles.status.Render(m.status)
	}
	return ansi.Truncate(line, m.width, "…")
}

func describe(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "the request timed out"
	case errors.Is(err, chat.ErrEmptyQuery):
		return "type a question first"
	case errors.Is(err, chat.ErrEmptyAnswer):
		return "the answer is empty; write one or reject"
	default:
		return err.Error()
	}
}
