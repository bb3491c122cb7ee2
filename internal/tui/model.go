// Package tui is the interactive chat console: a bubbletea program drawing
// the console projection and driving turns, approvals and connections.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/console"
)

const maxNotes = 4

// Options configures the console program
type Options struct {
	// Provider is the model provider sent with each turn; "" uses the server default
	Provider string
}

type startDoneMsg struct{ err error }

type changedMsg struct{}

type turnDoneMsg struct {
	state console.TurnState
	err   error
}

type actionDoneMsg struct {
	status string
	err    error
}

// Model is the bubbletea model of the chat console
type Model struct {
	ctx      context.Context
	con      *console.Console
	provider string

	changes     <-chan struct{}
	unsubscribe func()

	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model
	theme    theme

	notes    []string
	status   string
	errText  string
	running  bool
	ready    bool
	quitting bool
	width    int
	height   int
}

// New creates the console model. The context bounds every backend call.
func New(ctx context.Context, con *console.Console, opts Options) *Model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 8000
	input.Placeholder = "Message the model, or /help"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true

	changes, unsubscribe := con.Projection().Subscribe()
	if opts.Provider != "" {
		con.Orchestrator.SetProvider(opts.Provider)
	}
	return &Model{
		ctx:         ctx,
		con:         con,
		provider:    opts.Provider,
		changes:     changes,
		unsubscribe: unsubscribe,
		input:       input,
		timeline:    timeline,
		spinner:     sp,
		theme:       newTheme(),
		status:      "starting…",
	}
}

// Run starts the program and blocks until the user quits or ctx ends
func Run(ctx context.Context, con *console.Console, opts Options) error {
	m := New(ctx, con, opts)
	defer m.close()
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		textinput.Blink,
		m.startCmd(),
		waitChange(m.changes),
	)
}

func (m *Model) startCmd() tea.Cmd {
	con, ctx := m.con, m.ctx
	return func() tea.Msg {
		err := con.Start(ctx)
		if err == nil {
			if rerr := con.Cache.Refresh(ctx); rerr != nil {
				internal.LogWarn("Could not load capabilities: %v", rerr)
			}
		}
		return startDoneMsg{err: err}
	}
}

// waitChange turns one projection change signal into a message
func waitChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case startDoneMsg:
		if msg.err != nil {
			m.setError(msg.err)
			m.status = "could not reach the station server"
			break
		}
		m.ready = true
		m.status = "ready"
		m.renderTimeline()
	case changedMsg:
		m.renderTimeline()
		cmds = append(cmds, waitChange(m.changes))
	case turnDoneMsg:
		m.running = false
		m.finishTurn(msg)
		m.renderTimeline()
	case actionDoneMsg:
		if msg.err != nil {
			m.setError(msg.err)
			break
		}
		m.errText = ""
		if strings.Contains(msg.status, "\n") {
			m.note(msg.status)
		} else if msg.status != "" {
			m.status = msg.status
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderTimeline()
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// handleKey processes keys that are not plain typing
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		if m.running {
			m.con.Orchestrator.Stop()
			m.status = "stopping…"
			return nil, true
		}
		return m.quit(), true
	case "esc":
		m.con.Orchestrator.Stop()
		return nil, true
	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		return cmd, true
	case "y", "Y":
		if m.input.Value() == "" {
			if cmd := m.approve(); cmd != nil {
				return cmd, true
			}
		}
	case "enter":
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return nil, true
		}
		m.input.Reset()
		if c, ok := parseCommand(text); ok {
			return m.runCommand(c), true
		}
		if strings.HasPrefix(strings.TrimSpace(text), "//") {
			text = strings.TrimSpace(text)[1:]
		}
		orch, ctx := m.con.Orchestrator, m.ctx
		return m.turn(func() (console.TurnState, error) { return orch.Send(ctx, text, nil) }), true
	}
	return nil, false
}

// approve runs the pending tool call of the active session, if there is one
func (m *Model) approve() tea.Cmd {
	if m.running {
		return nil
	}
	sessionID := m.con.Projection().ActiveID()
	pending, ok := m.con.Orchestrator.Gate().Pending(sessionID)
	if !ok {
		return nil
	}
	m.status = "running " + pending.Call.Name + "…"
	orch, ctx := m.con.Orchestrator, m.ctx
	return m.turn(func() (console.TurnState, error) {
		return orch.Approve(ctx, sessionID, pending.Call.ID)
	})
}

// turn runs a blocking orchestrator call in the background
func (m *Model) turn(fn func() (console.TurnState, error)) tea.Cmd {
	m.running = true
	m.errText = ""
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		state, err := fn()
		return turnDoneMsg{state: state, err: err}
	})
}

func (m *Model) finishTurn(msg turnDoneMsg) {
	if msg.err != nil {
		m.setError(msg.err)
		return
	}
	switch msg.state {
	case console.TurnAwaitingApproval:
		m.status = "tool call awaiting approval: press y to run it"
	case console.TurnAborted:
		m.status = "stopped"
	case console.TurnFailed:
		view := m.con.Projection().View(m.con.Projection().ActiveID())
		m.status = "turn failed"
		if view.Error != "" {
			m.errText = view.Error + " (/retry to try again)"
		}
	default:
		m.status = "ready"
	}
}

func (m *Model) setError(err error) {
	internal.LogWarn("%v", err)
	m.errText = err.Error()
}

// note adds a console message below the timeline
func (m *Model) note(text string) {
	m.notes = append(m.notes, text)
	if len(m.notes) > maxNotes {
		m.notes = m.notes[len(m.notes)-maxNotes:]
	}
	m.renderTimeline()
}

func (m *Model) saveState() {
	m.con.SaveState(m.provider)
}

func (m *Model) quit() tea.Cmd {
	m.quitting = true
	m.con.Orchestrator.Stop()
	m.saveState()
	return tea.Quit
}

func (m *Model) close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

func (m *Model) resize() {
	m.input.Width = max(m.width-4, 10)
	// header, status line and the bordered input take four rows
	m.timeline.Width = m.width
	m.timeline.Height = max(m.height-4, 3)
}

func (m *Model) renderTimeline() {
	proj := m.con.Projection()
	view := proj.View(proj.ActiveID())

	var b strings.Builder
	b.WriteString(renderMessages(view.Messages, m.width-2, m.theme))
	if view.Error != "" {
		b.WriteString("\n\n" + m.theme.errStatus.Render("error: "+view.Error))
	}
	for _, n := range m.notes {
		b.WriteString("\n\n" + m.theme.note.Render(n))
	}

	follow := m.timeline.AtBottom() || m.running
	m.timeline.SetContent(b.String())
	if follow {
		m.timeline.GotoBottom()
	}
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	proj := m.con.Projection()
	view := proj.View(proj.ActiveID())
	header := renderHeader(view, m.provider, proj.Connections(), m.width, m.theme)

	var status string
	switch {
	case m.errText != "":
		status = m.theme.errStatus.Render(m.errText)
	case m.running:
		status = m.spinner.View() + " " + m.theme.status.Render(m.status)
	default:
		status = m.theme.status.Render(m.status)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.timeline.View(),
		status,
		m.theme.input.Width(max(m.width, 10)).Render(m.input.View()),
	)
}
