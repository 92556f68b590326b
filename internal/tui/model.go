// Package tui is the terminal front end. It renders session state and
// forwards keystrokes to the engine. Every engine call happens inside
// Update, so the engine is only ever touched from Bubble Tea's loop.
package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/omochice/linkchat/internal/session"
)

const (
	sidebarWidth = 30
	inputHeight  = 3
	statusHeight = 1
)

// Notifier reports that the transport underneath the session has stopped.
type Notifier interface {
	Done() <-chan struct{}
	Err() error
}

type (
	frameMsg        string
	framesClosedMsg struct{}
	transportMsg    struct{ err error }
)

// Model is the Bubble Tea model for a chat session.
type Model struct {
	engine    *session.Engine
	transport Notifier

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	state  session.State
	width  int
	height int
	ready  bool
}

// New creates a Model driving engine. transport may be nil.
func New(engine *session.Engine, transport Notifier) Model {
	ti := textinput.New()
	ti.Placeholder = "Transmit a message..."
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		engine:    engine,
		transport: transport,
		input:     ti,
		spinner:   sp,
		state:     engine.State(),
	}
}

// Init starts the frame pump and the cursor and spinner animations.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		m.spinner.Tick,
		waitForFrame(m.engine.Frames()),
	}
	if m.transport != nil {
		cmds = append(cmds, waitForTransport(m.transport))
	}
	return tea.Batch(cmds...)
}

func waitForFrame(frames <-chan string) tea.Cmd {
	return func() tea.Msg {
		text, ok := <-frames
		if !ok {
			return framesClosedMsg{}
		}
		return frameMsg(text)
	}
}

func waitForTransport(n Notifier) tea.Cmd {
	return func() tea.Msg {
		<-n.Done()
		return transportMsg{err: n.Err()}
	}
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			m.engine.UpdateDraft(m.input.Value())
			m.engine.HandleKey("Enter")
			m.refresh()
			m.input.SetValue(m.state.Draft)
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		m.engine.UpdateDraft(m.input.Value())
		m.refresh()
		return m, cmd

	case frameMsg:
		m.engine.HandleFrame(string(msg))
		m.refresh()
		return m, waitForFrame(m.engine.Frames())

	case framesClosedMsg:
		return m, nil

	case transportMsg:
		m.engine.ReportTransportError(msg.err)
		m.refresh()
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) layout() {
	w := max(m.width-sidebarWidth-4, 10)
	h := max(m.height-inputHeight-statusHeight-2, 3)
	if !m.ready {
		m.viewport = viewport.New(w, h)
		m.ready = true
	} else {
		m.viewport.Width = w
		m.viewport.Height = h
	}
	m.input.Width = w - 4
}

// refresh pulls a new snapshot and re-renders the transcript.
func (m *Model) refresh() {
	m.state = m.engine.State()
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(renderTranscript(m.state, m.viewport.Width))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// State returns the snapshot last rendered.
func (m Model) State() session.State {
	return m.state
}
