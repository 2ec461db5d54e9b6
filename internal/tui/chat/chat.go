// Package chat is ted's interactive terminal UI: an inline REPL that
// streams assistant text, shows tool rows as they run, and mirrors
// spawned-agent progress in a side pane.
package chat

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/tedsh/ted/internal/agents"
	"github.com/tedsh/ted/internal/engine"
	"github.com/tedsh/ted/internal/llm"
)

// toolRow is one tool call line in the active turn's display.
type toolRow struct {
	id      string
	name    string
	preview string
	output  string
	done    bool
	isError bool
}

// Model is the chat TUI model.
type Model struct {
	width  int
	height int

	textarea textarea.Model
	spinner  spinner.Model
	styles   Styles
	keyMap   KeyMap

	eng     *engine.Engine
	conv    *llm.Conversation
	tracker *agents.ProgressTracker

	streaming   bool
	interrupted *atomic.Bool
	cancelTurn  context.CancelFunc
	bridge      *bridge
	turnStart   time.Time

	current   strings.Builder // streaming assistant text
	toolRows  []toolRow
	agentPane []agents.TrackedAgent
	showPane  bool
	status    string

	history  []string // rendered completed exchanges
	renderer *markdownRenderer

	usage    llm.Usage
	err      error
	quitting bool
}

type turnEventMsg struct{ event turnEvent }

type tickMsg time.Time

// New builds the chat model around a configured engine. The engine's
// Surface is wired to the model's bridge per turn.
func New(eng *engine.Engine, tracker *agents.ProgressTracker) *Model {
	width, height := 80, 24
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width, height = w, h
	}

	styles := DefaultStyles()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.Prompt = "❯ "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetWidth(width)
	ta.SetHeight(1)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle()
	ta.Focus()

	return &Model{
		width:       width,
		height:      height,
		textarea:    ta,
		spinner:     s,
		styles:      styles,
		keyMap:      DefaultKeyMap(),
		eng:         eng,
		conv:        llm.NewConversation(),
		tracker:     tracker,
		interrupted: &atomic.Bool{},
		renderer:    newMarkdownRenderer(width),
		showPane:    true,
	}
}

func (m *Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textarea.SetWidth(msg.Width)
		m.renderer = newMarkdownRenderer(msg.Width)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			m.quitting = true
			if m.streaming {
				m.interruptTurn()
			}
			return m, tea.Quit

		case key.Matches(msg, m.keyMap.Interrupt):
			if m.streaming {
				m.interruptTurn()
				m.status = "Interrupting..."
			}
			return m, nil

		case key.Matches(msg, m.keyMap.AgentPane):
			m.showPane = !m.showPane
			return m, nil

		case key.Matches(msg, m.keyMap.Send):
			if m.streaming {
				return m, nil
			}
			content := strings.TrimSpace(m.textarea.Value())
			if content == "" {
				return m, nil
			}
			return m.sendMessage(content)
		}

	case turnEventMsg:
		return m.handleTurnEvent(msg.event)

	case tickMsg:
		if m.streaming {
			return m, m.tickEvery()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m *Model) sendMessage(content string) (tea.Model, tea.Cmd) {
	m.conv.Append(llm.UserText(content))
	m.history = append(m.history, m.styles.Prompt.Render("❯ ")+content)

	m.streaming = true
	m.turnStart = time.Now()
	m.interrupted.Store(false)
	m.current.Reset()
	m.toolRows = nil
	m.status = ""
	m.err = nil
	m.textarea.Reset()

	m.bridge = newBridge(m.interrupted)
	m.eng.Surface = m.bridge

	// the turn gets its own cancellable context so an interrupt also stops
	// running shell commands and background agents
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelTurn = cancel

	go func(b *bridge) {
		result, err := m.eng.ProcessTurn(ctx, m.conv, b, m.interrupted)
		b.done(result, err)
	}(m.bridge)

	return m, tea.Batch(m.waitForTurnEvent(), m.spinner.Tick, m.tickEvery())
}

// interruptTurn flags the running turn for cooperative cancellation and
// cancels its context so in-flight tools and spawned agents stop too.
func (m *Model) interruptTurn() {
	m.interrupted.Store(true)
	if m.cancelTurn != nil {
		m.cancelTurn()
	}
}

func (m *Model) waitForTurnEvent() tea.Cmd {
	b := m.bridge
	return func() tea.Msg {
		return turnEventMsg{event: <-b.events}
	}
}

func (m *Model) tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) handleTurnEvent(ev turnEvent) (tea.Model, tea.Cmd) {
	switch ev.kind {
	case eventTextDelta:
		m.current.WriteString(ev.text)

	case eventToolStarted:
		m.toolRows = append(m.toolRows, toolRow{
			id:      ev.use.ID,
			name:    ev.use.Name,
			preview: ev.preview,
		})

	case eventToolFinished:
		for i := range m.toolRows {
			if m.toolRows[i].id == ev.toolID {
				m.toolRows[i].done = true
				m.toolRows[i].isError = ev.isError
				m.toolRows[i].output = ev.output
				break
			}
		}
		m.syncAgentPane()

	case eventTick:
		m.syncAgentPane()

	case eventStatusNotice:
		m.status = ev.status

	case eventTurnDone:
		return m.finishTurn(ev)
	}
	return m, m.waitForTurnEvent()
}

func (m *Model) finishTurn(ev turnEvent) (tea.Model, tea.Cmd) {
	m.streaming = false
	m.status = ""
	if m.cancelTurn != nil {
		// release any agents abandoned by the finished turn
		m.cancelTurn()
		m.cancelTurn = nil
	}
	m.err = ev.err
	m.usage.Add(ev.result.Usage)
	m.syncAgentPane()

	// move the finished exchange into scrollback-style history
	var block strings.Builder
	for _, row := range m.toolRows {
		block.WriteString(m.renderToolRow(row))
		block.WriteString("\n")
	}
	if text := lastAssistantText(m.conv); text != "" {
		block.WriteString(m.renderer.Render(text))
	} else if m.err == nil && m.current.Len() > 0 {
		block.WriteString(m.renderer.Render(m.current.String()))
	}
	if m.err != nil {
		block.WriteString(m.styles.Error.Render(fmt.Sprintf("error: %v", m.err)))
	} else if !ev.result.Completed {
		block.WriteString(m.styles.Muted.Render("(interrupted)"))
	}
	m.history = append(m.history, strings.TrimRight(block.String(), "\n"))
	m.current.Reset()
	m.toolRows = nil
	m.tracker.Clear()
	m.agentPane = nil

	return m, nil
}

// syncAgentPane refreshes the spawned-agent display. TrySnapshot skips the
// refresh when a background task holds the tracker lock; the stale pane is
// repainted on the next tick.
func (m *Model) syncAgentPane() {
	if snapshot, ok := m.tracker.TrySnapshot(); ok {
		m.agentPane = snapshot
	}
}

func lastAssistantText(conv *llm.Conversation) string {
	msgs := conv.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleAssistant {
			if text := msgs[i].TextContent(); text != "" {
				return text
			}
		}
	}
	return ""
}
