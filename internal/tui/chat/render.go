package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/tedsh/ted/internal/agents"
)

// Styles holds the lipgloss styles the chat view uses.
type Styles struct {
	Prompt    lipgloss.Style
	Muted     lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Spinner   lipgloss.Style
	ToolName  lipgloss.Style
	PaneTitle lipgloss.Style
	Status    lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Prompt:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		Muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		Success:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Spinner:   lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		ToolName:  lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		PaneTitle: lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true),
		Status:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	}
}

// markdownRenderer wraps glamour with a graceful plain-text fallback.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
}

func newMarkdownRenderer(width int) *markdownRenderer {
	if width > 100 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return &markdownRenderer{}
	}
	return &markdownRenderer{renderer: r}
}

func (r *markdownRenderer) Render(text string) string {
	if r.renderer == nil {
		return text
	}
	out, err := r.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n") + "\n"
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	for _, h := range m.history {
		b.WriteString(h)
		b.WriteString("\n")
	}

	if m.streaming {
		for _, row := range m.toolRows {
			b.WriteString(m.renderToolRow(row))
			b.WriteString("\n")
		}
		if m.current.Len() > 0 {
			b.WriteString(m.current.String())
			b.WriteString("\n")
		}
		if m.showPane && len(m.agentPane) > 0 {
			b.WriteString(m.renderAgentPane())
		}
		line := m.spinner.View() + " " + m.styles.Muted.Render(fmt.Sprintf("%.0fs", time.Since(m.turnStart).Seconds()))
		if m.status != "" {
			line += "  " + m.styles.Status.Render(m.status)
		}
		b.WriteString(line)
		b.WriteString("\n")
	} else {
		if m.err != nil {
			b.WriteString(m.styles.Error.Render(fmt.Sprintf("error: %v", m.err)))
			b.WriteString("\n")
		}
		b.WriteString(m.textarea.View())
		b.WriteString("\n")
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf("tokens in %d / out %d  ·  esc interrupts  ·  ctrl+c quits",
			m.usage.InputTokens, m.usage.OutputTokens)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderToolRow(row toolRow) string {
	marker := m.styles.Muted.Render("⠿")
	if row.done {
		if row.isError {
			marker = m.styles.Error.Render("✗")
		} else {
			marker = m.styles.Success.Render("✓")
		}
	}
	line := fmt.Sprintf("  %s %s", marker, m.styles.ToolName.Render(row.name))
	if row.preview != "" {
		line += " " + m.styles.Muted.Render(row.preview)
	}
	if row.done && row.isError && row.output != "" {
		line += "\n    " + m.styles.Error.Render(firstLine(row.output))
	}
	return line
}

// renderAgentPane shows running spawned agents with their latest activity.
func (m *Model) renderAgentPane() string {
	var b strings.Builder
	b.WriteString(m.styles.PaneTitle.Render("agents"))
	b.WriteString("\n")
	for _, a := range m.agentPane {
		b.WriteString(fmt.Sprintf("  %s %s  %s\n",
			agentStatusIcon(m.styles, a),
			m.styles.ToolName.Render(a.AgentType),
			m.styles.Muted.Render(truncate(a.Task, 50))))
		if a.RateLimited {
			b.WriteString("    " + m.styles.Status.Render(fmt.Sprintf("rate limited, retrying in %ds", a.RateLimitWait)) + "\n")
			continue
		}
		if a.CurrentTool != "" && !a.Completed {
			b.WriteString("    " + m.styles.Muted.Render(fmt.Sprintf("step %d: %s", a.Iteration, a.CurrentTool)) + "\n")
		}
		if n := len(a.Conversation); n > 0 {
			last := a.Conversation[n-1]
			if last.IsToolCall() {
				b.WriteString("    " + m.styles.Muted.Render(fmt.Sprintf("%s %s", last.Name, truncate(last.Preview, 40))) + "\n")
			} else {
				b.WriteString("    " + m.styles.Muted.Render(truncate(firstLine(last.Text), 60)) + "\n")
			}
		}
	}
	return b.String()
}

func agentStatusIcon(s Styles, a agents.TrackedAgent) string {
	switch a.Status {
	case agents.StatusCompleted:
		return s.Success.Render("✓")
	case agents.StatusFailed:
		return s.Error.Render("✗")
	case agents.StatusCancelled:
		return s.Muted.Render("∅")
	default:
		return s.Status.Render("●")
	}
}

func rateLimitNotice(delay time.Duration, attempt, maxRetries int) string {
	return fmt.Sprintf("Rate limited, retrying in %s (attempt %d/%d)", delay.Round(time.Second), attempt, maxRetries)
}

func trimNotice(removed int) string {
	return fmt.Sprintf("Trimmed %d old messages to fit the context window", removed)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
