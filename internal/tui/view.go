package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/omochice/linkchat/internal/session"
)

var (
	accent = lipgloss.Color("51")
	muted  = lipgloss.Color("244")
	danger = lipgloss.Color("203")
	online = lipgloss.Color("42")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	errorStyle   = lipgloss.NewStyle().Foreground(danger)
	onlineStyle  = lipgloss.NewStyle().Foreground(online)
	senderStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	spinnerStyle = lipgloss.NewStyle().Foreground(accent)

	sidebarStyle = lipgloss.NewStyle().
			Width(sidebarWidth).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent)
	mainStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted)
)

// View renders the whole screen.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	sidebar := sidebarStyle.Height(m.height - 2).Render(renderRoster(m.state))

	main := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatus(),
		mainStyle.Render(m.viewport.View()),
		mainStyle.Render(m.input.View()),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, main)
}

func (m Model) renderStatus() string {
	var status string
	switch m.state.Phase {
	case session.PhaseJoined:
		status = onlineStyle.Render("● linked as " + m.engine.Identity())
	case session.PhaseConnecting:
		status = m.spinner.View() + " connecting as " + m.engine.Identity()
	default:
		status = errorStyle.Render("○ disconnected")
	}
	if m.state.LastError != "" {
		status += "  " + errorStyle.Render("ERROR: "+m.state.LastError)
	}
	return status
}

func renderRoster(st session.State) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("NEURAL LINK"))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%d nodes active", len(st.Roster))))
	b.WriteString("\n\n")

	for _, p := range st.Roster {
		marker := mutedStyle.Render("○")
		if p.Online {
			marker = onlineStyle.Render("●")
		}
		b.WriteString(marker + " " + p.Name + "\n")
	}
	return b.String()
}

func renderTranscript(st session.State, width int) string {
	if len(st.Transcript) == 0 {
		return mutedStyle.Render("No transmissions yet. Type below and press Enter.")
	}

	body := lipgloss.NewStyle().Width(max(width-2, 10))
	lines := make([]string, 0, len(st.Transcript))
	for _, msg := range st.Transcript {
		p := st.Participant(msg.Sender)
		header := senderStyle.Render(p.Name)
		if !p.Online {
			header += " " + mutedStyle.Render("(offline)")
		}
		if ts := formatTimestamp(msg.SentAt); ts != "" {
			header += " " + mutedStyle.Render(ts)
		}
		lines = append(lines, header+"\n"+body.Render(session.DisplayBody(msg.Body)))
	}
	return strings.Join(lines, "\n\n")
}

// formatTimestamp shortens RFC 3339 timestamps and passes anything else
// through unchanged.
func formatTimestamp(raw string) string {
	if raw == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.Local().Format("15:04")
}
