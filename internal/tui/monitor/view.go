package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/cellbuf"
	"github.com/dustin/go-humanize"

	"github.com/marcus/desk/internal/models"
	desksync "github.com/marcus/desk/internal/sync"
)

var statusOrder = []models.TaskStatus{
	models.TaskStatusNew,
	models.TaskStatusInProgress,
	models.TaskStatusCompleted,
	models.TaskStatusCanceled,
}

// renderView renders the complete TUI view
func (m Model) renderView() string {
	if m.Width == 0 || m.Height == 0 {
		return "Loading..."
	}

	if m.Width < MinWidth || m.Height < MinHeight {
		return m.renderCompact()
	}

	if m.ShowHelp {
		return m.renderHelp()
	}

	panels := lipgloss.JoinVertical(lipgloss.Left,
		m.renderSyncPanel(),
		m.renderDataPanel(),
		m.renderChatPanel(),
	)
	return lipgloss.JoinVertical(lipgloss.Left, panels, m.renderFooter())
}

// renderCompact renders a minimal view for small terminals
func (m Model) renderCompact() string {
	var s strings.Builder
	s.WriteString("desk watch (resize for full view)\n\n")
	s.WriteString(formatConnectivity(m.Status.Status))
	s.WriteString("\n")
	fmt.Fprintf(&s, "Tasks: %d | Unread: %d\n", m.Counts.Tasks, m.Unread)
	s.WriteString("\nq:quit r:resync ?:help")
	return s.String()
}

func (m Model) renderSyncPanel() string {
	var b strings.Builder

	line := formatConnectivity(m.Status.Status)
	if m.Resyncing || m.Status.Status == desksync.StatusChecking {
		line = m.spinner.View() + " " + line
	}
	if !m.Status.ChangedAt.IsZero() {
		line += timestampStyle.Render("  since " + humanize.Time(m.Status.ChangedAt))
	}
	b.WriteString(line + "\n")

	b.WriteString(subtleStyle.Render("Last sync: "))
	if m.LastSync.IsZero() {
		b.WriteString("never")
	} else {
		b.WriteString(humanize.Time(m.LastSync))
	}
	b.WriteString("\n")

	b.WriteString(subtleStyle.Render("Push:      "))
	switch {
	case m.PushPending:
		b.WriteString(unreadStyle.Render("pending"))
	case m.LastPush.IsZero():
		b.WriteString("idle")
	default:
		b.WriteString("pushed " + humanize.Time(m.LastPush))
	}
	b.WriteString("\n")

	width := m.contentWidth()
	for _, err := range []error{m.SyncErr, m.Status.LastErr, m.LastPushErr} {
		if err != nil {
			b.WriteString(errorStyle.Render(ansi.Truncate(err.Error(), width, "…")))
			b.WriteString("\n")
			break
		}
	}
	return m.wrapPanel("SYNC", b.String())
}

func (m Model) renderDataPanel() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Clients %d  Accounts %d  Transactions %d  Messages %d\n",
		m.Counts.Clients, m.Counts.Accounts, m.Counts.Transactions, m.Counts.Messages)

	parts := make([]string, 0, len(statusOrder))
	for _, s := range statusOrder {
		parts = append(parts, fmt.Sprintf("%s %d", formatTaskStatus(s), m.ByStatus[s]))
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("Tasks %d", m.Counts.Tasks)))
	b.WriteString("  " + strings.Join(parts, "  ") + "\n")
	return m.wrapPanel("DATA", b.String())
}

func (m Model) renderChatPanel() string {
	var b strings.Builder
	width := m.contentWidth()

	if len(m.Chat) == 0 {
		b.WriteString(subtleStyle.Render("No messages"))
		b.WriteString("\n")
	}
	for _, c := range m.Chat {
		head := timestampStyle.Render(c.At.Local().Format("15:04")) + " " + senderStyle.Render(c.From)
		if c.To != "channel" {
			head += subtleStyle.Render(" → " + c.To)
		}
		if c.Unread {
			head += unreadStyle.Render(" •")
		}
		b.WriteString(head + "\n")
		b.WriteString(cellbuf.Wrap("  "+c.Text, width, " "))
		b.WriteString("\n")
	}

	if m.Composing {
		b.WriteString("\n" + m.input.View() + "\n")
	} else if m.Notice != "" {
		b.WriteString("\n" + subtleStyle.Render(m.Notice) + "\n")
	}

	title := "CHAT"
	if m.Unread > 0 {
		title = fmt.Sprintf("CHAT (%d unread)", m.Unread)
	}
	return m.wrapPanel(title, b.String())
}

func (m Model) contentWidth() int {
	return max(10, m.Width-4)
}

// wrapPanel wraps content in a bordered panel with title
func (m Model) wrapPanel(title, content string) string {
	titleStr := panelTitleStyle.Render(title)
	return panelStyle.
		Width(m.Width - 2).
		Render(titleStr + "\n" + strings.TrimRight(content, "\n"))
}

// renderFooter renders the footer with key bindings and refresh time
func (m Model) renderFooter() string {
	keys := helpStyle.Render("q:quit r:resync p:push c:compose m:mark read ?:help")
	refresh := ""
	if !m.LastRefresh.IsZero() {
		refresh = timestampStyle.Render(fmt.Sprintf(" | %s", m.LastRefresh.Format("15:04:05")))
	}
	return keys + refresh
}

// renderHelp renders the help overlay
func (m Model) renderHelp() string {
	help := `
DESK WATCH - Keyboard Shortcuts

  r     Resync from the remote now
  p     Push local edits now
  c     Compose a channel message (enter sends, esc cancels)
  m     Mark direct messages to you as read
  ?     Toggle help
  q     Quit

Local edits are pushed a few seconds after the last change while
online. Messages arrive in realtime.

Press ? to close help
`
	return lipgloss.Place(m.Width, m.Height, lipgloss.Center, lipgloss.Center,
		panelStyle.Render(help))
}
