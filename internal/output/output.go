// Package output provides styled terminal output helpers (success, error,
// warning, task and ledger formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/marcus/desk/internal/models"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	priorityStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	statusStyles  = map[models.TaskStatus]lipgloss.Style{
		models.TaskStatusNew:        lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.TaskStatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.TaskStatusCompleted:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.TaskStatusCanceled:   lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
)

// Success prints a success message
func Success(format string, args ...any) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...any) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// JSON outputs data as JSON
func JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// FormatStatus formats a task status with color
func FormatStatus(s models.TaskStatus) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatPriority formats a priority
func FormatPriority(p models.Priority) string {
	if p == "" {
		return ""
	}
	return priorityStyle.Render(fmt.Sprintf("[%s]", p))
}

// FormatMoney renders an amount with thousands separators and two
// decimals, e.g. "1,250.75 KZT".
func FormatMoney(d decimal.Decimal, currency string) string {
	fixed := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	w, _ := decimal.NewFromString(whole)
	s := humanize.Comma(w.IntPart()) + "." + frac
	if d.IsNegative() {
		s = "-" + s
	}
	if currency != "" {
		s += " " + currency
	}
	return s
}

// FormatTaskShort formats a task in one line
func FormatTaskShort(t *models.Task) string {
	parts := []string{titleStyle.Render(t.ID)}
	if p := FormatPriority(t.Priority); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, t.Title)
	if t.ClientName != "" {
		parts = append(parts, subtleStyle.Render(t.ClientName))
	}
	parts = append(parts, FormatStatus(t.Status))
	if t.IsConfirmed() {
		parts = append(parts, successStyle.Render("✓ confirmed"))
	}
	return strings.Join(parts, "  ")
}

// FormatTaskLong formats a task with its details and history. engineer
// is the assignee's display name, if any.
func FormatTaskLong(t *models.Task, engineer string) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s: %s", t.ID, t.Title)))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Status: %s", FormatStatus(t.Status))
	if t.Priority != "" {
		fmt.Fprintf(&sb, " | Priority: %s", t.Priority)
	}
	if t.Deadline != "" {
		fmt.Fprintf(&sb, " | Deadline: %s", t.Deadline)
	}
	sb.WriteString("\n")

	if t.ClientName != "" {
		fmt.Fprintf(&sb, "Client: %s\n", t.ClientName)
	}
	if t.Address != "" {
		fmt.Fprintf(&sb, "Address: %s\n", t.Address)
	}
	if engineer != "" {
		fmt.Fprintf(&sb, "Engineer: %s\n", engineer)
	}
	if c := t.ClientConfirmation; c != nil && c.IsConfirmed {
		fmt.Fprintf(&sb, "Confirmed: %s (rating %d/5)\n", c.ConfirmedAt.Local().Format("2006-01-02 15:04"), c.Rating)
	}

	if t.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(subtleStyle.Render("Description:"))
		sb.WriteString("\n")
		sb.WriteString(t.Description)
		sb.WriteString("\n")
	}

	if len(t.Attachments) > 0 {
		sb.WriteString(SectionHeader("attachments"))
		sb.WriteString(strings.Join(BulletList(t.Attachments, 2), "\n"))
		sb.WriteString("\n")
	}

	if len(t.History) > 0 {
		sb.WriteString(SectionHeader("history"))
		for _, h := range t.History {
			fmt.Fprintf(&sb, "  [%s] %s: %s\n",
				h.CreatedAt.Local().Format("01-02 15:04"), h.UserName, h.Action)
		}
	}

	return sb.String()
}

// FormatMessage formats a chat message with resolved display names.
func FormatMessage(m models.ChatMessage, from, to string) string {
	head := titleStyle.Render(from)
	if to != "" {
		head += subtleStyle.Render(" → " + to)
	}
	text := m.Text
	if m.Type == models.MessageImage {
		text = strings.TrimSpace("[image] " + m.AttachmentURL + " " + m.Text)
	}
	unread := ""
	if m.ReceiverID != "" && !m.IsRead {
		unread = warningStyle.Render(" •")
	}
	return fmt.Sprintf("%s %s%s: %s", subtleStyle.Render(m.CreatedAt.Local().Format("01-02 15:04")), head, unread, text)
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if time.Since(t) < time.Minute {
		return "just now"
	}
	return humanize.Time(t)
}

// StatusBadge returns a status indicator with symbol
// e.g., "○ New", "▶ In-Progress", "✓ Completed", "✗ Canceled"
func StatusBadge(status models.TaskStatus) string {
	symbols := map[models.TaskStatus]string{
		models.TaskStatusNew:        "○",
		models.TaskStatusInProgress: "▶",
		models.TaskStatusCompleted:  "✓",
		models.TaskStatusCanceled:   "✗",
	}
	symbol, ok := symbols[status]
	if !ok {
		symbol = "?"
	}
	if style, ok := statusStyles[status]; ok {
		return style.Render(fmt.Sprintf("%s %s", symbol, status))
	}
	return fmt.Sprintf("%s %s", symbol, status)
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nHISTORY:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

// BulletList formats items as a bulleted list with optional indentation
func BulletList(items []string, indent int) []string {
	prefix := strings.Repeat(" ", indent)
	result := make([]string, len(items))
	for i, item := range items {
		result[i] = prefix + "- " + item
	}
	return result
}
