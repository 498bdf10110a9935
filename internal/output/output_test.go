package output

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marcus/desk/internal/models"
)

func TestFormatTimeAgo(t *testing.T) {
	now := time.Now()
	if got := FormatTimeAgo(time.Time{}); got != "never" {
		t.Errorf("zero time = %q, want never", got)
	}
	for _, tm := range []time.Time{now, now.Add(-30 * time.Second), now.Add(-59 * time.Second)} {
		if got := FormatTimeAgo(tm); got != "just now" {
			t.Errorf("FormatTimeAgo(%v) = %q, want 'just now'", tm, got)
		}
	}
	if got := FormatTimeAgo(now.Add(-5 * time.Minute)); !strings.Contains(got, "minutes ago") {
		t.Errorf("5m ago = %q", got)
	}
	if got := FormatTimeAgo(now.Add(-3 * time.Hour)); !strings.Contains(got, "hours ago") {
		t.Errorf("3h ago = %q", got)
	}
}

func TestFormatStatus(t *testing.T) {
	tests := []struct {
		status   models.TaskStatus
		contains string
	}{
		{models.TaskStatusNew, "New"},
		{models.TaskStatusInProgress, "In-Progress"},
		{models.TaskStatusCompleted, "Completed"},
		{models.TaskStatusCanceled, "Canceled"},
	}
	for _, tc := range tests {
		got := FormatStatus(tc.status)
		if !strings.Contains(got, tc.contains) || !strings.Contains(got, "[") {
			t.Errorf("FormatStatus(%q) = %q", tc.status, got)
		}
	}
	if got := FormatStatus("Archived"); got != "Archived" {
		t.Errorf("unknown status = %q, want raw value", got)
	}
}

func TestFormatPriority(t *testing.T) {
	if got := FormatPriority(models.PriorityHigh); !strings.Contains(got, "[High]") {
		t.Errorf("FormatPriority = %q", got)
	}
	if got := FormatPriority(""); got != "" {
		t.Errorf("empty priority = %q", got)
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in       string
		currency string
		want     string
	}{
		{"0", "KZT", "0.00 KZT"},
		{"1250.75", "KZT", "1,250.75 KZT"},
		{"1234567.5", "", "1,234,567.50"},
		{"-549.505", "USD", "-549.51 USD"},
		{"999.999", "", "1,000.00"},
	}
	for _, tc := range tests {
		got := FormatMoney(decimal.RequireFromString(tc.in), tc.currency)
		if got != tc.want {
			t.Errorf("FormatMoney(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatTaskShort(t *testing.T) {
	task := &models.Task{
		ID:         "T-1001",
		Title:      "Replace router",
		ClientName: "Alpha LLP",
		Status:     models.TaskStatusCompleted,
		Priority:   models.PriorityHigh,
		ClientConfirmation: &models.Confirmation{
			IsConfirmed: true,
			Rating:      4,
		},
	}
	got := FormatTaskShort(task)
	for _, want := range []string{"T-1001", "[High]", "Replace router", "Alpha LLP", "[Completed]", "confirmed"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatTaskShort missing %q: %q", want, got)
		}
	}

	task.ClientConfirmation = nil
	task.Priority = ""
	if got := FormatTaskShort(task); strings.Contains(got, "confirmed") || strings.Contains(got, "[]") {
		t.Errorf("unconfirmed task = %q", got)
	}
}

func TestFormatTaskLong(t *testing.T) {
	at := time.Date(2025, 5, 12, 9, 30, 0, 0, time.UTC)
	task := &models.Task{
		ID:          "T-1002",
		Title:       "Install cameras",
		ClientName:  "Beta",
		Address:     "Abay 10",
		Status:      models.TaskStatusInProgress,
		Priority:    models.PriorityMedium,
		Deadline:    "2025-05-20",
		Description: "Four cameras on the roof",
		Attachments: []string{"https://files/plan.pdf"},
		History: []models.HistoryEntry{
			{UserName: "Manager", Action: "Task created", CreatedAt: at},
			{UserName: "Manager", Action: "Assigned to Engineer", CreatedAt: at.Add(time.Hour)},
		},
	}
	got := FormatTaskLong(task, "Engineer")
	for _, want := range []string{
		"T-1002: Install cameras",
		"Priority: Medium",
		"Deadline: 2025-05-20",
		"Client: Beta",
		"Address: Abay 10",
		"Engineer: Engineer",
		"Four cameras on the roof",
		"ATTACHMENTS:",
		"- https://files/plan.pdf",
		"HISTORY:",
		"Manager: Task created",
		"Manager: Assigned to Engineer",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatTaskLong missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Confirmed:") {
		t.Error("unconfirmed task should not show a confirmation line")
	}
}

func TestFormatMessage(t *testing.T) {
	at := time.Date(2025, 5, 12, 9, 30, 0, 0, time.UTC)
	channel := models.ChatMessage{SenderID: "u1", Text: "hi all", CreatedAt: at, Type: models.MessageText}
	got := FormatMessage(channel, "Administrator", "")
	if !strings.Contains(got, "Administrator: hi all") || strings.Contains(got, "→") || strings.Contains(got, "•") {
		t.Errorf("channel message = %q", got)
	}

	direct := models.ChatMessage{SenderID: "u2", ReceiverID: "u3", CreatedAt: at, Type: models.MessageImage, AttachmentURL: "https://x/a.png"}
	got = FormatMessage(direct, "Manager", "Engineer")
	for _, want := range []string{"→ Engineer", "•", "[image] https://x/a.png"} {
		if !strings.Contains(got, want) {
			t.Errorf("direct message missing %q: %q", want, got)
		}
	}
}

func TestStatusBadge(t *testing.T) {
	tests := map[models.TaskStatus]string{
		models.TaskStatusNew:        "○ New",
		models.TaskStatusInProgress: "▶ In-Progress",
		models.TaskStatusCompleted:  "✓ Completed",
		models.TaskStatusCanceled:   "✗ Canceled",
		"Archived":                  "? Archived",
	}
	for status, want := range tests {
		if got := StatusBadge(status); !strings.Contains(got, want) {
			t.Errorf("StatusBadge(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestIndentAndBullets(t *testing.T) {
	if got := IndentString("a\nb", 2); got != "  a\n  b" {
		t.Errorf("IndentString = %q", got)
	}
	if got := IndentString("", 4); got != "" {
		t.Errorf("IndentString empty = %q", got)
	}
	got := BulletList([]string{"x", "y"}, 1)
	if len(got) != 2 || got[0] != " - x" || got[1] != " - y" {
		t.Errorf("BulletList = %q", got)
	}
	if got := SectionHeader("history"); got != "\nHISTORY:\n" {
		t.Errorf("SectionHeader = %q", got)
	}
}

func TestRenderMarkdownEmpty(t *testing.T) {
	got, err := RenderMarkdownWithWidth("   ", models.ThemeDark, 80)
	if err != nil || got != "" {
		t.Fatalf("RenderMarkdownWithWidth(blank) = %q, %v", got, err)
	}
}

func TestRenderMarkdownThemes(t *testing.T) {
	for _, theme := range []models.Theme{models.ThemeLight, models.ThemeDark} {
		got, err := RenderMarkdownWithWidth("**Four** cameras on the roof", theme, 10)
		if err != nil {
			t.Fatalf("theme %s: %v", theme, err)
		}
		if !strings.Contains(got, "Four") || strings.HasSuffix(got, "\n") {
			t.Errorf("theme %s rendered %q", theme, got)
		}
	}
}
