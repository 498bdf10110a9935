package output

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/marcus/desk/internal/models"
)

const (
	defaultMarkdownWidth = 80
	minMarkdownWidth     = 20
)

// TerminalWidth returns the current terminal width or a fallback when unavailable.
func TerminalWidth(fallback int) int {
	if fallback <= 0 {
		fallback = defaultMarkdownWidth
	}
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && cols > 0 {
		return cols
	}
	return fallback
}

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// RenderMarkdown renders a task description for the terminal in the
// saved theme. An empty theme picks a style from the terminal background.
func RenderMarkdown(text string, theme models.Theme) (string, error) {
	return RenderMarkdownWithWidth(text, theme, TerminalWidth(defaultMarkdownWidth))
}

// RenderMarkdownWithWidth renders markdown with explicit wrapping.
func RenderMarkdownWithWidth(text string, theme models.Theme, width int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	width = max(width, minMarkdownWidth)

	style := glamour.WithAutoStyle()
	switch theme {
	case models.ThemeLight:
		style = glamour.WithStandardStyle("light")
	case models.ThemeDark:
		style = glamour.WithStandardStyle("dark")
	}

	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return "", err
	}
	rendered, err := renderer.Render(text)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(rendered, "\n"), nil
}
