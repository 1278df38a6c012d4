package util

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// AppName is used for the logger prefix, the data directory and the lock file.
const AppName = "9anime-dl"

var (
	IsDebug bool

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true).
			Underline(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4757")).
			Bold(true)

	debugErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF4757")).
			Padding(1, 2)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA726")).
			Bold(true)

	// PromptStyle is shared with the episode range prompt.
	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF69B4")).
			Bold(true)

	// DefaultStyle highlights the default answer of a prompt.
	DefaultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)
)

// SetDebugMode sets the debug mode
func SetDebugMode(debug bool) {
	IsDebug = debug
}

// Title renders the show banner printed before the range prompt.
func Title(name string) string {
	return titleStyle.Render("Downloading: " + name)
}

// Success renders a success line.
func Success(msg string) string {
	return successStyle.Render("✓ " + msg)
}

// ErrorHandler returns a stylized error message
func ErrorHandler(err error) string {
	if IsDebug {
		styledHeader := errorStyle.Render("🚨 DEBUG ERROR 🔍")
		styledError := debugErrorStyle.Render(fmt.Sprintf("%+v", err))

		return fmt.Sprintf("%s\n%s", styledHeader, styledError)
	}

	styledError := errorStyle.Render(fmt.Sprintf("❌ %v", err))
	styledHint := warningStyle.Render("💡 set ANIDL_DEBUG=true to see details")

	return fmt.Sprintf("%s\n%s", styledError, styledHint)
}
