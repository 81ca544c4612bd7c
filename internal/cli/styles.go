package cli

import "github.com/charmbracelet/lipgloss"

const (
	userColor      = "#7C3AED" // Purple
	assistantColor = "#10B981" // Green
	stateColor     = "#F59E0B" // Amber
	errorColor     = "#EF4444" // Red
	dimColor       = "#6B7280" // Gray
)

// Style variables for consistent terminal rendering.
var (
	// UserStyle labels the user's side of the transcript.
	UserStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(userColor)).
			Bold(true)

	// AssistantStyle labels the companion's side of the transcript.
	AssistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(assistantColor)).
			Bold(true)

	// StateStyle renders session state announcements.
	StateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(stateColor))

	// ErrorStyle renders error messages in red.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(errorColor))

	// DimStyle renders dim/muted text such as timestamps and hints.
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(dimColor))
)
