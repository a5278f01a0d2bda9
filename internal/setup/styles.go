package setup

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	spotifyGreen = lipgloss.Color("#1DB954")
	dimGray      = lipgloss.Color("#6B7280")
	lightGray    = lipgloss.Color("#9CA3AF")
	white        = lipgloss.Color("#F9FAFB")
	red          = lipgloss.Color("#EF4444")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(white).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lightGray)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimGray)

	errorStyle = lipgloss.NewStyle().
			Foreground(red)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(spotifyGreen).
			Padding(1, 2)
)
