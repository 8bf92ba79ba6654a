package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.Color("#0EA5E9")
	good   = lipgloss.Color("#22C55E")
	warn   = lipgloss.Color("#EAB308")
	bad    = lipgloss.Color("#DC2626")
	dim    = lipgloss.Color("#71717A")
	bright = lipgloss.Color("#FAFAFA")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(dim).Width(14)
	valueStyle = lipgloss.NewStyle().Foreground(bright)
	helpStyle  = lipgloss.NewStyle().Foreground(dim).MarginTop(1)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(dim).Padding(1, 2)

	counterStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Width(18).
			Align(lipgloss.Center)
)

// stateColor colors a supervisor state: healthy states green, transitional
// ones yellow, a dropped connection red.
func stateColor(state string) lipgloss.Color {
	switch state {
	case "streaming", "stopped":
		return good
	case "connecting", "closing":
		return warn
	case "disconnected":
		return bad
	default:
		return bright
	}
}

// counterColor picks the color for a counter box. Failure counters turn
// red only when non-zero.
func counterColor(value int64, failure bool) lipgloss.Color {
	switch {
	case failure && value > 0:
		return bad
	case failure:
		return good
	default:
		return accent
	}
}
