package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorNavy  = lipgloss.Color("#1B2A4A")
	ColorWhite = lipgloss.Color("#FFFFFF")
	ColorGray  = lipgloss.Color("8")
	ColorGreen = lipgloss.Color("#44CC44")
	ColorRed   = lipgloss.Color("#FF4444")
	ColorAmber = lipgloss.Color("#FFAA00")
	ColorBlue  = lipgloss.Color("39")
)

var (
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray).
			Padding(0, 1)

	activeSectionStyle = sectionStyle.
				BorderForeground(ColorBlue)

	chartTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("7"))

	helpStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(ColorRed)
)

// stateStyle colours a file state label.
func stateStyle(done, failed bool) lipgloss.Style {
	switch {
	case failed:
		return lipgloss.NewStyle().Foreground(ColorRed)
	case done:
		return lipgloss.NewStyle().Foreground(ColorGreen)
	default:
		return lipgloss.NewStyle().Foreground(ColorAmber)
	}
}
