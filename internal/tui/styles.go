package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	colorRed       = lipgloss.Color("#ff5555")
	colorGreen     = lipgloss.Color("#50fa7b")
	colorYellow    = lipgloss.Color("#f1fa8c")
	colorBlue      = lipgloss.Color("#8be9fd")
	colorPurple    = lipgloss.Color("#bd93f9")
	colorDim       = lipgloss.Color("#6272a4")
	colorBgLight   = lipgloss.Color("#343746")
	colorFg        = lipgloss.Color("#f8f8f2")
	colorOrange    = lipgloss.Color("#ffb86c")
	colorBorder    = lipgloss.Color("#44475a")
	colorHighlight = lipgloss.Color("#44475a")
)

// Style definitions.
var (
	// Issue list styles
	issueListStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	issueItemStyle = lipgloss.NewStyle().
			Foreground(colorFg)

	issueItemCursorStyle = lipgloss.NewStyle().
				Foreground(colorFg).
				Background(colorHighlight).
				Bold(true)

	issueFixedStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Strikethrough(true)

	categoryHeaderStyle = lipgloss.NewStyle().
				Foreground(colorPurple).
				Bold(true)

	// Severity styles
	severityCriticalStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Bold(true)

	severityHighStyle = lipgloss.NewStyle().
				Foreground(colorOrange)

	severityMediumStyle = lipgloss.NewStyle().
				Foreground(colorYellow)

	severityLowStyle = lipgloss.NewStyle().
				Foreground(colorBlue)

	// Score panel styles
	scorePanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	scoreGoodStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	scoreFairStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	scorePoorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	deltaUpStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	deltaDownStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	// Detail pane
	detailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	suggestionStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	panelHeaderStyle = lipgloss.NewStyle().
				Foreground(colorBlue).
				Bold(true).
				Padding(0, 0, 1, 0)

	// Diff view
	diffAddedStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	diffDeletedStyle = lipgloss.NewStyle().
				Foreground(colorRed)

	diffContextStyle = lipgloss.NewStyle().
				Foreground(colorFg)

	diffHunkStyle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	// Status bar
	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Background(colorBgLight).
			Padding(0, 1)

	statusErrorStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Background(colorBgLight).
				Bold(true)

	// Help
	helpBarStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow)
)

func severityStyle(s string) lipgloss.Style {
	switch s {
	case "critical":
		return severityCriticalStyle
	case "high":
		return severityHighStyle
	case "medium":
		return severityMediumStyle
	default:
		return severityLowStyle
	}
}

func scoreStyle(score float64) lipgloss.Style {
	switch {
	case score >= 80:
		return scoreGoodStyle
	case score >= 60:
		return scoreFairStyle
	default:
		return scorePoorStyle
	}
}
