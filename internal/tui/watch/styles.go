// Package watch implements the `docscribe metrics watch` dashboard: health,
// request metrics and the webhook activity feed of a running service.
package watch

import "github.com/charmbracelet/lipgloss"

// Styles maps dashboard roles to lipgloss styles. Colours adapt to light and
// dark terminals.
type Styles struct {
	// Outcome roles: healthy service, 2xx, completed delivery or job.
	Good lipgloss.Style
	// 4xx, claimed job.
	Warn lipgloss.Style
	// 5xx, failed delivery, degraded or unreachable service.
	Bad lipgloss.Style
	// Rejected delivery or requeued job.
	Idle lipgloss.Style

	Panel      lipgloss.Style
	PanelTitle lipgloss.Style
	ColumnHead lipgloss.Style
	Muted      lipgloss.Style
	Accent     lipgloss.Style

	PulseOn  lipgloss.Style
	PulseOff lipgloss.Style
}

var (
	inkGreen = lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#3FB950"}
	inkAmber = lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#D29922"}
	inkRed   = lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#F85149"}
	inkSlate = lipgloss.AdaptiveColor{Light: "#6E7781", Dark: "#8B949E"}
	inkFaint = lipgloss.AdaptiveColor{Light: "#D0D7DE", Dark: "#30363D"}
	inkTeal  = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#2DD4BF"}
	inkPaper = lipgloss.AdaptiveColor{Light: "#1F2328", Dark: "#E6EDF3"}
)

func defaultStyles() Styles {
	fg := func(c lipgloss.TerminalColor) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(c)
	}

	return Styles{
		Good: fg(inkGreen),
		Warn: fg(inkAmber),
		Bad:  fg(inkRed).Bold(true),
		Idle: fg(inkSlate).Italic(true),

		Panel:      lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(inkTeal),
		PanelTitle: fg(inkPaper).Bold(true),
		ColumnHead: fg(inkTeal).Bold(true),
		Muted:      fg(inkSlate),
		Accent:     fg(inkTeal),

		PulseOn:  fg(inkGreen),
		PulseOff: fg(inkFaint),
	}
}
