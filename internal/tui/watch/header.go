package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks service health from /healthz polling.
type HealthState struct {
	Status         string
	UptimeSeconds  int64
	QueueDepth     int
	RequestCount   int64
	WebhookSources int
	Connected      bool
	LastCheck      time.Time
}

func renderHeader(health HealthState, ticker Ticker, pulse Pulse, connecting string, st Styles, width int) string {
	innerWidth := width - 4

	// Status
	statusText := st.Good.Render("HEALTHY")
	statusIcon := "✅"
	if !health.Connected {
		statusText = st.Bad.Render("CONNECTING")
		statusIcon = connecting
	} else if health.Status != "ok" && health.Status != "" {
		statusText = st.Bad.Render("DEGRADED")
		statusIcon = "⚠️"
	}

	// Uptime
	uptime := time.Duration(health.UptimeSeconds) * time.Second
	uptimeStr := formatDuration(uptime)

	// Last event
	lastEventStr := "never"
	if !pulse.LastEvent().IsZero() {
		ago := time.Since(pulse.LastEvent()).Round(time.Second)
		lastEventStr = fmt.Sprintf("%s ago", ago)
	}

	// Title line with ticker and clock
	tickerStr := st.Accent.Render(ticker.Current())
	clock := st.Muted.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" DOCSCRIBE WATCH %s", tickerStr)

	// Calculate padding between title and clock
	titleWidth := lipgloss.Width(titleText)
	clockWidth := lipgloss.Width(clock)
	pad := innerWidth - titleWidth - clockWidth - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	// Stats line
	statsLine := fmt.Sprintf(" %s %s  ⏱ %s  Queue: %d  Requests: %d  Sources: %d",
		statusIcon, statusText,
		uptimeStr,
		health.QueueDepth,
		health.RequestCount,
		health.WebhookSources,
	)

	// Activity line
	activityLine := fmt.Sprintf(" Last event: %s %s",
		lastEventStr,
		pulse.Render(st),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
		activityLine,
	)

	return st.Panel.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
