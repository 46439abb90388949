package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/docscribe/internal/events"
)

func renderEventStream(eventLog []events.Event, st Styles, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			st.PanelTitle.Render("ACTIVITY"),
			st.Muted.Render("  Waiting for deliveries..."),
		)
		return st.Panel.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, st))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		st.PanelTitle.Render("ACTIVITY"),
		eventsText,
	)

	return st.Panel.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, st Styles) string {
	ts := st.Muted.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.TypeWebhookCompleted, events.TypeJobCompleted:
		typeStyle = st.Good
	case events.TypeWebhookFailed:
		typeStyle = st.Bad
	case events.TypeWebhookRejected, events.TypeJobRequeued:
		typeStyle = st.Idle
	case events.TypeJobClaimed:
		typeStyle = st.Warn
	default:
		typeStyle = st.Muted
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-18s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, extractEventDesc(e))
}

func extractEventDesc(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string

	if source, ok := data["source"].(string); ok {
		parts = append(parts, source)
	}
	if eventType, ok := data["event_type"].(string); ok {
		parts = append(parts, eventType)
	}
	if jobID, ok := data["job_id"].(string); ok {
		if len(jobID) > 8 {
			jobID = jobID[:8]
		}
		parts = append(parts, fmt.Sprintf("[%s]", jobID))
	}
	if kind, ok := data["kind"].(string); ok {
		parts = append(parts, kind)
	}
	if outcome, ok := data["outcome"].(string); ok && outcome != "completed" {
		parts = append(parts, outcome)
	}
	if status, ok := data["status"].(string); ok {
		parts = append(parts, status)
	}
	if reason, ok := data["reason"].(string); ok {
		parts = append(parts, "("+reason+")")
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	return strings.Join(parts, " ")
}
