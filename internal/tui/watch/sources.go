package watch

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/docscribe/internal/events"
)

// SourceState tallies webhook outcomes seen on the activity feed for one source.
type SourceState struct {
	Name      string
	Completed int
	Rejected  int
	Failed    int
	LastEvent string
	LastSeen  time.Time
}

// updateSourceState folds a webhook activity event into the per-source tallies.
// Job events are ignored.
func updateSourceState(sources map[string]*SourceState, e events.Event) {
	if !strings.HasPrefix(e.Type, "webhook.") {
		return
	}

	var data struct {
		Source    string `json:"source"`
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil || data.Source == "" {
		return
	}

	s, ok := sources[data.Source]
	if !ok {
		s = &SourceState{Name: data.Source}
		sources[data.Source] = s
	}

	switch e.Type {
	case events.TypeWebhookCompleted:
		s.Completed++
	case events.TypeWebhookRejected:
		s.Rejected++
	case events.TypeWebhookFailed:
		s.Failed++
	}
	s.LastEvent = data.EventType
	s.LastSeen = e.At
}

func renderSources(sources map[string]*SourceState, st Styles, width int) string {
	innerWidth := width - 4

	if len(sources) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			st.PanelTitle.Render("WEBHOOK SOURCES"),
			st.Muted.Render("  No deliveries since connecting"),
		)
		return st.Panel.Width(innerWidth).Render(content)
	}

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	slices.Sort(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		s := sources[name]
		last := ""
		if !s.LastSeen.IsZero() {
			last = st.Muted.Render(fmt.Sprintf("%s %s", s.LastEvent, s.LastSeen.Format("15:04:05")))
		}
		lines = append(lines, fmt.Sprintf(" %-12s %s %s %s  %s",
			name,
			st.Good.Render(fmt.Sprintf("✓%d", s.Completed)),
			st.Idle.Render(fmt.Sprintf("✗%d", s.Rejected)),
			st.Bad.Render(fmt.Sprintf("!%d", s.Failed)),
			last,
		))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		st.PanelTitle.Render("WEBHOOK SOURCES"),
		strings.Join(lines, "\n"),
	)
	return st.Panel.Width(innerWidth).Render(content)
}
