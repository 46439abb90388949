package watch

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/docscribe/internal/metrics"
)

const maxRouteRows = 8

// routeRows orders routes by request count, busiest first. Ties sort by key
// so the table does not jitter between polls.
func routeRows(byPath map[string]int64) []table.Row {
	keys := make([]string, 0, len(byPath))
	for k := range byPath {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(byPath[b], byPath[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	rows := make([]table.Row, 0, len(keys))
	for _, k := range keys {
		method, path, _ := strings.Cut(k, ":")
		rows = append(rows, table.Row{method, path, strconv.FormatInt(byPath[k], 10)})
	}
	return rows
}

func newRouteTable(st Styles) table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Method", Width: 8},
			{Title: "Path", Width: 40},
			{Title: "Requests", Width: 10},
		}),
		table.WithHeight(maxRouteRows),
		table.WithWidth(62),
		table.WithFocused(true),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(st.ColumnHead.GetForeground()).Bold(true)
	styles.Selected = styles.Selected.Foreground(st.Accent.GetForeground()).Bold(false)
	t.SetStyles(styles)
	return t
}

// formatStatusCodes renders status counts in ascending code order.
func formatStatusCodes(codes map[int]int64, st Styles) string {
	if len(codes) == 0 {
		return st.Muted.Render("no completed requests")
	}

	keys := make([]int, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, code := range keys {
		style := st.Good
		switch {
		case code >= 500:
			style = st.Bad
		case code >= 400:
			style = st.Warn
		}
		parts = append(parts, fmt.Sprintf("%s×%d", style.Render(strconv.Itoa(code)), codes[code]))
	}
	return strings.Join(parts, "  ")
}

func renderRoutes(snap metrics.Snapshot, routes table.Model, st Styles, width int) string {
	innerWidth := width - 4

	summary := fmt.Sprintf(" Completed: %d  Avg: %.4fs  Codes: %s",
		snap.RequestCount,
		snap.AverageRequestTime,
		formatStatusCodes(snap.StatusCodes, st),
	)

	body := routes.View()
	if len(snap.RequestsByPath) == 0 {
		body = st.Muted.Render("  No requests yet")
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		st.PanelTitle.Render("REQUESTS"),
		summary,
		body,
	)
	return st.Panel.Width(innerWidth).Render(content)
}
