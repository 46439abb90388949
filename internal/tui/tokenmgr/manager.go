// Package tokenmgr is the interactive scope picker behind
// `docscribe config token create`.
package tokenmgr

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/docscribe/internal/auth"
)

var (
	titleStyle      = lipgloss.NewStyle().MarginLeft(2)
	paginationStyle = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	helpStyle       = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)
	quitTextStyle   = lipgloss.NewStyle().Margin(1, 0, 2, 4)
)

// Scope is a selectable bearer-token scope.
type Scope struct {
	Name        string
	Description string
}

// Scopes lists every scope the API checks.
var Scopes = []Scope{
	{auth.ScopeAll, "Full administrative access (all scopes)"},
	{auth.ScopeJobsRead, "Read job status and results"},
	{auth.ScopeJobsWrite, "Claim and complete analysis jobs (implies jobs:ro)"},
	{auth.ScopeMetrics, "Read request metrics and the Prometheus endpoint"},
	{auth.ScopeEvents, "Subscribe to the activity stream (SSE)"},
}

type item struct {
	scope    Scope
	selected bool
}

func (i item) Title() string {
	check := "[ ]"
	if i.selected {
		check = "[x]"
	}
	return fmt.Sprintf("%s %s", check, i.scope.Name)
}
func (i item) Description() string { return i.scope.Description }
func (i item) FilterValue() string { return i.scope.Name }

// Picker is a bubbletea model for toggling scopes.
type Picker struct {
	list     list.Model
	quitting bool
	done     bool
	scopes   []string
}

// New builds a picker with the given scopes preselected.
func New(preselected ...string) *Picker {
	chosen := make(map[string]bool, len(preselected))
	for _, s := range preselected {
		chosen[s] = true
	}

	items := make([]list.Item, 0, len(Scopes))
	for _, s := range Scopes {
		items = append(items, item{scope: s, selected: chosen[s.Name]})
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Select Scopes (Space to toggle, Enter to confirm)"
	l.Styles.Title = titleStyle
	l.Styles.PaginationStyle = paginationStyle
	l.Styles.HelpStyle = helpStyle

	return &Picker{list: l}
}

func (m Picker) Init() tea.Cmd {
	return nil
}

func (m Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit

		case " ":
			if i, ok := m.list.SelectedItem().(item); ok {
				i.selected = !i.selected
				m.list.SetItem(m.list.Index(), i)
			}
			return m, nil

		case "enter":
			m.done = true
			m.scopes = selectedScopes(m.list.Items())
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Picker) View() string {
	if m.quitting {
		return quitTextStyle.Render("Cancelled.")
	}
	if m.done {
		return quitTextStyle.Render(fmt.Sprintf("Selected scopes: %s", strings.Join(m.scopes, ", ")))
	}
	return "\n" + m.list.View()
}

// Confirmed reports whether the user pressed enter rather than quitting.
func (m Picker) Confirmed() bool { return m.done }

// SelectedScopes returns the scopes chosen at confirmation.
func (m Picker) SelectedScopes() []string { return m.scopes }

func selectedScopes(items []list.Item) []string {
	var out []string
	for _, li := range items {
		if it, ok := li.(item); ok && it.selected {
			out = append(out, it.scope.Name)
		}
	}
	return out
}

