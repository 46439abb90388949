package tokenmgr

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func press(t *testing.T, m tea.Model, keys ...tea.KeyMsg) Picker {
	t.Helper()
	for _, k := range keys {
		m, _ = m.Update(k)
	}
	p, ok := m.(Picker)
	require.True(t, ok)
	return p
}

var (
	space = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	down  = tea.KeyMsg{Type: tea.KeyDown}
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	quit  = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
)

func TestPickerTogglesAndConfirms(t *testing.T) {
	var m tea.Model = *New()
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})

	p := press(t, m, down, space, down, down, space, enter)

	assert.True(t, p.Confirmed())
	assert.Equal(t, []string{"jobs:ro", "metrics:ro"}, p.SelectedScopes())
	assert.Contains(t, p.View(), "Selected scopes: jobs:ro, metrics:ro")
}

func TestPickerPreselectedAndToggleOff(t *testing.T) {
	var m tea.Model = *New("*", "events:ro")
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})

	p := press(t, m, space, enter)

	assert.Equal(t, []string{"events:ro"}, p.SelectedScopes())
}

func TestPickerQuit(t *testing.T) {
	p := press(t, *New(), quit)

	assert.False(t, p.Confirmed())
	assert.Contains(t, p.View(), "Cancelled.")
}

