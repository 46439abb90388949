package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/docscribe/internal/events"
	"github.com/mattjoyce/docscribe/internal/metrics"
)

const pollInterval = 2 * time.Second

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	// State
	health   HealthState
	snapshot metrics.Snapshot
	sources  map[string]*SourceState
	eventLog []events.Event

	// Live indicators
	ticker     Ticker
	pulse      Pulse
	connecting spinner.Model

	// UI state
	styles Styles
	routes table.Model

	// Communication
	hubEvents chan events.Event

	// Error display
	lastError string
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) *Model {
	st := defaultStyles()
	return &Model{
		apiURL:     apiURL,
		apiKey:     apiKey,
		sources:    make(map[string]*SourceState),
		eventLog:   make([]events.Event, 0),
		hubEvents:  make(chan events.Event, 100),
		ticker:     NewTicker(),
		pulse:      NewPulse(),
		connecting: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(st.Accent)),
		styles:     st,
		routes:     newRouteTable(st),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
		func() tea.Msg { return fetchMetrics(m.apiURL, m.apiKey) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		m.connecting.Tick,
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.routes, cmd = m.routes.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if w := msg.Width - 30; w > 20 {
			cols := m.routes.Columns()
			cols[1].Width = w
			m.routes.SetColumns(cols)
			m.routes.SetWidth(w + 22)
		}

	case spinner.TickMsg:
		if m.health.Connected {
			return m, nil
		}
		var cmd tea.Cmd
		m.connecting, cmd = m.connecting.Update(msg)
		return m, cmd

	case tickMsg:
		m.ticker.Tick()
		m.pulse.Decay()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)

		// Newest first.
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > 50 {
			m.eventLog = m.eventLog[:50]
		}

		m.pulse.OnEvent()
		updateSourceState(m.sources, e)

		m.health.Connected = true
		m.lastError = ""

		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.QueueDepth = msg.QueueDepth
		m.health.RequestCount = msg.RequestCount
		m.health.WebhookSources = msg.WebhookSources
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""

		return m, tea.Tick(pollInterval, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})

	case metricsMsg:
		m.snapshot = metrics.Snapshot(msg)
		m.routes.SetRows(routeRows(m.snapshot.RequestsByPath))

		return m, tea.Tick(pollInterval, func(t time.Time) tea.Msg {
			return fetchMetrics(m.apiURL, m.apiKey)
		})

	case metricsErrMsg:
		m.lastError = msg.err.Error()
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchMetrics(m.apiURL, m.apiKey)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "SSE disconnected, reconnecting..."
		// The pending receiveNextEvent keeps waiting on the channel and picks
		// up events from the new subscription.
		return m, tea.Batch(
			tea.Tick(3*time.Second, func(t time.Time) tea.Msg { return reconnectMsg{} }),
			m.connecting.Tick,
		)

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing docscribe watch..."
	}

	header := renderHeader(m.health, m.ticker, m.pulse, m.connecting.View(), m.styles, m.width)
	routes := renderRoutes(m.snapshot, m.routes, m.styles, m.width)
	sources := renderSources(m.sources, m.styles, m.width)
	eventStream := renderEventStream(m.eventLog, m.styles, m.width)

	var errBar string
	if m.lastError != "" {
		errBar = m.styles.Bad.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Scroll Routes")

	parts := []string{header, routes, sources, eventStream}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
