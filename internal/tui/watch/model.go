package watch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/studiotools/canvas-bridge/internal/api"
)

const (
	eventLogCap = 50
	requestRows = 10
)

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	token  string

	width  int
	height int

	status    api.StatusResponse
	reachable bool
	lastCheck time.Time

	eventLog []api.Event
	requests table.Model

	theme Theme

	hubEvents chan api.Event

	lastError string
}

// New creates a new watch TUI model.
func New(apiURL, token string) *Model {
	columns := []table.Column{
		{Title: "TIME", Width: 8},
		{Title: "TYPE", Width: 12},
		{Title: "RESULT", Width: 8},
		{Title: "DETAIL", Width: 48},
	}
	requests := table.New(
		table.WithColumns(columns),
		table.WithHeight(requestRows),
	)
	styles := table.DefaultStyles()
	styles.Selected = lipgloss.NewStyle()
	requests.SetStyles(styles)

	return &Model{
		apiURL:    apiURL,
		token:     token,
		eventLog:  make([]api.Event, 0),
		requests:  requests,
		hubEvents: make(chan api.Event, 100),
		theme:     NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.token, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchStatus(m.apiURL, m.token) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
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

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := api.Event(msg)

		// Newest first.
		m.eventLog = append([]api.Event{e}, m.eventLog...)
		if len(m.eventLog) > eventLogCap {
			m.eventLog = m.eventLog[:eventLogCap]
		}

		switch e.Type {
		case "plugin.connected", "plugin.replaced":
			m.status.Bridge.Connected = true
		case "plugin.disconnected":
			m.status.Bridge.Connected = false
		case "request.settled":
			m.requests.SetRows(append([]table.Row{settledRow(e)}, truncateRows(m.requests.Rows())...))
		}

		m.reachable = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case statusMsg:
		m.status = api.StatusResponse(msg)
		m.reachable = true
		m.lastCheck = time.Now()
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchStatus(m.apiURL, m.token)
		})

	case sseDisconnectedMsg:
		m.reachable = false
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.token, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchStatus(m.apiURL, m.token)
		})
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Starting watch..."
	}

	header := m.renderHeader()
	requests := m.renderRequests()
	eventStream := renderEventStream(m.eventLog, m.theme, m.width)

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := m.theme.Dim.Render(" [q] Quit")

	parts := []string{header, requests, eventStream}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) renderHeader() string {
	var plugin string
	switch {
	case !m.reachable:
		plugin = m.theme.StatusFailed.Render("● bridge unreachable")
	case m.status.Bridge.Connected:
		plugin = m.theme.StatusOK.Render("● plugin connected") +
			m.theme.Dim.Render(fmt.Sprintf("  gen %d  %s", m.status.Bridge.Generation, m.status.Bridge.RemoteAddr))
	default:
		plugin = m.theme.StatusActive.Render("○ waiting for plugin")
	}

	stats := m.theme.Dim.Render(fmt.Sprintf(
		"pending %d   ok %d   errors %d   timeouts %d   up %s",
		m.status.Bridge.PendingCount,
		m.status.Requests.OK,
		m.status.Requests.Errors,
		m.status.Requests.Timeouts,
		(time.Duration(m.status.UptimeSeconds) * time.Second).String(),
	))

	content := lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Title.Render("CANVAS BRIDGE"),
		" "+plugin,
		" "+stats,
	)
	return m.theme.Border.Width(m.width - 4).Render(content)
}

func (m Model) renderRequests() string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Title.Render("REQUESTS"),
		m.requests.View(),
	)
	return m.theme.Border.Width(m.width - 4).Render(content)
}

func settledRow(e api.Event) table.Row {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	kind, _ := data["type"].(string)
	result := "ok"
	detail := ""
	if ok, _ := data["ok"].(bool); !ok {
		result = "error"
		detail, _ = data["error"].(string)
	}
	return table.Row{e.At.Format("15:04:05"), kind, result, detail}
}

func truncateRows(rows []table.Row) []table.Row {
	if len(rows) >= requestRows {
		return rows[:requestRows-1]
	}
	return rows
}
