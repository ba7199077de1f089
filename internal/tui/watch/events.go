package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/studiotools/canvas-bridge/internal/api"
)

func renderEventStream(eventLog []api.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENTS"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme, innerWidth))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENTS"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e api.Event, theme Theme, width int) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch {
	case e.Type == "plugin.connected":
		typeStyle = theme.StatusOK
	case e.Type == "plugin.disconnected", e.Type == "plugin.replaced":
		typeStyle = theme.StatusFailed
	case strings.HasPrefix(e.Type, "request."):
		typeStyle = theme.StatusActive
	default:
		typeStyle = theme.Dim
	}
	typeName := typeStyle.Render(fmt.Sprintf("%-20s", e.Type))

	raw := string(e.Data)
	if max := width - 32; max > 0 && len(raw) > max {
		raw = raw[:max] + "..."
	}

	return fmt.Sprintf("%s %s %s", ts, typeName, raw)
}
