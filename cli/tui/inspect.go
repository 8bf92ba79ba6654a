package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/growler/runtime"
)

func renderInspect(report *runtime.SessionReport) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Session Report"))
	b.WriteString("\n")

	field := func(label, value string, style lipgloss.Style) {
		if value == "" {
			return
		}
		b.WriteString(labelStyle.Render(label))
		b.WriteString(style.Render(value))
		b.WriteString("\n")
	}

	field("Host", report.Host, valueStyle)
	field("Command", report.Command, valueStyle)
	field("State", report.State, lipgloss.NewStyle().Foreground(stateColor(report.State)))
	field("Started", report.StartedAt, valueStyle)
	field("Stopped", report.StoppedAt, valueStyle)
	field("Uptime", (time.Duration(report.DurationMs) * time.Millisecond).String(), valueStyle)

	if report.LastFault != "" {
		b.WriteString("\n")
		faultStyle := lipgloss.NewStyle().Foreground(bad)
		field("Last fault", report.LastFault, faultStyle)
		field("Kind", report.LastFaultKind, faultStyle)
		field("At", report.LastFaultAt, valueStyle)
	}

	return panelStyle.Render(strings.TrimSuffix(b.String(), "\n"))
}
