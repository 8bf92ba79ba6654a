package tui

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/growler/runtime"
)

type counter struct {
	label   string
	value   int64
	failure bool
}

func renderStats(report *runtime.SessionReport) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Session Statistics"))
	b.WriteString("\n")

	b.WriteString(counterRow(
		counter{"Sessions", report.Sessions, false},
		counter{"Events", report.Events, false},
		counter{"Faults", report.Faults, true},
	))

	if snap := report.Metrics; snap != nil {
		b.WriteString("\n")
		b.WriteString(counterRow(
			counter{"Priority", snap.PriorityEvents, false},
			counter{"Decode Errors", snap.DecodeErrors, true},
			counter{"Notify Failures", snap.NotifyFailures, true},
		))

		if len(snap.EventsByType) > 0 {
			b.WriteString("\n\n")
			b.WriteString(titleStyle.Render("Events by Type"))
			b.WriteString("\n")
			for _, t := range slices.Sorted(maps.Keys(snap.EventsByType)) {
				b.WriteString(labelStyle.Width(26).Render(t))
				b.WriteString(valueStyle.Render(strconv.FormatInt(snap.EventsByType[t], 10)))
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func counterRow(counters ...counter) string {
	boxes := make([]string, 0, len(counters))
	for _, c := range counters {
		color := counterColor(c.value, c.failure)
		value := lipgloss.NewStyle().Bold(true).Foreground(color).Render(strconv.FormatInt(c.value, 10))
		label := lipgloss.NewStyle().Foreground(dim).Render(c.label)
		boxes = append(boxes, counterStyle.BorderForeground(color).Render(
			lipgloss.JoinVertical(lipgloss.Center, value, label)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}
