package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/growler/cli/reader"
	"github.com/pithecene-io/growler/cli/render"
	"github.com/pithecene-io/growler/cli/tui"
	"github.com/pithecene-io/growler/runtime"
)

// StatsCommand returns the stats command: counters from a session report.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Show counters from a session report written by listen --report",
		ArgsUsage: "REPORT",
		Flags:     ReadOnlyFlags(),
		Action:    reportAction(tui.ViewStatsReport, statsView),
	}
}

// InspectCommand returns the inspect command: details of a session report.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show a session report written by listen --report",
		ArgsUsage: "REPORT",
		Flags:     ReadOnlyFlags(),
		Action:    reportAction(tui.ViewInspectReport, nil),
	}
}

// ReportStats is the non-TUI payload of the stats command.
type ReportStats struct {
	Sessions       int64 `json:"sessions" yaml:"sessions"`
	Faults         int64 `json:"faults" yaml:"faults"`
	Events         int64 `json:"events" yaml:"events"`
	PriorityEvents int64 `json:"priority_events" yaml:"priority_events"`
	DecodeErrors   int64 `json:"decode_errors" yaml:"decode_errors"`
	NotifyFailures int64 `json:"notify_failures" yaml:"notify_failures"`
	Reconnects     int64 `json:"reconnects" yaml:"reconnects"`
	KeepalivesSent int64 `json:"keepalives_sent" yaml:"keepalives_sent"`
}

func reportAction(viewType string, view func(*runtime.SessionReport) any) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("expected exactly one REPORT argument", exitUsage)
		}
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		report, err := reader.ReadReport(c.Args().First())
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}

		if c.Bool("tui") {
			return r.RenderTUI(viewType, report)
		}
		if view != nil {
			return r.Render(view(report))
		}
		return r.Render(report)
	}
}

func statsView(report *runtime.SessionReport) any {
	stats := ReportStats{
		Sessions: report.Sessions,
		Faults:   report.Faults,
		Events:   report.Events,
	}
	if m := report.Metrics; m != nil {
		stats.PriorityEvents = m.PriorityEvents
		stats.DecodeErrors = m.DecodeErrors
		stats.NotifyFailures = m.NotifyFailures
		stats.Reconnects = m.Reconnects
		stats.KeepalivesSent = m.KeepalivesSent
	}
	return stats
}
