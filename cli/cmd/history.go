package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/growler/cli/reader"
	"github.com/pithecene-io/growler/cli/render"
	"github.com/pithecene-io/growler/lode"
)

// HistoryCommand returns the history command: list archived events.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List archived events",
		Flags: append(ReadOnlyFlags(),
			ConfigFlag,
			&cli.StringFlag{Name: "archive-dataset", Usage: "Lode dataset ID (default: \"growler\")"},
			&cli.StringFlag{Name: "archive-backend", Usage: "Archive backend: fs or s3"},
			&cli.StringFlag{Name: "archive-path", Usage: "Archive path (fs: directory, s3: bucket/prefix)"},
			&cli.StringFlag{Name: "archive-region", Usage: "AWS region for S3 backend"},
			&cli.StringFlag{Name: "day", Usage: "Only events received on this UTC day (YYYY-MM-DD)"},
			&cli.StringFlag{Name: "type", Usage: "Only events of this type"},
			&cli.IntFlag{Name: "change", Usage: "Only events for this change number"},
			&cli.IntFlag{Name: "limit", Usage: "Show only the most recent N events"},
		),
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for history command", exitUsage)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	a := &cfg.Archive
	if c.IsSet("archive-dataset") {
		a.Dataset = c.String("archive-dataset")
	}
	if c.IsSet("archive-backend") {
		a.Backend = c.String("archive-backend")
	}
	if c.IsSet("archive-path") {
		a.Path = c.String("archive-path")
	}
	if c.IsSet("archive-region") {
		a.Region = c.String("archive-region")
	}
	if day := c.String("day"); day != "" {
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return cli.Exit(fmt.Sprintf("invalid --day %q (want YYYY-MM-DD)", day), exitUsage)
		}
	}

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	rd, err := buildHistoryReader(ctx, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	records, err := rd.Events(ctx, lode.Filter{
		Day:       c.String("day"),
		EventType: c.String("type"),
		Change:    c.Int("change"),
	})
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	rows, err := reader.ParseEventRecords(records)
	if err != nil {
		return fmt.Errorf("failed to parse archive: %w", err)
	}
	if limit := c.Int("limit"); limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}

	dataset := a.Dataset
	if dataset == "" {
		dataset = lode.DefaultDataset
	}
	if r.Format() == render.FormatTable {
		return r.Render(rows)
	}
	return r.Render(reader.HistoryResponse{Dataset: dataset, Count: len(rows), Events: rows})
}
