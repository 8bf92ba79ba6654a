package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/growler/cli/render"
	"github.com/pithecene-io/growler/metrics"
	"github.com/pithecene-io/growler/watch"
)

// WatchedResponse is the response for the watched command.
type WatchedResponse struct {
	Query     string    `json:"query" yaml:"query"`
	Count     int       `json:"count" yaml:"count"`
	Changes   []int     `json:"changes" yaml:"changes"`
	FetchedAt time.Time `json:"fetched_at" yaml:"fetched_at"`
}

// WatchedCommand returns the watched command: run the watched-list query
// once and print the change numbers.
func WatchedCommand() *cli.Command {
	return &cli.Command{
		Name:  "watched",
		Usage: "Query the watched (starred) change list once",
		Flags: append(append(ConnectionFlags(), ReadOnlyFlags()...),
			&cli.StringFlag{
				Name:  "watch-query",
				Usage: "Watched-list query (default: is:starred)",
			},
		),
		Action: watchedAction,
	}
}

func watchedAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for watched command", exitUsage)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if c.IsSet("watch-query") {
		cfg.Watch.Query = c.String("watch-query")
	}

	logger := newLogger(c, cfg)
	tr, err := buildTransport(cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	cache, closeStore, err := buildWatchCache(cfg, tr, logger, metrics.NewCollector(cfg.Gerrit.Host, cfg.Gerrit.Transport))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer closeLogged(logger, "watch store", closeStore)

	ctx, cancel := context.WithTimeout(c.Context, 2*time.Minute)
	defer cancel()

	set, err := cache.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("watched-list query failed: %w", err)
	}
	return r.Render(newWatchedResponse(cache.Command(), set))
}

func newWatchedResponse(command string, set watch.Set) WatchedResponse {
	numbers := set.Numbers()
	if numbers == nil {
		numbers = []int{}
	}
	return WatchedResponse{
		Query:     command,
		Count:     len(numbers),
		Changes:   numbers,
		FetchedAt: set.FetchedAt.UTC(),
	}
}
