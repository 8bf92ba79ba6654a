package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/growler/classify"
	"github.com/pithecene-io/growler/cli/config"
	"github.com/pithecene-io/growler/journal"
	"github.com/pithecene-io/growler/metrics"
	"github.com/pithecene-io/growler/runtime"
)

// ListenCommand returns the listen command: stream events until SIGINT
// or SIGTERM.
func ListenCommand() *cli.Command {
	return &cli.Command{
		Name:  "listen",
		Usage: "Stream Gerrit events and notify on watched changes",
		Flags: append(ConnectionFlags(),
			&cli.StringSliceFlag{
				Name:  "subscribe",
				Usage: "Only stream these event types (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "ignore-actor",
				Usage: "Never treat events by this account as priority (repeatable)",
			},
			&cli.StringFlag{
				Name:  "watch-query",
				Usage: "Watched-list query (default: is:starred)",
			},
			&cli.StringFlag{
				Name:  "journal",
				Usage: "Append every event to this JSONL file",
			},
			&cli.StringFlag{
				Name:  "archive-backend",
				Usage: "Event archive backend: fs or s3",
			},
			&cli.StringFlag{
				Name:  "archive-path",
				Usage: "Event archive path (fs: directory, s3: bucket/prefix)",
			},
			&cli.StringSliceFlag{
				Name:  "webhook",
				Usage: "POST priority events to this URL (repeatable)",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a JSON session report on exit (\"-\" for stderr)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log every classification decision",
			},
		),
		Action: listenAction,
	}
}

// applyListenFlags overrides config values with listen-only flags.
func applyListenFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("subscribe") {
		cfg.Gerrit.Subscribe = c.StringSlice("subscribe")
	}
	if c.IsSet("ignore-actor") {
		cfg.IgnoreActors = append(cfg.IgnoreActors, c.StringSlice("ignore-actor")...)
	}
	if c.IsSet("watch-query") {
		cfg.Watch.Query = c.String("watch-query")
	}
	if c.IsSet("journal") {
		cfg.Journal.Path = c.String("journal")
	}
	if c.IsSet("archive-backend") {
		cfg.Archive.Backend = c.String("archive-backend")
	}
	if c.IsSet("archive-path") {
		cfg.Archive.Path = c.String("archive-path")
	}
	for _, url := range c.StringSlice("webhook") {
		cfg.Adapters = append(cfg.Adapters, config.AdapterConfig{Type: "webhook", URL: url})
	}
}

func listenAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	applyListenFlags(c, cfg)

	logger := newLogger(c, cfg)
	defer func() { _ = logger.Sync() }()
	collector := metrics.NewCollector(cfg.Gerrit.Host, cfg.Gerrit.Transport)

	tr, err := buildTransport(cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache, closeStore, err := buildWatchCache(cfg, tr, logger, collector)
	if err != nil {
		return cli.Exit(fmt.Sprintf("watched-set cache: %v", err), exitUsage)
	}
	defer closeLogged(logger, "watch store", closeStore)

	var sinks []runtime.Sink
	if cfg.Journal.Path != "" {
		j, err := journal.Open(expandHome(cfg.Journal.Path))
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
		sinks = append(sinks, j)
	}
	archive, err := buildArchive(ctx, cfg, collector)
	if err != nil {
		return cli.Exit(fmt.Sprintf("archive: %v", err), exitUsage)
	}
	if archive != nil {
		sinks = append(sinks, archive)
	}

	notifier, err := buildNotifier(cfg.Adapters)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	dispatcher, err := runtime.NewDispatcher(runtime.DispatcherConfig{
		Sinks: sinks,
		Classifier: classify.New(classify.Config{
			Username:      cfg.Gerrit.Username,
			IgnoredActors: cfg.IgnoreActors,
			Watched:       cache,
		}),
		Notifier:      notifier,
		NotifyTimeout: cfg.Notify.Timeout.Duration,
		Verbose:       c.Bool("verbose"),
		Logger:        logger,
		Collector:     collector,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	closeDispatcher := sync.OnceValue(dispatcher.Close)
	defer closeLogged(logger, "dispatcher", closeDispatcher)

	supervisor, err := runtime.New(runtime.Config{
		Transport:     tr,
		Dispatch:      dispatcher.Dispatch,
		Subscribe:     cfg.Gerrit.Subscribe,
		IdleTimeout:   cfg.Stream.IdleTimeout.Duration,
		Backoff:       cfg.Stream.Backoff.Duration,
		ChunkSize:     cfg.Stream.ChunkSize,
		MaxRecordSize: cfg.Stream.MaxRecordSize,
		Logger:        logger,
		Collector:     collector,
		OnIdle:        dispatcher.Flush,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	started := time.Now()
	watched := cache.Get(ctx)
	logger.Info("listening", map[string]any{
		"command":  supervisor.Command(),
		"watched":  watched.Len(),
		"sinks":    len(sinks),
		"adapters": len(cfg.Adapters),
	})

	if err := supervisor.Run(ctx); err != nil {
		return err
	}
	// Flush the sinks before the final counters are read.
	closeLogged(logger, "dispatcher", closeDispatcher)

	snap := collector.Snapshot()
	logger.Info("listener stopped", snap.Fields())

	if path := c.String("report"); path != "" {
		report := runtime.BuildReport(supervisor, cfg.Gerrit.Host, started, time.Now(), snap)
		if err := runtime.WriteReport(report, path); err != nil {
			logger.Error("failed to write report", map[string]any{"error": err.Error()})
		}
	}
	return nil
}
