package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/growler/adapter"
	"github.com/pithecene-io/growler/adapter/command"
	"github.com/pithecene-io/growler/adapter/redis"
	"github.com/pithecene-io/growler/adapter/webhook"
	"github.com/pithecene-io/growler/cli/config"
	"github.com/pithecene-io/growler/iox"
	"github.com/pithecene-io/growler/lode"
	"github.com/pithecene-io/growler/log"
	"github.com/pithecene-io/growler/metrics"
	"github.com/pithecene-io/growler/transport"
	"github.com/pithecene-io/growler/watch"
)

// Connection defaults.
const (
	DefaultHost = "review.openstack.org"
	DefaultPort = 29418
)

// Exit code for configuration and usage errors.
const exitUsage = 1

// loadConfig reads --config (if set), then applies connection flag
// overrides and defaults.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	g := &cfg.Gerrit
	if c.IsSet("host") {
		g.Host = c.String("host")
	}
	if c.IsSet("port") {
		g.Port = c.Int("port")
	}
	if c.IsSet("username") {
		g.Username = c.String("username")
	}
	if c.IsSet("key-file") {
		g.KeyFile = c.String("key-file")
	}
	if c.IsSet("known-hosts") {
		g.KnownHosts = c.String("known-hosts")
	}
	if c.IsSet("insecure-ignore-host-key") {
		g.InsecureIgnoreHostKey = c.Bool("insecure-ignore-host-key")
	}
	if c.IsSet("transport") {
		g.Transport = c.String("transport")
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyDefaults(cfg *config.Config) {
	g := &cfg.Gerrit
	if g.Host == "" {
		g.Host = DefaultHost
	}
	if g.Port == 0 {
		g.Port = DefaultPort
	}
	if g.Username == "" {
		g.Username = defaultUsername()
	}
	if g.Transport == "" {
		g.Transport = "ssh"
	}
}

// defaultUsername returns the local account name.
func defaultUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		// Windows reports DOMAIN\user.
		if _, name, ok := strings.Cut(u.Username, `\`); ok {
			return name
		}
		return u.Username
	}
	return os.Getenv("USER")
}

func endpoint(cfg *config.Config) transport.Endpoint {
	return transport.Endpoint{
		Host:     cfg.Gerrit.Host,
		Port:     cfg.Gerrit.Port,
		Username: cfg.Gerrit.Username,
	}
}

func newLogger(c *cli.Context, cfg *config.Config) *log.Logger {
	ctx := log.Context{
		Host:     cfg.Gerrit.Host,
		Port:     cfg.Gerrit.Port,
		Username: cfg.Gerrit.Username,
	}
	if c.Bool("debug") {
		return log.NewDebugLogger(ctx)
	}
	return log.NewLogger(ctx)
}

func buildTransport(cfg *config.Config) (transport.Transport, error) {
	g := cfg.Gerrit
	switch g.Transport {
	case "ssh":
		var keys []string
		if g.KeyFile != "" {
			keys = []string{expandHome(g.KeyFile)}
		}
		return transport.NewSSH(transport.SSHConfig{
			Endpoint:              endpoint(cfg),
			KeyFiles:              keys,
			KnownHostsFile:        expandHome(g.KnownHosts),
			InsecureIgnoreHostKey: g.InsecureIgnoreHostKey,
		})
	case "exec":
		return transport.NewExec(transport.ExecConfig{
			Endpoint:              endpoint(cfg),
			KeyFile:               expandHome(g.KeyFile),
			KnownHostsFile:        expandHome(g.KnownHosts),
			InsecureIgnoreHostKey: g.InsecureIgnoreHostKey,
		})
	default:
		return nil, fmt.Errorf("unknown transport: %q (must be ssh or exec)", g.Transport)
	}
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + string(os.PathSeparator) + rest
}

// buildWatchCache creates the watched-set cache and, when configured, its
// Redis second-level store. The returned closer releases the store.
func buildWatchCache(cfg *config.Config, tr transport.Transport, logger *log.Logger, collector *metrics.Collector) (*watch.Cache, func() error, error) {
	w := cfg.Watch
	closer := func() error { return nil }

	var store watch.Store
	if w.RedisURL != "" {
		key := w.RedisKey
		if key == "" {
			key = watch.RedisKey(cfg.Gerrit.Username, cfg.Gerrit.Host)
		}
		rs, err := watch.NewRedisStore(watch.RedisStoreConfig{URL: w.RedisURL, Key: key})
		if err != nil {
			return nil, nil, err
		}
		store = rs
		closer = rs.Close
	}

	cache, err := watch.New(watch.Config{
		Transport:    tr,
		Filter:       w.Query,
		TTL:          w.TTL.Duration,
		QueryTimeout: w.QueryTimeout.Duration,
		Store:        store,
		Logger:       logger,
		Collector:    collector,
	})
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return cache, closer, nil
}

// buildArchive creates the Lode event archive, or nil when no archive
// path is configured.
func buildArchive(ctx context.Context, cfg *config.Config, collector *metrics.Collector) (*lode.Archive, error) {
	a := cfg.Archive
	if a.Path == "" {
		return nil, nil
	}
	archiveCfg := lode.Config{
		Dataset:   a.Dataset,
		BatchSize: a.BatchSize,
		Collector: collector,
	}

	switch a.Backend {
	case "fs", "":
		return lode.NewArchive(archiveCfg, a.Path)
	case "s3":
		return lode.NewS3Archive(ctx, archiveCfg, s3Config(a))
	default:
		return nil, fmt.Errorf("unknown archive backend: %s (must be fs or s3)", a.Backend)
	}
}

// buildHistoryReader opens the configured archive for reading.
func buildHistoryReader(ctx context.Context, cfg *config.Config) (*lode.Reader, error) {
	a := cfg.Archive
	if a.Path == "" {
		return nil, errors.New("no archive configured (set archive.path or --archive-path)")
	}
	dataset := a.Dataset
	if dataset == "" {
		dataset = lode.DefaultDataset
	}

	switch a.Backend {
	case "fs", "":
		return lode.NewFSReader(dataset, a.Path)
	case "s3":
		return lode.NewS3Reader(ctx, dataset, s3Config(a))
	default:
		return nil, fmt.Errorf("unknown archive backend: %s (must be fs or s3)", a.Backend)
	}
}

func s3Config(a config.ArchiveConfig) lode.S3Config {
	bucket, prefix := lode.ParseS3Path(a.Path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       a.Region,
		Endpoint:     a.Endpoint,
		UsePathStyle: a.S3PathStyle,
	}
}

// buildNotifier creates a fan-out over every configured adapter, or nil
// when there are none.
func buildNotifier(adapters []config.AdapterConfig) (adapter.Adapter, error) {
	if len(adapters) == 0 {
		return nil, nil
	}

	named := make([]adapter.Named, 0, len(adapters))
	built := make([]io.Closer, 0, len(adapters))
	for i, ac := range adapters {
		a, err := buildAdapter(ac)
		if err != nil {
			_ = iox.CloseAll(built...)
			return nil, fmt.Errorf("adapter %s: %w", ac.DisplayName(i), err)
		}
		named = append(named, adapter.Named{Name: ac.DisplayName(i), Adapter: a})
		built = append(built, a)
	}
	return adapter.NewFanout(named...), nil
}

func buildAdapter(ac config.AdapterConfig) (adapter.Adapter, error) {
	switch ac.Type {
	case "webhook":
		if ac.URL == "" {
			return nil, errors.New("webhook requires url")
		}
		cfg := webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Secret:  ac.Secret,
			Timeout: ac.Timeout.Duration,
			Retries: webhook.DefaultRetries,
		}
		if ac.Retries != nil {
			cfg.Retries = *ac.Retries
		}
		return webhook.New(cfg)

	case "redis":
		if ac.URL == "" {
			return nil, errors.New("redis requires url")
		}
		cfg := redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			History: ac.History,
			Timeout: ac.Timeout.Duration,
			Retries: redis.DefaultRetries,
		}
		if ac.Retries != nil {
			cfg.Retries = *ac.Retries
		}
		return redis.New(cfg)

	case "command":
		if ac.Command == "" {
			return nil, errors.New("command requires command")
		}
		return command.New(command.Config{
			Path:    ac.Command,
			Args:    ac.Args,
			Env:     ac.Env,
			Timeout: ac.Timeout.Duration,
		})

	default:
		return nil, fmt.Errorf("unknown adapter type: %q (must be webhook, redis or command)", ac.Type)
	}
}

// closeLogged closes c, logging any error.
func closeLogged(logger *log.Logger, what string, c func() error) {
	if err := c(); err != nil {
		logger.Warn("close failed", map[string]any{"component": what, "error": err.Error()})
	}
}
