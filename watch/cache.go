package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pithecene-io/growler/clock"
	"github.com/pithecene-io/growler/log"
	"github.com/pithecene-io/growler/metrics"
	"github.com/pithecene-io/growler/transport"
)

// DefaultTTL is how long a fetched set is reused before querying again.
const DefaultTTL = 60 * time.Second

// DefaultQueryTimeout bounds a single watched-list query.
const DefaultQueryTimeout = 15 * time.Second

// queryAttempts is the initial query plus one retry.
const queryAttempts = 2

// Config configures a Cache.
type Config struct {
	// Transport runs the query command (required).
	Transport transport.Transport
	// Filter is the gerrit query filter (default is:starred).
	Filter string
	// TTL is the freshness window (default 60s).
	TTL time.Duration
	// QueryTimeout bounds each query attempt (default 15s).
	QueryTimeout time.Duration
	// RetryAfter is how long Get serves the degraded set after a failed
	// query before querying again (default TTL).
	RetryAfter time.Duration
	// Store is the second-level store (default in-memory).
	Store Store
	// Clock supplies the current time (default real clock).
	Clock clock.Clock
	// Logger receives query failures (default no-op).
	Logger *log.Logger
	// Collector counts queries, hits and degradations. May be nil.
	Collector *metrics.Collector
}

// Cache memoizes the watched set for a TTL.
//
// Get never fails: when the query fails twice in a row the cache serves
// the last good set, or an empty set if it never had one, and holds off
// querying for RetryAfter.
type Cache struct {
	config  Config
	command string

	mu       sync.Mutex
	current  Set
	loaded   bool
	failedAt time.Time
}

// New creates a Cache from cfg.
func New(cfg Config) (*Cache, error) {
	if cfg.Transport == nil {
		return nil, errors.New("watch cache requires a transport")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = cfg.TTL
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Cache{
		config:  cfg,
		command: QueryCommand(cfg.Filter),
	}, nil
}

// Command returns the remote query command the cache runs.
func (c *Cache) Command() string {
	return c.command
}

// Get returns the watched set, querying the server if the cached set is
// missing or older than the TTL.
func (c *Cache) Get(ctx context.Context) Set {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.config.Clock.Now()
	if c.loaded && c.fresh(c.current, now) {
		c.config.Collector.IncWatchCacheHit()
		return c.current
	}

	if set, ok := c.loadStored(ctx, now); ok {
		c.current, c.loaded = set, true
		c.config.Collector.IncWatchCacheHit()
		return set
	}

	if !c.failedAt.IsZero() && now.Sub(c.failedAt) < c.config.RetryAfter {
		return c.degraded()
	}

	set, err := c.refresh(ctx)
	if err == nil {
		return set
	}
	c.failedAt = now

	c.config.Collector.IncWatchDegraded()
	fields := map[string]any{"error": err.Error()}
	if c.loaded {
		fields["stale_age"] = now.Sub(c.current.FetchedAt).String()
		fields["size"] = c.current.Len()
		c.config.Logger.Warn("watched-list query failed, serving stale set", fields)
		return c.current
	}
	c.config.Logger.Warn("watched-list query failed, treating nothing as watched", fields)
	return Set{}
}

func (c *Cache) degraded() Set {
	if c.loaded {
		return c.current
	}
	return Set{}
}

// Refresh queries the server unconditionally, retrying once. On success
// the result replaces the cached set. Unlike Get, failures are returned.
func (c *Cache) Refresh(ctx context.Context) (Set, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresh(ctx)
}

func (c *Cache) refresh(ctx context.Context) (Set, error) {
	var lastErr error
	for attempt := range queryAttempts {
		if err := ctx.Err(); err != nil {
			return Set{}, fmt.Errorf("watch: context canceled: %w", err)
		}
		numbers, err := c.query(ctx)
		if err == nil {
			set := NewSet(numbers, c.config.Clock.Now())
			c.current, c.loaded = set, true
			c.failedAt = time.Time{}
			c.saveStored(ctx, set)
			return set, nil
		}
		lastErr = err
		c.config.Collector.IncWatchQueryFailure()
		c.config.Logger.Debug("watched-list query attempt failed", map[string]any{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}
	return Set{}, fmt.Errorf("watch: query failed after %d attempts: %w", queryAttempts, lastErr)
}

func (c *Cache) query(ctx context.Context) ([]int, error) {
	c.config.Collector.IncWatchQuery()

	ctx, cancel := context.WithTimeout(ctx, c.config.QueryTimeout)
	defer cancel()

	out, err := c.config.Transport.Run(ctx, c.command)
	if err != nil {
		return nil, err
	}
	return ParseQueryOutput(out)
}

func (c *Cache) fresh(set Set, now time.Time) bool {
	return set.Fetched() && set.Age(now) < c.config.TTL
}

func (c *Cache) loadStored(ctx context.Context, now time.Time) (Set, bool) {
	set, ok, err := c.config.Store.Load(ctx)
	if err != nil {
		c.config.Logger.Warn("watched-set store load failed", map[string]any{"error": err.Error()})
		return Set{}, false
	}
	if !ok || !c.fresh(set, now) {
		return Set{}, false
	}
	return set, true
}

func (c *Cache) saveStored(ctx context.Context, set Set) {
	if err := c.config.Store.Save(ctx, set, c.config.TTL); err != nil {
		c.config.Logger.Warn("watched-set store save failed", map[string]any{"error": err.Error()})
	}
}
