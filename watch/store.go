package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// Store is a second-level home for the watched set, shared across
// process restarts or sibling processes.
type Store interface {
	// Load returns the stored set, or ok=false if none is stored.
	Load(ctx context.Context) (set Set, ok bool, err error)
	// Save stores set, expiring it after ttl.
	Save(ctx context.Context, set Set, ttl time.Duration) error
}

// MemoryStore keeps the set in process memory.
type MemoryStore struct {
	mu  sync.Mutex
	set Set
	ok  bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (m *MemoryStore) Load(context.Context) (Set, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set, m.ok, nil
}

// Save implements Store. Expiry is left to the cache's freshness check.
func (m *MemoryStore) Save(_ context.Context, set Set, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = set
	m.ok = true
	return nil
}

// DefaultRedisTimeout bounds each Redis round trip.
const DefaultRedisTimeout = 5 * time.Second

// RedisStoreConfig configures a RedisStore.
type RedisStoreConfig struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Key holds the snapshot (required, see RedisKey).
	Key string
	// Timeout bounds each round trip (default 5s).
	Timeout time.Duration
}

// RedisKey returns the conventional snapshot key for a user on a host.
func RedisKey(username, host string) string {
	return fmt.Sprintf("growler:watched:%s@%s", username, host)
}

// snapshot is the msgpack wire form of a Set.
type snapshot struct {
	Numbers   []int `msgpack:"numbers"`
	FetchedAt int64 `msgpack:"fetched_at"`
}

// RedisStore keeps a msgpack-encoded snapshot under a Redis key that
// expires with the cache TTL.
type RedisStore struct {
	config RedisStoreConfig
	client *goredis.Client
}

// NewRedisStore creates a RedisStore from cfg.
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis store requires a URL")
	}
	if cfg.Key == "" {
		return nil, errors.New("redis store requires a key")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis store: invalid URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRedisTimeout
	}
	return &RedisStore{config: cfg, client: goredis.NewClient(opts)}, nil
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context) (Set, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.config.Key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Set{}, false, nil
	}
	if err != nil {
		return Set{}, false, fmt.Errorf("redis store: get %s: %w", r.config.Key, err)
	}

	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return Set{}, false, fmt.Errorf("redis store: decode snapshot: %w", err)
	}
	return NewSet(snap.Numbers, time.Unix(0, snap.FetchedAt)), true, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, set Set, ttl time.Duration) error {
	data, err := msgpack.Marshal(snapshot{
		Numbers:   set.Numbers(),
		FetchedAt: set.FetchedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("redis store: encode snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()
	if err := r.client.Set(ctx, r.config.Key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis store: set %s: %w", r.config.Key, err)
	}
	return nil
}

// Close releases the Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
