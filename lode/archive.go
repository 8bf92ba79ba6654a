// Package lode archives received events to a Lode dataset on the local
// filesystem or S3, partitioned by day and event type.
package lode

import (
	"context"
	"errors"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/growler/metrics"
	"github.com/pithecene-io/growler/types"
)

// DefaultDataset is the dataset ID events are archived under.
const DefaultDataset = "growler"

// DefaultBatchSize is how many records are buffered before a write.
const DefaultBatchSize = 100

// maxBufferedBatches bounds how many batches a failing store can back up
// before the oldest records are dropped.
const maxBufferedBatches = 10

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"day", "event_type"}

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("archive closed")

// Config configures an Archive.
type Config struct {
	// Dataset is the Lode dataset ID (default "growler").
	Dataset string
	// BatchSize is the number of records per dataset write (default 100).
	BatchSize int
	// Collector counts batches and failures. May be nil.
	Collector *metrics.Collector
}

func (c Config) withDefaults() Config {
	if c.Dataset == "" {
		c.Dataset = DefaultDataset
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// Archive buffers event records and writes them to a Lode dataset in
// batches. Each batch becomes one dataset snapshot.
type Archive struct {
	dataset lode.Dataset
	config  Config

	mu      sync.Mutex // guards pending, dropped and closed
	pending []any
	dropped int64
	closed  bool
}

// NewArchive creates an Archive with filesystem storage rooted at root.
func NewArchive(cfg Config, root string) (*Archive, error) {
	return NewArchiveWithFactory(cfg, lode.NewFSFactory(root))
}

// NewArchiveWithFactory creates an Archive over a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewArchiveWithFactory(cfg Config, factory lode.StoreFactory) (*Archive, error) {
	cfg = cfg.withDefaults()
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, wrap("init", cfg.Dataset, err)
	}
	return &Archive{dataset: ds, config: cfg}, nil
}

func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// Write buffers ev, writing the buffer once it holds a full batch.
func (a *Archive) Write(ctx context.Context, ev *types.Event) error {
	record := toEventRecordMap(ev)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.pending = append(a.pending, record)
	if len(a.pending) < a.config.BatchSize {
		return nil
	}
	return a.flushLocked(ctx)
}

// Flush writes any buffered records.
func (a *Archive) Flush(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushLocked(ctx)
}

// flushLocked writes pending records. On failure the records stay
// buffered for the next flush, up to maxBufferedBatches batches.
func (a *Archive) flushLocked(ctx context.Context) error {
	if len(a.pending) == 0 {
		return nil
	}

	if _, err := a.dataset.Write(ctx, a.pending, lode.Metadata{}); err != nil {
		a.config.Collector.IncArchiveFailure()
		if limit := maxBufferedBatches * a.config.BatchSize; len(a.pending) > limit {
			over := len(a.pending) - limit
			a.dropped += int64(over)
			a.pending = append([]any(nil), a.pending[over:]...)
		}
		return wrap("write", a.config.Dataset, err)
	}

	a.config.Collector.IncArchiveBatch()
	a.pending = nil
	return nil
}

// Pending returns the number of buffered records.
func (a *Archive) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Dropped returns how many records were discarded because the store kept
// failing.
func (a *Archive) Dropped() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close flushes buffered records. Further writes fail with ErrClosed.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.flushLocked(context.Background())
}
