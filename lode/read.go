package lode

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// Filter selects archived records. Empty fields match everything.
type Filter struct {
	Day       string
	EventType string
	Change    int
}

// Reader reads archived event records back.
type Reader struct {
	dataset lode.Dataset
	name    string
}

// NewReader opens dataset for reading over factory, using the same codec
// and layout as the write path.
func NewReader(dataset string, factory lode.StoreFactory) (*Reader, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := newDataset(dataset, factory)
	if err != nil {
		return nil, wrap("init", dataset, err)
	}
	return &Reader{dataset: ds, name: dataset}, nil
}

// NewFSReader opens a reader over filesystem storage rooted at root.
func NewFSReader(dataset, root string) (*Reader, error) {
	return NewReader(dataset, lode.NewFSFactory(root))
}

// Events returns matching records ordered by received_at.
func (r *Reader) Events(ctx context.Context, f Filter) ([]map[string]any, error) {
	snapshots, err := r.dataset.Snapshots(ctx)
	if err != nil {
		return nil, wrap("read", r.name+"/snapshots", err)
	}

	var out []map[string]any
	for _, snap := range snapshots {
		if !snapshotMatchesFilter(snap, "day", f.Day) || !snapshotMatchesFilter(snap, "event_type", f.EventType) {
			continue
		}

		data, err := r.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrap("read", fmt.Sprintf("%s/snapshot/%s", r.name, snap.ID), err)
		}
		// Manifest paths are a coarse pre-filter; record fields decide.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || !recordMatches(record, f) {
				continue
			}
			out = append(out, record)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return toString(out[i]["received_at"]) < toString(out[j]["received_at"])
	})
	return out, nil
}

func recordMatches(record map[string]any, f Filter) bool {
	if record["record_kind"] != RecordKindEvent {
		return false
	}
	if f.Day != "" && toString(record["day"]) != f.Day {
		return false
	}
	if f.EventType != "" && toString(record["event_type"]) != f.EventType {
		return false
	}
	if f.Change != 0 && toInt(record["change"]) != f.Change {
		return false
	}
	return true
}

// snapshotMatchesFilter checks if any of a snapshot's file paths carries
// the key=value partition segment.
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment, so event_type=change matches neither
// event_type=change-merged nor a substring elsewhere.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt converts a decoded JSON number to int.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}
