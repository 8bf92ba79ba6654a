// Package journal appends every received event to a local JSONL file.
//
// Each line is the event object as received plus a received_at field
// holding fractional Unix seconds. Lines are written with a single Write
// call on an O_APPEND descriptor, so concurrent writers never interleave
// partial lines.
package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/pithecene-io/growler/types"
)

// ReceivedAtField is the key added to each journaled event.
const ReceivedAtField = "received_at"

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("journal closed")

// File is an append-only event journal.
type File struct {
	mu     sync.Mutex
	w      io.Writer
	file   *os.File // nil when wrapping a plain writer
	path   string
	closed bool
}

// Open opens (creating if needed) the journal at path for appending.
// Missing parent directories are created.
func Open(path string) (*File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: create directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &File{w: f, file: f, path: path}, nil
}

// NewWriter creates a journal that appends to w. Close does not close w.
func NewWriter(w io.Writer) *File {
	return &File{w: w}
}

// Path returns the journal file path, or "" for a writer-backed journal.
func (j *File) Path() string {
	return j.path
}

// Write appends ev as one line.
func (j *File) Write(_ context.Context, ev *types.Event) error {
	line, err := Record(ev)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if _, err := j.w.Write(line); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	return nil
}

// Flush syncs the journal file to stable storage.
func (j *File) Flush(context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed || j.file == nil {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("journal: sync: %w", err)
	}
	return nil
}

// Close closes the journal file. Further writes fail with ErrClosed.
func (j *File) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if j.file == nil {
		return nil
	}
	return j.file.Close()
}

// Record renders ev as a newline-terminated journal line.
func Record(ev *types.Event) ([]byte, error) {
	fields := ev.Fields
	if fields == nil {
		dec := json.NewDecoder(bytes.NewReader(ev.Raw))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return nil, fmt.Errorf("journal: decode raw event: %w", err)
		}
	}

	out := make(map[string]any, len(fields)+1)
	maps.Copy(out, fields)
	out[ReceivedAtField] = UnixSeconds(ev)

	line, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("journal: encode event: %w", err)
	}
	return append(line, '\n'), nil
}

// UnixSeconds returns ev.ReceivedAt as fractional Unix seconds.
func UnixSeconds(ev *types.Event) float64 {
	t := ev.ReceivedAt
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
