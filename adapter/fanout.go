package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pithecene-io/growler/iox"
)

// Named pairs an adapter with the name used in errors and logs.
type Named struct {
	Name    string
	Adapter Adapter
}

// Fanout publishes each event to every adapter in order. A failing
// adapter does not stop delivery to the rest.
type Fanout struct {
	adapters []Named
}

// NewFanout creates a Fanout over adapters.
func NewFanout(adapters ...Named) *Fanout {
	return &Fanout{adapters: adapters}
}

// Len returns the number of adapters.
func (f *Fanout) Len() int {
	return len(f.adapters)
}

// Publish implements Adapter. The returned error joins every adapter
// failure, each prefixed with the adapter name.
func (f *Fanout) Publish(ctx context.Context, event *PriorityEvent) error {
	var errs []error
	for _, a := range f.adapters {
		if err := a.Adapter.Publish(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close implements Adapter, closing every adapter.
func (f *Fanout) Close() error {
	closers := make([]io.Closer, 0, len(f.adapters))
	for _, a := range f.adapters {
		closers = append(closers, a.Adapter)
	}
	return iox.CloseAll(closers...)
}

var _ Adapter = (*Fanout)(nil)
