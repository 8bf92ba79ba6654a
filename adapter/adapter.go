// Package adapter defines the notification boundary for priority events.
//
// Adapters deliver priority events to downstream systems (webhooks, pub/sub
// channels, local notifier commands). The supervisor owns adapter lifecycle;
// users provide configuration only.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/growler/types"
)

// PriorityEvent is the payload published for an event on a watched change.
type PriorityEvent struct {
	EventType string `json:"event_type"`
	Change    int    `json:"change"`
	Project   string `json:"project"`
	Branch    string `json:"branch,omitempty"`
	Subject   string `json:"subject,omitempty"`
	URL       string `json:"url,omitempty"`
	// Actor is the username of the account that caused the event.
	Actor     string `json:"actor,omitempty"`
	ActorName string `json:"actor_name,omitempty"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"` // RFC 3339, when the event was received
	// Event is the event record exactly as received.
	Event json.RawMessage `json:"event,omitempty"`
}

// NewPriorityEvent builds the payload for ev, classified for reason.
func NewPriorityEvent(ev *types.Event, reason string) *PriorityEvent {
	pe := &PriorityEvent{
		EventType: string(ev.Type),
		Reason:    reason,
		Timestamp: ev.ReceivedAt.UTC().Format(time.RFC3339Nano),
	}
	if json.Valid(ev.Raw) {
		pe.Event = json.RawMessage(ev.Raw)
	}
	if c := ev.Change; c != nil {
		pe.Change = c.Number
		pe.Project = c.Project
		pe.Branch = c.Branch
		pe.Subject = c.Subject
		pe.URL = c.URL
	}
	if actor := ev.Actor(); actor != nil {
		pe.Actor = actor.Username
		pe.ActorName = actor.Name
	}
	return pe
}

// Adapter publishes priority events to a downstream system.
type Adapter interface {
	// Publish delivers a priority event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *PriorityEvent) error

	// Close releases adapter resources.
	Close() error
}

// Backoff returns the delay before retry attempt i (1-based):
// 500ms, 1s, 2s, ...
func Backoff(i int) time.Duration {
	if i < 1 {
		return 0
	}
	return time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
}

// Sleep waits for d or until ctx ends, returning ctx.Err() in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls attempt up to 1+retries times with Backoff between calls.
// It stops at the first success, at a Permanent error, or when ctx ends.
func Retry(ctx context.Context, retries int, attempt func(context.Context) error) error {
	var lastErr error
	for i := range 1 + retries {
		if err := Sleep(ctx, Backoff(i)); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}
		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", 1+retries, lastErr)
}
