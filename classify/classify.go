// Package classify decides which stream events deserve the operator's
// attention.
//
// Policy, applied in order:
//   - events without a change are not priority
//   - events caused by the operator are not priority
//   - events caused by an ignored actor (bots) are not priority
//   - events on a watched change are priority
package classify

import (
	"context"
	"strings"

	"github.com/pithecene-io/growler/types"
	"github.com/pithecene-io/growler/watch"
)

// Reason explains a Decision.
type Reason string

const (
	// ReasonNoChange: the event does not concern a change.
	ReasonNoChange Reason = "no_change"
	// ReasonSelf: the operator caused the event.
	ReasonSelf Reason = "self"
	// ReasonIgnoredActor: an ignored account caused the event.
	ReasonIgnoredActor Reason = "ignored_actor"
	// ReasonWatched: the change is in the watched set.
	ReasonWatched Reason = "watched"
	// ReasonNotWatched: the change is not in the watched set.
	ReasonNotWatched Reason = "not_watched"
)

// Decision is the classifier's verdict on one event.
type Decision struct {
	Priority bool
	Reason   Reason
}

// WatchedSource supplies the current watched set.
// Implementations must not fail; a degraded source returns an empty set.
type WatchedSource interface {
	Get(ctx context.Context) watch.Set
}

// Config configures a Classifier.
type Config struct {
	// Username is the operator's own account name.
	Username string
	// IgnoredActors are account usernames whose events are never priority.
	IgnoredActors []string
	// Watched resolves the watched set (required).
	Watched WatchedSource
}

// Classifier implements the priority policy.
type Classifier struct {
	username string
	ignored  map[string]struct{}
	watched  WatchedSource
}

// New creates a Classifier from cfg.
func New(cfg Config) *Classifier {
	ignored := make(map[string]struct{}, len(cfg.IgnoredActors))
	for _, name := range cfg.IgnoredActors {
		name = strings.TrimSpace(name)
		if name != "" {
			ignored[name] = struct{}{}
		}
	}
	return &Classifier{
		username: cfg.Username,
		ignored:  ignored,
		watched:  cfg.Watched,
	}
}

// IsPriority classifies ev. The watched set is only consulted for events
// that survive the cheaper actor checks.
func (c *Classifier) IsPriority(ctx context.Context, ev *types.Event) Decision {
	if !ev.HasChange() {
		return Decision{Reason: ReasonNoChange}
	}

	actor := ev.ActorUsername()
	if actor != "" && actor == c.username {
		return Decision{Reason: ReasonSelf}
	}
	if _, ok := c.ignored[actor]; ok && actor != "" {
		return Decision{Reason: ReasonIgnoredActor}
	}

	if c.watched != nil && c.watched.Get(ctx).Contains(ev.ChangeNumber()) {
		return Decision{Priority: true, Reason: ReasonWatched}
	}
	return Decision{Reason: ReasonNotWatched}
}
