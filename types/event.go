// Package types defines core domain types for the growler event stream.
//
//nolint:revive // types is a common Go package naming convention
package types

import "time"

// EventType is the Gerrit stream-events type discriminator.
type EventType string

// Event types emitted by `gerrit stream-events`. The list is not closed:
// unknown types decode normally and keep their raw string.
const (
	EventTypeChangeAbandoned     EventType = "change-abandoned"
	EventTypeChangeDeleted       EventType = "change-deleted"
	EventTypeChangeMerged        EventType = "change-merged"
	EventTypeChangeRestored      EventType = "change-restored"
	EventTypeCommentAdded        EventType = "comment-added"
	EventTypeHashtagsChanged     EventType = "hashtags-changed"
	EventTypePatchsetCreated     EventType = "patchset-created"
	EventTypeProjectCreated      EventType = "project-created"
	EventTypeRefUpdated          EventType = "ref-updated"
	EventTypeReviewerAdded       EventType = "reviewer-added"
	EventTypeReviewerDeleted     EventType = "reviewer-deleted"
	EventTypeTopicChanged        EventType = "topic-changed"
	EventTypeWipStateChanged     EventType = "wip-state-changed"
	EventTypePrivateStateChanged EventType = "private-state-changed"
	EventTypeVoteDeleted         EventType = "vote-deleted"
)

// Account identifies a Gerrit user inside an event.
type Account struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

// Change is the change object carried by change-related events.
type Change struct {
	Number  int      `json:"number"`
	Project string   `json:"project"`
	Branch  string   `json:"branch,omitempty"`
	Topic   string   `json:"topic,omitempty"`
	ID      string   `json:"id,omitempty"`
	Subject string   `json:"subject,omitempty"`
	URL     string   `json:"url,omitempty"`
	Status  string   `json:"status,omitempty"`
	Owner   *Account `json:"owner,omitempty"`
}

// Approval is a single label vote attached to comment-added events.
type Approval struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Value       string `json:"value"`
	OldValue    string `json:"oldValue,omitempty"`
}

// actorKeys lists the event fields that name the account responsible for the
// event, in lookup order. "reviewer" comes last: on reviewer and vote events
// it names the account acted on.
var actorKeys = []string{
	"author",
	"uploader",
	"submitter",
	"abandoner",
	"restorer",
	"changer",
	"editor",
	"adder",
	"remover",
	"deleter",
	"reviewer",
}

// actorKeysByType overrides actorKeys for events whose "reviewer" field is
// the subject rather than the actor.
var actorKeysByType = map[EventType][]string{
	EventTypeReviewerAdded:   {"adder"},
	EventTypeReviewerDeleted: {"remover", "deleter"},
	EventTypeVoteDeleted:     {"remover", "deleter"},
}

// ActorKeys returns the event fields consulted by Event.Actor, in order.
func ActorKeys() []string {
	out := make([]string, len(actorKeys))
	copy(out, actorKeys)
	return out
}

// Event is one decoded record from the event stream.
// An Event is never mutated after decoding; accessors return copies of
// nested values where mutation would otherwise leak.
type Event struct {
	// Type is the event type discriminator. Empty if the record had none.
	Type EventType
	// Change is present only for change-related events.
	Change *Change
	// Approvals is present only for events carrying votes.
	Approvals []Approval
	// Fields is the full decoded object. Absent optional fields stay absent.
	Fields map[string]any
	// Raw is the exact framed line the event was decoded from.
	Raw []byte
	// ReceivedAt is the wall-clock time the record was decoded.
	ReceivedAt time.Time

	actors map[string]*Account
}

// NewEvent builds an Event from its decoded parts.
func NewEvent(
	eventType EventType,
	change *Change,
	approvals []Approval,
	actors map[string]*Account,
	fields map[string]any,
	raw []byte,
	receivedAt time.Time,
) *Event {
	return &Event{
		Type:       eventType,
		Change:     change,
		Approvals:  approvals,
		Fields:     fields,
		Raw:        raw,
		ReceivedAt: receivedAt,
		actors:     actors,
	}
}

// HasChange reports whether the event carries a change object.
func (e *Event) HasChange() bool {
	return e.Change != nil
}

// ChangeNumber returns the change number, or 0 if the event has no change.
func (e *Event) ChangeNumber() int {
	if e.Change == nil {
		return 0
	}
	return e.Change.Number
}

// Account returns the account stored under key (e.g. "uploader").
func (e *Event) Account(key string) (*Account, bool) {
	acct, ok := e.actors[key]
	return acct, ok && acct != nil
}

// Actor returns the account that caused the event, or nil if there is
// none. Reviewer and vote events use their own actor field; other events
// take the first account present in ActorKeys order.
func (e *Event) Actor() *Account {
	keys, ok := actorKeysByType[e.Type]
	if !ok {
		keys = actorKeys
	}
	for _, key := range keys {
		if acct, ok := e.Account(key); ok {
			return acct
		}
	}
	return nil
}

// ActorUsername returns the username of Actor, or "".
func (e *Event) ActorUsername() string {
	if acct := e.Actor(); acct != nil {
		return acct.Username
	}
	return ""
}
