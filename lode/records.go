package lode

import (
	"time"

	"github.com/pithecene-io/growler/types"
)

// RecordKindEvent discriminates archived stream events.
const RecordKindEvent = "event"

// unknownEventType partitions records that carried no type.
const unknownEventType = "unknown"

// receivedAtLayout is fixed-width so records sort by their string form.
const receivedAtLayout = "2006-01-02T15:04:05.000000000Z"

// DeriveDay computes the partition day for t.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// toEventRecordMap converts an event to the archived record shape.
// day and event_type are the partition keys; the original object is kept
// under "event".
func toEventRecordMap(ev *types.Event) map[string]any {
	eventType := string(ev.Type)
	if eventType == "" {
		eventType = unknownEventType
	}

	record := map[string]any{
		"record_kind": RecordKindEvent,
		"day":         DeriveDay(ev.ReceivedAt),
		"event_type":  eventType,
		"received_at": ev.ReceivedAt.UTC().Format(receivedAtLayout),
		"event":       ev.Fields,
	}
	if c := ev.Change; c != nil {
		record["change"] = c.Number
		record["project"] = c.Project
	}
	if actor := ev.ActorUsername(); actor != "" {
		record["actor"] = actor
	}
	return record
}
