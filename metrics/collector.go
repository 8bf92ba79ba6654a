// Package metrics provides per-process counters for the event stream.
//
// The Collector accumulates counters for the lifetime of one listener
// process. It is a leaf package with no internal dependencies.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Session lifecycle
	SessionsOpened int64 `json:"sessions_opened"`
	SessionFaults  int64 `json:"session_faults"`
	OpenFailures   int64 `json:"open_failures"`
	Reconnects     int64 `json:"reconnects"`
	KeepalivesSent int64 `json:"keepalives_sent"`

	// Stream
	BytesReceived  int64            `json:"bytes_received"`
	EventsReceived int64            `json:"events_received"`
	DecodeErrors   int64            `json:"decode_errors"`
	EventsByType   map[string]int64 `json:"events_by_type"`

	// Dispatch
	PriorityEvents  int64 `json:"priority_events"`
	DispatchFaults  int64 `json:"dispatch_faults"`
	NotifyFailures  int64 `json:"notify_failures"`
	JournalFailures int64 `json:"journal_failures"`

	// Archive
	ArchiveBatches  int64 `json:"archive_batches"`
	ArchiveFailures int64 `json:"archive_failures"`

	// Watched-set cache
	WatchQueries       int64 `json:"watch_queries"`
	WatchQueryFailures int64 `json:"watch_query_failures"`
	WatchCacheHits     int64 `json:"watch_cache_hits"`
	WatchDegraded      int64 `json:"watch_degraded"`

	// Dimensions (informational, set at construction)
	Host      string `json:"host"`
	Transport string `json:"transport"`
}

// Collector accumulates counters. Thread-safe via sync.Mutex.
// All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	sessionsOpened int64
	sessionFaults  int64
	openFailures   int64
	reconnects     int64
	keepalivesSent int64

	bytesReceived  int64
	eventsReceived int64
	decodeErrors   int64
	eventsByType   map[string]int64

	priorityEvents  int64
	dispatchFaults  int64
	notifyFailures  int64
	journalFailures int64

	archiveBatches  int64
	archiveFailures int64

	watchQueries       int64
	watchQueryFailures int64
	watchCacheHits     int64
	watchDegraded      int64

	host      string
	transport string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(host, transport string) *Collector {
	return &Collector{
		eventsByType: make(map[string]int64),
		host:         host,
		transport:    transport,
	}
}

func (c *Collector) add(field *int64, n int64) {
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// --- Session lifecycle ---

// IncSessionOpened records a successfully opened stream session.
func (c *Collector) IncSessionOpened() {
	if c == nil {
		return
	}
	c.add(&c.sessionsOpened, 1)
}

// IncSessionFault records a transport fault that ended a session.
func (c *Collector) IncSessionFault() {
	if c == nil {
		return
	}
	c.add(&c.sessionFaults, 1)
}

// IncOpenFailure records a failed attempt to open a session.
func (c *Collector) IncOpenFailure() {
	if c == nil {
		return
	}
	c.add(&c.openFailures, 1)
}

// IncReconnect records a reconnect after backoff.
func (c *Collector) IncReconnect() {
	if c == nil {
		return
	}
	c.add(&c.reconnects, 1)
}

// IncKeepalive records a keepalive sent on an idle session.
func (c *Collector) IncKeepalive() {
	if c == nil {
		return
	}
	c.add(&c.keepalivesSent, 1)
}

// --- Stream ---

// AddBytesReceived records raw bytes read from the session.
func (c *Collector) AddBytesReceived(n int) {
	if c == nil {
		return
	}
	c.add(&c.bytesReceived, int64(n))
}

// IncEventReceived records a decoded event of the given type.
func (c *Collector) IncEventReceived(eventType string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsReceived++
	c.eventsByType[eventType]++
	c.mu.Unlock()
}

// IncDecodeError records a record that failed to decode.
func (c *Collector) IncDecodeError() {
	if c == nil {
		return
	}
	c.add(&c.decodeErrors, 1)
}

// --- Dispatch ---

// IncPriorityEvent records an event classified as priority.
func (c *Collector) IncPriorityEvent() {
	if c == nil {
		return
	}
	c.add(&c.priorityEvents, 1)
}

// IncDispatchFault records a recovered panic or unexpected error while
// dispatching a single event.
func (c *Collector) IncDispatchFault() {
	if c == nil {
		return
	}
	c.add(&c.dispatchFaults, 1)
}

// IncNotifyFailure records a notification sink failure for one event.
func (c *Collector) IncNotifyFailure() {
	if c == nil {
		return
	}
	c.add(&c.notifyFailures, 1)
}

// IncJournalFailure records a journal sink failure for one event.
func (c *Collector) IncJournalFailure() {
	if c == nil {
		return
	}
	c.add(&c.journalFailures, 1)
}

// --- Archive ---

// IncArchiveBatch records a batch of records written to the archive.
func (c *Collector) IncArchiveBatch() {
	if c == nil {
		return
	}
	c.add(&c.archiveBatches, 1)
}

// IncArchiveFailure records a failed archive batch write.
func (c *Collector) IncArchiveFailure() {
	if c == nil {
		return
	}
	c.add(&c.archiveFailures, 1)
}

// --- Watched-set cache ---

// IncWatchQuery records a remote watched-list query attempt.
func (c *Collector) IncWatchQuery() {
	if c == nil {
		return
	}
	c.add(&c.watchQueries, 1)
}

// IncWatchQueryFailure records a failed watched-list query attempt.
func (c *Collector) IncWatchQueryFailure() {
	if c == nil {
		return
	}
	c.add(&c.watchQueryFailures, 1)
}

// IncWatchCacheHit records a lookup served from a fresh cached set.
func (c *Collector) IncWatchCacheHit() {
	if c == nil {
		return
	}
	c.add(&c.watchCacheHits, 1)
}

// IncWatchDegraded records a lookup that fell back to a stale or empty set.
func (c *Collector) IncWatchDegraded() {
	if c == nil {
		return
	}
	c.add(&c.watchDegraded, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byType := make(map[string]int64, len(c.eventsByType))
	for k, v := range c.eventsByType {
		byType[k] = v
	}

	return Snapshot{
		SessionsOpened: c.sessionsOpened,
		SessionFaults:  c.sessionFaults,
		OpenFailures:   c.openFailures,
		Reconnects:     c.reconnects,
		KeepalivesSent: c.keepalivesSent,

		BytesReceived:  c.bytesReceived,
		EventsReceived: c.eventsReceived,
		DecodeErrors:   c.decodeErrors,
		EventsByType:   byType,

		PriorityEvents:  c.priorityEvents,
		DispatchFaults:  c.dispatchFaults,
		NotifyFailures:  c.notifyFailures,
		JournalFailures: c.journalFailures,

		ArchiveBatches:  c.archiveBatches,
		ArchiveFailures: c.archiveFailures,

		WatchQueries:       c.watchQueries,
		WatchQueryFailures: c.watchQueryFailures,
		WatchCacheHits:     c.watchCacheHits,
		WatchDegraded:      c.watchDegraded,

		Host:      c.host,
		Transport: c.transport,
	}
}

// Fields flattens the snapshot into log fields.
func (s Snapshot) Fields() map[string]any {
	return map[string]any{
		"sessions_opened":      s.SessionsOpened,
		"session_faults":       s.SessionFaults,
		"open_failures":        s.OpenFailures,
		"reconnects":           s.Reconnects,
		"keepalives_sent":      s.KeepalivesSent,
		"bytes_received":       s.BytesReceived,
		"events_received":      s.EventsReceived,
		"decode_errors":        s.DecodeErrors,
		"priority_events":      s.PriorityEvents,
		"dispatch_faults":      s.DispatchFaults,
		"notify_failures":      s.NotifyFailures,
		"journal_failures":     s.JournalFailures,
		"archive_batches":      s.ArchiveBatches,
		"archive_failures":     s.ArchiveFailures,
		"watch_queries":        s.WatchQueries,
		"watch_query_failures": s.WatchQueryFailures,
		"watch_cache_hits":     s.WatchCacheHits,
		"watch_degraded":       s.WatchDegraded,
	}
}
