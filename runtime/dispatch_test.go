package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/growler/adapter"
	"github.com/pithecene-io/growler/classify"
	"github.com/pithecene-io/growler/clock"
	"github.com/pithecene-io/growler/framing"
	"github.com/pithecene-io/growler/journal"
	"github.com/pithecene-io/growler/metrics"
	"github.com/pithecene-io/growler/transport"
	"github.com/pithecene-io/growler/types"
	"github.com/pithecene-io/growler/watch"
)

type staticWatched struct {
	set watch.Set
}

func (s staticWatched) Get(context.Context) watch.Set { return s.set }

type recordingNotifier struct {
	mu        sync.Mutex
	err       error
	published []*adapter.PriorityEvent
	notify    chan *adapter.PriorityEvent
	closed    bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{notify: make(chan *adapter.PriorityEvent, 16)}
}

func (r *recordingNotifier) Publish(_ context.Context, e *adapter.PriorityEvent) error {
	r.mu.Lock()
	r.published = append(r.published, e)
	err := r.err
	r.mu.Unlock()
	r.notify <- e
	return err
}

func (r *recordingNotifier) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published)
}

type failingSink struct {
	writes  int
	flushes int
	closed  bool
}

func (f *failingSink) Write(context.Context, *types.Event) error {
	f.writes++
	return errors.New("disk full")
}

func (f *failingSink) Flush(context.Context) error {
	f.flushes++
	return errors.New("disk full")
}

func (f *failingSink) Close() error {
	f.closed = true
	return nil
}

type panicClassifier struct{}

func (panicClassifier) IsPriority(context.Context, *types.Event) classify.Decision {
	panic("classifier exploded")
}

func decodeEvent(t *testing.T, line string) *types.Event {
	t.Helper()
	ev, err := framing.Decode([]byte(line), testEpoch)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return ev
}

func newClassifier(watched ...int) *classify.Classifier {
	return classify.New(classify.Config{
		Username: "bob",
		Watched:  staticWatched{set: watch.NewSet(watched, testEpoch)},
	})
}

func TestDispatcher_RequiresClassifier(t *testing.T) {
	if _, err := NewDispatcher(DispatcherConfig{}); err == nil {
		t.Error("expected error without classifier")
	}
}

func TestDispatcher_PriorityEventNotifies(t *testing.T) {
	var buf bytes.Buffer
	notifier := newRecordingNotifier()
	collector := metrics.NewCollector("review.example.com", "stub")
	d, err := NewDispatcher(DispatcherConfig{
		Sinks:      []Sink{journal.NewWriter(&buf)},
		Classifier: newClassifier(42),
		Notifier:   notifier,
		Collector:  collector,
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	d.Dispatch(t.Context(), decodeEvent(t, changeMerged))
	d.Dispatch(t.Context(), decodeEvent(t, commentAdded))

	if notifier.count() != 1 {
		t.Fatalf("published %d, want 1", notifier.count())
	}
	pe := notifier.published[0]
	if pe.Change != 42 || pe.Reason != string(classify.ReasonWatched) || pe.Actor != "alice" {
		t.Errorf("priority event = %+v", pe)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("journal lines = %d, want 2", len(lines))
	}
	if got := collector.Snapshot().PriorityEvents; got != 1 {
		t.Errorf("PriorityEvents = %d, want 1", got)
	}
}

func TestDispatcher_SelfAndUnwatchedSkipped(t *testing.T) {
	notifier := newRecordingNotifier()
	d, err := NewDispatcher(DispatcherConfig{
		Classifier: newClassifier(42, 7),
		Notifier:   notifier,
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	self := `{"type":"comment-added","change":{"number":42},"author":{"username":"bob"}}`
	d.Dispatch(t.Context(), decodeEvent(t, self))
	d.Dispatch(t.Context(), decodeEvent(t, refUpdated))
	unwatched := `{"type":"patchset-created","change":{"number":99},"uploader":{"username":"carol"}}`
	d.Dispatch(t.Context(), decodeEvent(t, unwatched))

	if notifier.count() != 0 {
		t.Errorf("published %d, want 0", notifier.count())
	}
}

func TestDispatcher_SinkFailureIsolated(t *testing.T) {
	var buf bytes.Buffer
	bad := &failingSink{}
	notifier := newRecordingNotifier()
	collector := metrics.NewCollector("review.example.com", "stub")
	d, err := NewDispatcher(DispatcherConfig{
		Sinks:      []Sink{bad, journal.NewWriter(&buf)},
		Classifier: newClassifier(42),
		Notifier:   notifier,
		Collector:  collector,
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	d.Dispatch(t.Context(), decodeEvent(t, changeMerged))

	if bad.writes != 1 {
		t.Errorf("bad sink writes = %d", bad.writes)
	}
	if buf.Len() == 0 {
		t.Error("healthy sink skipped after failing sink")
	}
	if notifier.count() != 1 {
		t.Error("notification skipped after sink failure")
	}
	if got := collector.Snapshot().JournalFailures; got != 1 {
		t.Errorf("JournalFailures = %d, want 1", got)
	}

	d.Flush(t.Context())
	if bad.flushes != 1 {
		t.Errorf("flushes = %d, want 1", bad.flushes)
	}
}

func TestDispatcher_ClassifierPanicContained(t *testing.T) {
	var buf bytes.Buffer
	notifier := newRecordingNotifier()
	collector := metrics.NewCollector("review.example.com", "stub")
	d, err := NewDispatcher(DispatcherConfig{
		Sinks:      []Sink{journal.NewWriter(&buf)},
		Classifier: panicClassifier{},
		Notifier:   notifier,
		Collector:  collector,
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	d.Dispatch(t.Context(), decodeEvent(t, changeMerged))

	if buf.Len() == 0 {
		t.Error("event not journaled")
	}
	if notifier.count() != 0 {
		t.Error("panicking classifier must not produce a notification")
	}
	if got := collector.Snapshot().DispatchFaults; got != 1 {
		t.Errorf("DispatchFaults = %d, want 1", got)
	}
}

func TestDispatcher_NotifyFailureCounted(t *testing.T) {
	notifier := newRecordingNotifier()
	notifier.err = errors.New("503")
	collector := metrics.NewCollector("review.example.com", "stub")
	d, err := NewDispatcher(DispatcherConfig{
		Classifier: newClassifier(42),
		Notifier:   notifier,
		Collector:  collector,
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	d.Dispatch(t.Context(), decodeEvent(t, changeMerged))

	if got := collector.Snapshot().NotifyFailures; got != 1 {
		t.Errorf("NotifyFailures = %d, want 1", got)
	}
}

func TestDispatcher_CloseClosesAll(t *testing.T) {
	bad := &failingSink{}
	notifier := newRecordingNotifier()
	d, err := NewDispatcher(DispatcherConfig{
		Sinks:      []Sink{bad},
		Classifier: newClassifier(),
		Notifier:   notifier,
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !bad.closed || !notifier.closed {
		t.Error("Close did not close every component")
	}
}

// TestListener_ChangeMergedOnWatchedChange runs the stream, watched-set
// query, classifier, journal and notifier together.
func TestListener_ChangeMergedOnWatchedChange(t *testing.T) {
	stub := transport.NewStub()
	stub.RunFunc = func(_ context.Context, command string) ([]byte, error) {
		if !strings.HasPrefix(command, "gerrit query --format=JSON") {
			t.Errorf("unexpected query %q", command)
		}
		return []byte(`{"project":"p","number":42,"subject":"Fix it"}` + "\n" +
			`{"type":"stats","rowCount":1}` + "\n"), nil
	}
	sess := transport.NewStubSession()
	stub.QueueSession(sess)
	clk := clock.Fake(testEpoch)
	collector := metrics.NewCollector("review.example.com", "stub")

	cache, err := watch.New(watch.Config{
		Transport: stub,
		Clock:     clk,
		Collector: collector,
	})
	if err != nil {
		t.Fatalf("watch.New: %v", err)
	}

	var buf bytes.Buffer
	notifier := newRecordingNotifier()
	d, err := NewDispatcher(DispatcherConfig{
		Sinks: []Sink{journal.NewWriter(&buf)},
		Classifier: classify.New(classify.Config{
			Username: "bob",
			Watched:  cache,
		}),
		Notifier:  notifier,
		Collector: collector,
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	s := newTestSupervisor(t, Config{
		Transport: stub,
		Dispatch:  d.Dispatch,
		Clock:     clk,
		Collector: collector,
	})
	stop := startSupervisor(t, s)

	if err := sess.Send(changeMerged + "\n"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var pe *adapter.PriorityEvent
	select {
	case pe = <-notifier.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("no priority notification")
	}
	if err := stop(); err != nil {
		t.Fatalf("Run = %v", err)
	}

	if pe.EventType != string(types.EventTypeChangeMerged) || pe.Change != 42 {
		t.Errorf("priority event = %+v", pe)
	}
	if pe.Subject != "Fix it" || pe.ActorName != "Alice" {
		t.Errorf("priority event = %+v", pe)
	}

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("journal line: %v", err)
	}
	if record["type"] != "change-merged" {
		t.Errorf("journal type = %v", record["type"])
	}
	if _, ok := record[journal.ReceivedAtField]; !ok {
		t.Error("journal line missing received_at")
	}

	snap := collector.Snapshot()
	if snap.WatchQueries != 1 || snap.PriorityEvents != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}
