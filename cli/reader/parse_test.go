package reader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseEventRecord(t *testing.T) {
	tests := []struct {
		name   string
		record map[string]any
		want   HistoryRow
	}{
		{
			name: "direct write",
			record: map[string]any{
				"received_at": "2026-03-01T12:00:00.000000000Z",
				"event_type":  "change-merged",
				"change":      42,
				"project":     "infra/growler",
				"actor":       "alice",
			},
			want: HistoryRow{
				ReceivedAt: "2026-03-01T12:00:00.000000000Z",
				EventType:  "change-merged",
				Change:     42,
				Project:    "infra/growler",
				Actor:      "alice",
			},
		},
		{
			name: "json round trip",
			record: map[string]any{
				"received_at": "2026-03-01T12:00:00.000000000Z",
				"event_type":  "comment-added",
				"change":      float64(7),
			},
			want: HistoryRow{
				ReceivedAt: "2026-03-01T12:00:00.000000000Z",
				EventType:  "comment-added",
				Change:     7,
			},
		},
		{
			name: "json number",
			record: map[string]any{
				"received_at": "2026-03-01T12:00:00.000000000Z",
				"event_type":  "patchset-created",
				"change":      json.Number("1001"),
			},
			want: HistoryRow{
				ReceivedAt: "2026-03-01T12:00:00.000000000Z",
				EventType:  "patchset-created",
				Change:     1001,
			},
		},
		{
			name: "no change",
			record: map[string]any{
				"received_at": "2026-03-01T12:00:00.000000000Z",
				"event_type":  "ref-updated",
			},
			want: HistoryRow{
				ReceivedAt: "2026-03-01T12:00:00.000000000Z",
				EventType:  "ref-updated",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEventRecord(tt.record)
			if err != nil {
				t.Fatalf("ParseEventRecord: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseEventRecord_MissingFields(t *testing.T) {
	if _, err := ParseEventRecord(nil); err == nil {
		t.Error("expected error for nil record")
	}
	_, err := ParseEventRecord(map[string]any{"event_type": "change-merged"})
	if err == nil || !strings.Contains(err.Error(), "received_at") {
		t.Errorf("err = %v, want missing received_at", err)
	}
	_, err = ParseEventRecord(map[string]any{"received_at": "x"})
	if err == nil || !strings.Contains(err.Error(), "event_type") {
		t.Errorf("err = %v, want missing event_type", err)
	}
}

func TestParseEventRecords_ReportsIndex(t *testing.T) {
	records := []map[string]any{
		{"received_at": "a", "event_type": "ref-updated"},
		{"event_type": "ref-updated"},
	}
	_, err := ParseEventRecords(records)
	if err == nil || !strings.Contains(err.Error(), "record 1") {
		t.Errorf("err = %v", err)
	}
}

func TestReadReport(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "report.json")
	if err := os.WriteFile(good, []byte(`{"host":"h","command":"gerrit stream-events","events":3,"metrics":{"priority_events":1}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := ReadReport(good)
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	if report.Events != 3 || report.Metrics == nil || report.Metrics.PriorityEvents != 1 {
		t.Errorf("report = %+v", report)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"host":"h"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadReport(bad); err == nil {
		t.Error("expected error for report without command")
	}
	if _, err := ReadReport(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
