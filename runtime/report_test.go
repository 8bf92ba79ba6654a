package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pithecene-io/growler/metrics"
	"github.com/pithecene-io/growler/transport"
	"github.com/pithecene-io/growler/types"
)

func newStoppedSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	s := newTestSupervisor(t, Config{
		Transport: transport.NewStub(),
		Dispatch:  func(context.Context, *types.Event) {},
		Subscribe: []string{"change-merged"},
	})
	s.setState(StateStopped)
	s.mu.Lock()
	s.stats = Stats{
		Sessions:      3,
		Faults:        2,
		Events:        17,
		LastFault:     "session exit fault: exit status 255",
		LastFaultKind: "exit",
		LastFaultAt:   testEpoch.Add(time.Minute),
	}
	s.mu.Unlock()
	return s
}

func TestBuildReport(t *testing.T) {
	s := newStoppedSupervisor(t)
	snap := metrics.Snapshot{SessionsOpened: 3, EventsReceived: 17}

	report := BuildReport(s, "review.example.com", testEpoch, testEpoch.Add(90*time.Second), snap)

	if report.Command != "gerrit stream-events -s change-merged" {
		t.Errorf("Command = %q", report.Command)
	}
	if report.DurationMs != 90000 {
		t.Errorf("DurationMs = %d, want 90000", report.DurationMs)
	}
	if report.State != "stopped" {
		t.Errorf("State = %q, want stopped", report.State)
	}
	if report.Sessions != 3 || report.Faults != 2 || report.Events != 17 {
		t.Errorf("counters = %+v", report)
	}
	if report.LastFaultKind != "exit" || report.LastFaultAt != "2026-03-01T12:01:00Z" {
		t.Errorf("last fault = %q at %q", report.LastFaultKind, report.LastFaultAt)
	}
	if report.Metrics == nil || report.Metrics.EventsReceived != 17 {
		t.Errorf("Metrics = %+v", report.Metrics)
	}
}

func TestBuildReport_NoFaults(t *testing.T) {
	s := newTestSupervisor(t, Config{
		Transport: transport.NewStub(),
		Dispatch:  func(context.Context, *types.Event) {},
	})
	report := BuildReport(s, "h", testEpoch, testEpoch, metrics.Snapshot{})

	var buf bytes.Buffer
	if err := writeReportTo(report, &buf); err != nil {
		t.Fatalf("writeReportTo: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if _, ok := decoded["last_fault"]; ok {
		t.Error("last_fault should be omitted without faults")
	}
	if _, ok := decoded["metrics"]; !ok {
		t.Error("metrics missing")
	}
}

func TestWriteReport_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	report := BuildReport(newStoppedSupervisor(t), "h", testEpoch, testEpoch.Add(time.Second), metrics.Snapshot{})

	if err := WriteReport(report, path); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var decoded SessionReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Events != 17 || decoded.Host != "h" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteReport_EmptyPath(t *testing.T) {
	if err := WriteReport(&SessionReport{}, ""); err == nil {
		t.Error("expected error for empty path")
	}
}
