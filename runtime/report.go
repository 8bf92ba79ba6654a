package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pithecene-io/growler/metrics"
)

// SessionReport is the structured JSON report written by --report when
// the listener stops.
type SessionReport struct {
	Host       string `json:"host"`
	Command    string `json:"command"`
	StartedAt  string `json:"started_at"`
	StoppedAt  string `json:"stopped_at"`
	DurationMs int64  `json:"duration_ms"`
	State      string `json:"state"`

	Sessions      int64  `json:"sessions"`
	Faults        int64  `json:"faults"`
	Events        int64  `json:"events"`
	LastFault     string `json:"last_fault,omitempty"`
	LastFaultKind string `json:"last_fault_kind,omitempty"`
	LastFaultAt   string `json:"last_fault_at,omitempty"`

	Metrics *metrics.Snapshot `json:"metrics"`
}

// BuildReport composes a SessionReport from a stopped supervisor.
func BuildReport(s *Supervisor, host string, started, stopped time.Time, snap metrics.Snapshot) *SessionReport {
	stats := s.Stats()
	report := &SessionReport{
		Host:          host,
		Command:       s.Command(),
		StartedAt:     started.UTC().Format(time.RFC3339),
		StoppedAt:     stopped.UTC().Format(time.RFC3339),
		DurationMs:    stopped.Sub(started).Milliseconds(),
		State:         s.State().String(),
		Sessions:      stats.Sessions,
		Faults:        stats.Faults,
		Events:        stats.Events,
		LastFault:     stats.LastFault,
		LastFaultKind: stats.LastFaultKind,
		Metrics:       &snap,
	}
	if !stats.LastFaultAt.IsZero() {
		report.LastFaultAt = stats.LastFaultAt.UTC().Format(time.RFC3339)
	}
	return report
}

// WriteReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteReport(report *SessionReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		if err := writeReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err := writeReportTo(report, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

func writeReportTo(report *SessionReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
