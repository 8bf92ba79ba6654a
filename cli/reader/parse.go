package reader

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/pithecene-io/growler/runtime"
)

// ParseEventRecord converts an archived record (map[string]any) to a
// HistoryRow. Numeric fields may arrive as int (direct writes), float64
// or json.Number (JSON round-trips).
func ParseEventRecord(record map[string]any) (HistoryRow, error) {
	if record == nil {
		return HistoryRow{}, errors.New("nil record")
	}

	row := HistoryRow{
		ReceivedAt: toString(record["received_at"]),
		EventType:  toString(record["event_type"]),
		Change:     int(toInt64(record["change"])),
		Project:    toString(record["project"]),
		Actor:      toString(record["actor"]),
	}

	// The write path always sets these.
	if row.ReceivedAt == "" {
		return HistoryRow{}, errors.New("event record missing required field: received_at")
	}
	if row.EventType == "" {
		return HistoryRow{}, errors.New("event record missing required field: event_type")
	}
	return row, nil
}

// ParseEventRecords converts records in order, stopping at the first
// malformed one.
func ParseEventRecords(records []map[string]any) ([]HistoryRow, error) {
	rows := make([]HistoryRow, 0, len(records))
	for i, record := range records {
		row, err := ParseEventRecord(record)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadReport loads a session report written by listen --report.
func ReadReport(path string) (*runtime.SessionReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read report %q: %w", path, err)
	}
	var report runtime.SessionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("invalid report %s: %w", path, err)
	}
	if report.Command == "" {
		return nil, fmt.Errorf("invalid report %s: missing command", path)
	}
	return &report, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
