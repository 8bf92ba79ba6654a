package watch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pithecene-io/growler/types"
)

// DefaultFilter selects the operator's starred changes.
const DefaultFilter = "is:starred"

// statsType is the type of the summary footer gerrit query prints last.
const statsType = "stats"

// ErrTruncated is returned when query output ends without its footer.
var ErrTruncated = errors.New("query output truncated: summary line missing")

// QueryError describes a malformed record in query output.
type QueryError struct {
	// Line is the 1-based line number of the bad record.
	Line int
	Msg  string
	Err  error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("query output line %d: %s: %v", e.Line, e.Msg, e.Err)
	}
	return fmt.Sprintf("query output line %d: %s", e.Line, e.Msg)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// QueryCommand returns the remote command listing changes that match
// filter, one JSON record per line.
func QueryCommand(filter string) string {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		filter = DefaultFilter
	}
	return "gerrit query --format=JSON " + filter
}

// queryRecord is one line of gerrit query JSON output.
type queryRecord struct {
	Type    string          `json:"type"`
	Number  json.RawMessage `json:"number"`
	Message string          `json:"message"`
}

// ParseQueryOutput extracts change numbers from gerrit query output.
//
// The last non-blank line is a summary footer and is never a record. A
// footer that is itself a change record means the output was cut short.
//
// Errors:
//   - ErrTruncated: no footer, or the last line is a change record
//   - *QueryError: a record is not valid JSON, reports a server error, or
//     lacks a change number
func ParseQueryOutput(out []byte) ([]int, error) {
	var lines [][]byte
	for _, line := range bytes.Split(out, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, ErrTruncated
	}

	footer := lines[len(lines)-1]
	if isChangeRecord(footer) {
		return nil, ErrTruncated
	}

	numbers := make([]int, 0, len(lines)-1)
	for i, line := range lines[:len(lines)-1] {
		var rec queryRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, &QueryError{Line: i + 1, Msg: "invalid JSON record", Err: err}
		}
		if rec.Type == "error" {
			return nil, &QueryError{Line: i + 1, Msg: "server error: " + rec.Message}
		}
		n, err := types.ParseChangeNumber(rec.Number)
		if err != nil {
			return nil, &QueryError{Line: i + 1, Msg: "bad change number", Err: err}
		}
		numbers = append(numbers, n)
	}
	return numbers, nil
}

// isChangeRecord reports whether line decodes as a change record rather
// than a summary footer.
func isChangeRecord(line []byte) bool {
	var rec queryRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		// Non-JSON summary text.
		return false
	}
	if rec.Type == statsType {
		return false
	}
	return len(rec.Number) > 0
}
