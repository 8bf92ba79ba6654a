// Package reader loads the data behind growler's read-only commands:
// session reports written by listen --report and archived event records.
package reader

// HistoryRow is one archived event, flattened for display.
type HistoryRow struct {
	ReceivedAt string `json:"received_at" yaml:"received_at"`
	EventType  string `json:"event_type" yaml:"event_type"`
	Change     int    `json:"change,omitempty" yaml:"change,omitempty"`
	Project    string `json:"project,omitempty" yaml:"project,omitempty"`
	Actor      string `json:"actor,omitempty" yaml:"actor,omitempty"`
}

// HistoryResponse is the payload of the history command.
type HistoryResponse struct {
	Dataset string       `json:"dataset" yaml:"dataset"`
	Count   int          `json:"count" yaml:"count"`
	Events  []HistoryRow `json:"events" yaml:"events"`
}
