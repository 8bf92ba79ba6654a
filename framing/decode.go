package framing

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pithecene-io/growler/types"
)

// Decode parses one framed record as an Event stamped with receivedAt.
// The record must be a JSON object; any other shape is a decode error.
// Beyond that no field is validated: a known field with an unexpected
// type is treated as absent in the typed view and kept as received in
// Event.Fields. Optional fields that are missing stay missing.
//
// Errors:
//   - *FrameError with Kind=FrameErrorDecode: malformed record (non-fatal)
func Decode(line []byte, receivedAt time.Time) (*types.Event, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "record is not a JSON object",
		}
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode event",
			Err:  err,
		}
	}
	if dec.More() {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "trailing data after event object",
		}
	}

	eventType, _ := fields["type"].(string)
	return types.NewEvent(
		types.EventType(eventType),
		changeOf(fields["change"]),
		approvalsOf(fields["approvals"]),
		actorsOf(fields),
		fields,
		bytes.Clone(trimmed),
		receivedAt,
	), nil
}

func changeOf(v any) *types.Change {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return &types.Change{
		Number:  changeNumber(m["number"]),
		Project: str(m["project"]),
		Branch:  str(m["branch"]),
		Topic:   str(m["topic"]),
		ID:      str(m["id"]),
		Subject: str(m["subject"]),
		URL:     str(m["url"]),
		Status:  str(m["status"]),
		Owner:   accountOf(m["owner"]),
	}
}

// changeNumber accepts a JSON number or, as older Gerrit releases emit it,
// a numeric string. Anything else yields 0, which no watched set contains.
func changeNumber(v any) int {
	var text string
	switch v := v.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = strings.TrimSpace(v)
	default:
		return 0
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func approvalsOf(v any) []types.Approval {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]types.Approval, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, types.Approval{
			Type:        str(m["type"]),
			Description: str(m["description"]),
			Value:       text(m["value"]),
			OldValue:    text(m["oldValue"]),
		})
	}
	return out
}

// actorsOf picks out the account objects named by types.ActorKeys.
// Actor fields that are not objects (e.g. null) are treated as absent.
func actorsOf(fields map[string]any) map[string]*types.Account {
	var actors map[string]*types.Account
	for _, key := range types.ActorKeys() {
		acct := accountOf(fields[key])
		if acct == nil {
			continue
		}
		if actors == nil {
			actors = make(map[string]*types.Account)
		}
		actors[key] = acct
	}
	return actors
}

func accountOf(v any) *types.Account {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return &types.Account{
		Name:     str(m["name"]),
		Email:    str(m["email"]),
		Username: str(m["username"]),
	}
}

// str returns v if it is a string, else "".
func str(v any) string {
	s, _ := v.(string)
	return s
}

// text returns v as a string, rendering JSON numbers in their source form.
func text(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
