package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ParseChangeNumber parses a change number encoded either as a JSON number
// or, as older Gerrit releases emit it, a JSON string.
func ParseChangeNumber(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("change number missing")
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("invalid change number %s: %w", raw, err)
		}
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("invalid change number %s: %w", raw, err)
	}
	return n, nil
}

// UnmarshalJSON decodes a change object, accepting string or numeric
// change numbers.
func (c *Change) UnmarshalJSON(data []byte) error {
	type plain Change
	aux := struct {
		*plain
		Number json.RawMessage `json:"number"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Number) == 0 || bytes.Equal(aux.Number, []byte("null")) {
		return nil
	}
	n, err := ParseChangeNumber(aux.Number)
	if err != nil {
		return err
	}
	c.Number = n
	return nil
}
