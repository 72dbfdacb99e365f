package docservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is an opaque identifier issued by the service. It decodes from JSON numbers or strings,
// and encodes as a number when it is purely numeric.
type ID string

func (id ID) String() string {
	return string(id)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Ptr returns a pointer to id, or nil for the empty id.
func (id ID) Ptr() *ID {
	if id == "" {
		return nil
	}
	return &id
}
