package talk

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MessageID accepts both JSON numbers and strings
type MessageID string

// UnmarshalJSON implements json.Unmarshaler
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("message id must be a string or number: %w", err)
	}
	*id = MessageID(n.String())
	return nil
}

func (id MessageID) String() string {
	return string(id)
}
