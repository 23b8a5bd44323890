package collection

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

// MarshalJSON encodes a sequential collection as a JSON array and any other
// collection as a JSON object whose members follow iteration order.
func (c *Collection[T]) MarshalJSON() ([]byte, error) {
	if c.Sequential() {
		return json.Marshal(c.Values())
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k.String())
		if err != nil {
			return nil, fmt.Errorf("marshal key %s: %w", k, err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		value, err := json.Marshal(c.values[i])
		if err != nil {
			return nil, fmt.Errorf("marshal item %s: %w", k, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON encodes the logical view as a JSON array.
func (t *Tracked[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Items())
}
