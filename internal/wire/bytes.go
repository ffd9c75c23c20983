package wire

import (
	"encoding/json"
	"fmt"
)

// ByteSeq is a byte slice that marshals as a JSON array of numeric byte
// values rather than base64. Command bytes, response bytes, and ATRs cross
// the wire in this form so any text-capable peer can read them.
type ByteSeq []byte

// MarshalJSON encodes the bytes as a JSON array of numbers.
func (b ByteSeq) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	out := make([]byte, 0, len(b)*4+2)
	out = append(out, '[')
	for i, v := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = fmt.Appendf(out, "%d", v)
	}
	out = append(out, ']')
	return out, nil
}

// UnmarshalJSON decodes a JSON array of numbers into bytes. Values outside
// 0-255 are rejected.
func (b *ByteSeq) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}
	var vals []int
	if err := json.Unmarshal(data, &vals); err != nil {
		return err
	}
	out := make([]byte, len(vals))
	for i, v := range vals {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte value out of range at index %d: %d", i, v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}
