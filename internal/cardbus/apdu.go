package cardbus

import "fmt"

// Command is a structured command unit per ISO/IEC 7816-4: class,
// instruction, two parameter bytes, optional payload, optional expected
// response length.
type Command struct {
	Cla  byte
	Ins  byte
	P1   byte
	P2   byte
	Data []byte
	Le   *int // expected response length; nil means none
}

// Bytes serializes the command into its short-form wire representation.
func (c Command) Bytes() []byte {
	out := []byte{c.Cla, c.Ins, c.P1, c.P2}
	if len(c.Data) > 0 {
		out = append(out, byte(len(c.Data)))
		out = append(out, c.Data...)
	}
	if c.Le != nil {
		out = append(out, byte(*c.Le))
	}
	return out
}

// String formats the command header for logging.
func (c Command) String() string {
	return fmt.Sprintf("%02X %02X %02X %02X lc=%d", c.Cla, c.Ins, c.P1, c.P2, len(c.Data))
}

// Response is a card's reply: optional payload followed by the two status
// bytes.
type Response struct {
	Data []byte
	SW1  byte
	SW2  byte
}

// SW returns the status word as a single 16-bit value, e.g. 0x9000.
func (r Response) SW() uint16 {
	return uint16(r.SW1)<<8 | uint16(r.SW2)
}

// OK reports whether the status word indicates success (90 00).
func (r Response) OK() bool {
	return r.SW() == 0x9000
}

// ParseResponse splits raw reply bytes into payload and status bytes.
// The reply must be at least two bytes long.
func ParseResponse(raw []byte) (Response, error) {
	if len(raw) < 2 {
		return Response{}, fmt.Errorf("response too short: %d bytes", len(raw))
	}
	r := Response{
		SW1: raw[len(raw)-2],
		SW2: raw[len(raw)-1],
	}
	if len(raw) > 2 {
		r.Data = append([]byte(nil), raw[:len(raw)-2]...)
	}
	return r, nil
}
