package wire

// Typed params and results for each RPC method. Both sides of the wire share
// these shapes: the remote proxy marshals params and decodes results, the
// local adapter does the reverse.

// DeviceInfo describes one reader known to a platform.
type DeviceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DeviceInfoResult is the result of platform.getDeviceInfo.
type DeviceInfoResult struct {
	Devices []DeviceInfo `json:"devices"`
}

// AcquireDeviceParams are the params of platform.acquireDevice.
type AcquireDeviceParams struct {
	DeviceID string `json:"deviceId"`
}

// AcquireDeviceResult carries the handle minted for the acquired device.
type AcquireDeviceResult struct {
	Handle string `json:"handle"`
}

// HandleParams target an existing device or card handle. Used by all
// device.* and card.* methods that take no other arguments.
type HandleParams struct {
	Handle string `json:"handle"`
}

// StartSessionResult carries the handle minted for the new card session.
type StartSessionResult struct {
	Handle string `json:"handle"`
}

// SessionActiveResult is the result of device.isSessionActive.
type SessionActiveResult struct {
	Active bool `json:"active"`
}

// CommandBody is the structured form of a command unit: class, instruction,
// parameter bytes, optional payload, optional expected response length.
type CommandBody struct {
	Cla  uint8   `json:"cla"`
	Ins  uint8   `json:"ins"`
	P1   uint8   `json:"p1"`
	P2   uint8   `json:"p2"`
	Data ByteSeq `json:"data,omitempty"`
	Le   *int    `json:"le,omitempty"`
}

// TransmitParams are the params of card.transmit. Exactly one of Command or
// Raw is set: a structured command or a raw byte sequence.
type TransmitParams struct {
	Handle  string       `json:"handle"`
	Command *CommandBody `json:"command,omitempty"`
	Raw     ByteSeq      `json:"raw,omitempty"`
}

// TransmitResult carries the card's reply: status bytes plus optional payload.
type TransmitResult struct {
	Data ByteSeq `json:"data,omitempty"`
	SW1  uint8   `json:"sw1"`
	SW2  uint8   `json:"sw2"`
}

// ATRResult is the result of card.getATR.
type ATRResult struct {
	ATR ByteSeq `json:"atr"`
}

// CardNoticeData is the event data for cardInserted/cardRemoved events,
// scoped to the device handle the notice originated from.
type CardNoticeData struct {
	DeviceID string `json:"deviceId"`
}
