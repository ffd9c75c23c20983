// Package wire defines the message shapes exchanged between controllers, the
// router, and card hosts. It covers the RPC envelope (Request, Response,
// Event), the outer frame carrying a type discriminator, the closed set of
// RPC methods, and the stable error codes. The package is a pure data
// contract with no transport dependencies.
package wire

import (
	"encoding/json"
	"errors"
)

// Method identifies an RPC operation. The set is closed; dispatch tables are
// keyed by Method and unknown values are rejected at parse time.
type Method string

const (
	MethodPlatformInit          Method = "platform.init"
	MethodPlatformRelease       Method = "platform.release"
	MethodPlatformDeviceInfo    Method = "platform.getDeviceInfo"
	MethodPlatformAcquireDevice Method = "platform.acquireDevice"
	MethodDeviceStartSession    Method = "device.startSession"
	MethodDeviceSessionActive   Method = "device.isSessionActive"
	MethodDeviceRelease         Method = "device.release"
	MethodCardTransmit          Method = "card.transmit"
	MethodCardATR               Method = "card.getATR"
	MethodCardReset             Method = "card.reset"
	MethodCardRelease           Method = "card.release"
)

var knownMethods = map[Method]bool{
	MethodPlatformInit:          true,
	MethodPlatformRelease:       true,
	MethodPlatformDeviceInfo:    true,
	MethodPlatformAcquireDevice: true,
	MethodDeviceStartSession:    true,
	MethodDeviceSessionActive:   true,
	MethodDeviceRelease:         true,
	MethodCardTransmit:          true,
	MethodCardATR:               true,
	MethodCardReset:             true,
	MethodCardRelease:           true,
}

// Valid reports whether m is one of the defined RPC methods.
func (m Method) Valid() bool {
	return knownMethods[m]
}

// TargetKind identifies what kind of object an event refers to.
type TargetKind string

const (
	TargetPlatform TargetKind = "platform"
	TargetDevice   TargetKind = "device"
	TargetCard     TargetKind = "card"
)

// ErrorCode is a small stable string carried in error objects. Codes are part
// of the wire contract and never change meaning.
type ErrorCode string

const (
	CodeNotInitialized       ErrorCode = "NotInitialized"
	CodeAlreadyReleased      ErrorCode = "AlreadyReleased"
	CodeSessionAlreadyActive ErrorCode = "SessionAlreadyActive"
	CodeHandleNotFound       ErrorCode = "HandleNotFound"
	CodeDeviceNotFound       ErrorCode = "DeviceNotFound"
	CodeCardhostNotConnected ErrorCode = "CardhostNotConnected"
	CodeAuthFailed           ErrorCode = "AuthFailed"
	CodeTokenExpired         ErrorCode = "TokenExpired"
	CodeTokenAlreadyUsed     ErrorCode = "TokenAlreadyUsed"
	CodeTimeout              ErrorCode = "Timeout"
	CodeTransportError       ErrorCode = "TransportError"

	// Dispatch-level failures.
	CodeMethodNotFound ErrorCode = "MethodNotFound"
	CodeInvalidParams  ErrorCode = "InvalidParams"
	CodeInternalError  ErrorCode = "InternalError"
)

// Request is an RPC request. ID is a correlation token unique while the
// request is outstanding on its connection.
type Request struct {
	ID     string          `json:"id"`
	Method Method          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is an RPC response. Exactly one of Result or Error is set.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject carries a business error inside a Response.
type ErrorObject struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Event is an unsolicited notification from a card host. Events carry no
// correlation ID; TargetID names the handle the event is scoped to, if any.
type Event struct {
	Name       string          `json:"event"`
	TargetKind TargetKind      `json:"targetKind"`
	TargetID   string          `json:"targetId,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Event names emitted by the local adapter.
const (
	EventCardInserted = "cardInserted"
	EventCardRemoved  = "cardRemoved"
)

// NewRequest builds a Request with marshaled params. A nil params produces a
// request without a params field.
func NewRequest(id string, method Method, params any) (*Request, error) {
	req := &Request{ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = raw
	}
	return req, nil
}

// NewResultResponse builds a success Response with a marshaled result.
func NewResultResponse(id string, result any) (*Response, error) {
	rsp := &Response{ID: id}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		rsp.Result = raw
	}
	return rsp, nil
}

// NewErrorResponse builds an error Response for the given request ID.
func NewErrorResponse(id string, code ErrorCode, message string) *Response {
	return &Response{
		ID:    id,
		Error: &ErrorObject{Code: code, Message: message},
	}
}

// ParseRequest unmarshals and validates an RPC request. The method must be
// one of the closed set and the ID must be present.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	if req.ID == "" {
		return nil, errors.New("rpc request missing id")
	}
	if !req.Method.Valid() {
		return nil, errors.New("unknown rpc method: " + string(req.Method))
	}
	return &req, nil
}

// ParseResponse unmarshals and validates an RPC response. Exactly one of
// result or error must be present.
func ParseResponse(data []byte) (*Response, error) {
	var rsp Response
	if err := json.Unmarshal(data, &rsp); err != nil {
		return nil, err
	}
	if rsp.ID == "" {
		return nil, errors.New("rpc response missing id")
	}
	if rsp.Result != nil && rsp.Error != nil {
		return nil, errors.New("rpc response has both result and error")
	}
	return &rsp, nil
}

// DecodeParams unmarshals request params into the given struct pointer.
func DecodeParams(req *Request, v any) error {
	if len(req.Params) == 0 {
		return errors.New("missing params")
	}
	return json.Unmarshal(req.Params, v)
}

// DecodeResult unmarshals a response result into the given struct pointer.
func DecodeResult(rsp *Response, v any) error {
	if len(rsp.Result) == 0 {
		return errors.New("missing result")
	}
	return json.Unmarshal(rsp.Result, v)
}
