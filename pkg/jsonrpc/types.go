package jsonrpc

import "encoding/json"

// Param is one named argument of a request. Params travel as an ordered list
// so the callee can tell required from optional arguments.
type Param struct {
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
	Required bool            `json:"required"`
}

// Request models an outbound or inbound procedure call.
type Request struct {
	ID     ID      `json:"id"`
	Method string  `json:"method"`
	Params []Param `json:"params"`
}

// Response carries the outcome of a Request. Result and Error are always
// present on the wire, one of them null.
type Response struct {
	ID     ID              `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// Push is the one-time, non-correlated message a host sends right after a
// channel opens. It has no id and expects no reply.
type Push struct {
	Method string `json:"method"`
	Data   any    `json:"data"`
}

// MethodSetProtocol names the protocol push.
const MethodSetProtocol = "set_protocol"

// FrameType tags the outer channel envelope.
type FrameType string

const (
	FrameOpen  FrameType = "open"
	FrameMsg   FrameType = "msg"
	FrameClose FrameType = "close"
)

// Frame is the outer envelope wrapping every inner RPC message on a channel.
type Frame struct {
	Type FrameType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}
