package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind is the classification of an inbound envelope.
type Kind int

const (
	KindMalformed Kind = iota
	KindRequest
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return "malformed"
	}
}

// Envelope is the raw field map of one inbound JSON object. Keeping fields raw
// lets Classify tell an absent field from an explicit null.
type Envelope map[string]json.RawMessage

// Decode parses one inbound message. Anything that is not a JSON object is a
// ParseError.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ParseError("could not parse msg: %v", err)
	}
	if env == nil {
		return nil, ParseError("could not parse msg: null")
	}
	return env, nil
}

// Classify returns KindRequest when the envelope carries a non-null method,
// KindResponse when it carries an id plus a result or error field, and
// KindMalformed otherwise.
func Classify(env Envelope) Kind {
	if method, ok := env["method"]; ok && !isNull(method) {
		return KindRequest
	}
	if _, ok := env["id"]; ok {
		_, hasResult := env["result"]
		_, hasError := env["error"]
		if hasResult || hasError {
			return KindResponse
		}
	}
	return KindMalformed
}

// ID returns the envelope id when it is present and non-null.
func (env Envelope) ID() (ID, bool) {
	raw, ok := env["id"]
	if !ok {
		return ID{}, false
	}
	id, err := parseID(raw)
	if err != nil || id.IsZero() {
		return ID{}, false
	}
	return id, true
}

// ReplyID returns the id an error reply to this envelope is addressed to.
// Responses are never answered, so they report no id.
func (env Envelope) ReplyID() (ID, bool) {
	if Classify(env) == KindResponse {
		return ID{}, false
	}
	return env.ID()
}

// Request decodes the envelope as a Request.
func (env Envelope) Request() (Request, error) {
	var req Request
	req.ID, _ = env.ID()
	if err := json.Unmarshal(env["method"], &req.Method); err != nil || req.Method == "" {
		return Request{}, InvalidRequest("method must be a non-empty string")
	}
	if raw, ok := env["params"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &req.Params); err != nil {
			return Request{}, InvalidRequest("params must be a list of {key, value, required}")
		}
	}
	return req, nil
}

// Response decodes the envelope as a Response. An error field that is not a
// valid error object still rejects: it becomes an InternalError carrying the
// raw value as data.
func (env Envelope) Response() Response {
	var resp Response
	resp.ID, _ = env.ID()
	if raw, ok := env["result"]; ok && !isNull(raw) {
		resp.Result = append(json.RawMessage(nil), raw...)
	}
	if raw, ok := env["error"]; ok && !isNull(raw) {
		var rpcErr Error
		if err := json.Unmarshal(raw, &rpcErr); err != nil {
			rpcErr = Error{
				Code:    CodeInternalError,
				Message: fmt.Sprintf("malformed error object: %s", bytes.TrimSpace(raw)),
				Data:    append(json.RawMessage(nil), raw...),
			}
		}
		resp.Error = &rpcErr
	}
	return resp
}

// BuildRequest creates a Request with a freshly allocated id.
func BuildRequest(method string, params []Param) Request {
	if params == nil {
		params = []Param{}
	}
	return Request{ID: NewID(), Method: method, Params: params}
}

// BuildResult creates a Response addressed to id.
func BuildResult(result any, rpcErr *Error, id ID) (Response, error) {
	resp := Response{ID: id, Error: rpcErr}
	if result == nil {
		return resp, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return Response{}, InternalError("encode result: %v", err)
	}
	resp.Result = raw
	return resp, nil
}

// NewParam encodes value into a Param.
func NewParam(key string, value any, required bool) (Param, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Param{}, InvalidParams("encode param %s: %v", key, err)
	}
	return Param{Key: key, Value: raw, Required: required}, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
