package jsonrpc

import (
	"errors"
	"fmt"

	"github.com/gorilla/rpc/v2/json2"
)

// Reserved error codes.
const (
	CodeParseError     = json2.E_PARSE
	CodeInvalidRequest = json2.E_INVALID_REQ
	CodeMethodNotFound = json2.E_NO_METHOD
	CodeInvalidParams  = json2.E_BAD_PARAMS
	CodeInternalError  = json2.E_INTERNAL
	CodeServerError    = json2.E_SERVER
)

// Error is the structured error object carried in a Response. It doubles as
// the Go error value for protocol failures raised locally.
type Error struct {
	Code    json2.ErrorCode `json:"code"`
	Message string          `json:"message"`
	Data    any             `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Errorf builds a protocol error with a formatted message.
func Errorf(code json2.ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ParseError reports a message that is not valid JSON.
func ParseError(format string, args ...any) *Error {
	return Errorf(CodeParseError, format, args...)
}

// InvalidRequest reports a message that is not a well-formed envelope.
func InvalidRequest(format string, args ...any) *Error {
	return Errorf(CodeInvalidRequest, format, args...)
}

// MethodNotFound reports a call to a procedure that is not exposed.
func MethodNotFound(format string, args ...any) *Error {
	return Errorf(CodeMethodNotFound, format, args...)
}

// InvalidParams reports params that do not match the procedure.
func InvalidParams(format string, args ...any) *Error {
	return Errorf(CodeInvalidParams, format, args...)
}

// InternalError reports a failure on the receiving side.
func InternalError(format string, args ...any) *Error {
	return Errorf(CodeInternalError, format, args...)
}

// ServerError is the generic fallback; the message is kept verbatim.
func ServerError(message string) *Error {
	return &Error{Code: CodeServerError, Message: message}
}

// AsError returns err unchanged when it already is a protocol error and wraps
// anything else as ServerError. The original error type is discarded.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return ServerError(err.Error())
}

// IsCode reports whether err is a protocol error with the given code.
func IsCode(err error, code json2.ErrorCode) bool {
	var rpcErr *Error
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}
