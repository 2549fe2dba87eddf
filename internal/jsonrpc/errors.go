package jsonrpc

import "errors"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates the payload was not valid JSON.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates valid JSON that is not a JSON-RPC 2.0 message.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method (or named operation) is unknown.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates the params failed validation.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates the server failed while handling the call.
	ErrorCodeInternalError ErrorCode = -32603
)

var (
	// ErrParse is returned by Decode when the payload is not JSON at all.
	ErrParse = errors.New("jsonrpc: parse error")
	// ErrInvalidMessage is returned by Decode when the payload is JSON but
	// not a single well-formed JSON-RPC 2.0 message.
	ErrInvalidMessage = errors.New("jsonrpc: invalid message")
)

// Code maps a Decode error onto the error code a server should reply with.
func Code(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrParse):
		return ErrorCodeParseError
	case errors.Is(err, ErrInvalidMessage):
		return ErrorCodeInvalidRequest
	default:
		return ErrorCodeInternalError
	}
}
