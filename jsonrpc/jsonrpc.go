// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package jsonrpc implements the JSON-RPC 2.0 message family used by the MCP
// protocol: requests, responses, errors and notifications, plus the wire
// codec for single messages and batches.
package jsonrpc

import (
	"encoding/json"
	"fmt"
	"math"

	internaljson "github.com/mcpstack/go-mcp/internal/json"
)

// Version is the fixed "jsonrpc" field value of every message.
const Version = "2.0"

// JSON-RPC reserved error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// MCP SDK error codes, from the implementation-defined server range.
const (
	CodeBadRequest                 = -32000
	CodeSessionNotFound            = -32001
	CodeInsufficientScope          = -32002
	CodeUnsupportedProtocolVersion = -32003
)

// An ID is a JSON-RPC request identifier: a string or an integer, never null.
// The zero ID is invalid and marks a notification.
type ID struct {
	value any // nil, string, or int64
}

// StringID returns an ID holding the string s.
func StringID(s string) ID { return ID{value: s} }

// Int64ID returns an ID holding the integer n.
func Int64ID(n int64) ID { return ID{value: n} }

// IsValid reports whether the ID holds a value. Requests have valid IDs;
// notifications do not.
func (id ID) IsValid() bool { return id.value != nil }

// Raw returns the underlying value: nil, a string, or an int64.
func (id ID) Raw() any { return id.value }

func (id ID) String() string {
	switch v := id.value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case int64:
		return fmt.Sprintf("#%d", v)
	}
	return "<nil>"
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if !id.IsValid() {
		return nil, fmt.Errorf("marshaling invalid ID")
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler. Null and fractional numbers are
// rejected: the protocol requires string or integer IDs.
func (id *ID) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case string:
		id.value = v
	case float64:
		if v != math.Trunc(v) {
			return fmt.Errorf("request ID %v is not an integer", v)
		}
		id.value = int64(v)
	case nil:
		return fmt.Errorf("request ID must not be null")
	default:
		return fmt.Errorf("invalid request ID type %T", v)
	}
	return nil
}

// A Message is one of *Request or *Response.
//
// A *Request with an invalid (zero) ID is a notification. A *Response with a
// non-nil Error field is the error variant of the family.
type Message interface {
	msg()
}

// A Request is a JSON-RPC request or notification.
type Request struct {
	// ID of the request. Zero for notifications.
	ID ID
	// Method being invoked.
	Method string
	// Params for the method, or nil.
	Params json.RawMessage
}

// IsCall reports whether the request expects a response.
func (r *Request) IsCall() bool { return r.ID.IsValid() }

func (*Request) msg() {}

// A Response is a JSON-RPC response or error.
type Response struct {
	// ID echoes the request this responds to. May be invalid for errors that
	// could not be correlated with a request.
	ID ID
	// Result of the call. nil if Error is set.
	Result json.RawMessage
	// Error of the call. nil on success.
	Error *Error
}

func (*Response) msg() {}

// An Error is the wire form of a JSON-RPC error object. It implements the Go
// error interface so handlers can return it directly.
type Error struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Sentinel protocol errors. Wrap with %w, test with errors.Is.
var (
	ErrParse           = &Error{Code: CodeParseError, Message: "Parse Error"}
	ErrInvalidRequest  = &Error{Code: CodeInvalidRequest, Message: "Invalid Request"}
	ErrMethodNotFound  = &Error{Code: CodeMethodNotFound, Message: "Method not found"}
	ErrInvalidParams   = &Error{Code: CodeInvalidParams, Message: "Invalid params"}
	ErrInternal        = &Error{Code: CodeInternalError, Message: "Internal error"}
	ErrBadRequest      = &Error{Code: CodeBadRequest, Message: "Bad Request"}
	ErrSessionNotFound = &Error{Code: CodeSessionNotFound, Message: "Session not found"}
)

// Errorf returns an *Error with the given code and formatted message.
func Errorf(code int64, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Is supports errors.Is against the sentinel errors above by comparing codes.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// wireCombined is the union of all message fields, used by the codec.
type wireCombined struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// EncodeMessage marshals a single message to its wire form.
func EncodeMessage(msg Message) ([]byte, error) {
	wire := wireCombined{JSONRPC: Version}
	switch m := msg.(type) {
	case *Request:
		if m.ID.IsValid() {
			wire.ID = &m.ID
		}
		wire.Method = m.Method
		wire.Params = m.Params
	case *Response:
		if m.ID.IsValid() {
			wire.ID = &m.ID
		}
		wire.Error = m.Error
		if m.Error == nil {
			wire.Result = m.Result
			if wire.Result == nil {
				wire.Result = json.RawMessage("null")
			}
		}
	default:
		return nil, fmt.Errorf("unknown message type %T", msg)
	}
	return internaljson.Marshal(wire)
}

// DecodeMessage unmarshals a single message from its wire form, classifying
// it by the presence of fields as required by JSON-RPC 2.0.
func DecodeMessage(data []byte) (Message, error) {
	var wire wireCombined
	if err := internaljson.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if wire.JSONRPC != Version {
		return nil, fmt.Errorf("%w: invalid jsonrpc version %q", ErrInvalidRequest, wire.JSONRPC)
	}
	id := ID{}
	if wire.ID != nil {
		id = *wire.ID
	}
	if wire.Method != "" {
		if wire.Result != nil || wire.Error != nil {
			return nil, fmt.Errorf("%w: message with both method and result", ErrInvalidRequest)
		}
		return &Request{ID: id, Method: wire.Method, Params: wire.Params}, nil
	}
	if wire.Error != nil {
		return &Response{ID: id, Error: wire.Error}, nil
	}
	if wire.Result == nil {
		return nil, fmt.Errorf("%w: message has no method, result or error", ErrInvalidRequest)
	}
	if !id.IsValid() {
		return nil, fmt.Errorf("%w: response without id", ErrInvalidRequest)
	}
	return &Response{ID: id, Result: wire.Result}, nil
}
