// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	internaljson "github.com/mcpstack/go-mcp/internal/json"
)

// Messages is the wire form of one transport payload: either a single
// message or a non-empty, ordered batch.
type Messages struct {
	// Batch records whether the payload was (or should be) a JSON array.
	// A single-element batch is distinct from a single message on the wire.
	Batch bool
	Items []Message
}

// Single wraps one message as a non-batch payload.
func Single(msg Message) Messages {
	return Messages{Items: []Message{msg}}
}

// Batch wraps messages as a batch payload.
func Batch(msgs ...Message) Messages {
	return Messages{Batch: true, Items: msgs}
}

// Empty reports whether the payload carries no messages.
func (m Messages) Empty() bool { return len(m.Items) == 0 }

// Requests returns the calls in the payload, in order. Notifications and
// responses are skipped.
func (m Messages) Requests() []*Request {
	var reqs []*Request
	for _, msg := range m.Items {
		if req, ok := msg.(*Request); ok && req.IsCall() {
			reqs = append(reqs, req)
		}
	}
	return reqs
}

// EncodeMessages marshals a payload: a bare object for single messages, an
// array for batches.
func EncodeMessages(m Messages) ([]byte, error) {
	if m.Empty() {
		return nil, fmt.Errorf("encoding empty payload")
	}
	if !m.Batch {
		return EncodeMessage(m.Items[0])
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, msg := range m.Items {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := EncodeMessage(msg)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// DecodeMessages unmarshals a payload that may be a single message or a
// batch. An empty batch is invalid per JSON-RPC 2.0.
func DecodeMessages(data []byte) (Messages, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return Messages{}, fmt.Errorf("%w: empty payload", ErrParse)
	}
	if trimmed[0] != '[' {
		msg, err := DecodeMessage(data)
		if err != nil {
			return Messages{}, err
		}
		return Single(msg), nil
	}
	var raws []json.RawMessage
	if err := internaljson.Unmarshal(data, &raws); err != nil {
		return Messages{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(raws) == 0 {
		return Messages{}, fmt.Errorf("%w: empty batch", ErrInvalidRequest)
	}
	msgs := make([]Message, 0, len(raws))
	for _, raw := range raws {
		msg, err := DecodeMessage(raw)
		if err != nil {
			return Messages{}, err
		}
		msgs = append(msgs, msg)
	}
	return Messages{Batch: true, Items: msgs}, nil
}
