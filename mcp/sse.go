// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
)

// This file implements the Server-Sent Events wire encoding shared by the
// legacy HTTP+SSE transport and the streamable transport, as defined by the
// WHATWG HTML standard: fields "event", "data", "id" and "retry", one per
// line, events separated by a blank line.

// An event is one server-sent event.
type event struct {
	name string // the "event" field; empty means the default "message"
	id   string // the "id" field, if any
	data []byte // the "data" field
}

func (e event) empty() bool {
	return e.name == "" && e.id == "" && len(e.data) == 0
}

// writeEvent writes the event to w, flushing if w is an http.Flusher.
func writeEvent(w io.Writer, evt event) (int, error) {
	var b bytes.Buffer
	if evt.name != "" {
		fmt.Fprintf(&b, "event: %s\n", evt.name)
	}
	if evt.id != "" {
		fmt.Fprintf(&b, "id: %s\n", evt.id)
	}
	// MCP never emits multi-line data, but split defensively to keep the
	// stream well formed.
	for line := range bytes.Lines(evt.data) {
		fmt.Fprintf(&b, "data: %s\n", bytes.TrimSuffix(line, []byte{'\n'}))
	}
	b.WriteByte('\n')
	n, err := w.Write(b.Bytes())
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return n, err
}

// scanEvents iterates the events in an SSE stream, yielding each event or an
// error. Comment lines and the "retry" field are skipped. Iteration ends at
// io.EOF, which is yielded to let callers distinguish graceful termination.
func scanEvents(r io.Reader) iter.Seq2[event, error] {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return func(yield func(event, error) bool) {
		var (
			evt     event
			dataBuf *bytes.Buffer
		)
		flush := func() bool {
			if dataBuf != nil {
				evt.data = dataBuf.Bytes()
				dataBuf = nil
			}
			if evt.empty() {
				evt = event{}
				return true
			}
			ok := yield(evt, nil)
			evt = event{}
			return ok
		}
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				if !flush() {
					return
				}
				continue
			}
			if strings.HasPrefix(line, ":") {
				continue // comment / keep-alive
			}
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				evt.name = value
			case "id":
				evt.id = value
			case "data":
				if dataBuf == nil {
					dataBuf = new(bytes.Buffer)
				} else {
					dataBuf.WriteByte('\n')
				}
				dataBuf.WriteString(value)
			case "retry":
				// Reconnection advice is handled by transport policy, not
				// per-event state.
			}
		}
		if err := scanner.Err(); err != nil {
			yield(event{}, err)
			return
		}
		// Emit a final unterminated event, then EOF.
		if !flush() {
			return
		}
		yield(event{}, io.EOF)
	}
}
