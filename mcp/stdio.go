// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/mcpstack/go-mcp/jsonrpc"
)

// A StdioTransport is a [Transport] that communicates over newline-delimited
// JSON on the current process's stdin and stdout. It is the server side of
// the stdio transport.
type StdioTransport struct{}

// Connect implements the [Transport] interface.
func (*StdioTransport) Connect(ctx context.Context) (Connection, error) {
	return newIOConn(rwc{os.Stdin, os.Stdout}), nil
}

// A CommandTransport is a [Transport] that runs a command and communicates
// with it over its stdin and stdout. It is the client side of the stdio
// transport.
type CommandTransport struct {
	cmd *exec.Cmd

	mu     sync.Mutex
	stderr io.ReadCloser
}

// NewCommandTransport returns a transport that will start cmd on Connect.
//
// The command's stdin and stdout carry the protocol. Its stderr is kept as a
// diagnostics stream, readable via [CommandTransport.Stderr].
func NewCommandTransport(cmd *exec.Cmd) *CommandTransport {
	return &CommandTransport{cmd: cmd}
}

// Stderr returns the child process's stderr. It is nil before Connect.
func (t *CommandTransport) Stderr() io.ReadCloser {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stderr
}

// Connect implements the [Transport] interface: it starts the command and
// binds the connection to its stdio.
func (t *CommandTransport) Connect(ctx context.Context) (Connection, error) {
	stdin, err := t.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdin pipe: %w", err)
	}
	stdout, err := t.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout pipe: %w", err)
	}
	stderr, err := t.cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stderr pipe: %w", err)
	}
	if err := t.cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting command %q: %w", t.cmd.Path, err)
	}
	t.mu.Lock()
	t.stderr = stderr
	t.mu.Unlock()
	conn := newIOConn(rwc{stdout, stdin})
	conn.onClose = func() error { return t.cmd.Wait() }
	return conn, nil
}

// An IOTransport adapts any duplex byte stream into a [Transport], using the
// same newline-delimited framing as stdio. Useful for tests and in-process
// wiring.
type IOTransport struct {
	rwc io.ReadWriteCloser
}

// NewIOTransport returns a transport over the given stream.
func NewIOTransport(stream io.ReadWriteCloser) *IOTransport {
	return &IOTransport{rwc: stream}
}

// Connect implements the [Transport] interface.
func (t *IOTransport) Connect(ctx context.Context) (Connection, error) {
	return newIOConn(t.rwc), nil
}

// rwc binds a separate reader and writer into an io.ReadWriteCloser.
type rwc struct {
	rc io.ReadCloser
	wc io.WriteCloser
}

func (r rwc) Read(p []byte) (int, error)  { return r.rc.Read(p) }
func (r rwc) Write(p []byte) (int, error) { return r.wc.Write(p) }

func (r rwc) Close() error {
	if err := r.rc.Close(); err != nil {
		r.wc.Close()
		return err
	}
	return r.wc.Close()
}

// An ioConn frames payloads as newline-delimited JSON over a byte stream.
type ioConn struct {
	reader *bufio.Reader
	rwc    io.ReadWriteCloser

	writeMu sync.Mutex // serializes writes; a payload is one line

	closeOnce sync.Once
	closeErr  error
	onClose   func() error
}

func newIOConn(stream io.ReadWriteCloser) *ioConn {
	return &ioConn{
		// Lines can be large: a single batch is one line.
		reader: bufio.NewReaderSize(stream, 1<<20),
		rwc:    stream,
	}
}

// Read implements the [Connection] interface, returning the next
// newline-terminated payload. Blank lines are skipped.
func (c *ioConn) Read(ctx context.Context) (jsonrpc.Messages, error) {
	if err := ctx.Err(); err != nil {
		return jsonrpc.Messages{}, err
	}
	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				// Final unterminated payload.
				return jsonrpc.DecodeMessages(line)
			}
			return jsonrpc.Messages{}, err
		}
		if len(trimNewline(line)) == 0 {
			continue
		}
		return jsonrpc.DecodeMessages(line)
	}
}

// Write implements the [Connection] interface.
func (c *ioConn) Write(ctx context.Context, msgs jsonrpc.Messages) error {
	data, err := jsonrpc.EncodeMessages(msgs)
	if err != nil {
		return err
	}
	return c.WriteRaw(ctx, data)
}

// WriteRaw writes a pre-serialized payload followed by a newline.
func (c *ioConn) WriteRaw(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.rwc.Write(payload); err != nil {
		return err
	}
	_, err := c.rwc.Write([]byte{'\n'})
	return err
}

// Close implements the [Connection] interface.
func (c *ioConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.rwc.Close()
		if c.onClose != nil {
			if err := c.onClose(); err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}
	})
	return c.closeErr
}

func trimNewline(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
