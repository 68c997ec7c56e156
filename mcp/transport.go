// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcpstack/go-mcp/jsonrpc"
)

// DefaultRequestTimeout bounds how long a sender waits for the response to an
// outgoing request, unless overridden per call.
const DefaultRequestTimeout = 60 * time.Second

// incomingBuffer is the capacity of the channel between a transport reader
// and the runtime. A slow handler backs pressure into the read path rather
// than dropping messages.
const incomingBuffer = 64

// A Transport is used to create a bidirectional connection between an MCP
// client and server.
type Transport interface {
	// Connect returns the logical JSON-RPC connection.
	//
	// It is called exactly once by [Server.Connect] or [Client.Connect].
	Connect(ctx context.Context) (Connection, error)
}

// A Connection is a logical bidirectional JSON-RPC connection.
//
// Read and Write exchange whole wire payloads: a single message, or an
// ordered batch.
type Connection interface {
	// Read blocks until the next inbound payload arrives, the context is
	// cancelled, or the connection closes (io.EOF).
	Read(ctx context.Context) (jsonrpc.Messages, error)
	// Write sends one payload. Batches are written atomically.
	Write(ctx context.Context, msgs jsonrpc.Messages) error
	// Close terminates the connection. It is idempotent.
	Close() error
}

// hasSessionID is implemented by connections bound to a logical session.
type hasSessionID interface {
	SessionID() string
}

// ErrConnectionClosed is reported to callers whose in-flight requests were
// abandoned by a transport shutdown.
var ErrConnectionClosed = errors.New("connection closed")

// A dispatcher owns one connection's pending-request table and request-ID
// counter. It multiplexes outgoing requests, correlates inbound responses,
// and forwards everything else to the runtime through a bounded channel.
type dispatcher struct {
	conn           Connection
	requestTimeout time.Duration
	logger         *slog.Logger

	nextID atomic.Int64 // request IDs for this side's outgoing requests

	mu      sync.Mutex
	pending map[jsonrpc.ID]chan *jsonrpc.Response

	incoming  chan jsonrpc.Messages
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newDispatcher(conn Connection, requestTimeout time.Duration, logger *slog.Logger) *dispatcher {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &dispatcher{
		conn:           conn,
		requestTimeout: requestTimeout,
		logger:         logger,
		pending:        make(map[jsonrpc.ID]chan *jsonrpc.Response),
		incoming:       make(chan jsonrpc.Messages, incomingBuffer),
		done:           make(chan struct{}),
	}
}

// start launches the background reader. Inbound payloads are available on
// d.incoming until the connection closes.
func (d *dispatcher) start(ctx context.Context) {
	go d.readLoop(ctx)
}

func (d *dispatcher) readLoop(ctx context.Context) {
	for {
		msgs, err := d.conn.Read(ctx)
		if err != nil {
			d.close()
			return
		}
		// Siphon off responses to their pending slots; forward the rest.
		var forward []jsonrpc.Message
		for _, msg := range msgs.Items {
			resp, ok := msg.(*jsonrpc.Response)
			if !ok {
				forward = append(forward, msg)
				continue
			}
			d.deliver(resp)
		}
		if len(forward) == 0 {
			continue
		}
		select {
		case d.incoming <- jsonrpc.Messages{Batch: msgs.Batch, Items: forward}:
		case <-d.done:
			return
		case <-ctx.Done():
			d.close()
			return
		}
	}
}

func (d *dispatcher) deliver(resp *jsonrpc.Response) {
	d.mu.Lock()
	ch, ok := d.pending[resp.ID]
	delete(d.pending, resp.ID)
	d.mu.Unlock()
	if !ok {
		// The request was cancelled, timed out, or never existed.
		d.logger.Debug("dropping response with no pending request", "id", resp.ID.String())
		return
	}
	ch <- resp
}

// newRequestID returns the next request ID for this side's outbound stream.
// IDs start at 0 and increase monotonically.
func (d *dispatcher) newRequestID() jsonrpc.ID {
	return jsonrpc.Int64ID(d.nextID.Add(1) - 1)
}

// register installs a pending slot for id. The invariant of one slot per ID
// holds because IDs are never reused by the generator, and caller-supplied
// string IDs replace any stale slot.
func (d *dispatcher) register(id jsonrpc.ID) chan *jsonrpc.Response {
	ch := make(chan *jsonrpc.Response, 1)
	d.mu.Lock()
	d.pending[id] = ch
	d.mu.Unlock()
	return ch
}

func (d *dispatcher) unregister(id jsonrpc.ID) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

// sendMessages writes one payload and awaits responses for any requests in
// it; messages without an ID are notifications and are not awaited. The
// IDs of requests are assigned by the caller. The result is nil for pure
// notification/response payloads. Within a batch each request times out
// independently; a timed-out slot is filled with an internal-error response
// carrying the original request ID.
func (d *dispatcher) sendMessages(ctx context.Context, msgs jsonrpc.Messages, timeout time.Duration) (*jsonrpc.Messages, error) {
	if timeout <= 0 {
		timeout = d.requestTimeout
	}

	type slot struct {
		id jsonrpc.ID
		ch chan *jsonrpc.Response
	}
	var slots []slot
	for _, msg := range msgs.Items {
		req, ok := msg.(*jsonrpc.Request)
		if !ok || !req.IsCall() {
			continue
		}
		slots = append(slots, slot{req.ID, d.register(req.ID)})
	}

	if err := d.conn.Write(ctx, msgs); err != nil {
		for _, s := range slots {
			d.unregister(s.id)
		}
		return nil, err
	}
	if len(slots) == 0 {
		return nil, nil
	}

	deadline := time.Now().Add(timeout)

	results := make([]jsonrpc.Message, len(slots))
	for i, s := range slots {
		timer := time.NewTimer(time.Until(deadline))
		select {
		case resp := <-s.ch:
			timer.Stop()
			results[i] = resp
		case <-timer.C:
			d.unregister(s.id)
			if !msgs.Batch {
				return nil, fmt.Errorf("request %s: %w", s.id, ErrRequestTimeout)
			}
			results[i] = &jsonrpc.Response{
				ID:    s.id,
				Error: jsonrpc.Errorf(jsonrpc.CodeInternalError, "request timed out after %s", timeout),
			}
		case <-ctx.Done():
			timer.Stop()
			for _, rem := range slots[i:] {
				d.unregister(rem.id)
			}
			return nil, ctx.Err()
		case <-d.done:
			timer.Stop()
			for _, rem := range slots[i:] {
				d.unregister(rem.id)
			}
			return nil, ErrConnectionClosed
		}
	}
	return &jsonrpc.Messages{Batch: msgs.Batch, Items: results}, nil
}

// ErrRequestTimeout is reported when a single outgoing request receives no
// response within its deadline.
var ErrRequestTimeout = errors.New("request timed out")

// call sends one typed request and decodes the peer's result into out (which
// may be nil to discard it). A wire error is returned as *jsonrpc.Error.
func (d *dispatcher) call(ctx context.Context, method string, params any, out any, timeout time.Duration) error {
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	req := &jsonrpc.Request{ID: d.newRequestID(), Method: method, Params: raw}
	res, err := d.sendMessages(ctx, jsonrpc.Single(req), timeout)
	if err != nil {
		return err
	}
	resp := res.Items[0].(*jsonrpc.Response)
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil {
		return nil
	}
	return internalUnmarshal(resp.Result, out)
}

// notify sends one notification. No response is expected.
func (d *dispatcher) notify(ctx context.Context, method string, params any) error {
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	_, err = d.sendMessages(ctx, jsonrpc.Single(&jsonrpc.Request{Method: method, Params: raw}), 0)
	return err
}

// close abandons all pending requests and closes the underlying connection.
// A waiting caller gets ErrConnectionClosed or the "connection closed"
// internal-error response placed in its slot, whichever it observes first.
func (d *dispatcher) close() error {
	d.closeOnce.Do(func() {
		close(d.done)
		d.mu.Lock()
		for id, ch := range d.pending {
			delete(d.pending, id)
			ch <- &jsonrpc.Response{
				ID:    id,
				Error: jsonrpc.Errorf(jsonrpc.CodeInternalError, "%s", ErrConnectionClosed),
			}
		}
		d.mu.Unlock()
		d.closeErr = d.conn.Close()
	})
	return d.closeErr
}
