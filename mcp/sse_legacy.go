// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/mcpstack/go-mcp/jsonrpc"
)

// The legacy two-endpoint HTTP+SSE transport, from the 2024-11-05 protocol
// revision: a GET opens the server-to-client event stream and announces a
// per-session messages URL in an initial "endpoint" event; the client then
// POSTs payloads to that URL and reads correlated responses off the stream.

// An SSEHandler is an http.Handler that serves the legacy SSE transport.
type SSEHandler struct {
	getServer func(*http.Request) *Server
	opts      SSEOptions

	mu       sync.Mutex
	sessions map[string]*sseServerConn
}

// SSEOptions configures an [SSEHandler].
type SSEOptions struct {
	// IDGenerator produces session IDs. Defaults to UUIDv4.
	IDGenerator IDGenerator
	// Logger for transport diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
	// MaxBodyBytes caps POST bodies. 0 means DefaultMaxBodyBytes; negative
	// disables the limit.
	MaxBodyBytes int64
}

// NewSSEHandler returns an [SSEHandler] that serves MCP sessions created by
// getServer. It is OK for getServer to return the same server each time.
func NewSSEHandler(getServer func(*http.Request) *Server, opts *SSEOptions) *SSEHandler {
	h := &SSEHandler{
		getServer: getServer,
		sessions:  make(map[string]*sseServerConn),
	}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.IDGenerator == nil {
		h.opts.IDGenerator = UUIDGenerator{}
	}
	if h.opts.Logger == nil {
		h.opts.Logger = slog.Default()
	}
	return h
}

// Close terminates all live sessions.
func (h *SSEHandler) Close() error {
	h.mu.Lock()
	conns := make([]*sseServerConn, 0, len(h.sessions))
	for _, c := range h.sessions {
		conns = append(conns, c)
	}
	h.sessions = make(map[string]*sseServerConn)
	h.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
	return nil
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		h.serveStream(w, req)
	case http.MethodPost:
		h.serveMessage(w, req)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "unsupported method", http.StatusMethodNotAllowed)
	}
}

func (h *SSEHandler) serveStream(w http.ResponseWriter, req *http.Request) {
	if !acceptsContentType(req, "text/event-stream") {
		http.Error(w, "Accept must contain 'text/event-stream'", http.StatusNotAcceptable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sessionID := h.opts.IDGenerator.Generate()
	conn := &sseServerConn{
		sessionID: sessionID,
		incoming:  make(chan jsonrpc.Messages, incomingBuffer),
		outgoing:  make(chan []byte, incomingBuffer),
		done:      make(chan struct{}),
	}
	h.mu.Lock()
	h.sessions[sessionID] = conn
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.sessions, sessionID)
		h.mu.Unlock()
		conn.Close()
	}()

	server := h.getServer(req)
	ss, err := server.Connect(req.Context(), connTransport{conn})
	if err != nil {
		http.Error(w, "failed connection", http.StatusInternalServerError)
		return
	}
	defer ss.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")

	// The endpoint event tells the client where to POST.
	endpoint := messagesEndpoint(req, sessionID)
	if _, err := writeEvent(w, event{name: "endpoint", data: []byte(endpoint)}); err != nil {
		return
	}
	flusher.Flush()

	h.opts.Logger.Info("sse session started", "sessionid", sessionID)
	for {
		select {
		case data := <-conn.outgoing:
			if _, err := writeEvent(w, event{name: "message", data: data}); err != nil {
				return
			}
		case <-conn.done:
			return
		case <-req.Context().Done():
			return
		}
	}
}

func (h *SSEHandler) serveMessage(w http.ResponseWriter, req *http.Request) {
	sessionID := req.URL.Query().Get("session_id")
	h.mu.Lock()
	conn := h.sessions[sessionID]
	h.mu.Unlock()
	if conn == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, effectiveMaxBodyBytes(h.opts.MaxBodyBytes)))
	if err != nil {
		if isMaxBytesError(err) {
			writeRequestBodyTooLarge(w)
		} else {
			http.Error(w, "failed to read body", http.StatusBadRequest)
		}
		return
	}
	msgs, err := jsonrpc.DecodeMessages(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("malformed payload: %v", err), http.StatusBadRequest)
		return
	}
	select {
	case conn.incoming <- msgs:
		w.WriteHeader(http.StatusAccepted)
	case <-conn.done:
		http.Error(w, "session closed", http.StatusNotFound)
	}
}

// messagesEndpoint derives the POST URL announced in the endpoint event.
func messagesEndpoint(req *http.Request, sessionID string) string {
	u := *req.URL
	u.Path = strings.TrimSuffix(u.Path, "/sse")
	if u.Path == "" {
		u.Path = "/"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/messages"
	u.RawQuery = url.Values{"session_id": {sessionID}}.Encode()
	return u.RequestURI()
}

// connTransport adapts an existing Connection into a single-use Transport.
type connTransport struct {
	conn Connection
}

func (t connTransport) Connect(context.Context) (Connection, error) {
	return t.conn, nil
}

// sseServerConn is the server half of one legacy SSE session.
type sseServerConn struct {
	sessionID string
	incoming  chan jsonrpc.Messages
	outgoing  chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func (c *sseServerConn) SessionID() string { return c.sessionID }

func (c *sseServerConn) Read(ctx context.Context) (jsonrpc.Messages, error) {
	select {
	case msgs := <-c.incoming:
		return msgs, nil
	case <-c.done:
		return jsonrpc.Messages{}, io.EOF
	case <-ctx.Done():
		return jsonrpc.Messages{}, ctx.Err()
	}
}

func (c *sseServerConn) Write(ctx context.Context, msgs jsonrpc.Messages) error {
	data, err := jsonrpc.EncodeMessages(msgs)
	if err != nil {
		return err
	}
	return c.WriteRaw(ctx, data)
}

func (c *sseServerConn) WriteRaw(ctx context.Context, payload []byte) error {
	select {
	case c.outgoing <- payload:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *sseServerConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// An SSEClientTransport is a [Transport] that connects to a legacy SSE
// server.
type SSEClientTransport struct {
	// Endpoint is the URL of the server's SSE stream (the GET endpoint).
	Endpoint string
	// HTTPClient to use for both the stream and message POSTs. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Connect implements the [Transport] interface: it opens the event stream
// and waits for the initial endpoint event.
func (t *SSEClientTransport) Connect(ctx context.Context) (Connection, error) {
	client := t.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.Endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening SSE stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("opening SSE stream: unexpected status %s", resp.Status)
	}

	conn := &sseClientConn{
		client:   client,
		stream:   resp.Body,
		incoming: make(chan jsonrpc.Messages, incomingBuffer),
		done:     make(chan struct{}),
	}

	// The first event must announce the messages endpoint.
	endpointCh := make(chan string, 1)
	go conn.readStream(resp.Body, endpointCh)

	select {
	case endpoint := <-endpointCh:
		base, err := url.Parse(t.Endpoint)
		if err != nil {
			conn.Close()
			return nil, err
		}
		rel, err := url.Parse(endpoint)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("malformed endpoint event %q: %w", endpoint, err)
		}
		conn.postURL = base.ResolveReference(rel).String()
		return conn, nil
	case <-conn.done:
		return nil, fmt.Errorf("SSE stream closed before endpoint event")
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	}
}

type sseClientConn struct {
	client  *http.Client
	postURL string
	stream  io.ReadCloser

	incoming chan jsonrpc.Messages

	closeOnce sync.Once
	done      chan struct{}
}

func (c *sseClientConn) readStream(body io.Reader, endpointCh chan<- string) {
	defer c.Close()
	for evt, err := range scanEvents(body) {
		if err != nil {
			return
		}
		switch evt.name {
		case "endpoint":
			select {
			case endpointCh <- string(evt.data):
			default:
			}
		case "", "message":
			msgs, err := jsonrpc.DecodeMessages(evt.data)
			if err != nil {
				continue
			}
			select {
			case c.incoming <- msgs:
			case <-c.done:
				return
			}
		}
	}
}

func (c *sseClientConn) Read(ctx context.Context) (jsonrpc.Messages, error) {
	select {
	case msgs := <-c.incoming:
		return msgs, nil
	case <-c.done:
		return jsonrpc.Messages{}, io.EOF
	case <-ctx.Done():
		return jsonrpc.Messages{}, ctx.Err()
	}
}

func (c *sseClientConn) Write(ctx context.Context, msgs jsonrpc.Messages) error {
	data, err := jsonrpc.EncodeMessages(msgs)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.postURL, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("posting message: unexpected status %s", resp.Status)
	}
	return nil
}

func (c *sseClientConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.stream.Close()
	})
	return nil
}
