// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	internaljson "github.com/mcpstack/go-mcp/internal/json"
	"github.com/mcpstack/go-mcp/jsonrpc"
)

// Standard MCP headers of the streamable transport.
const (
	sessionIDHeader       = "Mcp-Session-Id"
	protocolVersionHeader = "Mcp-Protocol-Version"
	lastEventIDHeader     = "Last-Event-ID"
)

// DefaultStreamID identifies the session's standalone server-to-client
// stream, opened by GET. All other stream IDs are generated per POST.
const DefaultStreamID = "standalone"

// A StreamableHTTPHandler is an http.Handler that serves streamable MCP
// sessions on a single endpoint supporting POST, GET and DELETE.
type StreamableHTTPHandler struct {
	getServer func(*http.Request) *Server
	opts      StreamableHTTPOptions
}

// StreamableHTTPOptions configures a [StreamableHTTPHandler].
type StreamableHTTPOptions struct {
	// SessionStore holds the handler's live sessions. Defaults to a new
	// in-memory store.
	SessionStore SessionStore
	// EventStore, if set, buffers SSE events so clients can resume with
	// Last-Event-ID. Without it events carry no IDs and are not resumable.
	EventStore EventStore
	// IDGenerator produces session and stream IDs. Defaults to UUIDv4.
	IDGenerator IDGenerator
	// JSONResponse, if true, answers POSTs carrying requests with a single
	// application/json body instead of an SSE stream.
	JSONResponse bool
	// MaxBodyBytes caps POST bodies. 0 means DefaultMaxBodyBytes; negative
	// disables the limit.
	MaxBodyBytes int64
	// AllowedHosts and AllowedOrigins enable DNS-rebinding protection: when
	// non-empty, the Host or Origin header must match (case-insensitive) or
	// the request is rejected with 403. Disabled by default.
	AllowedHosts   []string
	AllowedOrigins []string
	// NewSessionLimit, if set, bounds the rate of session creation.
	// Initialize requests beyond the limit receive 429.
	NewSessionLimit *rate.Limiter
	// Logger for transport diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
}

// NewStreamableHTTPHandler returns a new [StreamableHTTPHandler].
//
// The getServer function is used to create or look up servers for new
// sessions. It is OK for getServer to return the same server multiple times.
func NewStreamableHTTPHandler(getServer func(*http.Request) *Server, opts *StreamableHTTPOptions) *StreamableHTTPHandler {
	h := &StreamableHTTPHandler{getServer: getServer}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.SessionStore == nil {
		h.opts.SessionStore = NewInMemorySessionStore()
	}
	if h.opts.IDGenerator == nil {
		h.opts.IDGenerator = UUIDGenerator{}
	}
	if h.opts.Logger == nil {
		h.opts.Logger = slog.Default()
	}
	return h
}

// Close terminates every live session and clears the session store.
func (h *StreamableHTTPHandler) Close() error {
	ctx := context.Background()
	if s, ok := h.opts.SessionStore.(*InMemorySessionStore); ok {
		for _, ss := range s.all() {
			ss.Close()
		}
	}
	return h.opts.SessionStore.Clear(ctx)
}

// writeJSONRPCError writes a JSON-RPC error object as an HTTP body, the way
// errors that have no stream to travel on are reported.
func writeJSONRPCError(w http.ResponseWriter, status int, code int64, message string) {
	body, err := internaljson.Marshal(map[string]any{
		"jsonrpc": jsonrpc.Version,
		"id":      nil,
		"error":   &jsonrpc.Error{Code: code, Message: message},
	})
	if err != nil {
		http.Error(w, message, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func (h *StreamableHTTPHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if !checkOrigins(req, h.opts.AllowedHosts, h.opts.AllowedOrigins) {
		http.Error(w, "forbidden origin", http.StatusForbidden)
		return
	}

	if v := req.Header.Get(protocolVersionHeader); v != "" && !protocolVersionSupported(v) {
		writeJSONRPCError(w, http.StatusBadRequest, jsonrpc.CodeBadRequest,
			fmt.Sprintf("unsupported protocol version %q", v))
		return
	}

	switch req.Method {
	case http.MethodPost:
		h.servePOST(w, req)
	case http.MethodGet:
		h.serveGET(w, req)
	case http.MethodDelete:
		h.serveDELETE(w, req)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "unsupported method", http.StatusMethodNotAllowed)
	}
}

func (h *StreamableHTTPHandler) servePOST(w http.ResponseWriter, req *http.Request) {
	if !hasContentType(req, "application/json") {
		writeJSONRPCError(w, http.StatusUnsupportedMediaType, jsonrpc.CodeBadRequest,
			"Content-Type must be application/json")
		return
	}
	if !acceptsContentType(req, "application/json") || !acceptsContentType(req, "text/event-stream") {
		writeJSONRPCError(w, http.StatusNotAcceptable, jsonrpc.CodeBadRequest,
			"Accept must contain both 'application/json' and 'text/event-stream'")
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
		code := int64(jsonrpc.CodeParseError)
		message := "Parse Error"
		if errors.Is(err, jsonrpc.ErrInvalidRequest) {
			code, message = jsonrpc.CodeInvalidRequest, "Invalid Request"
		}
		writeJSONRPCError(w, http.StatusBadRequest, code, message)
		return
	}

	// Initialization is special: it creates the session. A batch containing
	// an initialize request is rejected outright.
	initCount := 0
	for _, m := range msgs.Items {
		if r, ok := m.(*jsonrpc.Request); ok && r.Method == methodInitialize {
			initCount++
		}
	}
	if initCount > 0 {
		if msgs.Batch || initCount > 1 {
			writeJSONRPCError(w, http.StatusBadRequest, jsonrpc.CodeInvalidRequest,
				"Only one initialization request is allowed")
			return
		}
		h.initializeSession(w, req, msgs)
		return
	}

	session, ok := h.lookupSession(w, req)
	if !ok {
		return
	}
	session.streamable.servePOST(w, req, msgs)
}

func (h *StreamableHTTPHandler) initializeSession(w http.ResponseWriter, req *http.Request, msgs jsonrpc.Messages) {
	if lim := h.opts.NewSessionLimit; lim != nil && !lim.Allow() {
		http.Error(w, "too many new sessions", http.StatusTooManyRequests)
		return
	}

	sessionID := h.opts.IDGenerator.Generate()
	transport := newStreamableServerTransport(sessionID, &h.opts)
	server := h.getServer(req)
	ss, err := server.Connect(req.Context(), connTransport{transport})
	if err != nil {
		http.Error(w, "failed connection", http.StatusInternalServerError)
		return
	}
	ss.streamable = transport
	ss.onClose = func() {
		ctx := context.Background()
		h.opts.SessionStore.Delete(ctx, sessionID)
		if h.opts.EventStore != nil {
			h.opts.EventStore.DropSession(ctx, sessionID)
		}
	}
	if err := h.opts.SessionStore.Set(req.Context(), sessionID, ss); err != nil {
		ss.Close()
		http.Error(w, "failed to store session", http.StatusInternalServerError)
		return
	}
	h.opts.Logger.Info("new streamable session", "sessionid", sessionID)
	transport.servePOST(w, req, msgs)
}

func (h *StreamableHTTPHandler) lookupSession(w http.ResponseWriter, req *http.Request) (*ServerSession, bool) {
	sessionID := req.Header.Get(sessionIDHeader)
	if sessionID == "" {
		writeJSONRPCError(w, http.StatusBadRequest, jsonrpc.CodeBadRequest,
			"Bad Request: Mcp-Session-Id header is missing")
		return nil, false
	}
	session, err := h.opts.SessionStore.Get(req.Context(), sessionID)
	if err != nil {
		http.Error(w, "session lookup failed", http.StatusInternalServerError)
		return nil, false
	}
	if session == nil || session.streamable == nil {
		writeJSONRPCError(w, http.StatusNotFound, jsonrpc.CodeSessionNotFound,
			fmt.Sprintf("Session not found: %s", sessionID))
		return nil, false
	}
	return session, true
}

func (h *StreamableHTTPHandler) serveGET(w http.ResponseWriter, req *http.Request) {
	if !acceptsContentType(req, "text/event-stream") {
		http.Error(w, "Accept must contain 'text/event-stream'", http.StatusNotAcceptable)
		return
	}
	session, ok := h.lookupSession(w, req)
	if !ok {
		return
	}
	session.streamable.serveGET(w, req)
}

func (h *StreamableHTTPHandler) serveDELETE(w http.ResponseWriter, req *http.Request) {
	session, ok := h.lookupSession(w, req)
	if !ok {
		return
	}
	sessionID := req.Header.Get(sessionIDHeader)
	h.opts.Logger.Info("session terminated by client", "sessionid", sessionID)
	session.Close() // onClose removes it from the store
	w.WriteHeader(http.StatusOK)
}

// A streamableServerTransport is the server side of one streamable session.
// It implements [Connection] for the session's runtime and fans messages out
// to the session's HTTP response streams.
type streamableServerTransport struct {
	sessionID    string
	eventStore   EventStore
	idGenerator  IDGenerator
	jsonResponse bool
	logger       *slog.Logger

	incoming chan jsonrpc.Messages

	mu     sync.Mutex
	isDone bool
	done   chan struct{}

	// streams is the per-session map of live logical streams. The standalone
	// stream persists for the session; request-bound streams are dropped when
	// their last response is delivered.
	streams map[string]*serverStream

	// requestStreams maps unanswered incoming request IDs to the stream that
	// must carry their responses.
	requestStreams map[jsonrpc.ID]string
}

// A serverStream is one logical SSE stream within a session.
type serverStream struct {
	id string
	// queue holds encoded payloads not yet written to an HTTP response.
	queue []*streamableMsg
	// ordinal numbers events when no event store assigns IDs.
	ordinal int
	// outstanding is the set of unanswered requests bound to this stream.
	// When it empties, a POST stream closes.
	outstanding map[jsonrpc.ID]struct{}
	// signal is owned by the HTTP request currently draining the stream;
	// nil when the stream is unclaimed. At most one claimant per stream.
	signal chan struct{}
}

// a streamableMsg is an SSE event queued for delivery.
type streamableMsg struct {
	eventID string // empty without an event store
	ordinal int
	data    []byte
}

func newStreamableServerTransport(sessionID string, opts *StreamableHTTPOptions) *streamableServerTransport {
	return &streamableServerTransport{
		sessionID:      sessionID,
		eventStore:     opts.EventStore,
		idGenerator:    opts.IDGenerator,
		jsonResponse:   opts.JSONResponse,
		logger:         opts.Logger,
		incoming:       make(chan jsonrpc.Messages, incomingBuffer),
		done:           make(chan struct{}),
		streams:        make(map[string]*serverStream),
		requestStreams: make(map[jsonrpc.ID]string),
	}
}

func (t *streamableServerTransport) SessionID() string { return t.sessionID }

// Read implements the [Connection] interface.
func (t *streamableServerTransport) Read(ctx context.Context) (jsonrpc.Messages, error) {
	select {
	case msgs := <-t.incoming:
		return msgs, nil
	case <-t.done:
		return jsonrpc.Messages{}, io.EOF
	case <-ctx.Done():
		return jsonrpc.Messages{}, ctx.Err()
	}
}

// Write implements the [Connection] interface, routing the payload to the
// stream of the request it answers or relates to, and falling back to the
// standalone stream.
func (t *streamableServerTransport) Write(ctx context.Context, msgs jsonrpc.Messages) error {
	var replyTo []jsonrpc.ID
	var forRequest jsonrpc.ID
	for _, m := range msgs.Items {
		if resp, ok := m.(*jsonrpc.Response); ok && resp.ID.IsValid() {
			forRequest = resp.ID
			replyTo = append(replyTo, resp.ID)
		}
	}
	if !forRequest.IsValid() && !t.jsonResponse {
		// Notifications and server-to-client requests made during the
		// handling of an incoming request are delivered on that request's
		// stream. In JSON-response mode the POST body can only carry
		// responses, so everything else goes to the standalone stream.
		if v := ctx.Value(idContextKey{}); v != nil {
			forRequest = v.(jsonrpc.ID)
		}
	}

	data, err := jsonrpc.EncodeMessages(msgs)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isDone {
		return ErrConnectionClosed
	}

	streamID := DefaultStreamID
	if forRequest.IsValid() {
		if id, ok := t.requestStreams[forRequest]; ok {
			streamID = id
		}
	}
	stream := t.streams[streamID]
	if stream == nil {
		// The stream is logically done, or the standalone stream has never
		// been claimed. Queue on the standalone stream so nothing is lost.
		streamID = DefaultStreamID
		stream = t.stream(DefaultStreamID)
	}

	msg := &streamableMsg{ordinal: stream.ordinal, data: data}
	stream.ordinal++
	if t.eventStore != nil {
		eventID, err := t.eventStore.StoreEvent(ctx, t.sessionID, streamID, time.Now(), data)
		if err != nil {
			return fmt.Errorf("storing event: %w", err)
		}
		msg.eventID = eventID
	}
	stream.queue = append(stream.queue, msg)

	for _, id := range replyTo {
		delete(stream.outstanding, id)
		delete(t.requestStreams, id)
	}

	if stream.signal != nil {
		select {
		case stream.signal <- struct{}{}:
		default:
		}
	}
	return nil
}

// stream returns the named stream, creating it if needed. t.mu must be held.
func (t *streamableServerTransport) stream(id string) *serverStream {
	s := t.streams[id]
	if s == nil {
		s = &serverStream{id: id, outstanding: make(map[jsonrpc.ID]struct{})}
		t.streams[id] = s
	}
	return s
}

// Close implements the [Connection] interface.
func (t *streamableServerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isDone {
		t.isDone = true
		close(t.done)
	}
	return nil
}

// servePOST handles one POST whose payload has already been decoded.
func (t *streamableServerTransport) servePOST(w http.ResponseWriter, req *http.Request, msgs jsonrpc.Messages) {
	if len(req.Header.Values(lastEventIDHeader)) > 0 {
		http.Error(w, "can't send Last-Event-ID for POST request", http.StatusBadRequest)
		return
	}

	requests := msgs.Requests()

	// A pure notification/response payload is consumed and acknowledged with
	// 202 and an empty body.
	if len(requests) == 0 {
		select {
		case t.incoming <- msgs:
			w.WriteHeader(http.StatusAccepted)
		case <-t.done:
			http.Error(w, "session terminated", http.StatusGone)
		case <-req.Context().Done():
		}
		return
	}

	// Open a logical stream bound to this POST's requests.
	streamID := t.idGenerator.Generate()
	signal := make(chan struct{}, 1)
	t.mu.Lock()
	stream := t.stream(streamID)
	stream.signal = signal
	for _, r := range requests {
		assertCond(r.ID.IsValid(), "request without ID")
		stream.outstanding[r.ID] = struct{}{}
		t.requestStreams[r.ID] = streamID
	}
	t.mu.Unlock()

	select {
	case t.incoming <- msgs:
	case <-t.done:
		t.releaseStream(streamID, true)
		http.Error(w, "session terminated", http.StatusGone)
		return
	case <-req.Context().Done():
		t.releaseStream(streamID, true)
		return
	}

	if t.jsonResponse {
		t.respondJSON(w, req, stream, msgs.Batch)
	} else {
		t.streamResponse(w, req, stream, 0, nil)
	}
	t.releaseStream(streamID, true)
}

// releaseStream unclaims a stream, and drops it entirely if remove is set
// and no requests remain bound to it.
func (t *streamableServerTransport) releaseStream(streamID string, remove bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	stream := t.streams[streamID]
	if stream == nil {
		return
	}
	stream.signal = nil
	if remove && streamID != DefaultStreamID && len(stream.outstanding) == 0 {
		delete(t.streams, streamID)
	}
}

// respondJSON collects every response owed to the POST and writes them as a
// single JSON body.
func (t *streamableServerTransport) respondJSON(w http.ResponseWriter, req *http.Request, stream *serverStream, batch bool) {
	var bodies [][]byte
	for {
		t.mu.Lock()
		for _, m := range stream.queue {
			bodies = append(bodies, m.data)
		}
		stream.queue = nil
		outstanding := len(stream.outstanding)
		t.mu.Unlock()

		if outstanding == 0 {
			break
		}
		select {
		case <-stream.signal:
		case <-t.done:
			http.Error(w, "session terminated", http.StatusGone)
			return
		case <-req.Context().Done():
			return
		}
	}

	w.Header().Set(sessionIDHeader, t.sessionID)
	w.Header().Set("Content-Type", "application/json")
	if !batch && len(bodies) == 1 {
		w.Write(bodies[0])
		return
	}
	// Each queued payload is already a complete response or batch; merge
	// into one array.
	var out bytes.Buffer
	out.WriteByte('[')
	n := 0
	for _, b := range bodies {
		trimmed := bytes.TrimSpace(b)
		if len(trimmed) > 1 && trimmed[0] == '[' {
			trimmed = bytes.TrimSpace(trimmed[1 : len(trimmed)-1])
		}
		if len(trimmed) == 0 {
			continue
		}
		if n > 0 {
			out.WriteByte(',')
		}
		out.Write(trimmed)
		n++
	}
	out.WriteByte(']')
	w.Write(out.Bytes())
}

// serveGET handles the session's standalone stream.
func (t *streamableServerTransport) serveGET(w http.ResponseWriter, req *http.Request) {
	lastEventID := req.Header.Get(lastEventIDHeader)
	lastOrdinal := -1

	var replay *EventReplay
	if lastEventID != "" {
		if t.eventStore == nil {
			http.Error(w, "resumption is not supported", http.StatusBadRequest)
			return
		}
		var err error
		replay, err = t.eventStore.EventsAfter(req.Context(), t.sessionID, lastEventID)
		if err != nil {
			http.Error(w, "event replay failed", http.StatusInternalServerError)
			return
		}
		if replay == nil {
			http.Error(w, fmt.Sprintf("unknown Last-Event-ID %q", lastEventID), http.StatusBadRequest)
			return
		}
	}

	signal := make(chan struct{}, 1)
	t.mu.Lock()
	stream := t.stream(DefaultStreamID)
	if stream.signal != nil {
		t.mu.Unlock()
		writeJSONRPCError(w, http.StatusConflict, jsonrpc.CodeBadRequest,
			"Only one standalone stream is allowed per session")
		return
	}
	stream.signal = signal
	t.mu.Unlock()
	defer t.releaseStream(DefaultStreamID, false)

	// Replay stored events strictly after the client's last seen event,
	// then fall through to live delivery.
	var replayEvents []event
	if replay != nil {
		for i, data := range replay.Messages {
			replayEvents = append(replayEvents, event{name: "message", id: replay.EventIDs[i], data: data})
		}
		if len(replay.EventIDs) > 0 {
			if _, ord, ok := parseEventID(replay.EventIDs[len(replay.EventIDs)-1]); ok {
				lastOrdinal = ord
			}
		} else if _, ord, ok := parseEventID(lastEventID); ok {
			lastOrdinal = ord
		}
	}

	t.streamResponse(w, req, stream, lastOrdinal+1, replayEvents)
}

// streamResponse writes any replayed events, then drains a stream's queue
// into an SSE response until the stream completes (POST: all requests
// answered) or the connection ends.
func (t *streamableServerTransport) streamResponse(w http.ResponseWriter, req *http.Request, stream *serverStream, nextOrdinal int, replay []event) {
	w.Header().Set(sessionIDHeader, t.sessionID)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	if req.Method == http.MethodGet {
		// Commit the headers so the client sees the stream open before the
		// first event arrives.
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}

	writes := 0
	for _, evt := range replay {
		if _, err := writeEvent(w, evt); err != nil {
			return
		}
		writes++
	}
	for {
		t.mu.Lock()
		var out []*streamableMsg
		for _, m := range stream.queue {
			if m.ordinal >= nextOrdinal {
				out = append(out, m)
			}
		}
		stream.queue = nil
		outstanding := len(stream.outstanding)
		t.mu.Unlock()

		for _, m := range out {
			if _, err := writeEvent(w, event{name: "message", id: m.eventID, data: m.data}); err != nil {
				return
			}
			writes++
			nextOrdinal = m.ordinal + 1
		}

		// A POST stream terminates once every request it carried has been
		// answered and written.
		if req.Method == http.MethodPost && outstanding == 0 {
			if writes == 0 {
				w.WriteHeader(http.StatusAccepted)
			}
			return
		}

		select {
		case <-stream.signal:
		case <-t.done:
			if writes == 0 && req.Method != http.MethodGet {
				http.Error(w, "session terminated", http.StatusGone)
			}
			return
		case <-req.Context().Done():
			return
		}
	}
}

// A StreamableClientTransport is a [Transport] that connects to a streamable
// HTTP server.
type StreamableClientTransport struct {
	// Endpoint is the MCP endpoint URL.
	Endpoint string
	opts     StreamableClientTransportOptions
}

// StreamableClientTransportOptions configures a
// [NewStreamableClientTransport].
type StreamableClientTransportOptions struct {
	// HTTPClient is the client for all requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
	// TokenSource, if set, supplies OAuth Bearer tokens attached to every
	// request.
	TokenSource oauth2.TokenSource
	// MaxRetries bounds retries of failed POSTs and reconnects of the
	// standalone stream. 0 means no retries beyond the initial attempt.
	MaxRetries int
	// InitialBackoff is the delay before the first retry; later retries
	// back off exponentially with jitter, capped at 30 seconds. Defaults to
	// 1 second.
	InitialBackoff time.Duration
	// Logger for transport diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
}

// NewStreamableClientTransport returns a transport connecting to the
// streamable HTTP server at url.
func NewStreamableClientTransport(url string, opts *StreamableClientTransportOptions) *StreamableClientTransport {
	t := &StreamableClientTransport{Endpoint: url}
	if opts != nil {
		t.opts = *opts
	}
	if t.opts.InitialBackoff == 0 {
		t.opts.InitialBackoff = time.Second
	}
	if t.opts.Logger == nil {
		t.opts.Logger = slog.Default()
	}
	return t
}

// Connect implements the [Transport] interface.
//
// The connection POSTs payloads to the endpoint, learns its session ID from
// the initialize response, then maintains a hanging GET for server-initiated
// messages, resuming with Last-Event-ID after interruptions. Closing the
// connection DELETEs the session.
func (t *StreamableClientTransport) Connect(ctx context.Context) (Connection, error) {
	client := t.opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	if t.opts.TokenSource != nil {
		base := client.Transport
		wrapped := *client
		wrapped.Transport = &oauth2.Transport{Source: t.opts.TokenSource, Base: base}
		client = &wrapped
	}
	conn := &streamableClientConn{
		url:            t.Endpoint,
		client:         client,
		logger:         t.opts.Logger,
		maxRetries:     t.opts.MaxRetries,
		initialBackoff: t.opts.InitialBackoff,
		incoming:       make(chan jsonrpc.Messages, incomingBuffer),
		gotSession:     make(chan struct{}),
		done:           make(chan struct{}),
		randSource:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	conn.sessionID.Store("")
	conn.protocolVersion.Store("")
	go conn.maintainStandaloneStream()
	return conn, nil
}

type streamableClientConn struct {
	url    string
	client *http.Client
	logger *slog.Logger

	maxRetries     int
	initialBackoff time.Duration
	randSource     *rand.Rand

	sessionID       atomic.Value // string
	protocolVersion atomic.Value // string
	sessionOnce     sync.Once
	gotSession      chan struct{}

	incoming chan jsonrpc.Messages

	mu          sync.Mutex
	lastEventID string
	err         error

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func (c *streamableClientConn) SessionID() string {
	return c.sessionID.Load().(string)
}

// setProtocolVersion records the negotiated version, echoed as a header on
// every subsequent request.
func (c *streamableClientConn) setProtocolVersion(v string) {
	c.protocolVersion.Store(v)
}

func (c *streamableClientConn) setHeaders(req *http.Request) {
	if id := c.SessionID(); id != "" {
		req.Header.Set(sessionIDHeader, id)
	}
	if v := c.protocolVersion.Load().(string); v != "" {
		req.Header.Set(protocolVersionHeader, v)
	}
}

// Read implements the [Connection] interface.
func (c *streamableClientConn) Read(ctx context.Context) (jsonrpc.Messages, error) {
	select {
	case msgs := <-c.incoming:
		return msgs, nil
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.err != nil {
			return jsonrpc.Messages{}, c.err
		}
		return jsonrpc.Messages{}, io.EOF
	case <-ctx.Done():
		return jsonrpc.Messages{}, ctx.Err()
	}
}

// Write implements the [Connection] interface: one POST per payload.
// Retryable failures (gateway errors, timeouts) are retried with backoff;
// anything else surfaces as a transport error.
func (c *streamableClientConn) Write(ctx context.Context, msgs jsonrpc.Messages) error {
	data, err := jsonrpc.EncodeMessages(msgs)
	if err != nil {
		return err
	}
	var lastErr error
	backoff := c.initialBackoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		select {
		case <-c.done:
			return ErrConnectionClosed
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		lastErr = c.postMessage(ctx, data)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		delay := backoff + time.Duration(c.randSource.Int63n(int64(backoff/2)+1))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrConnectionClosed
		}
		backoff = min(backoff*2, 30*time.Second)
	}
	return fmt.Errorf("POST failed after %d retries: %w", c.maxRetries, lastErr)
}

func (c *streamableClientConn) postMessage(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return &httpStatusError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("POST returned %s: %s", resp.Status, strings.TrimSpace(string(body))),
		}
	}

	if id := resp.Header.Get(sessionIDHeader); id != "" && c.SessionID() == "" {
		c.sessionID.Store(id)
		c.sessionOnce.Do(func() { close(c.gotSession) })
	}

	ct := resp.Header.Get("Content-Type")
	mediaType, _, _ := strings.Cut(ct, ";")
	switch strings.TrimSpace(mediaType) {
	case "text/event-stream":
		// Stream the POST's responses in the background; the dispatcher
		// correlates them by ID.
		go c.handlePOSTStream(resp)
		return nil
	case "application/json":
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		msgs, err := jsonrpc.DecodeMessages(body)
		if err != nil {
			return err
		}
		return c.enqueue(msgs)
	case "":
		// 202 Accepted for notification-only payloads has no body.
		resp.Body.Close()
		return nil
	default:
		resp.Body.Close()
		return &UnexpectedContentTypeError{ContentType: ct}
	}
}

// handlePOSTStream consumes the SSE events of a POST response. Events on the
// POST stream are never resumed: a broken stream simply ends, and pending
// requests time out.
func (c *streamableClientConn) handlePOSTStream(resp *http.Response) {
	defer resp.Body.Close()
	for evt, err := range scanEvents(resp.Body) {
		if err != nil {
			return
		}
		msgs, err := jsonrpc.DecodeMessages(evt.data)
		if err != nil {
			c.logger.Debug("dropping malformed SSE payload", "error", err)
			continue
		}
		if c.enqueue(msgs) != nil {
			return
		}
	}
}

func (c *streamableClientConn) enqueue(msgs jsonrpc.Messages) error {
	select {
	case c.incoming <- msgs:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	}
}

// maintainStandaloneStream opens the hanging GET once a session is
// established, reconnecting with exponential backoff and Last-Event-ID on
// retryable failures. 404/405 mean the server doesn't support the
// standalone stream; the connection proceeds without it.
func (c *streamableClientConn) maintainStandaloneStream() {
	select {
	case <-c.gotSession:
	case <-c.done:
		return
	}

	retries := 0
	backoff := c.initialBackoff
	for {
		select {
		case <-c.done:
			return
		default:
		}

		err := c.runStandaloneStream()
		if err == nil {
			// Graceful end of stream; reconnect immediately.
			retries, backoff = 0, c.initialBackoff
			continue
		}
		var statusErr *httpStatusError
		if errors.As(err, &statusErr) {
			switch statusErr.StatusCode {
			case http.StatusMethodNotAllowed, http.StatusNotFound:
				c.logger.Debug("standalone stream unsupported by server")
				return
			}
		}
		if !isRetryable(err) || retries >= c.maxRetries {
			c.logger.Warn("standalone stream abandoned", "error", err, "retries", retries)
			return
		}
		delay := backoff + time.Duration(c.randSource.Int63n(int64(backoff/2)+1))
		select {
		case <-time.After(delay):
		case <-c.done:
			return
		}
		retries++
		backoff = min(backoff*2, 30*time.Second)
	}
}

func (c *streamableClientConn) runStandaloneStream() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.setHeaders(req)
	c.mu.Lock()
	if c.lastEventID != "" {
		req.Header.Set(lastEventIDHeader, c.lastEventID)
	}
	c.mu.Unlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return &httpStatusError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("GET returned %s: %s", resp.Status, strings.TrimSpace(string(body))),
		}
	}
	defer resp.Body.Close()

	for evt, err := range scanEvents(resp.Body) {
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if evt.id != "" {
			c.mu.Lock()
			c.lastEventID = evt.id
			c.mu.Unlock()
		}
		msgs, err := jsonrpc.DecodeMessages(evt.data)
		if err != nil {
			continue
		}
		if c.enqueue(msgs) != nil {
			return nil
		}
	}
	return nil
}

// Close implements the [Connection] interface. Session termination on the
// server is best effort: servers that don't support DELETE answer 405,
// which is swallowed.
func (c *streamableClientConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if sessionID := c.SessionID(); sessionID != "" {
			req, err := http.NewRequest(http.MethodDelete, c.url, nil)
			if err != nil {
				c.closeErr = err
				return
			}
			c.setHeaders(req)
			resp, err := c.client.Do(req)
			if err != nil {
				c.closeErr = fmt.Errorf("terminating session: %w", err)
				return
			}
			resp.Body.Close()
		}
	})
	return c.closeErr
}

// isRetryable reports whether an error indicates a transient condition worth
// retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *httpStatusError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusRequestTimeout, // 408
			http.StatusTooEarly,            // 425
			http.StatusTooManyRequests,     // 429
			http.StatusInternalServerError, // 500
			http.StatusBadGateway,          // 502
			http.StatusServiceUnavailable,  // 503
			http.StatusGatewayTimeout:      // 504
			return true
		}
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// Connection-level failures (refused, reset) during POST or GET.
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// An httpStatusError wraps an error with the HTTP status that caused it.
type httpStatusError struct {
	StatusCode int
	Err        error
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP status %d: %v", e.StatusCode, e.Err)
}

func (e *httpStatusError) Unwrap() error { return e.Err }

// An UnexpectedContentTypeError is reported when a server answers a POST
// with a Content-Type the transport cannot interpret.
type UnexpectedContentTypeError struct {
	ContentType string
}

func (e *UnexpectedContentTypeError) Error() string {
	return fmt.Sprintf("unexpected Content-Type %q", e.ContentType)
}
