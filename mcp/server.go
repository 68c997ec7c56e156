// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcpstack/go-mcp/jsonrpc"
)

// A Server is an MCP server definition: an implementation name, advertised
// capabilities, and a handler. Servers are stateless templates; Connect
// binds one to a transport, producing a [ServerSession] per client.
type Server struct {
	impl    *Implementation
	handler ServerHandler
	opts    ServerOptions
}

// ServerOptions configures a [Server].
type ServerOptions struct {
	// Capabilities advertised in the initialize result. Defaults to none.
	Capabilities *ServerCapabilities
	// Instructions for the client's model, included in the initialize
	// result.
	Instructions string
	// RequestTimeout bounds server-initiated requests. Defaults to
	// DefaultRequestTimeout.
	RequestTimeout time.Duration
	// PingInterval, if positive, makes each session send keep-alive pings.
	// A failed ping closes the session.
	PingInterval time.Duration
	// PageSize bounds list results. Defaults to 100.
	PageSize int
	// TaskPollInterval is the advisory poll interval attached to created
	// tasks. Defaults to 500ms.
	TaskPollInterval time.Duration
	// Logger for runtime diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
}

// NewServer returns a server with the given implementation info, handler and
// options. The handler must not be nil; embed [UnimplementedServerHandler]
// and override only what the server supports.
func NewServer(impl *Implementation, handler ServerHandler, opts *ServerOptions) *Server {
	if impl == nil {
		panic("nil Implementation")
	}
	if handler == nil {
		panic("nil ServerHandler")
	}
	s := &Server{impl: impl, handler: handler}
	if opts != nil {
		s.opts = *opts
	}
	if s.opts.Capabilities == nil {
		s.opts.Capabilities = &ServerCapabilities{}
	}
	if s.opts.RequestTimeout <= 0 {
		s.opts.RequestTimeout = DefaultRequestTimeout
	}
	if s.opts.PageSize <= 0 {
		s.opts.PageSize = 100
	}
	if s.opts.TaskPollInterval <= 0 {
		s.opts.TaskPollInterval = 500 * time.Millisecond
	}
	if s.opts.Logger == nil {
		s.opts.Logger = slog.Default()
	}
	return s
}

// Connect begins an MCP session by connecting over the given transport and
// starting the session's message loop. The returned session is live but not
// initialized until the client completes the initialize handshake.
func (s *Server) Connect(ctx context.Context, t Transport) (*ServerSession, error) {
	conn, err := t.Connect(ctx)
	if err != nil {
		return nil, err
	}
	ss := &ServerSession{
		server: s,
		conn:   conn,
		disp:   newDispatcher(conn, s.opts.RequestTimeout, s.opts.Logger),
		state:  stateUninitialized,
		done:   make(chan struct{}),
	}
	if s.opts.Capabilities.Tasks != nil {
		ss.tasks = newServerTaskStore(s.opts.TaskPollInterval)
	}
	ss.disp.start(context.Background())
	go ss.mainLoop()
	return ss, nil
}

// Run connects and blocks until the client disconnects or ctx is cancelled.
// Intended for stdio servers.
func (s *Server) Run(ctx context.Context, t Transport) error {
	ss, err := s.Connect(ctx, t)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		ss.Close()
		return ctx.Err()
	case <-ss.done:
		return nil
	}
}

// sessionState is the initialization state machine of a session.
type sessionState int

const (
	stateUninitialized sessionState = iota // only initialize accepted
	stateInitializing                      // initialize answered, awaiting notifications/initialized
	stateReady                             // all methods permitted
)

// A ServerSession is one live client-server pairing. It dispatches incoming
// messages to the server's handler and exposes server-initiated requests.
type ServerSession struct {
	server *Server
	conn   Connection
	disp   *dispatcher

	mu           sync.Mutex
	state        sessionState
	clientParams *InitializeParams

	tasks *serverTaskStore

	// streamable is set when the session is served by the streamable HTTP
	// transport; the HTTP handler routes requests through it.
	streamable *streamableServerTransport
	// onClose releases transport-held resources (session store slot, event
	// store entries).
	onClose func()

	closeOnce sync.Once
	done      chan struct{}
}

// SessionID returns the transport session identifier, or "" for transports
// without sessions.
func (ss *ServerSession) SessionID() string {
	if c, ok := ss.conn.(hasSessionID); ok {
		return c.SessionID()
	}
	return ""
}

// InitializeParams returns the client's initialize params, or nil before
// initialization.
func (ss *ServerSession) InitializeParams() *InitializeParams {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.clientParams
}

// Close terminates the session: the message loop stops, in-flight
// server-initiated requests fail with ErrConnectionClosed or with a
// "connection closed" internal error, and the session is released from its
// transport's stores.
func (ss *ServerSession) Close() error {
	var err error
	ss.closeOnce.Do(func() {
		close(ss.done)
		if ss.tasks != nil {
			ss.tasks.close()
		}
		err = ss.disp.close()
		if ss.onClose != nil {
			ss.onClose()
		}
	})
	return err
}

// Wait blocks until the session ends.
func (ss *ServerSession) Wait() {
	<-ss.done
}

// idContextKey carries the incoming request ID through handler contexts, so
// that messages sent while handling a request can be correlated with it by
// the streamable transport.
type idContextKey struct{}

func (ss *ServerSession) mainLoop() {
	defer ss.Close()
	ctx := context.Background()
	for {
		select {
		case msgs := <-ss.disp.incoming:
			ss.handleMessages(ctx, msgs)
		case <-ss.disp.done:
			return
		case <-ss.done:
			return
		}
	}
}

// handleMessages processes one inbound payload. The messages of a batch are
// handled concurrently and their responses emitted as one batch payload;
// single requests are handled on their own goroutine so a slow handler does
// not stall the loop beyond the inbound buffer, while single notifications
// are handled inline.
func (ss *ServerSession) handleMessages(ctx context.Context, msgs jsonrpc.Messages) {
	if !msgs.Batch {
		msg := msgs.Items[0]
		// Notifications are handled inline so that their effects (notably
		// the initialized transition) are ordered before later requests.
		if req, ok := msg.(*jsonrpc.Request); ok && !req.IsCall() {
			ss.handleNotification(ctx, req)
			return
		}
		go func() {
			if resp := ss.handleMessage(ctx, msg); resp != nil {
				if err := ss.conn.Write(ctx, jsonrpc.Single(resp)); err != nil {
					ss.server.opts.Logger.Warn("writing response", "error", err)
				}
			}
		}()
		return
	}

	go func() {
		responses := make([]jsonrpc.Message, len(msgs.Items))
		g := new(errgroup.Group)
		for i, msg := range msgs.Items {
			g.Go(func() error {
				responses[i] = ss.handleMessage(ctx, msg)
				return nil
			})
		}
		g.Wait()

		// Notifications produce no responses; the batch response contains
		// exactly the responses to the batch's requests.
		out := jsonrpc.Messages{Batch: true}
		for _, r := range responses {
			if r != nil {
				out.Items = append(out.Items, r)
			}
		}
		if out.Empty() {
			return
		}
		if err := ss.conn.Write(ctx, out); err != nil {
			ss.server.opts.Logger.Warn("writing batch response", "error", err)
		}
	}()
}

// handleMessage dispatches one message, returning the response to send, or
// nil for notifications.
func (ss *ServerSession) handleMessage(ctx context.Context, msg jsonrpc.Message) jsonrpc.Message {
	req, ok := msg.(*jsonrpc.Request)
	if !ok {
		return nil
	}
	if !req.IsCall() {
		ss.handleNotification(ctx, req)
		return nil
	}

	ctx = context.WithValue(ctx, idContextKey{}, req.ID)
	result, err := ss.handleRequest(ctx, req)
	resp := &jsonrpc.Response{ID: req.ID}
	if err != nil {
		resp.Error = toJSONRPCError(err)
		ss.server.handler.HandleError(err)
	} else {
		raw, merr := marshalParams(result)
		if merr != nil {
			resp.Error = jsonrpc.Errorf(jsonrpc.CodeInternalError, "marshaling result: %v", merr)
		} else {
			resp.Result = raw
		}
	}
	return resp
}

// toJSONRPCError maps a handler error onto the wire. A *jsonrpc.Error
// passes through unchanged; anything else becomes an internal error.
func toJSONRPCError(err error) *jsonrpc.Error {
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return jsonrpc.Errorf(jsonrpc.CodeInternalError, "%v", err)
}

// assertCapability returns an internal error naming the capability a method
// needs when the server does not advertise it. initialize, ping and custom
// methods always pass.
func (s *Server) assertCapability(method string) error {
	caps := s.opts.Capabilities
	var capName string
	var ok bool
	switch method {
	case methodInitialize, methodPing:
		return nil
	case methodListResources, methodListResourceTemplates, methodReadResource:
		capName, ok = "resources", caps.Resources != nil
	case methodSubscribe, methodUnsubscribe:
		capName, ok = "resources.subscribe", caps.Resources != nil && caps.Resources.Subscribe
	case methodListPrompts, methodGetPrompt:
		capName, ok = "prompts", caps.Prompts != nil
	case methodListTools, methodCallTool:
		capName, ok = "tools", caps.Tools != nil
	case methodSetLevel:
		capName, ok = "logging", caps.Logging != nil
	case methodComplete:
		capName, ok = "completions", caps.Completions != nil
	case methodGetTask, methodTaskResult:
		capName, ok = "tasks", caps.Tasks != nil
	case methodListTasks:
		capName, ok = "tasks.list", caps.Tasks != nil && caps.Tasks.List != nil
	case methodCancelTask:
		capName, ok = "tasks.cancel", caps.Tasks != nil && caps.Tasks.Cancel != nil
	default:
		// Custom methods carry their own semantics.
		return nil
	}
	if !ok {
		return jsonrpc.Errorf(jsonrpc.CodeInternalError,
			"server does not advertise the %q capability required by %q", capName, method)
	}
	return nil
}

func unmarshalParams[T any](raw json.RawMessage) (*T, error) {
	params := new(T)
	if len(raw) > 0 {
		if err := internalUnmarshal(raw, params); err != nil {
			return nil, jsonrpc.Errorf(jsonrpc.CodeInvalidParams, "unmarshaling params: %v", err)
		}
	}
	return params, nil
}

func (ss *ServerSession) handleRequest(ctx context.Context, req *jsonrpc.Request) (any, error) {
	// Initialization gate: before the handshake, only initialize is
	// accepted; between initialize and notifications/initialized only ping
	// joins it.
	ss.mu.Lock()
	state := ss.state
	ss.mu.Unlock()
	switch state {
	case stateUninitialized:
		if req.Method != methodInitialize {
			return nil, jsonrpc.Errorf(jsonrpc.CodeInternalError,
				"method %q called before initialization was complete", req.Method)
		}
	case stateInitializing:
		if req.Method != methodInitialize && req.Method != methodPing {
			return nil, jsonrpc.Errorf(jsonrpc.CodeInternalError,
				"method %q called before initialization was complete", req.Method)
		}
	}

	if err := ss.server.assertCapability(req.Method); err != nil {
		return nil, err
	}

	h := ss.server.handler
	switch req.Method {
	case methodInitialize:
		params, err := unmarshalParams[InitializeParams](req.Params)
		if err != nil {
			return nil, err
		}
		return ss.initialize(ctx, params)
	case methodPing:
		return &EmptyResult{}, nil
	case methodListResources:
		params, err := unmarshalParams[ListResourcesParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.HandleListResources(ctx, ss, params)
	case methodListResourceTemplates:
		params, err := unmarshalParams[ListResourceTemplatesParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.HandleListResourceTemplates(ctx, ss, params)
	case methodReadResource:
		params, err := unmarshalParams[ReadResourceParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.HandleReadResource(ctx, ss, params)
	case methodSubscribe:
		params, err := unmarshalParams[SubscribeParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.HandleSubscribe(ctx, ss, params)
	case methodUnsubscribe:
		params, err := unmarshalParams[UnsubscribeParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.HandleUnsubscribe(ctx, ss, params)
	case methodListPrompts:
		params, err := unmarshalParams[ListPromptsParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.HandleListPrompts(ctx, ss, params)
	case methodGetPrompt:
		params, err := unmarshalParams[GetPromptParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.HandleGetPrompt(ctx, ss, params)
	case methodListTools:
		params, err := unmarshalParams[ListToolsParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.HandleListTools(ctx, ss, params)
	case methodCallTool:
		params, err := unmarshalParams[CallToolParams](req.Params)
		if err != nil {
			return nil, err
		}
		return ss.callTool(ctx, params)
	case methodSetLevel:
		params, err := unmarshalParams[SetLoggingLevelParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.HandleSetLoggingLevel(ctx, ss, params)
	case methodComplete:
		params, err := unmarshalParams[CompleteParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.HandleComplete(ctx, ss, params)
	case methodGetTask:
		params, err := unmarshalParams[GetTaskParams](req.Params)
		if err != nil {
			return nil, err
		}
		return ss.getTask(ctx, params)
	case methodListTasks:
		params, err := unmarshalParams[ListTasksParams](req.Params)
		if err != nil {
			return nil, err
		}
		return ss.listTasks(ctx, params)
	case methodCancelTask:
		params, err := unmarshalParams[CancelTaskParams](req.Params)
		if err != nil {
			return nil, err
		}
		return ss.cancelTask(ctx, params)
	case methodTaskResult:
		params, err := unmarshalParams[TaskResultParams](req.Params)
		if err != nil {
			return nil, err
		}
		return ss.taskResult(ctx, params)
	default:
		return h.HandleCustomRequest(ctx, ss, req.Method, req.Params)
	}
}

// initialize answers the handshake: protocol version negotiation, then the
// handler's chance to customize the result.
func (ss *ServerSession) initialize(ctx context.Context, params *InitializeParams) (*InitializeResult, error) {
	res := &InitializeResult{
		ProtocolVersion: negotiatedProtocolVersion(params.ProtocolVersion),
		Capabilities:    ss.server.opts.Capabilities,
		ServerInfo:      ss.server.impl,
		Instructions:    ss.server.opts.Instructions,
	}
	if custom, err := ss.server.handler.HandleInitialize(ctx, ss, params); err != nil {
		return nil, err
	} else if custom != nil {
		res = custom
	}

	ss.mu.Lock()
	ss.clientParams = params
	ss.state = stateInitializing
	ss.mu.Unlock()
	return res, nil
}

func (ss *ServerSession) handleNotification(ctx context.Context, req *jsonrpc.Request) {
	h := ss.server.handler
	switch req.Method {
	case notificationInitialized:
		ss.mu.Lock()
		ss.state = stateReady
		ss.mu.Unlock()
		h.HandleInitialized(ctx, ss)
		if ss.server.opts.PingInterval > 0 {
			go ss.keepAlive(ss.server.opts.PingInterval)
		}
	case notificationCancelled:
		params, err := unmarshalParams[CancelledParams](req.Params)
		if err != nil {
			return
		}
		h.HandleCancelled(ctx, ss, params)
	case notificationProgress:
		params, err := unmarshalParams[ProgressNotificationParams](req.Params)
		if err != nil {
			return
		}
		h.HandleProgress(ctx, ss, params)
	case notificationRootsListChanged:
		h.HandleRootsListChanged(ctx, ss)
	case notificationTaskStatus:
		params, err := unmarshalParams[TaskStatusNotificationParams](req.Params)
		if err != nil {
			return
		}
		h.HandleTaskStatus(ctx, ss, params)
	default:
		h.HandleCustomNotification(ctx, ss, req.Method, req.Params)
	}
}

// keepAlive pings the client at the configured interval. An unanswered ping
// disconnects the session.
func (ss *ServerSession) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := ss.Ping(ctx)
			cancel()
			if err != nil && !errors.Is(err, io.EOF) {
				ss.server.opts.Logger.Warn("keep-alive ping failed; closing session",
					"sessionid", ss.SessionID(), "error", err)
				ss.Close()
				return
			}
		case <-ss.done:
			return
		}
	}
}

// Server-initiated requests and notifications. On the streamable transport
// these are delivered on the session's standalone stream.

// Ping checks that the client connection is alive.
func (ss *ServerSession) Ping(ctx context.Context) error {
	return ss.disp.call(ctx, methodPing, &PingParams{}, nil, 0)
}

// ListRoots asks the client for its root set.
func (ss *ServerSession) ListRoots(ctx context.Context, params *ListRootsParams) (*ListRootsResult, error) {
	if params == nil {
		params = &ListRootsParams{}
	}
	res := new(ListRootsResult)
	if err := ss.disp.call(ctx, methodListRoots, params, res, 0); err != nil {
		return nil, err
	}
	return res, nil
}

// CreateMessage asks the client to sample its model.
func (ss *ServerSession) CreateMessage(ctx context.Context, params *CreateMessageParams) (*CreateMessageResult, error) {
	res := new(CreateMessageResult)
	if err := ss.disp.call(ctx, methodCreateMessage, params, res, 0); err != nil {
		return nil, err
	}
	return res, nil
}

// Elicit asks the client to gather input from its user.
func (ss *ServerSession) Elicit(ctx context.Context, params *ElicitParams) (*ElicitResult, error) {
	res := new(ElicitResult)
	if err := ss.disp.call(ctx, methodElicit, params, res, 0); err != nil {
		return nil, err
	}
	return res, nil
}

// NotifyProgress sends a progress notification.
func (ss *ServerSession) NotifyProgress(ctx context.Context, params *ProgressNotificationParams) error {
	return ss.disp.notify(ctx, notificationProgress, params)
}

// Log sends a logging message notification, subject to no level filtering:
// level selection is the handler's concern.
func (ss *ServerSession) Log(ctx context.Context, params *LoggingMessageParams) error {
	return ss.disp.notify(ctx, notificationMessage, params)
}

// NotifyResourceUpdated notifies subscribers of a resource change.
func (ss *ServerSession) NotifyResourceUpdated(ctx context.Context, params *ResourceUpdatedNotificationParams) error {
	return ss.disp.notify(ctx, notificationResourceUpdated, params)
}

// NotifyToolListChanged notifies the client that the tool list changed.
func (ss *ServerSession) NotifyToolListChanged(ctx context.Context) error {
	return ss.disp.notify(ctx, notificationToolListChanged, nil)
}

// notifyTaskStatus pushes a task status transition to the client.
func (ss *ServerSession) notifyTaskStatus(t *Task) {
	params := (*TaskStatusNotificationParams)(t)
	if err := ss.disp.notify(context.Background(), notificationTaskStatus, params); err != nil {
		ss.server.opts.Logger.Debug("task status notification failed", "taskid", t.TaskID, "error", err)
	}
}
