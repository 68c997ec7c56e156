// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpstack/go-mcp/jsonrpc"
)

// A Client is an MCP client definition, the mirror image of [Server].
// Connect binds it to a transport and performs the initialize handshake.
type Client struct {
	impl    *Implementation
	handler ClientHandler
	opts    ClientOptions
}

// ClientOptions configures a [Client].
type ClientOptions struct {
	// Capabilities advertised in the initialize request.
	Capabilities *ClientCapabilities
	// RequestTimeout bounds client-initiated requests. Defaults to
	// DefaultRequestTimeout.
	RequestTimeout time.Duration
	// Logger for runtime diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
}

// NewClient returns a client with the given implementation info, handler and
// options. A nil handler behaves as [UnimplementedClientHandler].
func NewClient(impl *Implementation, handler ClientHandler, opts *ClientOptions) *Client {
	if impl == nil {
		panic("nil Implementation")
	}
	if handler == nil {
		handler = UnimplementedClientHandler{}
	}
	c := &Client{impl: impl, handler: handler}
	if opts != nil {
		c.opts = *opts
	}
	if c.opts.Capabilities == nil {
		c.opts.Capabilities = &ClientCapabilities{}
	}
	if c.opts.RequestTimeout <= 0 {
		c.opts.RequestTimeout = DefaultRequestTimeout
	}
	if c.opts.Logger == nil {
		c.opts.Logger = slog.Default()
	}
	return c
}

// protocolVersionSetter is implemented by connections that echo the
// negotiated protocol version on subsequent requests.
type protocolVersionSetter interface {
	setProtocolVersion(string)
}

// Connect connects over the transport and completes the initialize
// handshake. On the streamable transport the connection then opens the
// standalone server event stream automatically; servers that don't support
// it are tolerated.
func (c *Client) Connect(ctx context.Context, t Transport) (*ClientSession, error) {
	conn, err := t.Connect(ctx)
	if err != nil {
		return nil, err
	}
	cs := &ClientSession{
		client: c,
		conn:   conn,
		disp:   newDispatcher(conn, c.opts.RequestTimeout, c.opts.Logger),
		tasks:  newClientTaskStore(),
		done:   make(chan struct{}),
	}
	cs.disp.start(context.Background())
	go cs.mainLoop()

	params := &InitializeParams{
		ProtocolVersion: LatestProtocolVersion,
		Capabilities:    c.opts.Capabilities,
		ClientInfo:      c.impl,
	}
	res := new(InitializeResult)
	if err := cs.disp.call(ctx, methodInitialize, params, res, 0); err != nil {
		cs.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if !protocolVersionSupported(res.ProtocolVersion) {
		cs.Close()
		return nil, fmt.Errorf("initialize: server offered unsupported protocol version %q", res.ProtocolVersion)
	}
	if setter, ok := conn.(protocolVersionSetter); ok {
		setter.setProtocolVersion(res.ProtocolVersion)
	}
	cs.mu.Lock()
	cs.serverInfo = res
	cs.mu.Unlock()

	if err := cs.disp.notify(ctx, notificationInitialized, &InitializedParams{}); err != nil {
		cs.Close()
		return nil, fmt.Errorf("initialized notification: %w", err)
	}
	return cs, nil
}

// A ClientSession is one live connection to a server.
type ClientSession struct {
	client *Client
	conn   Connection
	disp   *dispatcher

	mu         sync.Mutex
	serverInfo *InitializeResult

	tasks *clientTaskStore

	closeOnce sync.Once
	done      chan struct{}
}

// InitializeResult returns the server's initialize result, or nil before the
// handshake completes.
func (cs *ClientSession) InitializeResult() *InitializeResult {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.serverInfo
}

// SessionID returns the transport session identifier, or "" for transports
// without sessions.
func (cs *ClientSession) SessionID() string {
	if c, ok := cs.conn.(hasSessionID); ok {
		return c.SessionID()
	}
	return ""
}

// Close terminates the session. On the streamable transport the connection
// sends a best-effort DELETE to end the server-side session.
func (cs *ClientSession) Close() error {
	var err error
	cs.closeOnce.Do(func() {
		close(cs.done)
		cs.tasks.close()
		err = cs.disp.close()
	})
	return err
}

// Wait blocks until the session ends.
func (cs *ClientSession) Wait() {
	<-cs.done
}

func (cs *ClientSession) mainLoop() {
	defer cs.Close()
	ctx := context.Background()
	for {
		select {
		case msgs := <-cs.disp.incoming:
			for _, msg := range msgs.Items {
				req, ok := msg.(*jsonrpc.Request)
				if !ok {
					continue
				}
				if !req.IsCall() {
					// Notifications are ordered relative to each other.
					cs.handleNotification(ctx, req)
					continue
				}
				go cs.handleMessage(ctx, req)
			}
		case <-cs.disp.done:
			return
		case <-cs.done:
			return
		}
	}
}

func (cs *ClientSession) handleMessage(ctx context.Context, req *jsonrpc.Request) {
	if !req.IsCall() {
		cs.handleNotification(ctx, req)
		return
	}
	result, err := cs.handleRequest(ctx, req)
	resp := &jsonrpc.Response{ID: req.ID}
	if err != nil {
		resp.Error = toJSONRPCError(err)
		cs.client.handler.HandleError(err)
	} else {
		raw, merr := marshalParams(result)
		if merr != nil {
			resp.Error = jsonrpc.Errorf(jsonrpc.CodeInternalError, "marshaling result: %v", merr)
		} else {
			resp.Result = raw
		}
	}
	if err := cs.conn.Write(ctx, jsonrpc.Single(resp)); err != nil {
		cs.client.opts.Logger.Warn("writing response", "error", err)
	}
}

func (cs *ClientSession) handleRequest(ctx context.Context, req *jsonrpc.Request) (any, error) {
	h := cs.client.handler
	switch req.Method {
	case methodPing:
		return &EmptyResult{}, nil
	case methodListRoots:
		params, err := unmarshalParams[ListRootsParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.HandleListRoots(ctx, cs, params)
	case methodCreateMessage:
		params, err := unmarshalParams[CreateMessageParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.HandleCreateMessage(ctx, cs, params)
	case methodElicit:
		params, err := unmarshalParams[ElicitParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.HandleElicit(ctx, cs, params)
	default:
		return h.HandleCustomRequest(ctx, cs, req.Method, req.Params)
	}
}

func (cs *ClientSession) handleNotification(ctx context.Context, req *jsonrpc.Request) {
	h := cs.client.handler
	switch req.Method {
	case notificationProgress:
		if params, err := unmarshalParams[ProgressNotificationParams](req.Params); err == nil {
			h.HandleProgress(ctx, cs, params)
		}
	case notificationMessage:
		if params, err := unmarshalParams[LoggingMessageParams](req.Params); err == nil {
			h.HandleLoggingMessage(ctx, cs, params)
		}
	case notificationResourceUpdated:
		if params, err := unmarshalParams[ResourceUpdatedNotificationParams](req.Params); err == nil {
			h.HandleResourceUpdated(ctx, cs, params)
		}
	case notificationToolListChanged:
		h.HandleToolListChanged(ctx, cs)
	case notificationTaskStatus:
		if params, err := unmarshalParams[TaskStatusNotificationParams](req.Params); err == nil {
			cs.tasks.observe((*Task)(params))
		}
	default:
		h.HandleCustomNotification(ctx, cs, req.Method, req.Params)
	}
}

// Typed client-initiated requests.

// Ping checks that the server connection is alive.
func (cs *ClientSession) Ping(ctx context.Context) error {
	return cs.disp.call(ctx, methodPing, &PingParams{}, nil, 0)
}

// ListTools lists one page of the server's tools.
func (cs *ClientSession) ListTools(ctx context.Context, params *ListToolsParams) (*ListToolsResult, error) {
	if params == nil {
		params = &ListToolsParams{}
	}
	res := new(ListToolsResult)
	if err := cs.disp.call(ctx, methodListTools, params, res, 0); err != nil {
		return nil, err
	}
	return res, nil
}

// CallTool calls a tool synchronously.
func (cs *ClientSession) CallTool(ctx context.Context, params *CallToolParams) (*CallToolResult, error) {
	res := new(CallToolResult)
	if err := cs.disp.call(ctx, methodCallTool, params, res, 0); err != nil {
		return nil, err
	}
	return res, nil
}

// ListPrompts lists one page of the server's prompts.
func (cs *ClientSession) ListPrompts(ctx context.Context, params *ListPromptsParams) (*ListPromptsResult, error) {
	if params == nil {
		params = &ListPromptsParams{}
	}
	res := new(ListPromptsResult)
	if err := cs.disp.call(ctx, methodListPrompts, params, res, 0); err != nil {
		return nil, err
	}
	return res, nil
}

// GetPrompt expands a prompt.
func (cs *ClientSession) GetPrompt(ctx context.Context, params *GetPromptParams) (*GetPromptResult, error) {
	res := new(GetPromptResult)
	if err := cs.disp.call(ctx, methodGetPrompt, params, res, 0); err != nil {
		return nil, err
	}
	return res, nil
}

// ListResources lists one page of the server's resources.
func (cs *ClientSession) ListResources(ctx context.Context, params *ListResourcesParams) (*ListResourcesResult, error) {
	if params == nil {
		params = &ListResourcesParams{}
	}
	res := new(ListResourcesResult)
	if err := cs.disp.call(ctx, methodListResources, params, res, 0); err != nil {
		return nil, err
	}
	return res, nil
}

// ListResourceTemplates lists one page of the server's resource templates.
func (cs *ClientSession) ListResourceTemplates(ctx context.Context, params *ListResourceTemplatesParams) (*ListResourceTemplatesResult, error) {
	if params == nil {
		params = &ListResourceTemplatesParams{}
	}
	res := new(ListResourceTemplatesResult)
	if err := cs.disp.call(ctx, methodListResourceTemplates, params, res, 0); err != nil {
		return nil, err
	}
	return res, nil
}

// ReadResource reads a resource.
func (cs *ClientSession) ReadResource(ctx context.Context, params *ReadResourceParams) (*ReadResourceResult, error) {
	res := new(ReadResourceResult)
	if err := cs.disp.call(ctx, methodReadResource, params, res, 0); err != nil {
		return nil, err
	}
	return res, nil
}

// Subscribe subscribes to updates of a resource.
func (cs *ClientSession) Subscribe(ctx context.Context, params *SubscribeParams) error {
	return cs.disp.call(ctx, methodSubscribe, params, nil, 0)
}

// Unsubscribe removes a resource subscription.
func (cs *ClientSession) Unsubscribe(ctx context.Context, params *UnsubscribeParams) error {
	return cs.disp.call(ctx, methodUnsubscribe, params, nil, 0)
}

// SetLoggingLevel sets the minimum level of the server's log notifications.
func (cs *ClientSession) SetLoggingLevel(ctx context.Context, params *SetLoggingLevelParams) error {
	return cs.disp.call(ctx, methodSetLevel, params, nil, 0)
}

// Complete asks the server for completion suggestions.
func (cs *ClientSession) Complete(ctx context.Context, params *CompleteParams) (*CompleteResult, error) {
	res := new(CompleteResult)
	if err := cs.disp.call(ctx, methodComplete, params, res, 0); err != nil {
		return nil, err
	}
	return res, nil
}

// NotifyRootsListChanged tells the server the root set changed.
func (cs *ClientSession) NotifyRootsListChanged(ctx context.Context) error {
	return cs.disp.notify(ctx, notificationRootsListChanged, nil)
}

// NotifyProgress sends a progress notification for a server-initiated
// request.
func (cs *ClientSession) NotifyProgress(ctx context.Context, params *ProgressNotificationParams) error {
	return cs.disp.notify(ctx, notificationProgress, params)
}

// GetTask polls the status of a task.
func (cs *ClientSession) GetTask(ctx context.Context, params *GetTaskParams) (*GetTaskResult, error) {
	res := new(GetTaskResult)
	if err := cs.disp.call(ctx, methodGetTask, params, res, 0); err != nil {
		return nil, err
	}
	return res, nil
}

// ListTasks lists one page of the server's tasks for this session.
func (cs *ClientSession) ListTasks(ctx context.Context, params *ListTasksParams) (*ListTasksResult, error) {
	if params == nil {
		params = &ListTasksParams{}
	}
	res := new(ListTasksResult)
	if err := cs.disp.call(ctx, methodListTasks, params, res, 0); err != nil {
		return nil, err
	}
	return res, nil
}

// CancelTask cancels a non-terminal task.
func (cs *ClientSession) CancelTask(ctx context.Context, params *CancelTaskParams) (*CancelTaskResult, error) {
	res := new(CancelTaskResult)
	if err := cs.disp.call(ctx, methodCancelTask, params, res, 0); err != nil {
		return nil, err
	}
	return res, nil
}
