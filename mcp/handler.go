// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"

	"github.com/mcpstack/go-mcp/jsonrpc"
)

// A ServerHandler receives the typed requests and notifications of one MCP
// server. Implementations embed [UnimplementedServerHandler] and override
// only the methods matching the capabilities the server advertises. The
// request defaults return a method-not-found error so unimplemented features
// degrade cleanly, except HandleInitialize, which accepts the default result,
// and HandleCallTool, which reports an unknown tool; notification defaults do
// nothing.
//
// Request handlers may block: each incoming request payload, single or
// batch, is dispatched on its own goroutine, while single notifications are
// handled in order on the session's message loop. The contexts passed in
// carry the correlation state the
// transport needs, so messages sent through the session inside a handler are
// delivered on the stream of the request being handled.
type ServerHandler interface {
	// HandleInitialize can customize the initialize result. Returning
	// (nil, nil) accepts the runtime's default result, built from the
	// server's implementation info and capabilities.
	HandleInitialize(ctx context.Context, ss *ServerSession, params *InitializeParams) (*InitializeResult, error)

	HandleListResources(ctx context.Context, ss *ServerSession, params *ListResourcesParams) (*ListResourcesResult, error)
	HandleListResourceTemplates(ctx context.Context, ss *ServerSession, params *ListResourceTemplatesParams) (*ListResourceTemplatesResult, error)
	HandleReadResource(ctx context.Context, ss *ServerSession, params *ReadResourceParams) (*ReadResourceResult, error)
	HandleSubscribe(ctx context.Context, ss *ServerSession, params *SubscribeParams) (*EmptyResult, error)
	HandleUnsubscribe(ctx context.Context, ss *ServerSession, params *UnsubscribeParams) (*EmptyResult, error)

	HandleListPrompts(ctx context.Context, ss *ServerSession, params *ListPromptsParams) (*ListPromptsResult, error)
	HandleGetPrompt(ctx context.Context, ss *ServerSession, params *GetPromptParams) (*GetPromptResult, error)

	HandleListTools(ctx context.Context, ss *ServerSession, params *ListToolsParams) (*ListToolsResult, error)
	HandleCallTool(ctx context.Context, ss *ServerSession, params *CallToolParams) (*CallToolResult, error)

	HandleSetLoggingLevel(ctx context.Context, ss *ServerSession, params *SetLoggingLevelParams) (*EmptyResult, error)
	HandleComplete(ctx context.Context, ss *ServerSession, params *CompleteParams) (*CompleteResult, error)

	// HandleCustomRequest receives requests whose method the runtime does
	// not know.
	HandleCustomRequest(ctx context.Context, ss *ServerSession, method string, params json.RawMessage) (any, error)

	// Notifications.
	HandleInitialized(ctx context.Context, ss *ServerSession)
	HandleCancelled(ctx context.Context, ss *ServerSession, params *CancelledParams)
	HandleProgress(ctx context.Context, ss *ServerSession, params *ProgressNotificationParams)
	HandleRootsListChanged(ctx context.Context, ss *ServerSession)
	HandleTaskStatus(ctx context.Context, ss *ServerSession, params *TaskStatusNotificationParams)
	HandleCustomNotification(ctx context.Context, ss *ServerSession, method string, params json.RawMessage)

	// HandleError observes errors about to be returned on the wire, for
	// logging or metrics. It must not block.
	HandleError(err error)
}

// UnimplementedServerHandler provides a default implementation of every
// [ServerHandler] method. Embed it to implement the interface.
type UnimplementedServerHandler struct{}

var _ ServerHandler = UnimplementedServerHandler{}

func methodNotFound(method string) error {
	return jsonrpc.Errorf(jsonrpc.CodeMethodNotFound, "method %q not found", method)
}

func (UnimplementedServerHandler) HandleInitialize(context.Context, *ServerSession, *InitializeParams) (*InitializeResult, error) {
	return nil, nil
}

func (UnimplementedServerHandler) HandleListResources(context.Context, *ServerSession, *ListResourcesParams) (*ListResourcesResult, error) {
	return nil, methodNotFound(methodListResources)
}

func (UnimplementedServerHandler) HandleListResourceTemplates(context.Context, *ServerSession, *ListResourceTemplatesParams) (*ListResourceTemplatesResult, error) {
	return nil, methodNotFound(methodListResourceTemplates)
}

func (UnimplementedServerHandler) HandleReadResource(context.Context, *ServerSession, *ReadResourceParams) (*ReadResourceResult, error) {
	return nil, methodNotFound(methodReadResource)
}

func (UnimplementedServerHandler) HandleSubscribe(context.Context, *ServerSession, *SubscribeParams) (*EmptyResult, error) {
	return nil, methodNotFound(methodSubscribe)
}

func (UnimplementedServerHandler) HandleUnsubscribe(context.Context, *ServerSession, *UnsubscribeParams) (*EmptyResult, error) {
	return nil, methodNotFound(methodUnsubscribe)
}

func (UnimplementedServerHandler) HandleListPrompts(context.Context, *ServerSession, *ListPromptsParams) (*ListPromptsResult, error) {
	return nil, methodNotFound(methodListPrompts)
}

func (UnimplementedServerHandler) HandleGetPrompt(context.Context, *ServerSession, *GetPromptParams) (*GetPromptResult, error) {
	return nil, methodNotFound(methodGetPrompt)
}

func (UnimplementedServerHandler) HandleListTools(context.Context, *ServerSession, *ListToolsParams) (*ListToolsResult, error) {
	return nil, methodNotFound(methodListTools)
}

// HandleCallTool reports an unknown tool: a server that advertises the
// tools capability but does not override this method has no tools.
func (UnimplementedServerHandler) HandleCallTool(_ context.Context, _ *ServerSession, params *CallToolParams) (*CallToolResult, error) {
	return nil, jsonrpc.Errorf(jsonrpc.CodeInvalidParams, "unknown tool %q", params.Name)
}

func (UnimplementedServerHandler) HandleSetLoggingLevel(context.Context, *ServerSession, *SetLoggingLevelParams) (*EmptyResult, error) {
	return nil, methodNotFound(methodSetLevel)
}

func (UnimplementedServerHandler) HandleComplete(context.Context, *ServerSession, *CompleteParams) (*CompleteResult, error) {
	return nil, methodNotFound(methodComplete)
}

func (UnimplementedServerHandler) HandleCustomRequest(_ context.Context, _ *ServerSession, method string, _ json.RawMessage) (any, error) {
	return nil, methodNotFound(method)
}

func (UnimplementedServerHandler) HandleInitialized(context.Context, *ServerSession) {}

func (UnimplementedServerHandler) HandleCancelled(context.Context, *ServerSession, *CancelledParams) {
}

func (UnimplementedServerHandler) HandleProgress(context.Context, *ServerSession, *ProgressNotificationParams) {
}

func (UnimplementedServerHandler) HandleRootsListChanged(context.Context, *ServerSession) {}

func (UnimplementedServerHandler) HandleTaskStatus(context.Context, *ServerSession, *TaskStatusNotificationParams) {
}

func (UnimplementedServerHandler) HandleCustomNotification(context.Context, *ServerSession, string, json.RawMessage) {
}

func (UnimplementedServerHandler) HandleError(error) {}

// A ClientHandler receives server-initiated requests and notifications on an
// MCP client. Embed [UnimplementedClientHandler] and override what the
// client supports.
type ClientHandler interface {
	// HandleListRoots answers the server's roots/list request.
	HandleListRoots(ctx context.Context, cs *ClientSession, params *ListRootsParams) (*ListRootsResult, error)
	// HandleCreateMessage answers a sampling request.
	HandleCreateMessage(ctx context.Context, cs *ClientSession, params *CreateMessageParams) (*CreateMessageResult, error)
	// HandleElicit answers an elicitation request.
	HandleElicit(ctx context.Context, cs *ClientSession, params *ElicitParams) (*ElicitResult, error)
	// HandleCustomRequest receives requests whose method the runtime does
	// not know.
	HandleCustomRequest(ctx context.Context, cs *ClientSession, method string, params json.RawMessage) (any, error)

	// Notifications.
	HandleProgress(ctx context.Context, cs *ClientSession, params *ProgressNotificationParams)
	HandleLoggingMessage(ctx context.Context, cs *ClientSession, params *LoggingMessageParams)
	HandleResourceUpdated(ctx context.Context, cs *ClientSession, params *ResourceUpdatedNotificationParams)
	HandleToolListChanged(ctx context.Context, cs *ClientSession)
	HandleCustomNotification(ctx context.Context, cs *ClientSession, method string, params json.RawMessage)

	// HandleError observes errors about to be returned on the wire.
	HandleError(err error)
}

// UnimplementedClientHandler provides a default implementation of every
// [ClientHandler] method.
type UnimplementedClientHandler struct{}

var _ ClientHandler = UnimplementedClientHandler{}

func (UnimplementedClientHandler) HandleListRoots(context.Context, *ClientSession, *ListRootsParams) (*ListRootsResult, error) {
	return nil, methodNotFound(methodListRoots)
}

func (UnimplementedClientHandler) HandleCreateMessage(context.Context, *ClientSession, *CreateMessageParams) (*CreateMessageResult, error) {
	return nil, methodNotFound(methodCreateMessage)
}

func (UnimplementedClientHandler) HandleElicit(context.Context, *ClientSession, *ElicitParams) (*ElicitResult, error) {
	return nil, methodNotFound(methodElicit)
}

func (UnimplementedClientHandler) HandleCustomRequest(_ context.Context, _ *ClientSession, method string, _ json.RawMessage) (any, error) {
	return nil, methodNotFound(method)
}

func (UnimplementedClientHandler) HandleProgress(context.Context, *ClientSession, *ProgressNotificationParams) {
}

func (UnimplementedClientHandler) HandleLoggingMessage(context.Context, *ClientSession, *LoggingMessageParams) {
}

func (UnimplementedClientHandler) HandleResourceUpdated(context.Context, *ClientSession, *ResourceUpdatedNotificationParams) {
}

func (UnimplementedClientHandler) HandleToolListChanged(context.Context, *ClientSession) {}

func (UnimplementedClientHandler) HandleCustomNotification(context.Context, *ClientSession, string, json.RawMessage) {
}

func (UnimplementedClientHandler) HandleError(error) {}
